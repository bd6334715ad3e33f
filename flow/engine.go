// Package flow implements the path-sensitive flow engine: a worklist of
// Branches, each stepped one instruction per tick, forking at
// conditionals and switches and folding/deferring register values through
// the value package's symbolic algebra.
//
// Ticks are bulk-synchronous and data-parallel: Tick fans every
// unfinished branch out to its own goroutine, then merges each goroutine's
// proposed forks, taints, and revisit-log entries back in sequentially.
// Per-branch state is exclusively owned by its own goroutine for the
// duration of one tick; only the three shared, mutex-guarded lists are
// touched concurrently.
package flow

import (
	"log/slog"
	"sync"

	"github.com/dr8co/dexflow/dex"
	"github.com/dr8co/dexflow/instr"
	"github.com/dr8co/dexflow/value"
)

// Exploration caps. Heuristic bounds on symbolic explosion, not
// correctness guarantees.
const (
	MaxIterations         = 1000
	MaxLiveBranches       = 1000
	MaxRootBranches       = 10
	QueryBranchCeiling    = 300
	QueryIterationCeiling = 150
)

type revisitEntry struct {
	BranchID uint64
	Offset   instr.Offset
}

// Engine owns the branch worklist, the immutable decoded-method table, a
// shared read-only DEX symbol view, the register width, the revisit log,
// and the conservative flag.
type Engine struct {
	branches        []*Branch
	method          *instr.Table
	symbols         dex.SymbolView
	registerCount   int
	alreadyBranched []revisitEntry
	conservative    bool
	nextID          uint64
}

// New constructs an engine for one method body, seeded with a single
// branch at offset 0. IDs are assigned by a monotonic per-engine counter
// rather than random 64-bit values: collision-free within one engine
// lifetime, and it keeps query snapshots reproducible across runs.
func New(method *instr.Table, registerCount int, symbols dex.SymbolView, conservative bool) *Engine {
	e := &Engine{
		method:        method,
		symbols:       symbols,
		registerCount: registerCount,
		conservative:  conservative,
	}
	e.newBranch(0, nil)
	return e
}

func (e *Engine) newID() uint64 {
	e.nextID++
	return e.nextID
}

// Reset clears the branch worklist and revisit log and seeds one fresh
// branch at start.
func (e *Engine) Reset(start instr.Offset) {
	e.branches = nil
	e.alreadyBranched = nil
	e.newBranch(start, nil)
}

func (e *Engine) newBranch(pc instr.Offset, parent *uint64) {
	if len(e.branches) > MaxRootBranches {
		return
	}
	id := e.newID()
	st := newState(e.newID(), e.registerCount)
	e.branches = append(e.branches, &Branch{ID: id, ParentID: parent, PC: pc, PreviousPC: pc, State: st})
}

// fork appends a clone of branch with fresh branch and state identities,
// returning the new branch's id.
func (e *Engine) fork(branch *Branch) uint64 {
	id := e.newID()
	nb := branch.clone()
	nb.ID = id
	nb.State.ID = e.newID()
	e.branches = append(e.branches, nb)
	return id
}

// IsDone reports whether every branch in the worklist is finished (or the
// worklist is empty).
func (e *Engine) IsDone() bool {
	for _, b := range e.branches {
		if !b.Finished {
			return false
		}
	}
	return true
}

// GetAllStates returns the live (not snapshotted) state of every branch,
// in worklist order.
func (e *Engine) GetAllStates() []*State {
	out := make([]*State, len(e.branches))
	for i, b := range e.branches {
		out[i] = b.State
	}
	return out
}

// GetAllBranches returns the live branch worklist.
func (e *Engine) GetAllBranches() []*Branch { return e.branches }

// GetInstruction looks up the decoded instruction at offset.
func (e *Engine) GetInstruction(offset instr.Offset) (instr.Entry, bool) {
	return e.method.Get(offset)
}

// Method returns the engine's decoded instruction table, for callers
// (the query package) that need to scan every entry rather than look up
// one offset at a time.
func (e *Engine) Method() *instr.Table { return e.method }

// Conservative reports the engine's conservative flag.
func (e *Engine) Conservative() bool { return e.conservative }

type pendingFork struct {
	sourcePC instr.Offset
	branch   *Branch
}

// tickState holds the only state shared across branch goroutines within
// one tick: the revisit log, the pending forks, and the pending taints,
// all guarded by a single mutex.
type tickState struct {
	mu      sync.Mutex
	forks   []pendingFork
	taints  []uint64
	revisit []revisitEntry
}

// Tick advances every non-finished branch by one instruction, in
// parallel, then sequentially drains taints (propagated recursively
// through parent_id) and admits any new forks subject to the live-branch
// cap.
func (e *Engine) Tick() {
	if len(e.branches) == 0 {
		return
	}
	ts := &tickState{revisit: append([]revisitEntry(nil), e.alreadyBranched...)}

	var wg sync.WaitGroup
	for _, b := range e.branches {
		if b.Finished {
			continue
		}
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.step(b, ts)
		}()
	}
	wg.Wait()

	e.alreadyBranched = ts.revisit

	for _, id := range ts.taints {
		taintRecursively(id, e.branches)
	}

	if len(e.branches) < MaxLiveBranches {
		for _, pf := range ts.forks {
			id := e.fork(pf.branch)
			e.alreadyBranched = append(e.alreadyBranched, revisitEntry{BranchID: id, Offset: pf.sourcePC})
		}
	}
}

// step executes one instruction on branch b: guard against a stuck pc,
// fetch, dispatch on the instruction kind, discard a stale unbound call
// result, and advance.
func (e *Engine) step(b *Branch, ts *tickState) {
	if b.PC != 0 && b.PreviousPC == b.PC {
		b.Finished = true
		return
	}
	b.PreviousPC = b.PC

	entry, ok := e.method.Get(b.PC)
	if !ok {
		slog.Debug("branch ran off the end of the method table", "branch", b.ID, "pc", b.PC)
		b.Finished = true
		return
	}
	ins := entry.Instruction

	jumped := false
	switch ins.Kind {
	case instr.KindArbitraryData, instr.KindArrayData, instr.KindSwitchData, instr.KindNop,
		instr.KindCheckCast, instr.KindConst, instr.KindConstWide,
		instr.KindStaticPut, instr.KindInstancePut,
		instr.KindInvoke, instr.KindInvokeType,
		instr.KindNewInstanceType, instr.KindNewArray, instr.KindFilledNewArray,
		instr.KindFilledNewArrayRange, instr.KindFillArrayData:
		// no-ops in the symbolic domain

	case instr.KindGoto8, instr.KindGoto16, instr.KindGoto32:
		b.PC = b.PC.Add(ins.Displacement)
		jumped = true

	case instr.KindTest:
		jumped = e.stepTest(b, ins, ts)

	case instr.KindTestZero:
		jumped = e.stepTestZero(b, ins, ts)

	case instr.KindSwitch:
		e.stepSwitch(b, ins, ts)
		b.Finished = true
		return

	case instr.KindArithTwoReg:
		setReg(b.State, ins.Dst, value.Apply(arithToOp(ins.Arith), reg(b.State, ins.Dst), reg(b.State, ins.Right)))

	case instr.KindArithThreeReg:
		setReg(b.State, ins.Dst, value.Apply(arithToOp(ins.Arith), reg(b.State, ins.Left), reg(b.State, ins.Right)))

	case instr.KindArithLit8, instr.KindArithLit16:
		setReg(b.State, ins.Dst, value.ApplyLit(arithToOp(ins.Arith), reg(b.State, ins.Left), ins.Literal))

	case instr.KindConstLit4, instr.KindConstLit16, instr.KindConstLit32:
		setReg(b.State, ins.Dst, value.NewNumber(ins.Literal))

	case instr.KindConstString, instr.KindConstStringJumbo:
		e.stepConstString(b, ins)

	case instr.KindConstClass:
		e.stepConstClass(b, ins)

	case instr.KindIntToByte:
		if n, ok := reg(b.State, ins.Left).(value.Number); ok {
			setReg(b.State, ins.Dst, value.Byte{Value: byte(n.Value.Int64())})
		}

	case instr.KindIntToChar:
		if n, ok := reg(b.State, ins.Left).(value.Number); ok {
			setReg(b.State, ins.Dst, value.Char{Value: byte(n.Value.Int64())})
		}

	case instr.KindArrayLength:
		e.stepArrayLength(b, ins)

	case instr.KindNewInstance:
		e.stepNewInstance(b, ins)

	case instr.KindArrayGetByte:
		e.stepArrayGet(b, ins, false)

	case instr.KindArrayGetChar:
		e.stepArrayGet(b, ins, true)

	case instr.KindArrayPutByte:
		e.stepArrayPut(b, ins, false)

	case instr.KindArrayPutChar:
		e.stepArrayPut(b, ins, true)

	case instr.KindInvokeVirtual, instr.KindInvokeSuper, instr.KindInvokeDirect, instr.KindInvokeStatic:
		e.stepInvoke(b, ins)

	case instr.KindInvokeInterface:
		e.stepInvokeInterface(b, ins)

	case instr.KindInvokeVirtualRange, instr.KindInvokeSuperRange, instr.KindInvokeDirectRange,
		instr.KindInvokeStaticRange, instr.KindInvokeInterfaceRange:
		e.stepInvokeRange(b, ins)

	case instr.KindStaticGet:
		e.stepStaticGet(b, ins, false)

	case instr.KindStaticGetWide:
		e.stepStaticGet(b, ins, true)

	case instr.KindInstanceGet:
		setReg(b.State, ins.Dst, value.Empty{})

	case instr.KindInstanceGetWide:
		setReg(b.State, ins.Dst, value.Empty{})
		setReg(b.State, ins.Dst+1, value.Empty{})

	case instr.KindMove, instr.KindMove16, instr.KindMoveObject, instr.KindMoveObject16:
		setReg(b.State, ins.Dst, cloneValue(reg(b.State, ins.Left)))

	case instr.KindMoveResult, instr.KindMoveResultWide, instr.KindMoveResultObject:
		if fc, ok := b.State.LastInstruction.(*value.FunctionCall); ok {
			cp := *fc
			setReg(b.State, ins.Dst, value.Variable{Instr: &cp})
		}

	case instr.KindMoveFrom16, instr.KindMoveObjectFrom16, instr.KindMoveWide,
		instr.KindMoveWideFrom16, instr.KindMoveWide16:
		setReg(b.State, ins.Dst, value.Empty{})

	case instr.KindReturnVoid, instr.KindReturn, instr.KindThrow:
		b.Finished = true
		return

	case instr.KindNotImpl:
		slog.Warn("unmodeled instruction, tainting branch", "branch", b.ID, "pc", b.PC)
		ts.mu.Lock()
		ts.taints = append(ts.taints, b.ID)
		ts.mu.Unlock()
		for i := range b.State.Registers {
			b.State.Registers[i] = value.Empty{}
		}

	default:
		// Unsupported opcode: an internal anomaly, absorbed by finishing
		// the branch rather than propagating.
		slog.Warn("unsupported opcode, finishing branch", "branch", b.ID, "pc", b.PC, "kind", ins.Kind)
		b.Finished = true
		return
	}

	if !isFunctionCall(ins.Kind) && !isMoveResult(ins.Kind) {
		if _, ok := b.State.LastInstruction.(*value.FunctionCall); ok {
			b.State.LastInstruction = nil
		}
	}

	if !jumped {
		b.PC = b.PC.Add(entry.Size.Words())
	}
}

func (e *Engine) stepTest(b *Branch, ins instr.Instruction, ts *tickState) bool {
	ts.mu.Lock()
	revisited := false
	for _, r := range ts.revisit {
		if r.BranchID == b.ID && r.Offset == b.PC {
			revisited = true
			break
		}
	}
	if revisited {
		ts.taints = append(ts.taints, b.ID)
		for _, r := range ts.revisit {
			ts.taints = append(ts.taints, r.BranchID)
		}
		ts.mu.Unlock()
		return false
	}
	b.State.LoopCount[b.PC]++
	ts.revisit = append(ts.revisit, revisitEntry{BranchID: b.ID, Offset: b.PC})
	ts.mu.Unlock()

	left := reg(b.State, ins.Left)
	right := reg(b.State, ins.Right)
	ln, lok := value.TryGetNumber(left)
	rn, rok := value.TryGetNumber(right)
	if lok && rok {
		if ins.Test.Evaluate(ln.Int64(), rn.Int64()) {
			b.PC = b.PC.Add(ins.Displacement)
			return true
		}
		return false
	}

	if e.conservative || isEmpty(left) || isEmpty(right) {
		b.State.Tainted = true
	}

	forked := b.clone()
	forked.ParentID = u64ptr(b.ID)
	forked.PC = b.PC.Add(ins.Displacement)
	forked.State.LoopCount = make(map[instr.Offset]uint32)

	ts.mu.Lock()
	ts.forks = append(ts.forks, pendingFork{sourcePC: b.PC, branch: forked})
	ts.mu.Unlock()
	return false
}

func (e *Engine) stepTestZero(b *Branch, ins instr.Instruction, ts *tickState) bool {
	ts.mu.Lock()
	revisited := false
	for _, r := range ts.revisit {
		if r.BranchID == b.ID && r.Offset == b.PC {
			revisited = true
			break
		}
	}
	if revisited {
		ts.taints = append(ts.taints, b.ID)
		for _, r := range ts.revisit {
			ts.taints = append(ts.taints, r.BranchID)
		}
		ts.mu.Unlock()
		return false
	}
	b.State.LoopCount[b.PC]++
	ts.revisit = append(ts.revisit, revisitEntry{BranchID: b.ID, Offset: b.PC})
	ts.mu.Unlock()

	left := reg(b.State, ins.Left)
	if ln, ok := value.TryGetNumber(left); ok {
		if ins.Test.Evaluate(ln.Int64(), 0) {
			b.PC = b.PC.Add(ins.Displacement)
			return true
		}
		return false
	}

	if e.conservative || isEmpty(left) {
		b.State.Tainted = true
	}

	forked := b.clone()
	forked.ParentID = u64ptr(b.ID)
	forked.PC = b.PC.Add(ins.Displacement)
	forked.State.LoopCount = make(map[instr.Offset]uint32)

	ts.mu.Lock()
	ts.forks = append(ts.forks, pendingFork{sourcePC: b.PC, branch: forked})
	ts.mu.Unlock()
	return false
}

func (e *Engine) stepSwitch(b *Branch, ins instr.Instruction, ts *tickState) {
	dataEntry, ok := e.method.Get(b.PC.Add(ins.Displacement))
	if !ok || dataEntry.Instruction.Kind != instr.KindSwitchData {
		return
	}

	ts.mu.Lock()
	alreadyLogged := false
	for _, r := range ts.revisit {
		if r.Offset == b.PC {
			alreadyLogged = true
			break
		}
	}
	ts.mu.Unlock()
	if alreadyLogged {
		return
	}

	for _, target := range dataEntry.Instruction.Switch.Targets {
		forked := b.clone()
		forked.ParentID = u64ptr(b.ID)
		forked.PC = b.PC.Add(target.Displacement)
		ts.mu.Lock()
		ts.forks = append(ts.forks, pendingFork{sourcePC: b.PC, branch: forked})
		ts.mu.Unlock()
	}
}

func (e *Engine) stepConstString(b *Branch, ins instr.Instruction) {
	if s, ok := e.symbols.String(ins.StrIdx); ok {
		setReg(b.State, ins.Dst, value.String{Value: s})
	} else {
		setReg(b.State, ins.Dst, value.Unknown{Type: "Ljava/lang/String;"})
	}
}

func (e *Engine) stepConstClass(b *Branch, ins instr.Instruction) {
	if name, ok := e.symbols.ClassName(ins.TypeIdx); ok {
		setReg(b.State, ins.Dst, value.Unknown{Type: name})
	} else {
		setReg(b.State, ins.Dst, value.Unknown{Type: "TYPE NOT FOUND"})
	}
}

func (e *Engine) stepArrayLength(b *Branch, ins instr.Instruction) {
	if arr, ok := reg(b.State, ins.Left).(value.Bytes); ok {
		setReg(b.State, ins.Dst, value.NewNumber(int64(len(arr.Value))))
	} else {
		setReg(b.State, ins.Dst, value.Invalid{})
	}
}

func (e *Engine) stepNewInstance(b *Branch, ins instr.Instruction) {
	if name, ok := e.symbols.TypeName(ins.TypeIdx); ok {
		setReg(b.State, ins.Dst, value.Object{Type: name})
	} else {
		setReg(b.State, ins.Dst, value.Unknown{Type: "UNKNOWN"})
	}
}

// stepArrayGet handles aget-byte (char=false) and aget-char (char=true):
// Left is the array register, Right the index register, Dst the
// destination.
func (e *Engine) stepArrayGet(b *Branch, ins instr.Instruction, char bool) {
	arr, okArr := reg(b.State, ins.Left).(value.Bytes)
	idx, okIdx := reg(b.State, ins.Right).(value.Number)
	if okArr && okIdx {
		i := idx.Value.Int64()
		if i >= 0 && i < int64(len(arr.Value)) {
			if char {
				setReg(b.State, ins.Dst, value.Char{Value: arr.Value[i]})
			} else {
				setReg(b.State, ins.Dst, value.Byte{Value: arr.Value[i]})
			}
			return
		}
	}
	setReg(b.State, ins.Dst, value.Empty{})
}

// stepArrayPut handles aput-byte/aput-char: Dst holds the source register
// (reusing the field slot, not a destination here), Left the array
// register, Right the index register.
func (e *Engine) stepArrayPut(b *Branch, ins instr.Instruction, char bool) {
	idx, okIdx := reg(b.State, ins.Right).(value.Number)
	arr, okArr := reg(b.State, ins.Left).(value.Bytes)
	if !okArr || !okIdx {
		return
	}
	i := idx.Value.Int64()
	if i < 0 || i >= int64(len(arr.Value)) {
		return
	}
	if char {
		if c, ok := reg(b.State, ins.Dst).(value.Char); ok {
			arr.Value[i] = c.Value
		}
	} else {
		if by, ok := reg(b.State, ins.Dst).(value.Byte); ok {
			arr.Value[i] = by.Value
		}
	}
}

func (e *Engine) resolveClass(classIdx uint32) (string, *dex.Class) {
	className, _ := e.symbols.TypeName(classIdx)
	class, ok := e.symbols.ClassByTypeName(classIdx)
	if !ok {
		class = &dex.Class{ClassName: className, ClassIdx: classIdx}
	}
	return className, class
}

func (e *Engine) stepInvoke(b *Branch, ins instr.Instruction) {
	m, ok := e.symbols.Method(ins.MethodIdx)
	if !ok {
		return
	}
	proto, _ := e.symbols.Proto(m.ProtoIdx)
	className, class := e.resolveClass(m.ClassIdx)
	args := make([]value.Value, len(ins.Regs))
	for i, r := range ins.Regs {
		args[i] = reg(b.State, r)
	}
	b.State.LastInstruction = &value.FunctionCall{
		Name:      m.MethodName,
		Signature: dex.Signature(className, m.MethodName, proto),
		ClassName: className,
		Class:     class,
		Method:    m,
		Args:      args,
		Result:    callResult(proto),
	}
}

func (e *Engine) stepInvokeRange(b *Branch, ins instr.Instruction) {
	m, ok := e.symbols.Method(ins.MethodIdx)
	if !ok {
		return
	}
	proto, _ := e.symbols.Proto(m.ProtoIdx)
	className, class := e.resolveClass(m.ClassIdx)
	b.State.LastInstruction = &value.FunctionCall{
		Name:      m.MethodName,
		Signature: dex.Signature(className, m.MethodName, proto),
		ClassName: className,
		Class:     class,
		Method:    m,
		Args:      nil,
		Result:    callResult(proto),
	}
}

// stepInvokeInterface is the engine's sole virtual-dispatch refinement:
// when the declared interface has exactly one concrete implementor, the
// receiver and call target are rewritten to it.
func (e *Engine) stepInvokeInterface(b *Branch, ins instr.Instruction) {
	m, ok := e.symbols.Method(ins.MethodIdx)
	if !ok {
		return
	}
	proto, _ := e.symbols.Proto(m.ProtoIdx)
	className, class := e.resolveClass(m.ClassIdx)
	args := make([]value.Value, len(ins.Regs))
	for i, r := range ins.Regs {
		args[i] = reg(b.State, r)
	}
	result := callResult(proto)

	impls := e.symbols.ImplementorsFor(class)
	if len(impls) == 1 {
		impl := impls[0]
		if len(args) > 0 {
			args[0] = value.Object{Type: impl.ClassName}
		}
		for _, im := range impl.Methods {
			if im.MethodName == m.MethodName {
				b.State.LastInstruction = &value.FunctionCall{
					Name:      im.MethodName,
					Signature: dex.Signature(impl.ClassName, m.MethodName, proto),
					ClassName: impl.ClassName,
					Class:     impl,
					Method:    im,
					Args:      args,
					Result:    result,
				}
				return
			}
		}
	}

	b.State.LastInstruction = &value.FunctionCall{
		Name:      m.MethodName,
		Signature: dex.Signature(className, m.MethodName, proto),
		ClassName: className,
		Class:     class,
		Method:    m,
		Args:      args,
		Result:    result,
	}
}

func callResult(proto dex.Proto) value.Value {
	if proto.ReturnType == "V" {
		return nil
	}
	return value.Object{Type: proto.ReturnType}
}

func (e *Engine) stepStaticGet(b *Branch, ins instr.Instruction, wide bool) {
	setReg(b.State, ins.Dst, value.Empty{})
	if wide {
		setReg(b.State, ins.Dst+1, value.Empty{})
	}
	f, ok := e.symbols.Field(ins.FieldIdx)
	if !ok {
		return
	}
	className, class := e.resolveClass(f.ClassIdx)
	b.State.LastInstruction = &value.ReadStaticField{
		File:      e.symbols,
		Class:     class,
		ClassName: className,
		Field:     f,
		Name:      f.Name,
	}
}

func cloneValue(v value.Value) value.Value {
	if b, ok := v.(value.Bytes); ok {
		cp := make([]byte, len(b.Value))
		copy(cp, b.Value)
		return value.Bytes{Value: cp}
	}
	return v
}

func isEmpty(v value.Value) bool {
	_, ok := v.(value.Empty)
	return ok
}

func arithToOp(a instr.ArithOp) value.Operation {
	switch a {
	case instr.ArithAdd:
		return value.OpAdd
	case instr.ArithSub:
		return value.OpSub
	case instr.ArithMul:
		return value.OpMul
	case instr.ArithDiv:
		return value.OpDiv
	case instr.ArithRem:
		return value.OpRem
	case instr.ArithAnd:
		return value.OpAnd
	case instr.ArithOr:
		return value.OpOr
	case instr.ArithXor:
		return value.OpXor
	case instr.ArithShl:
		return value.OpShl
	case instr.ArithShr:
		return value.OpShr
	case instr.ArithUshr:
		return value.OpUshr
	default:
		return value.OpAdd
	}
}

func isFunctionCall(k instr.Kind) bool {
	switch k {
	case instr.KindInvoke, instr.KindInvokeType,
		instr.KindInvokeVirtual, instr.KindInvokeSuper, instr.KindInvokeDirect, instr.KindInvokeStatic, instr.KindInvokeInterface,
		instr.KindInvokeVirtualRange, instr.KindInvokeSuperRange, instr.KindInvokeDirectRange,
		instr.KindInvokeStaticRange, instr.KindInvokeInterfaceRange:
		return true
	default:
		return false
	}
}

func isMoveResult(k instr.Kind) bool {
	switch k {
	case instr.KindMoveResult, instr.KindMoveResultWide, instr.KindMoveResultObject:
		return true
	default:
		return false
	}
}

// taintRecursively marks id tainted and propagates downward through
// every branch whose ancestor chain contains id.
func taintRecursively(id uint64, branches []*Branch) {
	var children []uint64
	for _, b := range branches {
		if b.ID == id {
			b.State.Tainted = true
			continue
		}
		if b.ParentID != nil && *b.ParentID == id {
			children = append(children, b.ID)
		}
	}
	for _, c := range children {
		taintRecursively(c, branches)
	}
}
