// Package query implements read-only analysis over a flow engine's branch
// worklist: decision digests at conditional tests and instruction-event
// searches (calls, static field reads/writes), the surface an analyst
// actually drives rather than the engine's own step-by-step API.
//
// Every query here drives the engine itself and is capped: at most
// flow.MaxIterations ticks overall, and the decision enumerator gives up
// early once the worklist has outgrown flow.QueryBranchCeiling branches
// and flow.QueryIterationCeiling ticks have passed — a heuristic engine
// with unbounded forking can outgrow what an interactive query should
// wait on, so these give up rather than block indefinitely.
package query

import (
	"regexp"
	"sort"

	"github.com/dr8co/dexflow/flow"
	"github.com/dr8co/dexflow/instr"
	"github.com/dr8co/dexflow/value"
)

// Decision is one branch's snapshot at the moment it was positioned on a
// Test or TestZero instruction — one entry per (branch, offset) visit,
// keeping the most recently observed taint state.
type Decision struct {
	BranchID uint64
	PC       instr.Offset
	Tainted  bool
	Finished bool
}

func isConditional(k instr.Kind) bool {
	return k == instr.KindTest || k == instr.KindTestZero
}

// AllBranchDecisions runs e tick by tick (subject to the query caps),
// recording a Decision each time a branch is found sitting on a
// conditional test, deduplicated by (branch id, offset) with the latest
// taint observed, sorted by branch id.
func AllBranchDecisions(e *flow.Engine) []Decision {
	seen := make(map[decisionKey]*Decision)
	var order []decisionKey

	ticks := 0
	for !e.IsDone() && ticks < flow.MaxIterations {
		if ticks > flow.QueryIterationCeiling && len(e.GetAllBranches()) > flow.QueryBranchCeiling {
			break
		}
		pending := pendingConditionals(e)
		e.Tick()
		ticks++
		recordDecisions(e, pending, seen, &order)
	}

	out := make([]Decision, len(order))
	for i, k := range order {
		out[i] = *seen[k]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BranchID < out[j].BranchID })
	return out
}

type decisionKey struct {
	BranchID uint64
	PC       instr.Offset
}

func pendingConditionals(e *flow.Engine) map[uint64]instr.Offset {
	pending := make(map[uint64]instr.Offset)
	for _, b := range e.GetAllBranches() {
		if b.Finished {
			continue
		}
		entry, ok := e.GetInstruction(b.PC)
		if ok && isConditional(entry.Instruction.Kind) {
			pending[b.ID] = b.PC
		}
	}
	return pending
}

// recordDecisions walks branches in e.GetAllBranches()'s stable,
// id-ascending append order (not the pending map's randomized iteration
// order) so that order, and therefore the first-seen insertion into seen,
// is deterministic across runs.
func recordDecisions(e *flow.Engine, pending map[uint64]instr.Offset, seen map[decisionKey]*Decision, order *[]decisionKey) {
	for _, b := range e.GetAllBranches() {
		pc, ok := pending[b.ID]
		if !ok {
			continue
		}
		key := decisionKey{BranchID: b.ID, PC: pc}
		if _, exists := seen[key]; !exists {
			*order = append(*order, key)
		}
		seen[key] = &Decision{BranchID: b.ID, PC: pc, Tainted: b.State.Tainted, Finished: b.Finished}
	}
}

// CallMatch pairs a resolved invoke's FunctionCall with the branch and
// offset it was observed on.
type CallMatch struct {
	BranchID uint64
	PC       instr.Offset
	Call     *value.FunctionCall
}

// FieldMatch pairs a resolved static field event with the branch and
// offset it was observed on.
type FieldMatch struct {
	BranchID  uint64
	PC        instr.Offset
	Name      string
	ClassName string
}

// InstructionKind names the three LastInstruction variants
// FindAllInstructionWithOp dispatches on: a resolved call, a resolved
// static-get, or a StoreStaticField event (which the engine itself never
// records; static-puts are no-ops in its symbolic domain).
type InstructionKind int

const (
	KindFunctionCall InstructionKind = iota
	KindReadStaticField
	KindStoreStaticField
)

// InstructionMatch is one branch snapshot recorded by
// FindAllInstructionWithOp: the branch it was observed on, the offset of
// the instruction that produced the event, and a copy of the
// LastInstruction.
type InstructionMatch struct {
	BranchID        uint64
	PC              instr.Offset
	LastInstruction value.LastInstruction
}

// characteristicString extracts the string find_all_instruction_with_op's
// predicate is evaluated against for li, if li is of kind: a call's
// signature, or a field event's name.
func characteristicString(kind InstructionKind, li value.LastInstruction) (string, bool) {
	switch kind {
	case KindFunctionCall:
		if fc, ok := li.(*value.FunctionCall); ok {
			return fc.Signature, true
		}
	case KindReadStaticField:
		if rf, ok := li.(*value.ReadStaticField); ok {
			return rf.Name, true
		}
	case KindStoreStaticField:
		if sf, ok := li.(*value.StoreStaticField); ok {
			return sf.Name, true
		}
	}
	return "", false
}

// FindAllInstructionWithOp is the generic instruction-event search: it
// drives e tick by tick and records a branch snapshot
// every time that branch's LastInstruction changes to a new event of the
// given kind whose characteristic string (call signature, or field name)
// satisfies predicate. FindAllCallsWithOp/FindAllStaticReads/
// FindAllStaticWrites below are convenience wrappers that fix kind and
// select predicate as exact-match or regex-match.
func FindAllInstructionWithOp(e *flow.Engine, kind InstructionKind, predicate func(string) bool) []InstructionMatch {
	var out []InstructionMatch
	runEvents(e, func(branchID uint64, pc instr.Offset, li value.LastInstruction) {
		sig, ok := characteristicString(kind, li)
		if ok && predicate(sig) {
			out = append(out, InstructionMatch{BranchID: branchID, PC: pc, LastInstruction: snapshotInstruction(li)})
		}
	})
	return out
}

// snapshotInstruction copies li so a match never aliases engine state.
func snapshotInstruction(li value.LastInstruction) value.LastInstruction {
	switch i := li.(type) {
	case *value.FunctionCall:
		cp := *i
		cp.Args = append([]value.Value(nil), i.Args...)
		return &cp
	case *value.ReadStaticField:
		cp := *i
		return &cp
	case *value.StoreStaticField:
		cp := *i
		return &cp
	}
	return li
}

// runEvents drives e tick by tick, invoking collect each time a branch's
// LastInstruction changes to a new, non-nil value — the generic core
// FindAllInstructionWithOp dispatches through. The reported offset is
// PreviousPC: the offset of the instruction that produced the event,
// not the fall-through position the branch has already advanced to.
func runEvents(e *flow.Engine, collect func(branchID uint64, pc instr.Offset, li value.LastInstruction)) {
	seen := make(map[uint64]value.LastInstruction)
	ticks := 0
	for !e.IsDone() && ticks < flow.MaxIterations {
		e.Tick()
		ticks++
		for _, b := range e.GetAllBranches() {
			li := b.State.LastInstruction
			if li == nil || li == seen[b.ID] {
				continue
			}
			seen[b.ID] = li
			collect(b.ID, b.PreviousPC, li)
		}
	}
}

// FindAllCallsWithOp finds every resolved invoke whose call signature
// satisfies predicate.
func FindAllCallsWithOp(e *flow.Engine, predicate func(signature string) bool) []CallMatch {
	matches := FindAllInstructionWithOp(e, KindFunctionCall, predicate)
	out := make([]CallMatch, len(matches))
	for i, m := range matches {
		out[i] = CallMatch{BranchID: m.BranchID, PC: m.PC, Call: m.LastInstruction.(*value.FunctionCall)}
	}
	return out
}

// FindAllCalls finds every resolved invoke, unfiltered.
func FindAllCalls(e *flow.Engine) []CallMatch {
	return FindAllCallsWithOp(e, func(string) bool { return true })
}

// FindAllCallsRegex finds every resolved invoke whose call signature
// matches re.
func FindAllCallsRegex(e *flow.Engine, re *regexp.Regexp) []CallMatch {
	return FindAllCallsWithOp(e, re.MatchString)
}

// FindAllCallsTo finds every resolved invoke whose canonical
// Class->name(proto) signature equals signature exactly.
func FindAllCallsTo(e *flow.Engine, signature string) []CallMatch {
	return FindAllCallsWithOp(e, func(sig string) bool { return sig == signature })
}

func findAllFields(e *flow.Engine, kind InstructionKind, predicate func(string) bool) []FieldMatch {
	matches := FindAllInstructionWithOp(e, kind, predicate)
	out := make([]FieldMatch, len(matches))
	for i, m := range matches {
		switch li := m.LastInstruction.(type) {
		case *value.ReadStaticField:
			out[i] = FieldMatch{BranchID: m.BranchID, PC: m.PC, Name: li.Name, ClassName: li.ClassName}
		case *value.StoreStaticField:
			out[i] = FieldMatch{BranchID: m.BranchID, PC: m.PC, Name: li.Name, ClassName: li.ClassName}
		}
	}
	return out
}

// FindAllStaticReads finds every resolved static-get whose field name
// matches re.
func FindAllStaticReads(e *flow.Engine, re *regexp.Regexp) []FieldMatch {
	return findAllFields(e, KindReadStaticField, re.MatchString)
}

// FindAllStaticWrites finds every StoreStaticField event whose field name
// matches re. The engine records no event for static-put instructions
// (they are no-ops in its symbolic domain), so over an engine-driven run
// this returns no matches.
func FindAllStaticWrites(e *flow.Engine, re *regexp.Regexp) []FieldMatch {
	return findAllFields(e, KindStoreStaticField, re.MatchString)
}
