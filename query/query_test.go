package query

import (
	"regexp"
	"testing"

	"github.com/dr8co/dexflow/dex"
	"github.com/dr8co/dexflow/flow"
	"github.com/dr8co/dexflow/instr"
)

func newTestMethod() *instr.Table {
	return instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 6, Instruction: instr.Instruction{Kind: instr.KindInvokeStatic, MethodIdx: 0, Regs: instr.InvokeRegs{}}},
		3: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindMoveResult, Dst: 0}},
		4: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
	})
}

func newBranchingTestMethod() *instr.Table {
	return instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindInstanceGet, Dst: 0}},
		1: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindConstLit16, Dst: 1, Literal: 0}},
		2: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindTest, Test: instr.TestEqual, Left: 0, Right: 1, Displacement: 2}},
		3: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
		4: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
	})
}

func newTestSymbols() dex.SymbolView {
	methods := []*dex.Method{{MethodIdx: 0, MethodName: "log", ClassIdx: 0, ProtoIdx: 0}}
	protos := []dex.Proto{{ReturnType: "V"}}
	types := []string{"Lcom/example/Logger;"}
	classes := []*dex.Class{{ClassName: "Lcom/example/Logger;", ClassIdx: 0, Methods: methods}}
	return dex.NewStaticSymbolView(methods, protos, nil, types, nil, classes)
}

func TestFindAllCallsFindsStaticMethodTable(t *testing.T) {
	e := flow.New(newTestMethod(), 4, newTestSymbols(), false)
	matches := FindAllCalls(e)
	if len(matches) != 1 {
		t.Fatalf("FindAllCalls() = %d matches, want 1", len(matches))
	}
	if matches[0].PC != 0 {
		t.Errorf("match pc = %v, want 0", matches[0].PC)
	}
}

func TestFindAllCallsRegexMatchesAfterRun(t *testing.T) {
	e := flow.New(newTestMethod(), 4, newTestSymbols(), false)
	sites := FindAllCallsRegex(e, regexp.MustCompile(`Logger;->log`))
	if len(sites) == 0 {
		t.Fatalf("expected at least one call site matching Logger;->log")
	}
	if sites[0].Call.Name != "log" {
		t.Errorf("Call.Name = %q, want log", sites[0].Call.Name)
	}
}

func TestFindAllCallsRegexFindsEveryCallSite(t *testing.T) {
	methods := []*dex.Method{{MethodIdx: 0, MethodName: "length", ClassIdx: 0, ProtoIdx: 0}}
	protos := []dex.Proto{{ReturnType: "I"}}
	types := []string{"Ljava/lang/String;"}
	classes := []*dex.Class{{ClassName: types[0], ClassIdx: 0, Methods: methods}}
	symbols := dex.NewStaticSymbolView(methods, protos, nil, types, nil, classes)
	table := instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 6, Instruction: instr.Instruction{Kind: instr.KindInvokeVirtual, MethodIdx: 0, Regs: instr.InvokeRegs{0}}},
		3: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindMoveResult, Dst: 1}},
		4: {Size: 6, Instruction: instr.Instruction{Kind: instr.KindInvokeVirtual, MethodIdx: 0, Regs: instr.InvokeRegs{0}}},
		7: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindMoveResult, Dst: 2}},
		8: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
	})
	e := flow.New(table, 3, symbols, false)

	sites := FindAllCallsRegex(e, regexp.MustCompile(`Ljava/lang/String;->length`))
	if len(sites) != 2 {
		t.Fatalf("FindAllCallsRegex() = %d matches, want 2 (one per call site)", len(sites))
	}
	if sites[0].PC != 0 || sites[1].PC != 4 {
		t.Errorf("match pcs = %v, %v, want 0 and 4", sites[0].PC, sites[1].PC)
	}
}

func TestFindAllCallsToMatchesExactSignature(t *testing.T) {
	e := flow.New(newTestMethod(), 4, newTestSymbols(), false)
	sites := FindAllCallsTo(e, "Lcom/example/Logger;->log()V")
	if len(sites) != 1 {
		t.Fatalf("FindAllCallsTo() = %d matches, want 1", len(sites))
	}

	e2 := flow.New(newTestMethod(), 4, newTestSymbols(), false)
	if miss := FindAllCallsTo(e2, "Lcom/example/Logger;->log"); len(miss) != 0 {
		t.Errorf("a truncated signature should not match exactly, got %d", len(miss))
	}
}

func TestFindAllCallsWithOpAcceptsUserClosure(t *testing.T) {
	e := flow.New(newTestMethod(), 4, newTestSymbols(), false)
	matches := FindAllCallsWithOp(e, func(sig string) bool {
		return len(sig) > 0
	})
	if len(matches) != 1 {
		t.Fatalf("FindAllCallsWithOp() = %d matches, want 1", len(matches))
	}
}

func TestAllBranchDecisionsIgnoresMethodsWithoutConditionals(t *testing.T) {
	e := flow.New(newTestMethod(), 4, newTestSymbols(), false)
	decisions := AllBranchDecisions(e)
	if len(decisions) != 0 {
		t.Fatalf("len(decisions) = %d, want 0 (no Test/TestZero in this method)", len(decisions))
	}
}

func TestAllBranchDecisionsRecordsForkingTest(t *testing.T) {
	e := flow.New(newBranchingTestMethod(), 2, newTestSymbols(), false)
	decisions := AllBranchDecisions(e)
	if len(decisions) != 1 {
		t.Fatalf("len(decisions) = %d, want 1", len(decisions))
	}
	if decisions[0].PC != 2 {
		t.Errorf("decision pc = %v, want 2 (the if-eq instruction)", decisions[0].PC)
	}
}

func TestFindAllStaticReadsEmptyWithoutFieldAccess(t *testing.T) {
	e := flow.New(newTestMethod(), 4, newTestSymbols(), false)
	reads := FindAllStaticReads(e, regexp.MustCompile(".*"))
	if len(reads) != 0 {
		t.Errorf("expected no static reads, got %d", len(reads))
	}
}

func TestFindAllStaticWritesEmptyForStaticPut(t *testing.T) {
	fields := []*dex.Field{{FieldIdx: 0, Name: "DEBUG", ClassIdx: 0}}
	types := []string{"Lcom/example/Config;"}
	symbols := dex.NewStaticSymbolView(nil, nil, fields, types, nil, nil)
	table := instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindConstLit16, Dst: 0, Literal: 1}},
		1: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindStaticPut, Dst: 0, FieldIdx: 0}},
		2: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
	})
	e := flow.New(table, 1, symbols, false)

	// Static puts are no-ops in the symbolic domain: no event is
	// recorded, so a write search over this method comes back empty.
	writes := FindAllStaticWrites(e, regexp.MustCompile("^DEBUG$"))
	if len(writes) != 0 {
		t.Fatalf("FindAllStaticWrites() = %d matches, want 0", len(writes))
	}
}
