package main

import (
	"github.com/dr8co/dexflow/dex"
	"github.com/dr8co/dexflow/instr"
)

// demo bundles everything needed to seed a flow engine: the decoded
// method table, its register count, and the DEX symbol view invokes and
// field accesses resolve against. Each one is a small hand-assembled
// method exercising one engine behavior — constant folding, forking,
// loop taint, switch fan-out, interface devirtualization.
type demo struct {
	Name        string
	Description string
	Table       *instr.Table
	Registers   int
	Symbols     dex.SymbolView
}

func demos() []demo {
	return []demo{
		xorObfuscationDemo(),
		symbolicTestForkDemo(),
		loopTaintDemo(),
		switchFanOutDemo(),
		interfaceMonoMorphizationDemo(),
	}
}

// xorObfuscationDemo loads two literals and xors them in place: a
// constant-folding obfuscation pattern malware authors lean on heavily.
func xorObfuscationDemo() demo {
	table := instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindConstLit16, Dst: 0, Literal: 0x2A}},
		1: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindConstLit16, Dst: 1, Literal: 0x15}},
		2: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindArithTwoReg, Dst: 0, Right: 1, Arith: instr.ArithXor}},
		3: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
	})
	return demo{
		Name:        "xor-obfuscation",
		Description: "const/16 v0, 0x2A; const/16 v1, 0x15; xor-int/2addr v0, v1 — folds to a concrete Number",
		Table:       table,
		Registers:   2,
		Symbols:     dex.NewStaticSymbolView(nil, nil, nil, nil, nil, nil),
	}
}

// symbolicTestForkDemo reads an unresolved field into v0, then branches
// on it: the engine cannot decide which arm to take, so it forks both.
func symbolicTestForkDemo() demo {
	table := instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindInstanceGet, Dst: 0}},
		1: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindConstLit16, Dst: 1, Literal: 0}},
		2: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindTest, Test: instr.TestEqual, Left: 0, Right: 1, Displacement: 2}},
		3: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
		4: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
	})
	return demo{
		Name:        "symbolic-test-fork",
		Description: "iget v0; const/16 v1, 0; if-eq v0, v1 — unresolved operand forks into two branches",
		Table:       table,
		Registers:   2,
		Symbols:     dex.NewStaticSymbolView(nil, nil, nil, nil, nil, nil),
	}
}

// loopTaintDemo re-enters the same unresolved test on every iteration;
// the revisit log eventually taints the branch instead of forking
// forever.
func loopTaintDemo() demo {
	table := instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindInstanceGet, Dst: 0}},
		1: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindConstLit16, Dst: 1, Literal: 0}},
		2: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindTestZero, Test: instr.TestEqual, Left: 0, Displacement: -2}},
		3: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
	})
	return demo{
		Name:        "loop-taint",
		Description: "iget v0; if-eqz v0, -2 — a self-loop on an unresolved operand gets tainted",
		Table:       table,
		Registers:   2,
		Symbols:     dex.NewStaticSymbolView(nil, nil, nil, nil, nil, nil),
	}
}

// switchFanOutDemo forks one branch per packed-switch case target.
func switchFanOutDemo() demo {
	table := instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindSwitch, Displacement: 4}},
		2: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
		3: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
		4: {Size: 0, Instruction: instr.Instruction{Kind: instr.KindSwitchData, Switch: instr.SwitchData{
			Targets: []instr.SwitchTarget{
				{Key: 0, Displacement: 2},
				{Key: 1, Displacement: 3},
			},
		}}},
	})
	return demo{
		Name:        "switch-fan-out",
		Description: "packed-switch v0, :data — forks one branch per case target",
		Table:       table,
		Registers:   1,
		Symbols:     dex.NewStaticSymbolView(nil, nil, nil, nil, nil, nil),
	}
}

// interfaceMonoMorphizationDemo instantiates the interface's sole
// concrete implementor, then invoke-interfaces through it: the engine's
// virtual-dispatch refinement resolves straight to the implementor.
func interfaceMonoMorphizationDemo() demo {
	ifaceMethod := &dex.Method{MethodIdx: 0, MethodName: "run", ClassIdx: 0, ProtoIdx: 0}
	implMethod := &dex.Method{MethodIdx: 1, MethodName: "run", ClassIdx: 1, ProtoIdx: 0}
	types := []string{"Lcom/example/Runnable;", "Lcom/example/Impl;"}
	protos := []dex.Proto{{ReturnType: "V"}}
	ifaceClass := &dex.Class{ClassName: types[0], ClassIdx: 0}
	implClass := &dex.Class{ClassName: types[1], ClassIdx: 1, Methods: []*dex.Method{implMethod}}
	symbols := dex.NewStaticSymbolView(
		[]*dex.Method{ifaceMethod, implMethod}, protos, nil, types, nil,
		[]*dex.Class{ifaceClass, implClass},
	)
	symbols.AddImplementor(0, implClass)

	table := instr.NewTableFromMap(map[instr.Offset]instr.Entry{
		0: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindNewInstance, Dst: 0, TypeIdx: 1}},
		1: {Size: 4, Instruction: instr.Instruction{Kind: instr.KindInvokeInterface, MethodIdx: 0, Regs: instr.InvokeRegs{0}}},
		3: {Size: 2, Instruction: instr.Instruction{Kind: instr.KindReturnVoid}},
	})
	return demo{
		Name:        "interface-monomorphization",
		Description: "new-instance v0, Impl; invoke-interface {v0}, Runnable->run — resolves to the sole implementor",
		Table:       table,
		Registers:   1,
		Symbols:     symbols,
	}
}
