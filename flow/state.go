package flow

import (
	"github.com/dr8co/dexflow/instr"
	"github.com/dr8co/dexflow/value"
)

// State is a branch's mutable per-path environment: its registers, the
// last "interesting" event recorded for move-result binding, its taint
// flag, and a per-offset count of the conditional tests it has evaluated
// (back-edges themselves are detected through the engine's revisit log).
type State struct {
	ID              uint64
	Registers       []value.Value
	LastInstruction value.LastInstruction
	Tainted         bool
	LoopCount       map[instr.Offset]uint32
}

func newState(id uint64, registerCount int) *State {
	regs := make([]value.Value, registerCount)
	for i := range regs {
		regs[i] = value.Empty{}
	}
	return &State{ID: id, Registers: regs, LoopCount: make(map[instr.Offset]uint32)}
}

// clone deep-copies the state so a fork shares no mutable storage with
// its parent. Bytes registers get their own backing array: aput-byte and
// aput-char write in place, and a write on one branch must not leak into
// a sibling.
func (s *State) clone() *State {
	regs := make([]value.Value, len(s.Registers))
	for i, v := range s.Registers {
		regs[i] = cloneValue(v)
	}
	loop := make(map[instr.Offset]uint32, len(s.LoopCount))
	for k, v := range s.LoopCount {
		loop[k] = v
	}
	return &State{
		ID:              s.ID,
		Registers:       regs,
		LastInstruction: s.LastInstruction,
		Tainted:         s.Tainted,
		LoopCount:       loop,
	}
}

// Snapshot returns a deep copy suitable for handing to a query caller:
// queries never let a caller mutate live engine state.
func (s *State) Snapshot() *State { return s.clone() }

func reg(s *State, r instr.Reg) value.Value {
	if int(r) >= len(s.Registers) {
		return value.Invalid{}
	}
	return s.Registers[r]
}

func setReg(s *State, r instr.Reg, v value.Value) {
	if int(r) < len(s.Registers) {
		s.Registers[r] = v
	}
}
