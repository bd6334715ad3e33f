package flow

import "github.com/dr8co/dexflow/instr"

// Branch is one in-flight execution path: a program counter, its own
// register state, and a link back to the parent it forked from (nil for
// a root branch). Branch equality is identity — two branches are equal
// exactly when their IDs match.
type Branch struct {
	ID         uint64
	ParentID   *uint64
	PC         instr.Offset
	PreviousPC instr.Offset
	State      *State
	Finished   bool
}

// Equal reports whether b and other are the same branch (by id), the
// only notion of equality Branch needs.
func (b *Branch) Equal(other *Branch) bool { return b.ID == other.ID }

func (b *Branch) clone() *Branch {
	return &Branch{
		ID:         b.ID,
		ParentID:   b.ParentID,
		PC:         b.PC,
		PreviousPC: b.PreviousPC,
		State:      b.State.clone(),
		Finished:   b.Finished,
	}
}

// Snapshot returns a deep copy of the branch, safe for a query caller to
// keep and inspect after the engine has moved on.
func (b *Branch) Snapshot() *Branch {
	cp := b.clone()
	cp.State = b.State.Snapshot()
	return cp
}

func u64ptr(v uint64) *uint64 { return &v }
