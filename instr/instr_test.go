package instr

import "testing"

func TestOffsetAdd(t *testing.T) {
	o := Offset(10)
	if got := o.Add(5); got != Offset(15) {
		t.Errorf("Add(5) = %v, want 15", got)
	}
	if got := o.Add(-3); got != Offset(7) {
		t.Errorf("Add(-3) = %v, want 7", got)
	}
}

func TestSizeWords(t *testing.T) {
	if got := Size(4).Words(); got != 2 {
		t.Errorf("Size(4).Words() = %d, want 2", got)
	}
}

func TestTestEvaluate(t *testing.T) {
	cases := []struct {
		test        Test
		left, right int64
		want        bool
	}{
		{TestEqual, 1, 1, true},
		{TestEqual, 1, 2, false},
		{TestNotEqual, 1, 2, true},
		{TestLessThan, 1, 2, true},
		{TestLessEqual, 2, 2, true},
		{TestGreaterThan, 3, 2, true},
		{TestGreaterEqual, 2, 2, true},
	}
	for _, c := range cases {
		if got := c.test.Evaluate(c.left, c.right); got != c.want {
			t.Errorf("%v.Evaluate(%d,%d) = %v, want %v", c.test, c.left, c.right, got, c.want)
		}
	}
}

func TestTableLookup(t *testing.T) {
	tbl := NewTableFromMap(map[Offset]Entry{
		0: {Size: 2, Instruction: Instruction{Kind: KindNop}},
		1: {Size: 2, Instruction: Instruction{Kind: KindReturnVoid}},
	})
	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
	if _, ok := tbl.Get(0); !ok {
		t.Fatalf("expected entry at offset 0")
	}
	if _, ok := tbl.Get(99); ok {
		t.Fatalf("expected no entry at offset 99")
	}
}
