package value

import "testing"

func TestFoldMatchesGoSemantics(t *testing.T) {
	tests := []struct {
		op       Operation
		left     int64
		right    int64
		expected int64
	}{
		{OpAdd, 42, 21, 63},
		{OpSub, 10, 3, 7},
		{OpMul, 6, 7, 42},
		{OpDiv, 84, 2, 42},
		{OpRem, 10, 3, 1},
		{OpAnd, 0b1100, 0b1010, 0b1000},
		{OpOr, 0b1100, 0b1010, 0b1110},
		{OpXor, 0x2A, 0x15, 0x3F},
		{OpShl, 1, 4, 16},
		{OpShr, -16, 2, -4},
	}

	for _, tt := range tests {
		got := Fold(tt.op, Int128FromInt64(tt.left), Int128FromInt64(tt.right))
		n, ok := got.(Number)
		if !ok {
			t.Fatalf("%s(%d,%d): expected Number, got %T", tt.op, tt.left, tt.right, got)
		}
		if n.Value.Int64() != tt.expected {
			t.Errorf("%s(%d,%d) = %d, want %d", tt.op, tt.left, tt.right, n.Value.Int64(), tt.expected)
		}
	}
}

func TestUshrIsUnsignedUnlikeShr(t *testing.T) {
	left := Int128FromInt64(-16)
	shr := Fold(OpShr, left, Int128FromInt64(1)).(Number)
	ushr := Fold(OpUshr, left, Int128FromInt64(1)).(Number)
	if shr.Value.Int64() != -8 {
		t.Fatalf("shr(-16,1) = %d, want -8", shr.Value.Int64())
	}
	if ushr.Value.Cmp(shr.Value) == 0 {
		t.Fatalf("ushr and shr produced the same result for a negative operand")
	}
}

func TestUshrReinterpretsBackToSigned(t *testing.T) {
	// A zero-distance ushr must round-trip: reinterpret as unsigned,
	// shift by nothing, reinterpret back.
	id := Fold(OpUshr, Int128FromInt64(-1), Int128FromInt64(0)).(Number)
	if id.Value.Cmp(Int128FromInt64(-1)) != 0 {
		t.Fatalf("ushr(-1,0) = %s, want -1", id.Value)
	}
	// And the result must chain cleanly into a further bitwise op.
	x := Fold(OpXor, id.Value, Int128FromInt64(-1)).(Number)
	if !x.Value.IsZero() {
		t.Fatalf("ushr(-1,0) xor -1 = %s, want 0", x.Value)
	}
}

func TestDivisionByZeroIsInvalid(t *testing.T) {
	if _, ok := Apply(OpDiv, NewNumber(1), NewNumber(0)).(Invalid); !ok {
		t.Fatalf("expected Invalid for division by zero")
	}
	if _, ok := Apply(OpRem, NewNumber(1), NewNumber(0)).(Invalid); !ok {
		t.Fatalf("expected Invalid for modulo by zero")
	}
}

func TestUnknownPropagationDefersAsVariable(t *testing.T) {
	callResult := Variable{Instr: &FunctionCall{Name: "f", Args: nil}}

	got := Add(callResult, NewNumber(5))
	v, ok := got.(Variable)
	if !ok {
		t.Fatalf("expected a deferred Variable, got %T", got)
	}
	bo, ok := v.Instr.(*BinaryOperation)
	if !ok {
		t.Fatalf("expected a BinaryOperation, got %T", v.Instr)
	}
	if bo.Operation != OpAdd {
		t.Fatalf("expected OpAdd, got %s", bo.Operation)
	}

	got2 := Add(NewNumber(5), callResult)
	if _, ok := got2.(Variable); !ok {
		t.Fatalf("expected a deferred Variable when the right operand is unresolved, got %T", got2)
	}
}

func TestInvalidCombinationsYieldInvalid(t *testing.T) {
	if _, ok := Add(Empty{}, NewNumber(1)).(Invalid); !ok {
		t.Fatalf("expected Invalid combining Empty with a constant")
	}
	if _, ok := Add(Unknown{Type: "I"}, Unknown{Type: "I"}).(Invalid); !ok {
		t.Fatalf("expected Invalid combining two Unknowns")
	}
}

func TestIsConstant(t *testing.T) {
	constants := []Value{String{Value: "s"}, NewNumber(1), Boolean{Value: true}, Char{Value: 'a'}, Byte{Value: 1}, Bytes{Value: []byte{1}}}
	for _, c := range constants {
		if !IsConstant(c) {
			t.Errorf("%s should be constant", c.Kind())
		}
	}
	nonConstants := []Value{Unknown{Type: "I"}, Object{Type: "I"}, Invalid{}, Empty{}, Variable{Instr: &FunctionCall{}}}
	for _, c := range nonConstants {
		if IsConstant(c) {
			t.Errorf("%s should not be constant", c.Kind())
		}
	}
}

func TestWideningByteCharBoolean(t *testing.T) {
	cases := []struct {
		v    Value
		want int64
	}{
		{Byte{Value: 0xff}, 0xff},
		{Char{Value: 'a'}, int64('a')},
		{Boolean{Value: true}, 1},
		{Boolean{Value: false}, 0},
	}
	for _, c := range cases {
		n, ok := TryGetNumber(c.v)
		if !ok {
			t.Fatalf("%v should widen to a number", c.v)
		}
		if n.Int64() != c.want {
			t.Errorf("widen(%v) = %d, want %d", c.v, n.Int64(), c.want)
		}
	}
}
