// Package value implements the symbolic value algebra the flow engine
// computes over: a tagged Value type that folds constant arithmetic,
// defers arithmetic over unresolved results as a Variable expression, and
// falls back to Invalid when neither is possible.
//
// Value is modelled as a Go interface with one concrete type per
// variant. Deferred binary operations are recorded as a tagged Operation
// constant rather than a function value: a tagged constant survives
// equality comparison and (de)serialization where a function pointer
// would not.
package value

import "github.com/dr8co/dexflow/dex"

// Kind tags a Value's underlying variant.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindChar
	KindByte
	KindBytes
	KindUnknown
	KindObject
	KindVariable
	KindInvalid
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindNumber:
		return "Number"
	case KindBoolean:
		return "Boolean"
	case KindChar:
		return "Char"
	case KindByte:
		return "Byte"
	case KindBytes:
		return "Bytes"
	case KindUnknown:
		return "Unknown"
	case KindObject:
		return "Object"
	case KindVariable:
		return "Variable"
	case KindInvalid:
		return "Invalid"
	case KindEmpty:
		return "Empty"
	default:
		return "?"
	}
}

// Value is the symbolic value algebra's tagged union. Every instruction
// that touches a register reads or writes a Value.
type Value interface {
	Kind() Kind
	String() string
}

// IsConstant reports whether v is one of the six concrete constant
// variants (String, Number, Boolean, Char, Byte, Bytes) — the ones a
// register can hold without any further resolution.
func IsConstant(v Value) bool {
	switch v.Kind() {
	case KindString, KindNumber, KindBoolean, KindChar, KindByte, KindBytes:
		return true
	default:
		return false
	}
}

// TryGetNumber widens a value to Int128 if it is numeric-ish: a Number
// directly, or a Byte/Char/Boolean widened per the invariant that Number
// is the sole arithmetic carrier.
func TryGetNumber(v Value) (Int128, bool) {
	switch n := v.(type) {
	case Number:
		return n.Value, true
	case Byte:
		return Int128FromInt64(int64(n.Value)), true
	case Char:
		return Int128FromInt64(int64(n.Value)), true
	case Boolean:
		if n.Value {
			return Int128FromInt64(1), true
		}
		return Int128FromInt64(0), true
	default:
		return Int128{}, false
	}
}

// String is a constant string value.
type String struct{ Value string }

func (String) Kind() Kind       { return KindString }
func (s String) String() string { return "\"" + s.Value + "\"" }

// Number is the sole arithmetic carrier; every numeric variant widens to
// it before an operator runs.
type Number struct{ Value Int128 }

func (Number) Kind() Kind       { return KindNumber }
func (n Number) String() string { return n.Value.String() }

// NewNumber builds a Number from a plain int64, the common case for
// decoded literal operands.
func NewNumber(n int64) Number { return Number{Value: Int128FromInt64(n)} }

// Boolean is a constant boolean value.
type Boolean struct{ Value bool }

func (Boolean) Kind() Kind { return KindBoolean }
func (b Boolean) String() string {
	if b.Value {
		return "true"
	}
	return "false"
}

// Char is a constant single-character value (the result of int-to-char
// narrowing, or an array-get of a char element).
type Char struct{ Value byte }

func (Char) Kind() Kind       { return KindChar }
func (c Char) String() string { return "'" + string(rune(c.Value)) + "'" }

// Byte is a constant byte value.
type Byte struct{ Value byte }

func (Byte) Kind() Kind       { return KindByte }
func (b Byte) String() string { return hexByte(b.Value) }

func hexByte(b byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{hex[b>>4], hex[b&0xf]})
}

// Bytes is a constant byte array, the symbolic stand-in for a byte[]
// instance — array-length/aget/aput model this variant directly.
type Bytes struct{ Value []byte }

func (Bytes) Kind() Kind { return KindBytes }
func (b Bytes) String() string {
	s := "["
	for i, v := range b.Value {
		if i > 0 {
			s += ","
		}
		s += hexByte(v)
	}
	return s + "]"
}

// Unknown is a value of known static type but unknown contents — an
// unresolved const-string/const-class, or a type the engine chose not to
// model further.
type Unknown struct{ Type string }

func (Unknown) Kind() Kind       { return KindUnknown }
func (u Unknown) String() string { return "Unknown{ ty=" + u.Type + " }" }

// Object is an instantiated object of known type whose contents are
// opaque to the engine (new-instance, or a call's prefilled result).
type Object struct{ Type string }

func (Object) Kind() Kind       { return KindObject }
func (o Object) String() string { return "Object{ ty=" + o.Type + " }" }

// Invalid marks an operation that could not be symbolically modelled
// (division by zero, array-length of a non-array, an unsupported type
// combination).
type Invalid struct{}

func (Invalid) Kind() Kind     { return KindInvalid }
func (Invalid) String() string { return "INVALID" }

// Empty marks a register explicitly cleared by an unsupported or
// unmodelled read (a field get, a move from a wide/16 source).
type Empty struct{}

func (Empty) Kind() Kind     { return KindEmpty }
func (Empty) String() string { return "EMPTY" }

// Variable defers an unresolved expression: "the result of this function
// call or binary op", to be bound by a later move-result or resolved on
// demand by the concretizer bridge.
type Variable struct{ Instr LastInstruction }

func (Variable) Kind() Kind       { return KindVariable }
func (v Variable) String() string { return v.Instr.String() }

// LastInstruction records the most recent "interesting" event on a
// branch: the one move-result-* binds into a register, or the
// concretizer bridge replays against a live VM.
type LastInstruction interface {
	String() string
	isLastInstruction()
}

// FunctionCall captures an invoke instruction's decoded target, argument
// list, and (until overwritten) resolved result.
type FunctionCall struct {
	Name      string
	Signature string
	ClassName string
	Class     *dex.Class
	Method    *dex.Method
	Args      []Value
	// Result is pre-populated with Object{Type: returnType} unless the
	// return type is "V", and is overwritten with the concrete result
	// once the concretizer bridge executes the call.
	Result Value
}

func (*FunctionCall) isLastInstruction() {}
func (f *FunctionCall) String() string {
	s := f.ClassName + "->" + f.Name + "("
	for i, a := range f.Args {
		if i > 0 {
			s += ","
		}
		s += a.String()
	}
	s += ") : "
	if f.Result == nil {
		s += "Void"
	} else {
		s += f.Result.String()
	}
	return s
}

// ReadStaticField records a static-get instruction's resolved field.
type ReadStaticField struct {
	File      dex.SymbolView
	Class     *dex.Class
	ClassName string
	Field     *dex.Field
	Name      string
}

func (*ReadStaticField) isLastInstruction() {}
func (r *ReadStaticField) String() string {
	return "ReadField{ name=" + r.Name + " }"
}

// StoreStaticField describes a static-put event: the resolved field and
// the value that was stored. The flow engine treats static-put as a no-op
// and never records one; the type exists for the query surface, for
// events supplied by another producer.
type StoreStaticField struct {
	File      dex.SymbolView
	Class     *dex.Class
	ClassName string
	Field     *dex.Field
	Name      string
	Arg       Value
}

func (*StoreStaticField) isLastInstruction() {}
func (s *StoreStaticField) String() string {
	return "StoreField{ name=" + s.Name + ", arg=" + s.Arg.String() + " }"
}

// BinaryOperation defers an arithmetic/bitwise/shift op whose operands
// could not be folded or proven Invalid at decode time, so it can be
// replayed once the concretizer bridge has resolved them to numbers.
type BinaryOperation struct {
	Left      Value
	Right     Value
	Operation Operation
}

func (*BinaryOperation) isLastInstruction() {}
func (b *BinaryOperation) String() string {
	return "BinaryOperation{ left=" + b.Left.String() + ", right=" + b.Right.String() + ", op=" + b.Operation.String() + " }"
}
