// Package dex defines the read-only view of a DEX symbol table that the
// flow engine consumes.
//
// Parsing an APK into a DexFile, resolving class hierarchies, and decoding
// the method/field/string/type pools are all out of scope for this module.
// What the engine needs is a
// narrow, read-only interface onto those results: a method's declaring
// class and prototype, a field's owner and name, a string pool lookup, and
// the implementors-for-interface query the engine's sole virtual-dispatch
// refinement depends on. SymbolView is that interface; StaticSymbolView is
// a small in-memory implementation of it used by this module's own tests
// and by the cmd/dexflow demo mode.
package dex

import "fmt"

// Proto is a method prototype: a return type and a parameter list, both
// expressed as DEX type descriptors (e.g. "I", "Ljava/lang/String;").
type Proto struct {
	ParameterTypes []string
	ReturnType     string
}

// String renders the proto the way a DEX disassembler would, e.g.
// "(ILjava/lang/String;)I".
func (p Proto) String() string {
	s := "("
	for _, t := range p.ParameterTypes {
		s += t
	}
	s += ")" + p.ReturnType
	return s
}

// GetReturnType returns the proto's return type descriptor.
func (p Proto) GetReturnType() string { return p.ReturnType }

// Method is a single method record from the DEX method table.
type Method struct {
	MethodIdx  uint32
	MethodName string
	ClassIdx   uint32
	ProtoIdx   uint32
	// HasCode reports whether the method has a decoded body available to
	// the concretizer bridge; methods without one (abstract, native) are
	// invoked through the VM's runtime shim instead.
	HasCode bool
}

// Field is a single field record from the DEX field table.
type Field struct {
	FieldIdx uint32
	Name     string
	ClassIdx uint32
}

// Class is a single class record, including its own implementing methods
// (used to resolve interface mono-morphization).
type Class struct {
	ClassName string
	ClassIdx  uint32
	Methods   []*Method
}

// SymbolView is the read-only DEX symbol table the flow engine queries
// while decoding invoke and field instructions. An implementation is
// supplied by the out-of-scope DEX parser; this module never constructs
// one from raw bytes itself.
type SymbolView interface {
	// Method returns the method record at the given method-table index.
	Method(idx uint32) (*Method, bool)
	// Proto returns the prototype at the given proto-table index.
	Proto(idx uint32) (Proto, bool)
	// Field returns the field record at the given field-table index.
	Field(idx uint32) (*Field, bool)
	// TypeName resolves a type-pool index (as used for class_idx/field
	// class references) to its descriptor string.
	TypeName(typeIdx uint32) (string, bool)
	// ClassByTypeName resolves a type-pool index to the full class
	// record, if the class is itself defined in this DEX file.
	ClassByTypeName(typeIdx uint32) (*Class, bool)
	// ClassName resolves a const-class type index to a descriptor string.
	ClassName(typeIdx uint32) (string, bool)
	// String resolves a string-pool index.
	String(idx uint32) (string, bool)
	// ImplementorsFor returns every concrete class implementing the given
	// interface class, paired with the implementor's own class record.
	ImplementorsFor(iface *Class) []*Class
}

// StaticSymbolView is a minimal in-memory SymbolView backed by plain
// slices; after construction only AddImplementor changes it. It exists so the engine, its
// tests, and the cmd/dexflow demo mode can run without a real DEX parser.
type StaticSymbolView struct {
	Methods         []*Method
	Protos          []Proto
	Fields          []*Field
	Types           []string
	Strings         []string
	Classes         []*Class
	implementations map[uint32][]*Class
}

// NewStaticSymbolView builds a StaticSymbolView with an empty implementors
// index; register interface implementors afterward with AddImplementor.
func NewStaticSymbolView(methods []*Method, protos []Proto, fields []*Field, types, strings []string, classes []*Class) *StaticSymbolView {
	v := &StaticSymbolView{
		Methods: methods, Protos: protos, Fields: fields,
		Types: types, Strings: strings, Classes: classes,
		implementations: make(map[uint32][]*Class),
	}
	return v
}

// AddImplementor registers class as implementing the interface at
// ifaceTypeIdx, for later ImplementorsFor lookups.
func (v *StaticSymbolView) AddImplementor(ifaceTypeIdx uint32, class *Class) {
	v.implementations[ifaceTypeIdx] = append(v.implementations[ifaceTypeIdx], class)
}

func (v *StaticSymbolView) Method(idx uint32) (*Method, bool) {
	if int(idx) >= len(v.Methods) {
		return nil, false
	}
	return v.Methods[idx], true
}

func (v *StaticSymbolView) Proto(idx uint32) (Proto, bool) {
	if int(idx) >= len(v.Protos) {
		return Proto{}, false
	}
	return v.Protos[idx], true
}

func (v *StaticSymbolView) Field(idx uint32) (*Field, bool) {
	if int(idx) >= len(v.Fields) {
		return nil, false
	}
	return v.Fields[idx], true
}

func (v *StaticSymbolView) TypeName(typeIdx uint32) (string, bool) {
	if int(typeIdx) >= len(v.Types) {
		return "", false
	}
	return v.Types[typeIdx], true
}

func (v *StaticSymbolView) ClassByTypeName(typeIdx uint32) (*Class, bool) {
	name, ok := v.TypeName(typeIdx)
	if !ok {
		return nil, false
	}
	for _, c := range v.Classes {
		if c.ClassName == name {
			return c, true
		}
	}
	return nil, false
}

func (v *StaticSymbolView) ClassName(typeIdx uint32) (string, bool) {
	return v.TypeName(typeIdx)
}

func (v *StaticSymbolView) String(idx uint32) (string, bool) {
	if int(idx) >= len(v.Strings) {
		return "", false
	}
	return v.Strings[idx], true
}

func (v *StaticSymbolView) ImplementorsFor(iface *Class) []*Class {
	return v.implementations[iface.ClassIdx]
}

// Signature formats the canonical Class->name(proto) call signature the
// engine attaches to every FunctionCall it records.
func Signature(className, methodName string, proto Proto) string {
	return fmt.Sprintf("%s->%s%s", className, methodName, proto.String())
}
