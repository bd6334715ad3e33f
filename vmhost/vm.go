// Package vmhost declares the narrow handle the concretizer bridge needs
// onto a running Dalvik VM, and the concrete (non-symbolic) register
// value it exchanges with one.
//
// Nothing in this module implements a real VM: starting a Dalvik
// process, loading a DEX file into it, and marshaling values across a
// debugger or JNI boundary are all out of scope (see the package comment
// in concretize). VM is the seam the concretizer bridge is coded against;
// vmhost/memvm supplies a reference in-memory implementation for tests.
package vmhost

import "fmt"

// RegisterKind tags which concrete shape a Register holds.
type RegisterKind int

const (
	RegisterInteger RegisterKind = iota
	RegisterString
	RegisterBytes
	RegisterInstance
	RegisterNull
)

// Register is a concrete VM value: the result of marshaling a symbolic
// Value across the bridge, or of lifting a VM's return value back.
type Register struct {
	Kind RegisterKind
	Int  int64
	Str  string
	Data []byte
	// Type is the instance's declared type, meaningful only when
	// Kind == RegisterInstance.
	Type string
}

func (r Register) String() string {
	switch r.Kind {
	case RegisterInteger:
		return fmt.Sprintf("%d", r.Int)
	case RegisterString:
		return fmt.Sprintf("%q", r.Str)
	case RegisterBytes:
		return fmt.Sprintf("bytes[%d]", len(r.Data))
	case RegisterInstance:
		return fmt.Sprintf("instance<%s>", r.Type)
	case RegisterNull:
		return "null"
	default:
		return "?"
	}
}

// Target names a resolved callee: the file/owner a lookup_method call
// found the method in, opaque to everything outside the VM
// implementation.
type Target struct {
	File     string
	Function string
}

// VM is the handle the concretizer bridge drives: instance allocation,
// method lookup, the three invocation paths, and return-value readback.
type VM interface {
	// NewInstance allocates a concrete instance of typeDescriptor,
	// optionally seeded with an initializer register (a string's backing
	// bytes, a byte-array's contents), and returns a register referencing
	// it.
	NewInstance(typeDescriptor string, initializer *Register) (Register, error)

	// LookupMethod resolves className/methodName to the file and function
	// the VM would dispatch to, if the class has a decoded body available.
	LookupMethod(className, methodName string) (Target, bool)

	// Start begins executing a resolved target with the given concrete
	// argument registers and returns once it completes.
	Start(target Target, args []Register) error

	// InvokeRuntime calls a resolved target through the VM's own runtime
	// shim (for methods without a decoded body: native, abstract, or
	// library code the VM fulfils internally).
	InvokeRuntime(target Target, args []Register) error

	// InvokeRuntimeWithMethod is InvokeRuntime's fallback for a callee
	// whose declaring class the VM could not resolve at all: it dispatches
	// purely by class/method name ("by-name").
	InvokeRuntimeWithMethod(className, methodName string, args []Register) error

	// GetReturnObject reads back the most recently completed call's
	// return value.
	GetReturnObject() (Register, error)
}
