// Package memvm is a reference, in-memory implementation of vmhost.VM:
// no process, no DEX loading, no debugger protocol, just a heap slice
// and a table of Go closures standing in for method bodies. It exists so
// this module's own tests can drive the concretizer bridge without a real
// Dalvik VM attached.
package memvm

import (
	"fmt"
	"sync"

	"github.com/dr8co/dexflow/vmhost"
)

// MethodImpl is the concrete behavior registered for one class/method
// pair: given marshaled argument registers, return the call's result.
type MethodImpl func(args []vmhost.Register) (vmhost.Register, error)

// MemVM is a minimal, concurrency-safe vmhost.VM.
type MemVM struct {
	mu         sync.Mutex
	heap       []memInstance
	methods    map[string]MethodImpl
	lastReturn vmhost.Register
	hasReturn  bool
}

type memInstance struct {
	Type string
	Str  string
	Data []byte
}

// New returns an empty MemVM with no registered methods.
func New() *MemVM {
	return &MemVM{methods: make(map[string]MethodImpl)}
}

func methodKey(className, methodName string) string {
	return className + "->" + methodName
}

// RegisterMethod installs impl as the behavior for className/methodName,
// discoverable afterward through LookupMethod.
func (vm *MemVM) RegisterMethod(className, methodName string, impl MethodImpl) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.methods[methodKey(className, methodName)] = impl
}

func (vm *MemVM) NewInstance(typeDescriptor string, initializer *vmhost.Register) (vmhost.Register, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	inst := memInstance{Type: typeDescriptor}
	if initializer != nil {
		switch initializer.Kind {
		case vmhost.RegisterString:
			inst.Str = initializer.Str
		case vmhost.RegisterBytes:
			inst.Data = append([]byte(nil), initializer.Data...)
		}
	}
	vm.heap = append(vm.heap, inst)
	idx := int64(len(vm.heap) - 1)
	return vmhost.Register{Kind: vmhost.RegisterInstance, Type: typeDescriptor, Int: idx}, nil
}

func (vm *MemVM) LookupMethod(className, methodName string) (vmhost.Target, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, ok := vm.methods[methodKey(className, methodName)]; ok {
		return vmhost.Target{File: className, Function: methodName}, true
	}
	return vmhost.Target{}, false
}

func (vm *MemVM) Start(target vmhost.Target, args []vmhost.Register) error {
	return vm.dispatch(target.File, target.Function, args)
}

func (vm *MemVM) InvokeRuntime(target vmhost.Target, args []vmhost.Register) error {
	return vm.dispatch(target.File, target.Function, args)
}

func (vm *MemVM) InvokeRuntimeWithMethod(className, methodName string, args []vmhost.Register) error {
	return vm.dispatch(className, methodName, args)
}

func (vm *MemVM) dispatch(className, methodName string, args []vmhost.Register) error {
	vm.mu.Lock()
	impl, ok := vm.methods[methodKey(className, methodName)]
	vm.mu.Unlock()
	if !ok {
		vm.setReturn(vmhost.Register{Kind: vmhost.RegisterNull})
		return nil
	}
	result, err := impl(args)
	if err != nil {
		return fmt.Errorf("memvm: %s->%s: %w", className, methodName, err)
	}
	vm.setReturn(result)
	return nil
}

func (vm *MemVM) setReturn(r vmhost.Register) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.lastReturn = r
	vm.hasReturn = true
}

func (vm *MemVM) GetReturnObject() (vmhost.Register, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !vm.hasReturn {
		return vmhost.Register{}, fmt.Errorf("memvm: no call has completed yet")
	}
	return vm.lastReturn, nil
}
