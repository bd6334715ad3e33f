// Package concretize implements the bridge between the symbolic value
// algebra and a live Dalvik VM: resolving a Variable's deferred
// FunctionCall or BinaryOperation by actually marshaling its arguments
// across to a vmhost.VM, invoking it, and lifting the concrete result
// back into the symbolic domain.
//
// This is deliberately the only place in the module that talks to a
// live VM. Everything upstream of it (flow, query) stays pure and
// side-effect free; concretization is an opt-in, on-demand step a caller
// takes only when it actually needs a Variable resolved.
package concretize

import (
	"errors"
	"fmt"

	"github.com/dr8co/dexflow/value"
	"github.com/dr8co/dexflow/vmhost"
)

// ErrLinker reports that a Variable could not be resolved: either one of
// a FunctionCall's arguments concretized to something the VM has no
// concrete representation for (Unknown or Empty), or the recorded
// LastInstruction is a field access, which cannot be executed.
var ErrLinker = errors.New("concretize: linker error")

// TryGetValue concretizes v. Constants, Invalid, and Empty pass through
// unchanged; a Variable is resolved by executing its recorded
// LastInstruction against vm.
func TryGetValue(v value.Value, vm vmhost.VM) (value.Value, error) {
	variable, ok := v.(value.Variable)
	if !ok {
		return v, nil
	}
	return execute(variable.Instr, vm)
}

func execute(instr value.LastInstruction, vm vmhost.VM) (value.Value, error) {
	switch i := instr.(type) {
	case *value.FunctionCall:
		return executeFunctionCall(i, vm)
	case *value.BinaryOperation:
		return executeBinaryOperation(i, vm)
	default:
		// Field reads/writes have no replayable side effect in the
		// symbolic domain: resolving one to a concrete value would need
		// field storage this bridge doesn't model.
		return nil, fmt.Errorf("%w: %T cannot be executed", ErrLinker, instr)
	}
}

func executeFunctionCall(call *value.FunctionCall, vm vmhost.VM) (value.Value, error) {
	regs := make([]vmhost.Register, 0, len(call.Args))
	for _, arg := range call.Args {
		concretized, err := TryGetValue(arg, vm)
		if err != nil {
			return nil, err
		}
		switch concretized.Kind() {
		case value.KindUnknown, value.KindEmpty:
			return nil, fmt.Errorf("%w: argument to %s resolved to %s", ErrLinker, call.Signature, concretized)
		}
		reg, err := marshalArg(vm, concretized)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}

	target, found := vm.LookupMethod(call.ClassName, call.Name)
	switch {
	case found && call.Method != nil && call.Method.HasCode:
		if err := vm.Start(target, regs); err != nil {
			return nil, err
		}
	case found:
		if err := vm.InvokeRuntime(target, regs); err != nil {
			return nil, err
		}
	default:
		if err := vm.InvokeRuntimeWithMethod(call.ClassName, call.Name, regs); err != nil {
			return nil, err
		}
	}

	ret, err := vm.GetReturnObject()
	if err != nil {
		return nil, err
	}
	lifted := liftReturn(ret, call.Result)
	call.Result = lifted
	return lifted, nil
}

func executeBinaryOperation(op *value.BinaryOperation, vm vmhost.VM) (value.Value, error) {
	left, err := TryGetValue(op.Left, vm)
	if err != nil {
		return nil, err
	}
	right, err := TryGetValue(op.Right, vm)
	if err != nil {
		return nil, err
	}
	return value.Apply(op.Operation, left, right), nil
}

// marshalArg converts a concretized symbolic value into the concrete
// register shape the VM understands: strings and byte arrays become heap
// instances, numerics become integer literals, opaque values become
// default instances of their type, and Invalid becomes null.
func marshalArg(vm vmhost.VM, v value.Value) (vmhost.Register, error) {
	switch t := v.(type) {
	case value.String:
		return vm.NewInstance("Ljava/lang/String;", &vmhost.Register{Kind: vmhost.RegisterString, Str: t.Value})
	case value.Boolean:
		i := int64(0)
		if t.Value {
			i = 1
		}
		return vmhost.Register{Kind: vmhost.RegisterInteger, Int: i}, nil
	case value.Number:
		return vmhost.Register{Kind: vmhost.RegisterInteger, Int: t.Value.Int64()}, nil
	case value.Char:
		return vmhost.Register{Kind: vmhost.RegisterInteger, Int: int64(t.Value)}, nil
	case value.Byte:
		return vmhost.Register{Kind: vmhost.RegisterInteger, Int: int64(t.Value)}, nil
	case value.Bytes:
		return vm.NewInstance("[B", &vmhost.Register{Kind: vmhost.RegisterBytes, Data: t.Value})
	case value.Unknown:
		return vm.NewInstance(t.Type, nil)
	case value.Object:
		return vm.NewInstance(t.Type, nil)
	default:
		return vmhost.Register{Kind: vmhost.RegisterNull}, nil
	}
}

// liftReturn lifts a VM's concrete return register back into the
// symbolic domain. hint is the FunctionCall's pre-populated Result
// (typically Object{Type: returnType}) and is consulted only to
// distinguish a boolean return ("Z") from a plain integer.
func liftReturn(ret vmhost.Register, hint value.Value) value.Value {
	switch ret.Kind {
	case vmhost.RegisterBytes:
		return value.Bytes{Value: ret.Data}
	case vmhost.RegisterString:
		return value.String{Value: ret.Str}
	case vmhost.RegisterInteger:
		if obj, ok := hint.(value.Object); ok && obj.Type == "Z" {
			return value.Boolean{Value: ret.Int != 0}
		}
		return value.NewNumber(ret.Int)
	case vmhost.RegisterInstance:
		return value.Object{Type: ret.Type}
	default:
		return value.Invalid{}
	}
}
