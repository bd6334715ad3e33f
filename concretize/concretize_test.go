package concretize

import (
	"errors"
	"testing"

	"github.com/dr8co/dexflow/dex"
	"github.com/dr8co/dexflow/value"
	"github.com/dr8co/dexflow/vmhost"
	"github.com/dr8co/dexflow/vmhost/memvm"
)

func TestTryGetValuePassesThroughConstants(t *testing.T) {
	vm := memvm.New()
	got, err := TryGetValue(value.NewNumber(7), vm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, ok := got.(value.Number); !ok || n.Value.Int64() != 7 {
		t.Errorf("got %#v, want Number(7)", got)
	}
}

func TestExecuteBinaryOperationResolvesBothSides(t *testing.T) {
	vm := memvm.New()
	op := &value.BinaryOperation{Left: value.NewNumber(3), Right: value.NewNumber(4), Operation: value.OpAdd}
	got, err := TryGetValue(value.Variable{Instr: op}, vm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := got.(value.Number)
	if !ok || n.Value.Int64() != 7 {
		t.Fatalf("got %#v, want Number(7)", got)
	}
}

func TestExecuteFunctionCallInvokesRegisteredMethod(t *testing.T) {
	vm := memvm.New()
	vm.RegisterMethod("Lcom/example/Math;", "square", func(args []vmhost.Register) (vmhost.Register, error) {
		n := args[0]
		return vmhost.Register{Kind: vmhost.RegisterInteger, Int: n.Int * n.Int}, nil
	})

	call := &value.FunctionCall{
		Name:      "square",
		ClassName: "Lcom/example/Math;",
		Method:    &dex.Method{MethodName: "square", HasCode: false},
		Args:      []value.Value{value.NewNumber(6)},
		Result:    value.Object{Type: "I"},
	}

	got, err := TryGetValue(value.Variable{Instr: call}, vm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, ok := got.(value.Number)
	if !ok || n.Value.Int64() != 36 {
		t.Fatalf("got %#v, want Number(36)", got)
	}
	if call.Result.(value.Number).Value.Int64() != 36 {
		t.Errorf("call.Result not updated with concrete answer")
	}
}

func TestExecuteFunctionCallLinkerErrorOnUnknownArg(t *testing.T) {
	vm := memvm.New()
	call := &value.FunctionCall{
		Name:      "log",
		ClassName: "Lcom/example/Logger;",
		Args:      []value.Value{value.Unknown{Type: "Ljava/lang/Object;"}},
	}
	_, err := executeFunctionCall(call, vm)
	if err == nil || !errors.Is(err, ErrLinker) {
		t.Fatalf("expected ErrLinker, got %v", err)
	}
}

func TestExecuteFunctionCallFallsBackToRuntimeByName(t *testing.T) {
	vm := memvm.New()
	call := &value.FunctionCall{
		Name:      "unresolved",
		ClassName: "Lcom/example/Missing;",
		Args:      nil,
		Result:    value.Object{Type: "Z"},
	}
	got, err := executeFunctionCall(call, vm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := got.(value.Invalid); !ok {
		t.Errorf("got %#v, want Invalid for an unregistered by-name call", got)
	}
}

func TestTryGetValueLinkerErrorOnFieldAccess(t *testing.T) {
	vm := memvm.New()
	read := &value.ReadStaticField{ClassName: "Lcom/example/Config;", Name: "DEBUG"}
	_, err := TryGetValue(value.Variable{Instr: read}, vm)
	if err == nil || !errors.Is(err, ErrLinker) {
		t.Fatalf("expected ErrLinker for an unexecutable field access, got %v", err)
	}
}

func TestLiftReturnDistinguishesBooleanFromInteger(t *testing.T) {
	boolVal := liftReturn(vmhost.Register{Kind: vmhost.RegisterInteger, Int: 1}, value.Object{Type: "Z"})
	if b, ok := boolVal.(value.Boolean); !ok || !b.Value {
		t.Errorf("got %#v, want Boolean(true)", boolVal)
	}
	intVal := liftReturn(vmhost.Register{Kind: vmhost.RegisterInteger, Int: 42}, value.Object{Type: "I"})
	if n, ok := intVal.(value.Number); !ok || n.Value.Int64() != 42 {
		t.Errorf("got %#v, want Number(42)", intVal)
	}
}
