package runtime

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"quill/interpreter-go/pkg/ast"
)

func TestFillPositionKeepsExisting(t *testing.T) {
	err := NewVariableNotFound("x", ast.NewPosition(2, 3))
	err.FillPosition(ast.NewPosition(9, 9))
	if err.Pos != ast.NewPosition(2, 3) {
		t.Fatalf("existing position was overwritten: %s", err.Pos)
	}
	bare := NewEvalError(ErrStackOverflow)
	bare.FillPosition(ast.NewPosition(1, 1))
	if bare.Pos != ast.NewPosition(1, 1) {
		t.Fatalf("missing position was not filled")
	}
}

func TestUnwrapInnerAndCatchability(t *testing.T) {
	inner := NewArithmetic("Division by zero: 1 / 0", ast.NoPosition)
	wrapped := NewInFunctionCall("f", "", NewInFunctionCall("g", "lib", inner, ast.NewPosition(2, 1)), ast.NewPosition(1, 1))
	if wrapped.UnwrapInner() != inner {
		t.Fatalf("UnwrapInner should reach the arithmetic error")
	}
	if !wrapped.IsCatchable() {
		t.Fatalf("wrapped arithmetic error should be catchable")
	}
	overflow := NewInFunctionCall("f", "", NewEvalError(ErrStackOverflow), ast.NoPosition)
	if overflow.IsCatchable() {
		t.Fatalf("resource errors must not be catchable even when wrapped")
	}
	if !overflow.IsResourceExhausted() {
		t.Fatalf("expected resource exhaustion")
	}
	if NewReturn(UnitValue, ast.NoPosition).IsCatchable() {
		t.Fatalf("return is a pseudo error")
	}
	if !errors.Is(wrapped, inner) {
		t.Fatalf("errors.Is should see through the wrappers")
	}
}

func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  *EvalError
		want string
	}{
		{NewVariableNotFound("x", ast.NewPosition(1, 5)), "Variable not found: x (line 1, position 5)"},
		{NewBounds(ErrArrayBounds, 3, 5, ast.NoPosition), "Array index 5 out of bounds: only 3 elements"},
		{NewDataTooLarge("Length of string", ast.NoPosition), "Length of string exceeds maximum limit"},
		{NewRuntimeError(String("boom"), ast.NoPosition), "Runtime error: boom"},
		{NewMismatchDataType("string", "i64", ast.NoPosition), "Data type incorrect: i64 (expecting string)"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, got)
		}
	}
	nested := NewInFunctionCall("foo", "lib", NewVariableNotFound("y", ast.NoPosition), ast.NoPosition)
	if !strings.Contains(nested.Error(), "'foo' @ 'lib'") {
		t.Fatalf("function call wrapper should name the function and source: %s", nested)
	}
}

func TestAsEvalErrorWrapsPlainErrors(t *testing.T) {
	plain := fmt.Errorf("disk full")
	evalErr := AsEvalError(plain, ast.NewPosition(3, 1))
	if evalErr.Kind != ErrRuntime || evalErr.Pos != ast.NewPosition(3, 1) || !errors.Is(evalErr, plain) {
		t.Fatalf("unexpected conversion %#v", evalErr)
	}
	if s, _ := evalErr.Value.AsString(); s != "disk full" {
		t.Fatalf("payload should carry the message, got %v", evalErr.Value)
	}
}

func TestSignatureHashes(t *testing.T) {
	a := CalcFnHash(nil, "foo", 2)
	if a != CalcFnHash(nil, "foo", 2) {
		t.Fatalf("hash must be deterministic")
	}
	if a == CalcFnHash(nil, "foo", 1) || a == CalcFnHash([]string{"m"}, "foo", 2) {
		t.Fatalf("arity and namespace must affect the hash")
	}
	ints := CalcFullHash(nil, "+", []TypeID{TypeInt, TypeInt})
	floats := CalcFullHash(nil, "+", []TypeID{TypeFloat, TypeFloat})
	if ints == floats {
		t.Fatalf("argument types must affect the full hash")
	}
}

func TestHashValue(t *testing.T) {
	h1, ok1 := HashValue(Int(1))
	h2, _ := HashValue(Int(1))
	hc, _ := HashValue(Char(1))
	if !ok1 || h1 != h2 || h1 == hc {
		t.Fatalf("value hashes must be stable and typed")
	}
	r1, _ := HashValue(NewRange(1, 3))
	r2, _ := HashValue(NewInclusiveRange(1, 3))
	if r1 == r2 {
		t.Fatalf("exclusive and inclusive ranges must hash differently")
	}
	if _, ok := HashValue(NewFnPtrValue(NewFnPtr("f"))); ok {
		t.Fatalf("function pointers are not hashable")
	}
}
