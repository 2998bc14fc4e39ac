package interpreter

import (
	"errors"
	"testing"

	"quill/interpreter-go/pkg/runtime"
)

func TestLimits(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(*Engine)
		source string
		kind   runtime.ErrorKind
	}{
		{"operations", func(e *Engine) { e.SetMaxOperations(1000) }, "loop {}", runtime.ErrTooManyOperations},
		{"operations not catchable", func(e *Engine) { e.SetMaxOperations(1000) }, "try { loop {} } catch { 1 }", runtime.ErrTooManyOperations},
		{"string size", func(e *Engine) { e.SetMaxStringSize(10) }, `let s = "abcdef"; s += s; s`, runtime.ErrDataTooLarge},
		{"string concat boundary", func(e *Engine) { e.SetMaxStringSize(10) }, `"abcdefghij" + "X"`, runtime.ErrDataTooLarge},
		{"array size", func(e *Engine) { e.SetMaxArraySize(3) }, "let a = []; for i in 0..10 { a.push(i); } a", runtime.ErrDataTooLarge},
		{"array literal", func(e *Engine) { e.SetMaxArraySize(2) }, "let n = 1; [n, n, n]", runtime.ErrDataTooLarge},
		{"blob size", func(e *Engine) { e.SetMaxArraySize(8) }, "blob(100)", runtime.ErrDataTooLarge},
		{"map size", func(e *Engine) { e.SetMaxMapSize(1) }, "let m = #{}; m.a = 1; m.b = 2; m", runtime.ErrDataTooLarge},
		{"call levels", func(e *Engine) { e.SetMaxCallLevels(8) }, "fn down(n) { down(n + 1) } down(0)", runtime.ErrStackOverflow},
		{"modules", func(e *Engine) {
			e.SetMaxModules(1)
			r := NewStaticModuleResolver()
			r.Insert("a", CorePackage())
			e.SetModuleResolver(r)
		}, `import "a" as x; import "a" as y;`, runtime.ErrTooManyModules},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New()
			tc.setup(e)
			expectEvalError(t, e, tc.source, tc.kind)
		})
	}
}

func TestLimitsAllowWorkWithinBounds(t *testing.T) {
	e := New()
	e.SetMaxOperations(10_000)
	e.SetMaxStringSize(10)
	e.SetMaxArraySize(10)
	e.SetMaxCallLevels(16)
	v := mustEval(t, e, `
fn sum(n) { if n == 0 { 0 } else { n + sum(n - 1) } }
let a = [];
for i in 0..10 { a.push(i); }
let s = "abcde";
let full = "abcdefghi" + "j";
sum(10) + a.len() + s.len() + full.len()`)
	if v.Raw() != int64(80) {
		t.Fatalf("expected 80, got %v", v)
	}
}

func TestExpressionDepthIsCheckedWhileParsing(t *testing.T) {
	e := New()
	e.SetMaxExprDepth(8)
	if _, err := e.Compile("((((((((((1))))))))))"); err == nil {
		t.Fatalf("deep nesting must be rejected")
	}
}

func TestProgressCallbackTerminates(t *testing.T) {
	e := New()
	var seen uint64
	e.OnProgress(func(ops uint64) (runtime.Value, bool) {
		seen = ops
		if ops >= 50 {
			return runtime.String("stopped"), true
		}
		return runtime.UnitValue, false
	})
	_, err := e.Eval("let i = 0; loop { i += 1; }")
	var evalErr *runtime.EvalError
	if !errors.As(err, &evalErr) || evalErr.Kind != runtime.ErrTerminated {
		t.Fatalf("expected termination, got %v", err)
	}
	if s, _ := evalErr.Value.AsString(); s != "stopped" {
		t.Fatalf("termination token lost: %v", evalErr.Value)
	}
	if seen != 50 {
		t.Fatalf("expected to stop at operation 50, stopped at %d", seen)
	}
}

func TestOperationCountResetsPerEvaluation(t *testing.T) {
	e := New()
	e.SetMaxOperations(500)
	for i := 0; i < 5; i++ {
		if _, err := e.Eval("let n = 0; for i in 0..20 { n += i; } n"); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}
