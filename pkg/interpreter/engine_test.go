package interpreter

import (
	"errors"
	"strings"
	"testing"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

func mustEval(t *testing.T, e *Engine, source string) runtime.Value {
	t.Helper()
	v, err := e.Eval(source)
	if err != nil {
		t.Fatalf("Eval(%q): %v", source, err)
	}
	return v
}

func expectEvalError(t *testing.T, e *Engine, source string, kind runtime.ErrorKind) *runtime.EvalError {
	t.Helper()
	_, err := e.Eval(source)
	if err == nil {
		t.Fatalf("Eval(%q): expected %s", source, kind)
	}
	var evalErr *runtime.EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("Eval(%q): expected *EvalError, got %T (%v)", source, err, err)
	}
	if inner := evalErr.UnwrapInner(); inner.Kind != kind {
		t.Fatalf("Eval(%q): expected %s, got %s (%v)", source, kind, inner.Kind, err)
	}
	return evalErr
}

func TestEvalScripts(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{"arithmetic", "let x = 40 + 2; x", "42"},
		{"precedence", "2 + 3 * 4 - 10 / 5", "12"},
		{"float mix", "1 + 0.5", "1.5"},
		{"power", "2 ** 10", "1024"},
		{"negative index", "let a = [1, 2, 3]; a[-1]", "3"},
		{"map op-assign", "let m = #{a: 1}; m.a += 10; m.a", "11"},
		{"nested assign", "let m = #{list: [1, 2]}; m.list[0] = 9; m.list", "[9, 2]"},
		{"string building", `let s = ""; for i in 0..3 { s += i.to_string(); } s`, `"012"`},
		{"inclusive range", "let n = 0; for i in 1..=4 { n += i; } n", "10"},
		{"for counter", "let out = []; for (v, i) in ['a', 'b'] { out.push(i); } out", "[0, 1]"},
		{"recursion", "fn fact(n) { if n <= 1 { 1 } else { n * fact(n - 1) } } fact(5)", "120"},
		{"throw map", "try { throw #{code: 7}; } catch (e) { e.code }", "7"},
		{"caught runtime error", `try { 1 / 0 } catch (e) { e.error }`, `"ErrorArithmetic"`},
		{"loop break value", "loop { break 42; }", "42"},
		{"while", "let i = 0; while i < 5 { i += 1; } i", "5"},
		{"do until", "let i = 10; do { i -= 3; } until i < 0; i", "-2"},
		{"if expression", "let y = if false { 1 } else { 2 }; y", "2"},
		{"switch range", `let x = 15; switch x { 1 => "one", 10..20 => "teen", _ => "other" }`, `"teen"`},
		{"switch guard", `let x = 2; switch x { 2 if x > 5 => "big", 2 => "two", _ => "other" }`, `"two"`},
		{"closure capture", "let x = 10; let f = |y| x + y; f.call(5)", "15"},
		{"closure direct call", "let add = |a, b| a + b; add(1, 2)", "3"},
		{"curry", "fn add(a, b) { a + b } let f = Fn(\"add\").curry(40); f.call(2)", "42"},
		{"interpolation", "let n = 3; `n = ${n + 1}!`", `"n = 4!"`},
		{"in array", "2 in [1, 2, 3]", "true"},
		{"not in map", `"z" !in #{a: 1}`, "true"},
		{"coalesce assign", "let x = (); x ??= 5; x", "5"},
		{"coalesce", "() ?? 3", "3"},
		{"bit field", "let x = 0; x[3] = true; x", "8"},
		{"bit read", "10[1]", "true"},
		{"string index", `"hello"[-1]`, "'o'"},
		{"method on pointer property", "let m = #{n: 2, f: |x| this.n * x}; m.f(21)", "42"},
		{"return", "fn f(x) { if x > 0 { return 1; } 0 } f(5) + f(-5)", "1"},
		{"top-level return", "return 9; 10", "9"},
		{"shadowing", "let x = 1; let x = x + 1; x", "2"},
		{"const", "const K = 6; K * 7", "42"},
		{"array concat", "[1, 2] + [3]", "[1, 2, 3]"},
		{"array mutation", "let a = [1]; a.push(2); a += [3]; a.insert(0, 0); a", "[0, 1, 2, 3]"},
		{"string functions", `"a,b,c".split(",").len() + "Hello".to_upper().len()`, "8"},
		{"sub string", `"hello".sub_string(1, 3)`, `"ell"`},
		{"map keys", "let m = #{b: 1, a: 2}; m.keys()", `["b", "a"]`},
		{"type of", "type_of([]) + type_of(1)", `"arrayi64"`},
		{"decimal", "to_decimal(1) / to_decimal(4)", "0.25"},
		{"parse int", `parse_int("ff", 16) + parse_int(" 1 ")`, "256"},
		{"char conversion", "to_char(65)", "'A'"},
		{"blob", "let b = blob(3, 1); b.push(2); b", "[01 01 01 02]"},
		{"step range", "let s = 0; for i in range(10, 0, -3) { s += i; } s", "22"},
		{"eval", `let a = 1; eval("a + 1")`, "2"},
		{"eval declares", `eval("let z = 5"); z`, "5"},
		{"is_def_var", `let q = 1; [is_def_var("q"), is_def_var("nope")]`, "[true, false]"},
		{"is_def_fn", `fn f(a) { a } [is_def_fn("f", 1), is_def_fn("f", 2)]`, "[true, false]"},
		{"shared capture", "let x = 1; let f = || { x += 1; }; f.call(); f.call(); x", "3"},
		{"is_shared", "let x = 1; let f = || x; is_shared(x)", "true"},
		{"unit", "let a = 1;", "()"},
		{"char equals string", `["a" == 'a', 'a' != "a", "ab" == 'a', 'b' > "a"]`, "[true, false, false, true]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New()
			got := mustEval(t, e, tc.source)
			if runtime.ToDebug(got) != tc.want {
				t.Fatalf("%s: got %s, want %s", tc.source, runtime.ToDebug(got), tc.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	cases := []struct {
		source string
		kind   runtime.ErrorKind
	}{
		{"undefined_var + 1", runtime.ErrVariableNotFound},
		{"no_such_fn(1)", runtime.ErrFunctionNotFound},
		{"1 / 0", runtime.ErrArithmetic},
		{"9223372036854775807 + 1", runtime.ErrArithmetic},
		{"let a = [1]; a[5]", runtime.ErrArrayBounds},
		{`"abc"[10]`, runtime.ErrStringBounds},
		{"1 + \"a\"", runtime.ErrFunctionNotFound},
		{"throw 5", runtime.ErrRuntime},
		{"fn f() { throw 1; } f()", runtime.ErrRuntime},
		{"for x in 5 {}", runtime.ErrFor},
		{"range(1, 5, 0)", runtime.ErrArithmetic},
		{`parse_int("x")`, runtime.ErrArithmetic},
	}
	for _, tc := range cases {
		expectEvalError(t, New(), tc.source, tc.kind)
	}
}

func TestErrorsInFunctionsAreWrapped(t *testing.T) {
	e := New()
	_, err := e.Eval("fn inner() { 1 / 0 } fn outer() { inner() } outer()")
	var evalErr *runtime.EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvalError, got %v", err)
	}
	if evalErr.Kind != runtime.ErrInFunctionCall || evalErr.Name != "outer" {
		t.Fatalf("expected outer call wrapper, got %s %q", evalErr.Kind, evalErr.Name)
	}
	if inner := evalErr.UnwrapInner(); inner.Kind != runtime.ErrArithmetic {
		t.Fatalf("expected arithmetic root cause, got %s", inner.Kind)
	}
}

func TestParseErrorsSurfaceFromEval(t *testing.T) {
	_, err := New().Eval("let = 5")
	var perr *parser.ParseError
	if !errors.As(err, &perr) || perr.Kind != parser.ErrVariableExpected {
		t.Fatalf("expected variable-expected parse error, got %v", err)
	}
}

func TestScopePersistsAcrossEvaluations(t *testing.T) {
	e := New()
	scope := runtime.NewScope()
	scope.Push("base", runtime.Int(40))
	if _, err := e.EvalWithScope(scope, "let total = base + 1;"); err != nil {
		t.Fatalf("first eval: %v", err)
	}
	v, err := e.EvalWithScope(scope, "total += 1; total")
	if err != nil {
		t.Fatalf("second eval: %v", err)
	}
	if v.Raw() != int64(42) {
		t.Fatalf("expected 42, got %v", v)
	}
	got, ok := scope.Get("total")
	if !ok || got.Raw() != int64(42) {
		t.Fatalf("scope should hold total = 42, got %v", got)
	}
}

func TestHostConstantsAreReadOnly(t *testing.T) {
	e := New()
	scope := runtime.NewScope()
	scope.PushConstant("LIMIT", runtime.Int(3))
	_, err := e.EvalWithScope(scope, "LIMIT = 4")
	if err == nil {
		t.Fatalf("assigning to a constant must fail")
	}
	v, err := e.EvalWithScope(scope, "LIMIT * 2")
	if err != nil || v.Raw() != int64(6) {
		t.Fatalf("expected 6, got %v, %v", v, err)
	}
}

func TestCompileOnceEvaluateMany(t *testing.T) {
	e := New()
	a, err := e.Compile("fn sq(x) { x * x } let n = 0; for i in 0..4 { n += sq(i); } n")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for i := 0; i < 3; i++ {
		v, err := e.EvalAST(a)
		if err != nil || v.Raw() != int64(14) {
			t.Fatalf("run %d: %v, %v", i, v, err)
		}
	}
	if len(a.Functions()) != 1 || a.Functions()[0].Name != "sq" {
		t.Fatalf("unexpected functions %v", a.Functions())
	}
}

func TestCompileExpressionRejectsStatements(t *testing.T) {
	e := New()
	if _, err := e.CompileExpression("let x = 1"); err == nil {
		t.Fatalf("expression mode must reject let")
	}
	v, err := e.EvalExpression("[1, 2].len() * 21")
	if err != nil || v.Raw() != int64(42) {
		t.Fatalf("expected 42, got %v, %v", v, err)
	}
}

func TestCallFn(t *testing.T) {
	e := New()
	a, err := e.Compile(`
const BONUS = 2;
fn score(a, b) { a * b + BONUS }
fn greet(name) { "hi " + name }
`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	scope := runtime.NewScope()
	got, err := CallFnAs[int64](e, scope, a, "score", runtime.Int(4), runtime.Int(10))
	if err != nil || got != 42 {
		t.Fatalf("score: %d, %v", got, err)
	}
	if scope.Len() != 0 {
		t.Fatalf("CallFn must rewind the scope, left %d entries", scope.Len())
	}
	if _, err := CallFnAs[int64](e, scope, a, "greet", runtime.String("x")); err == nil {
		t.Fatalf("expected output type mismatch")
	} else {
		var evalErr *runtime.EvalError
		if !errors.As(err, &evalErr) || evalErr.Kind != runtime.ErrMismatchOutputType {
			t.Fatalf("expected mismatch output type, got %v", err)
		}
	}
	if _, err := e.CallFn(scope, a, "missing"); err == nil {
		t.Fatalf("expected function not found")
	}
}

func TestCallFnWithThis(t *testing.T) {
	e := New()
	a, err := e.Compile("fn bump(n) { this += n; this }")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	this := runtime.Int(40)
	v, err := e.CallFnWithOptions(CallFnOptions{This: &this}, nil, a, "bump", runtime.Int(2))
	if err != nil || v.Raw() != int64(42) {
		t.Fatalf("bump: %v, %v", v, err)
	}
	if this.Raw() != int64(42) {
		t.Fatalf("this should be updated in place, got %v", this)
	}
}

type counter struct {
	hits int64
}

func TestRegisterHostTypes(t *testing.T) {
	e := New()
	RegisterType[*counter](e, "Counter")
	if err := e.RegisterFn("new_counter", func() *counter { return &counter{} }); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterFn("hit", func(c *counter, by int64) { c.hits += by }); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterGet("hits", func(c *counter) int64 { return c.hits }); err != nil {
		t.Fatal(err)
	}
	v := mustEval(t, e, "let c = new_counter(); c.hit(40); c.hit(2); c.hits")
	if v.Raw() != int64(42) {
		t.Fatalf("expected 42 hits, got %v", v)
	}
	name := mustEval(t, e, "type_of(new_counter())")
	if s, _ := name.AsString(); s != "Counter" {
		t.Fatalf("expected registered type name, got %v", name)
	}
}

func TestRegisterFnOverridesByArity(t *testing.T) {
	e := New()
	if err := e.RegisterFn("scale", func(x int64) int64 { return x * 2 }); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterFn("scale", func(x, by int64) int64 { return x * by }); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterFn("scale", func(x int64) int64 { return x * 3 }); err != nil {
		t.Fatal(err)
	}
	v := mustEval(t, e, "scale(2) + scale(2, 10)")
	if v.Raw() != int64(26) {
		t.Fatalf("expected 26, got %v", v)
	}
}

func TestScriptFunctionsShadowHostFunctions(t *testing.T) {
	e := New()
	if err := e.RegisterFn("pick", func(x int64) int64 { return 1 }); err != nil {
		t.Fatal(err)
	}
	v := mustEval(t, e, "fn pick(x) { 2 } pick(0)")
	if v.Raw() != int64(2) {
		t.Fatalf("script function should win, got %v", v)
	}
}

func TestExactOverloadBeatsEarlierDynamicOne(t *testing.T) {
	e := New()
	if err := e.RegisterFn("pick", func(v runtime.Value) string { return "any" }); err != nil {
		t.Fatal(err)
	}
	ints := module.NewWithID("ints")
	if _, err := ints.SetFn("pick", func(x int64) string { return "int" }, module.InGlobalNamespace()); err != nil {
		t.Fatal(err)
	}
	e.RegisterGlobalModule(ints)
	if got := runtime.ToDebug(mustEval(t, e, `[pick(1), pick("s")]`)); got != `["int", "any"]` {
		t.Fatalf("global modules: got %s", got)
	}

	e = New()
	dynamic := module.NewWithID("dynamic")
	if _, err := dynamic.SetFn("pick", func(v runtime.Value) string { return "any" }, module.InGlobalNamespace()); err != nil {
		t.Fatal(err)
	}
	r := NewStaticModuleResolver()
	r.Insert("dynamic", dynamic)
	e.SetModuleResolver(r)
	if err := e.RegisterStaticModule("ints", ints); err != nil {
		t.Fatal(err)
	}
	if got := runtime.ToDebug(mustEval(t, e, `import "dynamic" as d; [pick(1), pick("s")]`)); got != `["int", "any"]` {
		t.Fatalf("import before static module: got %s", got)
	}
}

func TestCaughtErrorsCarrySource(t *testing.T) {
	e := New()
	if got := runtime.ToDebug(mustEval(t, e, `try { 1 / 0 } catch (e) { e.source }`)); got != `""` {
		t.Fatalf("unnamed script: got %s", got)
	}
	a, err := e.CompileNamed(nil, "calc.quill", "let x = 0;\ntry { 1 / x } catch (e) { [e.source, e.line, e.error] }")
	if err != nil {
		t.Fatal(err)
	}
	v, err := e.EvalAST(a)
	if err != nil {
		t.Fatal(err)
	}
	if got := runtime.ToDebug(v); got != `["calc.quill", 2, "ErrorArithmetic"]` {
		t.Fatalf("named script: got %s", got)
	}
}

func TestPrintAndDebugHooks(t *testing.T) {
	e := New()
	var printed, debugged []string
	e.OnPrint(func(s string) { printed = append(printed, s) })
	e.OnDebug(func(text, source string, _ ast.Position) { debugged = append(debugged, text) })
	mustEval(t, e, `print("hello"); print(42); debug("x"); debug([1])`)
	if strings.Join(printed, "|") != "hello|42" {
		t.Fatalf("unexpected print output %q", printed)
	}
	if strings.Join(debugged, "|") != `"x"|[1]` {
		t.Fatalf("unexpected debug output %q", debugged)
	}
}

func TestToStringOverrideIsUsedByInterpolation(t *testing.T) {
	e := New()
	RegisterType[*counter](e, "Counter")
	if err := e.RegisterFn("to_string", func(c *counter) string { return "counter" }); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterFn("new_counter", func() *counter { return &counter{} }); err != nil {
		t.Fatal(err)
	}
	v := mustEval(t, e, "`got ${new_counter()}`")
	if s, _ := v.AsString(); s != "got counter" {
		t.Fatalf("unexpected interpolation %v", v)
	}
}

func TestNewRawHasOnlyOperators(t *testing.T) {
	e := NewRaw()
	if v := mustEval(t, e, "1 + 2"); v.Raw() != int64(3) {
		t.Fatalf("operators must work without packages, got %v", v)
	}
	expectEvalError(t, e, "[1].len()", runtime.ErrFunctionNotFound)
}

func TestDisabledSymbolsAndAllowFunctions(t *testing.T) {
	e := New()
	e.DisableSymbol("while")
	if _, err := e.Compile("while true {}"); err == nil {
		t.Fatalf("disabled keyword must not parse")
	}
	e = New()
	e.SetAllowFunctions(false)
	if _, err := e.Compile("fn f() { 1 }"); err == nil {
		t.Fatalf("function definitions must be rejected")
	}
}

func TestCustomOperator(t *testing.T) {
	e := New()
	if err := e.RegisterCustomOperator("foo", 160); err != nil {
		t.Fatal(err)
	}
	if err := e.RegisterFn("foo", func(a, b int64) int64 { return a*10 + b }); err != nil {
		t.Fatal(err)
	}
	v := mustEval(t, e, "1 + 2 foo 3")
	if v.Raw() != int64(24) {
		t.Fatalf("expected 1 + (2 foo 3) = 24, got %v", v)
	}
	if err := e.RegisterCustomOperator("+", 10); err == nil {
		t.Fatalf("standard operators cannot be re-registered")
	}
}

func TestASTMergeAndClear(t *testing.T) {
	e := New()
	a, err := e.Compile("fn f() { 1 } let x = f();")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Compile("fn f() { 40 } x + f() + 1")
	if err != nil {
		t.Fatal(err)
	}
	merged := a.Merge(b)
	v, err := e.EvalAST(merged)
	if err != nil || v.Raw() != int64(81) {
		t.Fatalf("merged: %v, %v", v, err)
	}
	merged.ClearFunctions()
	if len(merged.Functions()) != 0 {
		t.Fatalf("functions not cleared")
	}
	merged.ClearStatements()
	if len(merged.Statements()) != 0 {
		t.Fatalf("statements not cleared")
	}
}

func TestModuleFromSource(t *testing.T) {
	e := New()
	m, err := e.ModuleFromSource("lib", `
//! Shared helpers.
export const ANSWER = 42;
let hidden = 1;
fn double(x) { x * 2 }
private fn secret() { 0 }
`)
	if err != nil {
		t.Fatalf("ModuleFromSource: %v", err)
	}
	if v, ok := m.GetVar("ANSWER"); !ok || v.Raw() != int64(42) {
		t.Fatalf("export missing: %v", v)
	}
	if _, ok := m.GetVar("hidden"); ok {
		t.Fatalf("unexported variable leaked")
	}
	if m.Doc != "Shared helpers." {
		t.Fatalf("unexpected module doc %q", m.Doc)
	}
	resolver := NewStaticModuleResolver()
	resolver.Insert("lib", m)
	e.SetModuleResolver(resolver)
	v := mustEval(t, e, `import "lib" as lib; lib::double(lib::ANSWER)`)
	if v.Raw() != int64(84) {
		t.Fatalf("expected 84, got %v", v)
	}
	expectEvalError(t, e, `import "lib" as lib; lib::secret()`, runtime.ErrFunctionNotFound)
}
