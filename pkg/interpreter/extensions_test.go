package interpreter

import (
	"errors"
	"fmt"
	"testing"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

func TestCustomSyntax(t *testing.T) {
	e := New()
	err := e.RegisterCustomSyntax([]string{"twice", "$expr$"}, false, func(ctx *EvalContext, inputs []Expression, _ runtime.Value) (runtime.Value, error) {
		v, err := ctx.Eval(inputs[0])
		if err != nil {
			return runtime.UnitValue, err
		}
		n, ok := v.AsInt()
		if !ok {
			return runtime.UnitValue, fmt.Errorf("twice needs an integer")
		}
		return runtime.Int(n * 2), nil
	})
	if err != nil {
		t.Fatalf("register twice: %v", err)
	}
	err = e.RegisterCustomSyntax([]string{"define", "$ident$", "=", "$expr$"}, true, func(ctx *EvalContext, inputs []Expression, _ runtime.Value) (runtime.Value, error) {
		name, ok := inputs[0].VariableName()
		if !ok {
			return runtime.UnitValue, fmt.Errorf("define needs a name")
		}
		v, err := ctx.Eval(inputs[1])
		if err != nil {
			return runtime.UnitValue, err
		}
		ctx.Scope().Push(name, v)
		return runtime.UnitValue, nil
	})
	if err != nil {
		t.Fatalf("register define: %v", err)
	}

	if v := mustEval(t, e, "let x = 20; twice x + 1"); v.Raw() != int64(42) {
		t.Fatalf("twice: got %v", v)
	}
	if v := mustEval(t, e, "define answer = 6 * 7; answer"); v.Raw() != int64(42) {
		t.Fatalf("define: got %v", v)
	}
	if _, err := e.Compile("define 5 = 1"); err == nil {
		t.Fatalf("a literal is not an identifier")
	}
}

func TestCustomSyntaxRegistrationErrors(t *testing.T) {
	e := New()
	noop := func(*EvalContext, []Expression, runtime.Value) (runtime.Value, error) { return runtime.UnitValue, nil }
	cases := []struct {
		name    string
		symbols []string
	}{
		{"empty", nil},
		{"keyword", []string{"if", "$expr$"}},
		{"marker first", []string{"$expr$", "x"}},
		{"unknown marker", []string{"go", "$what$"}},
	}
	for _, tc := range cases {
		if err := e.RegisterCustomSyntax(tc.symbols, false, noop); err == nil {
			t.Fatalf("%s: expected registration error", tc.name)
		}
	}
	e.DisableSymbol("while")
	if err := e.RegisterCustomSyntax([]string{"while", "$expr$"}, false, noop); err != nil {
		t.Fatalf("a disabled keyword can be reused: %v", err)
	}
}

func TestVariableCallbacks(t *testing.T) {
	e := New()
	e.OnVar(func(name string, _ *EvalContext) (runtime.Value, bool, error) {
		switch name {
		case "magic":
			return runtime.Int(42), true, nil
		case "broken":
			return runtime.UnitValue, false, errors.New("lookup failed")
		}
		return runtime.UnitValue, false, nil
	})
	e.OnDefVar(func(name string, _ bool, _ *EvalContext) (bool, error) {
		return name != "forbidden", nil
	})

	if v := mustEval(t, e, "magic"); v.Raw() != int64(42) {
		t.Fatalf("OnVar value: got %v", v)
	}
	if v := mustEval(t, e, "let y = 1; y + 1"); v.Raw() != int64(2) {
		t.Fatalf("fall-through lookup: got %v", v)
	}
	if _, err := e.Eval("magic = 1"); err == nil {
		t.Fatalf("values from OnVar are read-only")
	}
	if _, err := e.Eval("broken"); err == nil {
		t.Fatalf("resolver errors must surface")
	}
	expectEvalError(t, e, "let forbidden = 1;", runtime.ErrForbiddenVariable)
}

func TestSharedValueFromOnVarIsWritable(t *testing.T) {
	e := New()
	cell := runtime.Int(1).IntoShared()
	e.OnVar(func(name string, _ *EvalContext) (runtime.Value, bool, error) {
		if name == "counter" {
			return cell, true, nil
		}
		return runtime.UnitValue, false, nil
	})
	mustEval(t, e, "counter += 41;")
	if got := cell.Flatten(); got.Raw() != int64(42) {
		t.Fatalf("shared cell should be updated, got %v", got)
	}
}

func TestParseVarResolverFoldsConstants(t *testing.T) {
	e := New()
	e.OnParseVar(func(name string) (runtime.Value, bool, error) {
		if name == "VERSION" {
			return runtime.Int(3), true, nil
		}
		return runtime.UnitValue, false, nil
	})
	if v := mustEval(t, e, "VERSION * 14"); v.Raw() != int64(42) {
		t.Fatalf("expected 42, got %v", v)
	}
}

func TestDebuggerStepsThroughScript(t *testing.T) {
	e := New()
	var kinds []DebuggerEventKind
	e.SetDebugger(nil, func(_ *EvalContext, event DebuggerEvent, _ ast.Node, _ string, _ ast.Position) (DebuggerCommand, error) {
		kinds = append(kinds, event.Kind)
		return DebugStepInto, nil
	})
	if v := mustEval(t, e, "let a = 1; let b = a + 1; b"); v.Raw() != int64(2) {
		t.Fatalf("unexpected result %v", v)
	}
	if len(kinds) < 4 || kinds[0] != EventStart || kinds[len(kinds)-1] != EventEnd {
		t.Fatalf("unexpected event sequence %v", kinds)
	}
	for _, k := range kinds[1 : len(kinds)-1] {
		if k != EventStep {
			t.Fatalf("expected only steps between start and end, got %v", kinds)
		}
	}
}

func TestDebuggerBreakPoints(t *testing.T) {
	e := New()
	e.SetOptimizationLevel(OptimizeNone)
	var hits []int
	var stack []CallStackFrame
	e.SetDebugger(func(d *Debugger) {
		d.AddBreakPoint(BreakPoint{Kind: BreakAtFunctionName, Name: "g"})
	}, func(ctx *EvalContext, event DebuggerEvent, _ ast.Node, _ string, _ ast.Position) (DebuggerCommand, error) {
		if event.Kind == EventBreakPoint {
			hits = append(hits, event.BreakPoint)
			stack = append([]CallStackFrame(nil), ctx.Debugger().CallStack()...)
		}
		return DebugContinue, nil
	})
	v := mustEval(t, e, "fn g(x) { x + 1 } fn f(x) { g(x) * 2 } f(20)")
	if v.Raw() != int64(42) {
		t.Fatalf("unexpected result %v", v)
	}
	if len(hits) != 1 || hits[0] != 0 {
		t.Fatalf("expected one hit of break-point 0, got %v", hits)
	}
	if len(stack) != 1 || stack[0].FnName != "f" || stack[0].Args[0].Raw() != int64(20) {
		t.Fatalf("unexpected call stack %v", stack)
	}
}

func TestDebuggerFunctionExit(t *testing.T) {
	e := New()
	e.SetOptimizationLevel(OptimizeNone)
	var exitValue runtime.Value
	entered := false
	e.SetDebugger(func(d *Debugger) {
		d.AddBreakPoint(BreakPoint{Kind: BreakAtFunctionName, Name: "inner"})
	}, func(ctx *EvalContext, event DebuggerEvent, _ ast.Node, _ string, _ ast.Position) (DebuggerCommand, error) {
		switch event.Kind {
		case EventBreakPoint:
			return DebugStepInto, nil
		case EventStep:
			if ctx.CallLevel() == 1 && !entered {
				entered = true
				return DebugFunctionExit, nil
			}
		case EventFunctionExitWithValue:
			exitValue = event.Value
		}
		return DebugContinue, nil
	})
	mustEval(t, e, "fn inner() { let v = 40; v + 2 } inner()")
	if exitValue.Raw() != int64(42) {
		t.Fatalf("expected function exit with 42, got %v", exitValue)
	}
}

func TestDebuggerCanAbort(t *testing.T) {
	e := New()
	e.SetDebugger(nil, func(_ *EvalContext, event DebuggerEvent, _ ast.Node, _ string, _ ast.Position) (DebuggerCommand, error) {
		if event.Kind == EventStep {
			return DebugContinue, errors.New("stop here")
		}
		return DebugStepInto, nil
	})
	if _, err := e.Eval("let a = 1; a"); err == nil {
		t.Fatalf("a callback error must abort the evaluation")
	}
}

func mathModule(t *testing.T) *module.Module {
	t.Helper()
	m := module.NewWithID("math")
	if _, err := m.SetFn("triple", func(x int64) int64 { return x * 3 }); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SetFn("half", func(x int64) int64 { return x / 2 }, module.InGlobalNamespace()); err != nil {
		t.Fatal(err)
	}
	m.SetVar("TEN", runtime.Int(10))
	return m
}

func TestStaticModuleResolver(t *testing.T) {
	e := New()
	r := NewStaticModuleResolver()
	r.Insert("math", mathModule(t))
	e.SetModuleResolver(r)

	if v := mustEval(t, e, `import "math" as m; m::triple(m::TEN) + 12`); v.Raw() != int64(42) {
		t.Fatalf("qualified access: got %v", v)
	}
	if v := mustEval(t, e, `import "math"; half(84)`); v.Raw() != int64(42) {
		t.Fatalf("global-namespace function after import: got %v", v)
	}
	expectEvalError(t, e, `import "math" as m; triple(1)`, runtime.ErrFunctionNotFound)
	expectEvalError(t, e, `import "nope" as n;`, runtime.ErrModuleNotFound)

	if !r.Contains("math") || len(r.Paths()) != 1 {
		t.Fatalf("unexpected resolver contents %v", r.Paths())
	}
	if _, ok := r.Remove("math"); !ok || r.Contains("math") {
		t.Fatalf("remove failed")
	}
}

func TestModuleResolversCollection(t *testing.T) {
	calls := 0
	failing := ModuleResolverFunc(func(_ *Engine, _ string, path string, _ ast.Position) (*module.Module, error) {
		calls++
		if path == "broken" {
			return nil, errors.New("disk on fire")
		}
		return nil, runtime.NewModuleNotFound(path, ast.NoPosition)
	})
	static := NewStaticModuleResolver()
	static.Insert("math", mathModule(t))
	c := NewModuleResolversCollection(failing, DummyModuleResolver{})
	c.Push(static)
	if c.Len() != 3 {
		t.Fatalf("expected 3 resolvers, got %d", c.Len())
	}

	e := New()
	e.SetModuleResolver(c)
	if v := mustEval(t, e, `import "math" as m; m::triple(14)`); v.Raw() != int64(42) {
		t.Fatalf("collection lookup: got %v", v)
	}
	if calls != 1 {
		t.Fatalf("expected the first resolver to be consulted once, got %d", calls)
	}
	if _, err := e.Eval(`import "broken" as b;`); err == nil {
		t.Fatalf("a failing resolver must stop the search")
	}
}

func TestASTResolverTakesPrecedence(t *testing.T) {
	e := New()
	engineLevel := NewStaticModuleResolver()
	engineLevel.Insert("math", mathModule(t))
	e.SetModuleResolver(engineLevel)

	override := module.NewWithID("math")
	if _, err := override.SetFn("triple", func(x int64) int64 { return 0 }); err != nil {
		t.Fatal(err)
	}
	local := NewStaticModuleResolver()
	local.Insert("math", override)

	a, err := e.Compile(`import "math" as m; m::triple(5)`)
	if err != nil {
		t.Fatal(err)
	}
	a.SetResolver(local)
	v, err := e.EvalAST(a)
	if err != nil || v.Raw() != int64(0) {
		t.Fatalf("embedded resolver should win, got %v, %v", v, err)
	}
}

func TestStaticModules(t *testing.T) {
	e := New()
	if err := e.RegisterStaticModule("util::math", mathModule(t)); err != nil {
		t.Fatal(err)
	}
	if v := mustEval(t, e, "util::math::triple(14)"); v.Raw() != int64(42) {
		t.Fatalf("nested static module: got %v", v)
	}
	if v := mustEval(t, e, "half(84)"); v.Raw() != int64(42) {
		t.Fatalf("static global-namespace function: got %v", v)
	}
	if err := e.RegisterStaticModule("", module.New()); err == nil {
		t.Fatalf("empty path must be rejected")
	}
}

func TestImportedScriptModule(t *testing.T) {
	e := New()
	lib, err := e.ModuleFromSource("lib", `
fn helper(x) { x + 1 }
fn api(x) { helper(x) * 2 }
`)
	if err != nil {
		t.Fatal(err)
	}
	r := NewStaticModuleResolver()
	r.Insert("lib", lib)
	e.SetModuleResolver(r)
	if v := mustEval(t, e, `import "lib" as lib; lib::api(20)`); v.Raw() != int64(42) {
		t.Fatalf("script module functions should see their siblings, got %v", v)
	}
}

func TestModuleFunctionsSeeTheirOwnImports(t *testing.T) {
	e := New()
	r := NewStaticModuleResolver()
	e.SetModuleResolver(r)
	inner, err := e.ModuleFromSource("inner", `fn base() { 40 }`)
	if err != nil {
		t.Fatal(err)
	}
	r.Insert("inner", inner)
	outer, err := e.ModuleFromSource("outer", `
import "inner" as helpers;
fn answer() { helpers::base() + 2 }
`)
	if err != nil {
		t.Fatal(err)
	}
	r.Insert("outer", outer)
	if v := mustEval(t, e, `import "outer" as o; o::answer()`); v.Raw() != int64(42) {
		t.Fatalf("expected 42, got %v", v)
	}
	expectEvalError(t, e, `import "outer" as o; helpers::base()`, runtime.ErrModuleNotFound)
}

func TestRepeatedImportsReuseOneCacheLayer(t *testing.T) {
	e := New()
	r := NewStaticModuleResolver()
	r.Insert("math", mathModule(t))
	e.SetModuleResolver(r)
	err := e.RegisterRawFn("cache_depth", nil, false, func(ctx runtime.NativeCallContext, _ []*runtime.Value) (runtime.Value, error) {
		return runtime.Int(int64(len(ctx.(*callContext).st.caches))), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	v := mustEval(t, e, `
let depths = [];
for i in 0..3 {
	import "math" as a;
	import "math" as b;
	import "math" as c;
	depths.push(cache_depth());
}
depths.push(cache_depth());
depths`)
	if got := runtime.ToDebug(v); got != "[2, 2, 2, 1]" {
		t.Fatalf("cache depths = %s", got)
	}
}

func TestLaterImportInBlockRefreshesResolution(t *testing.T) {
	anyModule := module.NewWithID("any")
	if _, err := anyModule.SetFn("pick", func(v runtime.Value) string { return "any" }, module.InGlobalNamespace()); err != nil {
		t.Fatal(err)
	}
	intModule := module.NewWithID("int")
	if _, err := intModule.SetFn("pick", func(x int64) string { return "int" }, module.InGlobalNamespace()); err != nil {
		t.Fatal(err)
	}
	e := New()
	r := NewStaticModuleResolver()
	r.Insert("any", anyModule)
	r.Insert("int", intModule)
	e.SetModuleResolver(r)
	v := mustEval(t, e, `
let seen = [];
{
	import "any" as a;
	seen.push(pick(1));
	import "int" as b;
	seen.push(pick(1));
}
seen`)
	if got := runtime.ToDebug(v); got != `["any", "int"]` {
		t.Fatalf("got %s", got)
	}
}
