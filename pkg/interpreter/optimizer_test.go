package interpreter

import (
	"encoding/json"
	"testing"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/runtime"
)

func compileAt(t *testing.T, e *Engine, level OptimizationLevel, source string) *AST {
	t.Helper()
	e.SetOptimizationLevel(level)
	a, err := e.Compile(source)
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	return a
}

func lastExpr(t *testing.T, a *AST) ast.Expr {
	t.Helper()
	stmts := a.Statements()
	if len(stmts) == 0 {
		t.Fatalf("no statements left")
	}
	switch s := stmts[len(stmts)-1].(type) {
	case *ast.ExprStmt:
		return s.Expr
	case *ast.FnCallStmt:
		return s.Call
	default:
		t.Fatalf("last statement is %T", s)
		return nil
	}
}

func expectIntLiteral(t *testing.T, expr ast.Expr, want int64) {
	t.Helper()
	lit, ok := expr.(*ast.IntegerLiteral)
	if !ok {
		t.Fatalf("expected integer literal %d, got %T", want, expr)
	}
	if lit.Value != want {
		t.Fatalf("expected %d, got %d", want, lit.Value)
	}
}

func TestOptimizerFoldsConstants(t *testing.T) {
	cases := []struct {
		name   string
		level  OptimizationLevel
		source string
		want   int64
	}{
		{"operators", OptimizeSimple, "1 + 2 * 3", 7},
		{"const propagation", OptimizeSimple, "const K = 4; K * 2", 8},
		{"if true", OptimizeSimple, "if true { 1 } else { 2 }", 1},
		{"if false", OptimizeSimple, "if 1 > 2 { 1 } else { 2 }", 2},
		{"switch", OptimizeSimple, `switch 2 { 1 => 10, 2 => 20, _ => 30 }`, 20},
		{"switch range", OptimizeSimple, `switch 15 { 1 => 10, 10..20 => 20, _ => 30 }`, 20},
		{"switch default", OptimizeSimple, `switch 99 { 1 => 10, _ => 30 }`, 30},
		{"array index", OptimizeSimple, "[4, 5, 6][1]", 5},
		{"map property", OptimizeSimple, "#{a: 1, b: 2}.b", 2},
		{"pure native", OptimizeFull, `len("abcd")`, 4},
		{"block", OptimizeSimple, "{ 3 }", 3},
		{"and", OptimizeSimple, "if true && false { 1 } else { 0 }", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := compileAt(t, New(), tc.level, tc.source)
			expectIntLiteral(t, lastExpr(t, a), tc.want)
		})
	}
}

func TestOptimizerLeavesDynamicCodeAlone(t *testing.T) {
	cases := []struct {
		name   string
		level  OptimizationLevel
		source string
	}{
		{"no optimization", OptimizeNone, "1 + 2"},
		{"native at simple level", OptimizeSimple, `len("abcd")`},
		{"volatile native", OptimizeFull, `timestamp()`},
		{"script shadows native", OptimizeFull, `fn len(x) { 0 } len("abcd")`},
		{"let is not propagated", OptimizeFull, "let k = 4; k * 2"},
		{"eval barrier", OptimizeFull, `const a = 1; eval("let a = 2"); a + 1`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := compileAt(t, New(), tc.level, tc.source)
			if _, ok := lastExpr(t, a).(*ast.IntegerLiteral); ok {
				t.Fatalf("%s: must not fold to a literal", tc.source)
			}
		})
	}
}

func TestOptimizerRemovesDeadCode(t *testing.T) {
	a := compileAt(t, New(), OptimizeSimple, "let x = 1; while false { x += 1; } 1 + 1; x")
	for _, s := range a.Statements() {
		if _, ok := s.(*ast.WhileStmt); ok {
			t.Fatalf("while false should be removed")
		}
	}
	if n := len(a.Statements()); n != 2 {
		t.Fatalf("expected the let and the result, got %d statements", n)
	}

	fns := compileAt(t, New(), OptimizeSimple, "fn f() { return 1; 2 }").Functions()
	if len(fns) != 1 || len(fns[0].Body.Statements) != 1 {
		t.Fatalf("statements after return should be dropped")
	}
}

func TestOptimizerRewritesSelfAssignment(t *testing.T) {
	a := compileAt(t, New(), OptimizeSimple, "let x = 1; x = x + 2; x")
	assign, ok := a.Statements()[1].(*ast.AssignStmt)
	if !ok {
		t.Fatalf("expected an assignment, got %T", a.Statements()[1])
	}
	if assign.Op != "+=" || assign.BaseOp != "+" || assign.OpHash != runtime.CalcFnHash(nil, "+=", 2) {
		t.Fatalf("expected x += 2, got %q/%q", assign.Op, assign.BaseOp)
	}
	v, err := New().EvalAST(a)
	if err != nil || v.Raw() != int64(3) {
		t.Fatalf("rewritten assignment evaluates to %v, %v", v, err)
	}
}

func TestOptimizerUsesHostConstants(t *testing.T) {
	scope := runtime.NewScope()
	scope.PushConstant("N", runtime.Int(5))
	scope.Push("m", runtime.Int(1))

	e := New()
	a, err := e.CompileWithScope(scope, "N + 1")
	if err != nil {
		t.Fatal(err)
	}
	expectIntLiteral(t, lastExpr(t, a), 6)

	a, err = e.CompileWithScope(scope, "m + 1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lastExpr(t, a).(*ast.IntegerLiteral); ok {
		t.Fatalf("mutable host variables must not be propagated")
	}

	e.OnVar(func(string, *EvalContext) (runtime.Value, bool, error) { return runtime.UnitValue, false, nil })
	a, err = e.CompileWithScope(scope, "N + 1")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lastExpr(t, a).(*ast.IntegerLiteral); ok {
		t.Fatalf("a variable resolver disables constant propagation")
	}
}

func TestOptimizeASTAfterCompile(t *testing.T) {
	e := New()
	e.SetOptimizationLevel(OptimizeNone)
	a, err := e.Compile("const K = 2; K * 21")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lastExpr(t, a).(*ast.IntegerLiteral); ok {
		t.Fatalf("nothing should be folded at level none")
	}
	a = e.OptimizeAST(nil, a, OptimizeSimple)
	expectIntLiteral(t, lastExpr(t, a), 42)
}

func TestOptimizerIsIdempotent(t *testing.T) {
	source := `
const LIMIT = 3;
fn clamp(x) { if x > LIMIT { LIMIT } else { x } }
let total = 0;
for i in 0..10 {
	total += clamp(i) * (2 + 3);
	if false { total = 0; }
}
switch LIMIT { 3 => total, _ => 0 }
`
	for _, level := range []OptimizationLevel{OptimizeSimple, OptimizeFull} {
		e := New()
		once := compileAt(t, e, level, source)
		first, err := json.Marshal(once.Statements())
		if err != nil {
			t.Fatal(err)
		}
		twice := e.OptimizeAST(nil, once, level)
		second, err := json.Marshal(twice.Statements())
		if err != nil {
			t.Fatal(err)
		}
		if string(first) != string(second) {
			t.Fatalf("level %s: second pass changed the tree\n%s\n%s", level, first, second)
		}
	}
}

func TestOptimizationPreservesResults(t *testing.T) {
	scripts := []string{
		"let x = 10; const y = 3; x * y + y",
		`fn f(a) { a * 2 } const C = 4; f(C) + len("abc")`,
		"let s = 0; for i in 0..5 { if i % 2 == 0 { s += i; } } s",
		`let a = [1, 2, 3]; a[1] + #{k: 5}.k`,
		`const name = "q"; switch name { "q" => 1, _ => 2 }`,
		`const a = 1; eval("let a = 2"); a + 1`,
		"let x = 5; x = x * 2; x",
		`let s = "a"; s += "b" + "c"; s`,
	}
	for _, src := range scripts {
		var results []string
		for _, level := range []OptimizationLevel{OptimizeNone, OptimizeSimple, OptimizeFull} {
			e := New()
			e.SetOptimizationLevel(level)
			v, err := e.Eval(src)
			if err != nil {
				t.Fatalf("level %s: %q: %v", level, src, err)
			}
			results = append(results, runtime.ToDebug(v))
		}
		if results[0] != results[1] || results[1] != results[2] {
			t.Fatalf("%q: results differ across levels: %v", src, results)
		}
	}
}
