package parser_test

import (
	"errors"
	"strings"
	"testing"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

func mustParse(t *testing.T, source string, opts parser.Options) *ast.Script {
	t.Helper()
	script, err := parser.Parse(source, opts)
	if err != nil {
		t.Fatalf("Parse(%q): %v", source, err)
	}
	return script
}

func expectParseError(t *testing.T, source string, opts parser.Options, kind parser.ParseErrorKind) *parser.ParseError {
	t.Helper()
	_, err := parser.Parse(source, opts)
	if err == nil {
		t.Fatalf("Parse(%q): expected error", source)
	}
	var parseErr *parser.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Parse(%q): expected *ParseError, got %T (%v)", source, err, err)
	}
	if parseErr.Kind != kind {
		t.Fatalf("Parse(%q): expected kind %d, got %d (%v)", source, kind, parseErr.Kind, err)
	}
	return parseErr
}

// lastExpr returns the expression of the final statement.
func lastExpr(t *testing.T, script *ast.Script) ast.Expr {
	t.Helper()
	stmts := script.Body.Statements
	if len(stmts) == 0 {
		t.Fatalf("empty script")
	}
	switch s := stmts[len(stmts)-1].(type) {
	case *ast.ExprStmt:
		return s.Expr
	case *ast.FnCallStmt:
		return s.Call
	case *ast.VarStmt:
		return s.Value
	default:
		t.Fatalf("last statement is %T", s)
		return nil
	}
}

func TestParseOperatorPrecedence(t *testing.T) {
	script := mustParse(t, "1 + 2 * 3", parser.Options{})
	call, ok := lastExpr(t, script).(*ast.FnCallExpr)
	if !ok || call.Name != "+" || call.OpToken != "+" {
		t.Fatalf("expected + call, got %#v", lastExpr(t, script))
	}
	if call.Hash != runtime.CalcFnHash(nil, "+", 2) {
		t.Fatalf("operator hash mismatch")
	}
	rhs, ok := call.Args[1].(*ast.FnCallExpr)
	if !ok || rhs.Name != "*" {
		t.Fatalf("expected * on the right, got %#v", call.Args[1])
	}

	power := lastExpr(t, mustParse(t, "2 ** 3 ** 2", parser.Options{})).(*ast.FnCallExpr)
	if _, ok := power.Args[1].(*ast.FnCallExpr); !ok {
		t.Fatalf("** must be right-associative")
	}

	logic := lastExpr(t, mustParse(t, "a || b && c", parser.Options{}))
	if logic.NodeType() != ast.NodeOr {
		t.Fatalf("expected || at the root, got %s", logic.NodeType())
	}
	if rhs := logic.(*ast.BinaryExpr).Rhs; rhs.NodeType() != ast.NodeAnd {
		t.Fatalf("expected && on the right, got %s", rhs.NodeType())
	}

	coalesce := lastExpr(t, mustParse(t, "a ?? b == c", parser.Options{}))
	if coalesce.NodeType() != ast.NodeCoalesce {
		t.Fatalf("?? binds loosest, got %s", coalesce.NodeType())
	}
}

func TestParseInOperators(t *testing.T) {
	call := lastExpr(t, mustParse(t, "x in [1, 2]", parser.Options{})).(*ast.FnCallExpr)
	if call.Name != "contains" || call.IsOperator() {
		t.Fatalf("expected contains call, got %#v", call)
	}
	if _, ok := call.Args[0].(*ast.ArrayLiteral); !ok {
		t.Fatalf("container must be the first argument")
	}

	negated := lastExpr(t, mustParse(t, "x !in y", parser.Options{})).(*ast.FnCallExpr)
	if negated.Name != "!" || len(negated.Args) != 1 {
		t.Fatalf("expected negated contains, got %#v", negated)
	}
	expectParseError(t, "x in true", parser.Options{}, parser.ErrMalformedInExpr)
}

func TestParseLiterals(t *testing.T) {
	cases := []struct {
		source string
		check  func(ast.Expr) bool
	}{
		{"42", func(e ast.Expr) bool { lit, ok := e.(*ast.IntegerLiteral); return ok && lit.Value == 42 }},
		{"-7", func(e ast.Expr) bool { lit, ok := e.(*ast.IntegerLiteral); return ok && lit.Value == -7 }},
		{"-1.5", func(e ast.Expr) bool { lit, ok := e.(*ast.FloatLiteral); return ok && lit.Value == -1.5 }},
		{"'x'", func(e ast.Expr) bool { lit, ok := e.(*ast.CharLiteral); return ok && lit.Value == 'x' }},
		{`"hi"`, func(e ast.Expr) bool { lit, ok := e.(*ast.StringLiteral); return ok && lit.Value == "hi" }},
		{"!true", func(e ast.Expr) bool { lit, ok := e.(*ast.BoolLiteral); return ok && !lit.Value }},
		{"()", func(e ast.Expr) bool { _, ok := e.(*ast.UnitLiteral); return ok }},
		{"[1, 2, 3,]", func(e ast.Expr) bool { lit, ok := e.(*ast.ArrayLiteral); return ok && len(lit.Elements) == 3 }},
		{"#{a: 1, \"b c\": 2}", func(e ast.Expr) bool {
			lit, ok := e.(*ast.MapLiteral)
			return ok && len(lit.Entries) == 2 && lit.Entries[1].Key == "b c"
		}},
		{"`plain`", func(e ast.Expr) bool { lit, ok := e.(*ast.StringLiteral); return ok && lit.Value == "plain" }},
	}
	for _, tc := range cases {
		expr := lastExpr(t, mustParse(t, tc.source, parser.Options{}))
		if !tc.check(expr) {
			t.Fatalf("%s: unexpected node %#v", tc.source, expr)
		}
	}
	expectParseError(t, "#{a: 1, a: 2}", parser.Options{}, parser.ErrDuplicatedProperty)
}

func TestParseInterpolatedString(t *testing.T) {
	expr := lastExpr(t, mustParse(t, "let x = 1; `x = ${x + 1}!`", parser.Options{}))
	interp, ok := expr.(*ast.InterpolatedString)
	if !ok {
		t.Fatalf("expected interpolated string, got %T", expr)
	}
	if len(interp.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(interp.Parts))
	}
	sum, ok := interp.Parts[1].(*ast.FnCallExpr)
	if !ok || sum.Name != "+" {
		t.Fatalf("embedded expression not parsed: %#v", interp.Parts[1])
	}
	if v := sum.Args[0].(*ast.Variable); v.Index != 1 {
		t.Fatalf("embedded variable should resolve to slot 1, got %d", v.Index)
	}
	if pos := sum.Position(); pos.Line != 1 || pos.Column != 19 {
		t.Fatalf("embedded expression position %s", pos)
	}
}

func TestParseChains(t *testing.T) {
	expr := lastExpr(t, mustParse(t, "a.b[1]?.c(2)", parser.Options{}))
	chain, ok := expr.(*ast.ChainExpr)
	if !ok || len(chain.Links) != 3 {
		t.Fatalf("expected 3-link chain, got %#v", expr)
	}
	prop := chain.Links[0].(*ast.PropertyLink)
	if prop.Getter != "get$b" || prop.GetterHash != runtime.CalcFnHash(nil, "get$b", 1) || prop.SetterHash != runtime.CalcFnHash(nil, "set$b", 2) {
		t.Fatalf("unexpected property link %#v", prop)
	}
	if _, ok := chain.Links[1].(*ast.IndexLink); !ok {
		t.Fatalf("expected index link")
	}
	method := chain.Links[2].(*ast.MethodLink)
	if !method.IsNullSafe() || method.Call.Hash != runtime.CalcFnHash(nil, "c", 2) {
		t.Fatalf("method link must be null-safe and count the receiver: %#v", method)
	}
	expectParseError(t, "a[1.5]", parser.Options{}, parser.ErrMalformedIndexExpr)
	expectParseError(t, "a.1", parser.Options{}, parser.ErrPropertyExpected)
}

func TestParseQualifiedNames(t *testing.T) {
	call := lastExpr(t, mustParse(t, "m::sub::f(1)", parser.Options{})).(*ast.FnCallExpr)
	if !call.IsQualified() || call.Namespace.String() != "m::sub::" {
		t.Fatalf("unexpected namespace %v", call.Namespace)
	}
	if call.Hash != runtime.CalcFnHash([]string{"m", "sub"}, "f", 1) {
		t.Fatalf("qualified hash mismatch")
	}
	v := lastExpr(t, mustParse(t, "m::LIMIT", parser.Options{})).(*ast.Variable)
	if !v.IsQualified() || v.Hash != runtime.CalcVarHash([]string{"m"}, "LIMIT") {
		t.Fatalf("unexpected qualified variable %#v", v)
	}
}

func TestParseSlotHints(t *testing.T) {
	script := mustParse(t, "let a = 1; let b = 2; { let c = 3; a + c }", parser.Options{})
	block := script.Body.Statements[2].(*ast.BlockStmt).Block
	sum := block.Statements[1].(*ast.FnCallStmt).Call
	if a := sum.Args[0].(*ast.Variable); a.Index != 3 {
		t.Fatalf("a should be 3 slots from the top, got %d", a.Index)
	}
	if c := sum.Args[1].(*ast.Variable); c.Index != 1 {
		t.Fatalf("c should be on top, got %d", c.Index)
	}

	scoped := mustParse(t, "x + y", parser.Options{Scope: []parser.ScopeVar{{Name: "x"}, {Name: "y"}}})
	call := lastExpr(t, scoped).(*ast.FnCallExpr)
	if call.Args[0].(*ast.Variable).Index != 2 {
		t.Fatalf("host scope bindings should produce hints")
	}

	dirty := mustParse(t, `let a = 1; eval("let z = 2"); a`, parser.Options{})
	if v := lastExpr(t, dirty).(*ast.Variable); v.Index != 0 {
		t.Fatalf("eval must disable slot hints, got %d", v.Index)
	}
}

func TestParseStatementsAndTermination(t *testing.T) {
	script := mustParse(t, `
let x = 1;
if x > 0 { x = 2 } else if x < 0 { x = 3 } else { x = 4 }
while x < 10 { x += 1; if x == 5 { break; } }
do { x -= 1 } until x == 0;
loop { break 42 }
for (v, i) in [1, 2] { continue }
try { throw "bad" } catch (e) { e }
x`, parser.Options{})
	stmts := script.Body.Statements
	if _, ok := stmts[0].(*ast.VarStmt); !ok {
		t.Fatalf("expected let, got %T", stmts[0])
	}
	ifStmt := stmts[1].(*ast.IfStmt)
	if _, ok := ifStmt.Flow.Branch.Statements[0].(*ast.IfStmt); !ok {
		t.Fatalf("else-if should nest an if statement")
	}
	if stmts[3].(*ast.DoStmt).IsUntil() != true {
		t.Fatalf("expected do-until")
	}
	forStmt := stmts[5].(*ast.ForStmt)
	if forStmt.Var != "v" || forStmt.Counter != "i" {
		t.Fatalf("unexpected for variables %q %q", forStmt.Var, forStmt.Counter)
	}
	if stmts[6].(*ast.TryCatchStmt).CatchVar != "e" {
		t.Fatalf("catch variable missing")
	}
	compound := stmts[2].(*ast.WhileStmt).Flow.Body.Statements[0].(*ast.AssignStmt)
	if compound.Op != "+=" || compound.BaseOp != "+" || compound.BaseHash != runtime.CalcFnHash(nil, "+", 2) {
		t.Fatalf("unexpected op-assignment %#v", compound)
	}

	missing := expectParseError(t, "let a = 1 let b = 2", parser.Options{}, parser.ErrMissingToken)
	if missing.Text != ";" {
		t.Fatalf("expected missing ';', got %q", missing.Text)
	}
}

func TestParseRejectsInvalidStatements(t *testing.T) {
	cases := []struct {
		source string
		kind   parser.ParseErrorKind
	}{
		{"break", parser.ErrLoopBreak},
		{"while true { let f = || { break }; }", parser.ErrLoopBreak},
		{"const c = 1; c = 2", parser.ErrAssignmentToConstant},
		{"const m = #{}; m.a = 2", parser.ErrAssignmentToConstant},
		{"f() = 1", parser.ErrAssignmentToInvalidLHS},
		{"a.len() = 1", parser.ErrAssignmentToInvalidLHS},
		{"{ export x }", parser.ErrWrongExport},
		{"let = 5", parser.ErrVariableExpected},
		{"1 +", parser.ErrUnexpectedEOF},
		{"let var = 1", parser.ErrReserved},
		{"{ 1", parser.ErrMissingToken},
	}
	for _, tc := range cases {
		expectParseError(t, tc.source, parser.Options{}, tc.kind)
	}
}

func TestParseSwitchCompilesCaseTable(t *testing.T) {
	script := mustParse(t, `
switch x {
	1 | 2 => "small",
	"s" if y => "string",
	10..20 => "range",
	-5..=-1 => { "negative" }
	_ => "other"
}`, parser.Options{})
	sw := script.Body.Statements[0].(*ast.SwitchStmt)
	cases := sw.Cases
	if len(cases.Expressions) != 6 {
		t.Fatalf("expected 6 case entries, got %d", len(cases.Expressions))
	}
	h1, _ := runtime.HashValue(runtime.Int(1))
	h2, _ := runtime.HashValue(runtime.Int(2))
	if len(cases.Cases[h1]) != 1 || len(cases.Cases[h2]) != 1 {
		t.Fatalf("values 1 and 2 should both be hashed")
	}
	hs, _ := runtime.HashValue(runtime.String("s"))
	guarded := cases.Expressions[cases.Cases[hs][0]]
	if guarded.Condition == nil {
		t.Fatalf("guard lost")
	}
	if len(cases.Ranges) != 2 || cases.Ranges[0].Inclusive || !cases.Ranges[1].Inclusive || cases.Ranges[1].Start != -5 {
		t.Fatalf("unexpected ranges %#v", cases.Ranges)
	}
	if cases.Default != 5 {
		t.Fatalf("expected default at 5, got %d", cases.Default)
	}

	expectParseError(t, "switch x { _ => 1, 2 => 3 }", parser.Options{}, parser.ErrWrongSwitchDefaultCase)
	expectParseError(t, "switch x { _ if y => 1 }", parser.Options{}, parser.ErrWrongSwitchCaseCondition)
	expectParseError(t, "switch x { y => 1 }", parser.Options{}, parser.ErrWrongSwitchCaseValue)
	expectParseError(t, "switch x { 1 => 1 2 => 3 }", parser.Options{}, parser.ErrMissingToken)
}

func TestParseFunctionDefinitions(t *testing.T) {
	script := mustParse(t, `
//! Math helpers.

/// Adds two numbers.
/// Returns the sum.
fn add(a, b) { a + b }

private fn hidden() { 1 }

add(1, 2)`, parser.Options{})
	if len(script.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(script.Functions))
	}
	add := script.Functions[0]
	if add.Signature() != "add(a, b)" || strings.Join(add.Comments, "|") != "Adds two numbers.|Returns the sum." {
		t.Fatalf("unexpected definition %s %q", add.Signature(), add.Comments)
	}
	if !script.Functions[1].IsPrivate() {
		t.Fatalf("private flag lost")
	}
	if len(script.Doc) != 1 || script.Doc[0] != "Math helpers." {
		t.Fatalf("unexpected module doc %q", script.Doc)
	}
	sum := add.Body.Statements[0].(*ast.FnCallStmt).Call
	if sum.Args[0].(*ast.Variable).Index != 2 {
		t.Fatalf("parameters should resolve inside the body")
	}

	dup := expectParseError(t, "fn f(x) {} fn f(y) {}", parser.Options{}, parser.ErrFnDuplicatedDefinition)
	if dup.Error() != "Function 'f' with 1 parameters already exists (line 1, position 15)" {
		t.Fatalf("unexpected message %q", dup.Error())
	}
	expectParseError(t, "fn f(x, x) {}", parser.Options{}, parser.ErrFnDuplicatedParam)
	expectParseError(t, "fn f(x)", parser.Options{}, parser.ErrFnMissingBody)
	expectParseError(t, "fn (x) {}", parser.Options{}, parser.ErrFnMissingName)
	expectParseError(t, "{ fn inner() {} }", parser.Options{}, parser.ErrWrongFnDefinition)
	expectParseError(t, "fn outer() { fn inner() {} }", parser.Options{}, parser.ErrWrongFnDefinition)
	expectParseError(t, "fn f() {}", parser.Options{NoFunctions: true}, parser.ErrReserved)
}

func TestParseClosureCaptures(t *testing.T) {
	script := mustParse(t, "let x = 1; let f = |y| x + y; let g = || 5;", parser.Options{})
	if len(script.Functions) != 2 {
		t.Fatalf("closures should be lifted, got %d functions", len(script.Functions))
	}
	value := script.Body.Statements[1].(*ast.VarStmt).Value
	block, ok := value.(*ast.StmtBlockExpr)
	if !ok {
		t.Fatalf("capturing closure should be wrapped, got %T", value)
	}
	share := block.Block.Statements[0].(*ast.ShareStmt)
	if len(share.Names) != 1 || share.Names[0] != "x" {
		t.Fatalf("unexpected shared names %v", share.Names)
	}
	closure := block.Block.Statements[1].(*ast.ExprStmt).Expr.(*ast.ClosureExpr)
	if !closure.Fn.IsAnonymous() || strings.Join(closure.Fn.Params, ",") != "x,y" {
		t.Fatalf("unexpected lifted function %s", closure.Fn.Signature())
	}
	if len(closure.Captures) != 1 || closure.Captures[0].Index != 1 {
		t.Fatalf("capture should hint the enclosing slot: %#v", closure.Captures)
	}

	plain := script.Body.Statements[2].(*ast.VarStmt).Value
	if _, ok := plain.(*ast.ClosureExpr); !ok {
		t.Fatalf("closure without captures should not be wrapped, got %T", plain)
	}

	nested := mustParse(t, "let n = 1; let f = || || n;", parser.Options{})
	if len(nested.Functions) != 2 {
		t.Fatalf("expected two lifted closures")
	}
	inner, outer := nested.Functions[0], nested.Functions[1]
	if inner.Params[0] != "n" || outer.Params[0] != "n" {
		t.Fatalf("captures must propagate through nested closures: %s %s", inner.Signature(), outer.Signature())
	}
}

func TestParseCustomOperator(t *testing.T) {
	opts := parser.Options{CustomOperators: map[string]int{"foo": 160}}
	call := lastExpr(t, mustParse(t, "1 foo 2 + 3", opts)).(*ast.FnCallExpr)
	if call.Name != "+" {
		t.Fatalf("foo should bind tighter than +, got %s", call.Name)
	}
	foo := call.Args[0].(*ast.FnCallExpr)
	if foo.Name != "foo" || foo.IsOperator() || foo.Hash != runtime.CalcFnHash(nil, "foo", 2) {
		t.Fatalf("unexpected custom operator call %#v", foo)
	}
}

func TestParseCustomSyntax(t *testing.T) {
	var seen [][]string
	syntax := &parser.CustomSyntax{
		Parse: func(symbols []string, lookAhead string, state *runtime.Value) (string, error) {
			seen = append(seen, append([]string(nil), symbols...))
			switch len(symbols) {
			case 1:
				return ast.CustomMarkerIdent, nil
			case 2:
				return "times", nil
			case 3:
				return ast.CustomMarkerExpr, nil
			case 4:
				*state = runtime.Int(7)
				return ast.CustomMarkerBlock, nil
			default:
				return "", nil
			}
		},
		ScopeMayChange: true,
	}
	opts := parser.Options{
		CustomKeywords: map[string]struct{}{"times": {}},
		CustomSyntax:   map[string]*parser.CustomSyntax{"repeat": syntax},
	}
	script := mustParse(t, "let a = 1; repeat i times 3 { i } a", opts)
	expr := script.Body.Statements[1].(*ast.ExprStmt).Expr.(*ast.CustomSyntaxExpr)
	if strings.Join(expr.Tokens, " ") != "repeat $ident$ times $expr$ $block$" {
		t.Fatalf("unexpected tokens %v", expr.Tokens)
	}
	if len(expr.Inputs) != 3 || !expr.SelfTerminated || !expr.ScopeMayChange {
		t.Fatalf("unexpected custom syntax node %#v", expr)
	}
	if v, ok := expr.State.(runtime.Value); !ok || v.Raw() != int64(7) {
		t.Fatalf("state not kept: %v", expr.State)
	}
	if got := strings.Join(seen[3], " "); got != "repeat i times $expr$" {
		t.Fatalf("callback saw %q", got)
	}
	if v := lastExpr(t, script).(*ast.Variable); v.Index != 0 {
		t.Fatalf("scope-changing syntax must disable hints")
	}

	_, err := parser.Parse("repeat i 3 { }", opts)
	var parseErr *parser.ParseError
	if !errors.As(err, &parseErr) || parseErr.Kind != parser.ErrMissingToken || parseErr.Text != "times" {
		t.Fatalf("expected missing 'times', got %v", err)
	}
}

func TestParseVariableResolverAndStrictMode(t *testing.T) {
	opts := parser.Options{
		OnParseVar: func(name string) (runtime.Value, bool, error) {
			switch name {
			case "MAX":
				return runtime.Int(100), true, nil
			case "boom":
				return runtime.UnitValue, false, errors.New("forbidden")
			}
			return runtime.UnitValue, false, nil
		},
	}
	expr := lastExpr(t, mustParse(t, "MAX", opts))
	constant, ok := expr.(*ast.ConstantExpr)
	if !ok || constant.Value.(runtime.Value).Raw() != int64(100) {
		t.Fatalf("resolver should fold MAX, got %#v", expr)
	}
	if _, ok := lastExpr(t, mustParse(t, "let MAX = 1; MAX", opts)).(*ast.Variable); !ok {
		t.Fatalf("declared variables must not be resolved")
	}
	resolverErr := expectParseError(t, "boom", opts, parser.ErrVariableResolver)
	if resolverErr.Unwrap() == nil || resolverErr.Message() != "forbidden" {
		t.Fatalf("resolver error should be wrapped: %v", resolverErr)
	}

	strict := parser.Options{StrictVariables: true, Scope: []parser.ScopeVar{{Name: "host", Constant: true}}}
	mustParse(t, "let a = 1; a + host", strict)
	expectParseError(t, "a + 1", strict, parser.ErrVariableUndefined)
	expectParseError(t, "host = 2", strict, parser.ErrAssignmentToConstant)
	expectParseError(t, "let a = 1; let a = 2", parser.Options{DisallowShadowing: true}, parser.ErrVariableExists)
}

func TestParseReportsLexErrors(t *testing.T) {
	perr := expectParseError(t, `let s = "open`, parser.Options{}, parser.ErrBadInput)
	var lexErr *lexer.LexError
	if !errors.As(perr, &lexErr) || lexErr.Kind != lexer.ErrUnterminatedString {
		t.Fatalf("expected wrapped lexer error, got %v", perr)
	}
	if perr.Pos != ast.NewPosition(1, 9) {
		t.Fatalf("unexpected position %s", perr.Pos)
	}
	expectParseError(t, `let s = "abcdef";`, parser.Options{MaxStringSize: 3}, parser.ErrBadInput)
	expectParseError(t, "a + b", parser.Options{DisabledSymbols: map[string]struct{}{"+": {}}}, parser.ErrReserved)
}

func TestParseExpressionDepthLimit(t *testing.T) {
	expectParseError(t, "((((((1))))))", parser.Options{MaxExprDepth: 3}, parser.ErrExprTooDeep)
	mustParse(t, "((((((1))))))", parser.Options{MaxExprDepth: 32})
}

func TestParseExpressionOnly(t *testing.T) {
	script, err := parser.ParseExpression("1 + x * 2", parser.Options{})
	if err != nil {
		t.Fatalf("ParseExpression: %v", err)
	}
	if len(script.Body.Statements) != 1 {
		t.Fatalf("expected one statement")
	}
	if _, err := parser.ParseExpression("let x = 1", parser.Options{}); err == nil {
		t.Fatalf("statements must be rejected")
	}
	if _, err := parser.ParseExpression("|x| x", parser.Options{}); err == nil {
		t.Fatalf("closures must be rejected")
	}
	if _, err := parser.ParseExpression("1 2", parser.Options{}); err == nil {
		t.Fatalf("trailing tokens must be rejected")
	}
}

func TestParseImportExport(t *testing.T) {
	script := mustParse(t, `import "lib/math" as math; export let a = 1; let b = 2; export b as c, a;`, parser.Options{})
	imp := script.Body.Statements[0].(*ast.ImportStmt)
	if imp.Alias != "math" {
		t.Fatalf("unexpected alias %q", imp.Alias)
	}
	if !script.Body.Statements[1].(*ast.VarStmt).IsExported() {
		t.Fatalf("export let should set the exported flag")
	}
	first := script.Body.Statements[3].(*ast.ExportStmt)
	second := script.Body.Statements[4].(*ast.ExportStmt)
	if first.ExportName() != "c" || second.ExportName() != "a" {
		t.Fatalf("unexpected export names %q %q", first.ExportName(), second.ExportName())
	}
}
