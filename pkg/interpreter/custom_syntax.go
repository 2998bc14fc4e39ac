package interpreter

import (
	"fmt"
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

// CustomSyntaxEval evaluates one use of a custom syntax. inputs are the
// captured sub-expressions in source order; state is whatever the parse
// callback left behind.
type CustomSyntaxEval func(ctx *EvalContext, inputs []Expression, state runtime.Value) (runtime.Value, error)

type customSyntaxDef struct {
	parse          parser.CustomSyntaxFunc
	eval           CustomSyntaxEval
	scopeMayChange bool
}

// Expression is a captured input of a custom syntax.
type Expression struct {
	expr ast.Expr
}

// Node returns the underlying syntax tree node.
func (x Expression) Node() ast.Expr { return x.expr }

// Position returns the input's source position.
func (x Expression) Position() ast.Position { return x.expr.Position() }

// VariableName returns the name captured by `$ident$`.
func (x Expression) VariableName() (string, bool) {
	if v, ok := x.expr.(*ast.Variable); ok && !v.IsQualified() {
		return v.Name, true
	}
	return "", false
}

// Literal returns the value of a literal input (`$string$`, `$int$`,
// `$float$`, `$bool$`, `$symbol$` or a constant expression).
func (x Expression) Literal() (runtime.Value, bool) {
	return literalValue(x.expr)
}

// EvalContext is handed to custom syntax evaluators and to the variable
// callbacks. It is only valid for the duration of the call.
type EvalContext struct {
	st  *evalState
	fr  *frame
	pos ast.Position
}

// Engine returns the running engine.
func (c *EvalContext) Engine() *Engine { return c.st.engine }

// Scope returns the scope of the running function (or the top level).
func (c *EvalContext) Scope() *runtime.Scope { return c.fr.scope }

// Source returns the name of the running source, empty for the main script.
func (c *EvalContext) Source() string { return c.st.source }

// Position returns the position of the construct being evaluated.
func (c *EvalContext) Position() ast.Position { return c.pos }

// CallLevel returns the current function call depth.
func (c *EvalContext) CallLevel() int { return c.st.callLevel }

// This returns the bound `this`, if any.
func (c *EvalContext) This() (runtime.Value, bool) {
	if c.fr.this == nil {
		return runtime.UnitValue, false
	}
	return c.fr.this.Flatten(), true
}

// Tag returns the evaluation-wide tag value.
func (c *EvalContext) Tag() runtime.Value { return c.st.tag }

// SetTag replaces the evaluation-wide tag value.
func (c *EvalContext) SetTag(v runtime.Value) { c.st.tag = v }

// Eval evaluates a captured input in the caller's scope. Block inputs run
// in their own block scope.
func (c *EvalContext) Eval(x Expression) (runtime.Value, error) {
	return c.st.evaluateExpression(c.fr, x.expr)
}

// EvalExpr evaluates an arbitrary expression node in the caller's scope.
func (c *EvalContext) EvalExpr(expr ast.Expr) (runtime.Value, error) {
	return c.st.evaluateExpression(c.fr, expr)
}

// CallFn calls a function with the usual dispatch rules.
func (c *EvalContext) CallFn(name string, args ...runtime.Value) (runtime.Value, error) {
	return c.st.callFnByName(c.fr, name, args, c.pos)
}

// Debugger returns the active debugger, or nil.
func (c *EvalContext) Debugger() *Debugger { return c.st.debugger }

// RegisterCustomSyntax registers a syntax described by a fixed symbol
// sequence. The first symbol is the introducing keyword; the others are
// literal symbols or `$...$` markers capturing inputs. scopeMayChange must
// be set when the evaluator declares variables in the caller's scope.
func (e *Engine) RegisterCustomSyntax(symbols []string, scopeMayChange bool, eval CustomSyntaxEval) error {
	if len(symbols) == 0 {
		return fmt.Errorf("custom syntax needs at least one symbol")
	}
	if eval == nil {
		return fmt.Errorf("custom syntax %q has no evaluator", symbols[0])
	}
	key := symbols[0]
	if err := e.checkSyntaxKey(key); err != nil {
		return err
	}
	var keywords []string
	for i, sym := range symbols[1:] {
		if strings.HasPrefix(sym, "$") && strings.HasSuffix(sym, "$") && len(sym) > 2 {
			if !isCustomMarker(sym) {
				return fmt.Errorf("custom syntax %q: unknown marker %q at position %d", key, sym, i+1)
			}
			continue
		}
		switch {
		case sym == "":
			return fmt.Errorf("custom syntax %q: empty symbol at position %d", key, i+1)
		case lexer.IsKeyword(sym), lexer.IsStandardSymbol(sym), lexer.IsValidIdentifier(sym):
		default:
			keywords = append(keywords, sym)
		}
	}
	segments := append([]string(nil), symbols...)
	parse := func(consumed []string, _ string, _ *runtime.Value) (string, error) {
		if len(consumed) < len(segments) {
			return segments[len(consumed)], nil
		}
		return "", nil
	}
	for _, kw := range keywords {
		e.customKeywords[kw] = struct{}{}
	}
	e.customSyntax[key] = &customSyntaxDef{parse: parse, eval: eval, scopeMayChange: scopeMayChange}
	e.logger.Debug("custom syntax registered", "key", key, "symbols", strings.Join(symbols, " "))
	return nil
}

// RegisterCustomSyntaxRaw registers a syntax whose shape is decided by parse
// as it goes. Symbols parse asks for that are not standard must already be
// registered as custom keywords via RegisterCustomKeyword.
func (e *Engine) RegisterCustomSyntaxRaw(key string, parse parser.CustomSyntaxFunc, scopeMayChange bool, eval CustomSyntaxEval) error {
	if parse == nil || eval == nil {
		return fmt.Errorf("custom syntax %q needs both a parser and an evaluator", key)
	}
	if err := e.checkSyntaxKey(key); err != nil {
		return err
	}
	e.customSyntax[key] = &customSyntaxDef{parse: parse, eval: eval, scopeMayChange: scopeMayChange}
	e.logger.Debug("raw custom syntax registered", "key", key)
	return nil
}

// RegisterCustomKeyword makes a non-standard symbol lex as a single token.
func (e *Engine) RegisterCustomKeyword(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("empty custom keyword")
	}
	if (lexer.IsKeyword(symbol) || lexer.IsStandardSymbol(symbol)) && !e.isDisabled(symbol) {
		return fmt.Errorf("%q is already a keyword or symbol", symbol)
	}
	e.customKeywords[symbol] = struct{}{}
	return nil
}

// RegisterCustomOperator declares a binary operator. The operator calls the
// function of the same name with two arguments. Higher precedence binds
// tighter; the standard operators range from 10 (`??`) to 210 (shifts).
func (e *Engine) RegisterCustomOperator(symbol string, precedence int) error {
	if symbol == "" {
		return fmt.Errorf("empty operator")
	}
	if precedence <= 0 {
		return fmt.Errorf("operator %q: precedence must be positive", symbol)
	}
	if (lexer.IsKeyword(symbol) || lexer.IsStandardSymbol(symbol)) && !e.isDisabled(symbol) {
		return fmt.Errorf("%q is already a keyword or operator", symbol)
	}
	if _, ok := e.customSyntax[symbol]; ok {
		return fmt.Errorf("%q is already a custom syntax", symbol)
	}
	e.customOperators[symbol] = precedence
	e.logger.Debug("custom operator registered", "symbol", symbol, "precedence", precedence)
	return nil
}

// DisableSymbol makes a keyword or operator unavailable to scripts. A
// disabled standard symbol may then be reused as a custom operator or
// syntax.
func (e *Engine) DisableSymbol(symbol string) {
	e.disabledSymbols[symbol] = struct{}{}
}

func (e *Engine) isDisabled(symbol string) bool {
	_, ok := e.disabledSymbols[symbol]
	return ok
}

func (e *Engine) checkSyntaxKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("empty custom syntax key")
	case isCustomMarker(key):
		return fmt.Errorf("custom syntax cannot start with the marker %q", key)
	case (lexer.IsKeyword(key) || lexer.IsStandardSymbol(key)) && !e.isDisabled(key):
		return fmt.Errorf("%q is already a keyword or symbol", key)
	case e.customOperators[key] > 0:
		return fmt.Errorf("%q is already a custom operator", key)
	}
	if !lexer.IsValidIdentifier(key) {
		e.customKeywords[key] = struct{}{}
	}
	return nil
}

func isCustomMarker(s string) bool {
	switch s {
	case ast.CustomMarkerExpr, ast.CustomMarkerBlock, ast.CustomMarkerIdent, ast.CustomMarkerSymbol,
		ast.CustomMarkerString, ast.CustomMarkerInt, ast.CustomMarkerFloat, ast.CustomMarkerBool:
		return true
	}
	return false
}

// literalValue returns the value of a literal node.
func literalValue(expr ast.Expr) (runtime.Value, bool) {
	switch e := expr.(type) {
	case *ast.UnitLiteral:
		return runtime.UnitValue, true
	case *ast.BoolLiteral:
		return runtime.Bool(e.Value), true
	case *ast.IntegerLiteral:
		return runtime.Int(e.Value), true
	case *ast.FloatLiteral:
		return runtime.Float(e.Value), true
	case *ast.CharLiteral:
		return runtime.Char(e.Value), true
	case *ast.StringLiteral:
		return runtime.String(e.Value), true
	case *ast.ConstantExpr:
		if v, ok := e.Value.(runtime.Value); ok {
			return v.Clone(), true
		}
	}
	return runtime.UnitValue, false
}

func (st *evalState) evaluateCustomSyntax(fr *frame, expr *ast.CustomSyntaxExpr) (runtime.Value, error) {
	def, ok := st.engine.customSyntax[expr.Key]
	if !ok {
		return runtime.UnitValue, runtime.NewEvalError(runtime.ErrCustomSyntax).
			WithMessage("Invalid custom syntax: %s", expr.Key).At(expr.Position())
	}
	inputs := make([]Expression, len(expr.Inputs))
	for i, in := range expr.Inputs {
		inputs[i] = Expression{expr: in}
	}
	state := runtime.UnitValue
	if v, ok := expr.State.(runtime.Value); ok {
		state = v
	}
	ctx := &EvalContext{st: st, fr: fr, pos: expr.Position()}
	v, err := def.eval(ctx, inputs, state)
	if err != nil {
		return runtime.UnitValue, runtime.AsEvalError(err, expr.Position())
	}
	return v, nil
}
