// Package parser turns Quill source into an ast.Script.
package parser

import (
	"errors"
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/runtime"
)

// CustomSyntaxFunc drives a custom syntax. It receives the symbols consumed
// so far (captured inputs appear as their marker, identifiers and literals
// as their text), the text of the look-ahead token and mutable state kept
// on the resulting node. It returns the next symbol to expect, or "" when
// the syntax is complete.
type CustomSyntaxFunc func(symbols []string, lookAhead string, state *runtime.Value) (string, error)

// CustomSyntax is a host-registered syntax introduced by a keyword.
type CustomSyntax struct {
	Parse CustomSyntaxFunc
	// ScopeMayChange marks syntaxes that declare or remove variables.
	ScopeMayChange bool
}

// VarResolver rewrites a free variable into a constant at parse time. It
// returns ok=false to leave the variable alone.
type VarResolver func(name string) (value runtime.Value, ok bool, err error)

// ScopeVar describes a binding that exists before the script runs.
type ScopeVar struct {
	Name     string
	Constant bool
}

// Options configures parsing.
type Options struct {
	// Source labels the script in diagnostics.
	Source string
	// MaxExprDepth limits expression nesting; zero means unlimited.
	MaxExprDepth int
	// MaxStringSize limits string literals; zero means unlimited.
	MaxStringSize int
	// NoFunctions rejects `fn` definitions and closures.
	NoFunctions bool
	// StrictVariables rejects references to undeclared variables.
	StrictVariables bool
	// DisallowShadowing rejects `let` of a name already declared.
	DisallowShadowing bool
	// CustomKeywords lex as TokCustom. Custom operator and syntax keys are
	// added automatically.
	CustomKeywords map[string]struct{}
	// CustomOperators maps binary operator symbols to their precedence.
	CustomOperators map[string]int
	// CustomSyntax maps introducing keywords to their drivers.
	CustomSyntax map[string]*CustomSyntax
	// DisabledSymbols lex as reserved.
	DisabledSymbols map[string]struct{}
	// OnParseVar may fold free variables into constants.
	OnParseVar VarResolver
	// Scope lists bindings pushed by the host before evaluation.
	Scope []ScopeVar
}

// tokError marks the place where the tokenizer failed.
const tokError lexer.TokenKind = -1

// frame tracks the bindings declared in one function body.
type frame struct {
	names  []string
	consts []bool
	// closure frames record free variables as captures.
	closure   bool
	externals []string
	loops     int
	// dirty disables slot hints once the scope may change behind the
	// parser's back (eval, scope-changing custom syntax).
	dirty bool
}

func (f *frame) push(name string, constant bool) {
	f.names = append(f.names, name)
	f.consts = append(f.consts, constant)
}

func (f *frame) rewind(n int) {
	f.names = f.names[:n]
	f.consts = f.consts[:n]
}

// lookup returns the distance of name from the top of the stack (1-based).
func (f *frame) lookup(name string) (int, bool) {
	for i := len(f.names) - 1; i >= 0; i-- {
		if f.names[i] == name {
			return len(f.names) - i, true
		}
	}
	return 0, false
}

func (f *frame) isConstant(name string) bool {
	for i := len(f.names) - 1; i >= 0; i-- {
		if f.names[i] == name {
			return f.consts[i]
		}
	}
	return false
}

type parser struct {
	opts   Options
	tokens []lexer.Token
	pos    int
	lexErr error

	// docs holds the doc comments preceding the token at each index.
	docs      map[int][]string
	moduleDoc []string

	frames    []*frame
	depth     int
	blocks    int
	functions []*ast.ScriptFnDef
	fnIndex   map[uint64]*ast.ScriptFnDef
}

// Parse compiles a complete script.
func Parse(source string, opts Options) (*ast.Script, error) {
	p := newParser(source, opts)
	body, err := p.parseTopLevel()
	if err != nil {
		return nil, err
	}
	return &ast.Script{Body: body, Functions: p.functions, Doc: p.moduleDoc}, nil
}

// ParseExpression compiles a single expression; statements and function
// definitions are rejected.
func ParseExpression(source string, opts Options) (*ast.Script, error) {
	opts.NoFunctions = true
	p := newParser(source, opts)
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.current(); tok.Kind != lexer.TokEOF {
		return nil, p.unexpected(tok, "end of expression")
	}
	body := ast.NewStmtBlock([]ast.Stmt{wrapExprStmt(expr)}, expr.Span())
	return &ast.Script{Body: body}, nil
}

func newParser(source string, opts Options) *parser {
	p := &parser{opts: opts, docs: make(map[int][]string), fnIndex: make(map[uint64]*ast.ScriptFnDef)}
	top := &frame{}
	for _, v := range opts.Scope {
		top.push(v.Name, v.Constant)
	}
	p.frames = []*frame{top}
	p.tokens = p.tokenize(source, ast.NoPosition, true)
	return p
}

func (p *parser) lexerOptions(start ast.Position) lexer.Options {
	keywords := make(map[string]struct{}, len(p.opts.CustomKeywords)+len(p.opts.CustomOperators)+len(p.opts.CustomSyntax))
	for k := range p.opts.CustomKeywords {
		keywords[k] = struct{}{}
	}
	for k := range p.opts.CustomOperators {
		keywords[k] = struct{}{}
	}
	for k := range p.opts.CustomSyntax {
		keywords[k] = struct{}{}
	}
	return lexer.Options{
		Source:          p.opts.Source,
		CustomKeywords:  keywords,
		DisabledSymbols: p.opts.DisabledSymbols,
		MaxStringSize:   p.opts.MaxStringSize,
		Start:           start,
	}
}

// tokenize lexes source, setting doc comments aside. A tokenizer failure
// ends the stream with a tokError token whose error is kept in lexErr.
func (p *parser) tokenize(source string, start ast.Position, top bool) []lexer.Token {
	lx := lexer.New(source, p.lexerOptions(start))
	var tokens []lexer.Token
	var pending []string
	for {
		tok, err := lx.Next()
		if err != nil {
			pos := ast.NoPosition
			var lexErr *lexer.LexError
			if errors.As(err, &lexErr) {
				pos = lexErr.Pos
			}
			p.lexErr = err
			tokens = append(tokens, lexer.Token{Kind: tokError, Span: ast.NewSpan(pos, pos)})
			return tokens
		}
		switch tok.Kind {
		case lexer.TokModuleDoc:
			if top {
				p.moduleDoc = append(p.moduleDoc, strings.TrimSpace(strings.TrimPrefix(tok.Text, "//!")))
			}
			continue
		case lexer.TokDocComment:
			if top {
				pending = append(pending, tok.Text)
			}
			continue
		}
		if len(pending) > 0 {
			p.docs[len(tokens)] = pending
			pending = nil
		}
		tokens = append(tokens, tok)
		if tok.Kind == lexer.TokEOF {
			return tokens
		}
	}
}

//-----------------------------------------------------------------------------
// Token stream
//-----------------------------------------------------------------------------

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) peekAt(offset int) lexer.Token {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

// prevEnd is the end of the most recently consumed token.
func (p *parser) prevEnd() ast.Position {
	if p.pos == 0 {
		return p.current().Span.Start
	}
	return p.tokens[p.pos-1].Span.End
}

func (p *parser) spanFrom(start ast.Position) ast.Span {
	return ast.NewSpan(start, p.prevEnd())
}

// check reports whether the current token is the symbol or keyword text.
func (p *parser) check(text string) bool {
	return p.current().Is(text)
}

// match consumes the current token if it is the symbol or keyword text.
func (p *parser) match(text string) bool {
	if p.check(text) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(text, detail string) (lexer.Token, error) {
	tok := p.current()
	if !tok.Is(text) {
		if err := p.pendingError(tok); err != nil {
			return tok, err
		}
		if tok.Kind == lexer.TokEOF {
			return tok, newError(ErrUnexpectedEOF, "", tok.Pos())
		}
		return tok, missingToken(text, detail, tok.Pos())
	}
	return p.advance(), nil
}

func (p *parser) expectIdent(kind ParseErrorKind) (lexer.Token, error) {
	tok := p.current()
	if tok.Kind != lexer.TokIdent {
		if err := p.pendingError(tok); err != nil {
			return tok, err
		}
		if tok.Kind == lexer.TokReserved {
			return tok, newError(ErrReserved, tok.Text, tok.Pos())
		}
		return tok, newError(kind, tok.Text, tok.Pos())
	}
	return p.advance(), nil
}

// pendingError returns the tokenizer error if tok marks it.
func (p *parser) pendingError(tok lexer.Token) error {
	if tok.Kind != tokError {
		return nil
	}
	return &ParseError{Kind: ErrBadInput, Pos: tok.Pos(), Inner: p.lexErr}
}

// unexpected reports tok where something else was expected.
func (p *parser) unexpected(tok lexer.Token, expecting string) error {
	if err := p.pendingError(tok); err != nil {
		return err
	}
	switch tok.Kind {
	case lexer.TokEOF:
		return newError(ErrUnexpectedEOF, "", tok.Pos())
	case lexer.TokReserved:
		return newError(ErrReserved, tok.Text, tok.Pos())
	}
	return &ParseError{Kind: ErrBadInput, Text: "Unexpected '" + tok.Syntax() + "'; expecting " + expecting, Pos: tok.Pos()}
}

//-----------------------------------------------------------------------------
// Frames and depth
//-----------------------------------------------------------------------------

func (p *parser) frame() *frame {
	return p.frames[len(p.frames)-1]
}

func (p *parser) pushFrame(closure bool) *frame {
	f := &frame{closure: closure}
	p.frames = append(p.frames, f)
	return f
}

func (p *parser) popFrame() {
	p.frames = p.frames[:len(p.frames)-1]
}

func (p *parser) enter(pos ast.Position) error {
	p.depth++
	if p.opts.MaxExprDepth > 0 && p.depth > p.opts.MaxExprDepth {
		return newError(ErrExprTooDeep, "", pos)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

// declare adds a binding to the current frame.
func (p *parser) declare(name string, constant bool, pos ast.Position) error {
	f := p.frame()
	if p.opts.DisallowShadowing {
		if _, exists := f.lookup(name); exists {
			return newError(ErrVariableExists, name, pos)
		}
	}
	f.push(name, constant)
	return nil
}

// access resolves a variable reference: a slot hint when the binding is
// known, a capture when inside a closure.
func (p *parser) access(name string, pos ast.Position) (int, bool, error) {
	f := p.frame()
	if idx, ok := f.lookup(name); ok {
		if f.dirty {
			return 0, true, nil
		}
		return idx, true, nil
	}
	if f.closure && p.declaredOutside(name) {
		for _, ext := range f.externals {
			if ext == name {
				return 0, true, nil
			}
		}
		f.externals = append(f.externals, name)
		return 0, true, nil
	}
	return 0, false, nil
}

// declaredOutside reports whether an enclosing frame reachable from a
// closure declares name.
func (p *parser) declaredOutside(name string) bool {
	for i := len(p.frames) - 2; i >= 0; i-- {
		f := p.frames[i]
		if _, ok := f.lookup(name); ok {
			return true
		}
		if !f.closure {
			return false
		}
	}
	return false
}

func wrapExprStmt(expr ast.Expr) ast.Stmt {
	if call, ok := expr.(*ast.FnCallExpr); ok {
		return ast.NewFnCallStmt(call)
	}
	return ast.NewExprStmt(expr)
}
