package parser

import (
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/runtime"
)

// parseFnDef parses `[private] fn name(params) { body }` and records the
// definition on the parser.
func (p *parser) parseFnDef() error {
	startIdx := p.pos
	first := p.current()
	if p.opts.NoFunctions {
		return newError(ErrReserved, first.Text, first.Pos())
	}
	var flags ast.ASTFlags
	if p.match("private") {
		flags |= ast.FlagPrivate
		if !p.check("fn") {
			return missingToken("fn", "to follow 'private'", p.current().Pos())
		}
	}
	fnTok := p.advance()
	if !p.atGlobalLevel() {
		return newError(ErrWrongFnDefinition, "", fnTok.Pos())
	}

	nameTok := p.current()
	if nameTok.Kind != lexer.TokIdent {
		if err := p.pendingError(nameTok); err != nil {
			return err
		}
		if nameTok.Kind == lexer.TokReserved {
			return newError(ErrReserved, nameTok.Text, nameTok.Pos())
		}
		return newError(ErrFnMissingName, "", nameTok.Pos())
	}
	p.advance()
	name := runtime.Intern(nameTok.Text)

	if !p.check("(") {
		return newError(ErrFnMissingParams, name, p.current().Pos())
	}
	p.advance()
	var params []string
	for !p.check(")") {
		paramTok := p.current()
		if paramTok.Kind != lexer.TokIdent {
			if err := p.pendingError(paramTok); err != nil {
				return err
			}
			return missingToken(")", "to close the parameters list of function '"+name+"'", paramTok.Pos())
		}
		p.advance()
		for _, existing := range params {
			if existing == paramTok.Text {
				return &ParseError{Kind: ErrFnDuplicatedParam, Text: name, Detail: paramTok.Text, Pos: paramTok.Pos()}
			}
		}
		params = append(params, runtime.Intern(paramTok.Text))
		if !p.match(",") {
			break
		}
	}
	if _, err := p.expect(")", "to close the parameters list of function '"+name+"'"); err != nil {
		return err
	}

	hash := runtime.CalcFnHash(nil, name, len(params))
	if _, exists := p.fnIndex[hash]; exists {
		return &ParseError{Kind: ErrFnDuplicatedDefinition, Text: name, Detail: strconv.Itoa(len(params)), Pos: nameTok.Pos()}
	}

	if !p.check("{") {
		if err := p.pendingError(p.current()); err != nil {
			return err
		}
		return newError(ErrFnMissingBody, name, p.current().Pos())
	}
	f := p.pushFrame(false)
	for _, param := range params {
		f.push(param, false)
	}
	body, err := p.parseBlock()
	p.popFrame()
	if err != nil {
		return err
	}

	def := ast.NewScriptFnDef(name, params, body, p.spanFrom(first.Pos()))
	def.Flags = flags
	def.Comments = docLines(p.docs[startIdx])
	p.functions = append(p.functions, def)
	p.fnIndex[hash] = def
	return nil
}

// parseClosure parses `|params| body`. The closure is lifted into an
// anonymous function whose leading parameters receive the captured
// variables; captured variables are shared before the closure is created.
func (p *parser) parseClosure() (ast.Expr, error) {
	open := p.advance()
	if p.opts.NoFunctions {
		return nil, &ParseError{Kind: ErrBadInput, Text: "Anonymous functions are not allowed", Pos: open.Pos()}
	}
	var params []string
	if open.Text == "|" {
		for !p.check("|") {
			paramTok, err := p.expectIdent(ErrVariableExpected)
			if err != nil {
				return nil, err
			}
			for _, existing := range params {
				if existing == paramTok.Text {
					return nil, &ParseError{Kind: ErrFnDuplicatedParam, Text: "anonymous", Detail: paramTok.Text, Pos: paramTok.Pos()}
				}
			}
			params = append(params, runtime.Intern(paramTok.Text))
			if !p.match(",") {
				break
			}
		}
		if _, err := p.expect("|", "to close the parameters list of anonymous function"); err != nil {
			return nil, err
		}
	}

	f := p.pushFrame(true)
	for _, param := range params {
		f.push(param, false)
	}
	body, err := p.parseExpr()
	p.popFrame()
	if err != nil {
		return nil, err
	}
	span := p.spanFrom(open.Pos())

	var block *ast.StmtBlock
	if be, ok := body.(*ast.StmtBlockExpr); ok {
		block = be.Block
	} else {
		block = ast.NewStmtBlock([]ast.Stmt{wrapExprStmt(body)}, body.Span())
	}
	captures := f.externals
	allParams := make([]string, 0, len(captures)+len(params))
	allParams = append(allParams, captures...)
	allParams = append(allParams, params...)
	def := ast.NewScriptFnDef(ast.AnonymousFnPrefix+strings.ToLower(ulid.Make().String()), allParams, block, span)
	p.functions = append(p.functions, def)

	vars := make([]*ast.Variable, 0, len(captures))
	for _, name := range captures {
		idx, _, err := p.access(name, open.Pos())
		if err != nil {
			return nil, err
		}
		v := ast.NewVariable(name, span)
		v.Index = idx
		v.Hash = runtime.CalcVarHash(nil, name)
		vars = append(vars, v)
	}
	closure := ast.NewClosureExpr(def, vars, span)
	if len(captures) == 0 {
		return closure, nil
	}
	share := ast.NewShareStmt(append([]string(nil), captures...), span)
	return ast.NewStmtBlockExpr(ast.NewStmtBlock([]ast.Stmt{share, ast.NewExprStmt(closure)}, span)), nil
}

// docLines strips comment markers from doc comments.
func docLines(raw []string) []string {
	var out []string
	for _, text := range raw {
		switch {
		case strings.HasPrefix(text, "///"):
			out = append(out, strings.TrimSpace(strings.TrimPrefix(text, "///")))
		case strings.HasPrefix(text, "/**"):
			body := strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")
			for _, line := range strings.Split(body, "\n") {
				line = strings.TrimSpace(line)
				line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
				if line != "" {
					out = append(out, line)
				}
			}
		}
	}
	return out
}
