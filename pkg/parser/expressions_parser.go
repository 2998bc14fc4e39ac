package parser

import (
	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/runtime"
)

// Binary operator precedences. Higher binds tighter.
var binaryPrecedence = map[string]int{
	"??": 10,
	"||": 30, "|": 30, "^": 30,
	"&&": 60, "&": 60,
	"==": 90, "!=": 90,
	"in": 110, "!in": 110,
	"<": 130, ">": 130, "<=": 130, ">=": 130,
	"..": 140, "..=": 140,
	"+": 150, "-": 150,
	"*": 180, "/": 180, "%": 180,
	"**": 190,
	"<<": 210, ">>": 210,
}

// Precedence used for switch case values, which stop at `|` and `=>`.
const casePrecedence = 31

func (p *parser) precedenceOf(tok lexer.Token) (int, bool) {
	switch tok.Kind {
	case lexer.TokSymbol, lexer.TokKeyword:
		prec, ok := binaryPrecedence[tok.Text]
		return prec, ok
	case lexer.TokCustom:
		prec, ok := p.opts.CustomOperators[tok.Text]
		return prec, ok && prec > 0
	}
	return 0, false
}

func (p *parser) parseExpr() (ast.Expr, error) {
	return p.parseBinary(1)
}

func (p *parser) parseBinary(minPrec int) (ast.Expr, error) {
	start := p.current().Pos()
	if err := p.enter(start); err != nil {
		return nil, err
	}
	defer p.leave()

	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		opTok := p.current()
		prec, ok := p.precedenceOf(opTok)
		if !ok || prec < minPrec {
			return lhs, nil
		}
		p.advance()
		next := prec + 1
		if opTok.Text == "**" {
			next = prec
		}
		rhs, err := p.parseBinary(next)
		if err != nil {
			return nil, err
		}
		lhs, err = p.makeBinary(opTok, lhs, rhs, p.spanFrom(start))
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) makeBinary(op lexer.Token, lhs, rhs ast.Expr, span ast.Span) (ast.Expr, error) {
	if op.Kind == lexer.TokCustom {
		call := ast.NewFnCallExpr(op.Text, []ast.Expr{lhs, rhs}, span)
		call.Hash = runtime.CalcFnHash(nil, op.Text, 2)
		return call, nil
	}
	switch op.Text {
	case "&&":
		return ast.NewAndExpr(lhs, rhs, span), nil
	case "||":
		return ast.NewOrExpr(lhs, rhs, span), nil
	case "??":
		return ast.NewCoalesceExpr(lhs, rhs, span), nil
	case "in", "!in":
		if err := checkInOperand(rhs); err != nil {
			return nil, err
		}
		contains := ast.NewFnCallExpr("contains", []ast.Expr{rhs, lhs}, span)
		contains.Hash = runtime.CalcFnHash(nil, "contains", 2)
		if op.Text == "in" {
			return contains, nil
		}
		return operatorCall("!", []ast.Expr{contains}, span), nil
	}
	return operatorCall(op.Text, []ast.Expr{lhs, rhs}, span), nil
}

// checkInOperand rejects right-hand sides of `in` that can never contain
// anything.
func checkInOperand(rhs ast.Expr) error {
	switch rhs.(type) {
	case *ast.UnitLiteral, *ast.BoolLiteral, *ast.FloatLiteral, *ast.CharLiteral:
		return newError(ErrMalformedInExpr, "'in' expression expects a string, array or object map", rhs.Position())
	}
	return nil
}

func operatorCall(op string, args []ast.Expr, span ast.Span) *ast.FnCallExpr {
	call := ast.NewFnCallExpr(op, args, span)
	call.OpToken = op
	call.Hash = runtime.CalcFnHash(nil, op, len(args))
	return call
}

func (p *parser) parseUnary() (ast.Expr, error) {
	tok := p.current()
	if tok.Is("-") || tok.Is("+") || tok.Is("!") {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		span := p.spanFrom(tok.Pos())
		switch tok.Text {
		case "-":
			switch lit := operand.(type) {
			case *ast.IntegerLiteral:
				return ast.NewIntegerLiteral(-lit.Value, span), nil
			case *ast.FloatLiteral:
				return ast.NewFloatLiteral(-lit.Value, span), nil
			}
		case "+":
			switch operand.(type) {
			case *ast.IntegerLiteral, *ast.FloatLiteral:
				ast.SetSpan(operand, span)
				return operand, nil
			}
		case "!":
			if lit, ok := operand.(*ast.BoolLiteral); ok {
				return ast.NewBoolLiteral(!lit.Value, span), nil
			}
		}
		return operatorCall(tok.Text, []ast.Expr{operand}, span), nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary followed by any `.`, `?.`, `[` and `?[`
// links, gathered into a single chain.
func (p *parser) parsePostfix() (ast.Expr, error) {
	start := p.current().Pos()
	root, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	var links []ast.ChainLink
	for {
		tok := p.current()
		var flags ast.ASTFlags
		switch {
		case tok.Is(".") || tok.Is("?."):
			if tok.Text == "?." {
				flags = ast.FlagNegated
			}
			p.advance()
			link, err := p.parseDotLink(flags)
			if err != nil {
				return nil, err
			}
			links = append(links, link)
		case tok.Is("[") || tok.Is("?["):
			if tok.Text == "?[" {
				flags = ast.FlagNegated
			}
			p.advance()
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := checkIndexExpr(index); err != nil {
				return nil, err
			}
			if _, err := p.expect("]", "to close the indexing expression"); err != nil {
				return nil, err
			}
			link := ast.NewIndexLink(index, p.spanFrom(tok.Pos()))
			link.Flags = flags
			links = append(links, link)
		default:
			if len(links) == 0 {
				return root, nil
			}
			return ast.NewChainExpr(root, links, p.spanFrom(start)), nil
		}
	}
}

func checkIndexExpr(index ast.Expr) error {
	switch index.(type) {
	case *ast.FloatLiteral:
		return newError(ErrMalformedIndexExpr, "Array, string or bit-field index expects an integer", index.Position())
	case *ast.UnitLiteral, *ast.BoolLiteral, *ast.CharLiteral:
		return newError(ErrMalformedIndexExpr, "Only arrays, object maps and strings can be indexed", index.Position())
	}
	return nil
}

func (p *parser) parseDotLink(flags ast.ASTFlags) (ast.ChainLink, error) {
	nameTok := p.current()
	if nameTok.Kind != lexer.TokIdent {
		if err := p.pendingError(nameTok); err != nil {
			return nil, err
		}
		if nameTok.Kind == lexer.TokReserved {
			return nil, newError(ErrReserved, nameTok.Text, nameTok.Pos())
		}
		return nil, newError(ErrPropertyExpected, nameTok.Text, nameTok.Pos())
	}
	p.advance()
	name := runtime.Intern(nameTok.Text)
	if p.check("(") {
		args, err := p.parseCallArgs(name)
		if err != nil {
			return nil, err
		}
		span := p.spanFrom(nameTok.Pos())
		call := ast.NewFnCallExpr(name, args, span)
		call.Hash = runtime.CalcFnHash(nil, name, len(args)+1)
		link := ast.NewMethodLink(call, span)
		link.Flags = flags
		return link, nil
	}
	link := ast.NewPropertyLink(name, nameTok.Span)
	link.GetterHash = runtime.CalcFnHash(nil, link.Getter, 1)
	link.SetterHash = runtime.CalcFnHash(nil, link.Setter, 2)
	link.Flags = flags
	return link, nil
}

func (p *parser) parseCallArgs(name string) ([]ast.Expr, error) {
	if _, err := p.expect("(", "to start the argument list of '"+name+"'"); err != nil {
		return nil, err
	}
	var args []ast.Expr
	for !p.check(")") {
		if p.current().Kind == lexer.TokEOF {
			return nil, missingToken(")", "to close the arguments list of this function call '"+name+"'", p.current().Pos())
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.match(",") {
			break
		}
	}
	if _, err := p.expect(")", "to close the arguments list of this function call '"+name+"'"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	tok := p.current()
	switch tok.Kind {
	case lexer.TokInt:
		p.advance()
		return ast.NewIntegerLiteral(tok.Int, tok.Span), nil
	case lexer.TokFloat:
		p.advance()
		return ast.NewFloatLiteral(tok.Float, tok.Span), nil
	case lexer.TokChar:
		p.advance()
		return ast.NewCharLiteral(tok.Char, tok.Span), nil
	case lexer.TokString:
		p.advance()
		return ast.NewStringLiteral(tok.Text, tok.Span), nil
	case lexer.TokInterpolated:
		return p.parseInterpolated(tok)
	case lexer.TokIdent:
		return p.parseIdentifier()
	case lexer.TokCustom:
		if syntax, ok := p.opts.CustomSyntax[tok.Text]; ok {
			return p.parseCustomSyntax(tok, syntax)
		}
		return nil, newError(ErrImproperSymbol, tok.Text, tok.Pos())
	}

	switch {
	case tok.Is("true"), tok.Is("false"):
		p.advance()
		return ast.NewBoolLiteral(tok.Text == "true", tok.Span), nil
	case tok.Is("("):
		p.advance()
		if p.match(")") {
			return ast.NewUnitLiteral(p.spanFrom(tok.Pos())), nil
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")", "for a matching ( in this expression"); err != nil {
			return nil, err
		}
		return inner, nil
	case tok.Is("["):
		return p.parseArrayLiteral()
	case tok.Is("#{"):
		return p.parseMapLiteral()
	case tok.Is("{"):
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return ast.NewStmtBlockExpr(block), nil
	case tok.Is("if"), tok.Is("switch"), tok.Is("while"), tok.Is("loop"), tok.Is("do"), tok.Is("for"):
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return ast.NewStmtBlockExpr(ast.NewStmtBlock([]ast.Stmt{stmt}, stmt.Span())), nil
	case tok.Is("|"), tok.Is("||"):
		return p.parseClosure()
	case tok.Is("this"):
		p.advance()
		return ast.NewThisExpr(tok.Span), nil
	case tok.Is("fn"):
		if p.opts.NoFunctions {
			return nil, newError(ErrReserved, tok.Text, tok.Pos())
		}
		return nil, newError(ErrWrongFnDefinition, "", tok.Pos())
	}

	if err := p.pendingError(tok); err != nil {
		return nil, err
	}
	switch tok.Kind {
	case lexer.TokEOF:
		return nil, newError(ErrUnexpectedEOF, "", tok.Pos())
	case lexer.TokReserved:
		return nil, newError(ErrReserved, tok.Text, tok.Pos())
	}
	return nil, newError(ErrExprExpected, "an", tok.Pos())
}

// parseIdentifier parses a possibly qualified variable or function call.
func (p *parser) parseIdentifier() (ast.Expr, error) {
	first := p.advance()
	path := []string{runtime.Intern(first.Text)}
	for p.check("::") {
		p.advance()
		seg, err := p.expectIdent(ErrVariableExpected)
		if err != nil {
			return nil, err
		}
		path = append(path, runtime.Intern(seg.Text))
	}
	name := path[len(path)-1]
	var ns *ast.Namespace
	if len(path) > 1 {
		ns = ast.NewNamespace(path[:len(path)-1], first.Pos())
	}

	if p.check("(") {
		args, err := p.parseCallArgs(name)
		if err != nil {
			return nil, err
		}
		call := ast.NewFnCallExpr(name, args, p.spanFrom(first.Pos()))
		call.Namespace = ns
		if ns != nil {
			call.Hash = runtime.CalcFnHash(ns.Path, name, len(args))
		} else {
			call.Hash = runtime.CalcFnHash(nil, name, len(args))
			if name == "eval" {
				p.frame().dirty = true
			}
			// A call through a variable holding a function pointer needs the
			// variable captured inside closures.
			if _, local := p.frame().lookup(name); !local && p.frame().closure && p.declaredOutside(name) {
				if _, _, err := p.access(name, first.Pos()); err != nil {
					return nil, err
				}
			}
		}
		return call, nil
	}

	span := p.spanFrom(first.Pos())
	v := ast.NewVariable(name, span)
	if ns != nil {
		v.Namespace = ns
		v.Hash = runtime.CalcVarHash(ns.Path, name)
		return v, nil
	}
	v.Hash = runtime.CalcVarHash(nil, name)
	if _, local := p.frame().lookup(name); !local && !p.declaredOutside(name) && p.opts.OnParseVar != nil {
		value, ok, err := p.opts.OnParseVar(name)
		if err != nil {
			return nil, &ParseError{Kind: ErrVariableResolver, Text: name, Pos: first.Pos(), Inner: err}
		}
		if ok {
			return ast.NewConstantExpr(value, span), nil
		}
	}
	idx, found, err := p.access(name, first.Pos())
	if err != nil {
		return nil, err
	}
	if !found && p.opts.StrictVariables {
		return nil, newError(ErrVariableUndefined, name, first.Pos())
	}
	v.Index = idx
	return v, nil
}
