package parser

import (
	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/runtime"
)

func (p *parser) parseArrayLiteral() (ast.Expr, error) {
	start := p.advance().Pos()
	var elements []ast.Expr
	for !p.check("]") {
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
		if !p.match(",") {
			break
		}
	}
	if _, err := p.expect("]", "to end this array literal"); err != nil {
		return nil, err
	}
	return ast.NewArrayLiteral(elements, p.spanFrom(start)), nil
}

func (p *parser) parseMapLiteral() (ast.Expr, error) {
	start := p.advance().Pos()
	var entries []ast.MapEntry
	seen := make(map[string]struct{})
	for !p.check("}") {
		keyTok := p.current()
		var key string
		switch keyTok.Kind {
		case lexer.TokIdent, lexer.TokString:
			key = keyTok.Text
		case lexer.TokKeyword, lexer.TokCustom:
			key = keyTok.Text
		default:
			if err := p.pendingError(keyTok); err != nil {
				return nil, err
			}
			if keyTok.Kind == lexer.TokEOF {
				return nil, missingToken("}", "to end this object map literal", keyTok.Pos())
			}
			return nil, newError(ErrPropertyExpected, keyTok.Text, keyTok.Pos())
		}
		p.advance()
		if _, dup := seen[key]; dup {
			return nil, newError(ErrDuplicatedProperty, key, keyTok.Pos())
		}
		seen[key] = struct{}{}
		if _, err := p.expect(":", "to follow the property '"+key+"' in this object map literal"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		entries = append(entries, ast.MapEntry{Key: runtime.Intern(key), Value: value, Pos: keyTok.Pos()})
		if !p.match(",") {
			break
		}
	}
	if _, err := p.expect("}", "to end this object map literal"); err != nil {
		return nil, err
	}
	return ast.NewMapLiteral(entries, p.spanFrom(start)), nil
}

// parseInterpolated re-lexes every `${...}` segment of a backtick string
// at its original position.
func (p *parser) parseInterpolated(tok lexer.Token) (ast.Expr, error) {
	p.advance()
	var parts []ast.Expr
	hasExpr := false
	for _, part := range tok.Parts {
		if !part.Expr {
			parts = append(parts, ast.NewStringLiteral(part.Text, ast.NewSpan(part.Pos, part.Pos)))
			continue
		}
		hasExpr = true
		expr, err := p.parseEmbedded(part)
		if err != nil {
			return nil, err
		}
		parts = append(parts, expr)
	}
	if !hasExpr {
		text := ""
		for _, part := range tok.Parts {
			text += part.Text
		}
		return ast.NewStringLiteral(text, tok.Span), nil
	}
	return ast.NewInterpolatedString(parts, tok.Span), nil
}

func (p *parser) parseEmbedded(part lexer.InterpPart) (ast.Expr, error) {
	savedTokens, savedPos := p.tokens, p.pos
	defer func() {
		p.tokens, p.pos = savedTokens, savedPos
	}()
	p.tokens = p.tokenize(part.Text, part.Pos, false)
	p.pos = 0
	block, err := p.parseStatementsUntilEOF()
	if err != nil {
		return nil, err
	}
	if len(block.Statements) == 1 {
		if es, ok := block.Statements[0].(*ast.ExprStmt); ok {
			return es.Expr, nil
		}
		if cs, ok := block.Statements[0].(*ast.FnCallStmt); ok {
			return cs.Call, nil
		}
	}
	return ast.NewStmtBlockExpr(block), nil
}

// constantValue converts a literal expression into a value. Only scalar
// literals and constants are accepted.
func constantValue(expr ast.Expr) (runtime.Value, bool) {
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
			return v, true
		}
	}
	return runtime.UnitValue, false
}

// literalInt reports the value of an integer literal, including a folded
// negative one.
func literalInt(expr ast.Expr) (int64, bool) {
	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		return e.Value, true
	case *ast.ConstantExpr:
		if v, ok := e.Value.(runtime.Value); ok {
			return v.AsInt()
		}
	}
	return 0, false
}
