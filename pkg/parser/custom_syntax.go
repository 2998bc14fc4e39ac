package parser

import (
	"errors"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/runtime"
)

// parseCustomSyntax drives a host syntax: the callback names each next
// symbol and markers capture sub-expressions as inputs.
func (p *parser) parseCustomSyntax(keyTok lexer.Token, syntax *CustomSyntax) (ast.Expr, error) {
	p.advance()
	key := keyTok.Text
	segments := []string{key}
	tokens := []string{key}
	var inputs []ast.Expr
	state := runtime.UnitValue
	selfTerminated := false

	for {
		look := p.current()
		lookAhead := look.Text
		if look.Kind == lexer.TokEOF || look.Kind == tokError {
			lookAhead = ""
		}
		next, err := syntax.Parse(segments, lookAhead, &state)
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				return nil, parseErr
			}
			return nil, &ParseError{Kind: ErrCustomSyntax, Text: key, Pos: look.Pos(), Inner: err}
		}
		if next == "" {
			break
		}
		selfTerminated = false

		switch next {
		case ast.CustomMarkerIdent:
			tok, err := p.expectIdent(ErrVariableExpected)
			if err != nil {
				return nil, err
			}
			name := runtime.Intern(tok.Text)
			v := ast.NewVariable(name, tok.Span)
			v.Hash = runtime.CalcVarHash(nil, name)
			segments = append(segments, name)
			tokens = append(tokens, next)
			inputs = append(inputs, v)
		case ast.CustomMarkerSymbol:
			switch look.Kind {
			case lexer.TokSymbol, lexer.TokKeyword, lexer.TokCustom:
			default:
				if err := p.pendingError(look); err != nil {
					return nil, err
				}
				return nil, &ParseError{Kind: ErrImproperSymbol, Text: look.Syntax(), Detail: "Expecting a symbol for custom syntax '" + key + "'", Pos: look.Pos()}
			}
			p.advance()
			segments = append(segments, look.Text)
			tokens = append(tokens, next)
			inputs = append(inputs, ast.NewStringLiteral(look.Text, look.Span))
		case ast.CustomMarkerExpr:
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			segments = append(segments, next)
			tokens = append(tokens, next)
			inputs = append(inputs, expr)
		case ast.CustomMarkerBlock:
			block, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			segments = append(segments, next)
			tokens = append(tokens, next)
			inputs = append(inputs, ast.NewStmtBlockExpr(block))
			selfTerminated = true
		case ast.CustomMarkerString:
			if look.Kind != lexer.TokString {
				return nil, p.customMismatch(look, "a string", key)
			}
			p.advance()
			segments = append(segments, look.Text)
			tokens = append(tokens, next)
			inputs = append(inputs, ast.NewStringLiteral(look.Text, look.Span))
		case ast.CustomMarkerInt:
			if look.Kind != lexer.TokInt {
				return nil, p.customMismatch(look, "an integer", key)
			}
			p.advance()
			segments = append(segments, look.Text)
			tokens = append(tokens, next)
			inputs = append(inputs, ast.NewIntegerLiteral(look.Int, look.Span))
		case ast.CustomMarkerFloat:
			if look.Kind != lexer.TokFloat {
				return nil, p.customMismatch(look, "a floating-point number", key)
			}
			p.advance()
			segments = append(segments, look.Text)
			tokens = append(tokens, next)
			inputs = append(inputs, ast.NewFloatLiteral(look.Float, look.Span))
		case ast.CustomMarkerBool:
			if !look.Is("true") && !look.Is("false") {
				return nil, p.customMismatch(look, "a boolean", key)
			}
			p.advance()
			segments = append(segments, look.Text)
			tokens = append(tokens, next)
			inputs = append(inputs, ast.NewBoolLiteral(look.Text == "true", look.Span))
		default:
			if look.Text != next || look.Kind == lexer.TokString || look.Kind == lexer.TokEOF {
				if err := p.pendingError(look); err != nil {
					return nil, err
				}
				return nil, missingToken(next, "for custom syntax '"+key+"'", look.Pos())
			}
			p.advance()
			segments = append(segments, next)
			tokens = append(tokens, next)
			selfTerminated = next == "}"
		}
	}

	if syntax.ScopeMayChange {
		p.frame().dirty = true
	}
	expr := ast.NewCustomSyntaxExpr(key, inputs, tokens, p.spanFrom(keyTok.Pos()))
	expr.State = state
	expr.ScopeMayChange = syntax.ScopeMayChange
	expr.SelfTerminated = selfTerminated
	return expr, nil
}

func (p *parser) customMismatch(tok lexer.Token, want, key string) error {
	if err := p.pendingError(tok); err != nil {
		return err
	}
	if tok.Kind == lexer.TokEOF {
		return newError(ErrUnexpectedEOF, "", tok.Pos())
	}
	return &ParseError{Kind: ErrImproperSymbol, Text: tok.Syntax(), Detail: "Expecting " + want + " for custom syntax '" + key + "'", Pos: tok.Pos()}
}
