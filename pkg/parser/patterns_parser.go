package parser

import (
	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/runtime"
)

// parseSwitch compiles the arms of a switch into a case table: literal
// values are hashed, integer ranges are listed in order and `_` becomes
// the default.
func (p *parser) parseSwitch() (ast.Stmt, error) {
	kw := p.advance()
	scrutinee, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("{", "to start a switch block"); err != nil {
		return nil, err
	}
	cases := ast.NewSwitchCases()
	for !p.check("}") {
		tok := p.current()
		if err := p.pendingError(tok); err != nil {
			return nil, err
		}
		if tok.Kind == lexer.TokEOF {
			return nil, missingToken("}", "to end this switch block", tok.Pos())
		}
		if cases.Default >= 0 {
			return nil, newError(ErrWrongSwitchDefaultCase, "", tok.Pos())
		}
		blockBody, err := p.parseSwitchArm(cases)
		if err != nil {
			return nil, err
		}
		if p.match(",") || p.check("}") || blockBody {
			continue
		}
		if err := p.pendingError(p.current()); err != nil {
			return nil, err
		}
		return nil, missingToken(",", "to separate the items of this switch block", p.current().Pos())
	}
	p.advance()
	return ast.NewSwitchStmt(scrutinee, cases, p.spanFrom(kw.Pos())), nil
}

// parseSwitchArm adds one arm to cases and reports whether its body was a
// block.
func (p *parser) parseSwitchArm(cases *ast.SwitchCases) (bool, error) {
	tok := p.current()
	isDefault := tok.Kind == lexer.TokIdent && tok.Text == "_"
	var values []ast.Expr
	if isDefault {
		p.advance()
	} else {
		for {
			value, err := p.parseBinary(casePrecedence)
			if err != nil {
				return false, err
			}
			values = append(values, value)
			if !p.match("|") {
				break
			}
		}
	}

	var guard ast.Expr
	if ifTok := p.current(); p.match("if") {
		if isDefault {
			return false, newError(ErrWrongSwitchCaseCondition, "", ifTok.Pos())
		}
		var err error
		if guard, err = p.parseExpr(); err != nil {
			return false, err
		}
	}
	if _, err := p.expect("=>", "in this switch case"); err != nil {
		return false, err
	}
	body, isBlock, err := p.parseArmBody()
	if err != nil {
		return false, err
	}

	if isDefault {
		cases.Default = len(cases.Expressions)
		cases.Expressions = append(cases.Expressions, ast.ConditionalExpr{Expr: body})
		return isBlock, nil
	}
	for _, value := range values {
		index := len(cases.Expressions)
		if rc, ok := rangeCase(value); ok {
			rc.Index = index
			cases.Ranges = append(cases.Ranges, rc)
			cases.Expressions = append(cases.Expressions, ast.ConditionalExpr{Condition: guard, Expr: body})
			continue
		}
		constant, ok := constantValue(value)
		if !ok {
			return false, newError(ErrWrongSwitchCaseValue, describeCase(value), value.Position())
		}
		hash, ok := runtime.HashValue(constant)
		if !ok {
			return false, newError(ErrWrongSwitchCaseValue, constant.TypeName(), value.Position())
		}
		cases.Cases[hash] = append(cases.Cases[hash], index)
		cases.Expressions = append(cases.Expressions, ast.ConditionalExpr{Condition: guard, Expr: body, Value: constant})
	}
	return isBlock, nil
}

// parseArmBody parses the expression after `=>`. Control-flow statements
// are allowed in place of an expression.
func (p *parser) parseArmBody() (ast.Expr, bool, error) {
	tok := p.current()
	switch {
	case tok.Is("{"):
		block, err := p.parseBlock()
		if err != nil {
			return nil, false, err
		}
		return ast.NewStmtBlockExpr(block), true, nil
	case tok.Is("return"), tok.Is("throw"), tok.Is("break"), tok.Is("continue"):
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, false, err
		}
		return ast.NewStmtBlockExpr(ast.NewStmtBlock([]ast.Stmt{stmt}, stmt.Span())), false, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	return expr, false, nil
}

// rangeCase recognizes `a..b` and `a..=b` with integer literal ends.
func rangeCase(expr ast.Expr) (ast.RangeCase, bool) {
	call, ok := expr.(*ast.FnCallExpr)
	if !ok || (call.OpToken != ".." && call.OpToken != "..=") || len(call.Args) != 2 {
		return ast.RangeCase{}, false
	}
	start, ok := literalInt(call.Args[0])
	if !ok {
		return ast.RangeCase{}, false
	}
	end, ok := literalInt(call.Args[1])
	if !ok {
		return ast.RangeCase{}, false
	}
	return ast.RangeCase{Start: start, End: end, Inclusive: call.OpToken == "..="}, true
}

func describeCase(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Variable:
		return e.Name
	case *ast.FnCallExpr:
		return e.Name + "(...)"
	default:
		return string(expr.NodeType())
	}
}
