package parser

import (
	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/runtime"
)

// Compound assignment tokens and the binary operator each falls back to.
var opAssignments = map[string]string{
	"+=":  "+",
	"-=":  "-",
	"*=":  "*",
	"/=":  "/",
	"%=":  "%",
	"**=": "**",
	"<<=": "<<",
	">>=": ">>",
	"&=":  "&",
	"|=":  "|",
	"^=":  "^",
	"??=": "??",
}

func (p *parser) atGlobalLevel() bool {
	return len(p.frames) == 1 && p.blocks == 0
}

func (p *parser) parseTopLevel() (*ast.StmtBlock, error) {
	start := p.current().Pos()
	var stmts []ast.Stmt
	for p.current().Kind != lexer.TokEOF {
		parsed, err := p.parseStatementInBlock("")
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, parsed...)
	}
	if err := p.pendingError(p.current()); err != nil {
		return nil, err
	}
	return ast.NewStmtBlock(stmts, p.spanFrom(start)), nil
}

// parseStatementsUntilEOF parses a nested token stream as a block.
func (p *parser) parseStatementsUntilEOF() (*ast.StmtBlock, error) {
	f := p.frame()
	mark := len(f.names)
	p.blocks++
	defer func() {
		p.blocks--
		f.rewind(mark)
	}()
	start := p.current().Pos()
	var stmts []ast.Stmt
	for p.current().Kind != lexer.TokEOF {
		if err := p.pendingError(p.current()); err != nil {
			return nil, err
		}
		parsed, err := p.parseStatementInBlock("")
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, parsed...)
	}
	return ast.NewStmtBlock(stmts, p.spanFrom(start)), nil
}

func (p *parser) parseBlock() (*ast.StmtBlock, error) {
	open, err := p.expect("{", "to start a statement block")
	if err != nil {
		return nil, err
	}
	if err := p.enter(open.Pos()); err != nil {
		return nil, err
	}
	defer p.leave()

	f := p.frame()
	mark := len(f.names)
	p.blocks++
	defer func() {
		p.blocks--
		f.rewind(mark)
	}()

	var stmts []ast.Stmt
	for !p.check("}") {
		tok := p.current()
		if err := p.pendingError(tok); err != nil {
			return nil, err
		}
		if tok.Kind == lexer.TokEOF {
			return nil, missingToken("}", "to end this statement block", tok.Pos())
		}
		parsed, err := p.parseStatementInBlock("}")
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, parsed...)
	}
	p.advance()
	return ast.NewStmtBlock(stmts, p.spanFrom(open.Pos())), nil
}

// parseStatementInBlock parses one statement, or the several produced by an
// `export` list, together with its terminator. Function definitions are
// recorded on the parser and yield no statement.
func (p *parser) parseStatementInBlock(closer string) ([]ast.Stmt, error) {
	tok := p.current()
	switch {
	case tok.Is("fn"), tok.Is("private"):
		if err := p.parseFnDef(); err != nil {
			return nil, err
		}
		return nil, nil
	case tok.Is("export"):
		stmts, err := p.parseExport()
		if err != nil {
			return nil, err
		}
		if err := p.terminate(stmts[len(stmts)-1], closer); err != nil {
			return nil, err
		}
		return stmts, nil
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if err := p.terminate(stmt, closer); err != nil {
		return nil, err
	}
	return []ast.Stmt{stmt}, nil
}

// terminate consumes the `;` after a statement. Statements ending in a
// block need none, and neither does the last statement before closer.
func (p *parser) terminate(stmt ast.Stmt, closer string) error {
	if p.match(";") {
		return nil
	}
	if isSelfTerminated(stmt) {
		return nil
	}
	tok := p.current()
	if tok.Kind == lexer.TokEOF || (closer != "" && tok.Is(closer)) {
		return nil
	}
	if err := p.pendingError(tok); err != nil {
		return err
	}
	if tok.Kind == lexer.TokReserved {
		return newError(ErrReserved, tok.Text, tok.Pos())
	}
	return missingToken(";", "to terminate this statement", tok.Pos())
}

func isSelfTerminated(stmt ast.Stmt) bool {
	switch s := stmt.(type) {
	case *ast.NoopStmt, *ast.IfStmt, *ast.SwitchStmt, *ast.WhileStmt, *ast.LoopStmt, *ast.ForStmt, *ast.TryCatchStmt, *ast.BlockStmt:
		return true
	case *ast.ExprStmt:
		switch e := s.Expr.(type) {
		case *ast.CustomSyntaxExpr:
			return e.SelfTerminated
		case *ast.StmtBlockExpr:
			return true
		}
	}
	return false
}

func (p *parser) parseStatement() (ast.Stmt, error) {
	tok := p.current()
	if err := p.pendingError(tok); err != nil {
		return nil, err
	}
	switch {
	case tok.Is(";"):
		return ast.NewNoopStmt(tok.Span), nil
	case tok.Is("{"):
		block, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return ast.NewBlockStmt(block), nil
	case tok.Is("let"), tok.Is("const"):
		return p.parseVarDecl(ast.FlagNone)
	case tok.Is("if"):
		return p.parseIf()
	case tok.Is("switch"):
		return p.parseSwitch()
	case tok.Is("while"):
		return p.parseWhile()
	case tok.Is("loop"):
		return p.parseLoop()
	case tok.Is("do"):
		return p.parseDo()
	case tok.Is("for"):
		return p.parseFor()
	case tok.Is("try"):
		return p.parseTryCatch()
	case tok.Is("break"), tok.Is("continue"):
		return p.parseBreak()
	case tok.Is("return"), tok.Is("throw"):
		return p.parseReturn()
	case tok.Is("import"):
		return p.parseImport()
	case tok.Is("export"):
		return nil, newError(ErrWrongExport, "", tok.Pos())
	case tok.Is("fn"), tok.Is("private"):
		if p.opts.NoFunctions {
			return nil, newError(ErrReserved, tok.Text, tok.Pos())
		}
		return nil, newError(ErrWrongFnDefinition, "", tok.Pos())
	}
	return p.parseExprOrAssignment()
}

func (p *parser) parseVarDecl(flags ast.ASTFlags) (ast.Stmt, error) {
	kw := p.advance()
	if kw.Text == "const" {
		flags |= ast.FlagConstant
	}
	nameTok, err := p.expectIdent(ErrVariableExpected)
	if err != nil {
		return nil, err
	}
	name := runtime.Intern(nameTok.Text)
	var value ast.Expr
	if p.match("=") {
		if value, err = p.parseExpr(); err != nil {
			return nil, err
		}
	} else {
		value = ast.NewUnitLiteral(nameTok.Span)
	}
	if err := p.declare(name, flags.Has(ast.FlagConstant), nameTok.Pos()); err != nil {
		return nil, err
	}
	return ast.NewVarStmt(name, value, flags, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseExport() ([]ast.Stmt, error) {
	kw := p.advance()
	if !p.atGlobalLevel() {
		return nil, newError(ErrWrongExport, "", kw.Pos())
	}
	if p.check("let") || p.check("const") {
		stmt, err := p.parseVarDecl(ast.FlagExported)
		if err != nil {
			return nil, err
		}
		ast.SetSpan(stmt, p.spanFrom(kw.Pos()))
		return []ast.Stmt{stmt}, nil
	}
	var stmts []ast.Stmt
	for {
		nameTok, err := p.expectIdent(ErrVariableExpected)
		if err != nil {
			return nil, err
		}
		alias := ""
		if p.match("as") {
			aliasTok, err := p.expectIdent(ErrVariableExpected)
			if err != nil {
				return nil, err
			}
			alias = runtime.Intern(aliasTok.Text)
		}
		stmts = append(stmts, ast.NewExportStmt(runtime.Intern(nameTok.Text), alias, p.spanFrom(nameTok.Pos())))
		if !p.match(",") {
			return stmts, nil
		}
	}
}

func (p *parser) parseImport() (ast.Stmt, error) {
	kw := p.advance()
	path, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	alias := ""
	if p.match("as") {
		aliasTok, err := p.expectIdent(ErrVariableExpected)
		if err != nil {
			return nil, err
		}
		alias = runtime.Intern(aliasTok.Text)
	}
	return ast.NewImportStmt(path, alias, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseIf() (ast.Stmt, error) {
	kw := p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	var branch *ast.StmtBlock
	if p.match("else") {
		if p.check("if") {
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			branch = ast.NewStmtBlock([]ast.Stmt{nested}, nested.Span())
		} else if branch, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}
	return ast.NewIfStmt(cond, body, branch, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseWhile() (ast.Stmt, error) {
	kw := p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}
	return ast.NewWhileStmt(cond, body, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseLoop() (ast.Stmt, error) {
	kw := p.advance()
	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}
	return ast.NewLoopStmt(body, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseDo() (ast.Stmt, error) {
	kw := p.advance()
	body, err := p.parseLoopBody()
	if err != nil {
		return nil, err
	}
	until := false
	switch {
	case p.match("while"):
	case p.match("until"):
		until = true
	default:
		return nil, missingToken("while", "or 'until' after this 'do' block", p.current().Pos())
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return ast.NewDoStmt(body, cond, until, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseLoopBody() (*ast.StmtBlock, error) {
	f := p.frame()
	f.loops++
	defer func() { f.loops-- }()
	return p.parseBlock()
}

func (p *parser) parseFor() (ast.Stmt, error) {
	kw := p.advance()
	var name, counter string
	var namePos ast.Position
	if p.match("(") {
		nameTok, err := p.expectIdent(ErrVariableExpected)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(",", "after the iteration variable name"); err != nil {
			return nil, err
		}
		counterTok, err := p.expectIdent(ErrVariableExpected)
		if err != nil {
			return nil, err
		}
		if counterTok.Text == nameTok.Text {
			return nil, newError(ErrVariableExists, counterTok.Text, counterTok.Pos())
		}
		if _, err := p.expect(")", "to close the iteration variable names"); err != nil {
			return nil, err
		}
		name, counter, namePos = nameTok.Text, counterTok.Text, nameTok.Pos()
	} else {
		nameTok, err := p.expectIdent(ErrVariableExpected)
		if err != nil {
			return nil, err
		}
		name, namePos = nameTok.Text, nameTok.Pos()
	}
	if _, err := p.expect("in", "after the iteration variable"); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	f := p.frame()
	mark := len(f.names)
	if err := p.declare(name, false, namePos); err != nil {
		return nil, err
	}
	if counter != "" {
		if err := p.declare(counter, false, namePos); err != nil {
			return nil, err
		}
	}
	body, err := p.parseLoopBody()
	f.rewind(mark)
	if err != nil {
		return nil, err
	}
	return ast.NewForStmt(runtime.Intern(name), runtime.Intern(counter), iterable, body, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseTryCatch() (ast.Stmt, error) {
	kw := p.advance()
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("catch", "for the 'try' statement"); err != nil {
		return nil, err
	}
	catchVar := ""
	f := p.frame()
	mark := len(f.names)
	if p.match("(") {
		varTok, err := p.expectIdent(ErrVariableExpected)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")", "to enclose the catch variable"); err != nil {
			return nil, err
		}
		catchVar = runtime.Intern(varTok.Text)
		if err := p.declare(catchVar, false, varTok.Pos()); err != nil {
			return nil, err
		}
	}
	catch, err := p.parseBlock()
	f.rewind(mark)
	if err != nil {
		return nil, err
	}
	return ast.NewTryCatchStmt(body, catchVar, catch, p.spanFrom(kw.Pos())), nil
}

// endOfStatement reports whether no value follows a keyword such as
// `return` or `break`.
func (p *parser) endOfStatement() bool {
	tok := p.current()
	return tok.Kind == lexer.TokEOF || tok.Kind == tokError || tok.Is(";") || tok.Is("}") || tok.Is(",")
}

func (p *parser) parseBreak() (ast.Stmt, error) {
	kw := p.advance()
	if p.frame().loops == 0 {
		return nil, newError(ErrLoopBreak, "", kw.Pos())
	}
	var value ast.Expr
	if !p.endOfStatement() {
		var err error
		if value, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return ast.NewBreakLoopStmt(kw.Text == "break", value, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseReturn() (ast.Stmt, error) {
	kw := p.advance()
	var value ast.Expr
	if !p.endOfStatement() {
		var err error
		if value, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return ast.NewReturnStmt(kw.Text == "throw", value, p.spanFrom(kw.Pos())), nil
}

func (p *parser) parseExprOrAssignment() (ast.Stmt, error) {
	start := p.current().Pos()
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	opTok := p.current()
	if opTok.Kind != lexer.TokSymbol {
		return wrapExprStmt(expr), nil
	}
	base, isOp := opAssignments[opTok.Text]
	if opTok.Text != "=" && !isOp {
		return wrapExprStmt(expr), nil
	}
	if err := p.checkAssignable(expr); err != nil {
		return nil, err
	}
	p.advance()
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	stmt := ast.NewAssignStmt(expr, value, p.spanFrom(start))
	if isOp {
		stmt.Op = opTok.Text
		stmt.BaseOp = base
		stmt.OpHash = runtime.CalcFnHash(nil, opTok.Text, 2)
		stmt.BaseHash = runtime.CalcFnHash(nil, base, 2)
	}
	return stmt, nil
}

// checkAssignable validates the left-hand side of an assignment.
func (p *parser) checkAssignable(target ast.Expr) error {
	switch t := target.(type) {
	case *ast.Variable:
		if t.IsQualified() {
			return newError(ErrAssignmentToInvalidLHS, t.Namespace.String()+t.Name, t.Position())
		}
		if p.frame().isConstant(t.Name) {
			return newError(ErrAssignmentToConstant, t.Name, t.Position())
		}
		return nil
	case *ast.ThisExpr:
		return nil
	case *ast.ConstantExpr:
		return newError(ErrAssignmentToConstant, "", t.Position())
	case *ast.ChainExpr:
		if _, ok := t.Links[len(t.Links)-1].(*ast.MethodLink); ok {
			return newError(ErrAssignmentToInvalidLHS, "", t.Position())
		}
		switch root := t.Root.(type) {
		case *ast.ThisExpr:
			return nil
		case *ast.Variable:
			if root.IsQualified() {
				return newError(ErrAssignmentToInvalidLHS, root.Namespace.String()+root.Name, root.Position())
			}
			if p.frame().isConstant(root.Name) {
				return newError(ErrAssignmentToConstant, root.Name, root.Position())
			}
			return nil
		case *ast.ConstantExpr:
			return newError(ErrAssignmentToConstant, "", root.Position())
		}
	}
	return newError(ErrAssignmentToInvalidLHS, "", target.Position())
}
