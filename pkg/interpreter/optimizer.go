package interpreter

import (
	"unicode/utf8"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/runtime"
)

// maxOptimizerPasses bounds the rewrite loop; every pass either changes
// the tree or ends the loop.
const maxOptimizerPasses = 32

// Calls the optimizer never evaluates ahead of time: they inspect or change
// the running scope.
var scopeSensitiveCalls = map[string]struct{}{
	"eval":       {},
	"Fn":         {},
	"call":       {},
	"curry":      {},
	"is_def_var": {},
	"is_def_fn":  {},
	"is_shared":  {},
}

// optVar is one entry of the optimizer's view of the scope. A barrier hides
// every older entry: code past it may see bindings the optimizer cannot.
type optVar struct {
	name     string
	value    runtime.Value
	constant bool
	barrier  bool
}

type optimizer struct {
	engine *Engine
	level  OptimizationLevel
	st     *evalState
	fr     *frame

	vars      []optVar
	scriptFns map[uint64]struct{}
	propagate bool
	// imported is set once an import may have added operator overloads.
	imported bool
	changed  bool
}

func newOptimizer(e *Engine, level OptimizationLevel, scope *runtime.Scope) *optimizer {
	st := e.newState(nil)
	st.debugger = nil
	o := &optimizer{
		engine:    e,
		level:     level,
		st:        st,
		fr:        &frame{scope: runtime.NewScope()},
		scriptFns: make(map[uint64]struct{}),
		// A host variable resolver runs before the scope, so nothing the
		// script declares is known to be what a lookup returns.
		propagate: e.varResolver == nil,
	}
	if scope != nil {
		for _, entry := range scope.Iter() {
			o.vars = append(o.vars, optVar{
				name:     entry.Name,
				value:    entry.Value,
				constant: entry.Constant && !entry.Value.IsShared(),
			})
		}
	}
	return o
}

// optimizeScript rewrites the top-level statements and every function body
// in place.
func (o *optimizer) optimizeScript(script *ast.Script) {
	for _, fn := range script.Functions {
		o.scriptFns[runtime.CalcFnHash(nil, fn.Name, len(fn.Params))] = struct{}{}
	}
	host := o.vars
	passes := o.optimizeBody(script.Body, host)
	for _, fn := range script.Functions {
		params := make([]optVar, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = optVar{name: p}
		}
		o.imported = false
		passes += o.optimizeBody(fn.Body, params)
	}
	o.engine.logger.Debug("optimized script",
		"level", o.level.String(),
		"functions", len(script.Functions),
		"passes", passes)
}

// optimizeBody runs the rewrite passes over a function-level block until
// nothing changes.
func (o *optimizer) optimizeBody(body *ast.StmtBlock, base []optVar) int {
	if body == nil {
		return 0
	}
	pass := 0
	for pass < maxOptimizerPasses {
		pass++
		o.vars = append(o.vars[:0:0], base...)
		o.imported = false
		o.changed = false
		body.Statements = o.optimizeStmts(body.Statements, true)
		if !o.changed {
			break
		}
	}
	return pass
}

func (o *optimizer) optimizeBlock(block *ast.StmtBlock, keepResult bool) {
	if block == nil {
		return
	}
	mark := len(o.vars)
	block.Statements = o.optimizeStmts(block.Statements, keepResult)
	o.vars = o.vars[:mark]
}

// optimizeStmts rewrites a statement list. Statements after an
// unconditional jump are dropped, as are pure statements whose value is
// never observed.
func (o *optimizer) optimizeStmts(stmts []ast.Stmt, keepResult bool) []ast.Stmt {
	out := make([]ast.Stmt, 0, len(stmts))
	for i, s := range stmts {
		if changesScope(s) {
			o.vars = append(o.vars, optVar{barrier: true})
		}
		s = o.optimizeStmt(s, keepResult && i == len(stmts)-1)
		out = append(out, s)
		if isJump(s) && i < len(stmts)-1 {
			o.changed = true
			break
		}
	}
	kept := out[:0]
	for i, s := range out {
		last := i == len(out)-1
		if ast.IsPureStmt(s) && !(last && keepResult) {
			o.changed = true
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

func isJump(s ast.Stmt) bool {
	switch s.(type) {
	case *ast.ReturnStmt, *ast.BreakLoopStmt:
		return true
	}
	return false
}

// changesScope reports whether a statement may add bindings the optimizer
// cannot see: `eval` and custom syntax flagged as scope-changing.
func changesScope(s ast.Stmt) bool {
	found := false
	ast.WalkStmt(s, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.FnCallExpr:
			if x.Name == "eval" && !x.IsQualified() {
				found = true
			}
		case *ast.CustomSyntaxExpr:
			if x.ScopeMayChange {
				found = true
			}
		}
		return !found
	})
	return found
}

func (o *optimizer) declare(name string, value ast.Expr, constant bool) {
	v := optVar{name: name}
	if constant && o.propagate {
		if cv, ok := constantValue(value); ok {
			v.value, v.constant = cv, true
		}
	}
	o.vars = append(o.vars, v)
}

func (o *optimizer) optimizeStmt(s ast.Stmt, keepResult bool) ast.Stmt {
	switch n := s.(type) {
	case *ast.VarStmt:
		n.Value = o.expr(n.Value)
		o.declare(n.Name, n.Value, n.IsConst())
	case *ast.AssignStmt:
		return o.optimizeAssign(n)
	case *ast.IfStmt:
		n.Flow.Expr = o.expr(n.Flow.Expr)
		if b, ok := n.Flow.Expr.(*ast.BoolLiteral); ok {
			o.changed = true
			branch := n.Flow.Body
			if !b.Value {
				branch = n.Flow.Branch
			}
			if branch == nil {
				return ast.NewNoopStmt(n.Span())
			}
			o.optimizeBlock(branch, keepResult)
			return ast.NewBlockStmt(branch)
		}
		o.optimizeBlock(n.Flow.Body, keepResult)
		o.optimizeBlock(n.Flow.Branch, keepResult)
	case *ast.SwitchStmt:
		return o.optimizeSwitch(n)
	case *ast.WhileStmt:
		n.Flow.Expr = o.expr(n.Flow.Expr)
		if b, ok := n.Flow.Expr.(*ast.BoolLiteral); ok && !b.Value {
			o.changed = true
			return ast.NewNoopStmt(n.Span())
		}
		o.optimizeBlock(n.Flow.Body, false)
	case *ast.LoopStmt:
		o.optimizeBlock(n.Body, false)
	case *ast.DoStmt:
		o.optimizeBlock(n.Flow.Body, false)
		n.Flow.Expr = o.expr(n.Flow.Expr)
	case *ast.ForStmt:
		n.Flow.Expr = o.expr(n.Flow.Expr)
		mark := len(o.vars)
		o.vars = append(o.vars, optVar{name: n.Var})
		if n.Counter != "" {
			o.vars = append(o.vars, optVar{name: n.Counter})
		}
		o.optimizeBlock(n.Flow.Body, false)
		o.vars = o.vars[:mark]
	case *ast.TryCatchStmt:
		o.optimizeBlock(n.Body, keepResult)
		mark := len(o.vars)
		if n.CatchVar != "" {
			o.vars = append(o.vars, optVar{name: n.CatchVar})
		}
		o.optimizeBlock(n.Catch, keepResult)
		o.vars = o.vars[:mark]
	case *ast.BreakLoopStmt:
		if n.Value != nil {
			n.Value = o.expr(n.Value)
		}
	case *ast.ReturnStmt:
		if n.Value != nil {
			n.Value = o.expr(n.Value)
		}
	case *ast.ImportStmt:
		n.Path = o.expr(n.Path)
		o.imported = true
	case *ast.ExprStmt:
		n.Expr = o.expr(n.Expr)
	case *ast.FnCallStmt:
		folded := o.expr(n.Call)
		if call, ok := folded.(*ast.FnCallExpr); ok {
			n.Call = call
			return n
		}
		return ast.NewExprStmt(folded)
	case *ast.BlockStmt:
		o.optimizeBlock(n.Block, keepResult)
		switch {
		case n.Block.IsEmpty():
			o.changed = true
			return ast.NewNoopStmt(n.Span())
		case len(n.Block.Statements) == 1 && !ast.IsBlockDependent(n.Block.Statements[0]):
			o.changed = true
			return n.Block.Statements[0]
		}
	}
	return s
}

// optimizeAssign folds the assigned value and rewrites `x = x op y` into
// `x op= y`.
func (o *optimizer) optimizeAssign(n *ast.AssignStmt) ast.Stmt {
	n.Value = o.expr(n.Value)
	if c, ok := n.Target.(*ast.ChainExpr); ok {
		o.chainArgs(c)
		return n
	}
	target, ok := n.Target.(*ast.Variable)
	if !ok || n.IsOpAssignment() || target.IsQualified() {
		return n
	}
	call, ok := n.Value.(*ast.FnCallExpr)
	if !ok || !call.IsOperator() || len(call.Args) != 2 || !hasOpAssignment(call.OpToken) {
		return n
	}
	lhs, ok := call.Args[0].(*ast.Variable)
	if !ok || lhs.IsQualified() || lhs.Name != target.Name {
		return n
	}
	o.changed = true
	n.Op = call.OpToken + "="
	n.BaseOp = call.OpToken
	n.OpHash = runtime.CalcFnHash(nil, n.Op, 2)
	n.BaseHash = runtime.CalcFnHash(nil, n.BaseOp, 2)
	n.Value = call.Args[1]
	return n
}

func hasOpAssignment(op string) bool {
	switch op {
	case "+", "-", "*", "/", "%", "**", "<<", ">>", "&", "|", "^":
		return true
	}
	return false
}

// optimizeSwitch folds the arms and, when the switched value is constant,
// replaces the statement with the arm that would run.
func (o *optimizer) optimizeSwitch(n *ast.SwitchStmt) ast.Stmt {
	n.Expr = o.expr(n.Expr)
	cases := n.Cases
	for i := range cases.Expressions {
		arm := &cases.Expressions[i]
		if arm.Condition != nil {
			arm.Condition = o.expr(arm.Condition)
		}
		arm.Expr = o.expr(arm.Expr)
	}
	value, ok := constantValue(n.Expr)
	if !ok {
		return n
	}
	selected, decided := selectArm(cases, value)
	if !decided {
		return n
	}
	o.changed = true
	if selected == nil {
		return ast.NewNoopStmt(n.Span())
	}
	return ast.NewExprStmt(selected)
}

// selectArm picks the arm a constant value selects. decided is false when
// a guard is not constant.
func selectArm(cases *ast.SwitchCases, value runtime.Value) (ast.Expr, bool) {
	try := func(arm *ast.ConditionalExpr) (matched, decided bool) {
		switch {
		case arm.IsAlwaysTrue():
			return true, true
		case arm.IsAlwaysFalse():
			return false, true
		}
		return false, false
	}
	if h, ok := runtime.HashValue(value); ok {
		for _, idx := range cases.Cases[h] {
			matched, decided := try(&cases.Expressions[idx])
			if !decided {
				return nil, false
			}
			if matched {
				return cases.Expressions[idx].Expr, true
			}
		}
	}
	if num, ok := value.AsInt(); ok {
		for _, rc := range cases.Ranges {
			if !rc.Contains(num) {
				continue
			}
			matched, decided := try(&cases.Expressions[rc.Index])
			if !decided {
				return nil, false
			}
			if matched {
				return cases.Expressions[rc.Index].Expr, true
			}
		}
	}
	if cases.Default >= 0 {
		return cases.Expressions[cases.Default].Expr, true
	}
	return nil, true
}

// expr rewrites an expression bottom-up.
func (o *optimizer) expr(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case *ast.Variable:
		return o.variable(n)
	case *ast.InterpolatedString:
		return o.interpolated(n)
	case *ast.ArrayLiteral:
		for i, el := range n.Elements {
			n.Elements[i] = o.expr(el)
		}
	case *ast.MapLiteral:
		for i := range n.Entries {
			n.Entries[i].Value = o.expr(n.Entries[i].Value)
		}
	case *ast.FnCallExpr:
		return o.call(n)
	case *ast.BinaryExpr:
		return o.binary(n)
	case *ast.ChainExpr:
		return o.chain(n)
	case *ast.StmtBlockExpr:
		if n.Block == nil {
			return e
		}
		o.optimizeBlock(n.Block, true)
		switch {
		case n.Block.IsEmpty():
			o.changed = true
			return ast.NewUnitLiteral(n.Span())
		case len(n.Block.Statements) == 1:
			if s, ok := n.Block.Statements[0].(*ast.ExprStmt); ok {
				o.changed = true
				return s.Expr
			}
		}
	}
	return e
}

// variable substitutes a known constant for a variable reference.
func (o *optimizer) variable(v *ast.Variable) ast.Expr {
	if !o.propagate || v.IsQualified() {
		return v
	}
	for i := len(o.vars) - 1; i >= 0; i-- {
		entry := o.vars[i]
		if entry.barrier {
			return v
		}
		if entry.name != v.Name {
			continue
		}
		if !entry.constant {
			return v
		}
		o.changed = true
		return valueToExpr(entry.value.Clone(), v.Span())
	}
	if c, ok := o.st.globalConstant(v.Name); ok {
		o.changed = true
		return valueToExpr(c.Clone(), v.Span())
	}
	return v
}

// interpolated merges adjacent literal parts; an interpolation made only of
// literals becomes a single string.
func (o *optimizer) interpolated(n *ast.InterpolatedString) ast.Expr {
	parts := make([]ast.Expr, 0, len(n.Parts))
	for _, p := range n.Parts {
		p = o.expr(p)
		if s, ok := p.(*ast.StringLiteral); ok && len(parts) > 0 {
			if prev, ok := parts[len(parts)-1].(*ast.StringLiteral); ok {
				merged := prev.Value + s.Value
				if limit := o.engine.limits.MaxStringSize; limit == 0 || len(merged) <= limit {
					o.changed = true
					parts[len(parts)-1] = ast.NewStringLiteral(runtime.Intern(merged), prev.Span().Merge(s.Span()))
					continue
				}
			}
		}
		parts = append(parts, p)
	}
	n.Parts = parts
	if len(parts) == 1 {
		if s, ok := parts[0].(*ast.StringLiteral); ok {
			o.changed = true
			return ast.NewStringLiteral(runtime.Intern(s.Value), n.Span())
		}
	}
	if len(parts) == 0 {
		o.changed = true
		return ast.NewStringLiteral("", n.Span())
	}
	return n
}

func (o *optimizer) binary(n *ast.BinaryExpr) ast.Expr {
	n.Lhs = o.expr(n.Lhs)
	n.Rhs = o.expr(n.Rhs)
	switch n.NodeType() {
	case ast.NodeAnd, ast.NodeOr:
		lhs, ok := n.Lhs.(*ast.BoolLiteral)
		if !ok {
			return n
		}
		short := n.NodeType() == ast.NodeAnd && !lhs.Value || n.NodeType() == ast.NodeOr && lhs.Value
		if short {
			o.changed = true
			return ast.NewBoolLiteral(lhs.Value, n.Span())
		}
		if rhs, ok := n.Rhs.(*ast.BoolLiteral); ok {
			o.changed = true
			return ast.NewBoolLiteral(rhs.Value, n.Span())
		}
	case ast.NodeCoalesce:
		lhs, ok := constantValue(n.Lhs)
		if !ok {
			return n
		}
		o.changed = true
		if lhs.IsUnit() {
			return n.Rhs
		}
		return n.Lhs
	}
	return n
}

// call folds operators on constants and, at the full level, pure host
// functions with constant arguments.
func (o *optimizer) call(n *ast.FnCallExpr) ast.Expr {
	if _, special := scopeSensitiveCalls[n.Name]; special && !n.IsQualified() {
		if n.Name != "is_shared" {
			for i, a := range n.Args {
				n.Args[i] = o.expr(a)
			}
		}
		return n
	}
	for i, a := range n.Args {
		n.Args[i] = o.expr(a)
	}
	if n.IsQualified() {
		return n
	}
	args := make([]runtime.Value, len(n.Args))
	for i, a := range n.Args {
		v, ok := constantValue(a)
		if !ok || v.Kind() == runtime.KindFnPtr {
			return n
		}
		args[i] = v
	}
	if n.IsOperator() {
		if v, ok := o.foldOperator(n, args); ok {
			o.changed = true
			return valueToExpr(v, n.Span())
		}
		return n
	}
	if o.level < OptimizeFull || o.imported {
		return n
	}
	if _, shadowed := o.scriptFns[n.Hash]; shadowed && !n.NativeOnly {
		return n
	}
	r := o.st.resolveNativeFn(n.Hash, argTypes(args))
	if r == nil || r.info.Native == nil || !r.info.Pure || r.info.Volatile {
		return n
	}
	ptrs := make([]*runtime.Value, len(args))
	for i := range args {
		ptrs[i] = &args[i]
	}
	v, err := o.st.callNative(o.fr, r.info, n.Name, ptrs, n.Position())
	if err != nil {
		return n
	}
	o.changed = true
	return valueToExpr(v, n.Span())
}

func (o *optimizer) foldOperator(n *ast.FnCallExpr, args []runtime.Value) (runtime.Value, bool) {
	e := o.engine
	if !e.fastOperators {
		if o.imported || o.st.resolveNativeFn(n.Hash, argTypes(args)) != nil {
			return runtime.UnitValue, false
		}
	}
	pos := n.Position()
	var (
		v   runtime.Value
		err error
	)
	switch len(args) {
	case 1:
		fn, ok := builtinUnaryOp(n.Name, args[0])
		if !ok {
			return runtime.UnitValue, false
		}
		v, err = fn(pos, args[0])
	case 2:
		b, ok := builtinBinaryOp(n.Name, args[0], args[1])
		if !ok || b.needsContext {
			return runtime.UnitValue, false
		}
		v, err = b.fn(e, pos, args[0], args[1])
	default:
		return runtime.UnitValue, false
	}
	return v, err == nil
}

// chainArgs folds the index and argument expressions of an assignment
// target, leaving its root alone.
func (o *optimizer) chainArgs(c *ast.ChainExpr) {
	for _, link := range c.Links {
		switch l := link.(type) {
		case *ast.IndexLink:
			l.Index = o.expr(l.Index)
		case *ast.MethodLink:
			for i, a := range l.Call.Args {
				l.Call.Args[i] = o.expr(a)
			}
		}
	}
}

// chain folds property and index access on literal roots. A variable root
// is kept: method calls on it may mutate or be rejected on constants.
func (o *optimizer) chain(c *ast.ChainExpr) ast.Expr {
	if _, isVar := c.Root.(*ast.Variable); !isVar {
		c.Root = o.expr(c.Root)
	}
	o.chainArgs(c)
	for len(c.Links) > 0 {
		folded, ok := o.foldLink(c.Root, c.Links[0])
		if !ok {
			break
		}
		o.changed = true
		c.Root = folded
		c.Links = c.Links[1:]
	}
	if len(c.Links) == 0 {
		return c.Root
	}
	return c
}

func (o *optimizer) foldLink(root ast.Expr, link ast.ChainLink) (ast.Expr, bool) {
	switch r := root.(type) {
	case *ast.MapLiteral:
		p, ok := link.(*ast.PropertyLink)
		if !ok || !ast.IsPure(r) {
			return nil, false
		}
		if v, found := r.Lookup(p.Name); found {
			return v, true
		}
		if o.engine.failOnInvalidMapProperty {
			return nil, false
		}
		return ast.NewUnitLiteral(p.Span()), true
	case *ast.ArrayLiteral:
		idx, ok := constantIndex(link)
		if !ok || !ast.IsPure(r) {
			return nil, false
		}
		i, err := normalizeIndex(runtime.ErrArrayBounds, len(r.Elements), idx, link.Position())
		if err != nil {
			return nil, false
		}
		return r.Elements[i], true
	case *ast.StringLiteral:
		idx, ok := constantIndex(link)
		if !ok {
			return nil, false
		}
		runes := []rune(r.Value)
		i, err := normalizeIndex(runtime.ErrStringBounds, len(runes), idx, link.Position())
		if err != nil {
			return nil, false
		}
		return ast.NewCharLiteral(runes[i], r.Span()), true
	}
	return nil, false
}

func constantIndex(link ast.ChainLink) (int64, bool) {
	l, ok := link.(*ast.IndexLink)
	if !ok {
		return 0, false
	}
	v, ok := constantValue(l.Index)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// constantValue returns the value of a literal or folded constant,
// including arrays and maps built only from constants.
func constantValue(e ast.Expr) (runtime.Value, bool) {
	switch n := e.(type) {
	case *ast.UnitLiteral:
		return runtime.UnitValue, true
	case *ast.BoolLiteral:
		return runtime.Bool(n.Value), true
	case *ast.IntegerLiteral:
		return runtime.Int(n.Value), true
	case *ast.FloatLiteral:
		return runtime.Float(n.Value), true
	case *ast.CharLiteral:
		return runtime.Char(n.Value), true
	case *ast.StringLiteral:
		return runtime.String(n.Value), true
	case *ast.ConstantExpr:
		if v, ok := n.Value.(runtime.Value); ok {
			return v.Clone(), true
		}
	case *ast.ArrayLiteral:
		elements := make([]runtime.Value, len(n.Elements))
		for i, el := range n.Elements {
			v, ok := constantValue(el)
			if !ok {
				return runtime.UnitValue, false
			}
			elements[i] = v
		}
		return runtime.NewArray(elements...), true
	case *ast.MapLiteral:
		m := runtime.NewMap()
		for _, entry := range n.Entries {
			v, ok := constantValue(entry.Value)
			if !ok {
				return runtime.UnitValue, false
			}
			m.Set(entry.Key, v)
		}
		return runtime.NewMapValue(m), true
	}
	return runtime.UnitValue, false
}

// valueToExpr turns a folded value back into a tree node, preferring the
// literal node kinds the parser produces.
func valueToExpr(v runtime.Value, span ast.Span) ast.Expr {
	switch v.Kind() {
	case runtime.KindUnit:
		return ast.NewUnitLiteral(span)
	case runtime.KindBool:
		b, _ := v.AsBool()
		return ast.NewBoolLiteral(b, span)
	case runtime.KindInt:
		n, _ := v.AsInt()
		return ast.NewIntegerLiteral(n, span)
	case runtime.KindFloat:
		f, _ := v.AsFloat()
		return ast.NewFloatLiteral(f, span)
	case runtime.KindChar:
		c, _ := v.AsChar()
		if utf8.ValidRune(c) {
			return ast.NewCharLiteral(c, span)
		}
	case runtime.KindString:
		s, _ := v.AsString()
		return ast.NewStringLiteral(runtime.Intern(s), span)
	}
	return ast.NewConstantExpr(v.WithAccess(runtime.ReadWrite), span)
}
