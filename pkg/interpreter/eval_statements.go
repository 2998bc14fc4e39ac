package interpreter

import (
	"fmt"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// evaluateBlock runs a nested block. Bindings, imports and resolution
// caches it adds are dropped on exit, including on error.
func (st *evalState) evaluateBlock(fr *frame, block *ast.StmtBlock) (runtime.Value, error) {
	if block == nil {
		return runtime.UnitValue, nil
	}
	scopeLen, imports, caches := fr.scope.Len(), len(st.imports), len(st.caches)
	mark := st.enterBlock()
	v, err := st.evaluateStatements(fr, block.Statements)
	st.leaveBlock(mark)
	fr.scope.Rewind(scopeLen)
	st.rewind(imports, caches)
	return v, err
}

// evaluateStatements runs statements in the current scope and returns the
// value of the last one.
func (st *evalState) evaluateStatements(fr *frame, stmts []ast.Stmt) (runtime.Value, error) {
	result := runtime.UnitValue
	for _, stmt := range stmts {
		if err := st.track(stmt.Position()); err != nil {
			return runtime.UnitValue, err
		}
		if err := st.debugStep(fr, stmt, true); err != nil {
			return runtime.UnitValue, err
		}
		v, err := st.evaluateStatement(fr, stmt)
		if err != nil {
			return runtime.UnitValue, err
		}
		result = v
	}
	return result, nil
}

func (st *evalState) evaluateStatement(fr *frame, node ast.Stmt) (runtime.Value, error) {
	switch n := node.(type) {
	case *ast.NoopStmt:
		return runtime.UnitValue, nil
	case *ast.ExprStmt:
		return st.evaluateExpression(fr, n.Expr)
	case *ast.FnCallStmt:
		return st.evaluateFnCall(fr, n.Call)
	case *ast.BlockStmt:
		return st.evaluateBlock(fr, n.Block)
	case *ast.VarStmt:
		return runtime.UnitValue, st.evaluateVar(fr, n)
	case *ast.AssignStmt:
		return runtime.UnitValue, st.evaluateAssignment(fr, n)
	case *ast.IfStmt:
		cond, err := st.evaluateCondition(fr, n.Flow.Expr)
		if err != nil {
			return runtime.UnitValue, err
		}
		if cond {
			return st.evaluateBlock(fr, n.Flow.Body)
		}
		return st.evaluateBlock(fr, n.Flow.Branch)
	case *ast.SwitchStmt:
		return st.evaluateSwitch(fr, n)
	case *ast.WhileStmt:
		return st.evaluateWhile(fr, n)
	case *ast.LoopStmt:
		return st.evaluateLoop(fr, n)
	case *ast.DoStmt:
		return st.evaluateDo(fr, n)
	case *ast.ForStmt:
		return st.evaluateFor(fr, n)
	case *ast.TryCatchStmt:
		return st.evaluateTryCatch(fr, n)
	case *ast.BreakLoopStmt:
		v, err := st.evaluateExpression(fr, n.Value)
		if err != nil {
			return runtime.UnitValue, err
		}
		return runtime.UnitValue, runtime.NewLoopBreak(n.IsBreak(), v.Flatten(), n.Position())
	case *ast.ReturnStmt:
		v, err := st.evaluateExpression(fr, n.Value)
		if err != nil {
			return runtime.UnitValue, err
		}
		if n.IsThrow() {
			return runtime.UnitValue, runtime.NewRuntimeError(v.Flatten(), n.Position())
		}
		return runtime.UnitValue, runtime.NewReturn(v.Flatten(), n.Position())
	case *ast.ImportStmt:
		return runtime.UnitValue, st.evaluateImport(fr, n)
	case *ast.ExportStmt:
		if !fr.scope.AddAliasByName(n.Name, n.ExportName()) {
			return runtime.UnitValue, runtime.NewVariableNotFound(n.Name, n.Position())
		}
		return runtime.UnitValue, nil
	case *ast.ShareStmt:
		for _, name := range n.Names {
			if i, ok := fr.scope.Search(name); ok {
				_, slot := fr.scope.Entry(i)
				if !slot.IsShared() {
					*slot = slot.IntoShared()
				}
			}
		}
		return runtime.UnitValue, nil
	default:
		return runtime.UnitValue, runtime.NewSystemError(fmt.Sprintf("unsupported statement %s", node.NodeType()), nil)
	}
}

func (st *evalState) evaluateVar(fr *frame, n *ast.VarStmt) error {
	v, err := st.evaluateExpression(fr, n.Value)
	if err != nil {
		return err
	}
	v = v.Flatten()
	if filter := st.engine.defVarFilter; filter != nil {
		ok, err := filter(n.Name, n.IsConst(), &EvalContext{st: st, fr: fr, pos: n.Position()})
		if err != nil {
			return runtime.AsEvalError(err, n.Position())
		}
		if !ok {
			return runtime.NewEvalError(runtime.ErrForbiddenVariable).WithName(n.Name).At(n.Position())
		}
	}
	if n.IsConst() {
		fr.scope.PushConstant(n.Name, v)
	} else {
		fr.scope.Push(n.Name, v)
	}
	if n.IsExported() {
		alias := n.Alias
		if alias == "" {
			alias = n.Name
		}
		fr.scope.AddAlias(fr.scope.Len()-1, alias)
	}
	return nil
}

func (st *evalState) evaluateAssignment(fr *frame, n *ast.AssignStmt) error {
	v, err := st.evaluateExpression(fr, n.Value)
	if err != nil {
		return err
	}
	op := &chainAssign{stmt: n, value: v.Flatten()}
	pos := n.Position()
	switch target := n.Target.(type) {
	case *ast.Variable:
		slot, readOnly, err := st.lookupVariable(fr, target)
		if err != nil {
			return err
		}
		if readOnly {
			return runtime.NewAssignmentToConstant(target.Name, target.Position())
		}
		return st.assignValue(fr, slot, op, pos)
	case *ast.ThisExpr:
		if fr.this == nil {
			return runtime.NewEvalError(runtime.ErrUnboundThis).At(target.Position())
		}
		if fr.this.IsReadOnly() {
			return runtime.NewAssignmentToConstant("this", target.Position())
		}
		return st.assignValue(fr, fr.this, op, pos)
	case *ast.ChainExpr:
		return st.assignChain(fr, target, op)
	}
	return runtime.NewSystemError(fmt.Sprintf("cannot assign to %s", n.Target.NodeType()), nil)
}

// assignValue stores op's value into slot, applying the compound operator
// when there is one, and enforces the size limits on the result.
func (st *evalState) assignValue(fr *frame, slot *runtime.Value, op *chainAssign, pos ast.Position) error {
	if !op.stmt.IsOpAssignment() {
		if err := slot.Set(op.value); err != nil {
			return runtime.AsEvalError(err, pos)
		}
		return nil
	}
	err := slot.Write(func(cur *runtime.Value) error {
		return st.applyOpAssign(fr, op.stmt, cur, op.value, pos)
	})
	if err != nil {
		return runtime.AsEvalError(err, pos)
	}
	return nil
}

// applyOpAssign updates cur in place. The order is: `??=`, the built-in
// operator (with fast operators), a host op-assignment function such as
// `+=`, and finally the base operator.
func (st *evalState) applyOpAssign(fr *frame, n *ast.AssignStmt, cur *runtime.Value, rhs runtime.Value, pos ast.Position) error {
	if n.Op == "??=" {
		if cur.IsUnit() {
			return cur.Set(rhs)
		}
		return nil
	}
	e := st.engine
	if e.fastOperators {
		if fn, ok := builtinOpAssign(n.BaseOp, *cur, rhs); ok {
			nv, err := fn(e, pos, *cur, rhs)
			if err != nil {
				return err
			}
			return st.store(cur, nv, pos)
		}
	}
	if r := st.resolveNativeFn(n.OpHash, []runtime.TypeID{cur.TypeID(), rhs.TypeID()}); r != nil && r.info.Script == nil {
		if err := st.track(pos); err != nil {
			return err
		}
		if _, err := st.callNative(fr, r.info, n.Op, []*runtime.Value{cur, &rhs}, pos); err != nil {
			return err
		}
		return st.checkSize(*cur, pos)
	}
	nv, err := st.callOperator(fr, n.BaseOp, []runtime.Value{*cur, rhs}, pos)
	if err != nil {
		return err
	}
	return st.store(cur, nv, pos)
}

func (st *evalState) store(slot *runtime.Value, v runtime.Value, pos ast.Position) error {
	if err := st.checkSize(v, pos); err != nil {
		return err
	}
	return slot.Set(v)
}

// runLoopBody runs one iteration. brk reports a `break`, whose value is
// returned; `continue` ends the iteration normally.
func (st *evalState) runLoopBody(fr *frame, body *ast.StmtBlock) (brk bool, value runtime.Value, err error) {
	_, err = st.evaluateBlock(fr, body)
	if err == nil {
		return false, runtime.UnitValue, nil
	}
	if evalErr, ok := err.(*runtime.EvalError); ok && evalErr.Kind == runtime.ErrLoopBreak {
		if evalErr.IsBreak {
			return true, evalErr.Value, nil
		}
		return false, runtime.UnitValue, nil
	}
	return false, runtime.UnitValue, err
}

func (st *evalState) evaluateWhile(fr *frame, n *ast.WhileStmt) (runtime.Value, error) {
	for {
		if err := st.track(n.Position()); err != nil {
			return runtime.UnitValue, err
		}
		cond, err := st.evaluateCondition(fr, n.Flow.Expr)
		if err != nil || !cond {
			return runtime.UnitValue, err
		}
		brk, v, err := st.runLoopBody(fr, n.Flow.Body)
		if err != nil || brk {
			return v, err
		}
	}
}

func (st *evalState) evaluateLoop(fr *frame, n *ast.LoopStmt) (runtime.Value, error) {
	for {
		if err := st.track(n.Position()); err != nil {
			return runtime.UnitValue, err
		}
		brk, v, err := st.runLoopBody(fr, n.Body)
		if err != nil || brk {
			return v, err
		}
	}
}

func (st *evalState) evaluateDo(fr *frame, n *ast.DoStmt) (runtime.Value, error) {
	for {
		if err := st.track(n.Position()); err != nil {
			return runtime.UnitValue, err
		}
		brk, v, err := st.runLoopBody(fr, n.Flow.Body)
		if err != nil || brk {
			return v, err
		}
		cond, err := st.evaluateCondition(fr, n.Flow.Expr)
		if err != nil {
			return runtime.UnitValue, err
		}
		if cond == n.IsUntil() {
			return runtime.UnitValue, nil
		}
	}
}

func (st *evalState) evaluateFor(fr *frame, n *ast.ForStmt) (runtime.Value, error) {
	iterable, err := st.evaluateExpression(fr, n.Flow.Expr)
	if err != nil {
		return runtime.UnitValue, err
	}
	iterable = iterable.Flatten()
	factory, ok := st.findIterator(iterable.TypeID())
	if !ok {
		return runtime.UnitValue, &runtime.EvalError{Kind: runtime.ErrFor, Actual: st.engine.typeName(iterable), Pos: n.Flow.Expr.Position()}
	}
	seq, err := factory(iterable)
	if err != nil {
		return runtime.UnitValue, runtime.AsEvalError(err, n.Flow.Expr.Position())
	}

	scopeLen := fr.scope.Len()
	defer fr.scope.Rewind(scopeLen)
	fr.scope.Push(n.Var, runtime.UnitValue)
	varIdx := fr.scope.Len() - 1
	counterIdx := -1
	if n.Counter != "" {
		fr.scope.Push(n.Counter, runtime.Int(0))
		counterIdx = fr.scope.Len() - 1
	}

	result := runtime.UnitValue
	var count int64
	for item := range seq {
		if err = st.track(n.Position()); err != nil {
			break
		}
		_, slot := fr.scope.Entry(varIdx)
		*slot = item.WithAccess(runtime.ReadWrite)
		if counterIdx >= 0 {
			_, counter := fr.scope.Entry(counterIdx)
			*counter = runtime.Int(count)
		}
		var brk bool
		var v runtime.Value
		if brk, v, err = st.runLoopBody(fr, n.Flow.Body); err != nil {
			break
		}
		if brk {
			result = v
			break
		}
		count++
	}
	if err != nil {
		return runtime.UnitValue, runtime.AsEvalError(err, n.Position())
	}
	return result, nil
}

// findIterator looks for an iterator factory in the global modules, then
// imported modules, then static modules.
func (st *evalState) findIterator(t runtime.TypeID) (module.IteratorFactory, bool) {
	for _, m := range st.engine.globalModules {
		if f, ok := m.ResolveIterator(t); ok {
			return f, true
		}
	}
	for i := len(st.imports) - 1; i >= 0; i-- {
		if f, ok := st.imports[i].module.ResolveIterator(t); ok {
			return f, true
		}
	}
	for _, name := range st.engine.staticOrder {
		if f, ok := st.engine.staticModules[name].ResolveIterator(t); ok {
			return f, true
		}
	}
	return nil, false
}

// evaluateSwitch tries hashed arms, then integer ranges, then the default
// arm. Guards are checked in source order.
func (st *evalState) evaluateSwitch(fr *frame, n *ast.SwitchStmt) (runtime.Value, error) {
	value, err := st.evaluateExpression(fr, n.Expr)
	if err != nil {
		return runtime.UnitValue, err
	}
	value = value.Flatten()
	cases := n.Cases
	if h, ok := runtime.HashValue(value); ok {
		for _, idx := range cases.Cases[h] {
			arm := &cases.Expressions[idx]
			if matched, err := st.evaluateGuard(fr, arm); err != nil || matched {
				if err != nil {
					return runtime.UnitValue, err
				}
				return st.evaluateExpression(fr, arm.Expr)
			}
		}
	}
	if num, ok := value.AsInt(); ok {
		for _, rc := range cases.Ranges {
			if !rc.Contains(num) {
				continue
			}
			arm := &cases.Expressions[rc.Index]
			matched, err := st.evaluateGuard(fr, arm)
			if err != nil {
				return runtime.UnitValue, err
			}
			if matched {
				return st.evaluateExpression(fr, arm.Expr)
			}
		}
	}
	if cases.Default >= 0 {
		return st.evaluateExpression(fr, cases.Expressions[cases.Default].Expr)
	}
	return runtime.UnitValue, nil
}

func (st *evalState) evaluateGuard(fr *frame, arm *ast.ConditionalExpr) (bool, error) {
	if arm.Condition == nil {
		return true, nil
	}
	return st.evaluateCondition(fr, arm.Condition)
}

// evaluateTryCatch intercepts catchable errors. A thrown value is bound to
// the catch variable as is; any other error becomes a map describing it.
func (st *evalState) evaluateTryCatch(fr *frame, n *ast.TryCatchStmt) (runtime.Value, error) {
	v, err := st.evaluateBlock(fr, n.Body)
	if err == nil {
		return v, nil
	}
	evalErr := runtime.AsEvalError(err, n.Position())
	if evalErr.IsPseudo() || !evalErr.IsCatchable() {
		return runtime.UnitValue, evalErr
	}
	scopeLen := fr.scope.Len()
	defer fr.scope.Rewind(scopeLen)
	if n.CatchVar != "" {
		fr.scope.Push(n.CatchVar, st.errorToValue(evalErr))
	}
	return st.evaluateBlock(fr, n.Catch)
}

// errorToValue converts a caught error into a script value.
func (st *evalState) errorToValue(err *runtime.EvalError) runtime.Value {
	inner := err.UnwrapInner()
	if inner.Kind == runtime.ErrRuntime {
		return inner.Value
	}
	bare := *inner
	bare.Pos = ast.NoPosition
	m := runtime.NewMap()
	m.Set("error", runtime.String(inner.Kind.String()))
	m.Set("message", runtime.String(bare.Error()))
	if inner.Name != "" {
		m.Set("name", runtime.String(inner.Name))
	}
	if !inner.Pos.IsNone() {
		m.Set("line", runtime.Int(int64(inner.Pos.Line)))
		m.Set("position", runtime.Int(int64(inner.Pos.Column)))
	}
	source := st.source
	if err.Kind == runtime.ErrInFunctionCall {
		m.Set("function", runtime.String(err.Name))
		if err.Source != "" {
			source = err.Source
		}
	} else if inner.Source != "" {
		source = inner.Source
	}
	m.Set("source", runtime.String(source))
	return runtime.NewMapValue(m)
}

func (st *evalState) evaluateImport(fr *frame, n *ast.ImportStmt) error {
	pathValue, err := st.evaluateExpression(fr, n.Path)
	if err != nil {
		return err
	}
	path, ok := pathValue.AsString()
	if !ok {
		return runtime.NewMismatchDataType("string", st.engine.typeName(pathValue), n.Path.Position())
	}
	if limit := st.engine.limits.MaxModules; limit > 0 && st.numModules >= limit {
		return runtime.NewEvalError(runtime.ErrTooManyModules).At(n.Position())
	}
	m, err := st.resolveModule(path, n.Path.Position())
	if err != nil {
		return err
	}
	st.numModules++
	st.imports = append(st.imports, importedModule{name: n.Alias, module: m})
	if m.HasGlobalFunctions() {
		st.freshCacheLayer()
	}
	st.engine.logger.Debug("module imported", "path", path, "alias", n.Alias, "source", st.source)
	return nil
}

// resolveModule asks the script's own resolver first, then the engine's.
func (st *evalState) resolveModule(path string, pos ast.Position) (*module.Module, error) {
	for _, r := range []ModuleResolver{st.resolver, st.engine.resolver} {
		if r == nil {
			continue
		}
		m, err := r.Resolve(st.engine, st.source, path, pos)
		if err == nil {
			return m, nil
		}
		if isModuleNotFound(err) {
			continue
		}
		evalErr := runtime.AsEvalError(err, pos)
		if evalErr.Kind == runtime.ErrInModule || evalErr.IsResourceExhausted() || evalErr.Kind == runtime.ErrTerminated {
			return nil, evalErr
		}
		return nil, &runtime.EvalError{Kind: runtime.ErrInModule, Name: path, Inner: evalErr, Pos: pos}
	}
	return nil, runtime.NewModuleNotFound(path, pos)
}
