package interpreter

import (
	"errors"
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

// resolvedFn is a function found by dispatch together with the module
// that defines it, which becomes the library of a script function's body.
type resolvedFn struct {
	info *module.FuncInfo
	lib  *module.Module
}

func argTypes(args []runtime.Value) []runtime.TypeID {
	types := make([]runtime.TypeID, len(args))
	for i, a := range args {
		types[i] = a.TypeID()
	}
	return types
}

// signature renders a call for error messages: `name(i64, string)`.
func (st *evalState) signature(name string, args []runtime.Value) string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = st.engine.typeName(a)
	}
	return name + "(" + strings.Join(names, ", ") + ")"
}

// resolveScriptFn searches the frame's script libraries, newest definition
// first.
func (st *evalState) resolveScriptFn(fr *frame, nameHash uint64) *resolvedFn {
	for _, lib := range fr.libs {
		if lib == nil {
			continue
		}
		fns := lib.FnsByName(nameHash)
		for i := len(fns) - 1; i >= 0; i-- {
			if fns[i].Script != nil {
				return &resolvedFn{info: fns[i], lib: lib}
			}
		}
	}
	return nil
}

// resolveNativeFn searches the global modules, then imported modules
// (newest first), then static modules. Results, misses included, are
// cached in the innermost cache layer.
func (st *evalState) resolveNativeFn(nameHash uint64, types []runtime.TypeID) *resolvedFn {
	full := runtime.CombineHashes(nameHash, runtime.CalcParamsHash(types))
	cache := st.caches[len(st.caches)-1]
	if r, ok := cache[full]; ok {
		return r
	}
	r := st.searchNativeFn(nameHash, full, types)
	cache[full] = r
	return r
}

// searchNativeFn looks for an exact parameter-type match in every
// namespace before accepting a candidate with dynamic parameters.
func (st *evalState) searchNativeFn(nameHash, full uint64, types []runtime.TypeID) *resolvedFn {
	exact := func(m *module.Module, tree bool) (*module.FuncInfo, bool) {
		if tree {
			return m.ExactGlobalFn(full)
		}
		return m.ExactFn(full)
	}
	if r := st.searchNamespaces(exact); r != nil {
		return r
	}
	return st.searchNamespaces(func(m *module.Module, tree bool) (*module.FuncInfo, bool) {
		if tree {
			return m.MatchGlobalFn(nameHash, types)
		}
		return m.MatchFn(nameHash, types)
	})
}

// searchNamespaces applies find to the global modules, then imported
// modules (newest first), then static modules. tree is set when find
// should search a module's whole global namespace rather than its own
// functions.
func (st *evalState) searchNamespaces(find func(m *module.Module, tree bool) (*module.FuncInfo, bool)) *resolvedFn {
	for _, m := range st.engine.globalModules {
		if f, ok := find(m, false); ok && f.Access == module.Public {
			return &resolvedFn{info: f, lib: m}
		}
	}
	for i := len(st.imports) - 1; i >= 0; i-- {
		m := st.imports[i].module
		if f, ok := find(m, true); ok {
			return &resolvedFn{info: f, lib: m}
		}
	}
	for _, name := range st.engine.staticOrder {
		m := st.engine.staticModules[name]
		if f, ok := find(m, true); ok {
			return &resolvedFn{info: f, lib: m}
		}
	}
	return nil
}

// resolveCall finds an unqualified function: script functions first, then
// host functions.
func (st *evalState) resolveCall(fr *frame, nameHash uint64, types []runtime.TypeID, nativeOnly bool) *resolvedFn {
	if !nativeOnly {
		if r := st.resolveScriptFn(fr, nameHash); r != nil {
			return r
		}
	}
	return st.resolveNativeFn(nameHash, types)
}

// invoke calls a resolved function with by-value arguments.
func (st *evalState) invoke(fr *frame, r *resolvedFn, name string, this *runtime.Value, args []runtime.Value, pos ast.Position) (runtime.Value, error) {
	if r.info.Script != nil {
		return st.callScriptFn(r.info.Script, []*module.Module{r.lib}, this, args, pos)
	}
	if err := st.track(pos); err != nil {
		return runtime.UnitValue, err
	}
	ptrs := make([]*runtime.Value, len(args))
	for i := range args {
		ptrs[i] = &args[i]
	}
	return st.callNative(fr, r.info, name, ptrs, pos)
}

func (st *evalState) callNative(fr *frame, info *module.FuncInfo, name string, args []*runtime.Value, pos ast.Position) (runtime.Value, error) {
	ctx := &callContext{st: st, fr: fr, name: name, pos: pos}
	v, err := info.Native(ctx, args)
	if err != nil {
		return runtime.UnitValue, runtime.AsEvalError(err, pos)
	}
	if err := st.checkSize(v, pos); err != nil {
		return runtime.UnitValue, err
	}
	return v, nil
}

// callScriptFn runs a script function in a fresh scope holding only its
// parameters. Shared arguments (captured variables) stay shared.
func (st *evalState) callScriptFn(def *ast.ScriptFnDef, libs []*module.Module, this *runtime.Value, args []runtime.Value, pos ast.Position) (runtime.Value, error) {
	if len(args) != len(def.Params) {
		return runtime.UnitValue, runtime.NewFunctionNotFound(st.signature(def.Name, args), pos)
	}
	if err := st.track(pos); err != nil {
		return runtime.UnitValue, err
	}
	if limit := st.engine.limits.MaxCallLevels; limit > 0 && st.callLevel >= limit {
		return runtime.UnitValue, runtime.NewEvalError(runtime.ErrStackOverflow).At(pos)
	}

	scope := runtime.NewScope()
	for i, name := range def.Params {
		if args[i].IsShared() {
			scope.PushDynamic(name, args[i])
		} else {
			scope.Push(name, args[i])
		}
	}
	fr := &frame{scope: scope, this: this, libs: libs}

	savedSource := st.source
	if def.Environ != "" {
		st.source = def.Environ
	}
	imports, caches := len(st.imports), len(st.caches)
	mark := st.enterBlock()
	st.callLevel++
	st.pushCallFrame(def.Name, args, pos)

	var result runtime.Value
	var err error
	if def.Body != nil {
		result, err = st.evaluateStatements(fr, def.Body.Statements)
	}
	if err != nil {
		var evalErr *runtime.EvalError
		if errors.As(err, &evalErr) && evalErr.Kind == runtime.ErrReturn {
			result, err = evalErr.Value, nil
		}
	}
	if dbgErr := st.debugFunctionExit(fr, result, err, pos); dbgErr != nil && err == nil {
		err = dbgErr
	}

	st.popCallFrame()
	st.callLevel--
	st.leaveBlock(mark)
	st.rewind(imports, caches)
	source := st.source
	st.source = savedSource

	if err != nil {
		evalErr := runtime.AsEvalError(err, pos)
		if evalErr.IsPseudo() || evalErr.Kind == runtime.ErrTerminated || evalErr.IsResourceExhausted() {
			return runtime.UnitValue, evalErr
		}
		return runtime.UnitValue, runtime.NewInFunctionCall(def.Name, source, evalErr, pos)
	}
	return result.Flatten(), nil
}

// callFunction calls an unqualified function by name. When nothing matches
// and a variable of that name holds a function pointer, the pointer is
// called instead.
func (st *evalState) callFunction(fr *frame, name string, nameHash uint64, args []runtime.Value, nativeOnly bool, pos ast.Position) (runtime.Value, error) {
	if r := st.resolveCall(fr, nameHash, argTypes(args), nativeOnly); r != nil {
		return st.invoke(fr, r, name, nil, args, pos)
	}
	if idx, ok := fr.scope.Search(name); ok {
		_, slot := fr.scope.Entry(idx)
		if fp, ok := slot.AsFnPtr(); ok {
			return st.callFnPtr(fr, fp, nil, args, pos)
		}
	}
	return runtime.UnitValue, runtime.NewFunctionNotFound(st.signature(name, args), pos)
}

// callFnByName is the entry point for calls made by host code.
func (st *evalState) callFnByName(fr *frame, name string, args []runtime.Value, pos ast.Position) (runtime.Value, error) {
	if lexer.IsStandardSymbol(name) && (len(args) == 1 || len(args) == 2) {
		return st.callOperator(fr, name, args, pos)
	}
	if name == "call" && len(args) > 0 {
		if fp, ok := args[0].AsFnPtr(); ok {
			return st.callFnPtr(fr, fp, nil, args[1:], pos)
		}
	}
	return st.callFunction(fr, name, runtime.CalcFnHash(nil, name, len(args)), args, false, pos)
}

// callFnPtr calls through a function pointer: curried arguments first,
// then args. A closure runs against the library it was created in.
func (st *evalState) callFnPtr(fr *frame, fp *runtime.FnPtr, this *runtime.Value, args []runtime.Value, pos ast.Position) (runtime.Value, error) {
	all := make([]runtime.Value, 0, len(fp.Curry)+len(args))
	for _, c := range fp.Curry {
		if !c.IsShared() {
			c = c.Clone()
		}
		all = append(all, c)
	}
	all = append(all, args...)
	if this == nil && fp.Bound != nil {
		this = fp.Bound
	}
	if fp.Fn != nil {
		libs := fr.libs
		if lib, ok := fp.Env.(*module.Module); ok && lib != nil {
			libs = []*module.Module{lib}
		}
		return st.callScriptFn(fp.Fn, libs, this, all, pos)
	}
	if lexer.IsStandardSymbol(fp.Name) && (len(all) == 1 || len(all) == 2) {
		return st.callOperator(fr, fp.Name, all, pos)
	}
	callFr := fr
	if lib, ok := fp.Env.(*module.Module); ok {
		callFr = frameWithLib(fr, lib)
	}
	hash := runtime.CalcFnHash(nil, fp.Name, len(all))
	if r := st.resolveCall(callFr, hash, argTypes(all), false); r != nil {
		return st.invoke(callFr, r, fp.Name, this, all, pos)
	}
	return runtime.UnitValue, runtime.NewFunctionNotFound(st.signature(fp.Name, all), pos)
}

// callOperator applies an operator. With fast operators enabled the
// built-in implementation for primitive operands wins; otherwise host
// overloads are tried first. `==` and `!=` between different types with no
// overload compare unequal.
func (st *evalState) callOperator(fr *frame, op string, args []runtime.Value, pos ast.Position) (runtime.Value, error) {
	e := st.engine
	var builtin func() (runtime.Value, error)
	switch len(args) {
	case 1:
		if fn, ok := builtinUnaryOp(op, args[0]); ok {
			builtin = func() (runtime.Value, error) { return fn(pos, args[0]) }
		}
	case 2:
		if b, ok := builtinBinaryOp(op, args[0], args[1]); ok {
			builtin = func() (runtime.Value, error) { return b.fn(e, pos, args[0], args[1]) }
		}
	}
	if builtin != nil && e.fastOperators {
		return builtin()
	}
	hash := runtime.CalcFnHash(nil, op, len(args))
	if r := st.resolveNativeFn(hash, argTypes(args)); r != nil {
		return st.invoke(fr, r, op, nil, args, pos)
	}
	if builtin != nil {
		return builtin()
	}
	if len(args) == 2 && args[0].TypeID() != args[1].TypeID() {
		switch op {
		case "==":
			return runtime.Bool(false), nil
		case "!=":
			return runtime.Bool(true), nil
		}
	}
	return runtime.UnitValue, runtime.NewFunctionNotFound(st.signature(op, args), pos)
}

func (st *evalState) evaluateArgs(fr *frame, exprs []ast.Expr) ([]runtime.Value, error) {
	args := make([]runtime.Value, len(exprs))
	for i, expr := range exprs {
		v, err := st.evaluateExpression(fr, expr)
		if err != nil {
			return nil, err
		}
		args[i] = v.Flatten()
	}
	return args, nil
}

func (st *evalState) evaluateFnCall(fr *frame, call *ast.FnCallExpr) (runtime.Value, error) {
	pos := call.Position()
	if call.IsOperator() {
		args, err := st.evaluateArgs(fr, call.Args)
		if err != nil {
			return runtime.UnitValue, err
		}
		return st.callOperator(fr, call.Name, args, pos)
	}
	if call.IsQualified() {
		return st.evaluateQualifiedCall(fr, call)
	}
	if !call.NativeOnly {
		if v, handled, err := st.evaluateSpecialCall(fr, call); handled {
			return v, err
		}
	}
	args, err := st.evaluateArgs(fr, call.Args)
	if err != nil {
		return runtime.UnitValue, err
	}
	return st.callFunction(fr, call.Name, call.Hash, args, call.NativeOnly, pos)
}

func (st *evalState) evaluateQualifiedCall(fr *frame, call *ast.FnCallExpr) (runtime.Value, error) {
	pos := call.Position()
	args, err := st.evaluateArgs(fr, call.Args)
	if err != nil {
		return runtime.UnitValue, err
	}
	root := call.Namespace.Root()
	m, ok := st.findModule(fr, root)
	if !ok {
		return runtime.UnitValue, runtime.NewModuleNotFound(root, call.Namespace.Pos.Or(pos))
	}
	info, ok := m.ResolveQualifiedFn(call.Namespace.Path[1:], call.Name, argTypes(args))
	if !ok {
		return runtime.UnitValue, runtime.NewFunctionNotFound(call.Namespace.String()+st.signature(call.Name, args), pos)
	}
	return st.invoke(fr, &resolvedFn{info: info, lib: m}, call.Name, nil, args, pos)
}

// evaluateSpecialCall handles the functions the evaluator implements
// itself because they need the caller's scope or library.
func (st *evalState) evaluateSpecialCall(fr *frame, call *ast.FnCallExpr) (runtime.Value, bool, error) {
	pos := call.Position()
	n := len(call.Args)
	switch {
	case call.Name == "is_shared" && n == 1:
		v, ok := call.Args[0].(*ast.Variable)
		if !ok || v.IsQualified() {
			return runtime.Bool(false), true, nil
		}
		slot, _, err := st.lookupVariable(fr, v)
		if err != nil {
			return runtime.UnitValue, true, err
		}
		return runtime.Bool(slot.IsShared()), true, nil
	case call.Name == "Fn" && n == 1,
		call.Name == "call" && n >= 1,
		call.Name == "curry" && n >= 1,
		call.Name == "is_def_var" && n == 1,
		call.Name == "is_def_fn" && n == 2,
		call.Name == "eval" && n == 1:
	default:
		return runtime.UnitValue, false, nil
	}

	args, err := st.evaluateArgs(fr, call.Args)
	if err != nil {
		return runtime.UnitValue, true, err
	}
	switch call.Name {
	case "Fn":
		name, ok := args[0].AsString()
		if !ok {
			return runtime.UnitValue, true, runtime.NewMismatchDataType("string", st.engine.typeName(args[0]), call.Args[0].Position())
		}
		if !lexer.IsValidIdentifier(name) && !strings.HasPrefix(name, ast.AnonymousFnPrefix) {
			return runtime.UnitValue, true, runtime.NewFunctionNotFound(name, pos).WithMessage("'%s' is not a valid function name", name)
		}
		fp := runtime.NewFnPtr(name)
		if len(fr.libs) > 0 && fr.libs[0] != nil {
			fp.Env = fr.libs[0]
		}
		return runtime.NewFnPtrValue(fp), true, nil
	case "call":
		fp, ok := args[0].AsFnPtr()
		if !ok {
			return runtime.UnitValue, true, runtime.NewMismatchDataType("Fn", st.engine.typeName(args[0]), call.Args[0].Position())
		}
		v, err := st.callFnPtr(fr, fp, nil, args[1:], pos)
		return v, true, err
	case "curry":
		fp, ok := args[0].AsFnPtr()
		if !ok {
			return runtime.UnitValue, true, runtime.NewMismatchDataType("Fn", st.engine.typeName(args[0]), call.Args[0].Position())
		}
		return runtime.NewFnPtrValue(fp.WithCurry(args[1:]...)), true, nil
	case "is_def_var":
		name, ok := args[0].AsString()
		if !ok {
			return runtime.UnitValue, true, runtime.NewMismatchDataType("string", st.engine.typeName(args[0]), call.Args[0].Position())
		}
		if fr.scope.Contains(name) {
			return runtime.Bool(true), true, nil
		}
		_, found := st.globalConstant(name)
		return runtime.Bool(found), true, nil
	case "is_def_fn":
		name, ok := args[0].AsString()
		arity, ok2 := args[1].AsInt()
		if !ok || !ok2 {
			return runtime.UnitValue, true, runtime.NewMismatchDataType("string, i64", st.signature("", args), pos)
		}
		found := st.resolveScriptFn(fr, runtime.CalcFnHash(nil, name, int(arity))) != nil
		return runtime.Bool(found), true, nil
	case "eval":
		text, ok := args[0].AsString()
		if !ok {
			return runtime.UnitValue, true, runtime.NewMismatchDataType("string", st.engine.typeName(args[0]), call.Args[0].Position())
		}
		v, err := st.evaluateText(fr, text, pos)
		return v, true, err
	}
	return runtime.UnitValue, false, nil
}

// evaluateText compiles and runs source in the caller's scope. Variables it
// declares stay defined afterwards.
func (st *evalState) evaluateText(fr *frame, text string, pos ast.Position) (runtime.Value, error) {
	e := st.engine
	script, err := parser.Parse(text, e.parserOptions(st.source, fr.scope))
	if err != nil {
		return runtime.UnitValue, &runtime.EvalError{Kind: runtime.ErrParsing, Inner: err, Pos: pos}
	}
	if len(script.Functions) > 0 {
		lib := module.New()
		for _, def := range script.Functions {
			def.Environ = st.source
			if _, err := lib.SetScriptFn(def); err != nil {
				return runtime.UnitValue, runtime.NewSystemError("eval", err)
			}
		}
		saved := fr.libs
		fr.libs = append([]*module.Module{lib}, fr.libs...)
		defer func() { fr.libs = saved }()
	}
	if e.optimization != OptimizeNone {
		newOptimizer(e, e.optimization, fr.scope).optimizeScript(script)
	}
	v, err := st.evaluateStatements(fr, script.Body.Statements)
	if err != nil {
		var evalErr *runtime.EvalError
		if errors.As(err, &evalErr) && evalErr.Kind == runtime.ErrReturn {
			return evalErr.Value, nil
		}
		return runtime.UnitValue, err
	}
	return v, nil
}
