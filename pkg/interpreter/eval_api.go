package interpreter

import (
	"errors"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// Eval compiles and evaluates a script in a fresh scope.
func (e *Engine) Eval(source string) (runtime.Value, error) {
	return e.EvalWithScope(runtime.NewScope(), source)
}

// EvalWithScope compiles and evaluates a script against scope. Top-level
// variables the script declares remain in scope afterwards.
func (e *Engine) EvalWithScope(scope *runtime.Scope, source string) (runtime.Value, error) {
	a, err := e.CompileWithScope(scope, source)
	if err != nil {
		return runtime.UnitValue, err
	}
	return e.EvalASTWithScope(scope, a)
}

// EvalExpression evaluates a single expression in a fresh scope.
func (e *Engine) EvalExpression(source string) (runtime.Value, error) {
	return e.EvalExpressionWithScope(runtime.NewScope(), source)
}

// EvalExpressionWithScope evaluates a single expression against scope.
func (e *Engine) EvalExpressionWithScope(scope *runtime.Scope, source string) (runtime.Value, error) {
	a, err := e.CompileExpressionWithScope(scope, source)
	if err != nil {
		return runtime.UnitValue, err
	}
	return e.EvalASTWithScope(scope, a)
}

// EvalAST evaluates a compiled script in a fresh scope.
func (e *Engine) EvalAST(a *AST) (runtime.Value, error) {
	return e.EvalASTWithScope(runtime.NewScope(), a)
}

// EvalASTWithScope evaluates a compiled script against scope.
func (e *Engine) EvalASTWithScope(scope *runtime.Scope, a *AST) (runtime.Value, error) {
	if scope == nil {
		scope = runtime.NewScope()
	}
	st := e.newState(a)
	fr := &frame{scope: scope, libs: []*module.Module{a.lib}}
	v, err := st.runTopLevel(fr, a)
	if err != nil {
		return runtime.UnitValue, err
	}
	return v, nil
}

// runTopLevel evaluates a script's statements between the debugger's start
// and end events. A top-level `return` ends the script with its value.
func (st *evalState) runTopLevel(fr *frame, a *AST) (runtime.Value, error) {
	if st.debugger != nil {
		if err := st.debugEvent(fr, DebuggerEvent{Kind: EventStart, BreakPoint: -1}, nil, ast.NoPosition); err != nil {
			return runtime.UnitValue, err
		}
	}
	v, err := st.evaluateStatements(fr, a.Statements())
	if err != nil {
		var evalErr *runtime.EvalError
		if !errors.As(err, &evalErr) || evalErr.Kind != runtime.ErrReturn {
			return runtime.UnitValue, err
		}
		v = evalErr.Value
	}
	if st.debugger != nil {
		if err := st.debugEvent(fr, DebuggerEvent{Kind: EventEnd, BreakPoint: -1, Value: v}, nil, ast.NoPosition); err != nil {
			return runtime.UnitValue, err
		}
	}
	return v.Flatten(), nil
}

// Run evaluates a script, discarding its value.
func (e *Engine) Run(source string) error {
	_, err := e.Eval(source)
	return err
}

// RunWithScope evaluates a script against scope, discarding its value.
func (e *Engine) RunWithScope(scope *runtime.Scope, source string) error {
	_, err := e.EvalWithScope(scope, source)
	return err
}

// RunAST evaluates a compiled script, discarding its value.
func (e *Engine) RunAST(a *AST) error {
	_, err := e.EvalAST(a)
	return err
}

// RunASTWithScope evaluates a compiled script against scope, discarding its
// value.
func (e *Engine) RunASTWithScope(scope *runtime.Scope, a *AST) error {
	_, err := e.EvalASTWithScope(scope, a)
	return err
}

// RunFile compiles and runs a script file.
func (e *Engine) RunFile(path string) error {
	a, err := e.CompileFile(path)
	if err != nil {
		return err
	}
	return e.RunAST(a)
}

// EvalAs evaluates a script and converts the result to T.
func EvalAs[T any](e *Engine, source string) (T, error) {
	v, err := e.Eval(source)
	if err != nil {
		var zero T
		return zero, err
	}
	return castResult[T](v)
}

// EvalASTAs evaluates a compiled script against scope and converts the
// result to T.
func EvalASTAs[T any](e *Engine, scope *runtime.Scope, a *AST) (T, error) {
	v, err := e.EvalASTWithScope(scope, a)
	if err != nil {
		var zero T
		return zero, err
	}
	return castResult[T](v)
}

// castResult converts a script's result, reporting a mismatch as an
// output-type error.
func castResult[T any](v runtime.Value) (T, error) {
	out, err := runtime.As[T](v)
	if err != nil {
		var zero T
		mismatch := runtime.NewEvalError(runtime.ErrMismatchOutputType)
		mismatch.Expected = runtime.TypeOf[T]().String()
		mismatch.Actual = v.TypeName()
		return zero, mismatch
	}
	return out, nil
}

// CallFnOptions adjusts CallFnWithOptions.
type CallFnOptions struct {
	// This binds `this` inside the function; writes go through to it.
	This *runtime.Value
	// EvalAST runs the script's top-level statements first, so functions
	// see the modules they import.
	EvalAST bool
	// RewindScope removes the bindings the top-level statements add.
	RewindScope bool
}

// CallFn evaluates the script's statements against scope, then calls the
// named function. Bindings added by the statements are removed afterwards.
func (e *Engine) CallFn(scope *runtime.Scope, a *AST, name string, args ...runtime.Value) (runtime.Value, error) {
	return e.CallFnWithOptions(CallFnOptions{EvalAST: true, RewindScope: true}, scope, a, name, args...)
}

// CallFnWithOptions calls a script function (or, failing that, a host
// function) by name.
func (e *Engine) CallFnWithOptions(opts CallFnOptions, scope *runtime.Scope, a *AST, name string, args ...runtime.Value) (runtime.Value, error) {
	if scope == nil {
		scope = runtime.NewScope()
	}
	st := e.newState(a)
	fr := &frame{scope: scope, this: opts.This, libs: []*module.Module{a.lib}}
	if opts.RewindScope {
		defer scope.Rewind(scope.Len())
	}
	if opts.EvalAST {
		if _, err := st.evaluateStatements(fr, a.Statements()); err != nil {
			var evalErr *runtime.EvalError
			if !errors.As(err, &evalErr) || evalErr.Kind != runtime.ErrReturn {
				return runtime.UnitValue, err
			}
		}
	}
	values := make([]runtime.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Flatten()
	}
	hash := runtime.CalcFnHash(nil, name, len(values))
	r := st.resolveCall(fr, hash, argTypes(values), false)
	if r == nil {
		return runtime.UnitValue, runtime.NewFunctionNotFound(st.signature(name, values), ast.NoPosition)
	}
	if r.info.Script != nil {
		return st.callScriptFn(r.info.Script, []*module.Module{r.lib}, opts.This, values, ast.NoPosition)
	}
	return st.invoke(fr, r, name, nil, values, ast.NoPosition)
}

// CallFnAs calls a script function and converts the result to T.
func CallFnAs[T any](e *Engine, scope *runtime.Scope, a *AST, name string, args ...runtime.Value) (T, error) {
	v, err := e.CallFn(scope, a, name, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return castResult[T](v)
}
