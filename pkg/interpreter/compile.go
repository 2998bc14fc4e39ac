package interpreter

import (
	"fmt"
	"os"
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

// AST is a compiled script: its top-level statements plus a library of the
// functions it defines. An AST may be evaluated any number of times.
type AST struct {
	source   string
	body     *ast.StmtBlock
	lib      *module.Module
	doc      []string
	resolver ModuleResolver
}

// Source returns the name the script was compiled under.
func (a *AST) Source() string { return a.source }

// SetSource renames the script; functions it defines report the new name in
// errors.
func (a *AST) SetSource(source string) {
	a.source = source
	for _, f := range a.lib.Functions() {
		if f.Script != nil {
			f.Script.Environ = source
		}
	}
}

// Statements returns the top-level statements.
func (a *AST) Statements() []ast.Stmt {
	if a.body == nil {
		return nil
	}
	return a.body.Statements
}

// Body returns the top-level block.
func (a *AST) Body() *ast.StmtBlock { return a.body }

// Lib returns the module holding the script's functions.
func (a *AST) Lib() *module.Module { return a.lib }

// Functions returns the script-defined functions in definition order.
func (a *AST) Functions() []*ast.ScriptFnDef {
	var out []*ast.ScriptFnDef
	for _, f := range a.lib.Functions() {
		if f.Script != nil {
			out = append(out, f.Script)
		}
	}
	return out
}

// Doc returns the module documentation (`//!` lines).
func (a *AST) Doc() string { return strings.Join(a.doc, "\n") }

// SetResolver embeds a module resolver consulted before the engine's.
func (a *AST) SetResolver(r ModuleResolver) { a.resolver = r }

// Resolver returns the embedded module resolver, if any.
func (a *AST) Resolver() ModuleResolver { return a.resolver }

// ClearStatements drops the top-level statements, keeping the functions.
func (a *AST) ClearStatements() {
	a.body = ast.NewStmtBlock(nil, ast.NoSpan)
}

// ClearFunctions drops the script-defined functions.
func (a *AST) ClearFunctions() {
	a.lib = newScriptLib()
}

// Merge returns a new AST running a's statements then other's, with the
// functions of both. Functions in other replace same-signature ones in a.
func (a *AST) Merge(other *AST) *AST {
	lib := newScriptLib()
	for _, src := range []*module.Module{a.lib, other.lib} {
		for _, f := range src.Functions() {
			lib.ReplaceFn(f)
		}
	}
	stmts := make([]ast.Stmt, 0, len(a.Statements())+len(other.Statements()))
	stmts = append(stmts, a.Statements()...)
	stmts = append(stmts, other.Statements()...)
	merged := &AST{
		source:   a.source,
		body:     ast.NewStmtBlock(stmts, a.body.Span().Merge(other.body.Span())),
		lib:      lib,
		doc:      append(append([]string(nil), a.doc...), other.doc...),
		resolver: a.resolver,
	}
	if merged.resolver == nil {
		merged.resolver = other.resolver
	}
	return merged
}

func newScriptLib() *module.Module {
	lib := module.NewWithID("script")
	lib.Internal = true
	return lib
}

// Compile parses and optimizes a script.
func (e *Engine) Compile(source string) (*AST, error) {
	return e.compile(nil, "", source, false)
}

// CompileWithScope compiles against a scope: its variables count as
// declared, and its constants are propagated by the optimizer.
func (e *Engine) CompileWithScope(scope *runtime.Scope, source string) (*AST, error) {
	return e.compile(scope, "", source, false)
}

// CompileNamed compiles a script whose errors and functions report name as
// their source.
func (e *Engine) CompileNamed(scope *runtime.Scope, name, source string) (*AST, error) {
	return e.compile(scope, name, source, false)
}

// CompileFile reads and compiles a script file.
func (e *Engine) CompileFile(path string) (*AST, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return e.compile(nil, path, string(data), false)
}

// CompileExpression compiles a single expression. Statements, blocks that
// declare variables and function definitions are rejected.
func (e *Engine) CompileExpression(source string) (*AST, error) {
	return e.compile(nil, "", source, true)
}

// CompileExpressionWithScope compiles a single expression against a scope.
func (e *Engine) CompileExpressionWithScope(scope *runtime.Scope, source string) (*AST, error) {
	return e.compile(scope, "", source, true)
}

func (e *Engine) compile(scope *runtime.Scope, name, source string, expression bool) (*AST, error) {
	opts := e.parserOptions(name, scope)
	parse := parser.Parse
	if expression {
		parse = parser.ParseExpression
	}
	script, err := parse(source, opts)
	if err != nil {
		return nil, err
	}
	a := &AST{source: name, body: script.Body, lib: newScriptLib(), doc: script.Doc}
	if e.optimization != OptimizeNone {
		newOptimizer(e, e.optimization, scope).optimizeScript(script)
	}
	for _, def := range script.Functions {
		def.Environ = name
		if _, err := a.lib.SetScriptFn(def); err != nil {
			return nil, fmt.Errorf("compile %s: %w", def.Signature(), err)
		}
	}
	return a, nil
}

// OptimizeAST re-optimizes a compiled script against scope at the given
// level, typically once host constants are known. The tree is rewritten in
// place: a is returned and must not be evaluated concurrently.
func (e *Engine) OptimizeAST(scope *runtime.Scope, a *AST, level OptimizationLevel) *AST {
	if level == OptimizeNone {
		return a
	}
	if a.body == nil {
		a.body = ast.NewStmtBlock(nil, ast.NoSpan)
	}
	script := &ast.Script{Body: a.body, Functions: a.Functions(), Doc: a.doc}
	newOptimizer(e, level, scope).optimizeScript(script)
	return a
}
