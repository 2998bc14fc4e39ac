package interpreter

import (
	"errors"
	"fmt"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// ModuleFromAST evaluates a script as a module. The result holds the
// variables the script exports (under their export names), its functions
// (private ones stay callable only from inside the module) and the modules
// it imports under an alias.
func (e *Engine) ModuleFromAST(scope *runtime.Scope, a *AST) (*module.Module, error) {
	if scope == nil {
		scope = runtime.NewScope()
	}
	st := e.newState(a)
	fr := &frame{scope: scope, libs: []*module.Module{a.lib}}
	mark := scope.Len()
	defer scope.Rewind(mark)

	if _, err := st.evaluateStatements(fr, a.Statements()); err != nil {
		var evalErr *runtime.EvalError
		if !errors.As(err, &evalErr) || evalErr.Kind != runtime.ErrReturn {
			return nil, err
		}
	}

	m := module.NewWithID(a.source)
	m.Doc = a.Doc()
	for _, entry := range scope.Iter()[mark:] {
		for _, alias := range entry.Aliases {
			m.SetVar(alias, entry.Value.Flatten())
		}
	}
	for _, def := range a.Functions() {
		if _, err := m.SetScriptFn(def); err != nil {
			return nil, fmt.Errorf("module %s: %w", a.source, err)
		}
	}
	for _, imp := range st.imports {
		if imp.name != "" {
			m.SetSubModule(imp.name, imp.module)
		}
	}
	m.BuildIndex()
	e.logger.Debug("module from script",
		"source", a.source,
		"functions", m.NumFunctions(),
		"exports", exportedNames(a.Statements()),
		"submodules", len(m.SubModules()))
	return m, nil
}

// ModuleFromSource compiles source under name and evaluates it as a module.
func (e *Engine) ModuleFromSource(name, source string) (*module.Module, error) {
	a, err := e.CompileNamed(nil, name, source)
	if err != nil {
		return nil, err
	}
	return e.ModuleFromAST(nil, a)
}

// exportedNames lists the bindings a module script exports, for diagnostics.
func exportedNames(stmts []ast.Stmt) []string {
	var names []string
	for _, s := range stmts {
		switch n := s.(type) {
		case *ast.VarStmt:
			if n.IsExported() {
				name := n.Name
				if n.Alias != "" {
					name = n.Alias
				}
				names = append(names, name)
			}
		case *ast.ExportStmt:
			names = append(names, n.ExportName())
		}
	}
	return names
}
