package interpreter

import (
	"fmt"
	"iter"
	"slices"

	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// GlobalModule returns the module receiving the engine's own registrations.
func (e *Engine) GlobalModule() *module.Module {
	return e.globalModules[0]
}

// register moves a function built in a scratch module into the engine's
// own module, replacing any function with the same signature.
func (e *Engine) register(info *module.FuncInfo, err error) error {
	if err != nil {
		return err
	}
	info.Namespace = module.Global
	e.globalModules[0].ReplaceFn(info)
	e.logger.Debug("function registered", "signature", info.Signature(), "pure", info.Pure)
	return nil
}

// RegisterFn registers a Go function callable from scripts. See
// module.Reflect for the supported parameter and result types. Registering
// the same name and parameter types again replaces the earlier function.
func (e *Engine) RegisterFn(name string, fn any, opts ...module.FnOption) error {
	return e.register(module.New().SetFn(name, fn, opts...))
}

// RegisterRawFn registers a function with explicit parameter types. The
// function receives its arguments unconverted; args[0] may be mutated for
// method-style calls unless pure is set.
func (e *Engine) RegisterRawFn(name string, params []runtime.TypeID, pure bool, fn module.NativeFunc) error {
	return e.register(module.New().SetNativeFn(name, module.Global, module.Public, params, pure, fn))
}

// RegisterGet registers a property getter `obj.prop` for a host type.
func (e *Engine) RegisterGet(prop string, fn any) error {
	return e.register(module.New().SetGetterFn(prop, fn))
}

// RegisterSet registers a property setter `obj.prop = value`.
func (e *Engine) RegisterSet(prop string, fn any) error {
	return e.register(module.New().SetSetterFn(prop, fn))
}

// RegisterGetSet registers both accessors of a property.
func (e *Engine) RegisterGetSet(prop string, get, set any) error {
	if err := e.RegisterGet(prop, get); err != nil {
		return err
	}
	return e.RegisterSet(prop, set)
}

// RegisterIndexerGet registers `obj[index]` for a host type. Arrays, maps,
// strings and integers have built-in indexing and are rejected.
func (e *Engine) RegisterIndexerGet(fn any) error {
	return e.register(module.New().SetIndexerGet(fn))
}

// RegisterIndexerSet registers `obj[index] = value` for a host type.
func (e *Engine) RegisterIndexerSet(fn any) error {
	return e.register(module.New().SetIndexerSet(fn))
}

// RegisterIndexerGetSet registers both indexer accessors.
func (e *Engine) RegisterIndexerGetSet(get, set any) error {
	if err := e.RegisterIndexerGet(get); err != nil {
		return err
	}
	return e.RegisterIndexerSet(set)
}

// RegisterType gives the host type T a script-visible name, used by
// type_of and in error messages.
func RegisterType[T any](e *Engine, name string) {
	e.globalModules[0].SetCustomType(runtime.TypeOf[T](), name)
}

// RegisterIterator makes values of type T iterable by `for` loops.
func RegisterIterator[T any](e *Engine, fn func(T) iter.Seq[runtime.Value]) {
	e.globalModules[0].SetIterator(runtime.TypeOf[T](), func(v runtime.Value) (iter.Seq[runtime.Value], error) {
		x, err := runtime.As[T](v)
		if err != nil {
			return nil, err
		}
		return fn(x), nil
	})
}

// RegisterIteratorFactory makes values with type token t iterable.
func (e *Engine) RegisterIteratorFactory(t runtime.TypeID, factory module.IteratorFactory) {
	e.globalModules[0].SetIterator(t, factory)
}

// RegisterGlobalModule makes every function of m callable without
// qualification. Modules registered later take precedence over earlier
// ones; the engine's own registrations take precedence over all.
func (e *Engine) RegisterGlobalModule(m *module.Module) {
	m.BuildIndex()
	e.globalModules = slices.Insert(e.globalModules, 1, m)
	e.logger.Debug("global module registered", "id", m.ID, "functions", m.NumFunctions())
}

// RegisterStaticModule makes m reachable as `path::name` without an import.
// path may itself be qualified (`a::b`); intermediate modules are created
// as needed. Global-namespace functions of m are also callable unqualified.
func (e *Engine) RegisterStaticModule(path string, m *module.Module) error {
	segments := splitModulePath(path)
	if len(segments) == 0 {
		return fmt.Errorf("invalid static module path %q", path)
	}
	root := segments[0]
	if len(segments) == 1 {
		if _, exists := e.staticModules[root]; !exists {
			e.staticOrder = append(e.staticOrder, root)
		}
		m.BuildIndex()
		e.staticModules[root] = m
		return nil
	}
	parent, exists := e.staticModules[root]
	if !exists {
		parent = module.NewWithID(root)
		e.staticModules[root] = parent
		e.staticOrder = append(e.staticOrder, root)
	}
	for _, seg := range segments[1 : len(segments)-1] {
		child, ok := parent.SubModule(seg)
		if !ok {
			child = module.NewWithID(seg)
			parent.SetSubModule(seg, child)
		}
		parent = child
	}
	parent.SetSubModule(segments[len(segments)-1], m)
	// Re-attach the first level so the root's index is rebuilt.
	top := e.staticModules[root]
	first, _ := top.SubModule(segments[1])
	top.SetSubModule(segments[1], first)
	top.BuildIndex()
	return nil
}
