package module

import (
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/runtime"
)

// FnAccess controls whether a function is visible outside its module.
type FnAccess int

const (
	Public FnAccess = iota
	Private
)

// FnNamespace controls how a function in a registered module is reached:
// Internal functions only through the module path (`m::f`), Global ones
// also unqualified.
type FnNamespace int

const (
	Internal FnNamespace = iota
	Global
)

// NativeFunc is the trampoline every host function is stored behind. The
// first argument is the receiver for method-style calls and may be mutated.
type NativeFunc func(ctx runtime.NativeCallContext, args []*runtime.Value) (runtime.Value, error)

// FuncInfo describes one registered function.
type FuncInfo struct {
	Name      string
	Namespace FnNamespace
	Access    FnAccess
	// Params holds one type token per parameter; TypeDynamic matches anything.
	Params []runtime.TypeID
	// ParamNames are informational (for docs and signatures).
	ParamNames []string
	Native     NativeFunc
	Script     *ast.ScriptFnDef
	// Pure native functions never mutate their first argument, so they may
	// be called as methods on constants and evaluated at compile time.
	Pure bool
	// Volatile functions have side effects or results that vary between
	// calls; they are never evaluated at compile time.
	Volatile bool
	Comments []string

	// Hash is the full hash (name, arity and parameter types).
	Hash uint64
	// NameHash is the name-and-arity hash.
	NameHash uint64
}

// IsScript reports whether the function is script-defined.
func (f *FuncInfo) IsScript() bool {
	return f.Script != nil
}

// Arity returns the number of parameters.
func (f *FuncInfo) Arity() int {
	return len(f.Params)
}

// Matches reports whether the parameter tokens accept the argument types.
func (f *FuncInfo) Matches(types []runtime.TypeID) bool {
	if len(types) != len(f.Params) {
		return false
	}
	for i, p := range f.Params {
		if !p.IsDynamic() && p != types[i] {
			return false
		}
	}
	return true
}

// Signature renders `name(type, type)`, or `name(a, b)` for script functions.
func (f *FuncInfo) Signature() string {
	if f.Script != nil {
		return f.Script.Signature()
	}
	parts := make([]string, len(f.Params))
	for i, p := range f.Params {
		name := p.String()
		if i < len(f.ParamNames) && f.ParamNames[i] != "" {
			name = f.ParamNames[i] + ": " + name
		}
		parts[i] = name
	}
	return f.Name + "(" + strings.Join(parts, ", ") + ")"
}
