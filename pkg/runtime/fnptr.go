package runtime

import (
	"strings"

	"quill/interpreter-go/pkg/ast"
)

// FnPtr is a function pointer: a name resolved at call time, arguments
// curried in front of the call's own, and for closures the lifted script
// function itself. Bound, when set, is passed as `this`.
type FnPtr struct {
	Name  string
	Curry []Value
	Fn    *ast.ScriptFnDef
	Bound *Value
	// Env is the module a script function was defined in, so that calls
	// from elsewhere still resolve its sibling functions.
	Env any
}

// NewFnPtr creates a pointer to the named function.
func NewFnPtr(name string) *FnPtr {
	return &FnPtr{Name: name}
}

// IsAnonymous reports whether the pointer refers to a closure.
func (f *FnPtr) IsAnonymous() bool {
	return strings.HasPrefix(f.Name, ast.AnonymousFnPrefix)
}

// Clone copies the pointer; curried values follow Value.Clone semantics.
func (f *FnPtr) Clone() *FnPtr {
	out := *f
	if f.Curry != nil {
		out.Curry = make([]Value, len(f.Curry))
		for i, v := range f.Curry {
			out.Curry[i] = v.Clone()
		}
	}
	if f.Bound != nil {
		bound := f.Bound.Clone()
		out.Bound = &bound
	}
	return &out
}

// WithCurry returns a copy with extra curried arguments appended.
func (f *FnPtr) WithCurry(args ...Value) *FnPtr {
	out := f.Clone()
	out.Curry = append(out.Curry, args...)
	return out
}

// Arity returns the number of parameters still to be supplied, or -1 when
// the pointer does not refer to a known script function.
func (f *FnPtr) Arity() int {
	if f.Fn == nil {
		return -1
	}
	n := len(f.Fn.Params) - len(f.Curry)
	if n < 0 {
		return 0
	}
	return n
}
