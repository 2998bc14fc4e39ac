package runtime

import "quill/interpreter-go/pkg/ast"

// NativeCallContext is handed to host functions. It identifies the call and
// lets the host call back into the engine.
type NativeCallContext interface {
	// FnName is the name the function was called by.
	FnName() string
	// Source is the active source name, empty for the main script.
	Source() string
	// Position is the call site.
	Position() ast.Position
	// Engine returns the owning engine.
	Engine() any
	// CallFn calls a function by name with the usual dispatch rules.
	CallFn(name string, args ...Value) (Value, error)
	// CallFnPtr calls a function pointer, applying curried arguments.
	CallFnPtr(fn *FnPtr, args ...Value) (Value, error)
	// CheckSize enforces the engine's size limits on a value.
	CheckSize(v Value) error
}
