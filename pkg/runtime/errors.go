package runtime

import (
	"errors"
	"fmt"
	"strings"

	"quill/interpreter-go/pkg/ast"
)

// ErrorKind classifies evaluation failures.
type ErrorKind int

const (
	// ErrSystem is an unrecoverable host-side failure; Inner holds the cause.
	ErrSystem ErrorKind = iota
	// ErrParsing wraps a syntax error raised while evaluating source at runtime.
	ErrParsing
	ErrVariableExists
	ErrForbiddenVariable
	ErrVariableNotFound
	ErrPropertyNotFound
	ErrIndexingType
	ErrFunctionNotFound
	ErrModuleNotFound
	ErrInFunctionCall
	ErrInModule
	ErrUnboundThis
	ErrMismatchDataType
	ErrMismatchOutputType
	ErrArrayBounds
	ErrStringBounds
	ErrBitFieldBounds
	ErrFor
	ErrDataRace
	ErrNonPureMethodCallOnConstant
	ErrAssignmentToConstant
	ErrDotExpr
	ErrArithmetic
	ErrTooManyOperations
	ErrTooManyModules
	ErrStackOverflow
	ErrDataTooLarge
	ErrTerminated
	ErrCustomSyntax
	// ErrRuntime carries the payload of `throw`.
	ErrRuntime
	// ErrLoopBreak is the pseudo error raised by `break`/`continue`.
	ErrLoopBreak
	// ErrReturn is the pseudo error raised by `return`.
	ErrReturn
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSystem:
		return "ErrorSystem"
	case ErrParsing:
		return "ErrorParsing"
	case ErrVariableExists:
		return "ErrorVariableExists"
	case ErrForbiddenVariable:
		return "ErrorForbiddenVariable"
	case ErrVariableNotFound:
		return "ErrorVariableNotFound"
	case ErrPropertyNotFound:
		return "ErrorPropertyNotFound"
	case ErrIndexingType:
		return "ErrorIndexingType"
	case ErrFunctionNotFound:
		return "ErrorFunctionNotFound"
	case ErrModuleNotFound:
		return "ErrorModuleNotFound"
	case ErrInFunctionCall:
		return "ErrorInFunctionCall"
	case ErrInModule:
		return "ErrorInModule"
	case ErrUnboundThis:
		return "ErrorUnboundThis"
	case ErrMismatchDataType:
		return "ErrorMismatchDataType"
	case ErrMismatchOutputType:
		return "ErrorMismatchOutputType"
	case ErrArrayBounds:
		return "ErrorArrayBounds"
	case ErrStringBounds:
		return "ErrorStringBounds"
	case ErrBitFieldBounds:
		return "ErrorBitFieldBounds"
	case ErrFor:
		return "ErrorFor"
	case ErrDataRace:
		return "ErrorDataRace"
	case ErrNonPureMethodCallOnConstant:
		return "ErrorNonPureMethodCallOnConstant"
	case ErrAssignmentToConstant:
		return "ErrorAssignmentToConstant"
	case ErrDotExpr:
		return "ErrorDotExpr"
	case ErrArithmetic:
		return "ErrorArithmetic"
	case ErrTooManyOperations:
		return "ErrorTooManyOperations"
	case ErrTooManyModules:
		return "ErrorTooManyModules"
	case ErrStackOverflow:
		return "ErrorStackOverflow"
	case ErrDataTooLarge:
		return "ErrorDataTooLarge"
	case ErrTerminated:
		return "ErrorTerminated"
	case ErrCustomSyntax:
		return "ErrorCustomSyntax"
	case ErrRuntime:
		return "ErrorRuntime"
	case ErrLoopBreak:
		return "LoopBreak"
	case ErrReturn:
		return "Return"
	default:
		return fmt.Sprintf("Error%d", int(k))
	}
}

// EvalError is the single error type produced by evaluation. Which fields
// are meaningful depends on Kind.
type EvalError struct {
	Kind ErrorKind
	Pos  ast.Position
	// Name is the variable, property, function, module or type involved.
	Name string
	// Source names the script the error belongs to: the called function's
	// source for ErrInFunctionCall, the file for ErrParsing.
	Source string
	// Index and Length describe bounds errors.
	Index  int64
	Length int64
	// Expected and Actual are type names for mismatch errors.
	Expected string
	Actual   string
	// Value is the thrown payload, the break/return value, or the
	// termination token.
	Value Value
	// IsBreak distinguishes `break` from `continue`.
	IsBreak bool
	Inner   error
	Message string
}

// NewEvalError creates an error of the given kind without position.
func NewEvalError(kind ErrorKind) *EvalError {
	return &EvalError{Kind: kind}
}

// At sets the position and returns e.
func (e *EvalError) At(pos ast.Position) *EvalError {
	e.Pos = pos
	return e
}

// WithName sets Name and returns e.
func (e *EvalError) WithName(name string) *EvalError {
	e.Name = name
	return e
}

// WithMessage sets Message and returns e.
func (e *EvalError) WithMessage(format string, args ...any) *EvalError {
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// Constructors for the common cases.

func NewVariableNotFound(name string, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrVariableNotFound, Name: name, Pos: pos}
}

func NewFunctionNotFound(signature string, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrFunctionNotFound, Name: signature, Pos: pos}
}

func NewPropertyNotFound(name string, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrPropertyNotFound, Name: name, Pos: pos}
}

func NewModuleNotFound(path string, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrModuleNotFound, Name: path, Pos: pos}
}

func NewAssignmentToConstant(name string, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrAssignmentToConstant, Name: name, Pos: pos}
}

// NewMismatchDataType reports a value of the wrong type.
func NewMismatchDataType(expected, actual string, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrMismatchDataType, Expected: expected, Actual: actual, Pos: pos}
}

// NewArithmetic reports overflow, division by zero and similar failures.
func NewArithmetic(message string, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrArithmetic, Message: message, Pos: pos}
}

// NewBounds reports an out-of-range index for an array, string or bit field.
func NewBounds(kind ErrorKind, length, index int64, pos ast.Position) *EvalError {
	return &EvalError{Kind: kind, Length: length, Index: index, Pos: pos}
}

// NewDataTooLarge reports a size limit violation; what names the quantity.
func NewDataTooLarge(what string, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrDataTooLarge, Name: what, Pos: pos}
}

// NewRuntimeError wraps a thrown value.
func NewRuntimeError(value Value, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrRuntime, Value: value, Pos: pos}
}

// NewSystemError wraps a host failure.
func NewSystemError(message string, inner error) *EvalError {
	return &EvalError{Kind: ErrSystem, Message: message, Inner: inner}
}

// NewInFunctionCall wraps an error raised inside a called function.
func NewInFunctionCall(name, source string, inner error, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrInFunctionCall, Name: name, Source: source, Inner: inner, Pos: pos}
}

// NewLoopBreak builds the `break`/`continue` pseudo error.
func NewLoopBreak(isBreak bool, value Value, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrLoopBreak, IsBreak: isBreak, Value: value, Pos: pos}
}

// NewReturn builds the `return` pseudo error.
func NewReturn(value Value, pos ast.Position) *EvalError {
	return &EvalError{Kind: ErrReturn, Value: value, Pos: pos}
}

func (e *EvalError) Error() string {
	var b strings.Builder
	b.WriteString(e.message())
	if !e.Pos.IsNone() {
		fmt.Fprintf(&b, " (%s)", e.Pos)
	}
	return b.String()
}

func (e *EvalError) message() string {
	switch e.Kind {
	case ErrSystem:
		if e.Inner != nil {
			if e.Message == "" {
				return e.Inner.Error()
			}
			return fmt.Sprintf("%s: %v", e.Message, e.Inner)
		}
		return e.Message
	case ErrParsing:
		if e.Inner != nil {
			return e.Inner.Error()
		}
		return "Syntax error: " + e.Message
	case ErrVariableExists:
		return "Variable already defined: " + e.Name
	case ErrForbiddenVariable:
		return "Forbidden variable name: " + e.Name
	case ErrVariableNotFound:
		return "Variable not found: " + e.Name
	case ErrPropertyNotFound:
		return "Property not found: " + e.Name
	case ErrIndexingType:
		return "Indexer unavailable: " + e.Name
	case ErrFunctionNotFound:
		return "Function not found: " + e.Name
	case ErrModuleNotFound:
		return "Module not found: " + e.Name
	case ErrInFunctionCall:
		if e.Source != "" {
			return fmt.Sprintf("Error in call to function '%s' @ '%s': %v", e.Name, e.Source, e.Inner)
		}
		return fmt.Sprintf("Error in call to function '%s': %v", e.Name, e.Inner)
	case ErrInModule:
		return fmt.Sprintf("Error in module '%s': %v", e.Name, e.Inner)
	case ErrUnboundThis:
		return "'this' is not bound"
	case ErrMismatchDataType:
		if e.Expected == "" {
			return "Data type incorrect: " + e.Actual
		}
		return fmt.Sprintf("Data type incorrect: %s (expecting %s)", e.Actual, e.Expected)
	case ErrMismatchOutputType:
		return fmt.Sprintf("Output type incorrect: %s (expecting %s)", e.Actual, e.Expected)
	case ErrArrayBounds:
		return boundsMessage("Array index", e.Length, e.Index, "element")
	case ErrStringBounds:
		return boundsMessage("String index", e.Length, e.Index, "character")
	case ErrBitFieldBounds:
		return boundsMessage("Bit-field index", e.Length, e.Index, "bit")
	case ErrFor:
		return "For loop expects an iterable type, not " + e.Actual
	case ErrDataRace:
		if e.Name == "" {
			return "Data race detected"
		}
		return "Data race detected when accessing variable: " + e.Name
	case ErrNonPureMethodCallOnConstant:
		return fmt.Sprintf("Non-pure method '%s' cannot be called on constant", e.Name)
	case ErrAssignmentToConstant:
		return "Cannot modify constant: " + e.Name
	case ErrDotExpr:
		return "Malformed dot expression: " + e.Message
	case ErrArithmetic:
		return e.Message
	case ErrTooManyOperations:
		return "Too many operations"
	case ErrTooManyModules:
		return "Too many modules imported"
	case ErrStackOverflow:
		return "Stack overflow"
	case ErrDataTooLarge:
		return e.Name + " exceeds maximum limit"
	case ErrTerminated:
		return "Script terminated"
	case ErrCustomSyntax:
		return e.Message
	case ErrRuntime:
		if e.Message != "" {
			return e.Message
		}
		if e.Value.IsUnit() {
			return "Runtime error"
		}
		return "Runtime error: " + ToString(e.Value)
	case ErrLoopBreak:
		if e.IsBreak {
			return "'break' not inside a loop"
		}
		return "'continue' not inside a loop"
	case ErrReturn:
		return "NOT AN ERROR - function returns value"
	default:
		return e.Kind.String()
	}
}

func boundsMessage(what string, length, index int64, unit string) string {
	if length == 0 {
		return fmt.Sprintf("%s %d out of bounds: no %ss", what, index, unit)
	}
	plural := ""
	if length != 1 {
		plural = "s"
	}
	return fmt.Sprintf("%s %d out of bounds: only %d %s%s", what, index, length, unit, plural)
}

// Unwrap exposes the inner error to errors.Is/As.
func (e *EvalError) Unwrap() error {
	return e.Inner
}

// FillPosition sets the position if none has been recorded yet.
func (e *EvalError) FillPosition(pos ast.Position) *EvalError {
	if e.Pos.IsNone() {
		e.Pos = pos
	}
	return e
}

// UnwrapInner strips function-call and module wrappers.
func (e *EvalError) UnwrapInner() *EvalError {
	current := e
	for current.Kind == ErrInFunctionCall || current.Kind == ErrInModule {
		var inner *EvalError
		if !errors.As(current.Inner, &inner) {
			return current
		}
		current = inner
	}
	return current
}

// IsPseudo reports whether the error is a control-flow signal.
func (e *EvalError) IsPseudo() bool {
	return e.Kind == ErrLoopBreak || e.Kind == ErrReturn
}

// IsCatchable reports whether `try`/`catch` may intercept the error.
func (e *EvalError) IsCatchable() bool {
	switch e.Kind {
	case ErrSystem, ErrParsing, ErrCustomSyntax, ErrTooManyOperations, ErrTooManyModules,
		ErrStackOverflow, ErrDataTooLarge, ErrTerminated, ErrLoopBreak, ErrReturn:
		return false
	case ErrInFunctionCall, ErrInModule:
		var inner *EvalError
		if errors.As(e.Inner, &inner) {
			return inner.IsCatchable()
		}
		return true
	default:
		return true
	}
}

// IsResourceExhausted reports whether a configured limit was exceeded.
func (e *EvalError) IsResourceExhausted() bool {
	switch e.UnwrapInner().Kind {
	case ErrTooManyOperations, ErrTooManyModules, ErrStackOverflow, ErrDataTooLarge:
		return true
	}
	return false
}

// AsEvalError converts any error into an *EvalError. Plain Go errors
// returned by host functions become runtime errors carrying the message.
func AsEvalError(err error, pos ast.Position) *EvalError {
	if err == nil {
		return nil
	}
	var evalErr *EvalError
	if errors.As(err, &evalErr) {
		return evalErr.FillPosition(pos)
	}
	return &EvalError{Kind: ErrRuntime, Value: String(err.Error()), Message: err.Error(), Inner: err, Pos: pos}
}
