package parser

import (
	"errors"
	"fmt"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
)

// ParseErrorKind is the reason code of a syntax error.
type ParseErrorKind int

const (
	// ErrBadInput wraps a tokenizer failure.
	ErrBadInput ParseErrorKind = iota
	ErrUnexpectedEOF
	ErrUnknownOperator
	ErrMissingToken
	ErrMalformedCallExpr
	ErrMalformedIndexExpr
	ErrMalformedInExpr
	ErrDuplicatedProperty
	ErrWrongSwitchDefaultCase
	ErrWrongSwitchCaseCondition
	ErrWrongSwitchCaseValue
	ErrPropertyExpected
	ErrVariableExpected
	ErrReserved
	ErrExprExpected
	ErrWrongFnDefinition
	ErrFnDuplicatedDefinition
	ErrFnMissingName
	ErrFnMissingParams
	ErrFnDuplicatedParam
	ErrFnMissingBody
	ErrWrongExport
	ErrAssignmentToConstant
	ErrAssignmentToInvalidLHS
	ErrVariableExists
	ErrVariableUndefined
	ErrExprTooDeep
	ErrLoopBreak
	ErrImproperSymbol
	// ErrCustomSyntax wraps an error returned by a custom syntax callback.
	ErrCustomSyntax
	// ErrVariableResolver wraps an error returned by the parse-time variable
	// resolver.
	ErrVariableResolver
)

// ParseError is a syntax error. Text and Detail carry the kind-specific
// arguments (a token, a name, a description).
type ParseError struct {
	Kind   ParseErrorKind
	Text   string
	Detail string
	Pos    ast.Position
	Inner  error
}

func (e *ParseError) Error() string {
	if e.Pos.IsNone() {
		return e.Message()
	}
	return fmt.Sprintf("%s (%s)", e.Message(), e.Pos)
}

// Unwrap exposes the tokenizer or callback error.
func (e *ParseError) Unwrap() error {
	return e.Inner
}

// Message describes the error without its position.
func (e *ParseError) Message() string {
	switch e.Kind {
	case ErrBadInput:
		var lexErr *lexer.LexError
		if errors.As(e.Inner, &lexErr) {
			return lexErr.Message()
		}
		return e.Text
	case ErrUnexpectedEOF:
		return "Script is incomplete"
	case ErrUnknownOperator:
		return fmt.Sprintf("Unknown operator: '%s'", e.Text)
	case ErrMissingToken:
		return fmt.Sprintf("Expecting '%s' %s", e.Text, e.Detail)
	case ErrMalformedCallExpr:
		return "Invalid function call: " + e.Text
	case ErrMalformedIndexExpr:
		return "Invalid index in indexing expression: " + e.Text
	case ErrMalformedInExpr:
		return "Invalid 'in' expression: " + e.Text
	case ErrDuplicatedProperty:
		return fmt.Sprintf("Duplicated property '%s' for object map literal", e.Text)
	case ErrWrongSwitchDefaultCase:
		return "Default switch case must be the last"
	case ErrWrongSwitchCaseCondition:
		return "This switch case cannot have a condition"
	case ErrWrongSwitchCaseValue:
		return "Switch case values must be constants: " + e.Text
	case ErrPropertyExpected:
		return "Expecting name of a property"
	case ErrVariableExpected:
		return "Expecting name of a variable"
	case ErrReserved:
		return fmt.Sprintf("'%s' is a reserved symbol", e.Text)
	case ErrExprExpected:
		return fmt.Sprintf("Expecting %s expression", e.Text)
	case ErrWrongFnDefinition:
		return "Function definitions must be at global level and cannot be inside a block or another function"
	case ErrFnDuplicatedDefinition:
		return fmt.Sprintf("Function '%s' with %s parameters already exists", e.Text, e.Detail)
	case ErrFnMissingName:
		return "Expecting function name in function declaration"
	case ErrFnMissingParams:
		return fmt.Sprintf("Expecting parameters for function '%s'", e.Text)
	case ErrFnDuplicatedParam:
		return fmt.Sprintf("Duplicated parameter '%s' for function '%s'", e.Detail, e.Text)
	case ErrFnMissingBody:
		return fmt.Sprintf("Expecting body statement block for function '%s'", e.Text)
	case ErrWrongExport:
		return "Export statement can only appear at global level"
	case ErrAssignmentToConstant:
		return fmt.Sprintf("Cannot assign to constant '%s'", e.Text)
	case ErrAssignmentToInvalidLHS:
		if e.Text == "" {
			return "Expression cannot be assigned to"
		}
		return "Expression cannot be assigned to: " + e.Text
	case ErrVariableExists:
		return "Variable already defined: " + e.Text
	case ErrVariableUndefined:
		return "Undefined variable: " + e.Text
	case ErrExprTooDeep:
		return "Expression exceeds maximum complexity"
	case ErrLoopBreak:
		return "Break statement should only be used inside a loop"
	case ErrImproperSymbol:
		if e.Detail != "" {
			return e.Detail
		}
		return fmt.Sprintf("Improper symbol: '%s'", e.Text)
	case ErrCustomSyntax, ErrVariableResolver:
		if e.Inner != nil {
			return e.Inner.Error()
		}
		return e.Text
	default:
		return fmt.Sprintf("parse error %d", int(e.Kind))
	}
}

func newError(kind ParseErrorKind, text string, pos ast.Position) *ParseError {
	return &ParseError{Kind: kind, Text: text, Pos: pos}
}

func missingToken(token, detail string, pos ast.Position) *ParseError {
	return &ParseError{Kind: ErrMissingToken, Text: token, Detail: detail, Pos: pos}
}
