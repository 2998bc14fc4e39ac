package lexer

import (
	"fmt"

	"quill/interpreter-go/pkg/ast"
)

// LexErrorKind classifies tokenizer failures.
type LexErrorKind int

const (
	ErrUnexpectedInput LexErrorKind = iota
	ErrUnterminatedString
	ErrStringTooLong
	ErrMalformedEscapeSequence
	ErrMalformedNumber
	ErrMalformedChar
	ErrUnterminatedComment
	ErrImproperSymbol
)

func (k LexErrorKind) String() string {
	switch k {
	case ErrUnexpectedInput:
		return "unexpected input"
	case ErrUnterminatedString:
		return "unterminated string"
	case ErrStringTooLong:
		return "string too long"
	case ErrMalformedEscapeSequence:
		return "malformed escape sequence"
	case ErrMalformedNumber:
		return "malformed number"
	case ErrMalformedChar:
		return "malformed character"
	case ErrUnterminatedComment:
		return "unterminated comment"
	case ErrImproperSymbol:
		return "improper symbol"
	default:
		return fmt.Sprintf("lex_error_%d", int(k))
	}
}

// LexError reports a tokenizer failure at a position.
type LexError struct {
	Kind LexErrorKind
	Text string
	Pos  ast.Position
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message(), e.Pos)
}

// Message describes the failure without its position.
func (e *LexError) Message() string {
	if e.Text == "" {
		return capitalize(e.Kind.String())
	}
	return capitalize(e.Kind.String()) + ": " + e.Text
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
