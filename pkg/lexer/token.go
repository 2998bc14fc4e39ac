// Package lexer implements the Quill tokenizer.
package lexer

import (
	"fmt"

	"quill/interpreter-go/pkg/ast"
)

// TokenKind identifies the class of a token. Symbols and keywords share a
// kind each; the parser distinguishes them by Text.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokKeyword
	TokSymbol
	TokInt
	TokFloat
	TokChar
	TokString
	// TokInterpolated is a backtick string; Parts holds literal and
	// embedded-expression segments.
	TokInterpolated
	// TokCustom is a host-registered keyword or operator.
	TokCustom
	// TokReserved is a reserved or disabled symbol. Using one is a syntax error.
	TokReserved
	// TokDocComment is a `///` or `/** */` comment; Text holds it verbatim.
	TokDocComment
	// TokModuleDoc is a `//!` comment.
	TokModuleDoc
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "end of input"
	case TokIdent:
		return "identifier"
	case TokKeyword:
		return "keyword"
	case TokSymbol:
		return "symbol"
	case TokInt:
		return "integer"
	case TokFloat:
		return "float"
	case TokChar:
		return "character"
	case TokString:
		return "string"
	case TokInterpolated:
		return "interpolated string"
	case TokCustom:
		return "custom symbol"
	case TokReserved:
		return "reserved symbol"
	case TokDocComment:
		return "doc comment"
	case TokModuleDoc:
		return "module doc"
	default:
		return fmt.Sprintf("token_%d", int(k))
	}
}

// InterpPart is one segment of an interpolated string. Expression segments
// carry the embedded source and the position it starts at.
type InterpPart struct {
	Expr bool
	Text string
	Pos  ast.Position
}

// Token is a lexeme with its source span. Int, Float and Char carry the
// decoded literal; String carries the unescaped text in Text.
type Token struct {
	Kind  TokenKind
	Text  string
	Span  ast.Span
	Int   int64
	Float float64
	Char  rune
	Parts []InterpPart
}

// Pos returns the token's start position.
func (t Token) Pos() ast.Position {
	return t.Span.Start
}

// Is reports whether the token is the given symbol or keyword.
func (t Token) Is(text string) bool {
	return (t.Kind == TokSymbol || t.Kind == TokKeyword) && t.Text == text
}

// Syntax renders the token the way it appears in source.
func (t Token) Syntax() string {
	switch t.Kind {
	case TokEOF:
		return "{EOF}"
	case TokString:
		return fmt.Sprintf("%q", t.Text)
	case TokChar:
		return fmt.Sprintf("%q", t.Char)
	case TokInterpolated:
		return "`...`"
	default:
		return t.Text
	}
}

func (t Token) String() string {
	return fmt.Sprintf("%s %s at %s", t.Kind, t.Syntax(), t.Span.Start)
}

var keywords = map[string]struct{}{
	"true":     {},
	"false":    {},
	"let":      {},
	"const":    {},
	"if":       {},
	"else":     {},
	"switch":   {},
	"do":       {},
	"while":    {},
	"until":    {},
	"loop":     {},
	"for":      {},
	"in":       {},
	"break":    {},
	"continue": {},
	"return":   {},
	"throw":    {},
	"try":      {},
	"catch":    {},
	"import":   {},
	"export":   {},
	"as":       {},
	"fn":       {},
	"private":  {},
	"this":     {},
}

// Words reserved for future use. They lex as TokReserved.
var reservedWords = map[string]struct{}{
	"var":       {},
	"static":    {},
	"shared":    {},
	"goto":      {},
	"exit":      {},
	"match":     {},
	"case":      {},
	"public":    {},
	"protected": {},
	"new":       {},
	"use":       {},
	"with":      {},
	"module":    {},
	"package":   {},
	"super":     {},
	"spawn":     {},
	"thread":    {},
	"go":        {},
	"sync":      {},
	"async":     {},
	"await":     {},
	"yield":     {},
	"default":   {},
	"void":      {},
	"null":      {},
	"nil":       {},
	"global":    {},
}

// Standard symbols, grouped by length for maximal munch.
var symbols3 = []string{"<<=", ">>=", "..=", "**=", "??="}
var symbols2 = []string{
	"==", "!=", "<=", ">=", "&&", "||", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"<<", ">>", "**", "..", "::", "=>", "?.", "?[", "??", "#{",
}
var symbols1 = "+-*/%=<>!&|^()[]{},;:.?"

// Symbols reserved for future use.
var reservedSymbols3 = []string{"===", "!==", "...", "::<"}
var reservedSymbols2 = []string{"->", "<-", ":=", "++", "--", "|>", ";;", ":;"}
var reservedSymbols1 = "@$~#"

// IsKeyword reports whether s is a standard keyword.
func IsKeyword(s string) bool {
	_, ok := keywords[s]
	return ok
}

// IsReserved reports whether s is a reserved word or symbol.
func IsReserved(s string) bool {
	if _, ok := reservedWords[s]; ok {
		return true
	}
	for _, sym := range reservedSymbols3 {
		if sym == s {
			return true
		}
	}
	for _, sym := range reservedSymbols2 {
		if sym == s {
			return true
		}
	}
	return len(s) == 1 && containsByte(reservedSymbols1, s[0])
}

// IsStandardSymbol reports whether s is an operator or punctuation symbol.
func IsStandardSymbol(s string) bool {
	switch len(s) {
	case 1:
		return containsByte(symbols1, s[0])
	case 2:
		for _, sym := range symbols2 {
			if sym == s {
				return true
			}
		}
	case 3:
		for _, sym := range symbols3 {
			if sym == s {
				return true
			}
		}
	}
	return s == "!in"
}

// IsValidIdentifier reports whether s can name a variable or function.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	allUnderscore := true
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if i == 0 && isDigit(ch) {
			return false
		}
		if !isIdentChar(ch) {
			return false
		}
		if ch != '_' {
			allUnderscore = false
		}
	}
	return !allUnderscore
}

func containsByte(set string, ch byte) bool {
	for i := 0; i < len(set); i++ {
		if set[i] == ch {
			return true
		}
	}
	return false
}
