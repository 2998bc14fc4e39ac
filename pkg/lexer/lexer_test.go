package lexer

import (
	"errors"
	"testing"

	"quill/interpreter-go/pkg/ast"
)

func mustTokenize(t *testing.T, source string, opts Options) []Token {
	t.Helper()
	tokens, err := Tokenize(source, opts)
	if err != nil {
		t.Fatalf("unexpected lex error: %v", err)
	}
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != TokEOF {
		t.Fatalf("token stream does not end with EOF: %v", tokens)
	}
	return tokens[:len(tokens)-1]
}

func texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out
}

func TestEmptyInputYieldsEOF(t *testing.T) {
	tokens := mustTokenize(t, "  \n\t ", Options{})
	if len(tokens) != 0 {
		t.Fatalf("expected no tokens, got %v", tokens)
	}
}

func TestMaximalMunchSymbols(t *testing.T) {
	tokens := mustTokenize(t, "a <<= 1 ..= b ?? c ?. d **= e !in f #{", Options{})
	want := []string{"a", "<<=", "1", "..=", "b", "??", "c", "?.", "d", "**=", "e", "!in", "f", "#{"}
	got := texts(tokens)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestKeywordsAndReserved(t *testing.T) {
	tokens := mustTokenize(t, "let x = var; fn", Options{})
	cases := []struct {
		text string
		kind TokenKind
	}{
		{"let", TokKeyword},
		{"x", TokIdent},
		{"=", TokSymbol},
		{"var", TokReserved},
		{";", TokSymbol},
		{"fn", TokKeyword},
	}
	for i, tc := range cases {
		if tokens[i].Text != tc.text || tokens[i].Kind != tc.kind {
			t.Fatalf("token %d: expected %s %q, got %s", i, tc.kind, tc.text, tokens[i])
		}
	}
}

func TestIntegerLiterals(t *testing.T) {
	cases := []struct {
		src  string
		want int64
	}{
		{"42", 42},
		{"1_000_000", 1000000},
		{"0xff", 255},
		{"0o17", 15},
		{"0b1010", 10},
		{"0xffff_ffff_ffff_ffff", -1},
	}
	for _, tc := range cases {
		tokens := mustTokenize(t, tc.src, Options{})
		if tokens[0].Kind != TokInt || tokens[0].Int != tc.want {
			t.Fatalf("%s: expected int %d, got %s (%d)", tc.src, tc.want, tokens[0], tokens[0].Int)
		}
	}
}

func TestFloatLiteralsAndMethodDots(t *testing.T) {
	tokens := mustTokenize(t, "3.25 1e3 2.to_string() 0..5", Options{})
	if tokens[0].Kind != TokFloat || tokens[0].Float != 3.25 {
		t.Fatalf("expected float 3.25, got %s", tokens[0])
	}
	if tokens[1].Kind != TokFloat || tokens[1].Float != 1000 {
		t.Fatalf("expected float 1000, got %s", tokens[1])
	}
	if tokens[2].Kind != TokInt || tokens[3].Text != "." || tokens[4].Text != "to_string" {
		t.Fatalf("expected method call on integer, got %v", texts(tokens[2:5]))
	}
	rest := texts(tokens[7:])
	if len(rest) != 3 || rest[0] != "0" || rest[1] != ".." || rest[2] != "5" {
		t.Fatalf("expected range tokens, got %v", rest)
	}
}

func TestMalformedNumber(t *testing.T) {
	_, err := Tokenize("12abc", Options{})
	var lexErr *LexError
	if !errors.As(err, &lexErr) || lexErr.Kind != ErrMalformedNumber {
		t.Fatalf("expected malformed number, got %v", err)
	}
	if _, err := Tokenize("99999999999999999999", Options{}); err == nil {
		t.Fatalf("expected overflow to be rejected")
	}
}

func TestStringEscapes(t *testing.T) {
	tokens := mustTokenize(t, `"a\tb\n\x41B\u{1F600}\"" 'x' '\''`, Options{})
	if tokens[0].Kind != TokString || tokens[0].Text != "a\tb\nAB\U0001F600\"" {
		t.Fatalf("unexpected string token %q", tokens[0].Text)
	}
	if tokens[1].Kind != TokChar || tokens[1].Char != 'x' {
		t.Fatalf("expected char x, got %s", tokens[1])
	}
	if tokens[2].Char != '\'' {
		t.Fatalf("expected escaped quote char, got %s", tokens[2])
	}
}

func TestStringLineContinuation(t *testing.T) {
	tokens := mustTokenize(t, "\"hello \\\n     world\"", Options{})
	if tokens[0].Text != "hello world" {
		t.Fatalf("expected continuation to join lines, got %q", tokens[0].Text)
	}
}

func TestUnterminatedString(t *testing.T) {
	_, err := Tokenize(`"abc`, Options{})
	var lexErr *LexError
	if !errors.As(err, &lexErr) || lexErr.Kind != ErrUnterminatedString {
		t.Fatalf("expected unterminated string, got %v", err)
	}
	if lexErr.Pos != ast.NewPosition(1, 1) {
		t.Fatalf("expected error at 1:1, got %s", lexErr.Pos)
	}
}

func TestStringTooLong(t *testing.T) {
	_, err := Tokenize(`"abcdef"`, Options{MaxStringSize: 3})
	var lexErr *LexError
	if !errors.As(err, &lexErr) || lexErr.Kind != ErrStringTooLong {
		t.Fatalf("expected string too long, got %v", err)
	}
}

func TestInterpolatedString(t *testing.T) {
	tokens := mustTokenize(t, "`x = ${x + #{a: 1}.a}, ``ok``!`", Options{})
	tok := tokens[0]
	if tok.Kind != TokInterpolated {
		t.Fatalf("expected interpolated string, got %s", tok)
	}
	if len(tok.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %#v", tok.Parts)
	}
	if tok.Parts[0].Expr || tok.Parts[0].Text != "x = " {
		t.Fatalf("unexpected first part %#v", tok.Parts[0])
	}
	if !tok.Parts[1].Expr || tok.Parts[1].Text != "x + #{a: 1}.a" {
		t.Fatalf("unexpected expression part %#v", tok.Parts[1])
	}
	if tok.Parts[1].Pos != ast.NewPosition(1, 8) {
		t.Fatalf("expected expression at 1:8, got %s", tok.Parts[1].Pos)
	}
	if tok.Parts[2].Text != ", `ok`!" {
		t.Fatalf("unexpected tail %#v", tok.Parts[2])
	}
}

func TestCommentsAndDocComments(t *testing.T) {
	src := "//! module doc\n// plain\n/// fn doc\n/* nested /* inner */ still */ /** block doc */ x"
	tokens := mustTokenize(t, src, Options{})
	if len(tokens) != 4 {
		t.Fatalf("expected 4 tokens, got %v", tokens)
	}
	if tokens[0].Kind != TokModuleDoc || tokens[1].Kind != TokDocComment || tokens[2].Kind != TokDocComment {
		t.Fatalf("unexpected comment tokens %v", tokens[:3])
	}
	if tokens[3].Text != "x" || tokens[3].Pos() != ast.NewPosition(4, 49) {
		t.Fatalf("unexpected trailing token %s", tokens[3])
	}
}

func TestUnterminatedComment(t *testing.T) {
	_, err := Tokenize("/* /* */", Options{})
	var lexErr *LexError
	if !errors.As(err, &lexErr) || lexErr.Kind != ErrUnterminatedComment {
		t.Fatalf("expected unterminated comment, got %v", err)
	}
}

func TestCustomAndDisabledSymbols(t *testing.T) {
	opts := Options{
		CustomKeywords:  map[string]struct{}{"exec": {}, "=>>": {}, "while": {}},
		DisabledSymbols: map[string]struct{}{"while": {}, "+=": {}},
	}
	tokens := mustTokenize(t, "exec a =>> b while x += 1", opts)
	if tokens[0].Kind != TokCustom || tokens[2].Kind != TokCustom || tokens[2].Text != "=>>" {
		t.Fatalf("expected custom tokens, got %v", tokens)
	}
	if tokens[4].Kind != TokCustom {
		t.Fatalf("custom keyword should win over disabled keyword, got %s", tokens[4])
	}
	if tokens[6].Kind != TokReserved || tokens[6].Text != "+=" {
		t.Fatalf("expected disabled symbol, got %s", tokens[6])
	}
}

func TestLexerIsRestartable(t *testing.T) {
	l := New("a b", Options{})
	first, _ := l.Next()
	l.Next()
	l.Reset()
	again, err := l.Next()
	if err != nil || again.Text != first.Text || again.Span != first.Span {
		t.Fatalf("expected restart to replay %s, got %s (%v)", first, again, err)
	}
}

func TestStartPositionOffset(t *testing.T) {
	tokens := mustTokenize(t, "y", Options{Start: ast.NewPosition(3, 10)})
	if tokens[0].Pos() != ast.NewPosition(3, 10) {
		t.Fatalf("expected 3:10, got %s", tokens[0].Pos())
	}
}

func TestIsValidIdentifier(t *testing.T) {
	cases := map[string]bool{"abc": true, "_x": true, "x1": true, "1x": false, "__": false, "a-b": false, "": false}
	for in, want := range cases {
		if got := IsValidIdentifier(in); got != want {
			t.Fatalf("IsValidIdentifier(%q) = %v, want %v", in, got, want)
		}
	}
}
