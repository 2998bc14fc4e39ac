package lexer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"quill/interpreter-go/pkg/ast"
)

// Options configures a Lexer.
type Options struct {
	// Source labels the input in diagnostics.
	Source string
	// CustomKeywords are consulted before standard keywords and symbols.
	CustomKeywords map[string]struct{}
	// DisabledSymbols lex as TokReserved.
	DisabledSymbols map[string]struct{}
	// MaxStringSize limits string literals in bytes; zero means unlimited.
	MaxStringSize int
	// Start is the position of the first character; defaults to line 1, column 1.
	Start ast.Position
}

// Lexer produces tokens lazily from source text. Reset restarts the stream.
type Lexer struct {
	src  string
	opts Options

	pos  int
	line int
	col  int
}

// New creates a lexer over src.
func New(src string, opts Options) *Lexer {
	l := &Lexer{src: src, opts: opts}
	l.Reset()
	return l
}

// Source returns the source label.
func (l *Lexer) Source() string {
	return l.opts.Source
}

// Reset rewinds the lexer to the start of its input.
func (l *Lexer) Reset() {
	l.pos = 0
	l.line, l.col = 1, 1
	if !l.opts.Start.IsNone() {
		l.line, l.col = l.opts.Start.Line, l.opts.Start.Column
	}
	if strings.HasPrefix(l.src, "#!") {
		for !l.atEnd() && l.peek() != '\n' {
			l.advance()
		}
	}
}

// Tokenize collects every token of src, ending with TokEOF.
func Tokenize(src string, opts Options) ([]Token, error) {
	l := New(src, opts)
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.src)
}

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(offset int) byte {
	p := l.pos + offset
	if p >= len(l.src) {
		return 0
	}
	return l.src[p]
}

func (l *Lexer) position() ast.Position {
	return ast.NewPosition(l.line, l.col)
}

func (l *Lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) advanceN(n int) {
	for i := 0; i < n; i++ {
		l.advance()
	}
}

func (l *Lexer) token(kind TokenKind, text string, start ast.Position) Token {
	return Token{Kind: kind, Text: text, Span: ast.NewSpan(start, l.position())}
}

func (l *Lexer) fail(kind LexErrorKind, text string, pos ast.Position) error {
	return &LexError{Kind: kind, Text: text, Pos: pos}
}

// Next returns the next token; at the end of input it returns TokEOF
// repeatedly.
func (l *Lexer) Next() (Token, error) {
	for {
		l.skipWhitespace()
		if l.atEnd() {
			return l.token(TokEOF, "", l.position()), nil
		}
		if l.peek() == '/' && (l.peekAt(1) == '/' || l.peekAt(1) == '*') {
			tok, ok, err := l.scanComment()
			if err != nil {
				return Token{}, err
			}
			if ok {
				return tok, nil
			}
			continue
		}
		break
	}

	start := l.position()
	ch := l.peek()
	switch {
	case isDigit(ch):
		return l.scanNumber()
	case isIdentStart(ch):
		return l.scanIdent(), nil
	case ch == '"':
		return l.scanString()
	case ch == '\'':
		return l.scanChar()
	case ch == '`':
		return l.scanInterpolated()
	}
	if ch >= utf8.RuneSelf {
		r := l.advance()
		return Token{}, l.fail(ErrUnexpectedInput, string(r), start)
	}
	return l.scanSymbol()
}

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		switch l.peek() {
		case ' ', '\t', '\r', '\n':
			l.advance()
		default:
			return
		}
	}
}

// scanComment consumes a comment. Doc comments are returned as tokens.
func (l *Lexer) scanComment() (Token, bool, error) {
	start := l.position()
	begin := l.pos
	if l.peekAt(1) == '/' {
		for !l.atEnd() && l.peek() != '\n' {
			l.advance()
		}
		text := strings.TrimRight(l.src[begin:l.pos], "\r")
		switch {
		case strings.HasPrefix(text, "//!"):
			return l.token(TokModuleDoc, text, start), true, nil
		case strings.HasPrefix(text, "///") && !strings.HasPrefix(text, "////"):
			return l.token(TokDocComment, text, start), true, nil
		}
		return Token{}, false, nil
	}

	l.advanceN(2)
	depth := 1
	for depth > 0 {
		if l.atEnd() {
			return Token{}, false, l.fail(ErrUnterminatedComment, "", start)
		}
		switch {
		case l.peek() == '/' && l.peekAt(1) == '*':
			l.advanceN(2)
			depth++
		case l.peek() == '*' && l.peekAt(1) == '/':
			l.advanceN(2)
			depth--
		default:
			l.advance()
		}
	}
	text := l.src[begin:l.pos]
	if strings.HasPrefix(text, "/**") && !strings.HasPrefix(text, "/***") && text != "/**/" {
		return l.token(TokDocComment, text, start), true, nil
	}
	return Token{}, false, nil
}

func (l *Lexer) scanNumber() (Token, error) {
	start := l.position()
	begin := l.pos

	if l.peek() == '0' {
		radix := 0
		switch l.peekAt(1) {
		case 'x', 'X':
			radix = 16
		case 'o', 'O':
			radix = 8
		case 'b', 'B':
			radix = 2
		}
		if radix != 0 {
			l.advanceN(2)
			for !l.atEnd() && (isHexDigit(l.peek()) || l.peek() == '_') {
				l.advance()
			}
			text := l.src[begin:l.pos]
			digits := strings.ReplaceAll(text[2:], "_", "")
			n, err := strconv.ParseUint(digits, radix, 64)
			if err != nil || digits == "" || (!l.atEnd() && isIdentChar(l.peek())) {
				return Token{}, l.fail(ErrMalformedNumber, text, start)
			}
			tok := l.token(TokInt, text, start)
			tok.Int = int64(n)
			return tok, nil
		}
	}

	isFloat := false
	l.scanDigits()
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		isFloat = true
		l.advance()
		l.scanDigits()
	}
	if e := l.peek(); e == 'e' || e == 'E' {
		next := l.peekAt(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(l.peekAt(2))) {
			isFloat = true
			l.advanceN(2)
			l.scanDigits()
		}
	}
	text := l.src[begin:l.pos]
	if !l.atEnd() && isIdentChar(l.peek()) {
		for !l.atEnd() && isIdentChar(l.peek()) {
			l.advance()
		}
		return Token{}, l.fail(ErrMalformedNumber, l.src[begin:l.pos], start)
	}
	clean := strings.ReplaceAll(text, "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return Token{}, l.fail(ErrMalformedNumber, text, start)
		}
		tok := l.token(TokFloat, text, start)
		tok.Float = f
		return tok, nil
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return Token{}, l.fail(ErrMalformedNumber, text, start)
	}
	tok := l.token(TokInt, text, start)
	tok.Int = n
	return tok, nil
}

func (l *Lexer) scanDigits() {
	for !l.atEnd() && (isDigit(l.peek()) || l.peek() == '_') {
		l.advance()
	}
}

func (l *Lexer) scanIdent() Token {
	start := l.position()
	begin := l.pos
	for !l.atEnd() && isIdentChar(l.peek()) {
		l.advance()
	}
	text := l.src[begin:l.pos]

	if _, ok := l.opts.CustomKeywords[text]; ok {
		return l.token(TokCustom, text, start)
	}
	if _, ok := l.opts.DisabledSymbols[text]; ok {
		return l.token(TokReserved, text, start)
	}
	if _, ok := keywords[text]; ok {
		return l.token(TokKeyword, text, start)
	}
	if _, ok := reservedWords[text]; ok {
		return l.token(TokReserved, text, start)
	}
	return l.token(TokIdent, text, start)
}

func (l *Lexer) scanString() (Token, error) {
	start := l.position()
	l.advance()
	var buf strings.Builder
	for {
		if l.atEnd() {
			return Token{}, l.fail(ErrUnterminatedString, "", start)
		}
		ch := l.peek()
		switch {
		case ch == '"':
			l.advance()
			tok := l.token(TokString, buf.String(), start)
			return tok, nil
		case ch == '\n':
			return Token{}, l.fail(ErrUnterminatedString, "", start)
		case ch == '\\' && (l.peekAt(1) == '\n' || (l.peekAt(1) == '\r' && l.peekAt(2) == '\n')):
			// Line continuation drops the newline and leading indentation.
			l.advance()
			l.skipWhitespace()
		case ch == '\\':
			r, err := l.scanEscape()
			if err != nil {
				return Token{}, err
			}
			buf.WriteRune(r)
		default:
			buf.WriteRune(l.advance())
		}
		if l.opts.MaxStringSize > 0 && buf.Len() > l.opts.MaxStringSize {
			return Token{}, l.fail(ErrStringTooLong, strconv.Itoa(l.opts.MaxStringSize), start)
		}
	}
}

func (l *Lexer) scanChar() (Token, error) {
	start := l.position()
	begin := l.pos
	l.advance()
	if l.atEnd() || l.peek() == '\'' || l.peek() == '\n' {
		return Token{}, l.fail(ErrMalformedChar, "''", start)
	}
	var r rune
	if l.peek() == '\\' {
		var err error
		if r, err = l.scanEscape(); err != nil {
			return Token{}, err
		}
	} else {
		r = l.advance()
	}
	if l.peek() != '\'' {
		for !l.atEnd() && l.peek() != '\'' && l.peek() != '\n' {
			l.advance()
		}
		if l.peek() == '\'' {
			l.advance()
		}
		return Token{}, l.fail(ErrMalformedChar, strings.TrimSpace(l.src[begin:l.pos]), start)
	}
	l.advance()
	tok := l.token(TokChar, string(r), start)
	tok.Char = r
	return tok, nil
}

func (l *Lexer) scanEscape() (rune, error) {
	start := l.position()
	l.advance()
	if l.atEnd() {
		return 0, l.fail(ErrMalformedEscapeSequence, "\\", start)
	}
	esc := l.advance()
	switch esc {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '0':
		return 0, nil
	case '\\':
		return '\\', nil
	case '"', '\'':
		return esc, nil
	case 'x':
		return l.scanHexEscape("\\x", 2, start)
	case 'u':
		if l.peek() == '{' {
			l.advance()
			begin := l.pos
			for !l.atEnd() && isHexDigit(l.peek()) {
				l.advance()
			}
			digits := l.src[begin:l.pos]
			if l.peek() != '}' || digits == "" || len(digits) > 6 {
				return 0, l.fail(ErrMalformedEscapeSequence, "\\u{"+digits, start)
			}
			l.advance()
			return decodeCodePoint("\\u{"+digits+"}", digits, start)
		}
		return l.scanHexEscape("\\u", 4, start)
	case 'U':
		return l.scanHexEscape("\\U", 8, start)
	}
	return 0, l.fail(ErrMalformedEscapeSequence, "\\"+string(esc), start)
}

func (l *Lexer) scanHexEscape(prefix string, width int, start ast.Position) (rune, error) {
	begin := l.pos
	for i := 0; i < width; i++ {
		if l.atEnd() || !isHexDigit(l.peek()) {
			return 0, l.fail(ErrMalformedEscapeSequence, prefix+l.src[begin:l.pos], start)
		}
		l.advance()
	}
	digits := l.src[begin:l.pos]
	return decodeCodePoint(prefix+digits, digits, start)
}

func decodeCodePoint(text, digits string, start ast.Position) (rune, error) {
	n, err := strconv.ParseUint(digits, 16, 32)
	if err != nil || !utf8.ValidRune(rune(n)) {
		return 0, &LexError{Kind: ErrMalformedEscapeSequence, Text: text, Pos: start}
	}
	return rune(n), nil
}

// scanInterpolated scans a backtick string. "``" is a literal backtick and
// `${ ... }` embeds an expression; the embedded source is kept verbatim for
// the parser.
func (l *Lexer) scanInterpolated() (Token, error) {
	start := l.position()
	raw := l.pos
	l.advance()
	var parts []InterpPart
	var buf strings.Builder
	litPos := l.position()
	size := 0
	flush := func() {
		if buf.Len() > 0 {
			parts = append(parts, InterpPart{Text: buf.String(), Pos: litPos})
			size += buf.Len()
			buf.Reset()
		}
	}
	for {
		if l.atEnd() {
			return Token{}, l.fail(ErrUnterminatedString, "", start)
		}
		ch := l.peek()
		switch {
		case ch == '`' && l.peekAt(1) == '`':
			l.advanceN(2)
			buf.WriteByte('`')
		case ch == '`':
			l.advance()
			flush()
			tok := l.token(TokInterpolated, l.src[raw:l.pos], start)
			tok.Parts = parts
			return tok, nil
		case ch == '$' && l.peekAt(1) == '{':
			flush()
			l.advanceN(2)
			exprPos := l.position()
			begin := l.pos
			if err := l.skipBalanced(start); err != nil {
				return Token{}, err
			}
			parts = append(parts, InterpPart{Expr: true, Text: l.src[begin:l.pos], Pos: exprPos})
			l.advance()
			litPos = l.position()
		default:
			if buf.Len() == 0 {
				litPos = l.position()
			}
			buf.WriteRune(l.advance())
		}
		if l.opts.MaxStringSize > 0 && size+buf.Len() > l.opts.MaxStringSize {
			return Token{}, l.fail(ErrStringTooLong, strconv.Itoa(l.opts.MaxStringSize), start)
		}
	}
}

// skipBalanced advances to the `}` closing an interpolation, skipping
// nested braces and quoted literals.
func (l *Lexer) skipBalanced(start ast.Position) error {
	depth := 0
	for {
		if l.atEnd() {
			return l.fail(ErrUnterminatedString, "", start)
		}
		switch l.peek() {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return nil
			}
			depth--
		case '"', '\'':
			quote := l.peek()
			l.advance()
			for !l.atEnd() && l.peek() != quote {
				if l.peek() == '\\' {
					l.advance()
				}
				if !l.atEnd() {
					l.advance()
				}
			}
		case '`':
			l.advance()
			for !l.atEnd() && l.peek() != '`' {
				l.advance()
			}
		}
		if !l.atEnd() {
			l.advance()
		}
	}
}

func (l *Lexer) scanSymbol() (Token, error) {
	start := l.position()
	rest := l.src[l.pos:]

	if strings.HasPrefix(rest, "!in") && (len(rest) == 3 || !isIdentChar(rest[3])) {
		return l.emitSymbol("!in", TokSymbol, start), nil
	}

	best, kind := "", TokSymbol
	for _, group := range [][]string{symbols3, reservedSymbols3, symbols2, reservedSymbols2} {
		for _, sym := range group {
			if len(sym) > len(best) && strings.HasPrefix(rest, sym) {
				best = sym
				kind = TokSymbol
				if IsReserved(sym) {
					kind = TokReserved
				}
			}
		}
	}
	if best == "" {
		switch {
		case containsByte(symbols1, rest[0]):
			best = rest[:1]
		case containsByte(reservedSymbols1, rest[0]):
			best, kind = rest[:1], TokReserved
		}
	}
	for custom := range l.opts.CustomKeywords {
		if custom != "" && !isIdentStart(custom[0]) && len(custom) >= len(best) && strings.HasPrefix(rest, custom) {
			best, kind = custom, TokCustom
		}
	}
	if best == "" {
		r := l.advance()
		return Token{}, l.fail(ErrUnexpectedInput, string(r), start)
	}
	if _, ok := l.opts.DisabledSymbols[best]; ok && kind != TokCustom {
		kind = TokReserved
	}
	return l.emitSymbol(best, kind, start), nil
}

func (l *Lexer) emitSymbol(text string, kind TokenKind, start ast.Position) Token {
	l.advanceN(utf8.RuneCountInString(text))
	return l.token(kind, text, start)
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentChar(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
