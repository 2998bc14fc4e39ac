package ast

import "fmt"

// Position identifies a character in source text. Lines and columns are
// 1-based; the zero value is the "none" sentinel.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// NoPosition is the sentinel for nodes and errors without a source location.
var NoPosition = Position{}

// NewPosition returns a position at the given line and column.
func NewPosition(line, column int) Position {
	return Position{Line: line, Column: column}
}

// IsNone reports whether p is the sentinel position.
func (p Position) IsNone() bool {
	return p.Line == 0
}

// IsBeginningOfLine reports whether p points at the first column of a line.
func (p Position) IsBeginningOfLine() bool {
	return p.Column <= 1
}

// Advance moves the column forward by one.
func (p *Position) Advance() {
	p.Column++
}

// NewLine moves p to the first column of the next line.
func (p *Position) NewLine() {
	p.Line++
	p.Column = 1
}

// Or returns p unless it is none, in which case other is returned.
func (p Position) Or(other Position) Position {
	if p.IsNone() {
		return other
	}
	return p
}

func (p Position) String() string {
	if p.IsNone() {
		return "none"
	}
	return fmt.Sprintf("line %d, position %d", p.Line, p.Column)
}

// Compare orders two positions; none sorts first.
func (p Position) Compare(other Position) int {
	switch {
	case p.Line < other.Line:
		return -1
	case p.Line > other.Line:
		return 1
	case p.Column < other.Column:
		return -1
	case p.Column > other.Column:
		return 1
	default:
		return 0
	}
}

// Span is a source range covered by a node.
type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// NoSpan is the sentinel span.
var NoSpan = Span{}

// NewSpan builds a span from two positions.
func NewSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// IsNone reports whether the span carries no location.
func (s Span) IsNone() bool {
	return s.Start.IsNone() && s.End.IsNone()
}

// Merge returns the smallest span that covers both s and other.
func (s Span) Merge(other Span) Span {
	if s.IsNone() {
		return other
	}
	if other.IsNone() {
		return s
	}
	out := s
	if other.Start.Compare(out.Start) < 0 {
		out.Start = other.Start
	}
	if other.End.Compare(out.End) > 0 {
		out.End = other.End
	}
	return out
}

func (s Span) String() string {
	if s.IsNone() {
		return "none"
	}
	return fmt.Sprintf("%d:%d-%d:%d", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

// SetSpan updates the span recorded on a node.
func SetSpan(node Node, span Span) {
	if node == nil {
		return
	}
	if setter, ok := node.(interface{ setSpan(Span) }); ok {
		setter.setSpan(span)
	}
}
