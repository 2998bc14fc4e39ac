package runtime

import "unique"

// Identifier is an interned name. Two identifiers with the same text compare
// equal with == in constant time.
type Identifier struct {
	h unique.Handle[string]
}

// NewIdentifier interns name.
func NewIdentifier(name string) Identifier {
	return Identifier{h: unique.Make(name)}
}

func (id Identifier) String() string {
	var zero unique.Handle[string]
	if id.h == zero {
		return ""
	}
	return id.h.Value()
}

// Intern returns the canonical copy of s, so repeated map keys and property
// names share storage.
func Intern(s string) string {
	if s == "" {
		return s
	}
	return unique.Make(s).Value()
}
