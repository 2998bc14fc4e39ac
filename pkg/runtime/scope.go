package runtime

// Scope is the stack of named bindings visible to a script. Bindings are
// kept in three parallel slices (names, values, aliases); newer entries
// shadow older ones and lookups scan from the top.
//
// Value slots are allocated individually so that a *Value returned by
// GetMut stays valid while further bindings are pushed.
type Scope struct {
	names   []string
	values  []*Value
	aliases [][]string
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Len returns the number of entries, including shadowed ones.
func (s *Scope) Len() int {
	return len(s.names)
}

// IsEmpty reports whether the scope has no entries.
func (s *Scope) IsEmpty() bool {
	return len(s.names) == 0
}

// Clear removes every entry.
func (s *Scope) Clear() {
	s.Rewind(0)
}

// Push adds a writable binding. The value's access mode is reset.
func (s *Scope) Push(name string, v Value) *Scope {
	return s.PushDynamic(name, v.WithAccess(ReadWrite))
}

// PushConstant adds a read-only binding.
func (s *Scope) PushConstant(name string, v Value) *Scope {
	return s.PushDynamic(name, v.WithAccess(ReadOnly))
}

// PushDynamic adds a binding preserving the value's access mode.
func (s *Scope) PushDynamic(name string, v Value) *Scope {
	slot := v
	s.names = append(s.names, Intern(name))
	s.values = append(s.values, &slot)
	s.aliases = append(s.aliases, nil)
	return s
}

// Pop removes the newest entry. It panics on an empty scope.
func (s *Scope) Pop() *Scope {
	if len(s.names) == 0 {
		panic("cannot pop an empty scope")
	}
	return s.Rewind(len(s.names) - 1)
}

// Rewind truncates the scope to size entries.
func (s *Scope) Rewind(size int) *Scope {
	if size >= len(s.names) {
		return s
	}
	for i := size; i < len(s.values); i++ {
		s.values[i] = nil
		s.aliases[i] = nil
	}
	s.names = s.names[:size]
	s.values = s.values[:size]
	s.aliases = s.aliases[:size]
	return s
}

// Search returns the index of the newest entry named name.
func (s *Scope) Search(name string) (int, bool) {
	for i := len(s.names) - 1; i >= 0; i-- {
		if s.names[i] == name {
			return i, true
		}
	}
	return -1, false
}

// Contains reports whether a binding named name exists.
func (s *Scope) Contains(name string) bool {
	_, ok := s.Search(name)
	return ok
}

// Get returns the value of the newest binding named name.
func (s *Scope) Get(name string) (Value, bool) {
	i, ok := s.Search(name)
	if !ok {
		return UnitValue, false
	}
	return *s.values[i], true
}

// GetValue returns the flattened value of name cast to T.
func GetValue[T any](s *Scope, name string) (T, bool) {
	v, ok := s.Get(name)
	if !ok {
		var zero T
		return zero, false
	}
	out, err := As[T](v.Flatten())
	return out, err == nil
}

// GetMut returns a pointer to the slot of the newest binding named name.
// Callers must check IsReadOnly before writing.
func (s *Scope) GetMut(name string) (*Value, bool) {
	i, ok := s.Search(name)
	if !ok {
		return nil, false
	}
	return s.values[i], true
}

// Entry returns the name and slot at index.
func (s *Scope) Entry(index int) (string, *Value) {
	return s.names[index], s.values[index]
}

// IsConstant reports whether the newest binding named name is read-only.
// The second result is false when the name is not bound.
func (s *Scope) IsConstant(name string) (bool, bool) {
	i, ok := s.Search(name)
	if !ok {
		return false, false
	}
	return s.values[i].IsReadOnly(), true
}

// SetValue updates the newest binding named name, pushing a new writable
// binding when none exists. It panics when the binding is constant.
func (s *Scope) SetValue(name string, v Value) *Scope {
	i, ok := s.Search(name)
	if !ok {
		return s.Push(name, v)
	}
	if s.values[i].IsReadOnly() {
		panic("variable " + name + " is constant")
	}
	if err := s.values[i].Set(v); err != nil {
		panic(err)
	}
	return s
}

// SetOrPush updates the newest writable binding named name; when the name is
// unbound or bound to a constant a new writable binding is pushed instead.
func (s *Scope) SetOrPush(name string, v Value) *Scope {
	i, ok := s.Search(name)
	if !ok || s.values[i].IsReadOnly() {
		return s.Push(name, v)
	}
	if err := s.values[i].Set(v); err != nil {
		return s.Push(name, v)
	}
	return s
}

// AddAlias attaches an export alias to the entry at index.
func (s *Scope) AddAlias(index int, alias string) *Scope {
	for _, existing := range s.aliases[index] {
		if existing == alias {
			return s
		}
	}
	s.aliases[index] = append(s.aliases[index], alias)
	return s
}

// AddAliasByName attaches an alias to the newest binding named name.
func (s *Scope) AddAliasByName(name, alias string) bool {
	i, ok := s.Search(name)
	if !ok {
		return false
	}
	s.AddAlias(i, alias)
	return true
}

// Aliases returns the aliases attached to the entry at index.
func (s *Scope) Aliases(index int) []string {
	return s.aliases[index]
}

// ScopeEntry is one binding yielded by the iterators.
type ScopeEntry struct {
	Name     string
	Constant bool
	Value    Value
	Aliases  []string
}

// Iter returns every entry, oldest first, including shadowed ones.
func (s *Scope) Iter() []ScopeEntry {
	out := make([]ScopeEntry, len(s.names))
	for i := range s.names {
		out[i] = ScopeEntry{Name: s.names[i], Constant: s.values[i].IsReadOnly(), Value: *s.values[i], Aliases: s.aliases[i]}
	}
	return out
}

// IterVisible returns the entries not shadowed by a newer binding, newest
// first.
func (s *Scope) IterVisible() []ScopeEntry {
	seen := make(map[string]struct{}, len(s.names))
	var out []ScopeEntry
	for i := len(s.names) - 1; i >= 0; i-- {
		if _, dup := seen[s.names[i]]; dup {
			continue
		}
		seen[s.names[i]] = struct{}{}
		out = append(out, ScopeEntry{Name: s.names[i], Constant: s.values[i].IsReadOnly(), Value: *s.values[i], Aliases: s.aliases[i]})
	}
	return out
}

// Clone copies the scope. Values are cloned with Value.Clone, so shared
// cells stay shared.
func (s *Scope) Clone() *Scope {
	out := &Scope{
		names:   append([]string(nil), s.names...),
		values:  make([]*Value, len(s.values)),
		aliases: make([][]string, len(s.aliases)),
	}
	for i, v := range s.values {
		c := v.Clone()
		out.values[i] = &c
		out.aliases[i] = append([]string(nil), s.aliases[i]...)
	}
	return out
}
