package runtime

import "sync"

// Shared is an interior-mutable cell. Closures capture variables by turning
// the binding into a shared cell so every holder observes later writes.
//
// Borrows use TryLock/TryRLock: a conflicting borrow can only come from
// re-entrant evaluation on the same goroutine, so it is reported as a data
// race instead of blocking forever.
type Shared struct {
	mu    sync.RWMutex
	value Value
}

// NewShared wraps v in a new cell.
func NewShared(v Value) *Shared {
	return &Shared{value: v}
}

// peek reads the contained value without holding a borrow.
func (s *Shared) peek() Value {
	if s.mu.TryRLock() {
		defer s.mu.RUnlock()
		return s.value
	}
	// Write-borrowed by the evaluating goroutine.
	return s.value
}

// Cell returns the shared cell behind v, if any.
func (v Value) Cell() (*Shared, bool) {
	s, ok := v.data.(*Shared)
	return s, ok
}

// Read runs fn with the contained value under a read borrow. For values that
// are not shared fn receives v itself.
func (v Value) Read(fn func(Value) error) error {
	cell, ok := v.data.(*Shared)
	if !ok {
		return fn(v)
	}
	if !cell.mu.TryRLock() {
		return NewEvalError(ErrDataRace).WithName("")
	}
	defer cell.mu.RUnlock()
	return fn(cell.value)
}

// Write runs fn with a pointer to the contained value under a write borrow.
// For values that are not shared fn receives v itself.
func (v *Value) Write(fn func(*Value) error) error {
	cell, ok := v.data.(*Shared)
	if !ok {
		return fn(v)
	}
	if !cell.mu.TryLock() {
		return NewEvalError(ErrDataRace).WithName("")
	}
	defer cell.mu.Unlock()
	return fn(&cell.value)
}

// Set replaces the value. Writing to a shared cell stores into the cell so
// that other holders see the update.
func (v *Value) Set(nv Value) error {
	if _, ok := v.data.(*Shared); ok {
		return v.Write(func(inner *Value) error {
			nv.access = inner.access
			*inner = nv.Flatten()
			return nil
		})
	}
	access := v.access
	*v = nv
	v.access = access
	return nil
}
