package runtime

import "quill/interpreter-go/pkg/ast"

// As casts v to T, reading through shared cells. Array and blob payloads can
// be requested either by pointer (aliasing) or by value (a shallow copy of
// the slice header); int accepts integer values. A mismatch reports the
// actual type name.
func As[T any](v Value) (T, error) {
	var zero T
	if out, ok := any(v).(T); ok {
		return out, nil
	}
	p := v.payload()
	if out, ok := p.(T); ok {
		return out, nil
	}
	switch any(zero).(type) {
	case Array:
		if a, ok := p.(*Array); ok {
			return any(*a).(T), nil
		}
	case []Value:
		if a, ok := p.(*Array); ok {
			return any([]Value(*a)).(T), nil
		}
	case Blob:
		if b, ok := p.(*Blob); ok {
			return any(*b).(T), nil
		}
	case []byte:
		if b, ok := p.(*Blob); ok {
			return any([]byte(*b)).(T), nil
		}
	case int:
		if n, ok := p.(int64); ok {
			return any(int(n)).(T), nil
		}
	case Unit:
		if p == nil {
			return zero, nil
		}
	}
	return zero, NewMismatchDataType(TypeOf[T]().String(), v.TypeName(), ast.NoPosition)
}

// MustAs is As for values already known to have the right type.
func MustAs[T any](v Value) T {
	out, err := As[T](v)
	if err != nil {
		panic(err)
	}
	return out
}
