package runtime

import (
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindUnit Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindChar
	KindString
	KindArray
	KindBlob
	KindMap
	KindRange
	KindInclusiveRange
	KindFnPtr
	KindTimestamp
	KindForeign
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "()"
	case KindBool:
		return "bool"
	case KindInt:
		return "i64"
	case KindFloat:
		return "f64"
	case KindDecimal:
		return "decimal"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindBlob:
		return "blob"
	case KindMap:
		return "map"
	case KindRange:
		return "range"
	case KindInclusiveRange:
		return "range="
	case KindFnPtr:
		return "Fn"
	case KindTimestamp:
		return "timestamp"
	case KindForeign:
		return "foreign"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

// AccessMode marks a value as writable or constant.
type AccessMode uint8

const (
	ReadWrite AccessMode = iota
	ReadOnly
)

// Value is the dynamic value manipulated by scripts. The zero Value is unit.
//
// Containers (arrays, blobs, maps) are held by pointer so that a *Value
// obtained from a scope slot can mutate them in place; Clone deep-copies
// them. A value wrapped in a *Shared cell aliases on Clone.
type Value struct {
	data   any
	access AccessMode
}

// Unit is the payload type of the unit value; used only as a type token.
type Unit struct{}

// Array is the payload of array values.
type Array []Value

// Blob is the payload of byte-blob values.
type Blob []byte

// Range is an exclusive integer range.
type Range struct {
	Start int64
	End   int64
}

// Contains reports whether n is inside the range.
func (r Range) Contains(n int64) bool { return n >= r.Start && n < r.End }

// Len returns the number of integers in the range.
func (r Range) Len() int64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// InclusiveRange is an integer range including its end.
type InclusiveRange struct {
	Start int64
	End   int64
}

// Contains reports whether n is inside the range.
func (r InclusiveRange) Contains(n int64) bool { return n >= r.Start && n <= r.End }

// Len returns the number of integers in the range.
func (r InclusiveRange) Len() int64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Cloner lets foreign host values control how they are copied.
type Cloner interface {
	CloneValue() any
}

//-----------------------------------------------------------------------------
// Constructors
//-----------------------------------------------------------------------------

var UnitValue = Value{}

func Bool(b bool) Value { return Value{data: b} }
func Int(n int64) Value { return Value{data: n} }
func Float(f float64) Value { return Value{data: f} }
func Decimal(d decimal.Decimal) Value { return Value{data: d} }
func Char(r rune) Value { return Value{data: r} }
func String(s string) Value { return Value{data: s} }
func Timestamp(t time.Time) Value { return Value{data: t} }
func NewRange(start, end int64) Value { return Value{data: Range{Start: start, End: end}} }
func NewInclusiveRange(s, e int64) Value { return Value{data: InclusiveRange{Start: s, End: e}} }

// NewArray wraps elements (not copied) as an array value.
func NewArray(elements ...Value) Value {
	arr := Array(elements)
	if arr == nil {
		arr = Array{}
	}
	return Value{data: &arr}
}

// NewBlob wraps bytes (not copied) as a blob value.
func NewBlob(b []byte) Value {
	blob := Blob(b)
	if blob == nil {
		blob = Blob{}
	}
	return Value{data: &blob}
}

// NewMapValue wraps m as a map value.
func NewMapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{data: m}
}

// NewFnPtrValue wraps a function pointer.
func NewFnPtrValue(fn *FnPtr) Value {
	return Value{data: fn}
}

// Foreign wraps an arbitrary host value.
func Foreign(v any) Value {
	return From(v)
}

// From converts a Go value into a Value. Supported primitives map onto the
// matching variant; anything else becomes a foreign value.
func From(v any) Value {
	switch x := v.(type) {
	case nil:
		return UnitValue
	case Value:
		return x
	case *Value:
		if x == nil {
			return UnitValue
		}
		return *x
	case Unit:
		return UnitValue
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case rune:
		return Char(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case decimal.Decimal:
		return Decimal(x)
	case string:
		return String(x)
	case []Value:
		return NewArray(x...)
	case Array:
		return NewArray(x...)
	case *Array:
		return Value{data: x}
	case []byte:
		return NewBlob(x)
	case Blob:
		return NewBlob(x)
	case *Blob:
		return Value{data: x}
	case *Map:
		return NewMapValue(x)
	case Range:
		return Value{data: x}
	case InclusiveRange:
		return Value{data: x}
	case *FnPtr:
		return NewFnPtrValue(x)
	case FnPtr:
		return NewFnPtrValue(&x)
	case time.Time:
		return Timestamp(x)
	case *Shared:
		return Value{data: x}
	case []string:
		out := make([]Value, len(x))
		for i, s := range x {
			out[i] = String(s)
		}
		return NewArray(out...)
	case map[string]Value:
		m := NewMap()
		for k, val := range x {
			m.Set(k, val)
		}
		return NewMapValue(m)
	default:
		return Value{data: v}
	}
}

//-----------------------------------------------------------------------------
// Introspection
//-----------------------------------------------------------------------------

// Kind reports the variant, reading through shared cells.
func (v Value) Kind() Kind {
	switch x := v.data.(type) {
	case nil:
		return KindUnit
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case decimal.Decimal:
		return KindDecimal
	case rune:
		return KindChar
	case string:
		return KindString
	case *Array:
		return KindArray
	case *Blob:
		return KindBlob
	case *Map:
		return KindMap
	case Range:
		return KindRange
	case InclusiveRange:
		return KindInclusiveRange
	case *FnPtr:
		return KindFnPtr
	case time.Time:
		return KindTimestamp
	case *Shared:
		return x.peek().Kind()
	default:
		return KindForeign
	}
}

// Is reports whether the value is of kind k.
func (v Value) Is(k Kind) bool { return v.Kind() == k }

// IsUnit reports whether the value is unit.
func (v Value) IsUnit() bool { return v.Kind() == KindUnit }

// IsShared reports whether the value is a shared cell.
func (v Value) IsShared() bool {
	_, ok := v.data.(*Shared)
	return ok
}

// IsReadOnly reports whether the value is constant.
func (v Value) IsReadOnly() bool {
	if v.access == ReadOnly {
		return true
	}
	if cell, ok := v.data.(*Shared); ok {
		return cell.peek().access == ReadOnly
	}
	return false
}

// Access returns the access mode.
func (v Value) Access() AccessMode { return v.access }

// WithAccess returns a copy of v carrying the given access mode.
func (v Value) WithAccess(mode AccessMode) Value {
	v.access = mode
	return v
}

// SetAccess changes the access mode in place.
func (v *Value) SetAccess(mode AccessMode) { v.access = mode }

// Raw exposes the payload (a *Shared for shared cells).
func (v Value) Raw() any { return v.data }

// TypeID returns the identity token of the contained type.
func (v Value) TypeID() TypeID {
	switch x := v.data.(type) {
	case nil:
		return typeUnit
	case *Array:
		return typeArray
	case *Blob:
		return typeBlob
	case *Map:
		return typeMap
	case *FnPtr:
		return typeFnPtr
	case *Shared:
		return x.peek().TypeID()
	default:
		return TypeID{rt: reflect.TypeOf(x)}
	}
}

// TypeName returns the script-visible type name.
func (v Value) TypeName() string {
	if v.Kind() == KindForeign {
		return v.TypeID().String()
	}
	return v.Kind().String()
}

//-----------------------------------------------------------------------------
// Accessors
//-----------------------------------------------------------------------------

func (v Value) payload() any {
	if cell, ok := v.data.(*Shared); ok {
		return cell.peek().data
	}
	return v.data
}

func (v Value) AsBool() (bool, bool) {
	b, ok := v.payload().(bool)
	return b, ok
}

func (v Value) AsInt() (int64, bool) {
	n, ok := v.payload().(int64)
	return n, ok
}

func (v Value) AsFloat() (float64, bool) {
	f, ok := v.payload().(float64)
	return f, ok
}

func (v Value) AsDecimal() (decimal.Decimal, bool) {
	d, ok := v.payload().(decimal.Decimal)
	return d, ok
}

func (v Value) AsChar() (rune, bool) {
	r, ok := v.payload().(rune)
	return r, ok
}

func (v Value) AsString() (string, bool) {
	s, ok := v.payload().(string)
	return s, ok
}

func (v Value) AsTimestamp() (time.Time, bool) {
	t, ok := v.payload().(time.Time)
	return t, ok
}

func (v Value) AsRange() (Range, bool) {
	r, ok := v.payload().(Range)
	return r, ok
}

func (v Value) AsInclusiveRange() (InclusiveRange, bool) {
	r, ok := v.payload().(InclusiveRange)
	return r, ok
}

// ArrayRef returns the backing array; mutations are visible through v.
func (v Value) ArrayRef() (*Array, bool) {
	a, ok := v.payload().(*Array)
	return a, ok
}

// BlobRef returns the backing blob; mutations are visible through v.
func (v Value) BlobRef() (*Blob, bool) {
	b, ok := v.payload().(*Blob)
	return b, ok
}

// MapRef returns the backing map; mutations are visible through v.
func (v Value) MapRef() (*Map, bool) {
	m, ok := v.payload().(*Map)
	return m, ok
}

func (v Value) AsFnPtr() (*FnPtr, bool) {
	f, ok := v.payload().(*FnPtr)
	return f, ok
}

// AsForeign returns the payload of a foreign value.
func (v Value) AsForeign() (any, bool) {
	if v.Kind() != KindForeign {
		return nil, false
	}
	return v.payload(), true
}

// Truthy reports the boolean payload; non-bool values are false.
func (v Value) Truthy() bool {
	b, _ := v.AsBool()
	return b
}

//-----------------------------------------------------------------------------
// Copying
//-----------------------------------------------------------------------------

// Clone deep-copies containers; shared cells alias.
func (v Value) Clone() Value {
	switch x := v.data.(type) {
	case *Array:
		out := make(Array, len(*x))
		for i, el := range *x {
			out[i] = el.Clone()
		}
		return Value{data: &out, access: v.access}
	case *Blob:
		out := make(Blob, len(*x))
		copy(out, *x)
		return Value{data: &out, access: v.access}
	case *Map:
		return Value{data: x.Clone(), access: v.access}
	case *FnPtr:
		return Value{data: x.Clone(), access: v.access}
	case Cloner:
		return Value{data: x.CloneValue(), access: v.access}
	default:
		return v
	}
}

// Flatten returns the value contained in a shared cell (a copy, since other
// owners may still hold the cell). Non-shared values are returned as is.
func (v Value) Flatten() Value {
	if cell, ok := v.data.(*Shared); ok {
		inner := cell.peek()
		return inner.Clone().Flatten()
	}
	return v
}

// FlattenClone is Clone followed by Flatten.
func (v Value) FlattenClone() Value {
	if v.IsShared() {
		return v.Flatten()
	}
	return v.Clone()
}

// IntoShared wraps the value in a new shared cell; already-shared values
// are returned unchanged.
func (v Value) IntoShared() Value {
	if v.IsShared() {
		return v
	}
	access := v.access
	v.access = ReadWrite
	return Value{data: &Shared{value: v}, access: access}
}

//-----------------------------------------------------------------------------
// Type identity
//-----------------------------------------------------------------------------

// TypeID is an opaque token identifying the Go type behind a value. Tokens
// compare equal with ==.
type TypeID struct {
	rt reflect.Type
}

// TypeOf returns the token for T.
func TypeOf[T any]() TypeID {
	return TypeID{rt: reflect.TypeOf((*T)(nil)).Elem()}
}

// TypeIDOf returns the token for a reflect.Type.
func TypeIDOf(rt reflect.Type) TypeID {
	return TypeID{rt: rt}
}

var (
	typeUnit    = TypeOf[Unit]()
	typeArray   = TypeOf[Array]()
	typeBlob    = TypeOf[Blob]()
	typeMap     = TypeOf[Map]()
	typeFnPtr   = TypeOf[FnPtr]()
	typeDynamic = TypeOf[Value]()
)

// Built-in type tokens.
var (
	TypeUnit           = typeUnit
	TypeBool           = TypeOf[bool]()
	TypeInt            = TypeOf[int64]()
	TypeFloat          = TypeOf[float64]()
	TypeDecimal        = TypeOf[decimal.Decimal]()
	TypeChar           = TypeOf[rune]()
	TypeString         = TypeOf[string]()
	TypeArray          = typeArray
	TypeBlob           = typeBlob
	TypeMap            = typeMap
	TypeRange          = TypeOf[Range]()
	TypeInclusiveRange = TypeOf[InclusiveRange]()
	TypeFnPtr          = typeFnPtr
	TypeTimestamp      = TypeOf[time.Time]()
	// TypeDynamic matches any argument during dispatch.
	TypeDynamic = typeDynamic
)

// Reflect returns the underlying reflect.Type.
func (t TypeID) Reflect() reflect.Type { return t.rt }

// IsDynamic reports whether t is the wildcard parameter token.
func (t TypeID) IsDynamic() bool { return t == typeDynamic }

// String returns the script-visible name for built-in tokens and the Go type
// name otherwise.
func (t TypeID) String() string {
	switch t {
	case typeUnit:
		return "()"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "i64"
	case TypeFloat:
		return "f64"
	case TypeDecimal:
		return "decimal"
	case TypeChar:
		return "char"
	case TypeString:
		return "string"
	case typeArray:
		return "array"
	case typeBlob:
		return "blob"
	case typeMap:
		return "map"
	case TypeRange:
		return "range"
	case TypeInclusiveRange:
		return "range="
	case typeFnPtr:
		return "Fn"
	case TypeTimestamp:
		return "timestamp"
	case typeDynamic:
		return "?"
	}
	if t.rt == nil {
		return "()"
	}
	return t.rt.String()
}
