package runtime

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
)

func TestKindAndTypeNames(t *testing.T) {
	cases := []struct {
		value Value
		kind  Kind
		name  string
	}{
		{UnitValue, KindUnit, "()"},
		{Bool(true), KindBool, "bool"},
		{Int(1), KindInt, "i64"},
		{Float(1.5), KindFloat, "f64"},
		{Decimal(decimal.NewFromInt(3)), KindDecimal, "decimal"},
		{Char('x'), KindChar, "char"},
		{String("s"), KindString, "string"},
		{NewArray(Int(1)), KindArray, "array"},
		{NewBlob([]byte{1}), KindBlob, "blob"},
		{NewMapValue(nil), KindMap, "map"},
		{NewRange(0, 3), KindRange, "range"},
		{NewInclusiveRange(0, 3), KindInclusiveRange, "range="},
		{NewFnPtrValue(NewFnPtr("f")), KindFnPtr, "Fn"},
	}
	for _, tc := range cases {
		if tc.value.Kind() != tc.kind {
			t.Fatalf("%v: expected kind %s, got %s", tc.value, tc.kind, tc.value.Kind())
		}
		if tc.value.TypeName() != tc.name {
			t.Fatalf("%v: expected type name %q, got %q", tc.value, tc.name, tc.value.TypeName())
		}
	}
}

func TestTypeIDIdentity(t *testing.T) {
	if Int(1).TypeID() != TypeInt || Int(2).TypeID() != Int(3).TypeID() {
		t.Fatalf("integer type ids should compare equal")
	}
	if Int(1).TypeID() == Float(1).TypeID() {
		t.Fatalf("int and float type ids should differ")
	}
	if NewArray().TypeID() != TypeArray || NewMapValue(nil).TypeID() != TypeMap {
		t.Fatalf("container type ids mismatch")
	}
	type point struct{ X, Y int }
	if Foreign(point{}).TypeID() != TypeOf[point]() {
		t.Fatalf("foreign type id mismatch")
	}
	if !TypeDynamic.IsDynamic() || TypeInt.IsDynamic() {
		t.Fatalf("dynamic token misreported")
	}
}

func TestCloneDeepCopiesContainers(t *testing.T) {
	inner := NewArray(Int(1))
	outer := NewArray(inner, String("x"))
	clone := outer.Clone()

	arr, _ := clone.ArrayRef()
	innerClone, _ := (*arr)[0].ArrayRef()
	(*innerClone)[0] = Int(99)

	orig, _ := outer.ArrayRef()
	origInner, _ := (*orig)[0].ArrayRef()
	if n, _ := (*origInner)[0].AsInt(); n != 1 {
		t.Fatalf("clone mutated the original: %v", outer)
	}
}

func TestCloneAliasesSharedCells(t *testing.T) {
	shared := Int(1).IntoShared()
	alias := shared.Clone()
	if err := alias.Set(Int(2)); err != nil {
		t.Fatalf("set through alias: %v", err)
	}
	if n, _ := shared.AsInt(); n != 2 {
		t.Fatalf("expected shared update to be visible, got %v", shared)
	}
	flat := shared.Flatten()
	if flat.IsShared() {
		t.Fatalf("flatten should remove the cell")
	}
	if err := alias.Set(Int(3)); err != nil {
		t.Fatal(err)
	}
	if n, _ := flat.AsInt(); n != 2 {
		t.Fatalf("flattened copy must not follow later writes, got %v", flat)
	}
}

func TestAccessModeSurvivesClone(t *testing.T) {
	v := Int(1).WithAccess(ReadOnly)
	if !v.Clone().IsReadOnly() {
		t.Fatalf("clone dropped read-only mode")
	}
}

func TestWriteBorrowConflictIsDataRace(t *testing.T) {
	v := NewArray(Int(1)).IntoShared()
	err := v.Write(func(inner *Value) error {
		return v.Read(func(Value) error { return nil })
	})
	var evalErr *EvalError
	if !errors.As(err, &evalErr) || evalErr.Kind != ErrDataRace {
		t.Fatalf("expected data race, got %v", err)
	}
}

func TestAsCasts(t *testing.T) {
	n, err := As[int64](Int(7))
	if err != nil || n != 7 {
		t.Fatalf("As[int64]: %v %v", n, err)
	}
	i, err := As[int](Int(7))
	if err != nil || i != 7 {
		t.Fatalf("As[int]: %v %v", i, err)
	}
	arr, err := As[*Array](NewArray(Int(1), Int(2)))
	if err != nil || len(*arr) != 2 {
		t.Fatalf("As[*Array]: %v %v", arr, err)
	}
	s, err := As[string](String("hi").IntoShared())
	if err != nil || s != "hi" {
		t.Fatalf("As[string] through shared: %v %v", s, err)
	}
	_, err = As[string](Int(1))
	var evalErr *EvalError
	if !errors.As(err, &evalErr) || evalErr.Kind != ErrMismatchDataType || evalErr.Actual != "i64" || evalErr.Expected != "string" {
		t.Fatalf("expected type mismatch naming i64, got %v", err)
	}
}

func TestFromConvertsGoValues(t *testing.T) {
	if From(3).Kind() != KindInt || From("x").Kind() != KindString || From(nil).Kind() != KindUnit {
		t.Fatalf("primitive conversion failed")
	}
	if From([]string{"a", "b"}).Kind() != KindArray {
		t.Fatalf("string slice should become an array")
	}
	type handle struct{ id int }
	if From(handle{1}).Kind() != KindForeign {
		t.Fatalf("unknown Go type should be foreign")
	}
}

func TestToStringAndDebug(t *testing.T) {
	m := NewMap()
	m.Set("a", Int(1))
	m.Set("b", String("x"))
	cases := []struct {
		value      Value
		str, debug string
	}{
		{UnitValue, "", "()"},
		{Int(-5), "-5", "-5"},
		{Float(2), "2.0", "2.0"},
		{Float(0.1), "0.1", "0.1"},
		{Char('c'), "c", "'c'"},
		{String("hi"), "hi", `"hi"`},
		{NewArray(Int(1), String("a")), `[1, "a"]`, `[1, "a"]`},
		{NewMapValue(m), `#{"a": 1, "b": "x"}`, `#{"a": 1, "b": "x"}`},
		{NewBlob([]byte{1, 255}), "[01 ff]", "[01 ff]"},
		{NewRange(1, 4), "1..4", "1..4"},
		{NewInclusiveRange(1, 4), "1..=4", "1..=4"},
		{NewFnPtrValue(NewFnPtr("foo")), "Fn(foo)", "Fn(foo)"},
	}
	for _, tc := range cases {
		if got := ToString(tc.value); got != tc.str {
			t.Fatalf("ToString(%#v) = %q, want %q", tc.value.Raw(), got, tc.str)
		}
		if got := ToDebug(tc.value); got != tc.debug {
			t.Fatalf("ToDebug(%#v) = %q, want %q", tc.value.Raw(), got, tc.debug)
		}
	}
}

func TestFloatFormattingRoundTrips(t *testing.T) {
	for _, f := range []float64{0, 1, -1.5, 1e20, 1.234e-7, math.MaxFloat64, 0.30000000000000004} {
		s := FormatFloat(f)
		back, err := strconv.ParseFloat(s, 64)
		if err != nil || back != f {
			t.Fatalf("FormatFloat(%v) = %q does not round-trip (%v, %v)", f, s, back, err)
		}
	}
}

func TestMapPreservesInsertionOrder(t *testing.T) {
	m := NewMap()
	for _, k := range []string{"z", "a", "m"} {
		m.Set(k, String(k))
	}
	m.Set("a", Int(1))
	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "z" || keys[1] != "a" || keys[2] != "m" {
		t.Fatalf("unexpected key order %v", keys)
	}
	ref, _ := m.Ref("m")
	*ref = Int(5)
	if v, _ := m.Get("m"); v.Kind() != KindInt {
		t.Fatalf("write through Ref not visible")
	}
	if _, ok := m.Remove("z"); !ok || m.Len() != 2 {
		t.Fatalf("remove failed: %v", m.Keys())
	}
}

func TestFnPtrCurryAndClone(t *testing.T) {
	fp := NewFnPtr("add").WithCurry(Int(1))
	more := fp.WithCurry(Int(2))
	if len(fp.Curry) != 1 || len(more.Curry) != 2 {
		t.Fatalf("currying should not mutate the original: %v / %v", fp.Curry, more.Curry)
	}
	if fp.IsAnonymous() || !NewFnPtr("anon$x").IsAnonymous() {
		t.Fatalf("anonymous detection failed")
	}
}

func TestIdentifierInterning(t *testing.T) {
	a := NewIdentifier("name")
	b := NewIdentifier(string([]byte("name")))
	if a != b || a.String() != "name" {
		t.Fatalf("identifiers with equal text should be equal")
	}
	if (Identifier{}).String() != "" {
		t.Fatalf("zero identifier should render empty")
	}
}
