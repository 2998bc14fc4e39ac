package interpreter

import (
	"math"
	"slices"
	"testing"

	"quill/interpreter-go/pkg/runtime"
)

func collectInts(t *testing.T, values []runtime.Value) []int64 {
	t.Helper()
	out := make([]int64, len(values))
	for i, v := range values {
		n, ok := v.AsInt()
		if !ok {
			t.Fatalf("element %d is %s, not an integer", i, v.TypeName())
		}
		out[i] = n
	}
	return out
}

func TestStepRange(t *testing.T) {
	cases := []struct {
		rg   StepRange
		want []int64
	}{
		{StepRange{From: 0, To: 10, Step: 3}, []int64{0, 3, 6, 9}},
		{StepRange{From: 10, To: 0, Step: -4}, []int64{10, 6, 2}},
		{StepRange{From: 5, To: 5, Step: 1}, []int64{}},
		{StepRange{From: 0, To: 5, Step: -1}, []int64{}},
		{StepRange{From: math.MaxInt64 - 1, To: math.MaxInt64, Step: 5}, []int64{math.MaxInt64 - 1}},
	}
	for _, tc := range cases {
		got := collectInts(t, slices.Collect(tc.rg.All()))
		if !slices.Equal(got, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.rg, got, tc.want)
		}
	}
}

func TestIntsFrom(t *testing.T) {
	if got := collectInts(t, slices.Collect(intsFrom(2, 5, false))); !slices.Equal(got, []int64{2, 3, 4}) {
		t.Fatalf("exclusive: %v", got)
	}
	if got := collectInts(t, slices.Collect(intsFrom(2, 5, true))); !slices.Equal(got, []int64{2, 3, 4, 5}) {
		t.Fatalf("inclusive: %v", got)
	}
	if got := collectInts(t, slices.Collect(intsFrom(math.MaxInt64-1, math.MaxInt64, true))); len(got) != 2 {
		t.Fatalf("inclusive range ending at the maximum must terminate, got %v", got)
	}
	if got := slices.Collect(intsFrom(5, 2, true)); len(got) != 0 {
		t.Fatalf("reversed range must be empty, got %v", got)
	}
}

func TestSubString(t *testing.T) {
	cases := []struct {
		s             string
		start, length int64
		want          string
	}{
		{"hello", 1, 3, "ell"},
		{"hello", -3, 2, "ll"},
		{"hello", 3, 100, "lo"},
		{"hello", 10, 1, ""},
		{"héllo", 1, 1, "é"},
		{"hello", 0, -1, ""},
	}
	for _, tc := range cases {
		if got := subString(tc.s, tc.start, tc.length); got != tc.want {
			t.Fatalf("subString(%q, %d, %d) = %q, want %q", tc.s, tc.start, tc.length, got, tc.want)
		}
	}
}

func TestCorePackageIterators(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{`let out = []; for c in "abc" { out.push(c); } out`, "['a', 'b', 'c']"},
		{`let out = []; for b in blob(2, 7) { out.push(b); } out`, "[7, 7]"},
		{`let out = []; for x in [1, [2]] { out.push(x); } out`, "[1, [2]]"},
		{`let n = 0; for i in range(0, 3) { n += i; } n`, "3"},
		{`let n = 0; for i in 3..1 { n += 1; } n`, "0"},
	}
	for _, tc := range cases {
		got := mustEval(t, New(), tc.source)
		if runtime.ToDebug(got) != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.source, runtime.ToDebug(got), tc.want)
		}
	}
}

func TestCorePackageFunctions(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{`let a = [1, 2, 3]; a.pop() + a.len()`, "5"},
		{`let a = [1, 2, 3]; a.remove(-1); a`, "[1, 2]"},
		{`let a = [1, 2]; a.remove(7)`, "()"},
		{`let a = [1, 2]; a.clear(); a.is_empty()`, "true"},
		{`["x", "y"].index_of("y")`, "1"},
		{`[1, 2].index_of(3)`, "-1"},
		{`let m = #{a: 1, b: 2}; m.remove("a"); m`, `#{"b": 2}`},
		{`#{a: 1}.values()`, "[1]"},
		{`#{}.is_empty()`, "true"},
		{`"  pad  ".trim()`, `"pad"`},
		{`"Quill".contains('Q') && "Quill".contains("ill")`, "true"},
		{`parse_float("2.5") * 2.0`, "5.0"},
		{`to_int(3.9) + to_int('A')`, "68"},
		{`to_float(1) / 4.0`, "0.25"},
		{`to_debug("x")`, `"\"x\""`},
		{`to_string(1.5)`, `"1.5"`},
		{`type_of(range(0, 5, 2))`, `"StepRange"`},
		{`let f = Fn("to_string"); f.call(7)`, `"7"`},
		{`let f = Fn("len"); call(f, [1, 2])`, "2"},
		{`Fn("abs").name()`, `"abs"`},
		{`let f = |x| x; f.is_anonymous()`, "true"},
		{`let t = timestamp(); t.elapsed >= 0.0`, "true"},
		{`5 in 0..10`, "true"},
		{`10 in 0..=9`, "false"},
		{`(0..10).len()`, "10"},
	}
	for _, tc := range cases {
		got := mustEval(t, New(), tc.source)
		if runtime.ToDebug(got) != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.source, runtime.ToDebug(got), tc.want)
		}
	}
}

func TestCorePackageIsStandard(t *testing.T) {
	m := CorePackage()
	if !m.Standard || m.NumFunctions() == 0 {
		t.Fatalf("core package should be a non-empty standard module")
	}
}
