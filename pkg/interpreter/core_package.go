package interpreter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// CorePackage returns the functions every script can rely on: conversions,
// printing, the basic container operations and function-pointer helpers.
// New registers it as a global module; NewRaw leaves it out.
func CorePackage() *module.Module {
	m := module.NewWithID("core")
	m.Standard = true
	r := coreRegistrar{m: m}
	registerConversions(r)
	registerArrayFns(r)
	registerStringFns(r)
	registerMapFns(r)
	registerBlobFns(r)
	registerTimeFns(r)
	registerFnPtrFns(r)
	registerCoreIterators(m)
	m.SetCustomType(runtime.TypeOf[StepRange](), "StepRange")
	return m
}

type coreRegistrar struct {
	m *module.Module
}

// fn registers a core function in the global namespace. A failure here is
// a programming error in this file.
func (r coreRegistrar) fn(name string, f any, opts ...module.FnOption) {
	opts = append([]module.FnOption{module.InGlobalNamespace()}, opts...)
	if _, err := r.m.SetFn(name, f, opts...); err != nil {
		panic(fmt.Sprintf("core package: %s: %v", name, err))
	}
}

// callerOf recovers the evaluator frame behind a native call, for the
// functions that inspect the caller's scope.
func callerOf(ctx runtime.NativeCallContext) (*callContext, bool) {
	c, ok := ctx.(*callContext)
	return c, ok
}

func registerConversions(r coreRegistrar) {
	r.fn("to_string", func(v runtime.Value) string { return runtime.ToString(v) })
	r.fn("to_debug", func(v runtime.Value) string { return runtime.ToDebug(v) })
	r.fn("type_of", func(ctx runtime.NativeCallContext, v runtime.Value) string {
		if e, ok := engineOf(ctx); ok {
			return e.typeName(v)
		}
		return v.TypeName()
	})

	r.fn("print", func(ctx runtime.NativeCallContext, v runtime.Value) error {
		text, ok := v.AsString()
		if !ok {
			out, err := ctx.CallFn("to_string", v)
			if err != nil {
				return err
			}
			text = runtime.ToString(out)
		}
		if e, ok := engineOf(ctx); ok {
			e.printHook(text)
		}
		return nil
	}, module.Volatile())
	r.fn("debug", func(ctx runtime.NativeCallContext, v runtime.Value) error {
		out, err := ctx.CallFn("to_debug", v)
		if err != nil {
			return err
		}
		if e, ok := engineOf(ctx); ok {
			e.debugHook(runtime.ToString(out), ctx.Source(), ctx.Position())
		}
		return nil
	}, module.Volatile())

	r.fn("parse_int", func(ctx runtime.NativeCallContext, s string) (int64, error) {
		return parseInt(ctx, s, 10)
	})
	r.fn("parse_int", parseInt)
	r.fn("parse_float", func(ctx runtime.NativeCallContext, s string) (float64, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, runtime.NewArithmetic(fmt.Sprintf("Error parsing floating-point number '%s'", s), ctx.Position())
		}
		return f, nil
	})

	r.fn("to_int", func(n int64) int64 { return n })
	r.fn("to_int", func(c rune) int64 { return int64(c) })
	r.fn("to_int", func(ctx runtime.NativeCallContext, f float64) (int64, error) {
		if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return 0, runtime.NewArithmetic(fmt.Sprintf("Integer overflow: to_int(%s)", runtime.FormatFloat(f)), ctx.Position())
		}
		return int64(f), nil
	})
	r.fn("to_int", func(ctx runtime.NativeCallContext, d decimal.Decimal) (int64, error) {
		t := d.Truncate(0)
		if t.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || t.LessThan(decimal.NewFromInt(math.MinInt64)) {
			return 0, runtime.NewArithmetic(fmt.Sprintf("Integer overflow: to_int(%s)", d), ctx.Position())
		}
		return t.IntPart(), nil
	})
	r.fn("to_float", func(f float64) float64 { return f })
	r.fn("to_float", func(n int64) float64 { return float64(n) })
	r.fn("to_float", func(d decimal.Decimal) float64 {
		f, _ := d.Float64()
		return f
	})
	r.fn("to_decimal", func(d decimal.Decimal) decimal.Decimal { return d })
	r.fn("to_decimal", func(n int64) decimal.Decimal { return decimal.NewFromInt(n) })
	r.fn("to_decimal", func(ctx runtime.NativeCallContext, f float64) (decimal.Decimal, error) {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, runtime.NewArithmetic(fmt.Sprintf("Cannot convert to decimal: %s", runtime.FormatFloat(f)), ctx.Position())
		}
		return decimal.NewFromFloat(f), nil
	})
	r.fn("to_decimal", func(ctx runtime.NativeCallContext, s string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, runtime.NewArithmetic(fmt.Sprintf("Error parsing decimal number '%s'", s), ctx.Position())
		}
		return d, nil
	})
	r.fn("to_char", func(c rune) rune { return c })
	r.fn("to_char", func(ctx runtime.NativeCallContext, n int64) (rune, error) {
		if n < 0 || n > math.MaxInt32 || !utf8.ValidRune(rune(n)) {
			return 0, runtime.NewArithmetic(fmt.Sprintf("Invalid Unicode character: %d", n), ctx.Position())
		}
		return rune(n), nil
	})
}

func parseInt(ctx runtime.NativeCallContext, s string, radix int64) (int64, error) {
	if radix < 2 || radix > 36 {
		return 0, runtime.NewArithmetic(fmt.Sprintf("Invalid radix: %d", radix), ctx.Position())
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), int(radix), 64)
	if err != nil {
		return 0, runtime.NewArithmetic(fmt.Sprintf("Error parsing integer number '%s'", s), ctx.Position())
	}
	return n, nil
}

// normalizePosition turns a possibly negative index into an offset from the
// start, reporting whether it falls inside [0, n).
func normalizePosition(idx int64, n int) (int, bool) {
	if idx < 0 {
		idx += int64(n)
	}
	if idx < 0 || idx >= int64(n) {
		return 0, false
	}
	return int(idx), true
}

// checkGrowth enforces the size limits on a container a function grew in
// place. The value is only materialized when a limit is set.
func checkGrowth(ctx runtime.NativeCallContext, grown func() runtime.Value) error {
	if e, ok := engineOf(ctx); ok {
		l := e.limits
		if l.MaxArraySize == 0 && l.MaxStringSize == 0 && l.MaxMapSize == 0 {
			return nil
		}
	}
	return ctx.CheckSize(grown())
}

// valuesEqual compares two values with the `==` operator in scope.
func valuesEqual(ctx runtime.NativeCallContext, x, y runtime.Value) (bool, error) {
	if x.Kind() != y.Kind() && x.Kind() != runtime.KindForeign && y.Kind() != runtime.KindForeign {
		return false, nil
	}
	out, err := ctx.CallFn("==", x, y)
	if err != nil {
		var evalErr *runtime.EvalError
		if errors.As(err, &evalErr) && evalErr.Kind == runtime.ErrFunctionNotFound {
			return false, nil
		}
		return false, err
	}
	b, _ := out.AsBool()
	return b, nil
}

func registerArrayFns(r coreRegistrar) {
	r.fn("len", func(a runtime.Array) int64 { return int64(len(a)) })
	r.fn("is_empty", func(a runtime.Array) bool { return len(a) == 0 })
	r.fn("push", func(ctx runtime.NativeCallContext, a *runtime.Array, v runtime.Value) error {
		*a = append(*a, v.Flatten())
		return checkGrowth(ctx, func() runtime.Value { return runtime.NewArray(*a...) })
	})
	r.fn("append", func(ctx runtime.NativeCallContext, a *runtime.Array, other runtime.Array) error {
		for _, v := range other {
			*a = append(*a, v.Clone())
		}
		return checkGrowth(ctx, func() runtime.Value { return runtime.NewArray(*a...) })
	})
	r.fn("+=", func(ctx runtime.NativeCallContext, a *runtime.Array, other runtime.Array) error {
		for _, v := range other {
			*a = append(*a, v.Clone())
		}
		return checkGrowth(ctx, func() runtime.Value { return runtime.NewArray(*a...) })
	})
	r.fn("+", func(x, y runtime.Array) runtime.Value {
		out := make([]runtime.Value, 0, len(x)+len(y))
		for _, v := range x {
			out = append(out, v.Clone())
		}
		for _, v := range y {
			out = append(out, v.Clone())
		}
		return runtime.NewArray(out...)
	})
	r.fn("pop", func(a *runtime.Array) runtime.Value {
		if len(*a) == 0 {
			return runtime.UnitValue
		}
		last := (*a)[len(*a)-1]
		*a = (*a)[:len(*a)-1]
		return last
	})
	r.fn("insert", func(ctx runtime.NativeCallContext, a *runtime.Array, idx int64, v runtime.Value) error {
		n := int64(len(*a))
		switch {
		case idx < 0:
			idx = max(idx+n, 0)
		case idx > n:
			idx = n
		}
		*a = append(*a, runtime.UnitValue)
		copy((*a)[idx+1:], (*a)[idx:])
		(*a)[idx] = v.Flatten()
		return checkGrowth(ctx, func() runtime.Value { return runtime.NewArray(*a...) })
	})
	r.fn("remove", func(a *runtime.Array, idx int64) runtime.Value {
		i, ok := normalizePosition(idx, len(*a))
		if !ok {
			return runtime.UnitValue
		}
		removed := (*a)[i]
		*a = append((*a)[:i], (*a)[i+1:]...)
		return removed
	})
	r.fn("clear", func(a *runtime.Array) { *a = (*a)[:0] })
	r.fn("contains", func(ctx runtime.NativeCallContext, a runtime.Array, v runtime.Value) (bool, error) {
		i, err := indexOf(ctx, a, v)
		return i >= 0, err
	})
	r.fn("index_of", indexOf)
}

func indexOf(ctx runtime.NativeCallContext, a runtime.Array, v runtime.Value) (int64, error) {
	v = v.Flatten()
	for i, item := range a {
		eq, err := valuesEqual(ctx, item.Flatten(), v)
		if err != nil {
			return -1, err
		}
		if eq {
			return int64(i), nil
		}
	}
	return -1, nil
}

func registerStringFns(r coreRegistrar) {
	r.fn("len", func(s string) int64 { return int64(utf8.RuneCountInString(s)) })
	r.fn("is_empty", func(s string) bool { return s == "" })
	r.fn("contains", func(s, sub string) bool { return strings.Contains(s, sub) })
	r.fn("contains", func(s string, c rune) bool { return strings.ContainsRune(s, c) })
	r.fn("to_upper", strings.ToUpper)
	r.fn("to_lower", strings.ToLower)
	r.fn("to_upper", func(c rune) rune { return []rune(strings.ToUpper(string(c)))[0] })
	r.fn("to_lower", func(c rune) rune { return []rune(strings.ToLower(string(c)))[0] })
	r.fn("trim", strings.TrimSpace)
	r.fn("sub_string", subString)
	r.fn("sub_string", func(s string, start int64) string {
		return subString(s, start, math.MaxInt64)
	})
	r.fn("split", func(s, sep string) runtime.Value {
		parts := strings.Split(s, sep)
		out := make([]runtime.Value, len(parts))
		for i, p := range parts {
			out[i] = runtime.String(p)
		}
		return runtime.NewArray(out...)
	})
	r.fn("split", func(s string, sep rune) runtime.Value {
		parts := strings.Split(s, string(sep))
		out := make([]runtime.Value, len(parts))
		for i, p := range parts {
			out[i] = runtime.String(p)
		}
		return runtime.NewArray(out...)
	})
}

// subString extracts up to length characters starting at character start;
// a negative start counts from the end. Out-of-range parts are clipped.
func subString(s string, start, length int64) string {
	chars := []rune(s)
	n := int64(len(chars))
	if start < 0 {
		start = max(start+n, 0)
	}
	if start >= n || length <= 0 {
		return ""
	}
	end := n
	if length < n-start {
		end = start + length
	}
	return string(chars[start:end])
}

func registerMapFns(r coreRegistrar) {
	r.fn("len", func(m *runtime.Map) int64 { return int64(m.Len()) }, module.Pure())
	r.fn("is_empty", func(m *runtime.Map) bool { return m.Len() == 0 }, module.Pure())
	r.fn("contains", func(m *runtime.Map, key string) bool { return m.Contains(key) }, module.Pure())
	r.fn("keys", func(m *runtime.Map) runtime.Value {
		keys := m.Keys()
		out := make([]runtime.Value, len(keys))
		for i, k := range keys {
			out[i] = runtime.String(k)
		}
		return runtime.NewArray(out...)
	}, module.Pure())
	r.fn("values", func(m *runtime.Map) runtime.Value {
		values := m.Values()
		out := make([]runtime.Value, len(values))
		for i, v := range values {
			out[i] = v.Clone()
		}
		return runtime.NewArray(out...)
	}, module.Pure())
	r.fn("remove", func(m *runtime.Map, key string) runtime.Value {
		v, ok := m.Remove(key)
		if !ok {
			return runtime.UnitValue
		}
		return v
	})
	r.fn("clear", func(m *runtime.Map) { m.Clear() })
}

func registerBlobFns(r coreRegistrar) {
	r.fn("blob", func() runtime.Value { return runtime.NewBlob(nil) })
	r.fn("blob", func(ctx runtime.NativeCallContext, n int64) (runtime.Value, error) {
		return makeBlob(ctx, n, 0)
	})
	r.fn("blob", makeBlob)
	r.fn("len", func(b runtime.Blob) int64 { return int64(len(b)) })
	r.fn("is_empty", func(b runtime.Blob) bool { return len(b) == 0 })
	r.fn("push", func(ctx runtime.NativeCallContext, b *runtime.Blob, v int64) error {
		*b = append(*b, byte(v))
		return checkGrowth(ctx, func() runtime.Value { return runtime.NewBlob(*b) })
	})
	r.fn("contains", func(b runtime.Blob, v int64) bool {
		for _, x := range b {
			if int64(x) == v&0xff {
				return true
			}
		}
		return false
	})
}

// makeBlob creates a blob of n bytes set to the low byte of fill, checking
// the size limit before allocating.
func makeBlob(ctx runtime.NativeCallContext, n, fill int64) (runtime.Value, error) {
	if n <= 0 {
		return runtime.NewBlob(nil), nil
	}
	if e, ok := engineOf(ctx); ok {
		if limit := e.limits.MaxArraySize; limit > 0 && n > int64(limit) {
			return runtime.UnitValue, runtime.NewDataTooLarge("Size of BLOB", ctx.Position())
		}
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(fill)
	}
	return runtime.NewBlob(b), nil
}

func registerTimeFns(r coreRegistrar) {
	r.fn("timestamp", func() time.Time { return time.Now() }, module.Volatile())
	elapsed := func(t time.Time) float64 { return time.Since(t).Seconds() }
	r.fn("elapsed", elapsed, module.Volatile())
	r.fn(ast.GetterPrefix+"elapsed", elapsed, module.Volatile())

	r.fn("range", func(from, to int64) runtime.Value { return runtime.NewRange(from, to) })
	r.fn("range", func(ctx runtime.NativeCallContext, from, to, step int64) (runtime.Value, error) {
		if step == 0 {
			return runtime.UnitValue, runtime.NewArithmetic("step value cannot be zero", ctx.Position())
		}
		return runtime.Foreign(StepRange{From: from, To: to, Step: step}), nil
	})
	r.fn("contains", func(rg runtime.Range, n int64) bool { return rg.Contains(n) })
	r.fn("contains", func(rg runtime.InclusiveRange, n int64) bool { return rg.Contains(n) })
	r.fn("len", func(rg runtime.Range) int64 { return rg.Len() })
	r.fn("len", func(rg runtime.InclusiveRange) int64 { return rg.Len() })
}

func registerFnPtrFns(r coreRegistrar) {
	r.fn("Fn", func(ctx runtime.NativeCallContext, name string) (runtime.Value, error) {
		if !lexer.IsValidIdentifier(name) && !strings.HasPrefix(name, ast.AnonymousFnPrefix) {
			return runtime.UnitValue, runtime.NewFunctionNotFound(name, ctx.Position()).WithMessage("'%s' is not a valid function name", name)
		}
		fp := runtime.NewFnPtr(name)
		if c, ok := callerOf(ctx); ok && len(c.fr.libs) > 0 && c.fr.libs[0] != nil {
			fp.Env = c.fr.libs[0]
		}
		return runtime.NewFnPtrValue(fp), nil
	}, module.Volatile())
	r.fn("curry", func(fp runtime.FnPtr, v runtime.Value) runtime.Value {
		return runtime.NewFnPtrValue(fp.WithCurry(v))
	})
	r.fn("call", func(ctx runtime.NativeCallContext, fp runtime.FnPtr) (runtime.Value, error) {
		return ctx.CallFnPtr(&fp)
	}, module.Volatile())
	r.fn("call", func(ctx runtime.NativeCallContext, fp runtime.FnPtr, a runtime.Value) (runtime.Value, error) {
		return ctx.CallFnPtr(&fp, a)
	}, module.Volatile())
	r.fn("call", func(ctx runtime.NativeCallContext, fp runtime.FnPtr, a, b runtime.Value) (runtime.Value, error) {
		return ctx.CallFnPtr(&fp, a, b)
	}, module.Volatile())
	r.fn("call", func(ctx runtime.NativeCallContext, fp runtime.FnPtr, a, b, c runtime.Value) (runtime.Value, error) {
		return ctx.CallFnPtr(&fp, a, b, c)
	}, module.Volatile())
	r.fn("name", func(fp runtime.FnPtr) string { return fp.Name })
	r.fn("is_anonymous", func(fp runtime.FnPtr) bool { return fp.IsAnonymous() })

	r.fn("is_shared", func(v runtime.Value) bool { return v.IsShared() }, module.Volatile())
	r.fn("is_def_var", func(ctx runtime.NativeCallContext, name string) bool {
		c, ok := callerOf(ctx)
		if !ok {
			return false
		}
		if c.fr.scope.Contains(name) {
			return true
		}
		_, found := c.st.globalConstant(name)
		return found
	}, module.Volatile())
	r.fn("is_def_fn", func(ctx runtime.NativeCallContext, name string, arity int64) bool {
		c, ok := callerOf(ctx)
		if !ok {
			return false
		}
		return c.st.resolveScriptFn(c.fr, runtime.CalcFnHash(nil, name, int(arity))) != nil
	}, module.Volatile())
	r.fn("eval", func(ctx runtime.NativeCallContext, text string) (runtime.Value, error) {
		c, ok := callerOf(ctx)
		if !ok {
			return runtime.UnitValue, runtime.NewFunctionNotFound("eval(string)", ctx.Position())
		}
		return c.st.evaluateText(c.fr, text, c.pos)
	}, module.Volatile())
}
