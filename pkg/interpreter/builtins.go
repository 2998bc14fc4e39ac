package interpreter

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/runtime"
)

type binaryFn func(e *Engine, pos ast.Position, x, y runtime.Value) (runtime.Value, error)

type unaryFn func(pos ast.Position, x runtime.Value) (runtime.Value, error)

// builtinOp is a built-in implementation of an operator for primitive
// operands. needsContext marks operators whose result depends on engine
// limits, which the optimizer must not fold.
type builtinOp struct {
	fn           binaryFn
	needsContext bool
}

func isComparison(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func arith(err error, pos ast.Position) error {
	return runtime.NewArithmetic(err.Error(), pos)
}

func intBinary(f func(a, b int64) (int64, error)) binaryFn {
	return func(_ *Engine, pos ast.Position, x, y runtime.Value) (runtime.Value, error) {
		a, _ := x.AsInt()
		b, _ := y.AsInt()
		c, err := f(a, b)
		if err != nil {
			return runtime.UnitValue, arith(err, pos)
		}
		return runtime.Int(c), nil
	}
}

func intPure(f func(a, b int64) runtime.Value) binaryFn {
	return func(_ *Engine, _ ast.Position, x, y runtime.Value) (runtime.Value, error) {
		a, _ := x.AsInt()
		b, _ := y.AsInt()
		return f(a, b), nil
	}
}

var intOps = map[string]binaryFn{
	"+":   intBinary(intAdd),
	"-":   intBinary(intSub),
	"*":   intBinary(intMul),
	"/":   intBinary(intDiv),
	"%":   intBinary(intMod),
	"**":  intBinary(intPow),
	"<<":  intBinary(intShl),
	">>":  intBinary(intShr),
	"&":   intPure(func(a, b int64) runtime.Value { return runtime.Int(a & b) }),
	"|":   intPure(func(a, b int64) runtime.Value { return runtime.Int(a | b) }),
	"^":   intPure(func(a, b int64) runtime.Value { return runtime.Int(a ^ b) }),
	"==":  intPure(func(a, b int64) runtime.Value { return runtime.Bool(a == b) }),
	"!=":  intPure(func(a, b int64) runtime.Value { return runtime.Bool(a != b) }),
	"<":   intPure(func(a, b int64) runtime.Value { return runtime.Bool(a < b) }),
	"<=":  intPure(func(a, b int64) runtime.Value { return runtime.Bool(a <= b) }),
	">":   intPure(func(a, b int64) runtime.Value { return runtime.Bool(a > b) }),
	">=":  intPure(func(a, b int64) runtime.Value { return runtime.Bool(a >= b) }),
	"..":  intPure(func(a, b int64) runtime.Value { return runtime.NewRange(a, b) }),
	"..=": intPure(func(a, b int64) runtime.Value { return runtime.NewInclusiveRange(a, b) }),
}

func toFloat(v runtime.Value) float64 {
	if f, ok := v.AsFloat(); ok {
		return f
	}
	n, _ := v.AsInt()
	return float64(n)
}

func floatPure(f func(a, b float64) runtime.Value) binaryFn {
	return func(_ *Engine, _ ast.Position, x, y runtime.Value) (runtime.Value, error) {
		return f(toFloat(x), toFloat(y)), nil
	}
}

var floatOps = map[string]binaryFn{
	"+":  floatPure(func(a, b float64) runtime.Value { return runtime.Float(a + b) }),
	"-":  floatPure(func(a, b float64) runtime.Value { return runtime.Float(a - b) }),
	"*":  floatPure(func(a, b float64) runtime.Value { return runtime.Float(a * b) }),
	"/":  floatPure(func(a, b float64) runtime.Value { return runtime.Float(a / b) }),
	"%":  floatPure(func(a, b float64) runtime.Value { return runtime.Float(math.Mod(a, b)) }),
	"**": floatPure(func(a, b float64) runtime.Value { return runtime.Float(math.Pow(a, b)) }),
	"==": floatPure(func(a, b float64) runtime.Value { return runtime.Bool(a == b) }),
	"!=": floatPure(func(a, b float64) runtime.Value { return runtime.Bool(a != b) }),
	"<":  floatPure(func(a, b float64) runtime.Value { return runtime.Bool(a < b) }),
	"<=": floatPure(func(a, b float64) runtime.Value { return runtime.Bool(a <= b) }),
	">":  floatPure(func(a, b float64) runtime.Value { return runtime.Bool(a > b) }),
	">=": floatPure(func(a, b float64) runtime.Value { return runtime.Bool(a >= b) }),
}

func toDecimal(v runtime.Value) decimal.Decimal {
	if d, ok := v.AsDecimal(); ok {
		return d
	}
	n, _ := v.AsInt()
	return decimal.NewFromInt(n)
}

func decimalPure(f func(a, b decimal.Decimal) runtime.Value) binaryFn {
	return func(_ *Engine, _ ast.Position, x, y runtime.Value) (runtime.Value, error) {
		return f(toDecimal(x), toDecimal(y)), nil
	}
}

func decimalDivide(name, sym string, f func(a, b decimal.Decimal) decimal.Decimal) binaryFn {
	return func(_ *Engine, pos ast.Position, x, y runtime.Value) (runtime.Value, error) {
		a, b := toDecimal(x), toDecimal(y)
		if b.IsZero() {
			return runtime.UnitValue, runtime.NewArithmetic(name+" by zero: "+a.String()+" "+sym+" "+b.String(), pos)
		}
		return runtime.Decimal(f(a, b)), nil
	}
}

var decimalOps = map[string]binaryFn{
	"+":  decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Decimal(a.Add(b)) }),
	"-":  decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Decimal(a.Sub(b)) }),
	"*":  decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Decimal(a.Mul(b)) }),
	"/":  decimalDivide("Division", "/", decimal.Decimal.Div),
	"%":  decimalDivide("Modulo division", "%", decimal.Decimal.Mod),
	"==": decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Bool(a.Equal(b)) }),
	"!=": decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Bool(!a.Equal(b)) }),
	"<":  decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Bool(a.LessThan(b)) }),
	"<=": decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Bool(a.LessThanOrEqual(b)) }),
	">":  decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Bool(a.GreaterThan(b)) }),
	">=": decimalPure(func(a, b decimal.Decimal) runtime.Value { return runtime.Bool(a.GreaterThanOrEqual(b)) }),
}

func boolPure(f func(a, b bool) bool) binaryFn {
	return func(_ *Engine, _ ast.Position, x, y runtime.Value) (runtime.Value, error) {
		a, _ := x.AsBool()
		b, _ := y.AsBool()
		return runtime.Bool(f(a, b)), nil
	}
}

var boolOps = map[string]binaryFn{
	"==": boolPure(func(a, b bool) bool { return a == b }),
	"!=": boolPure(func(a, b bool) bool { return a != b }),
	"&":  boolPure(func(a, b bool) bool { return a && b }),
	"|":  boolPure(func(a, b bool) bool { return a || b }),
	"^":  boolPure(func(a, b bool) bool { return a != b }),
}

// textOf returns the text of a string or char operand.
func textOf(v runtime.Value) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	c, _ := v.AsChar()
	return string(c)
}

// concat joins two strings or chars, enforcing the string size limit.
func concat(e *Engine, pos ast.Position, x, y runtime.Value) (runtime.Value, error) {
	a, b := textOf(x), textOf(y)
	switch {
	case b == "" && x.Kind() == runtime.KindString:
		return x, nil
	case a == "" && y.Kind() == runtime.KindString:
		return y, nil
	}
	if limit := e.limits.MaxStringSize; limit > 0 && len(a)+len(b) > limit {
		return runtime.UnitValue, runtime.NewDataTooLarge("Length of string", pos)
	}
	return runtime.String(a + b), nil
}

func textCompare(f func(c int) bool) binaryFn {
	return func(_ *Engine, _ ast.Position, x, y runtime.Value) (runtime.Value, error) {
		return runtime.Bool(f(strings.Compare(textOf(x), textOf(y)))), nil
	}
}

var textComparisons = map[string]binaryFn{
	"==": textCompare(func(c int) bool { return c == 0 }),
	"!=": textCompare(func(c int) bool { return c != 0 }),
	"<":  textCompare(func(c int) bool { return c < 0 }),
	"<=": textCompare(func(c int) bool { return c <= 0 }),
	">":  textCompare(func(c int) bool { return c > 0 }),
	">=": textCompare(func(c int) bool { return c >= 0 }),
}

func timestampCompare(f func(a, b time.Time) bool) binaryFn {
	return func(_ *Engine, _ ast.Position, x, y runtime.Value) (runtime.Value, error) {
		a, _ := x.AsTimestamp()
		b, _ := y.AsTimestamp()
		return runtime.Bool(f(a, b)), nil
	}
}

var timestampOps = map[string]binaryFn{
	"==": timestampCompare(func(a, b time.Time) bool { return a.Equal(b) }),
	"!=": timestampCompare(func(a, b time.Time) bool { return !a.Equal(b) }),
	"<":  timestampCompare(func(a, b time.Time) bool { return a.Before(b) }),
	"<=": timestampCompare(func(a, b time.Time) bool { return !a.After(b) }),
	">":  timestampCompare(func(a, b time.Time) bool { return a.After(b) }),
	">=": timestampCompare(func(a, b time.Time) bool { return !a.Before(b) }),
}

func equality(op string, equal bool) (runtime.Value, bool) {
	switch op {
	case "==":
		return runtime.Bool(equal), true
	case "!=":
		return runtime.Bool(!equal), true
	}
	return runtime.UnitValue, false
}

// equalityOp builds `==`/`!=` for kinds compared by payload identity.
func equalityOp(op string, eq func(x, y runtime.Value) bool) (builtinOp, bool) {
	if op != "==" && op != "!=" {
		return builtinOp{}, false
	}
	return builtinOp{fn: func(_ *Engine, _ ast.Position, x, y runtime.Value) (runtime.Value, error) {
		v, _ := equality(op, eq(x, y))
		return v, nil
	}}, true
}

func lookup(table map[string]binaryFn, op string) (builtinOp, bool) {
	fn, ok := table[op]
	return builtinOp{fn: fn}, ok
}

// builtinBinaryOp returns the built-in implementation of op for the operand
// types, if there is one.
func builtinBinaryOp(op string, x, y runtime.Value) (builtinOp, bool) {
	xk, yk := x.Kind(), y.Kind()
	numeric := func(k runtime.Kind) bool { return k == runtime.KindInt || k == runtime.KindFloat }
	text := func(k runtime.Kind) bool { return k == runtime.KindString || k == runtime.KindChar }

	switch {
	case xk == runtime.KindInt && yk == runtime.KindInt:
		return lookup(intOps, op)
	case numeric(xk) && numeric(yk):
		return lookup(floatOps, op)
	case (xk == runtime.KindDecimal && (yk == runtime.KindDecimal || yk == runtime.KindInt)) ||
		(yk == runtime.KindDecimal && xk == runtime.KindInt):
		return lookup(decimalOps, op)
	case xk == runtime.KindBool && yk == runtime.KindBool:
		return lookup(boolOps, op)
	case text(xk) && text(yk):
		if op == "+" {
			return builtinOp{fn: concat, needsContext: true}, true
		}
		// A char compares as a one-character string.
		return lookup(textComparisons, op)
	case xk == runtime.KindUnit && yk == runtime.KindUnit:
		return equalityOp(op, func(_, _ runtime.Value) bool { return true })
	case xk == runtime.KindRange && yk == runtime.KindRange:
		return equalityOp(op, func(a, b runtime.Value) bool {
			ra, _ := a.AsRange()
			rb, _ := b.AsRange()
			return ra == rb
		})
	case xk == runtime.KindInclusiveRange && yk == runtime.KindInclusiveRange:
		return equalityOp(op, func(a, b runtime.Value) bool {
			ra, _ := a.AsInclusiveRange()
			rb, _ := b.AsInclusiveRange()
			return ra == rb
		})
	case xk == runtime.KindBlob && yk == runtime.KindBlob:
		if op == "+" {
			return builtinOp{fn: blobConcat, needsContext: true}, true
		}
		return equalityOp(op, func(a, b runtime.Value) bool {
			ba, _ := a.BlobRef()
			bb, _ := b.BlobRef()
			return string(*ba) == string(*bb)
		})
	case xk == runtime.KindTimestamp && yk == runtime.KindTimestamp:
		return lookup(timestampOps, op)
	}
	return builtinOp{}, false
}

func blobConcat(e *Engine, pos ast.Position, x, y runtime.Value) (runtime.Value, error) {
	a, _ := x.BlobRef()
	b, _ := y.BlobRef()
	if limit := e.limits.MaxArraySize; limit > 0 && len(*a)+len(*b) > limit {
		return runtime.UnitValue, runtime.NewDataTooLarge("Size of array/BLOB", pos)
	}
	out := make([]byte, 0, len(*a)+len(*b))
	out = append(append(out, *a...), *b...)
	return runtime.NewBlob(out), nil
}

// builtinOpAssign returns the built-in implementation backing a compound
// assignment with base operator op.
func builtinOpAssign(op string, x, y runtime.Value) (binaryFn, bool) {
	if isComparison(op) {
		return nil, false
	}
	b, ok := builtinBinaryOp(op, x, y)
	if !ok {
		return nil, false
	}
	return b.fn, true
}

// builtinUnaryOp returns the built-in implementation of a prefix operator.
func builtinUnaryOp(op string, x runtime.Value) (unaryFn, bool) {
	switch x.Kind() {
	case runtime.KindInt:
		switch op {
		case "-":
			return func(pos ast.Position, x runtime.Value) (runtime.Value, error) {
				n, _ := x.AsInt()
				r, err := intNeg(n)
				if err != nil {
					return runtime.UnitValue, arith(err, pos)
				}
				return runtime.Int(r), nil
			}, true
		case "+":
			return func(_ ast.Position, x runtime.Value) (runtime.Value, error) { return x, nil }, true
		}
	case runtime.KindFloat:
		switch op {
		case "-":
			return func(_ ast.Position, x runtime.Value) (runtime.Value, error) {
				f, _ := x.AsFloat()
				return runtime.Float(-f), nil
			}, true
		case "+":
			return func(_ ast.Position, x runtime.Value) (runtime.Value, error) { return x, nil }, true
		}
	case runtime.KindDecimal:
		switch op {
		case "-":
			return func(_ ast.Position, x runtime.Value) (runtime.Value, error) {
				d, _ := x.AsDecimal()
				return runtime.Decimal(d.Neg()), nil
			}, true
		case "+":
			return func(_ ast.Position, x runtime.Value) (runtime.Value, error) { return x, nil }, true
		}
	case runtime.KindBool:
		if op == "!" {
			return func(_ ast.Position, x runtime.Value) (runtime.Value, error) {
				b, _ := x.AsBool()
				return runtime.Bool(!b), nil
			}, true
		}
	}
	return nil, false
}
