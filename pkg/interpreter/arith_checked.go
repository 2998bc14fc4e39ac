//go:build !unchecked

package interpreter

import (
	"fmt"
	"math"
)

// Integer arithmetic reports overflow as an error. Build with the
// `unchecked` tag to wrap around instead.

func intAdd(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("Addition overflow: %d + %d", a, b)
	}
	return a + b, nil
}

func intSub(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, fmt.Errorf("Subtraction overflow: %d - %d", a, b)
	}
	return a - b, nil
}

func intMul(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, fmt.Errorf("Multiplication overflow: %d * %d", a, b)
	}
	return c, nil
}

func intDiv(a, b int64) (int64, error) {
	switch {
	case b == 0:
		return 0, fmt.Errorf("Division by zero: %d / %d", a, b)
	case a == math.MinInt64 && b == -1:
		return 0, fmt.Errorf("Division overflow: %d / %d", a, b)
	}
	return a / b, nil
}

func intMod(a, b int64) (int64, error) {
	switch {
	case b == 0:
		return 0, fmt.Errorf("Modulo division by zero: %d %% %d", a, b)
	case a == math.MinInt64 && b == -1:
		return 0, fmt.Errorf("Modulo division overflow: %d %% %d", a, b)
	}
	return a % b, nil
}

func intPow(a, b int64) (int64, error) {
	if b < 0 {
		return 0, fmt.Errorf("Integer raised to a negative power: %d ** %d", a, b)
	}
	result, base := int64(1), a
	for exp := b; exp > 0; exp >>= 1 {
		var err error
		if exp&1 == 1 {
			if result, err = intMul(result, base); err != nil {
				return 0, fmt.Errorf("Exponential overflow: %d ** %d", a, b)
			}
		}
		if exp > 1 {
			if base, err = intMul(base, base); err != nil {
				return 0, fmt.Errorf("Exponential overflow: %d ** %d", a, b)
			}
		}
	}
	return result, nil
}

func intShl(a, b int64) (int64, error) {
	switch {
	case b < 0:
		return 0, fmt.Errorf("Left-shift by a negative number: %d << %d", a, b)
	case b >= 64:
		return 0, fmt.Errorf("Left-shift overflow: %d << %d", a, b)
	}
	return a << uint(b), nil
}

func intShr(a, b int64) (int64, error) {
	switch {
	case b < 0:
		return 0, fmt.Errorf("Right-shift by a negative number: %d >> %d", a, b)
	case b >= 64:
		return 0, fmt.Errorf("Right-shift overflow: %d >> %d", a, b)
	}
	return a >> uint(b), nil
}

func intNeg(a int64) (int64, error) {
	if a == math.MinInt64 {
		return 0, fmt.Errorf("Negation overflow: -%d", a)
	}
	return -a, nil
}
