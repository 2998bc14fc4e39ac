//go:build unchecked

package interpreter

import "fmt"

// Unchecked integer arithmetic wraps on overflow. Division by zero is still
// an error; shifting by a negative amount shifts the other way.

func intAdd(a, b int64) (int64, error) { return a + b, nil }

func intSub(a, b int64) (int64, error) { return a - b, nil }

func intMul(a, b int64) (int64, error) { return a * b, nil }

func intDiv(a, b int64) (int64, error) {
	if b == 0 {
		return 0, fmt.Errorf("Division by zero: %d / %d", a, b)
	}
	if b == -1 {
		return -a, nil
	}
	return a / b, nil
}

func intMod(a, b int64) (int64, error) {
	if b == 0 {
		return 0, fmt.Errorf("Modulo division by zero: %d %% %d", a, b)
	}
	if b == -1 {
		return 0, nil
	}
	return a % b, nil
}

func intPow(a, b int64) (int64, error) {
	if b < 0 {
		return 0, fmt.Errorf("Integer raised to a negative power: %d ** %d", a, b)
	}
	result := int64(1)
	for base, exp := a, b; exp > 0; exp >>= 1 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
	}
	return result, nil
}

func intShl(a, b int64) (int64, error) {
	if b < 0 {
		return intShr(a, -max(b, -64))
	}
	if b >= 64 {
		return 0, nil
	}
	return a << uint(b), nil
}

func intShr(a, b int64) (int64, error) {
	if b < 0 {
		return intShl(a, -max(b, -64))
	}
	if b >= 64 {
		if a < 0 {
			return -1, nil
		}
		return 0, nil
	}
	return a >> uint(b), nil
}

func intNeg(a int64) (int64, error) { return -a, nil }
