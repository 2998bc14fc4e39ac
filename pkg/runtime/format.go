package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatFloat renders a float so that it reads back exactly and always
// looks like a float ("1.0", not "1").
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	var s string
	if abs != 0 && (abs < 1e-5 || abs >= 1e15) {
		s = strconv.FormatFloat(f, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ToString renders a value the way `to_string` and interpolation do.
func ToString(v Value) string {
	switch x := v.payload().(type) {
	case nil:
		return ""
	case string:
		return x
	case rune:
		return string(x)
	default:
		return format(v, false)
	}
}

// ToDebug renders a value the way `to_debug` and `debug` do: strings and
// characters are quoted.
func ToDebug(v Value) string {
	return format(v, true)
}

func format(v Value, debug bool) string {
	switch x := v.payload().(type) {
	case nil:
		return "()"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return FormatFloat(x)
	case rune:
		if debug {
			return strconv.QuoteRune(x)
		}
		return string(x)
	case string:
		if debug {
			return strconv.Quote(x)
		}
		return x
	case *Array:
		parts := make([]string, len(*x))
		for i, el := range *x {
			parts[i] = format(el, true)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Blob:
		var b strings.Builder
		b.WriteByte('[')
		for i, by := range *x {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%02x", by)
		}
		b.WriteByte(']')
		return b.String()
	case *Map:
		var b strings.Builder
		b.WriteString("#{")
		first := true
		x.Each(func(key string, value *Value) bool {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(strconv.Quote(key))
			b.WriteString(": ")
			b.WriteString(format(*value, true))
			return true
		})
		b.WriteByte('}')
		return b.String()
	case Range:
		return fmt.Sprintf("%d..%d", x.Start, x.End)
	case InclusiveRange:
		return fmt.Sprintf("%d..=%d", x.Start, x.End)
	case *FnPtr:
		if debug && len(x.Curry) > 0 {
			parts := make([]string, len(x.Curry))
			for i, c := range x.Curry {
				parts[i] = format(c, true)
			}
			return fmt.Sprintf("Fn(%s)[%s]", x.Name, strings.Join(parts, ", "))
		}
		return fmt.Sprintf("Fn(%s)", x.Name)
	case time.Time:
		return "<timestamp>"
	case fmt.Stringer:
		return x.String()
	default:
		if debug {
			return fmt.Sprintf("%#v", x)
		}
		return fmt.Sprintf("<%s>", v.TypeName())
	}
}

// String implements fmt.Stringer with the debug rendering.
func (v Value) String() string {
	return ToDebug(v)
}
