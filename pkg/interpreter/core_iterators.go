package interpreter

import (
	"fmt"
	"iter"
	"math"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// StepRange is the value of `range(from, to, step)`: integers from From
// towards To (exclusive) in increments of Step, which is never zero.
type StepRange struct {
	From, To, Step int64
}

func (r StepRange) String() string {
	return fmt.Sprintf("range(%d, %d, %d)", r.From, r.To, r.Step)
}

// All yields the members of the range in order.
func (r StepRange) All() iter.Seq[runtime.Value] {
	return func(yield func(runtime.Value) bool) {
		if r.Step == 0 {
			return
		}
		for n := r.From; (r.Step > 0 && n < r.To) || (r.Step < 0 && n > r.To); n += r.Step {
			if !yield(runtime.Int(n)) {
				return
			}
			// Stop before the increment wraps around.
			if (r.Step > 0 && n > math.MaxInt64-r.Step) || (r.Step < 0 && n < math.MinInt64-r.Step) {
				return
			}
		}
	}
}

func registerCoreIterators(m *module.Module) {
	m.SetIterator(runtime.TypeRange, func(v runtime.Value) (iter.Seq[runtime.Value], error) {
		rg, ok := v.AsRange()
		if !ok {
			return nil, runtime.NewMismatchDataType("range", v.TypeName(), ast.NoPosition)
		}
		return intsFrom(rg.Start, rg.End, false), nil
	})
	m.SetIterator(runtime.TypeInclusiveRange, func(v runtime.Value) (iter.Seq[runtime.Value], error) {
		rg, ok := v.AsInclusiveRange()
		if !ok {
			return nil, runtime.NewMismatchDataType("range=", v.TypeName(), ast.NoPosition)
		}
		return intsFrom(rg.Start, rg.End, true), nil
	})
	m.SetIterator(runtime.TypeOf[StepRange](), func(v runtime.Value) (iter.Seq[runtime.Value], error) {
		rg, err := runtime.As[StepRange](v)
		if err != nil {
			return nil, err
		}
		return rg.All(), nil
	})
	m.SetIterator(runtime.TypeArray, func(v runtime.Value) (iter.Seq[runtime.Value], error) {
		a, ok := v.ArrayRef()
		if !ok {
			return nil, runtime.NewMismatchDataType("array", v.TypeName(), ast.NoPosition)
		}
		items := *a
		return func(yield func(runtime.Value) bool) {
			for _, item := range items {
				if !yield(item.Clone()) {
					return
				}
			}
		}, nil
	})
	m.SetIterator(runtime.TypeString, func(v runtime.Value) (iter.Seq[runtime.Value], error) {
		s, ok := v.AsString()
		if !ok {
			return nil, runtime.NewMismatchDataType("string", v.TypeName(), ast.NoPosition)
		}
		return func(yield func(runtime.Value) bool) {
			for _, c := range s {
				if !yield(runtime.Char(c)) {
					return
				}
			}
		}, nil
	})
	m.SetIterator(runtime.TypeBlob, func(v runtime.Value) (iter.Seq[runtime.Value], error) {
		b, ok := v.BlobRef()
		if !ok {
			return nil, runtime.NewMismatchDataType("blob", v.TypeName(), ast.NoPosition)
		}
		bytes := *b
		return func(yield func(runtime.Value) bool) {
			for _, x := range bytes {
				if !yield(runtime.Int(int64(x))) {
					return
				}
			}
		}, nil
	})
}

// intsFrom yields start up to end, including end when inclusive.
func intsFrom(start, end int64, inclusive bool) iter.Seq[runtime.Value] {
	return func(yield func(runtime.Value) bool) {
		if start > end || (start == end && !inclusive) {
			return
		}
		for n := start; ; n++ {
			if n == end && !inclusive {
				return
			}
			if !yield(runtime.Int(n)) || n == end {
				return
			}
		}
	}
}
