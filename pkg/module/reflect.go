package module

import (
	"errors"
	"fmt"
	"reflect"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/runtime"
)

// FnOption adjusts a function registered through SetFn.
type FnOption func(*fnOptions)

type fnOptions struct {
	pure       bool
	forcePure  bool
	volatile   bool
	namespace  FnNamespace
	access     FnAccess
	paramNames []string
	comments   []string
}

// Pure marks a function with a mutable first parameter as not mutating it,
// allowing method calls on constants.
func Pure() FnOption {
	return func(o *fnOptions) { o.forcePure = true }
}

// Volatile marks a function whose result cannot be computed ahead of time
// (printing, clocks, randomness).
func Volatile() FnOption {
	return func(o *fnOptions) { o.volatile = true }
}

// InGlobalNamespace exposes a function of a static module unqualified.
func InGlobalNamespace() FnOption {
	return func(o *fnOptions) { o.namespace = Global }
}

// AsPrivate hides the function from callers outside the module.
func AsPrivate() FnOption {
	return func(o *fnOptions) { o.access = Private }
}

// WithParamNames records parameter names for signatures and docs.
func WithParamNames(names ...string) FnOption {
	return func(o *fnOptions) { o.paramNames = names }
}

// WithComments attaches doc comments.
func WithComments(lines ...string) FnOption {
	return func(o *fnOptions) { o.comments = lines }
}

var (
	valueType   = reflect.TypeOf(runtime.Value{})
	valuePtr    = reflect.TypeOf((*runtime.Value)(nil))
	arrayPtr    = reflect.TypeOf((*runtime.Array)(nil))
	blobPtr     = reflect.TypeOf((*runtime.Blob)(nil))
	mapPtr      = reflect.TypeOf((*runtime.Map)(nil))
	contextType = reflect.TypeOf((*runtime.NativeCallContext)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ErrUnsupportedSignature reports a Go function that cannot be registered.
var ErrUnsupportedSignature = errors.New("unsupported function signature")

// argConverter turns a call argument into the Go value passed to the host
// function. The returned finish func, when non-nil, writes results back.
type argConverter func(arg *runtime.Value) (reflect.Value, func() error, error)

// Trampoline describes a Go function adapted to the NativeFunc calling
// convention.
type Trampoline struct {
	Params []runtime.TypeID
	// Mutable is set when the first parameter is a pointer the function may
	// write through.
	Mutable bool
	Native  NativeFunc
}

// Reflect adapts a Go function. Parameters map onto type tokens:
// runtime.Value (and interface types) match anything, int and int64 are
// integers, float32 and float64 floats, runtime.Array and []runtime.Value
// arrays (by copy), []byte blobs. A leading runtime.NativeCallContext
// receives the call context. A first parameter of type *runtime.Value,
// *runtime.Array, *runtime.Blob, *runtime.Map or a pointer to a scalar is a
// mutable receiver. Results may be nothing, T, error or (T, error).
func Reflect(fn any) (*Trampoline, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %T is not a function", ErrUnsupportedSignature, fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic functions are not supported", ErrUnsupportedSignature)
	}
	if err := checkResults(ft); err != nil {
		return nil, err
	}

	offset := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		offset = 1
	}
	n := ft.NumIn() - offset
	t := &Trampoline{Params: make([]runtime.TypeID, n)}
	converters := make([]argConverter, n)
	for i := 0; i < n; i++ {
		pt := ft.In(i + offset)
		id, conv, mutable, err := paramConverter(pt)
		if err != nil {
			return nil, err
		}
		if mutable {
			if i != 0 {
				return nil, fmt.Errorf("%w: only the first parameter may be a pointer, parameter %d is %s", ErrUnsupportedSignature, i+1, pt)
			}
			t.Mutable = true
		}
		t.Params[i] = id
		converters[i] = conv
	}

	t.Native = func(ctx runtime.NativeCallContext, args []*runtime.Value) (runtime.Value, error) {
		if len(args) != n {
			return runtime.UnitValue, fmt.Errorf("expected %d arguments, got %d", n, len(args))
		}
		in := make([]reflect.Value, 0, ft.NumIn())
		if offset == 1 {
			if ctx == nil {
				in = append(in, reflect.Zero(contextType))
			} else {
				in = append(in, reflect.ValueOf(ctx))
			}
		}
		var finishers []func() error
		for i, conv := range converters {
			rv, finish, err := conv(args[i])
			if err != nil {
				return runtime.UnitValue, err
			}
			in = append(in, rv)
			if finish != nil {
				finishers = append(finishers, finish)
			}
		}
		out := fv.Call(in)
		for _, finish := range finishers {
			if err := finish(); err != nil {
				return runtime.UnitValue, err
			}
		}
		return convertResults(out)
	}
	return t, nil
}

func checkResults(ft reflect.Type) error {
	switch ft.NumOut() {
	case 0, 1:
		return nil
	case 2:
		if ft.Out(1) != errorType {
			return fmt.Errorf("%w: second result must be error, got %s", ErrUnsupportedSignature, ft.Out(1))
		}
		return nil
	default:
		return fmt.Errorf("%w: too many results", ErrUnsupportedSignature)
	}
}

func convertResults(out []reflect.Value) (runtime.Value, error) {
	switch len(out) {
	case 0:
		return runtime.UnitValue, nil
	case 1:
		if out[0].Type() == errorType {
			if out[0].IsNil() {
				return runtime.UnitValue, nil
			}
			return runtime.UnitValue, out[0].Interface().(error)
		}
		return runtime.From(out[0].Interface()), nil
	default:
		if !out[1].IsNil() {
			return runtime.UnitValue, out[1].Interface().(error)
		}
		return runtime.From(out[0].Interface()), nil
	}
}

func paramConverter(pt reflect.Type) (runtime.TypeID, argConverter, bool, error) {
	switch pt {
	case valueType:
		return runtime.TypeDynamic, func(arg *runtime.Value) (reflect.Value, func() error, error) {
			return reflect.ValueOf(*arg), nil, nil
		}, false, nil
	case valuePtr:
		return runtime.TypeDynamic, func(arg *runtime.Value) (reflect.Value, func() error, error) {
			return reflect.ValueOf(arg), nil, nil
		}, true, nil
	case arrayPtr:
		return runtime.TypeArray, func(arg *runtime.Value) (reflect.Value, func() error, error) {
			a, ok := arg.ArrayRef()
			if !ok {
				return reflect.Value{}, nil, mismatch(runtime.TypeArray, *arg)
			}
			return reflect.ValueOf(a), nil, nil
		}, true, nil
	case blobPtr:
		return runtime.TypeBlob, func(arg *runtime.Value) (reflect.Value, func() error, error) {
			b, ok := arg.BlobRef()
			if !ok {
				return reflect.Value{}, nil, mismatch(runtime.TypeBlob, *arg)
			}
			return reflect.ValueOf(b), nil, nil
		}, true, nil
	case mapPtr:
		return runtime.TypeMap, func(arg *runtime.Value) (reflect.Value, func() error, error) {
			m, ok := arg.MapRef()
			if !ok {
				return reflect.Value{}, nil, mismatch(runtime.TypeMap, *arg)
			}
			return reflect.ValueOf(m), nil, nil
		}, true, nil
	}

	switch pt.Kind() {
	case reflect.Pointer:
		elem := pt.Elem()
		id, conv, mutable, err := paramConverter(elem)
		if err != nil || mutable {
			return runtime.TypeID{}, nil, false, fmt.Errorf("%w: parameter type %s", ErrUnsupportedSignature, pt)
		}
		if _, scalar := scalarToken(elem); !scalar {
			// Pointers to host types are passed through as foreign values.
			return runtime.TypeIDOf(pt), directConverter(pt), false, nil
		}
		return id, func(arg *runtime.Value) (reflect.Value, func() error, error) {
			rv, _, err := conv(arg)
			if err != nil {
				return reflect.Value{}, nil, err
			}
			ptr := reflect.New(elem)
			ptr.Elem().Set(rv)
			finish := func() error {
				return arg.Set(runtime.From(ptr.Elem().Interface()))
			}
			return ptr, finish, nil
		}, true, nil
	case reflect.Interface:
		return runtime.TypeDynamic, func(arg *runtime.Value) (reflect.Value, func() error, error) {
			raw := arg.Flatten().Raw()
			if raw == nil {
				return reflect.Zero(pt), nil, nil
			}
			rv := reflect.ValueOf(raw)
			if !rv.Type().Implements(pt) {
				return reflect.Value{}, nil, runtime.NewMismatchDataType(pt.String(), arg.TypeName(), ast.NoPosition)
			}
			return rv, nil, nil
		}, false, nil
	}

	if id, ok := scalarToken(pt); ok {
		return id, scalarConverter(pt, id), false, nil
	}
	return runtime.TypeIDOf(pt), directConverter(pt), false, nil
}

// scalarToken maps Go types with a dedicated value variant to their token.
func scalarToken(pt reflect.Type) (runtime.TypeID, bool) {
	switch pt {
	case reflect.TypeOf(runtime.Array(nil)), reflect.TypeOf([]runtime.Value(nil)):
		return runtime.TypeArray, true
	case reflect.TypeOf([]byte(nil)), reflect.TypeOf(runtime.Blob(nil)):
		return runtime.TypeBlob, true
	}
	switch pt.Kind() {
	case reflect.Bool:
		if pt == runtime.TypeBool.Reflect() {
			return runtime.TypeBool, true
		}
	case reflect.Int, reflect.Int64:
		if pt.PkgPath() == "" {
			return runtime.TypeInt, true
		}
	case reflect.Int32:
		if pt.PkgPath() == "" {
			return runtime.TypeChar, true
		}
	case reflect.Float32, reflect.Float64:
		if pt.PkgPath() == "" {
			return runtime.TypeFloat, true
		}
	case reflect.String:
		if pt.PkgPath() == "" {
			return runtime.TypeString, true
		}
	}
	switch runtime.TypeIDOf(pt) {
	case runtime.TypeDecimal, runtime.TypeRange, runtime.TypeInclusiveRange, runtime.TypeTimestamp, runtime.TypeUnit:
		return runtime.TypeIDOf(pt), true
	}
	if pt == reflect.TypeOf(runtime.FnPtr{}) {
		return runtime.TypeFnPtr, true
	}
	return runtime.TypeID{}, false
}

func scalarConverter(pt reflect.Type, id runtime.TypeID) argConverter {
	return func(arg *runtime.Value) (reflect.Value, func() error, error) {
		v := arg.Flatten()
		switch id {
		case runtime.TypeInt:
			n, ok := v.AsInt()
			if !ok {
				return reflect.Value{}, nil, mismatch(id, v)
			}
			return reflect.ValueOf(n).Convert(pt), nil, nil
		case runtime.TypeFloat:
			f, ok := v.AsFloat()
			if !ok {
				return reflect.Value{}, nil, mismatch(id, v)
			}
			return reflect.ValueOf(f).Convert(pt), nil, nil
		case runtime.TypeArray:
			a, ok := v.ArrayRef()
			if !ok {
				return reflect.Value{}, nil, mismatch(id, v)
			}
			return reflect.ValueOf([]runtime.Value(*a)).Convert(pt), nil, nil
		case runtime.TypeBlob:
			b, ok := v.BlobRef()
			if !ok {
				return reflect.Value{}, nil, mismatch(id, v)
			}
			return reflect.ValueOf([]byte(*b)).Convert(pt), nil, nil
		case runtime.TypeFnPtr:
			fp, ok := v.AsFnPtr()
			if !ok {
				return reflect.Value{}, nil, mismatch(id, v)
			}
			return reflect.ValueOf(*fp), nil, nil
		case runtime.TypeUnit:
			return reflect.Zero(pt), nil, nil
		}
		raw := v.Raw()
		if raw == nil || reflect.TypeOf(raw) != pt {
			return reflect.Value{}, nil, mismatch(id, v)
		}
		return reflect.ValueOf(raw), nil, nil
	}
}

func directConverter(pt reflect.Type) argConverter {
	return func(arg *runtime.Value) (reflect.Value, func() error, error) {
		raw := arg.Flatten().Raw()
		if raw == nil || reflect.TypeOf(raw) != pt {
			return reflect.Value{}, nil, runtime.NewMismatchDataType(pt.String(), arg.TypeName(), ast.NoPosition)
		}
		return reflect.ValueOf(raw), nil, nil
	}
}

func mismatch(want runtime.TypeID, got runtime.Value) error {
	return runtime.NewMismatchDataType(want.String(), got.TypeName(), ast.NoPosition)
}

// SetFn registers a Go function through Reflect. Functions whose first
// parameter is a mutable pointer are not pure unless Pure is given.
func (m *Module) SetFn(name string, fn any, opts ...FnOption) (*FuncInfo, error) {
	t, err := Reflect(fn)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", name, err)
	}
	o := fnOptions{pure: !t.Mutable}
	for _, opt := range opts {
		opt(&o)
	}
	if o.forcePure {
		o.pure = true
	}
	info, err := m.SetNativeFn(name, o.namespace, o.access, t.Params, o.pure, t.Native)
	if err != nil {
		return nil, err
	}
	info.ParamNames = o.paramNames
	info.Comments = o.comments
	info.Volatile = o.volatile
	return info, nil
}

// SetGetterFn registers `get$prop` for a host type. Property accessors are
// always global.
func (m *Module) SetGetterFn(prop string, fn any) (*FuncInfo, error) {
	return m.SetFn(ast.GetterPrefix+prop, fn, InGlobalNamespace(), Pure())
}

// SetSetterFn registers `set$prop` for a host type.
func (m *Module) SetSetterFn(prop string, fn any) (*FuncInfo, error) {
	return m.SetFn(ast.SetterPrefix+prop, fn, InGlobalNamespace())
}

// SetIndexerGet registers a Go indexer getter, rejecting built-in targets.
func (m *Module) SetIndexerGet(fn any) (*FuncInfo, error) {
	t, err := Reflect(fn)
	if err != nil {
		return nil, fmt.Errorf("register indexer: %w", err)
	}
	return m.SetIndexerGetFn(t.Params, true, t.Native)
}

// SetIndexerSet registers a Go indexer setter, rejecting built-in targets.
func (m *Module) SetIndexerSet(fn any) (*FuncInfo, error) {
	t, err := Reflect(fn)
	if err != nil {
		return nil, fmt.Errorf("register indexer: %w", err)
	}
	return m.SetIndexerSetFn(t.Params, t.Native)
}
