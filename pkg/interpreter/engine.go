// Package interpreter compiles and evaluates Quill scripts.
package interpreter

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

// OptimizationLevel selects how much rewriting Compile applies.
type OptimizationLevel int

const (
	// OptimizeNone leaves the tree as parsed.
	OptimizeNone OptimizationLevel = iota
	// OptimizeSimple folds constants and removes dead code without calling
	// host functions.
	OptimizeSimple
	// OptimizeFull additionally evaluates pure host functions whose
	// arguments are all constant.
	OptimizeFull
)

func (l OptimizationLevel) String() string {
	switch l {
	case OptimizeNone:
		return "none"
	case OptimizeSimple:
		return "simple"
	case OptimizeFull:
		return "full"
	default:
		return fmt.Sprintf("OptimizationLevel(%d)", int(l))
	}
}

// ParseOptimizationLevel accepts "none", "simple" and "full".
func ParseOptimizationLevel(s string) (OptimizationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return OptimizeNone, nil
	case "", "simple":
		return OptimizeSimple, nil
	case "full":
		return OptimizeFull, nil
	}
	return OptimizeNone, fmt.Errorf("unknown optimization level %q", s)
}

// Limits bounds the resources one evaluation may use. A zero field
// disables that limit.
type Limits struct {
	MaxCallLevels int
	MaxOperations uint64
	MaxModules    int
	MaxStringSize int
	MaxArraySize  int
	MaxMapSize    int
	MaxExprDepth  int
}

// Default limits applied by New and NewRaw.
const (
	DefaultMaxCallLevels = 64
	DefaultMaxExprDepth  = 64
)

// VarCallback resolves a variable before the scope is searched. It returns
// ok=false to fall through to the normal lookup. A shared value is used as
// a writable binding; any other value is read-only.
type VarCallback func(name string, ctx *EvalContext) (value runtime.Value, ok bool, err error)

// DefVarCallback vets a variable definition. Returning false rejects it with
// a forbidden-variable error.
type DefVarCallback func(name string, isConst bool, ctx *EvalContext) (bool, error)

// DebugHook receives the text of `debug` calls.
type DebugHook func(text, source string, pos ast.Position)

// ProgressCallback is called after every counted operation. Returning
// terminate=true aborts the evaluation; token becomes the error's value.
type ProgressCallback func(operations uint64) (token runtime.Value, terminate bool)

// Engine holds the configuration, registered functions and hooks shared by
// every evaluation. An Engine must not be reconfigured while scripts run.
type Engine struct {
	// globalModules[0] receives the engine's own registrations; modules
	// added by RegisterGlobalModule are inserted at index 1 so newer ones
	// are searched first.
	globalModules []*module.Module
	staticModules map[string]*module.Module
	staticOrder   []string
	resolver      ModuleResolver

	customOperators map[string]int
	customSyntax    map[string]*customSyntaxDef
	customKeywords  map[string]struct{}
	disabledSymbols map[string]struct{}

	varResolver      VarCallback
	parseVarResolver parser.VarResolver
	defVarFilter     DefVarCallback
	printHook        func(string)
	debugHook        DebugHook
	progressHook     ProgressCallback
	debuggerInit     func(*Debugger)
	debuggerCallback DebuggerCallback

	limits                   Limits
	optimization             OptimizationLevel
	fastOperators            bool
	failOnInvalidMapProperty bool
	allowShadowing           bool
	strictVariables          bool
	allowFunctions           bool

	logger *slog.Logger
}

// NewRaw creates an engine with no packages loaded: only the built-in
// operators are available.
func NewRaw() *Engine {
	own := module.NewWithID("global")
	own.Internal = true
	e := &Engine{
		globalModules:   []*module.Module{own},
		staticModules:   make(map[string]*module.Module),
		customOperators: make(map[string]int),
		customSyntax:    make(map[string]*customSyntaxDef),
		customKeywords:  make(map[string]struct{}),
		disabledSymbols: make(map[string]struct{}),
		limits: Limits{
			MaxCallLevels: DefaultMaxCallLevels,
			MaxExprDepth:  DefaultMaxExprDepth,
		},
		optimization:   OptimizeSimple,
		fastOperators:  true,
		allowShadowing: true,
		allowFunctions: true,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	e.printHook = func(s string) { fmt.Fprintln(os.Stdout, s) }
	e.debugHook = func(text, source string, pos ast.Position) {
		switch {
		case source != "":
			fmt.Fprintf(os.Stdout, "%s @ %s | %s\n", source, pos, text)
		case !pos.IsNone():
			fmt.Fprintf(os.Stdout, "%s | %s\n", pos, text)
		default:
			fmt.Fprintln(os.Stdout, text)
		}
	}
	return e
}

// New creates an engine with the core package registered.
func New() *Engine {
	e := NewRaw()
	e.RegisterGlobalModule(CorePackage())
	return e
}

// SetLogger installs the logger used for debug tracing. A nil logger
// discards output.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e.logger = logger
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Limits returns the configured resource limits.
func (e *Engine) Limits() Limits {
	return e.limits
}

// SetLimits replaces every resource limit at once.
func (e *Engine) SetLimits(l Limits) {
	e.limits = l
}

// SetMaxCallLevels limits the depth of nested script function calls.
func (e *Engine) SetMaxCallLevels(n int) { e.limits.MaxCallLevels = n }

// SetMaxOperations limits the number of operations per evaluation.
func (e *Engine) SetMaxOperations(n uint64) { e.limits.MaxOperations = n }

// SetMaxModules limits the number of modules one evaluation may import.
func (e *Engine) SetMaxModules(n int) { e.limits.MaxModules = n }

// SetMaxStringSize limits the length of strings in bytes.
func (e *Engine) SetMaxStringSize(n int) { e.limits.MaxStringSize = n }

// SetMaxArraySize limits the number of elements in arrays and blobs.
func (e *Engine) SetMaxArraySize(n int) { e.limits.MaxArraySize = n }

// SetMaxMapSize limits the number of entries in object maps.
func (e *Engine) SetMaxMapSize(n int) { e.limits.MaxMapSize = n }

// SetMaxExprDepth limits expression nesting at compile time.
func (e *Engine) SetMaxExprDepth(n int) { e.limits.MaxExprDepth = n }

// OptimizationLevel returns the level used by Compile.
func (e *Engine) OptimizationLevel() OptimizationLevel {
	return e.optimization
}

// SetOptimizationLevel selects the optimizer level used by Compile.
func (e *Engine) SetOptimizationLevel(level OptimizationLevel) {
	e.optimization = level
}

// SetFastOperators makes built-in operators on primitive types take
// precedence over host overloads. Enabled by default; hosts that overload
// operators on integers, floats or strings must disable it.
func (e *Engine) SetFastOperators(enable bool) {
	e.fastOperators = enable
}

// FastOperators reports whether fast operators are enabled.
func (e *Engine) FastOperators() bool {
	return e.fastOperators
}

// SetFailOnInvalidMapProperty makes reading a missing map property an
// error instead of unit.
func (e *Engine) SetFailOnInvalidMapProperty(enable bool) {
	e.failOnInvalidMapProperty = enable
}

// SetAllowShadowing controls whether `let` may redeclare a visible name.
func (e *Engine) SetAllowShadowing(enable bool) {
	e.allowShadowing = enable
}

// SetStrictVariables makes references to undeclared variables a compile
// error.
func (e *Engine) SetStrictVariables(enable bool) {
	e.strictVariables = enable
}

// SetAllowFunctions controls whether scripts may define functions and
// closures.
func (e *Engine) SetAllowFunctions(enable bool) {
	e.allowFunctions = enable
}

// SetModuleResolver installs the resolver used by `import`.
func (e *Engine) SetModuleResolver(r ModuleResolver) {
	e.resolver = r
}

// ModuleResolver returns the installed resolver, if any.
func (e *Engine) ModuleResolver() ModuleResolver {
	return e.resolver
}

// OnVar installs a variable resolver consulted before the scope.
func (e *Engine) OnVar(fn VarCallback) {
	e.varResolver = fn
}

// OnParseVar installs a resolver that may fold free variables into
// constants while compiling.
func (e *Engine) OnParseVar(fn parser.VarResolver) {
	e.parseVarResolver = fn
}

// OnDefVar installs a filter for variable definitions.
func (e *Engine) OnDefVar(fn DefVarCallback) {
	e.defVarFilter = fn
}

// OnPrint redirects the output of `print`.
func (e *Engine) OnPrint(fn func(string)) {
	if fn == nil {
		fn = func(string) {}
	}
	e.printHook = fn
}

// OnDebug redirects the output of `debug`.
func (e *Engine) OnDebug(fn DebugHook) {
	if fn == nil {
		fn = func(string, string, ast.Position) {}
	}
	e.debugHook = fn
}

// OnProgress installs a callback run after every counted operation.
func (e *Engine) OnProgress(fn ProgressCallback) {
	e.progressHook = fn
}

// SetDebugger attaches a debugger. init prepares the per-evaluation
// Debugger (break-points, state); callback is invoked at every stop.
func (e *Engine) SetDebugger(init func(*Debugger), callback DebuggerCallback) {
	e.debuggerInit = init
	e.debuggerCallback = callback
}

// parserOptions derives the parser configuration from the engine.
func (e *Engine) parserOptions(source string, scope *runtime.Scope) parser.Options {
	opts := parser.Options{
		Source:            source,
		MaxExprDepth:      e.limits.MaxExprDepth,
		MaxStringSize:     e.limits.MaxStringSize,
		NoFunctions:       !e.allowFunctions,
		StrictVariables:   e.strictVariables,
		DisallowShadowing: !e.allowShadowing,
		OnParseVar:        e.parseVarResolver,
	}
	if len(e.customOperators) > 0 {
		opts.CustomOperators = e.customOperators
	}
	if len(e.customKeywords) > 0 {
		opts.CustomKeywords = e.customKeywords
	}
	if len(e.customSyntax) > 0 {
		opts.CustomSyntax = make(map[string]*parser.CustomSyntax, len(e.customSyntax))
		for key, def := range e.customSyntax {
			opts.CustomSyntax[key] = &parser.CustomSyntax{Parse: def.parse, ScopeMayChange: def.scopeMayChange}
		}
	}
	if len(e.disabledSymbols) > 0 {
		opts.DisabledSymbols = e.disabledSymbols
	}
	if scope != nil {
		for _, entry := range scope.Iter() {
			opts.Scope = append(opts.Scope, parser.ScopeVar{Name: entry.Name, Constant: entry.Constant})
		}
	}
	return opts
}

// typeName returns the script-visible name of v's type, preferring names
// given by RegisterType.
func (e *Engine) typeName(v runtime.Value) string {
	if v.Kind() == runtime.KindForeign {
		if name, ok := e.customTypeName(v.TypeID()); ok {
			return name
		}
	}
	return v.TypeName()
}

func (e *Engine) customTypeName(t runtime.TypeID) (string, bool) {
	for _, m := range e.globalModules {
		if name, ok := m.CustomTypeName(t); ok {
			return name, true
		}
	}
	for _, path := range e.staticOrder {
		if name, ok := e.staticModules[path].CustomTypeName(t); ok {
			return name, true
		}
	}
	return "", false
}

// checkSize enforces the string, array and map limits on v, counting
// nested containers.
func (e *Engine) checkSize(v runtime.Value, pos ast.Position) error {
	l := e.limits
	if l.MaxStringSize == 0 && l.MaxArraySize == 0 && l.MaxMapSize == 0 {
		return nil
	}
	arrays, maps, strs := dataSizes(v)
	switch {
	case l.MaxStringSize > 0 && strs > l.MaxStringSize:
		return runtime.NewDataTooLarge("Length of string", pos)
	case l.MaxArraySize > 0 && arrays > l.MaxArraySize:
		return runtime.NewDataTooLarge("Size of array/BLOB", pos)
	case l.MaxMapSize > 0 && maps > l.MaxMapSize:
		return runtime.NewDataTooLarge("Size of object map", pos)
	}
	return nil
}

// dataSizes totals the elements of nested arrays and blobs, the entries of
// nested maps and the length of the largest string.
func dataSizes(v runtime.Value) (arrays, maps, strs int) {
	switch v.Kind() {
	case runtime.KindString:
		s, _ := v.AsString()
		return 0, 0, len(s)
	case runtime.KindBlob:
		b, _ := v.BlobRef()
		return len(*b), 0, 0
	case runtime.KindArray:
		a, _ := v.ArrayRef()
		arrays = len(*a)
		for _, el := range *a {
			na, nm, ns := dataSizes(el)
			arrays += na
			maps += nm
			strs = max(strs, ns)
		}
	case runtime.KindMap:
		m, _ := v.MapRef()
		maps = m.Len()
		m.Each(func(_ string, el *runtime.Value) bool {
			na, nm, ns := dataSizes(*el)
			arrays += na
			maps += nm
			strs = max(strs, ns)
			return true
		})
	}
	return arrays, maps, strs
}
