package interpreter

import (
	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// importedModule is a module brought into scope by `import`.
type importedModule struct {
	name   string
	module *module.Module
}

// fnCache memoizes native function resolution by full call hash. A nil
// entry records a miss.
type fnCache map[uint64]*resolvedFn

// evalState is the mutable state of one evaluation.
type evalState struct {
	engine   *Engine
	source   string
	resolver ModuleResolver

	imports []importedModule
	caches  []fnCache
	// blockCaches is len(caches) when the running block started; a longer
	// stack means the block already pushed its own layer.
	blockCaches int
	callLevel  int
	operations uint64
	numModules int

	tag      runtime.Value
	debugger *Debugger
}

// frame is the environment of the running function body: its scope, its
// `this` binding and the script libraries its calls resolve against.
type frame struct {
	scope *runtime.Scope
	this  *runtime.Value
	libs  []*module.Module
}

func (e *Engine) newState(a *AST) *evalState {
	st := &evalState{
		engine: e,
		caches:      []fnCache{make(fnCache)},
		blockCaches: 1,
		tag:         runtime.UnitValue,
	}
	if a != nil {
		st.source = a.source
		st.resolver = a.resolver
	}
	if e.debuggerCallback != nil {
		st.debugger = newDebugger()
		if e.debuggerInit != nil {
			e.debuggerInit(st.debugger)
		}
	}
	return st
}

// track counts one operation against the limit and runs the progress hook.
func (st *evalState) track(pos ast.Position) error {
	st.operations++
	limit := st.engine.limits.MaxOperations
	if limit > 0 && st.operations > limit {
		return runtime.NewEvalError(runtime.ErrTooManyOperations).At(pos)
	}
	if hook := st.engine.progressHook; hook != nil {
		if token, stop := hook(st.operations); stop {
			err := runtime.NewEvalError(runtime.ErrTerminated).At(pos)
			err.Value = token
			return err
		}
	}
	return nil
}

func (st *evalState) checkSize(v runtime.Value, pos ast.Position) error {
	return st.engine.checkSize(v, pos)
}

// freshCacheLayer gives the running block an empty resolution cache once an
// import adds functions to the global namespace. The first such import in
// a block pushes a layer; later ones clear it.
func (st *evalState) freshCacheLayer() {
	if len(st.caches) > st.blockCaches {
		clear(st.caches[len(st.caches)-1])
		return
	}
	st.caches = append(st.caches, make(fnCache))
}

// enterBlock marks the start of a block for freshCacheLayer and returns
// the previous mark for leaveBlock.
func (st *evalState) enterBlock() int {
	saved := st.blockCaches
	st.blockCaches = len(st.caches)
	return saved
}

func (st *evalState) leaveBlock(saved int) {
	st.blockCaches = saved
}

// rewind drops imports and cache layers added since the given marks.
func (st *evalState) rewind(imports, caches int) {
	clear(st.imports[imports:])
	st.imports = st.imports[:imports]
	st.caches = st.caches[:caches]
}

// findModule returns the module named root. Inside a function loaded from
// a script module, that module's own imports come first. Newer imports
// shadow older ones and static modules.
func (st *evalState) findModule(fr *frame, root string) (*module.Module, bool) {
	for _, lib := range fr.libs {
		if m, ok := lib.SubModule(root); ok {
			return m, true
		}
	}
	for i := len(st.imports) - 1; i >= 0; i-- {
		if st.imports[i].name == root {
			return st.imports[i].module, true
		}
	}
	m, ok := st.engine.staticModules[root]
	return m, ok
}

// callContext implements runtime.NativeCallContext for host functions.
type callContext struct {
	st   *evalState
	fr   *frame
	name string
	pos  ast.Position
}

func (c *callContext) FnName() string         { return c.name }
func (c *callContext) Source() string         { return c.st.source }
func (c *callContext) Position() ast.Position { return c.pos }
func (c *callContext) Engine() any            { return c.st.engine }

func (c *callContext) CallFn(name string, args ...runtime.Value) (runtime.Value, error) {
	return c.st.callFnByName(c.fr, name, args, c.pos)
}

func (c *callContext) CallFnPtr(fn *runtime.FnPtr, args ...runtime.Value) (runtime.Value, error) {
	return c.st.callFnPtr(c.fr, fn, nil, args, c.pos)
}

func (c *callContext) CheckSize(v runtime.Value) error {
	return c.st.checkSize(v, c.pos)
}

// engineOf recovers the engine from a native call context.
func engineOf(ctx runtime.NativeCallContext) (*Engine, bool) {
	if ctx == nil {
		return nil, false
	}
	e, ok := ctx.Engine().(*Engine)
	return e, ok
}
