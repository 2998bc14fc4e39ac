package interpreter

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// ModuleResolver loads the module named by an `import` path. source is the
// name of the importing script, empty for the main script.
type ModuleResolver interface {
	Resolve(engine *Engine, source, path string, pos ast.Position) (*module.Module, error)
}

// ModuleResolverFunc adapts a function to ModuleResolver.
type ModuleResolverFunc func(engine *Engine, source, path string, pos ast.Position) (*module.Module, error)

func (f ModuleResolverFunc) Resolve(engine *Engine, source, path string, pos ast.Position) (*module.Module, error) {
	return f(engine, source, path, pos)
}

// StaticModuleResolver serves modules registered ahead of time by path.
type StaticModuleResolver struct {
	mu      sync.RWMutex
	modules map[string]*module.Module
}

// NewStaticModuleResolver creates an empty resolver.
func NewStaticModuleResolver() *StaticModuleResolver {
	return &StaticModuleResolver{modules: make(map[string]*module.Module)}
}

// Insert registers m under path, replacing any previous module.
func (r *StaticModuleResolver) Insert(path string, m *module.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.BuildIndex()
	r.modules[path] = m
}

// Remove unregisters path and returns the module it held.
func (r *StaticModuleResolver) Remove(path string) (*module.Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[path]
	delete(r.modules, path)
	return m, ok
}

// Contains reports whether path is registered.
func (r *StaticModuleResolver) Contains(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.modules[path]
	return ok
}

// Paths returns the registered paths in sorted order.
func (r *StaticModuleResolver) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modules))
	for path := range r.modules {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

func (r *StaticModuleResolver) Resolve(_ *Engine, _ string, path string, pos ast.Position) (*module.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.modules[path]; ok {
		return m, nil
	}
	return nil, runtime.NewModuleNotFound(path, pos)
}

// ModuleResolversCollection tries its resolvers in order. It moves on only
// when a resolver reports the module as missing; any other failure stops
// the search.
type ModuleResolversCollection struct {
	resolvers []ModuleResolver
}

// NewModuleResolversCollection creates a collection from resolvers.
func NewModuleResolversCollection(resolvers ...ModuleResolver) *ModuleResolversCollection {
	return &ModuleResolversCollection{resolvers: resolvers}
}

// Push appends a resolver.
func (c *ModuleResolversCollection) Push(r ModuleResolver) {
	c.resolvers = append(c.resolvers, r)
}

// Len returns the number of resolvers.
func (c *ModuleResolversCollection) Len() int {
	return len(c.resolvers)
}

func (c *ModuleResolversCollection) Resolve(engine *Engine, source, path string, pos ast.Position) (*module.Module, error) {
	for _, r := range c.resolvers {
		m, err := r.Resolve(engine, source, path, pos)
		if err == nil {
			return m, nil
		}
		if !isModuleNotFound(err) {
			return nil, err
		}
	}
	return nil, runtime.NewModuleNotFound(path, pos)
}

// DummyModuleResolver fails every import.
type DummyModuleResolver struct{}

func (DummyModuleResolver) Resolve(_ *Engine, _ string, path string, pos ast.Position) (*module.Module, error) {
	return nil, runtime.NewModuleNotFound(path, pos)
}

// isModuleNotFound looks at the error itself only, so a module that failed
// to load one of its own imports is not mistaken for a missing one.
func isModuleNotFound(err error) bool {
	var evalErr *runtime.EvalError
	if !errors.As(err, &evalErr) {
		return false
	}
	return evalErr.Kind == runtime.ErrModuleNotFound
}

// splitModulePath splits `a::b::c` into its segments.
func splitModulePath(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "::") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
