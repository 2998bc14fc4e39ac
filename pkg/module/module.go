// Package module implements named collections of functions, constants,
// sub-modules and iterator factories.
package module

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/runtime"
)

// IteratorFactory turns a value into the sequence a `for` loop walks.
type IteratorFactory func(v runtime.Value) (iter.Seq[runtime.Value], error)

// ErrDuplicateFunction reports a second registration of the same signature
// in one module.
var ErrDuplicateFunction = errors.New("function already registered")

// ErrBuiltinIndexer reports an indexer registered for a type whose indexing
// is built in.
var ErrBuiltinIndexer = errors.New("indexers cannot be registered for built-in types")

// Module is a named collection of functions, constants, sub-modules and
// iterator factories. Mutations invalidate the index built by BuildIndex.
type Module struct {
	ID string
	// Doc is the module documentation (`//!` comments for script modules).
	Doc string
	// Standard marks packaged library modules.
	Standard bool
	// Internal marks modules created by the engine for its own use.
	Internal bool

	functions map[uint64]*FuncInfo
	byName    map[uint64][]*FuncInfo
	fnOrder   []*FuncInfo

	variables map[string]runtime.Value
	varOrder  []string

	modules  map[string]*Module
	modOrder []string

	iterators   map[runtime.TypeID]IteratorFactory
	customTypes map[runtime.TypeID]string

	// parents are the modules m was attached to; their indexes include m.
	parents []*Module

	mu      sync.Mutex
	indexed bool
	// Flattened views built by BuildIndex.
	allFunctions    map[uint64]*FuncInfo
	allByName       map[uint64][]*FuncInfo
	allVariables    map[uint64]runtime.Value
	allIterators    map[runtime.TypeID]IteratorFactory
	globalFunctions map[uint64]*FuncInfo
	globalByName    map[uint64][]*FuncInfo
}

// New creates an empty module.
func New() *Module {
	return &Module{
		functions:   make(map[uint64]*FuncInfo),
		byName:      make(map[uint64][]*FuncInfo),
		variables:   make(map[string]runtime.Value),
		modules:     make(map[string]*Module),
		iterators:   make(map[runtime.TypeID]IteratorFactory),
		customTypes: make(map[runtime.TypeID]string),
	}
}

// NewWithID creates an empty module with an identifier.
func NewWithID(id string) *Module {
	m := New()
	m.ID = id
	return m
}

// invalidate drops the index of m and of every module whose index
// flattens m.
func (m *Module) invalidate() {
	m.invalidateFrom(make(map[*Module]bool))
}

func (m *Module) invalidateFrom(seen map[*Module]bool) {
	if seen[m] {
		return
	}
	seen[m] = true
	m.mu.Lock()
	m.indexed = false
	parents := m.parents
	m.mu.Unlock()
	for _, p := range parents {
		p.invalidateFrom(seen)
	}
}

// IsEmpty reports whether the module holds nothing.
func (m *Module) IsEmpty() bool {
	return len(m.functions) == 0 && len(m.variables) == 0 && len(m.modules) == 0 && len(m.iterators) == 0
}

// NumFunctions returns the number of functions defined directly in m.
func (m *Module) NumFunctions() int {
	return len(m.fnOrder)
}

//-----------------------------------------------------------------------------
// Functions
//-----------------------------------------------------------------------------

// SetNativeFn registers a host function under explicit parameter types.
func (m *Module) SetNativeFn(name string, namespace FnNamespace, access FnAccess, params []runtime.TypeID, pure bool, fn NativeFunc) (*FuncInfo, error) {
	if fn == nil {
		return nil, fmt.Errorf("native function %s is nil", name)
	}
	info := &FuncInfo{
		Name:      name,
		Namespace: namespace,
		Access:    access,
		Params:    append([]runtime.TypeID(nil), params...),
		Native:    fn,
		Pure:      pure,
	}
	return info, m.insert(info)
}

// SetScriptFn registers a script-defined function. Script functions take
// dynamic parameters.
func (m *Module) SetScriptFn(def *ast.ScriptFnDef) (*FuncInfo, error) {
	params := make([]runtime.TypeID, len(def.Params))
	for i := range params {
		params[i] = runtime.TypeDynamic
	}
	access := Public
	if def.IsPrivate() {
		access = Private
	}
	info := &FuncInfo{
		Name:       def.Name,
		Namespace:  Internal,
		Access:     access,
		Params:     params,
		ParamNames: def.Params,
		Script:     def,
		Comments:   def.Comments,
	}
	return info, m.insert(info)
}

func (m *Module) insert(info *FuncInfo) error {
	info.NameHash = runtime.CalcFnHash(nil, info.Name, len(info.Params))
	info.Hash = runtime.CalcFullHash(nil, info.Name, info.Params)
	if _, exists := m.functions[info.Hash]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFunction, info.Signature())
	}
	m.functions[info.Hash] = info
	m.byName[info.NameHash] = append(m.byName[info.NameHash], info)
	m.fnOrder = append(m.fnOrder, info)
	m.invalidate()
	return nil
}

// ReplaceFn registers info, replacing an existing function with the same
// signature.
func (m *Module) ReplaceFn(info *FuncInfo) {
	info.NameHash = runtime.CalcFnHash(nil, info.Name, len(info.Params))
	info.Hash = runtime.CalcFullHash(nil, info.Name, info.Params)
	if old, exists := m.functions[info.Hash]; exists {
		m.removeFromLists(old)
	}
	m.functions[info.Hash] = info
	m.byName[info.NameHash] = append(m.byName[info.NameHash], info)
	m.fnOrder = append(m.fnOrder, info)
	m.invalidate()
}

func (m *Module) removeFromLists(old *FuncInfo) {
	candidates := m.byName[old.NameHash]
	for i, c := range candidates {
		if c == old {
			m.byName[old.NameHash] = append(candidates[:i:i], candidates[i+1:]...)
			break
		}
	}
	for i, f := range m.fnOrder {
		if f == old {
			m.fnOrder = append(m.fnOrder[:i:i], m.fnOrder[i+1:]...)
			break
		}
	}
}

// SetIndexerGetFn registers `index$get$` for a custom type.
func (m *Module) SetIndexerGetFn(params []runtime.TypeID, pure bool, fn NativeFunc) (*FuncInfo, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("indexer getter takes 2 parameters, got %d", len(params))
	}
	if err := checkIndexerTarget(params[0]); err != nil {
		return nil, err
	}
	return m.SetNativeFn(ast.IndexerGetFnName, Global, Public, params, pure, fn)
}

// SetIndexerSetFn registers `index$set$` for a custom type.
func (m *Module) SetIndexerSetFn(params []runtime.TypeID, fn NativeFunc) (*FuncInfo, error) {
	if len(params) != 3 {
		return nil, fmt.Errorf("indexer setter takes 3 parameters, got %d", len(params))
	}
	if err := checkIndexerTarget(params[0]); err != nil {
		return nil, err
	}
	return m.SetNativeFn(ast.IndexerSetFnName, Global, Public, params, false, fn)
}

func checkIndexerTarget(t runtime.TypeID) error {
	switch t {
	case runtime.TypeArray, runtime.TypeMap, runtime.TypeString, runtime.TypeInt:
		return fmt.Errorf("%w: %s", ErrBuiltinIndexer, t)
	}
	return nil
}

// GetFn returns the function with the given full hash.
func (m *Module) GetFn(hash uint64) (*FuncInfo, bool) {
	f, ok := m.functions[hash]
	return f, ok
}

// FnsByName returns the functions with the given name-and-arity hash.
func (m *Module) FnsByName(nameHash uint64) []*FuncInfo {
	return m.byName[nameHash]
}

// ContainsFn reports whether a function with the full hash exists.
func (m *Module) ContainsFn(hash uint64) bool {
	_, ok := m.functions[hash]
	return ok
}

// Functions returns the functions defined directly in m, in registration
// order.
func (m *Module) Functions() []*FuncInfo {
	return m.fnOrder
}

// ResolveFn finds a function by exact argument types, falling back to a
// candidate with dynamic parameters.
func (m *Module) ResolveFn(nameHash, fullHash uint64, types []runtime.TypeID) (*FuncInfo, bool) {
	if f, ok := m.ExactFn(fullHash); ok {
		return f, true
	}
	return m.MatchFn(nameHash, types)
}

// ExactFn returns the function defined directly in m whose full hash
// (name and parameter types) is fullHash.
func (m *Module) ExactFn(fullHash uint64) (*FuncInfo, bool) {
	f, ok := m.functions[fullHash]
	return f, ok
}

// MatchFn returns the newest function defined directly in m whose
// parameters accept types, dynamic parameters included.
func (m *Module) MatchFn(nameHash uint64, types []runtime.TypeID) (*FuncInfo, bool) {
	return matchCandidates(m.byName[nameHash], types)
}

func matchCandidates(candidates []*FuncInfo, types []runtime.TypeID) (*FuncInfo, bool) {
	for i := len(candidates) - 1; i >= 0; i-- {
		if candidates[i].Matches(types) {
			return candidates[i], true
		}
	}
	return nil, false
}

//-----------------------------------------------------------------------------
// Variables, sub-modules, iterators, types
//-----------------------------------------------------------------------------

// SetVar defines a module constant.
func (m *Module) SetVar(name string, v runtime.Value) {
	if _, exists := m.variables[name]; !exists {
		m.varOrder = append(m.varOrder, name)
	}
	m.variables[name] = v.WithAccess(runtime.ReadOnly)
	m.invalidate()
}

// GetVar returns a module constant.
func (m *Module) GetVar(name string) (runtime.Value, bool) {
	v, ok := m.variables[name]
	return v, ok
}

// Vars returns the constant names in definition order.
func (m *Module) Vars() []string {
	return m.varOrder
}

// SetSubModule attaches a sub-module.
func (m *Module) SetSubModule(name string, sub *Module) {
	if _, exists := m.modules[name]; !exists {
		m.modOrder = append(m.modOrder, name)
	}
	m.modules[name] = sub
	if !slices.Contains(sub.parents, m) {
		sub.parents = append(sub.parents, m)
	}
	m.invalidate()
}

// SubModule returns the named sub-module.
func (m *Module) SubModule(name string) (*Module, bool) {
	sub, ok := m.modules[name]
	return sub, ok
}

// SubModules returns sub-module names in definition order.
func (m *Module) SubModules() []string {
	return m.modOrder
}

// Walk follows a path of sub-module names.
func (m *Module) Walk(path []string) (*Module, bool) {
	current := m
	for _, seg := range path {
		next, ok := current.modules[seg]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// SetIterator registers the iterator factory for a type.
func (m *Module) SetIterator(t runtime.TypeID, factory IteratorFactory) {
	m.iterators[t] = factory
	m.invalidate()
}

// Iterator returns the factory registered directly in m for t.
func (m *Module) Iterator(t runtime.TypeID) (IteratorFactory, bool) {
	f, ok := m.iterators[t]
	return f, ok
}

// SetCustomType records the display name of a host type.
func (m *Module) SetCustomType(t runtime.TypeID, name string) {
	m.customTypes[t] = name
}

// CustomTypeName returns the display name of a host type.
func (m *Module) CustomTypeName(t runtime.TypeID) (string, bool) {
	name, ok := m.customTypes[t]
	return name, ok
}

//-----------------------------------------------------------------------------
// Index
//-----------------------------------------------------------------------------

// BuildIndex flattens the module tree: every public function keyed by its
// qualified hash (sub-module path relative to m), every global-namespace
// function keyed by its unqualified hash, every constant and every iterator.
func (m *Module) BuildIndex() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexed {
		return
	}
	m.allFunctions = make(map[uint64]*FuncInfo)
	m.allByName = make(map[uint64][]*FuncInfo)
	m.allVariables = make(map[uint64]runtime.Value)
	m.allIterators = make(map[runtime.TypeID]IteratorFactory)
	m.globalFunctions = make(map[uint64]*FuncInfo)
	m.globalByName = make(map[uint64][]*FuncInfo)
	m.indexInto(m, nil)
	m.indexed = true
}

func (m *Module) indexInto(root *Module, path []string) {
	for _, name := range m.modOrder {
		sub := m.modules[name]
		subPath := append(append([]string(nil), path...), name)
		sub.indexInto(root, subPath)
	}
	for _, name := range m.varOrder {
		root.allVariables[runtime.CalcVarHash(path, name)] = m.variables[name]
	}
	for t, f := range m.iterators {
		root.allIterators[t] = f
	}
	for _, f := range m.fnOrder {
		if f.Access == Private {
			continue
		}
		if f.Namespace == Global {
			root.globalFunctions[f.Hash] = f
			root.globalByName[f.NameHash] = append(root.globalByName[f.NameHash], f)
		}
		nameHash := runtime.CalcFnHash(path, f.Name, len(f.Params))
		full := runtime.CombineHashes(nameHash, runtime.CalcParamsHash(f.Params))
		root.allFunctions[full] = f
		root.allByName[nameHash] = append(root.allByName[nameHash], f)
	}
}

// IsIndexed reports whether the index is current.
func (m *Module) IsIndexed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexed
}

// ResolveQualifiedFn looks up a function by path (relative to m), name and
// argument types.
func (m *Module) ResolveQualifiedFn(path []string, name string, types []runtime.TypeID) (*FuncInfo, bool) {
	m.BuildIndex()
	nameHash := runtime.CalcFnHash(path, name, len(types))
	full := runtime.CombineHashes(nameHash, runtime.CalcParamsHash(types))
	if f, ok := m.allFunctions[full]; ok {
		return f, true
	}
	return matchCandidates(m.allByName[nameHash], types)
}

// ResolveQualifiedVar looks up a constant by path relative to m.
func (m *Module) ResolveQualifiedVar(path []string, name string) (runtime.Value, bool) {
	m.BuildIndex()
	v, ok := m.allVariables[runtime.CalcVarHash(path, name)]
	return v, ok
}

// ResolveGlobalFn looks up a global-namespace function anywhere in the tree.
func (m *Module) ResolveGlobalFn(nameHash, fullHash uint64, types []runtime.TypeID) (*FuncInfo, bool) {
	if f, ok := m.ExactGlobalFn(fullHash); ok {
		return f, true
	}
	return m.MatchGlobalFn(nameHash, types)
}

// ExactGlobalFn is ExactFn over the global-namespace functions of the tree.
func (m *Module) ExactGlobalFn(fullHash uint64) (*FuncInfo, bool) {
	m.BuildIndex()
	f, ok := m.globalFunctions[fullHash]
	return f, ok
}

// MatchGlobalFn is MatchFn over the global-namespace functions of the tree.
func (m *Module) MatchGlobalFn(nameHash uint64, types []runtime.TypeID) (*FuncInfo, bool) {
	m.BuildIndex()
	return matchCandidates(m.globalByName[nameHash], types)
}

// HasGlobalFunctions reports whether the tree exposes any function to the
// global namespace.
func (m *Module) HasGlobalFunctions() bool {
	m.BuildIndex()
	return len(m.globalFunctions) > 0
}

// ResolveIterator looks up an iterator factory anywhere in the tree.
func (m *Module) ResolveIterator(t runtime.TypeID) (IteratorFactory, bool) {
	m.BuildIndex()
	f, ok := m.allIterators[t]
	return f, ok
}
