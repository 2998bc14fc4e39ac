package driver

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

// DefaultExtension is appended to import paths that carry no extension.
const DefaultExtension = "quill"

// FileModuleResolver loads `import "path"` from script files. Paths are
// taken relative to the base path, or to the importing script's directory
// when no base path is set. Compiled modules are cached by absolute path.
type FileModuleResolver struct {
	base      string
	extension string
	caching   bool

	mu      sync.Mutex
	cache   map[string]*module.Module
	loading map[string]string // path being loaded -> importing script
}

// NewFileModuleResolver creates a resolver rooted at base. An empty base
// resolves relative to the importing script, then the working directory.
func NewFileModuleResolver(base string) *FileModuleResolver {
	return &FileModuleResolver{
		base:      base,
		extension: DefaultExtension,
		caching:   true,
		cache:     make(map[string]*module.Module),
		loading:   make(map[string]string),
	}
}

// BasePath returns the directory imports are resolved against.
func (r *FileModuleResolver) BasePath() string { return r.base }

// Extension returns the script extension, without the leading dot.
func (r *FileModuleResolver) Extension() string { return r.extension }

// SetExtension changes the script extension.
func (r *FileModuleResolver) SetExtension(ext string) {
	r.extension = strings.TrimPrefix(ext, ".")
}

// EnableCache turns module caching on or off. Turning it off drops every
// cached module.
func (r *FileModuleResolver) EnableCache(enable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caching = enable
	if !enable {
		clear(r.cache)
	}
}

// IsCached reports whether the module at the given import path is cached.
func (r *FileModuleResolver) IsCached(path, source string) bool {
	file, err := r.FilePath(path, source)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cache[file]
	return ok
}

// ClearCache drops every cached module.
func (r *FileModuleResolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.cache)
}

// ClearCacheFor drops the cached module for an import path and returns it.
func (r *FileModuleResolver) ClearCacheFor(path, source string) (*module.Module, bool) {
	file, err := r.FilePath(path, source)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.cache[file]
	delete(r.cache, file)
	return m, ok
}

// FilePath maps an import path, as seen from the script named source, to
// an absolute file path.
func (r *FileModuleResolver) FilePath(path, source string) (string, error) {
	file := filepath.FromSlash(path)
	if r.extension != "" && filepath.Ext(file) == "" {
		file += "." + r.extension
	}
	if !filepath.IsAbs(file) {
		switch {
		case r.base != "":
			file = filepath.Join(r.base, file)
		case source != "":
			file = filepath.Join(filepath.Dir(source), file)
		}
	}
	return filepath.Abs(file)
}

func (r *FileModuleResolver) Resolve(engine *interpreter.Engine, source, path string, pos ast.Position) (*module.Module, error) {
	if source != "" {
		if abs, err := filepath.Abs(source); err == nil {
			source = abs
		}
	}
	file, err := r.FilePath(path, source)
	if err != nil {
		return nil, runtime.NewSystemError("resolve module path "+path, err).At(pos)
	}

	r.mu.Lock()
	if m, ok := r.cache[file]; ok && r.caching {
		r.mu.Unlock()
		return m, nil
	}
	if r.importCycle(file, source) {
		r.mu.Unlock()
		return nil, runtime.NewSystemError(fmt.Sprintf("import cycle through %s", file), nil).At(pos)
	}
	_, busy := r.loading[file]
	if !busy {
		r.loading[file] = source
	}
	r.mu.Unlock()
	if !busy {
		defer func() {
			r.mu.Lock()
			delete(r.loading, file)
			r.mu.Unlock()
		}()
	}

	m, err := r.load(engine, file, path, pos)
	if err != nil {
		return nil, err
	}
	if r.caching {
		r.mu.Lock()
		r.cache[file] = m
		r.mu.Unlock()
	}
	return m, nil
}

// importCycle walks the chain of scripts currently being loaded, starting
// at the importer. Callers hold r.mu.
func (r *FileModuleResolver) importCycle(file, source string) bool {
	seen := make(map[string]struct{})
	for cur := source; cur != ""; {
		if cur == file {
			return true
		}
		if _, ok := seen[cur]; ok {
			return false
		}
		seen[cur] = struct{}{}
		next, ok := r.loading[cur]
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

func (r *FileModuleResolver) load(engine *interpreter.Engine, file, path string, pos ast.Position) (*module.Module, error) {
	a, err := engine.CompileFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, runtime.NewModuleNotFound(path, pos)
		}
		var parseErr *parser.ParseError
		if errors.As(err, &parseErr) {
			return nil, &runtime.EvalError{Kind: runtime.ErrParsing, Source: file, Inner: err, Pos: pos}
		}
		return nil, err
	}
	m, err := engine.ModuleFromAST(nil, a)
	if err != nil {
		return nil, err
	}
	engine.Logger().Debug("module loaded from file", "path", path, "file", file, "functions", m.NumFunctions())
	return m, nil
}
