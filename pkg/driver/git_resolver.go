package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// GitModuleResolver serves `import "name/path"` from git repositories.
// Each named source is cloned once into the cache directory, pinned to its
// revision, and its scripts are loaded by a FileModuleResolver rooted at
// the checkout.
type GitModuleResolver struct {
	cacheDir  string
	extension string

	mu        sync.Mutex
	sources   map[string]GitSource
	checkouts map[string]*FileModuleResolver
}

// NewGitModuleResolver creates a resolver that keeps checkouts under
// cacheDir.
func NewGitModuleResolver(cacheDir string) *GitModuleResolver {
	return &GitModuleResolver{
		cacheDir:  cacheDir,
		extension: DefaultExtension,
		sources:   make(map[string]GitSource),
		checkouts: make(map[string]*FileModuleResolver),
	}
}

// SetExtension changes the script extension used inside checkouts.
func (g *GitModuleResolver) SetExtension(ext string) {
	g.extension = strings.TrimPrefix(ext, ".")
}

// AddSource registers a named repository.
func (g *GitModuleResolver) AddSource(src GitSource) error {
	if src.Name == "" || strings.ContainsAny(src.Name, `/\`) {
		return fmt.Errorf("git source %q: invalid name", src.Name)
	}
	if issues := src.validate(); len(issues) > 0 {
		return fmt.Errorf("git source %q: %s", src.Name, strings.Join(issues, "; "))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sources[src.Name] = src
	delete(g.checkouts, src.Name)
	return nil
}

// Sources returns the registered source names in sorted order.
func (g *GitModuleResolver) Sources() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.sources))
	for name := range g.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *GitModuleResolver) Resolve(engine *interpreter.Engine, source, path string, pos ast.Position) (*module.Module, error) {
	name, rest, ok := strings.Cut(filepath.ToSlash(path), "/")
	if !ok || rest == "" {
		return nil, runtime.NewModuleNotFound(path, pos)
	}
	files, err := g.checkout(name)
	if err != nil {
		return nil, err
	}
	if files == nil {
		return nil, runtime.NewModuleNotFound(path, pos)
	}
	engine.Logger().Debug("module resolved from git source", "source", name, "path", rest)
	return files.Resolve(engine, source, rest, pos)
}

// Checkout makes sure the named source is checked out and returns the
// directory scripts are loaded from.
func (g *GitModuleResolver) Checkout(name string) (string, error) {
	files, err := g.checkout(name)
	if err != nil {
		return "", err
	}
	if files == nil {
		return "", fmt.Errorf("git source %q is not registered", name)
	}
	return files.BasePath(), nil
}

// checkout returns nil, nil for an unknown source.
func (g *GitModuleResolver) checkout(name string) (*FileModuleResolver, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if files, ok := g.checkouts[name]; ok {
		return files, nil
	}
	src, ok := g.sources[name]
	if !ok {
		return nil, nil
	}
	baseDir := filepath.Join(g.cacheDir, "git", sanitizePathSegment(name))
	version, _, err := ensureGitCheckout(baseDir, src)
	if err != nil {
		return nil, runtime.NewSystemError(fmt.Sprintf("git source %q", name), err)
	}
	root := filepath.Join(baseDir, sanitizePathSegment(version))
	if src.Dir != "" {
		root = filepath.Join(root, filepath.FromSlash(src.Dir))
	}
	files := NewFileModuleResolver(root)
	files.SetExtension(g.extension)
	g.checkouts[name] = files
	return files, nil
}

// ensureGitCheckout clones src into a temporary directory under baseDir,
// checks out the pinned revision and renames the clone to its version
// directory. Existing version directories are reused.
func ensureGitCheckout(baseDir string, src GitSource) (string, string, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", "", err
	}

	revision, descriptor, err := gitRevision(src)
	if err != nil {
		return "", "", err
	}

	if rev := strings.TrimSpace(src.Rev); rev != "" {
		existing := filepath.Join(baseDir, sanitizePathSegment(rev))
		if _, err := os.Stat(existing); err == nil {
			return rev, rev, nil
		}
	}

	tmpDir, err := os.MkdirTemp(baseDir, "git-fetch-*")
	if err != nil {
		return "", "", err
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return "", "", err
	}

	repo, err := git.PlainClone(tmpDir, false, &git.CloneOptions{
		URL:               src.URL,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	})
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git clone %s: %w", src.URL, err)
	}

	hash, err := repo.ResolveRevision(revision)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("resolve revision %s: %w", revision, err)
	}

	version := gitPinnedVersion(descriptor, hash.String())
	targetDir := filepath.Join(baseDir, sanitizePathSegment(version))
	if _, err := os.Stat(targetDir); err == nil {
		_ = os.RemoveAll(tmpDir)
		return version, hash.String(), nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", fmt.Errorf("git checkout %s: %w", revision, err)
	}

	if err := os.Rename(tmpDir, targetDir); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", "", err
	}
	return version, hash.String(), nil
}

// gitPinnedVersion names a checkout: the commit alone, or tag/branch@commit.
func gitPinnedVersion(descriptor, commit string) string {
	if commit == "" {
		return descriptor
	}
	if descriptor == "" || descriptor == commit {
		return commit
	}
	return descriptor + "@" + commit
}

func gitRevision(src GitSource) (plumbing.Revision, string, error) {
	switch {
	case src.Rev != "":
		return plumbing.Revision(src.Rev), src.Rev, nil
	case src.Tag != "":
		return plumbing.Revision("refs/tags/" + src.Tag), src.Tag, nil
	case src.Branch != "":
		// a fresh clone only has remote-tracking refs for non-default branches
		return plumbing.Revision("refs/remotes/origin/" + src.Branch), src.Branch, nil
	}
	return "", "", errors.New("git sources require rev, tag, or branch")
}

func sanitizePathSegment(segment string) string {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return "head"
	}
	var b strings.Builder
	for _, r := range segment {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
