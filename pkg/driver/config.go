package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"quill/interpreter-go/pkg/interpreter"
)

// ConfigFileName is the conventional name of an engine configuration file.
const ConfigFileName = "quill.yml"

// Config is the parsed contents of quill.yml.
type Config struct {
	Path         string
	Limits       LimitsConfig
	Optimization interpreter.OptimizationLevel
	Options      OptionsConfig
	Modules      ModulesConfig

	optimizationSet bool
	rawOptimization string
}

// LimitsConfig mirrors interpreter.Limits. Nil fields keep the engine's
// defaults; zero disables a limit.
type LimitsConfig struct {
	MaxCallLevels *int
	MaxOperations *uint64
	MaxModules    *int
	MaxStringSize *int
	MaxArraySize  *int
	MaxMapSize    *int
	MaxExprDepth  *int
}

// OptionsConfig holds language switches. Nil fields keep engine defaults.
type OptionsConfig struct {
	FastOperators            *bool
	FailOnInvalidMapProperty *bool
	AllowShadowing           *bool
	StrictVariables          *bool
	AllowFunctions           *bool
}

// ModulesConfig describes where `import` looks for scripts.
type ModulesConfig struct {
	Paths     []string
	Extension string
	CacheDir  string
	Git       map[string]*GitSource
}

// GitSource names a git repository whose scripts are importable as
// `import "name/path"`.
type GitSource struct {
	Name   string
	URL    string
	Rev    string
	Tag    string
	Branch string
	Dir    string
}

// ValidationError aggregates configuration validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "config: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("config validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// LoadConfig parses a configuration file from disk, returning a validated
// config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", absPath, err)
	}
	defer file.Close()
	return ParseConfig(file, absPath)
}

// ParseConfig reads a configuration document from r. path locates the file
// and anchors relative module paths; it may be empty.
func ParseConfig(r io.Reader, path string) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var raw configFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: %s is empty", displayPath(path))
		}
		return nil, fmt.Errorf("config: parse %s: %w", displayPath(path), err)
	}

	cfg := raw.toConfig(path)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfig walks up from dir looking for quill.yml. It returns an empty
// path when none exists.
func FindConfig(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(abs, ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", nil
		}
		abs = parent
	}
}

// GitSourceNames returns the configured git source names in sorted order.
func (c *Config) GitSourceNames() []string {
	names := make([]string, 0, len(c.Modules.Git))
	for name := range c.Modules.Git {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) validate() error {
	var errs ValidationError

	if c.rawOptimization != "" {
		level, err := interpreter.ParseOptimizationLevel(c.rawOptimization)
		if err != nil {
			errs.Issues = append(errs.Issues, fmt.Sprintf("optimization: %v", err))
		} else {
			c.Optimization = level
			c.optimizationSet = true
		}
	}

	for name, value := range map[string]*int{
		"max_call_levels": c.Limits.MaxCallLevels,
		"max_modules":     c.Limits.MaxModules,
		"max_string_size": c.Limits.MaxStringSize,
		"max_array_size":  c.Limits.MaxArraySize,
		"max_map_size":    c.Limits.MaxMapSize,
		"max_expr_depth":  c.Limits.MaxExprDepth,
	} {
		if value != nil && *value < 0 {
			errs.Issues = append(errs.Issues, fmt.Sprintf("limits.%s must not be negative", name))
		}
	}

	if ext := c.Modules.Extension; ext != "" && strings.ContainsAny(ext, `/\`) {
		errs.Issues = append(errs.Issues, fmt.Sprintf("modules.extension %q must not contain path separators", ext))
	}
	for i, p := range c.Modules.Paths {
		if p == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("modules.paths[%d] must be a non-empty string", i))
		}
	}
	for _, name := range c.GitSourceNames() {
		src := c.Modules.Git[name]
		if strings.ContainsAny(name, `/\`) {
			errs.Issues = append(errs.Issues, fmt.Sprintf("modules.git.%s: name must not contain path separators", name))
		}
		for _, issue := range src.validate() {
			errs.Issues = append(errs.Issues, fmt.Sprintf("modules.git.%s: %s", name, issue))
		}
	}

	sort.SliceStable(errs.Issues, func(i, j int) bool { return errs.Issues[i] < errs.Issues[j] })
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func (s *GitSource) validate() []string {
	var errs []string
	if s.URL == "" {
		errs = append(errs, "url must be provided")
	}
	pins := 0
	for _, v := range []string{s.Rev, s.Tag, s.Branch} {
		if v != "" {
			pins++
		}
	}
	switch {
	case pins == 0:
		errs = append(errs, "must specify rev, tag, or branch")
	case pins > 1:
		errs = append(errs, "rev, tag and branch are mutually exclusive")
	}
	if dir := filepath.ToSlash(filepath.Clean(s.Dir)); filepath.IsAbs(s.Dir) || dir == ".." || strings.HasPrefix(dir, "../") {
		errs = append(errs, fmt.Sprintf("dir %q must stay inside the repository", s.Dir))
	}
	return errs
}

// Apply configures e: limits, optimization level, language options and,
// when module paths or git sources are present, the module resolver.
func (c *Config) Apply(e *interpreter.Engine) error {
	limits := e.Limits()
	setInt(&limits.MaxCallLevels, c.Limits.MaxCallLevels)
	setInt(&limits.MaxModules, c.Limits.MaxModules)
	setInt(&limits.MaxStringSize, c.Limits.MaxStringSize)
	setInt(&limits.MaxArraySize, c.Limits.MaxArraySize)
	setInt(&limits.MaxMapSize, c.Limits.MaxMapSize)
	setInt(&limits.MaxExprDepth, c.Limits.MaxExprDepth)
	if c.Limits.MaxOperations != nil {
		limits.MaxOperations = *c.Limits.MaxOperations
	}
	e.SetLimits(limits)

	if c.optimizationSet {
		e.SetOptimizationLevel(c.Optimization)
	}
	for _, opt := range []struct {
		value *bool
		set   func(bool)
	}{
		{c.Options.FastOperators, e.SetFastOperators},
		{c.Options.FailOnInvalidMapProperty, e.SetFailOnInvalidMapProperty},
		{c.Options.AllowShadowing, e.SetAllowShadowing},
		{c.Options.StrictVariables, e.SetStrictVariables},
		{c.Options.AllowFunctions, e.SetAllowFunctions},
	} {
		if opt.value != nil {
			opt.set(*opt.value)
		}
	}

	resolver, err := c.ModuleResolver()
	if err != nil {
		return err
	}
	if resolver != nil {
		e.SetModuleResolver(resolver)
	}
	e.Logger().Debug("config applied",
		"path", c.Path,
		"optimization", e.OptimizationLevel(),
		"module_paths", len(c.Modules.Paths),
		"git_sources", len(c.Modules.Git))
	return nil
}

// ModuleResolver builds the resolver described by the modules section: one
// file resolver per path, in order, followed by a git resolver when git
// sources are configured. It returns nil when neither is present.
func (c *Config) ModuleResolver() (interpreter.ModuleResolver, error) {
	if len(c.Modules.Paths) == 0 && len(c.Modules.Git) == 0 {
		return nil, nil
	}
	collection := interpreter.NewModuleResolversCollection()
	for _, p := range c.Modules.Paths {
		r := NewFileModuleResolver(p)
		if c.Modules.Extension != "" {
			r.SetExtension(c.Modules.Extension)
		}
		collection.Push(r)
	}
	if len(c.Modules.Git) > 0 {
		cacheDir, err := c.cacheDir()
		if err != nil {
			return nil, err
		}
		g := NewGitModuleResolver(cacheDir)
		if c.Modules.Extension != "" {
			g.SetExtension(c.Modules.Extension)
		}
		for _, name := range c.GitSourceNames() {
			if err := g.AddSource(*c.Modules.Git[name]); err != nil {
				return nil, err
			}
		}
		collection.Push(g)
	}
	return collection, nil
}

func (c *Config) cacheDir() (string, error) {
	if c.Modules.CacheDir != "" {
		return c.Modules.CacheDir, nil
	}
	if env := os.Getenv("QUILL_CACHE"); env != "" {
		return env, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: locate cache directory: %w", err)
	}
	return filepath.Join(base, "quill"), nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func displayPath(path string) string {
	if path == "" {
		return "<input>"
	}
	return path
}

type configFile struct {
	Limits       limitsYAML  `yaml:"limits"`
	Optimization string      `yaml:"optimization"`
	Options      optionsYAML `yaml:"options"`
	Modules      modulesYAML `yaml:"modules"`
}

type limitsYAML struct {
	MaxCallLevels *int    `yaml:"max_call_levels"`
	MaxOperations *uint64 `yaml:"max_operations"`
	MaxModules    *int    `yaml:"max_modules"`
	MaxStringSize *int    `yaml:"max_string_size"`
	MaxArraySize  *int    `yaml:"max_array_size"`
	MaxMapSize    *int    `yaml:"max_map_size"`
	MaxExprDepth  *int    `yaml:"max_expr_depth"`
}

type optionsYAML struct {
	FastOperators            *bool `yaml:"fast_operators"`
	FailOnInvalidMapProperty *bool `yaml:"fail_on_invalid_map_property"`
	AllowShadowing           *bool `yaml:"allow_shadowing"`
	StrictVariables          *bool `yaml:"strict_variables"`
	AllowFunctions           *bool `yaml:"allow_functions"`
}

type modulesYAML struct {
	Paths     stringList `yaml:"paths"`
	Extension string     `yaml:"extension"`
	Cache     string     `yaml:"cache"`
	Git       gitMap     `yaml:"git"`
}

type gitMap map[string]*GitSource

type stringList []string

func (cf configFile) toConfig(path string) *Config {
	cfg := &Config{
		Path: path,
		Limits: LimitsConfig{
			MaxCallLevels: cf.Limits.MaxCallLevels,
			MaxOperations: cf.Limits.MaxOperations,
			MaxModules:    cf.Limits.MaxModules,
			MaxStringSize: cf.Limits.MaxStringSize,
			MaxArraySize:  cf.Limits.MaxArraySize,
			MaxMapSize:    cf.Limits.MaxMapSize,
			MaxExprDepth:  cf.Limits.MaxExprDepth,
		},
		Options: OptionsConfig{
			FastOperators:            cf.Options.FastOperators,
			FailOnInvalidMapProperty: cf.Options.FailOnInvalidMapProperty,
			AllowShadowing:           cf.Options.AllowShadowing,
			StrictVariables:          cf.Options.StrictVariables,
			AllowFunctions:           cf.Options.AllowFunctions,
		},
		Modules: ModulesConfig{
			Extension: strings.TrimPrefix(strings.TrimSpace(cf.Modules.Extension), "."),
			Git:       make(map[string]*GitSource, len(cf.Modules.Git)),
		},
		rawOptimization: strings.TrimSpace(cf.Optimization),
	}

	base := ""
	if path != "" {
		base = filepath.Dir(path)
	}
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) || base == "" {
			return p
		}
		return filepath.Join(base, p)
	}
	for _, p := range cf.Modules.Paths {
		cfg.Modules.Paths = append(cfg.Modules.Paths, anchor(p))
	}
	if cache := strings.TrimSpace(cf.Modules.Cache); cache != "" {
		cfg.Modules.CacheDir = anchor(cache)
	}
	for name, src := range cf.Modules.Git {
		copy := *src
		copy.Name = name
		cfg.Modules.Git[name] = &copy
	}
	return cfg
}

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = stringList{strings.TrimSpace(value.Value)}
		return nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(value.Content))
		for _, node := range value.Content {
			var str string
			if err := node.Decode(&str); err != nil {
				return err
			}
			items = append(items, strings.TrimSpace(str))
		}
		*l = stringList(items)
		return nil
	case yaml.AliasNode:
		return l.UnmarshalYAML(value.Alias)
	case 0:
		*l = nil
		return nil
	default:
		return fmt.Errorf("config: expected string or sequence for list but found %s", value.ShortTag())
	}
}

func (gm *gitMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 || (value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		*gm = make(gitMap)
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("config: modules.git must be a mapping")
	}
	result := make(gitMap, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		var key string
		if err := value.Content[i].Decode(&key); err != nil {
			return err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("config: git source names must be non-empty")
		}
		var src GitSource
		if err := src.unmarshalYAML(value.Content[i+1]); err != nil {
			return fmt.Errorf("config: git source %q: %w", key, err)
		}
		result[key] = &src
	}
	*gm = result
	return nil
}

func (s *GitSource) unmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		// `name: <url>` is shorthand that tracks the default branch.
		*s = GitSource{URL: strings.TrimSpace(value.Value), Branch: "master"}
		return nil
	case yaml.MappingNode:
		var raw struct {
			URL    string `yaml:"url"`
			Rev    string `yaml:"rev"`
			Tag    string `yaml:"tag"`
			Branch string `yaml:"branch"`
			Dir    string `yaml:"dir"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*s = GitSource{
			URL:    strings.TrimSpace(raw.URL),
			Rev:    strings.TrimSpace(raw.Rev),
			Tag:    strings.TrimSpace(raw.Tag),
			Branch: strings.TrimSpace(raw.Branch),
			Dir:    strings.TrimSpace(raw.Dir),
		}
		return nil
	case yaml.AliasNode:
		return s.unmarshalYAML(value.Alias)
	default:
		return fmt.Errorf("expected string or mapping, found %s", value.ShortTag())
	}
}
