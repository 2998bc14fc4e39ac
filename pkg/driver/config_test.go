package driver

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/runtime"
)

func TestLoadConfigBasic(t *testing.T) {
	path := writeConfig(t, `
optimization: full
limits:
  max_operations: 5000
  max_call_levels: 16
  max_string_size: 0
options:
  strict_variables: true
  allow_shadowing: false
modules:
  paths:
    - lib
    - /opt/quill/lib
  extension: .qs
  cache: .cache
  git:
    util:
      url: https://example.com/util.git
      tag: v1.2.0
      dir: src
    shorthand: https://example.com/short.git
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	dir := filepath.Dir(path)

	if cfg.Optimization != interpreter.OptimizeFull {
		t.Fatalf("Optimization = %s, want full", cfg.Optimization)
	}
	if cfg.Limits.MaxOperations == nil || *cfg.Limits.MaxOperations != 5000 {
		t.Fatalf("max_operations not parsed: %v", cfg.Limits.MaxOperations)
	}
	if cfg.Limits.MaxStringSize == nil || *cfg.Limits.MaxStringSize != 0 {
		t.Fatalf("explicit zero limit lost: %v", cfg.Limits.MaxStringSize)
	}
	if cfg.Limits.MaxArraySize != nil {
		t.Fatalf("unset limits must stay nil")
	}
	if cfg.Options.StrictVariables == nil || !*cfg.Options.StrictVariables {
		t.Fatalf("strict_variables not parsed")
	}
	if got, want := cfg.Modules.Paths, []string{filepath.Join(dir, "lib"), "/opt/quill/lib"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Paths = %v, want %v", got, want)
	}
	if cfg.Modules.Extension != "qs" {
		t.Fatalf("Extension = %q, want qs", cfg.Modules.Extension)
	}
	if cfg.Modules.CacheDir != filepath.Join(dir, ".cache") {
		t.Fatalf("CacheDir = %q", cfg.Modules.CacheDir)
	}
	if got := strings.Join(cfg.GitSourceNames(), ","); got != "shorthand,util" {
		t.Fatalf("GitSourceNames = %q", got)
	}
	util := cfg.Modules.Git["util"]
	if util.Name != "util" || util.Tag != "v1.2.0" || util.Dir != "src" {
		t.Fatalf("util source not captured: %#v", util)
	}
	if short := cfg.Modules.Git["shorthand"]; short.URL != "https://example.com/short.git" || short.Branch != "master" {
		t.Fatalf("shorthand source not captured: %#v", short)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	path := writeConfig(t, `
optimization: maximal
limits:
  max_call_levels: -1
modules:
  extension: a/b
  git:
    broken:
      tag: v1
      branch: main
      dir: ../outside
`)

	_, err := LoadConfig(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{
		"limits.max_call_levels must not be negative",
		`modules.extension "a/b" must not contain path separators`,
		"modules.git.broken: url must be provided",
		"modules.git.broken: rev, tag and branch are mutually exclusive",
		`modules.git.broken: dir "../outside" must stay inside the repository`,
		"optimization",
	}
	for _, w := range want {
		if !strings.Contains(verr.Error(), w) {
			t.Fatalf("validation error missing %q:\n%s", w, verr.Error())
		}
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
limits:
  max_ops: 10
`)
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "max_ops") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadConfigEmpty(t *testing.T) {
	path := writeConfig(t, "")
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("expected empty config error, got %v", err)
	}
}

func TestConfigApply(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`
optimization: none
limits:
  max_operations: 100
options:
  fail_on_invalid_map_property: true
`), "")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	e := interpreter.New()
	if err := cfg.Apply(e); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if e.OptimizationLevel() != interpreter.OptimizeNone {
		t.Fatalf("optimization level not applied")
	}
	if got := e.Limits(); got.MaxOperations != 100 || got.MaxCallLevels != interpreter.DefaultMaxCallLevels {
		t.Fatalf("limits not merged: %+v", got)
	}
	if e.ModuleResolver() != nil {
		t.Fatalf("no resolver should be installed without module settings")
	}

	_, err = e.Eval("loop {}")
	var evalErr *runtime.EvalError
	if !errors.As(err, &evalErr) || evalErr.Kind != runtime.ErrTooManyOperations {
		t.Fatalf("expected operation limit, got %v", err)
	}
	_, err = e.Eval("let m = #{}; m.missing")
	if !errors.As(err, &evalErr) || evalErr.Kind != runtime.ErrPropertyNotFound {
		t.Fatalf("expected missing property error, got %v", err)
	}
}

func TestConfigApplyInstallsFileResolver(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, filepath.Join(dir, "lib", "greet.quill"), `fn hello(n) { "hello " + n }`)
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte("modules:\n  paths: [lib]\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	e := interpreter.New()
	if err := cfg.Apply(e); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	v, err := e.Eval(`import "greet" as g; g::hello("quill")`)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if s, _ := v.AsString(); s != "hello quill" {
		t.Fatalf("got %s", runtime.ToDebug(v))
	}
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if got, err := FindConfig(nested); err != nil || got != "" {
		t.Fatalf("FindConfig without a file = %q, %v", got, err)
	}
	want := filepath.Join(root, "a", ConfigFileName)
	if err := os.WriteFile(want, []byte("optimization: simple\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got, err := FindConfig(nested); err != nil || got != want {
		t.Fatalf("FindConfig = %q, %v; want %q", got, err, want)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writeScript(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)+"\n"), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
