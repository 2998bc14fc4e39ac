package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/driver"
	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

const cliToolVersion = "quill 0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 1
	}

	switch args[0] {
	case "--help", "-h", "help":
		printUsage(os.Stdout)
		return 0
	case "--version", "-V", "version":
		fmt.Fprintln(os.Stdout, cliToolVersion)
		return 0
	case "run":
		return runScript(args[1:])
	case "eval":
		return runEval(args[1:])
	case "check":
		return runCheck(args[1:])
	case "repl":
		return runRepl(args[1:])
	default:
		if looksLikeScript(args[0]) {
			return runScript(args)
		}
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  quill run [--config quill.yml] [--verbose] [-O level] <file.quill> [args...]")
	fmt.Fprintln(w, "  quill eval [--config quill.yml] [--verbose] '<script>'")
	fmt.Fprintln(w, "  quill check <file.quill>...")
	fmt.Fprintln(w, "  quill repl [--config quill.yml] [--verbose]")
	fmt.Fprintln(w, "  quill --version")
}

func looksLikeScript(arg string) bool {
	return strings.HasSuffix(arg, "."+driver.DefaultExtension) || strings.ContainsRune(arg, filepath.Separator)
}

// engineFlags are shared by the commands that evaluate scripts.
type engineFlags struct {
	config       string
	verbose      bool
	optimization string
}

func (f *engineFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "path to a quill.yml configuration file")
	fs.BoolVar(&f.verbose, "verbose", false, "log engine activity to stderr")
	fs.StringVar(&f.optimization, "O", "", "optimization level: none, simple or full")
}

// newEngine builds an engine configured from flags and, when no file is
// named, from the nearest quill.yml above dir. Imports fall back to files
// next to the importing script.
func (f *engineFlags) newEngine(dir string) (*interpreter.Engine, error) {
	e := interpreter.New()
	if f.verbose {
		e.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	configPath := f.config
	if configPath == "" && dir != "" {
		found, err := driver.FindConfig(dir)
		if err != nil {
			return nil, fmt.Errorf("locate %s: %w", driver.ConfigFileName, err)
		}
		configPath = found
	}
	if configPath != "" {
		cfg, err := driver.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Apply(e); err != nil {
			return nil, fmt.Errorf("apply %s: %w", configPath, err)
		}
		e.Logger().Debug("configuration loaded", "path", cfg.Path)
	}
	if e.ModuleResolver() == nil {
		e.SetModuleResolver(driver.NewFileModuleResolver(""))
	}

	if f.optimization != "" {
		level, err := interpreter.ParseOptimizationLevel(f.optimization)
		if err != nil {
			return nil, err
		}
		e.SetOptimizationLevel(level)
	}
	return e, nil
}

func runScript(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var flags engineFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "quill run requires a source file")
		return 1
	}
	path := fs.Arg(0)

	e, err := flags.newEngine(filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure engine: %v\n", err)
		return 1
	}

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", path, err)
		return 1
	}
	a, err := e.CompileNamed(nil, path, string(source))
	if err != nil {
		reportError(os.Stderr, path, string(source), err)
		return 1
	}

	scriptArgs := make(runtime.Array, 0, fs.NArg()-1)
	for _, arg := range fs.Args()[1:] {
		scriptArgs = append(scriptArgs, runtime.String(arg))
	}
	scope := runtime.NewScope()
	scope.PushConstant("ARGS", runtime.NewArray(scriptArgs...))

	if err := e.RunASTWithScope(scope, a); err != nil {
		reportError(os.Stderr, path, string(source), err)
		return 1
	}
	return 0
}

func runEval(args []string) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var flags engineFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "quill eval requires a script")
		return 1
	}
	source := strings.Join(fs.Args(), " ")

	e, err := flags.newEngine(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure engine: %v\n", err)
		return 1
	}
	v, err := e.Eval(source)
	if err != nil {
		reportError(os.Stderr, "<eval>", source, err)
		return 1
	}
	if v.Kind() != runtime.KindUnit {
		fmt.Fprintln(os.Stdout, runtime.ToString(v))
	}
	return 0
}

func runCheck(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "quill check requires at least one source file")
		return 1
	}
	e := interpreter.New()
	e.SetOptimizationLevel(interpreter.OptimizeNone)
	failed := 0
	for _, path := range args {
		source, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", path, err)
			failed++
			continue
		}
		a, err := e.CompileNamed(nil, path, string(source))
		if err != nil {
			reportError(os.Stderr, path, string(source), err)
			failed++
			continue
		}
		fmt.Fprintf(os.Stdout, "%s: ok (%d statements, %d functions)\n", path, len(a.Statements()), len(a.Functions()))
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// reportError prints err with a caret under the offending column when the
// error points into source.
func reportError(w io.Writer, name, source string, err error) {
	pos, inSource := errorPosition(err, name)
	if !inSource || pos.IsNone() {
		fmt.Fprintf(w, "%s: %v\n", name, err)
		return
	}
	fmt.Fprintf(w, "%s:%d:%d: %v\n", name, pos.Line, pos.Column, err)
	writeSnippet(w, source, pos)
}

// errorPosition finds the innermost position that still belongs to the
// named script.
func errorPosition(err error, name string) (ast.Position, bool) {
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Pos, true
	}
	var evalErr *runtime.EvalError
	if !errors.As(err, &evalErr) {
		return ast.NoPosition, false
	}
	pos := evalErr.Pos
	for current := evalErr; current.Kind == runtime.ErrInFunctionCall; {
		if current.Source != "" && current.Source != name {
			break
		}
		var inner *runtime.EvalError
		if !errors.As(current.Inner, &inner) {
			break
		}
		if !inner.Pos.IsNone() {
			pos = inner.Pos
		}
		current = inner
	}
	return pos, true
}

func writeSnippet(w io.Writer, source string, pos ast.Position) {
	lines := strings.Split(source, "\n")
	if pos.Line < 1 || pos.Line > len(lines) {
		return
	}
	line := strings.TrimRight(lines[pos.Line-1], "\r")
	gutter := fmt.Sprintf("%4d | ", pos.Line)
	fmt.Fprintf(w, "%s%s\n", gutter, line)

	var pad strings.Builder
	col := 1
	for _, r := range line {
		if col >= pos.Column {
			break
		}
		if r == '\t' {
			pad.WriteByte('\t')
		} else {
			pad.WriteByte(' ')
		}
		col++
	}
	fmt.Fprintf(w, "%s%s^\n", strings.Repeat(" ", len(gutter)-2)+"| ", pad.String())
}
