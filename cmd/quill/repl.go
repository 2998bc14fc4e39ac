package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"quill/interpreter-go/pkg/interpreter"
	"quill/interpreter-go/pkg/lexer"
	"quill/interpreter-go/pkg/parser"
	"quill/interpreter-go/pkg/runtime"
)

const (
	historyFile = ".quill_history"
	promptMain  = "quill> "
	promptCont  = "  ...> "
)

const replHelp = `Commands:
  :help       show this message
  :scope      list variables in scope
  :functions  list script functions defined so far
  :clear      forget variables and functions
  :quit       leave the REPL`

func runRepl(args []string) int {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var flags engineFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	e, err := flags.newEngine(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure engine: %v\n", err)
		return 1
	}
	session := newReplSession(e)

	fmt.Fprintf(os.Stdout, "%s. Type :help for commands.\n", cliToolVersion)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	for {
		code, ok := readInput(ln)
		if !ok {
			fmt.Fprintln(os.Stdout)
			return 0
		}
		if strings.TrimSpace(code) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		if strings.HasPrefix(strings.TrimSpace(code), ":") {
			if session.command(os.Stdout, code) {
				return 0
			}
			continue
		}
		if err := session.eval(os.Stdout, code); err != nil {
			reportError(os.Stderr, "<repl>", code, err)
		}
	}
}

// readInput keeps prompting while the buffered text is an incomplete
// script, so blocks and functions can span lines.
func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !isIncomplete(b.String()) {
			return b.String(), true
		}
	}
}

// isIncomplete reports whether source fails to parse only because more
// input is needed.
func isIncomplete(source string) bool {
	_, err := parser.Parse(source, parser.Options{})
	var parseErr *parser.ParseError
	if !errors.As(err, &parseErr) {
		return false
	}
	if parseErr.Kind == parser.ErrUnexpectedEOF {
		return true
	}
	var lexErr *lexer.LexError
	return errors.As(err, &lexErr) && lexErr.Kind == lexer.ErrUnterminatedComment
}

// replSession carries variables and script functions from one input to
// the next.
type replSession struct {
	engine *interpreter.Engine
	scope  *runtime.Scope
	fns    *interpreter.AST
}

func newReplSession(e *interpreter.Engine) *replSession {
	s := &replSession{engine: e, scope: runtime.NewScope()}
	s.reset()
	return s
}

func (s *replSession) reset() {
	s.scope.Clear()
	empty, err := s.engine.Compile("")
	if err != nil {
		panic(err)
	}
	s.fns = empty
}

// eval runs code and prints its value unless it is unit.
func (s *replSession) eval(w io.Writer, code string) error {
	a, err := s.engine.CompileWithScope(s.scope, code)
	if err != nil {
		return err
	}
	merged := s.fns.Merge(a)
	v, err := s.engine.EvalASTWithScope(s.scope, merged)
	merged.ClearStatements()
	s.fns = merged
	if err != nil {
		return err
	}
	if !v.IsUnit() {
		fmt.Fprintf(w, "=> %s\n", runtime.ToDebug(v))
	}
	return nil
}

// command handles a `:` command and reports whether the REPL should exit.
func (s *replSession) command(w io.Writer, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case ":quit", ":exit", ":q":
		return true
	case ":help":
		fmt.Fprintln(w, replHelp)
	case ":scope":
		for _, entry := range s.scope.IterVisible() {
			kind := "let"
			if entry.Constant {
				kind = "const"
			}
			fmt.Fprintf(w, "%s %s = %s\n", kind, entry.Name, runtime.ToDebug(entry.Value.Flatten()))
		}
	case ":functions":
		var sigs []string
		for _, def := range s.fns.Functions() {
			sigs = append(sigs, def.Signature())
		}
		sort.Strings(sigs)
		for _, sig := range sigs {
			fmt.Fprintln(w, sig)
		}
	case ":clear":
		s.reset()
	default:
		fmt.Fprintln(w, "unknown command. Type :help for commands.")
	}
	return false
}
