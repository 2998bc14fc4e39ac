package interpreter

import (
	"fmt"
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/runtime"
)

// DebuggerCommand tells the engine how to continue after a stop.
type DebuggerCommand int

const (
	// DebugContinue runs until the next break-point.
	DebugContinue DebuggerCommand = iota
	// DebugStepInto stops at the next statement or call, entering functions.
	DebugStepInto
	// DebugStepOver stops at the next statement or call without entering
	// functions.
	DebugStepOver
	// DebugNext stops at the next statement at the same call level or above.
	DebugNext
	// DebugFunctionExit runs until the current function returns.
	DebugFunctionExit
)

func (c DebuggerCommand) String() string {
	switch c {
	case DebugContinue:
		return "continue"
	case DebugStepInto:
		return "step-into"
	case DebugStepOver:
		return "step-over"
	case DebugNext:
		return "next"
	case DebugFunctionExit:
		return "function-exit"
	default:
		return fmt.Sprintf("DebuggerCommand(%d)", int(c))
	}
}

// DebuggerEventKind classifies a stop.
type DebuggerEventKind int

const (
	EventStart DebuggerEventKind = iota
	EventStep
	EventBreakPoint
	EventFunctionExitWithValue
	EventFunctionExitWithError
	EventEnd
)

// DebuggerEvent describes why the debugger stopped.
type DebuggerEvent struct {
	Kind DebuggerEventKind
	// BreakPoint is the index of the break-point hit, for EventBreakPoint.
	BreakPoint int
	// Value is the function's result for EventFunctionExitWithValue.
	Value runtime.Value
	// Err is the function's error for EventFunctionExitWithError.
	Err error
}

// DebuggerCallback is invoked at every stop. node is the statement or
// expression about to run (nil for start and end events).
type DebuggerCallback func(ctx *EvalContext, event DebuggerEvent, node ast.Node, source string, pos ast.Position) (DebuggerCommand, error)

// BreakPointKind selects what a break-point matches.
type BreakPointKind int

const (
	// BreakAtPosition matches the statement starting at Pos in Source.
	BreakAtPosition BreakPointKind = iota
	// BreakAtFunctionName matches any call of Name.
	BreakAtFunctionName
	// BreakAtFunctionCall matches calls of Name with Args arguments.
	BreakAtFunctionCall
	// BreakAtProperty matches access of property Name.
	BreakAtProperty
)

// BreakPoint is a place where the debugger stops regardless of stepping.
type BreakPoint struct {
	Kind     BreakPointKind
	Source   string
	Pos      ast.Position
	Name     string
	Args     int
	Disabled bool
}

func (b BreakPoint) String() string {
	var out string
	switch b.Kind {
	case BreakAtPosition:
		if b.Source != "" {
			out = fmt.Sprintf("%s @ %s", b.Source, b.Pos)
		} else {
			out = b.Pos.String()
		}
	case BreakAtFunctionName:
		out = b.Name + " (...)"
	case BreakAtFunctionCall:
		out = fmt.Sprintf("%s (%d args)", b.Name, b.Args)
	case BreakAtProperty:
		out = "." + b.Name
	}
	if b.Disabled {
		out += " (disabled)"
	}
	return out
}

// CallStackFrame is one active script function call.
type CallStackFrame struct {
	FnName string
	Args   []runtime.Value
	Source string
	Pos    ast.Position
}

func (f CallStackFrame) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = runtime.ToDebug(a)
	}
	out := fmt.Sprintf("%s(%s)", f.FnName, strings.Join(args, ", "))
	if f.Source != "" {
		out += " @ " + f.Source
	}
	if !f.Pos.IsNone() {
		out += " " + f.Pos.String()
	}
	return out
}

type debuggerStatus int

const (
	statusStepInto debuggerStatus = iota
	statusStepOver
	statusNext
	statusContinue
	statusFunctionExit
)

// Debugger is the per-evaluation debugging state.
type Debugger struct {
	BreakPoints []BreakPoint
	// State is free for the host's use.
	State runtime.Value

	status    debuggerStatus
	level     int
	callStack []CallStackFrame
}

func newDebugger() *Debugger {
	return &Debugger{status: statusStepInto}
}

// CallStack returns the active script calls, outermost first.
func (d *Debugger) CallStack() []CallStackFrame {
	return d.callStack
}

// AddBreakPoint appends a break-point and returns its index.
func (d *Debugger) AddBreakPoint(bp BreakPoint) int {
	d.BreakPoints = append(d.BreakPoints, bp)
	return len(d.BreakPoints) - 1
}

// RemoveBreakPoint deletes the break-point at index i.
func (d *Debugger) RemoveBreakPoint(i int) bool {
	if i < 0 || i >= len(d.BreakPoints) {
		return false
	}
	d.BreakPoints = append(d.BreakPoints[:i:i], d.BreakPoints[i+1:]...)
	return true
}

func (d *Debugger) apply(cmd DebuggerCommand, level int) {
	d.level = level
	switch cmd {
	case DebugStepInto:
		d.status = statusStepInto
	case DebugStepOver:
		d.status = statusStepOver
	case DebugNext:
		d.status = statusNext
	case DebugFunctionExit:
		d.status = statusFunctionExit
	default:
		d.status = statusContinue
	}
}

// matchBreakPoint returns the index of the first enabled break-point that
// matches node, or -1.
func (d *Debugger) matchBreakPoint(source string, node ast.Node, isStmt bool) int {
	for i, bp := range d.BreakPoints {
		if bp.Disabled {
			continue
		}
		switch bp.Kind {
		case BreakAtPosition:
			if isStmt && node.Position() == bp.Pos && (bp.Source == "" || bp.Source == source) {
				return i
			}
		case BreakAtFunctionName, BreakAtFunctionCall:
			var call *ast.FnCallExpr
			switch n := node.(type) {
			case *ast.FnCallExpr:
				call = n
			case *ast.FnCallStmt:
				call = n.Call
			case *ast.MethodLink:
				call = n.Call
			}
			if call == nil || call.Name != bp.Name {
				continue
			}
			if bp.Kind == BreakAtFunctionName || len(call.Args) == bp.Args {
				return i
			}
		case BreakAtProperty:
			if p, ok := node.(*ast.PropertyLink); ok && p.Name == bp.Name {
				return i
			}
		}
	}
	return -1
}

// debugStep is called before each statement and each call. It decides
// whether to stop and, if so, hands control to the host.
func (st *evalState) debugStep(fr *frame, node ast.Node, isStmt bool) error {
	d := st.debugger
	if d == nil {
		return nil
	}
	event := DebuggerEvent{Kind: EventStep, BreakPoint: -1}
	stop := false
	switch d.status {
	case statusStepInto:
		stop = true
	case statusStepOver:
		stop = st.callLevel <= d.level
	case statusNext:
		stop = isStmt && st.callLevel <= d.level
	}
	if i := d.matchBreakPoint(st.source, node, isStmt); i >= 0 {
		event = DebuggerEvent{Kind: EventBreakPoint, BreakPoint: i}
		stop = true
	}
	if !stop {
		return nil
	}
	return st.debugEvent(fr, event, node, node.Position())
}

// debugFunctionExit reports a function return when the host asked to run
// until the current function exits.
func (st *evalState) debugFunctionExit(fr *frame, result runtime.Value, err error, pos ast.Position) error {
	d := st.debugger
	if d == nil || d.status != statusFunctionExit || st.callLevel > d.level || d.level == 0 {
		return nil
	}
	event := DebuggerEvent{Kind: EventFunctionExitWithValue, BreakPoint: -1, Value: result}
	if err != nil {
		event = DebuggerEvent{Kind: EventFunctionExitWithError, BreakPoint: -1, Err: err}
	}
	return st.debugEvent(fr, event, nil, pos)
}

func (st *evalState) debugEvent(fr *frame, event DebuggerEvent, node ast.Node, pos ast.Position) error {
	cb := st.engine.debuggerCallback
	if cb == nil || st.debugger == nil {
		return nil
	}
	ctx := &EvalContext{st: st, fr: fr, pos: pos}
	cmd, err := cb(ctx, event, node, st.source, pos)
	if err != nil {
		return runtime.AsEvalError(err, pos)
	}
	st.debugger.apply(cmd, st.callLevel)
	return nil
}

func (st *evalState) pushCallFrame(name string, args []runtime.Value, pos ast.Position) {
	if st.debugger == nil {
		return
	}
	copied := make([]runtime.Value, len(args))
	for i, a := range args {
		copied[i] = a.Flatten()
	}
	st.debugger.callStack = append(st.debugger.callStack, CallStackFrame{FnName: name, Args: copied, Source: st.source, Pos: pos})
}

func (st *evalState) popCallFrame() {
	if st.debugger == nil || len(st.debugger.callStack) == 0 {
		return
	}
	st.debugger.callStack = st.debugger.callStack[:len(st.debugger.callStack)-1]
}
