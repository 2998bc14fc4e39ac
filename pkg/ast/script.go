package ast

import "strings"

// ScriptFnDef is a script-defined function. Closures are lifted into
// definitions with an anonymous name whose leading parameters receive the
// captured variables.
type ScriptFnDef struct {
	nodeImpl

	Name   string     `json:"name"`
	Params []string   `json:"params"`
	Body   *StmtBlock `json:"body"`
	Flags  ASTFlags   `json:"flags"`
	// Comments holds the doc comments (`///`, `/** */`) preceding the definition.
	Comments []string `json:"comments,omitempty"`
	// Environ names the source the function was compiled from, when it was
	// loaded through an import.
	Environ string `json:"environ,omitempty"`
}

func NewScriptFnDef(name string, params []string, body *StmtBlock, span Span) *ScriptFnDef {
	return &ScriptFnDef{nodeImpl: newNodeImpl(NodeScriptFnDefinition, span), Name: name, Params: params, Body: body}
}

// IsPrivate reports whether the function was declared `private fn`.
func (f *ScriptFnDef) IsPrivate() bool { return f.Flags.Has(FlagPrivate) }

// IsAnonymous reports whether the function was lifted from a closure.
func (f *ScriptFnDef) IsAnonymous() bool { return strings.HasPrefix(f.Name, AnonymousFnPrefix) }

// Signature renders `name(a, b)`.
func (f *ScriptFnDef) Signature() string {
	return f.Name + "(" + strings.Join(f.Params, ", ") + ")"
}

// Script is the parser's output: the top-level statements, the functions
// defined anywhere in the source, and the module doc comment (`//!`).
type Script struct {
	Body      *StmtBlock     `json:"body"`
	Functions []*ScriptFnDef `json:"functions"`
	Doc       []string       `json:"doc,omitempty"`
}

// Visitor is called for every node reached by Walk. Returning false stops
// descent into the node's children.
type Visitor func(Node) bool

// Walk traverses the statements of block depth-first.
func Walk(block *StmtBlock, visit Visitor) {
	if block == nil {
		return
	}
	for _, stmt := range block.Statements {
		WalkStmt(stmt, visit)
	}
}

// WalkStmt traverses a single statement depth-first.
func WalkStmt(stmt Stmt, visit Visitor) {
	if stmt == nil || !visit(stmt) {
		return
	}
	switch s := stmt.(type) {
	case *VarStmt:
		WalkExpr(s.Value, visit)
	case *AssignStmt:
		WalkExpr(s.Target, visit)
		WalkExpr(s.Value, visit)
	case *IfStmt:
		walkFlow(&s.Flow, visit)
	case *WhileStmt:
		walkFlow(&s.Flow, visit)
	case *DoStmt:
		walkFlow(&s.Flow, visit)
	case *ForStmt:
		walkFlow(&s.Flow, visit)
	case *LoopStmt:
		Walk(s.Body, visit)
	case *SwitchStmt:
		WalkExpr(s.Expr, visit)
		for i := range s.Cases.Expressions {
			WalkExpr(s.Cases.Expressions[i].Condition, visit)
			WalkExpr(s.Cases.Expressions[i].Expr, visit)
		}
	case *TryCatchStmt:
		Walk(s.Body, visit)
		Walk(s.Catch, visit)
	case *BreakLoopStmt:
		WalkExpr(s.Value, visit)
	case *ReturnStmt:
		WalkExpr(s.Value, visit)
	case *ImportStmt:
		WalkExpr(s.Path, visit)
	case *ExprStmt:
		WalkExpr(s.Expr, visit)
	case *FnCallStmt:
		WalkExpr(s.Call, visit)
	case *BlockStmt:
		Walk(s.Block, visit)
	}
}

func walkFlow(flow *FlowControl, visit Visitor) {
	WalkExpr(flow.Expr, visit)
	Walk(flow.Body, visit)
	Walk(flow.Branch, visit)
}

// WalkExpr traverses an expression depth-first.
func WalkExpr(expr Expr, visit Visitor) {
	if expr == nil || !visit(expr) {
		return
	}
	switch e := expr.(type) {
	case *InterpolatedString:
		for _, part := range e.Parts {
			WalkExpr(part, visit)
		}
	case *ArrayLiteral:
		for _, el := range e.Elements {
			WalkExpr(el, visit)
		}
	case *MapLiteral:
		for _, entry := range e.Entries {
			WalkExpr(entry.Value, visit)
		}
	case *FnCallExpr:
		for _, arg := range e.Args {
			WalkExpr(arg, visit)
		}
	case *BinaryExpr:
		WalkExpr(e.Lhs, visit)
		WalkExpr(e.Rhs, visit)
	case *ChainExpr:
		WalkExpr(e.Root, visit)
		for _, link := range e.Links {
			if !visit(link) {
				continue
			}
			switch l := link.(type) {
			case *IndexLink:
				WalkExpr(l.Index, visit)
			case *MethodLink:
				WalkExpr(l.Call, visit)
			}
		}
	case *StmtBlockExpr:
		Walk(e.Block, visit)
	case *ClosureExpr:
		for _, v := range e.Captures {
			WalkExpr(v, visit)
		}
	case *CustomSyntaxExpr:
		for _, input := range e.Inputs {
			WalkExpr(input, visit)
		}
	}
}
