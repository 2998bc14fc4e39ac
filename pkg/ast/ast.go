package ast

type NodeType string

const (
	NodeUnitLiteral         NodeType = "UnitLiteral"
	NodeBoolLiteral         NodeType = "BoolLiteral"
	NodeIntegerLiteral      NodeType = "IntegerLiteral"
	NodeFloatLiteral        NodeType = "FloatLiteral"
	NodeCharLiteral         NodeType = "CharLiteral"
	NodeStringLiteral       NodeType = "StringLiteral"
	NodeConstant            NodeType = "Constant"
	NodeInterpolatedString  NodeType = "InterpolatedString"
	NodeArrayLiteral        NodeType = "ArrayLiteral"
	NodeMapLiteral          NodeType = "MapLiteral"
	NodeVariable            NodeType = "Variable"
	NodeThis                NodeType = "This"
	NodeFnCall              NodeType = "FnCall"
	NodeAnd                 NodeType = "And"
	NodeOr                  NodeType = "Or"
	NodeCoalesce            NodeType = "Coalesce"
	NodeChain               NodeType = "Chain"
	NodePropertyLink        NodeType = "PropertyLink"
	NodeIndexLink           NodeType = "IndexLink"
	NodeMethodLink          NodeType = "MethodLink"
	NodeStmtBlockExpr       NodeType = "StmtBlockExpr"
	NodeClosure             NodeType = "Closure"
	NodeCustomSyntax        NodeType = "CustomSyntax"
	NodeNoop                NodeType = "Noop"
	NodeVar                 NodeType = "Var"
	NodeAssign              NodeType = "Assign"
	NodeIf                  NodeType = "If"
	NodeSwitch              NodeType = "Switch"
	NodeWhile               NodeType = "While"
	NodeLoop                NodeType = "Loop"
	NodeDo                  NodeType = "Do"
	NodeFor                 NodeType = "For"
	NodeTryCatch            NodeType = "TryCatch"
	NodeBreakLoop           NodeType = "BreakLoop"
	NodeReturn              NodeType = "Return"
	NodeImport              NodeType = "Import"
	NodeExport              NodeType = "Export"
	NodeExprStmt            NodeType = "ExprStmt"
	NodeFnCallStmt          NodeType = "FnCallStmt"
	NodeBlock               NodeType = "Block"
	NodeShare               NodeType = "Share"
	NodeScriptFnDefinition  NodeType = "ScriptFnDef"
	NodeStatementBlock      NodeType = "StmtBlock"
	NodeNamespace           NodeType = "Namespace"
	NodeInterpolationSource NodeType = "InterpolationSource"
)

// Node is implemented by every syntax tree element.
type Node interface {
	NodeType() NodeType
	Span() Span
	Position() Position
}

type nodeImpl struct {
	Type NodeType `json:"type"`
	Loc  Span     `json:"span"`
}

func newNodeImpl(kind NodeType, span Span) nodeImpl {
	return nodeImpl{Type: kind, Loc: span}
}

func (n *nodeImpl) NodeType() NodeType { return n.Type }
func (n *nodeImpl) Span() Span         { return n.Loc }
func (n *nodeImpl) Position() Position { return n.Loc.Start }
func (n *nodeImpl) setSpan(span Span)  { n.Loc = span }

// Marker interfaces.

type Expr interface {
	Node
	exprNode()
}

type expressionMarker struct{}

func (expressionMarker) exprNode() {}

type Stmt interface {
	Node
	stmtNode()
}

type statementMarker struct{}

func (statementMarker) stmtNode() {}

// Constant is a value folded into the tree by the parser or optimizer.
// runtime.Value is the only implementation used by the engine.
type Constant interface {
	TypeName() string
}

// ASTFlags carry per-node options shared by several node kinds.
type ASTFlags uint8

const (
	FlagNone ASTFlags = 0
	// FlagConstant marks a `const` declaration.
	FlagConstant ASTFlags = 1 << iota
	// FlagExported marks an `export let`/`export const` declaration.
	FlagExported
	// FlagNegated turns `while` into `until` on a do-loop, and marks a
	// null-conditional (`?.`, `?[`) chain link.
	FlagNegated
	// FlagBreak distinguishes `break` from `continue`, and `throw` from `return`.
	FlagBreak
	// FlagPrivate marks a private function definition.
	FlagPrivate
)

// Has reports whether every bit of flag is set.
func (f ASTFlags) Has(flag ASTFlags) bool {
	return f&flag == flag
}
