package ast

// Literals

type UnitLiteral struct {
	nodeImpl
	expressionMarker
}

func NewUnitLiteral(span Span) *UnitLiteral {
	return &UnitLiteral{nodeImpl: newNodeImpl(NodeUnitLiteral, span)}
}

type BoolLiteral struct {
	nodeImpl
	expressionMarker

	Value bool `json:"value"`
}

func NewBoolLiteral(value bool, span Span) *BoolLiteral {
	return &BoolLiteral{nodeImpl: newNodeImpl(NodeBoolLiteral, span), Value: value}
}

type IntegerLiteral struct {
	nodeImpl
	expressionMarker

	Value int64 `json:"value"`
}

func NewIntegerLiteral(value int64, span Span) *IntegerLiteral {
	return &IntegerLiteral{nodeImpl: newNodeImpl(NodeIntegerLiteral, span), Value: value}
}

type FloatLiteral struct {
	nodeImpl
	expressionMarker

	Value float64 `json:"value"`
}

func NewFloatLiteral(value float64, span Span) *FloatLiteral {
	return &FloatLiteral{nodeImpl: newNodeImpl(NodeFloatLiteral, span), Value: value}
}

type CharLiteral struct {
	nodeImpl
	expressionMarker

	Value rune `json:"value"`
}

func NewCharLiteral(value rune, span Span) *CharLiteral {
	return &CharLiteral{nodeImpl: newNodeImpl(NodeCharLiteral, span), Value: value}
}

type StringLiteral struct {
	nodeImpl
	expressionMarker

	Value string `json:"value"`
}

func NewStringLiteral(value string, span Span) *StringLiteral {
	return &StringLiteral{nodeImpl: newNodeImpl(NodeStringLiteral, span), Value: value}
}

// ConstantExpr holds a value computed ahead of evaluation: a folded
// expression, a constant supplied by a host variable resolver, or a constant
// propagated from the host scope.
type ConstantExpr struct {
	nodeImpl
	expressionMarker

	Value Constant `json:"-"`
}

func NewConstantExpr(value Constant, span Span) *ConstantExpr {
	return &ConstantExpr{nodeImpl: newNodeImpl(NodeConstant, span), Value: value}
}

// InterpolatedString concatenates the string form of each part.
type InterpolatedString struct {
	nodeImpl
	expressionMarker

	Parts []Expr `json:"parts"`
}

func NewInterpolatedString(parts []Expr, span Span) *InterpolatedString {
	return &InterpolatedString{nodeImpl: newNodeImpl(NodeInterpolatedString, span), Parts: parts}
}

type ArrayLiteral struct {
	nodeImpl
	expressionMarker

	Elements []Expr `json:"elements"`
}

func NewArrayLiteral(elements []Expr, span Span) *ArrayLiteral {
	return &ArrayLiteral{nodeImpl: newNodeImpl(NodeArrayLiteral, span), Elements: elements}
}

// MapEntry is a single `key: value` pair of an object map literal.
type MapEntry struct {
	Key   string   `json:"key"`
	Value Expr     `json:"value"`
	Pos   Position `json:"pos"`
}

type MapLiteral struct {
	nodeImpl
	expressionMarker

	Entries []MapEntry `json:"entries"`
}

func NewMapLiteral(entries []MapEntry, span Span) *MapLiteral {
	return &MapLiteral{nodeImpl: newNodeImpl(NodeMapLiteral, span), Entries: entries}
}

// Lookup returns the value expression for key, if the literal contains it.
// Later duplicates win, matching evaluation order.
func (m *MapLiteral) Lookup(key string) (Expr, bool) {
	var found Expr
	for _, entry := range m.Entries {
		if entry.Key == key {
			found = entry.Value
		}
	}
	return found, found != nil
}

// Namespace is the `a::b::` module path preceding a qualified name.
type Namespace struct {
	Path []string `json:"path"`
	Pos  Position `json:"pos"`
}

// NewNamespace builds a namespace from path segments.
func NewNamespace(path []string, pos Position) *Namespace {
	return &Namespace{Path: path, Pos: pos}
}

// Root returns the first segment of the path.
func (n *Namespace) Root() string {
	if n == nil || len(n.Path) == 0 {
		return ""
	}
	return n.Path[0]
}

func (n *Namespace) String() string {
	if n == nil {
		return ""
	}
	out := ""
	for _, seg := range n.Path {
		out += seg + "::"
	}
	return out
}

// Variable is an unresolved variable reference. Index, when non-zero, is
// the parser's slot hint: the binding sits Index entries from the top of
// the function-local scope stack.
type Variable struct {
	nodeImpl
	expressionMarker

	Name      string     `json:"name"`
	Namespace *Namespace `json:"namespace,omitempty"`
	Index     int        `json:"index,omitempty"`
	Hash      uint64     `json:"hash,omitempty"`
}

func NewVariable(name string, span Span) *Variable {
	return &Variable{nodeImpl: newNodeImpl(NodeVariable, span), Name: name}
}

// IsQualified reports whether the variable carries a module path.
func (v *Variable) IsQualified() bool {
	return v.Namespace != nil && len(v.Namespace.Path) > 0
}

type ThisExpr struct {
	nodeImpl
	expressionMarker
}

func NewThisExpr(span Span) *ThisExpr {
	return &ThisExpr{nodeImpl: newNodeImpl(NodeThis, span)}
}

// FnCallExpr is a function call. Operators are calls too: `a + b` becomes
// a call of `+` with OpToken set so that the built-in operator table can be
// consulted before dispatch.
type FnCallExpr struct {
	nodeImpl
	expressionMarker

	Namespace *Namespace `json:"namespace,omitempty"`
	Name      string     `json:"name"`
	// Hash is the signature hash of namespace, name and argument count.
	Hash    uint64 `json:"hash"`
	Args    []Expr `json:"args"`
	OpToken string `json:"opToken,omitempty"`
	// NativeOnly skips script-defined functions during resolution.
	NativeOnly bool `json:"nativeOnly,omitempty"`
}

func NewFnCallExpr(name string, args []Expr, span Span) *FnCallExpr {
	return &FnCallExpr{nodeImpl: newNodeImpl(NodeFnCall, span), Name: name, Args: args}
}

// IsQualified reports whether the call carries a module path.
func (c *FnCallExpr) IsQualified() bool {
	return c.Namespace != nil && len(c.Namespace.Path) > 0
}

// IsOperator reports whether the call came from an operator token.
func (c *FnCallExpr) IsOperator() bool {
	return c.OpToken != ""
}

// BinaryExpr carries the operands of a short-circuiting operator.
type BinaryExpr struct {
	nodeImpl
	expressionMarker

	Lhs Expr `json:"lhs"`
	Rhs Expr `json:"rhs"`
}

// NewAndExpr builds `lhs && rhs`.
func NewAndExpr(lhs, rhs Expr, span Span) *BinaryExpr {
	return &BinaryExpr{nodeImpl: newNodeImpl(NodeAnd, span), Lhs: lhs, Rhs: rhs}
}

// NewOrExpr builds `lhs || rhs`.
func NewOrExpr(lhs, rhs Expr, span Span) *BinaryExpr {
	return &BinaryExpr{nodeImpl: newNodeImpl(NodeOr, span), Lhs: lhs, Rhs: rhs}
}

// NewCoalesceExpr builds `lhs ?? rhs`.
func NewCoalesceExpr(lhs, rhs Expr, span Span) *BinaryExpr {
	return &BinaryExpr{nodeImpl: newNodeImpl(NodeCoalesce, span), Lhs: lhs, Rhs: rhs}
}

// ChainLink is one `.prop`, `.method(...)` or `[index]` step of a chain.
type ChainLink interface {
	Node
	linkNode()
	IsNullSafe() bool
}

type linkMarker struct{}

func (linkMarker) linkNode() {}

// PropertyLink is `.name` applied to a target.
type PropertyLink struct {
	nodeImpl
	linkMarker

	Name       string   `json:"name"`
	Getter     string   `json:"getter"`
	Setter     string   `json:"setter"`
	GetterHash uint64   `json:"getterHash"`
	SetterHash uint64   `json:"setterHash"`
	Flags      ASTFlags `json:"flags"`
}

func NewPropertyLink(name string, span Span) *PropertyLink {
	return &PropertyLink{
		nodeImpl: newNodeImpl(NodePropertyLink, span),
		Name:     name,
		Getter:   GetterPrefix + name,
		Setter:   SetterPrefix + name,
	}
}

func (p *PropertyLink) IsNullSafe() bool { return p.Flags.Has(FlagNegated) }

// IndexLink is `[index]` applied to a target.
type IndexLink struct {
	nodeImpl
	linkMarker

	Index Expr     `json:"index"`
	Flags ASTFlags `json:"flags"`
}

func NewIndexLink(index Expr, span Span) *IndexLink {
	return &IndexLink{nodeImpl: newNodeImpl(NodeIndexLink, span), Index: index}
}

func (l *IndexLink) IsNullSafe() bool { return l.Flags.Has(FlagNegated) }

// MethodLink is `.name(args)`; the call's Hash counts the receiver.
type MethodLink struct {
	nodeImpl
	linkMarker

	Call  *FnCallExpr `json:"call"`
	Flags ASTFlags    `json:"flags"`
}

func NewMethodLink(call *FnCallExpr, span Span) *MethodLink {
	return &MethodLink{nodeImpl: newNodeImpl(NodeMethodLink, span), Call: call}
}

func (m *MethodLink) IsNullSafe() bool { return m.Flags.Has(FlagNegated) }

// ChainExpr is a dot/index chain rooted at an arbitrary expression.
type ChainExpr struct {
	nodeImpl
	expressionMarker

	Root  Expr        `json:"root"`
	Links []ChainLink `json:"links"`
}

func NewChainExpr(root Expr, links []ChainLink, span Span) *ChainExpr {
	return &ChainExpr{nodeImpl: newNodeImpl(NodeChain, span), Root: root, Links: links}
}

// StmtBlockExpr evaluates a block of statements as an expression.
type StmtBlockExpr struct {
	nodeImpl
	expressionMarker

	Block *StmtBlock `json:"block"`
}

func NewStmtBlockExpr(block *StmtBlock) *StmtBlockExpr {
	span := NoSpan
	if block != nil {
		span = block.Loc
	}
	return &StmtBlockExpr{nodeImpl: newNodeImpl(NodeStmtBlockExpr, span), Block: block}
}

// ClosureExpr creates a function pointer to an anonymous function, currying
// the captured variables (already converted to shared cells by a preceding
// ShareStmt) as leading arguments.
type ClosureExpr struct {
	nodeImpl
	expressionMarker

	Fn       *ScriptFnDef `json:"fn"`
	Captures []*Variable  `json:"captures"`
}

func NewClosureExpr(fn *ScriptFnDef, captures []*Variable, span Span) *ClosureExpr {
	return &ClosureExpr{nodeImpl: newNodeImpl(NodeClosure, span), Fn: fn, Captures: captures}
}

// CustomSyntaxExpr is an instance of host-registered syntax. Inputs hold the
// sub-expressions captured by `$...$` markers; Tokens hold every symbol
// consumed, with the marker standing in for each captured input.
type CustomSyntaxExpr struct {
	nodeImpl
	expressionMarker

	Key            string   `json:"key"`
	Inputs         []Expr   `json:"inputs"`
	Tokens         []string `json:"tokens"`
	State          Constant `json:"-"`
	ScopeMayChange bool     `json:"scopeMayChange"`
	SelfTerminated bool     `json:"selfTerminated"`
}

func NewCustomSyntaxExpr(key string, inputs []Expr, tokens []string, span Span) *CustomSyntaxExpr {
	return &CustomSyntaxExpr{nodeImpl: newNodeImpl(NodeCustomSyntax, span), Key: key, Inputs: inputs, Tokens: tokens}
}

// Property accessor naming.
const (
	GetterPrefix       = "get$"
	SetterPrefix       = "set$"
	IndexerGetFnName   = "index$get$"
	IndexerSetFnName   = "index$set$"
	AnonymousFnPrefix  = "anon$"
	CustomMarkerExpr   = "$expr$"
	CustomMarkerBlock  = "$block$"
	CustomMarkerIdent  = "$ident$"
	CustomMarkerSymbol = "$symbol$"
	CustomMarkerString = "$string$"
	CustomMarkerInt    = "$int$"
	CustomMarkerFloat  = "$float$"
	CustomMarkerBool   = "$bool$"
)

// IsPure reports whether evaluating expr cannot have side effects.
func IsPure(expr Expr) bool {
	switch e := expr.(type) {
	case *UnitLiteral, *BoolLiteral, *IntegerLiteral, *FloatLiteral, *CharLiteral, *StringLiteral, *ConstantExpr, *ThisExpr:
		return true
	case *Variable:
		return true
	case *ArrayLiteral:
		for _, el := range e.Elements {
			if !IsPure(el) {
				return false
			}
		}
		return true
	case *MapLiteral:
		for _, entry := range e.Entries {
			if !IsPure(entry.Value) {
				return false
			}
		}
		return true
	case *InterpolatedString:
		for _, part := range e.Parts {
			if _, ok := part.(*StringLiteral); !ok {
				return false
			}
		}
		return true
	case *BinaryExpr:
		return IsPure(e.Lhs) && IsPure(e.Rhs)
	case *StmtBlockExpr:
		if e.Block == nil {
			return true
		}
		for _, stmt := range e.Block.Statements {
			if !IsPureStmt(stmt) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsConstantExpr reports whether expr is a literal or folded constant.
func IsConstantExpr(expr Expr) bool {
	switch e := expr.(type) {
	case *UnitLiteral, *BoolLiteral, *IntegerLiteral, *FloatLiteral, *CharLiteral, *StringLiteral, *ConstantExpr:
		return true
	case *ArrayLiteral:
		for _, el := range e.Elements {
			if !IsConstantExpr(el) {
				return false
			}
		}
		return true
	case *MapLiteral:
		for _, entry := range e.Entries {
			if !IsConstantExpr(entry.Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
