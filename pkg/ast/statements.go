package ast

// StmtBlock is a braced (or top-level) list of statements.
type StmtBlock struct {
	nodeImpl

	Statements []Stmt `json:"statements"`
}

func NewStmtBlock(statements []Stmt, span Span) *StmtBlock {
	return &StmtBlock{nodeImpl: newNodeImpl(NodeStatementBlock, span), Statements: statements}
}

// Len returns the number of statements, treating a nil block as empty.
func (b *StmtBlock) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Statements)
}

// IsEmpty reports whether the block contains no statements.
func (b *StmtBlock) IsEmpty() bool {
	return b.Len() == 0
}

// FlowControl bundles the condition, body and alternate branch of
// branching and looping constructs.
type FlowControl struct {
	Expr   Expr       `json:"expr"`
	Body   *StmtBlock `json:"body"`
	Branch *StmtBlock `json:"branch,omitempty"`
}

type NoopStmt struct {
	nodeImpl
	statementMarker
}

func NewNoopStmt(span Span) *NoopStmt {
	return &NoopStmt{nodeImpl: newNodeImpl(NodeNoop, span)}
}

// VarStmt is `let`/`const`, optionally exported.
type VarStmt struct {
	nodeImpl
	statementMarker

	Name  string   `json:"name"`
	Value Expr     `json:"value"`
	Flags ASTFlags `json:"flags"`
	// Alias is the export name when it differs from Name.
	Alias string `json:"alias,omitempty"`
}

func NewVarStmt(name string, value Expr, flags ASTFlags, span Span) *VarStmt {
	return &VarStmt{nodeImpl: newNodeImpl(NodeVar, span), Name: name, Value: value, Flags: flags}
}

func (v *VarStmt) IsConst() bool    { return v.Flags.Has(FlagConstant) }
func (v *VarStmt) IsExported() bool { return v.Flags.Has(FlagExported) }

// AssignStmt assigns to a variable or a chain. Op is empty for plain `=`,
// otherwise the op-assignment token (e.g. "+=") with BaseOp the binary
// operator it falls back to ("+").
type AssignStmt struct {
	nodeImpl
	statementMarker

	Target Expr   `json:"target"`
	Value  Expr   `json:"value"`
	Op     string `json:"op,omitempty"`
	BaseOp string `json:"baseOp,omitempty"`
	OpHash uint64 `json:"opHash,omitempty"`
	// BaseHash is the two-argument signature hash of BaseOp.
	BaseHash uint64 `json:"baseHash,omitempty"`
}

func NewAssignStmt(target, value Expr, span Span) *AssignStmt {
	return &AssignStmt{nodeImpl: newNodeImpl(NodeAssign, span), Target: target, Value: value}
}

// IsOpAssignment reports whether the statement is a compound assignment.
func (a *AssignStmt) IsOpAssignment() bool {
	return a.Op != ""
}

type IfStmt struct {
	nodeImpl
	statementMarker

	Flow FlowControl `json:"flow"`
}

func NewIfStmt(cond Expr, body, branch *StmtBlock, span Span) *IfStmt {
	return &IfStmt{nodeImpl: newNodeImpl(NodeIf, span), Flow: FlowControl{Expr: cond, Body: body, Branch: branch}}
}

// ConditionalExpr is one arm of a switch: an optional guard and the arm's
// expression. Value is the literal case value for hashed arms.
type ConditionalExpr struct {
	Condition Expr     `json:"condition,omitempty"`
	Expr      Expr     `json:"expr"`
	Value     Constant `json:"-"`
}

// IsAlwaysTrue reports whether the guard is absent or the literal `true`.
func (c *ConditionalExpr) IsAlwaysTrue() bool {
	if c.Condition == nil {
		return true
	}
	b, ok := c.Condition.(*BoolLiteral)
	return ok && b.Value
}

// IsAlwaysFalse reports whether the guard is the literal `false`.
func (c *ConditionalExpr) IsAlwaysFalse() bool {
	if c.Condition == nil {
		return false
	}
	b, ok := c.Condition.(*BoolLiteral)
	return ok && !b.Value
}

// RangeCase is an integer range arm of a switch.
type RangeCase struct {
	Start     int64 `json:"start"`
	End       int64 `json:"end"`
	Inclusive bool  `json:"inclusive"`
	Index     int   `json:"index"`
}

// Contains reports whether n falls inside the range.
func (r RangeCase) Contains(n int64) bool {
	if r.Inclusive {
		return n >= r.Start && n <= r.End
	}
	return n >= r.Start && n < r.End
}

// SwitchCases is the compiled case table of a switch statement. Cases maps
// the hash of a literal case value to indices into Expressions (in source
// order, so guarded arms sharing a value are tried first to last). Ranges
// are scanned in order when no hashed arm matches. Default is -1 when there
// is no `_` arm.
type SwitchCases struct {
	Expressions []ConditionalExpr `json:"expressions"`
	Cases       map[uint64][]int  `json:"cases"`
	Ranges      []RangeCase       `json:"ranges"`
	Default     int               `json:"default"`
}

// NewSwitchCases returns an empty table.
func NewSwitchCases() *SwitchCases {
	return &SwitchCases{Cases: make(map[uint64][]int), Default: -1}
}

type SwitchStmt struct {
	nodeImpl
	statementMarker

	Expr  Expr         `json:"expr"`
	Cases *SwitchCases `json:"cases"`
}

func NewSwitchStmt(expr Expr, cases *SwitchCases, span Span) *SwitchStmt {
	return &SwitchStmt{nodeImpl: newNodeImpl(NodeSwitch, span), Expr: expr, Cases: cases}
}

type WhileStmt struct {
	nodeImpl
	statementMarker

	Flow FlowControl `json:"flow"`
}

func NewWhileStmt(cond Expr, body *StmtBlock, span Span) *WhileStmt {
	return &WhileStmt{nodeImpl: newNodeImpl(NodeWhile, span), Flow: FlowControl{Expr: cond, Body: body}}
}

type LoopStmt struct {
	nodeImpl
	statementMarker

	Body *StmtBlock `json:"body"`
}

func NewLoopStmt(body *StmtBlock, span Span) *LoopStmt {
	return &LoopStmt{nodeImpl: newNodeImpl(NodeLoop, span), Body: body}
}

// DoStmt is `do { } while cond` or, with FlagNegated, `do { } until cond`.
type DoStmt struct {
	nodeImpl
	statementMarker

	Flow  FlowControl `json:"flow"`
	Flags ASTFlags    `json:"flags"`
}

func NewDoStmt(body *StmtBlock, cond Expr, until bool, span Span) *DoStmt {
	flags := FlagNone
	if until {
		flags = FlagNegated
	}
	return &DoStmt{nodeImpl: newNodeImpl(NodeDo, span), Flow: FlowControl{Expr: cond, Body: body}, Flags: flags}
}

func (d *DoStmt) IsUntil() bool { return d.Flags.Has(FlagNegated) }

// ForStmt iterates Flow.Expr binding Var (and Counter, when present).
type ForStmt struct {
	nodeImpl
	statementMarker

	Var     string      `json:"var"`
	Counter string      `json:"counter,omitempty"`
	Flow    FlowControl `json:"flow"`
}

func NewForStmt(name, counter string, iterable Expr, body *StmtBlock, span Span) *ForStmt {
	return &ForStmt{nodeImpl: newNodeImpl(NodeFor, span), Var: name, Counter: counter, Flow: FlowControl{Expr: iterable, Body: body}}
}

// TryCatchStmt is `try { } catch (var) { }`.
type TryCatchStmt struct {
	nodeImpl
	statementMarker

	Body     *StmtBlock `json:"body"`
	CatchVar string     `json:"catchVar,omitempty"`
	Catch    *StmtBlock `json:"catch"`
}

func NewTryCatchStmt(body *StmtBlock, catchVar string, catch *StmtBlock, span Span) *TryCatchStmt {
	return &TryCatchStmt{nodeImpl: newNodeImpl(NodeTryCatch, span), Body: body, CatchVar: catchVar, Catch: catch}
}

// BreakLoopStmt is `break [value]` (FlagBreak) or `continue [value]`.
type BreakLoopStmt struct {
	nodeImpl
	statementMarker

	Value Expr     `json:"value,omitempty"`
	Flags ASTFlags `json:"flags"`
}

func NewBreakLoopStmt(isBreak bool, value Expr, span Span) *BreakLoopStmt {
	flags := FlagNone
	if isBreak {
		flags = FlagBreak
	}
	return &BreakLoopStmt{nodeImpl: newNodeImpl(NodeBreakLoop, span), Value: value, Flags: flags}
}

func (b *BreakLoopStmt) IsBreak() bool { return b.Flags.Has(FlagBreak) }

// ReturnStmt is `return [value]` or, with FlagBreak, `throw [value]`.
type ReturnStmt struct {
	nodeImpl
	statementMarker

	Value Expr     `json:"value,omitempty"`
	Flags ASTFlags `json:"flags"`
}

func NewReturnStmt(isThrow bool, value Expr, span Span) *ReturnStmt {
	flags := FlagNone
	if isThrow {
		flags = FlagBreak
	}
	return &ReturnStmt{nodeImpl: newNodeImpl(NodeReturn, span), Value: value, Flags: flags}
}

func (r *ReturnStmt) IsThrow() bool { return r.Flags.Has(FlagBreak) }

// ImportStmt is `import path [as alias]`.
type ImportStmt struct {
	nodeImpl
	statementMarker

	Path  Expr   `json:"path"`
	Alias string `json:"alias,omitempty"`
}

func NewImportStmt(path Expr, alias string, span Span) *ImportStmt {
	return &ImportStmt{nodeImpl: newNodeImpl(NodeImport, span), Path: path, Alias: alias}
}

// ExportStmt is `export name [as alias]`.
type ExportStmt struct {
	nodeImpl
	statementMarker

	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
}

func NewExportStmt(name, alias string, span Span) *ExportStmt {
	return &ExportStmt{nodeImpl: newNodeImpl(NodeExport, span), Name: name, Alias: alias}
}

// ExportName returns the name the binding is exported under.
func (e *ExportStmt) ExportName() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

type ExprStmt struct {
	nodeImpl
	statementMarker

	Expr Expr `json:"expr"`
}

func NewExprStmt(expr Expr) *ExprStmt {
	return &ExprStmt{nodeImpl: newNodeImpl(NodeExprStmt, expr.Span()), Expr: expr}
}

// FnCallStmt is a function call in statement position.
type FnCallStmt struct {
	nodeImpl
	statementMarker

	Call *FnCallExpr `json:"call"`
}

func NewFnCallStmt(call *FnCallExpr) *FnCallStmt {
	return &FnCallStmt{nodeImpl: newNodeImpl(NodeFnCallStmt, call.Span()), Call: call}
}

type BlockStmt struct {
	nodeImpl
	statementMarker

	Block *StmtBlock `json:"block"`
}

func NewBlockStmt(block *StmtBlock) *BlockStmt {
	return &BlockStmt{nodeImpl: newNodeImpl(NodeBlock, block.Loc), Block: block}
}

// ShareStmt converts the named bindings into shared cells so that a closure
// created afterwards observes later mutations.
type ShareStmt struct {
	nodeImpl
	statementMarker

	Names []string `json:"names"`
}

func NewShareStmt(names []string, span Span) *ShareStmt {
	return &ShareStmt{nodeImpl: newNodeImpl(NodeShare, span), Names: names}
}

// IsPureStmt reports whether a statement has no side effects.
func IsPureStmt(stmt Stmt) bool {
	switch s := stmt.(type) {
	case *NoopStmt:
		return true
	case *ExprStmt:
		return IsPure(s.Expr)
	case *BlockStmt:
		for _, inner := range s.Block.Statements {
			if !IsPureStmt(inner) {
				return false
			}
		}
		return true
	case *IfStmt:
		return IsPure(s.Flow.Expr) && blockIsPure(s.Flow.Body) && blockIsPure(s.Flow.Branch)
	default:
		return false
	}
}

func blockIsPure(block *StmtBlock) bool {
	if block == nil {
		return true
	}
	for _, stmt := range block.Statements {
		if !IsPureStmt(stmt) {
			return false
		}
	}
	return true
}

// IsBlockDependent reports whether a statement's effect depends on the
// block it appears in (declarations, imports and shares alter the scope).
func IsBlockDependent(stmt Stmt) bool {
	switch stmt.(type) {
	case *VarStmt, *ImportStmt, *ExportStmt, *ShareStmt:
		return true
	default:
		return false
	}
}

// ReturnsValue reports whether a statement's value is meaningful as the
// result of the enclosing block.
func ReturnsValue(stmt Stmt) bool {
	switch stmt.(type) {
	case *ExprStmt, *FnCallStmt, *IfStmt, *SwitchStmt, *BlockStmt, *WhileStmt, *LoopStmt, *DoStmt, *ForStmt, *TryCatchStmt:
		return true
	default:
		return false
	}
}
