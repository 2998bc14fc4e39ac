package interpreter

import (
	"fmt"
	"strings"

	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

func (st *evalState) evaluateExpression(fr *frame, node ast.Expr) (runtime.Value, error) {
	switch n := node.(type) {
	case nil:
		return runtime.UnitValue, nil
	case *ast.UnitLiteral:
		return runtime.UnitValue, nil
	case *ast.BoolLiteral:
		return runtime.Bool(n.Value), nil
	case *ast.IntegerLiteral:
		return runtime.Int(n.Value), nil
	case *ast.FloatLiteral:
		return runtime.Float(n.Value), nil
	case *ast.CharLiteral:
		return runtime.Char(n.Value), nil
	case *ast.StringLiteral:
		return runtime.String(n.Value), nil
	case *ast.ConstantExpr:
		if v, ok := n.Value.(runtime.Value); ok {
			return v.Clone().WithAccess(runtime.ReadWrite), nil
		}
		return runtime.UnitValue, nil
	case *ast.InterpolatedString:
		return st.evaluateInterpolated(fr, n)
	case *ast.ArrayLiteral:
		return st.evaluateArrayLiteral(fr, n)
	case *ast.MapLiteral:
		return st.evaluateMapLiteral(fr, n)
	case *ast.Variable:
		slot, _, err := st.lookupVariable(fr, n)
		if err != nil {
			return runtime.UnitValue, err
		}
		return slot.FlattenClone().WithAccess(runtime.ReadWrite), nil
	case *ast.ThisExpr:
		if fr.this == nil {
			return runtime.UnitValue, runtime.NewEvalError(runtime.ErrUnboundThis).At(n.Position())
		}
		return fr.this.FlattenClone().WithAccess(runtime.ReadWrite), nil
	case *ast.FnCallExpr:
		if err := st.debugStep(fr, n, false); err != nil {
			return runtime.UnitValue, err
		}
		return st.evaluateFnCall(fr, n)
	case *ast.BinaryExpr:
		return st.evaluateBinary(fr, n)
	case *ast.ChainExpr:
		return st.evaluateChain(fr, n)
	case *ast.StmtBlockExpr:
		return st.evaluateBlock(fr, n.Block)
	case *ast.ClosureExpr:
		return st.evaluateClosure(fr, n)
	case *ast.CustomSyntaxExpr:
		return st.evaluateCustomSyntax(fr, n)
	default:
		return runtime.UnitValue, runtime.NewSystemError(fmt.Sprintf("unsupported expression %s", node.NodeType()), nil)
	}
}

// lookupVariable returns the slot bound to v. readOnly is set for
// constants and for values that do not live in the scope.
func (st *evalState) lookupVariable(fr *frame, v *ast.Variable) (*runtime.Value, bool, error) {
	pos := v.Position()
	if v.IsQualified() {
		root := v.Namespace.Root()
		m, ok := st.findModule(fr, root)
		if !ok {
			return nil, false, runtime.NewModuleNotFound(root, v.Namespace.Pos.Or(pos))
		}
		val, ok := m.ResolveQualifiedVar(v.Namespace.Path[1:], v.Name)
		if !ok {
			return nil, false, runtime.NewVariableNotFound(v.Namespace.String()+v.Name, pos)
		}
		return &val, true, nil
	}
	if cb := st.engine.varResolver; cb != nil {
		val, ok, err := cb(v.Name, &EvalContext{st: st, fr: fr, pos: pos})
		if err != nil {
			return nil, false, runtime.AsEvalError(err, pos)
		}
		if ok {
			if val.IsShared() {
				return &val, val.IsReadOnly(), nil
			}
			return &val, true, nil
		}
	}
	if slot, ok := searchScope(fr.scope, v); ok {
		return slot, slot.IsReadOnly(), nil
	}
	if val, ok := st.globalConstant(v.Name); ok {
		return &val, true, nil
	}
	return nil, false, runtime.NewVariableNotFound(v.Name, pos)
}

// searchScope uses the parser's slot hint when it still names the right
// binding, and searches by name otherwise.
func searchScope(scope *runtime.Scope, v *ast.Variable) (*runtime.Value, bool) {
	if v.Index > 0 {
		if i := scope.Len() - v.Index; i >= 0 {
			if name, slot := scope.Entry(i); name == v.Name {
				return slot, true
			}
		}
	}
	if i, ok := scope.Search(v.Name); ok {
		_, slot := scope.Entry(i)
		return slot, true
	}
	return nil, false
}

// globalConstant looks up a constant defined by a global module.
func (st *evalState) globalConstant(name string) (runtime.Value, bool) {
	for _, m := range st.engine.globalModules {
		if v, ok := m.GetVar(name); ok {
			return v, true
		}
	}
	return runtime.UnitValue, false
}

func (st *evalState) evaluateInterpolated(fr *frame, n *ast.InterpolatedString) (runtime.Value, error) {
	var b strings.Builder
	limit := st.engine.limits.MaxStringSize
	for _, part := range n.Parts {
		if lit, ok := part.(*ast.StringLiteral); ok {
			b.WriteString(lit.Value)
		} else {
			v, err := st.evaluateExpression(fr, part)
			if err != nil {
				return runtime.UnitValue, err
			}
			s, err := st.stringify(fr, v, part.Position())
			if err != nil {
				return runtime.UnitValue, err
			}
			b.WriteString(s)
		}
		if limit > 0 && b.Len() > limit {
			return runtime.UnitValue, runtime.NewDataTooLarge("Length of string", n.Position())
		}
	}
	return runtime.String(b.String()), nil
}

// stringify converts v with the `to_string` function in scope, so host
// types and script overrides format themselves.
func (st *evalState) stringify(fr *frame, v runtime.Value, pos ast.Position) (string, error) {
	v = v.Flatten()
	if s, ok := v.AsString(); ok {
		return s, nil
	}
	args := []runtime.Value{v}
	if r := st.resolveCall(fr, runtime.CalcFnHash(nil, "to_string", 1), argTypes(args), false); r != nil {
		out, err := st.invoke(fr, r, "to_string", nil, args, pos)
		if err != nil {
			return "", err
		}
		if s, ok := out.AsString(); ok {
			return s, nil
		}
		return runtime.ToString(out), nil
	}
	return runtime.ToString(v), nil
}

func (st *evalState) evaluateArrayLiteral(fr *frame, n *ast.ArrayLiteral) (runtime.Value, error) {
	elements := make([]runtime.Value, len(n.Elements))
	for i, el := range n.Elements {
		v, err := st.evaluateExpression(fr, el)
		if err != nil {
			return runtime.UnitValue, err
		}
		elements[i] = v.Flatten()
	}
	arr := runtime.NewArray(elements...)
	if err := st.checkSize(arr, n.Position()); err != nil {
		return runtime.UnitValue, err
	}
	return arr, nil
}

func (st *evalState) evaluateMapLiteral(fr *frame, n *ast.MapLiteral) (runtime.Value, error) {
	m := runtime.NewMap()
	for _, entry := range n.Entries {
		v, err := st.evaluateExpression(fr, entry.Value)
		if err != nil {
			return runtime.UnitValue, err
		}
		m.Set(entry.Key, v.Flatten())
	}
	out := runtime.NewMapValue(m)
	if err := st.checkSize(out, n.Position()); err != nil {
		return runtime.UnitValue, err
	}
	return out, nil
}

func (st *evalState) evaluateCondition(fr *frame, expr ast.Expr) (bool, error) {
	v, err := st.evaluateExpression(fr, expr)
	if err != nil {
		return false, err
	}
	b, ok := v.AsBool()
	if !ok {
		return false, runtime.NewMismatchDataType("bool", st.engine.typeName(v), expr.Position())
	}
	return b, nil
}

func (st *evalState) evaluateBinary(fr *frame, n *ast.BinaryExpr) (runtime.Value, error) {
	switch n.NodeType() {
	case ast.NodeAnd:
		lhs, err := st.evaluateCondition(fr, n.Lhs)
		if err != nil || !lhs {
			return runtime.Bool(false), err
		}
		rhs, err := st.evaluateCondition(fr, n.Rhs)
		return runtime.Bool(rhs), err
	case ast.NodeOr:
		lhs, err := st.evaluateCondition(fr, n.Lhs)
		if err != nil || lhs {
			return runtime.Bool(lhs), err
		}
		rhs, err := st.evaluateCondition(fr, n.Rhs)
		return runtime.Bool(rhs), err
	case ast.NodeCoalesce:
		lhs, err := st.evaluateExpression(fr, n.Lhs)
		if err != nil {
			return runtime.UnitValue, err
		}
		if !lhs.IsUnit() {
			return lhs, nil
		}
		return st.evaluateExpression(fr, n.Rhs)
	}
	return runtime.UnitValue, runtime.NewSystemError(fmt.Sprintf("unsupported binary expression %s", n.NodeType()), nil)
}

// evaluateClosure builds a function pointer to the lifted function,
// currying the captured bindings. A preceding share statement has already
// turned them into shared cells, so the curried values alias the scope.
func (st *evalState) evaluateClosure(fr *frame, n *ast.ClosureExpr) (runtime.Value, error) {
	fp := runtime.NewFnPtr(n.Fn.Name)
	fp.Fn = n.Fn
	if len(fr.libs) > 0 && fr.libs[0] != nil {
		fp.Env = fr.libs[0]
	}
	for _, v := range n.Captures {
		slot, _, err := st.lookupVariable(fr, v)
		if err != nil {
			return runtime.UnitValue, err
		}
		fp.Curry = append(fp.Curry, *slot)
	}
	return runtime.NewFnPtrValue(fp), nil
}

// frameWithLib returns a frame that also resolves script functions of lib.
func frameWithLib(fr *frame, lib *module.Module) *frame {
	if lib == nil {
		return fr
	}
	return &frame{scope: fr.scope, this: fr.this, libs: append([]*module.Module{lib}, fr.libs...)}
}
