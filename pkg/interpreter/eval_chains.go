package interpreter

import (
	"quill/interpreter-go/pkg/ast"
	"quill/interpreter-go/pkg/module"
	"quill/interpreter-go/pkg/runtime"
)

// chainAssign is the pending write at the end of an assignment chain.
type chainAssign struct {
	stmt  *ast.AssignStmt
	value runtime.Value
}

// linkArgs holds the pre-evaluated operands of one chain link.
type linkArgs struct {
	index runtime.Value
	args  []runtime.Value
}

func (st *evalState) evaluateLinkArgs(fr *frame, links []ast.ChainLink) ([]linkArgs, error) {
	out := make([]linkArgs, len(links))
	for i, link := range links {
		switch l := link.(type) {
		case *ast.IndexLink:
			v, err := st.evaluateExpression(fr, l.Index)
			if err != nil {
				return nil, err
			}
			out[i].index = v.Flatten()
		case *ast.MethodLink:
			args, err := st.evaluateArgs(fr, l.Call.Args)
			if err != nil {
				return nil, err
			}
			out[i].args = args
		}
	}
	return out, nil
}

// chainRoot returns the value a chain starts from. Variables and `this`
// are used in place so that the chain can mutate them; anything else is a
// temporary.
func (st *evalState) chainRoot(fr *frame, root ast.Expr) (*runtime.Value, bool, error) {
	switch r := root.(type) {
	case *ast.Variable:
		return st.lookupVariable(fr, r)
	case *ast.ThisExpr:
		if fr.this == nil {
			return nil, false, runtime.NewEvalError(runtime.ErrUnboundThis).At(r.Position())
		}
		return fr.this, fr.this.IsReadOnly(), nil
	}
	v, err := st.evaluateExpression(fr, root)
	if err != nil {
		return nil, false, err
	}
	return &v, false, nil
}

func (st *evalState) evaluateChain(fr *frame, c *ast.ChainExpr) (runtime.Value, error) {
	args, err := st.evaluateLinkArgs(fr, c.Links)
	if err != nil {
		return runtime.UnitValue, err
	}
	target, readOnly, err := st.chainRoot(fr, c.Root)
	if err != nil {
		return runtime.UnitValue, err
	}
	v, _, err := st.walkChain(fr, target, readOnly, c.Links, args, nil)
	if err != nil {
		return runtime.UnitValue, err
	}
	return v.WithAccess(runtime.ReadWrite), nil
}

func (st *evalState) assignChain(fr *frame, c *ast.ChainExpr, op *chainAssign) error {
	args, err := st.evaluateLinkArgs(fr, c.Links)
	if err != nil {
		return err
	}
	target, readOnly, err := st.chainRoot(fr, c.Root)
	if err != nil {
		return err
	}
	if _, _, err := st.walkChain(fr, target, readOnly, c.Links, args, op); err != nil {
		return err
	}
	return target.Read(func(v runtime.Value) error {
		return st.checkSize(v, c.Position())
	})
}

// walkChain applies links to target. With op set the last link is written
// instead of read. changed reports whether target itself was modified, so
// that values obtained through getters can be written back.
func (st *evalState) walkChain(fr *frame, target *runtime.Value, readOnly bool, links []ast.ChainLink, args []linkArgs, op *chainAssign) (result runtime.Value, changed bool, err error) {
	if target.IsShared() {
		err = target.Write(func(inner *runtime.Value) error {
			var werr error
			result, changed, werr = st.walkChain(fr, inner, readOnly || inner.IsReadOnly(), links, args, op)
			return werr
		})
		if err != nil {
			err = runtime.AsEvalError(err, links[0].Position())
		}
		return result, changed, err
	}
	if links[0].IsNullSafe() && target.IsUnit() {
		return runtime.UnitValue, false, nil
	}
	switch l := links[0].(type) {
	case *ast.PropertyLink:
		if err := st.debugStep(fr, l, false); err != nil {
			return runtime.UnitValue, false, err
		}
		return st.walkProperty(fr, target, readOnly, l, links, args, op)
	case *ast.IndexLink:
		return st.walkIndex(fr, target, readOnly, l, args[0].index, links, args, op)
	case *ast.MethodLink:
		if err := st.debugStep(fr, l, false); err != nil {
			return runtime.UnitValue, false, err
		}
		v, changed, err := st.callMethod(fr, target, readOnly, l, args[0].args)
		if err != nil || len(links) == 1 {
			return v, changed, err
		}
		res, _, err := st.walkChain(fr, &v, false, links[1:], args[1:], op)
		return res, changed, err
	}
	return runtime.UnitValue, false, runtime.NewEvalError(runtime.ErrDotExpr).At(links[0].Position())
}

// descend continues the chain into child, a value owned by the current
// target.
func (st *evalState) descend(fr *frame, child *runtime.Value, readOnly bool, links []ast.ChainLink, args []linkArgs, op *chainAssign) (runtime.Value, bool, error) {
	if len(links) == 1 {
		return child.FlattenClone(), false, nil
	}
	return st.walkChain(fr, child, readOnly, links[1:], args[1:], op)
}

func (st *evalState) walkProperty(fr *frame, target *runtime.Value, readOnly bool, l *ast.PropertyLink, links []ast.ChainLink, args []linkArgs, op *chainAssign) (runtime.Value, bool, error) {
	pos := l.Position()
	last := len(links) == 1

	if m, ok := target.MapRef(); ok {
		slot, exists := m.Ref(l.Name)
		if last && op != nil {
			if readOnly {
				return runtime.UnitValue, false, runtime.NewAssignmentToConstant(l.Name, pos)
			}
			if !exists {
				if op.stmt.IsOpAssignment() && op.stmt.Op != "??=" && st.engine.failOnInvalidMapProperty {
					return runtime.UnitValue, false, runtime.NewPropertyNotFound(l.Name, pos)
				}
				m.Set(l.Name, runtime.UnitValue)
				slot, _ = m.Ref(l.Name)
			}
			return runtime.UnitValue, true, st.assignValue(fr, slot, op, pos)
		}
		if !exists {
			if st.engine.failOnInvalidMapProperty {
				return runtime.UnitValue, false, runtime.NewPropertyNotFound(l.Name, pos)
			}
			if last {
				return runtime.UnitValue, false, nil
			}
			tmp := runtime.UnitValue
			return st.walkChain(fr, &tmp, true, links[1:], args[1:], op)
		}
		return st.descend(fr, slot, readOnly, links, args, op)
	}

	if last && op != nil {
		if readOnly {
			return runtime.UnitValue, false, runtime.NewAssignmentToConstant(l.Name, pos)
		}
		value := op.value
		if op.stmt.IsOpAssignment() {
			cur, err := st.callGetter(fr, target, l)
			if err != nil {
				return runtime.UnitValue, false, err
			}
			if err := st.applyOpAssign(fr, op.stmt, &cur, op.value, pos); err != nil {
				return runtime.UnitValue, false, err
			}
			value = cur
		}
		found, err := st.callSetter(fr, target, l, value)
		if err != nil {
			return runtime.UnitValue, false, err
		}
		if !found {
			return runtime.UnitValue, false, runtime.NewPropertyNotFound(l.Name, pos)
		}
		return runtime.UnitValue, true, nil
	}

	cur, err := st.callGetter(fr, target, l)
	if err != nil {
		return runtime.UnitValue, false, err
	}
	if last {
		return cur, false, nil
	}
	res, childChanged, err := st.walkChain(fr, &cur, readOnly, links[1:], args[1:], op)
	if err != nil || !childChanged {
		return res, false, err
	}
	if readOnly {
		return runtime.UnitValue, false, runtime.NewAssignmentToConstant(l.Name, pos)
	}
	if _, err := st.callSetter(fr, target, l, cur); err != nil {
		return runtime.UnitValue, false, err
	}
	return res, true, nil
}

func (st *evalState) callGetter(fr *frame, target *runtime.Value, l *ast.PropertyLink) (runtime.Value, error) {
	types := []runtime.TypeID{target.TypeID()}
	r := st.resolveNativeFn(l.GetterHash, types)
	if r == nil {
		return runtime.UnitValue, runtime.NewPropertyNotFound(l.Name, l.Position())
	}
	if err := st.track(l.Position()); err != nil {
		return runtime.UnitValue, err
	}
	if r.info.Script != nil {
		return st.callScriptFn(r.info.Script, []*module.Module{r.lib}, nil, []runtime.Value{target.Clone()}, l.Position())
	}
	return st.callNative(fr, r.info, l.Getter, []*runtime.Value{target}, l.Position())
}

// callSetter reports found=false when the type has no setter for the
// property.
func (st *evalState) callSetter(fr *frame, target *runtime.Value, l *ast.PropertyLink, value runtime.Value) (bool, error) {
	types := []runtime.TypeID{target.TypeID(), value.TypeID()}
	r := st.resolveNativeFn(l.SetterHash, types)
	if r == nil || r.info.Script != nil {
		return false, nil
	}
	if err := st.track(l.Position()); err != nil {
		return true, err
	}
	_, err := st.callNative(fr, r.info, l.Setter, []*runtime.Value{target, &value}, l.Position())
	return true, err
}

func (st *evalState) walkIndex(fr *frame, target *runtime.Value, readOnly bool, l *ast.IndexLink, idx runtime.Value, links []ast.ChainLink, args []linkArgs, op *chainAssign) (runtime.Value, bool, error) {
	pos := l.Position()
	last := len(links) == 1
	writing := last && op != nil
	if writing && readOnly {
		return runtime.UnitValue, false, runtime.NewAssignmentToConstant("", pos)
	}

	switch target.Kind() {
	case runtime.KindArray:
		arr, _ := target.ArrayRef()
		n, ok := idx.AsInt()
		if !ok {
			return runtime.UnitValue, false, st.badIndex(*target, idx, l.Index.Position())
		}
		i, err := normalizeIndex(runtime.ErrArrayBounds, len(*arr), n, l.Index.Position())
		if err != nil {
			return runtime.UnitValue, false, err
		}
		slot := &(*arr)[i]
		if writing {
			return runtime.UnitValue, true, st.assignValue(fr, slot, op, pos)
		}
		return st.descend(fr, slot, readOnly, links, args, op)

	case runtime.KindMap:
		m, _ := target.MapRef()
		key, ok := idx.AsString()
		if !ok {
			return runtime.UnitValue, false, st.badIndex(*target, idx, l.Index.Position())
		}
		slot, exists := m.Ref(key)
		if writing {
			if !exists {
				m.Set(key, runtime.UnitValue)
				slot, _ = m.Ref(key)
			}
			return runtime.UnitValue, true, st.assignValue(fr, slot, op, pos)
		}
		if !exists {
			if st.engine.failOnInvalidMapProperty {
				return runtime.UnitValue, false, runtime.NewPropertyNotFound(key, l.Index.Position())
			}
			tmp := runtime.UnitValue
			return st.descend(fr, &tmp, true, links, args, op)
		}
		return st.descend(fr, slot, readOnly, links, args, op)

	case runtime.KindBlob:
		blob, _ := target.BlobRef()
		n, ok := idx.AsInt()
		if !ok {
			return runtime.UnitValue, false, st.badIndex(*target, idx, l.Index.Position())
		}
		i, err := normalizeIndex(runtime.ErrArrayBounds, len(*blob), n, l.Index.Position())
		if err != nil {
			return runtime.UnitValue, false, err
		}
		cur := runtime.Int(int64((*blob)[i]))
		if writing {
			if err := st.assignValue(fr, &cur, op, pos); err != nil {
				return runtime.UnitValue, false, err
			}
			b, ok := cur.AsInt()
			if !ok {
				return runtime.UnitValue, false, runtime.NewMismatchDataType("i64", st.engine.typeName(cur), pos)
			}
			(*blob)[i] = byte(b)
			return runtime.UnitValue, true, nil
		}
		return st.descend(fr, &cur, true, links, args, op)

	case runtime.KindInt:
		num, _ := target.AsInt()
		bit, ok := idx.AsInt()
		if !ok {
			return runtime.UnitValue, false, st.badIndex(*target, idx, l.Index.Position())
		}
		i, err := normalizeIndex(runtime.ErrBitFieldBounds, 64, bit, l.Index.Position())
		if err != nil {
			return runtime.UnitValue, false, err
		}
		cur := runtime.Bool(num&(1<<uint(i)) != 0)
		if writing {
			if err := st.assignValue(fr, &cur, op, pos); err != nil {
				return runtime.UnitValue, false, err
			}
			set, ok := cur.AsBool()
			if !ok {
				return runtime.UnitValue, false, runtime.NewMismatchDataType("bool", st.engine.typeName(cur), pos)
			}
			if set {
				num |= 1 << uint(i)
			} else {
				num &^= 1 << uint(i)
			}
			return runtime.UnitValue, true, target.Set(runtime.Int(num))
		}
		return st.descend(fr, &cur, true, links, args, op)

	case runtime.KindString:
		s, _ := target.AsString()
		n, ok := idx.AsInt()
		if !ok {
			return runtime.UnitValue, false, st.badIndex(*target, idx, l.Index.Position())
		}
		chars := []rune(s)
		i, err := normalizeIndex(runtime.ErrStringBounds, len(chars), n, l.Index.Position())
		if err != nil {
			return runtime.UnitValue, false, err
		}
		cur := runtime.Char(chars[i])
		if writing {
			if err := st.assignValue(fr, &cur, op, pos); err != nil {
				return runtime.UnitValue, false, err
			}
			c, ok := cur.AsChar()
			if !ok {
				return runtime.UnitValue, false, runtime.NewMismatchDataType("char", st.engine.typeName(cur), pos)
			}
			chars[i] = c
			return runtime.UnitValue, true, target.Set(runtime.String(string(chars)))
		}
		return st.descend(fr, &cur, true, links, args, op)
	}

	return st.walkIndexer(fr, target, readOnly, l, idx, links, args, op)
}

// walkIndexer indexes host types through their registered indexers.
func (st *evalState) walkIndexer(fr *frame, target *runtime.Value, readOnly bool, l *ast.IndexLink, idx runtime.Value, links []ast.ChainLink, args []linkArgs, op *chainAssign) (runtime.Value, bool, error) {
	pos := l.Position()
	last := len(links) == 1
	getHash := runtime.CalcFnHash(nil, ast.IndexerGetFnName, 2)
	setHash := runtime.CalcFnHash(nil, ast.IndexerSetFnName, 3)

	get := func() (runtime.Value, error) {
		r := st.resolveNativeFn(getHash, []runtime.TypeID{target.TypeID(), idx.TypeID()})
		if r == nil || r.info.Script != nil {
			return runtime.UnitValue, st.badIndex(*target, idx, pos)
		}
		if err := st.track(pos); err != nil {
			return runtime.UnitValue, err
		}
		i := idx
		return st.callNative(fr, r.info, ast.IndexerGetFnName, []*runtime.Value{target, &i}, pos)
	}
	set := func(v runtime.Value) error {
		r := st.resolveNativeFn(setHash, []runtime.TypeID{target.TypeID(), idx.TypeID(), v.TypeID()})
		if r == nil || r.info.Script != nil {
			return st.badIndex(*target, idx, pos)
		}
		if err := st.track(pos); err != nil {
			return err
		}
		i := idx
		_, err := st.callNative(fr, r.info, ast.IndexerSetFnName, []*runtime.Value{target, &i, &v}, pos)
		return err
	}

	if last && op != nil {
		value := op.value
		if op.stmt.IsOpAssignment() {
			cur, err := get()
			if err != nil {
				return runtime.UnitValue, false, err
			}
			if err := st.applyOpAssign(fr, op.stmt, &cur, op.value, pos); err != nil {
				return runtime.UnitValue, false, err
			}
			value = cur
		}
		return runtime.UnitValue, true, set(value)
	}
	cur, err := get()
	if err != nil || last {
		return cur, false, err
	}
	res, childChanged, err := st.walkChain(fr, &cur, readOnly, links[1:], args[1:], op)
	if err != nil || !childChanged {
		return res, false, err
	}
	if readOnly {
		return runtime.UnitValue, false, runtime.NewAssignmentToConstant("", pos)
	}
	return res, true, set(cur)
}

func (st *evalState) badIndex(target, idx runtime.Value, pos ast.Position) error {
	return runtime.NewEvalError(runtime.ErrIndexingType).
		WithName(st.engine.typeName(target) + " [" + st.engine.typeName(idx) + "]").At(pos)
}

// callMethod calls `target.name(args)`. Function pointers answer `call`
// and `curry`; a map property holding a function pointer is called with
// the map as `this`; script functions see target as `this`; host
// functions receive target as their first argument.
func (st *evalState) callMethod(fr *frame, target *runtime.Value, readOnly bool, l *ast.MethodLink, args []runtime.Value) (runtime.Value, bool, error) {
	call := l.Call
	pos := call.Position()
	name := call.Name

	if fp, ok := target.AsFnPtr(); ok {
		switch name {
		case "call":
			v, err := st.callFnPtr(fr, fp, nil, args, pos)
			return v, false, err
		case "curry":
			return runtime.NewFnPtrValue(fp.WithCurry(args...)), false, nil
		}
	}

	if m, ok := target.MapRef(); ok {
		if prop, ok := m.Get(name); ok {
			if fp, ok := prop.AsFnPtr(); ok {
				this := target
				if readOnly {
					c := target.Clone().WithAccess(runtime.ReadOnly)
					this = &c
				}
				v, err := st.callFnPtr(fr, fp, this, args, pos)
				return v, !readOnly, err
			}
		}
	}

	if !call.NativeOnly {
		if r := st.resolveScriptFn(fr, runtime.CalcFnHash(nil, name, len(args))); r != nil {
			this := target
			if readOnly {
				c := target.Clone().WithAccess(runtime.ReadOnly)
				this = &c
			}
			v, err := st.callScriptFn(r.info.Script, []*module.Module{r.lib}, this, args, pos)
			return v, !readOnly, err
		}
	}

	types := make([]runtime.TypeID, 0, len(args)+1)
	types = append(types, target.TypeID())
	types = append(types, argTypes(args)...)
	r := st.resolveNativeFn(call.Hash, types)
	if r == nil {
		all := append([]runtime.Value{*target}, args...)
		return runtime.UnitValue, false, runtime.NewFunctionNotFound(st.signature(name, all), pos)
	}
	if r.info.Script != nil {
		all := append([]runtime.Value{target.Clone()}, args...)
		v, err := st.callScriptFn(r.info.Script, []*module.Module{r.lib}, nil, all, pos)
		return v, false, err
	}
	if readOnly && !r.info.Pure {
		return runtime.UnitValue, false, runtime.NewEvalError(runtime.ErrNonPureMethodCallOnConstant).WithName(name).At(pos)
	}
	if err := st.track(pos); err != nil {
		return runtime.UnitValue, false, err
	}
	ptrs := make([]*runtime.Value, 0, len(args)+1)
	ptrs = append(ptrs, target)
	for i := range args {
		ptrs = append(ptrs, &args[i])
	}
	v, err := st.callNative(fr, r.info, name, ptrs, pos)
	return v, !r.info.Pure, err
}

// normalizeIndex maps a possibly negative index (counting from the end)
// onto [0, length).
func normalizeIndex(kind runtime.ErrorKind, length int, idx int64, pos ast.Position) (int, error) {
	i := idx
	if i < 0 {
		i += int64(length)
	}
	if i < 0 || i >= int64(length) {
		return 0, runtime.NewBounds(kind, int64(length), idx, pos)
	}
	return int(i), nil
}
