package lower

import (
	"fmt"

	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/compileerrors"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
)

func (l *Lowerer) lowerExpr(e ast.Expr) (tac.Operand, error) {
	switch x := e.(type) {
	case *ast.Literal:
		return l.lowerLiteral(x), nil
	case *ast.Identifier:
		return l.lowerIdentifier(x)
	case *ast.ThisExpression:
		return l.lowerThis(), nil
	case *ast.SuperExpression:
		return &tac.Variable{Name: "base", Typ: objectType()}, nil
	case *ast.BinaryExpression:
		return l.lowerBinary(x)
	case *ast.UnaryExpression:
		return l.lowerUnary(x)
	case *ast.UpdateExpression:
		return l.lowerUpdate(x)
	case *ast.ConditionalExpression:
		return l.lowerConditional(x)
	case *ast.NullCoalescingExpression:
		return l.lowerNullCoalescing(x)
	case *ast.TemplateExpression:
		return l.lowerTemplate(x)
	case *ast.ArrayLiteralExpression:
		return l.lowerArrayLiteral(x)
	case *ast.ObjectLiteralExpression:
		return l.lowerObjectLiteral(x)
	case *ast.PropertyAccessExpression:
		return l.lowerPropertyAccess(x)
	case *ast.ArrayAccessExpression:
		return l.lowerArrayAccess(x)
	case *ast.CallExpression:
		return l.lowerCall(x)
	case *ast.AsExpression:
		return l.lowerAs(x)
	case *ast.AssignmentExpression:
		return l.lowerAssignment(x)
	case *ast.DeleteExpression:
		return l.lowerDelete(x)
	case *ast.OptionalChainingExpression:
		return l.lowerOptionalChaining(x)
	case *ast.TypeofExpression:
		return l.lowerTypeof(x)
	case *ast.NameofExpression:
		return l.lowerNameof(x)
	case *ast.InstanceOfExpression:
		return l.lowerInstanceOf(x)
	case *ast.FunctionExpression:
		return nil, &compileerrors.UnsupportedFeatureError{
			Feature: "bare function expression outside a recognised callback position", Loc: l.loc(),
		}
	default:
		return nil, &compileerrors.MalformedASTError{Reason: "unrecognised expression node", Loc: l.loc()}
	}
}

func (l *Lowerer) lowerLiteral(lit *ast.Literal) tac.Operand {
	switch lit.Kind {
	case ast.LiteralNull:
		return tac.NullConstant()
	case ast.LiteralBool:
		return tac.BoolConstant(lit.Bool)
	case ast.LiteralNumber:
		return tac.NumberConstant(lit.Num)
	case ast.LiteralBigInt:
		return tac.BigIntConstant(lit.Big)
	case ast.LiteralString:
		return tac.StringConstant(lit.Str)
	default:
		return tac.NullConstant()
	}
}

func (l *Lowerer) lowerIdentifier(id *ast.Identifier) (tac.Operand, error) {
	if v, ok := l.symtab.Resolve(id.Name); ok {
		return v, nil
	}
	if l.currentClass != nil {
		if _, ok := l.globalVars[classFieldKey(l.currentClass.Name, id.Name)]; ok {
			return l.globalVars[classFieldKey(l.currentClass.Name, id.Name)], nil
		}
	}
	if v, ok := recognisedHostGlobal(id.Name); ok {
		return v, nil
	}
	return nil, &compileerrors.UndefinedSymbolError{Name: id.Name, Loc: l.loc()}
}

// recognisedHostGlobal resolves a small set of host globals the lowerer
// accepts without a symbol-table entry (e.g. Mathf.PI-style constants
// surfaced as bare identifiers is out of scope; this only covers
// literal host sentinels referenced directly).
func recognisedHostGlobal(name string) (tac.Operand, bool) {
	switch name {
	case "null", "undefined":
		return tac.NullConstant(), true
	case "true":
		return tac.BoolConstant(true), true
	case "false":
		return tac.BoolConstant(false), true
	}
	return nil, false
}

func (l *Lowerer) lowerThis() tac.Operand {
	if n := len(l.thisOverrideStack); n > 0 {
		return l.thisOverrideStack[n-1]
	}
	className := ""
	if l.currentClass != nil {
		className = l.currentClass.Name
	}
	return &tac.Variable{Name: "this", Typ: types.UserClass(className)}
}

var binaryOpSymbols = map[ast.BinaryOperator]string{
	ast.OpAdd: "+", ast.OpSub: "-", ast.OpMul: "*", ast.OpDiv: "/", ast.OpMod: "%",
	ast.OpEq: "==", ast.OpNe: "!=", ast.OpLt: "<", ast.OpLe: "<=", ast.OpGt: ">", ast.OpGe: ">=",
	ast.OpAnd: "&&", ast.OpOr: "||",
}

func (l *Lowerer) lowerBinary(b *ast.BinaryExpression) (tac.Operand, error) {
	left, err := l.lowerExpr(b.Left)
	if err != nil {
		return nil, err
	}
	right, err := l.lowerExpr(b.Right)
	if err != nil {
		return nil, err
	}
	op := binaryOpSymbols[b.Operator]
	dest := l.newTemp(binaryResultType(b.Operator, left.Type(), right.Type()))
	l.emit(&tac.BinaryOp{Dest: dest, Op: op, Left: left, Right: right})
	return dest, nil
}

// binaryResultType follows the dominant-operand rule (§3.1): comparisons
// and logical ops always yield Boolean; arithmetic follows the wider
// operand's type, defaulting to Single (surface `number`).
func binaryResultType(op ast.BinaryOperator, l, r *types.Symbol) *types.Symbol {
	switch op {
	case ast.OpEq, ast.OpNe, ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe, ast.OpAnd, ast.OpOr:
		return types.Prim(types.Boolean)
	}
	if l.Kind == types.KindPrimitive && r.Kind == types.KindPrimitive {
		if l.Primitive == types.Int64 || r.Primitive == types.Int64 {
			return types.Prim(types.Int64)
		}
		if l.Primitive == types.Double || r.Primitive == types.Double {
			return types.Prim(types.Double)
		}
	}
	return types.Prim(types.Single)
}

var unaryOpSymbols = map[ast.UnaryOperator]string{
	ast.UnaryNot: "!", ast.UnaryNeg: "-", ast.UnaryPlus: "+",
}

func (l *Lowerer) lowerUnary(u *ast.UnaryExpression) (tac.Operand, error) {
	operand, err := l.lowerExpr(u.Operand)
	if err != nil {
		return nil, err
	}
	resultType := operand.Type()
	if u.Operator == ast.UnaryNot {
		resultType = types.Prim(types.Boolean)
	}
	dest := l.newTemp(resultType)
	l.emit(&tac.UnaryOp{Dest: dest, Op: unaryOpSymbols[u.Operator], Operand: operand})
	return dest, nil
}

func (l *Lowerer) lowerUpdate(u *ast.UpdateExpression) (tac.Operand, error) {
	target, err := l.lowerExpr(u.Operand)
	if err != nil {
		return nil, err
	}
	destAssignable, ok := target.(*tac.Variable)
	if !ok {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "increment/decrement of a non-variable target", Loc: l.loc()}
	}
	op := "+"
	if u.Op == ast.UpdateDecrement {
		op = "-"
	}
	if u.Prefix {
		l.emit(&tac.BinaryOp{Dest: destAssignable, Op: op, Left: destAssignable, Right: tacIntOne()})
		return destAssignable, nil
	}
	old := l.newTemp(destAssignable.Typ)
	l.emit(&tac.Assignment{Dest: old, Src: destAssignable})
	l.emit(&tac.BinaryOp{Dest: destAssignable, Op: op, Left: destAssignable, Right: tacIntOne()})
	return old, nil
}

func (l *Lowerer) lowerConditional(c *ast.ConditionalExpression) (tac.Operand, error) {
	cond, err := l.lowerExpr(c.Condition)
	if err != nil {
		return nil, err
	}
	thenVal, err := l.lowerExpr(c.Then)
	if err != nil {
		return nil, err
	}
	elseLabel := l.newLabel("cond_else")
	endLabel := l.newLabel("cond_end")
	dest := l.newTemp(thenVal.Type())
	l.emit(&tac.ConditionalJump{Cond: cond, Target: elseLabel})
	l.emit(&tac.Assignment{Dest: dest, Src: thenVal})
	l.emit(&tac.UnconditionalJump{Target: endLabel})
	l.emit(&tac.LabelInstr{Label: elseLabel})
	elseVal, err := l.lowerExpr(c.Else)
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Assignment{Dest: dest, Src: elseVal})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return dest, nil
}

// lowerNullCoalescing expands `a ?? b` into a null check; result type
// inherits from the left operand (§4.D Null coalescing).
func (l *Lowerer) lowerNullCoalescing(n *ast.NullCoalescingExpression) (tac.Operand, error) {
	left, err := l.lowerExpr(n.Left)
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(left.Type())
	l.emit(&tac.Assignment{Dest: dest, Src: left})

	isNull := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: isNull, Op: "==", Left: left, Right: tac.NullConstant()})
	endLabel := l.newLabel("nullcoalesce_end")
	// ifFalse (left == null) goto end: a non-null left keeps its value.
	l.emit(&tac.ConditionalJump{Cond: isNull, Target: endLabel})

	right, err := l.lowerExpr(n.Right)
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Assignment{Dest: dest, Src: right})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return dest, nil
}

// lowerOptionalChaining expands `a?.b` / `a?.b()` into a null check,
// two-branch assign/call, join label (§4.D Optional chaining). Null
// assignment uses the Object-typed null constant.
func (l *Lowerer) lowerOptionalChaining(o *ast.OptionalChainingExpression) (tac.Operand, error) {
	object, err := l.lowerExpr(o.Object)
	if err != nil {
		return nil, err
	}
	notNull := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: notNull, Op: "!=", Left: object, Right: tac.NullConstant()})

	nullLabel := l.newLabel("optchain_null")
	endLabel := l.newLabel("optchain_end")
	dest := l.newTemp(objectType())
	l.emit(&tac.ConditionalJump{Cond: notNull, Target: nullLabel})

	var val tac.Operand
	if o.Call != nil {
		v, err := l.lowerCallOn(object, o.Call)
		if err != nil {
			return nil, err
		}
		val = v
	} else {
		sig, err := l.resolver.RequireExtern(object.Type().String(), o.Member, extern.Getter, nil)
		if err != nil {
			return nil, err
		}
		v := l.newTemp(objectType())
		l.emit(&tac.PropertyGet{Dest: v, Receiver: object, Property: o.Member, Signature: sig})
		val = v
	}
	l.emit(&tac.Assignment{Dest: dest, Src: val})
	l.emit(&tac.UnconditionalJump{Target: endLabel})
	l.emit(&tac.LabelInstr{Label: nullLabel})
	l.emit(&tac.Assignment{Dest: dest, Src: tac.NullConstant()})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return dest, nil
}

func (l *Lowerer) lowerArrayLiteral(a *ast.ArrayLiteralExpression) (tac.Operand, error) {
	elemSym := l.mapType(a.ElementType)
	arrSym := types.ArrayOf(elemSym)
	dest := l.newTemp(arrSym)
	ctorSig, err := l.resolver.RequireExtern(types.MapCatalogType(arrSym), "ctor", extern.Ctor, []string{"Int32"})
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Call{Dest: dest, Signature: ctorSig, IsExtern: true, Args: []tac.Operand{
		&tac.Constant{Kind: tac.ConstNumber, Number: float64(len(a.Elements)), Typ: intType()},
	}})
	for i, elemExpr := range a.Elements {
		val, err := l.lowerExpr(elemExpr)
		if err != nil {
			return nil, err
		}
		l.emit(&tac.ArrayAssignment{Array: dest, Index: &tac.Constant{Kind: tac.ConstNumber, Number: float64(i), Typ: intType()}, Value: val})
	}
	return dest, nil
}

func (l *Lowerer) lowerObjectLiteral(o *ast.ObjectLiteralExpression) (tac.Operand, error) {
	dictSym := types.CollectionOf(types.Prim(types.Object), types.Prim(types.Object))
	dest := l.newTemp(dictSym)
	ctorSig, err := l.resolver.RequireExtern("DataDictionary", "ctor", extern.Ctor, nil)
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Call{Dest: dest, Signature: ctorSig, IsExtern: true})
	setSig, err := l.resolver.RequireExtern("DataDictionary", "SetValue", extern.Method, []string{"DataToken", "DataToken"})
	if err != nil {
		return nil, err
	}
	for _, f := range o.Fields {
		val, err := l.lowerExpr(f.Value)
		if err != nil {
			return nil, err
		}
		key := tac.StringConstant(f.Key)
		l.emit(&tac.MethodCall{Receiver: dest, Signature: setSig, Args: []tac.Operand{key, val}})
	}
	return dest, nil
}

// lowerPropertyAccess routes `this.<field>` and `<inst>.<field>` for a
// known class property directly onto the backing data-section
// variable; everything else becomes a catalogued getter call.
func (l *Lowerer) lowerPropertyAccess(p *ast.PropertyAccessExpression) (tac.Operand, error) {
	if backed, ok := l.resolveClassField(p.Object, p.Field); ok {
		return backed, nil
	}
	object, err := l.lowerExpr(p.Object)
	if err != nil {
		return nil, err
	}
	sig, err := l.resolver.RequireExtern(object.Type().String(), p.Field, extern.Getter, nil)
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(objectType())
	l.emit(&tac.PropertyGet{Dest: dest, Receiver: object, Property: p.Field, Signature: sig})
	return dest, nil
}

// resolveClassField recognises `this.<field>` (and, when the lowerer is
// mid-inlining an instance, `<inlinedInstance>.<field>`) as a direct
// reference to the class's data-section-backed variable rather than a
// catalogued property get (§4.D Inline instance map).
func (l *Lowerer) resolveClassField(objExpr ast.Expr, field string) (tac.Operand, bool) {
	if _, ok := objExpr.(*ast.ThisExpression); ok && l.currentClass != nil {
		if v, ok := l.globalVars[classFieldKey(l.currentClass.Name, field)]; ok {
			return v, true
		}
	}
	if id, ok := objExpr.(*ast.Identifier); ok {
		if prefix, ok := l.inlineInstances[id.Name]; ok {
			return &tac.Variable{Name: prefix + "_" + field, Typ: objectType()}, true
		}
	}
	return nil, false
}

func (l *Lowerer) lowerArrayAccess(a *ast.ArrayAccessExpression) (tac.Operand, error) {
	arr, err := l.lowerExpr(a.Array)
	if err != nil {
		return nil, err
	}
	idx, err := l.lowerExpr(a.Index)
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(elementType(arr.Type()))
	l.emit(&tac.ArrayAccess{Dest: dest, Array: arr, Index: idx})
	return dest, nil
}

func (l *Lowerer) lowerAs(a *ast.AsExpression) (tac.Operand, error) {
	src, err := l.lowerExpr(a.Operand)
	if err != nil {
		return nil, err
	}
	targetSym := l.mapType(a.TargetType)
	if types.Equal(src.Type(), targetSym) {
		return src, nil
	}
	dest := l.newTemp(targetSym)
	l.emit(&tac.Cast{Dest: dest, Src: src, TargetUdonType: types.MapCatalogType(targetSym)})
	return dest, nil
}

func (l *Lowerer) lowerTypeof(t *ast.TypeofExpression) (tac.Operand, error) {
	sig, err := l.resolver.RequireExtern("SystemType", "GetType", extern.Method, []string{"String"})
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(types.Extern("SystemType"))
	l.emit(&tac.Call{Dest: dest, Signature: sig, IsExtern: true, Args: []tac.Operand{
		&tac.Constant{Kind: tac.ConstTypeName, Str: t.TypeName, Typ: stringType()},
	}})
	return dest, nil
}

func (l *Lowerer) lowerNameof(n *ast.NameofExpression) (tac.Operand, error) {
	switch x := n.Target.(type) {
	case *ast.Identifier:
		return tac.StringConstant(x.Name), nil
	case *ast.PropertyAccessExpression:
		return tac.StringConstant(x.Field), nil
	default:
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "nameof on a non-identifier target", Loc: l.loc()}
	}
}

func (l *Lowerer) lowerAssignment(a *ast.AssignmentExpression) (tac.Operand, error) {
	val, err := l.lowerExpr(a.Value)
	if err != nil {
		return nil, err
	}
	switch target := a.Target.(type) {
	case *ast.Identifier:
		dest, err := l.lowerIdentifier(target)
		if err != nil {
			return nil, err
		}
		v, ok := dest.(*tac.Variable)
		if !ok {
			return nil, &compileerrors.MalformedASTError{Reason: "assignment to a non-variable identifier", Loc: l.loc()}
		}
		l.emit(&tac.Copy{Dest: v, Src: val})
		if err := l.emitFieldChangeCallbackIfApplicable(v, target.Name); err != nil {
			return nil, err
		}
		return v, nil
	case *ast.PropertyAccessExpression:
		if backed, ok := l.resolveClassField(target.Object, target.Field); ok {
			v := backed.(*tac.Variable)
			l.emit(&tac.Copy{Dest: v, Src: val})
			if err := l.emitFieldChangeCallbackIfApplicable(v, target.Field); err != nil {
				return nil, err
			}
			return v, nil
		}
		object, err := l.lowerExpr(target.Object)
		if err != nil {
			return nil, err
		}
		sig, err := l.resolver.RequireExtern(object.Type().String(), target.Field, extern.Setter, []string{val.Type().String()})
		if err != nil {
			return nil, err
		}
		l.emit(&tac.PropertySet{Receiver: object, Property: target.Field, Value: val, Signature: sig})
		return val, nil
	case *ast.ArrayAccessExpression:
		arr, err := l.lowerExpr(target.Array)
		if err != nil {
			return nil, err
		}
		idx, err := l.lowerExpr(target.Index)
		if err != nil {
			return nil, err
		}
		l.emit(&tac.ArrayAssignment{Array: arr, Index: idx, Value: val})
		return val, nil
	default:
		return nil, &compileerrors.MalformedASTError{Reason: "unsupported assignment target", Loc: l.loc()}
	}
}

// emitFieldChangeCallbackIfApplicable implements §4.D "Field-change
// callbacks": if propName is declared with a callback on the current
// class, emit a call to that method after the assignment.
func (l *Lowerer) emitFieldChangeCallbackIfApplicable(v *tac.Variable, propName string) error {
	if l.currentClass == nil {
		return nil
	}
	for _, p := range l.currentClass.Properties {
		if p.Name == propName && p.FieldChangeCallback != "" {
			sig := l.currentClass.Name + "_" + p.FieldChangeCallback
			l.emit(&tac.Call{Signature: sig, IsExtern: false})
			return nil
		}
	}
	return nil
}

// lowerDelete implements §4.D delete rules: DataDictionary targets emit
// Remove(keyToken); UdonBehaviour property targets emit
// SetProgramVariable(name, null); everything else emits a null
// PropertySet/ArrayAssignment. Always yields true.
func (l *Lowerer) lowerDelete(d *ast.DeleteExpression) (tac.Operand, error) {
	switch target := d.Target.(type) {
	case *ast.ArrayAccessExpression:
		arr, err := l.lowerExpr(target.Array)
		if err != nil {
			return nil, err
		}
		if arr.Type().Kind == types.KindCollection {
			idx, err := l.lowerExpr(target.Index)
			if err != nil {
				return nil, err
			}
			sig, err := l.resolver.RequireExtern("DataDictionary", "Remove", extern.Method, []string{"DataToken"})
			if err != nil {
				return nil, err
			}
			l.emit(&tac.MethodCall{Receiver: arr, Signature: sig, Args: []tac.Operand{idx}})
			return trueConst(), nil
		}
		idx, err := l.lowerExpr(target.Index)
		if err != nil {
			return nil, err
		}
		l.emit(&tac.ArrayAssignment{Array: arr, Index: idx, Value: tac.NullConstant()})
		return trueConst(), nil
	case *ast.PropertyAccessExpression:
		if backed, ok := l.resolveClassField(target.Object, target.Field); ok {
			v := backed.(*tac.Variable)
			l.emit(&tac.Copy{Dest: v, Src: tac.NullConstant()})
			return trueConst(), nil
		}
		object, err := l.lowerExpr(target.Object)
		if err != nil {
			return nil, err
		}
		if isUdonBehaviourType(object.Type()) {
			sig, err := l.resolver.RequireExtern("UdonBehaviour", "SetProgramVariable", extern.Method, []string{"String", "Object"})
			if err != nil {
				return nil, err
			}
			l.emit(&tac.MethodCall{Receiver: object, Signature: sig, Args: []tac.Operand{tac.StringConstant(target.Field), tac.NullConstant()}})
			return trueConst(), nil
		}
		sig, err := l.resolver.RequireExtern(object.Type().String(), target.Field, extern.Setter, []string{"Object"})
		if err != nil {
			return nil, err
		}
		l.emit(&tac.PropertySet{Receiver: object, Property: target.Field, Value: tac.NullConstant(), Signature: sig})
		return trueConst(), nil
	default:
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "delete on an unsupported target", Loc: l.loc()}
	}
}

func (l *Lowerer) lowerCallOn(receiver tac.Operand, c *ast.CallExpression) (tac.Operand, error) {
	return l.lowerCallWithReceiver(receiver, c)
}

func exprDescription(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Identifier:
		return x.Name
	case *ast.PropertyAccessExpression:
		return fmt.Sprintf("%s.%s", exprDescription(x.Object), x.Field)
	default:
		return "<expr>"
	}
}
