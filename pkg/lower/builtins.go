package lower

import (
	"math"

	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/compileerrors"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
)

// lowerGlobalBuiltinCall handles the no-receiver built-in forms of
// §4.D: Number/BigInt/parseInt/parseFloat/Array/Set/Map/setImmediate.
// handled is false when c.Callee names none of these, so the caller
// falls through to user-function resolution.
func (l *Lowerer) lowerGlobalBuiltinCall(c *ast.CallExpression) (tac.Operand, bool, error) {
	switch c.Callee {
	case "Number":
		v, err := l.lowerNumberCast(c)
		return v, true, err
	case "BigInt":
		v, err := l.lowerBigIntCast(c)
		return v, true, err
	case "parseInt":
		v, err := l.lowerParseInt(c)
		return v, true, err
	case "parseFloat":
		v, err := l.lowerParseFloat(c)
		return v, true, err
	case "Array":
		v, err := l.lowerArrayConstructor(c)
		return v, true, err
	case "Set":
		v, err := l.lowerSetOrMapConstructor(c, true)
		return v, true, err
	case "Map":
		v, err := l.lowerSetOrMapConstructor(c, false)
		return v, true, err
	case "setImmediate":
		v, err := l.lowerSetImmediate(c)
		return v, true, err
	}
	return nil, false, nil
}

// lowerNumberCast: Number(x) emits a cast to Single; already-Single
// operands pass through unchanged (§4.D).
func (l *Lowerer) lowerNumberCast(c *ast.CallExpression) (tac.Operand, error) {
	if len(c.Args) != 1 {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "Number()", Detail: "expected exactly one argument", Loc: l.loc()}
	}
	src, err := l.lowerExpr(c.Args[0])
	if err != nil {
		return nil, err
	}
	if src.Type().Kind == types.KindPrimitive && src.Type().Primitive == types.Single {
		return src, nil
	}
	dest := l.newTemp(singleType())
	l.emit(&tac.Cast{Dest: dest, Src: src, TargetUdonType: "SystemSingle"})
	return dest, nil
}

// lowerBigIntCast: BigInt(x) emits a cast to Int64; already-64-bit
// operands pass through (§4.D).
func (l *Lowerer) lowerBigIntCast(c *ast.CallExpression) (tac.Operand, error) {
	if len(c.Args) != 1 {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "BigInt()", Detail: "expected exactly one argument", Loc: l.loc()}
	}
	src, err := l.lowerExpr(c.Args[0])
	if err != nil {
		return nil, err
	}
	if src.Type().Kind == types.KindPrimitive && (src.Type().Primitive == types.Int64 || src.Type().Primitive == types.UInt64) {
		return src, nil
	}
	dest := l.newTemp(types.Prim(types.Int64))
	l.emit(&tac.Cast{Dest: dest, Src: src, TargetUdonType: "SystemInt64"})
	return dest, nil
}

// lowerParseInt: only radix 10 is supported; others fail with
// UnsupportedFeature. Zero-arg form returns constant 0 (§4.D).
func (l *Lowerer) lowerParseInt(c *ast.CallExpression) (tac.Operand, error) {
	if len(c.Args) == 0 {
		return tacIntZero(), nil
	}
	if len(c.Args) >= 2 {
		radixLit, ok := c.Args[1].(*ast.Literal)
		if !ok || radixLit.Kind != ast.LiteralNumber || radixLit.Num != 10 {
			return nil, &compileerrors.UnsupportedFeatureError{Feature: "parseInt", Detail: "only radix 10 is supported", Loc: l.loc()}
		}
	}
	src, err := l.lowerExpr(c.Args[0])
	if err != nil {
		return nil, err
	}
	sig, err := l.resolver.RequireExtern("SystemInt32", "Parse", extern.Method, []string{"SystemString"})
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(intType())
	l.emit(&tac.Call{Dest: dest, Signature: sig, IsExtern: true, Args: []tac.Operand{src}})
	return dest, nil
}

// lowerParseFloat: zero-arg form returns the NaN constant (§4.D).
func (l *Lowerer) lowerParseFloat(c *ast.CallExpression) (tac.Operand, error) {
	if len(c.Args) == 0 {
		return tac.NumberConstant(nanValue()), nil
	}
	src, err := l.lowerExpr(c.Args[0])
	if err != nil {
		return nil, err
	}
	sig, err := l.resolver.RequireExtern("SystemSingle", "Parse", extern.Method, []string{"SystemString"})
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(singleType())
	l.emit(&tac.Call{Dest: dest, Signature: sig, IsExtern: true, Args: []tac.Operand{src}})
	return dest, nil
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

// lowerArrayConstructor: Array(n)/new Array(n) produces an empty
// DataList of the typed element; a non-constant float argument gets a
// runtime floor(x)==x check deciding between "empty list" and
// "single-element list of that value" (§4.D).
func (l *Lowerer) lowerArrayConstructor(c *ast.CallExpression) (tac.Operand, error) {
	if len(c.Args) != 1 {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "Array()", Detail: "expected exactly one argument", Loc: l.loc()}
	}
	elemType := types.Prim(types.Object)
	arrSym := types.DataListOf(elemType)
	dest := l.newTemp(arrSym)
	ctorSig, err := l.resolver.RequireExtern("DataList", "ctor", extern.Ctor, nil)
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Call{Dest: dest, Signature: ctorSig, IsExtern: true})

	if lit, ok := c.Args[0].(*ast.Literal); ok && lit.Kind == ast.LiteralNumber {
		// Constant-sized form: nothing more to emit — Udon DataLists
		// grow on demand, so an empty list is the faithful lowering.
		return dest, nil
	}

	n, err := l.lowerExpr(c.Args[0])
	if err != nil {
		return nil, err
	}
	floorSig, err := l.resolver.RequireExtern("UnityEngineMathf", "Floor", extern.Method, []string{"SystemSingle"})
	if err != nil {
		return nil, err
	}
	floored := l.newTemp(singleType())
	l.emit(&tac.Call{Dest: floored, Signature: floorSig, IsExtern: true, Pure: true, Args: []tac.Operand{n}})
	isWhole := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: isWhole, Op: "==", Left: floored, Right: n})

	singleElemLabel := l.newLabel("array_single_elem")
	endLabel := l.newLabel("array_ctor_end")
	l.emit(&tac.ConditionalJump{Cond: isWhole, Target: singleElemLabel})
	l.emit(&tac.UnconditionalJump{Target: endLabel})
	l.emit(&tac.LabelInstr{Label: singleElemLabel})
	addSig, err := l.resolver.RequireExtern("DataList", "Add", extern.Method, []string{"DataToken"})
	if err != nil {
		return nil, err
	}
	l.emit(&tac.MethodCall{Receiver: dest, Signature: addSig, Args: []tac.Operand{n}})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return dest, nil
}

// lowerSetOrMapConstructor: Set/Map constructors produce a
// DataDictionary; if an iterable is supplied, a lowered loop walks it
// and populates via SetValue(keyToken, valueToken) (§4.D).
func (l *Lowerer) lowerSetOrMapConstructor(c *ast.CallExpression, isSet bool) (tac.Operand, error) {
	dictSym := types.CollectionOf(types.Prim(types.Object), types.Prim(types.Object))
	dest := l.newTemp(dictSym)
	ctorSig, err := l.resolver.RequireExtern("DataDictionary", "ctor", extern.Ctor, nil)
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Call{Dest: dest, Signature: ctorSig, IsExtern: true})
	if len(c.Args) == 0 {
		return dest, nil
	}

	iterable, err := l.lowerExpr(c.Args[0])
	if err != nil {
		return nil, err
	}
	setSig, err := l.resolver.RequireExtern("DataDictionary", "SetValue", extern.Method, []string{"DataToken", "DataToken"})
	if err != nil {
		return nil, err
	}

	idx := l.newTemp(intType())
	l.emit(&tac.Assignment{Dest: idx, Src: tacIntZero()})
	countSig, err := l.resolver.RequireExtern(iterable.Type().String(), "Count", extern.Getter, nil)
	if err != nil {
		return nil, err
	}
	count := l.newTemp(intType())
	l.emit(&tac.PropertyGet{Dest: count, Receiver: iterable, Property: "Count", Signature: countSig})

	startLabel := l.newLabel("ctor_populate_start")
	endLabel := l.newLabel("ctor_populate_end")
	l.emit(&tac.LabelInstr{Label: startLabel})
	cmp := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: cmp, Op: "<", Left: idx, Right: count})
	l.emit(&tac.ConditionalJump{Cond: cmp, Target: endLabel})

	elem := l.newTemp(objectType())
	l.emit(&tac.ArrayAccess{Dest: elem, Array: iterable, Index: idx})
	if isSet {
		l.emit(&tac.MethodCall{Receiver: dest, Signature: setSig, Args: []tac.Operand{elem, elem}})
	} else {
		l.emit(&tac.MethodCall{Receiver: dest, Signature: setSig, Args: []tac.Operand{idx, elem}})
	}
	l.emit(&tac.BinaryOp{Dest: idx, Op: "+", Left: idx, Right: tacIntOne()})
	l.emit(&tac.UnconditionalJump{Target: startLabel})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return dest, nil
}

// lowerSetImmediate: supported only when cb is a zero-argument inline
// call to this.<method>(); lowered to
// SendCustomEventDelayedFrames(this, "method", 1). Anything else fails
// with UnsupportedFeature (§4.D).
func (l *Lowerer) lowerSetImmediate(c *ast.CallExpression) (tac.Operand, error) {
	if len(c.Args) != 1 {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "setImmediate", Detail: "expected exactly one callback argument", Loc: l.loc()}
	}
	call, ok := c.Args[0].(*ast.CallExpression)
	if !ok || len(call.Args) != 0 {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "setImmediate", Detail: "callback must be a zero-argument this.<method>() call", Loc: l.loc()}
	}
	if _, ok := call.Receiver.(*ast.ThisExpression); !ok {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "setImmediate", Detail: "callback must be a zero-argument this.<method>() call", Loc: l.loc()}
	}
	sig, err := l.resolver.RequireExtern("UdonBehaviour", "SendCustomEventDelayedFrames", extern.Method, []string{"String", "Int32"})
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Call{Signature: sig, IsExtern: true, Args: []tac.Operand{
		l.lowerThis(),
		tac.StringConstant(call.Callee),
		&tac.Constant{Kind: tac.ConstNumber, Number: 1, Typ: intType()},
	}})
	return tac.NullConstant(), nil
}

// lowerNamespacedBuiltinCall handles the receiver-qualified pseudo-
// namespaces Math/console/Date/Object (§4.D). handled is false for any
// other receiver identifier, so the caller falls through to treating it
// as a real expression.
func (l *Lowerer) lowerNamespacedBuiltinCall(receiverName string, c *ast.CallExpression) (tac.Operand, bool, error) {
	switch receiverName {
	case "Math":
		v, err := l.lowerMathCall(c)
		return v, true, err
	case "console":
		v, err := l.lowerConsoleCall(c)
		return v, true, err
	case "Date":
		if c.Callee == "now" {
			return tacIntZero(), true, nil
		}
	case "Object":
		switch c.Callee {
		case "keys", "values", "entries":
			v, err := l.lowerObjectReflection(c)
			return v, true, err
		}
	case "Number":
		if c.Callee == "isFinite" {
			v, err := l.lowerNumberIsFinite(c)
			return v, true, err
		}
	}
	return nil, false, nil
}

// lowerNumberIsFinite implements the Number.isFinite Open Question
// decision: config.StrictIsFinite selects between the strict form
// (self-equal and neither +Inf nor -Inf) and the loose self-equality-only
// form, which also rejects NaN but accepts +/-Inf (§4.D, §14).
func (l *Lowerer) lowerNumberIsFinite(c *ast.CallExpression) (tac.Operand, error) {
	if len(c.Args) != 1 {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "Number.isFinite", Detail: "expected exactly one argument", Loc: l.loc()}
	}
	x, err := l.lowerExpr(c.Args[0])
	if err != nil {
		return nil, err
	}

	selfEqual := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: selfEqual, Op: "==", Left: x, Right: x})
	if !l.cfg.StrictIsFinite {
		return selfEqual, nil
	}

	notPosInf := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: notPosInf, Op: "!=", Left: x, Right: tac.NumberConstant(math.Inf(1))})
	notNegInf := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: notNegInf, Op: "!=", Left: x, Right: tac.NumberConstant(math.Inf(-1))})

	step := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: step, Op: "&&", Left: selfEqual, Right: notPosInf})
	dest := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: dest, Op: "&&", Left: step, Right: notNegInf})
	return dest, nil
}

var mathFoldWhitelist = map[string]bool{
	"Abs": true, "Ceil": true, "Floor": true, "Round": true, "Clamp": true,
	"Lerp": true, "Min": true, "Max": true, "Pow": true, "Sin": true, "Cos": true, "Sqrt": true, "Tan": true,
}

// lowerMathCall maps Math.* to Mathf.* externs. Math.random folds to 0
// (deterministic host has no RNG surface). Math.max/min, like the other
// Math.* members, become a single Mathf extern call over all of their
// arguments; they are not split into a left-to-right chain of two-argument
// calls, and the optimizer's constant-folding pass does not fold Call
// instructions. Math.imul is a native int32 multiply (§4.D).
func (l *Lowerer) lowerMathCall(c *ast.CallExpression) (tac.Operand, error) {
	if c.Callee == "random" {
		return tac.NumberConstant(0), nil
	}
	args, err := l.lowerArgs(c.Args)
	if err != nil {
		return nil, err
	}
	if c.Callee == "imul" {
		if len(args) != 2 {
			return nil, &compileerrors.UnsupportedFeatureError{Feature: "Math.imul", Detail: "expected exactly two arguments", Loc: l.loc()}
		}
		dest := l.newTemp(intType())
		l.emit(&tac.BinaryOp{Dest: dest, Op: "*", Left: args[0], Right: args[1]})
		return dest, nil
	}
	methodName := c.Callee
	if len(methodName) > 0 {
		methodName = string(methodName[0]-'a'+'A') + methodName[1:]
	}
	sig, err := l.resolver.RequireExtern("UnityEngineMathf", methodName, extern.Method, operandTypeNames(args))
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(singleType())
	l.emit(&tac.Call{Dest: dest, Signature: sig, IsExtern: true, Pure: mathFoldWhitelist[methodName], Args: args})
	return dest, nil
}

// lowerConsoleCall lowers console.log/info/warn/error to
// Debug.Log/LogWarning/LogError externs (§4.D).
func (l *Lowerer) lowerConsoleCall(c *ast.CallExpression) (tac.Operand, error) {
	var member string
	switch c.Callee {
	case "log", "info":
		member = "Log"
	case "warn":
		member = "LogWarning"
	case "error":
		member = "LogError"
	default:
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "console." + c.Callee, Loc: l.loc()}
	}
	args, err := l.lowerArgs(c.Args)
	if err != nil {
		return nil, err
	}
	sig, err := l.resolver.RequireExtern("UnityEngineDebug", member, extern.Method, operandTypeNames(args))
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Call{Signature: sig, IsExtern: true, Args: args})
	return tac.NullConstant(), nil
}

// lowerObjectReflection lowers Object.keys/values/entries on a
// DataDictionary target into a loop producing a DataList (§4.D).
func (l *Lowerer) lowerObjectReflection(c *ast.CallExpression) (tac.Operand, error) {
	if len(c.Args) != 1 {
		return nil, &compileerrors.UnsupportedFeatureError{Feature: "Object." + c.Callee, Detail: "expected exactly one argument", Loc: l.loc()}
	}
	dict, err := l.lowerExpr(c.Args[0])
	if err != nil {
		return nil, err
	}
	resultSym := types.DataListOf(types.Prim(types.Object))
	result := l.newTemp(resultSym)
	ctorSig, err := l.resolver.RequireExtern("DataList", "ctor", extern.Ctor, nil)
	if err != nil {
		return nil, err
	}
	l.emit(&tac.Call{Dest: result, Signature: ctorSig, IsExtern: true})

	sourceMember := map[string]string{"keys": "GetKeys", "values": "GetValues", "entries": "GetKeys"}[c.Callee]
	srcSig, err := l.resolver.RequireExtern("DataDictionary", sourceMember, extern.Method, nil)
	if err != nil {
		return nil, err
	}
	source := l.newTemp(types.DataListOf(types.Prim(types.Object)))
	l.emit(&tac.MethodCall{Dest: source, Receiver: dict, Signature: srcSig, Args: nil})

	addSig, err := l.resolver.RequireExtern("DataList", "Add", extern.Method, []string{"DataToken"})
	if err != nil {
		return nil, err
	}
	idx := l.newTemp(intType())
	l.emit(&tac.Assignment{Dest: idx, Src: tacIntZero()})
	countSig, err := l.resolver.RequireExtern("DataList", "Count", extern.Getter, nil)
	if err != nil {
		return nil, err
	}
	count := l.newTemp(intType())
	l.emit(&tac.PropertyGet{Dest: count, Receiver: source, Property: "Count", Signature: countSig})

	startLabel := l.newLabel("objreflect_start")
	endLabel := l.newLabel("objreflect_end")
	l.emit(&tac.LabelInstr{Label: startLabel})
	cmp := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: cmp, Op: "<", Left: idx, Right: count})
	l.emit(&tac.ConditionalJump{Cond: cmp, Target: endLabel})
	elem := l.newTemp(objectType())
	l.emit(&tac.ArrayAccess{Dest: elem, Array: source, Index: idx})
	l.emit(&tac.MethodCall{Receiver: result, Signature: addSig, Args: []tac.Operand{elem}})
	l.emit(&tac.BinaryOp{Dest: idx, Op: "+", Left: idx, Right: tacIntOne()})
	l.emit(&tac.UnconditionalJump{Target: startLabel})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return result, nil
}

// lowerCollectionCallbackCall handles `Map.forEach(cb)` / `Set.forEach(cb)`
// (§4.D): the callback must be an inline function; the body is inlined,
// binding parameters (value, key, collection) as copies of loop
// variables, with `this` bound to the optional thisArg (or null for
// arrow callbacks).
func (l *Lowerer) lowerCollectionCallbackCall(receiver tac.Operand, c *ast.CallExpression) (tac.Operand, bool, error) {
	if c.Callee != "forEach" {
		return nil, false, nil
	}
	if len(c.Args) == 0 {
		return nil, false, nil
	}
	cb, ok := c.Args[0].(*ast.FunctionExpression)
	if !ok {
		return nil, true, &compileerrors.UnsupportedFeatureError{
			Feature: "forEach", Detail: "callback must be an inline function", Loc: l.loc(),
		}
	}

	var thisArg tac.Operand = tac.NullConstant()
	if !cb.IsArrow && len(c.Args) >= 2 {
		v, err := l.lowerExpr(c.Args[1])
		if err != nil {
			return nil, true, err
		}
		thisArg = v
	}
	l.thisOverrideStack = append(l.thisOverrideStack, thisArg)
	defer func() { l.thisOverrideStack = l.thisOverrideStack[:len(l.thisOverrideStack)-1] }()

	idx := l.newTemp(intType())
	l.emit(&tac.Assignment{Dest: idx, Src: tacIntZero()})
	countSig, err := l.resolver.RequireExtern(receiver.Type().String(), "Count", extern.Getter, nil)
	if err != nil {
		return nil, true, err
	}
	count := l.newTemp(intType())
	l.emit(&tac.PropertyGet{Dest: count, Receiver: receiver, Property: "Count", Signature: countSig})

	startLabel := l.newLabel("foreach_start")
	endLabel := l.newLabel("foreach_end")
	l.emit(&tac.LabelInstr{Label: startLabel})
	cmp := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: cmp, Op: "<", Left: idx, Right: count})
	l.emit(&tac.ConditionalJump{Cond: cmp, Target: endLabel})

	value := l.newTemp(objectType())
	l.emit(&tac.ArrayAccess{Dest: value, Array: receiver, Index: idx})

	l.symtab.EnterScope()
	if len(cb.Parameters) > 0 {
		vv := &tac.Variable{Name: cb.Parameters[0].Name, Typ: value.Typ}
		l.symtab.Define(vv)
		l.emit(&tac.Assignment{Dest: vv, Src: value})
	}
	if len(cb.Parameters) > 1 {
		kv := &tac.Variable{Name: cb.Parameters[1].Name, Typ: idx.Typ}
		l.symtab.Define(kv)
		l.emit(&tac.Assignment{Dest: kv, Src: idx})
	}
	if len(cb.Parameters) > 2 {
		cv := &tac.Variable{Name: cb.Parameters[2].Name, Typ: receiver.Type()}
		l.symtab.Define(cv)
		l.emit(&tac.Assignment{Dest: cv, Src: receiver})
	}
	err = l.lowerBlockScanThenVisit(cb.Body)
	l.symtab.ExitScope()
	if err != nil {
		return nil, true, err
	}

	l.emit(&tac.BinaryOp{Dest: idx, Op: "+", Left: idx, Right: tacIntOne()})
	l.emit(&tac.UnconditionalJump{Target: startLabel})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return tac.NullConstant(), true, nil
}
