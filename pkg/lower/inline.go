package lower

import (
	"fmt"

	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
)

// lowerNewInlineInstance implements §4.D's inline instance map: `new
// Foo(...)` creates a synthetic prefix `__inst_Foo_N`; field accesses on
// the resulting handle are rewritten to accesses on
// `__inst_Foo_N_<field>` variables. Classes are always lowered this way
// (never as heap objects) because the target VM has no object model
// beyond data-section slots.
func (l *Lowerer) lowerNewInlineInstance(call *ast.CallExpression, declaredVarName string) error {
	class := l.classes[call.Callee]
	prefix := fmt.Sprintf("__inst_%s_%d", call.Callee, l.inlineDepth)
	l.inlineDepth++

	for _, p := range class.Properties {
		fieldVar := &tac.Variable{Name: prefix + "_" + p.Name, Typ: l.mapType(p.Type), IsLocal: true}
		var init tac.Operand
		if p.Initializer != nil {
			v, err := l.lowerExpr(p.Initializer)
			if err != nil {
				return err
			}
			init = v
		} else {
			init = zeroValueFor(fieldVar.Typ)
		}
		l.emit(&tac.Assignment{Dest: fieldVar, Src: init})
	}

	l.inlineInstances[declaredVarName] = prefix

	if v, ok := l.symtab.ResolveLocal(declaredVarName); ok {
		l.emit(&tac.Assignment{Dest: v, Src: &tac.Constant{Kind: tac.ConstTypeName, Str: prefix, Typ: v.Typ}})
	}
	return nil
}

func zeroValueFor(t *types.Symbol) tac.Operand {
	if t.Kind != types.KindPrimitive {
		return tac.NullConstant()
	}
	switch t.Primitive {
	case types.Boolean:
		return tac.BoolConstant(false)
	case types.String:
		return tac.NullConstant()
	case types.Int64, types.UInt64:
		return tac.BigIntConstant(0)
	default:
		return tac.NumberConstant(0)
	}
}

// tryInlineStaticCall inlines a call to a known static, non-recursive,
// size-gated helper method (§4.D Inline return stack): `return` inside
// the inlined body becomes "copy to the caller-provided slot + jump to
// caller-provided continuation label".
func (l *Lowerer) tryInlineStaticCall(c *ast.CallExpression) (tac.Operand, bool, error) {
	method := l.resolveInlineCandidate(c.Callee)
	if method == nil {
		return nil, false, nil
	}

	args, err := l.lowerArgs(c.Args)
	if err != nil {
		return nil, true, err
	}

	l.symtab.EnterScope()
	defer l.symtab.ExitScope()
	for i, p := range method.Parameters {
		pv := &tac.Variable{Name: p.Name, Typ: l.mapType(p.Type), IsParameter: true, IsLocal: true}
		l.symtab.Define(pv)
		if i < len(args) {
			l.emit(&tac.Assignment{Dest: pv, Src: args[i]})
		}
	}

	var destSlot tac.Operand
	resultType := l.mapType(method.ReturnType)
	if resultType.Kind != types.KindPrimitive || resultType.Primitive != types.Void {
		destSlot = l.newTemp(resultType)
	}
	continueTo := l.newLabel("inline_return")
	l.inlineReturnStack = append(l.inlineReturnStack, inlineReturnEntry{destSlot: destSlot, continueTo: continueTo})

	err = l.lowerBlockScanThenVisit(method.Body)
	l.inlineReturnStack = l.inlineReturnStack[:len(l.inlineReturnStack)-1]
	if err != nil {
		return nil, true, err
	}

	l.emit(&tac.LabelInstr{Label: continueTo})
	if destSlot == nil {
		return tac.NullConstant(), true, nil
	}
	return destSlot, true, nil
}

// resolveInlineCandidate finds a static, non-recursive, size-gated
// method named callee on the current class, falling back to a
// same-named top-level function.
func (l *Lowerer) resolveInlineCandidate(callee string) *ast.MethodDecl {
	if l.currentClass != nil {
		for _, m := range l.currentClass.Methods {
			if m.Name == callee && l.shouldInlineOnly(l.currentClass, m) {
				return m
			}
		}
	}
	return nil
}

// emitRecursionPrologue implements §4.D's recursion context: a
// recursive method gets a prologue that increments a per-method depth
// counter and appends each parameter's current value to a per-parameter
// shadow DataList (all additional data-section entries). Only parameters
// are saved; other locals declared in the body get no shadow. Self-calls
// within the body are lowered by lowerGenericFreeCall like any other call,
// not as a jump back to the method's own entry.
func (l *Lowerer) emitRecursionPrologue(m *ast.MethodDecl) {
	depthVar := &tac.Variable{Name: "__recur_depth_" + m.Name, Typ: intType()}
	l.globalVars[classFieldKey(recursionScopeName(l.currentClass), "__recur_depth_"+m.Name)] = depthVar
	l.dataOrder = append(l.dataOrder, depthVar)

	shadows := make(map[string]*tac.Variable)
	for _, p := range m.Parameters {
		shadowName := "__recur_shadow_" + m.Name + "_" + p.Name
		shadow := &tac.Variable{Name: shadowName, Typ: types.DataListOf(l.mapType(p.Type))}
		l.globalVars[classFieldKey(recursionScopeName(l.currentClass), shadowName)] = shadow
		l.dataOrder = append(l.dataOrder, shadow)
		shadows[p.Name] = shadow
	}
	l.recursion = &recursionCtx{method: m.Name, depthVar: depthVar, shadowArrays: shadows}

	l.emit(&tac.BinaryOp{Dest: depthVar, Op: "+", Left: depthVar, Right: tacIntOne()})
	for _, p := range m.Parameters {
		pv, _ := l.symtab.Resolve(p.Name)
		addSig := "DataList.__Add__SystemObject__SystemVoid"
		l.emit(&tac.MethodCall{Receiver: shadows[p.Name], Signature: addSig, Args: []tac.Operand{pv}})
	}
}

// emitRecursionEpilogue decrements the depth counter the prologue
// incremented. It does not read the shadow DataLists back, so parameters
// and locals are not restored from them.
func (l *Lowerer) emitRecursionEpilogue(m *ast.MethodDecl) {
	if l.recursion == nil {
		return
	}
	l.emit(&tac.BinaryOp{Dest: l.recursion.depthVar, Op: "-", Left: l.recursion.depthVar, Right: tacIntOne()})
	l.recursion = nil
}

func recursionScopeName(c *ast.ClassDecl) string {
	if c == nil {
		return "__global"
	}
	return c.Name
}

// synthesizeOnDeserialization implements §4.D's field-change-callback
// contract: if the class has at least one callback property and no
// explicit OnDeserialization method, one is synthesised that, per
// callback property, reads the current value, compares with the shadow
// __prev_<prop>, and on inequality updates the shadow and calls the
// callback.
func (l *Lowerer) synthesizeOnDeserialization(c *ast.ClassDecl) *tac.Function {
	var callbackProps []*ast.PropertyDecl
	for _, p := range c.Properties {
		if p.FieldChangeCallback != "" {
			callbackProps = append(callbackProps, p)
		}
	}
	if len(callbackProps) == 0 {
		return nil
	}
	for _, m := range c.Methods {
		if m.Name == "OnDeserialization" {
			return nil
		}
	}

	l.resetFunctionState(c, &ast.MethodDecl{Name: "OnDeserialization", ReturnType: "void"})
	for _, p := range callbackProps {
		fieldVar := l.globalVars[classFieldKey(c.Name, p.Name)]
		shadowVar := l.globalVars[classFieldKey(c.Name, "__prev_"+p.Name)]
		neq := l.newTemp(boolType())
		l.emit(&tac.BinaryOp{Dest: neq, Op: "!=", Left: fieldVar, Right: shadowVar})
		skip := l.newLabel("ondeserialize_skip")
		l.emit(&tac.ConditionalJump{Cond: neq, Target: skip})
		l.emit(&tac.Copy{Dest: shadowVar, Src: fieldVar})
		l.emit(&tac.Call{Signature: c.Name + "_" + p.FieldChangeCallback, IsExtern: false})
		l.emit(&tac.LabelInstr{Label: skip})
	}
	l.emit(&tac.Return{})
	return &tac.Function{Name: c.Name + "_OnDeserialization", Instructions: l.instrs}
}
