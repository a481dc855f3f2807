package lower

import (
	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/compileerrors"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/tac"
)

func (l *Lowerer) lowerStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.VariableDeclaration:
		return l.lowerVariableDeclaration(s)
	case *ast.ExpressionStatement:
		_, err := l.lowerExpr(s.Expr)
		return err
	case *ast.IfStatement:
		return l.lowerIf(s)
	case *ast.WhileStatement:
		return l.lowerWhile(s)
	case *ast.DoWhileStatement:
		return l.lowerDoWhile(s)
	case *ast.ForStatement:
		return l.lowerFor(s)
	case *ast.ForOfStatement:
		return l.lowerForOf(s)
	case *ast.SwitchStatement:
		return l.lowerSwitch(s)
	case *ast.BreakStatement:
		return l.lowerBreak()
	case *ast.ContinueStatement:
		return l.lowerContinue()
	case *ast.ReturnStatement:
		return l.lowerReturn(s)
	case *ast.BlockStatement:
		l.symtab.EnterScope()
		err := l.lowerBlockScanThenVisit(s)
		l.symtab.ExitScope()
		return err
	case *ast.TryCatchStatement:
		return l.lowerTryCatch(s)
	case *ast.ThrowStatement:
		return l.lowerThrow(s)
	default:
		return &compileerrors.MalformedASTError{Reason: "unrecognised statement node", Loc: l.loc()}
	}
}

func (l *Lowerer) lowerVariableDeclaration(s *ast.VariableDeclaration) error {
	v, ok := l.symtab.ResolveLocal(s.Name)
	if !ok {
		// Declared inside a nested non-block construct (e.g. for-init)
		// that bypassed the block pre-scan; define it now.
		v = &tac.Variable{Name: s.Name, Typ: l.mapType(s.Type), IsLocal: s.IsLocal, IsExported: s.IsExported}
		l.symtab.Define(v)
	}
	if s.Initializer == nil {
		return nil
	}

	if call, ok := s.Initializer.(*ast.CallExpression); ok && call.IsNew {
		if _, known := l.classes[call.Callee]; known {
			return l.lowerNewInlineInstance(call, s.Name)
		}
	}

	src, err := l.lowerExpr(s.Initializer)
	if err != nil {
		return err
	}
	l.emit(&tac.Assignment{Dest: v, Src: src})
	return l.emitFieldChangeCallbackIfApplicable(v, s.Name)
}

func (l *Lowerer) lowerIf(s *ast.IfStatement) error {
	cond, err := l.lowerExpr(s.Condition)
	if err != nil {
		return err
	}
	elseLabel := l.newLabel("if_else")
	endLabel := l.newLabel("if_end")
	l.emit(&tac.ConditionalJump{Cond: cond, Target: elseLabel})

	l.symtab.EnterScope()
	err = l.lowerBlockScanThenVisit(s.Then)
	l.symtab.ExitScope()
	if err != nil {
		return err
	}

	if s.Else != nil {
		l.emit(&tac.UnconditionalJump{Target: endLabel})
		l.emit(&tac.LabelInstr{Label: elseLabel})
		l.symtab.EnterScope()
		err = l.lowerBlockScanThenVisit(s.Else)
		l.symtab.ExitScope()
		if err != nil {
			return err
		}
		l.emit(&tac.LabelInstr{Label: endLabel})
	} else {
		l.emit(&tac.LabelInstr{Label: elseLabel})
	}
	return nil
}

func (l *Lowerer) lowerWhile(s *ast.WhileStatement) error {
	startLabel := l.newLabel("while_start")
	endLabel := l.newLabel("while_end")

	l.emit(&tac.LabelInstr{Label: startLabel})
	cond, err := l.lowerExpr(s.Condition)
	if err != nil {
		return err
	}
	l.emit(&tac.ConditionalJump{Cond: cond, Target: endLabel})

	l.loopStack = append(l.loopStack, loopEntry{breakLabel: endLabel, continueLabel: startLabel})
	l.symtab.EnterScope()
	err = l.lowerBlockScanThenVisit(s.Body)
	l.symtab.ExitScope()
	l.loopStack = l.loopStack[:len(l.loopStack)-1]
	if err != nil {
		return err
	}

	l.emit(&tac.UnconditionalJump{Target: startLabel})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return nil
}

func (l *Lowerer) lowerDoWhile(s *ast.DoWhileStatement) error {
	startLabel := l.newLabel("dowhile_start")
	continueLabel := l.newLabel("dowhile_continue")
	endLabel := l.newLabel("dowhile_end")

	l.emit(&tac.LabelInstr{Label: startLabel})
	l.loopStack = append(l.loopStack, loopEntry{breakLabel: endLabel, continueLabel: continueLabel})
	l.symtab.EnterScope()
	err := l.lowerBlockScanThenVisit(s.Body)
	l.symtab.ExitScope()
	l.loopStack = l.loopStack[:len(l.loopStack)-1]
	if err != nil {
		return err
	}

	l.emit(&tac.LabelInstr{Label: continueLabel})
	cond, err := l.lowerExpr(s.Condition)
	if err != nil {
		return err
	}
	notEndLabel := l.newLabel("dowhile_repeat")
	l.emit(&tac.ConditionalJump{Cond: cond, Target: endLabel})
	l.emit(&tac.UnconditionalJump{Target: startLabel})
	l.emit(&tac.LabelInstr{Label: notEndLabel})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return nil
}

func (l *Lowerer) lowerFor(s *ast.ForStatement) error {
	l.symtab.EnterScope()
	defer l.symtab.ExitScope()

	if s.Init != nil {
		if err := l.lowerStatement(s.Init); err != nil {
			return err
		}
	}

	startLabel := l.newLabel("for_start")
	continueLabel := l.newLabel("for_continue")
	endLabel := l.newLabel("for_end")

	l.emit(&tac.LabelInstr{Label: startLabel})
	if s.Condition != nil {
		cond, err := l.lowerExpr(s.Condition)
		if err != nil {
			return err
		}
		l.emit(&tac.ConditionalJump{Cond: cond, Target: endLabel})
	}

	l.loopStack = append(l.loopStack, loopEntry{breakLabel: endLabel, continueLabel: continueLabel})
	err := l.lowerBlockScanThenVisit(s.Body)
	l.loopStack = l.loopStack[:len(l.loopStack)-1]
	if err != nil {
		return err
	}

	l.emit(&tac.LabelInstr{Label: continueLabel})
	if s.Update != nil {
		if err := l.lowerStatement(s.Update); err != nil {
			return err
		}
	}
	l.emit(&tac.UnconditionalJump{Target: startLabel})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return nil
}

// lowerForOf lowers `for (const v of iterable)` / `for (const [k, v] of
// iterable)` into an index-driven loop over the iterable's element
// count, reading each element/key via the catalog's indexer extern.
func (l *Lowerer) lowerForOf(s *ast.ForOfStatement) error {
	l.symtab.EnterScope()
	defer l.symtab.ExitScope()

	iterable, err := l.lowerExpr(s.Iterable)
	if err != nil {
		return err
	}

	idxVar := l.newTemp(intType())
	l.emit(&tac.Assignment{Dest: idxVar, Src: tacIntZero()})

	countVar := l.newTemp(intType())
	countSig, err := l.resolver.RequireExtern(iterable.Type().String(), "Count", extern.Getter, nil)
	if err != nil {
		return err
	}
	l.emit(&tac.PropertyGet{Dest: countVar, Receiver: iterable, Property: "Count", Signature: countSig})

	valueVar := &tac.Variable{Name: s.ValueVar, Typ: elementType(iterable.Type())}
	l.symtab.Define(valueVar)
	if s.KeyVar != "" {
		keyVar := &tac.Variable{Name: s.KeyVar, Typ: idxVar.Typ}
		l.symtab.Define(keyVar)
	}

	startLabel := l.newLabel("forof_start")
	continueLabel := l.newLabel("forof_continue")
	endLabel := l.newLabel("forof_end")

	l.emit(&tac.LabelInstr{Label: startLabel})
	ltTemp := l.newTemp(boolType())
	l.emit(&tac.BinaryOp{Dest: ltTemp, Op: "<", Left: idxVar, Right: countVar})
	l.emit(&tac.ConditionalJump{Cond: ltTemp, Target: endLabel})

	l.emit(&tac.ArrayAccess{Dest: valueVar, Array: iterable, Index: idxVar})
	if s.KeyVar != "" {
		kv, _ := l.symtab.ResolveLocal(s.KeyVar)
		l.emit(&tac.Assignment{Dest: kv, Src: idxVar})
	}

	l.loopStack = append(l.loopStack, loopEntry{breakLabel: endLabel, continueLabel: continueLabel})
	err = l.lowerBlockScanThenVisit(s.Body)
	l.loopStack = l.loopStack[:len(l.loopStack)-1]
	if err != nil {
		return err
	}

	l.emit(&tac.LabelInstr{Label: continueLabel})
	l.emit(&tac.BinaryOp{Dest: idxVar, Op: "+", Left: idxVar, Right: tacIntOne()})
	l.emit(&tac.UnconditionalJump{Target: startLabel})
	l.emit(&tac.LabelInstr{Label: endLabel})
	return nil
}

// lowerSwitch copies the scrutinee into a temporary once, then chains
// each case as an `==` comparison with a conditional jump to the next
// case on mismatch (§4.D Switch).
func (l *Lowerer) lowerSwitch(s *ast.SwitchStatement) error {
	scrutinee, err := l.lowerExpr(s.Scrutinee)
	if err != nil {
		return err
	}
	scrutTemp := l.newTemp(scrutinee.Type())
	l.emit(&tac.Assignment{Dest: scrutTemp, Src: scrutinee})

	endLabel := l.newLabel("switch_end")
	l.loopStack = append(l.loopStack, loopEntry{breakLabel: endLabel, continueLabel: endLabel})
	defer func() { l.loopStack = l.loopStack[:len(l.loopStack)-1] }()

	var defaultLabel *tac.Label
	if s.Default != nil {
		defaultLabel = l.newLabel("switch_default")
	}

	caseLabels := make([]*tac.Label, len(s.Cases))
	for i, c := range s.Cases {
		caseLabels[i] = l.newLabel("switch_case")
		caseVal, err := l.lowerExpr(c.Value)
		if err != nil {
			return err
		}
		eqTemp := l.newTemp(boolType())
		l.emit(&tac.BinaryOp{Dest: eqTemp, Op: "==", Left: scrutTemp, Right: caseVal})
		l.emit(&tac.ConditionalJump{Cond: eqTemp, Target: nextCaseProbe(caseLabels, i)})
		l.emit(&tac.UnconditionalJump{Target: caseLabels[i]})
		l.emit(&tac.LabelInstr{Label: nextCaseProbe(caseLabels, i)})
	}
	if defaultLabel != nil {
		l.emit(&tac.UnconditionalJump{Target: defaultLabel})
	} else {
		l.emit(&tac.UnconditionalJump{Target: endLabel})
	}

	for i, c := range s.Cases {
		l.emit(&tac.LabelInstr{Label: caseLabels[i]})
		if err := l.lowerBlockScanThenVisit(c.Body); err != nil {
			return err
		}
		l.emit(&tac.UnconditionalJump{Target: endLabel})
	}
	if s.Default != nil {
		l.emit(&tac.LabelInstr{Label: defaultLabel})
		if err := l.lowerBlockScanThenVisit(s.Default); err != nil {
			return err
		}
	}
	l.emit(&tac.LabelInstr{Label: endLabel})
	return nil
}

// nextCaseProbe allocates a fresh synthetic label used only to fall
// through to the next comparison; kept deterministic per case index so
// repeated lowering of the same switch produces identical output
// (§8 invariant 8, optimizer/lowering monotonicity).
func nextCaseProbe(labels []*tac.Label, i int) *tac.Label {
	return &tac.Label{Name: labels[i].Name + "_probe"}
}

func (l *Lowerer) lowerBreak() error {
	if len(l.loopStack) == 0 {
		return &compileerrors.ControlFlowOutsideLoopError{Keyword: "break", Loc: l.loc()}
	}
	top := l.loopStack[len(l.loopStack)-1]
	l.emit(&tac.UnconditionalJump{Target: top.breakLabel})
	return nil
}

func (l *Lowerer) lowerContinue() error {
	if len(l.loopStack) == 0 {
		return &compileerrors.ControlFlowOutsideLoopError{Keyword: "continue", Loc: l.loc()}
	}
	top := l.loopStack[len(l.loopStack)-1]
	l.emit(&tac.UnconditionalJump{Target: top.continueLabel})
	return nil
}

// lowerReturn: at top level of a real method, copies into the return
// slot; inside an inlined call, consults the inline-return stack
// instead (§4.D Inline return stack).
func (l *Lowerer) lowerReturn(s *ast.ReturnStatement) error {
	var val tac.Operand
	if s.Value != nil {
		v, err := l.lowerExpr(s.Value)
		if err != nil {
			return err
		}
		val = v
	}

	if len(l.inlineReturnStack) > 0 {
		top := l.inlineReturnStack[len(l.inlineReturnStack)-1]
		if top.destSlot != nil && val != nil {
			l.emit(&tac.Copy{Dest: top.destSlot, Src: val})
		}
		l.emit(&tac.UnconditionalJump{Target: top.continueTo})
		return nil
	}

	if val != nil {
		l.emit(&tac.Copy{Dest: l.currentReturnDest, Src: val})
	}
	l.emit(&tac.Return{Value: val})
	return nil
}

// lowerTryCatch implements the software-simulated exception state
// machine (§4.State machines, §9): a boolean error flag starts false;
// potentially-failing calls inside Try are checked by emit's
// checkTryFailure (lower.go), which consults the try stack pushed here;
// the catch entry reads the value, finally runs by fall-through
// regardless of path taken.
func (l *Lowerer) lowerTryCatch(s *ast.TryCatchStatement) error {
	flagVar := &tac.Variable{Name: l.newLabel("__error_flag").Name, Typ: boolType()}
	valueVar := &tac.Variable{Name: l.newLabel("__error_value").Name, Typ: objectType()}
	l.symtab.Define(flagVar)
	l.symtab.Define(valueVar)

	l.emit(&tac.Assignment{Dest: flagVar, Src: falseConst()})

	catchLabel := l.newLabel("try_catch")
	finallyLabel := l.newLabel("try_finally")

	l.tryStack = append(l.tryStack, tryEntry{errorFlagVar: flagVar, errorValueVar: valueVar, target: catchLabel})
	err := l.lowerBlockScanThenVisit(s.Try)
	l.tryStack = l.tryStack[:len(l.tryStack)-1]
	if err != nil {
		return err
	}

	l.emit(&tac.UnconditionalJump{Target: finallyLabel})
	l.emit(&tac.LabelInstr{Label: catchLabel})
	if s.CatchVar != "" {
		l.symtab.EnterScope()
		catchBound := &tac.Variable{Name: s.CatchVar, Typ: objectType()}
		l.symtab.Define(catchBound)
		l.emit(&tac.Copy{Dest: catchBound, Src: valueVar})
		err = l.lowerBlockScanThenVisit(s.Catch)
		l.symtab.ExitScope()
		if err != nil {
			return err
		}
	}
	l.emit(&tac.LabelInstr{Label: finallyLabel})
	if s.Finally != nil {
		if err := l.lowerBlockScanThenVisit(s.Finally); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lowerer) lowerThrow(s *ast.ThrowStatement) error {
	val, err := l.lowerExpr(s.Value)
	if err != nil {
		return err
	}
	if len(l.tryStack) == 0 {
		// No enclosing try: a throw with nothing to catch simply
		// assigns the error value to the return slot and returns,
		// the closest faithful rendition available without a host
		// exception mechanism (§9 "Exceptions as control flow").
		l.emit(&tac.Copy{Dest: l.currentReturnDest, Src: val})
		l.emit(&tac.Return{Value: val})
		return nil
	}
	top := l.tryStack[len(l.tryStack)-1]
	l.emit(&tac.Assignment{Dest: top.errorFlagVar, Src: trueConst()})
	l.emit(&tac.Copy{Dest: top.errorValueVar, Src: val})
	l.emit(&tac.UnconditionalJump{Target: top.target})
	return nil
}
