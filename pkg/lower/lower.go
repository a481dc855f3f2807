// Package lower implements the AST->TAC Lowerer (component D, §4.D):
// a recursive-descent visitor producing a single flat TAC instruction
// stream per method/function, maintaining lexical scopes, loop/try/
// inline-return stacks, recursion prologues, and field-change callbacks.
package lower

import (
	"fmt"

	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/compileerrors"
	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
	"github.com/udon-lang/udonc/pkg/vrcevent"
)

// UnknownTypeLogger receives a callback whenever MapSurfaceType falls
// back to Object for a name this package cannot resolve (§4.A).
type UnknownTypeLogger func(name string)

// loopEntry is one entry of the loop stack (§4.D).
type loopEntry struct {
	breakLabel    *tac.Label
	continueLabel *tac.Label
}

// tryEntry is one entry of the try stack (§4.D).
type tryEntry struct {
	errorFlagVar  *tac.Variable
	errorValueVar *tac.Variable
	target        *tac.Label
}

// inlineReturnEntry is one entry of the inline-return stack (§4.D): an
// inlined static method's `return` becomes "copy to destSlot + jump to
// continuation".
type inlineReturnEntry struct {
	destSlot   tac.Operand // nil if the inlined call discards its result
	continueTo *tac.Label
}

// recursionCtx tracks the depth counter and shadow-array data-section
// entries synthesized for a recursive method (§4.D recursion context).
type recursionCtx struct {
	method      string
	depthVar    *tac.Variable
	shadowArrays map[string]*tac.Variable // local name -> shadow DataList
}

// Lowerer is the AST->TAC lowering engine.
type Lowerer struct {
	resolver *extern.Resolver
	events   vrcevent.Registry
	cfg      config.Config
	onUnknownType UnknownTypeLogger

	classes map[string]*ast.ClassDecl

	labelCounter int
	globalVars   map[string]*tac.Variable // class-field-backed data-section variables, program wide
	dataOrder    []*tac.Variable

	// per-function working state, reset by resetFunctionState
	symtab            *SymbolTable
	instrs            []tac.Instruction
	tempCounter       int
	loopStack         []loopEntry
	tryStack          []tryEntry
	inlineReturnStack []inlineReturnEntry
	inlineInstances   map[string]string // local var name -> synthetic __inst_Foo_N prefix
	thisOverrideStack []tac.Operand
	currentReturnDest tac.Operand
	currentClass      *ast.ClassDecl
	currentMethod     *ast.MethodDecl
	recursion         *recursionCtx
	inlineDepth       int
}

// New constructs a Lowerer. catalog and events are the external
// collaborators (§6.2, §6.3); cfg carries the optimizer/sync/isFinite
// defaults (§11, §14).
func New(catalog extern.Catalog, events vrcevent.Registry, cfg config.Config, onUnknownType UnknownTypeLogger) *Lowerer {
	return &Lowerer{
		resolver:      extern.New(catalog),
		events:        events,
		cfg:           cfg,
		onUnknownType: onUnknownType,
		classes:       make(map[string]*ast.ClassDecl),
		globalVars:    make(map[string]*tac.Variable),
	}
}

// Lower lowers a full surface-language Program into a TAC Program
// (§4.D). Top-level functions and every class method each become one
// tac.Function, except static methods selected for inlining, which
// contribute no standalone Function (§4.D inline return stack).
func (l *Lowerer) Lower(prog *ast.Program) (*tac.Program, error) {
	for _, c := range prog.Classes {
		l.classes[c.Name] = c
	}

	out := &tac.Program{}

	for _, c := range prog.Classes {
		if err := l.registerClassFields(c); err != nil {
			return nil, err
		}
	}

	for _, c := range prog.Classes {
		for _, m := range c.Methods {
			if l.shouldInlineOnly(c, m) {
				continue
			}
			fn, err := l.lowerMethod(c, m)
			if err != nil {
				return nil, err
			}
			out.Functions = append(out.Functions, fn)
		}
		if fn := l.synthesizeOnDeserialization(c); fn != nil {
			out.Functions = append(out.Functions, fn)
		}
	}

	for _, fn := range prog.Functions {
		if fn.IsStatic && l.isSmallHelper(fn) {
			// Free functions are only ever reached through inlining at
			// call sites (there is no enclosing UdonBehaviour to host
			// them as an entry label); skip standalone emission.
			continue
		}
		tfn, err := l.lowerMethod(nil, fn)
		if err != nil {
			return nil, err
		}
		out.Functions = append(out.Functions, tfn)
	}

	return out, nil
}

// DataSectionVariables returns every class-field-backed global variable
// registered during lowering, in declaration order, for the Udon
// lowerer to allocate data-section slots for alongside locals (§3.5).
func (l *Lowerer) DataSectionVariables() []*tac.Variable { return l.dataOrder }

func (l *Lowerer) registerClassFields(c *ast.ClassDecl) error {
	for _, p := range c.Properties {
		name := l.fieldVarName(c, p.Name)
		sym := l.mapType(p.Type)
		v := &tac.Variable{Name: name, Typ: sym, IsExported: p.IsSerializeField}
		l.globalVars[classFieldKey(c.Name, p.Name)] = v
		l.dataOrder = append(l.dataOrder, v)
		if p.FieldChangeCallback != "" {
			shadow := &tac.Variable{Name: "__prev_" + name, Typ: sym}
			l.globalVars[classFieldKey(c.Name, "__prev_"+p.Name)] = shadow
			l.dataOrder = append(l.dataOrder, shadow)
		}
	}
	return nil
}

func classFieldKey(className, propName string) string { return className + "." + propName }

func (l *Lowerer) fieldVarName(c *ast.ClassDecl, propName string) string {
	if c.IsUdonBehaviour {
		return propName
	}
	return c.Name + "_" + propName
}

func (l *Lowerer) shouldInlineOnly(c *ast.ClassDecl, m *ast.MethodDecl) bool {
	return m.IsStatic && !m.IsRecursive && l.isSmallHelper(m)
}

// isSmallHelper is the inlining size gate, grounded in the teacher's
// FunctionInliner size/recursion gate (pkg/compiler/optimizer.go).
func (l *Lowerer) isSmallHelper(m *ast.MethodDecl) bool {
	return m.Body != nil && len(m.Body.Statements) <= 40
}

func (l *Lowerer) resetFunctionState(c *ast.ClassDecl, m *ast.MethodDecl) {
	l.symtab = NewSymbolTable()
	l.instrs = nil
	l.tempCounter = 0
	l.loopStack = nil
	l.tryStack = nil
	l.inlineReturnStack = nil
	l.inlineInstances = make(map[string]string)
	l.thisOverrideStack = nil
	l.currentClass = c
	l.currentMethod = m
	l.recursion = nil
	l.inlineDepth = 0
}

func (l *Lowerer) lowerMethod(c *ast.ClassDecl, m *ast.MethodDecl) (*tac.Function, error) {
	l.resetFunctionState(c, m)

	fnName := l.entryLabelFor(c, m)

	returnVar := &tac.Variable{Name: "__returnValue_return", Typ: l.mapType(m.ReturnType)}
	l.currentReturnDest = returnVar

	l.symtab.EnterScope()
	for _, p := range m.Parameters {
		v := &tac.Variable{Name: p.Name, Typ: l.mapType(p.Type), IsParameter: true, IsLocal: true}
		l.symtab.Define(v)
	}

	if m.IsRecursive {
		l.emitRecursionPrologue(m)
	}

	if err := l.lowerBlockScanThenVisit(m.Body); err != nil {
		return nil, err
	}

	if m.IsRecursive {
		l.emitRecursionEpilogue(m)
	}

	l.symtab.ExitScope()

	fn := &tac.Function{Name: fnName, Instructions: l.instrs}
	return fn, nil
}

// entryLabelFor computes the Udon-facing label name for a method:
// recognised VRChat event methods on UdonBehaviour classes get their
// canonical udonName (§6.3); everything else keeps its declared name.
func (l *Lowerer) entryLabelFor(c *ast.ClassDecl, m *ast.MethodDecl) string {
	if c != nil && c.IsUdonBehaviour && l.events.IsVrcEventLabel(m.Name) {
		if def, ok := l.events.GetVrcEventDefinition(m.Name); ok {
			return def.UdonName
		}
	}
	if c != nil {
		return c.Name + "_" + m.Name
	}
	return m.Name
}

// lowerBlockScanThenVisit pre-scans a block's direct VariableDeclaration
// statements so forward references inside the block resolve, then
// visits every statement in order (§4.D scan-then-visit).
func (l *Lowerer) lowerBlockScanThenVisit(b *ast.BlockStatement) error {
	if b == nil {
		return nil
	}
	for _, stmt := range b.Statements {
		if vd, ok := stmt.(*ast.VariableDeclaration); ok {
			sym := l.mapType(vd.Type)
			v := &tac.Variable{Name: vd.Name, Typ: sym, IsLocal: vd.IsLocal, IsExported: vd.IsExported}
			l.symtab.Define(v)
		}
	}
	for _, stmt := range b.Statements {
		if err := l.lowerStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lowerer) newTemp(t *types.Symbol) *tac.Temporary {
	id := l.tempCounter
	l.tempCounter++
	return &tac.Temporary{ID: id, Typ: t}
}

func (l *Lowerer) newLabel(hint string) *tac.Label {
	id := l.labelCounter
	l.labelCounter++
	return &tac.Label{Name: fmt.Sprintf("%s_%d", hint, id)}
}

// emit appends i to the instruction buffer, then implements the Try
// stack contract (§4.D, §4.State machines): between every potentially-
// failing operation, a conditional jump forwards to the nearest try
// target when a nullable-returning extern's result is null.
func (l *Lowerer) emit(i tac.Instruction) {
	l.instrs = append(l.instrs, i)
	l.checkTryFailure(i)
}

// checkTryFailure inspects i for a catalogued extern call (Call with
// IsExtern, MethodCall, PropertyGet are always catalog-resolved) whose
// destination is a nullable-returning type, and, when a try block
// encloses the current instruction, emits the flag/copy/jump sequence
// spec'd by §4.State machines right after i.
func (l *Lowerer) checkTryFailure(i tac.Instruction) {
	if len(l.tryStack) == 0 {
		return
	}
	dest, ok := nullableExternDest(i)
	if !ok {
		return
	}

	top := l.tryStack[len(l.tryStack)-1]
	notNull := l.newTemp(boolType())
	l.instrs = append(l.instrs, &tac.BinaryOp{Dest: notNull, Op: "!=", Left: dest, Right: tac.NullConstant()})
	nullLabel := l.newLabel("try_call_null")
	continueLabel := l.newLabel("try_call_ok")
	// ifFalse (dest != null) goto nullLabel: only a null result takes the
	// flag/copy/jump-to-catch path; a non-null result skips over it.
	l.instrs = append(l.instrs, &tac.ConditionalJump{Cond: notNull, Target: nullLabel})
	l.instrs = append(l.instrs, &tac.UnconditionalJump{Target: continueLabel})
	l.instrs = append(l.instrs, &tac.LabelInstr{Label: nullLabel})
	l.instrs = append(l.instrs, &tac.Assignment{Dest: top.errorFlagVar, Src: trueConst()})
	l.instrs = append(l.instrs, &tac.Copy{Dest: top.errorValueVar, Src: dest})
	l.instrs = append(l.instrs, &tac.UnconditionalJump{Target: top.target})
	l.instrs = append(l.instrs, &tac.LabelInstr{Label: continueLabel})
}

// nullableExternDest reports the destination operand of a catalogued
// extern call/property-get instruction, when that destination's type
// is one the host runtime can actually yield null for.
func nullableExternDest(i tac.Instruction) (tac.Operand, bool) {
	var dest tac.Operand
	switch v := i.(type) {
	case *tac.Call:
		if !v.IsExtern {
			return nil, false
		}
		dest = v.Dest
	case *tac.MethodCall:
		dest = v.Dest
	case *tac.PropertyGet:
		dest = v.Dest
	default:
		return nil, false
	}
	if dest == nil || !mayReturnNull(dest.Type()) {
		return nil, false
	}
	return dest, true
}

// mayReturnNull reports whether t is a reference/object-category type
// the runtime can yield null for, as opposed to a value type that is
// never null (§4.G's restricted-type set aside, which is a storage
// concern, not a call-result concern).
func mayReturnNull(t *types.Symbol) bool {
	if t == nil {
		return false
	}
	if t.Kind != types.KindPrimitive {
		return true
	}
	switch t.Primitive {
	case types.Boolean, types.Byte, types.SByte, types.Int16, types.UInt16,
		types.Int32, types.UInt32, types.Int64, types.UInt64, types.Single, types.Double, types.Void:
		return false
	}
	return true
}

func (l *Lowerer) mapType(text string) *types.Symbol {
	if text == "" {
		return types.Prim(types.Object)
	}
	if _, ok := l.classes[text]; ok {
		return types.UserClass(text)
	}
	return types.MapSurfaceType(text, l.onUnknownType)
}

func (l *Lowerer) loc() compileerrors.Location {
	loc := compileerrors.Location{MethodName: l.currentMethod.Name}
	if l.currentClass != nil {
		loc.ClassName = l.currentClass.Name
	}
	return loc
}
