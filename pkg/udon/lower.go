package udon

import (
	"fmt"

	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
)

// binaryOpNames maps TAC's textual operators to the catalog's
// `__op_<Name>` member token, used to build synthesized operator
// extern signatures (§4.F BinaryOp/UnaryOp).
var binaryOpNames = map[string]string{
	"+": "op_Addition", "-": "op_Subtraction", "*": "op_Multiply", "/": "op_Division",
	"%": "op_Modulus", "==": "op_Equality", "!=": "op_Inequality",
	"<": "op_LessThan", ">": "op_GreaterThan",
	"<=": "op_LessThanOrEqual", ">=": "op_GreaterThanOrEqual",
	"&&": "op_LogicalAnd", "||": "op_LogicalOr",
}

var unaryOpNames = map[string]string{
	"-": "op_UnaryNegation", "!": "op_LogicalNot", "+": "op_UnaryPlus",
}

// Lowerer turns a TAC Program into an udon.Program (§4.F): a single
// shared data section plus one instruction stream per function.
type Lowerer struct {
	cfg config.Config

	dataOrder    []*DataEntry
	varSlots     map[string]string // funcName+"."+varName (locals) or varName (globals) -> slot name
	usedNames    map[string]bool
	constSlots   map[string]string // (typeName|value) -> slot name
	externSlots  map[string]string // signature -> interned __extern_* slot name
	anonCounter  int
}

// New constructs a Lowerer.
func New(cfg config.Config) *Lowerer {
	return &Lowerer{
		cfg:         cfg,
		varSlots:    make(map[string]string),
		usedNames:   make(map[string]bool),
		constSlots:  make(map[string]string),
		externSlots: make(map[string]string),
	}
}

// Lower lowers every function in prog, allocating data-section slots
// in TAC traversal order as it goes (§4.F).
func (l *Lowerer) Lower(prog *tac.Program) (*Program, error) {
	out := &Program{}
	for _, fn := range prog.Functions {
		ufn, err := l.lowerFunction(fn)
		if err != nil {
			return nil, err
		}
		out.Functions = append(out.Functions, ufn)
	}
	out.Data = make([]DataEntry, len(l.dataOrder))
	for i, d := range l.dataOrder {
		out.Data[i] = *d
	}
	return out, nil
}

func (l *Lowerer) lowerFunction(fn *tac.Function) (*Function, error) {
	ufn := &Function{EntryLabel: fn.Name}
	emit := func(i Instr) { ufn.Instr = append(ufn.Instr, i) }
	emit(Instr{Op: OpLabel, Label: fn.Name})

	for _, instr := range fn.Instructions {
		if err := l.lowerInstr(fn.Name, instr, emit); err != nil {
			return nil, err
		}
	}
	return ufn, nil
}

func (l *Lowerer) lowerInstr(funcName string, instr tac.Instruction, emit func(Instr)) error {
	switch v := instr.(type) {
	case *tac.Assignment:
		return l.lowerMove(funcName, v.Dest, v.Src, emit)
	case *tac.Copy:
		return l.lowerMove(funcName, v.Dest, v.Src, emit)
	case *tac.BinaryOp:
		name, ok := binaryOpNames[v.Op]
		if !ok {
			name = "op_" + v.Op
		}
		sig := extern.CanonicalSignature(types.MapCatalogType(v.Left.Type()), name,
			[]string{types.MapCatalogType(v.Left.Type()), types.MapCatalogType(v.Right.Type())},
			types.MapCatalogType(v.Dest.Type()))
		return l.emitExternAssign(funcName, emit, sig, true, v.Dest, []tac.Operand{v.Left, v.Right})
	case *tac.UnaryOp:
		name, ok := unaryOpNames[v.Op]
		if !ok {
			name = "op_" + v.Op
		}
		sig := extern.CanonicalSignature(types.MapCatalogType(v.Operand.Type()), name,
			[]string{types.MapCatalogType(v.Operand.Type())}, types.MapCatalogType(v.Dest.Type()))
		return l.emitExternAssign(funcName, emit, sig, true, v.Dest, []tac.Operand{v.Operand})
	case *tac.Cast:
		srcHost := types.MapCatalogType(v.Src.Type())
		if types.ToUdonTypeName(srcHost) == v.TargetUdonType {
			return l.lowerMove(funcName, v.Dest, v.Src, emit)
		}
		sig := extern.CanonicalSignature(srcHost, "To"+v.TargetUdonType, nil, "System"+v.TargetUdonType)
		return l.emitExternAssign(funcName, emit, sig, true, v.Dest, []tac.Operand{v.Src})
	case *tac.ConditionalJump:
		condSlot, err := l.pushOperand(funcName, v.Cond, emit)
		if err != nil {
			return err
		}
		_ = condSlot
		emit(Instr{Op: OpJumpIfFalse, Target: v.Target.Name})
		return nil
	case *tac.UnconditionalJump:
		emit(Instr{Op: OpJump, Target: v.Target.Name})
		return nil
	case *tac.LabelInstr:
		emit(Instr{Op: OpLabel, Label: v.Label.Name})
		return nil
	case *tac.Call:
		for _, a := range v.Args {
			if _, err := l.pushOperand(funcName, a, emit); err != nil {
				return err
			}
		}
		sig, err := l.internSignature(v.Signature, emit)
		if err != nil {
			return err
		}
		emit(Instr{Op: OpExtern, Signature: sig, Pure: v.Pure})
		if v.Dest != nil {
			return l.storeTop(funcName, v.Dest, emit)
		}
		return nil
	case *tac.MethodCall:
		if _, err := l.pushOperand(funcName, v.Receiver, emit); err != nil {
			return err
		}
		for _, a := range v.Args {
			if _, err := l.pushOperand(funcName, a, emit); err != nil {
				return err
			}
		}
		sig, err := l.internSignature(v.Signature, emit)
		if err != nil {
			return err
		}
		emit(Instr{Op: OpExtern, Signature: sig, Pure: v.Pure})
		if v.Dest != nil {
			return l.storeTop(funcName, v.Dest, emit)
		}
		return nil
	case *tac.PropertyGet:
		if _, err := l.pushOperand(funcName, v.Receiver, emit); err != nil {
			return err
		}
		sig, err := l.internSignature(v.Signature, emit)
		if err != nil {
			return err
		}
		emit(Instr{Op: OpExtern, Signature: sig})
		return l.storeTop(funcName, v.Dest, emit)
	case *tac.PropertySet:
		if _, err := l.pushOperand(funcName, v.Receiver, emit); err != nil {
			return err
		}
		if _, err := l.pushOperand(funcName, v.Value, emit); err != nil {
			return err
		}
		sig, err := l.internSignature(v.Signature, emit)
		if err != nil {
			return err
		}
		emit(Instr{Op: OpExtern, Signature: sig})
		return nil
	case *tac.ArrayAccess:
		sig := extern.CanonicalSignature(types.MapCatalogType(v.Array.Type()), "get_Item",
			[]string{types.MapCatalogType(v.Index.Type())}, types.MapCatalogType(v.Dest.Type()))
		return l.emitExternAssign(funcName, emit, sig, false, v.Dest, []tac.Operand{v.Array, v.Index})
	case *tac.ArrayAssignment:
		if _, err := l.pushOperand(funcName, v.Array, emit); err != nil {
			return err
		}
		if _, err := l.pushOperand(funcName, v.Index, emit); err != nil {
			return err
		}
		if _, err := l.pushOperand(funcName, v.Value, emit); err != nil {
			return err
		}
		sig := extern.CanonicalSignature(types.MapCatalogType(v.Array.Type()), "set_Item",
			[]string{types.MapCatalogType(v.Index.Type()), types.MapCatalogType(v.Value.Type())}, "SystemVoid")
		internedSig, err := l.internSignature(sig, emit)
		if err != nil {
			return err
		}
		emit(Instr{Op: OpExtern, Signature: internedSig})
		return nil
	case *tac.Return:
		if v.Value != nil {
			if _, err := l.pushOperand(funcName, v.Value, emit); err != nil {
				return err
			}
		}
		emit(Instr{Op: OpJump, Target: "__halt"})
		return nil
	default:
		return fmt.Errorf("udon: unhandled TAC instruction %T", instr)
	}
}

// lowerMove implements `Assignment`/`Copy` (§4.F): "PUSH src; PUSH dest; COPY".
func (l *Lowerer) lowerMove(funcName string, dest, src tac.Operand, emit func(Instr)) error {
	if _, err := l.pushOperand(funcName, src, emit); err != nil {
		return err
	}
	return l.storeTop(funcName, dest, emit)
}

// emitExternAssign pushes args, calls sig, then stores the result into
// dest, for BinaryOp/UnaryOp/Cast/ArrayAccess (§4.F).
func (l *Lowerer) emitExternAssign(funcName string, emit func(Instr), sig string, pure bool, dest tac.Operand, args []tac.Operand) error {
	for _, a := range args {
		if _, err := l.pushOperand(funcName, a, emit); err != nil {
			return err
		}
	}
	internedSig, err := l.internSignature(sig, emit)
	if err != nil {
		return err
	}
	emit(Instr{Op: OpExtern, Signature: internedSig, Pure: pure})
	return l.storeTop(funcName, dest, emit)
}

func (l *Lowerer) storeTop(funcName string, dest tac.Operand, emit func(Instr)) error {
	name, err := l.slotFor(funcName, dest)
	if err != nil {
		return err
	}
	emit(Instr{Op: OpPush, Operand: name})
	emit(Instr{Op: OpCopy})
	return nil
}

func (l *Lowerer) pushOperand(funcName string, op tac.Operand, emit func(Instr)) (string, error) {
	name, err := l.slotFor(funcName, op)
	if err != nil {
		return "", err
	}
	emit(Instr{Op: OpPush, Operand: name})
	return name, nil
}

// internSignature interns an extern signature string as a hidden
// `__extern_*` String data entry the first time it's seen, returning
// the entry's name for the EXTERN instruction to reference (§4.F: "sig
// strings are interned as hidden __extern_* String constants").
func (l *Lowerer) internSignature(sig string, emit func(Instr)) (string, error) {
	if name, ok := l.externSlots[sig]; ok {
		return name, nil
	}
	name := fmt.Sprintf("__extern_%d", len(l.externSlots))
	l.externSlots[sig] = name
	l.dataOrder = append(l.dataOrder, &DataEntry{
		Name:     name,
		UdonType: "String",
		Value:    Value{Kind: ValueString, Str: sig},
		Internal: true,
	})
	return name, nil
}

// slotFor allocates (or reuses) the data-section slot name for a
// Variable, Temporary, or Constant operand, in TAC traversal order
// (§4.F, §8 invariant 1: every TAC variable gets exactly one slot).
func (l *Lowerer) slotFor(funcName string, op tac.Operand) (string, error) {
	switch v := op.(type) {
	case *tac.Variable:
		return l.variableSlot(funcName, v), nil
	case *tac.Temporary:
		return l.temporarySlot(funcName, v), nil
	case *tac.Constant:
		return l.constantSlot(v), nil
	default:
		return "", fmt.Errorf("udon: operand %T has no data-section representation", op)
	}
}

func (l *Lowerer) variableSlot(funcName string, v *tac.Variable) string {
	key := funcName + "." + v.Name
	if !v.IsLocal {
		// class fields and other globals share one slot across functions
		key = v.Name
	}
	if name, ok := l.varSlots[key]; ok {
		return name
	}
	name := v.Name
	if l.usedNames[name] {
		name = funcName + "_" + v.Name
	}
	l.usedNames[name] = true
	l.varSlots[key] = name

	syncMode := "none"
	hasSync := v.IsExported
	if v.IsExported && l.cfg.DefaultSyncMode != config.SyncNone {
		syncMode = string(l.cfg.DefaultSyncMode)
	}
	l.dataOrder = append(l.dataOrder, &DataEntry{
		Name:     name,
		UdonType: types.ToUdonTypeName(types.MapCatalogType(v.Typ)),
		Value:    zeroValue(v.Typ),
		Exported: v.IsExported,
		SyncMode: syncMode,
		HasSync:  hasSync,
		Internal: isInternalName(name),
	})
	return name
}

func (l *Lowerer) temporarySlot(funcName string, t *tac.Temporary) string {
	key := fmt.Sprintf("%s.t%d", funcName, t.ID)
	if name, ok := l.varSlots[key]; ok {
		return name
	}
	name := fmt.Sprintf("__t_%s_%d", funcName, t.ID)
	l.varSlots[key] = name
	l.dataOrder = append(l.dataOrder, &DataEntry{
		Name:     name,
		UdonType: types.ToUdonTypeName(types.MapCatalogType(t.Typ)),
		Value:    zeroValue(t.Typ),
		Internal: true,
	})
	return name
}

func (l *Lowerer) constantSlot(c *tac.Constant) string {
	key := fmt.Sprintf("%d|%s", c.Kind, c.String())
	if name, ok := l.constSlots[key]; ok {
		return name
	}
	name := fmt.Sprintf("__const_%d", l.anonCounter)
	l.anonCounter++
	l.constSlots[key] = name
	l.dataOrder = append(l.dataOrder, &DataEntry{
		Name:     name,
		UdonType: types.ToUdonTypeName(types.MapCatalogType(c.Type())),
		Value:    constantValue(c),
		Internal: true,
	})
	return name
}

func isInternalName(name string) bool {
	return len(name) >= 2 && name[0] == '_' && name[1] == '_'
}

func zeroValue(t *types.Symbol) Value {
	if t.Kind != types.KindPrimitive {
		return Value{Kind: ValueNull}
	}
	switch t.Primitive {
	case types.Boolean:
		return Value{Kind: ValueBool, Bool: false}
	case types.String, types.Object, types.Void:
		return Value{Kind: ValueNull}
	case types.Int32, types.UInt32, types.Int16, types.UInt16, types.Byte, types.SByte, types.Int64, types.UInt64:
		return Value{Kind: ValueInt, Int: 0}
	default:
		return Value{Kind: ValueNumber, Number: 0}
	}
}

func constantValue(c *tac.Constant) Value {
	switch c.Kind {
	case tac.ConstNull:
		return Value{Kind: ValueNull}
	case tac.ConstBool:
		return Value{Kind: ValueBool, Bool: c.Bool}
	case tac.ConstNumber:
		return Value{Kind: ValueNumber, Number: c.Number}
	case tac.ConstBigInt:
		return Value{Kind: ValueInt, Int: c.BigInt}
	case tac.ConstString, tac.ConstTypeName:
		return Value{Kind: ValueString, Str: c.Str}
	default:
		return Value{Kind: ValueNull}
	}
}
