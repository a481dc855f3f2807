// Package tac implements the Three-Address-Code intermediate
// representation (component C, §3.2-§3.3): operand/instruction data
// model and a text printer.
package tac

import (
	"fmt"

	"github.com/udon-lang/udonc/pkg/types"
)

// Operand is the interface implemented by every TAC operand kind.
type Operand interface {
	operandNode()
	Type() *types.Symbol
	String() string
}

// Variable is a named, scoped operand (§3.2). Names are unique within
// the surrounding scope.
type Variable struct {
	Name        string
	Typ         *types.Symbol
	IsLocal     bool
	IsParameter bool
	IsExported  bool
}

func (*Variable) operandNode()        {}
func (v *Variable) Type() *types.Symbol { return v.Typ }
func (v *Variable) String() string      { return v.Name }

// Temporary is a numeric-id operand (§3.2). Ids are unique within a
// function.
type Temporary struct {
	ID  int
	Typ *types.Symbol
}

func (*Temporary) operandNode()        {}
func (t *Temporary) Type() *types.Symbol { return t.Typ }
func (t *Temporary) String() string      { return fmt.Sprintf("t%d", t.ID) }

// ConstKind discriminates the dynamic variant a Constant carries (§9
// "model as a tagged variant").
type ConstKind int

const (
	ConstNull ConstKind = iota
	ConstBool
	ConstNumber
	ConstBigInt
	ConstString
	ConstTypeName // string-representing-type-name
	ConstStruct   // struct-literal (e.g. Vector3(...))
)

// Constant is a compile-time value operand (§3.2). `null` always carries
// type Object per the spec invariant.
type Constant struct {
	Kind   ConstKind
	Bool   bool
	Number float64
	BigInt int64
	Str    string
	Struct *StructLiteral
	Typ    *types.Symbol
}

// StructLiteral is a value-type constructor constant, e.g. Vector3(1,2,3).
type StructLiteral struct {
	TypeName string
	Fields   []Operand
}

func (*Constant) operandNode() {}
func (c *Constant) Type() *types.Symbol {
	if c.Typ != nil {
		return c.Typ
	}
	return types.Prim(types.Object)
}
func (c *Constant) String() string {
	switch c.Kind {
	case ConstNull:
		return "null"
	case ConstBool:
		if c.Bool {
			return "true"
		}
		return "false"
	case ConstNumber:
		return fmt.Sprintf("%v", c.Number)
	case ConstBigInt:
		return fmt.Sprintf("%dL", c.BigInt)
	case ConstString, ConstTypeName:
		return fmt.Sprintf("%q", c.Str)
	case ConstStruct:
		return fmt.Sprintf("%s(...)", c.Struct.TypeName)
	default:
		return "<const>"
	}
}

// NullConstant builds the Object-typed null constant.
func NullConstant() *Constant { return &Constant{Kind: ConstNull, Typ: types.Prim(types.Object)} }

// BoolConstant builds a Boolean constant.
func BoolConstant(v bool) *Constant {
	return &Constant{Kind: ConstBool, Bool: v, Typ: types.Prim(types.Boolean)}
}

// NumberConstant builds a Single constant (surface `number` always lowers
// to Single, §3.1).
func NumberConstant(v float64) *Constant {
	return &Constant{Kind: ConstNumber, Number: v, Typ: types.Prim(types.Single)}
}

// BigIntConstant builds an Int64 constant.
func BigIntConstant(v int64) *Constant {
	return &Constant{Kind: ConstBigInt, BigInt: v, Typ: types.Prim(types.Int64)}
}

// StringConstant builds a String constant.
func StringConstant(v string) *Constant {
	return &Constant{Kind: ConstString, Str: v, Typ: types.Prim(types.String)}
}

// Label is a program-wide-unique jump target operand (§3.2).
type Label struct {
	Name string
}

func (*Label) operandNode()          {}
func (l *Label) Type() *types.Symbol { return types.Prim(types.Void) }
func (l *Label) String() string      { return l.Name }
