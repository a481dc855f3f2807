package lower

import (
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
)

func intType() *types.Symbol    { return types.Prim(types.Int32) }
func boolType() *types.Symbol   { return types.Prim(types.Boolean) }
func objectType() *types.Symbol { return types.Prim(types.Object) }
func singleType() *types.Symbol { return types.Prim(types.Single) }
func stringType() *types.Symbol { return types.Prim(types.String) }

// elementType returns the element TypeSymbol for an array/datalist type,
// or Object when t isn't a known container shape.
func elementType(t *types.Symbol) *types.Symbol {
	switch t.Kind {
	case types.KindArray, types.KindDataList:
		return t.Elem
	default:
		return types.Prim(types.Object)
	}
}

func tacIntZero() *tac.Constant {
	return &tac.Constant{Kind: tac.ConstNumber, Number: 0, Typ: intType()}
}

func tacIntOne() *tac.Constant {
	return &tac.Constant{Kind: tac.ConstNumber, Number: 1, Typ: intType()}
}

func falseConst() *tac.Constant { return tac.BoolConstant(false) }
func trueConst() *tac.Constant  { return tac.BoolConstant(true) }

// isUdonBehaviourType reports whether t names the well-known
// UdonBehaviour extern type, used to route property access through
// GetProgramVariable/SetProgramVariable instead of a catalogued
// getter/setter (§4.D delete rules).
func isUdonBehaviourType(t *types.Symbol) bool {
	return t.Kind == types.KindExtern && t.ExternName == "UdonBehaviour"
}
