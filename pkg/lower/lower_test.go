package lower_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/lower"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/vrcevent"
)

type noopCatalog struct{}

func (noopCatalog) ResolveExternSignature(typeName, memberName string, kind extern.AccessKind) (string, bool) {
	return "", false
}
func (noopCatalog) ComputeTypeID(typeName string) uint64 { return 0 }

func newLowerer() *lower.Lowerer {
	return lower.New(noopCatalog{}, vrcevent.NewReference(), config.Default(), func(string) {})
}

func TestLower_SimpleFunction_AssignsLocalVariable(t *testing.T) {
	fn := &ast.MethodDecl{
		Name: "DoWork",
		Body: &ast.BlockStatement{Statements: []ast.Statement{
			&ast.VariableDeclaration{
				Name:        "x",
				Type:        "number",
				Initializer: &ast.Literal{Kind: ast.LiteralNumber, Num: 10},
				IsLocal:     true,
			},
			&ast.ReturnStatement{Value: &ast.Identifier{Name: "x"}},
		}},
	}
	prog := &ast.Program{Functions: []*ast.MethodDecl{fn}}

	out, err := newLowerer().Lower(prog)
	require.NoError(t, err)
	require.Len(t, out.Functions, 1)
	require.NotEmpty(t, out.Functions[0].Instructions)

	var sawReturn bool
	for _, instr := range out.Functions[0].Instructions {
		if _, ok := instr.(*tac.Return); ok {
			sawReturn = true
		}
	}
	require.True(t, sawReturn, "expected a lowered Return instruction")
}

func TestLower_IfStatement_ProducesConditionalJump(t *testing.T) {
	fn := &ast.MethodDecl{
		Name: "Branch",
		Body: &ast.BlockStatement{Statements: []ast.Statement{
			&ast.IfStatement{
				Condition: &ast.Literal{Kind: ast.LiteralBool, Bool: true},
				Then: &ast.BlockStatement{Statements: []ast.Statement{
					&ast.ReturnStatement{Value: &ast.Literal{Kind: ast.LiteralNumber, Num: 1}},
				}},
				Else: &ast.BlockStatement{Statements: []ast.Statement{
					&ast.ReturnStatement{Value: &ast.Literal{Kind: ast.LiteralNumber, Num: 2}},
				}},
			},
		}},
	}
	prog := &ast.Program{Functions: []*ast.MethodDecl{fn}}

	out, err := newLowerer().Lower(prog)
	require.NoError(t, err)

	var sawConditionalJump bool
	for _, instr := range out.Functions[0].Instructions {
		if _, ok := instr.(*tac.ConditionalJump); ok {
			sawConditionalJump = true
		}
	}
	require.True(t, sawConditionalJump, "expected a lowered ConditionalJump for the if condition")
}

func TestLower_UdonBehaviourEventMethod_GetsCanonicalEntryLabel(t *testing.T) {
	class := &ast.ClassDecl{
		Name:            "Behaviour",
		IsUdonBehaviour: true,
		Methods: []*ast.MethodDecl{
			{Name: "Start", Body: &ast.BlockStatement{}},
		},
	}
	prog := &ast.Program{Classes: []*ast.ClassDecl{class}}

	out, err := newLowerer().Lower(prog)
	require.NoError(t, err)
	require.Len(t, out.Functions, 1)
	require.Equal(t, "_start", out.Functions[0].Name)
}

type stubCatalog struct{}

func (stubCatalog) ResolveExternSignature(typeName, memberName string, kind extern.AccessKind) (string, bool) {
	if typeName == "GameObject" && memberName == "DoThing" && kind == extern.Method {
		return "GameObject.__DoThing____SystemObject", true
	}
	return "", false
}
func (stubCatalog) ComputeTypeID(typeName string) uint64 { return 0 }

func TestLower_NullableExternCallInsideTry_JumpsToCatchOnNull(t *testing.T) {
	l := lower.New(stubCatalog{}, vrcevent.NewReference(), config.Default(), func(string) {})

	fn := &ast.MethodDecl{
		Name: "Risky",
		Body: &ast.BlockStatement{Statements: []ast.Statement{
			&ast.VariableDeclaration{
				Name:        "obj",
				Type:        "GameObject",
				Initializer: &ast.Literal{Kind: ast.LiteralNull},
				IsLocal:     true,
			},
			&ast.TryCatchStatement{
				Try: &ast.BlockStatement{Statements: []ast.Statement{
					&ast.ExpressionStatement{Expr: &ast.CallExpression{
						Receiver: &ast.Identifier{Name: "obj"},
						Callee:   "DoThing",
					}},
				}},
				CatchVar: "err",
				Catch:    &ast.BlockStatement{},
			},
			&ast.ReturnStatement{},
		}},
	}
	prog := &ast.Program{Functions: []*ast.MethodDecl{fn}}

	out, err := l.Lower(prog)
	require.NoError(t, err)

	instrs := out.Functions[0].Instructions

	var sawMethodCall, sawNullCheck, sawFlagSet, sawErrorCopy, sawCatchJump bool
	for _, instr := range instrs {
		switch v := instr.(type) {
		case *tac.MethodCall:
			sawMethodCall = true
		case *tac.BinaryOp:
			if v.Op == "!=" {
				if c, ok := v.Right.(*tac.Constant); ok && c.Kind == tac.ConstNull {
					sawNullCheck = true
				}
			}
		case *tac.Assignment:
			if c, ok := v.Src.(*tac.Constant); ok && c.Kind == tac.ConstBool && c.Bool {
				sawFlagSet = true
			}
		case *tac.Copy:
			if _, ok := v.Src.(*tac.Temporary); ok {
				sawErrorCopy = true
			}
		case *tac.UnconditionalJump:
			if v.Target != nil {
				sawCatchJump = true
			}
		}
	}
	require.True(t, sawMethodCall, "expected the DoThing MethodCall to be lowered")
	require.True(t, sawNullCheck, "expected a post-call null-check BinaryOp")
	require.True(t, sawFlagSet, "expected the try error flag to be set to true on the null branch")
	require.True(t, sawErrorCopy, "expected the call result to be copied into the error-value variable")
	require.True(t, sawCatchJump, "expected an unconditional jump toward the catch label")
}

func TestLower_NumberIsFinite_StrictFormChecksInfinities(t *testing.T) {
	fn := &ast.MethodDecl{
		Name: "CheckStrict",
		Body: &ast.BlockStatement{Statements: []ast.Statement{
			&ast.ReturnStatement{Value: &ast.CallExpression{
				Receiver: &ast.Identifier{Name: "Number"},
				Callee:   "isFinite",
				Args:     []ast.Expr{&ast.Literal{Kind: ast.LiteralNumber, Num: 1}},
			}},
		}},
	}
	prog := &ast.Program{Functions: []*ast.MethodDecl{fn}}

	cfg := config.Default()
	cfg.StrictIsFinite = true
	l := lower.New(noopCatalog{}, vrcevent.NewReference(), cfg, func(string) {})
	out, err := l.Lower(prog)
	require.NoError(t, err)

	var andCount, infCompareCount int
	for _, instr := range out.Functions[0].Instructions {
		bo, ok := instr.(*tac.BinaryOp)
		if !ok {
			continue
		}
		if bo.Op == "&&" {
			andCount++
		}
		if bo.Op == "!=" {
			if c, ok := bo.Right.(*tac.Constant); ok && c.Kind == tac.ConstNumber && math.IsInf(c.Number, 0) {
				infCompareCount++
			}
		}
	}
	require.Equal(t, 2, andCount, "strict isFinite combines self-equality with both infinity checks via &&")
	require.Equal(t, 2, infCompareCount, "expected comparisons against both +Inf and -Inf")
}

func TestLower_NumberIsFinite_LooseFormSkipsInfinityChecks(t *testing.T) {
	fn := &ast.MethodDecl{
		Name: "CheckLoose",
		Body: &ast.BlockStatement{Statements: []ast.Statement{
			&ast.ReturnStatement{Value: &ast.CallExpression{
				Receiver: &ast.Identifier{Name: "Number"},
				Callee:   "isFinite",
				Args:     []ast.Expr{&ast.Literal{Kind: ast.LiteralNumber, Num: 1}},
			}},
		}},
	}
	prog := &ast.Program{Functions: []*ast.MethodDecl{fn}}

	cfg := config.Default()
	cfg.StrictIsFinite = false
	l := lower.New(noopCatalog{}, vrcevent.NewReference(), cfg, func(string) {})
	out, err := l.Lower(prog)
	require.NoError(t, err)

	var sawAnd, sawSelfEqual bool
	for _, instr := range out.Functions[0].Instructions {
		bo, ok := instr.(*tac.BinaryOp)
		if !ok {
			continue
		}
		if bo.Op == "&&" {
			sawAnd = true
		}
		if bo.Op == "==" {
			sawSelfEqual = true
		}
	}
	require.True(t, sawSelfEqual, "loose isFinite still checks self-equality to reject NaN")
	require.False(t, sawAnd, "loose isFinite should not need to combine infinity checks")
}

type udonBehaviourCatalog struct{}

const setProgramVariableSig = "UdonBehaviour.__SetProgramVariable__SystemString_SystemObject"

func (udonBehaviourCatalog) ResolveExternSignature(typeName, memberName string, kind extern.AccessKind) (string, bool) {
	if typeName == "UdonBehaviour" && memberName == "SetProgramVariable" && kind == extern.Method {
		return setProgramVariableSig, true
	}
	return "", false
}
func (udonBehaviourCatalog) ComputeTypeID(typeName string) uint64 { return 0 }

func TestLower_DeleteUdonBehaviourProperty_EmitsSetProgramVariable(t *testing.T) {
	l := lower.New(udonBehaviourCatalog{}, vrcevent.NewReference(), config.Default(), func(string) {})

	fn := &ast.MethodDecl{
		Name: "Forget",
		Body: &ast.BlockStatement{Statements: []ast.Statement{
			&ast.VariableDeclaration{
				Name:        "obj",
				Type:        "UdonBehaviour",
				Initializer: &ast.Literal{Kind: ast.LiteralNull},
				IsLocal:     true,
			},
			&ast.ExpressionStatement{Expr: &ast.DeleteExpression{
				Target: &ast.PropertyAccessExpression{
					Object: &ast.Identifier{Name: "obj"},
					Field:  "score",
				},
			}},
		}},
	}
	prog := &ast.Program{Functions: []*ast.MethodDecl{fn}}

	out, err := l.Lower(prog)
	require.NoError(t, err)

	var sawSetProgramVariable bool
	for _, instr := range out.Functions[0].Instructions {
		mc, ok := instr.(*tac.MethodCall)
		if !ok || mc.Signature != setProgramVariableSig {
			continue
		}
		require.Len(t, mc.Args, 2)
		s, ok := mc.Args[0].(*tac.Constant)
		require.True(t, ok)
		require.Equal(t, "score", s.Str)
		n, ok := mc.Args[1].(*tac.Constant)
		require.True(t, ok)
		require.Equal(t, tac.ConstNull, n.Kind)
		sawSetProgramVariable = true
	}
	require.True(t, sawSetProgramVariable, "expected delete on an UdonBehaviour property to emit SetProgramVariable(name, null)")
}

func TestLower_UndefinedSymbol_ReturnsError(t *testing.T) {
	fn := &ast.MethodDecl{
		Name: "Broken",
		Body: &ast.BlockStatement{Statements: []ast.Statement{
			&ast.ReturnStatement{Value: &ast.Identifier{Name: "doesNotExist"}},
		}},
	}
	prog := &ast.Program{Functions: []*ast.MethodDecl{fn}}

	_, err := newLowerer().Lower(prog)
	require.Error(t, err)
}
