package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/pipeline"
	"github.com/udon-lang/udonc/pkg/vrcevent"
)

// S1: simple assignment of a literal to an exported field inside Start.
func TestScenario_SimpleAssignment(t *testing.T) {
	class := &ast.ClassDecl{
		Name:            "Behaviour",
		IsUdonBehaviour: true,
		Properties: []*ast.PropertyDecl{
			{Name: "score", Type: "number", IsSerializeField: true},
		},
		Methods: []*ast.MethodDecl{
			{
				Name: "Start",
				Body: &ast.BlockStatement{Statements: []ast.Statement{
					&ast.ExpressionStatement{Expr: &ast.AssignmentExpression{
						Target: &ast.Identifier{Name: "score"},
						Value:  &ast.Literal{Kind: ast.LiteralNumber, Num: 42},
					}},
				}},
			},
		},
	}
	prog := &ast.Program{Classes: []*ast.ClassDecl{class}}

	d := &pipeline.Driver{
		Catalog: refCatalog{},
		Events:  vrcevent.NewReference(),
		Config:  config.Default(),
	}
	res, err := d.Compile(context.Background(), prog)
	require.NoError(t, err)
	require.Contains(t, res.Assembly, ".data_start")
	require.Contains(t, res.Assembly, "score")
	require.Contains(t, res.Assembly, "_start:")
}

// refCatalog satisfies extern.Catalog with no entries; only used where
// the program never actually needs an extern lookup.
type refCatalog struct{}

func (refCatalog) ResolveExternSignature(typeName, memberName string, kind extern.AccessKind) (string, bool) {
	return "", false
}
func (refCatalog) ComputeTypeID(typeName string) uint64 { return 0 }

func TestScenario_ConditionalJump(t *testing.T) {
	class := &ast.ClassDecl{
		Name:            "Behaviour",
		IsUdonBehaviour: true,
		Properties: []*ast.PropertyDecl{
			{Name: "flag", Type: "boolean"},
		},
		Methods: []*ast.MethodDecl{
			{
				Name: "Update",
				Body: &ast.BlockStatement{Statements: []ast.Statement{
					&ast.IfStatement{
						Condition: &ast.Identifier{Name: "flag"},
						Then: &ast.BlockStatement{Statements: []ast.Statement{
							&ast.ExpressionStatement{Expr: &ast.AssignmentExpression{
								Target: &ast.Identifier{Name: "flag"},
								Value:  &ast.Literal{Kind: ast.LiteralBool, Bool: false},
							}},
						}},
					},
				}},
			},
		},
	}
	prog := &ast.Program{Classes: []*ast.ClassDecl{class}}

	d := &pipeline.Driver{
		Catalog: refCatalog{},
		Events:  vrcevent.NewReference(),
		Config:  config.Default(),
	}
	res, err := d.Compile(context.Background(), prog)
	require.NoError(t, err)
	require.True(t, strings.Contains(res.Assembly, "JUMP_IF_FALSE") || strings.Contains(res.Assembly, "JUMP"))
}
