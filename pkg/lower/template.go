package lower

import (
	"fmt"
	"strings"

	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
)

// lowerTemplate implements §4.D Template literals: if every interpolated
// expression is a literal, the whole expression constant-folds to a
// single string; otherwise it's emitted as a chain of
// String.Concat(left, right) externs, with non-string operands first
// .ToString()-ified.
func (l *Lowerer) lowerTemplate(t *ast.TemplateExpression) (tac.Operand, error) {
	if allLiteral(t.Exprs) {
		var b strings.Builder
		for i, part := range t.Parts {
			b.WriteString(part)
			if i < len(t.Exprs) {
				b.WriteString(literalToString(t.Exprs[i].(*ast.Literal)))
			}
		}
		return tac.StringConstant(b.String()), nil
	}

	pieces := make([]tac.Operand, 0, len(t.Parts)+len(t.Exprs))
	for i, part := range t.Parts {
		if part != "" {
			pieces = append(pieces, tac.StringConstant(part))
		}
		if i < len(t.Exprs) {
			v, err := l.lowerExpr(t.Exprs[i])
			if err != nil {
				return nil, err
			}
			pieces = append(pieces, v)
		}
	}
	if len(pieces) == 0 {
		return tac.StringConstant(""), nil
	}

	result, err := l.toStringOperand(pieces[0])
	if err != nil {
		return nil, err
	}
	concatSig, err := l.resolver.RequireExtern("SystemString", "Concat", extern.Method, []string{"SystemString", "SystemString"})
	if err != nil {
		return nil, err
	}
	for _, p := range pieces[1:] {
		s, err := l.toStringOperand(p)
		if err != nil {
			return nil, err
		}
		dest := l.newTemp(stringType())
		l.emit(&tac.Call{Dest: dest, Signature: concatSig, IsExtern: true, Pure: true, Args: []tac.Operand{result, s}})
		result = dest
	}
	return result, nil
}

func (l *Lowerer) toStringOperand(o tac.Operand) (tac.Operand, error) {
	if o.Type().Kind == types.KindPrimitive && o.Type().Primitive == types.String {
		return o, nil
	}
	if c, ok := o.(*tac.Constant); ok && c.Kind == tac.ConstString {
		return o, nil
	}
	sig, err := l.resolver.RequireExtern(o.Type().String(), "ToString", extern.Method, nil)
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(stringType())
	l.emit(&tac.MethodCall{Dest: dest, Receiver: o, Signature: sig, Pure: true})
	return dest, nil
}

func allLiteral(exprs []ast.Expr) bool {
	for _, e := range exprs {
		if _, ok := e.(*ast.Literal); !ok {
			return false
		}
	}
	return true
}

func literalToString(lit *ast.Literal) string {
	switch lit.Kind {
	case ast.LiteralNull:
		return "null"
	case ast.LiteralBool:
		if lit.Bool {
			return "true"
		}
		return "false"
	case ast.LiteralNumber:
		return fmt.Sprintf("%v", lit.Num)
	case ast.LiteralBigInt:
		return fmt.Sprintf("%d", lit.Big)
	case ast.LiteralString:
		return lit.Str
	default:
		return ""
	}
}
