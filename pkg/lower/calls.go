package lower

import (
	"github.com/udon-lang/udonc/pkg/ast"
	"github.com/udon-lang/udonc/pkg/compileerrors"
	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/tac"
)

// lowerCall dispatches a CallExpression through, in priority order: the
// built-in global forms (Number/BigInt/parseInt/parseFloat/Array/Set/Map/
// setImmediate with no receiver), the receiver-qualified built-in
// namespaces (Math/console/Date/Object), inlined user static methods,
// and finally a generic catalogued Call/MethodCall (§4.D, §4.F).
func (l *Lowerer) lowerCall(c *ast.CallExpression) (tac.Operand, error) {
	if c.Receiver == nil {
		if val, handled, err := l.lowerGlobalBuiltinCall(c); handled || err != nil {
			return val, err
		}
		if val, handled, err := l.tryInlineStaticCall(c); handled || err != nil {
			return val, err
		}
		return l.lowerGenericFreeCall(c)
	}

	receiverID, isBareIdentifierReceiver := c.Receiver.(*ast.Identifier)
	if isBareIdentifierReceiver {
		if val, handled, err := l.lowerNamespacedBuiltinCall(receiverID.Name, c); handled || err != nil {
			return val, err
		}
	}

	receiver, err := l.lowerExpr(c.Receiver)
	if err != nil {
		return nil, err
	}
	return l.lowerCallWithReceiver(receiver, c)
}

func (l *Lowerer) lowerCallWithReceiver(receiver tac.Operand, c *ast.CallExpression) (tac.Operand, error) {
	if val, handled, err := l.lowerCollectionCallbackCall(receiver, c); handled || err != nil {
		return val, err
	}

	args, err := l.lowerArgs(c.Args)
	if err != nil {
		return nil, err
	}
	kind := extern.Method
	sig, err := l.resolver.RequireExtern(receiver.Type().String(), c.Callee, kind, operandTypeNames(args))
	if err != nil {
		return nil, err
	}
	dest := l.newTemp(objectType())
	l.emit(&tac.MethodCall{Dest: dest, Receiver: receiver, Signature: sig, Args: args})
	return dest, nil
}

func (l *Lowerer) lowerGenericFreeCall(c *ast.CallExpression) (tac.Operand, error) {
	args, err := l.lowerArgs(c.Args)
	if err != nil {
		return nil, err
	}
	if c.IsNew {
		sig, err := l.resolver.RequireExtern(c.Callee, "ctor", extern.Ctor, operandTypeNames(args))
		if err != nil {
			return nil, err
		}
		dest := l.newTemp(l.mapType(c.Callee))
		l.emit(&tac.Call{Dest: dest, Signature: sig, IsExtern: true, Args: args})
		return dest, nil
	}
	// A bare call to a name with no receiver and no catalog entry is a
	// call to a user-declared free function that was not selected for
	// inlining (§4.D treats large/recursive helpers this way).
	dest := l.newTemp(objectType())
	l.emit(&tac.Call{Dest: dest, Signature: c.Callee, IsExtern: false, Args: args})
	return dest, nil
}

func (l *Lowerer) lowerArgs(exprs []ast.Expr) ([]tac.Operand, error) {
	args := make([]tac.Operand, len(exprs))
	for i, e := range exprs {
		v, err := l.lowerExpr(e)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func operandTypeNames(ops []tac.Operand) []string {
	names := make([]string, len(ops))
	for i, o := range ops {
		names[i] = o.Type().String()
	}
	return names
}

// lowerInstanceOf constant-folds `instanceof` to the conservative
// default `false` (§4.D, §9): the deterministic host has no runtime
// type-identity surface this lowerer can reduce to.
func (l *Lowerer) lowerInstanceOf(i *ast.InstanceOfExpression) (tac.Operand, error) {
	if _, err := l.lowerExpr(i.Value); err != nil {
		return nil, err
	}
	return tac.BoolConstant(false), nil
}

func unsupportedCall(c *ast.CallExpression, detail string, loc compileerrors.Location) error {
	return &compileerrors.UnsupportedFeatureError{Feature: c.Callee, Detail: detail, Loc: loc}
}
