// Package extern implements the Extern Resolver (component B): turning
// (typeName, memberName, accessKind, paramTypes, returnType) into the
// canonical extern signature string the TAC->Udon lowerer embeds in
// EXTERN instructions, and the inverse — recovering a TypeSymbol from a
// signature's trailing return token.
package extern

import (
	"fmt"
	"strings"

	"github.com/udon-lang/udonc/pkg/compileerrors"
	"github.com/udon-lang/udonc/pkg/types"
)

// AccessKind enumerates the extern access forms §4.B resolves.
type AccessKind int

const (
	Method AccessKind = iota
	Getter
	Setter
	Ctor
)

func (k AccessKind) String() string {
	switch k {
	case Getter:
		return "get"
	case Setter:
		return "set"
	case Ctor:
		return "ctor"
	default:
		return "method"
	}
}

// Catalog is the external collaborator contract (§6.2): a flat name-set
// resolver the core consumes read-only. Implementations must be safe
// for concurrent reads (§5).
type Catalog interface {
	// ResolveExternSignature returns the canonical signature string for
	// (typeName, memberName, accessKind), or ("", false) if absent.
	ResolveExternSignature(typeName, memberName string, kind AccessKind) (string, bool)
	// ComputeTypeID produces the integer tag used by the runtime's
	// GetComponent shim.
	ComputeTypeID(typeName string) uint64
}

// Resolver resolves extern signatures against a Catalog.
type Resolver struct {
	Catalog Catalog
}

// New constructs a Resolver bound to catalog.
func New(catalog Catalog) *Resolver { return &Resolver{Catalog: catalog} }

// RequireExtern resolves (typeName, memberName, accessKind) to its
// canonical signature, failing with ExternMissing if the catalog has no
// matching entry (§4.B requireExtern).
func (r *Resolver) RequireExtern(typeName, memberName string, kind AccessKind, paramTypes []string) (string, error) {
	sig, ok := r.Catalog.ResolveExternSignature(typeName, memberName, kind)
	if !ok {
		return "", &compileerrors.ExternMissingError{
			TypeName:   typeName,
			MemberName: memberName,
			ParamTypes: paramTypes,
		}
	}
	return sig, nil
}

// CanonicalSignature builds the `<HostType>.__<member>__<param1>_<param2>__<ret>`
// string form (§4.B) directly from already-resolved host type names, for
// callers constructing signatures the catalog doesn't need to intern
// (e.g. assembler-synthesised helper externs like the Int32 equality
// check used in restricted-type lowering, §4.G).
func CanonicalSignature(hostType, member string, paramHostTypes []string, returnHostType string) string {
	var b strings.Builder
	b.WriteString(hostType)
	b.WriteString(".__")
	b.WriteString(member)
	b.WriteString("__")
	b.WriteString(strings.Join(paramHostTypes, "_"))
	b.WriteString("__")
	b.WriteString(returnHostType)
	return b.String()
}

// ResolveExternReturnType parses the trailing return token of a
// canonical signature string back into a TypeSymbol (§4.B
// resolveExternReturnType), e.g. ".../SystemBoolean" -> Boolean.
func ResolveExternReturnType(signature string) (*types.Symbol, error) {
	idx := strings.LastIndex(signature, "__")
	if idx < 0 {
		return nil, fmt.Errorf("extern: malformed signature %q: no return token", signature)
	}
	token := signature[idx+2:]
	return hostTokenToSymbol(token), nil
}

func hostTokenToSymbol(token string) *types.Symbol {
	if token == "" || token == "SystemVoid" {
		return types.Prim(types.Void)
	}
	catalogName := types.ToUdonTypeName(token)
	for _, p := range []types.Primitive{
		types.Boolean, types.Byte, types.SByte, types.Int16, types.UInt16,
		types.Int32, types.UInt32, types.Int64, types.UInt64, types.Single,
		types.Double, types.String, types.Void, types.Object,
	} {
		if string(p) == catalogName {
			return types.Prim(p)
		}
	}
	switch catalogName {
	case "DataList":
		return types.DataListOf(types.Prim(types.Object))
	case "DataDictionary":
		return types.CollectionOf(types.Prim(types.Object), types.Prim(types.Object))
	default:
		return types.Extern(catalogName)
	}
}
