// Package types implements the canonical TypeSymbol model (component A):
// mapping surface-language type names to host type names and to the
// catalog category tags the extern resolver and assembler consume.
package types

import (
	"fmt"
	"strings"
)

// Kind discriminates the shape of a TypeSymbol.
type Kind int

const (
	KindPrimitive Kind = iota
	KindExtern
	KindArray
	KindDataList
	KindCollection
	KindUserClass
)

// Primitive enumerates the fixed set of surface/host primitive types.
type Primitive string

const (
	Boolean Primitive = "Boolean"
	Byte    Primitive = "Byte"
	SByte   Primitive = "SByte"
	Int16   Primitive = "Int16"
	UInt16  Primitive = "UInt16"
	Int32   Primitive = "Int32"
	UInt32  Primitive = "UInt32"
	Int64   Primitive = "Int64"
	UInt64  Primitive = "UInt64"
	Single  Primitive = "Single"
	Double  Primitive = "Double"
	String  Primitive = "String"
	Void    Primitive = "Void"
	Object  Primitive = "Object"
)

// Symbol is a canonical TypeSymbol (§3.1). Only the fields relevant to
// Kind are populated; callers should switch on Kind before reading them.
type Symbol struct {
	Kind      Kind
	Primitive Primitive
	ExternName string   // KindExtern: host type name, e.g. "Vector3"
	Elem      *Symbol   // KindArray / KindDataList: element type
	KeyType   *Symbol   // KindCollection: key type
	ValueType *Symbol   // KindCollection: value type
	ClassName string    // KindUserClass
}

// Prim constructs a primitive TypeSymbol.
func Prim(p Primitive) *Symbol { return &Symbol{Kind: KindPrimitive, Primitive: p} }

// Extern constructs a named host-extern-type TypeSymbol (Vector3, GameObject, …).
func Extern(name string) *Symbol { return &Symbol{Kind: KindExtern, ExternName: name} }

// ArrayOf constructs an array-of(T) TypeSymbol.
func ArrayOf(elem *Symbol) *Symbol { return &Symbol{Kind: KindArray, Elem: elem} }

// DataListOf constructs a datalist-of(T) TypeSymbol.
func DataListOf(elem *Symbol) *Symbol { return &Symbol{Kind: KindDataList, Elem: elem} }

// CollectionOf constructs a collection(keyType, valueType) TypeSymbol.
func CollectionOf(key, value *Symbol) *Symbol {
	return &Symbol{Kind: KindCollection, KeyType: key, ValueType: value}
}

// UserClass constructs a user-class TypeSymbol.
func UserClass(name string) *Symbol { return &Symbol{Kind: KindUserClass, ClassName: name} }

// NullObject is the Object-typed null constant (§3.2: "null values carry type Object").
func NullObject() *Symbol { return Prim(Object) }

// wellKnownExternTypes lists host types recognised directly by name, as
// opposed to requiring a catalog lookup. Unknown names still resolve to
// KindExtern (the catalog, not this package, is the source of truth for
// whether the name is real) but are flagged via IsWellKnown for logging.
var wellKnownExternTypes = map[string]bool{
	"Vector3": true, "Vector2": true, "Vector4": true, "Quaternion": true,
	"Color": true, "GameObject": true, "Transform": true,
	"DataList": true, "DataDictionary": true, "DataToken": true, "SystemType": true,
	"UdonBehaviour": true,
}

// IsWellKnown reports whether name is one of the extern types this
// package recognises without consulting the catalog.
func IsWellKnown(name string) bool { return wellKnownExternTypes[name] }

var primitiveNames = map[string]Primitive{
	"Boolean": Boolean, "bool": Boolean, "boolean": Boolean,
	"Byte": Byte, "SByte": SByte,
	"Int16": Int16, "UInt16": UInt16,
	"Int32": Int32, "UInt32": UInt32,
	"Int64": Int64, "UInt64": UInt64,
	"bigint": Int64,
	"Single": Single, "number": Single, "float": Single,
	"Double": Double,
	"String": String, "string": String,
	"Void": Void, "void": Void,
	"Object": Object, "object": Object, "any": Object,
}

// MapSurfaceType maps a surface-language type annotation text to a
// TypeSymbol (§4.A mapSurfaceType). Textual type arguments (Array<X>,
// UdonList<X>, Map<K,V>, Set<T>) produce parameterised symbols. Unknown
// names fall back to Object; onUnknown, if non-nil, is invoked so the
// caller can log the fallback (the resolver itself never throws).
func MapSurfaceType(text string, onUnknown func(name string)) *Symbol {
	text = strings.TrimSpace(text)
	if text == "" {
		return Prim(Object)
	}

	if name, arg, ok := splitGeneric(text); ok {
		switch name {
		case "Array", "UdonList":
			return ArrayOf(MapSurfaceType(arg, onUnknown))
		case "Set":
			return DataListOf(MapSurfaceType(arg, onUnknown))
		case "Map":
			k, v, ok := splitTypeArgPair(arg)
			if !ok {
				if onUnknown != nil {
					onUnknown(text)
				}
				return Prim(Object)
			}
			return CollectionOf(MapSurfaceType(k, onUnknown), MapSurfaceType(v, onUnknown))
		}
	}

	if strings.HasSuffix(text, "[]") {
		return ArrayOf(MapSurfaceType(strings.TrimSuffix(text, "[]"), onUnknown))
	}

	if p, ok := primitiveNames[text]; ok {
		return Prim(p)
	}
	if IsWellKnown(text) {
		return Extern(text)
	}
	// Anything CamelCase and otherwise unrecognised is treated as a
	// user-declared class; a genuinely unknown/garbled name still must
	// fall back to Object, but we have no way to distinguish here
	// without the class registry, so the lowerer is expected to pass
	// known class names explicitly. This package only owns the
	// primitive/extern/generic cases described by §4.A.
	if onUnknown != nil {
		onUnknown(text)
	}
	return Prim(Object)
}

// MapKnownClass wraps text as a user-class TypeSymbol when the lowerer's
// class registry confirms it names a declared class.
func MapKnownClass(name string) *Symbol { return UserClass(name) }

func splitGeneric(text string) (name, arg string, ok bool) {
	open := strings.IndexByte(text, '<')
	if open < 0 || !strings.HasSuffix(text, ">") {
		return "", "", false
	}
	return text[:open], text[open+1 : len(text)-1], true
}

func splitTypeArgPair(arg string) (k, v string, ok bool) {
	depth := 0
	for i, r := range arg {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(arg[:i]), strings.TrimSpace(arg[i+1:]), true
			}
		}
	}
	return "", "", false
}

// MapCatalogType maps a TypeSymbol to its host type name (§4.A
// mapCatalogType), e.g. Prim(Single) -> "SystemSingle".
func MapCatalogType(t *Symbol) string {
	switch t.Kind {
	case KindPrimitive:
		return "System" + string(t.Primitive)
	case KindExtern:
		return hostNamespaceFor(t.ExternName) + t.ExternName
	case KindArray:
		return MapCatalogType(t.Elem) + "Array"
	case KindDataList:
		return "VRCDataList"
	case KindCollection:
		return "VRCDataDictionary"
	case KindUserClass:
		return t.ClassName
	default:
		return "SystemObject"
	}
}

func hostNamespaceFor(externName string) string {
	switch externName {
	case "Vector3", "Vector2", "Vector4", "Quaternion", "Color", "GameObject", "Transform":
		return "UnityEngine"
	case "DataList", "DataDictionary", "DataToken":
		return "VRC"
	case "SystemType":
		return "System"
	case "UdonBehaviour":
		return "VRCUdon"
	default:
		return ""
	}
}

// ToUdonTypeName maps a host type name to the catalog tag used by the
// resolver and assembler (§4.A toUdonTypeName), e.g. "SystemSingle" ->
// "Single", "VRCDataList" -> "DataList".
func ToUdonTypeName(hostName string) string {
	switch {
	case strings.HasPrefix(hostName, "System"):
		return strings.TrimPrefix(hostName, "System")
	case strings.HasPrefix(hostName, "UnityEngine"):
		return strings.TrimPrefix(hostName, "UnityEngine")
	case strings.HasPrefix(hostName, "VRCData"):
		return strings.TrimPrefix(hostName, "VRC")
	case strings.HasPrefix(hostName, "VRC"):
		return strings.TrimPrefix(hostName, "VRC")
	default:
		return hostName
	}
}

// IsRestrictedNullOnly reports whether t belongs to the assembler's
// null-only restricted set (§4.G: "currently Boolean only").
func IsRestrictedNullOnly(t *Symbol) bool {
	return t.Kind == KindPrimitive && t.Primitive == Boolean
}

// IsValueCategory reports whether t is a value-category type subject to
// copy-on-write expansion (§4.E pass 14): everything except
// numeric/boolean/string.
func IsValueCategory(t *Symbol) bool {
	switch t.Kind {
	case KindPrimitive:
		switch t.Primitive {
		case Boolean, Byte, SByte, Int16, UInt16, Int32, UInt32, Int64, UInt64, Single, Double, String, Void:
			return false
		}
		return true
	default:
		return true
	}
}

// String renders a TypeSymbol for diagnostics and TAC printing.
func (t *Symbol) String() string {
	switch t.Kind {
	case KindPrimitive:
		return string(t.Primitive)
	case KindExtern:
		return t.ExternName
	case KindArray:
		return fmt.Sprintf("Array<%s>", t.Elem.String())
	case KindDataList:
		return fmt.Sprintf("DataList<%s>", t.Elem.String())
	case KindCollection:
		return fmt.Sprintf("Map<%s,%s>", t.KeyType.String(), t.ValueType.String())
	case KindUserClass:
		return t.ClassName
	default:
		return "Object"
	}
}

// Equal reports structural equality between two TypeSymbols.
func Equal(a, b *Symbol) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindPrimitive:
		return a.Primitive == b.Primitive
	case KindExtern:
		return a.ExternName == b.ExternName
	case KindArray, KindDataList:
		return Equal(a.Elem, b.Elem)
	case KindCollection:
		return Equal(a.KeyType, b.KeyType) && Equal(a.ValueType, b.ValueType)
	case KindUserClass:
		return a.ClassName == b.ClassName
	default:
		return true
	}
}
