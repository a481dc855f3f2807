// Package vrcevent implements the VRChat Event Registry contract (§6.3):
// recognising surface method names that double as VM event entry points,
// so the assembler can export and prioritise their labels (§4.G).
package vrcevent

// Definition describes a recognised VRChat event's wire-level shape.
type Definition struct {
	UdonName   string
	Parameters []string
}

// Registry is the external collaborator contract (§6.2-sibling, §6.3):
// a flat, read-only name set the core consumes.
type Registry interface {
	IsVrcEventLabel(name string) bool
	GetVrcEventDefinition(name string) (Definition, bool)
}

// reference is a small built-in Registry covering the commonly used
// Udon lifecycle and input events, sufficient to drive the core
// pipeline end-to-end (§8 S1-S6) without a real catalog file. A richer
// table can be supplied via pkg/catalogio for production use.
type reference struct {
	defs map[string]Definition
}

// NewReference constructs the built-in reference Registry.
func NewReference() Registry {
	return &reference{defs: builtinEvents}
}

func (r *reference) IsVrcEventLabel(name string) bool {
	_, ok := r.defs[name]
	return ok
}

func (r *reference) GetVrcEventDefinition(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

var builtinEvents = map[string]Definition{
	"Start":                  {UdonName: "_start", Parameters: nil},
	"Update":                 {UdonName: "_update", Parameters: nil},
	"LateUpdate":             {UdonName: "_lateUpdate", Parameters: nil},
	"FixedUpdate":            {UdonName: "_fixedUpdate", Parameters: nil},
	"OnEnable":               {UdonName: "_onEnable", Parameters: nil},
	"OnDisable":              {UdonName: "_onDisable", Parameters: nil},
	"OnDeserialization":      {UdonName: "_onDeserialization", Parameters: nil},
	"OnPreSerialization":     {UdonName: "_onPreSerialization", Parameters: nil},
	"OnPlayerJoined":         {UdonName: "_onPlayerJoined", Parameters: []string{"player"}},
	"OnPlayerLeft":           {UdonName: "_onPlayerLeft", Parameters: []string{"player"}},
	"OnPlayerTriggerEnter":   {UdonName: "_onPlayerTriggerEnter", Parameters: []string{"player"}},
	"OnPlayerTriggerExit":    {UdonName: "_onPlayerTriggerExit", Parameters: []string{"player"}},
	"Interact":               {UdonName: "_interact", Parameters: nil},
	"OnPickup":               {UdonName: "_onPickup", Parameters: nil},
	"OnDrop":                 {UdonName: "_onDrop", Parameters: nil},
	"OnOwnershipTransferred": {UdonName: "_onOwnershipTransferred", Parameters: []string{"player"}},
}
