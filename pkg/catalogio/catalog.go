// Package catalogio loads a reference extern catalog and VRChat event
// registry from YAML documents, giving the interface-only collaborator
// contracts of §6.2/§6.3 a concrete, file-backed implementation for
// tests and the CLI (§13). Grounded in the teacher's use of
// gopkg.in/yaml.v3 for declarative fixture loading.
package catalogio

import (
	"fmt"
	"hash/fnv"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/udon-lang/udonc/pkg/extern"
	"github.com/udon-lang/udonc/pkg/vrcevent"
)

// externEntry is one YAML row describing a resolvable extern member.
type externEntry struct {
	Type      string `yaml:"type"`
	Member    string `yaml:"member"`
	Kind      string `yaml:"kind"`
	Signature string `yaml:"signature"`
}

// eventEntry is one YAML row describing a VRChat event.
type eventEntry struct {
	Name     string   `yaml:"name"`
	UdonName string   `yaml:"udon_name"`
	Params   []string `yaml:"params"`
}

// document is the top-level shape of a catalog YAML file.
type document struct {
	Externs []externEntry `yaml:"externs"`
	Events  []eventEntry  `yaml:"events"`
}

// Catalog is a YAML-backed implementation of extern.Catalog and
// vrcevent.Registry, safe for concurrent reads once loaded (§5).
type Catalog struct {
	mu      sync.RWMutex
	externs map[externKey]string
	events  map[string]vrcevent.Definition
}

type externKey struct {
	typeName   string
	memberName string
	kind       extern.AccessKind
}

// New constructs an empty Catalog.
func New() *Catalog {
	return &Catalog{
		externs: make(map[externKey]string),
		events:  make(map[string]vrcevent.Definition),
	}
}

// LoadFile reads and merges a single catalog YAML file into the Catalog.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalogio: read %s: %w", path, err)
	}
	return c.LoadBytes(data)
}

// LoadBytes merges one catalog YAML document into the Catalog.
func (c *Catalog) LoadBytes(data []byte) error {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("catalogio: parse: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range doc.Externs {
		kind, err := parseAccessKind(e.Kind)
		if err != nil {
			return fmt.Errorf("catalogio: extern %s.%s: %w", e.Type, e.Member, err)
		}
		c.externs[externKey{e.Type, e.Member, kind}] = e.Signature
	}
	for _, e := range doc.Events {
		c.events[e.Name] = vrcevent.Definition{UdonName: e.UdonName, Parameters: e.Params}
	}
	return nil
}

func parseAccessKind(s string) (extern.AccessKind, error) {
	switch s {
	case "", "method":
		return extern.Method, nil
	case "get":
		return extern.Getter, nil
	case "set":
		return extern.Setter, nil
	case "ctor":
		return extern.Ctor, nil
	default:
		return 0, fmt.Errorf("unknown access kind %q", s)
	}
}

// ResolveExternSignature implements extern.Catalog.
func (c *Catalog) ResolveExternSignature(typeName, memberName string, kind extern.AccessKind) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.externs[externKey{typeName, memberName, kind}]
	return sig, ok
}

// ComputeTypeID implements extern.Catalog. Deterministic across runs:
// the runtime's GetComponent shim only needs a stable distinct tag per
// type name, not a specific numbering scheme (§6.2 is silent on the
// exact hash).
func (c *Catalog) ComputeTypeID(typeName string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(typeName))
	return h.Sum64()
}

// IsVrcEventLabel implements vrcevent.Registry.
func (c *Catalog) IsVrcEventLabel(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.events[name]
	return ok
}

// GetVrcEventDefinition implements vrcevent.Registry.
func (c *Catalog) GetVrcEventDefinition(name string) (vrcevent.Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.events[name]
	return d, ok
}

var (
	_ extern.Catalog    = (*Catalog)(nil)
	_ vrcevent.Registry = (*Catalog)(nil)
)
