package lower

import "github.com/udon-lang/udonc/pkg/tac"

// scope is one lexical level of the symbol table (§4.D "Symbol table
// with lexical scopes"), mirroring the teacher's parent-chained
// SymbolTable (pkg/compiler/symbols.go) generalised from constant slot
// indices to TAC Variable operands.
type scope struct {
	parent *scope
	vars   map[string]*tac.Variable
}

// SymbolTable resolves identifiers to TAC Variables across balanced
// enterScope/exitScope calls.
type SymbolTable struct {
	current *scope
}

// NewSymbolTable constructs a table with a single root (global) scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{current: &scope{vars: make(map[string]*tac.Variable)}}
}

// EnterScope pushes a new lexical scope.
func (s *SymbolTable) EnterScope() {
	s.current = &scope{parent: s.current, vars: make(map[string]*tac.Variable)}
}

// ExitScope pops the current lexical scope. Calling ExitScope on the
// root scope is a programmer error (unbalanced enter/exit) and panics,
// matching the teacher's assumption that scope balance is an invariant
// the lowerer itself maintains, not something callers can violate.
func (s *SymbolTable) ExitScope() {
	if s.current.parent == nil {
		panic("lower: unbalanced ExitScope on root scope")
	}
	s.current = s.current.parent
}

// Define binds v.Name in the current scope.
func (s *SymbolTable) Define(v *tac.Variable) {
	s.current.vars[v.Name] = v
}

// Resolve looks up name, walking the parent chain.
func (s *SymbolTable) Resolve(name string) (*tac.Variable, bool) {
	for sc := s.current; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// ResolveLocal looks up name in the current scope only.
func (s *SymbolTable) ResolveLocal(name string) (*tac.Variable, bool) {
	v, ok := s.current.vars[name]
	return v, ok
}
