package relate

// Scope is a reusable query constraint. Global scopes registered on a
// schema apply to every query over that entity type; their predicates are
// grouped so OR clauses cannot leak into neighboring conditions.
type Scope interface {
	Apply(q *Query)
}

// ScopeFunc adapts a plain function to the Scope interface.
type ScopeFunc func(*Query)

func (f ScopeFunc) Apply(q *Query) { f(q) }
