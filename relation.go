package relate

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Relation is the contract every relation type implements. Lazy access
// goes through AddConstraints (applied at construction) and GetResults;
// eager loading builds an unconstrained template under noConstraints,
// batches keys with AddEagerConstraints, seeds defaults with InitRelation,
// executes via getEager and distributes results with Match.
type Relation interface {
	RelationKind() RelationKind
	Query() *Query

	AddConstraints()
	AddEagerConstraints(parents []*Entity)
	InitRelation(parents []*Entity, name string)
	Match(parents []*Entity, results []*Entity, name string)

	GetResults(ctx context.Context) (any, error)
	getEager(ctx context.Context) ([]*Entity, error)
}

// Relation template construction is serialized: the flag suppressing
// constructor constraints is process-global, so only one template may be
// built at a time.
var (
	constraintsMu       sync.Mutex
	constraintsDisabled atomic.Bool
)

func noConstraints(fn func() (Relation, error)) (Relation, error) {
	constraintsMu.Lock()
	defer constraintsMu.Unlock()
	constraintsDisabled.Store(true)
	defer constraintsDisabled.Store(false)
	return fn()
}

func constraintsEnabled() bool { return !constraintsDisabled.Load() }

var aliasCounter atomic.Int64

// relationAlias returns a fresh table alias for self-referential joins.
func relationAlias() string {
	return "relation_reserved_" + strconv.FormatInt(aliasCounter.Add(1), 10)
}

// baseRelation carries the pieces shared by all relation types.
type baseRelation struct {
	query   *Query
	parent  *Entity
	related *Schema

	// eagerEmpty is set when AddEagerConstraints found no usable parent
	// keys; getEager then short-circuits without touching the database.
	eagerEmpty bool
}

func (r *baseRelation) Query() *Query { return r.query }

func (r *baseRelation) getEager(ctx context.Context) ([]*Entity, error) {
	if r.eagerEmpty {
		return nil, nil
	}
	return r.query.getEntities(ctx)
}

// newRelatedQuery builds the relation's underlying query, aliasing the
// related table when it collides with the parent's.
func newRelatedQuery(conn *Connection, related *Schema, parent *Entity) *Query {
	q := newQueryOn(conn, related)
	if parent != nil && parent.schema.table == related.table {
		q.b.As(relationAlias())
	}
	return q
}

// parentKeys collects the normalized, deduplicated, sorted key values of
// one parent column for a batched IN constraint.
func parentKeys(parents []*Entity, column string, kt KeyType) []any {
	values := make([]any, 0, len(parents))
	for _, p := range parents {
		values = append(values, p.Get(column))
	}
	return sortedDistinctKeys(values, kt)
}

// dictionaryByKey indexes results by a normalized column value. Rows whose
// key does not normalize are skipped.
func dictionaryByKey(results []*Entity, column string, kt KeyType) map[string][]*Entity {
	dict := make(map[string][]*Entity, len(results))
	for _, r := range results {
		k, ok := dictionaryKey(r.Get(column), kt)
		if !ok {
			continue
		}
		dict[k] = append(dict[k], r)
	}
	return dict
}

func (r *baseRelation) isEagerEmpty() bool { return r.eagerEmpty }
