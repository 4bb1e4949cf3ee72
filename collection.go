package relate

import (
	"context"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/iancoleman/strcase"
)

// Collection is an ordered set of entities of one type with relation-aware
// bulk operations.
type Collection struct {
	schema *Schema
	items  []*Entity
}

func newCollection(s *Schema, items []*Entity) *Collection {
	return &Collection{schema: s, items: items}
}

// Items returns the underlying slice.
func (c *Collection) Items() []*Entity { return c.items }

func (c *Collection) Len() int { return len(c.items) }

func (c *Collection) IsEmpty() bool { return len(c.items) == 0 }

// First returns the first entity, or nil when empty.
func (c *Collection) First() *Entity {
	if len(c.items) == 0 {
		return nil
	}
	return c.items[0]
}

// Last returns the last entity, or nil when empty.
func (c *Collection) Last() *Entity {
	if len(c.items) == 0 {
		return nil
	}
	return c.items[len(c.items)-1]
}

// At returns the entity at index i, or nil when out of range.
func (c *Collection) At(i int) *Entity {
	if i < 0 || i >= len(c.items) {
		return nil
	}
	return c.items[i]
}

// Keys returns the primary key values in order.
func (c *Collection) Keys() []any {
	out := make([]any, 0, len(c.items))
	for _, e := range c.items {
		out = append(out, e.Key())
	}
	return out
}

// Pluck returns one attribute's values in order.
func (c *Collection) Pluck(column string) []any {
	out := make([]any, 0, len(c.items))
	for _, e := range c.items {
		out = append(out, e.Get(column))
	}
	return out
}

// Each calls fn for every entity, stopping early when fn returns false.
func (c *Collection) Each(fn func(*Entity) bool) {
	for _, e := range c.items {
		if !fn(e) {
			return
		}
	}
}

// Filter returns the entities for which fn returns true.
func (c *Collection) Filter(fn func(*Entity) bool) *Collection {
	var kept []*Entity
	for _, e := range c.items {
		if fn(e) {
			kept = append(kept, e)
		}
	}
	return newCollection(c.schema, kept)
}

func (c *Collection) keySet() map[string]bool {
	set := make(map[string]bool, len(c.items))
	for _, e := range c.items {
		if k, ok := e.keyString(); ok {
			set[k] = true
		}
	}
	return set
}

// Diff returns the entities whose primary keys are absent from other.
func (c *Collection) Diff(other *Collection) *Collection {
	exclude := other.keySet()
	return c.Filter(func(e *Entity) bool {
		k, ok := e.keyString()
		return ok && !exclude[k]
	})
}

// Intersect returns the entities whose primary keys are present in other.
func (c *Collection) Intersect(other *Collection) *Collection {
	keep := other.keySet()
	return c.Filter(func(e *Entity) bool {
		k, ok := e.keyString()
		return ok && keep[k]
	})
}

// Unique returns the collection with duplicate primary keys removed,
// keeping first occurrences.
func (c *Collection) Unique() *Collection {
	seen := map[string]bool{}
	return c.Filter(func(e *Entity) bool {
		k, ok := e.keyString()
		if !ok || seen[k] {
			return false
		}
		seen[k] = true
		return true
	})
}

// Load eager-loads the given relation paths onto every entity in the
// collection, overwriting already-loaded relations.
func (c *Collection) Load(ctx context.Context, paths ...string) error {
	return c.loadInto(ctx, c.items, paths...)
}

// LoadMissing eager-loads each path only where it is absent, descending
// segment by segment so a nested path still loads under roots that are
// already in place. To-many segments flatten into their child entities
// before the descent continues.
func (c *Collection) LoadMissing(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := loadMissingPath(ctx, c.items, path); err != nil {
			return err
		}
	}
	return nil
}

func loadMissingPath(ctx context.Context, items []*Entity, path string) error {
	if len(items) == 0 {
		return nil
	}
	rootSeg, rest := path, ""
	if i := strings.Index(path, "."); i >= 0 {
		rootSeg, rest = path[:i], path[i+1:]
	}
	rootName, _ := splitWithColumns(rootSeg)

	var missing, loaded []*Entity
	for _, e := range items {
		if e.RelationLoaded(rootName) {
			loaded = append(loaded, e)
		} else {
			missing = append(missing, e)
		}
	}
	// Entities without the root take the whole remaining path in one pass.
	if len(missing) > 0 {
		q := newQueryOn(missing[0].schema.conn(missing[0].conn), missing[0].schema)
		q.With(path)
		if err := q.eagerLoadRelations(ctx, missing); err != nil {
			return err
		}
	}
	if rest == "" || len(loaded) == 0 {
		return nil
	}
	var children []*Entity
	for _, e := range loaded {
		switch v := e.relations[rootName].(type) {
		case *Entity:
			if v != nil {
				children = append(children, v)
			}
		case *Collection:
			if v != nil {
				children = append(children, v.items...)
			}
		}
	}
	return loadMissingPath(ctx, children, rest)
}

func (c *Collection) loadInto(ctx context.Context, items []*Entity, paths ...string) error {
	if len(items) == 0 || len(paths) == 0 {
		return nil
	}
	q := newQueryOn(c.schema.conn(items[0].conn), c.schema)
	q.With(paths...)
	return q.eagerLoadRelations(ctx, items)
}

// LoadWithConstraint eager-loads one relation path with a caller
// constraint onto every entity.
func (c *Collection) LoadWithConstraint(ctx context.Context, path string, fn func(*Query)) error {
	if len(c.items) == 0 {
		return nil
	}
	q := newQueryOn(c.schema.conn(c.items[0].conn), c.schema)
	q.WithConstraint(path, fn)
	return q.eagerLoadRelations(ctx, c.items)
}

// aggregatableRelation is implemented by relation types whose results can
// be aggregated per parent in a single grouped query.
type aggregatableRelation interface {
	Relation
	groupColumn() string
	matchKey(p *Entity) (string, bool)
}

const (
	aggKeyAlias   = "relate_agg_key"
	aggValueAlias = "relate_agg_value"
)

// LoadCount stores each entity's related-row count in a
// "<relation>_count" attribute using one grouped query.
func (c *Collection) LoadCount(ctx context.Context, relation string) error {
	return c.loadAggregate(ctx, relation, "COUNT(*)", strcase.ToSnake(relation)+"_count")
}

// LoadSum stores the per-entity sum of a related column in a
// "<relation>_sum_<column>" attribute.
func (c *Collection) LoadSum(ctx context.Context, relation, column string) error {
	if err := ValidateColumnName(column); err != nil {
		return err
	}
	return c.loadAggregate(ctx, relation, "SUM("+column+")",
		strcase.ToSnake(relation)+"_sum_"+strcase.ToSnake(column))
}

// LoadAvg stores the per-entity average of a related column.
func (c *Collection) LoadAvg(ctx context.Context, relation, column string) error {
	if err := ValidateColumnName(column); err != nil {
		return err
	}
	return c.loadAggregate(ctx, relation, "AVG("+column+")",
		strcase.ToSnake(relation)+"_avg_"+strcase.ToSnake(column))
}

// LoadMin stores the per-entity minimum of a related column.
func (c *Collection) LoadMin(ctx context.Context, relation, column string) error {
	if err := ValidateColumnName(column); err != nil {
		return err
	}
	return c.loadAggregate(ctx, relation, "MIN("+column+")",
		strcase.ToSnake(relation)+"_min_"+strcase.ToSnake(column))
}

// LoadMax stores the per-entity maximum of a related column.
func (c *Collection) LoadMax(ctx context.Context, relation, column string) error {
	if err := ValidateColumnName(column); err != nil {
		return err
	}
	return c.loadAggregate(ctx, relation, "MAX("+column+")",
		strcase.ToSnake(relation)+"_max_"+strcase.ToSnake(column))
}

func (c *Collection) loadAggregate(ctx context.Context, relation, expr, attribute string) error {
	if len(c.items) == 0 {
		return nil
	}
	rel, err := noConstraints(func() (Relation, error) {
		return c.items[0].relationInstance(relation)
	})
	if err != nil {
		return err
	}
	agg, ok := rel.(aggregatableRelation)
	if !ok {
		return &RelationNotFoundError{Entity: c.schema.name, Relation: relation, Expected: "aggregatable"}
	}

	rel.AddEagerConstraints(c.items)
	defaultValue := any(int64(0))
	values := map[string]any{}
	if !relationEagerEmpty(rel) {
		rq := rel.Query()
		rq.applyScopes()
		b := rq.b.Clone()
		b.Select(agg.groupColumn()+" AS "+aggKeyAlias, expr+" AS "+aggValueAlias)
		b.GroupBy(agg.groupColumn())
		b.orders = nil
		stmt, args := b.ToSQL()
		rows, err := rq.conn.Select(ctx, stmt, args...)
		if err != nil {
			return err
		}
		for _, row := range rows {
			k, ok := dictionaryKey(row[aggKeyAlias], c.schema.keyType)
			if !ok {
				continue
			}
			values[k] = row[aggValueAlias]
		}
	}

	for _, e := range c.items {
		v := defaultValue
		if k, ok := agg.matchKey(e); ok {
			if found, have := values[k]; have {
				v = found
			}
		}
		// Aggregates describe database state, so they do not dirty the
		// entity.
		e.attributes[attribute] = v
		e.original[attribute] = v
	}
	return nil
}

func relationEagerEmpty(rel Relation) bool {
	type emptier interface{ isEagerEmpty() bool }
	if e, ok := rel.(emptier); ok {
		return e.isEagerEmpty()
	}
	return false
}

// ToJSON serializes the collection to a JSON array, including loaded
// relations.
func (c *Collection) ToJSON() ([]byte, error) {
	return json.Marshal(c.items)
}

// MarshalJSON renders the collection as a JSON array.
func (c *Collection) MarshalJSON() ([]byte, error) {
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}
