package relate

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	json "github.com/goccy/go-json"
)

// Entity is a single record of a registered entity type. Attributes live in
// a column-keyed map; loaded relation results are cached separately so an
// absent relation key is distinguishable from a relation loaded as nil.
type Entity struct {
	schema     *Schema
	conn       *Connection
	attributes map[string]any
	original   map[string]any
	relations  map[string]any
	exists     bool

	// pivot holds the intermediate-row attributes when this entity was
	// hydrated through a many-to-many relation.
	pivot map[string]map[string]any
}

// NewEntity returns an unsaved entity of the named type.
func NewEntity(name string) (*Entity, error) {
	s, err := SchemaOf(name)
	if err != nil {
		return nil, err
	}
	return &Entity{
		schema:     s,
		attributes: map[string]any{},
		original:   map[string]any{},
		relations:  map[string]any{},
	}, nil
}

// newFromRow hydrates an entity from a database row. The original snapshot
// is synced so the entity starts clean.
func newFromRow(s *Schema, conn *Connection, row map[string]any) *Entity {
	e := &Entity{
		schema:     s,
		conn:       conn,
		attributes: row,
		original:   make(map[string]any, len(row)),
		relations:  map[string]any{},
		exists:     true,
	}
	for k, v := range row {
		e.original[k] = v
	}
	return e
}

// Schema returns the entity type this record belongs to.
func (e *Entity) Schema() *Schema { return e.schema }

// Exists reports whether the entity is backed by a database row.
func (e *Entity) Exists() bool { return e.exists }

// Get returns the named attribute, or nil when absent.
func (e *Entity) Get(column string) any { return e.attributes[column] }

// GetString returns the named attribute coerced to a string.
func (e *Entity) GetString(column string) string {
	v, ok := e.attributes[column]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// GetInt returns the named attribute coerced to int64, and whether the
// coercion succeeded.
func (e *Entity) GetInt(column string) (int64, bool) {
	n, err := cast.ToInt64E(e.attributes[column])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set writes an attribute, bypassing mass-assignment guards.
func (e *Entity) Set(column string, value any) *Entity {
	e.attributes[column] = value
	return e
}

// Fill mass-assigns attributes, honoring the schema's fillable and guarded
// lists. A guarded column produces a MassAssignmentError.
func (e *Entity) Fill(values map[string]any) error {
	for column, value := range values {
		if !e.schema.fillableColumn(column) {
			return &MassAssignmentError{Entity: e.schema.name, Attribute: column}
		}
		e.attributes[column] = value
	}
	return nil
}

// Key returns the entity's primary key value.
func (e *Entity) Key() any { return e.attributes[e.schema.primaryKey] }

// keyString returns the normalized dictionary form of the primary key.
func (e *Entity) keyString() (string, bool) {
	return dictionaryKey(e.Key(), e.schema.keyType)
}

// Attributes returns a copy of the current attribute map.
func (e *Entity) Attributes() map[string]any {
	out := make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}

// IsDirty reports whether any attribute, or the named attributes, differ
// from the last synced database state.
func (e *Entity) IsDirty(columns ...string) bool {
	if len(columns) == 0 {
		for k := range e.attributes {
			if e.attributeDirty(k) {
				return true
			}
		}
		return false
	}
	for _, c := range columns {
		if e.attributeDirty(c) {
			return true
		}
	}
	return false
}

// Dirty returns the changed attributes and their current values.
func (e *Entity) Dirty() map[string]any {
	out := map[string]any{}
	for k, v := range e.attributes {
		if e.attributeDirty(k) {
			out[k] = v
		}
	}
	return out
}

func (e *Entity) attributeDirty(column string) bool {
	cur, curOK := e.attributes[column]
	orig, origOK := e.original[column]
	if curOK != origOK {
		return true
	}
	return fmt.Sprintf("%v", cur) != fmt.Sprintf("%v", orig)
}

// syncOriginal snapshots the current attributes as the clean state.
func (e *Entity) syncOriginal() {
	e.original = make(map[string]any, len(e.attributes))
	for k, v := range e.attributes {
		e.original[k] = v
	}
}

// SyncOriginal snapshots the current attributes as the clean state, so
// Dirty reports empty until the next Set.
func (e *Entity) SyncOriginal() {
	e.syncOriginal()
}

// SetRelation caches a relation result on the entity. To-one relations
// store *Entity (possibly nil), to-many store *Collection.
func (e *Entity) SetRelation(name string, value any) {
	e.relations[name] = value
}

// RelationLoaded reports whether the named relation has been resolved,
// even if it resolved to nil or an empty collection.
func (e *Entity) RelationLoaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// Relation returns the cached relation result and whether it was loaded.
func (e *Entity) Relation(name string) (any, bool) {
	v, ok := e.relations[name]
	return v, ok
}

// RelatedEntity returns a cached to-one relation result.
func (e *Entity) RelatedEntity(name string) (*Entity, bool) {
	v, ok := e.relations[name]
	if !ok {
		return nil, false
	}
	ent, _ := v.(*Entity)
	return ent, true
}

// RelatedCollection returns a cached to-many relation result.
func (e *Entity) RelatedCollection(name string) (*Collection, bool) {
	v, ok := e.relations[name]
	if !ok {
		return nil, false
	}
	col, _ := v.(*Collection)
	return col, true
}

// LoadRelation lazily resolves the named relation for this single entity,
// caching and returning the result. An unknown relation name produces a
// RelationNotFoundError.
func (e *Entity) LoadRelation(ctx context.Context, name string) (any, error) {
	if v, ok := e.relations[name]; ok {
		return v, nil
	}
	rel, err := e.relationInstance(name)
	if err != nil {
		return nil, err
	}
	result, err := rel.GetResults(ctx)
	if err != nil {
		return nil, err
	}
	e.relations[name] = result
	return result, nil
}

// relationInstance builds a constrained relation object for this entity.
func (e *Entity) relationInstance(name string) (Relation, error) {
	def, ok := e.schema.relation(name)
	if !ok {
		return nil, &RelationNotFoundError{Entity: e.schema.name, Relation: name}
	}
	return def.factory(e, e.schema.conn(e.conn))
}

// Pivot returns a column from the named pivot accessor, populated when the
// entity was fetched through a many-to-many relation.
func (e *Entity) Pivot(accessor, column string) (any, bool) {
	rows, ok := e.pivot[accessor]
	if !ok {
		return nil, false
	}
	v, ok := rows[column]
	return v, ok
}

// PivotAttributes returns all columns under the named pivot accessor.
func (e *Entity) PivotAttributes(accessor string) (map[string]any, bool) {
	rows, ok := e.pivot[accessor]
	return rows, ok
}

func (e *Entity) setPivot(accessor string, values map[string]any) {
	if e.pivot == nil {
		e.pivot = map[string]map[string]any{}
	}
	e.pivot[accessor] = values
}

// MarshalJSON serializes attributes plus any loaded relations. Unloaded
// relations are omitted entirely.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.attributes)+len(e.relations)+len(e.pivot))
	for k, v := range e.attributes {
		out[k] = v
	}
	for k, v := range e.relations {
		out[k] = v
	}
	for accessor, values := range e.pivot {
		out[accessor] = values
	}
	return json.Marshal(out)
}

// Save persists the entity. An unsaved entity is inserted, recording the
// returned primary key; an existing one updates only its dirty columns.
// Either way the original snapshot is re-synced afterwards.
func (e *Entity) Save(ctx context.Context) error {
	q := newQueryOn(e.schema.conn(e.conn), e.schema)
	if !e.exists {
		id, err := q.Insert(ctx, e.Attributes())
		if err != nil {
			return err
		}
		e.attributes[e.schema.primaryKey] = id
		e.exists = true
		e.syncOriginal()
		return nil
	}
	dirty := e.Dirty()
	if len(dirty) == 0 {
		return nil
	}
	if _, err := q.Where(e.schema.primaryKey, e.Key()).Update(ctx, dirty); err != nil {
		return err
	}
	e.syncOriginal()
	return nil
}

// Delete removes the entity's row and marks the entity as no longer
// persisted. Soft-deleting entity types mark the row instead of removing it.
func (e *Entity) Delete(ctx context.Context) error {
	if !e.exists {
		return nil
	}
	q := newQueryOn(e.schema.conn(e.conn), e.schema)
	if _, err := q.Where(e.schema.primaryKey, e.Key()).Delete(ctx); err != nil {
		return err
	}
	e.exists = false
	return nil
}
