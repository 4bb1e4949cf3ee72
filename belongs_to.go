package relate

import "context"

// BelongsToRelation is the child side of a one-to-one or one-to-many
// relation: the child row carries a foreign key referencing the owner.
type BelongsToRelation struct {
	baseRelation
	foreignKey string
	ownerKey   string
}

func newBelongsTo(conn *Connection, related *Schema, child *Entity, foreignKey, ownerKey string) *BelongsToRelation {
	r := &BelongsToRelation{
		baseRelation: baseRelation{
			query:   newRelatedQuery(conn, related, child),
			parent:  child,
			related: related,
		},
		foreignKey: foreignKey,
		ownerKey:   ownerKey,
	}
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func (r *BelongsToRelation) RelationKind() RelationKind { return KindBelongsTo }

func (r *BelongsToRelation) AddConstraints() {
	r.query.Where(r.ownerKey, r.parent.Get(r.foreignKey))
}

func (r *BelongsToRelation) AddEagerConstraints(parents []*Entity) {
	keys := parentKeys(parents, r.foreignKey, r.related.keyType)
	if len(keys) == 0 {
		r.eagerEmpty = true
		return
	}
	r.query.WhereIn(r.ownerKey, keys)
}

func (r *BelongsToRelation) InitRelation(parents []*Entity, name string) {
	for _, p := range parents {
		p.SetRelation(name, nil)
	}
}

func (r *BelongsToRelation) Match(parents []*Entity, results []*Entity, name string) {
	dict := dictionaryByKey(results, r.ownerKey, r.related.keyType)
	for _, p := range parents {
		k, ok := dictionaryKey(p.Get(r.foreignKey), r.related.keyType)
		if !ok {
			continue
		}
		if owners := dict[k]; len(owners) > 0 {
			p.SetRelation(name, owners[0])
		}
	}
}

func (r *BelongsToRelation) GetResults(ctx context.Context) (any, error) {
	// A nil foreign key can never match an owner; skip the query.
	if r.parent.Get(r.foreignKey) == nil {
		return nil, nil
	}
	e, err := r.query.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e, nil
}

// Associate points the child at the given owner by writing the foreign key
// attribute. The change is local until the child row is persisted.
func (r *BelongsToRelation) Associate(owner *Entity) {
	r.parent.Set(r.foreignKey, owner.Get(r.ownerKey))
}

// Dissociate clears the child's foreign key attribute.
func (r *BelongsToRelation) Dissociate() {
	r.parent.Set(r.foreignKey, nil)
}

func (r *BelongsToRelation) groupColumn() string { return r.query.qualify(r.ownerKey) }

func (r *BelongsToRelation) matchKey(p *Entity) (string, bool) {
	return dictionaryKey(p.Get(r.foreignKey), r.related.keyType)
}
