package relate

import "context"

// hasOneOrMany holds the shared mechanics of HasOne and HasMany: the
// related table carries a foreign key referencing the parent's local key.
type hasOneOrMany struct {
	baseRelation
	foreignKey string
	localKey   string
}

func newHasOneOrMany(conn *Connection, related *Schema, parent *Entity, foreignKey, localKey string) hasOneOrMany {
	return hasOneOrMany{
		baseRelation: baseRelation{
			query:   newRelatedQuery(conn, related, parent),
			parent:  parent,
			related: related,
		},
		foreignKey: foreignKey,
		localKey:   localKey,
	}
}

func (r *hasOneOrMany) AddConstraints() {
	r.query.Where(r.foreignKey, r.parent.Get(r.localKey))
	r.query.WhereNotNull(r.foreignKey)
}

func (r *hasOneOrMany) AddEagerConstraints(parents []*Entity) {
	keys := parentKeys(parents, r.localKey, r.parent.schema.keyType)
	if len(keys) == 0 {
		r.eagerEmpty = true
		return
	}
	r.query.WhereIn(r.foreignKey, keys)
}

func (r *hasOneOrMany) dictionary(results []*Entity) map[string][]*Entity {
	return dictionaryByKey(results, r.foreignKey, r.parent.schema.keyType)
}

func (r *hasOneOrMany) parentKey(p *Entity) (string, bool) {
	return dictionaryKey(p.Get(r.localKey), r.parent.schema.keyType)
}

// HasOneRelation resolves a single dependent row per parent.
type HasOneRelation struct {
	hasOneOrMany
}

func newHasOne(conn *Connection, related *Schema, parent *Entity, foreignKey, localKey string) *HasOneRelation {
	r := &HasOneRelation{hasOneOrMany: newHasOneOrMany(conn, related, parent, foreignKey, localKey)}
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func (r *HasOneRelation) RelationKind() RelationKind { return KindHasOne }

func (r *HasOneRelation) InitRelation(parents []*Entity, name string) {
	for _, p := range parents {
		p.SetRelation(name, nil)
	}
}

func (r *HasOneRelation) Match(parents []*Entity, results []*Entity, name string) {
	dict := r.dictionary(results)
	for _, p := range parents {
		k, ok := r.parentKey(p)
		if !ok {
			continue
		}
		if matches := dict[k]; len(matches) > 0 {
			p.SetRelation(name, matches[0])
		}
	}
}

func (r *HasOneRelation) GetResults(ctx context.Context) (any, error) {
	e, err := r.query.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e, nil
}

// HasManyRelation resolves the set of dependent rows per parent.
type HasManyRelation struct {
	hasOneOrMany
}

func newHasMany(conn *Connection, related *Schema, parent *Entity, foreignKey, localKey string) *HasManyRelation {
	r := &HasManyRelation{hasOneOrMany: newHasOneOrMany(conn, related, parent, foreignKey, localKey)}
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func (r *HasManyRelation) RelationKind() RelationKind { return KindHasMany }

func (r *HasManyRelation) InitRelation(parents []*Entity, name string) {
	for _, p := range parents {
		p.SetRelation(name, newCollection(r.related, nil))
	}
}

func (r *HasManyRelation) Match(parents []*Entity, results []*Entity, name string) {
	dict := r.dictionary(results)
	for _, p := range parents {
		k, ok := r.parentKey(p)
		if !ok {
			continue
		}
		if matches := dict[k]; len(matches) > 0 {
			p.SetRelation(name, newCollection(r.related, matches))
		}
	}
}

func (r *HasManyRelation) GetResults(ctx context.Context) (any, error) {
	return r.query.Get(ctx)
}

func (r *hasOneOrMany) groupColumn() string { return r.query.qualify(r.foreignKey) }

func (r *hasOneOrMany) matchKey(p *Entity) (string, bool) { return r.parentKey(p) }
