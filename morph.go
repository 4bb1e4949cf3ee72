package relate

import "context"

// morphConstraint narrows a has relation's query to rows whose type
// discriminator matches the parent's morph class.
func morphConstraint(q *Query, typeColumn, class string) {
	q.b.Where(q.qualify(typeColumn)+" = ?", class)
}

// MorphOneRelation resolves a single polymorphic dependent row per parent.
type MorphOneRelation struct {
	HasOneRelation
	typeColumn string
	class      string
}

func newMorphOne(conn *Connection, related *Schema, parent *Entity, typeColumn, idColumn, localKey string) *MorphOneRelation {
	r := &MorphOneRelation{
		HasOneRelation: HasOneRelation{hasOneOrMany: newHasOneOrMany(conn, related, parent, idColumn, localKey)},
		typeColumn:     typeColumn,
		class:          morphAliasOf(parent.schema),
	}
	morphConstraint(r.query, r.typeColumn, r.class)
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func (r *MorphOneRelation) RelationKind() RelationKind { return KindMorphOne }

// MorphManyRelation resolves the set of polymorphic dependent rows per
// parent.
type MorphManyRelation struct {
	HasManyRelation
	typeColumn string
	class      string
}

func newMorphMany(conn *Connection, related *Schema, parent *Entity, typeColumn, idColumn, localKey string) *MorphManyRelation {
	r := &MorphManyRelation{
		HasManyRelation: HasManyRelation{hasOneOrMany: newHasOneOrMany(conn, related, parent, idColumn, localKey)},
		typeColumn:      typeColumn,
		class:           morphAliasOf(parent.schema),
	}
	morphConstraint(r.query, r.typeColumn, r.class)
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func (r *MorphManyRelation) RelationKind() RelationKind { return KindMorphMany }

// MorphToRelation resolves the owner of a polymorphic child. The owner's
// entity type is read per row from the type discriminator column, so eager
// loading groups parents by resolved type and runs one batched query per
// type.
type MorphToRelation struct {
	baseRelation
	conn       *Connection
	typeColumn string
	idColumn   string

	nested            []string
	nestedConstraints map[string]func(*Query)
	constraint        func(*Query)

	eagerParents []*Entity

	// eagerDicts holds per-type result dictionaries between getEager and
	// Match: stored type value -> normalized key -> results.
	eagerDicts map[string]map[string][]*Entity
}

func newMorphTo(conn *Connection, child *Entity, typeColumn, idColumn string) *MorphToRelation {
	return &MorphToRelation{
		baseRelation: baseRelation{parent: child},
		conn:         conn,
		typeColumn:   typeColumn,
		idColumn:     idColumn,
	}
}

func (r *MorphToRelation) RelationKind() RelationKind { return KindMorphTo }

// AddConstraints is a no-op: the owning query cannot be built until the
// type column is read, which happens in GetResults and getEager.
func (r *MorphToRelation) AddConstraints() {}

func (r *MorphToRelation) setEagerNested(nested []string, constraints map[string]func(*Query), constraint func(*Query)) {
	r.nested = nested
	r.nestedConstraints = constraints
	r.constraint = constraint
}

// ownerQuery builds the per-type query with the requested nested loads and
// caller constraint applied.
func (r *MorphToRelation) ownerQuery(s *Schema) *Query {
	q := newQueryOn(s.conn(r.conn), s)
	for _, path := range r.nested {
		if fn := r.nestedConstraints[path]; fn != nil {
			q.WithConstraint(path, fn)
		} else {
			q.With(path)
		}
	}
	if r.constraint != nil {
		r.constraint(q)
	}
	return q
}

func (r *MorphToRelation) GetResults(ctx context.Context) (any, error) {
	typeValue := r.parent.GetString(r.typeColumn)
	id := r.parent.Get(r.idColumn)
	if typeValue == "" || id == nil {
		return nil, nil
	}
	s, err := morphSchemaFor(typeValue)
	if err != nil {
		return nil, err
	}
	e, err := r.ownerQuery(s).Where(s.primaryKey, id).First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	return e, nil
}

func (r *MorphToRelation) AddEagerConstraints(parents []*Entity) {
	// No shared query to constrain; keys are grouped per type in getEager.
	r.eagerParents = parents
}

func (r *MorphToRelation) InitRelation(parents []*Entity, name string) {
	for _, p := range parents {
		p.SetRelation(name, nil)
	}
}

func (r *MorphToRelation) getEager(ctx context.Context) ([]*Entity, error) {
	// Group parent keys by their stored type value, preserving first-seen
	// type order for deterministic query sequencing.
	keysByType := map[string][]any{}
	var typeOrder []string
	for _, p := range r.eagerParents {
		typeValue := p.GetString(r.typeColumn)
		id := p.Get(r.idColumn)
		if typeValue == "" || id == nil {
			continue
		}
		if _, seen := keysByType[typeValue]; !seen {
			typeOrder = append(typeOrder, typeValue)
		}
		keysByType[typeValue] = append(keysByType[typeValue], id)
	}

	r.eagerDicts = map[string]map[string][]*Entity{}
	var all []*Entity
	for _, typeValue := range typeOrder {
		s, err := morphSchemaFor(typeValue)
		if err != nil {
			return nil, err
		}
		keys := sortedDistinctKeys(keysByType[typeValue], s.keyType)
		if len(keys) == 0 {
			continue
		}
		results, err := r.ownerQuery(s).WhereIn(s.primaryKey, keys).getEntities(ctx)
		if err != nil {
			return nil, err
		}
		r.eagerDicts[typeValue] = dictionaryByKey(results, s.primaryKey, s.keyType)
		all = append(all, results...)
	}
	return all, nil
}

func (r *MorphToRelation) Match(parents []*Entity, results []*Entity, name string) {
	for _, p := range parents {
		typeValue := p.GetString(r.typeColumn)
		dict, ok := r.eagerDicts[typeValue]
		if !ok {
			continue
		}
		s, err := morphSchemaFor(typeValue)
		if err != nil {
			continue
		}
		k, ok := dictionaryKey(p.Get(r.idColumn), s.keyType)
		if !ok {
			continue
		}
		if owners := dict[k]; len(owners) > 0 {
			p.SetRelation(name, owners[0])
		}
	}
}
