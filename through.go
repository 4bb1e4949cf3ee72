package relate

import "context"

// throughKeys names the four key columns of a through relation: the
// through table's key referencing the parent, the related table's key
// referencing the through table, and the local keys on each side.
type throughKeys struct {
	firstKey       string
	secondKey      string
	localKey       string
	secondLocalKey string
}

// throughKeyAlias is the namespaced select alias carrying the through
// table's parent key for matching. It is stripped from results after the
// dictionary is built.
const throughKeyAlias = "relate_through_key"

// hasThrough holds the shared mechanics of HasOneThrough and
// HasManyThrough: the related rows are reached by joining an intermediate
// entity's table.
type hasThrough struct {
	baseRelation
	through *Schema
	keys    throughKeys
}

func newHasThrough(conn *Connection, related, through *Schema, parent *Entity, keys throughKeys, includeTrashed bool) hasThrough {
	r := hasThrough{
		baseRelation: baseRelation{
			query:   newRelatedQuery(conn, related, parent),
			parent:  parent,
			related: related,
		},
		through: through,
		keys:    keys,
	}
	r.performJoin(includeTrashed)
	return r
}

func (r *hasThrough) performJoin(includeTrashed bool) {
	related := r.query.b.qualifier()
	through := r.through.table
	r.query.b.Join(through + " ON " + through + "." + r.keys.secondLocalKey + " = " + related + "." + r.keys.secondKey)
	r.query.b.Select(related+".*", through+"."+r.keys.firstKey+" AS "+throughKeyAlias)
	if r.through.SoftDeletes() && !includeTrashed {
		r.query.b.WhereNull(through + "." + r.through.softDeleteColumn)
	}
}

func (r *hasThrough) throughColumn() string {
	return r.through.table + "." + r.keys.firstKey
}

func (r *hasThrough) AddConstraints() {
	r.query.b.Where(r.throughColumn()+" = ?", r.parent.Get(r.keys.localKey))
}

func (r *hasThrough) AddEagerConstraints(parents []*Entity) {
	keys := parentKeys(parents, r.keys.localKey, r.parent.schema.keyType)
	if len(keys) == 0 {
		r.eagerEmpty = true
		return
	}
	r.query.b.WhereIn(r.throughColumn(), keys)
}

// dictionary indexes results by the namespaced through key and strips the
// alias column off each result's attributes.
func (r *hasThrough) dictionary(results []*Entity) map[string][]*Entity {
	kt := r.parent.schema.keyType
	dict := make(map[string][]*Entity, len(results))
	for _, res := range results {
		k, ok := dictionaryKey(res.Get(throughKeyAlias), kt)
		delete(res.attributes, throughKeyAlias)
		delete(res.original, throughKeyAlias)
		if !ok {
			continue
		}
		dict[k] = append(dict[k], res)
	}
	return dict
}

func (r *hasThrough) parentKey(p *Entity) (string, bool) {
	return dictionaryKey(p.Get(r.keys.localKey), r.parent.schema.keyType)
}

// HasOneThroughRelation resolves a single distant row per parent.
type HasOneThroughRelation struct {
	hasThrough
}

func newHasOneThrough(conn *Connection, related, through *Schema, parent *Entity, keys throughKeys, includeTrashed bool) *HasOneThroughRelation {
	r := &HasOneThroughRelation{hasThrough: newHasThrough(conn, related, through, parent, keys, includeTrashed)}
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func (r *HasOneThroughRelation) RelationKind() RelationKind { return KindHasOneThrough }

func (r *HasOneThroughRelation) InitRelation(parents []*Entity, name string) {
	for _, p := range parents {
		p.SetRelation(name, nil)
	}
}

func (r *HasOneThroughRelation) Match(parents []*Entity, results []*Entity, name string) {
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

func (r *HasOneThroughRelation) GetResults(ctx context.Context) (any, error) {
	results, err := r.query.Limit(1).getEntities(ctx)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	e := results[0]
	delete(e.attributes, throughKeyAlias)
	delete(e.original, throughKeyAlias)
	return e, nil
}

// HasManyThroughRelation resolves the set of distant rows per parent.
type HasManyThroughRelation struct {
	hasThrough
}

func newHasManyThrough(conn *Connection, related, through *Schema, parent *Entity, keys throughKeys, includeTrashed bool) *HasManyThroughRelation {
	r := &HasManyThroughRelation{hasThrough: newHasThrough(conn, related, through, parent, keys, includeTrashed)}
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func (r *HasManyThroughRelation) RelationKind() RelationKind { return KindHasManyThrough }

func (r *HasManyThroughRelation) InitRelation(parents []*Entity, name string) {
	for _, p := range parents {
		p.SetRelation(name, newCollection(r.related, nil))
	}
}

func (r *HasManyThroughRelation) Match(parents []*Entity, results []*Entity, name string) {
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

func (r *HasManyThroughRelation) GetResults(ctx context.Context) (any, error) {
	results, err := r.query.getEntities(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range results {
		delete(e.attributes, throughKeyAlias)
		delete(e.original, throughKeyAlias)
	}
	return newCollection(r.related, results), nil
}

func (r *hasThrough) groupColumn() string { return r.throughColumn() }

func (r *hasThrough) matchKey(p *Entity) (string, bool) { return r.parentKey(p) }
