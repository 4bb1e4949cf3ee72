package relate

import (
	"context"
	"strings"
)

// pivotOptions describes the intermediate table mediating a many-to-many
// relation.
type pivotOptions struct {
	table           string
	foreignPivotKey string
	relatedPivotKey string
	parentKey       string
	relatedKey      string
	accessor        string
	pivotColumns    []string
	timestamps      bool
	createdAt       string
	updatedAt       string
}

func (o *pivotOptions) accessorName() string {
	if o.accessor != "" {
		return o.accessor
	}
	return "pivot"
}

func (o *pivotOptions) timestampColumns() (string, string) {
	created, updated := o.createdAt, o.updatedAt
	if created == "" {
		created = "created_at"
	}
	if updated == "" {
		updated = "updated_at"
	}
	return created, updated
}

// pivotAliasPrefix marks pivot columns in the joined select so hydration
// can strip them off the related attributes into the pivot accessor.
const pivotAliasPrefix = "pivot_"

// BelongsToManyRelation resolves a many-to-many relation through a pivot
// table. With a morph type column set it also serves MorphToMany and its
// inverse.
type BelongsToManyRelation struct {
	baseRelation
	opts pivotOptions

	// morphTypeColumn/morphClass restrict pivot rows to one stored type
	// for polymorphic pivots. Empty for plain many-to-many.
	morphTypeColumn string
	morphClass      string
}

func newBelongsToMany(conn *Connection, related *Schema, parent *Entity, opts pivotOptions) *BelongsToManyRelation {
	r := &BelongsToManyRelation{
		baseRelation: baseRelation{
			query:   newRelatedQuery(conn, related, parent),
			parent:  parent,
			related: related,
		},
		opts: opts,
	}
	r.performJoin()
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func newMorphToMany(conn *Connection, related *Schema, parent *Entity, opts pivotOptions, typeColumn, class string) *BelongsToManyRelation {
	r := &BelongsToManyRelation{
		baseRelation: baseRelation{
			query:   newRelatedQuery(conn, related, parent),
			parent:  parent,
			related: related,
		},
		opts:            opts,
		morphTypeColumn: typeColumn,
		morphClass:      class,
	}
	r.performJoin()
	if constraintsEnabled() {
		r.AddConstraints()
	}
	return r
}

func (r *BelongsToManyRelation) RelationKind() RelationKind {
	if r.morphTypeColumn != "" {
		return KindMorphToMany
	}
	return KindBelongsToMany
}

// performJoin joins the pivot table and selects the related columns plus
// the prefixed pivot columns needed for matching and the accessor.
func (r *BelongsToManyRelation) performJoin() {
	related := r.query.b.qualifier()
	pivot := r.opts.table
	r.query.b.Join(pivot + " ON " + pivot + "." + r.opts.relatedPivotKey + " = " + related + "." + r.opts.relatedKey)

	columns := []string{related + ".*"}
	for _, col := range r.pivotColumnList() {
		columns = append(columns, pivot+"."+col+" AS "+pivotAliasPrefix+col)
	}
	r.query.b.Select(columns...)

	if r.morphTypeColumn != "" {
		r.query.b.Where(pivot+"."+r.morphTypeColumn+" = ?", r.morphClass)
	}
}

func (r *BelongsToManyRelation) pivotColumnList() []string {
	columns := []string{r.opts.foreignPivotKey, r.opts.relatedPivotKey}
	columns = append(columns, r.opts.pivotColumns...)
	if r.opts.timestamps {
		created, updated := r.opts.timestampColumns()
		columns = append(columns, created, updated)
	}
	return columns
}

func (r *BelongsToManyRelation) pivotColumn(col string) string {
	return r.opts.table + "." + col
}

// restrictColumns narrows the related columns fetched while keeping the
// prefixed pivot columns the matcher and accessor depend on.
func (r *BelongsToManyRelation) restrictColumns(columns []string) {
	related := r.query.b.qualifier()
	selects := make([]string, 0, len(columns)+4)
	for _, c := range columns {
		selects = append(selects, related+"."+c)
	}
	for _, col := range r.pivotColumnList() {
		selects = append(selects, r.opts.table+"."+col+" AS "+pivotAliasPrefix+col)
	}
	r.query.b.Select(selects...)
}

func (r *BelongsToManyRelation) AddConstraints() {
	r.query.b.Where(r.pivotColumn(r.opts.foreignPivotKey)+" = ?", r.parent.Get(r.opts.parentKey))
}

func (r *BelongsToManyRelation) AddEagerConstraints(parents []*Entity) {
	keys := parentKeys(parents, r.opts.parentKey, r.parent.schema.keyType)
	if len(keys) == 0 {
		r.eagerEmpty = true
		return
	}
	r.query.b.WhereIn(r.pivotColumn(r.opts.foreignPivotKey), keys)
}

func (r *BelongsToManyRelation) InitRelation(parents []*Entity, name string) {
	for _, p := range parents {
		p.SetRelation(name, newCollection(r.related, nil))
	}
}

func (r *BelongsToManyRelation) Match(parents []*Entity, results []*Entity, name string) {
	// Results were hydrated with the pivot columns stripped into the
	// accessor; the parent key lives there.
	kt := r.parent.schema.keyType
	dict := make(map[string][]*Entity, len(results))
	accessor := r.opts.accessorName()
	for _, res := range results {
		fk, _ := res.Pivot(accessor, r.opts.foreignPivotKey)
		k, ok := dictionaryKey(fk, kt)
		if !ok {
			continue
		}
		dict[k] = append(dict[k], res)
	}
	for _, p := range parents {
		k, ok := dictionaryKey(p.Get(r.opts.parentKey), kt)
		if !ok {
			continue
		}
		if matches := dict[k]; len(matches) > 0 {
			p.SetRelation(name, newCollection(r.related, matches))
		}
	}
}

func (r *BelongsToManyRelation) GetResults(ctx context.Context) (any, error) {
	entities, err := r.getEager(ctx)
	if err != nil {
		return nil, err
	}
	return newCollection(r.related, entities), nil
}

func (r *BelongsToManyRelation) getEager(ctx context.Context) ([]*Entity, error) {
	if r.eagerEmpty {
		return nil, nil
	}
	entities, err := r.query.getEntities(ctx)
	if err != nil {
		return nil, err
	}
	r.hydratePivot(entities)
	return entities, nil
}

// hydratePivot strips the prefixed pivot columns off each entity's
// attributes into its pivot accessor.
func (r *BelongsToManyRelation) hydratePivot(entities []*Entity) {
	accessor := r.opts.accessorName()
	for _, e := range entities {
		values := map[string]any{}
		for col, v := range e.attributes {
			if !strings.HasPrefix(col, pivotAliasPrefix) {
				continue
			}
			values[strings.TrimPrefix(col, pivotAliasPrefix)] = v
			delete(e.attributes, col)
			delete(e.original, col)
		}
		e.setPivot(accessor, values)
	}
}

func (r *BelongsToManyRelation) groupColumn() string {
	return r.pivotColumn(r.opts.foreignPivotKey)
}

func (r *BelongsToManyRelation) matchKey(p *Entity) (string, bool) {
	return dictionaryKey(p.Get(r.opts.parentKey), r.parent.schema.keyType)
}
