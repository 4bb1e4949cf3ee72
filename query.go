package relate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// comparison operators accepted by Where. NULL-safe rewriting applies to
// "=", "!=" and "<>" only.
var allowedOperators = map[string]bool{
	"=": true, "!=": true, "<>": true,
	">": true, ">=": true, "<": true, "<=": true,
	"LIKE": true, "NOT LIKE": true, "like": true, "not like": true,
}

// eagerLoad is one requested relation path. Synthesized ancestors carry a
// nil constraint; an explicit constraint set by the caller is never
// overwritten by a later synthesized no-op.
type eagerLoad struct {
	constraint func(*Query)
	columns    []string
	explicit   bool
}

// Query builds and executes SELECTs for one entity type, hydrates results
// into entities and drives eager loading of requested relations.
type Query struct {
	conn   *Connection
	schema *Schema
	b      *builder

	eager      map[string]*eagerLoad
	eagerOrder []string

	withoutScopes    map[string]bool
	withoutAllScopes bool
	withTrashed      bool
	onlyTrashed      bool

	err error
}

// NewQuery starts a query over the named entity type on its configured
// connection.
func NewQuery(entity string) *Query {
	s, err := SchemaOf(entity)
	if err != nil {
		return &Query{err: err, eager: map[string]*eagerLoad{}}
	}
	return newQueryOn(s.conn(), s)
}

func newQueryOn(conn *Connection, s *Schema) *Query {
	return &Query{
		conn:   conn,
		schema: s,
		b:      newBuilder(s.table),
		eager:  map[string]*eagerLoad{},
	}
}

// On reruns the query against a specific connection, e.g. inside a
// transaction-scoped connection or a named replica setup.
func (q *Query) On(conn *Connection) *Query {
	q.conn = conn
	return q
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Err returns the first deferred argument error, if any. Terminal methods
// surface it too.
func (q *Query) Err() error { return q.err }

// qualify prefixes an unqualified column with the query's table or alias.
func (q *Query) qualify(column string) string {
	if strings.Contains(column, ".") {
		return column
	}
	return q.b.qualifier() + "." + column
}

// Select restricts fetched columns. Column names are validated against the
// identifier pattern.
func (q *Query) Select(columns ...string) *Query {
	qualified := make([]string, 0, len(columns))
	for _, c := range columns {
		if err := ValidateColumnName(c); err != nil {
			return q.fail(err)
		}
		qualified = append(qualified, q.qualify(c))
	}
	q.b.Select(qualified...)
	return q
}

// Where adds a predicate. Two forms:
//
//	Where("status", "active")       // equality
//	Where("age", ">=", 21)          // explicit operator
//
// A nil value with "=" becomes IS NULL, with "!="/"<>" IS NOT NULL; nil
// with any other operator is an argument error.
func (q *Query) Where(column string, args ...any) *Query {
	return q.where("AND", column, args...)
}

func (q *Query) OrWhere(column string, args ...any) *Query {
	return q.where("OR", column, args...)
}

// WhereNot negates a predicate in the same 2/3-argument forms as Where.
// A nil value inverts the null test.
func (q *Query) WhereNot(column string, args ...any) *Query {
	if err := ValidateColumnName(column); err != nil {
		return q.fail(err)
	}
	col := q.qualify(column)

	var op string
	var value any
	switch len(args) {
	case 1:
		op, value = "=", args[0]
	case 2:
		s, ok := args[0].(string)
		if !ok {
			return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("operator must be a string, got %T", args[0])})
		}
		op, value = s, args[1]
	default:
		return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("where not on %q expects 2 or 3 arguments, got %d", column, len(args)+1)})
	}
	if !allowedOperators[op] {
		return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("unsupported operator %q", op)})
	}

	if value == nil {
		switch op {
		case "=":
			return q.whereNotNull("AND", col)
		case "!=", "<>":
			return q.whereNull("AND", col)
		default:
			return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("operator %q cannot compare against nil", op)})
		}
	}

	q.b.Where("NOT ("+col+" "+op+" ?)", value)
	return q
}

func (q *Query) where(boolean, column string, args ...any) *Query {
	if err := ValidateColumnName(column); err != nil {
		return q.fail(err)
	}
	col := q.qualify(column)

	var op string
	var value any
	switch len(args) {
	case 1:
		op, value = "=", args[0]
	case 2:
		s, ok := args[0].(string)
		if !ok {
			return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("operator must be a string, got %T", args[0])})
		}
		op, value = s, args[1]
	default:
		return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("where on %q expects 2 or 3 arguments, got %d", column, len(args)+1)})
	}
	if !allowedOperators[op] {
		return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("unsupported operator %q", op)})
	}

	if value == nil {
		switch op {
		case "=":
			return q.whereNull(boolean, col)
		case "!=", "<>":
			return q.whereNotNull(boolean, col)
		default:
			return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("operator %q cannot compare against nil", op)})
		}
	}

	clause := col + " " + op + " ?"
	if boolean == "OR" {
		q.b.OrWhere(clause, value)
	} else {
		q.b.Where(clause, value)
	}
	return q
}

func (q *Query) whereNull(boolean, qualified string) *Query {
	if boolean == "OR" {
		q.b.OrWhere(qualified + " IS NULL")
	} else {
		q.b.WhereNull(qualified)
	}
	return q
}

func (q *Query) whereNotNull(boolean, qualified string) *Query {
	if boolean == "OR" {
		q.b.OrWhere(qualified + " IS NOT NULL")
	} else {
		q.b.WhereNotNull(qualified)
	}
	return q
}

// WhereNull adds an IS NULL predicate.
func (q *Query) WhereNull(column string) *Query {
	if err := ValidateColumnName(column); err != nil {
		return q.fail(err)
	}
	return q.whereNull("AND", q.qualify(column))
}

// WhereNotNull adds an IS NOT NULL predicate.
func (q *Query) WhereNotNull(column string) *Query {
	if err := ValidateColumnName(column); err != nil {
		return q.fail(err)
	}
	return q.whereNotNull("AND", q.qualify(column))
}

// WhereIn adds a batched IN predicate. An empty value set renders a
// predicate that matches nothing.
func (q *Query) WhereIn(column string, values []any) *Query {
	if err := ValidateColumnName(column); err != nil {
		return q.fail(err)
	}
	if len(values) == 0 {
		q.b.Where("1 = 0")
		return q
	}
	q.b.WhereIn(q.qualify(column), values)
	return q
}

// WhereRaw adds a raw predicate fragment with positional arguments.
func (q *Query) WhereRaw(sql string, args ...any) *Query {
	q.b.Where(sql, args...)
	return q
}

// WhereNested groups the predicates added inside fn in parentheses.
func (q *Query) WhereNested(fn func(*Query)) *Query {
	return q.whereNested("AND", fn)
}

func (q *Query) OrWhereNested(fn func(*Query)) *Query {
	return q.whereNested("OR", fn)
}

func (q *Query) whereNested(boolean string, fn func(*Query)) *Query {
	inner := newQueryOn(q.conn, q.schema)
	inner.b.alias = q.b.alias
	fn(inner)
	if inner.err != nil {
		return q.fail(inner.err)
	}
	if len(inner.b.wheres) > 0 {
		q.b.wheres = append(q.b.wheres, whereClause{boolean: boolean, nested: inner.b.wheres})
	}
	return q
}

// OrderBy sorts results by the column. Direction is "ASC" or "DESC".
func (q *Query) OrderBy(column, direction string) *Query {
	if err := ValidateColumnName(column); err != nil {
		return q.fail(err)
	}
	dir := strings.ToUpper(direction)
	if dir != "ASC" && dir != "DESC" {
		return q.fail(&InvalidArgumentError{Message: fmt.Sprintf("order direction %q must be ASC or DESC", direction)})
	}
	q.b.OrderBy(q.qualify(column) + " " + dir)
	return q
}

// Latest orders by the column descending, defaulting to the created-at
// column when configured, otherwise the primary key.
func (q *Query) Latest(column ...string) *Query {
	col := q.schema.createdAtColumn
	if col == "" {
		col = q.schema.primaryKey
	}
	if len(column) > 0 {
		col = column[0]
	}
	return q.OrderBy(col, "DESC")
}

func (q *Query) Limit(n int) *Query {
	q.b.Limit(n)
	return q
}

func (q *Query) Offset(n int) *Query {
	q.b.Offset(n)
	return q
}

// With requests eager loading of the named relation paths. Paths may be
// dotted ("posts.comments") and may carry a column subset suffix
// ("posts:id,user_id,title"). Requesting a nested path synthesizes its
// ancestors without constraints.
func (q *Query) With(paths ...string) *Query {
	for _, path := range paths {
		name, columns := splitWithColumns(path)
		q.registerWith(name, columns, nil)
	}
	return q
}

// WithConstraint eagerly loads one relation path with a caller constraint
// applied to the relation query before execution.
func (q *Query) WithConstraint(path string, fn func(*Query)) *Query {
	name, columns := splitWithColumns(path)
	q.registerWith(name, columns, fn)
	return q
}

// Without removes previously requested eager paths, including any nested
// paths below them.
func (q *Query) Without(paths ...string) *Query {
	for _, path := range paths {
		name, _ := splitWithColumns(path)
		for registered := range q.eager {
			if registered == name || strings.HasPrefix(registered, name+".") {
				delete(q.eager, registered)
			}
		}
	}
	order := q.eagerOrder[:0]
	for _, name := range q.eagerOrder {
		if _, ok := q.eager[name]; ok {
			order = append(order, name)
		}
	}
	q.eagerOrder = order
	return q
}

// WithOnly replaces the eager-load plan with exactly the given paths.
func (q *Query) WithOnly(paths ...string) *Query {
	q.eager = make(map[string]*eagerLoad)
	q.eagerOrder = nil
	return q.With(paths...)
}

func splitWithColumns(path string) (string, []string) {
	name, cols, found := strings.Cut(path, ":")
	if !found {
		return path, nil
	}
	parts := strings.Split(cols, ",")
	columns := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			columns = append(columns, trimmed)
		}
	}
	return name, columns
}

func (q *Query) registerWith(path string, columns []string, fn func(*Query)) {
	segments := strings.Split(path, ".")
	// Synthesize missing ancestors so "a.b.c" implies "a" and "a.b".
	for i := 1; i < len(segments); i++ {
		prefix := strings.Join(segments[:i], ".")
		if _, ok := q.eager[prefix]; !ok {
			q.eager[prefix] = &eagerLoad{}
			q.eagerOrder = append(q.eagerOrder, prefix)
		}
	}
	existing, ok := q.eager[path]
	if !ok {
		q.eager[path] = &eagerLoad{constraint: fn, columns: columns, explicit: fn != nil || columns != nil}
		q.eagerOrder = append(q.eagerOrder, path)
		return
	}
	// A later registration only upgrades the entry; an explicit
	// constraint is never clobbered by a synthesized no-op.
	if fn != nil {
		existing.constraint = fn
		existing.explicit = true
	}
	if columns != nil {
		existing.columns = columns
		existing.explicit = true
	}
}

// WithoutGlobalScope skips one named global scope for this query.
func (q *Query) WithoutGlobalScope(name string) *Query {
	if q.withoutScopes == nil {
		q.withoutScopes = map[string]bool{}
	}
	q.withoutScopes[name] = true
	return q
}

// WithoutGlobalScopes skips every global scope for this query.
func (q *Query) WithoutGlobalScopes() *Query {
	q.withoutAllScopes = true
	return q
}

// WithTrashed includes soft-deleted rows.
func (q *Query) WithTrashed() *Query {
	q.withTrashed = true
	return q
}

// OnlyTrashed restricts results to soft-deleted rows.
func (q *Query) OnlyTrashed() *Query {
	q.onlyTrashed = true
	return q
}

// applyScopes appends global scope predicates and the soft-delete filter.
// Each scope's predicates are grouped so a scope using OR cannot leak into
// neighboring clauses.
func (q *Query) applyScopes() {
	if !q.withoutAllScopes {
		for _, name := range q.schema.scopeOrder {
			if q.withoutScopes[name] {
				continue
			}
			scope := q.schema.globalScopes[name]
			idx := len(q.b.wheres)
			scope.Apply(q)
			q.b.groupWheresFrom(idx)
		}
	}
	if q.schema.SoftDeletes() {
		switch {
		case q.onlyTrashed:
			q.b.WhereNotNull(q.qualify(q.schema.softDeleteColumn))
		case !q.withTrashed:
			q.b.WhereNull(q.qualify(q.schema.softDeleteColumn))
		}
	}
}

// Get executes the query and returns the hydrated, eager-loaded results.
func (q *Query) Get(ctx context.Context) (*Collection, error) {
	entities, err := q.getEntities(ctx)
	if err != nil {
		return nil, err
	}
	return newCollection(q.schema, entities), nil
}

func (q *Query) getEntities(ctx context.Context) ([]*Entity, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.applyScopes()
	stmt, args := q.b.ToSQL()
	rows, err := q.conn.Select(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	entities := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, newFromRow(q.schema, q.conn, row))
	}
	if len(entities) > 0 && len(q.eagerOrder) > 0 {
		if err := q.eagerLoadRelations(ctx, entities); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// First returns the first matching entity, or nil when none match.
func (q *Query) First(ctx context.Context) (*Entity, error) {
	q.Limit(1)
	entities, err := q.getEntities(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

// FirstOrFail returns the first matching entity or a NotFoundError.
func (q *Query) FirstOrFail(ctx context.Context) (*Entity, error) {
	e, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &NotFoundError{Entity: q.schema.name}
	}
	return e, nil
}

// Sole returns the single matching entity. No match is a NotFoundError;
// more than one is a MultipleRecordsFoundError.
func (q *Query) Sole(ctx context.Context) (*Entity, error) {
	q.Limit(2)
	entities, err := q.getEntities(ctx)
	if err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, &NotFoundError{Entity: q.schema.name}
	case 1:
		return entities[0], nil
	default:
		return nil, &MultipleRecordsFoundError{Entity: q.schema.name, Count: len(entities)}
	}
}

// Find fetches an entity by primary key, or nil when absent.
func (q *Query) Find(ctx context.Context, id any) (*Entity, error) {
	return q.Where(q.schema.primaryKey, id).First(ctx)
}

// FindOrFail fetches by primary key or returns a NotFoundError naming the
// missing key.
func (q *Query) FindOrFail(ctx context.Context, id any) (*Entity, error) {
	e, err := q.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &NotFoundError{Entity: q.schema.name, Keys: []any{id}}
	}
	return e, nil
}

// FindMany fetches the entities whose primary keys are in ids.
func (q *Query) FindMany(ctx context.Context, ids []any) (*Collection, error) {
	return q.WhereIn(q.schema.primaryKey, ids).Get(ctx)
}

// FindManyOrFail fetches all requested keys and fails with the set of
// missing keys when any are absent.
func (q *Query) FindManyOrFail(ctx context.Context, ids []any) (*Collection, error) {
	col, err := q.FindMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	found := map[string]bool{}
	for _, e := range col.Items() {
		if k, ok := e.keyString(); ok {
			found[k] = true
		}
	}
	var missing []any
	seen := map[string]bool{}
	for _, id := range ids {
		k, ok := dictionaryKey(id, q.schema.keyType)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		if !found[k] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{Entity: q.schema.name, Keys: missing}
	}
	return col, nil
}

// Count returns the number of matching rows.
func (q *Query) Count(ctx context.Context) (int64, error) {
	v, err := q.aggregate(ctx, "COUNT(*)")
	if err != nil {
		return 0, err
	}
	count, err := cast.ToInt64E(v)
	if err != nil {
		return 0, &InvalidCastError{Entity: q.schema.name, Attribute: "count", CastType: "int64"}
	}
	return count, nil
}

// Exists reports whether any row matches.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	n, err := q.Clone().Limit(1).Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Sum returns the sum of the column over matching rows.
func (q *Query) Sum(ctx context.Context, column string) (float64, error) {
	return q.numericAggregate(ctx, "SUM", column)
}

// Avg returns the average of the column over matching rows.
func (q *Query) Avg(ctx context.Context, column string) (float64, error) {
	return q.numericAggregate(ctx, "AVG", column)
}

// Min returns the minimum value of the column over matching rows.
func (q *Query) Min(ctx context.Context, column string) (any, error) {
	if err := ValidateColumnName(column); err != nil {
		return nil, err
	}
	return q.aggregate(ctx, "MIN("+q.qualify(column)+")")
}

// Max returns the maximum value of the column over matching rows.
func (q *Query) Max(ctx context.Context, column string) (any, error) {
	if err := ValidateColumnName(column); err != nil {
		return nil, err
	}
	return q.aggregate(ctx, "MAX("+q.qualify(column)+")")
}

func (q *Query) numericAggregate(ctx context.Context, fn, column string) (float64, error) {
	if err := ValidateColumnName(column); err != nil {
		return 0, err
	}
	v, err := q.aggregate(ctx, fn+"("+q.qualify(column)+")")
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, &InvalidCastError{Entity: q.schema.name, Attribute: column, CastType: "float64"}
	}
	return f, nil
}

func (q *Query) aggregate(ctx context.Context, expr string) (any, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.applyScopes()
	b := q.b.Clone()
	b.Select(expr)
	b.orders = nil
	stmt, args := b.ToSQL()
	return q.conn.ScanValue(ctx, stmt, args...)
}

// Pluck returns a single column's values across matching rows.
func (q *Query) Pluck(ctx context.Context, column string) ([]any, error) {
	if err := ValidateColumnName(column); err != nil {
		return nil, err
	}
	if q.err != nil {
		return nil, q.err
	}
	q.applyScopes()
	b := q.b.Clone()
	qualified := q.qualify(column)
	b.Select(qualified)
	stmt, args := b.ToSQL()
	rows, err := q.conn.Select(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	bare := column
	if i := strings.LastIndex(column, "."); i >= 0 {
		bare = column[i+1:]
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row[bare])
	}
	return out, nil
}

// Value returns a single column from the first matching row, or nil when
// no row matches.
func (q *Query) Value(ctx context.Context, column string) (any, error) {
	if err := ValidateColumnName(column); err != nil {
		return nil, err
	}
	if q.err != nil {
		return nil, q.err
	}
	q.applyScopes()
	b := q.b.Clone()
	b.Select(q.qualify(column))
	b.Limit(1)
	stmt, args := b.ToSQL()
	return q.conn.ScanValue(ctx, stmt, args...)
}

// Clone returns an independent copy of the query, including requested
// eager loads.
func (q *Query) Clone() *Query {
	nq := &Query{
		conn:             q.conn,
		schema:           q.schema,
		b:                q.b.Clone(),
		eager:            make(map[string]*eagerLoad, len(q.eager)),
		eagerOrder:       append([]string(nil), q.eagerOrder...),
		withoutAllScopes: q.withoutAllScopes,
		withTrashed:      q.withTrashed,
		onlyTrashed:      q.onlyTrashed,
		err:              q.err,
	}
	for k, v := range q.eager {
		cp := *v
		nq.eager[k] = &cp
	}
	if q.withoutScopes != nil {
		nq.withoutScopes = make(map[string]bool, len(q.withoutScopes))
		for k := range q.withoutScopes {
			nq.withoutScopes[k] = true
		}
	}
	return nq
}

// eagerLoadRelations resolves every root-level requested relation in
// registration order, handing nested paths down to the relation query.
func (q *Query) eagerLoadRelations(ctx context.Context, entities []*Entity) error {
	for _, name := range q.eagerOrder {
		if strings.Contains(name, ".") {
			continue
		}
		if err := q.eagerLoadRelation(ctx, entities, name, q.eager[name]); err != nil {
			return err
		}
	}
	return nil
}

func (q *Query) eagerLoadRelation(ctx context.Context, entities []*Entity, name string, load *eagerLoad) error {
	rel, err := noConstraints(func() (Relation, error) {
		return entities[0].relationInstance(name)
	})
	if err != nil {
		return err
	}

	rel.InitRelation(entities, name)
	rel.AddEagerConstraints(entities)

	nested, constraints := q.nestedEager(name)
	if mt, ok := rel.(*MorphToRelation); ok {
		mt.setEagerNested(nested, constraints, load.constraint)
	} else {
		rq := rel.Query()
		for _, path := range nested {
			if fn := constraints[path]; fn != nil {
				rq.WithConstraint(path, fn)
			} else {
				rq.With(path)
			}
		}
		if len(load.columns) > 0 {
			for _, c := range load.columns {
				if err := ValidateColumnName(c); err != nil {
					return err
				}
			}
			if btm, ok := rel.(*BelongsToManyRelation); ok {
				btm.restrictColumns(load.columns)
			} else {
				rq.Select(load.columns...)
			}
		}
		if load.constraint != nil {
			load.constraint(rq)
		}
	}

	results, err := rel.getEager(ctx)
	if err != nil {
		return err
	}
	rel.Match(entities, results, name)
	return nil
}

// nestedEager returns the sub-paths registered under the given root,
// stripped of the root prefix, alongside their explicit constraints.
func (q *Query) nestedEager(root string) ([]string, map[string]func(*Query)) {
	prefix := root + "."
	var paths []string
	constraints := map[string]func(*Query){}
	for _, name := range q.eagerOrder {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		sub := strings.TrimPrefix(name, prefix)
		paths = append(paths, sub)
		if load := q.eager[name]; load.constraint != nil {
			constraints[sub] = load.constraint
		}
	}
	return paths, constraints
}

// Insert persists a new row and returns its primary key. Timestamp columns
// are stamped when the schema declares them.
func (q *Query) Insert(ctx context.Context, values map[string]any) (any, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(values) == 0 {
		return nil, &InvalidArgumentError{Message: "insert requires at least one column"}
	}
	// String-keyed entities get a generated key when the caller did not
	// provide one.
	if q.schema.keyType == KeyString {
		if _, ok := values[q.schema.primaryKey]; !ok {
			values[q.schema.primaryKey] = uuid.NewString()
		}
	}

	now := time.Now().UTC()
	if q.schema.createdAtColumn != "" {
		if _, ok := values[q.schema.createdAtColumn]; !ok {
			values[q.schema.createdAtColumn] = now
		}
	}
	if q.schema.updatedAtColumn != "" {
		if _, ok := values[q.schema.updatedAtColumn]; !ok {
			values[q.schema.updatedAtColumn] = now
		}
	}

	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	args := make([]any, 0, len(columns))
	for _, c := range columns {
		args = append(args, values[c])
	}

	sb := GetStringBuilder()
	defer PutStringBuilder(sb)
	sb.WriteString("INSERT INTO ")
	sb.WriteString(q.schema.table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES (")
	writePlaceholders(sb, len(columns))
	sb.WriteString(")")

	if given, ok := values[q.schema.primaryKey]; ok {
		if _, err := q.conn.Exec(ctx, sb.String(), args...); err != nil {
			return nil, err
		}
		return given, nil
	}

	if q.conn.dialect.NumberedPlaceholders {
		sb.WriteString(" RETURNING ")
		sb.WriteString(q.schema.primaryKey)
		return q.conn.ScanValue(ctx, sb.String(), args...)
	}

	res, err := q.conn.Exec(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, WrapQueryError("INSERT", sb.String(), args, err)
	}
	return id, nil
}

// Update applies the values to every matching row and returns the number
// of rows affected.
func (q *Query) Update(ctx context.Context, values map[string]any) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	if len(values) == 0 {
		return 0, &InvalidArgumentError{Message: "update requires at least one column"}
	}
	if q.schema.updatedAtColumn != "" {
		if _, ok := values[q.schema.updatedAtColumn]; !ok {
			values[q.schema.updatedAtColumn] = time.Now().UTC()
		}
	}
	q.applyScopes()

	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	sb := GetStringBuilder()
	defer PutStringBuilder(sb)
	sb.WriteString("UPDATE ")
	sb.WriteString(q.schema.table)
	sb.WriteString(" SET ")
	var args []any
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c)
		sb.WriteString(" = ?")
		args = append(args, values[c])
	}
	if len(q.b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		args = writeWheres(sb, q.b.wheres, args)
	}
	res, err := q.conn.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes matching rows. Schemas with soft deletes get the delete
// column stamped instead; use ForceDelete to remove rows outright.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	if q.schema.SoftDeletes() {
		return q.Update(ctx, map[string]any{q.schema.softDeleteColumn: time.Now().UTC()})
	}
	return q.ForceDelete(ctx)
}

// ForceDelete removes matching rows permanently.
func (q *Query) ForceDelete(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	q.applyScopes()
	sb := GetStringBuilder()
	defer PutStringBuilder(sb)
	sb.WriteString("DELETE FROM ")
	sb.WriteString(q.schema.table)
	var args []any
	if len(q.b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		args = writeWheres(sb, q.b.wheres, args)
	}
	res, err := q.conn.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Restore clears the soft-delete column on matching trashed rows.
func (q *Query) Restore(ctx context.Context) (int64, error) {
	if !q.schema.SoftDeletes() {
		return 0, &InvalidArgumentError{Message: fmt.Sprintf("entity %q does not use soft deletes", q.schema.name)}
	}
	q.withTrashed = true
	return q.Update(ctx, map[string]any{q.schema.softDeleteColumn: nil})
}

// FirstOrCreate returns the first entity matching attrs, inserting
// attrs+values when none exists. A concurrent insert racing this call is
// absorbed by retrying the lookup once on a duplicate-key error.
func (q *Query) FirstOrCreate(ctx context.Context, attrs, values map[string]any) (*Entity, error) {
	lookup := func() (*Entity, error) {
		lq := newQueryOn(q.conn, q.schema)
		for c, v := range attrs {
			lq.Where(c, v)
		}
		return lq.First(ctx)
	}
	e, err := lookup()
	if err != nil || e != nil {
		return e, err
	}
	insert := make(map[string]any, len(attrs)+len(values))
	for c, v := range attrs {
		insert[c] = v
	}
	for c, v := range values {
		insert[c] = v
	}
	id, err := newQueryOn(q.conn, q.schema).Insert(ctx, insert)
	if err != nil {
		if IsDuplicateKey(err) {
			return lookup()
		}
		return nil, err
	}
	return newQueryOn(q.conn, q.schema).FindOrFail(ctx, id)
}

// CreateOrFirst inserts attrs+values, falling back to a lookup by attrs
// when the insert hits a unique constraint. The inverse ordering of
// FirstOrCreate, preferred when the row usually does not exist yet.
func (q *Query) CreateOrFirst(ctx context.Context, attrs, values map[string]any) (*Entity, error) {
	insert := make(map[string]any, len(attrs)+len(values))
	for c, v := range attrs {
		insert[c] = v
	}
	for c, v := range values {
		insert[c] = v
	}
	id, err := newQueryOn(q.conn, q.schema).Insert(ctx, insert)
	if err != nil {
		if !IsDuplicateKey(err) {
			return nil, err
		}
		lq := newQueryOn(q.conn, q.schema)
		for c, v := range attrs {
			lq.Where(c, v)
		}
		return lq.FirstOrFail(ctx)
	}
	return newQueryOn(q.conn, q.schema).FindOrFail(ctx, id)
}

// UpdateOrCreate updates the first entity matching attrs with values, or
// inserts attrs+values when none exists.
func (q *Query) UpdateOrCreate(ctx context.Context, attrs, values map[string]any) (*Entity, error) {
	lq := newQueryOn(q.conn, q.schema)
	for c, v := range attrs {
		lq.Where(c, v)
	}
	e, err := lq.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return q.FirstOrCreate(ctx, attrs, values)
	}
	if len(values) > 0 {
		uq := newQueryOn(q.conn, q.schema).Where(q.schema.primaryKey, e.Key())
		if _, err := uq.Update(ctx, values); err != nil {
			return nil, err
		}
		for c, v := range values {
			e.Set(c, v)
		}
		e.syncOriginal()
	}
	return e, nil
}
