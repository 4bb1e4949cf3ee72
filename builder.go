package relate

import (
	"strings"
)

// whereClause is a single predicate in the WHERE tree. Nested groups hold
// their children and render parenthesized.
type whereClause struct {
	boolean string // "AND" or "OR"
	sql     string
	args    []any
	nested  []whereClause
}

// builder assembles a single SELECT statement with ? placeholders. Rebind
// translates them for drivers with numbered placeholders.
type builder struct {
	table    string
	alias    string
	columns  []string
	joins    []string
	joinArgs []any
	wheres   []whereClause
	groups   []string
	havings  []whereClause
	orders   []string
	limit    int
	offset   int
	distinct bool
}

func newBuilder(table string) *builder {
	return &builder{table: table, limit: -1, offset: -1}
}

// Clone returns a deep copy so relation templates can be reused per parent
// without sharing clause slices.
func (b *builder) Clone() *builder {
	nb := &builder{
		table:    b.table,
		alias:    b.alias,
		limit:    b.limit,
		offset:   b.offset,
		distinct: b.distinct,
	}
	nb.columns = append([]string(nil), b.columns...)
	nb.joins = append([]string(nil), b.joins...)
	nb.joinArgs = append([]any(nil), b.joinArgs...)
	nb.wheres = cloneWheres(b.wheres)
	nb.groups = append([]string(nil), b.groups...)
	nb.havings = cloneWheres(b.havings)
	nb.orders = append([]string(nil), b.orders...)
	return nb
}

func cloneWheres(src []whereClause) []whereClause {
	if src == nil {
		return nil
	}
	out := make([]whereClause, len(src))
	for i, w := range src {
		out[i] = whereClause{
			boolean: w.boolean,
			sql:     w.sql,
			args:    append([]any(nil), w.args...),
			nested:  cloneWheres(w.nested),
		}
	}
	return out
}

// target is the FROM expression, including the alias when one is set.
func (b *builder) target() string {
	if b.alias != "" {
		return b.table + " AS " + b.alias
	}
	return b.table
}

// qualifier is the name columns are qualified with: the alias when present,
// otherwise the table.
func (b *builder) qualifier() string {
	if b.alias != "" {
		return b.alias
	}
	return b.table
}

func (b *builder) As(alias string) *builder {
	b.alias = alias
	return b
}

func (b *builder) Select(columns ...string) *builder {
	b.columns = columns
	return b
}

func (b *builder) Distinct() *builder {
	b.distinct = true
	return b
}

func (b *builder) Where(sql string, args ...any) *builder {
	b.wheres = append(b.wheres, whereClause{boolean: "AND", sql: sql, args: args})
	return b
}

func (b *builder) OrWhere(sql string, args ...any) *builder {
	b.wheres = append(b.wheres, whereClause{boolean: "OR", sql: sql, args: args})
	return b
}

// WhereGroup nests the predicates added inside fn under a single
// parenthesized group.
func (b *builder) WhereGroup(boolean string, fn func(*builder)) *builder {
	inner := newBuilder(b.table)
	inner.alias = b.alias
	fn(inner)
	if len(inner.wheres) > 0 {
		b.wheres = append(b.wheres, whereClause{boolean: boolean, nested: inner.wheres})
	}
	return b
}

// groupWheresFrom wraps every predicate added at or after index idx into
// one parenthesized AND group. Used to keep scope predicates from leaking
// across OR boundaries. A lone added clause still needs the group when it
// carries an OR boolean.
func (b *builder) groupWheresFrom(idx int) {
	if idx < 0 || idx >= len(b.wheres) {
		return
	}
	added := b.wheres[idx:]
	if len(added) == 1 && added[0].boolean != "OR" {
		return
	}
	grouped := whereClause{boolean: "AND", nested: added}
	b.wheres = append(b.wheres[:idx:idx], grouped)
}

func (b *builder) WhereIn(column string, values []any) *builder {
	sb := GetStringBuilder()
	defer PutStringBuilder(sb)
	sb.WriteString(column)
	sb.WriteString(" IN (")
	writePlaceholders(sb, len(values))
	sb.WriteString(")")
	return b.Where(sb.String(), values...)
}

func (b *builder) WhereNull(column string) *builder {
	return b.Where(column + " IS NULL")
}

func (b *builder) WhereNotNull(column string) *builder {
	return b.Where(column + " IS NOT NULL")
}

func (b *builder) Join(clause string, args ...any) *builder {
	b.joins = append(b.joins, "INNER JOIN "+clause)
	b.joinArgs = append(b.joinArgs, args...)
	return b
}

func (b *builder) LeftJoin(clause string, args ...any) *builder {
	b.joins = append(b.joins, "LEFT JOIN "+clause)
	b.joinArgs = append(b.joinArgs, args...)
	return b
}

func (b *builder) GroupBy(columns ...string) *builder {
	b.groups = append(b.groups, columns...)
	return b
}

func (b *builder) Having(sql string, args ...any) *builder {
	b.havings = append(b.havings, whereClause{boolean: "AND", sql: sql, args: args})
	return b
}

func (b *builder) OrderBy(expr string) *builder {
	b.orders = append(b.orders, expr)
	return b
}

func (b *builder) Limit(n int) *builder {
	b.limit = n
	return b
}

func (b *builder) Offset(n int) *builder {
	b.offset = n
	return b
}

// ToSQL renders the statement and its flattened argument list.
func (b *builder) ToSQL() (string, []any) {
	sb := GetStringBuilder()
	defer PutStringBuilder(sb)

	var args []any

	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(b.columns) == 0 {
		sb.WriteString(b.qualifier())
		sb.WriteString(".*")
	} else {
		sb.WriteString(strings.Join(b.columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.target())

	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	args = append(args, b.joinArgs...)

	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		args = writeWheres(sb, b.wheres, args)
	}

	if len(b.groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groups, ", "))
	}
	if len(b.havings) > 0 {
		sb.WriteString(" HAVING ")
		args = writeWheres(sb, b.havings, args)
	}
	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orders, ", "))
	}
	if b.limit >= 0 {
		sb.WriteString(" LIMIT ")
		writeInt(sb, b.limit)
	}
	if b.offset >= 0 {
		sb.WriteString(" OFFSET ")
		writeInt(sb, b.offset)
	}

	return sb.String(), args
}

func writeWheres(sb *strings.Builder, wheres []whereClause, args []any) []any {
	for i, w := range wheres {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(w.boolean)
			sb.WriteString(" ")
		}
		if len(w.nested) > 0 {
			sb.WriteString("(")
			args = writeWheres(sb, w.nested, args)
			sb.WriteString(")")
			continue
		}
		sb.WriteString(w.sql)
		args = append(args, w.args...)
	}
	return args
}
