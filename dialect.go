package relate

import (
	"strconv"
	"strings"
)

// Dialect describes the SQL flavor a connection speaks. The query layer
// always builds with '?' placeholders; Rebind rewrites them per dialect.
type Dialect struct {
	DriverName           string
	NumberedPlaceholders bool
}

var (
	DialectSQLite = &Dialect{DriverName: "sqlite3"}

	DialectMySQL = &Dialect{DriverName: "mysql"}

	DialectPostgres = &Dialect{DriverName: "pgx", NumberedPlaceholders: true}
)

// dialectFor maps a driver name to its dialect, defaulting to SQLite-style
// '?' placeholders for unknown drivers.
func dialectFor(driver string) *Dialect {
	switch driver {
	case "pgx", "postgres", "pq":
		return DialectPostgres
	case "mysql":
		return DialectMySQL
	default:
		return DialectSQLite
	}
}

// Rebind rewrites '?' placeholders to the dialect's placeholder style.
// Question marks inside single-quoted literals are left untouched.
func (d *Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)

	n := 0
	inLiteral := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inLiteral = !inLiteral
			sb.WriteByte(c)
		case c == '?' && !inLiteral:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
		default:
			sb.WriteByte(c)
		}
	}

	return sb.String()
}
