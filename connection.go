package relate

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// queryer is the minimal execution surface shared by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Connection wraps a database handle together with its dialect, optional
// prepared-statement cache, optional read/write resolver and a query hook.
type Connection struct {
	Name    string
	db      *sql.DB
	dialect *Dialect

	stmtCache *StmtCache
	resolver  *DBResolver

	// tx routes every statement through an open transaction when set.
	// Transaction-scoped connections are derived via Tx.Connection.
	tx *sql.Tx

	hookMu  sync.RWMutex
	onQuery func(query string, args []any)
}

// ConnectionConfig configures a named connection.
type ConnectionConfig struct {
	// Name identifies this connection. Defaults to "default".
	Name string

	// An existing database handle. If provided, Driver and DSN are ignored.
	DB *sql.DB

	// Driver and DSN used to open a new handle when DB is nil.
	Driver string
	DSN    string

	// SQL dialect. Inferred from Driver when nil.
	Dialect *Dialect

	// StmtCacheSize enables the prepared statement LRU cache when > 0.
	StmtCacheSize int
}

var (
	connMu      sync.RWMutex
	connections = map[string]*Connection{}
)

// SetupConnection opens (if needed) and registers a connection.
func SetupConnection(cfg ConnectionConfig) (*Connection, error) {
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	db := cfg.DB
	if db == nil {
		if cfg.Driver == "" || cfg.DSN == "" {
			return nil, ErrNilDatabase
		}
		var err error
		db, err = sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
	}

	dialect := cfg.Dialect
	if dialect == nil {
		dialect = dialectFor(cfg.Driver)
	}

	conn := &Connection{
		Name:    cfg.Name,
		db:      db,
		dialect: dialect,
	}
	if cfg.StmtCacheSize > 0 {
		conn.stmtCache = NewStmtCache(cfg.StmtCacheSize)
	}

	connMu.Lock()
	connections[cfg.Name] = conn
	connMu.Unlock()

	return conn, nil
}

// GetConnection returns a registered connection or nil.
func GetConnection(name string) *Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return connections[name]
}

// DefaultConnection returns the connection named "default", or nil.
func DefaultConnection() *Connection {
	return GetConnection("default")
}

// ResetConnections unregisters all connections without closing the
// underlying handles. Intended for tests.
func ResetConnections() {
	connMu.Lock()
	defer connMu.Unlock()
	for _, c := range connections {
		if c.stmtCache != nil {
			c.stmtCache.Close()
		}
	}
	connections = map[string]*Connection{}
}

// OnQuery installs a hook invoked with every statement the connection
// executes, after placeholder rebinding. Useful for diagnostics and for
// asserting query counts in tests.
func (c *Connection) OnQuery(fn func(query string, args []any)) {
	c.hookMu.Lock()
	c.onQuery = fn
	c.hookMu.Unlock()
}

// UseResolver routes reads to replicas and writes to the primary.
func (c *Connection) UseResolver(r *DBResolver) {
	c.resolver = r
}

// DB exposes the raw handle.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Dialect returns the connection's dialect.
func (c *Connection) Dialect() *Dialect {
	return c.dialect
}

func (c *Connection) notify(query string, args []any) {
	c.hookMu.RLock()
	fn := c.onQuery
	c.hookMu.RUnlock()
	if fn != nil {
		fn(query, args)
	}
}

func (c *Connection) reader() queryer {
	if c.tx != nil {
		return c.tx
	}
	if c.resolver != nil {
		return c.resolver.Replica()
	}
	return c.db
}

func (c *Connection) writer() queryer {
	if c.tx != nil {
		return c.tx
	}
	if c.resolver != nil {
		return c.resolver.Primary()
	}
	return c.db
}

// Select runs a read query and scans every row into a column->value map.
// Byte slices are converted to strings so values hash and compare cleanly.
func (c *Connection) Select(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	bound := c.dialect.Rebind(query)
	c.notify(bound, args)

	var rows *sql.Rows
	var err error

	if c.stmtCache != nil {
		stmt, release, perr := c.prepareStmt(ctx, bound, c.reader())
		if perr != nil {
			return nil, WrapQueryError("PREPARE", bound, args, perr)
		}
		defer release()
		rows, err = stmt.QueryContext(ctx, args...)
	} else {
		rows, err = c.reader().QueryContext(ctx, bound, args...)
	}
	if err != nil {
		return nil, WrapQueryError("SELECT", bound, args, err)
	}
	defer rows.Close()

	results, err := scanRowMaps(rows)
	if err != nil {
		return nil, WrapQueryError("SCAN", bound, args, err)
	}
	return results, nil
}

// Exec runs a write statement on the primary.
func (c *Connection) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	bound := c.dialect.Rebind(query)
	c.notify(bound, args)

	if c.stmtCache != nil {
		stmt, release, perr := c.prepareStmt(ctx, bound, c.writer())
		if perr != nil {
			return nil, WrapQueryError("PREPARE", bound, args, perr)
		}
		defer release()
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return nil, WrapQueryError("EXEC", bound, args, err)
		}
		return res, nil
	}
	res, err := c.writer().ExecContext(ctx, bound, args...)
	if err != nil {
		return nil, WrapQueryError("EXEC", bound, args, err)
	}
	return res, nil
}

// ScanValue runs a read query expected to yield a single value. A query
// matching no rows yields nil.
func (c *Connection) ScanValue(ctx context.Context, query string, args ...any) (any, error) {
	bound := c.dialect.Rebind(query)
	c.notify(bound, args)

	var v any
	if err := c.writer().QueryRowContext(ctx, bound, args...).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, WrapQueryError("SELECT", bound, args, err)
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	return v, nil
}

// prepareStmt returns a cached or freshly prepared statement plus a release
// function the caller must invoke when done.
func (c *Connection) prepareStmt(ctx context.Context, query string, q queryer) (*sql.Stmt, func(), error) {
	if stmt, release := c.stmtCache.Get(query); stmt != nil {
		return stmt, release, nil
	}

	var stmt *sql.Stmt
	var err error
	switch h := q.(type) {
	case *sql.DB:
		stmt, err = h.PrepareContext(ctx, query)
	case *sql.Tx:
		stmt, err = h.PrepareContext(ctx, query)
	default:
		return nil, nil, ErrNilDatabase
	}
	if err != nil {
		return nil, nil, err
	}

	cached, release := c.stmtCache.PutAndGet(query, stmt)
	return cached, release, nil
}

// scanRowMaps reads all remaining rows into column->value maps.
func scanRowMaps(rows *sql.Rows) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, 16)
	dest := make([]any, len(columns))
	holders := make([]any, len(columns))
	for i := range holders {
		dest[i] = &holders[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := holders[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// ConfigurePool accepts pool durations in seconds.
// Pass 0 to leave a duration unlimited / not set.
func ConfigurePool(db *sql.DB, maxOpen, maxIdle int, maxLifetimeSec, idleTimeoutSec int64) {
	if db == nil {
		return
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetimeSec >= 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifetimeSec) * time.Second)
	}
	if idleTimeoutSec >= 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeoutSec) * time.Second)
	}
}

// ConnectSQLite opens an sqlite database and registers it under name.
func ConnectSQLite(name, dsn string) (*Connection, error) {
	return SetupConnection(ConnectionConfig{Name: name, Driver: "sqlite3", DSN: dsn})
}

// ConnectMySQL opens a MySQL database and registers it under name.
func ConnectMySQL(name, dsn string) (*Connection, error) {
	return SetupConnection(ConnectionConfig{Name: name, Driver: "mysql", DSN: dsn})
}
