package relate

import (
	"context"
	"database/sql"
)

// Tx wraps sql.Tx together with the connection it was opened on.
type Tx struct {
	Tx   *sql.Tx
	conn *Connection
}

// Begin opens a transaction on the connection's primary handle.
func (c *Connection) Begin(ctx context.Context) (*Tx, error) {
	db := c.db
	if c.resolver != nil {
		db = c.resolver.Primary()
	}
	if db == nil {
		return nil, ErrNilDatabase
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, conn: c}, nil
}

// Transaction executes fn within a transaction. The transaction is rolled
// back on error or panic and committed otherwise.
func (c *Connection) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Tx.Rollback()
		return err
	}

	return tx.Tx.Commit()
}

// Select runs a read query inside the transaction.
func (t *Tx) Select(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	bound := t.conn.dialect.Rebind(query)
	t.conn.notify(bound, args)

	rows, err := t.Tx.QueryContext(ctx, bound, args...)
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

// Exec runs a write statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	bound := t.conn.dialect.Rebind(query)
	t.conn.notify(bound, args)
	return t.Tx.ExecContext(ctx, bound, args...)
}

// Connection returns a connection routing every statement through this
// transaction. Pass it to Query.On to run entity queries transactionally.
func (t *Tx) Connection() *Connection {
	return &Connection{
		Name:    t.conn.Name,
		db:      t.conn.db,
		dialect: t.conn.dialect,
		tx:      t.Tx,
	}
}
