package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"moviesetl/internal/storage"
)

// Destination implements storage.Destination for PostgreSQL.
type Destination struct {
	conn   *pgx.Conn
	schema string
}

// NewDestination connects to cfg.DSN. Tables are qualified with cfg.Schema
// (the loader defaults to "content").
func NewDestination(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	conn, err := connect(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Destination{conn: conn, schema: cfg.Schema}, nil
}

func (d *Destination) Close() { _ = d.conn.Close(context.Background()) }

func (d *Destination) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := d.conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+qualify(d.schema, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count %s: %w", table, err)
	}
	return n, nil
}

func (d *Destination) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := d.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, schema: d.schema}, nil
}

// execer is the part of pgx.Tx used for writes; it keeps pgTx testable with
// a fake.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type pgTx struct {
	tx     execer
	schema string
}

// Truncate empties table with CASCADE. Postgres refuses to truncate a table
// referenced by a foreign key, even an empty one, unless the referencing
// tables are truncated too.
func (t *pgTx) Truncate(ctx context.Context, table string) error {
	if _, err := t.tx.Exec(ctx, "TRUNCATE TABLE "+qualify(t.schema, table)+" CASCADE"); err != nil {
		return fmt.Errorf("postgres: truncate %s: %w", table, err)
	}
	return nil
}

func (t *pgTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: insert %s: no columns", table)
	}

	target := qualify(t.schema, table)
	var total int64
	for _, part := range chunkRows(rows, len(columns), maxParams) {
		q, args := buildInsertSQL(target, columns, part, conflictColumns)
		tag, err := t.tx.Exec(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("postgres: insert %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

var _ storage.Destination = (*Destination)(nil)
