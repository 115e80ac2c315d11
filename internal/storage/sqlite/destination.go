package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moviesetl/internal/storage"
)

// Destination implements storage.Destination for SQLite. Mostly useful for
// local dry runs and end-to-end tests; foreign keys are only enforced when
// the DSN enables them (e.g. "file:dst.db?_pragma=foreign_keys(1)").
type Destination struct {
	db *sql.DB
}

func NewDestination(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	db, err := open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Destination{db: db}, nil
}

func (d *Destination) Close() { _ = d.db.Close() }

func (d *Destination) Count(ctx context.Context, table string) (int64, error) {
	return count(ctx, d.db, table)
}

func (d *Destination) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Truncate(ctx context.Context, table string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+sqlIdent(table)); err != nil {
		return fmt.Errorf("sqlite: truncate %s: %w", table, err)
	}
	return nil
}

func (t *sqliteTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: insert %s: no columns", table)
	}

	maxRows := maxVariables / len(columns)
	var total int64
	for start := 0; start < len(rows); start += maxRows {
		end := min(start+maxRows, len(rows))

		q, args := buildInsertSQL(table, columns, rows[start:end], conflictColumns)
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("sqlite: insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *sqliteTx) Commit(ctx context.Context) error { return t.tx.Commit() }

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

var _ storage.Destination = (*Destination)(nil)
