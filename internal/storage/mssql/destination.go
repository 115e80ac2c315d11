package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moviesetl/internal/storage"
)

// Destination implements storage.Destination for SQL Server.
type Destination struct {
	db     dbConn
	schema string
}

func NewDestination(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	raw, err := open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Destination{db: &sqlDB{db: raw}, schema: cfg.Schema}, nil
}

func (d *Destination) Close() {
	if d == nil || d.db == nil {
		return
	}
	_ = d.db.Close()
}

func (d *Destination) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+qualify(d.schema, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("mssql: count %s: %w", table, err)
	}
	return n, nil
}

func (d *Destination) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &mssqlTx{tx: tx, schema: d.schema}, nil
}

type mssqlTx struct {
	tx     txConn
	schema string
}

// Truncate uses DELETE; TRUNCATE TABLE is rejected on tables referenced by a
// foreign key.
func (t *mssqlTx) Truncate(ctx context.Context, table string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+qualify(t.schema, table)); err != nil {
		return fmt.Errorf("mssql: truncate %s: %w", table, err)
	}
	return nil
}

func (t *mssqlTx) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("mssql: insert %s: no columns", table)
	}
	if len(conflictColumns) > 0 {
		var err error
		if rows, err = dedupeRowsByColumns(rows, columns, conflictColumns); err != nil {
			return 0, err
		}
	}

	target := qualify(t.schema, table)
	maxRows := max(1, maxParams/len(columns))

	var total int64
	for start := 0; start < len(rows); start += maxRows {
		end := min(start+maxRows, len(rows))

		q, args := buildInsertNotExistsSQL(target, columns, rows[start:end], conflictColumns)
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, fmt.Errorf("mssql: insert %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *mssqlTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *mssqlTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// ---- database/sql seam types ----

// dbConn is the part of *sql.DB this package uses; tests substitute a fake.
type dbConn interface {
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

// txConn is the part of *sql.Tx this package uses.
type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

// rowScanner is a narrow adapter over *sql.Row.Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }

var (
	_ dbConn              = (*sqlDB)(nil)
	_ txConn              = (*sql.Tx)(nil)
	_ storage.Destination = (*Destination)(nil)
)
