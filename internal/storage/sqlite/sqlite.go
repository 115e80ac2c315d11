// Package sqlite implements the SQLite source and destination backends on
// top of modernc.org/sqlite.
//
// Key design points vs Postgres:
//   - SQLite has no schemas; storage.Config.Schema is ignored.
//   - There is no TRUNCATE; Truncate issues DELETE FROM.
//   - Timestamps are stored as text. modernc.org/sqlite hands back time.Time
//     for DATE/DATETIME/TIMESTAMP declared columns and string otherwise; the
//     records package accepts both.
//   - Each handle holds a single connection, matching the loader's one
//     connection per store model.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"moviesetl/internal/storage"
)

// maxVariables is SQLite's default SQLITE_MAX_VARIABLE_NUMBER since 3.32.
const maxVariables = 32766

func init() {
	storage.RegisterSource("sqlite", NewSource)
	storage.RegisterDestination("sqlite", NewDestination)
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: empty dsn")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func count(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, table string) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count %s: %w", table, err)
	}
	return n, nil
}

// buildInsertSQL constructs a single multi-row INSERT and its args.
//
// If conflictColumns is non-empty the statement ends with
//
//	ON CONFLICT (<conflictColumns...>) DO NOTHING
//
// so rows whose key already exists are skipped. Unlike INSERT OR IGNORE this
// does not also swallow NOT NULL or CHECK violations.
//
// Constraints:
//   - every row must have len(columns) values.
//   - columns must be non-empty.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES ")

	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row[:len(columns)]...)
	}

	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(joinIdentList(conflictColumns))
		b.WriteString(") DO NOTHING")
	}
	return b.String(), args
}

func joinIdentList(columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, sqlIdent(c))
	}
	return strings.Join(parts, ", ")
}
