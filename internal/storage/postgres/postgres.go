// Package postgres implements the PostgreSQL destination and source backends
// on top of pgx/v5.
//
// Each handle owns exactly one *pgx.Conn. The loader never runs two
// transactions at once on the same handle, so no pool is needed.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"moviesetl/internal/storage"
)

// maxParams is the PostgreSQL bind-parameter limit per statement.
const maxParams = 65535

func init() {
	storage.RegisterDestination("postgres", NewDestination)
	storage.RegisterSource("postgres", NewSource)
}

func connect(ctx context.Context, dsn string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return conn, nil
}

// qualify returns a quoted, optionally schema-qualified table identifier,
// e.g. qualify("content", "genre") == `"content"."genre"`.
func qualify(schema, table string) string {
	if strings.TrimSpace(schema) == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// It is pure and deterministic, so ON CONFLICT behavior and placeholder
// numbering are unit tested without a database.
//
// If conflictColumns is non-empty, the INSERT is made idempotent using:
//
//	ON CONFLICT (<conflictColumns...>) DO NOTHING
//
// Constraints:
//   - rows must have the same length as columns for every row.
//   - columns must be non-empty.
//   - len(rows)*len(columns) must not exceed maxParams; see chunkRows.
func buildInsertSQL(table string, columns []string, rows [][]any, conflictColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(conflictColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		for i, c := range conflictColumns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(") DO NOTHING")
	}

	return b.String(), args
}

// chunkRows splits rows so that no chunk needs more than limit parameters.
func chunkRows(rows [][]any, columns, limit int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := max(1, limit/max(1, columns))

	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
