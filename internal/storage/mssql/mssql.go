// Package mssql implements a SQL Server destination backend.
//
// SQL Server has no ON CONFLICT, so idempotent inserts use a set-based
// INSERT ... SELECT ... WHERE NOT EXISTS against the conflict columns, with
// duplicates inside one batch collapsed first (keep first occurrence).
//
// This package does not import a driver. The "sqlserver" database/sql driver
// is registered by internal/storage/all.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"moviesetl/internal/storage"
)

// maxParams stays below SQL Server's limit of 2100 parameters per request.
const maxParams = 2000

func init() {
	storage.RegisterDestination("mssql", NewDestination)
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mssql: empty dsn")
	}
	raw, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	// One writer transaction at a time.
	raw.SetMaxOpenConns(1)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return raw, nil
}

// buildInsertNotExistsSQL constructs a single INSERT...SELECT...WHERE NOT EXISTS
// for a chunk of rows.
//
// Incoming rows are materialized as a derived table v via VALUES; only rows
// that do not match an existing row on conflictColumns are inserted.
func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, conflictColumns []string) (string, []any) {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	writeIdentList(&b, "", columns)
	b.WriteString(") SELECT ")
	writeIdentList(&b, "v.", columns)
	b.WriteString(" FROM (VALUES ")

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
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(") AS v(")
	writeIdentList(&b, "", columns)
	b.WriteString(")")

	if len(conflictColumns) > 0 {
		b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
		b.WriteString(table)
		b.WriteString(" t WHERE ")
		for i, c := range conflictColumns {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString("t.")
			b.WriteString(mssqlIdent(c))
			b.WriteString(" = v.")
			b.WriteString(mssqlIdent(c))
		}
		b.WriteString(")")
	}

	return b.String(), args
}

func writeIdentList(b *strings.Builder, prefix string, names []string) {
	for i, c := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(prefix)
		b.WriteString(mssqlIdent(c))
	}
}

// dedupeRowsByColumns keeps the first row for each distinct key over
// keyColumns, preserving input order.
//
// A VALUES list with the same key twice would slip past NOT EXISTS and then
// hit the primary key; collapsing first matches ON CONFLICT DO NOTHING.
func dedupeRowsByColumns(rows [][]any, columns, keyColumns []string) ([][]any, error) {
	idx := make([]int, len(keyColumns))
	for i, k := range keyColumns {
		pos := -1
		for j, c := range columns {
			if c == k {
				pos = j
				break
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("mssql: conflict column %q not present in columns", k)
		}
		idx[i] = pos
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	var key strings.Builder
	for _, row := range rows {
		key.Reset()
		for _, i := range idx {
			// \x1f keeps ("ab","c") and ("a","bc") apart.
			fmt.Fprintf(&key, "%T:%v\x1f", row[i], row[i])
		}
		k := key.String()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// qualify returns [schema].[table], or [table] when schema is blank.
func qualify(schema, table string) string {
	if strings.TrimSpace(schema) == "" {
		return mssqlIdent(table)
	}
	return mssqlIdent(strings.TrimSpace(schema)) + "." + mssqlIdent(table)
}
