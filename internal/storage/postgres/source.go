package postgres

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"

	"moviesetl/internal/storage"
)

// cursorName is fixed; a Source only ever has one reader open at a time.
const cursorName = "moviesetl_pages"

// Source implements storage.Source for PostgreSQL.
type Source struct {
	conn   *pgx.Conn
	schema string
}

func NewSource(ctx context.Context, cfg storage.Config) (storage.Source, error) {
	conn, err := connect(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Source{conn: conn, schema: cfg.Schema}, nil
}

func (s *Source) Close() { _ = s.conn.Close(context.Background()) }

func (s *Source) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM "+qualify(s.schema, table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count %s: %w", table, err)
	}
	return n, nil
}

// Pages declares a server-side cursor inside a read-only transaction and
// fetches pageSize rows per Next call.
func (s *Source) Pages(ctx context.Context, table string, pageSize int) (storage.PageReader, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("postgres: page size must be positive, got %d", pageSize)
	}

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin read %s: %w", table, err)
	}
	decl := "DECLARE " + pgIdent(cursorName) + " NO SCROLL CURSOR FOR SELECT * FROM " + qualify(s.schema, table)
	if _, err := tx.Exec(ctx, decl); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("postgres: declare cursor %s: %w", table, err)
	}
	return &pageReader{
		tx:    tx,
		fetch: fmt.Sprintf("FETCH FORWARD %d FROM %s", pageSize, pgIdent(cursorName)),
	}, nil
}

type pageReader struct {
	tx    pgx.Tx
	fetch string
	done  bool
}

func (p *pageReader) Next(ctx context.Context) (storage.Page, error) {
	if p.done {
		return nil, io.EOF
	}

	page, err := p.fetchPage(ctx)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	if len(page) == 0 {
		_ = p.Close()
		return nil, io.EOF
	}
	return page, nil
}

// fetchPage runs one FETCH and closes its result set before returning, so the
// connection is free for the next statement or the final rollback.
func (p *pageReader) fetchPage(ctx context.Context) (storage.Page, error) {
	rows, err := p.tx.Query(ctx, p.fetch)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var page storage.Page
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: values: %w", err)
		}
		row := make(storage.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = vals[i]
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: fetch: %w", err)
	}
	return page, nil
}

// Close ends the read transaction, which also drops the cursor.
func (p *pageReader) Close() error {
	if p.done {
		return nil
	}
	p.done = true
	return p.tx.Rollback(context.Background())
}

var _ storage.Source = (*Source)(nil)
