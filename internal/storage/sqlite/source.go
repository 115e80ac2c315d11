package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"moviesetl/internal/storage"
)

// Source implements storage.Source over a SQLite database file.
type Source struct {
	db *sql.DB
}

func NewSource(ctx context.Context, cfg storage.Config) (storage.Source, error) {
	db, err := open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Source{db: db}, nil
}

func (s *Source) Close() { _ = s.db.Close() }

func (s *Source) Count(ctx context.Context, table string) (int64, error) {
	return count(ctx, s.db, table)
}

// Pages streams SELECT * FROM table through a single open result set and
// assembles one page per Next call. Rows come back in SQLite's native order.
func (s *Source) Pages(ctx context.Context, table string, pageSize int) (storage.PageReader, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("sqlite: page size must be positive, got %d", pageSize)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+sqlIdent(table))
	if err != nil {
		return nil, fmt.Errorf("sqlite: select %s: %w", table, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("sqlite: columns %s: %w", table, err)
	}
	return &pageReader{rows: rows, cols: cols, pageSize: pageSize}, nil
}

type pageReader struct {
	rows     *sql.Rows
	cols     []string
	pageSize int
	done     bool
}

func (p *pageReader) Next(ctx context.Context) (storage.Page, error) {
	if p.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := make(storage.Page, 0, p.pageSize)
	for len(page) < p.pageSize && p.rows.Next() {
		// IMPORTANT: Scan destinations must be pointers; scan into &vals[i].
		vals := make([]any, len(p.cols))
		dests := make([]any, len(p.cols))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := p.rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}

		row := make(storage.Row, len(p.cols))
		for i, c := range p.cols {
			row[c] = vals[i]
		}
		page = append(page, row)
	}

	if len(page) < p.pageSize {
		if err := p.rows.Err(); err != nil {
			return nil, fmt.Errorf("sqlite: read: %w", err)
		}
		_ = p.Close()
		if len(page) == 0 {
			return nil, io.EOF
		}
	}
	return page, nil
}

func (p *pageReader) Close() error {
	p.done = true
	return p.rows.Close()
}

var _ storage.Source = (*Source)(nil)
