package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"moviesetl/internal/storage"
)

// newTestDB creates a file-backed database under t.TempDir() and runs ddl.
func newTestDB(t *testing.T, ddl ...string) string {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return dsn
}

func seedGenres(t *testing.T, dsn string, n int) {
	t.Helper()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := 0; i < n; i++ {
		_, err := db.Exec(
			`INSERT INTO genre (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			fmt.Sprintf("00000000-0000-0000-0000-%012d", i), fmt.Sprintf("genre-%d", i),
			"2021-06-16 20:14:09.221855+00", "2021-06-16 20:14:09.221855+00",
		)
		if err != nil {
			t.Fatalf("seed row %d: %v", i, err)
		}
	}
}

const genreSourceDDL = `CREATE TABLE genre (id TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT, created_at TEXT, updated_at TEXT)`

func readAllPages(t *testing.T, r storage.PageReader) []storage.Page {
	t.Helper()

	var pages []storage.Page
	for {
		p, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return pages
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		pages = append(pages, p)
	}
}

func TestSourcePages_FiveRowsPageFour(t *testing.T) {
	t.Parallel()

	dsn := newTestDB(t, genreSourceDDL)
	seedGenres(t, dsn, 5)

	src, err := NewSource(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	defer src.Close()

	r, err := src.Pages(context.Background(), "genre", 4)
	if err != nil {
		t.Fatalf("Pages: %v", err)
	}
	defer r.Close()

	pages := readAllPages(t, r)
	if len(pages) != 2 || len(pages[0]) != 4 || len(pages[1]) != 1 {
		sizes := make([]int, len(pages))
		for i, p := range pages {
			sizes[i] = len(p)
		}
		t.Fatalf("page sizes=%v want [4 1]", sizes)
	}

	// Columns keep their source names; renaming is the adapter's job.
	if _, ok := pages[0][0]["created_at"]; !ok {
		t.Fatalf("expected source column created_at in %v", pages[0][0])
	}

	// Exhausted readers keep returning io.EOF.
	if _, err := r.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after exhaustion, got %v", err)
	}
}

func TestSourcePages_Completeness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rows, pageSize, wantPages int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{4, 4, 1},
		{8, 4, 2},
		{9, 4, 3},
		{7, 1, 7},
		{3, 100, 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("n=%d_p=%d", tt.rows, tt.pageSize), func(t *testing.T) {
			t.Parallel()

			dsn := newTestDB(t, genreSourceDDL)
			seedGenres(t, dsn, tt.rows)

			src, err := NewSource(context.Background(), storage.Config{DSN: dsn})
			if err != nil {
				t.Fatalf("NewSource: %v", err)
			}
			defer src.Close()

			r, err := src.Pages(context.Background(), "genre", tt.pageSize)
			if err != nil {
				t.Fatalf("Pages: %v", err)
			}
			defer r.Close()

			pages := readAllPages(t, r)
			if len(pages) != tt.wantPages {
				t.Fatalf("pages=%d want %d", len(pages), tt.wantPages)
			}

			seen := map[string]int{}
			total := 0
			for _, p := range pages {
				if len(p) == 0 || len(p) > tt.pageSize {
					t.Fatalf("page size %d out of range (1..%d)", len(p), tt.pageSize)
				}
				for _, row := range p {
					seen[row["id"].(string)]++
					total++
				}
			}
			if total != tt.rows || len(seen) != tt.rows {
				t.Fatalf("total=%d distinct=%d want %d", total, len(seen), tt.rows)
			}

			n, err := src.Count(context.Background(), "genre")
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if n != int64(tt.rows) {
				t.Fatalf("Count=%d want %d", n, tt.rows)
			}
		})
	}
}

func TestSourcePages_Errors(t *testing.T) {
	t.Parallel()

	dsn := newTestDB(t, genreSourceDDL)
	src, err := NewSource(context.Background(), storage.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	defer src.Close()

	if _, err := src.Pages(context.Background(), "genre", 0); err == nil {
		t.Fatalf("expected error for zero page size")
	}
	if _, err := src.Pages(context.Background(), "missing_table", 4); err == nil {
		t.Fatalf("expected error for missing table")
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := NewSource(context.Background(), storage.Config{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL("genre", []string{"id", "name"}, [][]any{{"a", "x"}, {"b", "y"}}, []string{"id"})

	want := `INSERT INTO "genre" ("id", "name") VALUES (?,?), (?,?) ON CONFLICT ("id") DO NOTHING`
	if q != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", q, want)
	}
	if len(args) != 4 || args[0] != "a" || args[3] != "y" {
		t.Fatalf("unexpected args: %#v", args)
	}

	q, _ = buildInsertSQL("genre", []string{"id"}, [][]any{{"a"}}, nil)
	if strings.Contains(q, "ON CONFLICT") {
		t.Fatalf("no conflict clause expected without conflict columns: %s", q)
	}
}

func TestSQLIdent_EscapesQuotes(t *testing.T) {
	t.Parallel()

	if got := sqlIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("sqlIdent=%s", got)
	}
}

const genreDestDDL = `CREATE TABLE genre (id TEXT PRIMARY KEY, name TEXT NOT NULL, description TEXT, created TIMESTAMP, modified TIMESTAMP)`

func TestDestination_InsertSkipsExistingKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := newTestDB(t, genreDestDDL)

	dst, err := NewDestination(ctx, storage.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewDestination: %v", err)
	}
	defer dst.Close()

	cols := []string{"id", "name"}
	rows := [][]any{{"a", "Action"}, {"b", "Drama"}}

	insert := func(rows [][]any) int64 {
		tx, err := dst.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		n, err := tx.InsertRows(ctx, "genre", cols, rows, []string{"id"})
		if err != nil {
			_ = tx.Rollback(ctx)
			t.Fatalf("InsertRows: %v", err)
		}
		if err := tx.Commit(ctx); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return n
	}

	if n := insert(rows); n != 2 {
		t.Fatalf("first insert affected=%d want 2", n)
	}
	if n := insert(append(rows, []any{"c", "Comedy"})); n != 1 {
		t.Fatalf("second insert affected=%d want 1 (two conflicts skipped)", n)
	}

	got, err := dst.Count(ctx, "genre")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if got != 3 {
		t.Fatalf("Count=%d want 3", got)
	}
}

func TestDestination_TruncateAndRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := newTestDB(t, genreDestDDL, `INSERT INTO genre (id, name) VALUES ('a', 'Action')`)

	dst, err := NewDestination(ctx, storage.Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewDestination: %v", err)
	}
	defer dst.Close()

	// Rolled back truncation leaves the row in place.
	tx, err := dst.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Truncate(ctx, "genre"); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if n, _ := dst.Count(ctx, "genre"); n != 1 {
		t.Fatalf("after rollback Count=%d want 1", n)
	}

	tx, err = dst.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Truncate(ctx, "genre"); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// Rollback after Commit is a no-op.
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback after Commit: %v", err)
	}
	if n, _ := dst.Count(ctx, "genre"); n != 0 {
		t.Fatalf("after truncate Count=%d want 0", n)
	}
}
