package transfer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"moviesetl/internal/storage"
)

type fakeLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *fakeLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, fmt.Sprintf(format, v...))
}

func (l *fakeLogger) contains(sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

// fakeSource serves rows per table in fixed-size pages.
type fakeSource struct {
	tables   map[string][]storage.Row
	pagesErr map[string]error
	// nextErrAt makes Next fail on the given 1-based page of a table.
	nextErrAt map[string]int

	opened       []string
	closed       int
	readerClosed int
}

func (s *fakeSource) Pages(_ context.Context, table string, pageSize int) (storage.PageReader, error) {
	s.opened = append(s.opened, table)
	if err := s.pagesErr[table]; err != nil {
		return nil, err
	}
	return &fakeReader{src: s, rows: s.tables[table], size: pageSize, failAt: s.nextErrAt[table]}, nil
}

func (s *fakeSource) Count(_ context.Context, table string) (int64, error) {
	rows, ok := s.tables[table]
	if !ok {
		return 0, fmt.Errorf("no such table %s", table)
	}
	return int64(len(rows)), nil
}

func (s *fakeSource) Close() { s.closed++ }

type fakeReader struct {
	src    *fakeSource
	rows   []storage.Row
	size   int
	pos    int
	page   int
	failAt int
}

func (r *fakeReader) Next(context.Context) (storage.Page, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	r.page++
	if r.failAt == r.page {
		return nil, fmt.Errorf("read failed")
	}
	end := min(r.pos+r.size, len(r.rows))
	p := storage.Page(r.rows[r.pos:end])
	r.pos = end
	return p, nil
}

func (r *fakeReader) Close() error {
	r.src.readerClosed++
	return nil
}

// fakeDestination records every transactional operation as a string and
// keeps committed ids per table so conflicts are skipped like the real
// backends do.
type fakeDestination struct {
	mu        sync.Mutex
	ops       []string
	committed map[string]map[string]bool

	truncateErr map[string]error
	insertErr   map[string]error
	closed      int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{committed: map[string]map[string]bool{}}
}

func (d *fakeDestination) log(format string, v ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = append(d.ops, fmt.Sprintf(format, v...))
}

func (d *fakeDestination) Begin(context.Context) (storage.Tx, error) {
	d.log("begin")
	return &fakeTx{d: d, pending: map[string]map[string]bool{}, truncated: map[string]bool{}}, nil
}

func (d *fakeDestination) Count(_ context.Context, table string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.committed[table])), nil
}

func (d *fakeDestination) Close() { d.closed++ }

type fakeTx struct {
	d         *fakeDestination
	pending   map[string]map[string]bool
	truncated map[string]bool
	done      bool
}

func (t *fakeTx) Truncate(_ context.Context, table string) error {
	t.d.log("truncate %s", table)
	if err := t.d.truncateErr[table]; err != nil {
		return err
	}
	t.truncated[table] = true
	return nil
}

func (t *fakeTx) InsertRows(_ context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error) {
	t.d.log("insert %s %d", table, len(rows))
	if err := t.d.insertErr[table]; err != nil {
		return 0, err
	}
	if len(conflictColumns) != 1 || conflictColumns[0] != "id" || columns[0] != "id" {
		return 0, fmt.Errorf("unexpected conflict columns %v", conflictColumns)
	}

	t.d.mu.Lock()
	existing := t.d.committed[table]
	t.d.mu.Unlock()

	if t.pending[table] == nil {
		t.pending[table] = map[string]bool{}
	}
	var n int64
	for _, r := range rows {
		id := r[0].(string)
		if (existing[id] && !t.truncated[table]) || t.pending[table][id] {
			continue
		}
		t.pending[table][id] = true
		n++
	}
	return n, nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.d.log("commit")
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	for table := range t.truncated {
		t.d.committed[table] = map[string]bool{}
	}
	for table, ids := range t.pending {
		if t.d.committed[table] == nil {
			t.d.committed[table] = map[string]bool{}
		}
		for id := range ids {
			t.d.committed[table][id] = true
		}
	}
	t.done = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.d.log("rollback")
	return nil
}

func (d *fakeDestination) opsString() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.ops, "; ")
}
