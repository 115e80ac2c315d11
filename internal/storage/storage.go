package storage

import (
	"context"
	"fmt"
	"sync"
)

// Row is one raw source row keyed by source column name.
type Row = map[string]any

// Page is one bounded batch of rows in native source order.
type Page []Row

// Config is the minimal configuration needed to open a store.
//
// Edge cases:
//   - Kind must match a registered backend kind for the role being opened.
//   - DSN is passed through to the backend; validation is backend-specific.
//   - Schema qualifies table names for backends that support schemas
//     (postgres, mssql). Empty means unqualified.
type Config struct {
	Kind   string
	DSN    string
	Schema string
}

// PageReader is a lazy, finite, non-restartable sequence of pages over one
// source table. Only the current page is held in memory.
type PageReader interface {
	// Next returns the next non-empty page, or io.EOF once the table is
	// exhausted. Calling Next after io.EOF keeps returning io.EOF.
	Next(ctx context.Context) (Page, error)

	// Close releases the underlying cursor. Safe to call more than once.
	Close() error
}

// Source is a read-only handle on the store being copied from.
type Source interface {
	// Pages opens a cursor over every row of table.
	Pages(ctx context.Context, table string, pageSize int) (PageReader, error)

	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int64, error)

	Close()
}

// Tx is one destination transaction. Exactly one of Commit or Rollback must
// end it; Rollback after Commit is a no-op.
type Tx interface {
	// Truncate removes every row of table.
	Truncate(ctx context.Context, table string) error

	// InsertRows bulk-inserts rows aligned with columns. When conflictColumns
	// is non-empty, rows whose key already exists are skipped rather than
	// overwritten. The returned count excludes skipped rows.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Destination is a writable, transactional handle on the store being
// loaded.
//
// IMPORTANT: the loader holds a single connection and runs one transaction
// at a time. Backends are not required to support concurrent Begin calls.
type Destination interface {
	Begin(ctx context.Context) (Tx, error)

	// Count returns the number of rows in table.
	Count(ctx context.Context, table string) (int64, error)

	Close()
}

// ConnectivityError reports a store that could not be reached. It is fatal
// for the whole run.
type ConnectivityError struct {
	Role string // "source" | "destination"
	Kind string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("storage: connect %s (kind=%s): %v", e.Role, e.Kind, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ---- factories ----

type (
	SourceFactory      func(ctx context.Context, cfg Config) (Source, error)
	DestinationFactory func(ctx context.Context, cfg Config) (Destination, error)
)

var (
	mu           sync.RWMutex
	sources      = map[string]SourceFactory{}
	destinations = map[string]DestinationFactory{}
)

// RegisterSource registers a source backend under kind.
//
// Call it from an init() function in a backend package.
//
// Panics if kind is empty, f is nil, or kind is already registered, to fail
// fast on ambiguous backend selection.
func RegisterSource(kind string, f SourceFactory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: RegisterSource called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterSource called with nil factory")
	}
	if _, exists := sources[kind]; exists {
		panic(fmt.Sprintf("storage: source factory already registered for kind=%q", kind))
	}
	sources[kind] = f
}

// RegisterDestination registers a destination backend under kind.
// Same rules as RegisterSource.
func RegisterDestination(kind string, f DestinationFactory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: RegisterDestination called with empty kind")
	}
	if f == nil {
		panic("storage: RegisterDestination called with nil factory")
	}
	if _, exists := destinations[kind]; exists {
		panic(fmt.Sprintf("storage: destination factory already registered for kind=%q", kind))
	}
	destinations[kind] = f
}

// OpenSource connects to the source store described by cfg.
//
// Errors:
//   - Unknown or empty kinds return a plain error.
//   - Any error from the backend factory is wrapped in *ConnectivityError.
func OpenSource(ctx context.Context, cfg Config) (Source, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing source kind")
	}

	mu.RLock()
	f := sources[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported source kind=%s", cfg.Kind)
	}
	s, err := f(ctx, cfg)
	if err != nil {
		return nil, &ConnectivityError{Role: "source", Kind: cfg.Kind, Err: err}
	}
	return s, nil
}

// OpenDestination connects to the destination store described by cfg.
// Errors follow OpenSource.
func OpenDestination(ctx context.Context, cfg Config) (Destination, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing destination kind")
	}

	mu.RLock()
	f := destinations[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported destination kind=%s", cfg.Kind)
	}
	d, err := f(ctx, cfg)
	if err != nil {
		return nil, &ConnectivityError{Role: "destination", Kind: cfg.Kind, Err: err}
	}
	return d, nil
}
