// Package metrics is the loader's backend-neutral metrics facade.
//
// Core code records through the package-level helpers; cmd/load_data picks a
// backend (Datadog, Prometheus Pushgateway, or none) with SetBackend. The
// default backend discards everything.
package metrics

import (
	"sync"
	"time"
)

// Metric names. Backends switch on these and ignore anything else.
const (
	TableTotal           = "etl_table_total"
	TableDurationSeconds = "etl_table_duration_seconds"
	RecordsTotal         = "etl_records_total"
	PagesTotal           = "etl_pages_total"
)

// Record outcomes used as the "outcome" label of RecordsTotal.
const (
	OutcomeRead    = "read"
	OutcomeWritten = "written"
	OutcomeSkipped = "skipped"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend replaces the process-wide backend. A nil b restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// RecordTable records one finished table transfer. status is "ok" or "error".
func RecordTable(table, status string, d time.Duration) {
	l := Labels{"table": table, "status": status}
	IncCounter(TableTotal, 1, l)
	ObserveHistogram(TableDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts n records of table with the given outcome.
func RecordRecords(table, outcome string, n int64) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"table": table, "outcome": outcome})
}

// RecordPage counts one committed page of table.
func RecordPage(table string) {
	IncCounter(PagesTotal, 1, Labels{"table": table})
}
