// Package prompush implements a metrics backend that pushes to a Prometheus
// Pushgateway.
//
// Observations go into a private registry; Flush pushes the whole registry
// under job=<JobName>, replacing what the gateway held for that job.
package prompush

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"moviesetl/internal/metrics"
)

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	tables   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	records  *prometheus.CounterVec
	pages    *prometheus.CounterVec
}

// NewBackend returns a backend pushing to gatewayURL (e.g.
// "http://localhost:9091") as job.
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if strings.TrimSpace(job) == "" {
		return nil, fmt.Errorf("prompush: empty job name")
	}
	if strings.TrimSpace(gatewayURL) == "" {
		return nil, fmt.Errorf("prompush: empty pushgateway url")
	}

	b := &Backend{
		reg: prometheus.NewRegistry(),
		tables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TableTotal,
			Help: "Tables transferred, by outcome.",
		}, []string{"table", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.TableDurationSeconds,
			Help:    "Wall time spent transferring one table.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"table", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records read, written, or skipped as duplicates.",
		}, []string{"table", "outcome"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.PagesTotal,
			Help: "Pages committed to the destination.",
		}, []string{"table"}),
	}
	b.reg.MustRegister(b.tables, b.duration, b.records, b.pages)
	b.pusher = push.New(gatewayURL, job).Gatherer(b.reg)
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.TableTotal:
		b.tables.WithLabelValues(labels["table"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.records.WithLabelValues(labels["table"], labels["outcome"]).Add(delta)
	case metrics.PagesTotal:
		b.pages.WithLabelValues(labels["table"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name == metrics.TableDurationSeconds && value >= 0 {
		b.duration.WithLabelValues(labels["table"], labels["status"]).Observe(value)
	}
}

// Flush pushes the registry to the gateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)
