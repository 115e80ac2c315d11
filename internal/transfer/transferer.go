package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"moviesetl/internal/metrics"
	"moviesetl/internal/records"
	"moviesetl/internal/storage"
)

// Logger is the minimal logging interface used by the transferer.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// conflictColumns makes every insert skip rows whose id already exists.
var conflictColumns = []string{"id"}

// TransferError is a failure while copying one table. Page is 1-based; 0
// means the failure happened before any page was read. Row is the 1-based
// position within the page of a row that could not be converted, 0 when the
// failure is not tied to one row.
type TransferError struct {
	Table string
	Page  int
	Row   int
	Err   error
}

func (e *TransferError) Error() string {
	switch {
	case e.Page == 0:
		return fmt.Sprintf("transfer %s: %v", e.Table, e.Err)
	case e.Row == 0:
		return fmt.Sprintf("transfer %s page %d: %v", e.Table, e.Page, e.Err)
	default:
		return fmt.Sprintf("transfer %s page %d row %d: %v", e.Table, e.Page, e.Row, e.Err)
	}
}

func (e *TransferError) Unwrap() error { return e.Err }

// Result summarizes one TransferTable call.
//
// Skipped counts rows that were read and valid but already present in the
// destination (insert skipped on id conflict).
type Result struct {
	Kind             records.Kind
	SourceTable      string
	DestinationTable string

	Pages   int
	Read    int64
	Written int64
	Skipped int64

	Duration time.Duration
	Err      error
}

// OK reports whether the table was copied without error.
func (r Result) OK() bool { return r.Err == nil }

func (r Result) status() string {
	if r.OK() {
		return "ok"
	}
	return "error"
}

// Report is the outcome of a Run, one Result per planned table, in plan
// order.
type Report struct {
	Results []Result
}

// Failed returns the results whose transfer failed.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the errors of all failed tables, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// Transferer copies tables from Source to Destination.
//
// It runs on a single goroutine with one source and one destination
// connection; tables and pages are strictly sequential.
type Transferer struct {
	Source      storage.Source
	Destination storage.Destination
	Logger      Logger

	// PageSize defaults to DefaultPageSize when <= 0.
	PageSize int
}

func (t *Transferer) logger() func(format string, v ...any) {
	if t.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return t.Logger.Printf
}

func (t *Transferer) pageSize() int {
	if t.PageSize <= 0 {
		return DefaultPageSize
	}
	return t.PageSize
}

// Run validates plan, clears every destination table (children first), then
// transfers each table in plan order.
//
// Only plan validation and missing collaborators are returned as errors.
// Table failures are isolated: they are logged, recorded in the Report, and
// the next table still runs.
func (t *Transferer) Run(ctx context.Context, plan Plan) (Report, error) {
	if t.Source == nil || t.Destination == nil {
		return Report{}, fmt.Errorf("transfer: Source and Destination are required")
	}
	if err := plan.Validate(); err != nil {
		return Report{}, err
	}
	logf := t.logger()

	clearStart := time.Now()
	if err := t.clear(ctx, plan); err != nil {
		// Not fatal: each table truncates again inside its own transaction.
		logf("stage=clear status=error err=%v", err)
	} else {
		logf("stage=clear status=ok tables=%d duration=%s", len(plan), durMS(clearStart))
	}

	rep := Report{Results: make([]Result, 0, len(plan))}
	for _, tbl := range plan {
		rep.Results = append(rep.Results, t.TransferTable(ctx, tbl))
	}
	logf("stage=run_done tables=%d failed=%d", len(rep.Results), len(rep.Failed()))
	return rep, nil
}

// clear empties destination tables in reverse plan order within one
// transaction, so backends without cascading truncation never see a parent
// emptied while its children still reference it.
func (t *Transferer) clear(ctx context.Context, plan Plan) error {
	tx, err := t.Destination.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for i := len(plan) - 1; i >= 0; i-- {
		if err := tx.Truncate(ctx, plan[i].Destination); err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return err
		}
	}
	return tx.Commit(ctx)
}

// TransferTable copies one table: truncate the destination, then stream the
// source page by page, committing after every page. It never panics and
// never returns an error; failures are carried in Result.Err as
// *TransferError.
func (t *Transferer) TransferTable(ctx context.Context, tbl Table) Result {
	start := time.Now()
	res := Result{Kind: tbl.Kind, SourceTable: tbl.Source, DestinationTable: tbl.Destination}

	if err := t.copyTable(ctx, tbl, &res); err != nil {
		res.Err = err
		var te *TransferError
		page, row := 0, 0
		if errors.As(err, &te) {
			page, row = te.Page, te.Row
		}
		t.logger()("stage=table_error table=%s page=%d row=%d err=%v", tbl.Destination, page, row, err)
	}
	res.Duration = time.Since(start)

	metrics.RecordTable(tbl.Destination, res.status(), res.Duration)
	metrics.RecordRecords(tbl.Destination, metrics.OutcomeRead, res.Read)
	metrics.RecordRecords(tbl.Destination, metrics.OutcomeWritten, res.Written)
	metrics.RecordRecords(tbl.Destination, metrics.OutcomeSkipped, res.Skipped)

	t.logger()("stage=table_done source=%s destination=%s status=%s pages=%d read=%d written=%d skipped=%d duration=%s",
		tbl.Source, tbl.Destination, res.status(), res.Pages, res.Read, res.Written, res.Skipped, durMS(start))
	return res
}

func (t *Transferer) copyTable(ctx context.Context, tbl Table, res *Result) error {
	fail := func(page int, err error) error {
		return &TransferError{Table: tbl.Destination, Page: page, Err: err}
	}
	if t.Source == nil || t.Destination == nil {
		return fail(0, fmt.Errorf("source and destination are required"))
	}
	if !tbl.Kind.Valid() {
		return fail(0, fmt.Errorf("unknown kind %v", tbl.Kind))
	}
	fields := tbl.Kind.Fields()

	tx, err := t.Destination.Begin(ctx)
	if err != nil {
		return fail(0, fmt.Errorf("begin: %w", err))
	}
	// tx always holds the open transaction, or nil between a failed Begin
	// and return.
	defer func() {
		if tx != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := tx.Truncate(ctx, tbl.Destination); err != nil {
		return fail(0, err)
	}

	reader, err := t.Source.Pages(ctx, tbl.Source, t.pageSize())
	if err != nil {
		return fail(0, err)
	}
	defer reader.Close()

	for page := 1; ; page++ {
		p, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(page, err)
		}

		rows := make([][]any, 0, len(p))
		for i, raw := range p {
			rec, err := records.New(tbl.Kind, records.AdaptKeys(raw, fields))
			if err != nil {
				return &TransferError{Table: tbl.Destination, Page: page, Row: i + 1, Err: err}
			}
			rows = append(rows, rec.Values())
		}

		n, err := tx.InsertRows(ctx, tbl.Destination, fields, rows, conflictColumns)
		if err != nil {
			return fail(page, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fail(page, fmt.Errorf("commit: %w", err))
		}

		res.Pages++
		res.Read += int64(len(rows))
		res.Written += n
		res.Skipped += int64(len(rows)) - n
		metrics.RecordPage(tbl.Destination)

		if tx, err = t.Destination.Begin(ctx); err != nil {
			return fail(page+1, fmt.Errorf("begin: %w", err))
		}
	}

	// Commits the truncation of an empty table; otherwise an empty tx.
	if err := tx.Commit(ctx); err != nil {
		return fail(res.Pages, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
