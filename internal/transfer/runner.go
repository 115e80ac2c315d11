package transfer

import (
	"context"
	"fmt"

	"moviesetl/internal/storage"
)

// RunConfig is everything a Runner needs for one invocation. It is built
// explicitly by the caller; nothing is read from the environment here.
type RunConfig struct {
	Source      storage.Config
	Destination storage.Config
	PageSize    int

	// Plan defaults to DefaultPlan() when empty.
	Plan Plan
}

func (c RunConfig) plan() Plan {
	if len(c.Plan) == 0 {
		return DefaultPlan()
	}
	return c.Plan
}

// Runner opens the two stores and drives a Transferer over them.
type Runner struct {
	// storage-agnostic factory seams
	OpenSource      func(ctx context.Context, cfg storage.Config) (storage.Source, error)
	OpenDestination func(ctx context.Context, cfg storage.Config) (storage.Destination, error)

	Logger Logger
}

// NewDefaultRunner returns a Runner backed by the storage registry. Callers
// must blank-import the backends they need (see internal/storage/all).
func NewDefaultRunner(logger Logger) *Runner {
	return &Runner{
		OpenSource:      storage.OpenSource,
		OpenDestination: storage.OpenDestination,
		Logger:          logger,
	}
}

// open connects both stores. A failure closes whatever was opened and is
// returned as-is; the registry already reports *storage.ConnectivityError.
func (r *Runner) open(ctx context.Context, cfg RunConfig) (storage.Source, storage.Destination, error) {
	if r.OpenSource == nil || r.OpenDestination == nil {
		return nil, nil, fmt.Errorf("runner: OpenSource and OpenDestination are required")
	}

	src, err := r.OpenSource(ctx, cfg.Source)
	if err != nil {
		return nil, nil, err
	}
	dst, err := r.OpenDestination(ctx, cfg.Destination)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	return src, dst, nil
}

// Run transfers cfg's plan. The error is non-nil only when the stores cannot
// be opened or the plan is invalid; per-table failures are in the Report.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (Report, error) {
	plan := cfg.plan()
	if err := plan.Validate(); err != nil {
		return Report{}, err
	}

	src, dst, err := r.open(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	defer src.Close()
	defer dst.Close()

	t := &Transferer{Source: src, Destination: dst, Logger: r.Logger, PageSize: cfg.PageSize}
	return t.Run(ctx, plan)
}

// Check opens both stores and compares per-table row counts.
func (r *Runner) Check(ctx context.Context, cfg RunConfig) ([]CountCheck, error) {
	plan := cfg.plan()
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	src, dst, err := r.open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	defer dst.Close()

	return CheckCounts(ctx, src, dst, plan)
}
