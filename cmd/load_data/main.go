package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"moviesetl/internal/config"
	"moviesetl/internal/metrics"
	"moviesetl/internal/metrics/datadog"
	"moviesetl/internal/metrics/prompush"
	"moviesetl/internal/transfer"

	// register every store kind; SOURCE_KIND and DEST_KIND pick one each.
	_ "moviesetl/internal/storage/all"
)

// runner is the subset of *transfer.Runner the CLI drives.
type runner interface {
	Run(ctx context.Context, cfg transfer.RunConfig) (transfer.Report, error)
	Check(ctx context.Context, cfg transfer.RunConfig) ([]transfer.CountCheck, error)
}

// metricsOptions is what initMetrics needs from the settings.
type metricsOptions struct {
	JobName        string
	Backend        string
	PushgatewayURL string
	Tags           []string
}

// appDeps holds the side-effecting collaborators of runMain so tests can
// replace them.
type appDeps struct {
	loadSettings func(dotenvPath string) (*config.Settings, error)
	initMetrics  func(ctx context.Context, opts metricsOptions) (func(), error)
	newRunner    func(logger transfer.Logger) runner
}

func defaultDeps() appDeps {
	return appDeps{
		loadSettings: config.LoadSettings,
		initMetrics:  initMetrics,
		newRunner: func(logger transfer.Logger) runner {
			return transfer.NewDefaultRunner(logger)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain loads settings, wires metrics and runs either the transfer or the
// count check. Exit codes: 0 success, 1 run failure, 2 usage or config error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("load_data", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		envPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		check             bool
		verbose           bool
	)
	fs.StringVar(&envPath, "env", ".env", "dotenv file loaded before reading the environment")
	fs.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend: none|datadog|pushgateway (overrides METRICS_BACKEND)")
	fs.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides PUSHGATEWAY_URL)")
	fs.BoolVar(&check, "check", false, "compare source and destination row counts instead of transferring")
	fs.BoolVar(&verbose, "v", false, "log every stage, not only per-table results")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "usage: load_data [-env .env] [-check] [-v]; unexpected argument %q\n", fs.Arg(0))
		return 2
	}

	settings, err := deps.loadSettings(envPath)
	if err != nil {
		fmt.Fprintf(stderr, "load settings: %v\n", err)
		return 2
	}
	if metricsBackendFlg != "" {
		settings.MetricsBackend = metricsBackendFlg
	}
	if pushGatewayURLFlg != "" {
		settings.PushgatewayURL = pushGatewayURLFlg
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid settings: %v\n", err)
		return 2
	}

	runCfg, err := buildRunConfig(settings)
	if err != nil {
		fmt.Fprintf(stderr, "invalid settings: %v\n", err)
		return 2
	}

	cleanup, err := deps.initMetrics(ctx, metricsOptions{
		JobName:        settings.JobName,
		Backend:        settings.MetricsBackend,
		PushgatewayURL: settings.PushgatewayURL,
		Tags:           datadog.ParseTagsCSV(settings.MetricsTags),
	})
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	r := deps.newRunner(stageLogger{l: log.New(stderr, "", log.LstdFlags), verbose: verbose})

	if check {
		return runCheck(ctx, r, runCfg, stdout, stderr)
	}
	return runTransfer(ctx, r, runCfg, stdout, stderr, verbose)
}

// stageLogger always passes the per-table records (stage=table_done,
// stage=table_error) and drops the other stage lines unless verbose.
type stageLogger struct {
	l       *log.Logger
	verbose bool
}

func (s stageLogger) Printf(format string, v ...any) {
	if s.verbose || strings.HasPrefix(format, "stage=table_") {
		s.l.Printf(format, v...)
	}
}

func buildRunConfig(s *config.Settings) (transfer.RunConfig, error) {
	src, err := s.SourceConfig()
	if err != nil {
		return transfer.RunConfig{}, err
	}
	dst, err := s.DestinationConfig()
	if err != nil {
		return transfer.RunConfig{}, err
	}
	return transfer.RunConfig{Source: src, Destination: dst, PageSize: s.PageSize}, nil
}

func runTransfer(ctx context.Context, r runner, cfg transfer.RunConfig, stdout, stderr io.Writer, verbose bool) int {
	start := time.Now()
	report, err := r.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	if failed := report.Failed(); len(failed) > 0 {
		for _, res := range failed {
			fmt.Fprintf(stderr, "table %s failed: %v\n", res.DestinationTable, res.Err)
		}
		fmt.Fprintf(stderr, "run: %d of %d tables failed\n", len(failed), len(report.Results))
		return 1
	}

	if verbose {
		fmt.Fprintf(stderr, "stage=done tables=%d duration=%s\n", len(report.Results), time.Since(start).Truncate(time.Millisecond))
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runCheck(ctx context.Context, r runner, cfg transfer.RunConfig, stdout, stderr io.Writer) int {
	checks, err := r.Check(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "check: %v\n", err)
		return 1
	}

	mismatches := transfer.Mismatches(checks)
	for _, c := range mismatches {
		fmt.Fprintf(stderr, "mismatch table=%s source=%d destination=%d\n", c.Table.Destination, c.Source, c.Destination)
	}
	if len(mismatches) > 0 {
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

// metricsBackend is what cleanup needs from a constructed backend.
type metricsBackend interface {
	Close() error
}

// Test seams. Production code never reassigns them.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, gatewayURL string) (metricsBackend, error) {
		b, err := prompush.NewBackend(job, gatewayURL)
		if err != nil {
			return nil, err
		}
		return flushOnClose{b}, nil
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

// flushOnClose adapts the push backend, which has nothing to stop, to
// metricsBackend.
type flushOnClose struct {
	*prompush.Backend
}

func (f flushOnClose) Close() error { return f.Flush() }

var _ metricsBackend = flushOnClose{}

// initMetrics wires the named backend into the metrics package. The returned
// cleanup is never nil and is safe to call even when err != nil.
func initMetrics(ctx context.Context, opts metricsOptions) (func(), error) {
	noop := func() {}

	switch strings.TrimSpace(opts.Backend) {
	case "", "none":
		return noop, nil

	case "datadog":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    opts.JobName,
			Tags:       opts.Tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return noop, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	case "pushgateway":
		b, err := newPushBackend(opts.JobName, opts.PushgatewayURL)
		if err != nil {
			return noop, fmt.Errorf("pushgateway: %w", err)
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: pushgateway flush error: %v", err)
			}
		}, nil

	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog|pushgateway)", opts.Backend)
	}
}
