// Command kpi_pipeline runs one extract-transform-load cycle: fetch the four
// vendor feeds, build the five KPI tables, and replace them in the configured
// database. It is designed to run on a schedule (cron or a CI job) and to be
// safe to re-run: every table write is a full replace.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"portsignal/internal/config"
	"portsignal/internal/export"
	"portsignal/internal/fetch"
	"portsignal/internal/kpi"
	"portsignal/internal/metrics"
	"portsignal/internal/metrics/datadog"
	"portsignal/internal/signal"
	"portsignal/internal/sink"
	"portsignal/internal/storage"

	_ "portsignal/internal/storage/mssql"
	_ "portsignal/internal/storage/postgres"
	_ "portsignal/internal/storage/sqlite"
)

// stepRecord is emitted as JSONL to stdout for each pipeline step.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream log consumers.
type stepRecord struct {
	Timestamp  string `json:"ts"`
	Step       string `json:"step"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Rows       int    `json:"rows,omitempty"`
	Table      string `json:"table,omitempty"`
	Error      string `json:"error,omitempty"`
}

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// fetcher is the slice of fetch.Client this command uses; tests inject fakes.
type fetcher interface {
	FetchJSON(ctx context.Context, endpoint string, payload map[string]any) (any, error)
	BootstrapSession(ctx context.Context, b fetch.Bootstrap) error
}

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject fake fetcher/repository factories and capture output.
//   - Alternate runtimes: swap the metrics backend or destinations.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	LoadConfig     func(envFile string) (config.Settings, error)
	NewFetcher     func(opts fetch.Options) fetcher
	NewRepository  func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	WriteXLSX      func(path string, tables []kpi.Table) error
	Now            func() time.Time
}

// runConfig holds the parsed flags for a run.
type runConfig struct {
	EnvFile    string
	DryRun     bool
	XLSXPath   string
	DDTagsCSV  string
	FlushEvery time.Duration
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		LoadConfig: config.Load,
		NewFetcher: func(opts fetch.Options) fetcher {
			return fetch.New(opts)
		},
		NewRepository: storage.New,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		WriteXLSX: export.WriteXLSX,
		Now:       time.Now,
	})
	os.Exit(code)
}

// run executes one pipeline cycle and returns an exit code.
//
// Exit codes:
//   - 0: every table fetched, built, and written.
//   - 1: the run degraded (a feed, builder, or table write failed) but the
//     health summary still landed where possible.
//   - 2: configuration/initialization error; nothing was written.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LoadConfig == nil || d.NewFetcher == nil || d.NewRepository == nil {
		fmt.Fprintln(d.Stderr, "internal error: missing dependency")
		return 2
	}

	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	cfg, err := d.LoadConfig(flags.EnvFile)
	if err != nil {
		fmt.Fprintf(d.Stderr, "config: %v\n", err)
		return 2
	}
	if flags.XLSXPath != "" {
		cfg.XLSXPath = flags.XLSXPath
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.DatadogEnabled && d.BackendFactory != nil {
		tags := append(datadog.ParseTagsCSV(cfg.DatadogTags), datadog.ParseTagsCSV(flags.DDTagsCSV)...)
		backend, err := d.BackendFactory(ctx, "kpi_pipeline", tags, flags.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(backend)
		defer func() {
			_ = metrics.Flush()
			_ = backend.Close()
		}()
	}

	enc := json.NewEncoder(d.Stdout)
	log := func(rec stepRecord) {
		rec.Timestamp = d.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		_ = enc.Encode(rec)
	}

	p := pipeline{cfg: cfg, deps: d, log: log}
	return p.execute(ctx, flags)
}

type pipeline struct {
	cfg  config.Settings
	deps deps
	log  func(stepRecord)
}

// step runs fn, records metrics and a log line, and returns fn's error.
func (p *pipeline) step(name string, fn func() error) error {
	start := p.deps.Now()
	err := fn()
	d := p.deps.Now().Sub(start)
	metrics.RecordStep(name, err, d)

	rec := stepRecord{Step: name, Status: "ok", DurationMs: d.Milliseconds()}
	if err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
	}
	p.log(rec)
	return err
}

func (p *pipeline) execute(ctx context.Context, flags runConfig) int {
	cfg := p.cfg

	client := p.deps.NewFetcher(fetch.Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		MaxAttempts: cfg.MaxAttempts,
		Headers:     cfg.Headers,
		Cookies:     cfg.Cookies,
	})

	if cfg.BootstrapURL != "" {
		err := p.step("bootstrap_session", func() error {
			return client.BootstrapSession(ctx, fetch.Bootstrap{
				URL:           cfg.BootstrapURL,
				TokenSelector: cfg.BootstrapTokenSelector,
				TokenHeader:   cfg.BootstrapTokenHeader,
			})
		})
		if err != nil {
			fmt.Fprintf(p.deps.Stderr, "bootstrap: %v\n", err)
			return 1
		}
	}

	// Extract + decode. A feed that cannot be fetched or parsed fails the run:
	// without trustworthy inputs there is nothing sensible to load.
	var (
		volumes  []signal.WeeklyVolume
		terminal []signal.TerminalContainer
		outgated []signal.OutgateContainer
		berth    []signal.BerthVessel
	)

	extracts := []struct {
		name     string
		endpoint config.Endpoint
		parse    func(any) error
	}{
		{"fetch_weekly_volumes", cfg.WeeklyVolumes, func(v any) error {
			var err error
			volumes, err = signal.ParseWeeklyVolumes(v)
			return err
		}},
		{"fetch_containers_at_terminal", cfg.ContainersAtTerminal, func(v any) error {
			var err error
			terminal, err = signal.ParseTerminalContainers(v)
			return err
		}},
		{"fetch_outgated_metrics", cfg.OutgatedMetrics, func(v any) error {
			var err error
			outgated, err = signal.ParseOutgateContainers(v)
			return err
		}},
		{"fetch_berth", cfg.Berth, func(v any) error {
			var err error
			berth, err = signal.ParseBerthVessels(v)
			return err
		}},
	}

	for _, ex := range extracts {
		err := p.step(ex.name, func() error {
			payload, err := client.FetchJSON(ctx, ex.endpoint.URL, ex.endpoint.Payload)
			if err != nil {
				return err
			}
			return ex.parse(payload)
		})
		if err != nil {
			fmt.Fprintf(p.deps.Stderr, "%s: %v\n", ex.name, err)
			return 1
		}
	}

	meta := kpi.RunMeta{
		ExtractionTS: p.deps.Now().UTC(),
		FromDate:     cfg.FromDate,
		ToDate:       cfg.ToDate,
	}

	// Transform. A builder failure (empty bucket, not enough history) drops
	// that one table and degrades the run; the other tables and the health
	// summary still go out.
	degraded := false

	var volumeRows []kpi.VolumePressureRow
	if err := p.step("build_volume_pressure", func() error {
		var err error
		volumeRows, err = kpi.BuildVolumePressure(volumes, cfg.Thresholds)
		return err
	}); err != nil {
		fmt.Fprintf(p.deps.Stderr, "volume pressure: %v\n", err)
		degraded = true
	}

	var congestionRows []kpi.CongestionRow
	if err := p.step("build_terminal_congestion", func() error {
		var err error
		congestionRows, err = kpi.BuildTerminalCongestion(terminal, cfg.Thresholds)
		return err
	}); err != nil {
		fmt.Fprintf(p.deps.Stderr, "terminal congestion: %v\n", err)
		degraded = true
	}

	var outgateRows []kpi.OutgateRow
	if err := p.step("build_outgate_stress", func() error {
		var err error
		outgateRows, err = kpi.BuildOutgateStress(outgated, cfg.Thresholds)
		return err
	}); err != nil {
		fmt.Fprintf(p.deps.Stderr, "outgate stress: %v\n", err)
		degraded = true
	}

	var berthRows []kpi.BerthRow
	if err := p.step("build_berth_snapshot", func() error {
		var err error
		berthRows, err = kpi.BuildBerthSnapshot(berth, cfg.Thresholds)
		return err
	}); err != nil {
		fmt.Fprintf(p.deps.Stderr, "berth snapshot: %v\n", err)
		degraded = true
	}

	health := kpi.BuildHealthSummary(volumeRows, congestionRows, outgateRows, berthRows)

	tables := make([]kpi.Table, 0, 5)
	if volumeRows != nil {
		tables = append(tables, kpi.VolumePressureTable(volumeRows, meta))
	}
	if congestionRows != nil {
		tables = append(tables, kpi.CongestionTable(congestionRows, meta))
	}
	if outgateRows != nil {
		tables = append(tables, kpi.OutgateTable(outgateRows, meta))
	}
	if berthRows != nil {
		tables = append(tables, kpi.BerthTable(berthRows, meta))
	}
	tables = append(tables, kpi.HealthTable(health, meta))

	for _, t := range tables {
		p.log(stepRecord{Step: "table_built", Status: "ok", Table: t.Name, Rows: len(t.Rows)})
	}

	// Load.
	if flags.DryRun {
		p.log(stepRecord{Step: "write_tables", Status: "skipped"})
	} else {
		err := p.step("write_tables", func() error {
			repo, err := p.deps.NewRepository(ctx, storage.Config{
				Kind: cfg.StorageKind,
				DSN:  cfg.DatabaseURL,
			})
			if err != nil {
				return err
			}
			defer repo.Close()

			w := &sink.Writer{Repo: repo, Schema: cfg.DBSchema}
			return w.WriteTables(ctx, tables)
		})
		if err != nil {
			fmt.Fprintf(p.deps.Stderr, "write: %v\n", err)
			degraded = true
		}
	}

	if cfg.XLSXPath != "" && p.deps.WriteXLSX != nil {
		if err := p.step("export_xlsx", func() error {
			return p.deps.WriteXLSX(cfg.XLSXPath, tables)
		}); err != nil {
			fmt.Fprintf(p.deps.Stderr, "xlsx: %v\n", err)
			degraded = true
		}
	}

	_ = metrics.Flush()

	if degraded {
		return 1
	}
	return 0
}

// parseFlags parses command arguments into a validated runConfig.
//
// Errors:
//   - Returns an error for invalid flags.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("kpi_pipeline", flag.ContinueOnError)

	// Capture help/usage text instead of writing to stdout.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.EnvFile, "env", "", "Path to an env file to load before reading configuration")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Fetch and build tables but do not write to the database")
	fs.StringVar(&cfg.XLSXPath, "xlsx", "", "Also export the built tables to this .xlsx file (overrides XLSX_OUT)")
	fs.StringVar(&cfg.DDTagsCSV, "dd_tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:kpi)")
	fs.DurationVar(&cfg.FlushEvery, "metrics_flush", 1*time.Minute, "Datadog flush interval")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	return cfg, nil
}
