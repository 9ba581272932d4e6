// Binance Vision kline archive ingestion CLI.
// This application downloads per-month OHLCV kline archives and converts
// them into one canonical, chronologically ordered, deduplicated CSV series
// per timeframe.
//
// Usage:
//
//	klined fetch   [--config klined.json] [--timeframes 1m,1h]
//	klined convert [--config klined.json] [--mode streaming]
//	klined run     [--config klined.json]
//	klined fix     [--config klined.json] [--timeframes 1s]
//
// For detailed help on any command, use: klined <command> --help
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/quantmill/go-kline-ingest/internal/canonical"
	"github.com/quantmill/go-kline-ingest/internal/config"
	"github.com/quantmill/go-kline-ingest/internal/fetch"
	"github.com/quantmill/go-kline-ingest/internal/logger"
	"github.com/quantmill/go-kline-ingest/internal/report"
	"github.com/quantmill/go-kline-ingest/internal/series"
)

const (
	Version = "1.0.0"
	AppName = "klined"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitDataError   = 4
	ExitInterrupt   = 130
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "fetch":
		os.Exit(runCommand(ctx, args, handleFetch))
	case "convert":
		os.Exit(runCommand(ctx, args, handleConvert))
	case "run":
		os.Exit(runCommand(ctx, args, handleRun))
	case "fix":
		os.Exit(runCommand(ctx, args, handleFix))
	case "version", "--version", "-v":
		fmt.Printf("%s version %s\n", AppName, Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `%s - Binance Vision kline archive ingestion

Usage:
  %s <command> [flags]

Commands:
  fetch     Download monthly kline archives for the configured timeframes
  convert   Convert local archives into canonical CSV series
  run       Fetch then convert
  fix       Reconcile timestamps in existing output series files
  version   Print version

Common flags:
  --config PATH        JSON config file (env vars override it)
  --symbol SYMBOL      Trading symbol (default BTCUSDT)
  --timeframes LIST    Comma-separated timeframes (e.g. 1m,1h,1d)
  --source DIR         Raw archive directory
  --dest DIR           Output directory
`, AppName, AppName)
}

// runCommand parses shared flags, builds the configuration and logger, and
// dispatches to the handler. Handlers return process exit codes.
func runCommand(ctx context.Context, args []string, handler func(context.Context, *config.Config, *slog.Logger) int) int {
	fs := flag.NewFlagSet(AppName, flag.ExitOnError)
	configPath := fs.String("config", "", "JSON config file path")
	symbol := fs.String("symbol", "", "trading symbol override")
	timeframes := fs.String("timeframes", "", "comma-separated timeframe override")
	sourceDir := fs.String("source", "", "raw archive directory override")
	destDir := fs.String("dest", "", "output directory override")
	mode := fs.String("mode", "", "engine mode override: auto, bulk, streaming")
	strict := fs.Bool("strict", false, "enable strict per-row numeric validation")
	concurrency := fs.Int("concurrency", 0, "fetch worker count override")
	startYear := fs.Int("start-year", 0, "first year to fetch")
	if err := fs.Parse(args); err != nil {
		return ExitUsageError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	// Flags take priority over file and environment.
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *timeframes != "" {
		cfg.Timeframes = strings.Split(*timeframes, ",")
	}
	if *sourceDir != "" {
		cfg.SourceDir = *sourceDir
	}
	if *destDir != "" {
		cfg.DestDir = *destDir
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *strict {
		cfg.StrictRows = true
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}
	if *startYear > 0 {
		cfg.StartYear = *startYear
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to set up logging: %v\n", err)
		return ExitConfigError
	}
	slog.SetDefault(log)

	code := handler(ctx, cfg, log)
	if ctx.Err() != nil {
		log.Warn("run interrupted")
		return ExitInterrupt
	}
	return code
}

// handleFetch downloads the full month grid for every configured timeframe.
func handleFetch(ctx context.Context, cfg *config.Config, log *slog.Logger) int {
	fetchLog := logger.ForComponent(log, "fetch")
	fetcher := fetch.NewFetcher(cfg.RetryBudget, cfg.RetryDelayDuration(), cfg.RateLimit, fetchLog)

	now := time.Now().UTC()
	failed := 0
	for _, tf := range cfg.Timeframes {
		jobs := fetch.PlanJobs(cfg.Symbol, tf, cfg.StartYear, now)
		fetchLog.Info("fetching timeframe",
			"symbol", cfg.Symbol,
			"timeframe", tf,
			"archives", len(jobs),
			"workers", cfg.Concurrency)

		summary := fetch.RunPool(ctx, fetcher, jobs, cfg.Concurrency, cfg.BaseURL, cfg.SourceDir, fetchLog)
		fetchLog.Info("timeframe fetch done",
			"timeframe", tf,
			"downloaded", summary.Downloaded,
			"skipped", summary.Skipped,
			"not_found", summary.NotFound,
			"failed", summary.Failed)
		failed += summary.Failed

		if ctx.Err() != nil {
			break
		}
	}

	if failed > 0 {
		return ExitDataError
	}
	return ExitSuccess
}

// handleConvert merges local archives into one canonical series per
// timeframe. One failing unit never aborts its siblings; the exit code
// reflects whether any unit failed.
func handleConvert(ctx context.Context, cfg *config.Config, log *slog.Logger) int {
	convLog := logger.ForComponent(log, "convert")

	if _, err := os.Stat(cfg.SourceDir); err != nil {
		convLog.Error("source directory does not exist", "dir", cfg.SourceDir)
		return ExitConfigError
	}
	if err := os.MkdirAll(cfg.DestDir, 0755); err != nil {
		convLog.Error("cannot create destination directory", "dir", cfg.DestDir, "error", err)
		return ExitConfigError
	}

	rep := report.NewRunReport()
	parser := &canonical.Parser{Strict: cfg.StrictRows}

	for _, tf := range cfg.Timeframes {
		if ctx.Err() != nil {
			break
		}
		rep.Add(convertUnit(ctx, cfg, parser, tf, convLog))
	}

	if err := rep.Write(cfg.DestDir); err != nil {
		convLog.Warn("could not write run report", "error", err)
	}
	rep.LogSummary(convLog)

	if rep.Failed() > 0 {
		return ExitDataError
	}
	return ExitSuccess
}

// convertUnit runs the pipeline for one (symbol, timeframe) series.
func convertUnit(ctx context.Context, cfg *config.Config, parser *canonical.Parser, timeframe string, log *slog.Logger) report.UnitReport {
	unit := report.UnitReport{
		Symbol:    cfg.Symbol,
		Timeframe: timeframe,
		Mode:      cfg.ModeFor(timeframe),
	}
	start := time.Now()

	pattern := filepath.Join(cfg.ArchiveDir(timeframe), "*.zip")
	archives, err := filepath.Glob(pattern)
	if err != nil {
		unit.Status = report.UnitFailed
		unit.Error = fmt.Sprintf("bad archive glob: %v", err)
		return unit
	}
	if len(archives) == 0 {
		unit.Status = report.UnitSkipped
		unit.Error = fmt.Sprintf("no archives matching %s", pattern)
		return unit
	}
	// Lexicographic filename order coincides with chronological order by
	// naming convention; both modes visit archives this way.
	sort.Strings(archives)

	if unit.Mode == config.ModeStreaming && cfg.CheckOrder {
		if err := series.CheckArchiveOrder(archives); err != nil {
			unit.Status = report.UnitFailed
			unit.Error = fmt.Sprintf("streaming order precondition: %v", err)
			return unit
		}
	}

	outputPath := cfg.OutputPath(timeframe)
	writer, err := series.NewWriter(outputPath)
	if err != nil {
		unit.Status = report.UnitFailed
		unit.Error = err.Error()
		return unit
	}

	pipeline := series.NewPipeline(parser, log.With("timeframe", timeframe))
	log.Info("converting timeframe",
		"timeframe", timeframe,
		"mode", unit.Mode,
		"archives", len(archives),
		"output", outputPath)

	var stats series.Stats
	if unit.Mode == config.ModeStreaming {
		stats, err = pipeline.RunStreaming(ctx, archives, writer)
	} else {
		stats, err = pipeline.RunBulk(ctx, archives, writer)
	}
	unit.Stats = stats

	if closeErr := writer.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		unit.Status = report.UnitFailed
		unit.Error = err.Error()
		return unit
	}

	unit.Status = report.UnitOK
	unit.OutputFile = outputPath
	if info, statErr := os.Stat(outputPath); statErr == nil {
		unit.OutputBytes = info.Size()
	}
	unit.Duration = time.Since(start).Round(time.Millisecond).String()
	return unit
}

// handleRun executes fetch then convert. Archives are durable intermediate
// state, so a convert after a partially failed fetch still processes
// everything that did arrive.
func handleRun(ctx context.Context, cfg *config.Config, log *slog.Logger) int {
	fetchCode := handleFetch(ctx, cfg, log)
	if ctx.Err() != nil {
		return fetchCode
	}
	convertCode := handleConvert(ctx, cfg, log)
	if convertCode != ExitSuccess {
		return convertCode
	}
	return fetchCode
}

// handleFix reconciles timestamps in already-written output series.
func handleFix(ctx context.Context, cfg *config.Config, log *slog.Logger) int {
	fixLog := logger.ForComponent(log, "fix")
	code := ExitSuccess

	for _, tf := range cfg.Timeframes {
		if ctx.Err() != nil {
			break
		}
		path := cfg.OutputPath(tf)
		if _, err := os.Stat(path); err != nil {
			fixLog.Warn("series file not found, skipping", "path", path)
			continue
		}
		total, fixed, err := series.RepairTimestamps(path)
		if err != nil {
			fixLog.Error("repair failed", "path", path, "error", err)
			code = ExitDataError
			continue
		}
		fixLog.Info("series repaired", "path", path, "lines", total, "fixed", fixed)
	}
	return code
}
