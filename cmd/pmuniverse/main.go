// Command pmuniverse takes daily snapshots of the Polymarket market universe
// and its prices. It loads configuration, applies command-line overrides,
// validates, sets up signal handling and runs the configured mode once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/pmuniverse/internal/app"
	"github.com/alanyoungcy/pmuniverse/internal/config"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

type cliFlags struct {
	configPath string

	mode        string
	date        string
	outDir      string
	category    string
	tagID       string
	seriesID    string
	maxMarkets  int
	concurrency int
	batchSize   int
	dryRun      bool
	active      bool
	sportsOnly  bool

	input  string
	output string

	verbose bool
}

func parseFlags() (*cliFlags, map[string]bool) {
	f := &cliFlags{}
	flag.StringVar(&f.configPath, "config", "", "path to configuration file (optional)")
	flag.StringVar(&f.mode, "mode", "", "fetch | kalshi | filter")
	flag.StringVar(&f.date, "date", "", "snapshot date YYYY-MM-DD (default today UTC)")
	flag.StringVar(&f.outDir, "outdir", "", "output directory")
	flag.StringVar(&f.category, "category", "", "category filter (fetch: substring match and tag lookup; filter: required)")
	flag.StringVar(&f.tagID, "tag-id", "", "Gamma tag id")
	flag.StringVar(&f.seriesID, "series-id", "", "Gamma series id")
	flag.IntVar(&f.maxMarkets, "max-markets", 0, "stop after this many markets")
	flag.IntVar(&f.concurrency, "concurrency", 0, "price batch workers")
	flag.IntVar(&f.batchSize, "batch-size", 0, "price request items per batch")
	flag.BoolVar(&f.dryRun, "dry-run", false, "fetch the catalog only, skip pricing")
	flag.BoolVar(&f.active, "active", false, "only active, open markets")
	flag.BoolVar(&f.sportsOnly, "sports-only", false, "only the major sports series")
	flag.StringVar(&f.input, "input", "", "filter: input markets CSV")
	flag.StringVar(&f.output, "output", "", "filter: output CSV")
	flag.BoolVar(&f.verbose, "v", false, "debug logging")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set
}

// applyFlags overwrites config values with the flags given on the command
// line. Flags left unset keep the file and environment values.
func applyFlags(cfg *config.Config, f *cliFlags, set map[string]bool) {
	if set["mode"] {
		cfg.Mode = f.mode
	}
	if set["date"] {
		cfg.Run.Date = f.date
	}
	if set["outdir"] {
		cfg.Run.OutDir = f.outDir
	}
	if set["category"] {
		cfg.Run.Category = f.category
		cfg.Filter.Category = f.category
	}
	if set["tag-id"] {
		cfg.Run.TagID = f.tagID
	}
	if set["series-id"] {
		cfg.Run.SeriesID = f.seriesID
	}
	if set["max-markets"] {
		cfg.Run.MaxMarkets = f.maxMarkets
	}
	if set["concurrency"] {
		cfg.Pricing.Concurrency = f.concurrency
	}
	if set["batch-size"] {
		cfg.Pricing.BatchSize = f.batchSize
	}
	if set["dry-run"] {
		cfg.Run.DryRun = f.dryRun
	}
	if set["active"] {
		cfg.Run.ActiveOnly = f.active
	}
	if set["sports-only"] {
		cfg.Run.SportsOnly = f.sportsOnly
		cfg.Kalshi.SportsOnly = f.sportsOnly
	}
	if set["input"] {
		cfg.Filter.Input = f.input
	}
	if set["output"] {
		cfg.Filter.Output = f.output
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
}

func main() {
	flags, set := parseFlags()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", flags.configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	applyFlags(cfg, flags, set)

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redacted := config.RedactedConfig(cfg)
	logger.Debug("configuration", slog.Any("config", redacted))
	logger.Info("pmuniverse starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", flags.configPath),
	)

	application := app.New(cfg, logger)

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	runErr := application.Run(ctx)
	stop()
	application.Close()

	switch {
	case runErr == nil:
		logger.Info("pmuniverse finished")
	case errors.Is(runErr, context.Canceled):
		logger.Warn("run interrupted", slog.String("error", runErr.Error()))
		os.Exit(exitInterrupted)
	default:
		logger.Error("run failed", slog.String("error", runErr.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", runErr)
		os.Exit(1)
	}
}
