package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pmuniverse/internal/artifact"
	"github.com/alanyoungcy/pmuniverse/internal/config"
	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/pipeline"
	"github.com/alanyoungcy/pmuniverse/internal/platform/polymarket"
)

// FetchMode runs one catalog and pricing snapshot and hands it to the
// configured publishers.
func (a *App) FetchMode(ctx context.Context, deps *Dependencies) error {
	opts := []pipeline.RunnerOption{
		pipeline.WithPublishers(deps.Publishers...),
		pipeline.WithPublishTimeout(a.cfg.Run.PublishTimeout.Duration),
	}
	if deps.LockManager != nil {
		opts = append(opts, pipeline.WithRunLock(deps.LockManager, a.cfg.Redis.LockTTL.Duration))
	}
	runner := pipeline.NewRunner(deps.Gamma, deps.Clob, a.logger, opts...)

	m, err := runner.Run(ctx, RunOptions(a.cfg))
	if err != nil {
		return fmt.Errorf("fetch mode: %w", err)
	}
	a.logger.InfoContext(ctx, "snapshot ready",
		slog.String("run_id", m.RunID),
		slog.String("status", string(m.Status)),
		slog.String("manifest", m.Files[domain.FileManifest]),
	)
	return nil
}

// RunOptions maps configuration onto a snapshot run.
func RunOptions(cfg *config.Config) pipeline.RunOptions {
	return pipeline.RunOptions{
		Date:               cfg.Run.Date,
		OutDir:             cfg.Run.OutDir,
		TagID:              cfg.Run.TagID,
		SeriesID:           cfg.Run.SeriesID,
		Category:           cfg.Run.Category,
		ResolveCategoryTag: cfg.Run.ResolveCategoryTag,
		SportsOnly:         cfg.Run.SportsOnly,
		SportsSeriesIDs:    cfg.Run.SportsSeriesIDs,
		MaxMarkets:         cfg.Run.MaxMarkets,
		ActiveOnly:         cfg.Run.ActiveOnly,
		DryRun:             cfg.Run.DryRun,
		Page: polymarket.PageOptions{
			PageSize: cfg.Catalog.PageSize,
			MaxPages: cfg.Catalog.MaxPages,
		},
		Price: polymarket.PriceOptions{
			Concurrency: cfg.Pricing.Concurrency,
			BatchSize:   cfg.Pricing.BatchSize,
		},
	}
}

// KalshiMode snapshots open markets from Kalshi into a CSV.
func (a *App) KalshiMode(ctx context.Context, deps *Dependencies) error {
	runner := pipeline.NewKalshiRunner(deps.Kalshi, a.logger)
	path, err := runner.Run(ctx, pipeline.KalshiOptions{
		Date:       a.cfg.Run.Date,
		OutDir:     a.cfg.Run.OutDir,
		PageLimit:  a.cfg.Kalshi.PageSize,
		Limit:      a.cfg.Kalshi.Limit,
		SportsOnly: a.cfg.Kalshi.SportsOnly,
	})
	if err != nil {
		return fmt.Errorf("kalshi mode: %w", err)
	}
	a.logger.InfoContext(ctx, "kalshi snapshot ready", slog.String("path", path))
	return nil
}

// FilterMode copies the rows of a markets CSV whose category matches into a
// new file. Without an explicit input it reads the markets CSV of the run
// date (today when unset) under run.out_dir.
func (a *App) FilterMode(ctx context.Context) error {
	in := FilterInput(a.cfg, time.Now())
	n, err := artifact.FilterMarketsByCategory(in, a.cfg.Filter.Output, a.cfg.Filter.Category)
	if err != nil {
		return fmt.Errorf("filter mode: %w", err)
	}
	a.logger.InfoContext(ctx, "filtered markets",
		slog.String("input", in),
		slog.String("output", a.cfg.Filter.Output),
		slog.String("category", a.cfg.Filter.Category),
		slog.Int("rows", n),
	)
	return nil
}

// FilterInput resolves the filter source path.
func FilterInput(cfg *config.Config, now time.Time) string {
	if cfg.Filter.Input != "" {
		return cfg.Filter.Input
	}
	date := cfg.Run.Date
	if date == "" {
		date = now.UTC().Format(time.DateOnly)
	}
	return artifact.NewLayout(cfg.Run.OutDir, date).MarketsCSV()
}
