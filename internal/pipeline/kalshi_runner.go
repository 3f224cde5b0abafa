package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pmuniverse/internal/artifact"
	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/platform/kalshi"
)

// DefaultKalshiLimit caps a Kalshi pull when no limit is configured.
const DefaultKalshiLimit = 10000

// KalshiSource lists open markets on the secondary exchange.
type KalshiSource interface {
	GetAllMarkets(ctx context.Context, status string, pageLimit, max int, keep kalshi.MarketFilter) ([]kalshi.KalshiMarket, error)
}

// KalshiOptions configures one Kalshi pull.
type KalshiOptions struct {
	Date       string // YYYY-MM-DD; empty means today (UTC)
	OutDir     string
	PageLimit  int
	Limit      int
	SportsOnly bool
}

// KalshiRunner snapshots open markets from the secondary exchange into a
// single CSV.
type KalshiRunner struct {
	source KalshiSource
	now    func() time.Time
	logger *slog.Logger
}

// NewKalshiRunner creates a KalshiRunner.
func NewKalshiRunner(source KalshiSource, logger *slog.Logger) *KalshiRunner {
	return &KalshiRunner{
		source: source,
		now:    time.Now,
		logger: logger.With(slog.String("component", "kalshi_runner")),
	}
}

// Run fetches open markets and writes them to kalshi/markets_{date}.csv
// under OutDir, returning the path written. An empty pull still writes the
// header row.
func (r *KalshiRunner) Run(ctx context.Context, opts KalshiOptions) (string, error) {
	now := r.now().UTC()
	if opts.Date == "" {
		opts.Date = now.Format(time.DateOnly)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultKalshiLimit
	}
	var keep kalshi.MarketFilter
	if opts.SportsOnly {
		keep = kalshi.IsSportsMarket
	}

	path := artifact.NewLayout(opts.OutDir, opts.Date).KalshiCSV()
	r.logger.InfoContext(ctx, "kalshi fetch starting",
		slog.String("output", path),
		slog.Bool("sports_only", opts.SportsOnly),
		slog.Int("limit", limit),
	)

	markets, err := r.source.GetAllMarkets(ctx, "open", opts.PageLimit, limit, keep)
	if err != nil {
		return "", fmt.Errorf("pipeline: kalshi markets: %w", err)
	}
	if len(markets) == 0 {
		r.logger.WarnContext(ctx, "no kalshi markets found")
	}

	pulledAt := now.Truncate(time.Second)
	rows := make([]domain.ExchangeMarket, 0, len(markets))
	for i := range markets {
		rows = append(rows, markets[i].ToExchangeMarket(pulledAt))
	}
	if err := artifact.WriteExchangeCSV(path, rows); err != nil {
		return "", fmt.Errorf("pipeline: %w", err)
	}

	r.logger.InfoContext(ctx, "kalshi fetch complete",
		slog.Int("rows", len(rows)),
		slog.String("output", path),
	)
	return path, nil
}
