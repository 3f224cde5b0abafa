// Package pipeline runs snapshot jobs: catalog enumeration, extraction,
// pricing and artifact bookkeeping.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pmuniverse/internal/artifact"
	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/platform/polymarket"
)

const (
	defaultLockTTL        = 2 * time.Hour
	defaultPublishTimeout = 2 * time.Minute
)

// CatalogSource enumerates the event catalog.
type CatalogSource interface {
	FetchAllEvents(ctx context.Context, q polymarket.EventQuery, opts polymarket.PageOptions) ([]polymarket.APIEvent, error)
	ResolveTagID(ctx context.Context, name string) (polymarket.APITag, error)
}

// PriceSource prices a set of outcome tokens.
type PriceSource interface {
	FetchAllPrices(ctx context.Context, tokens []domain.TokenOutcome, opts polymarket.PriceOptions, snapshotTS time.Time) polymarket.PriceRun
}

// RunOptions configures one snapshot run.
type RunOptions struct {
	Date   string // YYYY-MM-DD; empty means today (UTC)
	OutDir string

	TagID    string
	SeriesID string
	// Category filters markets client-side. When no tag or series is set
	// and ResolveCategoryTag is on, it is also resolved to a tag id for
	// server-side filtering.
	Category           string
	ResolveCategoryTag bool

	// SportsOnly fetches each of SportsSeriesIDs in turn and concatenates
	// the results. It overrides TagID, SeriesID and tag resolution.
	SportsOnly      bool
	SportsSeriesIDs []string

	MaxMarkets int
	ActiveOnly bool
	DryRun     bool

	Page  polymarket.PageOptions
	Price polymarket.PriceOptions
}

// Runner drives one snapshot run through its stages:
//
//	fetch catalog -> extract -> [dry run: stop] -> fetch prices -> write artifacts
//
// The manifest is built as stages complete and written however the run
// ends. Publishers then receive the finished snapshot.
type Runner struct {
	catalog        CatalogSource
	prices         PriceSource
	publishers     []domain.Publisher
	locks          domain.LockManager
	lockTTL        time.Duration
	publishTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithPublishers registers publishers notified after every run.
func WithPublishers(pubs ...domain.Publisher) RunnerOption {
	return func(r *Runner) { r.publishers = append(r.publishers, pubs...) }
}

// WithRunLock makes runs for the same date mutually exclusive.
func WithRunLock(lm domain.LockManager, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.locks = lm
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// WithPublishTimeout bounds the time spent in publishers.
func WithPublishTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.publishTimeout = d
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a Runner.
func NewRunner(catalog CatalogSource, prices PriceSource, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		catalog:        catalog,
		prices:         prices,
		lockTTL:        defaultLockTTL,
		publishTimeout: defaultPublishTimeout,
		now:            time.Now,
		logger:         logger.With(slog.String("component", "runner")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes one snapshot run. The returned manifest is the one written
// to disk. A non-nil error means the run failed or was interrupted; the
// manifest still records how far it got.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (domain.RunManifest, error) {
	start := r.now().UTC()
	if opts.Date == "" {
		opts.Date = start.Format(time.DateOnly)
	}
	m := domain.RunManifest{
		RunID:   uuid.NewString(),
		Status:  domain.RunStatusRunning,
		StartTS: start,
		Date:    opts.Date,
		Files:   make(map[string]string),
	}
	log := r.logger.With(slog.String("run_id", m.RunID), slog.String("date", opts.Date))

	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, "run:"+opts.Date, r.lockTTL)
		if err != nil {
			return m, fmt.Errorf("pipeline: run lock %s: %w", opts.Date, err)
		}
		defer unlock()
	}

	layout := artifact.NewLayout(opts.OutDir, opts.Date)
	if err := layout.EnsureDirs(); err != nil {
		return m, fmt.Errorf("pipeline: %w", err)
	}

	log.InfoContext(ctx, "run starting",
		slog.String("out_dir", opts.OutDir),
		slog.Bool("dry_run", opts.DryRun),
		slog.Bool("active_only", opts.ActiveOnly),
		slog.Bool("sports_only", opts.SportsOnly),
	)

	snap := domain.Snapshot{OutDir: opts.OutDir}
	runErr := r.run(ctx, opts, layout, &m, &snap, log)

	m.Finish(endStatus(runErr, opts.DryRun), runErr, r.now())
	m.Files[domain.FileManifest] = layout.Manifest()
	if err := artifact.WriteJSON(layout.Manifest(), m); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("pipeline: write manifest: %w", err))
	}

	attrs := []any{
		slog.String("status", string(m.Status)),
		slog.Float64("duration_seconds", m.DurationSeconds),
		slog.Int("markets_total", m.MarketsTotal),
		slog.Int("tokens_total", m.TokensTotal),
		slog.Int("tokens_priced_ok", m.TokensPricedOK),
		slog.Int("tokens_missing_price", m.TokensMissingPrice),
		slog.Int("api_errors", m.APIErrors),
	}
	if runErr != nil {
		log.ErrorContext(ctx, "run ended", append(attrs, slog.String("error", runErr.Error()))...)
	} else {
		log.InfoContext(ctx, "run ended", attrs...)
	}

	snap.Manifest = m
	r.publish(ctx, snap, log)
	return m, runErr
}

func (r *Runner) run(ctx context.Context, opts RunOptions, l artifact.Layout, m *domain.RunManifest, snap *domain.Snapshot, log *slog.Logger) error {
	// Stage 1: catalog.
	events, err := r.fetchCatalog(ctx, opts, log)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "fetched catalog", slog.Int("events", len(events)))

	if err := artifact.WriteJSON(l.RawCatalog(), events); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	m.Files[domain.FileRawCatalog] = l.RawCatalog()

	if err := ctx.Err(); err != nil {
		return err
	}

	// Stage 2: extraction. The pull time doubles as the price snapshot time.
	pulledAt := r.now().UTC().Truncate(time.Second)
	ex := ExtractMarkets(events, pulledAt, ExtractOptions{
		Category:   opts.Category,
		MaxMarkets: opts.MaxMarkets,
	}, log)
	m.MarketsTotal = ex.Stats.MarketsTotal
	m.MarketsWithTokens = ex.Stats.MarketsWithTokens
	m.MarketsSkippedNoTokens = ex.Stats.SkippedNoTokens
	m.MarketsSkippedMismatchedArrays = ex.Stats.SkippedMismatched
	m.MarketsNotClobTradable = ex.Stats.NotClobTradable
	m.TokensTotal = len(ex.Tokens)
	snap.Markets = ex.Markets

	if err := artifact.WriteMarketsCSV(l.MarketsCSV(), ex.Markets); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	m.Files[domain.FileMarketsCSV] = l.MarketsCSV()
	log.InfoContext(ctx, "wrote markets",
		slog.Int("markets", len(ex.Markets)),
		slog.Int("tokens", len(ex.Tokens)),
		slog.Int("duplicate_markets", ex.Stats.DuplicateMarkets),
		slog.Int("duplicate_tokens", ex.Stats.DuplicateTokens),
	)

	if opts.DryRun {
		log.InfoContext(ctx, "dry run, skipping prices",
			slog.Int("tokens", len(ex.Tokens)),
			slog.Int("markets_with_tokens", ex.Stats.MarketsWithTokens),
		)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ex.Tokens) == 0 {
		log.WarnContext(ctx, "no tokens to price")
		return nil
	}

	// Stage 3: prices.
	pr := r.prices.FetchAllPrices(ctx, ex.Tokens, opts.Price, pulledAt)
	m.ApplyStats(pr.Stats)
	snap.Prices = pr.Results

	// Stage 4: artifacts. Interrupted runs still keep what they priced, but
	// only a finished run moves the latest pointer.
	if err := l.ResetBatchDir(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if _, err := artifact.WriteBatches(l, pr.Batches); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if len(pr.Batches) > 0 {
		m.Files[domain.FilePriceBatch] = l.BatchDir()
	}
	if err := artifact.WritePricesCSV(l.PricesCSV(), pr.Results); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	m.Files[domain.FilePricesCSV] = l.PricesCSV()
	log.InfoContext(ctx, "wrote prices", slog.Int("rows", len(pr.Results)))

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := artifact.CopyFile(l.PricesCSV(), l.LatestCSV()); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	m.Files[domain.FileLatestCSV] = l.LatestCSV()
	return nil
}

// fetchCatalog pulls every event the options select. In sports mode each
// series is fetched separately and the results are concatenated.
func (r *Runner) fetchCatalog(ctx context.Context, opts RunOptions, log *slog.Logger) ([]polymarket.APIEvent, error) {
	q := polymarket.EventQuery{TagID: opts.TagID, SeriesID: opts.SeriesID}
	if opts.ActiveOnly {
		q.Active = domain.Bool(true)
		q.Closed = domain.Bool(false)
	}
	page := opts.Page
	page.MaxItems = opts.MaxMarkets

	if opts.SportsOnly {
		var all []polymarket.APIEvent
		for _, id := range opts.SportsSeriesIDs {
			sq := q
			sq.TagID, sq.SeriesID = "", id
			events, err := r.catalog.FetchAllEvents(ctx, sq, page)
			if err != nil {
				return nil, fmt.Errorf("pipeline: fetch series %s: %w", id, err)
			}
			log.InfoContext(ctx, "fetched series", slog.String("series_id", id), slog.Int("events", len(events)))
			all = append(all, events...)
		}
		return all, nil
	}

	if q.TagID == "" && q.SeriesID == "" && opts.Category != "" && opts.ResolveCategoryTag {
		tag, err := r.catalog.ResolveTagID(ctx, opts.Category)
		if err != nil {
			log.WarnContext(ctx, "category not resolved to a tag, filtering client-side only",
				slog.String("category", opts.Category),
				slog.String("error", err.Error()),
			)
		} else {
			q.TagID = string(tag.ID)
			log.InfoContext(ctx, "resolved category to tag",
				slog.String("category", opts.Category),
				slog.String("tag_id", q.TagID),
				slog.String("label", tag.Name()),
			)
		}
	}

	events, err := r.catalog.FetchAllEvents(ctx, q, page)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch catalog: %w", err)
	}
	return events, nil
}

// publish hands the snapshot to every publisher. Publishers run after
// shutdown has been requested too, so they get a context detached from
// cancellation and bounded by the publish timeout.
func (r *Runner) publish(ctx context.Context, snap domain.Snapshot, log *slog.Logger) {
	if len(r.publishers) == 0 {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.publishTimeout)
	defer cancel()

	for _, p := range r.publishers {
		if err := p.Publish(pctx, snap); err != nil {
			log.WarnContext(pctx, "publish failed",
				slog.String("publisher", p.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		log.DebugContext(pctx, "published", slog.String("publisher", p.Name()))
	}
}

func endStatus(err error, dryRun bool) domain.RunStatus {
	switch {
	case err == nil && dryRun:
		return domain.RunStatusDryRun
	case err == nil:
		return domain.RunStatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.RunStatusInterrupted
	default:
		return domain.RunStatusFailed
	}
}
