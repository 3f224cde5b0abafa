package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pmuniverse/internal/artifact"
	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/platform/polymarket"
	"github.com/alanyoungcy/pmuniverse/internal/platform/rest"
	"github.com/alanyoungcy/pmuniverse/internal/ratelimit"
)

const testDate = "2026-03-01"

type fakeCatalog struct {
	mu      sync.Mutex
	events  map[string][]polymarket.APIEvent // keyed by series id; "" for everything else
	err     error
	tag     polymarket.APITag
	tagErr  error
	queries []polymarket.EventQuery
	pages   []polymarket.PageOptions
}

func (f *fakeCatalog) FetchAllEvents(_ context.Context, q polymarket.EventQuery, opts polymarket.PageOptions) ([]polymarket.APIEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.pages = append(f.pages, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.events[q.SeriesID], nil
}

func (f *fakeCatalog) ResolveTagID(_ context.Context, name string) (polymarket.APITag, error) {
	if f.tagErr != nil {
		return polymarket.APITag{}, f.tagErr
	}
	return f.tag, nil
}

// fakePrices quotes every token at 0.40/0.60. It reports a single batch
// numbered 1 unless batches is set.
type fakePrices struct {
	calls   int
	tokens  []domain.TokenOutcome
	opts    polymarket.PriceOptions
	hook    func()
	batches int
}

func (f *fakePrices) FetchAllPrices(_ context.Context, tokens []domain.TokenOutcome, opts polymarket.PriceOptions, ts time.Time) polymarket.PriceRun {
	f.calls++
	f.tokens = tokens
	f.opts = opts
	if f.hook != nil {
		f.hook()
	}
	run := polymarket.PriceRun{
		Batches: []domain.RawBatch{{BatchNum: 1, Status: 200, Tokens: len(tokens), Data: json.RawMessage(`{}`)}},
	}
	if f.batches > 0 {
		run.Batches = make([]domain.RawBatch, f.batches)
		for i := range run.Batches {
			run.Batches[i] = domain.RawBatch{BatchNum: i, Status: 200, Data: json.RawMessage(`{}`)}
		}
	}
	for _, t := range tokens {
		run.Results = append(run.Results, domain.PriceResult{
			SnapshotTS: ts,
			Source:     domain.SourceClob,
			MarketID:   t.MarketID,
			TokenID:    t.TokenID,
			Outcome:    t.Outcome,
			Bid:        "0.40",
			Ask:        "0.60",
			Mid:        "0.5",
			Status:     domain.PriceStatusOK,
		})
	}
	run.Stats = domain.PriceStats{OK: len(tokens), Batches: len(run.Batches)}
	return run
}

type recordingPublisher struct {
	name  string
	err   error
	snaps []domain.Snapshot
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(ctx context.Context, snap domain.Snapshot) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.snaps = append(p.snaps, snap)
	return p.err
}

type fakeLocks struct {
	err      error
	acquired []string
	released int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

func fixedClock() time.Time { return time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC) }

func sampleEvents(t *testing.T) []polymarket.APIEvent {
	return decodeEvents(t, `[{
		"id": "e1", "category": "Sports",
		"markets": [
			{"id": "m1", "slug": "lakers", "question": "Lakers win?", "active": true,
			 "outcomes": ["Yes","No"], "clobTokenIds": ["t1","t2"]},
			{"id": "m2", "outcomes": ["Yes","No"], "clobTokenIds": ["t3"]},
			{"id": "m3"}
		]
	}]`)
}

func newTestRunner(cat CatalogSource, prices PriceSource, opts ...RunnerOption) *Runner {
	opts = append([]RunnerOption{WithClock(fixedClock)}, opts...)
	return NewRunner(cat, prices, slog.Default(), opts...)
}

func TestRunWritesArtifactsAndManifest(t *testing.T) {
	dir := t.TempDir()
	cat := &fakeCatalog{events: map[string][]polymarket.APIEvent{"": sampleEvents(t)}}
	prices := &fakePrices{}
	pub := &recordingPublisher{name: "rec"}

	r := newTestRunner(cat, prices, WithPublishers(pub))
	m, err := r.Run(context.Background(), RunOptions{
		Date:   testDate,
		OutDir: dir,
		Price:  polymarket.PriceOptions{Concurrency: 3, BatchSize: 10},
	})
	require.NoError(t, err)

	l := artifact.NewLayout(dir, testDate)
	assert.Equal(t, domain.RunStatusCompleted, m.Status)
	assert.NotEmpty(t, m.RunID)
	assert.Equal(t, testDate, m.Date)
	assert.Equal(t, 3, m.MarketsTotal)
	assert.Equal(t, 1, m.MarketsWithTokens)
	assert.Equal(t, 1, m.MarketsSkippedNoTokens)
	assert.Equal(t, 1, m.MarketsSkippedMismatchedArrays)
	assert.Equal(t, 2, m.TokensTotal)
	assert.Equal(t, 2, m.TokensPricedOK)
	assert.Equal(t, 1, m.PriceBatches)
	assert.Equal(t, map[string]string{
		domain.FileRawCatalog: l.RawCatalog(),
		domain.FileMarketsCSV: l.MarketsCSV(),
		domain.FilePriceBatch: l.BatchDir(),
		domain.FilePricesCSV:  l.PricesCSV(),
		domain.FileLatestCSV:  l.LatestCSV(),
		domain.FileManifest:   l.Manifest(),
	}, m.Files)

	for _, p := range m.Files {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	assert.FileExists(t, l.BatchFile(1))

	dated, err := os.ReadFile(l.PricesCSV())
	require.NoError(t, err)
	latest, err := os.ReadFile(l.LatestCSV())
	require.NoError(t, err)
	assert.Equal(t, dated, latest)

	onDisk, err := artifact.ReadManifest(l.Manifest())
	require.NoError(t, err)
	assert.Equal(t, m.RunID, onDisk.RunID)
	assert.Equal(t, domain.RunStatusCompleted, onDisk.Status)
	assert.Equal(t, 2, onDisk.TokensTotal)

	assert.Equal(t, 1, prices.calls)
	assert.Equal(t, polymarket.PriceOptions{Concurrency: 3, BatchSize: 10}, prices.opts)

	require.Len(t, pub.snaps, 1)
	assert.Equal(t, m.RunID, pub.snaps[0].Manifest.RunID)
	assert.Len(t, pub.snaps[0].Markets, 3)
	assert.Len(t, pub.snaps[0].Prices, 2)
	assert.Equal(t, dir, pub.snaps[0].OutDir)
}

func TestRunPriceSnapshotTimeMatchesPullTime(t *testing.T) {
	dir := t.TempDir()
	cat := &fakeCatalog{events: map[string][]polymarket.APIEvent{"": sampleEvents(t)}}
	pub := &recordingPublisher{name: "rec"}

	_, err := newTestRunner(cat, &fakePrices{}, WithPublishers(pub)).Run(context.Background(), RunOptions{Date: testDate, OutDir: dir})
	require.NoError(t, err)

	snap := pub.snaps[0]
	require.NotEmpty(t, snap.Prices)
	assert.Equal(t, snap.Markets[0].PulledAt, snap.Prices[0].SnapshotTS)
}

func TestRunDryRunSkipsPricing(t *testing.T) {
	dir := t.TempDir()
	cat := &fakeCatalog{events: map[string][]polymarket.APIEvent{"": sampleEvents(t)}}
	prices := &fakePrices{}

	m, err := newTestRunner(cat, prices).Run(context.Background(), RunOptions{Date: testDate, OutDir: dir, DryRun: true})
	require.NoError(t, err)

	l := artifact.NewLayout(dir, testDate)
	assert.Equal(t, domain.RunStatusDryRun, m.Status)
	assert.Zero(t, prices.calls)
	assert.Equal(t, 2, m.TokensTotal)
	assert.FileExists(t, l.Manifest())
	assert.FileExists(t, l.MarketsCSV())
	assert.NoFileExists(t, l.PricesCSV())
	assert.NotContains(t, m.Files, domain.FilePricesCSV)
}

func TestRunCatalogFailureStillWritesManifest(t *testing.T) {
	dir := t.TempDir()
	cat := &fakeCatalog{err: fmt.Errorf("boom: %w", domain.ErrRetriesExhausted)}
	prices := &fakePrices{}
	pub := &recordingPublisher{name: "rec"}

	m, err := newTestRunner(cat, prices, WithPublishers(pub)).Run(context.Background(), RunOptions{Date: testDate, OutDir: dir})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetriesExhausted)

	assert.Equal(t, domain.RunStatusFailed, m.Status)
	assert.Contains(t, m.Error, "boom")
	assert.Zero(t, prices.calls)
	assert.Equal(t, map[string]string{domain.FileManifest: m.Files[domain.FileManifest]}, m.Files)

	onDisk, err := artifact.ReadManifest(artifact.NewLayout(dir, testDate).Manifest())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, onDisk.Status)
	assert.Len(t, pub.snaps, 1)
}

func TestRunWithNoTokensSkipsPricing(t *testing.T) {
	dir := t.TempDir()
	cat := &fakeCatalog{events: map[string][]polymarket.APIEvent{"": decodeEvents(t, `[{"id": "e", "markets": [{"id": "m"}]}]`)}}
	prices := &fakePrices{}

	m, err := newTestRunner(cat, prices).Run(context.Background(), RunOptions{Date: testDate, OutDir: dir})
	require.NoError(t, err)

	assert.Equal(t, domain.RunStatusCompleted, m.Status)
	assert.Zero(t, prices.calls)
	assert.Equal(t, 1, m.MarketsTotal)
	assert.NoFileExists(t, artifact.NewLayout(dir, testDate).LatestCSV())
}

func TestRunZeroMatchesIsCompleted(t *testing.T) {
	dir := t.TempDir()
	cat := &fakeCatalog{}

	m, err := newTestRunner(cat, &fakePrices{}).Run(context.Background(), RunOptions{Date: testDate, OutDir: dir, Category: "nothing"})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, m.Status)
	assert.Zero(t, m.MarketsTotal)
}

func TestRunActiveOnlyAndMaxMarkets(t *testing.T) {
	cat := &fakeCatalog{}
	_, err := newTestRunner(cat, &fakePrices{}).Run(context.Background(), RunOptions{
		Date:       testDate,
		OutDir:     t.TempDir(),
		TagID:      "100",
		ActiveOnly: true,
		MaxMarkets: 25,
		Page:       polymarket.PageOptions{PageSize: 50},
	})
	require.NoError(t, err)

	require.Len(t, cat.queries, 1)
	q := cat.queries[0]
	assert.Equal(t, "100", q.TagID)
	require.NotNil(t, q.Active)
	require.NotNil(t, q.Closed)
	assert.True(t, *q.Active)
	assert.False(t, *q.Closed)
	assert.Equal(t, polymarket.PageOptions{PageSize: 50, MaxItems: 25}, cat.pages[0])
}

func TestRunSportsModeFetchesEachSeries(t *testing.T) {
	cat := &fakeCatalog{events: map[string][]polymarket.APIEvent{
		"10345": decodeEvents(t, `[{"id": "nba", "markets": [{"id": "a", "outcomes": ["Yes"], "clobTokenIds": ["ta"]}]}]`),
		"3":     decodeEvents(t, `[{"id": "mlb", "markets": [{"id": "b", "outcomes": ["Yes"], "clobTokenIds": ["tb"]}]}]`),
	}}
	prices := &fakePrices{}

	m, err := newTestRunner(cat, prices).Run(context.Background(), RunOptions{
		Date:            testDate,
		OutDir:          t.TempDir(),
		TagID:           "ignored",
		SportsOnly:      true,
		SportsSeriesIDs: []string{"10345", "3"},
	})
	require.NoError(t, err)

	require.Len(t, cat.queries, 2)
	assert.Equal(t, polymarket.EventQuery{SeriesID: "10345"}, cat.queries[0])
	assert.Equal(t, polymarket.EventQuery{SeriesID: "3"}, cat.queries[1])
	assert.Equal(t, 2, m.MarketsTotal)
	require.Len(t, prices.tokens, 2)
	assert.Equal(t, "ta", prices.tokens[0].TokenID)
	assert.Equal(t, "tb", prices.tokens[1].TokenID)
}

func TestRunResolvesCategoryToTag(t *testing.T) {
	cat := &fakeCatalog{tag: decodeTag(t, `{"id": 42, "label": "NBA", "slug": "nba"}`)}
	_, err := newTestRunner(cat, &fakePrices{}).Run(context.Background(), RunOptions{
		Date:               testDate,
		OutDir:             t.TempDir(),
		Category:           "nba",
		ResolveCategoryTag: true,
	})
	require.NoError(t, err)
	require.Len(t, cat.queries, 1)
	assert.Equal(t, "42", cat.queries[0].TagID)
}

func TestRunTagResolutionFailureIsOnlyAWarning(t *testing.T) {
	cat := &fakeCatalog{tagErr: domain.ErrNotFound}
	m, err := newTestRunner(cat, &fakePrices{}).Run(context.Background(), RunOptions{
		Date:               testDate,
		OutDir:             t.TempDir(),
		Category:           "unknown",
		ResolveCategoryTag: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, m.Status)
	require.Len(t, cat.queries, 1)
	assert.Empty(t, cat.queries[0].TagID)
}

func TestRunInterruptedDuringPricing(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := &fakeCatalog{events: map[string][]polymarket.APIEvent{"": sampleEvents(t)}}
	prices := &fakePrices{hook: cancel}
	pub := &recordingPublisher{name: "rec"}

	m, err := newTestRunner(cat, prices, WithPublishers(pub)).Run(ctx, RunOptions{Date: testDate, OutDir: dir})
	require.ErrorIs(t, err, context.Canceled)

	l := artifact.NewLayout(dir, testDate)
	assert.Equal(t, domain.RunStatusInterrupted, m.Status)
	assert.FileExists(t, l.PricesCSV())
	assert.NoFileExists(t, l.LatestCSV())
	assert.FileExists(t, l.Manifest())
	assert.Len(t, pub.snaps, 1, "publishers run with a detached context")
}

func TestRunPublisherFailureIsNotFatal(t *testing.T) {
	cat := &fakeCatalog{events: map[string][]polymarket.APIEvent{"": sampleEvents(t)}}
	bad := &recordingPublisher{name: "bad", err: errors.New("unreachable")}
	good := &recordingPublisher{name: "good"}

	m, err := newTestRunner(cat, &fakePrices{}, WithPublishers(bad, good)).Run(context.Background(), RunOptions{Date: testDate, OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, m.Status)
	assert.Len(t, good.snaps, 1)
}

func TestRunTakesDateLock(t *testing.T) {
	locks := &fakeLocks{}
	_, err := newTestRunner(&fakeCatalog{}, &fakePrices{}, WithRunLock(locks, time.Minute)).Run(context.Background(), RunOptions{Date: testDate, OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, []string{"run:" + testDate}, locks.acquired)
	assert.Equal(t, 1, locks.released)
}

func TestRunLockHeldAbortsWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	locks := &fakeLocks{err: domain.ErrLockHeld}
	cat := &fakeCatalog{}

	_, err := newTestRunner(cat, &fakePrices{}, WithRunLock(locks, 0)).Run(context.Background(), RunOptions{Date: testDate, OutDir: dir})
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, cat.queries)
	assert.NoFileExists(t, artifact.NewLayout(dir, testDate).Manifest())
}

func TestRunSameDateReplacesBatchFiles(t *testing.T) {
	dir := t.TempDir()
	cat := &fakeCatalog{events: map[string][]polymarket.APIEvent{"": sampleEvents(t)}}
	opts := RunOptions{Date: testDate, OutDir: dir}

	_, err := newTestRunner(cat, &fakePrices{batches: 3}).Run(context.Background(), opts)
	require.NoError(t, err)

	m, err := newTestRunner(cat, &fakePrices{batches: 1}).Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, m.PriceBatches)

	entries, err := os.ReadDir(m.Files[domain.FilePriceBatch])
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"batch_0000.json"}, names)
}

func TestRunDefaultsDateToToday(t *testing.T) {
	m, err := newTestRunner(&fakeCatalog{}, &fakePrices{}).Run(context.Background(), RunOptions{OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", m.Date)
}

func readCSVRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func decodeTag(t *testing.T, js string) polymarket.APITag {
	t.Helper()
	var tag polymarket.APITag
	require.NoError(t, json.Unmarshal([]byte(js), &tag))
	return tag
}

// TestRunEndToEnd drives the real Gamma and CLOB clients against fake
// servers.
func TestRunEndToEnd(t *testing.T) {
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") != "0" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		_, _ = io.WriteString(w, `[{"id": "e1", "category": "Sports", "markets": [
			{"id": "m1", "slug": "s1", "question": "Q1", "active": true,
			 "outcomes": "[\"Yes\",\"No\"]", "clobTokenIds": "[\"t1\",\"t2\"]"},
			{"id": "m2", "slug": "s2", "question": "Q2",
			 "outcomes": ["Yes","No"], "clobTokenIds": ["t3","t4"]}
		]}]`)
	}))
	defer gamma.Close()

	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var items []polymarket.PriceRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&items)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, it := range items {
			if it.TokenID == "t3" || it.TokenID == "t4" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		resp := map[string]map[string]any{
			"t1": {"BUY": "0.62", "SELL": "0.58"},
			"t2": {"SELL": 0.4},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer clob.Close()

	policy := rest.WithPolicy(rest.Policy{MaxAttempts: 2, Backoff: time.Millisecond, DefaultRetryAfter: time.Millisecond})
	gc := polymarket.NewGammaClient(rest.New("gamma", gamma.URL, ratelimit.New(0), policy), slog.Default())
	cc := polymarket.NewClobClient(rest.New("clob", clob.URL, ratelimit.New(0), policy), slog.Default())

	dir := t.TempDir()
	m, err := NewRunner(gc, cc, slog.Default()).Run(context.Background(), RunOptions{
		Date:   testDate,
		OutDir: dir,
		Page:   polymarket.PageOptions{PageSize: 10},
		Price:  polymarket.PriceOptions{Concurrency: 2, BatchSize: 4},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, m.TokensTotal)
	assert.Equal(t, 2, m.TokensPricedOK)
	assert.Zero(t, m.TokensMissingPrice)
	assert.Equal(t, 2, m.APIErrors)
	assert.Equal(t, 2, m.PriceBatches)

	rows := readCSVRows(t, artifact.NewLayout(dir, testDate).PricesCSV())
	require.Len(t, rows, 5)
	assert.Equal(t, artifact.PricesHeader, rows[0])

	byToken := map[string][]string{}
	for _, row := range rows[1:] {
		byToken[row[5]] = row
	}
	assert.Equal(t, []string{"0.58", "0.62", "0.6", "ok"}, []string{byToken["t1"][7], byToken["t1"][8], byToken["t1"][9], byToken["t1"][11]})
	assert.Equal(t, []string{"0.4", "", "", "ok"}, []string{byToken["t2"][7], byToken["t2"][8], byToken["t2"][9], byToken["t2"][11]})
	assert.Equal(t, "api_error", byToken["t3"][11])
	assert.Equal(t, "api_error", byToken["t4"][11])

	for i, want := range []string{"t1", "t2", "t3", "t4"} {
		assert.Equal(t, want, rows[i+1][5], "row "+strconv.Itoa(i+1))
	}
}

// TestRunPagedCatalogEndToEnd enumerates a two-page catalog where one market
// has no tokens and the price service omits one token.
func TestRunPagedCatalogEndToEnd(t *testing.T) {
	var gammaCalls atomic.Int32
	gamma := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gammaCalls.Add(1)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		switch r.URL.Query().Get("offset") {
		case "0":
			_, _ = io.WriteString(w, `[
				{"id": "A", "markets": [{"id": "A1", "outcomes": ["Yes","No"], "clobTokenIds": ["t1","t2"]}]},
				{"id": "Z", "markets": [{"id": "A2", "outcomes": [], "clobTokenIds": []}]}
			]`)
		case "2":
			_, _ = io.WriteString(w, `[
				{"id": "B", "markets": [{"id": "B1", "outcomes": ["Yes","No"], "clobTokenIds": ["t3","t4"]}]}
			]`)
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
			_, _ = io.WriteString(w, `[]`)
		}
	}))
	defer gamma.Close()

	clob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{
			"t1": {"BUY": "0.55", "SELL": "0.45"},
			"t2": {"BUY": "0.50", "SELL": "0.40"},
			"t3": {"BUY": "0.30", "SELL": "0.20"}
		}`)
	}))
	defer clob.Close()

	policy := rest.WithPolicy(rest.Policy{MaxAttempts: 1, Backoff: time.Millisecond, DefaultRetryAfter: time.Millisecond})
	gc := polymarket.NewGammaClient(rest.New("gamma", gamma.URL, ratelimit.New(0), policy), slog.Default())
	cc := polymarket.NewClobClient(rest.New("clob", clob.URL, ratelimit.New(0), policy), slog.Default())

	dir := t.TempDir()
	m, err := NewRunner(gc, cc, slog.Default()).Run(context.Background(), RunOptions{
		Date:   testDate,
		OutDir: dir,
		Page:   polymarket.PageOptions{PageSize: 2},
		Price:  polymarket.PriceOptions{Concurrency: 2, BatchSize: 500},
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), gammaCalls.Load(), "short second page ends enumeration")
	assert.Equal(t, domain.RunStatusCompleted, m.Status)
	assert.Equal(t, 3, m.MarketsTotal)
	assert.Equal(t, 2, m.MarketsWithTokens)
	assert.Equal(t, 1, m.MarketsSkippedNoTokens)
	assert.Equal(t, 4, m.TokensTotal)
	assert.Equal(t, 3, m.TokensPricedOK)
	assert.Equal(t, 1, m.TokensMissingPrice)
	assert.Zero(t, m.APIErrors)

	rows := readCSVRows(t, artifact.NewLayout(dir, testDate).PricesCSV())
	require.Len(t, rows, 5)
	assert.Equal(t, "t4", rows[4][5])
	assert.Equal(t, "missing_price", rows[4][11])
	assert.Equal(t, "0.25", rows[3][9])
}
