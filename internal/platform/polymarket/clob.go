package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/platform/rest"
)

// Pricing defaults.
const (
	DefaultBatchSize   = 500
	DefaultConcurrency = 5
)

var half = decimal.RequireFromString("0.5")

// PriceOptions bounds the pricing fan-out. Zero values fall back to the
// defaults.
type PriceOptions struct {
	Concurrency int
	BatchSize   int // request items per POST, two items per token
}

func (o PriceOptions) withDefaults() PriceOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// PriceRun is everything a pricing pass produced.
type PriceRun struct {
	Results []domain.PriceResult // one per input token, in input order
	Batches []domain.RawBatch    // ordered by batch number
	Stats   domain.PriceStats
}

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) pricing endpoint.
type ClobClient struct {
	rest   *rest.Client
	logger *slog.Logger
}

// NewClobClient wraps a rest client pointed at the CLOB API root, e.g.
// "https://clob.polymarket.com". Every batch worker forks the client, so
// workers hold separate connections but share its rate limiter.
func NewClobClient(rc *rest.Client, logger *slog.Logger) *ClobClient {
	return &ClobClient{
		rest:   rc,
		logger: logger.With(slog.String("component", "clob")),
	}
}

// BuildPriceRequests expands tokens into token-major request items: BUY then
// SELL for each token.
func BuildPriceRequests(tokens []domain.TokenOutcome) []PriceRequest {
	items := make([]PriceRequest, 0, len(tokens)*2)
	for _, t := range tokens {
		items = append(items,
			PriceRequest{TokenID: t.TokenID, Side: domain.SideBuy},
			PriceRequest{TokenID: t.TokenID, Side: domain.SideSell},
		)
	}
	return items
}

// chunk splits items into consecutive slices of at most size elements.
func chunk(items []PriceRequest, size int) [][]PriceRequest {
	var out [][]PriceRequest
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

// GetPrices posts one batch and returns the parsed prices and raw body.
func (c *ClobClient) GetPrices(ctx context.Context, items []PriceRequest) (map[string]map[string]string, []byte, error) {
	return c.getPrices(ctx, c.rest, items)
}

func (c *ClobClient) getPrices(ctx context.Context, rc *rest.Client, items []PriceRequest) (map[string]map[string]string, []byte, error) {
	body, err := rc.PostJSON(ctx, "/prices", items)
	if err != nil {
		return nil, nil, fmt.Errorf("polymarket/clob: post prices: %w", err)
	}
	prices, err := parsePrices(body)
	if err != nil {
		return nil, body, fmt.Errorf("polymarket/clob: decode prices: %w", err)
	}
	return prices, body, nil
}

type batchOutcome struct {
	num    int
	items  []PriceRequest
	prices map[string]map[string]string
	body   []byte
	err    error
}

// FetchAllPrices prices every token. Request items are chunked into batches
// and fetched by at most Concurrency workers. A batch that fails after
// retries marks every token it referenced as api_error; it never fails the
// call. Successful batches are merged on the calling goroutine as they
// complete.
//
// Once ctx is cancelled no further batches are dispatched (their tokens
// become api_error); batches already in flight run to completion.
func (c *ClobClient) FetchAllPrices(ctx context.Context, tokens []domain.TokenOutcome, opts PriceOptions, snapshotTS time.Time) PriceRun {
	opts = opts.withDefaults()
	batches := chunk(BuildPriceRequests(tokens), opts.BatchSize)

	c.logger.InfoContext(ctx, "pricing tokens",
		slog.Int("tokens", len(tokens)),
		slog.Int("batches", len(batches)),
		slog.Int("concurrency", opts.Concurrency),
	)

	outcomes := make(chan batchOutcome)
	flightCtx := context.WithoutCancel(ctx)

	go func() {
		var g errgroup.Group
		g.SetLimit(opts.Concurrency)
		for i, items := range batches {
			if err := ctx.Err(); err != nil {
				outcomes <- batchOutcome{num: i, items: items, err: fmt.Errorf("not dispatched: %w", err)}
				continue
			}
			worker := c.rest.Fork()
			g.Go(func() error {
				defer worker.CloseIdle()
				prices, body, err := c.getPrices(flightCtx, worker, items)
				outcomes <- batchOutcome{num: i, items: items, prices: prices, body: body, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)
	}()

	quotes := make(map[string]map[string]string, len(tokens))
	failed := make(map[string]bool)
	raw := make([]domain.RawBatch, len(batches))

	for out := range outcomes {
		raw[out.num] = rawBatch(out)
		if out.err != nil {
			c.logger.ErrorContext(ctx, "price batch failed",
				slog.Int("batch", out.num),
				slog.Int("items", len(out.items)),
				slog.String("error", out.err.Error()),
			)
			for _, it := range out.items {
				failed[it.TokenID] = true
			}
			continue
		}
		for tokenID, sides := range out.prices {
			if quotes[tokenID] == nil {
				quotes[tokenID] = make(map[string]string, 2)
			}
			for side, price := range sides {
				quotes[tokenID][side] = price
			}
		}
	}

	run := PriceRun{
		Results: make([]domain.PriceResult, 0, len(tokens)),
		Batches: raw,
		Stats:   domain.PriceStats{Batches: len(batches)},
	}
	ts := snapshotTS.UTC()
	for _, t := range tokens {
		res := finalize(t, quotes[t.TokenID], failed[t.TokenID])
		res.SnapshotTS = ts
		switch res.Status {
		case domain.PriceStatusOK:
			run.Stats.OK++
		case domain.PriceStatusMissing:
			run.Stats.Missing++
		case domain.PriceStatusAPIError:
			run.Stats.APIErrors++
		}
		run.Results = append(run.Results, res)
	}

	c.logger.InfoContext(ctx, "pricing complete",
		slog.Int("ok", run.Stats.OK),
		slog.Int("missing_price", run.Stats.Missing),
		slog.Int("api_errors", run.Stats.APIErrors),
	)
	return run
}

// finalize builds the single price row for a token. Bid is the SELL quote
// and ask the BUY quote. A failed token carries no prices at all.
func finalize(t domain.TokenOutcome, sides map[string]string, failed bool) domain.PriceResult {
	res := domain.PriceResult{
		Source:       domain.SourceClob,
		MarketID:     t.MarketID,
		Slug:         t.Slug,
		Question:     t.Question,
		TokenID:      t.TokenID,
		Outcome:      t.Outcome,
		Active:       t.Active,
		VolumeNum:    t.VolumeNum,
		LiquidityNum: t.LiquidityNum,
	}
	if failed {
		res.Status = domain.PriceStatusAPIError
		return res
	}

	res.Bid = sides[domain.SideSell]
	res.Ask = sides[domain.SideBuy]
	res.Mid = midpoint(res.Bid, res.Ask)
	if res.Bid == "" && res.Ask == "" {
		res.Status = domain.PriceStatusMissing
	} else {
		res.Status = domain.PriceStatusOK
	}
	return res
}

// midpoint is the exact decimal mean of bid and ask, or "" unless both
// parse.
func midpoint(bid, ask string) string {
	if bid == "" || ask == "" {
		return ""
	}
	b, err := decimal.NewFromString(bid)
	if err != nil {
		return ""
	}
	a, err := decimal.NewFromString(ask)
	if err != nil {
		return ""
	}
	return b.Add(a).Mul(half).String()
}

func rawBatch(out batchOutcome) domain.RawBatch {
	seen := make(map[string]struct{}, len(out.items))
	for _, it := range out.items {
		seen[it.TokenID] = struct{}{}
	}
	rb := domain.RawBatch{
		BatchNum: out.num,
		Tokens:   len(seen),
	}
	if len(out.body) > 0 {
		rb.Status = http.StatusOK
	}
	if out.err != nil {
		rb.Error = out.err.Error()
		var apiErr *rest.APIError
		if errors.As(out.err, &apiErr) {
			rb.Status = apiErr.StatusCode
		}
	}
	switch {
	case len(out.body) == 0:
	case json.Valid(out.body):
		rb.Data = json.RawMessage(out.body)
	default:
		quoted, _ := json.Marshal(string(out.body))
		rb.Data = quoted
	}
	return rb
}
