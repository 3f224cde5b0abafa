package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/pmuniverse/internal/platform/rest"
)

// DefaultPageLimit is the page size used for GET /markets.
const DefaultPageLimit = 100

// Client is the REST client for the Kalshi exchange API. Only public market
// data is read; an optional bearer token is configured on the rest client.
type Client struct {
	rest   *rest.Client
	logger *slog.Logger
}

// NewClient wraps a rest client pointed at the API root, e.g.
// "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(rc *rest.Client, logger *slog.Logger) *Client {
	return &Client{
		rest:   rc,
		logger: logger.With(slog.String("component", "kalshi")),
	}
}

// GetMarkets returns one page of markets and the cursor for the next page.
// An empty cursor means there are no more pages.
func (c *Client) GetMarkets(ctx context.Context, status, cursor string, limit int) ([]KalshiMarket, string, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if status != "" {
		params.Set("status", status)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.rest.Get(ctx, "/markets", params)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp marketsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}
	return resp.Markets, resp.Cursor, nil
}

// MarketFilter selects which markets GetAllMarkets keeps.
type MarketFilter func(*KalshiMarket) bool

// GetAllMarkets follows the cursor until it runs out or max kept markets
// are collected (max <= 0 means no cap). keep may be nil to keep everything.
func (c *Client) GetAllMarkets(ctx context.Context, status string, pageLimit, max int, keep MarketFilter) ([]KalshiMarket, error) {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}

	var (
		out    []KalshiMarket
		cursor string
		seen   = map[string]bool{}
	)
	for page := 0; ; page++ {
		markets, next, err := c.GetMarkets(ctx, status, cursor, pageLimit)
		if err != nil {
			return nil, err
		}
		for i := range markets {
			if keep == nil || keep(&markets[i]) {
				out = append(out, markets[i])
			}
		}

		c.logger.DebugContext(ctx, "fetched markets page",
			slog.Int("page", page),
			slog.Int("markets", len(markets)),
			slog.Int("kept", len(out)),
		)

		if next == "" || seen[next] || (max > 0 && len(out) >= max) {
			break
		}
		seen[next] = true
		cursor = next
	}

	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// GetSportsMarkets returns open markets that look sports related.
func (c *Client) GetSportsMarkets(ctx context.Context, pageLimit, max int) ([]KalshiMarket, error) {
	return c.GetAllMarkets(ctx, "open", pageLimit, max, IsSportsMarket)
}
