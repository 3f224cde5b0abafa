package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/platform/rest"
)

// Catalog paging defaults.
const (
	DefaultPageSize = 500
	DefaultMaxPages = 500
)

// EventQuery filters GET /events. TagID and SeriesID are mutually exclusive;
// nil Active/Closed leave the server default in place.
type EventQuery struct {
	TagID    string
	SeriesID string
	Active   *bool
	Closed   *bool
}

func (q EventQuery) values() (url.Values, error) {
	if q.TagID != "" && q.SeriesID != "" {
		return nil, domain.ErrConflictingSelector
	}
	params := url.Values{}
	if q.TagID != "" {
		params.Set("tag_id", q.TagID)
	}
	if q.SeriesID != "" {
		params.Set("series_id", q.SeriesID)
	}
	if q.Active != nil {
		params.Set("active", strconv.FormatBool(*q.Active))
	}
	if q.Closed != nil {
		params.Set("closed", strconv.FormatBool(*q.Closed))
	}
	return params, nil
}

// PageOptions bounds catalog pagination. Zero values fall back to the
// defaults; MaxItems of zero means no item cap.
type PageOptions struct {
	PageSize int
	MaxPages int
	MaxItems int
}

func (o PageOptions) withDefaults() PageOptions {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	return o
}

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides the event/market catalog and the tag taxonomy.
type GammaClient struct {
	rest   *rest.Client
	logger *slog.Logger
}

// NewGammaClient wraps a rest client pointed at the Gamma API root, e.g.
// "https://gamma-api.polymarket.com".
func NewGammaClient(rc *rest.Client, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		rest:   rc,
		logger: logger.With(slog.String("component", "gamma")),
	}
}

// GetEvents fetches one page of events. more is false when the server
// returned something other than a JSON array, which ends pagination.
func (g *GammaClient) GetEvents(ctx context.Context, q EventQuery, limit, offset int) (events []APIEvent, more bool, err error) {
	params, err := q.values()
	if err != nil {
		return nil, false, fmt.Errorf("polymarket/gamma: get events: %w", err)
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, err := g.rest.Get(ctx, "/events", params)
	if err != nil {
		return nil, false, fmt.Errorf("polymarket/gamma: get events offset=%d: %w", offset, err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false, nil
	}
	if err := json.Unmarshal(trimmed, &events); err != nil {
		return nil, false, fmt.Errorf("polymarket/gamma: decode events offset=%d: %w", offset, err)
	}
	return events, true, nil
}

// FetchAllEvents pages through GET /events sequentially, advancing the
// offset by the number of events each page returned. It stops on an empty
// or short page, once MaxItems is reached, or after MaxPages pages (with a
// warning, since more data may exist). Any page failure aborts the whole
// enumeration.
func (g *GammaClient) FetchAllEvents(ctx context.Context, q EventQuery, opts PageOptions) ([]APIEvent, error) {
	opts = opts.withDefaults()

	var all []APIEvent
	offset := 0
	page := 0
	for ; page < opts.MaxPages; page++ {
		if opts.MaxItems > 0 && len(all) >= opts.MaxItems {
			break
		}

		events, more, err := g.GetEvents(ctx, q, opts.PageSize, offset)
		if err != nil {
			return nil, err
		}
		if !more || len(events) == 0 {
			break
		}
		all = append(all, events...)

		g.logger.InfoContext(ctx, "fetched page",
			slog.Int("page", page),
			slog.Int("events", len(events)),
			slog.Int("total", len(all)),
		)

		if len(events) < opts.PageSize {
			break
		}
		offset += len(events)
	}

	if page >= opts.MaxPages {
		g.logger.WarnContext(ctx, "reached max pages, catalog may be incomplete",
			slog.Int("max_pages", opts.MaxPages),
		)
	}
	if opts.MaxItems > 0 && len(all) > opts.MaxItems {
		all = all[:opts.MaxItems]
	}
	return all, nil
}

// FetchTags returns the tag taxonomy.
func (g *GammaClient) FetchTags(ctx context.Context) ([]APITag, error) {
	body, err := g.rest.Get(ctx, "/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get tags: %w", err)
	}
	var tags []APITag
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode tags: %w", err)
	}
	return tags, nil
}

// ResolveTagID finds the tag whose label or slug equals name,
// case-insensitively. It returns domain.ErrNotFound when nothing matches.
func (g *GammaClient) ResolveTagID(ctx context.Context, name string) (APITag, error) {
	tags, err := g.FetchTags(ctx)
	if err != nil {
		return APITag{}, err
	}
	if tag, ok := MatchTag(tags, name); ok {
		return tag, nil
	}
	return APITag{}, fmt.Errorf("polymarket/gamma: tag %q: %w", name, domain.ErrNotFound)
}

// MatchTag returns the first tag whose label or slug equals name,
// ignoring case.
func MatchTag(tags []APITag, name string) (APITag, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return APITag{}, false
	}
	for _, t := range tags {
		if t.ID == "" {
			continue
		}
		if strings.ToLower(t.Label) == want || strings.ToLower(t.Slug) == want {
			return t, true
		}
	}
	return APITag{}, false
}
