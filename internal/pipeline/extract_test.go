package pipeline

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pmuniverse/internal/platform/polymarket"
)

var pulledAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func decodeEvents(t *testing.T, js string) []polymarket.APIEvent {
	t.Helper()
	var events []polymarket.APIEvent
	require.NoError(t, json.Unmarshal([]byte(js), &events))
	return events
}

func TestExtractClassifiesMarkets(t *testing.T) {
	events := decodeEvents(t, `[{
		"id": "e1", "category": "Sports",
		"markets": [
			{"id": "ok", "slug": "ok", "question": "Q?", "active": true, "volumeNum": 10.5,
			 "outcomes": "[\"Yes\",\"No\"]", "clobTokenIds": "[\"t1\",\"t2\"]"},
			{"id": "mismatch", "outcomes": ["Yes","No"], "clobTokenIds": ["t3"]},
			{"id": "missing", "outcomes": ["Yes","No"]},
			{"id": "garbled", "outcomes": "not json", "clobTokenIds": ["t4","t5"]},
			{"id": "closed-book", "enableOrderBook": false, "outcomes": ["A"], "clobTokenIds": ["t6"]},
			{"id": "blank-tokens", "outcomes": ["A","B"], "clobTokenIds": ["",""]}
		]
	}]`)

	ex := ExtractMarkets(events, pulledAt, ExtractOptions{}, slog.Default())

	assert.Len(t, ex.Markets, 6)
	assert.Equal(t, ExtractStats{
		MarketsTotal:      6,
		MarketsWithTokens: 2,
		SkippedNoTokens:   3,
		SkippedMismatched: 1,
		NotClobTradable:   1,
	}, ex.Stats)

	require.Len(t, ex.Tokens, 3)
	assert.Equal(t, "t1", ex.Tokens[0].TokenID)
	assert.Equal(t, "Yes", ex.Tokens[0].Outcome)
	assert.Equal(t, "ok", ex.Tokens[0].MarketID)
	assert.Equal(t, "Q?", ex.Tokens[0].Question)
	require.NotNil(t, ex.Tokens[0].Active)
	assert.True(t, *ex.Tokens[0].Active)
	require.NotNil(t, ex.Tokens[0].VolumeNum)
	assert.Equal(t, 10.5, *ex.Tokens[0].VolumeNum)
	assert.Equal(t, "No", ex.Tokens[1].Outcome)
	assert.Equal(t, "t6", ex.Tokens[2].TokenID)

	rec := ex.Markets[0]
	assert.Equal(t, pulledAt, rec.PulledAt)
	assert.Equal(t, "polymarket_gamma", rec.Source)
	assert.Equal(t, "Sports", rec.Category)
	assert.Equal(t, []string{"Yes", "No"}, rec.Outcomes)
	assert.Nil(t, ex.Markets[3].Outcomes)
}

func TestExtractTokenOrderFollowsCatalogOrder(t *testing.T) {
	events := decodeEvents(t, `[
		{"id": "e1", "markets": [{"id": "m1", "outcomes": ["A","B"], "clobTokenIds": ["a","b"]}]},
		{"id": "e2", "markets": [{"id": "m2", "outcomes": ["C"], "clobTokenIds": ["c"]}]}
	]`)
	ex := ExtractMarkets(events, pulledAt, ExtractOptions{}, slog.Default())

	ids := make([]string, len(ex.Tokens))
	for i, tok := range ex.Tokens {
		ids[i] = tok.TokenID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestExtractCategoryFallback(t *testing.T) {
	events := decodeEvents(t, `[
		{"id": "1", "category": "Politics", "tags": [{"label": "ignored"}], "markets": [{"id": "a"}]},
		{"id": "2", "tags": [{"id": 7, "label": "Basketball", "slug": "nba"}], "markets": [{"id": "b"}]},
		{"id": "3", "tags": [{"slug": "crypto"}], "markets": [{"id": "c"}]},
		{"id": "4", "tags": ["Culture"], "markets": [{"id": "d"}]},
		{"id": "5", "markets": [{"id": "e"}]}
	]`)
	ex := ExtractMarkets(events, pulledAt, ExtractOptions{}, slog.Default())

	got := make([]string, len(ex.Markets))
	for i, m := range ex.Markets {
		got[i] = m.Category
	}
	assert.Equal(t, []string{"Politics", "Basketball", "crypto", "Culture", ""}, got)
}

func TestExtractCategoryFilterIsCaseInsensitiveSubstring(t *testing.T) {
	events := decodeEvents(t, `[
		{"id": "1", "category": "US-Sports", "markets": [{"id": "a"}, {"id": "b"}]},
		{"id": "2", "category": "Politics", "markets": [{"id": "c"}]},
		{"id": "3", "category": "sports", "markets": [{"id": "d"}]}
	]`)
	ex := ExtractMarkets(events, pulledAt, ExtractOptions{Category: "SPORTS"}, slog.Default())

	require.Len(t, ex.Markets, 3)
	assert.Equal(t, "a", ex.Markets[0].MarketID)
	assert.Equal(t, "d", ex.Markets[2].MarketID)
	assert.Equal(t, 3, ex.Stats.MarketsTotal)
}

func TestExtractMaxMarketsSpansEvents(t *testing.T) {
	events := decodeEvents(t, `[
		{"id": "1", "markets": [{"id": "a"}, {"id": "b"}]},
		{"id": "2", "markets": [{"id": "c"}, {"id": "d"}]},
		{"id": "3", "markets": [{"id": "e"}]}
	]`)
	ex := ExtractMarkets(events, pulledAt, ExtractOptions{MaxMarkets: 3}, slog.Default())

	require.Len(t, ex.Markets, 3)
	assert.Equal(t, "c", ex.Markets[2].MarketID)
	assert.Equal(t, 3, ex.Stats.MarketsTotal)
}

func TestExtractMaxMarketsCountsOnlyAcceptedMarkets(t *testing.T) {
	events := decodeEvents(t, `[
		{"id": "1", "category": "Politics", "markets": [{"id": "a"}, {"id": "b"}]},
		{"id": "2", "category": "Sports", "markets": [{"id": "c"}, {"id": "d"}]}
	]`)
	ex := ExtractMarkets(events, pulledAt, ExtractOptions{Category: "sports", MaxMarkets: 1}, slog.Default())

	require.Len(t, ex.Markets, 1)
	assert.Equal(t, "c", ex.Markets[0].MarketID)
}

func TestExtractDropsDuplicates(t *testing.T) {
	events := decodeEvents(t, `[
		{"id": "1", "markets": [{"id": "m1", "outcomes": ["Yes","No"], "clobTokenIds": ["t1","t2"]}]},
		{"id": "2", "markets": [
			{"id": "m1", "outcomes": ["Yes","No"], "clobTokenIds": ["t1","t2"]},
			{"id": "m2", "outcomes": ["Yes","No"], "clobTokenIds": ["t2","t3"]}
		]}
	]`)
	ex := ExtractMarkets(events, pulledAt, ExtractOptions{}, slog.Default())

	assert.Len(t, ex.Markets, 2)
	require.Len(t, ex.Tokens, 3)
	assert.Equal(t, "t3", ex.Tokens[2].TokenID)
	assert.Equal(t, 1, ex.Stats.DuplicateMarkets)
	assert.Equal(t, 1, ex.Stats.DuplicateTokens)
	assert.Equal(t, 2, ex.Stats.MarketsWithTokens)
}

func TestExtractEmptyCatalog(t *testing.T) {
	ex := ExtractMarkets(nil, pulledAt, ExtractOptions{}, slog.Default())
	assert.Empty(t, ex.Markets)
	assert.Empty(t, ex.Tokens)
	assert.Zero(t, ex.Stats)
}
