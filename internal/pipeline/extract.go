package pipeline

import (
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
	"github.com/alanyoungcy/pmuniverse/internal/platform/polymarket"
)

// ExtractOptions narrows which catalog markets are kept.
type ExtractOptions struct {
	// Category keeps only markets whose category contains this term,
	// ignoring case. Empty keeps everything.
	Category string
	// MaxMarkets caps the number of accepted markets. Zero means no cap.
	MaxMarkets int
}

// ExtractStats counts how extraction classified the accepted markets.
type ExtractStats struct {
	MarketsTotal      int
	MarketsWithTokens int
	SkippedNoTokens   int
	SkippedMismatched int
	NotClobTradable   int
	DuplicateMarkets  int
	DuplicateTokens   int
}

// Extraction is the output of ExtractMarkets.
type Extraction struct {
	Markets []domain.MarketRecord
	Tokens  []domain.TokenOutcome
	Stats   ExtractStats
}

// ExtractMarkets flattens events into market records and priceable tokens.
//
// Markets whose outcome and token lists are both present and of equal
// length yield one TokenOutcome per non-empty token id. Markets with a
// missing list or a length mismatch stay in Markets but contribute no
// tokens. Markets with enableOrderBook=false are counted as not tradable
// and still priced. A market or token id seen earlier in the run is dropped.
func ExtractMarkets(events []polymarket.APIEvent, pulledAt time.Time, opts ExtractOptions, logger *slog.Logger) Extraction {
	var (
		out        Extraction
		st         = &out.Stats
		filter     = strings.ToLower(strings.TrimSpace(opts.Category))
		seenMarket = make(map[string]bool)
		seenToken  = make(map[string]bool)
	)
	capped := func() bool {
		return opts.MaxMarkets > 0 && st.MarketsTotal >= opts.MaxMarkets
	}

	for ei := range events {
		ev := &events[ei]
		category := eventCategory(ev)
		if filter != "" && !strings.Contains(strings.ToLower(category), filter) {
			continue
		}

		for mi := range ev.Markets {
			if capped() {
				break
			}
			m := &ev.Markets[mi]
			id := string(m.ID)
			if id != "" && seenMarket[id] {
				st.DuplicateMarkets++
				logger.Debug("dropping duplicate market", slog.String("market_id", id))
				continue
			}
			seenMarket[id] = true

			rec := marketRecord(m, category, pulledAt)
			st.MarketsTotal++
			out.Markets = append(out.Markets, rec)

			if !rec.HasTokens() {
				st.SkippedNoTokens++
				continue
			}
			if len(rec.Outcomes) != len(rec.TokenIDs) {
				st.SkippedMismatched++
				logger.Warn("market has mismatched arrays",
					slog.String("market_id", id),
					slog.Int("outcomes", len(rec.Outcomes)),
					slog.Int("token_ids", len(rec.TokenIDs)),
				)
				continue
			}
			if ob := rec.EnableOrderBook; ob != nil && !*ob {
				st.NotClobTradable++
			}

			added := 0
			for i, tokenID := range rec.TokenIDs {
				if tokenID == "" {
					continue
				}
				if seenToken[tokenID] {
					st.DuplicateTokens++
					logger.Debug("dropping duplicate token",
						slog.String("token_id", tokenID),
						slog.String("market_id", id),
					)
					continue
				}
				seenToken[tokenID] = true
				out.Tokens = append(out.Tokens, domain.TokenOutcome{
					TokenID:      tokenID,
					Outcome:      rec.Outcomes[i],
					MarketID:     rec.MarketID,
					Slug:         rec.Slug,
					Question:     rec.Question,
					Active:       rec.Active,
					VolumeNum:    rec.VolumeNum,
					LiquidityNum: rec.LiquidityNum,
				})
				added++
			}
			if added == 0 {
				st.SkippedNoTokens++
				continue
			}
			st.MarketsWithTokens++
		}
		if capped() {
			break
		}
	}
	return out
}

// eventCategory is the event's category, else the first tag's label or slug.
func eventCategory(ev *polymarket.APIEvent) string {
	if ev.Category != "" {
		return ev.Category
	}
	if len(ev.Tags) > 0 {
		return ev.Tags[0].Name()
	}
	return ""
}

func marketRecord(m *polymarket.APIMarket, category string, pulledAt time.Time) domain.MarketRecord {
	return domain.MarketRecord{
		PulledAt:        pulledAt,
		Source:          domain.SourceGamma,
		MarketID:        string(m.ID),
		Slug:            m.Slug,
		Question:        m.Question,
		Category:        category,
		ConditionID:     m.ConditionID,
		Active:          m.IsActive(),
		Closed:          m.IsClosed(),
		EnableOrderBook: m.OrderBookEnabled(),
		EndDateUTC:      m.EndDateUTC(),
		Outcomes:        []string(m.Outcomes),
		TokenIDs:        []string(m.ClobTokenIDs),
		VolumeNum:       m.Volume(),
		LiquidityNum:    m.Liquidity(),
	}
}
