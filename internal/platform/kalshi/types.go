package kalshi

import (
	"time"

	"github.com/alanyoungcy/pmuniverse/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
// Price fields are in cents; pointers keep absent values distinct from 0.
type KalshiMarket struct {
	Ticker                 string   `json:"ticker"`
	EventTicker            string   `json:"event_ticker"`
	SeriesTicker           string   `json:"series_ticker"`
	MarketType             string   `json:"market_type"`
	Title                  string   `json:"title"`
	Subtitle               string   `json:"subtitle"`
	YesSubTitle            string   `json:"yes_sub_title"`
	NoSubTitle             string   `json:"no_sub_title"`
	Status                 string   `json:"status"` // "open", "closed", "settled"
	Category               string   `json:"category"`
	Tags                   []string `json:"tags"`
	OpenTime               string   `json:"open_time"`
	CloseTime              string   `json:"close_time"`
	ExpectedExpirationTime string   `json:"expected_expiration_time"`
	YesBid                 *float64 `json:"yes_bid"`
	YesAsk                 *float64 `json:"yes_ask"`
	NoBid                  *float64 `json:"no_bid"`
	NoAsk                  *float64 `json:"no_ask"`
	LastPrice              *float64 `json:"last_price"`
	Volume24H              *float64 `json:"volume_24h"`
	Liquidity              *float64 `json:"liquidity"`
	OpenInterest           *float64 `json:"open_interest"`
}

// marketsResponse is the GET /markets envelope.
type marketsResponse struct {
	Markets []KalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

// ToExchangeMarket flattens the market into a snapshot row.
func (m *KalshiMarket) ToExchangeMarket(pulledAt time.Time) domain.ExchangeMarket {
	return domain.ExchangeMarket{
		PulledAt:               pulledAt.UTC(),
		Ticker:                 m.Ticker,
		EventTicker:            m.EventTicker,
		MarketType:             m.MarketType,
		Title:                  m.Title,
		Subtitle:               m.Subtitle,
		YesSubTitle:            m.YesSubTitle,
		NoSubTitle:             m.NoSubTitle,
		Status:                 m.Status,
		OpenTime:               m.OpenTime,
		CloseTime:              m.CloseTime,
		ExpectedExpirationTime: m.ExpectedExpirationTime,
		YesBid:                 m.YesBid,
		YesAsk:                 m.YesAsk,
		NoBid:                  m.NoBid,
		NoAsk:                  m.NoAsk,
		LastPrice:              m.LastPrice,
		Volume24H:              m.Volume24H,
		Liquidity:              m.Liquidity,
		OpenInterest:           m.OpenInterest,
		Category:               m.Category,
		SeriesTicker:           m.SeriesTicker,
	}
}
