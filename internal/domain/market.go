package domain

import "time"

// Data source labels written into every catalog and price row.
const (
	SourceGamma = "polymarket_gamma"
	SourceClob  = "polymarket_clob"
)

// MarketRecord is the snapshot of one catalog market at pull time. Records
// are built once during extraction and never mutated afterwards.
type MarketRecord struct {
	PulledAt        time.Time
	Source          string
	MarketID        string
	Slug            string
	Question        string
	Category        string
	ConditionID     string
	Active          *bool
	Closed          *bool
	EnableOrderBook *bool
	EndDateUTC      string
	Outcomes        []string // nil when the catalog omitted or garbled the list
	TokenIDs        []string // nil when the catalog omitted or garbled the list
	VolumeNum       *float64
	LiquidityNum    *float64
}

// HasTokens reports whether both outcome and token lists are present and
// non-empty.
func (m *MarketRecord) HasTokens() bool {
	return len(m.Outcomes) > 0 && len(m.TokenIDs) > 0
}

// TokenOutcome is one priceable outcome token, carrying enough of its parent
// market to label a price row without a join.
type TokenOutcome struct {
	TokenID      string
	Outcome      string
	MarketID     string
	Slug         string
	Question     string
	Active       *bool
	VolumeNum    *float64
	LiquidityNum *float64
}

// Bool returns a pointer to b. Handy for tri-state fields in literals.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }
