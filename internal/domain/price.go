package domain

import (
	"encoding/json"
	"time"
)

// PriceStatus is the per-token outcome of a pricing run.
type PriceStatus string

const (
	PriceStatusOK       PriceStatus = "ok"
	PriceStatusMissing  PriceStatus = "missing_price"
	PriceStatusAPIError PriceStatus = "api_error"
)

// Quote sides as understood by the pricing endpoint. The BUY price is what a
// taker pays (the ask); the SELL price is what a taker receives (the bid).
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// PriceResult is the finalized price row for one token. Bid, Ask and Mid keep
// the exact decimal text returned by the exchange; empty means unknown.
type PriceResult struct {
	SnapshotTS   time.Time
	Source       string
	MarketID     string
	Slug         string
	Question     string
	TokenID      string
	Outcome      string
	Bid          string
	Ask          string
	Mid          string
	Active       *bool
	Status       PriceStatus
	VolumeNum    *float64
	LiquidityNum *float64
}

// RawBatch is the audit record of one pricing request. Data holds the raw
// response body when the batch succeeded.
type RawBatch struct {
	BatchNum int             `json:"batch_num"`
	Status   int             `json:"status"`
	Tokens   int             `json:"tokens"`
	Error    string          `json:"error,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// PriceStats counts per-status outcomes of a pricing run.
type PriceStats struct {
	OK        int `json:"tokens_priced_ok"`
	Missing   int `json:"tokens_missing_price"`
	APIErrors int `json:"api_errors"`
	Batches   int `json:"price_batches"`
}
