package domain

import "time"

// ExchangeMarket is one flattened market from the secondary exchange.
type ExchangeMarket struct {
	PulledAt               time.Time
	Ticker                 string
	EventTicker            string
	MarketType             string
	Title                  string
	Subtitle               string
	YesSubTitle            string
	NoSubTitle             string
	Status                 string
	OpenTime               string
	CloseTime              string
	ExpectedExpirationTime string
	YesBid                 *float64
	YesAsk                 *float64
	NoBid                  *float64
	NoAsk                  *float64
	LastPrice              *float64
	Volume24H              *float64
	Liquidity              *float64
	OpenInterest           *float64
	Category               string
	SeriesTicker           string
}
