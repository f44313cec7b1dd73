package domain

import "time"

// Opportunity is a candidate arbitrage: buy at BuyVenue's ask, sell at
// SellVenue's bid. Opportunities are created fresh each detection cycle,
// never mutated, and consumed exactly once by the risk manager.
type Opportunity struct {
	ID             string
	Symbol         string
	BuyVenue       string
	SellVenue      string
	BuyPrice       float64 // buy venue best ask
	SellPrice      float64 // sell venue best bid
	SpreadAbs      float64 // SellPrice - BuyPrice
	SpreadPct      float64 // SpreadAbs / BuyPrice
	TradableVolume float64 // min(buy ask volume, sell bid volume)
	DetectedAt     time.Time
	Confidence     float64 // [0,1], staleness decay x historical fill rate
}

// Notional returns the capital required to take the buy leg at qty.
func (o Opportunity) Notional(qty float64) float64 {
	return o.BuyPrice * qty
}

// VenuePair returns the "buy->sell" pair key used for fill-rate tracking.
func (o Opportunity) VenuePair() string {
	return o.BuyVenue + "->" + o.SellVenue
}
