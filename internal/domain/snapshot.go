package domain

import "time"

// PriceSnapshot is one venue's view of one symbol at one instant: best bid,
// best ask, and the volume resting at each. Snapshots are immutable; a newer
// snapshot for the same (venue, symbol) supersedes the older one, it never
// mutates it.
type PriceSnapshot struct {
	Venue     string
	Symbol    string
	Bid       float64
	Ask       float64
	BidVolume float64
	AskVolume float64
	Timestamp time.Time
}

// Valid reports whether the snapshot carries a usable two-sided quote.
func (s PriceSnapshot) Valid() bool {
	return s.Bid > 0 && s.Ask > 0 && s.Bid <= s.Ask
}

// Age returns how old the snapshot is relative to now.
func (s PriceSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// Stale reports whether the snapshot has exceeded the staleness threshold.
// Stale snapshots are excluded from spread computation but retained for
// diagnostics.
func (s PriceSnapshot) Stale(now time.Time, threshold time.Duration) bool {
	return s.Age(now) > threshold
}

// StalenessWarning is emitted when a previously fresh (venue, symbol) entry
// crosses the staleness threshold without receiving a new update.
type StalenessWarning struct {
	Venue      string
	Symbol     string
	LastUpdate time.Time
	Age        time.Duration
}
