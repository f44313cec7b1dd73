package domain

import "time"

// LegSide identifies which side of the pair a fill belongs to.
type LegSide string

const (
	LegSideBuy  LegSide = "buy"
	LegSideSell LegSide = "sell"
)

// FillStatus is the terminal state of one leg.
type FillStatus string

const (
	FillStatusFilled   FillStatus = "filled"
	FillStatusPartial  FillStatus = "partial"
	FillStatusRejected FillStatus = "rejected"
	FillStatusError    FillStatus = "error"
	FillStatusTimeout  FillStatus = "timeout"
)

// Fill is the realized result of one leg as reported by the venue adapter.
// Price and Quantity are whatever the venue reports, never the quoted price
// used at detection time.
type Fill struct {
	Venue    string
	Side     LegSide
	Price    float64
	Quantity float64
	Fee      float64
	Status   FillStatus
}

// Filled reports whether the leg put any quantity on (partial counts).
func (f Fill) Filled() bool {
	return (f.Status == FillStatusFilled || f.Status == FillStatusPartial) && f.Quantity > 0
}

// Notional returns the capital that actually moved on this leg.
func (f Fill) Notional() float64 {
	return f.Price * f.Quantity
}

// ExecutionOutcome classifies the joint result of the two legs.
type ExecutionOutcome string

const (
	OutcomeBothFilled      ExecutionOutcome = "both_filled"
	OutcomePartialBuyOnly  ExecutionOutcome = "partial_buy_only"
	OutcomePartialSellOnly ExecutionOutcome = "partial_sell_only"
	OutcomeBothFailed      ExecutionOutcome = "both_failed"
	OutcomeTimeout         ExecutionOutcome = "timeout"
)

// NakedLeg reports whether exactly one leg filled, leaving unhedged
// directional exposure that requires operator attention.
func (o ExecutionOutcome) NakedLeg() bool {
	return o == OutcomePartialBuyOnly || o == OutcomePartialSellOnly
}

// ExecutionResult is produced by the execution engine for one opportunity and
// consumed exactly once by the profit calculator.
type ExecutionResult struct {
	OpportunityID string
	Symbol        string
	BuyFill       Fill
	SellFill      Fill
	StartedAt     time.Time
	CompletedAt   time.Time
	Outcome       ExecutionOutcome
}

// RealizedProfit is the settled PnL of one execution, fees included.
type RealizedProfit struct {
	OpportunityID   string
	Symbol          string
	Gross           float64
	Fees            float64
	Net             float64
	MatchedQuantity float64
	Outcome         ExecutionOutcome
	SettledAt       time.Time
}
