package domain

// RejectReason is the machine-readable reason a risk decision rejected an
// opportunity. Check order in the risk manager is fixed, so the first limit
// breached determines the reason deterministically.
type RejectReason string

const (
	RejectDailyTradeLimit  RejectReason = "daily_trade_limit"
	RejectDailyLossLimit   RejectReason = "daily_loss_limit"
	RejectPositionLimit    RejectReason = "position_limit"
	RejectCorrelationLimit RejectReason = "correlation_limit"
)

// RiskDecision is the outcome of evaluating one opportunity against the risk
// state. When approved, the notional for ApprovedQuantity has already been
// reserved atomically with the decision.
type RiskDecision struct {
	Opportunity      Opportunity
	Approved         bool
	ApprovedQuantity float64 // may be less than TradableVolume when shrunk to fit headroom
	RejectionReason  RejectReason
	// Halted marks an engine-wide suspension (daily loss limit breached) as
	// opposed to a per-opportunity rejection.
	Halted bool
}
