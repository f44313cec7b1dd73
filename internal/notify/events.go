package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Event types operators can subscribe to via the notify.events config list.
const (
	EventNakedLeg      = "naked_leg"
	EventDailyLossHalt = "daily_loss_halt"
	EventVenueStale    = "venue_stale"
)

// NakedLeg alerts that one leg of an execution filled while the other did
// not, leaving unhedged exposure that needs manual unwinding.
func (n *Notifier) NakedLeg(ctx context.Context, res domain.ExecutionResult) error {
	filled := res.BuyFill
	if res.Outcome == domain.OutcomePartialSellOnly {
		filled = res.SellFill
	}
	msg := fmt.Sprintf(
		"Opportunity %s (%s): %s leg filled %.6f @ %.6f on %s, opposite leg did not fill.\nManual unwind required.",
		res.OpportunityID, res.Symbol, filled.Side, filled.Quantity, filled.Price, filled.Venue,
	)
	return n.Notify(ctx, EventNakedLeg, "Naked leg exposure", msg)
}

// DailyLossHalt alerts that the daily loss limit suspended new executions.
func (n *Notifier) DailyLossHalt(ctx context.Context, todayPnL, limit float64) error {
	msg := fmt.Sprintf(
		"Realized PnL %.2f breached the daily loss limit %.2f.\nNew executions are suspended until the next daily reset.",
		todayPnL, -limit,
	)
	return n.Notify(ctx, EventDailyLossHalt, "Daily loss limit halt", msg)
}

// VenueStale alerts that a venue's price feed crossed the staleness
// threshold.
func (n *Notifier) VenueStale(ctx context.Context, w domain.StalenessWarning) error {
	msg := fmt.Sprintf(
		"%s/%s last updated %s ago (at %s). The venue is excluded from detection until fresh data arrives.",
		w.Venue, w.Symbol, w.Age.Round(0), w.LastUpdate.Format("15:04:05.000"),
	)
	return n.Notify(ctx, EventVenueStale, "Venue data stale", msg)
}
