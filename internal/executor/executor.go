// Package executor dispatches the buy and sell legs of an approved
// opportunity to their venues and reports the realized fills.
package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/venue"
)

// retryBackoff is the pause before a retry attempt on a transient failure.
const retryBackoff = 250 * time.Millisecond

// Config holds leg dispatch parameters.
type Config struct {
	LegTimeout time.Duration
	MaxRetries int
}

// Executor places the two legs of an opportunity concurrently. Legs are
// never sequenced: sequencing doubles exposure to adverse price movement
// during the gap. Each leg runs under its own timeout, and cancelling one
// leg never cancels the other.
type Executor struct {
	venues *venue.Registry
	cfg    Config
	logger *slog.Logger
}

// New creates an Executor placing orders through the registry's executors.
func New(venues *venue.Registry, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		venues: venues,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "executor")),
	}
}

// Execute dispatches the buy leg at the opportunity's buy venue and the sell
// leg at its sell venue concurrently, then classifies the joint outcome.
// Venue-level errors are translated to fill statuses here; they never
// propagate as raw adapter errors. When one leg fills and the other does
// not, no automatic unwind is attempted: the naked exposure is surfaced in
// the outcome for operator handling.
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity, qty float64) domain.ExecutionResult {
	started := time.Now().UTC()

	var wg sync.WaitGroup
	var buyFill, sellFill domain.Fill

	wg.Add(2)
	go func() {
		defer wg.Done()
		buyFill = e.placeLeg(ctx, opp.BuyVenue, domain.OrderRequest{
			Symbol:    opp.Symbol,
			Side:      domain.LegSideBuy,
			Quantity:  qty,
			PriceHint: opp.BuyPrice,
		})
	}()
	go func() {
		defer wg.Done()
		sellFill = e.placeLeg(ctx, opp.SellVenue, domain.OrderRequest{
			Symbol:    opp.Symbol,
			Side:      domain.LegSideSell,
			Quantity:  qty,
			PriceHint: opp.SellPrice,
		})
	}()
	wg.Wait()

	res := domain.ExecutionResult{
		OpportunityID: opp.ID,
		Symbol:        opp.Symbol,
		BuyFill:       buyFill,
		SellFill:      sellFill,
		StartedAt:     started,
		CompletedAt:   time.Now().UTC(),
		Outcome:       classify(buyFill, sellFill),
	}

	level := slog.LevelInfo
	if res.Outcome.NakedLeg() {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "execution completed",
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol),
		slog.String("outcome", string(res.Outcome)),
		slog.String("buy_status", string(buyFill.Status)),
		slog.String("sell_status", string(sellFill.Status)),
		slog.Duration("elapsed", res.CompletedAt.Sub(res.StartedAt)),
	)
	return res
}

// placeLeg runs one leg with its own timeout and retry budget. Transient
// venue errors (network, rate limit) are retried up to MaxRetries; terminal
// errors (rejection, invalid symbol, insufficient balance) are not.
func (e *Executor) placeLeg(ctx context.Context, venueName string, req domain.OrderRequest) domain.Fill {
	fill := domain.Fill{Venue: venueName, Side: req.Side}

	exec, err := e.venues.Executor(venueName)
	if err != nil {
		e.logger.Error("no executor for venue",
			slog.String("venue", venueName),
			slog.String("error", err.Error()),
		)
		fill.Status = domain.FillStatusError
		return fill
	}

	// The leg owns its deadline; the sibling leg's cancellation never
	// reaches this context.
	legCtx, cancel := context.WithTimeout(ctx, e.cfg.LegTimeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		vf, err := exec.PlaceOrder(legCtx, req)
		if err == nil {
			fill.Price = vf.Price
			fill.Quantity = vf.Quantity
			fill.Fee = vf.Fee
			fill.Status = vf.Status
			return fill
		}

		if legCtx.Err() != nil {
			fill.Status = domain.FillStatusTimeout
			e.logger.Warn("leg timed out",
				slog.String("venue", venueName),
				slog.String("side", string(req.Side)),
				slog.Int("attempts", attempt+1),
			)
			return fill
		}

		if !domain.IsTransientVenueError(err) {
			fill.Status = domain.FillStatusRejected
			e.logger.Warn("leg rejected",
				slog.String("venue", venueName),
				slog.String("side", string(req.Side)),
				slog.String("error", err.Error()),
			)
			return fill
		}

		if attempt >= e.cfg.MaxRetries {
			fill.Status = domain.FillStatusError
			e.logger.Warn("leg failed after retries",
				slog.String("venue", venueName),
				slog.String("side", string(req.Side)),
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()),
			)
			return fill
		}

		e.logger.Debug("transient leg failure, retrying",
			slog.String("venue", venueName),
			slog.String("side", string(req.Side)),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		select {
		case <-legCtx.Done():
			fill.Status = domain.FillStatusTimeout
			return fill
		case <-time.After(retryBackoff):
		}
	}
}

// classify maps the two leg fills onto the joint outcome. A partial fill
// with nonzero quantity counts as filled for classification; when neither
// leg filled, a timeout on either leg marks the whole execution as timeout.
func classify(buy, sell domain.Fill) domain.ExecutionOutcome {
	switch {
	case buy.Filled() && sell.Filled():
		return domain.OutcomeBothFilled
	case buy.Filled():
		return domain.OutcomePartialBuyOnly
	case sell.Filled():
		return domain.OutcomePartialSellOnly
	case buy.Status == domain.FillStatusTimeout || sell.Status == domain.FillStatusTimeout:
		return domain.OutcomeTimeout
	default:
		return domain.OutcomeBothFailed
	}
}
