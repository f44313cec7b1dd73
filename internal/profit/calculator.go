// Package profit settles execution results into realized PnL and feeds the
// numbers back into risk accounting and the durable sinks.
package profit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/notify"
)

// Settler receives the realized profit of each execution exactly once.
type Settler interface {
	Settle(profit domain.RealizedProfit)
}

// Calculator turns execution results into realized profit. Profit is always
// computed from realized fill prices and quantities, never from the quoted
// prices at detection time, and fees count against PnL on every filled leg
// whether or not the other leg filled.
type Calculator struct {
	risk     Settler
	store    domain.ExecutionStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithStore persists every settlement into the execution store.
func WithStore(store domain.ExecutionStore) Option {
	return func(c *Calculator) { c.store = store }
}

// WithSignalBus publishes every settlement on the telemetry bus.
func WithSignalBus(bus domain.SignalBus) Option {
	return func(c *Calculator) { c.bus = bus }
}

// WithNotifier alerts operators when a settlement leaves naked exposure.
func WithNotifier(n *notify.Notifier) Option {
	return func(c *Calculator) { c.notifier = n }
}

// ProfitChannel is the pub/sub channel settlements are published on.
const ProfitChannel = "crossarb:profit"

// ProfitStream is the durable stream settlements are appended to.
const ProfitStream = "crossarb:stream:profit"

// New creates a Calculator feeding settled PnL back into risk.
func New(risk Settler, logger *slog.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		risk:   risk,
		logger: logger.With(slog.String("component", "profit_calculator")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settle computes realized PnL for one execution result, releases the risk
// reservation, and pushes the settlement to the configured sinks. It is the
// single point where a reservation is released, so it must run exactly once
// per execution result whatever the outcome.
func (c *Calculator) Settle(ctx context.Context, res domain.ExecutionResult) domain.RealizedProfit {
	profit := Compute(res)
	c.risk.Settle(profit)

	level := slog.LevelInfo
	if profit.Net < 0 {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "execution settled",
		slog.String("opp_id", profit.OpportunityID),
		slog.String("symbol", profit.Symbol),
		slog.String("outcome", string(profit.Outcome)),
		slog.Float64("gross", profit.Gross),
		slog.Float64("fees", profit.Fees),
		slog.Float64("net", profit.Net),
		slog.Float64("matched_qty", profit.MatchedQuantity),
	)

	if c.store != nil {
		if err := c.store.Insert(ctx, res, profit); err != nil {
			c.logger.Error("execution store insert failed",
				slog.String("opp_id", profit.OpportunityID),
				slog.String("error", err.Error()),
			)
		}
	}
	if c.bus != nil {
		c.publish(ctx, profit)
	}
	if c.notifier != nil && res.Outcome.NakedLeg() {
		if err := c.notifier.NakedLeg(ctx, res); err != nil {
			c.logger.Error("naked leg alert failed",
				slog.String("opp_id", res.OpportunityID),
				slog.String("error", err.Error()),
			)
		}
	}
	return profit
}

// Compute derives the realized PnL for one execution result.
//
// Matched quantity is min(buy qty, sell qty) over filled legs. Gross profit
// accrues only on the matched quantity; an unmatched remainder on either
// side is open inventory, not profit. Fees from both legs are charged in
// full. A single filled leg therefore settles at -(leg notional + leg fee):
// capital is deployed with no offsetting sale.
func Compute(res domain.ExecutionResult) domain.RealizedProfit {
	profit := domain.RealizedProfit{
		OpportunityID: res.OpportunityID,
		Symbol:        res.Symbol,
		Outcome:       res.Outcome,
		SettledAt:     time.Now().UTC(),
	}

	buy, sell := res.BuyFill, res.SellFill
	if buy.Filled() {
		profit.Fees += buy.Fee
	}
	if sell.Filled() {
		profit.Fees += sell.Fee
	}

	switch {
	case buy.Filled() && sell.Filled():
		matched := minFloat(buy.Quantity, sell.Quantity)
		profit.MatchedQuantity = matched
		profit.Gross = (sell.Price - buy.Price) * matched
	case buy.Filled():
		// Naked buy: the full leg notional is deployed with no sale against
		// it. Conservatively booked as a loss until the position is unwound
		// by the operator.
		profit.Gross = -buy.Notional()
	case sell.Filled():
		profit.Gross = -sell.Notional()
	default:
		// Nothing filled, nothing moved. Fees are zero by construction.
	}

	profit.Net = profit.Gross - profit.Fees
	return profit
}

// publish pushes the settlement onto the pub/sub channel and the durable
// stream. Telemetry failures never affect settlement.
func (c *Calculator) publish(ctx context.Context, profit domain.RealizedProfit) {
	payload, err := json.Marshal(profit)
	if err != nil {
		c.logger.Error("profit marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := c.bus.Publish(ctx, ProfitChannel, payload); err != nil {
		c.logger.Debug("profit publish failed", slog.String("error", err.Error()))
	}
	if err := c.bus.StreamAppend(ctx, ProfitStream, payload); err != nil {
		c.logger.Debug("profit stream append failed", slog.String("error", err.Error()))
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
