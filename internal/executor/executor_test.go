package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExecutor scripts PlaceOrder responses per call.
type fakeExecutor struct {
	name  string
	fill  domain.VenueFill
	errs  []error // consumed first, one per call
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeExecutor) Venue() string { return f.name }

func (f *fakeExecutor) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.VenueFill, error) {
	f.mu.Lock()
	n := f.calls
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.VenueFill{}, domain.NewTransientVenueError(f.name, "place_order", ctx.Err())
		case <-time.After(f.delay):
		}
	}
	if n < len(f.errs) {
		return domain.VenueFill{}, f.errs[n]
	}
	fill := f.fill
	if fill.Quantity == 0 {
		fill = domain.VenueFill{Status: domain.FillStatusFilled, Price: req.PriceHint, Quantity: req.Quantity, Fee: 0.1}
	}
	return fill, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testOpp() domain.Opportunity {
	return domain.Opportunity{
		ID:        "opp-1",
		Symbol:    "BTC-USD",
		BuyVenue:  "alpha",
		SellVenue: "beta",
		BuyPrice:  100.0,
		SellPrice: 100.5,
	}
}

func newExecutor(buy, sell domain.OrderExecutor, cfg Config) *Executor {
	reg := venue.NewRegistry()
	reg.RegisterExecutor(buy)
	reg.RegisterExecutor(sell)
	if cfg.LegTimeout == 0 {
		cfg.LegTimeout = time.Second
	}
	return New(reg, cfg, testLogger())
}

func TestExecuteBothLegsFill(t *testing.T) {
	buy := &fakeExecutor{name: "alpha"}
	sell := &fakeExecutor{name: "beta"}
	e := newExecutor(buy, sell, Config{})

	res := e.Execute(context.Background(), testOpp(), 2)

	assert.Equal(t, domain.OutcomeBothFilled, res.Outcome)
	assert.Equal(t, "alpha", res.BuyFill.Venue)
	assert.Equal(t, domain.LegSideBuy, res.BuyFill.Side)
	assert.Equal(t, "beta", res.SellFill.Venue)
	assert.Equal(t, domain.LegSideSell, res.SellFill.Side)
	assert.Equal(t, 2.0, res.BuyFill.Quantity)
	assert.Equal(t, "opp-1", res.OpportunityID)
}

func TestExecuteLegsRunConcurrently(t *testing.T) {
	// Two legs of 150ms each: concurrent dispatch finishes well under the
	// 300ms a sequential dispatch would need.
	buy := &fakeExecutor{name: "alpha", delay: 150 * time.Millisecond}
	sell := &fakeExecutor{name: "beta", delay: 150 * time.Millisecond}
	e := newExecutor(buy, sell, Config{LegTimeout: time.Second})

	start := time.Now()
	res := e.Execute(context.Background(), testOpp(), 1)
	elapsed := time.Since(start)

	assert.Equal(t, domain.OutcomeBothFilled, res.Outcome)
	assert.Less(t, elapsed, 280*time.Millisecond, "legs must dispatch concurrently")
}

func TestExecuteRetriesTransientErrors(t *testing.T) {
	buy := &fakeExecutor{name: "alpha", errs: []error{
		domain.NewTransientVenueError("alpha", "place_order", errors.New("connection reset")),
	}}
	sell := &fakeExecutor{name: "beta"}
	e := newExecutor(buy, sell, Config{MaxRetries: 1})

	res := e.Execute(context.Background(), testOpp(), 1)

	assert.Equal(t, domain.OutcomeBothFilled, res.Outcome)
	assert.Equal(t, 2, buy.callCount(), "transient failure retried once")
}

func TestExecuteDoesNotRetryTerminalErrors(t *testing.T) {
	buy := &fakeExecutor{name: "alpha", errs: []error{
		domain.NewTerminalVenueError("alpha", "place_order", errors.New("insufficient balance")),
	}}
	sell := &fakeExecutor{name: "beta"}
	e := newExecutor(buy, sell, Config{MaxRetries: 3})

	res := e.Execute(context.Background(), testOpp(), 1)

	assert.Equal(t, 1, buy.callCount(), "terminal errors must not be retried")
	assert.Equal(t, domain.FillStatusRejected, res.BuyFill.Status)
	assert.Equal(t, domain.OutcomePartialSellOnly, res.Outcome)
}

func TestExecuteExhaustsRetryBudget(t *testing.T) {
	transient := domain.NewTransientVenueError("alpha", "place_order", errors.New("rate limited"))
	buy := &fakeExecutor{name: "alpha", errs: []error{transient, transient, transient, transient}}
	sell := &fakeExecutor{name: "beta"}
	e := newExecutor(buy, sell, Config{MaxRetries: 1, LegTimeout: 5 * time.Second})

	res := e.Execute(context.Background(), testOpp(), 1)

	assert.Equal(t, 2, buy.callCount(), "initial attempt plus one retry")
	assert.Equal(t, domain.FillStatusError, res.BuyFill.Status)
	assert.Equal(t, domain.OutcomePartialSellOnly, res.Outcome)
}

func TestExecuteLegTimeoutLeavesOtherLegAlone(t *testing.T) {
	// The buy leg hangs past its timeout; the sell leg fills normally. The
	// sell leg must not be cancelled and the outcome reports the naked sell.
	buy := &fakeExecutor{name: "alpha", delay: 500 * time.Millisecond}
	sell := &fakeExecutor{name: "beta"}
	e := newExecutor(buy, sell, Config{LegTimeout: 100 * time.Millisecond})

	res := e.Execute(context.Background(), testOpp(), 1)

	assert.Equal(t, domain.FillStatusTimeout, res.BuyFill.Status)
	assert.Equal(t, domain.FillStatusFilled, res.SellFill.Status)
	assert.Equal(t, domain.OutcomePartialSellOnly, res.Outcome)
	assert.True(t, res.Outcome.NakedLeg())
}

func TestExecuteTimeoutOutcomeWhenNothingFilled(t *testing.T) {
	buy := &fakeExecutor{name: "alpha", delay: 500 * time.Millisecond}
	sell := &fakeExecutor{name: "beta", delay: 500 * time.Millisecond}
	e := newExecutor(buy, sell, Config{LegTimeout: 100 * time.Millisecond})

	res := e.Execute(context.Background(), testOpp(), 1)

	assert.Equal(t, domain.OutcomeTimeout, res.Outcome)
	assert.False(t, res.Outcome.NakedLeg())
}

func TestExecuteUnregisteredVenue(t *testing.T) {
	sell := &fakeExecutor{name: "beta"}
	reg := venue.NewRegistry()
	reg.RegisterExecutor(sell)
	e := New(reg, Config{LegTimeout: time.Second}, testLogger())

	res := e.Execute(context.Background(), testOpp(), 1)

	assert.Equal(t, domain.FillStatusError, res.BuyFill.Status)
	assert.Equal(t, domain.OutcomePartialSellOnly, res.Outcome)
}

func TestClassifyPartialFills(t *testing.T) {
	partial := domain.Fill{Status: domain.FillStatusPartial, Quantity: 0.5}
	filled := domain.Fill{Status: domain.FillStatusFilled, Quantity: 1}
	failed := domain.Fill{Status: domain.FillStatusRejected}

	assert.Equal(t, domain.OutcomeBothFilled, classify(partial, filled))
	assert.Equal(t, domain.OutcomePartialBuyOnly, classify(partial, failed))
	assert.Equal(t, domain.OutcomePartialSellOnly, classify(failed, partial))
	assert.Equal(t, domain.OutcomeBothFailed, classify(failed, failed))

	require.True(t, domain.Fill{Status: domain.FillStatusPartial, Quantity: 0.5}.Filled())
	assert.False(t, domain.Fill{Status: domain.FillStatusPartial}.Filled(), "zero quantity partial is not a fill")
}
