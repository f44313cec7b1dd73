package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/monitor"
	"github.com/alanyoungcy/crossarb/internal/profit"
	"github.com/alanyoungcy/crossarb/internal/risk"
	"github.com/alanyoungcy/crossarb/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFeed replays a fixed quote at a short interval, stamping each snapshot
// with the current time so it never goes stale.
type fakeFeed struct {
	venue string
	bid   float64
	ask   float64
}

func (f *fakeFeed) Venue() string { return f.venue }

func (f *fakeFeed) Stream(ctx context.Context, symbols []string, out chan<- domain.PriceSnapshot) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, sym := range symbols {
				snap := domain.PriceSnapshot{
					Venue:     f.venue,
					Symbol:    sym,
					Bid:       f.bid,
					Ask:       f.ask,
					BidVolume: 10,
					AskVolume: 10,
					Timestamp: time.Now().UTC(),
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// fakeVenueExecutor fills every order at the hinted price.
type fakeVenueExecutor struct {
	name string

	mu    sync.Mutex
	calls int
}

func (f *fakeVenueExecutor) Venue() string { return f.name }

func (f *fakeVenueExecutor) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.VenueFill, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return domain.VenueFill{
		Status:   domain.FillStatusFilled,
		Price:    req.PriceHint,
		Quantity: req.Quantity,
		Fee:      0.01,
	}, nil
}

func (f *fakeVenueExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// chanSettler forwards settlements to the risk manager and echoes each one on
// a channel so the test can observe the pipeline completing.
type chanSettler struct {
	risk    *risk.Manager
	settled chan domain.RealizedProfit
}

func (s *chanSettler) Settle(p domain.RealizedProfit) {
	s.risk.Settle(p)
	select {
	case s.settled <- p:
	default:
	}
}

type testHarness struct {
	engine   *Engine
	settled  chan domain.RealizedProfit
	buyExec  *fakeVenueExecutor
	sellExec *fakeVenueExecutor
}

func newHarness(t *testing.T, monitorOnly bool) *testHarness {
	t.Helper()
	logger := testLogger()

	reg := venue.NewRegistry()
	reg.RegisterSource(&fakeFeed{venue: "alpha", bid: 100.10, ask: 100.20})
	reg.RegisterSource(&fakeFeed{venue: "beta", bid: 100.50, ask: 100.60})
	buyExec := &fakeVenueExecutor{name: "alpha"}
	sellExec := &fakeVenueExecutor{name: "beta"}
	reg.RegisterExecutor(buyExec)
	reg.RegisterExecutor(sellExec)

	mon := monitor.New(5*time.Second, logger)
	fills := detector.NewFillRateTracker()
	det := detector.New(mon, fills, detector.Config{
		MinSpreadPct: 0.001,
		MinVolume:    0.1,
		Staleness:    5 * time.Second,
	}, logger)

	riskMgr := risk.NewManager(risk.Config{
		MaxDailyTrades:         1_000,
		MaxDailyLoss:           100_000,
		MaxPositionSize:        1_000_000,
		MaxCorrelatedPositions: 100,
		MinTradeQuantity:       0.001,
	}, logger)

	settled := make(chan domain.RealizedProfit, 64)
	calc := profit.New(&chanSettler{risk: riskMgr, settled: settled}, logger)

	exec := executor.New(reg, executor.Config{LegTimeout: time.Second}, logger)

	eng := New(Config{
		Symbols:       []string{"BTC-USD"},
		CycleInterval: 20 * time.Millisecond,
		Workers:       2,
		RecentLimit:   100,
		MonitorOnly:   monitorOnly,
	}, mon, det, riskMgr, exec, calc, fills, reg, logger)

	return &testHarness{engine: eng, settled: settled, buyExec: buyExec, sellExec: sellExec}
}

func TestEngineSettlesDetectedOpportunity(t *testing.T) {
	h := newHarness(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	var p domain.RealizedProfit
	select {
	case p = <-h.settled:
	case <-time.After(3 * time.Second):
		t.Fatal("no settlement observed")
	}

	cancel()
	require.NoError(t, <-done, "cancellation is a clean shutdown")

	assert.Equal(t, domain.OutcomeBothFilled, p.Outcome)
	assert.Equal(t, "BTC-USD", p.Symbol)
	assert.Greater(t, p.Net, 0.0, "buying 100.20 and selling 100.50 nets a profit")
	assert.Positive(t, h.buyExec.callCount())
	assert.Positive(t, h.sellExec.callCount())

	recent := h.engine.Recent()
	require.NotEmpty(t, recent)
	assert.Equal(t, "alpha", recent[0].BuyVenue)
	assert.Equal(t, "beta", recent[0].SellVenue)
}

func TestEngineMonitorOnlyNeverTrades(t *testing.T) {
	h := newHarness(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(h.engine.Recent()) > 0
	}, 3*time.Second, 10*time.Millisecond, "opportunities must still be recorded")

	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, h.buyExec.callCount(), "monitor mode must not place orders")
	assert.Zero(t, h.sellExec.callCount())
	assert.Empty(t, h.settled)
	assert.Equal(t, 0, h.engine.RiskState().TodayTradeCount)
}

func TestEngineRecoversFromVenueFeedError(t *testing.T) {
	// A feed returning an error outside shutdown must surface from Run.
	reg := venue.NewRegistry()
	reg.RegisterSource(&failingFeed{})

	logger := testLogger()
	mon := monitor.New(5*time.Second, logger)
	fills := detector.NewFillRateTracker()
	det := detector.New(mon, fills, detector.Config{MinSpreadPct: 0.001, MinVolume: 0.1, Staleness: 5 * time.Second}, logger)
	riskMgr := risk.NewManager(risk.Config{MaxDailyTrades: 10, MaxDailyLoss: 100, MaxPositionSize: 100, MaxCorrelatedPositions: 1, MinTradeQuantity: 0.001}, logger)
	calc := profit.New(riskMgr, logger)
	exec := executor.New(reg, executor.Config{LegTimeout: time.Second}, logger)

	eng := New(Config{
		Symbols:       []string{"BTC-USD"},
		CycleInterval: 20 * time.Millisecond,
		Workers:       1,
	}, mon, det, riskMgr, exec, calc, fills, reg, logger)

	err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venue feed broken")
}

type failingFeed struct{}

func (f *failingFeed) Venue() string { return "broken" }

func (f *failingFeed) Stream(ctx context.Context, symbols []string, out chan<- domain.PriceSnapshot) error {
	return assert.AnError
}
