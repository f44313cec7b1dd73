// Package sim provides an in-process simulated venue used by paper mode and
// the test suite. It emits a random-walk quote stream and fills orders with
// configurable slippage, fees, latency, and failure injection.
package sim

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Config tunes the simulated venue.
type Config struct {
	Name string
	// BasePrice seeds the random walk per symbol.
	BasePrice float64
	// SpreadBps is the half-spread around the mid in basis points.
	SpreadBps float64
	// DriftBps biases the walk so two sim venues diverge and cross.
	DriftBps float64
	// TickInterval is the quote emission period.
	TickInterval time.Duration
	// SlippageBps shifts fills away from the price hint.
	SlippageBps float64
	// FeeBps is charged on the fill notional.
	FeeBps float64
	// Latency delays each order placement.
	Latency time.Duration
	// FailEvery rejects every Nth order with a transient error; 0 disables.
	FailEvery int
}

// Venue is a simulated exchange implementing both the price source and
// order executor sides.
type Venue struct {
	cfg Config
	rng *rand.Rand

	mu     sync.Mutex
	mids   map[string]float64
	orders int
}

var (
	_ domain.PriceSource   = (*Venue)(nil)
	_ domain.OrderExecutor = (*Venue)(nil)
)

// New creates a simulated venue. seed fixes the random walk for
// reproducible runs.
func New(cfg Config, seed int64) *Venue {
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100.0
	}
	if cfg.SpreadBps <= 0 {
		cfg.SpreadBps = 5
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 200 * time.Millisecond
	}
	return &Venue{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(seed)),
		mids: make(map[string]float64),
	}
}

// Venue returns the configured venue name.
func (v *Venue) Venue() string { return v.cfg.Name }

// Stream emits a random-walk quote per symbol every tick until ctx is done.
func (v *Venue) Stream(ctx context.Context, symbols []string, out chan<- domain.PriceSnapshot) error {
	ticker := time.NewTicker(v.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UTC()
			for _, sym := range symbols {
				snap := v.quote(sym, now)
				select {
				case out <- snap:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// quote advances the symbol's random walk one step and returns the quote.
func (v *Venue) quote(symbol string, now time.Time) domain.PriceSnapshot {
	v.mu.Lock()
	mid, ok := v.mids[symbol]
	if !ok {
		mid = v.cfg.BasePrice
	}
	// Random walk with a configurable drift so two venues diverge.
	step := (v.rng.Float64() - 0.5) * mid * 0.001
	drift := mid * v.cfg.DriftBps / 10_000
	mid = math.Max(mid+step+drift, 0.01)
	v.mids[symbol] = mid
	v.mu.Unlock()

	half := mid * v.cfg.SpreadBps / 10_000
	return domain.PriceSnapshot{
		Venue:     v.cfg.Name,
		Symbol:    symbol,
		Bid:       mid - half,
		Ask:       mid + half,
		BidVolume: 1 + v.rng.Float64()*10,
		AskVolume: 1 + v.rng.Float64()*10,
		Timestamp: now,
	}
}

// PlaceOrder fills the order at the price hint adjusted for slippage, after
// the configured latency. Every FailEvery-th order fails with a transient
// error to exercise the retry path.
func (v *Venue) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.VenueFill, error) {
	if v.cfg.Latency > 0 {
		select {
		case <-ctx.Done():
			return domain.VenueFill{}, domain.NewTransientVenueError(v.cfg.Name, "place_order", ctx.Err())
		case <-time.After(v.cfg.Latency):
		}
	}

	v.mu.Lock()
	v.orders++
	n := v.orders
	v.mu.Unlock()

	if v.cfg.FailEvery > 0 && n%v.cfg.FailEvery == 0 {
		return domain.VenueFill{}, domain.NewTransientVenueError(v.cfg.Name, "place_order", domain.ErrWSDisconnect)
	}

	// Slippage always moves against the taker.
	slip := req.PriceHint * v.cfg.SlippageBps / 10_000
	price := req.PriceHint
	if req.Side == domain.LegSideBuy {
		price += slip
	} else {
		price -= slip
	}

	fill := domain.VenueFill{
		Status:   domain.FillStatusFilled,
		Price:    price,
		Quantity: req.Quantity,
		Fee:      price * req.Quantity * v.cfg.FeeBps / 10_000,
	}
	return fill, nil
}
