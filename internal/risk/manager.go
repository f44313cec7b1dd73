// Package risk gates candidate opportunities against exposure, daily-loss,
// and correlation limits, and reserves capital for approved trades.
package risk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Config holds the tunable risk limits.
type Config struct {
	MaxDailyTrades         int
	MaxDailyLoss           float64 // positive number; halt when realized PnL <= -MaxDailyLoss
	MaxPositionSize        float64 // per-symbol notional cap
	MaxCorrelatedPositions int
	MinTradeQuantity       float64
	ResetHourUTC           int
	// CorrelationGroups maps group name -> member symbols. Symbols outside
	// every group form their own implicit group and never trip the
	// correlation check.
	CorrelationGroups map[string][]string
}

// reservation tracks capital held for one approved, not yet settled
// opportunity.
type reservation struct {
	symbol   string
	notional float64
}

// Manager owns the mutable risk state. Every mutation goes through a single
// mutex so check-then-reserve is atomic end to end: two opportunities can
// never both pass the exposure check against the same stale headroom. The
// state is deliberately one lock, not per-field locks, because the checks
// are cross-field.
type Manager struct {
	cfg         Config
	logger      *slog.Logger
	symbolGroup map[string]string // symbol -> correlation group name

	mu           sync.Mutex
	openValue    float64            // sum of all outstanding reservations
	todayPnL     float64            // realized PnL since last daily reset (negative = loss)
	todayTrades  int                // approved trades since last daily reset
	exposure     map[string]float64 // per-symbol reserved notional
	reservations map[string]reservation
	halted       bool
	day          time.Time // start of the current accounting day (UTC)

	onHalt func() // invoked once per halt, outside the lock
}

// Option configures a Manager.
type Option func(*Manager)

// WithHaltHandler registers fn to run when the daily loss limit halts the
// engine.
func WithHaltHandler(fn func()) Option {
	return func(m *Manager) { m.onHalt = fn }
}

// WithOpeningPnL seeds today's realized PnL from the execution store, so a
// process restart resumes the daily accounting instead of zeroing it. A
// seeded loss at or past the daily limit restores the halt immediately; the
// halt handler is not fired for it, the breach was already alerted when it
// happened.
func WithOpeningPnL(pnl float64) Option {
	return func(m *Manager) {
		m.todayPnL = pnl
		if pnl <= -m.cfg.MaxDailyLoss {
			m.halted = true
		}
	}
}

// NewManager creates a Manager with the given limits.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "risk_manager")),
		symbolGroup:  make(map[string]string),
		exposure:     make(map[string]float64),
		reservations: make(map[string]reservation),
		day:          DayStart(time.Now().UTC(), cfg.ResetHourUTC),
	}
	for group, symbols := range cfg.CorrelationGroups {
		for _, sym := range symbols {
			m.symbolGroup[sym] = group
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate runs the fixed sequence of risk checks against the opportunity
// and, on approval, reserves the notional before returning. The check order
// is fixed so rejection reasons are deterministic:
//
//  1. daily trade count
//  2. daily loss limit (engine-wide halt)
//  3. per-symbol position limit (shrinks quantity to the remaining headroom)
//  4. correlated open positions
//
// The reservation is released by Settle exactly once per opportunity,
// whatever the execution outcome.
func (m *Manager) Evaluate(opp domain.Opportunity) domain.RiskDecision {
	m.mu.Lock()
	m.maybeResetLocked(time.Now().UTC())

	// 1. Daily trade count.
	if m.todayTrades >= m.cfg.MaxDailyTrades {
		m.mu.Unlock()
		return m.reject(opp, domain.RejectDailyTradeLimit, false)
	}

	// 2. Daily loss limit. Breaching it suspends all new executions until
	// the next reset, so the decision is flagged as a halt rather than a
	// per-opportunity rejection.
	if m.halted || m.todayPnL <= -m.cfg.MaxDailyLoss {
		justHalted := !m.halted
		m.halted = true
		m.mu.Unlock()
		if justHalted {
			m.fireHalt()
		}
		return m.reject(opp, domain.RejectDailyLossLimit, true)
	}

	// 3. Per-symbol position limit. Shrink to the remaining headroom when
	// the full tradable volume would breach it.
	qty := opp.TradableVolume
	headroom := m.cfg.MaxPositionSize - m.exposure[opp.Symbol]
	if opp.Notional(qty) > headroom {
		if opp.BuyPrice > 0 {
			qty = headroom / opp.BuyPrice
		} else {
			qty = 0
		}
		if qty < m.cfg.MinTradeQuantity {
			m.mu.Unlock()
			return m.reject(opp, domain.RejectPositionLimit, false)
		}
	}

	// 4. Correlated open positions in the same group.
	if m.correlatedOpenLocked(opp.Symbol) >= m.cfg.MaxCorrelatedPositions {
		m.mu.Unlock()
		return m.reject(opp, domain.RejectCorrelationLimit, false)
	}

	// Approved: reserve atomically with the decision.
	notional := opp.Notional(qty)
	m.exposure[opp.Symbol] += notional
	m.openValue += notional
	m.todayTrades++
	m.reservations[opp.ID] = reservation{symbol: opp.Symbol, notional: notional}
	m.mu.Unlock()

	m.logger.Info("opportunity approved",
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol),
		slog.Float64("quantity", qty),
		slog.Float64("notional", notional),
	)
	return domain.RiskDecision{Opportunity: opp, Approved: true, ApprovedQuantity: qty}
}

// Settle releases the reservation for the opportunity and folds the realized
// PnL into the daily accounting. It must be called exactly once per approved
// opportunity regardless of execution outcome; a reservation must never
// leak. Settling an unknown opportunity is a no-op for exposure and only
// records the PnL.
func (m *Manager) Settle(profit domain.RealizedProfit) {
	m.mu.Lock()
	m.maybeResetLocked(time.Now().UTC())

	if res, ok := m.reservations[profit.OpportunityID]; ok {
		delete(m.reservations, profit.OpportunityID)
		m.exposure[res.symbol] -= res.notional
		if m.exposure[res.symbol] < 1e-9 {
			m.exposure[res.symbol] = 0
		}
		m.openValue -= res.notional
		if m.openValue < 1e-9 {
			m.openValue = 0
		}
	}
	m.todayPnL += profit.Net

	justHalted := false
	if !m.halted && m.todayPnL <= -m.cfg.MaxDailyLoss {
		m.halted = true
		justHalted = true
	}
	pnl := m.todayPnL
	m.mu.Unlock()

	m.logger.Info("settlement applied",
		slog.String("opp_id", profit.OpportunityID),
		slog.String("symbol", profit.Symbol),
		slog.Float64("net", profit.Net),
		slog.Float64("today_pnl", pnl),
	)
	if justHalted {
		m.fireHalt()
	}
}

// Halted reports whether the daily loss limit has suspended new executions.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Exposure returns the currently reserved notional for a symbol.
func (m *Manager) Exposure(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exposure[symbol]
}

// Snapshot is a point-in-time copy of the risk state for inspection.
type Snapshot struct {
	OpenPositionValue float64
	TodayRealizedPnL  float64
	TodayTradeCount   int
	OpenReservations  int
	Halted            bool
}

// State returns a copy of the current risk state.
func (m *Manager) State() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		OpenPositionValue: m.openValue,
		TodayRealizedPnL:  m.todayPnL,
		TodayTradeCount:   m.todayTrades,
		OpenReservations:  len(m.reservations),
		Halted:            m.halted,
	}
}

// ResetDaily clears the daily loss and trade counters and lifts the halt.
// Open reservations survive the reset; they are released by settlement.
func (m *Manager) ResetDaily() {
	m.mu.Lock()
	m.resetLocked(time.Now().UTC())
	m.mu.Unlock()
	m.logger.Info("daily risk counters reset")
}

// reject logs and builds a rejection decision.
func (m *Manager) reject(opp domain.Opportunity, reason domain.RejectReason, halted bool) domain.RiskDecision {
	level := slog.LevelInfo
	if halted {
		level = slog.LevelWarn
	}
	m.logger.Log(context.Background(), level, "opportunity rejected",
		slog.String("opp_id", opp.ID),
		slog.String("symbol", opp.Symbol),
		slog.String("reason", string(reason)),
	)
	return domain.RiskDecision{
		Opportunity:     opp,
		Approved:        false,
		RejectionReason: reason,
		Halted:          halted,
	}
}

// correlatedOpenLocked counts symbols other than sym in sym's correlation
// group that currently hold reserved exposure. Caller must hold m.mu.
func (m *Manager) correlatedOpenLocked(sym string) int {
	group, ok := m.symbolGroup[sym]
	if !ok {
		return 0
	}
	n := 0
	for other, g := range m.symbolGroup {
		if other == sym || g != group {
			continue
		}
		if m.exposure[other] > 0 {
			n++
		}
	}
	return n
}

// maybeResetLocked rolls the daily counters when the accounting day has
// changed. Caller must hold m.mu.
func (m *Manager) maybeResetLocked(now time.Time) {
	if day := DayStart(now, m.cfg.ResetHourUTC); day.After(m.day) {
		m.resetLocked(now)
	}
}

// resetLocked clears daily counters. Caller must hold m.mu.
func (m *Manager) resetLocked(now time.Time) {
	m.todayPnL = 0
	m.todayTrades = 0
	m.halted = false
	m.day = DayStart(now, m.cfg.ResetHourUTC)
}

func (m *Manager) fireHalt() {
	m.logger.Warn("daily loss limit breached, suspending new executions")
	if m.onHalt != nil {
		m.onHalt()
	}
}

// DayStart returns the beginning of the accounting day containing now, with
// the day boundary at resetHour UTC. Callers seeding opening PnL query the
// execution store from this instant.
func DayStart(now time.Time, resetHour int) time.Time {
	shifted := now.Add(-time.Duration(resetHour) * time.Hour)
	y, mo, d := shifted.Date()
	return time.Date(y, mo, d, resetHour, 0, 0, 0, time.UTC)
}
