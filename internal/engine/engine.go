// Package engine runs the coordination cycle: venue feeds flow into the
// price monitor, and a worker pool drives detection, risk gating, execution,
// and settlement per symbol.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/monitor"
	"github.com/alanyoungcy/crossarb/internal/profit"
	"github.com/alanyoungcy/crossarb/internal/risk"
	"github.com/alanyoungcy/crossarb/internal/venue"
)

// Config holds coordination cycle parameters.
type Config struct {
	Symbols       []string
	CycleInterval time.Duration
	Workers       int
	RecentLimit   int
	// MonitorOnly disables risk gating and execution: opportunities are
	// detected, recorded, and logged but never traded.
	MonitorOnly bool
}

// Engine wires the pipeline stages together and owns their goroutines. One
// cycle per symbol runs detect -> evaluate -> execute -> settle; cycles for
// different symbols run concurrently on the worker pool and a failure in one
// symbol's cycle never disturbs another's.
type Engine struct {
	cfg      Config
	monitor  *monitor.Monitor
	detector *detector.Detector
	risk     *risk.Manager
	executor *executor.Executor
	profit   *profit.Calculator
	fills    *detector.FillRateTracker
	venues   *venue.Registry
	recent   *recentRing
	logger   *slog.Logger
}

// New assembles an Engine from its stages.
func New(
	cfg Config,
	mon *monitor.Monitor,
	det *detector.Detector,
	riskMgr *risk.Manager,
	exec *executor.Executor,
	calc *profit.Calculator,
	fills *detector.FillRateTracker,
	venues *venue.Registry,
	logger *slog.Logger,
) *Engine {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 500
	}
	return &Engine{
		cfg:      cfg,
		monitor:  mon,
		detector: det,
		risk:     riskMgr,
		executor: exec,
		profit:   calc,
		fills:    fills,
		venues:   venues,
		recent:   newRecentRing(cfg.RecentLimit),
		logger:   logger.With(slog.String("component", "engine")),
	}
}

// Run starts the venue feeds, the ingest loop, and the cycle workers, then
// blocks until ctx is cancelled or a stage fails terminally.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting",
		slog.Int("symbols", len(e.cfg.Symbols)),
		slog.Int("workers", e.cfg.Workers),
		slog.Duration("cycle_interval", e.cfg.CycleInterval),
		slog.Bool("monitor_only", e.cfg.MonitorOnly),
	)

	g, ctx := errgroup.WithContext(ctx)

	snaps := make(chan domain.PriceSnapshot, 1024)
	// triggers carries symbols whose quotes just changed so their cycle runs
	// ahead of the next tick. Buffered and lossy: a dropped trigger is
	// recovered by the ticker.
	triggers := make(chan string, 256)
	work := make(chan string)
	// cycleDone echoes each symbol back to the dispatcher when its cycle
	// finishes, clearing the inflight mark.
	cycleDone := make(chan string, 256)

	// 1. One streaming goroutine per venue feed.
	for _, src := range e.venues.Sources() {
		src := src
		g.Go(func() error {
			e.logger.Info("starting venue feed", slog.String("venue", src.Venue()))
			err := src.Stream(ctx, e.cfg.Symbols, snaps)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("venue feed %s: %w", src.Venue(), err)
		})
	}

	// 2. Ingest loop: the only writer into the price table.
	g.Go(func() error {
		e.runIngest(ctx, snaps, triggers)
		return nil
	})

	// 3. Cycle dispatcher: ticker plus quote-change triggers feed the pool.
	g.Go(func() error {
		e.runDispatcher(ctx, triggers, work, cycleDone)
		return nil
	})

	// 4. Worker pool.
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case sym := <-work:
					e.safeCycle(ctx, sym)
					select {
					case cycleDone <- sym:
					case <-ctx.Done():
						return nil
					}
				}
			}
		})
	}

	err := g.Wait()
	if err != nil {
		e.logger.Error("engine stopped with error", slog.String("error", err.Error()))
		return err
	}
	e.logger.Info("engine stopped cleanly")
	return nil
}

// Recent returns the most recently detected opportunities, newest first.
func (e *Engine) Recent() []domain.Opportunity {
	return e.recent.list()
}

// RiskState returns a copy of the current risk accounting.
func (e *Engine) RiskState() risk.Snapshot {
	return e.risk.State()
}

// runIngest drains venue snapshots into the monitor and nudges the symbol's
// cycle when the table actually changed.
func (e *Engine) runIngest(ctx context.Context, snaps <-chan domain.PriceSnapshot, triggers chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snaps:
			if !snap.Valid() {
				e.logger.Debug("invalid snapshot dropped",
					slog.String("venue", snap.Venue),
					slog.String("symbol", snap.Symbol),
				)
				continue
			}
			if e.monitor.Ingest(snap) {
				select {
				case triggers <- snap.Symbol:
				default:
					// Trigger queue full; the ticker covers it.
				}
			}
		}
	}
}

// runDispatcher feeds symbols to the worker pool. Every cycle interval all
// symbols are scheduled; in between, quote-change triggers schedule a single
// symbol early. A symbol already queued or running is not queued again, so a
// slow cycle cannot pile up duplicate work for the same symbol.
func (e *Engine) runDispatcher(ctx context.Context, triggers <-chan string, work chan<- string, cycleDone <-chan string) {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	inflight := make(map[string]bool)

	submit := func(sym string) {
		if inflight[sym] {
			return
		}
		select {
		case work <- sym:
			inflight[sym] = true
		default:
			// All workers busy; the next trigger or tick retries.
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sym := <-cycleDone:
			delete(inflight, sym)
		case sym := <-triggers:
			submit(sym)
		case <-ticker.C:
			for _, sym := range e.cfg.Symbols {
				submit(sym)
			}
		}
	}
}

// safeCycle runs one symbol cycle with panic isolation: a bug in one
// symbol's path must not take down the engine.
func (e *Engine) safeCycle(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("cycle panicked",
				slog.String("symbol", symbol),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	e.runCycle(ctx, symbol)
}

// runCycle is one pass of the coordination cycle for a symbol.
func (e *Engine) runCycle(ctx context.Context, symbol string) {
	opps := e.detector.Detect(symbol)
	if len(opps) == 0 {
		return
	}
	e.recent.add(opps)

	if e.cfg.MonitorOnly {
		for _, opp := range opps {
			e.logger.Info("opportunity observed",
				slog.String("symbol", opp.Symbol),
				slog.String("pair", opp.VenuePair()),
				slog.Float64("spread_pct", opp.SpreadPct),
				slog.Float64("confidence", opp.Confidence),
			)
		}
		return
	}

	for _, opp := range opps {
		decision := e.risk.Evaluate(opp)
		if !decision.Approved {
			if decision.Halted {
				// Engine-wide halt: no point evaluating the rest.
				return
			}
			continue
		}

		res := e.executor.Execute(ctx, opp, decision.ApprovedQuantity)
		e.fills.Record(opp.VenuePair(), res.Outcome == domain.OutcomeBothFilled)
		e.profit.Settle(ctx, res)
	}
}
