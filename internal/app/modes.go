package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/detector"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/engine"
	"github.com/alanyoungcy/crossarb/internal/executor"
	"github.com/alanyoungcy/crossarb/internal/monitor"
	"github.com/alanyoungcy/crossarb/internal/profit"
	"github.com/alanyoungcy/crossarb/internal/risk"
	"github.com/alanyoungcy/crossarb/internal/venue"
	"github.com/alanyoungcy/crossarb/internal/venue/rest"
	"github.com/alanyoungcy/crossarb/internal/venue/sim"
	"github.com/alanyoungcy/crossarb/internal/venue/ws"
)

// Per-venue order rate limit applied to REST executors.
const (
	orderRateLimit  = 10
	orderRateWindow = time.Second
)

// archiveInterval is how often the archiver sweeps old executions.
const archiveInterval = 6 * time.Hour

// TradeMode runs the full pipeline with live order execution.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.buildEngine(ctx, deps, false, false)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, eng)
}

// PaperMode runs the full pipeline against live price feeds but fills orders
// on simulated executors, so strategy behavior can be observed without
// risking capital.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.buildEngine(ctx, deps, true, false)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, eng)
}

// MonitorMode detects and records opportunities without gating or executing
// them.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	eng, err := a.buildEngine(ctx, deps, false, true)
	if err != nil {
		return err
	}
	return a.runEngine(ctx, deps, eng)
}

// runEngine starts the engine and, when archival is enabled, the periodic
// archiver alongside it.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, eng *engine.Engine) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(ctx)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			err := deps.Archiver.RunPeriodic(ctx, archiveInterval, retention)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	return g.Wait()
}

// buildEngine assembles the pipeline stages for one run.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies, paperFills, monitorOnly bool) (*engine.Engine, error) {
	logger := a.logger
	notifier := deps.Notifier
	staleness := a.cfg.Detector.StalenessThreshold()

	mon := monitor.New(staleness, logger,
		monitor.WithQuoteCache(deps.QuoteCache),
		monitor.WithStalenessHandler(func(w domain.StalenessWarning) {
			if err := notifier.VenueStale(context.Background(), w); err != nil {
				logger.Debug("staleness alert failed", slog.String("error", err.Error()))
			}
		}),
	)

	fills := detector.NewFillRateTracker()
	det := detector.New(mon, fills, detector.Config{
		MinSpreadPct: a.cfg.Detector.MinSpreadPct,
		MinVolume:    a.cfg.Detector.MinVolume,
		Staleness:    staleness,
	}, logger)

	// The halt handler reads the manager's own state, so bind it through a
	// variable assigned right after construction. The handler cannot fire
	// before the first Evaluate or Settle call.
	var riskMgr *risk.Manager
	riskOpts := []risk.Option{risk.WithHaltHandler(func() {
		st := riskMgr.State()
		if err := notifier.DailyLossHalt(context.Background(), st.TodayRealizedPnL, a.cfg.Risk.MaxDailyLoss); err != nil {
			logger.Debug("halt alert failed", slog.String("error", err.Error()))
		}
	})}

	// Seed today's realized PnL from the store, so a restart cannot erase a
	// daily-loss halt or reset the loss accounting mid-day.
	if deps.ExecutionStore != nil {
		since := risk.DayStart(time.Now().UTC(), a.cfg.Risk.ResetHourUTC)
		pnl, err := deps.ExecutionStore.SumNetProfit(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("app: seeding daily pnl: %w", err)
		}
		if pnl != 0 {
			logger.Info("daily pnl restored from store", slog.Float64("today_pnl", pnl))
		}
		riskOpts = append(riskOpts, risk.WithOpeningPnL(pnl))
	}

	riskMgr = risk.NewManager(risk.Config{
		MaxDailyTrades:         a.cfg.Risk.MaxDailyTrades,
		MaxDailyLoss:           a.cfg.Risk.MaxDailyLoss,
		MaxPositionSize:        a.cfg.Risk.MaxPositionSize,
		MaxCorrelatedPositions: a.cfg.Risk.MaxCorrelatedPositions,
		MinTradeQuantity:       a.cfg.Risk.MinTradeQuantity,
		ResetHourUTC:           a.cfg.Risk.ResetHourUTC,
		CorrelationGroups:      a.cfg.Risk.CorrelationGroups,
	}, logger, riskOpts...)

	registry, err := a.buildRegistry(deps, paperFills)
	if err != nil {
		return nil, err
	}

	// Warm the price table from the cache mirror before the feeds connect.
	venueNames := make([]string, 0, len(a.cfg.Venues))
	for _, vc := range a.cfg.Venues {
		venueNames = append(venueNames, vc.Name)
	}
	mon.Restore(ctx, venueNames, a.cfg.Engine.Symbols)

	exec := executor.New(registry, executor.Config{
		LegTimeout: a.cfg.Execution.LegTimeout(),
		MaxRetries: a.cfg.Execution.MaxRetries,
	}, logger)

	calcOpts := []profit.Option{
		profit.WithSignalBus(deps.SignalBus),
		profit.WithNotifier(notifier),
	}
	if deps.ExecutionStore != nil {
		calcOpts = append(calcOpts, profit.WithStore(deps.ExecutionStore))
	}
	calc := profit.New(riskMgr, logger, calcOpts...)

	return engine.New(engine.Config{
		Symbols:       a.cfg.Engine.Symbols,
		CycleInterval: a.cfg.Engine.CycleInterval.Duration,
		Workers:       a.cfg.Engine.Workers,
		RecentLimit:   a.cfg.Engine.RecentLimit,
		MonitorOnly:   monitorOnly,
	}, mon, det, riskMgr, exec, calc, fills, registry, logger), nil
}

// buildRegistry registers venue adapters per the configuration. With
// paperFills set, every venue's order flow is routed to a simulated executor
// while live price feeds stay attached.
func (a *App) buildRegistry(deps *Dependencies, paperFills bool) (*venue.Registry, error) {
	registry := venue.NewRegistry()
	for i, vc := range a.cfg.Venues {
		seed := int64(i + 1)

		switch vc.Kind {
		case "sim":
			sv := sim.New(simConfig(vc), seed)
			registry.RegisterSource(sv)
			registry.RegisterExecutor(sv)

		case "ws":
			registry.RegisterSource(ws.NewFeed(vc.Name, vc.WsURL, a.logger))
			if paperFills {
				registry.RegisterExecutor(sim.New(simConfig(vc), seed))
			}

		case "rest":
			exec, err := a.buildExecutor(vc, deps, paperFills, seed)
			if err != nil {
				return nil, err
			}
			registry.RegisterExecutor(exec)

		case "full":
			registry.RegisterSource(ws.NewFeed(vc.Name, vc.WsURL, a.logger))
			exec, err := a.buildExecutor(vc, deps, paperFills, seed)
			if err != nil {
				return nil, err
			}
			registry.RegisterExecutor(exec)
		}
	}
	return registry, nil
}

// buildExecutor creates the order executor for one venue: a simulated one
// under paper fills, otherwise an HMAC-signed REST client.
func (a *App) buildExecutor(vc config.VenueConfig, deps *Dependencies, paperFills bool, seed int64) (domain.OrderExecutor, error) {
	if paperFills {
		return sim.New(simConfig(vc), seed), nil
	}

	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:     vc.ApiSecret,
		EncryptedPath: vc.EncryptedKeyPath,
		Password:      vc.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: venue %s credentials: %w", vc.Name, err)
	}

	auth := &crypto.HMACAuth{Key: vc.ApiKey, Secret: secret}
	var opts []rest.Option
	if deps.RateLimiter != nil {
		opts = append(opts, rest.WithRateLimiter(deps.RateLimiter, orderRateLimit, orderRateWindow))
	}
	return rest.NewClient(vc.Name, vc.RestURL, auth, a.logger, opts...), nil
}

// simConfig maps a venue's sim tuning fields onto the simulator config.
func simConfig(vc config.VenueConfig) sim.Config {
	return sim.Config{
		Name:         vc.Name,
		BasePrice:    vc.SimBasePrice,
		SpreadBps:    vc.SimSpreadBps,
		DriftBps:     vc.SimDriftBps,
		TickInterval: time.Duration(vc.SimTickIntervalMs) * time.Millisecond,
		SlippageBps:  vc.SimSlippageBps,
		FeeBps:       vc.SimFeeBps,
		Latency:      time.Duration(vc.SimLatencyMs) * time.Millisecond,
		FailEvery:    vc.SimFailEvery,
	}
}
