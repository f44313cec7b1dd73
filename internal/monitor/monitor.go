// Package monitor aggregates per-venue price snapshots into a single price
// table with staleness tracking. It is the only owner of the table; venue
// adapters push snapshots in through Ingest and the detector reads fresh
// quotes out through Query.
package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// tableKey identifies one (venue, symbol) slot in the price table.
type tableKey struct {
	venue  string
	symbol string
}

// Monitor maintains the latest snapshot per (venue, symbol). Entries are
// created or overwritten on ingest and never deleted; stale entries age out
// logically via their timestamp. The table is bounded by the fixed
// venue x symbol cardinality.
type Monitor struct {
	staleness time.Duration
	logger    *slog.Logger

	mu     sync.RWMutex
	table  map[tableKey]domain.PriceSnapshot
	warned map[tableKey]bool // staleness warning already emitted since last update

	// cache, when set, mirrors accepted snapshots and seeds the table on
	// restart via Restore.
	cache domain.QuoteCache
	// mirrorCh feeds the quote cache without ever blocking the ingest
	// path; full buffer drops the mirror write, never the ingest.
	mirrorCh chan domain.PriceSnapshot

	// onStale, when set, receives staleness warnings detected lazily during
	// Query.
	onStale func(domain.StalenessWarning)
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithQuoteCache mirrors every accepted snapshot into cache. Writes are
// asynchronous and best-effort.
func WithQuoteCache(cache domain.QuoteCache) Option {
	return func(m *Monitor) {
		m.cache = cache
		m.mirrorCh = make(chan domain.PriceSnapshot, 1024)
		go m.runMirror(cache)
	}
}

// WithStalenessHandler registers fn to receive staleness warnings.
func WithStalenessHandler(fn func(domain.StalenessWarning)) Option {
	return func(m *Monitor) { m.onStale = fn }
}

// New creates a Monitor with the given staleness threshold.
func New(staleness time.Duration, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		staleness: staleness,
		logger:    logger.With(slog.String("component", "price_monitor")),
		table:     make(map[tableKey]domain.PriceSnapshot),
		warned:    make(map[tableKey]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ingest upserts a snapshot into the price table keyed by (venue, symbol).
// The stored entry is only overwritten when snap carries a strictly newer
// timestamp, so out-of-order delivery from slow adapters cannot regress the
// table. Ingest is idempotent: replaying an identical snapshot leaves the
// table unchanged. It is safe under concurrent calls from many adapters.
// The return value reports whether the table was updated.
func (m *Monitor) Ingest(snap domain.PriceSnapshot) bool {
	key := tableKey{venue: snap.Venue, symbol: snap.Symbol}

	m.mu.Lock()
	prev, exists := m.table[key]
	if exists && !snap.Timestamp.After(prev.Timestamp) {
		m.mu.Unlock()
		return false
	}
	m.table[key] = snap
	m.warned[key] = false
	m.mu.Unlock()

	if m.mirrorCh != nil {
		select {
		case m.mirrorCh <- snap:
		default:
			// Mirror buffer full; the cache is a best-effort replica.
		}
	}
	return true
}

// Query returns all fresh (non-stale) snapshots across venues for a symbol,
// sorted by venue name for determinism. Entries that crossed the staleness
// threshold since their last update trigger a single staleness warning,
// detected lazily here rather than by per-entry timers.
func (m *Monitor) Query(symbol string) []domain.PriceSnapshot {
	now := time.Now().UTC()
	var fresh []domain.PriceSnapshot
	var warnings []domain.StalenessWarning

	m.mu.Lock()
	for key, snap := range m.table {
		if key.symbol != symbol {
			continue
		}
		if snap.Stale(now, m.staleness) {
			if !m.warned[key] {
				m.warned[key] = true
				warnings = append(warnings, domain.StalenessWarning{
					Venue:      key.venue,
					Symbol:     key.symbol,
					LastUpdate: snap.Timestamp,
					Age:        snap.Age(now),
				})
			}
			continue
		}
		fresh = append(fresh, snap)
	}
	m.mu.Unlock()

	for _, w := range warnings {
		m.logger.Warn("venue data went stale",
			slog.String("venue", w.Venue),
			slog.String("symbol", w.Symbol),
			slog.Duration("age", w.Age),
		)
		if m.onStale != nil {
			m.onStale(w)
		}
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Venue < fresh[j].Venue })
	return fresh
}

// Restore preloads the table from the quote cache mirror for every
// (venue, symbol) combination, so a restarted process resumes from the last
// mirrored quotes instead of an empty table. Missing entries and cache
// errors are skipped; entries that went stale while the process was down
// load anyway and age out through Query as usual. Returns the number of
// entries loaded.
func (m *Monitor) Restore(ctx context.Context, venues, symbols []string) int {
	if m.cache == nil {
		return 0
	}
	loaded := 0
	for _, venue := range venues {
		for _, symbol := range symbols {
			snap, err := m.cache.GetQuote(ctx, venue, symbol)
			if err != nil {
				continue
			}
			if m.Ingest(snap) {
				loaded++
			}
		}
	}
	if loaded > 0 {
		m.logger.Info("price table restored from cache", slog.Int("entries", loaded))
	}
	return loaded
}

// Snapshot returns the stored entry for (venue, symbol) regardless of
// staleness, for diagnostics.
func (m *Monitor) Snapshot(venue, symbol string) (domain.PriceSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.table[tableKey{venue: venue, symbol: symbol}]
	return snap, ok
}

// Len returns the number of (venue, symbol) entries in the table.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.table)
}

// runMirror drains mirrorCh into the quote cache. Runs on its own goroutine
// for the life of the process; cache errors are logged and dropped.
func (m *Monitor) runMirror(cache domain.QuoteCache) {
	for snap := range m.mirrorCh {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := cache.SetQuote(ctx, snap); err != nil {
			m.logger.Debug("quote cache write failed",
				slog.String("venue", snap.Venue),
				slog.String("symbol", snap.Symbol),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}
