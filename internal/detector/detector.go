// Package detector computes cross-venue spreads from the price table and
// emits ranked candidate opportunities.
package detector

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/monitor"
)

// Config holds the detection thresholds.
type Config struct {
	MinSpreadPct float64
	MinVolume    float64
	// Staleness mirrors the monitor's threshold; it drives the confidence
	// decay, freshness filtering itself happens in the monitor.
	Staleness time.Duration
}

// Detector scans fresh snapshots for every ordered venue pair and keeps the
// pairs whose spread and volume clear the configured minimums.
type Detector struct {
	monitor *monitor.Monitor
	fills   *FillRateTracker
	cfg     Config
	logger  *slog.Logger
}

// New creates a Detector reading from mon. fills may be shared with the
// execution layer so realized outcomes feed back into confidence scores.
func New(mon *monitor.Monitor, fills *FillRateTracker, cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		monitor: mon,
		fills:   fills,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "detector")),
	}
}

// Detect returns all qualifying opportunities for a symbol, best spread
// first. With fewer than two fresh venues it returns an empty list, not an
// error. One opportunity is emitted per qualifying ordered pair, not just
// the single best pair; risk gating downstream may approve several at once
// when capital allows.
func (d *Detector) Detect(symbol string) []domain.Opportunity {
	snaps := d.monitor.Query(symbol)
	if len(snaps) < 2 {
		return nil
	}

	now := time.Now().UTC()
	// candidate pairs the opportunity with the age of its older leg, taken
	// from the queried snapshots so ranking is stable against concurrent
	// ingest.
	type candidate struct {
		opp domain.Opportunity
		age time.Duration
	}
	var cands []candidate
	for _, buy := range snaps {
		if !buy.Valid() {
			continue
		}
		for _, sell := range snaps {
			if sell.Venue == buy.Venue || !sell.Valid() {
				continue
			}
			spreadAbs := sell.Bid - buy.Ask
			if buy.Ask <= 0 {
				continue
			}
			spreadPct := spreadAbs / buy.Ask
			if spreadPct < d.cfg.MinSpreadPct {
				continue
			}
			volume := minFloat(buy.AskVolume, sell.BidVolume)
			if volume < d.cfg.MinVolume {
				continue
			}

			opp := domain.Opportunity{
				ID:             uuid.New().String(),
				Symbol:         symbol,
				BuyVenue:       buy.Venue,
				SellVenue:      sell.Venue,
				BuyPrice:       buy.Ask,
				SellPrice:      sell.Bid,
				SpreadAbs:      spreadAbs,
				SpreadPct:      spreadPct,
				TradableVolume: volume,
				DetectedAt:     now,
				Confidence:     d.confidence(buy, sell, now),
			}
			cands = append(cands, candidate{
				opp: opp,
				age: maxDuration(buy.Age(now), sell.Age(now)),
			})

			d.logger.Debug("opportunity detected",
				slog.String("symbol", symbol),
				slog.String("buy_venue", buy.Venue),
				slog.String("sell_venue", sell.Venue),
				slog.Float64("spread_pct", spreadPct),
				slog.Float64("volume", volume),
				slog.Float64("confidence", opp.Confidence),
			)
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].opp.SpreadPct != cands[j].opp.SpreadPct {
			return cands[i].opp.SpreadPct > cands[j].opp.SpreadPct
		}
		// Identical spread: prefer the pair with the freshest legs, then
		// lexical venue order for determinism.
		if cands[i].age != cands[j].age {
			return cands[i].age < cands[j].age
		}
		if cands[i].opp.BuyVenue != cands[j].opp.BuyVenue {
			return cands[i].opp.BuyVenue < cands[j].opp.BuyVenue
		}
		return cands[i].opp.SellVenue < cands[j].opp.SellVenue
	})

	opps := make([]domain.Opportunity, len(cands))
	for i, c := range cands {
		opps[i] = c.opp
	}
	return opps
}

// confidence scores an opportunity in [0,1]: a linear staleness decay on the
// older leg multiplied by the venue pair's historical fill rate.
func (d *Detector) confidence(buy, sell domain.PriceSnapshot, now time.Time) float64 {
	age := maxDuration(buy.Age(now), sell.Age(now))
	freshness := 1.0 - float64(age)/float64(d.cfg.Staleness)
	if freshness < 0 {
		freshness = 0
	}
	if freshness > 1 {
		freshness = 1
	}
	rate := 1.0
	if d.fills != nil {
		rate = d.fills.Rate(buy.Venue + "->" + sell.Venue)
	}
	return freshness * rate
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
