package detector

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/monitor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDetector(t *testing.T, cfg Config) (*Detector, *monitor.Monitor) {
	t.Helper()
	if cfg.Staleness == 0 {
		cfg.Staleness = 5 * time.Second
	}
	mon := monitor.New(cfg.Staleness, testLogger())
	return New(mon, NewFillRateTracker(), cfg, testLogger()), mon
}

func quote(venue, symbol string, bid, ask, bidVol, askVol float64, ts time.Time) domain.PriceSnapshot {
	return domain.PriceSnapshot{
		Venue:     venue,
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		BidVolume: bidVol,
		AskVolume: askVol,
		Timestamp: ts,
	}
}

func TestDetectCrossVenueSpread(t *testing.T) {
	det, mon := newDetector(t, Config{MinSpreadPct: 0.002, MinVolume: 1})
	now := time.Now().UTC()

	mon.Ingest(quote("alpha", "BTC-USD", 100.10, 100.20, 10, 10, now))
	mon.Ingest(quote("beta", "BTC-USD", 100.50, 100.60, 8, 8, now))

	opps := det.Detect("BTC-USD")
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "alpha", opp.BuyVenue)
	assert.Equal(t, "beta", opp.SellVenue)
	assert.Equal(t, 100.20, opp.BuyPrice)
	assert.Equal(t, 100.50, opp.SellPrice)
	assert.InDelta(t, 0.30, opp.SpreadAbs, 1e-9)
	assert.InDelta(t, 0.30/100.20, opp.SpreadPct, 1e-9)
	assert.Equal(t, 8.0, opp.TradableVolume, "tradable volume is min(buy ask vol, sell bid vol)")
	assert.NotEmpty(t, opp.ID)
	assert.InDelta(t, 1.0, opp.Confidence, 0.05)
}

func TestDetectBelowThreshold(t *testing.T) {
	det, mon := newDetector(t, Config{MinSpreadPct: 0.005, MinVolume: 1})
	now := time.Now().UTC()

	mon.Ingest(quote("alpha", "BTC-USD", 100.10, 100.20, 10, 10, now))
	mon.Ingest(quote("beta", "BTC-USD", 100.50, 100.60, 8, 8, now))

	assert.Empty(t, det.Detect("BTC-USD"))
}

func TestDetectIgnoresStaleVenue(t *testing.T) {
	det, mon := newDetector(t, Config{MinSpreadPct: 0.002, MinVolume: 1})
	now := time.Now().UTC()

	mon.Ingest(quote("alpha", "BTC-USD", 100.10, 100.20, 10, 10, now))
	// The profitable counterparty quote is stale, so no opportunity may be
	// built on it.
	mon.Ingest(quote("beta", "BTC-USD", 100.50, 100.60, 8, 8, now.Add(-10*time.Second)))

	assert.Empty(t, det.Detect("BTC-USD"))
}

func TestDetectNeedsTwoFreshVenues(t *testing.T) {
	det, mon := newDetector(t, Config{MinSpreadPct: 0.0, MinVolume: 0})
	now := time.Now().UTC()

	assert.Empty(t, det.Detect("BTC-USD"), "empty table")

	mon.Ingest(quote("alpha", "BTC-USD", 100.10, 100.20, 10, 10, now))
	assert.Empty(t, det.Detect("BTC-USD"), "one venue is not arbitrage")
}

func TestDetectEmitsAllQualifyingPairs(t *testing.T) {
	det, mon := newDetector(t, Config{MinSpreadPct: 0.001, MinVolume: 1})
	now := time.Now().UTC()

	mon.Ingest(quote("alpha", "BTC-USD", 100.00, 100.10, 10, 10, now))
	mon.Ingest(quote("beta", "BTC-USD", 100.40, 100.50, 10, 10, now))
	mon.Ingest(quote("gamma", "BTC-USD", 100.80, 100.90, 10, 10, now))

	opps := det.Detect("BTC-USD")
	// Qualifying pairs: alpha->beta, alpha->gamma, beta->gamma.
	require.Len(t, opps, 3)

	// Ranked by spread percentage, best first.
	assert.Equal(t, "alpha", opps[0].BuyVenue)
	assert.Equal(t, "gamma", opps[0].SellVenue)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].SpreadPct, opps[i].SpreadPct)
	}
}

func TestDetectTieBreakPrefersFresherPair(t *testing.T) {
	det, mon := newDetector(t, Config{MinSpreadPct: 0.001, MinVolume: 1})
	now := time.Now().UTC()

	// Both buy legs offer the same ask against the same sell leg, so the two
	// pairs carry identical spreads; only the leg ages differ.
	mon.Ingest(quote("alpha", "BTC-USD", 99.90, 100.00, 10, 10, now))
	mon.Ingest(quote("gamma", "BTC-USD", 99.90, 100.00, 10, 10, now.Add(-3*time.Second)))
	mon.Ingest(quote("beta", "BTC-USD", 100.40, 100.50, 10, 10, now))

	opps := det.Detect("BTC-USD")
	require.Len(t, opps, 2)
	assert.Equal(t, opps[0].SpreadPct, opps[1].SpreadPct)
	assert.Equal(t, "alpha", opps[0].BuyVenue, "the pair with the fresher legs ranks first")
	assert.Equal(t, "gamma", opps[1].BuyVenue)
}

func TestDetectVolumeFilter(t *testing.T) {
	det, mon := newDetector(t, Config{MinSpreadPct: 0.001, MinVolume: 5})
	now := time.Now().UTC()

	mon.Ingest(quote("alpha", "BTC-USD", 100.00, 100.10, 10, 2, now))
	mon.Ingest(quote("beta", "BTC-USD", 100.40, 100.50, 10, 10, now))

	assert.Empty(t, det.Detect("BTC-USD"), "thin books must not produce opportunities")
}

func TestConfidenceDecaysWithAge(t *testing.T) {
	det, mon := newDetector(t, Config{MinSpreadPct: 0.001, MinVolume: 1, Staleness: 5 * time.Second})
	now := time.Now().UTC()

	mon.Ingest(quote("alpha", "BTC-USD", 100.00, 100.10, 10, 10, now.Add(-4*time.Second)))
	mon.Ingest(quote("beta", "BTC-USD", 100.40, 100.50, 10, 10, now))

	opps := det.Detect("BTC-USD")
	require.Len(t, opps, 1)
	// Older leg is ~4s old of a 5s threshold: confidence near 0.2.
	assert.InDelta(t, 0.2, opps[0].Confidence, 0.05)
}

func TestConfidenceReflectsFillRate(t *testing.T) {
	fills := NewFillRateTracker()
	mon := monitor.New(5*time.Second, testLogger())
	det := New(mon, fills, Config{MinSpreadPct: 0.001, MinVolume: 1, Staleness: 5 * time.Second}, testLogger())
	now := time.Now().UTC()

	mon.Ingest(quote("alpha", "BTC-USD", 100.00, 100.10, 10, 10, now))
	mon.Ingest(quote("beta", "BTC-USD", 100.40, 100.50, 10, 10, now))

	before := det.Detect("BTC-USD")
	require.Len(t, before, 1)

	for i := 0; i < 5; i++ {
		fills.Record("alpha->beta", false)
	}

	after := det.Detect("BTC-USD")
	require.Len(t, after, 1)
	assert.Less(t, after[0].Confidence, before[0].Confidence,
		"failed executions must drag the pair's confidence down")
}

func TestFillRateTracker(t *testing.T) {
	tr := NewFillRateTracker()
	assert.Equal(t, 1.0, tr.Rate("alpha->beta"), "unseen pairs start at 1.0")

	tr.Record("alpha->beta", false)
	assert.InDelta(t, 0.8, tr.Rate("alpha->beta"), 1e-9)

	tr.Record("alpha->beta", true)
	assert.InDelta(t, 0.84, tr.Rate("alpha->beta"), 1e-9)

	assert.Equal(t, 1.0, tr.Rate("beta->alpha"), "pairs are directional")
}
