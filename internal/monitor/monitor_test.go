package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snap(venue, symbol string, bid, ask float64, ts time.Time) domain.PriceSnapshot {
	return domain.PriceSnapshot{
		Venue:     venue,
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		BidVolume: 5,
		AskVolume: 5,
		Timestamp: ts,
	}
}

func TestIngestUpsertsBySymbolAndVenue(t *testing.T) {
	m := New(5*time.Second, testLogger())
	now := time.Now().UTC()

	require.True(t, m.Ingest(snap("alpha", "BTC-USD", 99, 100, now)))
	require.True(t, m.Ingest(snap("beta", "BTC-USD", 100, 101, now)))
	require.True(t, m.Ingest(snap("alpha", "ETH-USD", 9, 10, now)))
	assert.Equal(t, 3, m.Len())

	// Same slot, newer timestamp: overwrite, not a new entry.
	require.True(t, m.Ingest(snap("alpha", "BTC-USD", 98, 99, now.Add(time.Second))))
	assert.Equal(t, 3, m.Len())

	got, ok := m.Snapshot("alpha", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 99.0, got.Ask)
}

func TestIngestRejectsOutOfOrderTimestamps(t *testing.T) {
	m := New(5*time.Second, testLogger())
	now := time.Now().UTC()

	require.True(t, m.Ingest(snap("alpha", "BTC-USD", 99, 100, now)))

	// A delayed delivery with an older timestamp must not regress the table.
	assert.False(t, m.Ingest(snap("alpha", "BTC-USD", 50, 51, now.Add(-2*time.Second))))

	got, ok := m.Snapshot("alpha", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Ask)
}

func TestIngestIsIdempotent(t *testing.T) {
	m := New(5*time.Second, testLogger())
	now := time.Now().UTC()
	s := snap("alpha", "BTC-USD", 99, 100, now)

	require.True(t, m.Ingest(s))
	assert.False(t, m.Ingest(s), "replaying an identical snapshot must be a no-op")
	assert.Equal(t, 1, m.Len())
}

func TestQueryExcludesStaleVenues(t *testing.T) {
	m := New(5*time.Second, testLogger())
	now := time.Now().UTC()

	m.Ingest(snap("alpha", "BTC-USD", 99, 100, now))
	m.Ingest(snap("beta", "BTC-USD", 100, 101, now.Add(-10*time.Second)))

	fresh := m.Query("BTC-USD")
	require.Len(t, fresh, 1)
	assert.Equal(t, "alpha", fresh[0].Venue)
}

func TestQueryWarnsOnceWhenVenueGoesStale(t *testing.T) {
	var mu sync.Mutex
	var warnings []domain.StalenessWarning
	m := New(5*time.Second, testLogger(), WithStalenessHandler(func(w domain.StalenessWarning) {
		mu.Lock()
		warnings = append(warnings, w)
		mu.Unlock()
	}))
	now := time.Now().UTC()

	m.Ingest(snap("alpha", "BTC-USD", 99, 100, now.Add(-10*time.Second)))

	m.Query("BTC-USD")
	m.Query("BTC-USD")
	m.Query("BTC-USD")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, warnings, 1, "repeated queries of the same stale entry must warn once")
	assert.Equal(t, "alpha", warnings[0].Venue)
	assert.Equal(t, "BTC-USD", warnings[0].Symbol)
	assert.GreaterOrEqual(t, warnings[0].Age, 5*time.Second)
}

func TestStalenessWarningResetsOnFreshData(t *testing.T) {
	var mu sync.Mutex
	count := 0
	m := New(5*time.Second, testLogger(), WithStalenessHandler(func(domain.StalenessWarning) {
		mu.Lock()
		count++
		mu.Unlock()
	}))
	now := time.Now().UTC()

	m.Ingest(snap("alpha", "BTC-USD", 99, 100, now.Add(-10*time.Second)))
	m.Query("BTC-USD")

	// Fresh update re-arms the warning, then the venue goes stale again.
	m.Ingest(snap("alpha", "BTC-USD", 99, 100, now.Add(-6*time.Second)))
	m.Query("BTC-USD")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestQuerySortedByVenue(t *testing.T) {
	m := New(5*time.Second, testLogger())
	now := time.Now().UTC()

	m.Ingest(snap("zeta", "BTC-USD", 99, 100, now))
	m.Ingest(snap("alpha", "BTC-USD", 99, 100, now))
	m.Ingest(snap("mid", "BTC-USD", 99, 100, now))

	fresh := m.Query("BTC-USD")
	require.Len(t, fresh, 3)
	assert.Equal(t, "alpha", fresh[0].Venue)
	assert.Equal(t, "mid", fresh[1].Venue)
	assert.Equal(t, "zeta", fresh[2].Venue)
}

func TestConcurrentIngest(t *testing.T) {
	m := New(5*time.Second, testLogger())
	base := time.Now().UTC()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.Ingest(snap("alpha", "BTC-USD", 99, 100, base.Add(time.Duration(i)*time.Millisecond)))
			}
		}(g)
	}
	wg.Wait()

	got, ok := m.Snapshot("alpha", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, base.Add(199*time.Millisecond), got.Timestamp)
}

// fakeQuoteCache serves a fixed set of mirrored quotes.
type fakeQuoteCache struct {
	quotes map[string]domain.PriceSnapshot // keyed venue|symbol
}

func (c *fakeQuoteCache) SetQuote(ctx context.Context, s domain.PriceSnapshot) error {
	if c.quotes == nil {
		c.quotes = make(map[string]domain.PriceSnapshot)
	}
	c.quotes[s.Venue+"|"+s.Symbol] = s
	return nil
}

func (c *fakeQuoteCache) GetQuote(ctx context.Context, venue, symbol string) (domain.PriceSnapshot, error) {
	s, ok := c.quotes[venue+"|"+symbol]
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func TestRestorePreloadsTableFromCache(t *testing.T) {
	now := time.Now().UTC()
	cache := &fakeQuoteCache{quotes: map[string]domain.PriceSnapshot{
		"alpha|BTC-USD": snap("alpha", "BTC-USD", 99, 100, now),
		"beta|BTC-USD":  snap("beta", "BTC-USD", 100, 101, now),
	}}
	m := New(5*time.Second, testLogger(), WithQuoteCache(cache))

	loaded := m.Restore(context.Background(), []string{"alpha", "beta", "gamma"}, []string{"BTC-USD", "ETH-USD"})
	assert.Equal(t, 2, loaded, "missing cache entries are skipped")
	assert.Equal(t, 2, m.Len())

	// A restored quote is immediately queryable.
	fresh := m.Query("BTC-USD")
	require.Len(t, fresh, 2)
	assert.Equal(t, "alpha", fresh[0].Venue)
}

func TestRestoreWithoutCacheIsNoop(t *testing.T) {
	m := New(5*time.Second, testLogger())
	assert.Zero(t, m.Restore(context.Background(), []string{"alpha"}, []string{"BTC-USD"}))
	assert.Zero(t, m.Len())
}

func TestRestoreDoesNotRegressLiveQuotes(t *testing.T) {
	now := time.Now().UTC()
	cache := &fakeQuoteCache{quotes: map[string]domain.PriceSnapshot{
		"alpha|BTC-USD": snap("alpha", "BTC-USD", 50, 51, now.Add(-time.Second)),
	}}
	m := New(5*time.Second, testLogger(), WithQuoteCache(cache))

	require.True(t, m.Ingest(snap("alpha", "BTC-USD", 99, 100, now)))
	assert.Zero(t, m.Restore(context.Background(), []string{"alpha"}, []string{"BTC-USD"}),
		"restore must not overwrite fresher live data")

	got, ok := m.Snapshot("alpha", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 100.0, got.Ask)
}
