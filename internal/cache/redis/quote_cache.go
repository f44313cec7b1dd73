package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// quoteTTL expires mirrored quotes so a dead feed does not leave phantom
// prices behind for external readers.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at key "quote:{venue}:{symbol}" with one field per snapshot
// attribute and a Unix-nanosecond timestamp. The in-process price table is
// authoritative; this is a best-effort mirror for dashboards and ad-hoc
// inspection.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venue, symbol string) string {
	return "quote:" + venue + ":" + symbol
}

// SetQuote stores the latest snapshot for a (venue, symbol).
func (qc *QuoteCache) SetQuote(ctx context.Context, snap domain.PriceSnapshot) error {
	key := quoteKey(snap.Venue, snap.Symbol)
	fields := map[string]interface{}{
		"bid":     strconv.FormatFloat(snap.Bid, 'f', -1, 64),
		"ask":     strconv.FormatFloat(snap.Ask, 'f', -1, 64),
		"bid_vol": strconv.FormatFloat(snap.BidVolume, 'f', -1, 64),
		"ask_vol": strconv.FormatFloat(snap.AskVolume, 'f', -1, 64),
		"ts":      strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
	}

	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", snap.Venue, snap.Symbol, err)
	}
	return nil
}

// GetQuote retrieves the mirrored snapshot for a (venue, symbol). It returns
// domain.ErrNotFound when no quote has been mirrored.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue, symbol string) (domain.PriceSnapshot, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(venue, symbol)).Result()
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, symbol, err)
	}
	if len(vals) == 0 {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}

	snap := domain.PriceSnapshot{Venue: venue, Symbol: symbol}
	if snap.Bid, err = parseField(vals, "bid"); err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: quote %s/%s: %w", venue, symbol, err)
	}
	if snap.Ask, err = parseField(vals, "ask"); err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: quote %s/%s: %w", venue, symbol, err)
	}
	if snap.BidVolume, err = parseField(vals, "bid_vol"); err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: quote %s/%s: %w", venue, symbol, err)
	}
	if snap.AskVolume, err = parseField(vals, "ask_vol"); err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: quote %s/%s: %w", venue, symbol, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.PriceSnapshot{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("redis: quote %s/%s: parse ts: %w", venue, symbol, err)
	}
	snap.Timestamp = time.Unix(0, tsNano).UTC()

	return snap, nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
