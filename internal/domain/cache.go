package domain

import (
	"context"
	"time"
)

// QuoteCache mirrors the latest per-(venue, symbol) quote for external
// consumers (dashboards, ad-hoc inspection). The in-process price table is
// authoritative; the cache is a best-effort replica and never read on the
// detection path.
type QuoteCache interface {
	SetQuote(ctx context.Context, snap PriceSnapshot) error
	GetQuote(ctx context.Context, venue, symbol string) (PriceSnapshot, error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries telemetry (execution results, realized profit, staleness
// warnings) to external consumers via pub/sub channels and durable streams.
// The engine only writes; it never re-reads its own history.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter bounds outbound request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
