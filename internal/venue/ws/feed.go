// Package ws implements a price source backed by a venue's WebSocket ticker
// feed. The feed speaks a normalized JSON tick protocol; venue-specific
// payload translation belongs in a gateway in front of this client.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message.
	pongWait = 30 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff.
	maxReconnectDelay = 60 * time.Second
)

// subscribeCmd is the outbound subscription message.
type subscribeCmd struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// tick is the normalized inbound quote message.
type tick struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidVolume float64 `json:"bid_volume"`
	AskVolume float64 `json:"ask_volume"`
	// TsMs is the venue-side event time in Unix milliseconds. A zero value
	// falls back to local receive time.
	TsMs int64 `json:"ts_ms"`
}

// Feed streams normalized ticker updates from one venue's WebSocket
// endpoint. It reconnects with exponential backoff and re-subscribes after
// every reconnect; the caller's context is the only way to stop it.
type Feed struct {
	venue  string
	wsURL  string
	logger *slog.Logger
}

var _ domain.PriceSource = (*Feed)(nil)

// NewFeed creates a price source for one venue's WebSocket endpoint.
func NewFeed(venue, wsURL string, logger *slog.Logger) *Feed {
	return &Feed{
		venue:  venue,
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "ws_feed"), slog.String("venue", venue)),
	}
}

// Venue returns the venue name this feed reports for.
func (f *Feed) Venue() string { return f.venue }

// Stream connects, subscribes, and forwards ticks into out until ctx is
// cancelled. Connection loss triggers reconnection with exponential backoff
// rather than an error return; only context cancellation ends the stream.
func (f *Feed) Stream(ctx context.Context, symbols []string, out chan<- domain.PriceSnapshot) error {
	delay := reconnectDelay
	for {
		err := f.runConn(ctx, symbols, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConn drives one connection: dial, subscribe, pump ticks until the read
// loop fails or ctx is cancelled.
func (f *Feed) runConn(ctx context.Context, symbols []string, out chan<- domain.PriceSnapshot) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("ws: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCmd{Op: "subscribe", Symbols: symbols}); err != nil {
		return fmt.Errorf("ws: subscribe: %w", err)
	}
	f.logger.Info("feed connected", slog.Int("symbols", len(symbols)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()
	go f.pingLoop(conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ws: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		snap, ok := f.parseTick(raw)
		if !ok {
			continue
		}
		select {
		case out <- snap:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// pingLoop keeps the connection alive until done is closed or a write fails.
func (f *Feed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// parseTick converts one raw message to a snapshot. Non-tick and malformed
// messages are skipped; a noisy feed must not kill the stream.
func (f *Feed) parseTick(raw []byte) (domain.PriceSnapshot, bool) {
	var t tick
	if err := json.Unmarshal(raw, &t); err != nil {
		f.logger.Debug("unparseable feed message", slog.String("error", err.Error()))
		return domain.PriceSnapshot{}, false
	}
	if t.Type != "tick" || t.Symbol == "" {
		return domain.PriceSnapshot{}, false
	}

	ts := time.Now().UTC()
	if t.TsMs > 0 {
		ts = time.UnixMilli(t.TsMs).UTC()
	}
	snap := domain.PriceSnapshot{
		Venue:     f.venue,
		Symbol:    t.Symbol,
		Bid:       t.Bid,
		Ask:       t.Ask,
		BidVolume: t.BidVolume,
		AskVolume: t.AskVolume,
		Timestamp: ts,
	}
	if !snap.Valid() {
		f.logger.Debug("invalid tick dropped",
			slog.String("symbol", t.Symbol),
			slog.Float64("bid", t.Bid),
			slog.Float64("ask", t.Ask),
		)
		return domain.PriceSnapshot{}, false
	}
	return snap, true
}
