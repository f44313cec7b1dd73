// Package rest implements an order executor for venues exposing an
// HMAC-signed REST order API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/crypto"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

const orderPath = "/v1/orders"

// orderPayload is the outbound order request body.
type orderPayload struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity"`
	PriceHint float64 `json:"price_hint,omitempty"`
}

// orderResponse is the venue's fill report.
type orderResponse struct {
	Status   string  `json:"status"` // "filled", "partial", "rejected"
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Fee      float64 `json:"fee"`
	Reason   string  `json:"reason,omitempty"`
}

// Client places orders against one venue's REST API. All failures are
// classified through the venue error taxonomy: connectivity and 5xx/429
// responses are transient, 4xx responses and venue-level rejections are
// terminal.
type Client struct {
	venue      string
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
	logger     *slog.Logger

	limiter     domain.RateLimiter
	limit       int
	limitWindow time.Duration
}

var _ domain.OrderExecutor = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithRateLimiter bounds order placement to limit requests per window. A
// denied slot surfaces as a transient venue error so the execution engine's
// retry policy applies.
func WithRateLimiter(limiter domain.RateLimiter, limit int, window time.Duration) Option {
	return func(c *Client) {
		c.limiter = limiter
		c.limit = limit
		c.limitWindow = window
	}
}

// NewClient creates a REST order executor for one venue.
func NewClient(venue, baseURL string, auth *crypto.HMACAuth, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		venue:   venue,
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "rest_executor"), slog.String("venue", venue)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Venue returns the venue name this client places orders on.
func (c *Client) Venue() string { return c.venue }

// PlaceOrder submits one leg to the venue and returns the reported fill.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.VenueFill, error) {
	if c.limiter != nil {
		allowed, err := c.limiter.Allow(ctx, c.venue, c.limit, c.limitWindow)
		if err != nil {
			return domain.VenueFill{}, domain.NewTransientVenueError(c.venue, "rate_limit", err)
		}
		if !allowed {
			return domain.VenueFill{}, domain.NewTransientVenueError(c.venue, "rate_limit",
				fmt.Errorf("local rate limit exceeded"))
		}
	}

	payload, err := json.Marshal(orderPayload{
		Symbol:    req.Symbol,
		Side:      string(req.Side),
		Quantity:  req.Quantity,
		PriceHint: req.PriceHint,
	})
	if err != nil {
		return domain.VenueFill{}, domain.NewTerminalVenueError(c.venue, "place_order", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+orderPath, bytes.NewReader(payload))
	if err != nil {
		return domain.VenueFill{}, domain.NewTerminalVenueError(c.venue, "place_order", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.auth.RequestHeaders(http.MethodPost, orderPath, string(payload)) {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.VenueFill{}, c.classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.VenueFill{}, domain.NewTransientVenueError(c.venue, "place_order", fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.VenueFill{}, c.classifyStatus(resp.StatusCode, body)
	}

	var or orderResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return domain.VenueFill{}, domain.NewTerminalVenueError(c.venue, "place_order", fmt.Errorf("decode response: %w", err))
	}

	fill := domain.VenueFill{
		Price:    or.Price,
		Quantity: or.Quantity,
		Fee:      or.Fee,
	}
	switch or.Status {
	case "filled":
		fill.Status = domain.FillStatusFilled
	case "partial":
		fill.Status = domain.FillStatusPartial
	case "rejected":
		return domain.VenueFill{}, domain.NewTerminalVenueError(c.venue, "place_order",
			fmt.Errorf("order rejected: %s", or.Reason))
	default:
		return domain.VenueFill{}, domain.NewTerminalVenueError(c.venue, "place_order",
			fmt.Errorf("unknown order status %q", or.Status))
	}

	c.logger.Debug("order placed",
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("status", string(fill.Status)),
		slog.Float64("price", fill.Price),
		slog.Float64("quantity", fill.Quantity),
	)
	return fill, nil
}

// classifyTransportError maps connection-level failures. Anything that
// never reached the venue (dial failures, resets, timeouts) is transient:
// the order was not placed, so a retry is safe.
func (c *Client) classifyTransportError(err error) error {
	return domain.NewTransientVenueError(c.venue, "place_order", err)
}

// classifyStatus maps HTTP error responses onto the retry taxonomy. Rate
// limiting and server errors may clear on retry; client errors will not.
func (c *Client) classifyStatus(code int, body []byte) error {
	err := fmt.Errorf("http %d: %s", code, truncate(body, 256))
	if code == http.StatusTooManyRequests || code >= 500 {
		return domain.NewTransientVenueError(c.venue, "place_order", err)
	}
	return domain.NewTerminalVenueError(c.venue, "place_order", err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
