package domain

import "context"

// OrderRequest is one leg submitted to a venue adapter.
type OrderRequest struct {
	Symbol    string
	Side      LegSide
	Quantity  float64
	PriceHint float64 // quoted price at detection time; venues may fill away from it
}

// VenueFill is the adapter's report for one placed order.
type VenueFill struct {
	Status   FillStatus
	Price    float64
	Quantity float64
	Fee      float64
}

// PriceSource streams price snapshots for a set of symbols into out. It
// blocks until the context is cancelled or the stream fails. Delivery is
// at-least-once; duplicates are harmless because ingestion upserts by
// timestamp.
type PriceSource interface {
	Venue() string
	Stream(ctx context.Context, symbols []string, out chan<- PriceSnapshot) error
}

// OrderExecutor places one order on a venue. Errors must be classified
// through the VenueError taxonomy so the execution engine can apply its
// retry policy; raw adapter errors never cross this boundary.
type OrderExecutor interface {
	Venue() string
	PlaceOrder(ctx context.Context, req OrderRequest) (VenueFill, error)
}
