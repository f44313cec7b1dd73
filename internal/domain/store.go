package domain

import (
	"context"
	"time"
)

// ExecutionStore is the durable sink for execution results and their settled
// profit. The coordination core writes each result exactly once and never
// reads it back during a cycle; reads exist for restart recovery and the
// archiver.
type ExecutionStore interface {
	Insert(ctx context.Context, res ExecutionResult, profit RealizedProfit) error
	// ListBefore returns executions completed strictly before the cutoff,
	// used by the archiver.
	ListBefore(ctx context.Context, before time.Time) ([]ExecutionResult, error)
	// SumNetProfit totals net profit settled at or after since, used to
	// seed the daily risk accounting on restart.
	SumNetProfit(ctx context.Context, since time.Time) (float64, error)
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Archiver compacts old settled executions into blob storage.
type Archiver interface {
	Archive(ctx context.Context, before time.Time) (int, error)
}
