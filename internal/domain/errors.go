package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStaleData          = errors.New("all venue data stale")
	ErrRiskHalted         = errors.New("engine halted by daily loss limit")
	ErrVenueNotRegistered = errors.New("venue not registered")
	ErrWSDisconnect       = errors.New("websocket disconnected")
)

// VenueError wraps a venue adapter failure with the transient/terminal
// classification the execution engine's retry policy depends on. Transient
// failures (network errors, rate limiting) may be retried; terminal failures
// (rejected order, invalid symbol, insufficient balance) are reported
// immediately.
type VenueError struct {
	Venue     string
	Op        string
	Err       error
	Transient bool
}

func (e *VenueError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("venue %s: %s: %s: %v", e.Venue, e.Op, kind, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// NewTransientVenueError classifies err as retryable.
func NewTransientVenueError(venue, op string, err error) *VenueError {
	return &VenueError{Venue: venue, Op: op, Err: err, Transient: true}
}

// NewTerminalVenueError classifies err as not retryable.
func NewTerminalVenueError(venue, op string, err error) *VenueError {
	return &VenueError{Venue: venue, Op: op, Err: err, Transient: false}
}

// IsTransientVenueError reports whether err is a venue error eligible for a
// retry. Unclassified errors are treated as terminal.
func IsTransientVenueError(err error) bool {
	var ve *VenueError
	return errors.As(err, &ve) && ve.Transient
}
