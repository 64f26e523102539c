package ticketapi

import (
	"errors"
	"fmt"
)

// Sentinel errors for ticket store operations.
var (
	// ErrNotConfigured indicates no ticket store client is available.
	ErrNotConfigured = errors.New("ticket store not configured")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrThrottled indicates the request was rate limited by the remote store.
	ErrThrottled = errors.New("request throttled")
)

// APIError wraps store-specific errors with operation context.
type APIError struct {
	// Op is the operation that failed (e.g., "UpdateTicket").
	Op string

	// TicketID is the ticket involved, if applicable.
	TicketID int64

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.TicketID != 0 {
		return fmt.Sprintf("%s: ticket %d: %v", e.Op, e.TicketID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsThrottled returns true if the error indicates a rate-limit signal.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsNotConfigured returns true if no client is available.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
