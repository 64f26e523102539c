// Package ticketapi defines the contract for the remote ticket store.
//
// The engine never talks to a concrete helpdesk API directly; every bulk
// operation is written against the Client interface so the wire protocol
// stays outside this repository. Memory is the reference implementation
// used by tests, dry-run rehearsals, and the CLI demo path.
package ticketapi

import "context"

// Ticket is one remote record targeted by a bulk mutation.
type Ticket struct {
	ID       int64    `json:"id" yaml:"id"`
	Subject  string   `json:"subject" yaml:"subject"`
	Status   string   `json:"status" yaml:"status"`
	Priority string   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Tags     []string `json:"tags" yaml:"tags"`
}

// View is a saved ticket listing on the remote store.
type View struct {
	ID    int64  `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

// Macro is a canned set of actions that can be applied to a ticket.
type Macro struct {
	ID      int64    `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Active  bool     `json:"active" yaml:"active"`
	Actions []string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Client is the remote ticket store collaborator.
//
// Implementations must report throttling through ErrThrottled so callers
// can distinguish a rate-limit signal from a terminal failure.
type Client interface {
	// Views returns all saved views.
	Views(ctx context.Context) ([]View, error)

	// Macros returns all macros, active or not.
	Macros(ctx context.Context) ([]Macro, error)

	// ViewTickets returns up to limit tickets from the given view,
	// in the view's order. limit <= 0 means no limit.
	ViewTickets(ctx context.Context, viewID int64, limit int) ([]Ticket, error)

	// Ticket fetches a single ticket by id.
	Ticket(ctx context.Context, id int64) (*Ticket, error)

	// UpdateTicket writes the ticket back to the remote store.
	UpdateTicket(ctx context.Context, t *Ticket) error

	// ApplyMacro applies the macro to the ticket.
	ApplyMacro(ctx context.Context, ticketID, macroID int64) error
}
