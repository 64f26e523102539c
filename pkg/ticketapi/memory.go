package ticketapi

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
)

// Memory implements Client against an in-process data set.
//
// It backs tests and the CLI demo path, and is the reference for the
// throttle semantics the batch executor depends on: ThrottleTicket marks a
// ticket so its next mutation fails with ErrThrottled exactly once.
type Memory struct {
	mu       sync.Mutex
	views    map[int64]View
	macros   map[int64]Macro
	tickets  map[int64]*Ticket
	viewRefs map[int64][]int64 // view id -> ticket ids, in view order

	throttleOnce map[int64]bool
	broken       map[int64]bool
}

// Ensure Memory satisfies the collaborator contract.
var _ Client = (*Memory)(nil)

// NewMemory returns an empty in-memory ticket store.
func NewMemory() *Memory {
	return &Memory{
		views:        make(map[int64]View),
		macros:       make(map[int64]Macro),
		tickets:      make(map[int64]*Ticket),
		viewRefs:     make(map[int64][]int64),
		throttleOnce: make(map[int64]bool),
		broken:       make(map[int64]bool),
	}
}

// AddView registers a view and the tickets it contains, in order.
func (m *Memory) AddView(v View, ticketIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[v.ID] = v
	m.viewRefs[v.ID] = append(m.viewRefs[v.ID], ticketIDs...)
}

// AddMacro registers a macro.
func (m *Memory) AddMacro(mc Macro) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.macros[mc.ID] = mc
}

// AddTicket registers a ticket.
func (m *Memory) AddTicket(t Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	cp.Tags = append([]string(nil), t.Tags...)
	m.tickets[t.ID] = &cp
}

// ThrottleTicket makes the next mutation of the ticket fail with
// ErrThrottled. The flag clears after one failure, so a retry succeeds.
func (m *Memory) ThrottleTicket(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttleOnce[id] = true
}

// FailTicket makes every mutation of the ticket fail permanently. Unlike
// ThrottleTicket the failure is not a throttle signal and never clears.
func (m *Memory) FailTicket(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broken[id] = true
}

func (m *Memory) Views(ctx context.Context) ([]View, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]View, 0, len(m.views))
	for _, v := range m.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Macros(ctx context.Context) ([]Macro, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Macro, 0, len(m.macros))
	for _, mc := range m.macros {
		out = append(out, mc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ViewTickets(ctx context.Context, viewID int64, limit int) ([]Ticket, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	ids, ok := m.viewRefs[viewID]
	if !ok {
		return nil, &APIError{Op: "ViewTickets", Err: ErrNotFound}
	}

	out := make([]Ticket, 0, len(ids))
	for _, id := range ids {
		t, ok := m.tickets[id]
		if !ok {
			continue
		}
		out = append(out, m.copyTicket(t))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Ticket(ctx context.Context, id int64) (*Ticket, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return nil, &APIError{Op: "Ticket", TicketID: id, Err: ErrNotFound}
	}
	cp := m.copyTicket(t)
	return &cp, nil
}

func (m *Memory) UpdateTicket(ctx context.Context, t *Ticket) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.throttleCheck("UpdateTicket", t.ID); err != nil {
		return err
	}

	cur, ok := m.tickets[t.ID]
	if !ok {
		return &APIError{Op: "UpdateTicket", TicketID: t.ID, Err: ErrNotFound}
	}
	cur.Subject = t.Subject
	cur.Status = t.Status
	cur.Priority = t.Priority
	cur.Tags = append([]string(nil), t.Tags...)
	return nil
}

func (m *Memory) ApplyMacro(ctx context.Context, ticketID, macroID int64) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.throttleCheck("ApplyMacro", ticketID); err != nil {
		return err
	}

	if _, ok := m.macros[macroID]; !ok {
		return &APIError{Op: "ApplyMacro", TicketID: ticketID, Err: ErrNotFound}
	}
	t, ok := m.tickets[ticketID]
	if !ok {
		return &APIError{Op: "ApplyMacro", TicketID: ticketID, Err: ErrNotFound}
	}

	// The memory store models macro application as a tag stamp so tests can
	// observe that the mutation happened.
	t.Tags = appendUnique(t.Tags, macroTag(macroID))
	return nil
}

func (m *Memory) throttleCheck(op string, ticketID int64) error {
	if m.broken[ticketID] {
		return &APIError{Op: op, TicketID: ticketID, Err: errors.New("ticket store rejected the update")}
	}
	if m.throttleOnce[ticketID] {
		delete(m.throttleOnce, ticketID)
		return &APIError{Op: op, TicketID: ticketID, Err: ErrThrottled}
	}
	return nil
}

func (m *Memory) copyTicket(t *Ticket) Ticket {
	cp := *t
	cp.Tags = append([]string(nil), t.Tags...)
	return cp
}

func appendUnique(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}

func macroTag(macroID int64) string {
	return "macro-applied-" + strconv.FormatInt(macroID, 10)
}
