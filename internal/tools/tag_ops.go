package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/3leaps/ticketops/pkg/ops"
)

type tagParams struct {
	ViewID      int64 `mapstructure:"view_id"`
	TicketLimit int   `mapstructure:"ticket_limit"`
}

// tagOperation handles bulk tag addition and removal. The two registered
// operations share everything but the mode and metadata.
type tagOperation struct {
	ops.Base

	deps Deps
	mode string // "add" or "remove"
	desc ops.Descriptor
}

// NewTagAdd returns the bulk tag addition operation.
func NewTagAdd(deps Deps) ops.Operation {
	return &tagOperation{
		deps: deps,
		mode: "add",
		desc: ops.Descriptor{
			Name:          "Bulk Tag Addition",
			Slug:          "tag_add",
			Description:   "Add tags to all tickets in a selected view",
			Category:      "Tag Management",
			Async:         true,
			ExportFormats: []string{"csv", "json"},
		},
	}
}

// NewTagRemove returns the bulk tag removal operation.
func NewTagRemove(deps Deps) ops.Operation {
	return &tagOperation{
		deps: deps,
		mode: "remove",
		desc: ops.Descriptor{
			Name:          "Bulk Tag Removal",
			Slug:          "tag_remove",
			Description:   "Remove tags from all tickets in a selected view",
			Category:      "Tag Management",
			Async:         true,
			ExportFormats: []string{"csv", "json"},
		},
	}
}

func (o *tagOperation) Descriptor() ops.Descriptor { return o.desc }

func (o *tagOperation) SupportsAsync() bool { return true }

func (o *tagOperation) FormFields(ctx context.Context) []ops.FormField {
	verb := "add"
	placeholder := "urgent, billing, escalated"
	if o.mode == "remove" {
		verb = "remove"
		placeholder = "outdated, resolved-old"
	}
	return []ops.FormField{
		viewField(ctx, o.deps.Client),
		{
			Name:        "tags",
			Label:       "Tags",
			Type:        "text",
			Required:    true,
			Placeholder: placeholder,
			Help:        fmt.Sprintf("Comma-separated list of tags to %s", verb),
		},
		limitField(),
		dryRunField(),
	}
}

func (o *tagOperation) Validate(input map[string]string) (bool, string) {
	var p tagParams
	if err := decodeParams(input, &p); err != nil {
		return false, "Invalid input: " + err.Error()
	}
	if p.ViewID <= 0 {
		return false, "Please select a view"
	}
	if len(parseTags(input["tags"])) == 0 {
		return false, "Please provide at least one tag"
	}
	if p.TicketLimit < 1 || p.TicketLimit > ops.DefaultAsyncCeiling {
		return false, fmt.Sprintf("Ticket limit must be between 1 and %d", ops.DefaultAsyncCeiling)
	}
	return true, ""
}

func (o *tagOperation) Execute(ctx context.Context, input map[string]string) *ops.Result {
	return o.run(ctx, input, nil)
}

func (o *tagOperation) ExecuteAsync(ctx context.Context, input map[string]string, queueID, owner string) *ops.AsyncResult {
	return submitAsync(ctx, o.deps, o.desc.Slug, queueID, owner, input, o.countItems, o.run)
}

func (o *tagOperation) ExportFormats() []string { return o.desc.ExportFormats }

func (o *tagOperation) Export(result *ops.Result, format string) ([]byte, string, string, error) {
	return exportTicketResult(o.desc.Slug, result, format)
}

// countItems reports how many tickets the run would touch, for sizing the
// job row before the worker starts.
func (o *tagOperation) countItems(ctx context.Context, input map[string]string) (int, error) {
	var p tagParams
	if err := decodeParams(input, &p); err != nil {
		return 0, err
	}
	client, err := o.deps.ticketClient()
	if err != nil {
		return 0, err
	}
	tickets, err := client.ViewTickets(ctx, p.ViewID, p.TicketLimit)
	if err != nil {
		return 0, err
	}
	return len(tickets), nil
}

func (o *tagOperation) run(ctx context.Context, input map[string]string, onProgress func(processed, total int)) *ops.Result {
	var p tagParams
	if err := decodeParams(input, &p); err != nil {
		return &ops.Result{Success: false, Message: "Invalid input: " + err.Error()}
	}
	tags := parseTags(input["tags"])
	dryRun := truthy(input["dry_run"])

	client, err := o.deps.ticketClient()
	if err != nil {
		return &ops.Result{Success: false, Message: err.Error()}
	}
	tickets, err := client.ViewTickets(ctx, p.ViewID, p.TicketLimit)
	if err != nil {
		return &ops.Result{Success: false, Message: fmt.Sprintf("Error fetching tickets: %v", err)}
	}

	name := viewName(ctx, o.deps.Client, p.ViewID)
	operation := map[string]string{"add": "Add", "remove": "Remove"}[o.mode]
	data := map[string]any{
		"view_id":       p.ViewID,
		"view_name":     name,
		"operation":     operation,
		"tags":          tags,
		"total_tickets": len(tickets),
		"dry_run":       dryRun,
	}

	if len(tickets) == 0 {
		data["successful"] = 0
		data["failed"] = 0
		return &ops.Result{
			Success: true,
			Message: fmt.Sprintf("No tickets found in view '%s'", name),
			Data:    data,
		}
	}

	if dryRun {
		preview := make([]map[string]any, 0, len(tickets))
		for _, t := range tickets {
			preview = append(preview, map[string]any{
				"id":      t.ID,
				"subject": t.Subject,
				"status":  t.Status,
				"tags":    t.Tags,
			})
		}
		data["tickets"] = preview
		data["successful"] = 0
		data["failed"] = 0
		return &ops.Result{
			Success: true,
			Message: fmt.Sprintf("Dry run: %d tickets in view '%s' would have tags %s: %s",
				len(tickets), name, map[string]string{"add": "added", "remove": "removed"}[o.mode],
				strings.Join(tags, ", ")),
			Data: data,
		}
	}

	res, runErr := o.deps.executor().Run(ctx, ticketIDs(tickets), func(ctx context.Context, id int64) error {
		return o.mutateTicket(ctx, id, tags)
	}, onProgress)
	data["successful"] = len(res.Successful)
	data["failed"] = len(res.Failed)
	data["successful_tickets"] = res.Successful
	data["failed_tickets"] = res.Failed
	data["errors"] = res.Errors
	if runErr != nil {
		return &ops.Result{
			Success: false,
			Message: fmt.Sprintf("Run interrupted after %d of %d tickets: %v",
				len(res.Successful)+len(res.Failed), len(tickets), runErr),
			Data: data,
		}
	}
	if res.TotalFailure() {
		return &ops.Result{
			Success: false,
			Message: fmt.Sprintf("All %d ticket updates failed", len(res.Failed)),
			Data:    data,
		}
	}
	return &ops.Result{
		Success: true,
		Message: fmt.Sprintf("Tags %s on %d of %d tickets in view '%s'",
			map[string]string{"add": "added", "remove": "removed"}[o.mode],
			len(res.Successful), len(tickets), name),
		Data: data,
	}
}

// mutateTicket applies the tag change to one ticket: union for add,
// difference for remove. A no-op change still counts as success.
func (o *tagOperation) mutateTicket(ctx context.Context, id int64, tags []string) error {
	t, err := o.deps.Client.Ticket(ctx, id)
	if err != nil {
		return err
	}
	if o.mode == "add" {
		t.Tags = unionTags(t.Tags, tags)
	} else {
		t.Tags = removeTags(t.Tags, tags)
	}
	return o.deps.Client.UpdateTicket(ctx, t)
}

func unionTags(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(add))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range add {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func removeTags(existing, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		drop[t] = true
	}
	out := make([]string, 0, len(existing))
	for _, t := range existing {
		if !drop[t] {
			out = append(out, t)
		}
	}
	return out
}
