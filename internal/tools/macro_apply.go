package tools

import (
	"context"
	"fmt"

	"github.com/3leaps/ticketops/pkg/ops"
)

type macroApplyParams struct {
	ViewID      int64 `mapstructure:"view_id"`
	MacroID     int64 `mapstructure:"macro_id"`
	TicketLimit int   `mapstructure:"ticket_limit"`
}

// macroApply applies one macro to every ticket in a view.
type macroApply struct {
	ops.Base

	deps Deps
}

// NewMacroApply returns the bulk macro application operation.
func NewMacroApply(deps Deps) ops.Operation {
	return &macroApply{deps: deps}
}

func (o *macroApply) Descriptor() ops.Descriptor {
	return ops.Descriptor{
		Name:          "Bulk Macro Application",
		Slug:          "macro_apply",
		Description:   "Apply a macro to all tickets in a selected view",
		Category:      "Macro Management",
		RequiresAdmin: true,
		Async:         true,
		ExportFormats: []string{"csv", "json"},
	}
}

func (o *macroApply) SupportsAsync() bool { return true }

func (o *macroApply) FormFields(ctx context.Context) []ops.FormField {
	return []ops.FormField{
		viewField(ctx, o.deps.Client),
		{
			Name:     "macro_id",
			Label:    "Select Macro",
			Type:     "select",
			Required: true,
			Options:  macroOptions(ctx, o.deps.Client),
			Help:     "Choose the macro to apply to every ticket in the view",
		},
		limitField(),
		dryRunField(),
	}
}

func (o *macroApply) Validate(input map[string]string) (bool, string) {
	var p macroApplyParams
	if err := decodeParams(input, &p); err != nil {
		return false, "Invalid input: " + err.Error()
	}
	if p.ViewID <= 0 {
		return false, "Please select a view"
	}
	if p.MacroID <= 0 {
		return false, "Please select a macro"
	}
	if p.TicketLimit < 1 || p.TicketLimit > ops.DefaultAsyncCeiling {
		return false, fmt.Sprintf("Ticket limit must be between 1 and %d", ops.DefaultAsyncCeiling)
	}
	return true, ""
}

func (o *macroApply) Execute(ctx context.Context, input map[string]string) *ops.Result {
	return o.run(ctx, input, nil)
}

func (o *macroApply) ExecuteAsync(ctx context.Context, input map[string]string, queueID, owner string) *ops.AsyncResult {
	return submitAsync(ctx, o.deps, "macro_apply", queueID, owner, input, o.countItems, o.run)
}

func (o *macroApply) ExportFormats() []string { return []string{"csv", "json"} }

func (o *macroApply) Export(result *ops.Result, format string) ([]byte, string, string, error) {
	return exportTicketResult("macro_apply", result, format)
}

func (o *macroApply) countItems(ctx context.Context, input map[string]string) (int, error) {
	var p macroApplyParams
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

func (o *macroApply) run(ctx context.Context, input map[string]string, onProgress func(processed, total int)) *ops.Result {
	var p macroApplyParams
	if err := decodeParams(input, &p); err != nil {
		return &ops.Result{Success: false, Message: "Invalid input: " + err.Error()}
	}
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
	macroTitle := o.macroTitle(ctx, p.MacroID)
	data := map[string]any{
		"view_id":       p.ViewID,
		"view_name":     name,
		"macro_id":      p.MacroID,
		"macro_name":    macroTitle,
		"operation":     "Apply Macro",
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
			Message: fmt.Sprintf("Dry run: macro '%s' would be applied to %d tickets in view '%s'",
				macroTitle, len(tickets), name),
			Data: data,
		}
	}

	res, runErr := o.deps.executor().Run(ctx, ticketIDs(tickets), func(ctx context.Context, id int64) error {
		return o.deps.Client.ApplyMacro(ctx, id, p.MacroID)
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
			Message: fmt.Sprintf("All %d macro applications failed", len(res.Failed)),
			Data:    data,
		}
	}
	return &ops.Result{
		Success: true,
		Message: fmt.Sprintf("Macro '%s' applied to %d of %d tickets in view '%s'",
			macroTitle, len(res.Successful), len(tickets), name),
		Data: data,
	}
}

func (o *macroApply) macroTitle(ctx context.Context, macroID int64) string {
	macros, err := o.deps.Client.Macros(ctx)
	if err == nil {
		for _, m := range macros {
			if m.ID == macroID {
				return m.Title
			}
		}
	}
	return fmt.Sprintf("Macro %d", macroID)
}
