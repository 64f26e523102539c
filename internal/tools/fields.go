package tools

import (
	"context"
	"fmt"

	"github.com/3leaps/ticketops/pkg/ops"
	"github.com/3leaps/ticketops/pkg/ticketapi"
)

// viewOptions builds select options from the remote view list. A lookup
// failure degrades to a single error entry so the form still renders.
func viewOptions(ctx context.Context, client ticketapi.Client) []ops.Option {
	if client == nil {
		return []ops.Option{{Value: "error", Label: "Ticket store not configured"}}
	}
	views, err := client.Views(ctx)
	if err != nil {
		return []ops.Option{{Value: "error", Label: fmt.Sprintf("Error loading views: %v", err)}}
	}
	out := make([]ops.Option, 0, len(views))
	for _, v := range views {
		out = append(out, ops.Option{
			Value: fmt.Sprintf("%d", v.ID),
			Label: fmt.Sprintf("%s (ID: %d)", v.Title, v.ID),
		})
	}
	return out
}

// macroOptions builds select options for active macros, degrading to an
// error entry on lookup failure.
func macroOptions(ctx context.Context, client ticketapi.Client) []ops.Option {
	if client == nil {
		return []ops.Option{{Value: "error", Label: "Ticket store not configured"}}
	}
	macros, err := client.Macros(ctx)
	if err != nil {
		return []ops.Option{{Value: "error", Label: fmt.Sprintf("Error loading macros: %v", err)}}
	}
	var out []ops.Option
	for _, m := range macros {
		if !m.Active {
			continue
		}
		out = append(out, ops.Option{
			Value: fmt.Sprintf("%d", m.ID),
			Label: fmt.Sprintf("%s (ID: %d)", m.Title, m.ID),
		})
	}
	return out
}

// viewField, limitField, and dryRunField are shared across the bulk
// operations so the form schemas stay consistent.
func viewField(ctx context.Context, client ticketapi.Client) ops.FormField {
	return ops.FormField{
		Name:     "view_id",
		Label:    "Select View",
		Type:     "select",
		Required: true,
		Options:  viewOptions(ctx, client),
		Help:     "Choose the view containing the tickets you want to update",
	}
}

func limitField() ops.FormField {
	return ops.FormField{
		Name:        "ticket_limit",
		Label:       "Ticket Limit",
		Type:        "number",
		Required:    true,
		Placeholder: "500",
		Help: fmt.Sprintf(
			"Maximum number of tickets to process. Up to %d for immediate results, up to %d for background processing.",
			ops.DefaultSyncCeiling, ops.DefaultAsyncCeiling),
	}
}

func dryRunField() ops.FormField {
	return ops.FormField{
		Name:     "dry_run",
		Label:    "Dry Run (Preview Only)",
		Type:     "checkbox",
		Required: false,
		Help:     "Preview which tickets would be affected without making changes",
	}
}

// viewName resolves the view title, falling back to a generic label.
func viewName(ctx context.Context, client ticketapi.Client, viewID int64) string {
	views, err := client.Views(ctx)
	if err == nil {
		for _, v := range views {
			if v.ID == viewID {
				return v.Title
			}
		}
	}
	return fmt.Sprintf("View %d", viewID)
}
