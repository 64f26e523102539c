package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/3leaps/ticketops/pkg/ops"
)

// macroSearch finds macros whose title or actions contain a search term.
// It is read-only and always runs inline.
type macroSearch struct {
	ops.Base

	deps Deps
}

// NewMacroSearch returns the macro search operation.
func NewMacroSearch(deps Deps) ops.Operation {
	return &macroSearch{deps: deps}
}

func (o *macroSearch) Descriptor() ops.Descriptor {
	return ops.Descriptor{
		Name:          "Macro Search",
		Slug:          "macro_search",
		Description:   "Search macros by title or action content",
		Category:      "Macro Management",
		ExportFormats: []string{"csv", "json"},
	}
}

func (o *macroSearch) FormFields(ctx context.Context) []ops.FormField {
	return []ops.FormField{
		{
			Name:        "search_term",
			Label:       "Search Term",
			Type:        "text",
			Required:    true,
			Placeholder: "refund",
			Help:        "Case-insensitive substring matched against macro titles and actions",
		},
		{
			Name:     "include_inactive",
			Label:    "Include Inactive Macros",
			Type:     "checkbox",
			Required: false,
			Help:     "Also search macros that are currently deactivated",
		},
	}
}

func (o *macroSearch) Validate(input map[string]string) (bool, string) {
	if strings.TrimSpace(input["search_term"]) == "" {
		return false, "Please provide a search term"
	}
	return true, ""
}

func (o *macroSearch) Execute(ctx context.Context, input map[string]string) *ops.Result {
	term := strings.ToLower(strings.TrimSpace(input["search_term"]))
	includeInactive := truthy(input["include_inactive"])

	client, err := o.deps.ticketClient()
	if err != nil {
		return &ops.Result{Success: false, Message: err.Error()}
	}
	macros, err := client.Macros(ctx)
	if err != nil {
		return &ops.Result{Success: false, Message: fmt.Sprintf("Error fetching macros: %v", err)}
	}

	var matches []map[string]any
	for _, m := range macros {
		if !m.Active && !includeInactive {
			continue
		}
		if !macroMatches(m.Title, m.Actions, term) {
			continue
		}
		matches = append(matches, map[string]any{
			"id":      m.ID,
			"title":   m.Title,
			"active":  m.Active,
			"actions": m.Actions,
		})
	}

	return &ops.Result{
		Success: true,
		Message: fmt.Sprintf("Found %d macros matching '%s'", len(matches), input["search_term"]),
		Data: map[string]any{
			"operation":        "Macro Search",
			"search_term":      input["search_term"],
			"include_inactive": includeInactive,
			"total_matches":    len(matches),
			"macros":           matches,
		},
	}
}

func (o *macroSearch) ExportFormats() []string { return []string{"csv", "json"} }

func (o *macroSearch) Export(result *ops.Result, format string) ([]byte, string, string, error) {
	return exportMacroResult(result, format)
}

func macroMatches(title string, actions []string, term string) bool {
	if strings.Contains(strings.ToLower(title), term) {
		return true
	}
	for _, a := range actions {
		if strings.Contains(strings.ToLower(a), term) {
			return true
		}
	}
	return false
}
