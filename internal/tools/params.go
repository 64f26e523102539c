package tools

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/3leaps/ticketops/pkg/ticketapi"
)

// decodeParams maps raw form input into a typed params struct. Input values
// arrive as strings, so decoding is weakly typed (numbers parsed from text).
func decodeParams(input map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build params decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

// truthy interprets checkbox-style form values.
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// parseTags splits a comma-separated tag list, dropping empties.
func parseTags(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ticketIDs projects the ids out of a ticket slice, preserving view order.
func ticketIDs(tickets []ticketapi.Ticket) []int64 {
	out := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.ID)
	}
	return out
}
