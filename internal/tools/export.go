package tools

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/3leaps/ticketops/pkg/ops"
)

const (
	mimeCSV  = "text/csv"
	mimeJSON = "application/json"
)

// exportTicketResult renders a bulk ticket run as CSV or JSON. Result data
// may come straight from an inline run or be rehydrated from a stored job
// payload, so numeric values are normalized before formatting.
func exportTicketResult(slug string, result *ops.Result, format string) ([]byte, string, string, error) {
	if result == nil || result.Data == nil {
		return nil, "", "", fmt.Errorf("no result data to export")
	}
	base := fmt.Sprintf("%s_view_%s", slug, anyToString(result.Data["view_id"]))

	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, "", "", fmt.Errorf("encode export: %w", err)
		}
		return data, mimeJSON, base + ".json", nil
	case "csv":
		data, err := ticketCSV(result.Data)
		if err != nil {
			return nil, "", "", err
		}
		return data, mimeCSV, base + ".csv", nil
	default:
		return nil, "", "", &ops.FormatError{Format: format}
	}
}

func ticketCSV(data map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if data["tickets"] != nil {
		preview := anyToMapSlice(data["tickets"])
		if err := w.Write([]string{"ticket_id", "subject", "status", "tags"}); err != nil {
			return nil, err
		}
		for _, t := range preview {
			row := []string{
				anyToString(t["id"]),
				anyToString(t["subject"]),
				anyToString(t["status"]),
				strings.Join(anyToStrings(t["tags"]), " "),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
		w.Flush()
		return buf.Bytes(), w.Error()
	}

	if err := w.Write([]string{"ticket_id", "result", "error"}); err != nil {
		return nil, err
	}
	for _, id := range anyToInt64s(data["successful_tickets"]) {
		if err := w.Write([]string{strconv.FormatInt(id, 10), "success", ""}); err != nil {
			return nil, err
		}
	}
	failed := anyToInt64s(data["failed_tickets"])
	errs := anyToStrings(data["errors"])
	for i, id := range failed {
		msg := ""
		if i < len(errs) {
			msg = errs[i]
		}
		if err := w.Write([]string{strconv.FormatInt(id, 10), "failed", msg}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// exportMacroResult renders macro search matches as CSV or JSON.
func exportMacroResult(result *ops.Result, format string) ([]byte, string, string, error) {
	if result == nil || result.Data == nil {
		return nil, "", "", fmt.Errorf("no result data to export")
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, "", "", fmt.Errorf("encode export: %w", err)
		}
		return data, mimeJSON, "macro_search_results.json", nil
	case "csv":
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"macro_id", "title", "active", "actions"}); err != nil {
			return nil, "", "", err
		}
		for _, m := range anyToMapSlice(result.Data["macros"]) {
			row := []string{
				anyToString(m["id"]),
				anyToString(m["title"]),
				anyToString(m["active"]),
				strings.Join(anyToStrings(m["actions"]), "; "),
			}
			if err := w.Write(row); err != nil {
				return nil, "", "", err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), mimeCSV, "macro_search_results.csv", nil
	default:
		return nil, "", "", &ops.FormatError{Format: format}
	}
}

// The normalizers below accept both native values produced by an inline run
// and the JSON-decoded shapes read back from a stored job payload.

func anyToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func anyToInt64s(v any) []int64 {
	switch x := v.(type) {
	case []int64:
		return x
	case []any:
		out := make([]int64, 0, len(x))
		for _, e := range x {
			switch n := e.(type) {
			case float64:
				out = append(out, int64(n))
			case int64:
				out = append(out, n)
			case int:
				out = append(out, int64(n))
			}
		}
		return out
	}
	return nil
}

func anyToStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, anyToString(e))
		}
		return out
	}
	return nil
}

func anyToMapSlice(v any) []map[string]any {
	switch x := v.(type) {
	case []map[string]any:
		return x
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, e := range x {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
