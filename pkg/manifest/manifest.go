// Package manifest provides loading and validation of ticketops run manifests.
//
// A run manifest is a YAML or JSON file that names one registered operation
// and the form input it runs with, so a bulk run is reviewable and
// repeatable instead of hand-typed.
//
// Manifests are validated against a JSON Schema to ensure correctness before
// execution. The schema enforces strict typing and disallows unknown properties.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	operation: tag_add
//	owner: alice
//	params:
//	  view_id: 360001234
//	  tags: "urgent, billing"
//	  ticket_limit: 2000
//	seed: testdata/tickets.yaml
package manifest

import (
	"fmt"
	"strconv"
)

// CurrentVersion is the only manifest schema version this build accepts.
const CurrentVersion = "1.0"

// Manifest represents a validated run manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Operation is the slug of the registered operation to run.
	Operation string `json:"operation" yaml:"operation"`

	// Owner is recorded on any background job the run creates. Optional.
	Owner string `json:"owner,omitempty" yaml:"owner,omitempty"`

	// Params is the operation form input. Scalar values are accepted and
	// coerced to the string form the operation contract expects.
	Params map[string]any `json:"params" yaml:"params"`

	// Seed is an optional path to a YAML seed file for the in-memory
	// ticket store, used by the demo and test paths.
	Seed string `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ApplyDefaults fills optional fields with their documented defaults.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = CurrentVersion
	}
	if m.Owner == "" {
		m.Owner = "manifest"
	}
	if m.Params == nil {
		m.Params = map[string]any{}
	}
}

// Input renders the params in the string form operations consume. YAML
// scalars arrive as typed values, so numbers and booleans are formatted
// rather than rejected.
func (m *Manifest) Input() map[string]string {
	out := make(map[string]string, len(m.Params))
	for k, v := range m.Params {
		out[k] = paramString(v)
	}
	return out
}

func paramString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		// JSON numbers decode as float64. Keep integral values clean.
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
