// Package ops defines the contract every bulk operation satisfies and the
// registry that catalogs them.
//
// An operation is a fixed capability set behind one interface: a form
// schema, input validation, synchronous execution, optional asynchronous
// execution, and optional result export. Concrete operations embed Base and
// override only what they support.
package ops

import "context"

// Ceilings bound how many items one call may touch.
const (
	// DefaultSyncCeiling is the hard per-call item ceiling for synchronous
	// execution. It keeps worst-case request latency predictable.
	DefaultSyncCeiling = 500

	// DefaultAsyncCeiling is the per-job item ceiling for background runs.
	DefaultAsyncCeiling = 50000
)

// Descriptor is the immutable metadata of a registered operation.
type Descriptor struct {
	// Name is the human display name.
	Name string `json:"name"`

	// Slug is the stable, URL-safe unique key.
	Slug string `json:"slug"`

	// Description is a one-line summary.
	Description string `json:"description"`

	// Category groups operations for listing.
	Category string `json:"category"`

	// RequiresAdmin marks potentially destructive operations.
	RequiresAdmin bool `json:"requires_admin"`

	// Async reports declared support for background execution.
	Async bool `json:"async"`

	// ExportFormats lists the declared export format tags.
	ExportFormats []string `json:"export_formats,omitempty"`
}

// Option is one choice in a select field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormField describes one input field of an operation's form schema.
type FormField struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"` // text, number, select, checkbox
	Required    bool     `json:"required"`
	Placeholder string   `json:"placeholder,omitempty"`
	Help        string   `json:"help,omitempty"`
	Options     []Option `json:"options,omitempty"`
}

// Result is the outcome of a synchronous execution. Failures are captured
// here, never raised past the operation boundary.
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// AsyncResult is the immediate outcome of starting a background run.
type AsyncResult struct {
	Success bool   `json:"success"`
	QueueID string `json:"queue_id,omitempty"`
	JobID   int64  `json:"job_id,omitempty"`
	Message string `json:"message"`
}

// Operation is the capability set every bulk action implements.
type Operation interface {
	// Descriptor returns the operation's immutable metadata.
	Descriptor() Descriptor

	// FormFields returns the ordered field descriptors. It may perform
	// read-only remote lookups to populate select options; a lookup
	// failure degrades to an error option entry, never an error return.
	FormFields(ctx context.Context) []FormField

	// Validate checks the raw input. Pure: no side effects, no remote
	// calls. Returns ok=false with a user-facing message on rejection.
	Validate(input map[string]string) (bool, string)

	// Execute runs the operation synchronously, bounded by the sync item
	// ceiling. All failures are captured into the Result.
	Execute(ctx context.Context, input map[string]string) *Result

	// SupportsAsync reports declared support for background execution.
	SupportsAsync() bool

	// ItemCeiling returns the per-call item bound for the given mode.
	ItemCeiling(asyncMode bool) int

	// ExecuteAsync creates the job row and submits the deferred unit of
	// work under queueID, returning without blocking on completion. Only
	// called when SupportsAsync is true.
	ExecuteAsync(ctx context.Context, input map[string]string, queueID, owner string) *AsyncResult

	// ExportFormats lists the supported export format tags (may be empty).
	ExportFormats() []string

	// Export renders a result in the given format, returning the payload,
	// its MIME type, and a suggested filename.
	Export(result *Result, format string) (data []byte, mime string, filename string, err error)
}

// Base supplies the default capability answers. Concrete operations embed
// it and override the methods they actually support.
type Base struct{}

func (Base) SupportsAsync() bool { return false }

func (Base) ItemCeiling(asyncMode bool) int {
	if asyncMode {
		return DefaultAsyncCeiling
	}
	return DefaultSyncCeiling
}

func (Base) ExecuteAsync(ctx context.Context, input map[string]string, queueID, owner string) *AsyncResult {
	return &AsyncResult{
		Success: false,
		Message: "asynchronous execution is not supported by this operation",
	}
}

func (Base) ExportFormats() []string { return nil }

func (Base) Export(result *Result, format string) ([]byte, string, string, error) {
	return nil, "", "", &FormatError{Format: format}
}
