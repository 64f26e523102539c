package batch

// Result aggregates per-item outcomes from one executor run.
//
// Produced fresh by every Run; it becomes the job's result payload on
// completion or feeds the error message on total failure.
type Result struct {
	// Successful holds the IDs whose mutation succeeded (first try or retry).
	Successful []int64 `json:"successful"`

	// Failed holds the IDs whose mutation failed terminally.
	Failed []int64 `json:"failed"`

	// Errors holds one human-readable string per failed item.
	Errors []string `json:"errors"`
}

// TotalFailure reports whether nothing in the batch succeeded.
func (r *Result) TotalFailure() bool {
	return len(r.Successful) == 0 && len(r.Failed) > 0
}
