package ops

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DuplicateSlugError reports a slug collision at registration time. It is a
// programmer error: startup must treat it as fatal.
type DuplicateSlugError struct {
	Slug string
}

func (e *DuplicateSlugError) Error() string {
	return fmt.Sprintf("operation slug already registered: %s", e.Slug)
}

// FormatError reports an export request for an undeclared format.
type FormatError struct {
	Format string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("export format not supported: %s", e.Format)
}

// Registry is the process-wide operation catalog.
//
// It is constructed once at startup and populated by an explicit
// registration call list. Operations never self-register as an import
// side effect, so registration order and completeness stay visible and
// testable. After startup the registry is effectively append-only; Clear
// exists for test isolation only.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds an operation under its descriptor slug. Returns
// *DuplicateSlugError if the slug is taken.
func (r *Registry) Register(op Operation) error {
	if op == nil {
		return fmt.Errorf("operation is nil")
	}
	desc := op.Descriptor()
	slug := strings.TrimSpace(desc.Slug)
	if slug == "" || desc.Name == "" {
		return fmt.Errorf("operation must define name and slug")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ops[slug]; ok {
		return &DuplicateSlugError{Slug: slug}
	}
	r.ops[slug] = op
	return nil
}

// Get returns the operation for slug, or nil when not registered.
func (r *Registry) Get(slug string) Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[slug]
}

// Exists reports whether slug is registered.
func (r *Registry) Exists(slug string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ops[slug]
	return ok
}

// All returns the descriptors of every registered operation, sorted by slug.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// ByCategory returns descriptors in the given category, sorted by slug.
func (r *Registry) ByCategory(category string) []Descriptor {
	var out []Descriptor
	for _, d := range r.All() {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// Categories returns the sorted set of categories in use.
func (r *Registry) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range r.All() {
		if !seen[d.Category] {
			seen[d.Category] = true
			out = append(out, d.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Clear removes all registrations. Test isolation only.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = make(map[string]Operation)
}
