// Package handlers implements the HTTP endpoints: health probes, version,
// operation listing and execution, and job lifecycle management.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds each individual health check.
const checkTimeout = 2 * time.Second

// HealthChecker reports the health of one dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the healthy-path response body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers and renders probe responses.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager returns a manager reporting the given build version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds a named dependency check.
func (m *HealthManager) RegisterChecker(name string, c HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

// runChecks evaluates every checker with a per-check timeout.
func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]string, len(m.checkers))
	for name, c := range m.checkers {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.CheckHealth(checkCtx)
		cancel()
		switch {
		case err == nil:
			results[name] = "healthy"
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus folds per-check results into one status. Any
// failure is unhealthy; a timeout alone degrades without failing probes.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler is the full health probe: runs every check and reports 503
// with per-check detail when any dependency is down.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		writeHealthError(w, checks)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: m.version,
		Checks:  checks,
	})
}

// LivenessHandler reports process liveness only; it never runs checks.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "alive", Version: m.version})
}

// ReadinessHandler mirrors the full health probe for readiness gates.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler mirrors the full health probe for startup gates.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

func writeHealthError(w http.ResponseWriter, checks map[string]string) {
	body := map[string]any{
		"error": map[string]any{
			"code":    "SERVICE_UNAVAILABLE",
			"message": "one or more dependencies are unhealthy",
			"details": map[string]any{
				"checks": checks,
			},
		},
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// globalHealthManager backs the package-level probe handlers routed by the
// server. Initialized once at startup.
var globalHealthManager *HealthManager

// InitHealthManager initializes the global manager with the build version.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global manager, or nil before init.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// HealthHandler serves the full health probe via the global manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		writeHealthUninitialized(w)
		return
	}
	globalHealthManager.HealthHandler(w, r)
}

// LivenessHandler serves the liveness probe via the global manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		writeHealthUninitialized(w)
		return
	}
	globalHealthManager.LivenessHandler(w, r)
}

// ReadinessHandler serves the readiness probe via the global manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		writeHealthUninitialized(w)
		return
	}
	globalHealthManager.ReadinessHandler(w, r)
}

// StartupHandler serves the startup probe via the global manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		writeHealthUninitialized(w)
		return
	}
	globalHealthManager.StartupHandler(w, r)
}

func writeHealthUninitialized(w http.ResponseWriter) {
	body := map[string]any{
		"error": map[string]any{
			"code":    "SERVICE_UNAVAILABLE",
			"message": "health manager not initialized",
		},
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}
