package handlers

import (
	"context"
	"net/http"
	"time"

	apperrors "github.com/inematds/inemavox/internal/errors"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker probes one dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthManager aggregates named checkers into the /health endpoints.
type HealthManager struct {
	version  string
	checkers map[string]HealthChecker
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version, checkers: map[string]HealthChecker{}}
}

// RegisterChecker adds a named probe. Not safe to call once serving started.
func (m *HealthManager) RegisterChecker(name string, c HealthChecker) {
	m.checkers[name] = c
}

// HealthResponse is the healthy-path body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// HealthHandler runs every checker and reports aggregate health. Any
// failing check yields a 503 with per-check detail.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(m.checkers))
	healthy := true

	for name, c := range m.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.CheckHealth(ctx)
		cancel()
		if err != nil {
			checks[name] = "unhealthy"
			healthy = false
			continue
		}
		checks[name] = "healthy"
	}

	if !healthy {
		apperrors.WriteError(w, r, http.StatusServiceUnavailable,
			"SERVICE_UNAVAILABLE", "one or more health checks failed",
			map[string]any{"checks": checks})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: m.version,
		Checks:  checks,
	})
}

// LivenessHandler reports process liveness only; it never consults checkers.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// VersionHandler reports the build version.
func (m *HealthManager) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": m.version})
}
