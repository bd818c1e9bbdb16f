package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/shopward/api/internal/platform/httpx"
)

// ReadinessProbe reports whether a downstream dependency is reachable.
type ReadinessProbe func(ctx context.Context) error

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	probes    map[string]ReadinessProbe
	startTime time.Time
}

// NewHealthHandlers constructs health handlers over the named probes.
func NewHealthHandlers(probes map[string]ReadinessProbe) *HealthHandlers {
	return &HealthHandlers{
		probes:    probes,
		startTime: time.Now(),
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz runs the registered dependency probes and reports per-probe status.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.probes))
	for name, probe := range h.probes {
		if probe == nil {
			continue
		}
		if err := probe(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	payload := map[string]any{
		"status": "ready",
	}
	if status != http.StatusOK {
		payload["status"] = "degraded"
	}
	if len(checks) > 0 {
		payload["checks"] = checks
	}
	httpx.WriteJSON(w, status, payload)
}
