package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the health-check and status endpoints.
type HealthHandler struct {
	mode      string
	startedAt time.Time
}

func NewHealthHandler(mode string, startedAt time.Time) *HealthHandler {
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &HealthHandler{mode: mode, startedAt: startedAt}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus reports the engine mode and uptime.
// GET /api/status
func (h *HealthHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
