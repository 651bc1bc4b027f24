package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler responds with service health information.
type HealthHandler struct {
	Sessions Pinger
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload := map[string]string{
		"status": "ok",
	}
	status := http.StatusOK

	if h.Sessions != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.Sessions.Ping(pingCtx); err != nil {
			payload["status"] = "degraded"
			payload["sessions"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	respondJSON(ctx, w, status, payload)
}
