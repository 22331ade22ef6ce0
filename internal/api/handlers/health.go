package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/leadcrm/leadcrm/internal/buildconfig"
)

// HealthHandler reports liveness and, when a check is configured, backing
// store reachability.
type HealthHandler struct {
	check   func(ctx context.Context) error
	started time.Time
}

func NewHealthHandler(check func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{check: check, started: time.Now()}
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"uptime": time.Since(h.started).Round(time.Second).String(),
		"build":  buildconfig.VersionInfo(),
	}
	if h.check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.check(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}
