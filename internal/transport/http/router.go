package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lexvault/internal/privilege"
)

// NewRouter assembles the full HTTP surface: the authenticated privilege API
// plus the unauthenticated operational endpoints.
func NewRouter(handler *Handler, engine *privilege.Engine, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealth(engine))
	r.Handle("/metrics", promhttp.Handler())

	handler.Register(r)
	return r
}

// handleHealth reports liveness plus the audit failure count. A non-zero
// count means privileged operations succeeded without their trail entries,
// which operators must see immediately.
func handleHealth(engine *privilege.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := engine.AuditFailures()
		status := http.StatusOK
		state := "ok"
		if failures > 0 {
			state = "degraded"
		}
		writeJSON(w, status, map[string]any{
			"status":               state,
			"audit_write_failures": failures,
		})
	}
}
