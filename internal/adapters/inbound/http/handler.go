// handler.go provides HTTP handlers for operator diagnostics.
//
// This inbound adapter exposes the pusher state over HTTP:
//   - GET /status: last confirmed price and age of every (feed, network) pair
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/archon-research/oracle-pusher/internal/ports/inbound"
)

// Handler implements HTTP handlers for the API.
type Handler struct {
	reporter inbound.StatusReporter
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler with the given status reporter.
func NewHandler(reporter inbound.StatusReporter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		reporter: reporter,
		logger:   logger.With("component", "status-handler"),
	}
}

// RegisterRoutes registers the HTTP routes with the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.Status)
}

// Status handles the status endpoint.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.reporter.Status(r.Context())
	if err != nil {
		h.logger.Error("failed to build status", "error", err)
		h.respondError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
