package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	db     Pinger
	stats  func() map[string]int
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. db may be nil when the service
// runs on the in-memory store; stats reports connected realtime clients.
func NewHealthHandler(db Pinger, stats func() map[string]int, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, stats: stats, logger: logger}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string         `json:"status"`
	Database string         `json:"database,omitempty"`
	Clients  map[string]int `json:"clients,omitempty"`
}

// RegisterRoutes registers GET /health. It needs no authentication.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
}

// Health reports 503 when the database does not answer within two seconds.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Error("health check failed", "error", err)
			resp.Status = "unavailable"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}
	if h.stats != nil {
		resp.Clients = h.stats()
	}
	writeJSON(w, status, resp)
}
