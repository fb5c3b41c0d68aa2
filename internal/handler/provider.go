package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/fixmatch/internal/dispatch"
	"github.com/DukeRupert/fixmatch/internal/domain"
)

// OnlineRequest is the body of POST /api/providers/me/online. A location
// may be sent along so the provider is rankable straight away.
type OnlineRequest struct {
	Online   bool                `json:"online"`
	Location *domain.Coordinates `json:"location"`
}

// ProviderHandler serves the calling provider's presence.
type ProviderHandler struct {
	coordinator dispatch.Coordinator
	logger      *slog.Logger
}

// NewProviderHandler creates a new ProviderHandler.
func NewProviderHandler(coordinator dispatch.Coordinator, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{coordinator: coordinator, logger: logger}
}

// RegisterRoutes registers the presence routes.
//
// Routes:
// - POST /api/providers/me/online   -> SetOnline
// - POST /api/providers/me/location -> UpdateLocation
func (h *ProviderHandler) RegisterRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("POST /api/providers/me/online", requireAuth(http.HandlerFunc(h.SetOnline)))
	mux.Handle("POST /api/providers/me/location", requireAuth(http.HandlerFunc(h.UpdateLocation)))
}

// SetOnline handles POST /api/providers/me/online.
func (h *ProviderHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	const op = "handler.set_online"

	p, ok := principal(r)
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var body OnlineRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if body.Location != nil {
		if err := h.coordinator.UpdateProviderLocation(r.Context(), p, *body.Location); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}
	if err := h.coordinator.SetOnline(r.Context(), p, body.Online); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateLocation handles POST /api/providers/me/location.
func (h *ProviderHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	const op = "handler.update_provider_location"

	p, ok := principal(r)
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var body domain.Coordinates
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.coordinator.UpdateProviderLocation(r.Context(), p, body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
