// Package handler contains the HTTP handlers for the fixmatch JSON API.
//
// This file implements the service request lifecycle endpoints.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/dispatch"
	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/service"
)

// =============================================================================
// Request/Response Types
// =============================================================================

// SubmitRequest is the body of POST /api/requests.
type SubmitRequest struct {
	Category    string              `json:"category"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Urgency     string              `json:"urgency"`
	Address     string              `json:"address"`
	Coordinates *domain.Coordinates `json:"coordinates"`
	ImageCount  int                 `json:"image_count"`
	VideoCount  int                 `json:"video_count"`
	Immediate   *bool               `json:"immediate"`
	ScheduledAt *time.Time          `json:"scheduled_at"`
}

func (s SubmitRequest) params() domain.SubmitRequestParams {
	// Without an explicit choice, no schedule means "now".
	immediate := s.ScheduledAt == nil
	if s.Immediate != nil {
		immediate = *s.Immediate
	}
	return domain.SubmitRequestParams{
		Category:    s.Category,
		Title:       s.Title,
		Description: s.Description,
		Urgency:     s.Urgency,
		Location:    domain.Location{Address: s.Address, Coordinates: s.Coordinates},
		ImageCount:  s.ImageCount,
		VideoCount:  s.VideoCount,
		Schedule:    domain.Schedule{Immediate: immediate, ScheduledAt: s.ScheduledAt},
	}
}

// EditRequest is the body of PATCH /api/requests/{id}. Omitted fields are
// left unchanged.
type EditRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Urgency     *string `json:"urgency"`
	ImageCount  *int    `json:"image_count"`
}

// StatusRequest is the body of POST /api/requests/{id}/status.
type StatusRequest struct {
	Status   domain.RequestStatus `json:"status"`
	Location *domain.Coordinates  `json:"location"`
	Notes    string               `json:"notes"`
}

// CompleteRequest is the body of POST /api/requests/{id}/complete.
type CompleteRequest struct {
	ChargedAmount int64  `json:"charged_amount"`
	Notes         string `json:"notes"`
}

// CompleteResponse reports a finished job. Review is set when the charge
// broke the price guarantee and settlement is on hold.
type CompleteResponse struct {
	Request RequestView `json:"request"`
	Review  *ErrorBody  `json:"review,omitempty"`
}

// CancelRequest is the body of POST /api/requests/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// MessageRequest is the body of POST /api/requests/{id}/messages.
type MessageRequest struct {
	MessageType domain.MessageType `json:"message_type"`
	Content     string             `json:"content"`
}

// RatingRequest is the body of POST /api/requests/{id}/rating.
type RatingRequest struct {
	Punctuality     int    `json:"punctuality"`
	Professionalism int    `json:"professionalism"`
	Quality         int    `json:"quality"`
	Communication   int    `json:"communication"`
	Value           int    `json:"value"`
	Comment         string `json:"comment"`
	WouldRecommend  bool   `json:"would_recommend"`
}

// PhotoResponse is returned after an upload.
type PhotoResponse struct {
	Photo   domain.Photo `json:"photo"`
	Request RequestView  `json:"request"`
}

// =============================================================================
// Handler Configuration
// =============================================================================

// RequestHandler serves the request lifecycle.
type RequestHandler struct {
	coordinator dispatch.Coordinator
	photos      service.PhotoService
	logger      *slog.Logger
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(
	coordinator dispatch.Coordinator,
	photos service.PhotoService,
	logger *slog.Logger,
) *RequestHandler {
	return &RequestHandler{
		coordinator: coordinator,
		photos:      photos,
		logger:      logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers the request routes with the provided mux.
//
// All routes require an authenticated caller; role checks happen in the
// coordinator so the rules live in one place.
//
// Routes:
// - POST  /api/requests                   -> Submit
// - GET   /api/requests/{id}              -> Get
// - PATCH /api/requests/{id}              -> Edit
// - POST  /api/requests/{id}/match        -> Match
// - POST  /api/requests/{id}/accept       -> Accept
// - POST  /api/requests/{id}/status       -> UpdateStatus
// - POST  /api/requests/{id}/complete     -> Complete
// - POST  /api/requests/{id}/cancel       -> Cancel
// - POST  /api/requests/{id}/location     -> UpdateLocation
// - GET   /api/requests/{id}/messages     -> ListMessages
// - POST  /api/requests/{id}/messages     -> SendMessage
// - POST  /api/requests/{id}/rating       -> Rate
// - GET   /api/requests/{id}/photos       -> ListPhotos
// - POST  /api/requests/{id}/photos       -> UploadPhoto
// - GET   /api/offers                     -> PendingOffers
// - GET   /api/reviews                    -> PriceReviews
func (h *RequestHandler) RegisterRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(fn))
	}

	route("POST /api/requests", h.Submit)
	route("GET /api/requests/{id}", h.Get)
	route("PATCH /api/requests/{id}", h.Edit)
	route("POST /api/requests/{id}/match", h.Match)
	route("POST /api/requests/{id}/accept", h.Accept)
	route("POST /api/requests/{id}/status", h.UpdateStatus)
	route("POST /api/requests/{id}/complete", h.Complete)
	route("POST /api/requests/{id}/cancel", h.Cancel)
	route("POST /api/requests/{id}/location", h.UpdateLocation)
	route("GET /api/requests/{id}/messages", h.ListMessages)
	route("POST /api/requests/{id}/messages", h.SendMessage)
	route("POST /api/requests/{id}/rating", h.Rate)
	route("GET /api/requests/{id}/photos", h.ListPhotos)
	route("POST /api/requests/{id}/photos", h.UploadPhoto)
	route("GET /api/offers", h.PendingOffers)
	route("GET /api/reviews", h.PriceReviews)
}

// =============================================================================
// Submit, read and edit
// =============================================================================

// Submit handles POST /api/requests.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.submit"

	p, ok := principal(r)
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var body SubmitRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req, err := h.coordinator.Submit(r.Context(), p, body.params())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRequestView(req, p))
}

// Get handles GET /api/requests/{id}. It returns the state recomputed from
// storage together with the tracking log.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handler.get_request"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	state, err := h.coordinator.State(r.Context(), p, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	tracking := state.Tracking
	if tracking == nil {
		tracking = []domain.TrackingEvent{}
	}
	okJSON(w, StateView{
		Request:  newRequestView(&state.Request, p),
		Status:   state.Status,
		Tracking: tracking,
	})
}

// Edit handles PATCH /api/requests/{id}.
func (h *RequestHandler) Edit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.edit_request"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	var body EditRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req, err := h.coordinator.Edit(r.Context(), p, domain.EditRequestParams{
		ID:          id,
		Title:       body.Title,
		Description: body.Description,
		Urgency:     body.Urgency,
		ImageCount:  body.ImageCount,
	})
	h.respond(w, r, p, req, err)
}

// Match handles POST /api/requests/{id}/match.
func (h *RequestHandler) Match(w http.ResponseWriter, r *http.Request) {
	const op = "handler.match"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}
	req, err := h.coordinator.Match(r.Context(), p, id)
	h.respond(w, r, p, req, err)
}

// =============================================================================
// Provider lifecycle
// =============================================================================

// Accept handles POST /api/requests/{id}/accept.
func (h *RequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	const op = "handler.accept"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}
	req, err := h.coordinator.Accept(r.Context(), p, id)
	h.respond(w, r, p, req, err)
}

// UpdateStatus handles POST /api/requests/{id}/status.
func (h *RequestHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	const op = "handler.update_status"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	var body StatusRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req, err := h.coordinator.UpdateStatus(r.Context(), p, domain.StatusUpdateParams{
		ID:       id,
		Status:   body.Status,
		Location: body.Location,
		Notes:    body.Notes,
	})
	h.respond(w, r, p, req, err)
}

// Complete handles POST /api/requests/{id}/complete. A charge above the
// guarantee still completes the job; the response is 202 with the review
// attached instead of 200.
func (h *RequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	const op = "handler.complete"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	var body CompleteRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req, err := h.coordinator.Complete(r.Context(), p, domain.CompleteParams{
		ID:            id,
		ChargedAmount: body.ChargedAmount,
		Notes:         body.Notes,
	})

	var violation *domain.PriceGuaranteeViolation
	switch {
	case err == nil:
		okJSON(w, CompleteResponse{Request: newRequestView(req, p)})
	case errors.As(err, &violation) && req != nil:
		h.logger.Warn("completed with held settlement",
			"request_id", req.ID,
			"quoted", violation.Quoted,
			"charged", violation.Charged,
		)
		writeJSON(w, http.StatusAccepted, CompleteResponse{
			Request: newRequestView(req, p),
			Review:  &ErrorBody{Code: domain.EREVIEW, Message: violation.Error()},
		})
	default:
		ErrorResponse(w, r, h.logger, err)
	}
}

// Cancel handles POST /api/requests/{id}/cancel.
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	const op = "handler.cancel"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	var body CancelRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req, err := h.coordinator.Cancel(r.Context(), p, id, body.Reason)
	h.respond(w, r, p, req, err)
}

// UpdateLocation handles POST /api/requests/{id}/location.
func (h *RequestHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	const op = "handler.update_location"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	var body domain.Coordinates
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	req, err := h.coordinator.UpdateLocation(r.Context(), p, id, body)
	h.respond(w, r, p, req, err)
}

// =============================================================================
// Messages and ratings
// =============================================================================

// ListMessages handles GET /api/requests/{id}/messages.
func (h *RequestHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	const op = "handler.list_messages"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	msgs, err := h.coordinator.ListMessages(r.Context(), p, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	okJSON(w, msgs)
}

// SendMessage handles POST /api/requests/{id}/messages.
func (h *RequestHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	const op = "handler.send_message"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	var body MessageRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	msg, err := h.coordinator.SendMessage(r.Context(), p, domain.SendMessageParams{
		RequestID:   id,
		MessageType: body.MessageType,
		Content:     body.Content,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Rate handles POST /api/requests/{id}/rating.
func (h *RequestHandler) Rate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.rate"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	var body RatingRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	rating, err := h.coordinator.Rate(r.Context(), p, domain.RateParams{
		RequestID:       id,
		Punctuality:     body.Punctuality,
		Professionalism: body.Professionalism,
		Quality:         body.Quality,
		Communication:   body.Communication,
		Value:           body.Value,
		Comment:         body.Comment,
		WouldRecommend:  body.WouldRecommend,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}

// =============================================================================
// Photos
// =============================================================================

// ListPhotos handles GET /api/requests/{id}/photos.
func (h *RequestHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	const op = "handler.list_photos"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	photos, err := h.photos.List(r.Context(), p, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if photos == nil {
		photos = []domain.Photo{}
	}
	okJSON(w, photos)
}

// UploadPhoto handles POST /api/requests/{id}/photos. The image is sent as
// the "photo" field of a multipart form.
func (h *RequestHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	const op = "handler.upload_photo"

	p, id, ok := h.caller(w, r, op)
	if !ok {
		return
	}

	// Leave room for the multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxPhotoSize+64<<10)
	file, _, err := r.FormFile("photo")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "photo exceeds %d MB", domain.MaxPhotoSize>>20))
			return
		}
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "photo", "is required"))
		return
	}
	defer file.Close()

	photo, req, err := h.photos.Upload(r.Context(), p, id, file)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, PhotoResponse{Photo: *photo, Request: newRequestView(req, p)})
}

// =============================================================================
// Listings
// =============================================================================

// PendingOffers handles GET /api/offers for providers.
func (h *RequestHandler) PendingOffers(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	offers, err := h.coordinator.PendingOffers(r.Context(), p)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	okJSON(w, newRequestViews(offers, p))
}

// PriceReviews handles GET /api/reviews for operators.
func (h *RequestHandler) PriceReviews(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	reviews, err := h.coordinator.PriceReviews(r.Context(), p)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if reviews == nil {
		reviews = []domain.PriceReview{}
	}
	okJSON(w, reviews)
}

// =============================================================================
// Helpers
// =============================================================================

// caller resolves the principal and the {id} path value, writing the error
// response itself when either is missing.
func (h *RequestHandler) caller(w http.ResponseWriter, r *http.Request, op string) (domain.Principal, uuid.UUID, bool) {
	p, ok := principal(r)
	if !ok {
		UnauthorizedResponse(w, r, h.logger)
		return domain.Principal{}, uuid.Nil, false
	}
	id, err := pathID(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return domain.Principal{}, uuid.Nil, false
	}
	return p, id, true
}

func (h *RequestHandler) respond(w http.ResponseWriter, r *http.Request, p domain.Principal, req *domain.ServiceRequest, err error) {
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	okJSON(w, newRequestView(req, p))
}
