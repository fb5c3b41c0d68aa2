package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/fixmatch/internal/classify"
	"github.com/DukeRupert/fixmatch/internal/dispatch"
	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/pricing"
)

// ClassifyRequest is the body of POST /api/classify.
type ClassifyRequest struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Urgency     string `json:"urgency"`
	ImageCount  int    `json:"image_count"`
}

// QuoteRequest is the body of POST /api/quote. Complexity may be given
// directly; otherwise it comes from classifying the description.
type QuoteRequest struct {
	Category    string     `json:"category"`
	Urgency     string     `json:"urgency"`
	Address     string     `json:"address"`
	Description string     `json:"description"`
	Complexity  string     `json:"complexity"`
	Immediate   bool       `json:"immediate"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	DistanceKm  *float64   `json:"distance_km"`
}

// QuoteResponse is a stand-alone estimate. Nothing is stored.
type QuoteResponse struct {
	Quote          domain.PriceQuote            `json:"quote"`
	Classification *domain.ClassificationResult `json:"classification,omitempty"`
}

// QuoteHandler serves estimates without creating a request.
type QuoteHandler struct {
	classifier dispatch.Classifier
	pricer     dispatch.Pricer
	now        func() time.Time
	logger     *slog.Logger
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(classifier dispatch.Classifier, pricer dispatch.Pricer, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		classifier: classifier,
		pricer:     pricer,
		now:        time.Now,
		logger:     logger,
	}
}

// RegisterRoutes registers the estimate routes.
//
// Routes:
// - POST /api/classify -> Classify
// - POST /api/quote    -> Quote
func (h *QuoteHandler) RegisterRoutes(mux *http.ServeMux, requireAuth func(http.Handler) http.Handler) {
	mux.Handle("POST /api/classify", requireAuth(http.HandlerFunc(h.Classify)))
	mux.Handle("POST /api/quote", requireAuth(http.HandlerFunc(h.Quote)))
}

// Classify handles POST /api/classify.
func (h *QuoteHandler) Classify(w http.ResponseWriter, r *http.Request) {
	const op = "handler.classify"

	var body ClassifyRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	in, err := classifyInput(op, body.Description, body.Category, body.Urgency, body.ImageCount)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	okJSON(w, h.classifier.Classify(in))
}

// Quote handles POST /api/quote.
func (h *QuoteHandler) Quote(w http.ResponseWriter, r *http.Request) {
	const op = "handler.quote"

	var body QuoteRequest
	if err := decodeJSON(w, r, op, &body); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	in, err := classifyInput(op, body.Description, body.Category, body.Urgency, 0)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var resp QuoteResponse
	complexity := domain.Complexity(body.Complexity)
	switch {
	case complexity != "":
		if !complexity.IsValid() {
			ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "complexity", "must be one of simple, moderate, complex"))
			return
		}
	case body.Description != "":
		result := h.classifier.Classify(in)
		resp.Classification = &result
		complexity = result.Complexity
	default:
		complexity = domain.ComplexityModerate
	}

	category := in.Category
	if category == "" {
		category = domain.CategoryGeneral
	}
	at := h.now()
	if body.ScheduledAt != nil {
		at = *body.ScheduledAt
	}

	quote, err := h.pricer.Quote(pricing.QuoteParams{
		Category:   category,
		Urgency:    in.Urgency,
		Location:   body.Address,
		TimeSlot:   h.pricer.SlotFor(at, body.Immediate, in.Urgency),
		Complexity: complexity,
		DistanceKm: body.DistanceKm,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	resp.Quote = quote
	okJSON(w, resp)
}

func classifyInput(op, description, category, urgency string, imageCount int) (classify.Input, error) {
	c, err := domain.ParseCategory(op, category)
	if err != nil {
		return classify.Input{}, err
	}
	l, err := domain.ParseLevel(op, urgency)
	if err != nil {
		return classify.Input{}, err
	}
	if imageCount < 0 {
		return classify.Input{}, domain.NewValidationError(op, "image_count", "must not be negative")
	}
	return classify.Input{
		Description: description,
		Category:    c,
		Urgency:     l,
		ImageCount:  imageCount,
	}, nil
}
