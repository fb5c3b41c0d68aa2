package dispatch

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/classify"
	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/metrics"
	"github.com/DukeRupert/fixmatch/internal/pricing"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
)

// Submit validates, classifies and prices a new request, then runs the
// first matching pass.
func (c *coordinator) Submit(ctx context.Context, p domain.Principal, params domain.SubmitRequestParams) (*domain.ServiceRequest, error) {
	const op = "dispatch.submit"

	if err := requireRole(op, p, domain.RoleRequester); err != nil {
		return nil, err
	}

	category, urgency, err := validateSubmit(op, params)
	if err != nil {
		return nil, err
	}

	now := c.now()
	req := &domain.ServiceRequest{
		ID:          uuid.New(),
		RequesterID: p.ID,
		Category:    category,
		Title:       strings.TrimSpace(params.Title),
		Description: strings.TrimSpace(params.Description),
		Urgency:     urgency,
		Location:    params.Location,
		ImageCount:  params.ImageCount,
		VideoCount:  params.VideoCount,
		Schedule:    params.Schedule,
		Status:      domain.RequestStatusSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Schedule.ScheduledAt == nil {
		req.Schedule.Immediate = true
	}

	if err := c.assess(op, req); err != nil {
		return nil, err
	}

	if err := c.store.CreateRequest(ctx, req); err != nil {
		return nil, domain.Internal(err, op, "failed to create request")
	}
	c.track(ctx, req, domain.RequestStatusSubmitted, nil, "")

	metrics.RequestsSubmitted.WithLabelValues(string(req.Quote.Category)).Inc()
	metrics.QuoteFinalPrice.WithLabelValues(string(req.Quote.Category)).Observe(float64(req.Quote.FinalPrice))

	c.logger.Info("request submitted",
		"request_id", req.ID,
		"requester_id", req.RequesterID,
		"category", req.Quote.Category,
		"severity", req.Classification.Severity,
		"final_price", req.Quote.FinalPrice,
	)

	matched, err := c.match(ctx, req, false)
	if err != nil {
		// The request is stored; the retry hook picks it up again.
		c.logger.Error("initial matching pass failed",
			"request_id", req.ID,
			"error", err,
		)
		c.schedule(ctx, req)
		return req, nil
	}
	return matched, nil
}

// Edit changes the description, title, urgency or photo count before a
// provider accepts. An edit that changes the required skills of a matched
// request withdraws its offers and runs a fresh pass.
func (c *coordinator) Edit(ctx context.Context, p domain.Principal, params domain.EditRequestParams) (*domain.ServiceRequest, error) {
	const op = "dispatch.edit"

	var (
		req       *domain.ServiceRequest
		reoffer   bool
		withdrawn []uuid.UUID
		err       error
	)
	for attempt := 1; ; attempt++ {
		if req, err = c.load(ctx, op, params.ID); err != nil {
			return nil, err
		}
		if err := requireOwner(op, p, req); err != nil {
			return nil, err
		}
		if err := requireEditable(op, req); err != nil {
			return nil, err
		}
		if err := applyEdit(op, req, params); err != nil {
			return nil, err
		}

		skills := slices.Clone(req.Classification.RequiredSkills)
		if err := c.assess(op, req); err != nil {
			return nil, err
		}
		reoffer = req.Status == domain.RequestStatusMatched && !slices.Equal(skills, req.Classification.RequiredSkills)
		if reoffer {
			withdrawn = req.Notified
			req.Candidates = nil
			req.Notified = nil
		}

		err = c.save(ctx, op, req, req.Status)
		if err == nil {
			break
		}
		if !stale(err) || attempt == saveRetries {
			return nil, err
		}
	}

	c.logger.Info("request edited",
		"request_id", req.ID,
		"final_price", req.Quote.FinalPrice,
		"rematch", reoffer,
	)
	if !reoffer {
		return req, nil
	}
	return c.rematch(ctx, req, withdrawn), nil
}

// rematch offers an edited request again and tells previously offered
// providers who are no longer offered that the job is gone.
func (c *coordinator) rematch(ctx context.Context, req *domain.ServiceRequest, withdrawn []uuid.UUID) *domain.ServiceRequest {
	matched, err := c.match(ctx, req, req.MatchAttempts > 1)
	if err != nil {
		c.logger.Error("matching pass after edit failed",
			"request_id", req.ID,
			"error", err,
		)
		c.schedule(ctx, req)
		matched = req
	}
	for _, pid := range withdrawn {
		if !matched.WasNotified(pid) {
			c.notify(domain.ProviderRecipient(pid), domain.EventRequestUnavailable, req.ID, nil)
		}
	}
	return matched
}

func applyEdit(op string, req *domain.ServiceRequest, params domain.EditRequestParams) error {
	var verr *domain.ValidationError
	fail := func(field, msg string) {
		if verr == nil {
			verr = &domain.ValidationError{Op: op}
		}
		verr.Add(field, msg)
	}

	if params.Title != nil {
		title := strings.TrimSpace(*params.Title)
		switch {
		case title == "":
			fail("title", "is required")
		case utf8.RuneCountInString(title) > maxTitleLength:
			fail("title", "is too long")
		default:
			req.Title = title
		}
	}
	if params.Description != nil {
		desc := strings.TrimSpace(*params.Description)
		switch {
		case desc == "":
			fail("description", "is required")
		case utf8.RuneCountInString(desc) > maxDescriptionLength:
			fail("description", "is too long")
		default:
			req.Description = desc
		}
	}
	if params.Urgency != nil {
		level, err := domain.ParseLevel(op, *params.Urgency)
		if err != nil {
			fail("urgency", "must be one of low, normal, high")
		} else {
			req.Urgency = level
		}
	}
	if params.ImageCount != nil {
		if *params.ImageCount < 0 {
			fail("image_count", "must not be negative")
		} else {
			req.ImageCount = *params.ImageCount
		}
	}
	if verr != nil {
		return verr
	}
	return nil
}

// AttachPhoto records a stored photo and reassesses the request.
func (c *coordinator) AttachPhoto(ctx context.Context, p domain.Principal, photo domain.Photo) (*domain.ServiceRequest, error) {
	const op = "dispatch.attach_photo"

	var (
		req     *domain.ServiceRequest
		created bool
		err     error
	)
	for attempt := 1; ; attempt++ {
		if req, err = c.load(ctx, op, photo.RequestID); err != nil {
			return nil, err
		}
		if err := requireOwner(op, p, req); err != nil {
			return nil, err
		}
		if err := requireEditable(op, req); err != nil {
			return nil, err
		}
		if req.ImageCount >= domain.MaxPhotosPerRequest {
			return nil, domain.Invalid(op, "photo limit reached for this request")
		}

		if !created {
			if photo.ID == uuid.Nil {
				photo.ID = uuid.New()
			}
			if photo.CreatedAt.IsZero() {
				photo.CreatedAt = c.now()
			}
			if err := c.store.CreatePhoto(ctx, photo); err != nil {
				return nil, domain.Internal(err, op, "failed to save photo")
			}
			created = true
		}

		req.ImageCount++
		if err := c.assess(op, req); err != nil {
			return nil, err
		}
		err = c.save(ctx, op, req, req.Status)
		if err == nil {
			break
		}
		if !stale(err) || attempt == saveRetries {
			return nil, err
		}
	}

	c.logger.Info("photo attached",
		"request_id", req.ID,
		"photo_id", photo.ID,
		"image_count", req.ImageCount,
	)
	return req, nil
}

// ListPhotos returns the photos attached to a request.
func (c *coordinator) ListPhotos(ctx context.Context, p domain.Principal, id uuid.UUID) ([]domain.Photo, error) {
	const op = "dispatch.list_photos"

	req, err := c.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, req) {
		return nil, domain.NotFound(op, "request", id.String())
	}

	photos, err := c.store.ListPhotos(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list photos")
	}
	return photos, nil
}

// =============================================================================
// Helpers
// =============================================================================

func validateSubmit(op string, params domain.SubmitRequestParams) (domain.Category, domain.Level, error) {
	var verr *domain.ValidationError
	fail := func(field, msg string) {
		if verr == nil {
			verr = &domain.ValidationError{Op: op}
		}
		verr.Add(field, msg)
	}

	category, err := domain.ParseCategory(op, params.Category)
	if err != nil {
		fail("category", "is not a recognized service category")
	}
	urgency, err := domain.ParseLevel(op, params.Urgency)
	if err != nil {
		fail("urgency", "must be one of low, normal, high")
	}

	title := strings.TrimSpace(params.Title)
	if title == "" {
		fail("title", "is required")
	} else if utf8.RuneCountInString(title) > maxTitleLength {
		fail("title", "is too long")
	}
	desc := strings.TrimSpace(params.Description)
	if desc == "" {
		fail("description", "is required")
	} else if utf8.RuneCountInString(desc) > maxDescriptionLength {
		fail("description", "is too long")
	}

	if strings.TrimSpace(params.Location.Address) == "" {
		fail("address", "is required")
	}
	if c := params.Location.Coordinates; c != nil && !c.IsValid() {
		fail("coordinates", "are out of range")
	}
	if params.ImageCount < 0 {
		fail("image_count", "must not be negative")
	}
	if params.VideoCount < 0 {
		fail("video_count", "must not be negative")
	}

	if verr != nil {
		return "", "", verr
	}
	return category, urgency, nil
}

func requireEditable(op string, req *domain.ServiceRequest) error {
	if req.IsEditable() {
		return nil
	}
	if req.IsTerminal() {
		return &domain.StateTransitionError{
			RequestID: req.ID.String(),
			Current:   req.Status,
			Target:    req.Status,
		}
	}
	return domain.Conflict(op, "request can no longer be changed once a provider has accepted")
}

// assess recomputes classification and quote from the request's current
// fields. A category the requester left blank is priced as general.
func (c *coordinator) assess(op string, req *domain.ServiceRequest) error {
	req.Classification = c.classifier.Classify(classify.Input{
		Description: req.Description,
		Category:    req.Category,
		Urgency:     req.Urgency,
		ImageCount:  req.ImageCount,
	})
	return c.requote(op, req)
}

// requote prices req from its current fields. An existing quote keeps its
// demand multiplier, and once a pass has ranked candidates the callout is
// priced on the distance to the best of them.
func (c *coordinator) requote(op string, req *domain.ServiceRequest) error {
	at := c.now()
	if req.Schedule.ScheduledAt != nil {
		at = *req.Schedule.ScheduledAt
	}

	category := req.Category
	if category == "" {
		category = domain.CategoryGeneral
	}

	params := pricing.QuoteParams{
		Category:   category,
		Urgency:    req.Urgency,
		Location:   req.Location.Address,
		TimeSlot:   c.pricer.SlotFor(at, req.Schedule.Immediate, req.Urgency),
		Complexity: req.Classification.Complexity,
	}
	if m := req.Quote.DemandMultiplier; m > 0 {
		params.DemandMultiplier = &m
	}
	if len(req.Candidates) > 0 && req.Candidates[0].DistanceKm != nil {
		km := *req.Candidates[0].DistanceKm
		params.DistanceKm = &km
	}

	quote, err := c.pricer.Quote(params)
	if err != nil {
		if domain.ErrorCode(err) == domain.EINVALID {
			return err
		}
		return domain.Internal(err, op, "failed to price request")
	}
	req.Quote = quote
	return nil
}
