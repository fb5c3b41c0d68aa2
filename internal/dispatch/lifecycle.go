package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/matching"
	"github.com/DukeRupert/fixmatch/internal/metrics"
	"github.com/DukeRupert/fixmatch/internal/pricing"
)

// saveRetries bounds how often a writer reloads after losing a race.
const saveRetries = 3

// =============================================================================
// Accept
// =============================================================================

// Accept assigns the calling provider to a matched request.
func (c *coordinator) Accept(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.ServiceRequest, error) {
	const op = "dispatch.accept"

	if err := requireRole(op, p, domain.RoleProvider); err != nil {
		return nil, err
	}
	req, err := c.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !req.WasNotified(p.ID) && !req.IsCandidate(p.ID) {
		return nil, domain.Forbidden(op, "this request was not offered to you")
	}

	switch {
	case req.IsTerminal(), req.Status == domain.RequestStatusSubmitted:
		return nil, &domain.StateTransitionError{
			RequestID: req.ID.String(),
			Current:   req.Status,
			Target:    domain.RequestStatusConfirmed,
		}
	case req.IsAssignedTo(p.ID):
		return req, nil
	case req.Status != domain.RequestStatusMatched:
		return nil, c.lostRace(req, p.ID)
	}

	assigned, err := c.store.AssignProvider(ctx, id, p.ID, c.now())
	if err != nil {
		var stErr *domain.StateTransitionError
		if !errors.As(err, &stErr) {
			return nil, domain.Internal(err, op, "failed to assign provider")
		}
		if stErr.Current.IsTerminal() {
			return nil, stErr
		}
		return nil, c.lostRace(req, p.ID)
	}

	c.track(ctx, assigned, domain.RequestStatusConfirmed, nil, "")
	c.notify(domain.RequesterRecipient(assigned.RequesterID), domain.EventStatusChanged, assigned.ID,
		c.statusChanged(assigned, ""))
	for _, other := range assigned.Notified {
		if other != p.ID {
			c.notify(domain.ProviderRecipient(other), domain.EventRequestUnavailable, assigned.ID, nil)
		}
	}

	c.logger.Info("request accepted",
		"request_id", assigned.ID,
		"provider_id", p.ID,
		"final_price", assigned.Quote.FinalPrice,
	)
	return assigned, nil
}

func (c *coordinator) lostRace(req *domain.ServiceRequest, providerID uuid.UUID) error {
	metrics.AcceptConflicts.Inc()
	c.notify(domain.ProviderRecipient(providerID), domain.EventRequestUnavailable, req.ID, nil)
	c.logger.Info("accept lost the race",
		"request_id", req.ID,
		"provider_id", providerID,
	)
	return &domain.ConcurrentAssignmentConflict{
		RequestID:  req.ID.String(),
		ProviderID: providerID.String(),
	}
}

// =============================================================================
// Provider progress
// =============================================================================

// UpdateStatus advances an assigned job one step.
func (c *coordinator) UpdateStatus(ctx context.Context, p domain.Principal, params domain.StatusUpdateParams) (*domain.ServiceRequest, error) {
	const op = "dispatch.update_status"

	if !params.Status.IsProviderUpdate() {
		return nil, domain.NewValidationError(op, "status", "must be one of en_route, arrived, in_progress")
	}
	if params.Location != nil && !params.Location.IsValid() {
		return nil, domain.NewValidationError(op, "location", "is out of range")
	}

	req, err := c.load(ctx, op, params.ID)
	if err != nil {
		return nil, err
	}
	if err := requireAssigned(op, p, req); err != nil {
		return nil, err
	}

	prev := req.Status
	if err := req.TransitionTo(params.Status); err != nil {
		return nil, err
	}
	if err := c.save(ctx, op, req, prev); err != nil {
		return nil, err
	}

	c.track(ctx, req, req.Status, params.Location, strings.TrimSpace(params.Notes))
	if params.Location != nil {
		c.moveProvider(ctx, p.ID, *params.Location)
	}
	c.notify(domain.RequesterRecipient(req.RequesterID), domain.EventStatusChanged, req.ID,
		c.statusChanged(req, ""))

	c.logger.Info("request status updated",
		"request_id", req.ID,
		"provider_id", p.ID,
		"from", prev,
		"to", req.Status,
	)
	return req, nil
}

// Complete finishes an in-progress job and settles against the quote.
func (c *coordinator) Complete(ctx context.Context, p domain.Principal, params domain.CompleteParams) (*domain.ServiceRequest, error) {
	const op = "dispatch.complete"

	if params.ChargedAmount < 0 {
		return nil, domain.NewValidationError(op, "charged_amount", "must not be negative")
	}

	req, err := c.load(ctx, op, params.ID)
	if err != nil {
		return nil, err
	}
	if err := requireAssigned(op, p, req); err != nil {
		return nil, err
	}

	prev := req.Status
	if err := req.TransitionTo(domain.RequestStatusCompleted); err != nil {
		return nil, err
	}

	now := c.now()
	charged := params.ChargedAmount
	within := pricing.WithinGuarantee(req.Quote, charged)
	req.ChargedAmount = &charged
	req.CompletedAt = &now
	req.Settlement = domain.SettlementReleased
	if !within {
		req.Settlement = domain.SettlementHeld
	}

	if err := c.save(ctx, op, req, prev); err != nil {
		return nil, err
	}

	c.track(ctx, req, domain.RequestStatusCompleted, nil, strings.TrimSpace(params.Notes))
	if err := c.store.IncrementCompletedJobs(ctx, p.ID); err != nil {
		c.logger.Error("failed to record completed job",
			"provider_id", p.ID,
			"error", err,
		)
	}
	metrics.RequestFinished(string(domain.RequestStatusCompleted))
	c.notify(domain.RequesterRecipient(req.RequesterID), domain.EventStatusChanged, req.ID,
		c.statusChanged(req, ""))

	c.logger.Info("request completed",
		"request_id", req.ID,
		"provider_id", p.ID,
		"quoted", req.Quote.FinalPrice,
		"charged", charged,
		"settlement", req.Settlement,
	)

	if within {
		return req, nil
	}
	return req, c.holdSettlement(ctx, req, p.ID, charged)
}

// holdSettlement queues a price review and reports the violation.
func (c *coordinator) holdSettlement(ctx context.Context, req *domain.ServiceRequest, providerID uuid.UUID, charged int64) error {
	review := domain.PriceReview{
		ID:         uuid.New(),
		RequestID:  req.ID,
		ProviderID: providerID,
		Quoted:     req.Quote.FinalPrice,
		Charged:    charged,
		Status:     domain.PriceReviewOpen,
		CreatedAt:  c.now(),
	}
	if err := c.store.CreatePriceReview(ctx, review); err != nil {
		c.logger.Error("failed to queue price review",
			"request_id", req.ID,
			"error", err,
		)
	}

	metrics.PriceGuaranteeViolations.Inc()
	c.notify(domain.Operators(), domain.EventPriceReview, req.ID, review)
	c.logger.Warn("price guarantee exceeded",
		"request_id", req.ID,
		"provider_id", providerID,
		"quoted", review.Quoted,
		"charged", charged,
		"max", pricing.MaxCharge(req.Quote),
	)

	return &domain.PriceGuaranteeViolation{
		RequestID: req.ID.String(),
		Quoted:    review.Quoted,
		Charged:   charged,
		ReviewID:  review.ID.String(),
	}
}

// =============================================================================
// Cancel
// =============================================================================

// Cancel cancels a request from any non-terminal status. A concurrent
// status change forces a reload, so a cancel during en_route still wins
// against a later arrived.
func (c *coordinator) Cancel(ctx context.Context, p domain.Principal, id uuid.UUID, reason string) (*domain.ServiceRequest, error) {
	const op = "dispatch.cancel"

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError(op, "reason", "is required")
	}

	var (
		req  *domain.ServiceRequest
		prev domain.RequestStatus
		err  error
	)
	for attempt := 1; ; attempt++ {
		req, err = c.load(ctx, op, id)
		if err != nil {
			return nil, err
		}
		if p.Role != domain.RoleOperator {
			if err := requireOwner(op, p, req); err != nil {
				return nil, err
			}
		}

		prev = req.Status
		if err := req.TransitionTo(domain.RequestStatusCancelled); err != nil {
			return nil, err
		}
		now := c.now()
		req.CancellationReason = reason
		req.CancelledAt = &now

		err = c.save(ctx, op, req, prev)
		if err == nil {
			break
		}
		var stErr *domain.StateTransitionError
		if (!errors.As(err, &stErr) && !stale(err)) || attempt == saveRetries {
			return nil, err
		}
	}

	c.track(ctx, req, domain.RequestStatusCancelled, nil, reason)
	metrics.RequestFinished(string(domain.RequestStatusCancelled))

	changed := c.statusChanged(req, reason)
	c.notify(domain.RequesterRecipient(req.RequesterID), domain.EventStatusChanged, req.ID, changed)
	if req.ProviderID != nil {
		c.notify(domain.ProviderRecipient(*req.ProviderID), domain.EventStatusChanged, req.ID, changed)
	} else if prev == domain.RequestStatusMatched {
		for _, pid := range req.Notified {
			c.notify(domain.ProviderRecipient(pid), domain.EventRequestUnavailable, req.ID, nil)
		}
	}

	c.logger.Info("request cancelled",
		"request_id", req.ID,
		"by", p.ID,
		"role", p.Role,
		"from", prev,
	)
	return req, nil
}

// =============================================================================
// Location
// =============================================================================

// UpdateLocation records where the assigned provider is during a job.
func (c *coordinator) UpdateLocation(ctx context.Context, p domain.Principal, id uuid.UUID, loc domain.Coordinates) (*domain.ServiceRequest, error) {
	const op = "dispatch.update_location"

	if !loc.IsValid() {
		return nil, domain.NewValidationError(op, "location", "is out of range")
	}

	req, err := c.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if err := requireAssigned(op, p, req); err != nil {
		return nil, err
	}
	if !req.Status.IsActiveJob() {
		return nil, domain.Conflict(op, "location updates are only accepted while the job is active")
	}

	c.track(ctx, req, req.Status, &loc, "")
	c.moveProvider(ctx, p.ID, loc)

	now := c.now()
	c.notify(domain.RequesterRecipient(req.RequesterID), domain.EventLocationUpdate, req.ID,
		domain.LocationUpdatePayload{ProviderID: p.ID, Lat: loc.Lat, Lng: loc.Lng, Timestamp: now})

	if c.withinGeofence(req, loc) {
		payload := domain.LocationUpdatePayload{ProviderID: p.ID, Lat: loc.Lat, Lng: loc.Lng, Timestamp: now}
		c.notify(domain.RequesterRecipient(req.RequesterID), domain.EventGeofenceArrived, req.ID, payload)
		c.notify(domain.ProviderRecipient(p.ID), domain.EventGeofenceArrived, req.ID, payload)
	}
	return req, nil
}

// withinGeofence reports whether an en-route provider is close enough to
// the job site to be prompted to mark arrival.
func (c *coordinator) withinGeofence(req *domain.ServiceRequest, loc domain.Coordinates) bool {
	if req.Status != domain.RequestStatusEnRoute || req.Location.Coordinates == nil {
		return false
	}
	return matching.GreatCircleKm(loc, *req.Location.Coordinates)*1000 <= c.cfg.GeofenceMeters
}

func (c *coordinator) moveProvider(ctx context.Context, providerID uuid.UUID, loc domain.Coordinates) {
	if err := c.store.UpdateProviderLocation(ctx, providerID, loc, c.now()); err != nil {
		c.logger.Error("failed to update provider location",
			"provider_id", providerID,
			"error", err,
		)
	}
}

// =============================================================================
// State
// =============================================================================

// State returns the stored request with its tracking log in time order.
func (c *coordinator) State(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.RequestState, error) {
	const op = "dispatch.state"

	req, err := c.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	if !canView(p, req) {
		return nil, domain.NotFound(op, "request", id.String())
	}

	events, err := c.store.ListTracking(ctx, id)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list tracking events")
	}
	domain.SortTracking(events)

	return &domain.RequestState{
		Request:  *req,
		Status:   req.Status,
		Tracking: events,
	}, nil
}
