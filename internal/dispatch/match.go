package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/matching"
	"github.com/DukeRupert/fixmatch/internal/metrics"
)

// Match runs a matching pass on demand. Passes after the first search the
// relaxed radius.
func (c *coordinator) Match(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.ServiceRequest, error) {
	const op = "dispatch.match"

	if err := requireRole(op, p, domain.RoleOperator); err != nil {
		return nil, err
	}
	req, err := c.load(ctx, op, id)
	if err != nil {
		return nil, err
	}
	return c.match(ctx, req, req.MatchAttempts > 0)
}

// HandleAcceptTimeout fires when nobody accepted within the timeout. Hooks
// from an older pass, or for a request that moved on, are ignored.
func (c *coordinator) HandleAcceptTimeout(ctx context.Context, id uuid.UUID, attempt int) error {
	const op = "dispatch.handle_accept_timeout"

	req, err := c.load(ctx, op, id)
	if err != nil {
		return err
	}
	if !searching(req.Status) || req.Escalated || attempt < req.MatchAttempts {
		c.logger.Debug("accept timeout ignored",
			"request_id", id,
			"status", req.Status,
			"attempt", attempt,
			"match_attempts", req.MatchAttempts,
		)
		return nil
	}

	if req.MatchAttempts >= c.cfg.MaxMatchAttempts {
		return c.escalate(ctx, op, req)
	}

	_, err = c.match(ctx, req, true)
	return err
}

// match ranks candidates for req and offers the job to the top N. It
// returns the stored request, which may have moved on if another writer
// won the compare-and-set. A pass that lost to an edit is rerun on the
// reloaded request; one that lost to another pass is dropped.
func (c *coordinator) match(ctx context.Context, req *domain.ServiceRequest, relaxed bool) (*domain.ServiceRequest, error) {
	const op = "dispatch.match"

	if !searching(req.Status) {
		return nil, &domain.StateTransitionError{
			RequestID: req.ID.String(),
			Current:   req.Status,
			Target:    domain.RequestStatusMatched,
		}
	}

	for attempt := 1; ; attempt++ {
		pass := req.MatchAttempts
		out, err := c.matchPass(ctx, req, relaxed)
		if !stale(err) || attempt == saveRetries {
			if stale(err) {
				metrics.MatchPass("error")
			}
			return out, err
		}

		req, err = c.load(ctx, op, req.ID)
		if err != nil {
			return nil, err
		}
		if req.MatchAttempts != pass || !searching(req.Status) {
			metrics.MatchPass("discarded")
			c.logger.Info("matching pass discarded",
				"request_id", req.ID,
				"current_status", req.Status,
				"match_attempts", req.MatchAttempts,
			)
			return req, nil
		}
	}
}

func (c *coordinator) matchPass(ctx context.Context, req *domain.ServiceRequest, relaxed bool) (*domain.ServiceRequest, error) {
	const op = "dispatch.match"

	radius := c.cfg.RadiusKm
	if relaxed {
		radius = c.cfg.RelaxedRadiusKm
	}

	candidates, err := c.store.ListCandidates(ctx, domain.CandidateQuery{
		Origin:   req.Location.Coordinates,
		RadiusKm: radius,
	})
	if err != nil {
		metrics.MatchPass("error")
		return nil, domain.Internal(err, op, "failed to list candidates")
	}

	ranked, err := c.ranker.Rank(matching.Input{
		RequestID:      req.ID.String(),
		RequiredSkills: req.Classification.RequiredSkills,
		Origin:         req.Location.Coordinates,
		Candidates:     candidates,
	})

	prev := req.Status
	req.MatchAttempts++

	var none *domain.NoEligibleCandidatesError
	switch {
	case errors.As(err, &none):
		return c.keepSearching(ctx, op, req, prev, none.Considered)
	case err != nil:
		metrics.MatchPass("error")
		return nil, domain.Internal(err, op, "failed to rank candidates")
	}

	req.Candidates = ranked
	if err := c.requote(op, req); err != nil {
		metrics.MatchPass("error")
		return nil, err
	}

	var offered []domain.CandidateProvider
	for _, cand := range matching.Top(ranked, c.cfg.NotifyTopN) {
		if !req.WasNotified(cand.ProviderID) {
			req.Notified = append(req.Notified, cand.ProviderID)
			offered = append(offered, cand)
		}
	}
	if prev == domain.RequestStatusSubmitted {
		req.Status = domain.RequestStatusMatched
	}

	if err := c.save(ctx, op, req, prev); err != nil {
		return c.discard(ctx, op, req, err)
	}

	if prev == domain.RequestStatusSubmitted {
		c.track(ctx, req, domain.RequestStatusMatched, nil, "")
		c.notify(domain.RequesterRecipient(req.RequesterID), domain.EventStatusChanged, req.ID,
			c.statusChanged(req, ""))
	}
	for _, cand := range offered {
		c.notify(domain.ProviderRecipient(cand.ProviderID), domain.EventNewRequest, req.ID,
			domain.NewRequestPayload{
				RequestID:      req.ID,
				Category:       req.Quote.Category,
				Title:          req.Title,
				Address:        req.Location.Address,
				Classification: req.Classification,
				Quote:          req.Quote,
				Match:          cand,
			})
	}

	metrics.MatchPass("matched")
	c.logger.Info("request matched",
		"request_id", req.ID,
		"attempt", req.MatchAttempts,
		"candidates", len(ranked),
		"offered", len(offered),
		"radius_km", radius,
	)

	c.schedule(ctx, req)
	return req, nil
}

// keepSearching stores the attempt count, tells the requester the search
// goes on and schedules the next pass.
func (c *coordinator) keepSearching(ctx context.Context, op string, req *domain.ServiceRequest, prev domain.RequestStatus, considered int) (*domain.ServiceRequest, error) {
	if err := c.save(ctx, op, req, prev); err != nil {
		return c.discard(ctx, op, req, err)
	}

	c.notify(domain.RequesterRecipient(req.RequesterID), domain.EventSearching, req.ID,
		domain.SearchingPayload{RequestID: req.ID, Attempt: req.MatchAttempts})

	metrics.MatchPass("no_candidates")
	c.logger.Info("no eligible candidates",
		"request_id", req.ID,
		"attempt", req.MatchAttempts,
		"considered", considered,
	)

	c.schedule(ctx, req)
	return req, nil
}

// discard drops a pass whose write lost to a concurrent accept or cancel
// and returns the request as stored. Version conflicts go back to match.
func (c *coordinator) discard(ctx context.Context, op string, req *domain.ServiceRequest, err error) (*domain.ServiceRequest, error) {
	if stale(err) {
		return nil, err
	}
	var stErr *domain.StateTransitionError
	if !errors.As(err, &stErr) {
		metrics.MatchPass("error")
		return nil, err
	}

	metrics.MatchPass("discarded")
	c.logger.Info("matching pass discarded",
		"request_id", req.ID,
		"current_status", stErr.Current,
	)
	return c.load(ctx, op, req.ID)
}

func (c *coordinator) escalate(ctx context.Context, op string, req *domain.ServiceRequest) error {
	pass := req.MatchAttempts
	for attempt := 1; ; attempt++ {
		req.Escalated = true
		err := c.save(ctx, op, req, req.Status)
		if err == nil {
			break
		}
		var stErr *domain.StateTransitionError
		if errors.As(err, &stErr) {
			return nil
		}
		if !stale(err) || attempt == saveRetries {
			return err
		}

		if req, err = c.load(ctx, op, req.ID); err != nil {
			return err
		}
		if req.MatchAttempts != pass || !searching(req.Status) || req.Escalated {
			return nil
		}
	}

	c.notify(domain.Operators(), domain.EventEscalated, req.ID,
		c.statusChanged(req, "no provider accepted"))
	metrics.Escalations.Inc()

	c.logger.Warn("request escalated",
		"request_id", req.ID,
		"match_attempts", req.MatchAttempts,
	)
	return nil
}

// schedule arms the acceptance timeout for the latest pass.
func (c *coordinator) schedule(ctx context.Context, req *domain.ServiceRequest) {
	if c.scheduler == nil {
		return
	}
	if err := c.scheduler.ScheduleAcceptTimeout(ctx, req.ID, req.MatchAttempts, c.cfg.AcceptTimeout); err != nil {
		c.logger.Error("failed to schedule accept timeout",
			"request_id", req.ID,
			"attempt", req.MatchAttempts,
			"error", err,
		)
	}
}

func searching(s domain.RequestStatus) bool {
	return s == domain.RequestStatusSubmitted || s == domain.RequestStatusMatched
}
