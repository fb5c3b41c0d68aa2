package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// Rate records the requester's review. Each completed request can be rated
// once.
func (c *coordinator) Rate(ctx context.Context, p domain.Principal, params domain.RateParams) (*domain.Rating, error) {
	const op = "dispatch.rate"

	if err := params.Validate(op); err != nil {
		return nil, err
	}

	req, err := c.load(ctx, op, params.RequestID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(op, p, req); err != nil {
		return nil, err
	}
	if req.Status != domain.RequestStatusCompleted || req.ProviderID == nil {
		return nil, domain.Conflict(op, "only completed requests can be rated")
	}
	if req.RatingID != nil {
		return nil, domain.Conflict(op, "request has already been rated")
	}

	rating := domain.Rating{
		ID:              uuid.New(),
		RequestID:       req.ID,
		RequesterID:     p.ID,
		ProviderID:      *req.ProviderID,
		Punctuality:     params.Punctuality,
		Professionalism: params.Professionalism,
		Quality:         params.Quality,
		Communication:   params.Communication,
		Value:           params.Value,
		Overall:         params.Overall(),
		Comment:         strings.TrimSpace(params.Comment),
		WouldRecommend:  params.WouldRecommend,
		CreatedAt:       c.now(),
	}
	if err := c.store.CreateRating(ctx, rating); err != nil {
		if domain.ErrorCode(err) == domain.ECONFLICT {
			return nil, domain.Conflict(op, "request has already been rated")
		}
		return nil, domain.Internal(err, op, "failed to save rating")
	}

	c.logger.Info("request rated",
		"request_id", req.ID,
		"provider_id", rating.ProviderID,
		"overall", rating.Overall,
	)
	return &rating, nil
}
