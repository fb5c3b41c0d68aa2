package dispatch

import (
	"context"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// SetOnline toggles whether the calling provider receives offers.
func (c *coordinator) SetOnline(ctx context.Context, p domain.Principal, online bool) error {
	const op = "dispatch.set_online"

	if err := requireRole(op, p, domain.RoleProvider); err != nil {
		return err
	}
	if err := c.store.SetProviderOnline(ctx, p.ID, online, c.now()); err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return domain.NotFound(op, "provider", p.ID.String())
		}
		return domain.Internal(err, op, "failed to update presence")
	}

	c.logger.Info("provider presence changed",
		"provider_id", p.ID,
		"online", online,
	)
	return nil
}

// UpdateProviderLocation stores the calling provider's position outside
// of any job.
func (c *coordinator) UpdateProviderLocation(ctx context.Context, p domain.Principal, loc domain.Coordinates) error {
	const op = "dispatch.update_provider_location"

	if err := requireRole(op, p, domain.RoleProvider); err != nil {
		return err
	}
	if !loc.IsValid() {
		return domain.NewValidationError(op, "location", "is out of range")
	}
	if err := c.store.UpdateProviderLocation(ctx, p.ID, loc, c.now()); err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return domain.NotFound(op, "provider", p.ID.String())
		}
		return domain.Internal(err, op, "failed to update location")
	}
	return nil
}

// PendingOffers lists matched requests offered to the calling provider.
func (c *coordinator) PendingOffers(ctx context.Context, p domain.Principal) ([]domain.ServiceRequest, error) {
	const op = "dispatch.pending_offers"

	if err := requireRole(op, p, domain.RoleProvider); err != nil {
		return nil, err
	}
	offers, err := c.store.ListPendingOffers(ctx, p.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list offers")
	}
	return offers, nil
}

// PriceReviews lists open price reviews.
func (c *coordinator) PriceReviews(ctx context.Context, p domain.Principal) ([]domain.PriceReview, error) {
	const op = "dispatch.price_reviews"

	if err := requireRole(op, p, domain.RoleOperator); err != nil {
		return nil, err
	}
	reviews, err := c.store.ListPriceReviews(ctx, domain.PriceReviewOpen)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list price reviews")
	}
	return reviews, nil
}
