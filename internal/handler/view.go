package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// RequestView is the JSON shape of a service request. What a caller sees
// depends on their role: only operators get the full candidate list, and a
// provider sees just their own ranking.
type RequestView struct {
	ID                 uuid.UUID                   `json:"id"`
	RequesterID        uuid.UUID                   `json:"requester_id"`
	ProviderID         *uuid.UUID                  `json:"provider_id,omitempty"`
	Category           domain.Category             `json:"category"`
	Title              string                      `json:"title"`
	Description        string                      `json:"description"`
	Urgency            domain.Level                `json:"urgency"`
	Location           domain.Location             `json:"location"`
	ImageCount         int                         `json:"image_count"`
	VideoCount         int                         `json:"video_count"`
	Schedule           domain.Schedule             `json:"schedule"`
	Status             domain.RequestStatus        `json:"status"`
	Classification     domain.ClassificationResult `json:"classification"`
	Quote              domain.PriceQuote           `json:"quote"`
	MatchAttempts      int                         `json:"match_attempts"`
	Escalated          bool                        `json:"escalated"`
	Candidates         []domain.CandidateProvider  `json:"candidates,omitempty"`
	Match              *domain.CandidateProvider   `json:"match,omitempty"`
	CancellationReason string                      `json:"cancellation_reason,omitempty"`
	ChargedAmount      *int64                      `json:"charged_amount,omitempty"`
	Settlement         domain.SettlementStatus     `json:"settlement,omitempty"`
	RatingID           *uuid.UUID                  `json:"rating_id,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
	CompletedAt        *time.Time                  `json:"completed_at,omitempty"`
	CancelledAt        *time.Time                  `json:"cancelled_at,omitempty"`
}

func newRequestView(req *domain.ServiceRequest, p domain.Principal) RequestView {
	v := RequestView{
		ID:                 req.ID,
		RequesterID:        req.RequesterID,
		ProviderID:         req.ProviderID,
		Category:           req.Category,
		Title:              req.Title,
		Description:        req.Description,
		Urgency:            req.Urgency,
		Location:           req.Location,
		ImageCount:         req.ImageCount,
		VideoCount:         req.VideoCount,
		Schedule:           req.Schedule,
		Status:             req.Status,
		Classification:     req.Classification,
		Quote:              req.Quote,
		MatchAttempts:      req.MatchAttempts,
		Escalated:          req.Escalated,
		CancellationReason: req.CancellationReason,
		ChargedAmount:      req.ChargedAmount,
		Settlement:         req.Settlement,
		RatingID:           req.RatingID,
		CreatedAt:          req.CreatedAt,
		UpdatedAt:          req.UpdatedAt,
		CompletedAt:        req.CompletedAt,
		CancelledAt:        req.CancelledAt,
	}

	switch p.Role {
	case domain.RoleOperator:
		v.Candidates = req.Candidates
	case domain.RoleProvider:
		for i := range req.Candidates {
			if req.Candidates[i].ProviderID == p.ID {
				c := req.Candidates[i]
				v.Match = &c
				break
			}
		}
	}
	return v
}

func newRequestViews(reqs []domain.ServiceRequest, p domain.Principal) []RequestView {
	out := make([]RequestView, 0, len(reqs))
	for i := range reqs {
		out = append(out, newRequestView(&reqs[i], p))
	}
	return out
}

// StateView is the authoritative request state with its tracking log.
type StateView struct {
	Request  RequestView            `json:"request"`
	Status   domain.RequestStatus   `json:"status"`
	Tracking []domain.TrackingEvent `json:"tracking"`
}
