package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Provider
// =============================================================================

// Provider is a service professional's profile as the store keeps it.
type Provider struct {
	ID            uuid.UUID
	Name          string
	Skills        []string
	Rating        float64 // average, 0.0 - 5.0
	RatingCount   int
	CompletedJobs int
	Online        bool
	Active        bool
	Verified      bool
	Location      *Coordinates
	UpdatedAt     time.Time
}

// IsEligible returns true if the provider may be offered new work.
func (p *Provider) IsEligible() bool {
	return p.Online && p.Active && p.Verified
}

// Candidate converts the profile into an unscored candidate view.
func (p *Provider) Candidate() CandidateProvider {
	return CandidateProvider{
		ProviderID:    p.ID,
		Name:          p.Name,
		Skills:        p.Skills,
		Rating:        p.Rating,
		CompletedJobs: p.CompletedJobs,
		Online:        p.Online,
		Active:        p.Active,
		Verified:      p.Verified,
		Location:      p.Location,
	}
}

// =============================================================================
// CandidateProvider
// =============================================================================

// CandidateProvider is a provider as seen by one ranking pass. The score
// fields are filled in by the matching engine.
//
// A nil DistanceKm means the distance is unknown.
type CandidateProvider struct {
	ProviderID    uuid.UUID    `json:"provider_id"`
	Name          string       `json:"name"`
	Skills        []string     `json:"skills"`
	Rating        float64      `json:"rating"`
	CompletedJobs int          `json:"completed_jobs"`
	Online        bool         `json:"online"`
	Active        bool         `json:"active"`
	Verified      bool         `json:"verified"`
	Location      *Coordinates `json:"location,omitempty"`
	DistanceKm    *float64     `json:"distance_km,omitempty"`

	MatchScore       int `json:"match_score"`
	SkillMatchPct    int `json:"skill_match_pct"`
	LocationScorePct int `json:"location_score_pct"`
	RatingBonus      int `json:"rating_bonus"`
}

// IsEligible returns true if the candidate passes the eligibility filter.
func (c *CandidateProvider) IsEligible() bool {
	return c.Online && c.Active && c.Verified
}

// HasDistance returns true if a distance is known.
func (c *CandidateProvider) HasDistance() bool {
	return c.DistanceKm != nil
}

// CandidateQuery selects providers for a matching pass.
// Providers without a known location are always included.
type CandidateQuery struct {
	Origin   *Coordinates
	RadiusKm float64 // 0 means no radius limit
}
