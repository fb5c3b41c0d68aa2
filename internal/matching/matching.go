// Package matching scores candidate providers against a request and
// produces a total ordering over them.
package matching

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// EarthRadiusKm is the mean Earth radius used to turn angles into km.
const EarthRadiusKm = 6371.0088

// DefaultTopN is how many candidates are shown to providers by default.
const DefaultTopN = 5

// DistanceFunc returns the distance between two points in km.
type DistanceFunc func(a, b domain.Coordinates) float64

// GreatCircleKm is the spherical distance between a and b.
func GreatCircleKm(a, b domain.Coordinates) float64 {
	p := s2.LatLngFromDegrees(a.Lat, a.Lng)
	q := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p.Distance(q).Radians() * EarthRadiusKm
}

// Weights are the scoring coefficients.
type Weights struct {
	Skill         float64 // points for a full skill match
	Rating        float64 // points per rating star
	JobsCap       int     // completed jobs beyond this earn nothing
	PerJob        float64 // points per completed job
	DistanceMaxKm float64 // distance points are DistanceMaxKm - km, floored at 0
	OnlineBonus   float64
}

// DefaultWeights returns the standard scoring coefficients.
func DefaultWeights() Weights {
	return Weights{
		Skill:         30,
		Rating:        10,
		JobsCap:       100,
		PerJob:        0.1,
		DistanceMaxKm: 20,
		OnlineBonus:   10,
	}
}

// Input is one ranking pass.
type Input struct {
	RequestID      string
	RequiredSkills []string
	Origin         *domain.Coordinates
	Candidates     []domain.CandidateProvider
}

// Ranker scores and orders candidates.
type Ranker struct {
	weights  Weights
	distance DistanceFunc
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithDistanceFunc overrides the great-circle distance.
func WithDistanceFunc(fn DistanceFunc) Option {
	return func(r *Ranker) { r.distance = fn }
}

// WithWeights overrides the scoring coefficients.
func WithWeights(w Weights) Option {
	return func(r *Ranker) { r.weights = w }
}

// New creates a Ranker.
func New(opts ...Option) *Ranker {
	r := &Ranker{
		weights:  DefaultWeights(),
		distance: GreatCircleKm,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank returns the eligible candidates sorted best first. The input slice
// is not modified. The order is total, so the result does not depend on the
// order of in.Candidates.
func (r *Ranker) Rank(in Input) ([]domain.CandidateProvider, error) {
	const op = "matching.rank"

	if err := validate(op, in.Candidates); err != nil {
		return nil, err
	}

	ranked := make([]domain.CandidateProvider, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		if !c.IsEligible() {
			continue
		}
		ranked = append(ranked, r.score(c, in))
	}

	if len(ranked) == 0 {
		return nil, &domain.NoEligibleCandidatesError{
			RequestID:  in.RequestID,
			Considered: len(in.Candidates),
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		return less(&ranked[i], &ranked[j])
	})
	return ranked, nil
}

func (r *Ranker) score(c domain.CandidateProvider, in Input) domain.CandidateProvider {
	c.Skills = append([]string(nil), c.Skills...)

	skill := SkillMatch(in.RequiredSkills, c.Skills)
	score := skill * r.weights.Skill
	score += c.Rating * r.weights.Rating
	score += float64(min(c.CompletedJobs, r.weights.JobsCap)) * r.weights.PerJob

	km, known := r.distanceKm(c, in.Origin)
	if known {
		score += math.Max(0, r.weights.DistanceMaxKm-km)
		rounded := math.Round(km*10) / 10
		c.DistanceKm = &rounded
	} else {
		c.DistanceKm = nil
	}

	if c.Online {
		score += r.weights.OnlineBonus
	}

	c.MatchScore = int(math.Round(score))
	c.SkillMatchPct = int(math.Round(skill * 100))
	c.LocationScorePct = LocationScore(km, known)
	c.RatingBonus = RatingBonus(c.Rating)
	return c
}

// distanceKm prefers coordinates and falls back to the supplied distance.
func (r *Ranker) distanceKm(c domain.CandidateProvider, origin *domain.Coordinates) (float64, bool) {
	if origin != nil && c.Location != nil {
		return r.distance(*origin, *c.Location), true
	}
	if c.DistanceKm != nil {
		return *c.DistanceKm, true
	}
	return 0, false
}

// less orders by score, rating, completed jobs, distance, then ID.
// Unknown distance sorts after any known distance.
func less(a, b *domain.CandidateProvider) bool {
	if a.MatchScore != b.MatchScore {
		return a.MatchScore > b.MatchScore
	}
	if a.Rating != b.Rating {
		return a.Rating > b.Rating
	}
	if a.CompletedJobs != b.CompletedJobs {
		return a.CompletedJobs > b.CompletedJobs
	}
	da, db := distanceOrInf(a), distanceOrInf(b)
	if da != db {
		return da < db
	}
	return a.ProviderID.String() < b.ProviderID.String()
}

func distanceOrInf(c *domain.CandidateProvider) float64 {
	if c.DistanceKm == nil {
		return math.Inf(1)
	}
	return *c.DistanceKm
}

func validate(op string, candidates []domain.CandidateProvider) error {
	var verr *domain.ValidationError
	for i, c := range candidates {
		if c.Rating < 0 || c.Rating > 5 || math.IsNaN(c.Rating) {
			if verr == nil {
				verr = &domain.ValidationError{Op: op}
			}
			verr.Add(fieldName(i, "rating"), "must be between 0 and 5")
		}
		if c.DistanceKm != nil && (*c.DistanceKm < 0 || math.IsNaN(*c.DistanceKm)) {
			if verr == nil {
				verr = &domain.ValidationError{Op: op}
			}
			verr.Add(fieldName(i, "distance_km"), "must not be negative")
		}
		if c.CompletedJobs < 0 {
			if verr == nil {
				verr = &domain.ValidationError{Op: op}
			}
			verr.Add(fieldName(i, "completed_jobs"), "must not be negative")
		}
	}
	if verr != nil {
		return verr
	}
	return nil
}

func fieldName(i int, field string) string {
	return "candidates[" + strconv.Itoa(i) + "]." + field
}

// =============================================================================
// Sub-scores
// =============================================================================

// SkillMatch is the fraction of required skills the candidate covers. A
// required skill is covered when any candidate skill contains it, ignoring
// case. With no required skills the result is 0.
func SkillMatch(required, skills []string) float64 {
	if len(required) == 0 {
		return 0
	}
	matched := 0
	for _, req := range required {
		req = strings.ToLower(strings.TrimSpace(req))
		if req == "" {
			continue
		}
		for _, s := range skills {
			if strings.Contains(strings.ToLower(s), req) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(required))
}

// LocationScore is 100 minus 5 points per km, floored at 0. Unknown
// distance scores 0.
func LocationScore(km float64, known bool) int {
	if !known {
		return 0
	}
	v := int(math.Round(100 - 5*km))
	return max(0, min(100, v))
}

// RatingBonus is the small fixed bonus shown for high ratings.
func RatingBonus(rating float64) int {
	switch {
	case rating >= 4.8:
		return 10
	case rating >= 4.5:
		return 5
	case rating >= 4.0:
		return 3
	default:
		return 0
	}
}

// Top returns the first n candidates. n <= 0 means DefaultTopN.
func Top(ranked []domain.CandidateProvider, n int) []domain.CandidateProvider {
	if n <= 0 {
		n = DefaultTopN
	}
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}
