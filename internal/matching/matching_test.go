package matching

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

func km(v float64) *float64 { return &v }

func candidate(id string, skills []string, rating float64, jobs int, dist float64) domain.CandidateProvider {
	return domain.CandidateProvider{
		ProviderID:    uuid.MustParse(id),
		Skills:        skills,
		Rating:        rating,
		CompletedJobs: jobs,
		Online:        true,
		Active:        true,
		Verified:      true,
		DistanceKm:    km(dist),
	}
}

func TestRank_SkillBeatsDistance(t *testing.T) {
	a := candidate("00000000-0000-0000-0000-00000000000a", []string{"plumbing"}, 4.9, 200, 1.2)
	b := candidate("00000000-0000-0000-0000-00000000000b", nil, 4.9, 10, 0.5)

	ranked, err := New().Rank(Input{
		RequestID:      "req-1",
		RequiredSkills: []string{"plumbing"},
		Candidates:     []domain.CandidateProvider{b, a},
	})
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, a.ProviderID, ranked[0].ProviderID)
	// 30 + 49 + 10 + 18.8 + 10
	assert.Equal(t, 118, ranked[0].MatchScore)
	// 0 + 49 + 1 + 19.5 + 10
	assert.Equal(t, 80, ranked[1].MatchScore)
	assert.Equal(t, 100, ranked[0].SkillMatchPct)
	assert.Equal(t, 0, ranked[1].SkillMatchPct)
	assert.Equal(t, 94, ranked[0].LocationScorePct)
	assert.Equal(t, 10, ranked[0].RatingBonus)
}

func TestRank_EligibilityFilter(t *testing.T) {
	good := candidate("00000000-0000-0000-0000-000000000001", nil, 4.0, 5, 3)
	offline := candidate("00000000-0000-0000-0000-000000000002", nil, 5.0, 100, 0)
	offline.Online = false
	unverified := candidate("00000000-0000-0000-0000-000000000003", nil, 5.0, 100, 0)
	unverified.Verified = false
	inactive := candidate("00000000-0000-0000-0000-000000000004", nil, 5.0, 100, 0)
	inactive.Active = false

	ranked, err := New().Rank(Input{Candidates: []domain.CandidateProvider{offline, unverified, good, inactive}})
	require.NoError(t, err)

	require.Len(t, ranked, 1)
	assert.Equal(t, good.ProviderID, ranked[0].ProviderID)
	for _, c := range ranked {
		assert.True(t, c.Online)
		assert.True(t, c.Verified)
	}
}

func TestRank_NoEligibleCandidates(t *testing.T) {
	offline := candidate("00000000-0000-0000-0000-000000000002", nil, 5.0, 100, 0)
	offline.Online = false

	tests := []struct {
		name       string
		candidates []domain.CandidateProvider
	}{
		{"empty input", nil},
		{"all filtered", []domain.CandidateProvider{offline}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Rank(Input{RequestID: "req-9", Candidates: tt.candidates})

			var nerr *domain.NoEligibleCandidatesError
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, "req-9", nerr.RequestID)
			assert.Equal(t, len(tt.candidates), nerr.Considered)
			assert.Equal(t, domain.ESEARCHING, domain.ErrorCode(err))
		})
	}
}

func TestRank_TieBreakChain(t *testing.T) {
	// Raw scores 78.6 to 78.8 all round to 79; the chain decides.
	higherRating := candidate("00000000-0000-0000-0000-000000000005", nil, 4.9, 0, 0.3)
	moreJobs := candidate("00000000-0000-0000-0000-000000000004", nil, 4.8, 10, 0.2)
	closer := candidate("00000000-0000-0000-0000-000000000003", nil, 4.8, 8, 0.1)
	farther := candidate("00000000-0000-0000-0000-000000000002", nil, 4.8, 8, 0.2)
	sameAsFartherLowerID := candidate("00000000-0000-0000-0000-000000000001", nil, 4.8, 8, 0.2)

	ranked, err := New().Rank(Input{Candidates: []domain.CandidateProvider{
		farther, closer, sameAsFartherLowerID, moreJobs, higherRating,
	}})
	require.NoError(t, err)

	for _, c := range ranked {
		require.Equal(t, 79, c.MatchScore, c.ProviderID.String())
	}
	got := make([]uuid.UUID, len(ranked))
	for i, c := range ranked {
		got[i] = c.ProviderID
	}
	assert.Equal(t, []uuid.UUID{
		higherRating.ProviderID,
		moreJobs.ProviderID,
		closer.ProviderID,
		sameAsFartherLowerID.ProviderID,
		farther.ProviderID,
	}, got)
}

func TestRank_PermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var pool []domain.CandidateProvider
	for i := 0; i < 25; i++ {
		c := candidate(uuid.NewString(), []string{"plumbing"}, float64(rng.Intn(6)), rng.Intn(150), float64(rng.Intn(30)))
		if i%3 == 0 {
			c.Skills = []string{"electrical wiring"}
		}
		if i%7 == 0 {
			c.DistanceKm = nil
		}
		pool = append(pool, c)
	}

	r := New()
	want, err := r.Rank(Input{RequiredSkills: []string{"plumbing"}, Candidates: pool})
	require.NoError(t, err)

	for trial := 0; trial < 20; trial++ {
		shuffled := append([]domain.CandidateProvider(nil), pool...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := r.Rank(Input{RequiredSkills: []string{"plumbing"}, Candidates: shuffled})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	c := candidate("00000000-0000-0000-0000-000000000001", []string{"x"}, 4, 1, 3.33)
	input := []domain.CandidateProvider{c}

	_, err := New().Rank(Input{Candidates: input})
	require.NoError(t, err)

	assert.Equal(t, 0, input[0].MatchScore)
	assert.Equal(t, 3.33, *input[0].DistanceKm)
}

func TestRank_DistanceSources(t *testing.T) {
	origin := &domain.Coordinates{Lat: 25.0330, Lng: 121.5654}
	withCoords := candidate("00000000-0000-0000-0000-000000000001", nil, 4, 0, 15)
	withCoords.Location = &domain.Coordinates{Lat: 25.04, Lng: 121.57}
	unknown := candidate("00000000-0000-0000-0000-000000000002", nil, 4, 0, 0)
	unknown.DistanceKm = nil

	r := New(WithDistanceFunc(func(a, b domain.Coordinates) float64 { return 2.5 }))
	ranked, err := r.Rank(Input{Origin: origin, Candidates: []domain.CandidateProvider{unknown, withCoords}})
	require.NoError(t, err)

	assert.Equal(t, withCoords.ProviderID, ranked[0].ProviderID)
	assert.Equal(t, 2.5, *ranked[0].DistanceKm)
	// 40 + 17.5 + 10
	assert.Equal(t, 68, ranked[0].MatchScore)

	assert.Nil(t, ranked[1].DistanceKm)
	assert.Equal(t, 50, ranked[1].MatchScore)
	assert.Equal(t, 0, ranked[1].LocationScorePct)
}

func TestRank_Validation(t *testing.T) {
	badRating := candidate("00000000-0000-0000-0000-000000000001", nil, 5.5, 0, 1)
	badDistance := candidate("00000000-0000-0000-0000-000000000002", nil, 4, 0, -2)

	_, err := New().Rank(Input{Candidates: []domain.CandidateProvider{badRating, badDistance}})

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "candidates[0].rating")
	assert.Contains(t, verr.Fields, "candidates[1].distance_km")
}

func TestGreatCircleKm(t *testing.T) {
	taipei101 := domain.Coordinates{Lat: 25.0340, Lng: 121.5645}
	taipeiMain := domain.Coordinates{Lat: 25.0478, Lng: 121.5170}

	d := GreatCircleKm(taipei101, taipeiMain)
	assert.InDelta(t, 5.0, d, 0.3)
	assert.InDelta(t, 0, GreatCircleKm(taipei101, taipei101), 1e-9)
}

func TestSkillMatch(t *testing.T) {
	assert.Equal(t, 0.0, SkillMatch(nil, []string{"plumbing"}))
	assert.Equal(t, 1.0, SkillMatch([]string{"plumbing"}, []string{"Licensed Plumbing"}))
	assert.Equal(t, 0.5, SkillMatch([]string{"plumbing", "pipe installation"}, []string{"plumbing"}))
	assert.Equal(t, 0.0, SkillMatch([]string{"hvac"}, nil))
}

func TestLocationScoreAndRatingBonus(t *testing.T) {
	assert.Equal(t, 100, LocationScore(0, true))
	assert.Equal(t, 50, LocationScore(10, true))
	assert.Equal(t, 0, LocationScore(25, true))
	assert.Equal(t, 0, LocationScore(0, false))

	assert.Equal(t, 10, RatingBonus(4.8))
	assert.Equal(t, 5, RatingBonus(4.5))
	assert.Equal(t, 3, RatingBonus(4.0))
	assert.Equal(t, 0, RatingBonus(3.9))
}

func TestTop(t *testing.T) {
	list := make([]domain.CandidateProvider, 8)
	assert.Len(t, Top(list, 0), 5)
	assert.Len(t, Top(list, 3), 3)
	assert.Len(t, Top(list, 20), 8)
	assert.Len(t, Top(nil, 5), 0)
}
