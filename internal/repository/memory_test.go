package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

var testTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newRequest(status domain.RequestStatus) *domain.ServiceRequest {
	return &domain.ServiceRequest{
		ID:          uuid.New(),
		RequesterID: uuid.New(),
		Title:       "Leaking tap",
		Description: "kitchen tap drips",
		Status:      status,
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
}

func TestMemoryStore_GetRequest_NotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetRequest(context.Background(), uuid.New())

	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	req := newRequest(domain.RequestStatusMatched)
	req.Notified = []uuid.UUID{uuid.New()}
	require.NoError(t, s.CreateRequest(ctx, req))

	req.Title = "changed"
	req.Notified[0] = uuid.Nil

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Leaking tap", got.Title)
	assert.NotEqual(t, uuid.Nil, got.Notified[0])
}

func TestMemoryStore_SaveRequest_CompareAndSet(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		stored  domain.RequestStatus
		expect  []domain.RequestStatus
		wantErr bool
	}{
		{"matches expected", domain.RequestStatusEnRoute, []domain.RequestStatus{domain.RequestStatusEnRoute}, false},
		{"one of several", domain.RequestStatusMatched, []domain.RequestStatus{domain.RequestStatusSubmitted, domain.RequestStatusMatched}, false},
		{"no guard", domain.RequestStatusCancelled, nil, false},
		{"stale status", domain.RequestStatusCancelled, []domain.RequestStatus{domain.RequestStatusEnRoute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			req := newRequest(tt.stored)
			require.NoError(t, s.CreateRequest(ctx, req))

			update := *req
			update.Status = domain.RequestStatusArrived
			err := s.SaveRequest(ctx, &update, tt.expect...)

			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var stErr *domain.StateTransitionError
			require.True(t, errors.As(err, &stErr))
			assert.Equal(t, tt.stored, stErr.Current)

			got, _ := s.GetRequest(ctx, req.ID)
			assert.Equal(t, tt.stored, got.Status)
		})
	}
}

func TestMemoryStore_SaveRequest_StaleVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	req := newRequest(domain.RequestStatusMatched)
	require.NoError(t, s.CreateRequest(ctx, req))

	first, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	second, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)

	first.MatchAttempts = 2
	require.NoError(t, s.SaveRequest(ctx, first, domain.RequestStatusMatched))
	assert.Equal(t, req.Version+1, first.Version)

	second.Title = "stale edit"
	err = s.SaveRequest(ctx, second, domain.RequestStatusMatched)
	var vErr *domain.VersionConflictError
	require.True(t, errors.As(err, &vErr), "want VersionConflictError, got %v", err)
	assert.Equal(t, first.Version, vErr.Current)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MatchAttempts)
	assert.Equal(t, "Leaking tap", got.Title)

	_, err = s.AssignProvider(ctx, req.ID, uuid.New(), testTime)
	require.NoError(t, err)
	err = s.SaveRequest(ctx, first)
	assert.True(t, errors.As(err, &vErr), "accept advances the version too")
}

func TestMemoryStore_AssignProvider_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	req := newRequest(domain.RequestStatusMatched)
	require.NoError(t, s.CreateRequest(ctx, req))

	const contenders = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
		losers  int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pid := uuid.New()
			_, err := s.AssignProvider(ctx, req.ID, pid, testTime)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, pid)
				return
			}
			var stErr *domain.StateTransitionError
			if errors.As(err, &stErr) && stErr.Current == domain.RequestStatusConfirmed {
				losers++
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, contenders-1, losers)

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestStatusConfirmed, got.Status)
	assert.True(t, got.IsAssignedTo(winners[0]))
	assert.True(t, got.Quote.Frozen)
}

func TestMemoryStore_ListPendingOffers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	provider := uuid.New()

	offered := newRequest(domain.RequestStatusMatched)
	offered.Notified = []uuid.UUID{provider}
	taken := newRequest(domain.RequestStatusConfirmed)
	taken.Notified = []uuid.UUID{provider}
	other := newRequest(domain.RequestStatusMatched)
	other.Notified = []uuid.UUID{uuid.New()}
	for _, r := range []*domain.ServiceRequest{offered, taken, other} {
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	offers, err := s.ListPendingOffers(ctx, provider)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, offered.ID, offers[0].ID)
}

func TestMemoryStore_ListCandidates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	origin := domain.Coordinates{Lat: 35.6812, Lng: 139.7671}

	near := domain.Provider{ID: uuid.New(), Online: true, Active: true, Verified: true,
		Location: &domain.Coordinates{Lat: 35.6896, Lng: 139.7006}} // ~6 km
	far := domain.Provider{ID: uuid.New(), Online: true, Active: true, Verified: true,
		Location: &domain.Coordinates{Lat: 35.4437, Lng: 139.6380}} // ~29 km
	unknown := domain.Provider{ID: uuid.New(), Online: true, Active: true, Verified: true}
	offline := domain.Provider{ID: uuid.New(), Active: true, Verified: true, Location: &origin}
	for _, p := range []domain.Provider{near, far, unknown, offline} {
		require.NoError(t, s.PutProvider(ctx, p))
	}

	ids := func(cs []domain.CandidateProvider) []uuid.UUID {
		var out []uuid.UUID
		for _, c := range cs {
			out = append(out, c.ProviderID)
		}
		return out
	}

	got, err := s.ListCandidates(ctx, domain.CandidateQuery{Origin: &origin, RadiusKm: 20})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{near.ID, unknown.ID}, ids(got))

	got, err = s.ListCandidates(ctx, domain.CandidateQuery{Origin: &origin, RadiusKm: 40})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{near.ID, far.ID, unknown.ID}, ids(got))

	got, err = s.ListCandidates(ctx, domain.CandidateQuery{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestMemoryStore_CreateRating(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	provider := domain.Provider{ID: uuid.New(), Rating: 4.0, RatingCount: 1}
	require.NoError(t, s.PutProvider(ctx, provider))
	req := newRequest(domain.RequestStatusCompleted)
	req.ProviderID = &provider.ID
	require.NoError(t, s.CreateRequest(ctx, req))

	rating := domain.Rating{ID: uuid.New(), RequestID: req.ID, ProviderID: provider.ID, Overall: 5}
	require.NoError(t, s.CreateRating(ctx, rating))

	p, err := s.GetProvider(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, p.Rating)
	assert.Equal(t, 2, p.RatingCount)

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RatingID)
	assert.Equal(t, rating.ID, *got.RatingID)

	again := rating
	again.ID = uuid.New()
	err = s.CreateRating(ctx, again)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestMemoryStore_ProviderUpdates_UnknownProvider(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := uuid.New()

	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(s.SetProviderOnline(ctx, id, true, testTime)))
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(s.UpdateProviderLocation(ctx, id, domain.Coordinates{}, testTime)))
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(s.IncrementCompletedJobs(ctx, id)))
}
