package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/matching"
)

// MemoryStore keeps everything in maps behind one mutex. Values are copied
// on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.Mutex
	requests  map[uuid.UUID]*domain.ServiceRequest
	providers map[uuid.UUID]*domain.Provider
	tracking  map[uuid.UUID][]domain.TrackingEvent
	reviews   []domain.PriceReview
	messages  map[uuid.UUID][]domain.Message
	ratings   map[uuid.UUID]domain.Rating
	photos    map[uuid.UUID][]domain.Photo
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[uuid.UUID]*domain.ServiceRequest),
		providers: make(map[uuid.UUID]*domain.Provider),
		tracking:  make(map[uuid.UUID][]domain.TrackingEvent),
		messages:  make(map[uuid.UUID][]domain.Message),
		ratings:   make(map[uuid.UUID]domain.Rating),
		photos:    make(map[uuid.UUID][]domain.Photo),
	}
}

// =============================================================================
// Requests
// =============================================================================

func (s *MemoryStore) CreateRequest(_ context.Context, req *domain.ServiceRequest) error {
	const op = "repository.create_request"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[req.ID]; ok {
		return domain.Conflict(op, "request already exists")
	}
	req.Version = 1
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *MemoryStore) GetRequest(_ context.Context, id uuid.UUID) (*domain.ServiceRequest, error) {
	const op = "repository.get_request"

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, domain.NotFound(op, "request", id.String())
	}
	return cloneRequest(req), nil
}

// SaveRequest replaces the stored request when its status is one of
// expect and req carries the stored version. An empty expect list skips
// the status check. On success req.Version is advanced.
func (s *MemoryStore) SaveRequest(_ context.Context, req *domain.ServiceRequest, expect ...domain.RequestStatus) error {
	const op = "repository.save_request"

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[req.ID]
	if !ok {
		return domain.NotFound(op, "request", req.ID.String())
	}
	if len(expect) > 0 && !slices.Contains(expect, stored.Status) {
		return &domain.StateTransitionError{
			RequestID: req.ID.String(),
			Current:   stored.Status,
			Target:    req.Status,
		}
	}
	if stored.Version != req.Version {
		return &domain.VersionConflictError{
			RequestID: req.ID.String(),
			Expected:  req.Version,
			Current:   stored.Version,
		}
	}
	req.Version++
	s.requests[req.ID] = cloneRequest(req)
	return nil
}

func (s *MemoryStore) AssignProvider(_ context.Context, id, providerID uuid.UUID, at time.Time) (*domain.ServiceRequest, error) {
	const op = "repository.assign_provider"

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[id]
	if !ok {
		return nil, domain.NotFound(op, "request", id.String())
	}
	if stored.Status != domain.RequestStatusMatched {
		return nil, &domain.StateTransitionError{
			RequestID: id.String(),
			Current:   stored.Status,
			Target:    domain.RequestStatusConfirmed,
		}
	}

	pid := providerID
	stored.Status = domain.RequestStatusConfirmed
	stored.ProviderID = &pid
	stored.Quote.Frozen = true
	stored.UpdatedAt = at
	stored.Version++
	return cloneRequest(stored), nil
}

func (s *MemoryStore) ListPendingOffers(_ context.Context, providerID uuid.UUID) ([]domain.ServiceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ServiceRequest
	for _, req := range s.requests {
		if req.Status == domain.RequestStatusMatched && req.WasNotified(providerID) {
			out = append(out, *cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// =============================================================================
// Tracking
// =============================================================================

func (s *MemoryStore) AppendTracking(_ context.Context, ev domain.TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tracking[ev.RequestID] = append(s.tracking[ev.RequestID], ev)
	return nil
}

func (s *MemoryStore) ListTracking(_ context.Context, requestID uuid.UUID) ([]domain.TrackingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.tracking[requestID]), nil
}

// =============================================================================
// Providers
// =============================================================================

// PutProvider inserts or replaces a provider profile.
func (s *MemoryStore) PutProvider(_ context.Context, p domain.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.providers[p.ID] = cloneProvider(&p)
	return nil
}

// ListCandidates returns eligible providers inside the query radius.
func (s *MemoryStore) ListCandidates(_ context.Context, q domain.CandidateQuery) ([]domain.CandidateProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CandidateProvider
	for _, p := range s.providers {
		if !p.IsEligible() || !withinRadius(q, p.Location) {
			continue
		}
		out = append(out, cloneProvider(p).Candidate())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProviderID.String() < out[j].ProviderID.String()
	})
	return out, nil
}

func (s *MemoryStore) GetProvider(_ context.Context, id uuid.UUID) (*domain.Provider, error) {
	const op = "repository.get_provider"

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[id]
	if !ok {
		return nil, domain.NotFound(op, "provider", id.String())
	}
	return cloneProvider(p), nil
}

func (s *MemoryStore) SetProviderOnline(_ context.Context, id uuid.UUID, online bool, at time.Time) error {
	return s.updateProvider("repository.set_provider_online", id, func(p *domain.Provider) {
		p.Online = online
		p.UpdatedAt = at
	})
}

func (s *MemoryStore) UpdateProviderLocation(_ context.Context, id uuid.UUID, loc domain.Coordinates, at time.Time) error {
	return s.updateProvider("repository.update_provider_location", id, func(p *domain.Provider) {
		p.Location = &loc
		p.UpdatedAt = at
	})
}

func (s *MemoryStore) IncrementCompletedJobs(_ context.Context, id uuid.UUID) error {
	return s.updateProvider("repository.increment_completed_jobs", id, func(p *domain.Provider) {
		p.CompletedJobs++
	})
}

func (s *MemoryStore) updateProvider(op string, id uuid.UUID, fn func(*domain.Provider)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.providers[id]
	if !ok {
		return domain.NotFound(op, "provider", id.String())
	}
	fn(p)
	return nil
}

// =============================================================================
// Reviews, messages, ratings, photos
// =============================================================================

func (s *MemoryStore) CreatePriceReview(_ context.Context, review domain.PriceReview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reviews = append(s.reviews, review)
	return nil
}

func (s *MemoryStore) ListPriceReviews(_ context.Context, status domain.PriceReviewStatus) ([]domain.PriceReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PriceReview
	for _, r := range s.reviews {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[msg.RequestID] = append(s.messages[msg.RequestID], msg)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, requestID uuid.UUID) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.messages[requestID]), nil
}

// CreateRating stores the rating, links it to the request and updates the
// provider's average.
func (s *MemoryStore) CreateRating(_ context.Context, rating domain.Rating) error {
	const op = "repository.create_rating"

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[rating.RequestID]
	if !ok {
		return domain.NotFound(op, "request", rating.RequestID.String())
	}
	if _, dup := s.ratings[rating.RequestID]; dup || req.RatingID != nil {
		return domain.Conflict(op, "request has already been rated")
	}
	p, ok := s.providers[rating.ProviderID]
	if !ok {
		return domain.NotFound(op, "provider", rating.ProviderID.String())
	}

	s.ratings[rating.RequestID] = rating
	id := rating.ID
	req.RatingID = &id
	req.Version++
	p.Rating = domain.RollingAverage(p.Rating, p.RatingCount, rating.Overall)
	p.RatingCount++
	return nil
}

func (s *MemoryStore) CreatePhoto(_ context.Context, photo domain.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.photos[photo.RequestID] = append(s.photos[photo.RequestID], photo)
	return nil
}

func (s *MemoryStore) ListPhotos(_ context.Context, requestID uuid.UUID) ([]domain.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.photos[requestID]), nil
}

// =============================================================================
// Helpers
// =============================================================================

// withinRadius reports whether a provider at loc falls inside the query.
// Unknown locations always pass; the ranker scores them lower.
func withinRadius(q domain.CandidateQuery, loc *domain.Coordinates) bool {
	if q.RadiusKm <= 0 || q.Origin == nil || loc == nil {
		return true
	}
	return matching.GreatCircleKm(*q.Origin, *loc) <= q.RadiusKm
}

func cloneRequest(r *domain.ServiceRequest) *domain.ServiceRequest {
	c := *r
	if r.Location.Coordinates != nil {
		coords := *r.Location.Coordinates
		c.Location.Coordinates = &coords
	}
	if r.Schedule.ScheduledAt != nil {
		at := *r.Schedule.ScheduledAt
		c.Schedule.ScheduledAt = &at
	}
	if r.ProviderID != nil {
		id := *r.ProviderID
		c.ProviderID = &id
	}
	if r.ChargedAmount != nil {
		v := *r.ChargedAmount
		c.ChargedAmount = &v
	}
	if r.RatingID != nil {
		id := *r.RatingID
		c.RatingID = &id
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		c.CancelledAt = &t
	}
	c.Classification.RecommendedTools = slices.Clone(r.Classification.RecommendedTools)
	c.Classification.RiskFactors = slices.Clone(r.Classification.RiskFactors)
	c.Classification.RequiredSkills = slices.Clone(r.Classification.RequiredSkills)
	c.Classification.Notes = slices.Clone(r.Classification.Notes)
	c.Candidates = slices.Clone(r.Candidates)
	c.Notified = slices.Clone(r.Notified)
	return &c
}

func cloneProvider(p *domain.Provider) *domain.Provider {
	c := *p
	c.Skills = slices.Clone(p.Skills)
	if p.Location != nil {
		loc := *p.Location
		c.Location = &loc
	}
	return &c
}
