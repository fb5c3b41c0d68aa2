// Package dispatch drives a service request through its lifecycle: it
// classifies and prices new requests, matches them to providers, and
// enforces the state machine as providers accept and work the job.
//
// Every status change is a compare-and-set against the stored status, so
// concurrent callers cannot both move a request out of the same state.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/fixmatch/internal/classify"
	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/matching"
	"github.com/DukeRupert/fixmatch/internal/pricing"
)

// =============================================================================
// Collaborators
// =============================================================================

// RequestStore persists service requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *domain.ServiceRequest) error
	// GetRequest returns domain.ENOTFOUND when id does not exist.
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.ServiceRequest, error)
	// SaveRequest writes req only if the stored status is one of expect
	// and the stored version equals req.Version, then advances req.Version.
	// A moved status yields a *domain.StateTransitionError carrying the
	// stored status; a moved version yields a *domain.VersionConflictError.
	SaveRequest(ctx context.Context, req *domain.ServiceRequest, expect ...domain.RequestStatus) error
	// AssignProvider moves a matched request to confirmed, sets its provider
	// and freezes its quote in one atomic step. A request that is no longer
	// matched yields a *domain.StateTransitionError.
	AssignProvider(ctx context.Context, id, providerID uuid.UUID, at time.Time) (*domain.ServiceRequest, error)
	// ListPendingOffers returns matched requests that offered the job to
	// providerID.
	ListPendingOffers(ctx context.Context, providerID uuid.UUID) ([]domain.ServiceRequest, error)
}

// TrackingStore holds the append-only tracking log.
type TrackingStore interface {
	AppendTracking(ctx context.Context, ev domain.TrackingEvent) error
	ListTracking(ctx context.Context, requestID uuid.UUID) ([]domain.TrackingEvent, error)
}

// ProviderStore reads and updates provider profiles.
type ProviderStore interface {
	ListCandidates(ctx context.Context, q domain.CandidateQuery) ([]domain.CandidateProvider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*domain.Provider, error)
	SetProviderOnline(ctx context.Context, id uuid.UUID, online bool, at time.Time) error
	UpdateProviderLocation(ctx context.Context, id uuid.UUID, loc domain.Coordinates, at time.Time) error
	IncrementCompletedJobs(ctx context.Context, id uuid.UUID) error
}

// ReviewStore queues held settlements for a person to look at.
type ReviewStore interface {
	CreatePriceReview(ctx context.Context, review domain.PriceReview) error
	ListPriceReviews(ctx context.Context, status domain.PriceReviewStatus) ([]domain.PriceReview, error)
}

// MessageStore keeps the chat between requester and provider.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, requestID uuid.UUID) ([]domain.Message, error)
}

// RatingStore saves a rating, links it to the request and folds it into
// the provider's average in one step. A second rating for the same request
// yields domain.ECONFLICT.
type RatingStore interface {
	CreateRating(ctx context.Context, rating domain.Rating) error
}

// PhotoStore records photo metadata. Bytes live in object storage.
type PhotoStore interface {
	CreatePhoto(ctx context.Context, photo domain.Photo) error
	ListPhotos(ctx context.Context, requestID uuid.UUID) ([]domain.Photo, error)
}

// Store is everything the coordinator persists.
type Store interface {
	RequestStore
	TrackingStore
	ProviderStore
	ReviewStore
	MessageStore
	RatingStore
	PhotoStore
}

// Notifier delivers an event to a connected client. Delivery is best
// effort; the coordinator never depends on it.
type Notifier interface {
	Notify(to domain.Recipient, ev domain.Event)
}

// Scheduler arranges for HandleAcceptTimeout to run for requestID after
// delay. attempt identifies the matching pass the hook belongs to.
type Scheduler interface {
	ScheduleAcceptTimeout(ctx context.Context, requestID uuid.UUID, attempt int, delay time.Duration) error
}

// Classifier assesses a request.
type Classifier interface {
	Classify(in classify.Input) domain.ClassificationResult
}

// Pricer quotes a request.
type Pricer interface {
	Quote(p pricing.QuoteParams) (domain.PriceQuote, error)
	SlotFor(at time.Time, immediate bool, urgency domain.Level) domain.TimeSlot
}

// Ranker orders candidate providers.
type Ranker interface {
	Rank(in matching.Input) ([]domain.CandidateProvider, error)
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds the dispatch policy.
type Config struct {
	RadiusKm         float64       // candidate search radius
	RelaxedRadiusKm  float64       // radius for re-match passes
	NotifyTopN       int           // how many candidates are offered the job
	MaxMatchAttempts int           // passes before escalating
	AcceptTimeout    time.Duration // wait for an accept before re-matching
	GeofenceMeters   float64       // "arrived" hint radius
}

// DefaultConfig returns the standard dispatch policy.
func DefaultConfig() Config {
	return Config{
		RadiusKm:         20,
		RelaxedRadiusKm:  40,
		NotifyTopN:       matching.DefaultTopN,
		MaxMatchAttempts: 3,
		AcceptTimeout:    2 * time.Minute,
		GeofenceMeters:   100,
	}
}

// Validate checks the policy values.
func (c Config) Validate() error {
	if c.RadiusKm <= 0 {
		return errors.New("radius must be positive")
	}
	if c.RelaxedRadiusKm < c.RadiusKm {
		return errors.New("relaxed radius must be at least the radius")
	}
	if c.NotifyTopN < 1 {
		return errors.New("notify top n must be at least 1")
	}
	if c.MaxMatchAttempts < 1 {
		return errors.New("max match attempts must be at least 1")
	}
	if c.AcceptTimeout <= 0 {
		return errors.New("accept timeout must be positive")
	}
	return nil
}

// =============================================================================
// Interface Definition
// =============================================================================

// Coordinator defines the request lifecycle operations. Every method takes
// the already authenticated caller.
type Coordinator interface {
	// Submit validates, classifies and prices a new request, stores it and
	// runs the first matching pass. Requesters only.
	Submit(ctx context.Context, p domain.Principal, params domain.SubmitRequestParams) (*domain.ServiceRequest, error)

	// Edit changes a request before a provider accepts and recomputes its
	// classification and quote.
	Edit(ctx context.Context, p domain.Principal, params domain.EditRequestParams) (*domain.ServiceRequest, error)

	// Match runs a matching pass on demand. Operators only.
	Match(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.ServiceRequest, error)

	// Accept assigns the calling provider. Exactly one concurrent accept
	// wins; the others get *domain.ConcurrentAssignmentConflict.
	Accept(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.ServiceRequest, error)

	// UpdateStatus moves an assigned job to en_route, arrived or in_progress.
	UpdateStatus(ctx context.Context, p domain.Principal, params domain.StatusUpdateParams) (*domain.ServiceRequest, error)

	// Complete finishes the job. When the charge breaks the price guarantee
	// the request still completes, settlement is held and the returned error
	// is a *domain.PriceGuaranteeViolation.
	Complete(ctx context.Context, p domain.Principal, params domain.CompleteParams) (*domain.ServiceRequest, error)

	// Cancel cancels from any non-terminal status. A reason is required.
	Cancel(ctx context.Context, p domain.Principal, id uuid.UUID, reason string) (*domain.ServiceRequest, error)

	// UpdateLocation records the assigned provider's position for a job.
	UpdateLocation(ctx context.Context, p domain.Principal, id uuid.UUID, loc domain.Coordinates) (*domain.ServiceRequest, error)

	// HandleAcceptTimeout re-matches or escalates a request nobody accepted.
	HandleAcceptTimeout(ctx context.Context, id uuid.UUID, attempt int) error

	// State returns the authoritative request state and tracking log.
	State(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.RequestState, error)

	SendMessage(ctx context.Context, p domain.Principal, params domain.SendMessageParams) (*domain.Message, error)
	ListMessages(ctx context.Context, p domain.Principal, id uuid.UUID) ([]domain.Message, error)

	// Rate records the requester's review of a completed request.
	Rate(ctx context.Context, p domain.Principal, params domain.RateParams) (*domain.Rating, error)

	SetOnline(ctx context.Context, p domain.Principal, online bool) error
	UpdateProviderLocation(ctx context.Context, p domain.Principal, loc domain.Coordinates) error
	PendingOffers(ctx context.Context, p domain.Principal) ([]domain.ServiceRequest, error)

	// AttachPhoto records an uploaded photo and reclassifies the request.
	AttachPhoto(ctx context.Context, p domain.Principal, photo domain.Photo) (*domain.ServiceRequest, error)
	ListPhotos(ctx context.Context, p domain.Principal, id uuid.UUID) ([]domain.Photo, error)

	// PriceReviews lists held settlements. Operators only.
	PriceReviews(ctx context.Context, p domain.Principal) ([]domain.PriceReview, error)
}

// =============================================================================
// Implementation
// =============================================================================

// Deps are the coordinator's collaborators.
type Deps struct {
	Store      Store
	Classifier Classifier
	Pricer     Pricer
	Ranker     Ranker
	Notifier   Notifier
	Scheduler  Scheduler
	Clock      func() time.Time
	Logger     *slog.Logger
}

type coordinator struct {
	store      Store
	classifier Classifier
	pricer     Pricer
	ranker     Ranker
	notifier   Notifier
	scheduler  Scheduler
	now        func() time.Time
	cfg        Config
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator.
//
// Example usage:
//
//	c := dispatch.NewCoordinator(dispatch.Deps{Store: store, ...}, dispatch.DefaultConfig())
func NewCoordinator(deps Deps, cfg Config) Coordinator {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &coordinator{
		store:      deps.Store,
		classifier: deps.Classifier,
		pricer:     deps.Pricer,
		ranker:     deps.Ranker,
		notifier:   deps.Notifier,
		scheduler:  deps.Scheduler,
		now:        now,
		cfg:        cfg,
		logger:     logger,
	}
}

// =============================================================================
// Helpers
// =============================================================================

func (c *coordinator) load(ctx context.Context, op string, id uuid.UUID) (*domain.ServiceRequest, error) {
	req, err := c.store.GetRequest(ctx, id)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return nil, domain.NotFound(op, "request", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load request")
	}
	return req, nil
}

// save wraps the compare-and-set write. State and version conflicts pass
// through untouched so callers can see the authoritative status or reload.
func (c *coordinator) save(ctx context.Context, op string, req *domain.ServiceRequest, expect ...domain.RequestStatus) error {
	req.UpdatedAt = c.now()
	if err := c.store.SaveRequest(ctx, req, expect...); err != nil {
		var stErr *domain.StateTransitionError
		if errors.As(err, &stErr) {
			return stErr
		}
		var vErr *domain.VersionConflictError
		if errors.As(err, &vErr) {
			return vErr
		}
		return domain.Internal(err, op, "failed to save request")
	}
	return nil
}

// stale reports whether err means the write was based on an outdated copy.
func stale(err error) bool {
	var vErr *domain.VersionConflictError
	return errors.As(err, &vErr)
}

func (c *coordinator) track(ctx context.Context, req *domain.ServiceRequest, status domain.RequestStatus, loc *domain.Coordinates, notes string) {
	ev := domain.TrackingEvent{
		ID:         uuid.New(),
		RequestID:  req.ID,
		ProviderID: req.ProviderID,
		Status:     status,
		Location:   loc,
		Notes:      notes,
		CreatedAt:  c.now(),
	}
	if err := c.store.AppendTracking(ctx, ev); err != nil {
		c.logger.Error("failed to append tracking event",
			"request_id", req.ID,
			"status", status,
			"error", err,
		)
	}
}

func (c *coordinator) notify(to domain.Recipient, typ domain.EventType, requestID uuid.UUID, data any) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(to, domain.NewEvent(typ, requestID, c.now(), data))
}

func (c *coordinator) statusChanged(req *domain.ServiceRequest, reason string) domain.StatusChangedPayload {
	return domain.StatusChangedPayload{
		RequestID: req.ID,
		NewStatus: req.Status,
		Timestamp: c.now(),
		Reason:    reason,
	}
}

func requireRole(op string, p domain.Principal, roles ...domain.Role) error {
	for _, r := range roles {
		if p.Role == r {
			return nil
		}
	}
	return domain.Forbidden(op, "this action is not available to your role")
}

// requireOwner allows the requester who submitted req.
func requireOwner(op string, p domain.Principal, req *domain.ServiceRequest) error {
	if p.Role == domain.RoleRequester && p.ID == req.RequesterID {
		return nil
	}
	return domain.NotFound(op, "request", req.ID.String())
}

// requireAssigned allows the provider who accepted req.
func requireAssigned(op string, p domain.Principal, req *domain.ServiceRequest) error {
	if p.Role == domain.RoleProvider && req.IsAssignedTo(p.ID) {
		return nil
	}
	return domain.Forbidden(op, "you are not assigned to this request")
}

// canView allows the owner, the assigned provider, providers offered the
// job while it is open, and operators.
func canView(p domain.Principal, req *domain.ServiceRequest) bool {
	switch p.Role {
	case domain.RoleOperator:
		return true
	case domain.RoleRequester:
		return p.ID == req.RequesterID
	case domain.RoleProvider:
		if req.IsAssignedTo(p.ID) {
			return true
		}
		return req.Status == domain.RequestStatusMatched && req.WasNotified(p.ID)
	}
	return false
}
