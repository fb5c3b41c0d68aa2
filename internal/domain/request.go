// Package domain contains core business types and interfaces.
//
// This file defines the ServiceRequest domain type and its lifecycle.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Request Status
// =============================================================================

// RequestStatus represents the lifecycle state of a service request.
type RequestStatus string

const (
	// RequestStatusSubmitted indicates the request was accepted by the platform
	// and is waiting for candidate providers.
	RequestStatusSubmitted RequestStatus = "submitted"

	// RequestStatusMatched indicates a ranked candidate list exists and the top
	// candidates have been offered the job.
	RequestStatusMatched RequestStatus = "matched"

	// RequestStatusConfirmed indicates exactly one provider accepted.
	RequestStatusConfirmed RequestStatus = "confirmed"

	RequestStatusEnRoute    RequestStatus = "en_route"
	RequestStatusArrived    RequestStatus = "arrived"
	RequestStatusInProgress RequestStatus = "in_progress"

	// RequestStatusCompleted and RequestStatusCancelled are terminal.
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusCancelled RequestStatus = "cancelled"
)

// requestFlow is the forward path. Each status may only advance one step.
var requestFlow = []RequestStatus{
	RequestStatusSubmitted,
	RequestStatusMatched,
	RequestStatusConfirmed,
	RequestStatusEnRoute,
	RequestStatusArrived,
	RequestStatusInProgress,
	RequestStatusCompleted,
}

// String returns the string representation of the status.
func (s RequestStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized value.
func (s RequestStatus) IsValid() bool {
	if s == RequestStatusCancelled {
		return true
	}
	return s.index() >= 0
}

// IsTerminal returns true for completed and cancelled.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusCancelled
}

// Next returns the status one step forward, or "" if there is none.
func (s RequestStatus) Next() RequestStatus {
	i := s.index()
	if i < 0 || i == len(requestFlow)-1 {
		return ""
	}
	return requestFlow[i+1]
}

// CanTransitionTo checks if the request can transition to the target status.
//
// Valid transitions:
// - one step forward along submitted -> ... -> completed
// - any non-terminal status -> cancelled
// - nothing out of completed or cancelled
func (s RequestStatus) CanTransitionTo(target RequestStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if target == RequestStatusCancelled {
		return s.IsValid()
	}
	return target != "" && s.Next() == target
}

// IsProviderUpdate reports whether target is one of the statuses an assigned
// provider moves a job through explicitly.
func (s RequestStatus) IsProviderUpdate() bool {
	switch s {
	case RequestStatusEnRoute, RequestStatusArrived, RequestStatusInProgress:
		return true
	}
	return false
}

// IsActiveJob returns true while an assigned provider is working the request.
func (s RequestStatus) IsActiveJob() bool {
	switch s {
	case RequestStatusConfirmed, RequestStatusEnRoute,
		RequestStatusArrived, RequestStatusInProgress:
		return true
	}
	return false
}

func (s RequestStatus) index() int {
	for i, st := range requestFlow {
		if st == s {
			return i
		}
	}
	return -1
}

// =============================================================================
// Location and Schedule
// =============================================================================

// Coordinates is a WGS84 position in degrees.
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// IsValid returns true if the coordinates are within the WGS84 range.
func (c Coordinates) IsValid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Location is where the work happens.
type Location struct {
	Address     string       `json:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Schedule is the requester's timing preference. A nil ScheduledAt means
// "as soon as possible".
type Schedule struct {
	Immediate   bool       `json:"immediate"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// SettlementStatus tracks payout for a completed request.
type SettlementStatus string

const (
	SettlementNone     SettlementStatus = ""
	SettlementReleased SettlementStatus = "released"
	SettlementHeld     SettlementStatus = "held"
)

// =============================================================================
// ServiceRequest Domain Type
// =============================================================================

// ServiceRequest is a customer's repair request.
type ServiceRequest struct {
	ID          uuid.UUID
	RequesterID uuid.UUID
	Category    Category
	Title       string
	Description string
	Urgency     Level
	Location    Location
	ImageCount  int
	VideoCount  int
	Schedule    Schedule
	Status      RequestStatus

	// ProviderID is set exactly once, when a provider accepts.
	ProviderID *uuid.UUID

	Classification ClassificationResult
	Quote          PriceQuote

	// Candidates is the full ranked list from the latest matching pass.
	// Notified holds the providers that were offered the job.
	Candidates    []CandidateProvider
	Notified      []uuid.UUID
	MatchAttempts int
	Escalated     bool

	CancellationReason string
	ChargedAmount      *int64
	Settlement         SettlementStatus
	RatingID           *uuid.UUID

	// Version increases on every stored write.
	Version int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// IsTerminal returns true once the request is completed or cancelled.
func (r *ServiceRequest) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// IsEditable returns true while the description and photos can change,
// which is until a provider accepts.
func (r *ServiceRequest) IsEditable() bool {
	return r.Status == RequestStatusSubmitted || r.Status == RequestStatusMatched
}

// IsAssignedTo returns true if providerID accepted this request.
func (r *ServiceRequest) IsAssignedTo(providerID uuid.UUID) bool {
	return r.ProviderID != nil && *r.ProviderID == providerID
}

// IsCandidate returns true if providerID appears in the ranked candidate list.
func (r *ServiceRequest) IsCandidate(providerID uuid.UUID) bool {
	for _, c := range r.Candidates {
		if c.ProviderID == providerID {
			return true
		}
	}
	return false
}

// WasNotified returns true if providerID was offered the job.
func (r *ServiceRequest) WasNotified(providerID uuid.UUID) bool {
	for _, id := range r.Notified {
		if id == providerID {
			return true
		}
	}
	return false
}

// TransitionTo moves the request to the target status, or reports the
// current authoritative status when the move is not allowed.
func (r *ServiceRequest) TransitionTo(target RequestStatus) error {
	if !r.Status.CanTransitionTo(target) {
		return &StateTransitionError{
			RequestID: r.ID.String(),
			Current:   r.Status,
			Target:    target,
		}
	}
	r.Status = target
	return nil
}

// =============================================================================
// Request Service Parameters
// =============================================================================

// SubmitRequestParams contains the requester's input for a new request.
type SubmitRequestParams struct {
	Category    string
	Title       string
	Description string
	Urgency     string
	Location    Location
	ImageCount  int
	VideoCount  int
	Schedule    Schedule
}

// EditRequestParams contains the fields a requester may change before a
// provider is found. Nil fields are left unchanged.
type EditRequestParams struct {
	ID          uuid.UUID
	Title       *string
	Description *string
	Urgency     *string
	ImageCount  *int
}

// CompleteParams carries the amount actually billed.
type CompleteParams struct {
	ID            uuid.UUID
	ChargedAmount int64
	Notes         string
}

// StatusUpdateParams moves an assigned job forward.
type StatusUpdateParams struct {
	ID       uuid.UUID
	Status   RequestStatus
	Location *Coordinates
	Notes    string
}

// RequestState is the authoritative view recomputed from persisted records.
type RequestState struct {
	Request  ServiceRequest
	Status   RequestStatus
	Tracking []TrackingEvent
}
