package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a notification pushed to connected clients.
type EventType string

const (
	EventNewRequest         EventType = "new_request"
	EventRequestUnavailable EventType = "request_unavailable"
	EventStatusChanged      EventType = "status_changed"
	EventLocationUpdate     EventType = "location_update"
	EventSearching          EventType = "searching"
	EventEscalated          EventType = "escalated"
	EventNewMessage         EventType = "new_message"
	EventGeofenceArrived    EventType = "geofence_arrived"
	EventPriceReview        EventType = "price_review"
)

// Recipient addresses a notification. A zero ID with RoleOperator reaches
// every connected operator.
type Recipient struct {
	Role Role
	ID   uuid.UUID
}

// RequesterRecipient addresses a requester.
func RequesterRecipient(id uuid.UUID) Recipient {
	return Recipient{Role: RoleRequester, ID: id}
}

// ProviderRecipient addresses a provider.
func ProviderRecipient(id uuid.UUID) Recipient {
	return Recipient{Role: RoleProvider, ID: id}
}

// Operators addresses all operators.
func Operators() Recipient {
	return Recipient{Role: RoleOperator}
}

// Event is the envelope delivered to a recipient. Delivery is best effort.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	RequestID uuid.UUID `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewEvent creates an event envelope.
func NewEvent(typ EventType, requestID uuid.UUID, at time.Time, data any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      typ,
		RequestID: requestID,
		Timestamp: at,
		Data:      data,
	}
}

// =============================================================================
// Event payloads
// =============================================================================

// NewRequestPayload is offered to candidate providers.
type NewRequestPayload struct {
	RequestID      uuid.UUID            `json:"request_id"`
	Category       Category             `json:"category"`
	Title          string               `json:"title"`
	Address        string               `json:"address"`
	Classification ClassificationResult `json:"classification"`
	Quote          PriceQuote           `json:"quote"`
	Match          CandidateProvider    `json:"match"`
}

// StatusChangedPayload tells the requester the job moved.
type StatusChangedPayload struct {
	RequestID uuid.UUID     `json:"request_id"`
	NewStatus RequestStatus `json:"new_status"`
	Timestamp time.Time     `json:"timestamp"`
	Reason    string        `json:"reason,omitempty"`
}

// LocationUpdatePayload carries a provider position.
type LocationUpdatePayload struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Timestamp  time.Time `json:"timestamp"`
}

// SearchingPayload tells the requester matching is still going.
type SearchingPayload struct {
	RequestID uuid.UUID `json:"request_id"`
	Attempt   int       `json:"attempt"`
}
