package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// TrackingEvent is an immutable record of a status or location change.
// Events are only ever appended.
type TrackingEvent struct {
	ID         uuid.UUID     `json:"id"`
	RequestID  uuid.UUID     `json:"request_id"`
	ProviderID *uuid.UUID    `json:"provider_id,omitempty"`
	Status     RequestStatus `json:"status"`
	Location   *Coordinates  `json:"location,omitempty"`
	Notes      string        `json:"notes,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SortTracking orders events by creation time, oldest first. Events with the
// same timestamp keep their insertion order.
func SortTracking(events []TrackingEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// CurrentStatus returns the status of the latest event, or "" when there
// are none.
func CurrentStatus(events []TrackingEvent) RequestStatus {
	if len(events) == 0 {
		return ""
	}
	latest := events[0]
	for _, e := range events[1:] {
		if !e.CreatedAt.Before(latest.CreatedAt) {
			latest = e
		}
	}
	return latest.Status
}
