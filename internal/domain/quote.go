package domain

import (
	"time"

	"github.com/google/uuid"
)

// PriceQuote is the itemised price for a request. All money is in whole
// currency units.
//
// Invariants:
//   - Subtotal = BasePrice + the four surcharges
//   - FinalPrice = round(Subtotal * DemandMultiplier)
//   - CalloutFee + DiagnosticFee + RepairFee = FinalPrice
type PriceQuote struct {
	Category            Category `json:"category"`
	BasePrice           int64    `json:"base_price"`
	LocationSurcharge   int64    `json:"location_surcharge"`
	UrgencySurcharge    int64    `json:"urgency_surcharge"`
	TimeSlotSurcharge   int64    `json:"time_slot_surcharge"`
	ComplexitySurcharge int64    `json:"complexity_surcharge"`
	Subtotal            int64    `json:"subtotal"`
	DemandMultiplier    float64  `json:"demand_multiplier"`
	FinalPrice          int64    `json:"final_price"`

	// Informational breakdown of FinalPrice.
	CalloutFee    int64   `json:"callout_fee"`
	DiagnosticFee int64   `json:"diagnostic_fee"`
	RepairFee     int64   `json:"repair_fee"`
	DistanceKm    float64 `json:"distance_km"`

	TimeSlot   TimeSlot   `json:"time_slot"`
	Complexity Complexity `json:"complexity"`
	QuotedAt   time.Time  `json:"quoted_at"`

	// Frozen is set when a provider accepts; the quote never changes after.
	Frozen bool `json:"frozen"`
}

// SurchargeTotal returns the sum of the four named surcharges.
func (q PriceQuote) SurchargeTotal() int64 {
	return q.LocationSurcharge + q.UrgencySurcharge + q.TimeSlotSurcharge + q.ComplexitySurcharge
}

// PriceReviewStatus tracks a held settlement.
type PriceReviewStatus string

const (
	PriceReviewOpen     PriceReviewStatus = "open"
	PriceReviewResolved PriceReviewStatus = "resolved"
)

// PriceReview is queued when a charged amount breaks the price guarantee.
type PriceReview struct {
	ID         uuid.UUID         `json:"id"`
	RequestID  uuid.UUID         `json:"request_id"`
	ProviderID uuid.UUID         `json:"provider_id"`
	Quoted     int64             `json:"quoted"`
	Charged    int64             `json:"charged"`
	Status     PriceReviewStatus `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
}
