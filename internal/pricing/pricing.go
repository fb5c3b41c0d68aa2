// Package pricing computes itemised price quotes from a rate card.
//
// A quote is the base price for the category plus four independent
// surcharges (location, urgency, time slot, complexity), scaled by a demand
// multiplier. Randomness only enters through the injected estimators.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// GuaranteePercent is the most a requester can be charged relative to the
// quoted final price.
const GuaranteePercent = 110

// QuoteParams is the input to Quote. DemandMultiplier and DistanceKm are
// optional; the engine's estimators fill them in when nil.
type QuoteParams struct {
	Category         domain.Category
	Urgency          domain.Level
	Location         string
	TimeSlot         domain.TimeSlot
	Complexity       domain.Complexity
	DemandMultiplier *float64
	DistanceKm       *float64
}

// Engine prices requests against a rate card.
type Engine struct {
	card     RateCard
	demand   DemandEstimator
	distance DistanceEstimator
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithDemandEstimator sets the demand source.
func WithDemandEstimator(d DemandEstimator) Option {
	return func(e *Engine) { e.demand = d }
}

// WithDistanceEstimator sets the distance source.
func WithDistanceEstimator(d DistanceEstimator) Option {
	return func(e *Engine) { e.distance = d }
}

// WithClock sets the clock used for QuotedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a pricing engine. Without options demand is 1.0 and the
// callout distance is the minimum.
func New(card RateCard, opts ...Option) *Engine {
	e := &Engine{
		card:     card,
		demand:   FixedDemand(1.0),
		distance: FixedDistance(card.MinCalloutKm),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RateCard returns the card the engine prices with.
func (e *Engine) RateCard() RateCard {
	return e.card
}

// SlotFor picks the time slot using the engine's rate card.
func (e *Engine) SlotFor(at time.Time, immediate bool, urgency domain.Level) domain.TimeSlot {
	return e.card.SlotFor(at, immediate, urgency)
}

// Quote prices a request.
func (e *Engine) Quote(p QuoteParams) (domain.PriceQuote, error) {
	const op = "pricing.quote"

	if err := e.validate(op, p); err != nil {
		return domain.PriceQuote{}, err
	}

	var demand float64
	if p.DemandMultiplier != nil {
		demand = *p.DemandMultiplier
	} else {
		demand = e.demand.Multiplier(p)
	}
	if demand <= 0 {
		return domain.PriceQuote{}, domain.NewValidationError(op, "demand_multiplier", "must be positive")
	}

	var km float64
	if p.DistanceKm != nil {
		km = *p.DistanceKm
	} else {
		km = e.distance.DistanceKm(p)
	}
	if km < 0 {
		return domain.PriceQuote{}, domain.NewValidationError(op, "distance_km", "must not be negative")
	}

	base := e.basePrice(p.Category)
	baseDec := decimal.NewFromInt(base)

	q := domain.PriceQuote{
		Category:            p.Category,
		BasePrice:           base,
		LocationSurcharge:   e.locationSurcharge(baseDec, p.Location),
		UrgencySurcharge:    surcharge(baseDec, e.card.Urgency[p.Urgency]),
		TimeSlotSurcharge:   surcharge(baseDec, e.card.TimeSlot[p.TimeSlot]),
		ComplexitySurcharge: surcharge(baseDec, e.card.Complexity[p.Complexity]),
		DemandMultiplier:    demand,
		TimeSlot:            p.TimeSlot,
		Complexity:          p.Complexity,
		QuotedAt:            e.now(),
	}
	q.Subtotal = q.BasePrice + q.SurchargeTotal()
	q.FinalPrice = decimal.NewFromInt(q.Subtotal).Mul(decimal.NewFromFloat(demand)).Round(0).IntPart()
	if q.FinalPrice < 0 {
		q.FinalPrice = 0
	}

	q.DistanceKm = clampFloat(km, e.card.MinCalloutKm, e.card.MaxCalloutKm)
	callout := decimal.NewFromInt(e.card.CalloutPerKm).Mul(decimal.NewFromFloat(q.DistanceKm)).Round(0).IntPart()
	allocateFees(&q, callout, e.card.Diagnostic[p.Complexity])

	return q, nil
}

func (e *Engine) validate(op string, p QuoteParams) error {
	var verr *domain.ValidationError
	fail := func(field, msg string) {
		if verr == nil {
			verr = &domain.ValidationError{Op: op}
		}
		verr.Add(field, msg)
	}

	if !p.Category.IsValid() {
		fail("category", "is not a recognized service category")
	}
	if !p.Urgency.IsValid() {
		fail("urgency", "must be one of low, normal, high")
	}
	if !p.TimeSlot.IsValid() {
		fail("time_slot", "must be one of business, evening, emergency")
	}
	if !p.Complexity.IsValid() {
		fail("complexity", "must be one of simple, moderate, complex")
	}
	if p.DemandMultiplier != nil && *p.DemandMultiplier <= 0 {
		fail("demand_multiplier", "must be positive")
	}
	if p.DistanceKm != nil && *p.DistanceKm < 0 {
		fail("distance_km", "must not be negative")
	}

	if verr != nil {
		return verr
	}
	return nil
}

func (e *Engine) basePrice(c domain.Category) int64 {
	if v, ok := e.card.Base[c]; ok && v > 0 {
		return v
	}
	return e.card.DefaultBase
}

// locationSurcharge is round(base * multiplier) - base for the first
// matching location, or zero.
func (e *Engine) locationSurcharge(base decimal.Decimal, address string) int64 {
	for _, l := range e.card.Locations {
		if strings.Contains(address, l.Match) {
			return base.Mul(decimal.NewFromFloat(l.Multiplier)).Round(0).Sub(base).IntPart()
		}
	}
	return 0
}

func surcharge(base decimal.Decimal, rate float64) int64 {
	return base.Mul(decimal.NewFromFloat(rate)).Round(0).IntPart()
}

// allocateFees splits FinalPrice into callout, diagnostic and repair parts.
// Callout and diagnostic are capped so no part goes negative.
func allocateFees(q *domain.PriceQuote, callout, diagnostic int64) {
	remaining := q.FinalPrice
	q.DiagnosticFee = min(diagnostic, remaining)
	remaining -= q.DiagnosticFee
	q.CalloutFee = min(callout, remaining)
	remaining -= q.CalloutFee
	q.RepairFee = remaining
}

// WithinGuarantee reports whether charged respects the 110% price
// guarantee for the quote.
func WithinGuarantee(q domain.PriceQuote, charged int64) bool {
	return charged*100 <= q.FinalPrice*GuaranteePercent
}

// MaxCharge returns the largest amount allowed under the guarantee.
func MaxCharge(q domain.PriceQuote) int64 {
	return q.FinalPrice * GuaranteePercent / 100
}

// SlotFor picks the pricing time slot for a visit starting at at. Immediate
// high-urgency work is an emergency; otherwise the hour decides.
func (c RateCard) SlotFor(at time.Time, immediate bool, urgency domain.Level) domain.TimeSlot {
	if immediate && urgency == domain.LevelHigh {
		return domain.TimeSlotEmergency
	}
	h := at.Hour()
	if h >= c.BusinessStartHour && h < c.BusinessEndHour {
		return domain.TimeSlotBusiness
	}
	return domain.TimeSlotEvening
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
