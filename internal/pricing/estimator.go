package pricing

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// DemandEstimator supplies the supply/demand multiplier when a quote request
// does not carry one.
type DemandEstimator interface {
	Multiplier(p QuoteParams) float64
}

// DistanceEstimator supplies the travel distance used for the callout fee
// when a quote request does not carry one.
type DistanceEstimator interface {
	DistanceKm(p QuoteParams) float64
}

// FixedDemand always returns the same multiplier.
type FixedDemand float64

func (f FixedDemand) Multiplier(QuoteParams) float64 { return float64(f) }

// FixedDistance always returns the same distance.
type FixedDistance float64

func (f FixedDistance) DistanceKm(QuoteParams) float64 { return float64(f) }

// RandomDemand draws a multiplier uniformly from [Min, Min+Span), rounded
// to two places. It stands in until real demand telemetry exists.
type RandomDemand struct {
	Min  float64
	Span float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDemand creates a demand estimator over [0.9, 1.3).
func NewRandomDemand(src rand.Source) *RandomDemand {
	return &RandomDemand{Min: 0.9, Span: 0.4, rng: rand.New(src)}
}

func (d *RandomDemand) Multiplier(QuoteParams) float64 {
	d.mu.Lock()
	r := d.rng.Float64()
	d.mu.Unlock()

	m := decimal.NewFromFloat(d.Min).Add(decimal.NewFromFloat(r * d.Span)).RoundDown(2)
	f, _ := m.Float64()
	return f
}

// RandomDistance draws a distance uniformly from [Min, Min+Span) km.
type RandomDistance struct {
	Min  float64
	Span float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomDistance creates a distance estimator over [2, 12) km.
func NewRandomDistance(src rand.Source) *RandomDistance {
	return &RandomDistance{Min: 2, Span: 10, rng: rand.New(src)}
}

func (d *RandomDistance) DistanceKm(QuoteParams) float64 {
	d.mu.Lock()
	r := d.rng.Float64()
	d.mu.Unlock()

	km, _ := decimal.NewFromFloat(d.Min + r*d.Span).Round(1).Float64()
	return km
}

// Demand modes accepted by NewDemandEstimator.
const (
	DemandFixed  = "fixed"
	DemandRandom = "random"
)

// NewDemandEstimator picks the demand source for mode. Fixed demand is 1.0.
func NewDemandEstimator(mode string, src rand.Source) (DemandEstimator, error) {
	switch mode {
	case DemandFixed:
		return FixedDemand(1.0), nil
	case DemandRandom:
		return NewRandomDemand(src), nil
	default:
		return nil, fmt.Errorf("unknown demand mode %q", mode)
	}
}

// DemandLevel buckets a multiplier for display.
func DemandLevel(m float64) string {
	switch {
	case m > 1.2:
		return "high"
	case m > 1.0:
		return "medium"
	default:
		return "low"
	}
}
