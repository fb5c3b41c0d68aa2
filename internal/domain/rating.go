package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rating is the requester's review of a completed request.
type Rating struct {
	ID              uuid.UUID `json:"id"`
	RequestID       uuid.UUID `json:"request_id"`
	RequesterID     uuid.UUID `json:"requester_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	Punctuality     int       `json:"punctuality"`
	Professionalism int       `json:"professionalism"`
	Quality         int       `json:"quality"`
	Communication   int       `json:"communication"`
	Value           int       `json:"value"`
	Overall         float64   `json:"overall"`
	Comment         string    `json:"comment,omitempty"`
	WouldRecommend  bool      `json:"would_recommend"`
	CreatedAt       time.Time `json:"created_at"`
}

// RateParams contains the requester's scores, each 1 to 5.
type RateParams struct {
	RequestID       uuid.UUID
	Punctuality     int
	Professionalism int
	Quality         int
	Communication   int
	Value           int
	Comment         string
	WouldRecommend  bool
}

// Validate checks every score is in range.
func (p RateParams) Validate(op string) error {
	var verr *ValidationError
	check := func(field string, v int) {
		if v < 1 || v > 5 {
			if verr == nil {
				verr = &ValidationError{Op: op}
			}
			verr.Add(field, "must be between 1 and 5")
		}
	}
	check("punctuality", p.Punctuality)
	check("professionalism", p.Professionalism)
	check("quality", p.Quality)
	check("communication", p.Communication)
	check("value", p.Value)
	if verr != nil {
		return verr
	}
	return nil
}

// Overall returns the mean of the five scores rounded to two places.
func (p RateParams) Overall() float64 {
	sum := p.Punctuality + p.Professionalism + p.Quality + p.Communication + p.Value
	f, _ := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(5)).Round(2).Float64()
	return f
}

// RollingAverage folds a new overall score into a provider's average.
func RollingAverage(current float64, count int, overall float64) float64 {
	total := decimal.NewFromFloat(current).Mul(decimal.NewFromInt(int64(count)))
	total = total.Add(decimal.NewFromFloat(overall))
	f, _ := total.Div(decimal.NewFromInt(int64(count + 1))).Round(2).Float64()
	return f
}
