package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// LocationRate multiplies the base price when Match is a substring of the
// service address. Entries are tried in order and the first match wins.
type LocationRate struct {
	Match      string  `yaml:"match"`
	Multiplier float64 `yaml:"multiplier"`
}

// RateCard holds every pricing table. Money is in whole currency units.
type RateCard struct {
	Base        map[domain.Category]int64 `yaml:"base"`
	DefaultBase int64                     `yaml:"default_base"`
	Locations   []LocationRate            `yaml:"locations"`

	Urgency    map[domain.Level]float64      `yaml:"urgency"`
	TimeSlot   map[domain.TimeSlot]float64   `yaml:"time_slot"`
	Complexity map[domain.Complexity]float64 `yaml:"complexity"`

	CalloutPerKm int64                       `yaml:"callout_per_km"`
	MinCalloutKm float64                     `yaml:"min_callout_km"`
	MaxCalloutKm float64                     `yaml:"max_callout_km"`
	Diagnostic   map[domain.Complexity]int64 `yaml:"diagnostic"`

	// BusinessStartHour and BusinessEndHour bound the business slot as
	// [start, end).
	BusinessStartHour int `yaml:"business_start_hour"`
	BusinessEndHour   int `yaml:"business_end_hour"`
}

// DefaultRateCard returns the built-in tables.
func DefaultRateCard() RateCard {
	return RateCard{
		Base: map[domain.Category]int64{
			domain.CategoryPlumbing:   800,
			domain.CategoryElectrical: 600,
			domain.CategoryAppliance:  1000,
			domain.CategoryLock:       500,
			domain.CategoryFurniture:  400,
			domain.CategoryGeneral:    500,
		},
		DefaultBase: 500,
		Locations: []LocationRate{
			{Match: "台北市", Multiplier: 1.2},
			{Match: "新北市", Multiplier: 1.1},
			{Match: "桃園市", Multiplier: 1.0},
			{Match: "台中市", Multiplier: 0.95},
			{Match: "高雄市", Multiplier: 0.9},
		},
		Urgency: map[domain.Level]float64{
			domain.LevelLow:    0,
			domain.LevelNormal: 0.1,
			domain.LevelHigh:   0.5,
		},
		TimeSlot: map[domain.TimeSlot]float64{
			domain.TimeSlotBusiness:  0,
			domain.TimeSlotEvening:   0.2,
			domain.TimeSlotEmergency: 0.5,
		},
		Complexity: map[domain.Complexity]float64{
			domain.ComplexitySimple:   0,
			domain.ComplexityModerate: 0.15,
			domain.ComplexityComplex:  0.3,
		},
		CalloutPerKm: 20,
		MinCalloutKm: 2,
		MaxCalloutKm: 12,
		Diagnostic: map[domain.Complexity]int64{
			domain.ComplexitySimple:   100,
			domain.ComplexityModerate: 200,
			domain.ComplexityComplex:  300,
		},
		BusinessStartHour: 8,
		BusinessEndHour:   18,
	}
}

// Validate checks the card is internally consistent.
func (c RateCard) Validate() error {
	for _, cat := range domain.Categories {
		if c.Base[cat] <= 0 && c.DefaultBase <= 0 {
			return fmt.Errorf("rate card: no base price for %s", cat)
		}
	}
	for _, l := range c.Locations {
		if l.Match == "" || l.Multiplier <= 0 {
			return fmt.Errorf("rate card: invalid location entry %+v", l)
		}
	}
	if c.MinCalloutKm < 0 || c.MaxCalloutKm < c.MinCalloutKm {
		return fmt.Errorf("rate card: callout range [%v, %v] is invalid", c.MinCalloutKm, c.MaxCalloutKm)
	}
	if c.CalloutPerKm < 0 {
		return fmt.Errorf("rate card: callout_per_km must not be negative")
	}
	return nil
}

// LoadRateCard reads a YAML rate card. Tables present in the file replace
// the built-in ones; scalar fields override when set.
func LoadRateCard(path string) (RateCard, error) {
	card := DefaultRateCard()
	data, err := os.ReadFile(path)
	if err != nil {
		return card, fmt.Errorf("read rate card: %w", err)
	}

	var override RateCard
	if err := yaml.Unmarshal(data, &override); err != nil {
		return card, fmt.Errorf("parse rate card %s: %w", path, err)
	}

	for cat, v := range override.Base {
		if !cat.IsValid() {
			return card, fmt.Errorf("parse rate card %s: unknown category %q", path, cat)
		}
		card.Base[cat] = v
	}
	if override.DefaultBase > 0 {
		card.DefaultBase = override.DefaultBase
	}
	if override.Locations != nil {
		card.Locations = override.Locations
	}
	for k, v := range override.Urgency {
		card.Urgency[k] = v
	}
	for k, v := range override.TimeSlot {
		card.TimeSlot[k] = v
	}
	for k, v := range override.Complexity {
		card.Complexity[k] = v
	}
	for k, v := range override.Diagnostic {
		card.Diagnostic[k] = v
	}
	if override.CalloutPerKm > 0 {
		card.CalloutPerKm = override.CalloutPerKm
	}
	if override.MinCalloutKm > 0 {
		card.MinCalloutKm = override.MinCalloutKm
	}
	if override.MaxCalloutKm > 0 {
		card.MaxCalloutKm = override.MaxCalloutKm
	}
	if override.BusinessStartHour > 0 {
		card.BusinessStartHour = override.BusinessStartHour
	}
	if override.BusinessEndHour > 0 {
		card.BusinessEndHour = override.BusinessEndHour
	}

	if err := card.Validate(); err != nil {
		return card, err
	}
	return card, nil
}
