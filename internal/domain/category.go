// Package domain contains core business types and interfaces.
//
// This file defines the enumerations shared by the classification, pricing
// and matching engines.
package domain

// =============================================================================
// Service Category
// =============================================================================

// Category is the kind of repair a request asks for.
type Category string

const (
	CategoryPlumbing   Category = "plumbing"
	CategoryElectrical Category = "electrical"
	CategoryAppliance  Category = "appliance"
	CategoryLock       Category = "lock"
	CategoryFurniture  Category = "furniture"
	CategoryGeneral    Category = "general"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryPlumbing,
	CategoryElectrical,
	CategoryAppliance,
	CategoryLock,
	CategoryFurniture,
	CategoryGeneral,
}

func (c Category) String() string {
	return string(c)
}

// IsValid returns true if the category is a recognized value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPlumbing, CategoryElectrical, CategoryAppliance,
		CategoryLock, CategoryFurniture, CategoryGeneral:
		return true
	}
	return false
}

// ParseCategory converts caller input into a Category. An empty string is
// returned unchanged because "no category given" is meaningful to the
// classifier.
func ParseCategory(op, s string) (Category, error) {
	c := Category(s)
	if s == "" || c.IsValid() {
		return c, nil
	}
	return "", NewValidationError(op, "category", "is not a recognized service category")
}

// =============================================================================
// Urgency Level
// =============================================================================

// Level is the urgency flag a requester attaches to a request.
type Level string

const (
	LevelLow    Level = "low"
	LevelNormal Level = "normal"
	LevelHigh   Level = "high"
)

func (l Level) String() string {
	return string(l)
}

// IsValid returns true if the level is a recognized value.
func (l Level) IsValid() bool {
	switch l {
	case LevelLow, LevelNormal, LevelHigh:
		return true
	}
	return false
}

// ParseLevel converts caller input into a Level, defaulting to normal.
func ParseLevel(op, s string) (Level, error) {
	if s == "" {
		return LevelNormal, nil
	}
	l := Level(s)
	if !l.IsValid() {
		return "", NewValidationError(op, "urgency", "must be one of low, normal, high")
	}
	return l, nil
}

// =============================================================================
// Severity
// =============================================================================

// Severity is the classification tier of a request.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
	SeverityUrgent Severity = "urgent"
)

// IsValid returns true if the severity is a recognized value.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// Rank orders severities from 1 (low) to 4 (urgent). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityUrgent:
		return 4
	}
	return 0
}

// Complexity maps a severity onto the pricing complexity factor.
func (s Severity) Complexity() Complexity {
	switch s {
	case SeverityLow:
		return ComplexitySimple
	case SeverityHigh, SeverityUrgent:
		return ComplexityComplex
	}
	return ComplexityModerate
}

// =============================================================================
// Time Slot
// =============================================================================

// TimeSlot is the service window used for pricing.
type TimeSlot string

const (
	TimeSlotBusiness  TimeSlot = "business"
	TimeSlotEvening   TimeSlot = "evening"
	TimeSlotEmergency TimeSlot = "emergency"
)

// IsValid returns true if the slot is a recognized value.
func (t TimeSlot) IsValid() bool {
	switch t {
	case TimeSlotBusiness, TimeSlotEvening, TimeSlotEmergency:
		return true
	}
	return false
}

// =============================================================================
// Complexity
// =============================================================================

// Complexity drives the complexity surcharge and the diagnostic fee.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// IsValid returns true if the complexity is a recognized value.
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}
