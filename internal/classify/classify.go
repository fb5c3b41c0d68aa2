// Package classify derives a severity, urgency and cost assessment from a
// repair request's text, category, urgency flag and photo count.
//
// The engine is a deterministic keyword table. It does no I/O and is safe
// for concurrent use.
package classify

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

const (
	maxUrgencyScore  = 10
	baseUrgencyScore = 5
	longDescription  = 50
	baseConfidence   = 7 // tenths
	maxConfidence    = 10
	defaultCategory  = domain.CategoryGeneral
	baselineSeverity = domain.SeverityMedium
)

// Input is what the classifier looks at.
type Input struct {
	Description string
	Category    domain.Category // "" when the requester did not pick one
	Urgency     domain.Level
	ImageCount  int
}

// Classifier applies a rule table. Use New to construct one.
type Classifier struct {
	rules Rules
	now   func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock sets the clock used for the after-hours adjustment.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		c.now = now
	}
}

// New creates a Classifier over rules.
func New(rules Rules, opts ...Option) *Classifier {
	c := &Classifier{
		rules: rules,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify assesses a request. It never fails: an unknown or empty category
// falls back to the general defaults.
func (c *Classifier) Classify(in Input) domain.ClassificationResult {
	category := in.Category
	categoryGiven := category.IsValid()
	if !categoryGiven {
		category = defaultCategory
	}

	defaults := c.rules.Defaults[category]
	res := domain.ClassificationResult{
		Severity:         baselineSeverity,
		UrgencyScore:     baseUrgencyScore,
		EstimatedMinutes: defaults.Minutes,
		RecommendedTools: cloneStrings(defaults.Tools),
		RequiredSkills:   cloneStrings(defaults.Skills),
		RiskFactors:      []string{},
	}
	cost := decimal.NewFromInt(defaults.Cost)

	text := c.normalize(in.Description)
	for _, set := range c.rules.Sets {
		if set.Category != category && !containsAny(text, set.Triggers) {
			continue
		}
		if d, ok := c.rules.Defaults[set.Category]; ok {
			res.RecommendedTools = cloneStrings(d.Tools)
			res.RequiredSkills = cloneStrings(d.Skills)
		}
		for _, rule := range set.Rules {
			if !containsAny(text, rule.Keywords) {
				continue
			}
			if rule.Severity != "" {
				res.Severity = rule.Severity
			}
			if rule.Minutes > 0 {
				res.EstimatedMinutes = rule.Minutes
			}
			if rule.Cost > 0 {
				cost = decimal.NewFromInt(rule.Cost)
			}
			if rule.Score > 0 {
				res.UrgencyScore = rule.Score
			}
			res.RiskFactors = append(res.RiskFactors, rule.Risks...)
			res.RecommendedTools = append(res.RecommendedTools, rule.ExtraTools...)
			res.RequiredSkills = append(res.RequiredSkills, rule.ExtraSkills...)
		}
	}

	urgency := in.Urgency
	if !urgency.IsValid() {
		urgency = domain.LevelNormal
	}
	res.UrgencyScore += c.rules.UrgencyScore[urgency]
	if m, ok := c.rules.UrgencyCost[urgency]; ok {
		cost = cost.Mul(decimal.NewFromFloat(m))
	}

	if c.afterHours() {
		cost = cost.Mul(decimal.NewFromFloat(c.rules.AfterHoursMultiplier))
		res.RiskFactors = append(res.RiskFactors, RiskAfterHours)
	}

	if in.ImageCount > 0 {
		res.UrgencyScore++
		res.Notes = append(res.Notes, NotePhotosProvided)
	}

	res.Confidence = confidence(in, categoryGiven)
	res.UrgencyScore = clamp(res.UrgencyScore, 0, maxUrgencyScore)
	res.EstimatedCost = cost.Round(0).IntPart()
	res.Complexity = res.Severity.Complexity()

	return res
}

func (c *Classifier) afterHours() bool {
	hour := c.now().Hour()
	return hour < c.rules.BusinessStartHour || hour > c.rules.BusinessEndHour
}

// normalize folds width variants and case. A Caser holds state, so one is
// built per call.
func (c *Classifier) normalize(s string) string {
	return cases.Lower(language.Und).String(norm.NFKC.String(s))
}

// confidence works in tenths so that 0.7 + 0.1 + 0.1 + 0.1 is exactly 1.0.
func confidence(in Input, categoryGiven bool) float64 {
	tenths := baseConfidence
	if in.ImageCount > 0 {
		tenths++
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Description)) > longDescription {
		tenths++
	}
	if categoryGiven {
		tenths++
	}
	if tenths > maxConfidence {
		tenths = maxConfidence
	}
	return float64(tenths) / 10
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
