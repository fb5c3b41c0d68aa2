package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// CategoryDefaults is the starting assessment for a category before any
// keyword rule fires.
type CategoryDefaults struct {
	Tools   []string `yaml:"tools"`
	Skills  []string `yaml:"skills"`
	Minutes int      `yaml:"minutes"`
	Cost    int64    `yaml:"cost"`
}

// Rule is one keyword escalation. Zero-valued scalar fields leave the
// running assessment unchanged.
type Rule struct {
	Name        string          `yaml:"name"`
	Keywords    []string        `yaml:"keywords"`
	Severity    domain.Severity `yaml:"severity"`
	Risks       []string        `yaml:"risks"`
	Minutes     int             `yaml:"minutes"`
	Cost        int64           `yaml:"cost"`
	Score       int             `yaml:"score"`
	ExtraTools  []string        `yaml:"extra_tools"`
	ExtraSkills []string        `yaml:"extra_skills"`
}

// RuleSet groups the rules for one category. It applies when the request's
// category matches or when any trigger keyword appears in the description.
type RuleSet struct {
	Category domain.Category `yaml:"category"`
	Triggers []string        `yaml:"triggers"`
	Rules    []Rule          `yaml:"rules"`
}

// Rules is the complete rule table. Rule sets and the rules inside them run
// in order.
type Rules struct {
	Defaults map[domain.Category]CategoryDefaults `yaml:"defaults"`
	Sets     []RuleSet                            `yaml:"sets"`

	// UrgencyCost multiplies the estimated cost per urgency flag. It is
	// separate from the rate card's urgency surcharges.
	UrgencyCost  map[domain.Level]float64 `yaml:"urgency_cost"`
	UrgencyScore map[domain.Level]int     `yaml:"urgency_score"`

	AfterHoursMultiplier float64 `yaml:"after_hours_multiplier"`
	BusinessStartHour    int     `yaml:"business_start_hour"`
	BusinessEndHour      int     `yaml:"business_end_hour"`
}

// Risk and note strings produced by the default rules.
const (
	RiskWaterDamage     = "water damage risk"
	RiskStructural      = "possible structural damage"
	RiskHygiene         = "hygiene issue"
	RiskFire            = "fire risk"
	RiskElectricShock   = "electric shock risk"
	RiskEquipmentDamage = "equipment damage"
	RiskAfterHours      = "after-hours service"

	NotePhotosProvided = "photos provided, assessment is more accurate"
)

// DefaultRules returns the built-in rule table.
func DefaultRules() Rules {
	return Rules{
		Defaults: map[domain.Category]CategoryDefaults{
			domain.CategoryPlumbing: {
				Tools:   []string{"wrench", "pipe wrench", "pipe sealant", "drain auger"},
				Skills:  []string{"plumbing", "pipe installation"},
				Minutes: 60,
				Cost:    800,
			},
			domain.CategoryElectrical: {
				Tools:   []string{"multimeter", "insulated tools", "wire stripper", "screwdriver set"},
				Skills:  []string{"electrical wiring", "electrical repair"},
				Minutes: 60,
				Cost:    800,
			},
			domain.CategoryAppliance: {
				Tools:   []string{"appliance repair kit", "cleaning supplies", "replacement part tools"},
				Skills:  []string{"appliance repair", "appliance diagnostics"},
				Minutes: 60,
				Cost:    800,
			},
			domain.CategoryLock: {
				Tools:   []string{"lock pick set", "key cutter", "drill"},
				Skills:  []string{"locksmith"},
				Minutes: 45,
				Cost:    500,
			},
			domain.CategoryFurniture: {
				Tools:   []string{"screwdriver set", "clamps", "wood glue"},
				Skills:  []string{"furniture repair"},
				Minutes: 60,
				Cost:    400,
			},
			domain.CategoryGeneral: {
				Tools:   []string{"general tool kit"},
				Skills:  []string{"general repair"},
				Minutes: 60,
				Cost:    500,
			},
		},
		Sets: []RuleSet{
			{
				Category: domain.CategoryPlumbing,
				Triggers: []string{"水", "water", "pipe"},
				Rules: []Rule{
					{
						Name:     "leak",
						Keywords: []string{"漏水", "破裂", "leak", "burst"},
						Severity: domain.SeverityHigh,
						Risks:    []string{RiskWaterDamage, RiskStructural},
						Minutes:  90,
						Cost:     1200,
						Score:    8,
					},
					{
						Name:     "clog",
						Keywords: []string{"堵塞", "不通", "clog", "blocked"},
						Severity: domain.SeverityMedium,
						Risks:    []string{RiskHygiene},
						Minutes:  45,
						Cost:     600,
						Score:    6,
					},
				},
			},
			{
				Category: domain.CategoryElectrical,
				Triggers: []string{"電", "electric"},
				Rules: []Rule{
					{
						Name:     "short",
						Keywords: []string{"跳電", "短路", "火花", "tripped", "short circuit", "spark"},
						Severity: domain.SeverityUrgent,
						Risks:    []string{RiskFire, RiskElectricShock, RiskEquipmentDamage},
						Minutes:  120,
						Cost:     1500,
						Score:    10,
					},
					{
						Name:     "fixture",
						Keywords: []string{"燈不亮", "插座", "light not working", "outlet", "socket"},
						Severity: domain.SeverityLow,
						Minutes:  30,
						Cost:     400,
						Score:    3,
					},
				},
			},
			{
				Category: domain.CategoryAppliance,
				Triggers: []string{"家電", "appliance"},
				Rules: []Rule{
					{
						Name:        "air-conditioning",
						Keywords:    []string{"冷氣", "空調", "air condition", "aircon"},
						Minutes:     90,
						Cost:        1200,
						ExtraTools:  []string{"refrigerant leak detector", "vacuum pump"},
						ExtraSkills: []string{"hvac technician"},
					},
					{
						Name:     "laundry-fridge",
						Keywords: []string{"洗衣機", "冰箱", "washing machine", "washer", "refrigerator", "fridge"},
						Minutes:  75,
						Cost:     1000,
					},
				},
			},
		},
		UrgencyCost: map[domain.Level]float64{
			domain.LevelLow:    0.9,
			domain.LevelNormal: 1.0,
			domain.LevelHigh:   1.3,
		},
		UrgencyScore: map[domain.Level]int{
			domain.LevelLow:    -2,
			domain.LevelNormal: 0,
			domain.LevelHigh:   3,
		},
		AfterHoursMultiplier: 1.2,
		BusinessStartHour:    8,
		BusinessEndHour:      18,
	}
}

// LoadRules reads a YAML rule table. Sections missing from the file keep
// their built-in values.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules: %w", err)
	}

	var override Rules
	if err := yaml.Unmarshal(data, &override); err != nil {
		return rules, fmt.Errorf("parse rules %s: %w", path, err)
	}

	if len(override.Defaults) > 0 {
		for cat, d := range override.Defaults {
			if !cat.IsValid() {
				return rules, fmt.Errorf("parse rules %s: unknown category %q", path, cat)
			}
			rules.Defaults[cat] = d
		}
	}
	if len(override.Sets) > 0 {
		rules.Sets = override.Sets
	}
	for level, m := range override.UrgencyCost {
		rules.UrgencyCost[level] = m
	}
	for level, s := range override.UrgencyScore {
		rules.UrgencyScore[level] = s
	}
	if override.AfterHoursMultiplier > 0 {
		rules.AfterHoursMultiplier = override.AfterHoursMultiplier
	}
	if override.BusinessStartHour > 0 {
		rules.BusinessStartHour = override.BusinessStartHour
	}
	if override.BusinessEndHour > 0 {
		rules.BusinessEndHour = override.BusinessEndHour
	}
	return rules, nil
}
