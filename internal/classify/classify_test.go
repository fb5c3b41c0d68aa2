package classify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

func clockAt(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 2, hour, 30, 0, 0, time.UTC)
	}
}

func newTestClassifier(hour int) *Classifier {
	return New(DefaultRules(), WithClock(clockAt(hour)))
}

func TestClassify_PlumbingBurstPipe(t *testing.T) {
	in := Input{
		Category:    domain.CategoryPlumbing,
		Description: "廚房水管破裂，水一直流出來",
		Urgency:     domain.LevelHigh,
		ImageCount:  2,
	}

	t.Run("business hours", func(t *testing.T) {
		res := newTestClassifier(10).Classify(in)

		assert.Equal(t, domain.SeverityHigh, res.Severity)
		assert.True(t, res.HasRisk(RiskWaterDamage))
		assert.True(t, res.HasRisk(RiskStructural))
		assert.False(t, res.HasRisk(RiskAfterHours))
		assert.Equal(t, int64(1560), res.EstimatedCost)
		assert.Equal(t, 90, res.EstimatedMinutes)
		assert.Equal(t, 10, res.UrgencyScore)
		assert.GreaterOrEqual(t, res.Confidence, 0.9)
		assert.Equal(t, domain.ComplexityComplex, res.Complexity)
		assert.Contains(t, res.Notes, NotePhotosProvided)
	})

	t.Run("after hours", func(t *testing.T) {
		res := newTestClassifier(21).Classify(in)

		assert.Equal(t, int64(1872), res.EstimatedCost)
		assert.True(t, res.HasRisk(RiskAfterHours))
	})
}

func TestClassify_Rules(t *testing.T) {
	tests := []struct {
		name         string
		in           Input
		wantSeverity domain.Severity
		wantMinutes  int
		wantCost     int64
		wantScore    int
		wantRisks    []string
		wantSkill    string
	}{
		{
			name:         "clogged drain",
			in:           Input{Category: domain.CategoryPlumbing, Description: "浴室排水孔堵塞"},
			wantSeverity: domain.SeverityMedium,
			wantMinutes:  45,
			wantCost:     600,
			wantScore:    6,
			wantRisks:    []string{RiskHygiene},
			wantSkill:    "plumbing",
		},
		{
			name:         "short circuit",
			in:           Input{Category: domain.CategoryElectrical, Description: "家裡一直跳電"},
			wantSeverity: domain.SeverityUrgent,
			wantMinutes:  120,
			wantCost:     1500,
			wantScore:    10,
			wantRisks:    []string{RiskFire, RiskElectricShock, RiskEquipmentDamage},
			wantSkill:    "electrical wiring",
		},
		{
			name:         "light fixture",
			in:           Input{Category: domain.CategoryElectrical, Description: "客廳燈不亮"},
			wantSeverity: domain.SeverityLow,
			wantMinutes:  30,
			wantCost:     400,
			wantScore:    3,
			wantSkill:    "electrical repair",
		},
		{
			name:         "air conditioner",
			in:           Input{Category: domain.CategoryAppliance, Description: "冷氣不冷"},
			wantSeverity: domain.SeverityMedium,
			wantMinutes:  90,
			wantCost:     1200,
			wantScore:    5,
			wantSkill:    "hvac technician",
		},
		{
			name:         "washing machine",
			in:           Input{Category: domain.CategoryAppliance, Description: "洗衣機不脫水"},
			wantSeverity: domain.SeverityMedium,
			wantMinutes:  75,
			wantCost:     1000,
			wantScore:    5,
			wantSkill:    "appliance repair",
		},
		{
			name:         "english keywords, case and width folded",
			in:           Input{Category: domain.CategoryPlumbing, Description: "Burst ＰＩＰＥ under the sink"},
			wantSeverity: domain.SeverityHigh,
			wantMinutes:  90,
			wantCost:     1200,
			wantScore:    8,
			wantRisks:    []string{RiskWaterDamage},
			wantSkill:    "plumbing",
		},
		{
			name:         "trigger keyword without category",
			in:           Input{Description: "水管漏水"},
			wantSeverity: domain.SeverityHigh,
			wantMinutes:  90,
			wantCost:     1200,
			wantScore:    8,
			wantRisks:    []string{RiskWaterDamage},
			wantSkill:    "plumbing",
		},
		{
			name:         "lock defaults",
			in:           Input{Category: domain.CategoryLock, Description: "locked out"},
			wantSeverity: domain.SeverityMedium,
			wantMinutes:  45,
			wantCost:     500,
			wantScore:    5,
			wantSkill:    "locksmith",
		},
	}

	c := newTestClassifier(10)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(tt.in)

			assert.Equal(t, tt.wantSeverity, res.Severity)
			assert.Equal(t, tt.wantMinutes, res.EstimatedMinutes)
			assert.Equal(t, tt.wantCost, res.EstimatedCost)
			assert.Equal(t, tt.wantScore, res.UrgencyScore)
			for _, r := range tt.wantRisks {
				assert.True(t, res.HasRisk(r), "missing risk %q", r)
			}
			assert.Contains(t, res.RequiredSkills, tt.wantSkill)
		})
	}
}

func TestClassify_UnknownCategoryFallsBackToGeneral(t *testing.T) {
	c := newTestClassifier(10)

	for _, cat := range []domain.Category{"", "roofing"} {
		res := c.Classify(Input{Category: cat, Description: ""})

		assert.Equal(t, domain.SeverityMedium, res.Severity)
		assert.Equal(t, int64(500), res.EstimatedCost)
		assert.Equal(t, []string{"general repair"}, res.RequiredSkills)
		assert.Equal(t, 0.7, res.Confidence)
		assert.Empty(t, res.RiskFactors)
	}
}

func TestClassify_UrgencyAdjustment(t *testing.T) {
	c := newTestClassifier(10)
	in := Input{Category: domain.CategoryGeneral, Description: "door hinge squeaks"}

	in.Urgency = domain.LevelLow
	low := c.Classify(in)
	in.Urgency = domain.LevelNormal
	normal := c.Classify(in)
	in.Urgency = domain.LevelHigh
	high := c.Classify(in)

	assert.Equal(t, 3, low.UrgencyScore)
	assert.Equal(t, 5, normal.UrgencyScore)
	assert.Equal(t, 8, high.UrgencyScore)
	assert.Equal(t, int64(450), low.EstimatedCost)
	assert.Equal(t, int64(500), normal.EstimatedCost)
	assert.Equal(t, int64(650), high.EstimatedCost)
}

func TestClassify_AfterHoursBoundaries(t *testing.T) {
	in := Input{Category: domain.CategoryGeneral}
	tests := []struct {
		hour int
		want bool
	}{
		{7, true},
		{8, false},
		{18, false},
		{19, true},
		{0, true},
	}
	for _, tt := range tests {
		res := newTestClassifier(tt.hour).Classify(in)
		assert.Equal(t, tt.want, res.HasRisk(RiskAfterHours), "hour %d", tt.hour)
	}
}

func TestClassify_Confidence(t *testing.T) {
	c := newTestClassifier(10)
	long := strings.Repeat("漏", 51)

	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{"nothing", Input{}, 0.7},
		{"images only", Input{ImageCount: 1}, 0.8},
		{"category only", Input{Category: domain.CategoryLock}, 0.8},
		{"exactly 50 runes", Input{Description: strings.Repeat("a", 50)}, 0.7},
		{"51 runes", Input{Description: long}, 0.8},
		{"everything", Input{Category: domain.CategoryPlumbing, Description: long, ImageCount: 3}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.in).Confidence)
		})
	}
}

// Every combination stays within bounds, and adding a photo never lowers
// confidence or urgency.
func TestClassify_BoundsAndPhotoMonotonicity(t *testing.T) {
	descriptions := []string{
		"",
		"插座冒火花還有燒焦味，家電也壞了，水管也在漏水",
		"light not working",
		"冷氣漏水",
		strings.Repeat("x", 80),
	}
	categories := append([]domain.Category{""}, domain.Categories...)
	levels := []domain.Level{domain.LevelLow, domain.LevelNormal, domain.LevelHigh}

	for _, hour := range []int{3, 12, 22} {
		c := newTestClassifier(hour)
		for _, cat := range categories {
			for _, desc := range descriptions {
				for _, lvl := range levels {
					in := Input{Category: cat, Description: desc, Urgency: lvl}
					without := c.Classify(in)
					in.ImageCount = 1
					with := c.Classify(in)

					for _, res := range []domain.ClassificationResult{without, with} {
						assert.GreaterOrEqual(t, res.UrgencyScore, 0)
						assert.LessOrEqual(t, res.UrgencyScore, 10)
						assert.GreaterOrEqual(t, res.Confidence, 0.0)
						assert.LessOrEqual(t, res.Confidence, 1.0)
						assert.Positive(t, res.EstimatedCost)
					}
					assert.GreaterOrEqual(t, with.Confidence, without.Confidence)
					assert.GreaterOrEqual(t, with.UrgencyScore, without.UrgencyScore)
				}
			}
		}
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
urgency_cost:
  high: 1.5
after_hours_multiplier: 1.25
defaults:
  lock:
    tools: [pick]
    skills: [locksmith]
    minutes: 30
    cost: 700
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, 1.5, rules.UrgencyCost[domain.LevelHigh])
	assert.Equal(t, 0.9, rules.UrgencyCost[domain.LevelLow])
	assert.Equal(t, 1.25, rules.AfterHoursMultiplier)
	assert.Equal(t, int64(700), rules.Defaults[domain.CategoryLock].Cost)
	assert.Len(t, rules.Sets, 3)

	res := New(rules, WithClock(clockAt(10))).Classify(Input{Category: domain.CategoryLock, Urgency: domain.LevelHigh})
	assert.Equal(t, int64(1050), res.EstimatedCost)
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  roofing:\n    cost: 1\n"), 0o600))
	_, err = LoadRules(path)
	assert.ErrorContains(t, err, "unknown category")
}
