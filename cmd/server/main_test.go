package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal"
	"github.com/DukeRupert/fixmatch/internal/classify"
	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/pricing"
)

func TestNewEngines(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rulesPath := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`
defaults:
  lock:
    skills: [safe opening]
    minutes: 30
    cost: 700
`), 0o600))

	tests := []struct {
		name       string
		cfg        internal.Config
		wantSkills []string
		wantErr    bool
	}{
		{"built-in rules", internal.Config{DemandMode: "fixed"}, []string{"locksmith"}, false},
		{"rules file", internal.Config{DemandMode: "fixed", RulesPath: rulesPath}, []string{"safe opening"}, false},
		{"missing rules file", internal.Config{DemandMode: "fixed", RulesPath: filepath.Join(t.TempDir(), "nope.yaml")}, nil, true},
		{"unknown demand mode", internal.Config{DemandMode: "surge"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier, pricer, err := newEngines(&tt.cfg, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			res := classifier.Classify(classify.Input{Category: domain.CategoryLock, Urgency: domain.LevelNormal})
			assert.Equal(t, tt.wantSkills, res.RequiredSkills)

			q, err := pricer.Quote(pricing.QuoteParams{
				Category:   domain.CategoryLock,
				Urgency:    domain.LevelNormal,
				TimeSlot:   domain.TimeSlotBusiness,
				Complexity: res.Complexity,
			})
			require.NoError(t, err)
			assert.Equal(t, 1.0, q.DemandMultiplier)
		})
	}
}

func TestNewEngines_RandomDemand(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, pricer, err := newEngines(&internal.Config{DemandMode: "random"}, logger)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		q, err := pricer.Quote(pricing.QuoteParams{
			Category:   domain.CategoryPlumbing,
			Urgency:    domain.LevelNormal,
			TimeSlot:   domain.TimeSlotBusiness,
			Complexity: domain.ComplexitySimple,
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q.DemandMultiplier, 0.9)
		assert.Less(t, q.DemandMultiplier, 1.3)
	}
}
