package internal

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanEnv blanks every variable NewConfig reads so the host cannot leak in.
func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "PORT", "LOG_LEVEL", "STORE_PROVIDER", "DATABASE_URL", "JWT_SECRET",
		"MATCH_RADIUS_KM", "RELAXED_RADIUS_KM", "NOTIFY_TOP_N", "MAX_MATCH_ATTEMPTS",
		"ACCEPT_TIMEOUT", "GEOFENCE_METERS", "RATE_CARD_PATH", "RULES_PATH", "DEMAND_MODE",
		"STORAGE_PROVIDER", "LOCAL_STORAGE_PATH", "LOCAL_STORAGE_URL",
		"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME", "R2_PUBLIC_URL",
		"WORKER_ENABLED", "WORKER_CONCURRENCY", "WORKER_POLL_INTERVAL", "WORKER_JOB_TIMEOUT",
		"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "ALLOWED_ORIGINS",
		"METRICS_USERNAME", "METRICS_PASSWORD",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfig_DevelopmentDefaults(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STORE_PROVIDER", "memory")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, 20.0, cfg.MatchRadiusKm)
	assert.Equal(t, 40.0, cfg.RelaxedRadiusKm)
	assert.Equal(t, 5, cfg.NotifyTopN)
	assert.Equal(t, 3, cfg.MaxMatchAttempts)
	assert.Equal(t, 2*time.Minute, cfg.AcceptTimeout)
	assert.Equal(t, "local", cfg.StorageProvider)
	assert.True(t, cfg.WorkerEnabled)
	assert.Equal(t, 120, cfg.RateLimitRequests)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, "random", cfg.DemandMode)
	assert.Empty(t, cfg.RulesPath)
}

func TestNewConfig_Overrides(t *testing.T) {
	cleanEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/fixmatch")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MATCH_RADIUS_KM", "12.5")
	t.Setenv("ACCEPT_TIMEOUT", "90s")
	t.Setenv("WORKER_ENABLED", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://ops.example.com ,")
	t.Setenv("NOTIFY_TOP_N", "not-a-number")
	t.Setenv("DEMAND_MODE", "fixed")
	t.Setenv("RULES_PATH", "/etc/fixmatch/rules.yaml")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "postgres", cfg.StoreProvider)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 12.5, cfg.MatchRadiusKm)
	assert.Equal(t, 90*time.Second, cfg.AcceptTimeout)
	assert.False(t, cfg.WorkerEnabled)
	assert.Equal(t, []string{"https://app.example.com", "https://ops.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.NotifyTopN, "unparsable values fall back to the default")
	assert.Equal(t, "fixed", cfg.DemandMode)
	assert.Equal(t, "/etc/fixmatch/rules.yaml", cfg.RulesPath)
}

func TestNewConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"postgres without url", map[string]string{}, "DATABASE_URL"},
		{"unknown store", map[string]string{"STORE_PROVIDER": "mongo"}, "STORE_PROVIDER"},
		{"production without secret", map[string]string{"STORE_PROVIDER": "memory", "ENV": "production"}, "JWT_SECRET"},
		{"r2 without account", map[string]string{"STORE_PROVIDER": "memory", "STORAGE_PROVIDER": "r2"}, "R2_ACCOUNT_ID"},
		{"unknown storage", map[string]string{"STORE_PROVIDER": "memory", "STORAGE_PROVIDER": "ftp"}, "STORAGE_PROVIDER"},
		{"unknown demand mode", map[string]string{"STORE_PROVIDER": "memory", "DEMAND_MODE": "surge"}, "DEMAND_MODE"},
		{"zero rate limit", map[string]string{"STORE_PROVIDER": "memory", "RATE_LIMIT_REQUESTS": "0"}, "RATE_LIMIT_REQUESTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "production", "info").Info("hello", "request_id", "r1")
	assert.Contains(t, buf.String(), `"service":"fixmatch"`)
	assert.Contains(t, buf.String(), `"request_id":"r1"`)

	buf.Reset()
	NewLogger(&buf, "development", "warn").Info("quiet")
	assert.Empty(t, buf.String())

	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
