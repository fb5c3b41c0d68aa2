package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/DukeRupert/fixmatch/internal/auth"
	"github.com/DukeRupert/fixmatch/internal/domain"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateLimiter_Window(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(2, time.Minute, clock.now)

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are independent")

	clock.advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, rl.TimeUntilReset("a"))

	clock.advance(41 * time.Second)
	assert.True(t, rl.Allow("a"), "window expired")
	assert.Zero(t, rl.TimeUntilReset("missing"))
}

func TestRateLimiter_Prune(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(1, time.Minute, clock.now)
	rl.Allow("a")

	clock.advance(2 * time.Minute)
	rl.Prune()

	assert.Empty(t, rl.entries)
}

func TestRateLimitMiddleware(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	mw := NewRateLimitMiddleware(NewRateLimiter(1, time.Minute, clock.now), newTestLogger())
	h := mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(prepare func(*http.Request)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/quote", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		prepare(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}
	anon := func(*http.Request) {}

	assert.Equal(t, http.StatusOK, serve(anon).Code)

	rec := serve(anon)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), domain.ERATELIMIT)

	forwarded := func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1") }
	assert.Equal(t, http.StatusOK, serve(forwarded).Code, "first forwarded address is the client")

	p := &domain.Principal{ID: uuid.New(), Role: domain.RoleRequester}
	authed := func(r *http.Request) { *r = *r.WithContext(auth.SetPrincipal(r.Context(), p)) }
	assert.Equal(t, http.StatusOK, serve(authed).Code, "principals are limited separately from their IP")
	assert.Equal(t, http.StatusTooManyRequests, serve(authed).Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote without port", nil, "192.0.2.1", "192.0.2.1"},
		{"x-real-ip", map[string]string{"X-Real-IP": " 198.51.100.2 "}, "10.0.0.1:1", "198.51.100.2"},
		{"x-forwarded-for wins", map[string]string{"X-Forwarded-For": "203.0.113.9", "X-Real-IP": "198.51.100.2"}, "10.0.0.1:1", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
