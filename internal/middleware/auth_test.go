package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/auth"
	"github.com/DukeRupert/fixmatch/internal/domain"
)

// =============================================================================
// Test Helpers
// =============================================================================

type stubVerifier struct {
	tokens map[string]domain.Principal
}

func (s stubVerifier) Verify(raw string) (*domain.Principal, error) {
	p, ok := s.tokens[raw]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &p, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureHandler records the principal it saw.
func captureHandler(seen **domain.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = auth.GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// =============================================================================
// Tests
// =============================================================================

func TestWithPrincipal(t *testing.T) {
	provider := domain.Principal{ID: uuid.New(), Role: domain.RoleProvider}
	mw := NewAuthMiddleware(stubVerifier{tokens: map[string]domain.Principal{"good": provider}}, newTestLogger())

	tests := []struct {
		name    string
		prepare func(*http.Request)
		want    *domain.Principal
	}{
		{"no token", func(*http.Request) {}, nil},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, &provider},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer good") }, &provider},
		{"basic scheme ignored", func(r *http.Request) { r.Header.Set("Authorization", "Basic good") }, nil},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, nil},
		{"query parameter", func(r *http.Request) { r.URL.RawQuery = "access_token=good" }, &provider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *domain.Principal
			req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			mw.WithPrincipal(captureHandler(&seen)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code, "WithPrincipal never rejects")
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestRequirePrincipal(t *testing.T) {
	requester := domain.Principal{ID: uuid.New(), Role: domain.RoleRequester}
	mw := NewAuthMiddleware(stubVerifier{tokens: map[string]domain.Principal{"good": requester}}, newTestLogger())
	stack := Stack(mw.WithPrincipal, mw.RequirePrincipal)

	t.Run("rejects anonymous", func(t *testing.T) {
		var seen *domain.Principal
		rec := httptest.NewRecorder()
		stack(captureHandler(&seen)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/requests/x", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, seen)
	})

	t.Run("admits authenticated", func(t *testing.T) {
		var seen *domain.Principal
		req := httptest.NewRequest(http.MethodGet, "/api/requests/x", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		stack(captureHandler(&seen)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, requester.ID, seen.ID)
	})
}

func TestRequireRole(t *testing.T) {
	mw := NewAuthMiddleware(stubVerifier{}, newTestLogger())
	onlyProviders := mw.RequireRole(domain.RoleProvider, domain.RoleOperator)

	tests := []struct {
		name   string
		p      *domain.Principal
		status int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"requester", &domain.Principal{ID: uuid.New(), Role: domain.RoleRequester}, http.StatusForbidden},
		{"provider", &domain.Principal{ID: uuid.New(), Role: domain.RoleProvider}, http.StatusOK},
		{"operator", &domain.Principal{ID: uuid.New(), Role: domain.RoleOperator}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen *domain.Principal
			req := httptest.NewRequest(http.MethodPost, "/api/providers/me/online", nil)
			if tt.p != nil {
				req = req.WithContext(auth.SetPrincipal(req.Context(), tt.p))
			}
			rec := httptest.NewRecorder()

			onlyProviders(captureHandler(&seen)).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestStack_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("outer"), mark("inner"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
