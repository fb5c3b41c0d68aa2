package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

func TestScrapeAuthMiddleware(t *testing.T) {
	verifier := stubVerifier{tokens: map[string]domain.Principal{
		"op":  {ID: uuid.New(), Role: domain.RoleOperator},
		"req": {ID: uuid.New(), Role: domain.RoleRequester},
	}}
	basic := func(u, p string) func(*http.Request) {
		return func(r *http.Request) { r.SetBasicAuth(u, p) }
	}
	bearer := func(tok string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
	}
	none := func(*http.Request) {}

	tests := []struct {
		name     string
		username string
		password string
		verifier TokenVerifier
		prepare  func(*http.Request)
		status   int
	}{
		{"valid credentials", "admin", "secret123", nil, basic("admin", "secret123"), http.StatusOK},
		{"no credentials", "admin", "secret123", nil, none, http.StatusUnauthorized},
		{"wrong username", "admin", "secret123", nil, basic("root", "secret123"), http.StatusUnauthorized},
		{"wrong password", "admin", "secret123", nil, basic("admin", "nope"), http.StatusUnauthorized},
		{"malformed header", "admin", "secret123", nil, func(r *http.Request) { r.Header.Set("Authorization", "Basic !!!") }, http.StatusUnauthorized},
		{"bearer without verifier", "admin", "secret123", nil, bearer("op"), http.StatusUnauthorized},
		{"operator token", "admin", "secret123", verifier, bearer("op"), http.StatusOK},
		{"operator token in query", "", "", verifier, func(r *http.Request) { r.URL.RawQuery = "access_token=op" }, http.StatusOK},
		{"requester token", "admin", "secret123", verifier, bearer("req"), http.StatusUnauthorized},
		{"unknown token", "", "", verifier, bearer("nope"), http.StatusUnauthorized},
		{"basic still works with verifier", "admin", "secret123", verifier, basic("admin", "secret123"), http.StatusOK},
		{"verifier only rejects basic", "", "", verifier, basic("", ""), http.StatusUnauthorized},
		{"disabled", "", "", nil, none, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewScrapeAuthMiddleware(tt.username, tt.password, tt.verifier)
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
			}
		})
	}
}
