package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/DukeRupert/fixmatch/internal/auth"
	"github.com/DukeRupert/fixmatch/internal/domain"
)

func serveLogged(t *testing.T, req *http.Request, status int) string {
	t.Helper()
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})).ServeHTTP(httptest.NewRecorder(), req)

	return buf.String()
}

func TestRequestLoggingMiddleware_LogsRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/requests", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("User-Agent", "fixmatch-app/1.0")

	out := serveLogged(t, req, http.StatusCreated)

	for _, want := range []string{"POST", "/api/requests", "status=201", "duration_ms", "192.168.1.1", "fixmatch-app/1.0"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "level=INFO")
}

func TestRequestLoggingMiddleware_ServerErrorsAreWarnings(t *testing.T) {
	out := serveLogged(t, httptest.NewRequest(http.MethodGet, "/api/offers", nil), http.StatusInternalServerError)

	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=500")
}

func TestRequestLoggingMiddleware_LogsPrincipal(t *testing.T) {
	p := &domain.Principal{ID: uuid.New(), Role: domain.RoleProvider}
	req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
	req = req.WithContext(auth.SetPrincipal(req.Context(), p))

	out := serveLogged(t, req, http.StatusOK)

	assert.Contains(t, out, p.ID.String())
	assert.Contains(t, out, "role=provider")
}

func TestRequestLoggingMiddleware_RedactsTokens(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/requests/abc/stream?access_token=eyJsecret&since=5", nil)

	out := serveLogged(t, req, http.StatusOK)

	assert.NotContains(t, out, "eyJsecret")
	assert.Contains(t, out, "access_token=[REDACTED]")
	assert.Contains(t, out, "since=5")
}

func TestRequestLoggingMiddleware_SkipsNoisyPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics", "/files/requests/a.jpg"} {
		t.Run(path, func(t *testing.T) {
			assert.Empty(t, serveLogged(t, httptest.NewRequest(http.MethodGet, path, nil), http.StatusOK))
		})
	}
}

func TestRequestLoggingMiddleware_ExposesFlusher(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))
	rec := httptest.NewRecorder()

	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data: hi\n\n"))
		assert.NoError(t, http.NewResponseController(w).Flush())
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/requests/x/stream", nil))

	assert.True(t, rec.Flushed)
}

func TestRequestLoggingMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	var seen string
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/offers", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "request_id="+seen)

	req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
	req.Header.Set(RequestIDHeader, "edge-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "edge-42", seen)
	assert.Equal(t, "edge-42", rec.Header().Get(RequestIDHeader))

	assert.Empty(t, RequestID(req.Context()))
}

func TestRequestLoggingMiddleware_LogsCallerResolvedDownstream(t *testing.T) {
	p := &domain.Principal{ID: uuid.New(), Role: domain.RoleRequester}
	var buf bytes.Buffer
	logging := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))
	authMw := NewAuthMiddleware(stubVerifier{tokens: map[string]domain.Principal{"good": *p}}, newTestLogger())

	h := logging.Handler(authMw.WithPrincipal(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), "principal_id="+p.ID.String())
	assert.Contains(t, buf.String(), "bytes=2")
}
