package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// ScrapeAuthMiddleware guards /metrics. A scraper may present the configured
// basic credentials, or an operator may use their API bearer token.
type ScrapeAuthMiddleware struct {
	username []byte
	password []byte
	verifier TokenVerifier
}

// NewScrapeAuthMiddleware creates the /metrics guard. With no credentials
// and no verifier every request passes. verifier may be nil.
func NewScrapeAuthMiddleware(username, password string, verifier TokenVerifier) *ScrapeAuthMiddleware {
	return &ScrapeAuthMiddleware{
		username: []byte(username),
		password: []byte(password),
		verifier: verifier,
	}
}

func (m *ScrapeAuthMiddleware) open() bool {
	return len(m.username) == 0 && len(m.password) == 0 && m.verifier == nil
}

// Handler admits the request if any accepted credential checks out.
func (m *ScrapeAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.open() || m.basicOK(r) || m.operatorOK(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="fixmatch metrics"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func (m *ScrapeAuthMiddleware) basicOK(r *http.Request) bool {
	if len(m.username) == 0 && len(m.password) == 0 {
		return false
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	// Evaluate both so timing does not reveal which half was wrong.
	userOK := subtle.ConstantTimeCompare([]byte(user), m.username)
	passOK := subtle.ConstantTimeCompare([]byte(pass), m.password)
	return userOK&passOK == 1
}

func (m *ScrapeAuthMiddleware) operatorOK(r *http.Request) bool {
	if m.verifier == nil {
		return false
	}
	raw := bearerToken(r)
	if raw == "" {
		return false
	}
	p, err := m.verifier.Verify(raw)
	return err == nil && p.Is(domain.RoleOperator)
}
