// Package middleware contains HTTP middleware for the fixmatch API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/fixmatch/internal/auth"
	"github.com/DukeRupert/fixmatch/internal/domain"
	"github.com/DukeRupert/fixmatch/internal/handler"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// TokenVerifier turns a raw bearer token into a caller.
type TokenVerifier interface {
	Verify(raw string) (*domain.Principal, error)
}

// AuthMiddleware authenticates callers from bearer tokens.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// =============================================================================
// WithPrincipal Middleware
// =============================================================================

// WithPrincipal loads the caller from the Authorization header, or from the
// access_token query parameter for browser EventSource and WebSocket clients
// that cannot set headers.
//
// The request always continues. A missing or invalid token just leaves the
// context without a principal; RequirePrincipal decides what to do about it.
func (m *AuthMiddleware) WithPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		p, err := m.verifier.Verify(raw)
		if err != nil {
			m.logger.Debug("rejected bearer token", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		noteCaller(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(r.Context(), p)))
	})
}

// =============================================================================
// RequirePrincipal Middleware
// =============================================================================

// RequirePrincipal rejects requests without an authenticated caller.
//
// IMPORTANT: This middleware must be used AFTER WithPrincipal.
func (m *AuthMiddleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetPrincipal(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware that only admits callers with one of roles.
// Use after RequirePrincipal.
func (m *AuthMiddleware) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.GetPrincipal(r.Context())
			if p == nil {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			handler.ForbiddenResponse(w, r, m.logger)
		})
	}
}

// =============================================================================
// Request Helpers
// =============================================================================

// bearerToken extracts the raw token, preferring the Authorization header.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithPrincipal, authMw.RequirePrincipal)
//	mux.Handle("GET /api/offers", stack(offersHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithPrincipal
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequirePrincipal
	_ TokenVerifier                   = (*auth.TokenCodec)(nil)
)
