// Package auth provides authentication context helpers and bearer tokens.
//
// This package is imported by both middleware and handler packages without
// causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// principalContextKey is the key used to store the authenticated caller.
	principalContextKey contextKey = "principal"
)

// GetPrincipal retrieves the authenticated caller from the context.
//
// Returns nil if nobody is authenticated.
//
// Usage:
//
//	p := auth.GetPrincipal(r.Context())
//	if p == nil {
//	    // Handle unauthenticated request
//	}
func GetPrincipal(ctx context.Context) *domain.Principal {
	p, ok := ctx.Value(principalContextKey).(*domain.Principal)
	if !ok {
		return nil
	}
	return p
}

// GetPrincipalFromRequest retrieves the authenticated caller from the request context.
func GetPrincipalFromRequest(r *http.Request) *domain.Principal {
	return GetPrincipal(r.Context())
}

// SetPrincipal stores a caller in the context.
//
// This is called by the authentication middleware after a bearer token
// has been verified.
func SetPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
