package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/fixmatch/internal/domain"
)

func TestTokenCodec_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	codec := NewTokenCodec("secret", func() time.Time { return now })
	p := domain.Principal{ID: uuid.New(), Role: domain.RoleProvider}

	raw, err := codec.Sign(p, time.Hour)
	require.NoError(t, err)

	got, err := codec.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, p, *got)
}

func TestTokenCodec_Rejects(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	codec := NewTokenCodec("secret", clock)
	p := domain.Principal{ID: uuid.New(), Role: domain.RoleRequester}

	valid, err := codec.Sign(p, time.Hour)
	require.NoError(t, err)

	expired, err := NewTokenCodec("secret", func() time.Time { return now.Add(-2 * time.Hour) }).Sign(p, time.Hour)
	require.NoError(t, err)

	otherKey, err := NewTokenCodec("other", clock).Sign(p, time.Hour)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   p.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: domain.RoleRequester,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"expired", expired},
		{"wrong key", otherKey},
		{"unknown role", badRole},
		{"bad subject", badSubject},
		{"tampered", valid + "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.token)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestTokenCodec_SignRejectsUnknownRole(t *testing.T) {
	codec := NewTokenCodec("secret", nil)
	_, err := codec.Sign(domain.Principal{ID: uuid.New(), Role: "admin"}, time.Hour)
	assert.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetPrincipal(ctx))

	p := &domain.Principal{ID: uuid.New(), Role: domain.RoleOperator}
	ctx = SetPrincipal(ctx, p)
	assert.Equal(t, p, GetPrincipal(ctx))
}
