package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referrski/internal/domain"
)

func TestJWTIssuer_Issue(t *testing.T) {
	secret := "test-secret"
	issuer := NewJWTIssuer(secret, "https://id.referrski.test")

	token, err := issuer.Issue("user-123", "u@example.com", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	claims, ok := parsed.Claims.(*jwtClaims)
	require.True(t, ok)
	assert.Equal(t, "user-123", claims.Subject)
	assert.Equal(t, "u@example.com", claims.Email)
	assert.Equal(t, "https://id.referrski.test", claims.Issuer)

	_, err = issuer.Issue("", "u@example.com", time.Hour)
	require.Error(t, err)
}

func TestJWTVerifier_Verify(t *testing.T) {
	const secret = "test-secret"
	issue := func(t *testing.T, method jwt.SigningMethod, key any, claims jwtClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "idp",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "owner@acme.test",
	}

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr bool
	}{
		{
			name:  "valid",
			token: func(t *testing.T) string { return issue(t, jwt.SigningMethodHS256, []byte(secret), valid) },
		},
		{
			name:    "empty",
			token:   func(t *testing.T) string { return "" },
			wantErr: true,
		},
		{
			name:    "wrong secret",
			token:   func(t *testing.T) string { return issue(t, jwt.SigningMethodHS256, []byte("other"), valid) },
			wantErr: true,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := valid
				c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
				return issue(t, jwt.SigningMethodHS256, []byte(secret), c)
			},
			wantErr: true,
		},
		{
			name: "no expiry",
			token: func(t *testing.T) string {
				c := valid
				c.ExpiresAt = nil
				return issue(t, jwt.SigningMethodHS256, []byte(secret), c)
			},
			wantErr: true,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				c := valid
				c.Issuer = "someone-else"
				return issue(t, jwt.SigningMethodHS256, []byte(secret), c)
			},
			wantErr: true,
		},
		{
			name: "no subject",
			token: func(t *testing.T) string {
				c := valid
				c.Subject = ""
				return issue(t, jwt.SigningMethodHS256, []byte(secret), c)
			},
			wantErr: true,
		},
		{
			name:    "hs512 rejected",
			token:   func(t *testing.T) string { return issue(t, jwt.SigningMethodHS512, []byte(secret), valid) },
			wantErr: true,
		},
	}
	v := NewJWTVerifier(secret, "idp")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Verify(tt.token(t))
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, &domain.Principal{UserID: "user-1", Email: "owner@acme.test"}, p)
		})
	}
}
