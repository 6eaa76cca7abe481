package auth

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatwire/gateway/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret-0123456789"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() Claims {
	return Claims{
		UserID:    "u1",
		Roles:     []string{"member"},
		SessionID: "sess-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestValidateAcceptsSignedToken(t *testing.T) {
	v := NewJWTValidator(config.AuthConfig{JWTSecret: testSecret})

	p, err := v.Validate(context.Background(), signToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "sess-1", p.SessionID)
	assert.True(t, p.HasRole("member"))
	assert.False(t, p.Anonymous)
}

func TestValidateFallsBackToSubject(t *testing.T) {
	v := NewJWTValidator(config.AuthConfig{JWTSecret: testSecret})

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject-user",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	p, err := v.Validate(context.Background(), signToken(t, testSecret, claims))
	require.NoError(t, err)
	assert.Equal(t, "subject-user", p.UserID)
}

func TestValidateRejections(t *testing.T) {
	v := NewJWTValidator(config.AuthConfig{JWTSecret: testSecret})
	ctx := context.Background()

	t.Run("empty credential", func(t *testing.T) {
		_, err := v.Validate(ctx, "")
		assert.Error(t, err)
	})

	t.Run("garbage credential", func(t *testing.T) {
		_, err := v.Validate(ctx, "not.a.token")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Validate(ctx, signToken(t, "some-other-secret-value", validClaims()))
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, err := v.Validate(ctx, signToken(t, testSecret, claims))
		assert.Error(t, err)
	})

	t.Run("no subject", func(t *testing.T) {
		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		_, err := v.Validate(ctx, signToken(t, testSecret, claims))
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		strict := NewJWTValidator(config.AuthConfig{JWTSecret: testSecret, Issuer: "chatwire"})
		claims := validClaims()
		claims.Issuer = "someone-else"
		_, err := strict.Validate(ctx, signToken(t, testSecret, claims))
		assert.Error(t, err)
	})
}

func newAuthenticator(allowAnonymous bool, policy config.PolicyConfig) *Authenticator {
	cfg := config.AuthConfig{AllowAnonymous: allowAnonymous, JWTSecret: testSecret}
	return NewAuthenticator(cfg, policy, NewJWTValidator(cfg))
}

func TestAuthenticateWithBearerHeader(t *testing.T) {
	a := newAuthenticator(false, config.PolicyConfig{})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims()))

	p, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
}

func TestAuthenticateWithQueryToken(t *testing.T) {
	a := newAuthenticator(false, config.PolicyConfig{})

	r := httptest.NewRequest("GET", "/?token="+signToken(t, testSecret, validClaims()), nil)
	p, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
}

func TestAnonymousBypass(t *testing.T) {
	a := newAuthenticator(true, config.PolicyConfig{})

	r := httptest.NewRequest("GET", "/", nil)
	p, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, p.Anonymous)
	assert.True(t, strings.HasPrefix(p.UserID, "anon-"))
	assert.True(t, p.Authenticated())
}

func TestAnonymousBypassStillRejectsBadCredential(t *testing.T) {
	a := newAuthenticator(true, config.PolicyConfig{})

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer garbage")

	_, err := a.Authenticate(context.Background(), r)
	assert.Error(t, err)
}

func TestMissingCredentialRejectedWithoutBypass(t *testing.T) {
	a := newAuthenticator(false, config.PolicyConfig{})

	r := httptest.NewRequest("GET", "/", nil)
	_, err := a.Authenticate(context.Background(), r)
	assert.Error(t, err)
}

func TestPolicyLists(t *testing.T) {
	token := signToken(t, testSecret, validClaims())
	ctx := context.Background()

	t.Run("blacklisted user rejected", func(t *testing.T) {
		policy := config.PolicyConfig{}
		policy.Blacklist.UserIDs = []string{"u1"}
		a := newAuthenticator(false, policy)

		_, err := a.AuthenticateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("whitelist admits listed user", func(t *testing.T) {
		policy := config.PolicyConfig{}
		policy.Whitelist.UserIDs = []string{"u1"}
		a := newAuthenticator(false, policy)

		p, err := a.AuthenticateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "u1", p.UserID)
	})

	t.Run("whitelist rejects unlisted user", func(t *testing.T) {
		policy := config.PolicyConfig{}
		policy.Whitelist.UserIDs = []string{"someone-else"}
		a := newAuthenticator(false, policy)

		_, err := a.AuthenticateToken(ctx, token)
		assert.Error(t, err)
	})
}

func TestExtractCredential(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "", ExtractCredential(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractCredential(r))

	r = httptest.NewRequest("GET", "/?access_token=xyz", nil)
	assert.Equal(t, "xyz", ExtractCredential(r))
}
