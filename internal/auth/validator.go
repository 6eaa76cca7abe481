package auth

import (
	"context"
	"fmt"

	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/domain"
	apperrors "github.com/chatwire/gateway/internal/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload shared with the issuing service.
type Claims struct {
	UserID    string   `json:"uid"`
	Roles     []string `json:"roles,omitempty"`
	SessionID string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator validates HMAC-signed bearer tokens. It implements
// domain.TokenValidator; issuance and revocation belong to the issuer.
type JWTValidator struct {
	secret   []byte
	issuer   string
	audience string
	options  []jwt.ParserOption
}

// NewJWTValidator builds a validator from the auth config.
func NewJWTValidator(cfg config.AuthConfig) *JWTValidator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTValidator{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		options:  opts,
	}
}

// Validate parses and verifies the credential and maps its claims onto
// a principal. Any verification failure comes back as an
// authentication error; the caller never learns which check failed.
func (v *JWTValidator) Validate(ctx context.Context, credential string) (domain.Principal, error) {
	if credential == "" {
		return domain.Principal{}, apperrors.UnauthenticatedError("missing credential")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, v.options...)
	if err != nil {
		return domain.Principal{}, apperrors.UnauthenticatedError("invalid token").WithDetails(err.Error())
	}
	if !token.Valid {
		return domain.Principal{}, apperrors.UnauthenticatedError("invalid token")
	}

	userID := claims.UserID
	if userID == "" {
		// Fall back to the standard subject claim
		userID = claims.Subject
	}
	if userID == "" {
		return domain.Principal{}, apperrors.UnauthenticatedError("token carries no subject")
	}

	return domain.Principal{
		UserID:    userID,
		Roles:     claims.Roles,
		SessionID: claims.SessionID,
	}, nil
}
