package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/domain"
	apperrors "github.com/chatwire/gateway/internal/errors"
	"github.com/chatwire/gateway/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Authenticator resolves a principal for an incoming handshake. The
// principal is fixed for the connection's lifetime; there is no token
// refresh over an open socket.
type Authenticator struct {
	cfg       config.AuthConfig
	policy    config.PolicyConfig
	validator domain.TokenValidator
	logger    *zap.Logger
}

// NewAuthenticator wires the authenticator with its token validator.
func NewAuthenticator(cfg config.AuthConfig, policy config.PolicyConfig, validator domain.TokenValidator) *Authenticator {
	return &Authenticator{
		cfg:       cfg,
		policy:    policy,
		validator: validator,
		logger:    logger.New("auth"),
	}
}

// Authenticate extracts the bearer credential from the handshake
// request and validates it. With anonymous access enabled a missing
// credential yields a synthetic anonymous principal; a present but
// invalid credential is still rejected.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (domain.Principal, error) {
	credential := ExtractCredential(r)

	if credential == "" {
		if a.cfg.AllowAnonymous {
			p := anonymousPrincipal()
			a.logger.Debug("anonymous connection admitted",
				zap.String("session_id", p.SessionID),
				zap.String("remote_addr", r.RemoteAddr))
			return p, nil
		}
		return domain.Principal{}, apperrors.UnauthenticatedError("missing credential")
	}

	principal, err := a.validator.Validate(ctx, credential)
	if err != nil {
		a.logger.Warn("handshake credential rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		return domain.Principal{}, err
	}

	if err := a.checkPolicy(principal); err != nil {
		a.logger.Warn("handshake rejected by policy",
			zap.String("user_id", principal.UserID),
			zap.String("remote_addr", r.RemoteAddr))
		return domain.Principal{}, err
	}

	return principal, nil
}

// AuthenticateToken validates a raw credential outside an HTTP
// handshake, for callers that already hold the token string.
func (a *Authenticator) AuthenticateToken(ctx context.Context, credential string) (domain.Principal, error) {
	if credential == "" && a.cfg.AllowAnonymous {
		return anonymousPrincipal(), nil
	}
	principal, err := a.validator.Validate(ctx, credential)
	if err != nil {
		return domain.Principal{}, err
	}
	if err := a.checkPolicy(principal); err != nil {
		return domain.Principal{}, err
	}
	return principal, nil
}

func (a *Authenticator) checkPolicy(p domain.Principal) error {
	for _, banned := range a.policy.Blacklist.UserIDs {
		if p.UserID == banned {
			return apperrors.AuthorizationError("connect", "user is blacklisted")
		}
	}
	if len(a.policy.Whitelist.UserIDs) > 0 {
		for _, allowed := range a.policy.Whitelist.UserIDs {
			if p.UserID == allowed {
				return nil
			}
		}
		return apperrors.AuthorizationError("connect", "user is not whitelisted")
	}
	return nil
}

// ExtractCredential pulls the bearer token from the Authorization
// header, falling back to the token query parameter browsers use when
// they cannot set WebSocket headers.
func ExtractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	return r.URL.Query().Get("access_token")
}

func anonymousPrincipal() domain.Principal {
	return domain.Principal{
		UserID:    "anon-" + uuid.NewString(),
		SessionID: uuid.NewString(),
		Anonymous: true,
	}
}
