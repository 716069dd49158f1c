package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/invoicely/internal/auth/domain"
	"github.com/smallbiznis/invoicely/internal/config"
	userdomain "github.com/smallbiznis/invoicely/internal/user/domain"
	"go.uber.org/zap"
)

const clockSkew = 30 * time.Second

type Verifier struct {
	secret []byte
	parser *jwt.Parser
	log    *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) domain.Verifier {
	return NewVerifier(cfg.Auth, log)
}

func NewVerifier(cfg config.AuthConfig, log *zap.Logger) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		secret: []byte(cfg.JWTSecret),
		parser: jwt.NewParser(opts...),
		log:    log.Named("auth.verifier"),
	}
}

func (v *Verifier) Verify(ctx context.Context, token string) (userdomain.Identity, error) {
	if len(v.secret) == 0 {
		return userdomain.Identity{}, domain.ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return userdomain.Identity{}, domain.ErrMissingToken
	}

	var claims domain.Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		v.log.Debug("token rejected", zap.String("reason", rejectReason(err)))
		return userdomain.Identity{}, domain.ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return userdomain.Identity{}, domain.ErrInvalidToken
	}
	return userdomain.Identity{
		Subject: subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Role:    strings.TrimSpace(claims.Role),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", domain.ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
