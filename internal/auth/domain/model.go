// Package domain contains the bearer token types for the auth service.
package domain

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	userdomain "github.com/smallbiznis/invoicely/internal/user/domain"
)

// Claims is the token payload issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier interface {
	Verify(ctx context.Context, token string) (userdomain.Identity, error)
}

var (
	ErrMissingToken  = errors.New("missing_token")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrNotConfigured = errors.New("auth_not_configured")
)
