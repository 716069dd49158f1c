// Package context carries request correlation values for logs and spans.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type userIDKey struct{}
type quotaKindKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDKey{}).(string)
	return value
}

// WithQuotaKind tags the request with the ledger kind it consumes.
func WithQuotaKind(ctx context.Context, kind string) context.Context {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, quotaKindKey{}, kind)
}

func QuotaKindFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(quotaKindKey{}).(string)
	return value
}
