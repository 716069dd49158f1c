package server

import (
	"math"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authservice "github.com/smallbiznis/invoicely/internal/auth/service"
	"github.com/smallbiznis/invoicely/internal/authorization"
	obscontext "github.com/smallbiznis/invoicely/internal/observability/context"
	"github.com/smallbiznis/invoicely/internal/observability/logger"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	"github.com/smallbiznis/invoicely/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	contextUserIDKey   = "user_id"
	contextUserRoleKey = "user_role"
)

// AuthRequired verifies the bearer token and makes sure the caller has a
// ledger row before any handler runs.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := authservice.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		identity, err := s.verifier.Verify(ctx, token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		user, err := s.userSvc.EnsureUser(ctx, identity)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserIDKey, user.ID)
		c.Set(contextUserRoleKey, identity.Role)
		c.Request = c.Request.WithContext(obscontext.WithUserID(ctx, user.ID.String()))
		c.Next()
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// markQuotaKind tags the request so the access log and the server span
// report which ledger the handler consumes.
func markQuotaKind(c *gin.Context, kind quotadomain.Kind) {
	c.Request = c.Request.WithContext(obscontext.WithQuotaKind(c.Request.Context(), string(kind)))
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		actor := authorization.Actor{UserID: userID, Role: c.GetString(contextUserRoleKey)}
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func userSubject(c *gin.Context) string {
	userID, ok := currentUserID(c)
	if !ok {
		return ""
	}
	return userID.String()
}

func clientIPSubject(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimit throttles bursts per subject. It runs before any quota work so a
// throttled request never reserves monthly capacity.
func (s *Server) RateLimit(scope ratelimit.Scope, subject func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		key := subject(c)
		if key == "" {
			c.Next()
			return
		}

		decision := s.limiter.Allow(c.Request.Context(), scope, key)
		if decision.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		}
		if decision.Allowed {
			c.Next()
			return
		}

		logger.FromContext(c.Request.Context()).Warn("rate limit exceeded",
			zap.String("scope", string(scope)),
			zap.String("reason", decision.Reason),
			zap.String("route", c.FullPath()),
		)
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(decision)))
		c.Header("X-Rate-Limited-Reason", decision.Reason)
		AbortWithError(c, ErrRateLimited)
	}
}

func retryAfterSeconds(decision ratelimit.Decision) int {
	seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
