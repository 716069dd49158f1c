package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/invoicely/internal/audit/domain"
	"github.com/smallbiznis/invoicely/internal/observability/logger"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
	"go.uber.org/zap"
)

type promptUsageResponse struct {
	CanUse           bool      `json:"canUse"`
	RemainingPrompts int       `json:"remainingPrompts"`
	MonthlyLimit     int       `json:"monthlyLimit"`
	CurrentUsage     int       `json:"currentUsage"`
	NextResetDate    time.Time `json:"nextResetDate"`
	UsagePercentage  int       `json:"usagePercentage"`
}

func (s *Server) GetPromptUsage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.quotaSvc.GetStatus(c.Request.Context(), userID, quotadomain.KindPrompt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, promptUsageResponse{
		CanUse:           status.CanUse,
		RemainingPrompts: status.Remaining,
		MonthlyLimit:     status.Limit,
		CurrentUsage:     status.CurrentUsage,
		NextResetDate:    status.NextResetDate,
		UsagePercentage:  status.UsagePercentage,
	})
}

func (s *Server) GetInvoiceLimits(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limits, err := s.invoiceSvc.GetLimits(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, limits)
}

type userQuotaResponse struct {
	UserID  string             `json:"user_id"`
	Prompt  quotadomain.Status `json:"prompt"`
	Invoice quotadomain.Status `json:"invoice"`
}

func (s *Server) GetUserQuota(c *gin.Context) {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	resp := userQuotaResponse{UserID: userID.String()}
	if resp.Prompt, err = s.quotaSvc.GetStatus(ctx, userID, quotadomain.KindPrompt); err != nil {
		AbortWithError(c, err)
		return
	}
	if resp.Invoice, err = s.quotaSvc.GetStatus(ctx, userID, quotadomain.KindInvoice); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type adjustQuotaRequest struct {
	Kind  string `json:"kind"`
	Delta int    `json:"delta"`
}

// AdjustUserQuota raises a user's monthly limit by hand. Repeated calls add
// up; there is no idempotency key.
func (s *Server) AdjustUserQuota(c *gin.Context) {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req adjustQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	kind, err := quotadomain.ParseKind(req.Kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if err := s.quotaSvc.AddToLimit(ctx, userID, kind, req.Delta); err != nil {
		AbortWithError(c, err)
		return
	}
	actorID, _ := currentUserID(c)
	logger.FromContext(ctx).Info("quota limit adjusted",
		zap.String("target_user_id", userID.String()),
		zap.String("actor_user_id", actorID.String()),
		zap.String("kind", string(kind)),
		zap.Int("delta", req.Delta),
	)
	s.recordQuotaAdjustment(c, actorID, userID, kind, req.Delta)

	status, err := s.quotaSvc.GetStatus(ctx, userID, kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}

// recordQuotaAdjustment writes the audit entry after the limit change has been
// committed. A failed write is logged and does not fail the request.
func (s *Server) recordQuotaAdjustment(c *gin.Context, actorID, userID snowflake.ID, kind quotadomain.Kind, delta int) {
	if s.auditSvc == nil {
		return
	}
	ctx := auditdomain.WithRequestInfo(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    actorID.String(),
		Action:     auditdomain.ActionQuotaLimitAdjusted,
		TargetType: auditdomain.TargetTypeUser,
		TargetID:   userID.String(),
		Metadata: map[string]any{
			"kind":  string(kind),
			"delta": delta,
		},
	})
	if err != nil {
		logger.FromContext(ctx).Warn("quota adjustment not audited",
			zap.String("target_user_id", userID.String()),
			zap.Error(err),
		)
	}
}

func (s *Server) ListUserQuotaAudit(c *gin.Context) {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListAuditLogRequest{
		Pagination: query,
		Action:     c.Query("action"),
		TargetType: auditdomain.TargetTypeUser,
		TargetID:   userID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.AuditLogs,
		"page_info": resp.PageInfo,
	})
}
