package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/invoicely/internal/observability/logger"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 64 << 10

// StripeWebhook acknowledges every delivery the billing service accepted,
// including duplicates and event types it ignores.
func (s *Server) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	result, err := s.billingSvc.HandleWebhook(ctx, payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(ctx).Info("stripe webhook handled",
		zap.String("event_id", result.EventID),
		zap.String("event_type", result.Type),
		zap.String("outcome", string(result.Outcome)),
	)
	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"outcome":  result.Outcome,
	})
}
