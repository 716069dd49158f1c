package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
)

type generateInvoiceRequest struct {
	Prompt string `json:"prompt"`
}

type summarizeRequest struct {
	Document string `json:"document"`
}

// GenerateInvoice returns an unsaved draft. Saving it goes through
// CreateInvoice and the invoice quota.
func (s *Server) GenerateInvoice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	markQuotaKind(c, quotadomain.KindPrompt)
	draft, err := s.aiSvc.GenerateInvoice(c.Request.Context(), userID, req.Prompt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": draft})
}

func (s *Server) Summarize(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	markQuotaKind(c, quotadomain.KindPrompt)
	summary, err := s.aiSvc.Summarize(c.Request.Context(), userID, req.Document)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"summary": summary}})
}
