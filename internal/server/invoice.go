package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
)

func (s *Server) ListInvoices(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req invoicedomain.ListInvoiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Invoices,
		"page_info": resp.PageInfo,
	})
}

// CreateInvoice persists an invoice and spends one unit of the invoice quota.
func (s *Server) CreateInvoice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	markQuotaKind(c, quotadomain.KindInvoice)
	item, err := s.invoiceSvc.Create(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.invoiceSvc.Get(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req invoicedomain.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.invoiceSvc.Update(c.Request.Context(), userID, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), userID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if s.pdf == nil {
		AbortWithError(c, invoicedomain.ErrRendererUnavailable)
		return
	}

	ctx := c.Request.Context()
	item, err := s.invoiceSvc.Get(ctx, userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	content, fileName, err := s.pdf.RenderInvoice(ctx, item)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writePDF(c, fileName, content)
}

type shareInvoiceRequest struct {
	TTLDays *int `json:"ttl_days"`
}

func (s *Server) ShareInvoice(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req shareInvoiceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	if days, err := parseOptionalInt(c.Query("ttl_days")); err != nil {
		AbortWithError(c, newValidationError("ttl_days", "invalid_ttl_days", "invalid ttl_days"))
		return
	} else if days != nil {
		req.TTLDays = days
	}

	var ttl time.Duration
	if req.TTLDays != nil {
		if *req.TTLDays <= 0 {
			AbortWithError(c, newValidationError("ttl_days", "invalid_ttl_days", "ttl_days must be positive"))
			return
		}
		ttl = time.Duration(*req.TTLDays) * 24 * time.Hour
	}

	res, err := s.publicInvoiceSvc.Share(c.Request.Context(), userID, id, ttl)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"token":      res.Token,
		"expires_at": res.ExpiresAt,
		"url":        "/public/invoices/" + res.Token,
	}})
}

func (s *Server) RevokeInvoiceShare(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.publicInvoiceSvc.Revoke(c.Request.Context(), userID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func writePDF(c *gin.Context, fileName string, content []byte) {
	if fileName == "" {
		fileName = "invoice.pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", content)
}
