package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetPublicInvoice(c *gin.Context) {
	view, err := s.publicInvoiceSvc.GetPublic(c.Request.Context(), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) DownloadPublicInvoicePDF(c *gin.Context) {
	doc, err := s.publicInvoiceSvc.DownloadPublicPDF(c.Request.Context(), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	writePDF(c, doc.FileName, doc.Content)
}
