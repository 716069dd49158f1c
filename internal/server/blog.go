package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	blogdomain "github.com/smallbiznis/invoicely/internal/blog/domain"
)

func (s *Server) ListPosts(c *gin.Context) {
	page := 1
	if parsed, err := parseOptionalInt(c.Query("page")); err != nil {
		AbortWithError(c, blogdomain.ErrInvalidPage)
		return
	} else if parsed != nil {
		page = *parsed
	}

	posts, err := s.blogSvc.List(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": posts})
}

func (s *Server) GetPost(c *gin.Context) {
	post, err := s.blogSvc.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": post})
}
