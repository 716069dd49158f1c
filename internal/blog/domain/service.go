package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	List(ctx context.Context, page int) (*PostList, error)
	Get(ctx context.Context, slug string) (*Post, error)
}

type Post struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Content     string     `json:"content,omitempty"`
	CoverImage  string     `json:"cover_image,omitempty"`
	Author      string     `json:"author,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type PostList struct {
	Posts    []Post `json:"posts"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
	HasMore  bool   `json:"has_more"`
}

var (
	ErrPostNotFound   = errors.New("post_not_found")
	ErrInvalidSlug    = errors.New("invalid_slug")
	ErrInvalidPage    = errors.New("invalid_page")
	ErrCMSUnavailable = errors.New("cms_unavailable")
)
