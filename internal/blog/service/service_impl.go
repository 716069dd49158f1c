package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicely/internal/blog/domain"
	"github.com/smallbiznis/invoicely/internal/cache"
	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/smallbiznis/invoicely/pkg/httpclient"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	pageSize         = 10
	maxResponseBytes = 2 << 20
	requestTimeout   = 10 * time.Second
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

// Service reads posts from the headless CMS and caches the raw payloads.
type Service struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	executor *httpclient.Executor
	cache    cache.Cache
	log      *zap.Logger
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	ttl := time.Duration(p.Cfg.CMS.CacheTTLSeconds) * time.Second
	return &Service{
		baseURL:  strings.TrimRight(p.Cfg.CMS.BaseURL, "/"),
		apiKey:   p.Cfg.CMS.APIKey,
		http:     &http.Client{Timeout: requestTimeout},
		executor: httpclient.NewExecutor(httpclient.DefaultConfig("cms"), p.Log),
		cache:    cache.New(p.Redis, "blog", ttl, p.Log),
		log:      p.Log.Named("blog.service"),
	}
}

type listEnvelope struct {
	Data []domain.Post `json:"data"`
	Meta struct {
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
		Total    int `json:"total"`
	} `json:"meta"`
}

type postEnvelope struct {
	Data *domain.Post `json:"data"`
}

func (s *Service) List(ctx context.Context, page int) (*domain.PostList, error) {
	if page == 0 {
		page = 1
	}
	if page < 0 {
		return nil, domain.ErrInvalidPage
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(pageSize))

	raw, err := s.fetch(ctx, cache.Key("posts", strconv.Itoa(page)), "/posts?"+query.Encode())
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode posts: %v", domain.ErrCMSUnavailable, err)
	}
	size := env.Meta.PageSize
	if size <= 0 {
		size = pageSize
	}
	posts := env.Data
	if posts == nil {
		posts = []domain.Post{}
	}
	return &domain.PostList{
		Posts:    posts,
		Page:     page,
		PageSize: size,
		Total:    env.Meta.Total,
		HasMore:  page*size < env.Meta.Total,
	}, nil
}

func (s *Service) Get(ctx context.Context, postSlug string) (*domain.Post, error) {
	postSlug = strings.ToLower(strings.TrimSpace(postSlug))
	if !slug.IsSlug(postSlug) {
		return nil, domain.ErrInvalidSlug
	}

	raw, err := s.fetch(ctx, cache.Key("post", postSlug), "/posts/"+url.PathEscape(postSlug))
	if err != nil {
		return nil, err
	}

	var env postEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode post: %v", domain.ErrCMSUnavailable, err)
	}
	if env.Data == nil {
		return nil, domain.ErrPostNotFound
	}
	return env.Data, nil
}

// fetch returns the cached body for key or loads path from the CMS. Only
// 200 responses are cached.
func (s *Service) fetch(ctx context.Context, key, path string) ([]byte, error) {
	if raw, ok := s.cache.Get(ctx, key); ok {
		return raw, nil
	}
	if s.baseURL == "" {
		return nil, fmt.Errorf("%w: cms base url not configured", domain.ErrCMSUnavailable)
	}

	resp, err := s.executor.Do(ctx, s.http, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}
		return req, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("cms request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrCMSUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrPostNotFound
	}
	if resp.StatusCode != http.StatusOK {
		s.log.Warn("cms returned error status", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", domain.ErrCMSUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrCMSUnavailable, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid json", domain.ErrCMSUnavailable)
	}
	s.cache.Set(ctx, key, raw)
	return raw, nil
}
