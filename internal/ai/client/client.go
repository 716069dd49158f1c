package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/invoicely/internal/ai/domain"
	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/smallbiznis/invoicely/pkg/httpclient"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	baseURL  string
	apiKey   string
	model    string
	http     *http.Client
	executor *httpclient.Executor
	log      *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) domain.Completer {
	return NewClient(cfg.LLM, log)
}

func NewClient(cfg config.LLMConfig, log *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	execCfg := httpclient.DefaultConfig("llm")
	execCfg.MaxRetries = cfg.MaxRetries
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     &http.Client{Timeout: timeout},
		executor: httpclient.NewExecutor(execCfg, log),
		log:      log.Named("ai.client"),
	}
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []domain.Message `json:"messages"`
	Temperature    float64          `json:"temperature"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if c.apiKey == "" || c.baseURL == "" {
		return "", domain.ErrNotConfigured
	}

	payload := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err := c.executor.Do(ctx, c.http, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		return httpReq, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("llm request failed", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrUpstream, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", domain.ErrUpstream)
	}
	return decoded.Choices[0].Message.Content, nil
}
