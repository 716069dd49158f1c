package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
)

type Service interface {
	// GenerateInvoice drafts an invoice from a free-text prompt without
	// persisting it.
	GenerateInvoice(ctx context.Context, userID snowflake.ID, prompt string) (*invoicedomain.Draft, error)
	Summarize(ctx context.Context, userID snowflake.ID, document string) (string, error)
}

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages []Message
	// JSON asks the model for a single JSON object.
	JSON        bool
	Temperature float64
	MaxTokens   int
}

// Completer is a chat-completions backend.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

var (
	ErrEmptyPrompt      = errors.New("invalid_prompt")
	ErrPromptTooLong    = errors.New("invalid_prompt_length")
	ErrEmptyDocument    = errors.New("invalid_document")
	ErrDocumentTooLarge = errors.New("invalid_document_length")
	ErrUpstream         = errors.New("ai_upstream_error")
	ErrNotConfigured    = errors.New("ai_not_configured")
)
