package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/ai/domain"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/invoicely/internal/observability/metrics"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxPromptChars   = 4000
	maxDocumentChars = 100_000

	generateSystemPrompt = `You turn a short description of billable work into an invoice.
Reply with one JSON object and nothing else, using this shape:
{"company":{"name":"","email":"","address":""},
 "client":{"name":"","email":"","address":""},
 "items":[{"description":"","quantity":1,"unit_price":0.00}],
 "currency":"USD","issue_date":"YYYY-MM-DD","due_date":"YYYY-MM-DD",
 "notes":"","tax_rate":0}
unit_price is in major currency units. tax_rate is a percentage.
Leave unknown strings empty and omit unknown dates.`

	summarizeSystemPrompt = `Summarize the document for a busy freelancer.
Use at most five short bullet points covering amounts, dates, parties and obligations.`
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Quota      quotadomain.Service
	Completer  domain.Completer
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	quota      quotadomain.Service
	completer  domain.Completer
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("ai.service"),
		quota:      p.Quota,
		completer:  p.Completer,
		obsMetrics: p.ObsMetrics,
	}
}

// GenerateInvoice spends one prompt unit only when the model returns a usable
// draft.
func (s *Service) GenerateInvoice(ctx context.Context, userID snowflake.ID, prompt string) (*invoicedomain.Draft, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, domain.ErrEmptyPrompt
	}
	if len([]rune(prompt)) > maxPromptChars {
		return nil, domain.ErrPromptTooLong
	}

	var draft *invoicedomain.Draft
	err := s.quota.Guard(ctx, userID, quotadomain.KindPrompt, func(ctx context.Context) error {
		content, err := s.complete(ctx, "generate_invoice", domain.CompletionRequest{
			Messages: []domain.Message{
				{Role: domain.RoleSystem, Content: generateSystemPrompt},
				{Role: domain.RoleUser, Content: prompt},
			},
			JSON:        true,
			Temperature: 0.2,
		})
		if err != nil {
			return err
		}
		draft, err = decodeDraft(content)
		return err
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

func (s *Service) Summarize(ctx context.Context, userID snowflake.ID, document string) (string, error) {
	document = strings.TrimSpace(document)
	if document == "" {
		return "", domain.ErrEmptyDocument
	}
	if len(document) > maxDocumentChars {
		return "", domain.ErrDocumentTooLarge
	}

	if looksLikeHTML(document) {
		markdown, err := htmltomarkdown.ConvertString(document)
		if err != nil {
			s.log.Debug("html conversion failed, sending raw document", zap.Error(err))
		} else if strings.TrimSpace(markdown) != "" {
			document = markdown
		}
	}

	var summary string
	err := s.quota.Guard(ctx, userID, quotadomain.KindPrompt, func(ctx context.Context) error {
		content, err := s.complete(ctx, "summarize", domain.CompletionRequest{
			Messages: []domain.Message{
				{Role: domain.RoleSystem, Content: summarizeSystemPrompt},
				{Role: domain.RoleUser, Content: document},
			},
			Temperature: 0.3,
		})
		if err != nil {
			return err
		}
		summary = strings.TrimSpace(content)
		if summary == "" {
			return fmt.Errorf("%w: empty summary", domain.ErrUpstream)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

func (s *Service) complete(ctx context.Context, operation string, req domain.CompletionRequest) (string, error) {
	if s.completer == nil {
		return "", domain.ErrNotConfigured
	}
	content, err := s.completer.Complete(ctx, req)
	s.obsMetrics.RecordAICall(ctx, operation, err)
	if err != nil {
		s.log.Warn("completion failed", zap.String("operation", operation), zap.Error(err))
	}
	return content, err
}

type generatedParty struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type generatedItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

type generatedInvoice struct {
	Company   generatedParty  `json:"company"`
	Client    generatedParty  `json:"client"`
	Items     []generatedItem `json:"items"`
	Currency  string          `json:"currency"`
	IssueDate string          `json:"issue_date"`
	DueDate   string          `json:"due_date"`
	Notes     string          `json:"notes"`
	TaxRate   float64         `json:"tax_rate"`
}

// decodeDraft maps the model's JSON onto a draft. Output that is not JSON
// or has no usable line items counts as an upstream failure.
func decodeDraft(content string) (*invoicedomain.Draft, error) {
	content = stripCodeFence(content)

	var out generatedInvoice
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: malformed draft: %v", domain.ErrUpstream, err)
	}

	draft := invoicedomain.Draft{
		Company:  invoicedomain.Company{Name: out.Company.Name, Email: out.Company.Email, Address: out.Company.Address},
		Client:   invoicedomain.Client{Name: out.Client.Name, Email: out.Client.Email, Address: out.Client.Address},
		Currency: out.Currency,
		Notes:    out.Notes,
		TaxRate:  out.TaxRate,
	}
	if draft.Currency == "" {
		draft.Currency = "USD"
	}
	if draft.TaxRate < 0 || draft.TaxRate > 100 {
		draft.TaxRate = 0
	}
	draft.IssueDate = parseDate(out.IssueDate)
	draft.DueDate = parseDate(out.DueDate)

	for _, item := range out.Items {
		if strings.TrimSpace(item.Description) == "" || item.Quantity <= 0 || item.UnitPrice < 0 {
			continue
		}
		draft.Items = append(draft.Items, invoicedomain.LineItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   int64(math.Round(item.UnitPrice * 100)),
		})
	}
	if len(draft.Items) == 0 {
		return nil, fmt.Errorf("%w: draft has no line items", domain.ErrUpstream)
	}

	draft = draft.Normalize()
	return &draft, nil
}

func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func looksLikeHTML(document string) bool {
	lower := strings.ToLower(document)
	if !strings.HasPrefix(strings.TrimSpace(lower), "<") {
		return false
	}
	for _, tag := range []string{"<html", "<body", "<div", "<p", "<table", "<h1", "<ul", "<!doctype"} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}
