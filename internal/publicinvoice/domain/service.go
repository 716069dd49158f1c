package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
)

type Service interface {
	// Share returns the raw token once. Only its hash is stored.
	Share(ctx context.Context, userID, invoiceID snowflake.ID, ttl time.Duration) (ShareResult, error)
	Revoke(ctx context.Context, userID, invoiceID snowflake.ID) error
	GetPublic(ctx context.Context, token string) (*PublicInvoiceView, error)
	DownloadPublicPDF(ctx context.Context, token string) (*PDF, error)
}

// PDFRenderer turns an invoice into a downloadable document.
type PDFRenderer interface {
	RenderInvoice(ctx context.Context, invoice *invoicedomain.Invoice) (content []byte, fileName string, err error)
}

type ShareResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PDF struct {
	FileName string
	Content  []byte
}

type PublicInvoiceItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   int64   `json:"unit_price"`
	Amount      int64   `json:"amount"`
}

// PublicInvoiceView is the read-only projection served to link holders. It
// carries no owner or storage identifiers.
type PublicInvoiceView struct {
	InvoiceNumber string                `json:"invoice_number"`
	Status        string                `json:"status"`
	IssueDate     string                `json:"issue_date"`
	DueDate       string                `json:"due_date,omitempty"`
	Company       invoicedomain.Company `json:"company"`
	Client        invoicedomain.Client  `json:"client"`
	Currency      string                `json:"currency"`
	Subtotal      int64                 `json:"subtotal"`
	TaxRate       float64               `json:"tax_rate"`
	TaxAmount     int64                 `json:"tax_amount"`
	Total         int64                 `json:"total"`
	Notes         string                `json:"notes,omitempty"`
	Items         []PublicInvoiceItem   `json:"items"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
}

var (
	ErrPublicInvoiceNotFound = errors.New("public_invoice_not_found")
	ErrInvalidTTL            = errors.New("invalid_ttl")
)
