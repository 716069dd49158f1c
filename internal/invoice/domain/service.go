package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
)

type ListInvoiceRequest struct {
	pagination.Pagination
	Status Status `form:"status"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateInvoiceRequest) (*Invoice, error)
	List(ctx context.Context, userID snowflake.ID, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Get(ctx context.Context, userID, invoiceID snowflake.ID) (*Invoice, error)
	Update(ctx context.Context, userID, invoiceID snowflake.ID, req UpdateInvoiceRequest) (*Invoice, error)
	Delete(ctx context.Context, userID, invoiceID snowflake.ID) error
	GetLimits(ctx context.Context, userID snowflake.ID) (Limits, error)
	RenderHTML(ctx context.Context, invoice *Invoice) (string, error)
}

var (
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrDuplicateNumber     = errors.New("duplicate_invoice_number")
	ErrRendererUnavailable = errors.New("renderer_not_configured")
)
