package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/clock"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/invoicely/internal/invoice/format"
	"github.com/smallbiznis/invoicely/internal/invoice/render"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	userdomain "github.com/smallbiznis/invoicely/internal/user/domain"
	"github.com/smallbiznis/invoicely/pkg/db"
	"github.com/smallbiznis/invoicely/pkg/db/pagination"
	"github.com/smallbiznis/invoicely/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxInvoiceNumberLength = 64

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Quota    quotadomain.Service
	Users    userdomain.Service
	Renderer render.Renderer `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	quota       quotadomain.Service
	users       userdomain.Service
	renderer    render.Renderer
	invoicerepo repository.Repository[invoicedomain.Invoice]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return newService(p)
}

func newService(p ServiceParam) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: clk,
		quota: p.Quota,
		users: p.Users,

		renderer:    p.Renderer,
		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

// Create validates the request, then inserts the invoice under the invoice
// quota. A failed insert releases the reserved unit.
func (s *Service) Create(ctx context.Context, userID snowflake.ID, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	draft, err := s.applyPreferences(ctx, userID, req.Draft.Normalize())
	if err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = invoicedomain.StatusDraft
	}
	number := strings.TrimSpace(req.InvoiceNumber)

	var errs []error
	if err := draft.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !status.Valid() {
		errs = append(errs, invoicedomain.ErrInvalidStatus)
	}
	if len(number) > maxInvoiceNumberLength {
		errs = append(errs, invoicedomain.ErrInvalidInvoiceNumber)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var created *invoicedomain.Invoice
	err = s.quota.Guard(ctx, userID, quotadomain.KindInvoice, func(ctx context.Context) error {
		now := s.clock.Now()
		issued := startOfDay(now)
		if draft.IssueDate != nil {
			issued = draft.IssueDate.UTC()
		}

		if number == "" {
			prefix, err := s.invoicePrefix(ctx, userID)
			if err != nil {
				return err
			}
			number, err = invoiceformat.FormatInvoiceNumber(invoiceformat.DefaultInvoiceNumberTemplate, prefix, issued)
			if err != nil {
				return err
			}
		}

		totals := invoicedomain.ComputeTotals(draft.Items, draft.TaxRate)
		item := &invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			UserID:        userID,
			InvoiceNumber: number,
			Status:        status,
			Currency:      draft.Currency,
			IssueDate:     issued,
			DueDate:       draft.DueDate,
			Notes:         draft.Notes,
			TaxRate:       draft.TaxRate,
			Company:       datatypes.NewJSONType(draft.Company),
			Client:        datatypes.NewJSONType(draft.Client),
			Items:         datatypes.NewJSONType(draft.Items),
			Subtotal:      totals.Subtotal,
			TaxAmount:     totals.TaxAmount,
			Total:         totals.Total,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.invoicerepo.Create(ctx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrDuplicateNumber
			}
			return err
		}
		created = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice created",
		zap.String("user_id", userID.String()),
		zap.String("invoice_id", created.ID.String()),
		zap.String("invoice_number", created.InvoiceNumber),
	)
	return created, nil
}

func (s *Service) List(ctx context.Context, userID snowflake.ID, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if req.Status != "" && !req.Status.Valid() {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
	}
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	options := []repository.QueryOption{
		repository.WithOrder("id DESC"),
		repository.WithLimit(pageSize + 1),
	}
	if cursor != nil {
		options = append(options, repository.WithCondition("id < ?", cursor.ID))
	}

	items, err := s.invoicerepo.Find(ctx, &invoicedomain.Invoice{UserID: userID, Status: req.Status}, options...)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	page, info, err := pagination.Trim(items, pageSize, func(item *invoicedomain.Invoice) int64 {
		return int64(item.ID)
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: info, Invoices: invoices}, nil
}

func (s *Service) Get(ctx context.Context, userID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	if invoiceID == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}
	item, err := s.invoicerepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID, UserID: userID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return item, nil
}

// Update replaces the editable content of an invoice. Edits do not consume
// quota.
func (s *Service) Update(ctx context.Context, userID, invoiceID snowflake.ID, req invoicedomain.UpdateInvoiceRequest) (*invoicedomain.Invoice, error) {
	existing, err := s.Get(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}

	draft := req.Draft.Normalize()
	status := req.Status
	if status == "" {
		status = existing.Status
	}

	var errs []error
	if err := draft.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !status.Valid() {
		errs = append(errs, invoicedomain.ErrInvalidStatus)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	issued := existing.IssueDate
	if draft.IssueDate != nil {
		issued = draft.IssueDate.UTC()
	}
	totals := invoicedomain.ComputeTotals(draft.Items, draft.TaxRate)

	values := map[string]any{
		"status":     status,
		"currency":   draft.Currency,
		"issue_date": issued,
		"due_date":   draft.DueDate,
		"notes":      draft.Notes,
		"tax_rate":   draft.TaxRate,
		"company":    datatypes.NewJSONType(draft.Company),
		"client":     datatypes.NewJSONType(draft.Client),
		"items":      datatypes.NewJSONType(draft.Items),
		"subtotal":   totals.Subtotal,
		"tax_amount": totals.TaxAmount,
		"total":      totals.Total,
		"updated_at": s.clock.Now(),
	}
	affected, err := s.invoicerepo.Update(ctx, &invoicedomain.Invoice{ID: invoiceID, UserID: userID}, values)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return s.Get(ctx, userID, invoiceID)
}

// Delete removes an owned invoice. Deleting does not give back the monthly
// unit the invoice consumed.
func (s *Service) Delete(ctx context.Context, userID, invoiceID snowflake.ID) error {
	if invoiceID == 0 {
		return invoicedomain.ErrInvalidInvoiceID
	}
	affected, err := s.invoicerepo.Delete(ctx, &invoicedomain.Invoice{ID: invoiceID, UserID: userID})
	if err != nil {
		return err
	}
	if affected == 0 {
		return invoicedomain.ErrInvoiceNotFound
	}
	return nil
}

func (s *Service) GetLimits(ctx context.Context, userID snowflake.ID) (invoicedomain.Limits, error) {
	status, err := s.quota.GetStatus(ctx, userID, quotadomain.KindInvoice)
	if err != nil {
		return invoicedomain.Limits{}, err
	}
	return invoicedomain.Limits{
		Limit:            status.Limit,
		Usage:            status.CurrentUsage,
		CanCreateInvoice: status.CanUse,
		Remaining:        status.Remaining,
	}, nil
}

// applyPreferences fills the currency, tax rate and issuing company from the
// user's saved defaults when the request leaves them empty.
func (s *Service) applyPreferences(ctx context.Context, userID snowflake.ID, draft invoicedomain.Draft) (invoicedomain.Draft, error) {
	if s.users == nil {
		return draft, nil
	}
	if draft.Currency != "" && draft.Company.Name != "" {
		return draft, nil
	}
	prefs, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		return draft, err
	}
	if draft.Currency == "" {
		draft.Currency = prefs.DefaultCurrency
		if draft.TaxRate == 0 {
			draft.TaxRate = prefs.DefaultTaxRate
		}
	}
	if draft.Company.Name == "" {
		draft.Company = prefs.Company.Data()
	}
	return draft, nil
}

func (s *Service) invoicePrefix(ctx context.Context, userID snowflake.ID) (string, error) {
	if s.users == nil {
		return userdomain.DefaultInvoicePrefix, nil
	}
	prefs, err := s.users.GetPreferences(ctx, userID)
	if err != nil {
		return "", err
	}
	return prefs.InvoicePrefix, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
