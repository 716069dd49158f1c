package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/invoice/render"
	publicinvoicedomain "github.com/smallbiznis/invoicely/internal/publicinvoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenBytes = 32
	maxTTL     = 365 * 24 * time.Hour
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Plans *config.PlanConfigHolder
	Repo  publicinvoicedomain.Repository
	PDF   publicinvoicedomain.PDFRenderer `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	plans *config.PlanConfigHolder
	repo  publicinvoicedomain.Repository
	pdf   publicinvoicedomain.PDFRenderer
}

func New(p Params) publicinvoicedomain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("publicinvoice.service"),
		clock: clk,
		plans: p.Plans,
		repo:  p.Repo,
		pdf:   p.PDF,
	}
}

// Share issues a fresh link for an owned invoice. Any earlier link stops
// working. A zero ttl uses the configured default.
func (s *Service) Share(ctx context.Context, userID, invoiceID snowflake.ID, ttl time.Duration) (publicinvoicedomain.ShareResult, error) {
	if invoiceID == 0 {
		return publicinvoicedomain.ShareResult{}, invoicedomain.ErrInvalidInvoiceID
	}
	if ttl == 0 {
		ttl = time.Duration(s.plans.Get().PublicLinkTTLDays) * 24 * time.Hour
	}
	if ttl < 0 || ttl > maxTTL {
		return publicinvoicedomain.ShareResult{}, publicinvoicedomain.ErrInvalidTTL
	}

	raw, err := generateToken()
	if err != nil {
		return publicinvoicedomain.ShareResult{}, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(ttl)
	updated, err := s.repo.SetToken(ctx, s.db, userID, invoiceID, hashToken(raw), expiresAt, now)
	if err != nil {
		return publicinvoicedomain.ShareResult{}, err
	}
	if !updated {
		return publicinvoicedomain.ShareResult{}, invoicedomain.ErrInvoiceNotFound
	}

	s.log.Info("invoice shared",
		zap.String("invoice_id", invoiceID.String()),
		zap.Time("expires_at", expiresAt),
	)
	return publicinvoicedomain.ShareResult{Token: raw, ExpiresAt: expiresAt}, nil
}

func (s *Service) Revoke(ctx context.Context, userID, invoiceID snowflake.ID) error {
	if invoiceID == 0 {
		return invoicedomain.ErrInvalidInvoiceID
	}
	updated, err := s.repo.ClearToken(ctx, s.db, userID, invoiceID, s.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		return invoicedomain.ErrInvoiceNotFound
	}
	return nil
}

func (s *Service) GetPublic(ctx context.Context, token string) (*publicinvoicedomain.PublicInvoiceView, error) {
	item, err := s.loadActive(ctx, token)
	if err != nil {
		return nil, err
	}
	return buildView(item), nil
}

func (s *Service) DownloadPublicPDF(ctx context.Context, token string) (*publicinvoicedomain.PDF, error) {
	item, err := s.loadActive(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.pdf == nil {
		return nil, invoicedomain.ErrRendererUnavailable
	}
	content, name, err := s.pdf.RenderInvoice(ctx, item)
	if err != nil {
		return nil, err
	}
	return &publicinvoicedomain.PDF{FileName: name, Content: content}, nil
}

// loadActive resolves a raw token to a shared invoice. Expired links are
// revoked on sight and reported as missing.
func (s *Service) loadActive(ctx context.Context, token string) (*invoicedomain.Invoice, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, publicinvoicedomain.ErrPublicInvoiceNotFound
	}

	hash := hashToken(token)
	item, err := s.repo.FindByTokenHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if item == nil || !item.IsPublic {
		return nil, publicinvoicedomain.ErrPublicInvoiceNotFound
	}

	now := s.clock.Now()
	if item.PublicExpiresAt != nil && !now.Before(*item.PublicExpiresAt) {
		if err := s.repo.RevokeByTokenHash(ctx, s.db, item.ID, hash, now); err != nil {
			s.log.Warn("failed to revoke expired public link",
				zap.String("invoice_id", item.ID.String()),
				zap.Error(err),
			)
		}
		return nil, publicinvoicedomain.ErrPublicInvoiceNotFound
	}
	return item, nil
}

func buildView(item *invoicedomain.Invoice) *publicinvoicedomain.PublicInvoiceView {
	issued := item.IssueDate
	view := &publicinvoicedomain.PublicInvoiceView{
		InvoiceNumber: item.InvoiceNumber,
		Status:        string(item.Status),
		IssueDate:     render.FormatDate(&issued),
		Company:       item.Company.Data(),
		Client:        item.Client.Data(),
		Currency:      item.Currency,
		Subtotal:      item.Subtotal,
		TaxRate:       item.TaxRate,
		TaxAmount:     item.TaxAmount,
		Total:         item.Total,
		Notes:         item.Notes,
		ExpiresAt:     item.PublicExpiresAt,
	}
	if item.DueDate != nil {
		view.DueDate = render.FormatDate(item.DueDate)
	}

	items := item.Items.Data()
	view.Items = make([]publicinvoicedomain.PublicInvoiceItem, 0, len(items))
	for _, li := range items {
		view.Items = append(view.Items, publicinvoicedomain.PublicInvoiceItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Amount:      li.Amount(),
		})
	}
	return view
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
