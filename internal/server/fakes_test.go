package server

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/invoicely/internal/audit/domain"
	authdomain "github.com/smallbiznis/invoicely/internal/auth/domain"
	"github.com/smallbiznis/invoicely/internal/authorization"
	billingdomain "github.com/smallbiznis/invoicely/internal/billing/domain"
	blogdomain "github.com/smallbiznis/invoicely/internal/blog/domain"
	"github.com/smallbiznis/invoicely/internal/config"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	"github.com/smallbiznis/invoicely/internal/observability"
	publicinvoicedomain "github.com/smallbiznis/invoicely/internal/publicinvoice/domain"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	"github.com/smallbiznis/invoicely/internal/ratelimit"
	userdomain "github.com/smallbiznis/invoicely/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testUserID = snowflake.ID(4200)

var testResetDate = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

// fakeVerifier accepts "good" and "admin" tokens.
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (userdomain.Identity, error) {
	switch token {
	case "good":
		return userdomain.Identity{Subject: "auth0|alice"}, nil
	case "admin":
		return userdomain.Identity{Subject: "auth0|root", Role: authorization.RoleAdmin}, nil
	default:
		return userdomain.Identity{}, authdomain.ErrInvalidToken
	}
}

type fakeUserService struct {
	ensured int
	prefs   userdomain.UpdatePreferencesRequest
}

func (f *fakeUserService) EnsureUser(_ context.Context, identity userdomain.Identity) (*userdomain.User, error) {
	f.ensured++
	return &userdomain.User{ID: testUserID, ExternalID: identity.Subject}, nil
}

func (f *fakeUserService) GetByExternalID(context.Context, string) (*userdomain.User, error) {
	return nil, userdomain.ErrUserNotFound
}

func (f *fakeUserService) GetByID(_ context.Context, id snowflake.ID) (*userdomain.User, error) {
	return &userdomain.User{ID: id}, nil
}

func (f *fakeUserService) GetPreferences(_ context.Context, userID snowflake.ID) (*userdomain.Preferences, error) {
	return &userdomain.Preferences{UserID: userID, DefaultCurrency: "USD", InvoicePrefix: "INV"}, nil
}

func (f *fakeUserService) UpsertPreferences(_ context.Context, userID snowflake.ID, req userdomain.UpdatePreferencesRequest) (*userdomain.Preferences, error) {
	if req.DefaultCurrency == "XX" {
		return nil, userdomain.ErrInvalidCurrency
	}
	f.prefs = req
	return &userdomain.Preferences{UserID: userID, DefaultCurrency: req.DefaultCurrency, InvoicePrefix: req.InvoicePrefix}, nil
}

type adjustment struct {
	userID snowflake.ID
	kind   quotadomain.Kind
	delta  int
}

type fakeQuotaService struct {
	status      quotadomain.Status
	adjustments []adjustment
}

func (f *fakeQuotaService) CheckAndReserve(context.Context, snowflake.ID, quotadomain.Kind) (quotadomain.Decision, *quotadomain.Reservation, error) {
	return quotadomain.Decision{}, nil, nil
}

func (f *fakeQuotaService) RecordSuccess(context.Context, *quotadomain.Reservation) error { return nil }

func (f *fakeQuotaService) Release(context.Context, *quotadomain.Reservation) error { return nil }

func (f *fakeQuotaService) Guard(ctx context.Context, _ snowflake.ID, _ quotadomain.Kind, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeQuotaService) GetStatus(context.Context, snowflake.ID, quotadomain.Kind) (quotadomain.Status, error) {
	return f.status, nil
}

func (f *fakeQuotaService) AddToLimit(_ context.Context, userID snowflake.ID, kind quotadomain.Kind, delta int) error {
	if delta < 0 {
		return quotadomain.ErrInvalidDelta
	}
	f.adjustments = append(f.adjustments, adjustment{userID: userID, kind: kind, delta: delta})
	return nil
}

func (f *fakeQuotaService) AddToLimitTx(ctx context.Context, _ *gorm.DB, userID snowflake.ID, kind quotadomain.Kind, delta int) error {
	return f.AddToLimit(ctx, userID, kind, delta)
}

type fakeInvoiceService struct {
	createErr error
	invoice   *invoicedomain.Invoice
	lastList  invoicedomain.ListInvoiceRequest
}

func (f *fakeInvoiceService) Create(_ context.Context, userID snowflake.ID, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &invoicedomain.Invoice{ID: 77, UserID: userID, InvoiceNumber: "INV-0001", Currency: req.Currency}, nil
}

func (f *fakeInvoiceService) List(_ context.Context, _ snowflake.ID, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	f.lastList = req
	return invoicedomain.ListInvoiceResponse{Invoices: []invoicedomain.Invoice{}}, nil
}

func (f *fakeInvoiceService) Get(_ context.Context, userID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	if f.invoice == nil || f.invoice.ID != invoiceID || f.invoice.UserID != userID {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return f.invoice, nil
}

func (f *fakeInvoiceService) Update(ctx context.Context, userID, invoiceID snowflake.ID, _ invoicedomain.UpdateInvoiceRequest) (*invoicedomain.Invoice, error) {
	return f.Get(ctx, userID, invoiceID)
}

func (f *fakeInvoiceService) Delete(ctx context.Context, userID, invoiceID snowflake.ID) error {
	_, err := f.Get(ctx, userID, invoiceID)
	return err
}

func (f *fakeInvoiceService) GetLimits(context.Context, snowflake.ID) (invoicedomain.Limits, error) {
	return invoicedomain.Limits{Limit: 5, Usage: 2, CanCreateInvoice: true, Remaining: 3}, nil
}

func (f *fakeInvoiceService) RenderHTML(context.Context, *invoicedomain.Invoice) (string, error) {
	return "<html></html>", nil
}

type fakePublicInvoiceService struct {
	lastTTL time.Duration
}

func (f *fakePublicInvoiceService) Share(_ context.Context, _, _ snowflake.ID, ttl time.Duration) (publicinvoicedomain.ShareResult, error) {
	f.lastTTL = ttl
	return publicinvoicedomain.ShareResult{Token: "tok", ExpiresAt: testResetDate}, nil
}

func (f *fakePublicInvoiceService) Revoke(context.Context, snowflake.ID, snowflake.ID) error {
	return nil
}

func (f *fakePublicInvoiceService) GetPublic(_ context.Context, token string) (*publicinvoicedomain.PublicInvoiceView, error) {
	if token != "tok" {
		return nil, publicinvoicedomain.ErrPublicInvoiceNotFound
	}
	return &publicinvoicedomain.PublicInvoiceView{InvoiceNumber: "INV-0001"}, nil
}

func (f *fakePublicInvoiceService) DownloadPublicPDF(_ context.Context, token string) (*publicinvoicedomain.PDF, error) {
	if token != "tok" {
		return nil, publicinvoicedomain.ErrPublicInvoiceNotFound
	}
	return &publicinvoicedomain.PDF{FileName: "inv-0001-globex.pdf", Content: []byte("%PDF-1.7")}, nil
}

type fakeAIService struct {
	err   error
	calls int
}

func (f *fakeAIService) GenerateInvoice(context.Context, snowflake.ID, string) (*invoicedomain.Draft, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &invoicedomain.Draft{Client: invoicedomain.Client{Name: "Globex"}, Currency: "USD"}, nil
}

func (f *fakeAIService) Summarize(context.Context, snowflake.ID, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "- pay by June 30", nil
}

type fakeBillingService struct {
	result billingdomain.Result
	err    error
}

func (f *fakeBillingService) HandleWebhook(context.Context, []byte, string) (billingdomain.Result, error) {
	return f.result, f.err
}

type fakeBlogService struct{}

func (fakeBlogService) List(_ context.Context, page int) (*blogdomain.PostList, error) {
	if page < 1 {
		return nil, blogdomain.ErrInvalidPage
	}
	return &blogdomain.PostList{Page: page}, nil
}

func (fakeBlogService) Get(context.Context, string) (*blogdomain.Post, error) {
	return nil, blogdomain.ErrCMSUnavailable
}

// fakeAuthz grants everything to admins.
type fakeAuthz struct{}

func (fakeAuthz) Authorize(_ context.Context, actor authorization.Actor, _ string, _ string) error {
	if actor.Role != authorization.RoleAdmin {
		return authorization.ErrForbidden
	}
	return nil
}

type fakeAuditService struct {
	entries []auditdomain.Entry
	lastReq auditdomain.ListAuditLogRequest
}

func (f *fakeAuditService) Record(_ context.Context, entry auditdomain.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditService) RecordTx(ctx context.Context, _ *gorm.DB, entry auditdomain.Entry) error {
	return f.Record(ctx, entry)
}

func (f *fakeAuditService) List(_ context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.lastReq = req
	logs := make([]auditdomain.AuditLog, 0, len(f.entries))
	for i, entry := range f.entries {
		logs = append(logs, auditdomain.AuditLog{ID: snowflake.ID(i + 1), ActorType: string(entry.ActorType), Action: entry.Action})
	}
	return auditdomain.ListAuditLogResponse{AuditLogs: logs}, nil
}

type fakePDF struct{}

func (fakePDF) RenderInvoice(_ context.Context, inv *invoicedomain.Invoice) ([]byte, string, error) {
	return []byte("%PDF-1.7 " + inv.InvoiceNumber), "inv-0001.pdf", nil
}

type testServer struct {
	*Server
	users    *fakeUserService
	quota    *fakeQuotaService
	invoices *fakeInvoiceService
	public   *fakePublicInvoiceService
	ai       *fakeAIService
	billing  *fakeBillingService
	audit    *fakeAuditService
}

func newTestServer(limiter *ratelimit.Limiter) *testServer {
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		users: &fakeUserService{},
		quota: &fakeQuotaService{status: quotadomain.Status{
			CanUse: true, Remaining: 7, Limit: 10, CurrentUsage: 3,
			NextResetDate: testResetDate, UsagePercentage: 30,
		}},
		invoices: &fakeInvoiceService{},
		public:   &fakePublicInvoiceService{},
		ai:       &fakeAIService{},
		billing:  &fakeBillingService{},
		audit:    &fakeAuditService{},
	}
	ts.Server = NewServer(ServerParams{
		Gin:              NewEngine(observability.Config{}, nil),
		Cfg:              config.Config{Environment: "test"},
		Log:              zap.NewNop(),
		Verifier:         fakeVerifier{},
		AuthzSvc:         fakeAuthz{},
		UserSvc:          ts.users,
		QuotaSvc:         ts.quota,
		InvoiceSvc:       ts.invoices,
		PublicInvoiceSvc: ts.public,
		AISvc:            ts.ai,
		BillingSvc:       ts.billing,
		BlogSvc:          fakeBlogService{},
		PDF:              fakePDF{},
		AuditSvc:         ts.audit,
		Limiter:          limiter,
	})
	return ts
}
