package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/invoicely/internal/ai/domain"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	quotarepo "github.com/smallbiznis/invoicely/internal/quota/repository"
	quotaservice "github.com/smallbiznis/invoicely/internal/quota/service"
	userdomain "github.com/smallbiznis/invoicely/internal/user/domain"
	userrepo "github.com/smallbiznis/invoicely/internal/user/repository"
	userservice "github.com/smallbiznis/invoicely/internal/user/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

type stubCompleter struct {
	reply string
	err   error
	last  domain.CompletionRequest
	calls int
}

func (s *stubCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	s.calls++
	s.last = req
	return s.reply, s.err
}

type fixture struct {
	db        *gorm.DB
	quota     *quotaservice.Service
	completer *stubCompleter
	svc       *Service
	userID    snowflake.ID
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:ai_memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&userdomain.User{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	users := userservice.NewService(userservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Plans: config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
		Repo:  userrepo.Provide(),
	})
	user, err := users.EnsureUser(context.Background(), userdomain.Identity{Subject: "auth0|ai"})
	require.NoError(t, err)

	quota := quotaservice.NewService(quotaservice.Params{DB: db, Log: log, Clock: clk, Repo: quotarepo.Provide()})
	completer := &stubCompleter{}
	svc := NewService(Params{Log: log, Quota: quota, Completer: completer})
	return &fixture{db: db, quota: quota, completer: completer, svc: svc, userID: user.ID}
}

func (f *fixture) promptUsage(t *testing.T) int {
	t.Helper()
	status, err := f.quota.GetStatus(context.Background(), f.userID, quotadomain.KindPrompt)
	require.NoError(t, err)
	return status.CurrentUsage
}

func TestGenerateInvoiceDecodesDraft(t *testing.T) {
	f := setup(t)
	f.completer.reply = "```json\n" + `{
		"company": {"name": "Acme"},
		"client": {"name": "Globex", "email": "ap@globex.test"},
		"items": [
			{"description": "Website redesign", "quantity": 1, "unit_price": 1200.5},
			{"description": "", "quantity": 1, "unit_price": 10}
		],
		"currency": "eur",
		"issue_date": "2024-06-01",
		"due_date": "2024-06-30",
		"tax_rate": 20
	}` + "\n```"

	draft, err := f.svc.GenerateInvoice(context.Background(), f.userID, "Invoice Globex for the website redesign")
	require.NoError(t, err)
	assert.Equal(t, "Globex", draft.Client.Name)
	assert.Equal(t, "EUR", draft.Currency)
	require.Len(t, draft.Items, 1)
	assert.Equal(t, int64(120050), draft.Items[0].UnitPrice)
	require.NotNil(t, draft.DueDate)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), *draft.DueDate)
	assert.Equal(t, float64(20), draft.TaxRate)
	assert.True(t, f.completer.last.JSON)
	assert.Equal(t, 1, f.promptUsage(t))
}

func TestGenerateInvoiceMalformedOutputReleasesQuota(t *testing.T) {
	f := setup(t)
	f.completer.reply = "Sure! Here is your invoice."

	_, err := f.svc.GenerateInvoice(context.Background(), f.userID, "Invoice Globex")
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, 0, f.promptUsage(t))

	var reserved int
	require.NoError(t, f.db.Raw("SELECT reserved_prompts FROM users WHERE id = ?", f.userID).Scan(&reserved).Error)
	assert.Zero(t, reserved)
}

func TestGenerateInvoiceUpstreamErrorReleasesQuota(t *testing.T) {
	f := setup(t)
	f.completer.err = fmt.Errorf("%w: status 503", domain.ErrUpstream)

	_, err := f.svc.GenerateInvoice(context.Background(), f.userID, "Invoice Globex")
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, 0, f.promptUsage(t))
}

func TestEmptyInputSkipsQuota(t *testing.T) {
	f := setup(t)

	_, err := f.svc.GenerateInvoice(context.Background(), f.userID, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyPrompt)
	_, err = f.svc.Summarize(context.Background(), f.userID, "")
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
	assert.Zero(t, f.completer.calls)
	assert.Equal(t, 0, f.promptUsage(t))
}

func TestGenerateInvoiceDeniedAtLimit(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Exec("UPDATE users SET current_prompt_usage = monthly_prompt_limit WHERE id = ?", f.userID).Error)

	_, err := f.svc.GenerateInvoice(context.Background(), f.userID, "Invoice Globex")
	require.Error(t, err)
	assert.True(t, errors.Is(err, quotadomain.ErrQuotaExceeded))
	assert.Zero(t, f.completer.calls)
}

func TestSummarizeConvertsHTML(t *testing.T) {
	f := setup(t)
	f.completer.reply = "- Pay 500 EUR by June 30"

	summary, err := f.svc.Summarize(context.Background(), f.userID,
		"<html><body><h1>Contract</h1><p>Client pays <strong>500 EUR</strong> by June 30.</p></body></html>")
	require.NoError(t, err)
	assert.Equal(t, "- Pay 500 EUR by June 30", summary)

	sent := f.completer.last.Messages[1].Content
	assert.Contains(t, sent, "# Contract")
	assert.Contains(t, sent, "**500 EUR**")
	assert.NotContains(t, sent, "<p>")
	assert.Equal(t, 1, f.promptUsage(t))
}

func TestSummarizeEmptyReplyIsUpstreamFailure(t *testing.T) {
	f := setup(t)
	f.completer.reply = "  "

	_, err := f.svc.Summarize(context.Background(), f.userID, "Plain text contract")
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, 0, f.promptUsage(t))
}
