package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	aidomain "github.com/smallbiznis/invoicely/internal/ai/domain"
	auditdomain "github.com/smallbiznis/invoicely/internal/audit/domain"
	billingdomain "github.com/smallbiznis/invoicely/internal/billing/domain"
	"github.com/smallbiznis/invoicely/internal/config"
	invoicedomain "github.com/smallbiznis/invoicely/internal/invoice/domain"
	quotadomain "github.com/smallbiznis/invoicely/internal/quota/domain"
	"github.com/smallbiznis/invoicely/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	ts.Engine().ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestStatusEndpointsRequireAuth(t *testing.T) {
	ts := newTestServer(nil)

	for _, path := range []string{"/api/prompt-usage", "/api/invoice-limits"} {
		resp := ts.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
		assert.Equal(t, "unauthorized", decodeError(t, resp).Type)

		resp = ts.do(http.MethodGet, path, "forged", "")
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}
	assert.Zero(t, ts.users.ensured)
}

func TestPromptUsageShape(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodGet, "/api/prompt-usage", "good", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{
		"canUse": true,
		"remainingPrompts": 7,
		"monthlyLimit": 10,
		"currentUsage": 3,
		"nextResetDate": "2024-07-01T00:00:00Z",
		"usagePercentage": 30
	}`, resp.Body.String())
	assert.Equal(t, 1, ts.users.ensured)
}

func TestInvoiceLimitsShape(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodGet, "/api/invoice-limits", "good", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"limit":5,"usage":2,"canCreateInvoice":true,"remaining":3}`, resp.Body.String())
}

func TestCreateInvoiceQuotaExceeded(t *testing.T) {
	ts := newTestServer(nil)
	ts.invoices.createErr = &quotadomain.ExceededError{
		Kind:          quotadomain.KindInvoice,
		Limit:         5,
		NextResetDate: testResetDate,
	}

	resp := ts.do(http.MethodPost, "/api/invoices", "good", `{"client":{"name":"Globex"}}`)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)

	payload := decodeError(t, resp)
	assert.Equal(t, "quota_exceeded", payload.Type)
	assert.Equal(t, "Monthly invoice limit of 5 reached. Resets on 2024-07-01.", payload.Message)
	require.NotNil(t, payload.Limit)
	assert.Equal(t, 5, *payload.Limit)
	assert.Equal(t, "2024-07-01T00:00:00Z", payload.NextResetDate)
	assert.Equal(t, "invoice", payload.Kind)
}

func TestCreateInvoiceReportsEveryValidationError(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodPost, "/api/invoices", "good", `{"company":{"name":"Acme"},"currency":"USD"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	var fields []string
	for _, entry := range payload.Errors {
		fields = append(fields, entry.Field)
	}
	assert.Contains(t, fields, "client_name")
	assert.Contains(t, fields, "items")
}

func TestCreateInvoice(t *testing.T) {
	ts := newTestServer(nil)

	body := `{"company":{"name":"Acme"},"client":{"name":"Globex"},"currency":"USD",
		"items":[{"description":"Design","quantity":1,"unit_price":5000}]}`
	resp := ts.do(http.MethodPost, "/api/invoices", "good", body)
	require.Equal(t, http.StatusCreated, resp.Code)

	var out struct {
		Data invoicedomain.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "INV-0001", out.Data.InvoiceNumber)
	assert.Equal(t, "77", out.Data.ID.String())
}

func TestListInvoicesRejectsOversizedPage(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodGet, "/api/invoices?page_size=500", "good", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.do(http.MethodGet, "/api/invoices?page_size=5&status=sent", "good", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 5, ts.invoices.lastList.PageSize)
	assert.Equal(t, invoicedomain.StatusSent, ts.invoices.lastList.Status)
}

func TestInvoiceNotOwnedIsNotFound(t *testing.T) {
	ts := newTestServer(nil)
	ts.invoices.invoice = &invoicedomain.Invoice{ID: 77, UserID: 1, InvoiceNumber: "INV-0001"}

	resp := ts.do(http.MethodGet, "/api/invoices/77", "good", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.do(http.MethodGet, "/api/invoices/not-a-number", "good", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDownloadInvoicePDF(t *testing.T) {
	ts := newTestServer(nil)
	ts.invoices.invoice = &invoicedomain.Invoice{ID: 77, UserID: testUserID, InvoiceNumber: "INV-0001"}

	resp := ts.do(http.MethodGet, "/api/invoices/77/pdf", "good", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="inv-0001.pdf"`, resp.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7 INV-0001", resp.Body.String())
}

func TestShareInvoiceTTL(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodPost, "/api/invoices/77/share", "good", "")
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Zero(t, ts.public.lastTTL)

	resp = ts.do(http.MethodPost, "/api/invoices/77/share", "good", `{"ttl_days":7}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, 7*24*time.Hour, ts.public.lastTTL)
	assert.Contains(t, resp.Body.String(), `"url":"/public/invoices/tok"`)

	resp = ts.do(http.MethodPost, "/api/invoices/77/share", "good", `{"ttl_days":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestPublicInvoiceRoutes(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodGet, "/public/invoices/tok", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "INV-0001")

	resp = ts.do(http.MethodGet, "/public/invoices/expired", "", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.do(http.MethodGet, "/public/invoices/tok/pdf", "", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `attachment; filename="inv-0001-globex.pdf"`, resp.Header().Get("Content-Disposition"))
}

func TestAIRoutes(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodPost, "/api/ai/summarize", "good", `{"document":"Contract"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":{"summary":"- pay by June 30"}}`, resp.Body.String())

	ts.ai.err = aidomain.ErrEmptyPrompt
	resp = ts.do(http.MethodPost, "/api/ai/generate-invoice", "good", `{"prompt":""}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "prompt", decodeError(t, resp).Errors[0].Field)

	ts.ai.err = aidomain.ErrUpstream
	resp = ts.do(http.MethodPost, "/api/ai/generate-invoice", "good", `{"prompt":"Invoice Globex"}`)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestAIRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Params{
		Cfg: config.Config{RateLimit: config.RateLimitConfig{AIRate: 0.01, AIBurst: 1}},
		Log: zap.NewNop(),
	})
	ts := newTestServer(limiter)

	resp := ts.do(http.MethodPost, "/api/ai/summarize", "good", `{"document":"Contract"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(http.MethodPost, "/api/ai/summarize", "good", `{"document":"Contract"}`)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "rate_limited", decodeError(t, resp).Type)
	assert.Equal(t, ratelimit.ReasonBurst, resp.Header().Get("X-Rate-Limited-Reason"))
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))
	assert.Equal(t, 1, ts.ai.calls)
}

func TestAdminQuotaRequiresRole(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodPost, "/admin/users/99/quota", "good", `{"kind":"prompt","delta":10}`)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = ts.do(http.MethodGet, "/admin/users/99/quota", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, ts.quota.adjustments)
}

func TestAdminQuotaAdjust(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodPost, "/admin/users/99/quota", "admin", `{"kind":"prompt","delta":10}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, ts.quota.adjustments, 1)
	assert.Equal(t, adjustment{userID: 99, kind: quotadomain.KindPrompt, delta: 10}, ts.quota.adjustments[0])
	require.Len(t, ts.audit.entries, 1)
	assert.Equal(t, auditdomain.ActionQuotaLimitAdjusted, ts.audit.entries[0].Action)
	assert.Equal(t, testUserID.String(), ts.audit.entries[0].ActorID)
	assert.Equal(t, "99", ts.audit.entries[0].TargetID)

	resp = ts.do(http.MethodPost, "/admin/users/99/quota", "admin", `{"kind":"storage","delta":10}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "quota_kind", decodeError(t, resp).Errors[0].Field)

	resp = ts.do(http.MethodGet, "/admin/users/99/quota", "admin", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"user_id":"99"`)
}

func TestAdminQuotaAuditList(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodGet, "/admin/users/99/quota/audit", "good", "")
	assert.Equal(t, http.StatusForbidden, resp.Code)

	ts.do(http.MethodPost, "/admin/users/99/quota", "admin", `{"kind":"invoice","delta":2}`)
	resp = ts.do(http.MethodGet, "/admin/users/99/quota/audit?page_size=10", "admin", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"action":"quota.limit_adjusted"`)
	assert.Equal(t, "99", ts.audit.lastReq.TargetID)
	assert.Equal(t, 10, ts.audit.lastReq.PageSize)

	resp = ts.do(http.MethodGet, "/admin/users/99/quota/audit?page_size=0", "admin", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStripeWebhook(t *testing.T) {
	ts := newTestServer(nil)

	ts.billing.err = billingdomain.ErrInvalidSignature
	resp := ts.do(http.MethodPost, "/api/webhooks/stripe", "", `{"id":"evt_1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	ts.billing.err = nil
	ts.billing.result = billingdomain.Result{EventID: "evt_1", Outcome: billingdomain.OutcomeDuplicate}
	resp = ts.do(http.MethodPost, "/api/webhooks/stripe", "", `{"id":"evt_1"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"received":true,"outcome":"duplicate"}`, resp.Body.String())
}

func TestBlogErrors(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodGet, "/api/blog?page=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.do(http.MethodGet, "/api/blog/hello", "", "")
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestPreferences(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodPut, "/api/preferences", "good", `{"default_currency":"XX"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "default_currency", decodeError(t, resp).Errors[0].Field)

	resp = ts.do(http.MethodPut, "/api/preferences", "good", `{"default_currency":"EUR","invoice_prefix":"ACME"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ACME", ts.users.prefs.InvoicePrefix)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(nil)

	resp := ts.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
