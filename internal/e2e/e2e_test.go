package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/invoicely/internal/ai"
	"github.com/smallbiznis/invoicely/internal/audit"
	"github.com/smallbiznis/invoicely/internal/auth"
	authdomain "github.com/smallbiznis/invoicely/internal/auth/domain"
	"github.com/smallbiznis/invoicely/internal/authorization"
	"github.com/smallbiznis/invoicely/internal/billing"
	"github.com/smallbiznis/invoicely/internal/blog"
	"github.com/smallbiznis/invoicely/internal/clock"
	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/smallbiznis/invoicely/internal/invoice"
	"github.com/smallbiznis/invoicely/internal/migration"
	"github.com/smallbiznis/invoicely/internal/observability"
	"github.com/smallbiznis/invoicely/internal/providers"
	"github.com/smallbiznis/invoicely/internal/publicinvoice"
	"github.com/smallbiznis/invoicely/internal/quota"
	"github.com/smallbiznis/invoicely/internal/ratelimit"
	"github.com/smallbiznis/invoicely/internal/server"
	"github.com/smallbiznis/invoicely/internal/user"
	"github.com/smallbiznis/invoicely/pkg/db"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	jwtSecret     = "e2e-jwt-secret"
	webhookSecret = "whsec_e2e_secret"
)

type testEnv struct {
	app     *fx.App
	server  *server.Server
	db      *gorm.DB
	baseURL string
	httpSrv *httptest.Server
	dataDir string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	dataDir, err := os.MkdirTemp("", "invoicely-e2e")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create data dir:", err)
		os.Exit(1)
	}
	setDefaultEnv(dataDir)

	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		_ = os.RemoveAll(dataDir)
		os.Exit(1)
	}
	env.dataDir = dataDir

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_StatusRequiresAuth(t *testing.T) {
	for _, path := range []string{"/api/prompt-usage", "/api/invoice-limits"} {
		resp, _ := doJSON(t, http.MethodGet, env.baseURL+path, nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}
}

func TestE2E_InvoiceQuotaExhaustion(t *testing.T) {
	token := userToken(t, "auth0|quota-"+testSuffix(t), "")

	for i := 0; i < 5; i++ {
		createInvoice(t, token)
	}

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/invoices", invoicePayload(), token)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after free quota, got %d: %s", resp.StatusCode, body)
	}
	var denied struct {
		Error struct {
			Type          string `json:"type"`
			Kind          string `json:"kind"`
			Limit         int    `json:"limit"`
			NextResetDate string `json:"next_reset_date"`
		} `json:"error"`
	}
	decode(t, body, &denied)
	if denied.Error.Type != "quota_exceeded" || denied.Error.Kind != "invoice" || denied.Error.Limit != 5 {
		t.Fatalf("unexpected quota error: %+v", denied.Error)
	}
	if _, err := time.Parse(time.RFC3339, denied.Error.NextResetDate); err != nil {
		t.Fatalf("reset date is not RFC3339: %q", denied.Error.NextResetDate)
	}

	var limits struct {
		Limit            int  `json:"limit"`
		Usage            int  `json:"usage"`
		CanCreateInvoice bool `json:"canCreateInvoice"`
		Remaining        int  `json:"remaining"`
	}
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/invoice-limits", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("invoice limits: %d: %s", resp.StatusCode, body)
	}
	decode(t, body, &limits)
	if limits.Limit != 5 || limits.Usage != 5 || limits.CanCreateInvoice || limits.Remaining != 0 {
		t.Fatalf("unexpected limits: %+v", limits)
	}
}

func TestE2E_CheckoutBonusIsIdempotentAndAudited(t *testing.T) {
	subject := "auth0|paid-" + testSuffix(t)
	token := userToken(t, subject, "")

	if got := promptLimit(t, token); got != 10 {
		t.Fatalf("expected free prompt limit 10, got %d", got)
	}

	eventID := "evt_" + testSuffix(t)
	payload := checkoutEvent(t, eventID, subject, "cus_"+testSuffix(t))
	if outcome := postWebhook(t, payload); outcome != "applied" {
		t.Fatalf("expected applied outcome, got %q", outcome)
	}
	if got := promptLimit(t, token); got != 20 {
		t.Fatalf("expected prompt limit 20 after checkout, got %d", got)
	}

	if outcome := postWebhook(t, payload); outcome != "duplicate" {
		t.Fatalf("expected duplicate outcome on replay, got %q", outcome)
	}
	if got := promptLimit(t, token); got != 20 {
		t.Fatalf("replay changed prompt limit to %d", got)
	}

	userID := lookupUserID(t, subject)
	if n := countRows(t, env.db, "audit_logs", "action = ? AND target_id = ?", "quota.limit_granted", userID.String()); n != 1 {
		t.Fatalf("expected one grant audit entry, got %d", n)
	}

	admin := userToken(t, "auth0|admin-"+testSuffix(t), authorization.RoleAdmin)
	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/admin/users/"+userID.String()+"/quota/audit", nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit list: %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), eventID) {
		t.Fatalf("audit list does not mention %s: %s", eventID, body)
	}
}

func TestE2E_AdminAdjustmentUnblocksUser(t *testing.T) {
	subject := "auth0|adjust-" + testSuffix(t)
	token := userToken(t, subject, "")
	for i := 0; i < 5; i++ {
		createInvoice(t, token)
	}
	userID := lookupUserID(t, subject)
	adjustURL := env.baseURL + "/admin/users/" + userID.String() + "/quota"
	adjust := map[string]any{"kind": "invoice", "delta": 2}

	resp, _ := doJSON(t, http.MethodPost, adjustURL, adjust, token)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin adjust: expected 403, got %d", resp.StatusCode)
	}

	admin := userToken(t, "auth0|admin-"+testSuffix(t), authorization.RoleAdmin)
	resp, body := doJSON(t, http.MethodPost, adjustURL, adjust, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin adjust: %d: %s", resp.StatusCode, body)
	}

	createInvoice(t, token)
	createInvoice(t, token)
	resp, _ = doJSON(t, http.MethodPost, env.baseURL+"/api/invoices", invoicePayload(), token)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the raised limit is used, got %d", resp.StatusCode)
	}

	if n := countRows(t, env.db, "audit_logs", "action = ? AND target_id = ?", "quota.limit_adjusted", userID.String()); n != 1 {
		t.Fatalf("expected one adjustment audit entry, got %d", n)
	}
}

func TestE2E_PublicShareLink(t *testing.T) {
	token := userToken(t, "auth0|share-"+testSuffix(t), "")
	invoiceID := createInvoice(t, token)
	shareURL := env.baseURL + "/api/invoices/" + invoiceID + "/share"

	resp, body := doJSON(t, http.MethodPost, shareURL, nil, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("share: %d: %s", resp.StatusCode, body)
	}
	var shared struct {
		Data struct {
			Token string `json:"token"`
			URL   string `json:"url"`
		} `json:"data"`
	}
	decode(t, body, &shared)
	if shared.Data.Token == "" {
		t.Fatalf("share returned no token: %s", body)
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+shared.Data.URL, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public view: %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"invoice_number"`) {
		t.Fatalf("public view has no invoice number: %s", body)
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+shared.Data.URL+"/pdf", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public pdf: %d: %s", resp.StatusCode, body)
	}
	if !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatalf("public pdf is not a PDF document")
	}

	resp, _ = doJSON(t, http.MethodDelete, shareURL, nil, token)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke: expected 204, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, env.baseURL+shared.Data.URL, nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("revoked link: expected 404, got %d", resp.StatusCode)
	}
}

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
	)

	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(1)
		}),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		providers.Module,
		user.Module,
		quota.Module,
		audit.Module,
		invoice.Module,
		publicinvoice.Module,
		ai.Module,
		billing.Module,
		blog.Module,
		auth.Module,
		authorization.Module,
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())
	return &testEnv{
		app:     app,
		server:  srv,
		db:      dbConn,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
	if e.dataDir != "" {
		_ = os.RemoveAll(e.dataDir)
	}
}

// setDefaultEnv points the app at a throwaway SQLite file and the Maroto
// renderer so the suite needs no external services. Values already set in
// the environment win.
func setDefaultEnv(dataDir string) {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("DATABASE_TYPE", "sqlite")
	setEnvIfEmpty("DATABASE_NAME", filepath.Join(dataDir, "e2e.db"))
	setEnvIfEmpty("PDF_RENDERER", "maroto")
	setEnvIfEmpty("RATE_LIMIT_ENABLED", "false")
	_ = os.Setenv("AUTH_JWT_SECRET", jwtSecret)
	_ = os.Setenv("AUTH_JWT_ISSUER", "")
	_ = os.Setenv("AUTH_JWT_AUDIENCE", "")
	_ = os.Setenv("STRIPE_WEBHOOK_SECRET", webhookSecret)
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func userToken(t *testing.T, subject, role string) string {
	t.Helper()
	claims := authdomain.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func invoicePayload() map[string]any {
	return map[string]any{
		"company":  map[string]any{"name": "Acme Studio"},
		"client":   map[string]any{"name": "Globex"},
		"currency": "USD",
		"items": []map[string]any{
			{"description": "Design work", "quantity": 2, "unit_price": 15000},
		},
	}
}

func createInvoice(t *testing.T, token string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/invoices", invoicePayload(), token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create invoice: %d: %s", resp.StatusCode, body)
	}
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	decode(t, body, &created)
	if created.Data.ID == "" {
		t.Fatalf("create invoice returned no id: %s", body)
	}
	return created.Data.ID
}

func promptLimit(t *testing.T, token string) int {
	t.Helper()
	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/prompt-usage", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("prompt usage: %d: %s", resp.StatusCode, body)
	}
	var usage struct {
		MonthlyLimit int `json:"monthlyLimit"`
	}
	decode(t, body, &usage)
	return usage.MonthlyLimit
}

func checkoutEvent(t *testing.T, eventID, subject, customerID string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        "checkout.session.completed",
		"api_version": "2025-03-31.basil",
		"created":     time.Now().Unix(),
		"data": map[string]any{"object": map[string]any{
			"id":                  "cs_" + eventID,
			"object":              "checkout.session",
			"client_reference_id": subject,
			"customer":            customerID,
			"metadata":            map[string]string{},
		}},
	})
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	return payload
}

func postWebhook(t *testing.T, payload []byte) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})

	req, err := http.NewRequest(http.MethodPost, env.baseURL+"/api/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)
	resp, body := send(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook: %d: %s", resp.StatusCode, body)
	}

	var ack struct {
		Received bool   `json:"received"`
		Outcome  string `json:"outcome"`
	}
	decode(t, body, &ack)
	if !ack.Received {
		t.Fatalf("webhook not acknowledged: %s", body)
	}
	return ack.Outcome
}

func lookupUserID(t *testing.T, subject string) snowflake.ID {
	t.Helper()
	var id int64
	if err := env.db.Table("users").Select("id").Where("external_id = ?", subject).Scan(&id).Error; err != nil {
		t.Fatalf("lookup user %s: %v", subject, err)
	}
	if id == 0 {
		t.Fatalf("user %s was not provisioned", subject)
	}
	return snowflake.ID(id)
}

func countRows(t *testing.T, dbConn *gorm.DB, table string, where string, args ...any) int64 {
	t.Helper()
	var count int64
	if err := dbConn.Table(table).Where(where, args...).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func doJSON(t *testing.T, method, reqURL string, payload any, token string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func decode(t *testing.T, body []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
}

func testSuffix(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
