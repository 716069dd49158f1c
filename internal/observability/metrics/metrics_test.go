package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("kind", "prompt"),
		attribute.String("user_id", "456"),
		attribute.String("outcome", "allowed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatal("expected user_id to be dropped")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordQuotaDecision(context.Background(), "prompt", true)
	m.RecordAICall(context.Background(), "summarize", errors.New("boom"))

	var q *QuotaMetrics
	q.Observe("prompt", QuotaOutcomeAllowed)
	q.AddLimit("prompt", "stripe", 10)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "invoicely"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordPDFRender(context.Background(), "maroto", nil)
	m.RecordPaymentEvent(context.Background(), "stripe", "checkout.session.completed")
}

func TestQuotaMetricsCountsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewQuotaMetrics(registry, Config{ServiceName: "invoicely", Environment: "test"})

	m.Observe("prompt", QuotaOutcomeAllowed)
	m.Observe("prompt", QuotaOutcomeAllowed)
	m.Observe("invoice", QuotaOutcomeDenied)
	m.AddLimit("prompt", "stripe", 10)
	m.AddLimit("prompt", "stripe", 0)

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("prompt", QuotaOutcomeAllowed)); got != 2 {
		t.Fatalf("expected 2 allowed prompt decisions, got %v", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("invoice", QuotaOutcomeDenied)); got != 1 {
		t.Fatalf("expected 1 denied invoice decision, got %v", got)
	}
	if got := testutil.ToFloat64(m.adjustments.WithLabelValues("prompt", "stripe")); got != 10 {
		t.Fatalf("expected 10 added prompts, got %v", got)
	}
}

func TestQuotaMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewQuotaMetrics(registry, Config{})
	second := NewQuotaMetrics(registry, Config{})

	first.Observe("prompt", QuotaOutcomeCommit)
	second.Observe("prompt", QuotaOutcomeCommit)

	if got := testutil.ToFloat64(first.decisions.WithLabelValues("prompt", QuotaOutcomeCommit)); got != 2 {
		t.Fatalf("expected shared collector to count 2, got %v", got)
	}
}

func TestHTTPMiddlewareRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry, Config{ServiceName: "invoicely", Environment: "test"})

	router := gin.New()
	router.Use(GinMiddleware(m))
	router.GET("/api/prompt-usage", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/prompt-usage", nil))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var requests *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "invoicely_http_requests_total" {
			requests = family
		}
	}
	if requests == nil || len(requests.GetMetric()) != 1 {
		t.Fatalf("expected one request series, got %v", requests)
	}
	labels := map[string]string{}
	for _, pair := range requests.GetMetric()[0].GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	if labels["route"] != "/api/prompt-usage" || labels["status_code"] != "401" {
		t.Fatalf("unexpected labels %v", labels)
	}
}
