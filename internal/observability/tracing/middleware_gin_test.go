package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invoicely/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordedEngine(t *testing.T, handler gin.HandlerFunc) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	engine := gin.New()
	engine.Use(GinMiddleware())
	engine.POST("/api/invoices", func(c *gin.Context) {
		ctx := obscontext.WithUserID(c.Request.Context(), "42")
		c.Request = c.Request.WithContext(obscontext.WithQuotaKind(ctx, "invoice"))
		handler(c)
	})
	return engine, recorder
}

func spanAttr(attrs []attribute.KeyValue, key string) (string, bool) {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.Emit(), true
		}
	}
	return "", false
}

func TestGinMiddlewareNamesSpanByRoute(t *testing.T) {
	engine, recorder := newRecordedEngine(t, func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /api/invoices", spans[0].Name())

	kind, ok := spanAttr(spans[0].Attributes(), "invoicely.quota_kind")
	assert.True(t, ok)
	assert.Equal(t, "invoice", kind)
	userID, _ := spanAttr(spans[0].Attributes(), "invoicely.user_id")
	assert.Equal(t, "42", userID)
}

func TestGinMiddlewareTreatsDenialAsEvent(t *testing.T) {
	engine, recorder := newRecordedEngine(t, func(c *gin.Context) {
		c.Status(http.StatusTooManyRequests)
	})

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "request.denied", spans[0].Events()[0].Name)
	assert.NotEqual(t, "Error", spans[0].Status().Code.String())
}
