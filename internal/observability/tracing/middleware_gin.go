package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invoicely/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const serverTracerName = "invoicely/http"

// GinMiddleware opens one server span per request. The span is renamed to
// the matched route once the handler chain has run, and carries the caller
// and the quota kind the handler consumed.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(serverTracerName)
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = withRequestBaggage(ctx, span)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(requestAttributes(c, route, status, time.Since(start))...)...)
		finishSpan(span, c, status)
	}
}

func withRequestBaggage(ctx context.Context, span trace.Span) context.Context {
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	span.SetAttributes(attribute.String("request_id", requestID))
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// requestAttributes reads the request context after the handlers ran, so the
// user and quota kind set by auth and the quota handlers are visible.
func requestAttributes(c *gin.Context, route string, status int, elapsed time.Duration) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
		attribute.Int64("http.server_duration_ms", elapsed.Milliseconds()),
	}
	ctx := c.Request.Context()
	if userID := obscontext.UserIDFromContext(ctx); userID != "" {
		attrs = append(attrs, attribute.String("invoicely.user_id", userID))
	}
	if kind := obscontext.QuotaKindFromContext(ctx); kind != "" {
		attrs = append(attrs, attribute.String("invoicely.quota_kind", kind))
	}
	return attrs
}

func finishSpan(span trace.Span, c *gin.Context, status int) {
	switch {
	case status == http.StatusTooManyRequests:
		// Quota and burst denials are expected outcomes, not span errors.
		reason := c.Writer.Header().Get("X-Rate-Limited-Reason")
		if reason == "" {
			reason = "quota_exceeded"
		}
		span.AddEvent("request.denied", trace.WithAttributes(attribute.String("reason", reason)))
	case status >= http.StatusInternalServerError:
		if lastErr := c.Errors.Last(); lastErr != nil {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
