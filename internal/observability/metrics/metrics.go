package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	counterQuotaDecisions   = "invoicely_quota_decisions_total"
	counterPaymentEvents    = "invoicely_payment_events_total"
	counterRateLimitAllowed = "invoicely_rate_limit_allowed_total"
	counterRateLimitDenied  = "invoicely_rate_limit_denied_total"
	counterAICalls          = "invoicely_ai_calls_total"
	counterPDFRenders       = "invoicely_pdf_renders_total"
)

// Metrics holds the OpenTelemetry counters for ledger decisions and the
// outbound work that sits behind them. A nil *Metrics records nothing.
type Metrics struct {
	counters map[string]metric.Int64Counter
}

// New creates every counter on the service meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "invoicely"
	}
	meter := provider.Meter(name)

	names := []string{
		counterQuotaDecisions,
		counterPaymentEvents,
		counterRateLimitAllowed,
		counterRateLimitDenied,
		counterAICalls,
		counterPDFRenders,
	}
	m := &Metrics{counters: make(map[string]metric.Int64Counter, len(names))}
	for _, counterName := range names {
		counter, err := meter.Int64Counter(counterName)
		if err != nil {
			return nil, err
		}
		m.counters[counterName] = counter
	}
	return m, nil
}

func (m *Metrics) inc(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	counter, ok := m.counters[name]
	if !ok {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func (m *Metrics) RecordQuotaDecision(ctx context.Context, kind string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.inc(ctx, counterQuotaDecisions, label("kind", kind), label("outcome", outcome))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	m.inc(ctx, counterPaymentEvents, label("provider", provider), label("event_type", eventType))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	m.inc(ctx, counterRateLimitAllowed, label("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.inc(ctx, counterRateLimitDenied, label("endpoint", endpoint), label("reason", reason))
}

func (m *Metrics) RecordAICall(ctx context.Context, operation string, err error) {
	m.inc(ctx, counterAICalls, label("operation", operation), label("outcome", outcomeOf(err)))
}

func (m *Metrics) RecordPDFRender(ctx context.Context, renderer string, err error) {
	m.inc(ctx, counterPDFRenders, label("renderer", renderer), label("outcome", outcomeOf(err)))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// allowedLabelKeys bounds series cardinality; user and invoice ids never
// become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":       {},
	"outcome":    {},
	"endpoint":   {},
	"provider":   {},
	"event_type": {},
	"reason":     {},
	"operation":  {},
	"renderer":   {},
}

// FilterAttributes drops labels outside the allow list.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
