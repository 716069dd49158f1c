package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	QuotaOutcomeAllowed  = "allowed"
	QuotaOutcomeDenied   = "denied"
	QuotaOutcomeCommit   = "committed"
	QuotaOutcomeReleased = "released"
	QuotaOutcomeReset    = "reset"
)

// QuotaMetrics exposes monthly quota activity on /metrics.
type QuotaMetrics struct {
	decisions   *prometheus.CounterVec
	adjustments *prometheus.CounterVec
	usageRatio  *prometheus.HistogramVec
}

func NewQuotaMetrics(registerer prometheus.Registerer, cfg Config) *QuotaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &QuotaMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "invoicely_quota_events_total",
			Help:        "Quota guard events by resource kind and outcome.",
			ConstLabels: labels,
		}, []string{"kind", "outcome"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "invoicely_quota_limit_added_total",
			Help:        "Capacity added to monthly limits by resource kind and source.",
			ConstLabels: labels,
		}, []string{"kind", "source"}),
		usageRatio: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "invoicely_quota_usage_percentage",
			Help:        "Usage percentage observed when status is reported.",
			ConstLabels: labels,
			Buckets:     []float64{25, 50, 75, 90, 100},
		}, []string{"kind"}),
	}

	m.decisions = registerOrExisting(registerer, m.decisions)
	m.adjustments = registerOrExisting(registerer, m.adjustments)
	m.usageRatio = registerOrExisting(registerer, m.usageRatio)
	return m
}

func (m *QuotaMetrics) Observe(kind, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(strings.TrimSpace(kind), outcome).Inc()
}

func (m *QuotaMetrics) AddLimit(kind, source string, delta int) {
	if m == nil || delta <= 0 {
		return
	}
	m.adjustments.WithLabelValues(strings.TrimSpace(kind), strings.TrimSpace(source)).Add(float64(delta))
}

func (m *QuotaMetrics) ObserveUsage(kind string, percentage int) {
	if m == nil {
		return
	}
	m.usageRatio.WithLabelValues(strings.TrimSpace(kind)).Observe(float64(percentage))
}

func constLabels(cfg Config) prometheus.Labels {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "invoicely"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "environment": env}
}

// registerOrExisting tolerates double registration when fx graphs are
// rebuilt in tests against the default registry.
func registerOrExisting[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return collector
}
