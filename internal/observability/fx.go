package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/invoicely/internal/observability/logger"
	"github.com/smallbiznis/invoicely/internal/observability/metrics"
	"github.com/smallbiznis/invoicely/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		splitConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		provideCollectors,
	),
	fx.Invoke(func(_ *sdktrace.TracerProvider) {}),
)

type componentConfigs struct {
	fx.Out

	Logger  logger.Config
	Tracing tracing.Config
	Metrics metrics.Config
}

// splitConfig fans the environment out to each signal's own config.
func splitConfig(cfg Config) componentConfigs {
	return componentConfigs{
		Logger: logger.Config{
			ServiceName:         cfg.ServiceName,
			Environment:         cfg.Environment,
			Version:             cfg.Version,
			Level:               cfg.LogLevel,
			Format:              cfg.LogFormat,
			Debug:               cfg.Debug(),
			IncludeCaller:       true,
			IncludeStackOnError: cfg.Debug(),
		},
		Tracing: tracing.Config{
			Enabled:          cfg.OtelEnabled,
			ServiceName:      cfg.ServiceName,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			SamplingRatio:    cfg.OtelSamplingRatio,
		},
		Metrics: metrics.Config{
			Enabled:          cfg.OtelEnabled,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		},
	}
}

type collectors struct {
	fx.Out

	Quota *metrics.QuotaMetrics
	HTTP  *metrics.HTTPMetrics
}

func provideCollectors(cfg metrics.Config) collectors {
	return collectors{
		Quota: metrics.NewQuotaMetrics(prometheus.DefaultRegisterer, cfg),
		HTTP:  metrics.NewHTTPMetrics(prometheus.DefaultRegisterer, cfg),
	}
}
