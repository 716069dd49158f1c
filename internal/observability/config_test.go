package observability

import (
	"testing"

	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFallsBackToAppConfig(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "")

	cfg := LoadConfig(config.Config{Environment: "production", AppVersion: "1.2.3", OTLPEndpoint: "collector:4317"})

	assert.Equal(t, "invoicely", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigReadsOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "4")

	cfg := LoadConfig(config.Config{AppName: "billing-api", Environment: "production"})

	assert.Equal(t, "billing-api", cfg.ServiceName)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())
}
