package observability

import (
	"strings"

	"github.com/smallbiznis/invoicely/internal/config"
	"github.com/spf13/viper"
)

// Config is the observability slice of the environment. Values fall back to
// the application config where both name the same thing.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("deployment_env", cfg.Environment)
	v.SetDefault("service_version", cfg.AppVersion)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", cfg.OTLPEndpoint)
	v.SetDefault("otel_exporter_otlp_protocol", "grpc")
	v.SetDefault("otel_sampling_ratio", 0.1)

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "invoicely"
	}

	// The traces specific protocol wins over the shared one.
	protocol := v.GetString("otel_exporter_otlp_protocol")
	if traces := strings.TrimSpace(v.GetString("otel_exporter_otlp_traces_protocol")); traces != "" {
		protocol = traces
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("deployment_env")),
		Version:              strings.TrimSpace(v.GetString("service_version")),
		LogLevel:             lower(v.GetString("log_level")),
		LogFormat:            lower(v.GetString("log_format")),
		OtelEnabled:          v.GetBool("otel_enabled"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint")),
		OtelExporterProtocol: lower(protocol),
		OtelSamplingRatio:    clampRatio(v.GetFloat64("otel_sampling_ratio")),
	}
}

// Debug reports whether verbose diagnostics belong in logs.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func lower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func clampRatio(ratio float64) float64 {
	switch {
	case ratio < 0:
		return 0
	case ratio > 1:
		return 1
	default:
		return ratio
	}
}
