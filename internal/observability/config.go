package observability

import (
	"strings"

	"github.com/smallbiznis/payoutd/internal/config"
)

// Config is the telemetry slice of the app config, with identity fields
// resolved once for the logger, tracer, and meter.
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
	t := cfg.Telemetry
	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             t.LogLevel,
		LogFormat:            t.LogFormat,
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: t.OtelEndpoint,
		OtelExporterProtocol: t.OtelProtocol,
		OtelSamplingRatio:    t.OtelSamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = "payoutd"
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	return out
}

// Debug turns on stack traces and verbose request logs. Local and test
// environments always run in debug.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
