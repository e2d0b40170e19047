package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis      RedisConfig
	Gateway    GatewayConfig
	Settlement SettlementConfig
	Notify     NotifyConfig
	Scheduler  SchedulerConfig
	Metrics    MetricsPushConfig
	Telemetry  TelemetryConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// APIKeyRate and APIKeyBurst throttle each api key (tokens per second).
	APIKeyRate  float64
	APIKeyBurst int
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type GatewayConfig struct {
	Provider          string
	BaseURL           string
	APIToken          string
	Timeout           time.Duration
	IdempotencySecret string

	// SandboxFailAmounts lists net amounts (minor units) the sandbox gateway refuses.
	SandboxFailAmounts []int64
}

type SettlementConfig struct {
	Currency       string
	LimitTimezone  string
	BookingLockTTL time.Duration
}

type NotifyConfig struct {
	Timeout          time.Duration
	SlackWebhookURL  string
	SlackChannel     string
	TelegramBotToken string
	TelegramChatID   int64
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	ReviewEmailTo    string
}

type SchedulerConfig struct {
	Enabled       bool
	RunInterval   time.Duration
	BatchSize     int
	EnabledJobs   []string
	RetryCooldown time.Duration
	MaxRetries    int
	StaleAfter    time.Duration
}

// TelemetryConfig drives logging and OpenTelemetry export.
type TelemetryConfig struct {
	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string
	OtelSamplingRatio float64

	SlowQueryThreshold time.Duration
}

type MetricsPushConfig struct {
	Exporter  string
	Endpoint  string
	AuthToken string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "payoutd"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payoutd"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),

			APIKeyRate:  getenvFloat("API_KEY_RATE_LIMIT", 10),
			APIKeyBurst: int(getenvInt64("API_KEY_RATE_BURST", 20)),
		},
		Gateway: GatewayConfig{
			Provider:           strings.ToLower(getenv("PAYOUT_GATEWAY_PROVIDER", "sandbox")),
			BaseURL:            strings.TrimSpace(getenv("PIX_BASE_URL", "")),
			APIToken:           strings.TrimSpace(getenv("PIX_API_TOKEN", "")),
			Timeout:            getenvDuration("PAYOUT_GATEWAY_TIMEOUT", 15*time.Second),
			IdempotencySecret:  getenv("PAYOUT_IDEMPOTENCY_SECRET", ""),
			SandboxFailAmounts: parseInt64List(getenv("SANDBOX_FAIL_AMOUNTS", "")),
		},
		Settlement: SettlementConfig{
			Currency:       strings.ToUpper(getenv("PAYOUT_CURRENCY", "BRL")),
			LimitTimezone:  getenv("PAYOUT_LIMIT_TIMEZONE", "UTC"),
			BookingLockTTL: getenvDuration("PAYOUT_BOOKING_LOCK_TTL", 30*time.Second),
		},
		Notify: NotifyConfig{
			Timeout:          getenvDuration("NOTIFY_TIMEOUT", 5*time.Second),
			SlackWebhookURL:  strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			SlackChannel:     getenv("SLACK_REVIEW_CHANNEL", "#payout-review"),
			TelegramBotToken: strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN", "")),
			TelegramChatID:   getenvInt64("TELEGRAM_REVIEW_CHAT_ID", 0),
			SMTPHost:         getenv("SMTP_HOST", ""),
			SMTPPort:         int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername:     getenv("SMTP_USERNAME", ""),
			SMTPPassword:     getenv("SMTP_PASSWORD", ""),
			SMTPFrom:         getenv("SMTP_FROM", "payouts@localhost"),
			ReviewEmailTo:    getenv("REVIEW_EMAIL_TO", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:       getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:   getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchSize:     int(getenvInt64("SCHEDULER_BATCH_SIZE", 50)),
			EnabledJobs:   parseList(getenv("SCHEDULER_JOBS", "")),
			RetryCooldown: getenvDuration("PAYOUT_RETRY_COOLDOWN", time.Hour),
			MaxRetries:    int(getenvInt64("PAYOUT_MAX_RETRIES", 3)),
			StaleAfter:    getenvDuration("PAYOUT_STALE_AFTER", 10*time.Minute),
		},
		Metrics: MetricsPushConfig{
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
		},
		Telemetry: TelemetryConfig{
			LogLevel:           strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:          strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:        getenvBool("OTEL_ENABLED", false),
			OtelEndpoint:       strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtelProtocol:       strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			OtelSamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			SlowQueryThreshold: getenvDuration("DATABASE_SLOW_QUERY_THRESHOLD", 200*time.Millisecond),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseInt64List(raw string) []int64 {
	items := parseList(raw)
	out := make([]int64, 0, len(items))
	for _, item := range items {
		v, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
