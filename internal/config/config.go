package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds application configuration loaded from an optional YAML file
// and the environment.
type Config struct {
	AppEnv             string
	Port               string
	StoreDriver        string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	AgencyHeader       string
	ContributorHeader  string

	SettlementUnitPrice      float64
	SettlementBatchSize      int
	SettlementReservationTTL time.Duration
	SettlementMaxAttempts    int

	EarningsContributorShare float64
	EarningsWindowDays       int
	EarningsCacheTTL         time.Duration

	CartMaxRetries    int
	IdempotencyTTL    time.Duration
	CheckoutLockTTL   time.Duration
	LockRetryBackoff  time.Duration
	RateLimitPurchase string

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	NotifyReplayTTL    time.Duration
	MailBreakerMinReq  int
	MailBreakerRatio   float64
	MailBreakerOpenFor time.Duration

	WorkerConcurrency int
	WorkerQueue       string
	TaskMaxRetry      int
	TaskRetryBase     time.Duration

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingSampling  float64

	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration

	MaxBodyBytes    int64
	SecurityHeaders bool
	HSTSEnabled     bool
}

// Load reads configuration. Values come from, in increasing precedence, the
// YAML file named by DATANEXUS_CONFIG, a .env file and the process
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if path := strings.TrimSpace(os.Getenv("DATANEXUS_CONFIG")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		StoreDriver:        strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), StorePostgres)),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AgencyHeader:       strings.TrimSpace(k.String("IDENTITY_AGENCY_HEADER")),
		ContributorHeader:  strings.TrimSpace(k.String("IDENTITY_CONTRIBUTOR_HEADER")),

		SettlementUnitPrice:      parseFloat(k.String("SETTLEMENT_UNIT_PRICE"), 25),
		SettlementBatchSize:      parseInt(k.String("SETTLEMENT_BATCH_SIZE"), 5),
		SettlementReservationTTL: parseDuration(k.String("SETTLEMENT_RESERVATION_TTL"), "30s"),
		SettlementMaxAttempts:    parseInt(k.String("SETTLEMENT_MAX_ATTEMPTS"), 3),

		EarningsContributorShare: parseFloat(k.String("EARNINGS_CONTRIBUTOR_SHARE"), 0.8),
		EarningsWindowDays:       parseInt(k.String("EARNINGS_WINDOW_DAYS"), 30),
		EarningsCacheTTL:         parseDuration(k.String("EARNINGS_CACHE_TTL"), "1m"),

		CartMaxRetries:    parseInt(k.String("CART_MAX_RETRIES"), 5),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CheckoutLockTTL:   parseDuration(k.String("CHECKOUT_LOCK_TTL"), "15s"),
		LockRetryBackoff:  parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		RateLimitPurchase: valueOrDefault(k.String("RATE_LIMIT_PURCHASE"), "60-M"),

		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED"), false),
		NotifyEmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "no-reply@datanexus.local"),
		NotifyReplayTTL:    parseDuration(k.String("NOTIFY_REPLAY_TTL"), "168h"),
		MailBreakerMinReq:  parseInt(k.String("MAIL_BREAKER_MIN_REQUESTS"), 5),
		MailBreakerRatio:   parseFloat(k.String("MAIL_BREAKER_FAILURE_RATIO"), 0.5),
		MailBreakerOpenFor: parseDuration(k.String("MAIL_BREAKER_OPEN_FOR"), "30s"),

		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
		WorkerQueue:       valueOrDefault(k.String("WORKER_QUEUE"), "notifications"),
		TaskMaxRetry:      parseInt(k.String("TASK_MAX_RETRY"), 8),
		TaskRetryBase:     parseDuration(k.String("TASK_RETRY_BASE"), "5s"),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "datanexus"),
		MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), false),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     k.String("OBS_OTLP_ENDPOINT"),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),

		HealthDBTimeout:    parseDuration(k.String("HEALTH_READY_DB_TIMEOUT"), "500ms"),
		HealthRedisTimeout: parseDuration(k.String("HEALTH_READY_REDIS_TIMEOUT"), "300ms"),

		MaxBodyBytes:    int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 64<<10)),
		SecurityHeaders: parseBool(k.String("SECURE_HEADERS_ENABLED"), true),
		HSTSEnabled:     parseBool(k.String("SECURE_HSTS_ENABLED"), false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER %q is not supported", c.StoreDriver)
	}
	if c.SettlementUnitPrice <= 0 {
		return errors.New("SETTLEMENT_UNIT_PRICE must be positive")
	}
	if c.SettlementBatchSize <= 0 {
		return errors.New("SETTLEMENT_BATCH_SIZE must be positive")
	}
	if c.EarningsContributorShare < 0 || c.EarningsContributorShare > 1 {
		return errors.New("EARNINGS_CONTRIBUTOR_SHARE must be between 0 and 1")
	}
	if c.EarningsWindowDays <= 0 {
		return errors.New("EARNINGS_WINDOW_DAYS must be positive")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RedisEnabled reports whether a Redis URL was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
