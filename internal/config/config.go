package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string
	HTTPAddr string

	DatabaseURL   string
	DBLogQuery    bool
	DBWaitTimeout time.Duration

	SeedUserUsername string
	SeedUserEmail    string
	SeedUserPassword string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	SessionCacheTTL           time.Duration
	SessionCacheSweepInterval time.Duration
	CacheTimeout              time.Duration
	StoreTimeout              time.Duration
	CacheInvalidateRetries    int

	AuthRateLimitRPM int

	FollowerCheckInterval    time.Duration
	FollowerUseMockData      bool
	FollowerFetchConcurrency int
	SocialAPIBaseURL         string
	SocialOAuthClientID      string
	SocialOAuthClientSecret  string
	SocialOAuthTokenURL      string

	TelegramToken         string
	TelegramAPIBaseURL    string
	TelegramDefaultChatID string

	LogLevel string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELHTTPEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout time.Duration
}

var defaults = map[string]any{
	"APP_ENV":                       "development",
	"HTTP_ADDR":                     ":8080",
	"DATABASE_URL":                  "file:follower_tracker.db?cache=shared",
	"DB_LOG_QUERY":                  false,
	"DB_WAIT_TIMEOUT":               "5m",
	"SEED_USER_USERNAME":            "",
	"SEED_USER_EMAIL":               "",
	"SEED_USER_PASSWORD":            "",
	"REDIS_ENABLED":                 true,
	"REDIS_ADDR":                    "localhost:6379",
	"REDIS_PASSWORD":                "",
	"REDIS_DB":                      0,
	"REDIS_PREFIX":                  "session_cache",
	"JWT_ISSUER":                    "follower-tracker",
	"JWT_AUDIENCE":                  "follower-tracker-api",
	"ACCESS_TOKEN_TTL":              "192h",
	"REFRESH_TOKEN_TTL":             "8h",
	"BCRYPT_COST":                   12,
	"SESSION_CACHE_TTL":             "24h",
	"SESSION_CACHE_SWEEP_INTERVAL":  "5m",
	"CACHE_TIMEOUT":                 "250ms",
	"STORE_TIMEOUT":                 "3s",
	"CACHE_INVALIDATE_RETRIES":      3,
	"AUTH_RATE_LIMIT_RPM":           30,
	"FOLLOWER_CHECK_INTERVAL":       "60s",
	"FOLLOWER_USE_MOCK_DATA":        true,
	"FOLLOWER_FETCH_CONCURRENCY":    4,
	"SOCIAL_API_BASE_URL":           "",
	"SOCIAL_OAUTH_CLIENT_ID":        "",
	"SOCIAL_OAUTH_CLIENT_SECRET":    "",
	"SOCIAL_OAUTH_TOKEN_URL":        "",
	"TELEGRAM_TOKEN":                "",
	"TELEGRAM_API_BASE_URL":         "https://api.telegram.org",
	"TELEGRAM_DEFAULT_CHAT_ID":      "",
	"LOG_LEVEL":                     "info",
	"OTEL_SERVICE_NAME":             "follower-tracker",
	"OTEL_ENVIRONMENT":              "development",
	"OTEL_EXPORTER_OTLP_ENDPOINT":   "localhost:4317",
	"OTEL_EXPORTER_OTLP_INSECURE":   true,
	"OTEL_METRICS_ENABLED":          false,
	"OTEL_TRACING_ENABLED":          false,
	"OTEL_LOGS_ENABLED":             false,
	"OTEL_HTTP_ENABLED":             false,
	"OTEL_METRICS_EXPORT_INTERVAL":  "15s",
	"SHUTDOWN_TIMEOUT":              "20s",
}

// Load reads configuration from the environment, optionally layered over the file named by
// CONFIG_FILE. The result is immutable for the life of the process.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			err = fmt.Errorf("read config file: %w", err)
			recordConfigLoad(context.Background(), v.GetString("APP_ENV"), err)
			return nil, err
		}
	}

	cfg, err := fromViper(v)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		recordConfigLoad(context.Background(), v.GetString("APP_ENV"), err)
		return nil, err
	}
	recordConfigLoad(context.Background(), cfg.AppEnv, nil)
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppEnv:                   v.GetString("APP_ENV"),
		HTTPAddr:                 v.GetString("HTTP_ADDR"),
		DatabaseURL:              v.GetString("DATABASE_URL"),
		DBLogQuery:               v.GetBool("DB_LOG_QUERY"),
		SeedUserUsername:         strings.TrimSpace(v.GetString("SEED_USER_USERNAME")),
		SeedUserEmail:            strings.TrimSpace(v.GetString("SEED_USER_EMAIL")),
		SeedUserPassword:         v.GetString("SEED_USER_PASSWORD"),
		RedisEnabled:             v.GetBool("REDIS_ENABLED"),
		RedisAddr:                v.GetString("REDIS_ADDR"),
		RedisPassword:            v.GetString("REDIS_PASSWORD"),
		RedisDB:                  v.GetInt("REDIS_DB"),
		RedisPrefix:              v.GetString("REDIS_PREFIX"),
		JWTSecret:                v.GetString("SECRET_KEY"),
		JWTIssuer:                v.GetString("JWT_ISSUER"),
		JWTAudience:              v.GetString("JWT_AUDIENCE"),
		BcryptCost:               v.GetInt("BCRYPT_COST"),
		CacheInvalidateRetries:   v.GetInt("CACHE_INVALIDATE_RETRIES"),
		AuthRateLimitRPM:         v.GetInt("AUTH_RATE_LIMIT_RPM"),
		FollowerUseMockData:      v.GetBool("FOLLOWER_USE_MOCK_DATA"),
		FollowerFetchConcurrency: v.GetInt("FOLLOWER_FETCH_CONCURRENCY"),
		SocialAPIBaseURL:         v.GetString("SOCIAL_API_BASE_URL"),
		SocialOAuthClientID:      v.GetString("SOCIAL_OAUTH_CLIENT_ID"),
		SocialOAuthClientSecret:  v.GetString("SOCIAL_OAUTH_CLIENT_SECRET"),
		SocialOAuthTokenURL:      v.GetString("SOCIAL_OAUTH_TOKEN_URL"),
		TelegramToken:            v.GetString("TELEGRAM_TOKEN"),
		TelegramAPIBaseURL:       v.GetString("TELEGRAM_API_BASE_URL"),
		TelegramDefaultChatID:    v.GetString("TELEGRAM_DEFAULT_CHAT_ID"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		OTELServiceName:          v.GetString("OTEL_SERVICE_NAME"),
		OTELEnvironment:          v.GetString("OTEL_ENVIRONMENT"),
		OTELExporterOTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELExporterOTLPInsecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		OTELMetricsEnabled:       v.GetBool("OTEL_METRICS_ENABLED"),
		OTELTracingEnabled:       v.GetBool("OTEL_TRACING_ENABLED"),
		OTELLogsEnabled:          v.GetBool("OTEL_LOGS_ENABLED"),
		OTELHTTPEnabled:          v.GetBool("OTEL_HTTP_ENABLED"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"SESSION_CACHE_TTL", &cfg.SessionCacheTTL},
		{"SESSION_CACHE_SWEEP_INTERVAL", &cfg.SessionCacheSweepInterval},
		{"CACHE_TIMEOUT", &cfg.CacheTimeout},
		{"STORE_TIMEOUT", &cfg.StoreTimeout},
		{"DB_WAIT_TIMEOUT", &cfg.DBWaitTimeout},
		{"FOLLOWER_CHECK_INTERVAL", &cfg.FollowerCheckInterval},
		{"OTEL_METRICS_EXPORT_INTERVAL", &cfg.OTELMetricsExportInterval},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(strings.TrimSpace(v.GetString(d.key)))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("SECRET_KEY must be at least 32 characters"))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.RedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when REDIS_ENABLED=true"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be positive"))
	}
	if c.SessionCacheTTL < 0 {
		errs = append(errs, errors.New("SESSION_CACHE_TTL must not be negative"))
	}
	if c.CacheTimeout <= 0 || c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("CACHE_TIMEOUT and STORE_TIMEOUT must be positive"))
	}
	if c.DBWaitTimeout < 0 {
		errs = append(errs, errors.New("DB_WAIT_TIMEOUT must not be negative"))
	}
	if c.SeedUserUsername != "" && (c.SeedUserEmail == "" || c.SeedUserPassword == "") {
		errs = append(errs, errors.New("SEED_USER_EMAIL and SEED_USER_PASSWORD are required with SEED_USER_USERNAME"))
	}
	if c.CacheInvalidateRetries < 1 {
		errs = append(errs, errors.New("CACHE_INVALIDATE_RETRIES must be at least 1"))
	}
	if c.FollowerCheckInterval < time.Second {
		errs = append(errs, errors.New("FOLLOWER_CHECK_INTERVAL must be at least 1s"))
	}
	if c.FollowerFetchConcurrency < 1 {
		errs = append(errs, errors.New("FOLLOWER_FETCH_CONCURRENCY must be at least 1"))
	}
	if !c.FollowerUseMockData && strings.TrimSpace(c.SocialAPIBaseURL) == "" {
		errs = append(errs, errors.New("SOCIAL_API_BASE_URL is required when FOLLOWER_USE_MOCK_DATA=false"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validate config: %w", errors.Join(errs...))
	}
	return nil
}

// UsesPostgres reports whether DatabaseURL names a Postgres server rather than a SQLite DSN.
func (c *Config) UsesPostgres() bool {
	u := strings.ToLower(strings.TrimSpace(c.DatabaseURL))
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://") || strings.HasPrefix(u, "host=")
}
