// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Sync         SyncConfig
	Anomaly      AnomalyConfig
	Forecast     ForecastConfig
	Jobs         JobsConfig
	Logging      LoggingConfig
	Notification NotificationConfig

	// EncryptionKey protects stored provider credentials at rest.
	EncryptionKey string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig holds Redis connection settings for the cost data cache.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// SyncConfig holds sync orchestrator settings.
type SyncConfig struct {
	CacheTTL        time.Duration
	LookbackDays    int
	RateLimitEvery  time.Duration
	RateLimitBurst  int
	SessionDuration time.Duration
}

// AnomalyConfig holds anomaly baseline engine settings.
type AnomalyConfig struct {
	BaselineWindowDays  int
	RecomputeWindowDays int
	MinHistoryPoints    int
	AlertThresholdPct   float64
}

// ForecastConfig holds forecast engine settings.
type ForecastConfig struct {
	HistoryDays int
	MaxMonths   int
}

// JobsConfig holds background job settings.
type JobsConfig struct {
	CostSyncSchedule      string
	AnomalySweepSchedule  string
	RecommendationsSchedule string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// NotificationConfig holds notification delivery settings.
type NotificationConfig struct {
	SlackWebhookURL string
	EmailSMTPHost   string
	EmailSMTPPort   int
	EmailFrom       string
	EmailPassword   string
	WebhookURLs     string // comma-separated
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "costlens"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "costlens"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvDuration("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Sync: SyncConfig{
			CacheTTL:        getEnvDuration("SYNC_CACHE_TTL", 60*time.Minute),
			LookbackDays:    getEnvInt("SYNC_LOOKBACK_DAYS", 30),
			RateLimitEvery:  getEnvDuration("SYNC_RATE_LIMIT_EVERY", 30*time.Second),
			RateLimitBurst:  getEnvInt("SYNC_RATE_LIMIT_BURST", 2),
			SessionDuration: getEnvDuration("SYNC_SESSION_DURATION", time.Hour),
		},
		Anomaly: AnomalyConfig{
			BaselineWindowDays:  getEnvInt("ANOMALY_BASELINE_WINDOW_DAYS", 30),
			RecomputeWindowDays: getEnvInt("ANOMALY_RECOMPUTE_WINDOW_DAYS", 7),
			MinHistoryPoints:    getEnvInt("ANOMALY_MIN_HISTORY_POINTS", 5),
			AlertThresholdPct:   getEnvFloat("ANOMALY_ALERT_THRESHOLD_PCT", 50),
		},
		Forecast: ForecastConfig{
			HistoryDays: getEnvInt("FORECAST_HISTORY_DAYS", 365),
			MaxMonths:   getEnvInt("FORECAST_MAX_MONTHS", 12),
		},
		Jobs: JobsConfig{
			CostSyncSchedule:        getEnv("JOB_COST_SYNC", "0 0 */6 * * *"),
			AnomalySweepSchedule:    getEnv("JOB_ANOMALY_SWEEP", "0 0 1 * * *"),
			RecommendationsSchedule: getEnv("JOB_RECOMMENDATIONS", "0 0 3 * * *"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Notification: NotificationConfig{
			SlackWebhookURL: getEnv("NOTIFICATION_SLACK_WEBHOOK", ""),
			EmailSMTPHost:   getEnv("NOTIFICATION_EMAIL_SMTP_HOST", ""),
			EmailSMTPPort:   getEnvInt("NOTIFICATION_EMAIL_SMTP_PORT", 587),
			EmailFrom:       getEnv("NOTIFICATION_EMAIL_FROM", ""),
			EmailPassword:   getEnv("NOTIFICATION_EMAIL_PASSWORD", ""),
			WebhookURLs:     getEnv("NOTIFICATION_WEBHOOK_URLS", ""),
		},
		EncryptionKey: getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required")
	}
	return nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
