package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Postgres connection parts, composed into a DSN.
	DBHost string
	DBPort string
	DBName string
	DBUser string
	DBPass string

	// RedisAddr enables the read cache when non-empty.
	RedisAddr string

	// NASA NeoWs feed.
	NasaAPIKey  string
	NasaFeedURL string
	NasaTimeout time.Duration

	// Scheduler intervals and alert policy.
	IngestInterval     time.Duration
	AlertScanInterval  time.Duration
	AlertWindow        time.Duration
	AlertRiskThreshold float64

	// Auth.
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	nasaTimeout, err := parseDuration("NASA_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	ingestInterval, err := parseDuration("INGEST_INTERVAL", "6h")
	if err != nil {
		return nil, err
	}
	alertScanInterval, err := parseDuration("ALERT_SCAN_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}
	alertWindow, err := parseDuration("ALERT_WINDOW", "24h")
	if err != nil {
		return nil, err
	}
	tokenTTL, err := parseDuration("TOKEN_TTL", "2h")
	if err != nil {
		return nil, err
	}

	threshold, err := parseFloat("ALERT_RISK_THRESHOLD", 0.5)
	if err != nil {
		return nil, err
	}
	if threshold < 0 || threshold >= 1 {
		return nil, errors.New("ALERT_RISK_THRESHOLD must be in [0,1)")
	}

	bcryptCost, err := parseInt("BCRYPT_COST", 12)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBHost: envOrDefault("DB_HOST", "localhost"),
		DBPort: envOrDefault("DB_PORT", "5432"),
		DBName: envOrDefault("DB_NAME", "cosmicwatch"),
		DBUser: envOrDefault("DB_USER", "cosmicwatch"),
		DBPass: os.Getenv("DB_PASS"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		NasaAPIKey:  envOrDefault("NASA_API_KEY", "DEMO_KEY"),
		NasaFeedURL: envOrDefault("NASA_FEED_URL", "https://api.nasa.gov/neo/rest/v1/feed"),
		NasaTimeout: nasaTimeout,

		IngestInterval:     ingestInterval,
		AlertScanInterval:  alertScanInterval,
		AlertWindow:        alertWindow,
		AlertRiskThreshold: threshold,

		JWTSecret:  os.Getenv("JWT_SECRET"),
		TokenTTL:   tokenTTL,
		BcryptCost: bcryptCost,
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.NasaFeedURL == "" {
		return nil, errors.New("NASA_FEED_URL is required")
	}

	return cfg, nil
}

// DatabaseDSN composes the lib/pq connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return v, nil
}
