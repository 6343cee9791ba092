package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the base server configuration.
type Config struct {
	Host              string
	Port              string
	SQLiteDBPath      string
	DevicesConfigPath string

	AuthEnabled              bool
	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int

	// Optional event sinks. Empty disables the sink.
	NATSURL           string
	NATSSubjectPrefix string
	RedisURL          string
	RedisKeyPrefix    string
	RedisShadowTTLSec int

	// StatusRefreshCron schedules QueryAllStatus for every ready receiver.
	// Empty disables the refresh job.
	StatusRefreshCron string

	// EventRetentionDays bounds the receiver event log.
	EventRetentionDays int

	// Connection policy.
	ConnectMaxAttempts       int
	ConnectBaseDelayMs       int
	ConnectBackoffMultiplier float64
	ReconnectIntervalMs      int
	CommandDelayMs           int
	ReadTimeoutSec           int

	Debug bool
}

// ConnectBaseDelay returns ConnectBaseDelayMs as a duration.
func (c Config) ConnectBaseDelay() time.Duration {
	return time.Duration(c.ConnectBaseDelayMs) * time.Millisecond
}

// ReconnectInterval returns ReconnectIntervalMs as a duration.
func (c Config) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMs) * time.Millisecond
}

// CommandDelay returns CommandDelayMs as a duration.
func (c Config) CommandDelay() time.Duration {
	return time.Duration(c.CommandDelayMs) * time.Millisecond
}

// ReadTimeout returns ReadTimeoutSec as a duration.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:              envString("HOST", "0.0.0.0"),
		Port:              envString("PORT", "9100"),
		SQLiteDBPath:      envString("SQLITE_DB_PATH", "./data/anthem-hub.db"),
		DevicesConfigPath: envString("DEVICES_CONFIG_PATH", "./devices.yaml"),

		AuthEnabled:              envBool("AUTH_ENABLED", false),
		JWTSecret:                envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000),

		NATSURL:           envString("NATS_URL", ""),
		NATSSubjectPrefix: envString("NATS_SUBJECT_PREFIX", "anthem"),
		RedisURL:          envString("REDIS_URL", ""),
		RedisKeyPrefix:    envString("REDIS_KEY_PREFIX", "anthem"),
		RedisShadowTTLSec: envInt("REDIS_SHADOW_TTL_SECONDS", 86400),

		StatusRefreshCron:  envString("STATUS_REFRESH_CRON", "@every 5m"),
		EventRetentionDays: envInt("EVENT_RETENTION_DAYS", 30),

		ConnectMaxAttempts:       envInt("CONNECT_MAX_ATTEMPTS", 3),
		ConnectBaseDelayMs:       envInt("CONNECT_BASE_DELAY_MS", 2000),
		ConnectBackoffMultiplier: envFloat("CONNECT_BACKOFF_MULTIPLIER", 2),
		ReconnectIntervalMs:      envInt("RECONNECT_INTERVAL_MS", 30000),
		CommandDelayMs:           envInt("COMMAND_DELAY_MS", 100),
		ReadTimeoutSec:           envInt("READ_TIMEOUT_SEC", 120),

		Debug: envBool("DEBUG", false),
	}

	if cfg.AuthEnabled && len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_ENABLED is set")
	}
	if cfg.ConnectMaxAttempts < 1 {
		return Config{}, fmt.Errorf("CONNECT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.ConnectBackoffMultiplier < 1 {
		return Config{}, fmt.Errorf("CONNECT_BACKOFF_MULTIPLIER must be at least 1")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
