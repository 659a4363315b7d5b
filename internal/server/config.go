// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat gateway.
package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the gateway configuration settings including security controls.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	// SendBuffer is the number of outbound events a connection may queue
	// before it is treated as a slow client and dropped.
	SendBuffer int

	JWTSecret string
	JWTIssuer string

	Store  string
	DBPath string

	NATSURL string

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration
}

// Configuration keys. Each one is also read from the upper-cased
// environment variable of the same name, e.g. SERVER_PORT.
const (
	KeyServerPort      = "server_port"
	KeyAllowedOrigins  = "allowed_origins"
	KeyMaxMessageSize  = "max_message_size"
	KeyRateLimitBurst  = "rate_limit_burst"
	KeyRateLimitRefill = "rate_limit_refill_interval"
	KeySendBuffer      = "send_buffer"
	KeyJWTSecret       = "jwt_secret"
	KeyJWTIssuer       = "jwt_issuer"
	KeyStore           = "store"
	KeyDBPath          = "db_path"
	KeyNATSURL         = "nats_url"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyShutdownTimeout = "shutdown_timeout"
)

// Store backends.
const (
	StoreMemory = "memory"
	StorePebble = "pebble"
)

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 4096
	defaultBurst          = 5
	defaultSendBuffer     = 256
	defaultDBPath         = "data/chatgate"
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
		SendBuffer:      defaultSendBuffer,
		Store:           StoreMemory,
		DBPath:          defaultDBPath,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Sanitize replaces out-of-range values with defaults and normalizes the
// origin allow-list.
func (c Config) Sanitize() Config {
	def := defaultConfig()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	switch strings.ToLower(strings.TrimSpace(c.Store)) {
	case StorePebble:
		c.Store = StorePebble
	default:
		c.Store = StoreMemory
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}

	origins, allowAll := normalizeOrigins(c.AllowedOrigins, nil)
	if allowAll {
		origins = append(origins, "*")
	}
	c.AllowedOrigins = origins
	return c
}

// LoadConfig builds a sanitized Config from v, falling back to defaults for
// unset or unparsable values.
func LoadConfig(v *viper.Viper) *Config {
	cfg := defaultConfig()

	if port := v.GetString(KeyServerPort); port != "" {
		cfg.Port = port
	}
	if origins := v.GetString(KeyAllowedOrigins); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	} else if list := v.GetStringSlice(KeyAllowedOrigins); len(list) > 0 {
		cfg.AllowedOrigins = list
	}
	if maxSize := v.GetString(KeyMaxMessageSize); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if burst := v.GetString(KeyRateLimitBurst); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := v.GetString(KeyRateLimitRefill); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}
	if buf := v.GetString(KeySendBuffer); buf != "" {
		cfg.SendBuffer = parseIntValue(buf, cfg.SendBuffer)
	}
	cfg.JWTSecret = v.GetString(KeyJWTSecret)
	cfg.JWTIssuer = v.GetString(KeyJWTIssuer)
	if store := v.GetString(KeyStore); store != "" {
		cfg.Store = store
	}
	if path := v.GetString(KeyDBPath); path != "" {
		cfg.DBPath = path
	}
	cfg.NATSURL = v.GetString(KeyNATSURL)
	if level := v.GetString(KeyLogLevel); level != "" {
		cfg.LogLevel = level
	}
	if format := v.GetString(KeyLogFormat); format != "" {
		cfg.LogFormat = format
	}
	if timeout := v.GetString(KeyShutdownTimeout); timeout != "" {
		cfg.ShutdownTimeout = parseDuration(timeout, cfg.ShutdownTimeout)
	}

	sanitized := cfg.Sanitize()
	return &sanitized
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts a bare number of seconds ("2") or a Go duration
// ("1500ms").
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
