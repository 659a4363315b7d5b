package server

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 5, RefillInterval: time.Second}, cfg.RateLimit)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestSanitizeRestoresDefaults(t *testing.T) {
	cfg := Config{
		MaxMessageSize: -1,
		RateLimit:      RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		SendBuffer:     -3,
		Store:          "Cassandra",
		AllowedOrigins: []string{" HTTP://Example.COM ", "not-a-url", "", "*"},
	}.Sanitize()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, defaultSendBuffer, cfg.SendBuffer)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, []string{"http://example.com", "*"}, cfg.AllowedOrigins)
}

func TestLoadConfigFromViper(t *testing.T) {
	v := viper.New()
	v.Set(KeyServerPort, ":9090")
	v.Set(KeyAllowedOrigins, "http://a.example, http://b.example")
	v.Set(KeyMaxMessageSize, "2048")
	v.Set(KeyRateLimitBurst, "10")
	v.Set(KeyRateLimitRefill, "3")
	v.Set(KeySendBuffer, "32")
	v.Set(KeyJWTSecret, "s3cret")
	v.Set(KeyJWTIssuer, "login")
	v.Set(KeyStore, "PEBBLE")
	v.Set(KeyDBPath, "/tmp/chat")
	v.Set(KeyNATSURL, "nats://localhost:4222")
	v.Set(KeyLogLevel, "debug")
	v.Set(KeyLogFormat, "json")
	v.Set(KeyShutdownTimeout, "1500ms")

	cfg := LoadConfig(v)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 10, RefillInterval: 3 * time.Second}, cfg.RateLimit)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "login", cfg.JWTIssuer)
	assert.Equal(t, StorePebble, cfg.Store)
	assert.Equal(t, "/tmp/chat", cfg.DBPath)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 1500*time.Millisecond, cfg.ShutdownTimeout)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":7070")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("MAX_MESSAGE_SIZE", "0")

	v := viper.New()
	v.AutomaticEnv()
	cfg := LoadConfig(v)

	assert.Equal(t, ":7070", cfg.Port)
	assert.Equal(t, 5, cfg.RateLimit.Burst, "invalid values fall back to defaults")
	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
}

func TestLoadConfigOriginList(t *testing.T) {
	v := viper.New()
	v.Set(KeyAllowedOrigins, []string{"https://chat.example", "http://localhost:3000"})

	cfg := LoadConfig(v)
	assert.Equal(t, []string{"https://chat.example", "http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2", 2 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{" 1m ", time.Minute},
		{"0", time.Hour},
		{"-5s", time.Hour},
		{"soon", time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseDuration(tt.in, time.Hour), tt.in)
	}
}
