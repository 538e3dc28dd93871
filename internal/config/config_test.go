package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_TYPE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.TypingTimeout)
	assert.Equal(t, 2*time.Minute, cfg.TypingSweepInterval)
	assert.Equal(t, 10*time.Minute, cfg.StaleSweepInterval)
	assert.Equal(t, 15*time.Minute, cfg.HeartbeatSweepInterval)
	assert.Equal(t, 10000, cfg.MaxMessageLength)
	assert.Equal(t, "memory", cfg.PubSubType)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("HEARTBEAT_INTERVAL", "5s")
	t.Setenv("TYPING_TIMEOUT", "90s")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 90*time.Second, cfg.TypingTimeout)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("HEARTBEAT_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreType:              "memory",
			PubSubType:             "memory",
			HeartbeatInterval:      time.Second,
			TypingTimeout:          time.Second,
			StaleSessionTimeout:    time.Second,
			TypingSweepInterval:    time.Second,
			StaleSweepInterval:     time.Second,
			HeartbeatSweepInterval: time.Second,
			MaxMessageLength:       10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"postgres without url", func(c *Config) { c.StoreType = "postgres" }, true},
		{"postgres with url", func(c *Config) { c.StoreType = "postgres"; c.DatabaseURL = "postgres://x" }, false},
		{"unknown store", func(c *Config) { c.StoreType = "mongo" }, true},
		{"redis without url", func(c *Config) { c.PubSubType = "redis" }, true},
		{"unknown pubsub", func(c *Config) { c.PubSubType = "nats" }, true},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }, true},
		{"zero sweep", func(c *Config) { c.StaleSweepInterval = 0 }, true},
		{"zero message length", func(c *Config) { c.MaxMessageLength = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "DEBUG"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelError, (&Config{LogLevel: "error"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: ""}).SlogLevel())
}
