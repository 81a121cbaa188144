package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config, err := NewConfig()
	require.NoError(t, err, "failed to load config")
	require.Equal(t, "0.0.0.0:8080", config.HTTPListenAddress)
	require.Equal(t, "txsync.yaml", config.CatalogPath)
	require.Equal(t, 5*time.Minute, config.MaxClockSkew())
	require.Equal(t, 30*time.Second, config.TransifexTimeout())
	require.Equal(t, zerolog.InfoLevel, config.LogLevel.Level)
	require.Empty(t, config.AllowedOrigins())
}

func TestFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_LISTEN_ADDRESS", "127.0.0.1:9090")
	t.Setenv("WEBHOOK_MAX_CLOCK_SKEW_SECONDS", "60")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.org, https://b.example.org")

	config, err := NewConfig()
	require.NoError(t, err, "failed to load config")
	require.Equal(t, "127.0.0.1:9090", config.HTTPListenAddress)
	require.Equal(t, time.Minute, config.MaxClockSkew())
	require.Equal(t, zerolog.DebugLevel, config.LogLevel.Level)
	require.Equal(t, []string{"https://a.example.org", "https://b.example.org"}, config.AllowedOrigins())
}

func TestInvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	_, err := NewConfig()
	require.Error(t, err)
}
