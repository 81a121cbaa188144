package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/rs/zerolog"
)

type LogLevel struct {
	Level zerolog.Level
}

func (l *LogLevel) UnmarshalEnvironmentValue(data string) error {
	level, err := zerolog.ParseLevel(strings.ToLower(data))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", data, err)
	}
	l.Level = level
	return nil
}

type Config struct {
	HTTPListenAddress       string    `env:"HTTP_LISTEN_ADDRESS,default=0.0.0.0:8080"`
	CatalogPath             string    `env:"CATALOG_PATH,default=txsync.yaml"`
	TransifexAPIURL         string    `env:"TRANSIFEX_API_URL,default=https://www.transifex.com"`
	TransifexUsername       string    `env:"TRANSIFEX_USERNAME"`
	TransifexPassword       string    `env:"TRANSIFEX_PASSWORD"`
	TransifexTimeoutSeconds int       `env:"TRANSIFEX_TIMEOUT_SECONDS,default=30"`
	MaxClockSkewSeconds     int       `env:"WEBHOOK_MAX_CLOCK_SKEW_SECONDS,default=300"`
	CORSAllowedOrigins      string    `env:"CORS_ALLOWED_ORIGINS"`
	LogLevel                *LogLevel `env:"LOG_LEVEL,default=info"`
	LogFormat               string    `env:"LOG_FORMAT,default=console"`
}

func NewConfig() (*Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return nil, err
	}
	if config.LogLevel == nil {
		config.LogLevel = &LogLevel{Level: zerolog.InfoLevel}
	}

	return &config, nil
}

func (c *Config) TransifexTimeout() time.Duration {
	return time.Duration(c.TransifexTimeoutSeconds) * time.Second
}

func (c *Config) MaxClockSkew() time.Duration {
	return time.Duration(c.MaxClockSkewSeconds) * time.Second
}

// AllowedOrigins splits the comma separated CORS origin list.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
