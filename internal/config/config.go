package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" default:"development"`
	Port          string `env:"PORT" default:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	TokenSecret   string `env:"TOKEN_SECRET"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	LogLevel      string `env:"LOG_LEVEL" default:"info"`
	LogFormat     string `env:"LOG_FORMAT" default:"text"`

	MaxConnections      int           `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int           `env:"MAX_CONNECTIONS_PER_IP" default:"32"`
	MaxMessageBytes     int64         `env:"MAX_MESSAGE_BYTES" default:"1024000"`
	KeepAliveInterval   time.Duration `env:"KEEP_ALIVE_INTERVAL" default:"30s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
		"TOKEN_SECRET": cfg.TokenSecret,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.TokenSecret) < 32 {
		return fmt.Errorf("TOKEN_SECRET must be at least 32 characters, got %d", len(cfg.TokenSecret))
	}

	if cfg.KeepAliveInterval < time.Second {
		return fmt.Errorf("KEEP_ALIVE_INTERVAL must be at least 1s, got %s", cfg.KeepAliveInterval)
	}

	return nil
}
