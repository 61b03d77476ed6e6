package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env is the raw environment-facing configuration. Fields are read from
// AGRICHAT_* variables via envconfig; a .env file is honored if present.
type Env struct {
	Addr               string        `envconfig:"ADDR" default:"localhost:8000"`
	DatabaseDSN        string        `envconfig:"DATABASE_DSN"`
	SigningKey         string        `envconfig:"SIGNING_KEY"`
	AllowedOrigins     []string      `envconfig:"ALLOWED_ORIGINS"`
	ModerationURL      string        `envconfig:"MODERATION_URL"`
	ModerationAPIKey   string        `envconfig:"MODERATION_API_KEY"`
	ModerationTimeout  time.Duration `envconfig:"MODERATION_TIMEOUT" default:"5s"`
	ModerationFailOpen bool          `envconfig:"MODERATION_FAIL_OPEN" default:"true"`
}

type Config struct {
	Addr               string
	DatabaseDSN        string
	SigningKey         []byte
	AllowedOrigins     []string
	ModerationURL      string
	ModerationAPIKey   string
	ModerationTimeout  time.Duration
	ModerationFailOpen bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(addr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if addr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		Addr:               addr,
		DatabaseDSN:        databaseDSN,
		SigningKey:         signingKey,
		AllowedOrigins:     allowedOrigins,
		ModerationTimeout:  5 * time.Second,
		ModerationFailOpen: true,
	}, nil
}

// FromEnv builds a Config from AGRICHAT_* environment variables, loading
// a .env file first if one exists. Explicit arguments win over the
// environment so command line flags can override it.
func FromEnv(addr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	_ = godotenv.Load()

	var env Env
	if err := envconfig.Process("agrichat", &env); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if addr == "" {
		addr = env.Addr
	}
	if databaseDSN == "" {
		databaseDSN = env.DatabaseDSN
	}
	if base64Secret == "" {
		base64Secret = env.SigningKey
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = env.AllowedOrigins
	}

	cfg, err := NewConfig(addr, databaseDSN, base64Secret, allowedOrigins)
	if err != nil {
		return nil, err
	}

	cfg.ModerationURL = env.ModerationURL
	cfg.ModerationAPIKey = env.ModerationAPIKey
	cfg.ModerationTimeout = env.ModerationTimeout
	cfg.ModerationFailOpen = env.ModerationFailOpen

	return cfg, nil
}
