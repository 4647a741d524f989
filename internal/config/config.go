package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	GinMode                string
	GinPort                string
	JWTSecretKey           string
	CollectorWebhookSecret string
	OperatorEmail          string
	OperatorPassword       string
	DatabasePath           string // empty means in-memory store
	ConfirmationCallback   string // empty disables the webhook notifier
	FrontendURL            string
	MatchInterval          time.Duration
	PollInterval           time.Duration
	PollMaxAttempts        int
}

func Load() (*Config, error) {

	getEnv := func(key string, required bool) (string, error) {
		value := os.Getenv(key)
		if value == "" && required {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getSeconds := func(key string, def time.Duration) (time.Duration, error) {
		value := os.Getenv(key)
		if value == "" {
			return def, nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%s must be a positive number of seconds", key)
		}
		return time.Duration(n) * time.Second, nil
	}

	cfg := &Config{}
	var err error

	cfg.GinMode = os.Getenv("GIN_MODE")
	if cfg.GinMode == "" {
		cfg.GinMode = "debug"
	}
	cfg.GinPort = os.Getenv("GIN_PORT")
	if cfg.GinPort == "" {
		cfg.GinPort = "8002"
	}

	if cfg.JWTSecretKey, err = getEnv("JWT_SECRET_KEY", true); err != nil {
		return nil, err
	}
	if cfg.CollectorWebhookSecret, err = getEnv("COLLECTOR_WEBHOOK_SECRET", true); err != nil {
		return nil, err
	}
	if cfg.OperatorEmail, err = getEnv("OPERATOR_EMAIL", true); err != nil {
		return nil, err
	}
	if cfg.OperatorPassword, err = getEnv("OPERATOR_PASSWORD", true); err != nil {
		return nil, err
	}
	if cfg.DatabasePath, err = getEnv("DATABASE_PATH", false); err != nil {
		return nil, err
	}
	if cfg.ConfirmationCallback, err = getEnv("CONFIRMATION_CALLBACK_URL", false); err != nil {
		return nil, err
	}
	if cfg.FrontendURL, err = getEnv("FRONTEND_URL", false); err != nil {
		return nil, err
	}

	if cfg.MatchInterval, err = getSeconds("MATCH_INTERVAL_SECONDS", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getSeconds("POLL_INTERVAL_SECONDS", 5*time.Second); err != nil {
		return nil, err
	}

	cfg.PollMaxAttempts = 60
	if v := os.Getenv("POLL_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be a positive integer")
		}
		cfg.PollMaxAttempts = n
	}

	return cfg, nil
}
