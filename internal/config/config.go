// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for optional variables.
const (
	DefaultListenAddr    = "127.0.0.1:3000"
	DefaultPeopleBaseURL = "https://servicos-utilitarios-novaera.ugztmp.easypanel.host"
	DefaultV8ClientID    = "DHWogdaYmEI8n5bwwxPDzulMlSK7dwIn"
	DefaultV8BaseURL     = "https://bff.v8sistema.com"
	DefaultV8AuthURL     = "https://auth.v8sistema.com/oauth/token"
	DefaultPollInterval  = 4 * time.Second
	DefaultPollAttempts  = 20
	DefaultHTTPTimeout   = 20 * time.Second
	DefaultEnvFile       = ".env"

	// EnvListenAddr names the variable holding the server's listen address.
	EnvListenAddr = "CLTSIM_LISTEN_ADDR"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string

	PeopleToken   string
	PeopleBaseURL string

	V8Username string
	V8Password string
	V8ClientID string
	V8BaseURL  string
	V8AuthURL  string

	PollInterval time.Duration
	PollAttempts int
	HTTPTimeout  time.Duration
	LogLevel     slog.Level
}

// Load reads configuration from environment variables and returns a validated Config.
// Variables already present in the environment win over the optional env file
// named by CLTSIM_ENV_FILE (default .env); a missing file is not an error.
// CLTSIM_PEOPLE_TOKEN, CLTSIM_V8_USERNAME and CLTSIM_V8_PASSWORD are required.
func Load() (*Config, error) {
	envFile := DefaultEnvFile
	if v, ok := os.LookupEnv("CLTSIM_ENV_FILE"); ok {
		envFile = v
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %q: %w", envFile, err)
		}
	}

	cfg := &Config{
		ListenAddr:    lookupDefault(EnvListenAddr, DefaultListenAddr),
		PeopleBaseURL: lookupDefault("CLTSIM_PEOPLE_BASE_URL", DefaultPeopleBaseURL),
		V8ClientID:    lookupDefault("CLTSIM_V8_CLIENT_ID", DefaultV8ClientID),
		V8BaseURL:     lookupDefault("CLTSIM_V8_BASE_URL", DefaultV8BaseURL),
		V8AuthURL:     lookupDefault("CLTSIM_V8_AUTH_URL", DefaultV8AuthURL),
		PollInterval:  DefaultPollInterval,
		PollAttempts:  DefaultPollAttempts,
		HTTPTimeout:   DefaultHTTPTimeout,
		LogLevel:      slog.LevelInfo,
	}

	var missing []string
	for _, req := range []struct {
		key string
		dst *string
	}{
		{"CLTSIM_PEOPLE_TOKEN", &cfg.PeopleToken},
		{"CLTSIM_V8_USERNAME", &cfg.V8Username},
		{"CLTSIM_V8_PASSWORD", &cfg.V8Password},
	} {
		v := os.Getenv(req.key)
		if v == "" {
			missing = append(missing, req.key)
			continue
		}
		*req.dst = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	var err error
	if cfg.PollInterval, err = lookupDuration("CLTSIM_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = lookupDuration("CLTSIM_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("CLTSIM_POLL_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("CLTSIM_POLL_ATTEMPTS must be a positive integer, got %q", v)
		}
		cfg.PollAttempts = n
	}

	if v, ok := os.LookupEnv("CLTSIM_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("CLTSIM_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return cfg, nil
}

func lookupDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func lookupDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
