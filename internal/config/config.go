package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/phozos/phozos-client/internal/apierr"
)

// Token storage backends.
const (
	StorageBolt    = "bolt"
	StorageKeyring = "keyring"
	StorageMemory  = "memory"
)

// Config holds all environment-based configuration for the client.
type Config struct {
	// Origin is the document origin: cookies are scoped to it, and it
	// is the request base when APIBase is empty.
	Origin string `env:"PHOZOS_ORIGIN" envDefault:"http://localhost:8787"`

	// APIBase is set for split frontend/backend deployments.
	APIBase string `env:"PHOZOS_API_BASE"`

	// Where the bearer token survives restarts.
	TokenStorage   string `env:"PHOZOS_TOKEN_STORAGE" envDefault:"bolt"`
	StatePath      string `env:"PHOZOS_STATE_PATH"`
	KeyringService string `env:"PHOZOS_KEYRING_SERVICE" envDefault:"phozos"`

	// RequestTimeout bounds each attempt, including the CSRF bootstrap.
	RequestTimeout time.Duration `env:"PHOZOS_REQUEST_TIMEOUT" envDefault:"30s"`

	CSRFEndpoint          string `env:"PHOZOS_CSRF_ENDPOINT" envDefault:"/api/auth/csrf-token"`
	CSRFHeader            string `env:"PHOZOS_CSRF_HEADER" envDefault:"x-csrf-token"`
	CSRFCookie            string `env:"PHOZOS_CSRF_COOKIE" envDefault:"_csrf"`
	CSRFStaleCodePrefix   string `env:"PHOZOS_CSRF_STALE_CODE_PREFIX" envDefault:"CSRF_"`
	CSRFStaleMessageMatch string `env:"PHOZOS_CSRF_STALE_MESSAGE" envDefault:"csrf"`

	// Read retry policy.
	QueryRetries   int           `env:"PHOZOS_QUERY_RETRIES" envDefault:"3"`
	QueryRetryBase time.Duration `env:"PHOZOS_QUERY_RETRY_BASE" envDefault:"1s"`
	QueryRetryMax  time.Duration `env:"PHOZOS_QUERY_RETRY_MAX" envDefault:"30s"`
	QueryStaleTime time.Duration `env:"PHOZOS_QUERY_STALE_TIME" envDefault:"1m"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Development API double.
	DevListenAddr string `env:"DEVSERVER_LISTEN_ADDR" envDefault:"127.0.0.1:8787"`
	DevJWTSecret  string `env:"DEVSERVER_JWT_SECRET"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Origin = strings.TrimRight(cfg.Origin, "/")
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.TokenStorage == StorageBolt {
		if cfg.StatePath == "" {
			p, err := DefaultStatePath()
			if err != nil {
				return nil, err
			}

			cfg.StatePath = p
		}

		absPath, err := filepath.Abs(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("resolving state path to absolute path: %w", err)
		}

		cfg.StatePath = absPath
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if err := validateBaseURL("PHOZOS_ORIGIN", c.Origin); err != nil {
		return err
	}

	if c.APIBase != "" {
		if err := validateBaseURL("PHOZOS_API_BASE", c.APIBase); err != nil {
			return err
		}
	}

	switch c.TokenStorage {
	case StorageBolt, StorageKeyring, StorageMemory:
	default:
		return fmt.Errorf("PHOZOS_TOKEN_STORAGE must be one of bolt, keyring, memory (got %q)", c.TokenStorage)
	}

	if c.TokenStorage == StorageKeyring && c.KeyringService == "" {
		return fmt.Errorf("PHOZOS_KEYRING_SERVICE is required when token storage is keyring")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("PHOZOS_REQUEST_TIMEOUT must be positive")
	}

	if !strings.HasPrefix(c.CSRFEndpoint, "/") && !isAbsoluteURL(c.CSRFEndpoint) {
		return fmt.Errorf("PHOZOS_CSRF_ENDPOINT must be a path or an absolute URL")
	}

	if c.CSRFHeader == "" {
		return fmt.Errorf("PHOZOS_CSRF_HEADER must not be empty")
	}

	if c.CSRFCookie == "" {
		return fmt.Errorf("PHOZOS_CSRF_COOKIE must not be empty")
	}

	if c.QueryRetries < 0 {
		return fmt.Errorf("PHOZOS_QUERY_RETRIES must not be negative")
	}

	if c.QueryRetryBase <= 0 {
		return fmt.Errorf("PHOZOS_QUERY_RETRY_BASE must be positive")
	}

	if c.QueryRetryMax < c.QueryRetryBase {
		return fmt.Errorf("PHOZOS_QUERY_RETRY_MAX must be at least PHOZOS_QUERY_RETRY_BASE")
	}

	if c.QueryStaleTime < 0 {
		return fmt.Errorf("PHOZOS_QUERY_STALE_TIME must not be negative")
	}

	return nil
}

func validateBaseURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https (got %q)", name, raw)
	}

	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}

	return nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

// DefaultStatePath returns ~/.phozos/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".phozos", "state.db"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RequestBase is the prefix for relative request URLs.
func (c *Config) RequestBase() string {
	if c.APIBase != "" {
		return c.APIBase
	}

	return c.Origin
}

// disabledMatch turns off a stale matcher. An empty value cannot be
// used because env falls back to the default for empty variables.
const disabledMatch = "none"

// StalePolicy returns the configured CSRF staleness matcher.
func (c *Config) StalePolicy() apierr.StalePolicy {
	p := apierr.StalePolicy{
		CodePrefix:         c.CSRFStaleCodePrefix,
		ForbiddenSubstring: c.CSRFStaleMessageMatch,
	}

	if strings.EqualFold(p.CodePrefix, disabledMatch) {
		p.CodePrefix = ""
	}

	if strings.EqualFold(p.ForbiddenSubstring, disabledMatch) {
		p.ForbiddenSubstring = ""
	}

	return p
}
