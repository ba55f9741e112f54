package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the lkcubic
// CLI. The core cubic package takes everything it needs as arguments;
// only the CLI reads the environment.
type Config struct {
	// LK account credentials (required).
	Email    string `env:"LK_EMAIL"`
	Password string `env:"LK_PASSWORD"`

	// API origin. The default is the production LK cloud.
	BaseURL string `env:"LK_BASE_URL" envDefault:"https://link2.lk.nu"`

	// Device serial number. When empty the CLI discovers it via the
	// user's structure (and caches the result, see internal/state).
	SerialNumber string `env:"LK_SERIAL_NUMBER"`

	// Timeout applied to every API call.
	HTTPTimeout time.Duration `env:"LK_HTTP_TIMEOUT" envDefault:"30s"`

	// Directory for the local discovery cache. Defaults to
	// ~/.lkcubic when empty.
	CacheDir string `env:"LK_CACHE_DIR"`

	// Environment controls log format; LogLevel the verbosity.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the account password to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
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

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.CacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}

		cfg.CacheDir = dir
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Email == "" {
		return fmt.Errorf("LK_EMAIL is required")
	}

	if c.Password == "" {
		return fmt.Errorf("LK_PASSWORD is required")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("LK_BASE_URL is not a valid URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("LK_BASE_URL must be an http(s) origin, got %q", c.BaseURL)
	}

	if c.HTTPTimeout < 0 {
		return fmt.Errorf("LK_HTTP_TIMEOUT must not be negative")
	}

	return nil
}

// DefaultCacheDir returns the default cache directory: ~/.lkcubic/
func DefaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".lkcubic"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
