// Package config handles configuration for the docstore server: defaults,
// an optional JSON or YAML file, DOCSTORE_* environment variables and
// command-line flags, layered by viper.
package config

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingHTTPAddr = errors.New("config: http_addr is required")
	ErrUnknownBackend  = errors.New("config: backend must be memory, sqlite or postgres")
	ErrMissingDSN      = errors.New("config: database_dsn is required for sql backends")
	ErrMissingSecret   = errors.New("config: secret_key is required")
	ErrMissingRepo     = errors.New("config: owner, repo and branch are required")
	ErrInvalidLimit    = errors.New("config: inline_limit must be positive")
)

// Config holds runtime settings for the docstore server.
//
// Fields:
//   - HTTPAddr / GRPCAddr: bind addresses; an empty GRPCAddr disables the health service.
//   - Backend: object repository (memory, sqlite or postgres).
//   - DatabaseDSN: sqlite file path or PostgreSQL DSN (pgx).
//   - SecretKey: HMAC secret for bearer tokens (HS256). Do not use test defaults in prod.
//   - InlineLimit: documents above this size are served in the raw shape.
//   - PublicURL: externally visible base URL used in download_url.
//   - SeedPath / SeedFile: initial document committed on start when absent.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`

	Backend     string `mapstructure:"backend"`
	DatabaseDSN string `mapstructure:"database_dsn"`

	SecretKey string        `mapstructure:"secret_key"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`

	Owner  string `mapstructure:"owner"`
	Repo   string `mapstructure:"repo"`
	Branch string `mapstructure:"branch"`

	InlineLimit int64  `mapstructure:"inline_limit"`
	PublicURL   string `mapstructure:"public_url"`

	SeedPath string `mapstructure:"seed_path"`
	SeedFile string `mapstructure:"seed_file"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	LogLevel string `mapstructure:"log_level"`
}

// Default returns development defaults.
// NOTE: the secret key is insecure and must be overridden in production.
func Default() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		Backend:     "memory",
		DatabaseDSN: "",
		SecretKey:   "secretKey",
		TokenTTL:    24 * time.Hour,
		Owner:       "local",
		Repo:        "site",
		Branch:      "main",
		InlineLimit: 1 << 20,
		SeedPath:    "data/projects.json",
		Burst:       20,
		LogLevel:    "info",
	}
}

// Validate reports the first setting that prevents the server from starting.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return ErrMissingHTTPAddr
	}
	switch c.Backend {
	case "memory":
	case "sqlite", "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("%w: %s", ErrMissingDSN, c.Backend)
		}
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownBackend, c.Backend)
	}
	if c.SecretKey == "" {
		return ErrMissingSecret
	}
	if c.Owner == "" || c.Repo == "" || c.Branch == "" {
		return ErrMissingRepo
	}
	if c.InlineLimit <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
