package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "DOCSTORE"

// FlagKeys maps serve flags to configuration keys.
var FlagKeys = map[string]string{
	"http-addr":    "http_addr",
	"grpc-addr":    "grpc_addr",
	"backend":      "backend",
	"database-dsn": "database_dsn",
	"inline-limit": "inline_limit",
	"public-url":   "public_url",
	"seed-file":    "seed_file",
	"log-level":    "log_level",
	"rate-limit":   "requests_per_second",
}

// NewViper returns a viper instance with the defaults and DOCSTORE_*
// environment lookup.
func NewViper() *viper.Viper {
	v := viper.NewWithOptions(viper.EnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("grpc_addr", d.GRPCAddr)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("database_dsn", d.DatabaseDSN)
	v.SetDefault("secret_key", d.SecretKey)
	v.SetDefault("token_ttl", d.TokenTTL)
	v.SetDefault("owner", d.Owner)
	v.SetDefault("repo", d.Repo)
	v.SetDefault("branch", d.Branch)
	v.SetDefault("inline_limit", d.InlineLimit)
	v.SetDefault("public_url", d.PublicURL)
	v.SetDefault("seed_path", d.SeedPath)
	v.SetDefault("seed_file", d.SeedFile)
	v.SetDefault("requests_per_second", d.RequestsPerSecond)
	v.SetDefault("burst", d.Burst)
	v.SetDefault("log_level", d.LogLevel)
	return v
}

// Load reads the optional file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}
