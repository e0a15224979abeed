package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/docsync/internal/filex"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "DOCSYNC"

// FlagKeys maps CLI flag names to configuration keys.
var FlagKeys = map[string]string{
	"api-url":            "api_url",
	"owner":              "owner",
	"repo":               "repo",
	"branch":             "branch",
	"path":               "path",
	"max-retries":        "max_retries",
	"verify-after-write": "verify_after_write",
	"log-level":          "log_level",
	"log-format":         "log_format",
}

// NewViper returns a viper instance carrying the defaults and reading
// DOCSYNC_* environment variables (DOCSYNC_S3_BUCKET for s3.bucket).
func NewViper() *viper.Viper {
	v := viper.NewWithOptions(viper.EnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("api_url", d.APIURL)
	v.SetDefault("owner", d.Owner)
	v.SetDefault("repo", d.Repo)
	v.SetDefault("branch", d.Branch)
	v.SetDefault("path", d.Path)
	v.SetDefault("token", d.Token)
	v.SetDefault("inline_limit", d.InlineLimit)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("backoff_base", d.BackoffBase)
	v.SetDefault("backoff_cap", d.BackoffCap)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("requests_per_second", d.RequestsPerSecond)
	v.SetDefault("verify_after_write", d.VerifyAfterWrite)
	v.SetDefault("verify_blob_hash", d.VerifyBlobHash)
	v.SetDefault("commit_message", d.CommitMessage)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.bucket", d.S3.Bucket)
	v.SetDefault("s3.access_key", d.S3.AccessKey)
	v.SetDefault("s3.secret_key", d.S3.SecretKey)
	v.SetDefault("s3.prefix", d.S3.Prefix)
	v.SetDefault("s3.public_url", d.S3.PublicURL)
	return v
}

// Load reads the optional config file at path (JSON or YAML, by
// extension) into v and decodes the result. Flags bound to v before the
// call take precedence over the file and the environment.
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

// fileConfig is the YAML layout written by WriteFile.
type fileConfig struct {
	APIURL           string `yaml:"api_url"`
	Owner            string `yaml:"owner"`
	Repo             string `yaml:"repo"`
	Branch           string `yaml:"branch"`
	Path             string `yaml:"path"`
	MaxRetries       int    `yaml:"max_retries"`
	BackoffBase      string `yaml:"backoff_base"`
	BackoffCap       string `yaml:"backoff_cap"`
	RequestTimeout   string `yaml:"request_timeout"`
	VerifyAfterWrite bool   `yaml:"verify_after_write"`
	LogLevel         string `yaml:"log_level"`
	S3               struct {
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint,omitempty"`
		Bucket   string `yaml:"bucket,omitempty"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"s3"`
}

// ErrExists is returned by WriteFile when the target exists.
var ErrExists = errors.New("config: file already exists")

// WriteFile writes cfg to path as YAML. The token and S3 secrets are never
// written; supply them through the environment.
func WriteFile(path string, cfg Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	var fc fileConfig
	fc.APIURL = cfg.APIURL
	fc.Owner = cfg.Owner
	fc.Repo = cfg.Repo
	fc.Branch = cfg.Branch
	fc.Path = cfg.Path
	fc.MaxRetries = cfg.MaxRetries
	fc.BackoffBase = cfg.BackoffBase.String()
	fc.BackoffCap = cfg.BackoffCap.String()
	fc.RequestTimeout = cfg.RequestTimeout.String()
	fc.VerifyAfterWrite = cfg.VerifyAfterWrite
	fc.LogLevel = cfg.LogLevel
	fc.S3.Region = cfg.S3.Region
	fc.S3.Endpoint = cfg.S3.Endpoint
	fc.S3.Bucket = cfg.S3.Bucket
	fc.S3.Prefix = cfg.S3.Prefix

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return err
	}
	if _, err := filex.EnsureParentDir(path); err != nil {
		return err
	}
	header := "# docsync configuration. The token is read from DOCSYNC_TOKEN.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0o600)
}
