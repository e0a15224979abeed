package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	ErrMissingAPIURL  = errors.New("config: api_url is required")
	ErrInvalidAPIURL  = errors.New("config: api_url must be an absolute http(s) URL")
	ErrMissingRepo    = errors.New("config: owner and repo are required")
	ErrMissingPath    = errors.New("config: path is required")
	ErrInvalidRetries = errors.New("config: max_retries must not be negative")
	ErrInvalidBackoff = errors.New("config: backoff_base must be positive and not above backoff_cap")
	ErrInvalidLimit   = errors.New("config: inline_limit must be positive")
)

// Config holds runtime settings for the docsync CLI.
type Config struct {
	APIURL string `mapstructure:"api_url"`
	Owner  string `mapstructure:"owner"`
	Repo   string `mapstructure:"repo"`
	Branch string `mapstructure:"branch"`
	Path   string `mapstructure:"path"`
	Token  string `mapstructure:"token"`

	InlineLimit int64 `mapstructure:"inline_limit"`

	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`

	VerifyAfterWrite bool   `mapstructure:"verify_after_write"`
	VerifyBlobHash   bool   `mapstructure:"verify_blob_hash"`
	CommitMessage    string `mapstructure:"commit_message"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	S3 S3Config `mapstructure:"s3"`
}

// S3Config configures the media upload target.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	PublicURL string `mapstructure:"public_url"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIURL:         "https://api.github.com",
		Branch:         "main",
		Path:           "data/projects.json",
		InlineLimit:    1 << 20,
		MaxRetries:     3,
		BackoffBase:    500 * time.Millisecond,
		BackoffCap:     3 * time.Second,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "warn",
		LogFormat:      "text",
		S3:             S3Config{Region: "us-east-1", Prefix: "media"},
	}
}

// Validate checks the settings needed to reach the document.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return ErrMissingAPIURL
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAPIURL, c.APIURL)
	}
	if c.Owner == "" || c.Repo == "" {
		return ErrMissingRepo
	}
	if c.Path == "" {
		return ErrMissingPath
	}
	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if c.BackoffBase <= 0 || (c.BackoffCap > 0 && c.BackoffCap < c.BackoffBase) {
		return ErrInvalidBackoff
	}
	if c.InlineLimit <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
