package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	c := Default()
	c.Owner = "acme"
	c.Repo = "site"
	return c
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	if diff := cmp.Diff(Default(), *cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: http://127.0.0.1:8080
owner: acme
repo: site
backoff_base: 250ms
verify_after_write: true
s3:
  bucket: media
`), 0o600))
	t.Setenv("DOCSYNC_REPO", "other")
	t.Setenv("DOCSYNC_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("DOCSYNC_MAX_RETRIES", "5")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	want := Default()
	want.APIURL = "http://127.0.0.1:8080"
	want.Owner = "acme"
	want.Repo = "other"
	want.BackoffBase = 250 * time.Millisecond
	want.MaxRetries = 5
	want.VerifyAfterWrite = true
	want.S3.Bucket = "media"
	want.S3.Endpoint = "http://minio:9000"

	if diff := cmp.Diff(want, *cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
}

func TestLoad_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsync.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"owner":"acme","repo":"site","request_timeout":"5s"}`), 0o600))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Owner)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoad_OverrideWins(t *testing.T) {
	t.Setenv("DOCSYNC_BRANCH", "from-env")
	v := NewViper()
	v.Set("branch", "from-flag")

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Branch)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"ok", func(*Config) {}, nil},
		{"no api url", func(c *Config) { c.APIURL = "" }, ErrMissingAPIURL},
		{"relative api url", func(c *Config) { c.APIURL = "/api" }, ErrInvalidAPIURL},
		{"ftp api url", func(c *Config) { c.APIURL = "ftp://example.com" }, ErrInvalidAPIURL},
		{"no repo", func(c *Config) { c.Repo = "" }, ErrMissingRepo},
		{"no path", func(c *Config) { c.Path = "" }, ErrMissingPath},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, ErrInvalidRetries},
		{"zero backoff", func(c *Config) { c.BackoffBase = 0 }, ErrInvalidBackoff},
		{"cap below base", func(c *Config) { c.BackoffCap = time.Millisecond }, ErrInvalidBackoff},
		{"zero inline limit", func(c *Config) { c.InlineLimit = 0 }, ErrInvalidLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsync.yaml")
	c := validConfig()
	c.Token = "secret"
	c.S3.Bucket = "media"
	c.BackoffCap = 2 * time.Second

	require.NoError(t, WriteFile(path, c, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	got, err := Load(NewViper(), path)
	require.NoError(t, err)
	c.Token = ""
	if diff := cmp.Diff(c, *got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	assert.ErrorIs(t, WriteFile(path, c, false), ErrExists)
	assert.NoError(t, WriteFile(path, c, true))
}
