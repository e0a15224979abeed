package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/metrics"
	"github.com/dmitrijs2005/docsync/internal/timex"
	"golang.org/x/time/rate"
)

const (
	// DefaultInlineLimit is the largest serialized document written
	// through the contents endpoint; bigger ones go through the git data
	// endpoints.
	DefaultInlineLimit = 1 << 20

	DefaultBranch = "main"

	maxResponseBytes = 100 << 20
)

var ErrResponseTooLarge = errors.New("response body exceeds limit")

// Config configures an HTTPClient.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.github.com".
	BaseURL string

	Owner  string
	Repo   string
	Branch string
	// Path of the document inside the repository.
	Path string

	// InlineLimit defaults to DefaultInlineLimit.
	InlineLimit int

	// CommitMessage is used for writes whose context carries no message.
	CommitMessage string

	// VerifyBlobHash checks that fetched content hashes to the reported
	// sha as a git blob.
	VerifyBlobHash bool

	// Timeout bounds each request. Zero means no limit beyond ctx.
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables it.
	RequestsPerSecond float64

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	Clock  timex.Clock
	Logger logging.Logger
}

// HTTPClient speaks the repository contents dialect of the store.
// It is safe for concurrent use.
type HTTPClient struct {
	cfg     Config
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	clock   timex.Clock
	logger  logging.Logger

	// rawHash is the hash of the last document the store served in the raw
	// shape. A write conditioned on it skips the contents endpoint.
	mu      sync.Mutex
	rawHash string
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("store client: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("store client: base url: %w", err)
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("store client: owner and repo are required")
	}
	if strings.Trim(cfg.Path, "/") == "" {
		return nil, errors.New("store client: document path is required")
	}
	cfg.Path = strings.Trim(cfg.Path, "/")
	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}
	if cfg.InlineLimit <= 0 {
		cfg.InlineLimit = DefaultInlineLimit
	}
	if cfg.CommitMessage == "" {
		cfg.CommitMessage = "Update " + cfg.Path
	}

	c := &HTTPClient{
		cfg:     cfg,
		baseURL: base,
		http:    cfg.HTTPClient,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.clock == nil {
		c.clock = timex.Real()
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	c.logger = c.logger.With("module", "store_client")
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

func (c *HTTPClient) checkCredential(op string, cred Credential) error {
	if cred.Token == "" {
		return &common.PermissionError{Op: op, Message: "no credential"}
	}
	if cred.Expired(c.clock.Now()) {
		return &common.PermissionError{Op: op, Err: common.ErrTokenExpired}
	}
	return nil
}

func (c *HTTPClient) repoURL(suffix string) string {
	return c.baseURL + "/repos/" + url.PathEscape(c.cfg.Owner) + "/" + url.PathEscape(c.cfg.Repo) + "/" + suffix
}

func (c *HTTPClient) contentsURL(ref string) string {
	u := c.repoURL("contents/" + escapePath(c.cfg.Path))
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}
	return u
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// do sends one request and returns the response body. Non-2xx responses
// come back as *APIError.
func (c *HTTPClient) do(ctx context.Context, cred Credential, method, target, accept string, in any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if accept == "" {
		accept = common.MediaTypeJSON
	}
	if c.sameHost(target) {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+cred.Token)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set(common.APIVersionHeaderName, common.APIVersion)
	req.Header.Set("Cache-Control", "no-cache")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.Requests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	metrics.Requests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", method, target, err)
	}
	c.logger.Debug(ctx, "store request", "method", method, "url", target, "status", resp.StatusCode, "bytes", len(data), "elapsed", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *HTTPClient) sameHost(target string) bool {
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	b, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return t.Host == b.Host
}

func readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// jsonKind names the top-level JSON type of data.
func jsonKind(data []byte) string {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return "empty body"
	}
	switch data[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	default:
		return "scalar"
	}
}
