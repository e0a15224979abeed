package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/metrics"
	"github.com/dmitrijs2005/docsync/internal/server/auth"
	"github.com/dmitrijs2005/docsync/internal/server/repositories/objects"
	"github.com/dmitrijs2005/docsync/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

const seedDoc = `[{"id":"p1","title":"One","description":"first"},{"id":"p2","title":"Two","description":"second"}]`

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, inlineLimit int64, mod func(*Options)) (*gin.Engine, *services.ContentsService) {
	t.Helper()
	svc := services.NewContentsService(objects.NewMemoryRepository(), services.Options{Branch: "main", InlineLimit: inlineLimit})
	_, err := svc.Seed(context.Background(), "data/projects.json", []byte(seedDoc))
	require.NoError(t, err)

	opts := Options{Owner: "acme", Repo: "site", SecretKey: secret}
	if mod != nil {
		mod(&opts)
	}
	return NewRouter(svc, opts), svc
}

func token(t *testing.T, scope auth.Scope, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken("tester", scope, secret, ttl)
	require.NoError(t, err)
	return tok
}

func do(r http.Handler, method, target, tok, accept, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Message
}

const contentsURL = "/repos/acme/site/contents/data/projects.json"

func TestAuth(t *testing.T) {
	r, _ := newTestRouter(t, 1<<20, nil)

	w := do(r, http.MethodGet, contentsURL, "", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Requires authentication", message(t, w))

	w = do(r, http.MethodGet, contentsURL, "garbage", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bad credentials", message(t, w))

	w = do(r, http.MethodGet, contentsURL, token(t, auth.ScopeRead, -time.Minute), "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token expired", message(t, w))

	w = do(r, http.MethodGet, contentsURL, token(t, auth.ScopeRead, time.Hour), "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	body := `{"message":"m","content":"W10=","sha":"x"}`
	w = do(r, http.MethodPut, contentsURL, token(t, auth.ScopeRead, time.Hour), "", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetContents_InlineAndRaw(t *testing.T) {
	r, _ := newTestRouter(t, 1<<20, nil)
	tok := token(t, auth.ScopeRead, time.Hour)

	w := do(r, http.MethodGet, contentsURL+"?ref=main", tok, common.MediaTypeJSON, "")
	require.Equal(t, http.StatusOK, w.Code)
	var f services.File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, "file", f.Type)
	assert.Equal(t, "base64", f.Encoding)
	assert.True(t, strings.HasPrefix(f.DownloadURL, "http://example.com/raw/acme/site/"), f.DownloadURL)
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(f.Content, "\n", ""))
	require.NoError(t, err)
	assert.Equal(t, seedDoc, string(data))

	w = do(r, http.MethodGet, contentsURL, tok, common.MediaTypeRaw, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, seedDoc, w.Body.String())

	w = do(r, http.MethodGet, "/repos/acme/site/git/blobs/"+f.SHA, tok, common.MediaTypeRaw, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, seedDoc, w.Body.String())

	w = do(r, http.MethodGet, strings.TrimPrefix(f.DownloadURL, "http://example.com"), tok, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, seedDoc, w.Body.String())
}

func TestGetContents_LargeIsRawShape(t *testing.T) {
	r, _ := newTestRouter(t, 16, func(o *Options) { o.PublicURL = "https://store.example/" })
	w := do(r, http.MethodGet, contentsURL, token(t, auth.ScopeRead, time.Hour), "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var f services.File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, "none", f.Encoding)
	assert.Empty(t, f.Content)
	assert.True(t, strings.HasPrefix(f.DownloadURL, "https://store.example/raw/acme/site/"), f.DownloadURL)
}

func TestPutContents_StatusCodes(t *testing.T) {
	r, svc := newTestRouter(t, 1<<20, nil)
	tok := token(t, auth.ScopeWrite, time.Hour)
	cur, err := svc.GetContents(context.Background(), "data/projects.json", "")
	require.NoError(t, err)

	w := do(r, http.MethodPut, contentsURL, tok, "", `{"message":"m","content":"W10=","sha":"stale"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, message(t, w), "does not match")

	w = do(r, http.MethodPut, contentsURL, tok, "", `{"message":"m","content":"W10="}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(r, http.MethodPut, contentsURL, tok, "", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, contentsURL, tok, "", `{"message":"m","content":"W10=","sha":"`+cur.SHA+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res services.PutContentsResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Commit.SHA)

	w = do(r, http.MethodPut, "/repos/acme/site/contents/new.json", tok, "", `{"message":"m","content":"W10="}`)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestGitRefRoutes(t *testing.T) {
	r, _ := newTestRouter(t, 1<<20, nil)
	tok := token(t, auth.ScopeWrite, time.Hour)

	w := do(r, http.MethodGet, "/repos/acme/site/git/ref/heads/main", tok, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ref services.Ref
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ref))
	assert.Equal(t, "refs/heads/main", ref.Ref)

	w = do(r, http.MethodGet, "/repos/acme/site/git/ref/tags/v1", tok, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPatch, "/repos/acme/site/git/refs/heads/main", tok, "", `{"sha":"`+ref.Object.SHA+`","force":false}`)
	assert.Equal(t, http.StatusOK, w.Code, "moving a ref to its own head is a fast forward")

	w = do(r, http.MethodGet, "/repos/acme/site/git/commits/"+ref.Object.SHA, tok, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWrongRepositoryIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t, 1<<20, nil)
	w := do(r, http.MethodGet, "/repos/other/site/contents/data/projects.json", token(t, auth.ScopeRead, time.Hour), "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", message(t, w))
}

func TestRateLimit(t *testing.T) {
	r, _ := newTestRouter(t, 1<<20, func(o *Options) {
		o.RequestsPerSecond = 0.001
		o.Burst = 1
	})
	tok := token(t, auth.ScopeRead, time.Hour)
	before := testutil.ToFloat64(metrics.RateLimitRejected)

	w := do(r, http.MethodGet, contentsURL, tok, "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, contentsURL, tok, "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "API rate limit exceeded", message(t, w))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitRejected))
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.RegisterServerCollectors(reg)
	r, _ := newTestRouter(t, 1<<20, func(o *Options) { o.Gatherer = reg })

	w := do(r, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docstore_http_requests_total")

	w = do(r, http.MethodGet, "/nowhere", "", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
