// Package httpapi exposes the docstore contents service over the GitHub
// repository contents and git data routes.
package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/server/auth"
	"github.com/dmitrijs2005/docsync/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Owner string
	Repo  string
	// PublicURL is the external base of the server, used in download_url.
	// When empty it is derived from the request.
	PublicURL string
	SecretKey []byte

	RequestsPerSecond float64
	Burst             int

	// Gatherer serves /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

type handler struct {
	svc  *services.ContentsService
	opts Options
}

// NewRouter returns the gin engine serving svc.
func NewRouter(svc *services.ContentsService, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	h := &handler{svc: svc, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), MetricsMiddleware(), LoggingMiddleware(opts.Logger))
	r.NoRoute(func(c *gin.Context) { abort(c, http.StatusNotFound, "Not Found") })

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	protected := []gin.HandlerFunc{AuthMiddleware(opts.SecretKey)}
	if opts.RequestsPerSecond > 0 {
		protected = append(protected, RateLimitMiddleware(opts.RequestsPerSecond, opts.Burst))
	}
	protected = append(protected, h.repository)

	read := RequireScope(auth.ScopeRead)
	write := RequireScope(auth.ScopeWrite)

	repo := r.Group("/repos/:owner/:repo", protected...)
	repo.GET("/contents/*path", read, h.getContents)
	repo.PUT("/contents/*path", write, h.putContents)
	repo.GET("/git/blobs/:sha", read, h.getBlob)
	repo.POST("/git/blobs", write, h.createBlob)
	repo.POST("/git/trees", write, h.createTree)
	repo.GET("/git/commits/:sha", read, h.getCommit)
	repo.POST("/git/commits", write, h.createCommit)
	repo.GET("/git/ref/*ref", read, h.getRef)
	repo.PATCH("/git/refs/*ref", write, h.updateRef)

	rawChain := append(append([]gin.HandlerFunc(nil), protected...), read, h.raw)
	r.GET("/raw/:owner/:repo/:commit/*path", rawChain...)

	return r
}

// repository rejects requests for any repository but the served one.
func (h *handler) repository(c *gin.Context) {
	if c.Param("owner") != h.opts.Owner || c.Param("repo") != h.opts.Repo {
		abort(c, http.StatusNotFound, "Not Found")
		return
	}
	c.Next()
}

func (h *handler) getContents(c *gin.Context) {
	f, err := h.svc.GetContents(c.Request.Context(), c.Param("path"), c.Query("ref"))
	if err != nil {
		h.fail(c, err)
		return
	}
	f.DownloadURL = h.downloadURL(c, f.Commit, f.Path)

	if wantsRaw(c) {
		data, err := h.svc.ReadFile(c.Request.Context(), f.Path, f.Commit)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Data(http.StatusOK, common.MediaTypeRaw, data)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *handler) putContents(c *gin.Context) {
	var req services.PutContentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	res, err := h.svc.PutContents(c.Request.Context(), c.Param("path"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *handler) getBlob(c *gin.Context) {
	sha := c.Param("sha")
	if wantsRaw(c) {
		data, err := h.svc.ReadBlob(c.Request.Context(), sha)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Data(http.StatusOK, common.MediaTypeRaw, data)
		return
	}
	blob, err := h.svc.GetBlob(c.Request.Context(), sha)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, blob)
}

func (h *handler) createBlob(c *gin.Context) {
	var req services.CreateBlobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	out, err := h.svc.CreateBlob(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *handler) createTree(c *gin.Context) {
	var req services.CreateTreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	out, err := h.svc.CreateTree(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *handler) getCommit(c *gin.Context) {
	out, err := h.svc.GetCommit(c.Request.Context(), c.Param("sha"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) createCommit(c *gin.Context) {
	var req services.CreateCommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	out, err := h.svc.CreateCommit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *handler) getRef(c *gin.Context) {
	branch, ok := branchOf(c.Param("ref"))
	if !ok {
		abort(c, http.StatusNotFound, "Not Found")
		return
	}
	out, err := h.svc.GetRef(c.Request.Context(), branch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) updateRef(c *gin.Context) {
	branch, ok := branchOf(c.Param("ref"))
	if !ok {
		abort(c, http.StatusNotFound, "Not Found")
		return
	}
	var req services.UpdateRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	out, err := h.svc.UpdateRef(c.Request.Context(), branch, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) raw(c *gin.Context) {
	data, err := h.svc.ReadFile(c.Request.Context(), c.Param("path"), c.Param("commit"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (h *handler) fail(c *gin.Context, err error) {
	status, msg := services.StatusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	abort(c, status, msg)
}

func (h *handler) downloadURL(c *gin.Context, commit, path string) string {
	base := strings.TrimRight(h.opts.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/raw/" + url.PathEscape(h.opts.Owner) + "/" + url.PathEscape(h.opts.Repo) + "/" + commit + "/" + strings.Join(parts, "/")
}

// branchOf extracts the branch from a "/heads/<branch>" ref parameter.
func branchOf(param string) (string, bool) {
	branch, ok := strings.CutPrefix(strings.TrimPrefix(param, "/"), "heads/")
	return branch, ok && branch != ""
}

func wantsRaw(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), common.MediaTypeRaw)
}
