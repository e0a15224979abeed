package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/metrics"
	"github.com/dmitrijs2005/docsync/internal/server/auth"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const claimsKey = "claims"

// AuthMiddleware verifies the bearer token and stores its claims on the
// context. Both "Bearer" and "token" schemes are accepted.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		if header == "" {
			abort(c, http.StatusUnauthorized, "Requires authentication")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || (!strings.EqualFold(scheme, "bearer") && !strings.EqualFold(scheme, "token")) || token == "" {
			abort(c, http.StatusUnauthorized, "Bad credentials")
			return
		}

		claims, err := auth.ParseToken(strings.TrimSpace(token), secret)
		if errors.Is(err, common.ErrTokenExpired) {
			abort(c, http.StatusUnauthorized, "token expired")
			return
		}
		if err != nil {
			abort(c, http.StatusUnauthorized, "Bad credentials")
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireScope rejects tokens whose scope does not allow want.
func RequireScope(want auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFrom(c)
		if !ok || !claims.Scope.Allows(want) {
			abort(c, http.StatusForbidden, "Resource not accessible by token")
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// limiterIdleTTL is how long a caller's bucket is kept after its last
// request. A bucket idle that long is full again.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterStore holds one token bucket per caller. Idle buckets are swept
// at most once per ttl, on the request path.
type limiterStore struct {
	mu        sync.Mutex
	rps       float64
	burst     int
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	limiters  map[string]*limiterEntry
}

func newLimiterStore(rps float64, burst int) *limiterStore {
	return &limiterStore{
		rps:      rps,
		burst:    burst,
		ttl:      limiterIdleTTL,
		now:      time.Now,
		limiters: make(map[string]*limiterEntry),
	}
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= s.ttl {
		s.sweep(now)
	}
	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(s.rps), s.burst)}
		s.limiters[key] = e
	}
	e.seen = now
	return e.lim
}

// sweep drops buckets idle for ttl or longer. Callers hold s.mu.
func (s *limiterStore) sweep(now time.Time) {
	for k, e := range s.limiters {
		if now.Sub(e.seen) >= s.ttl {
			delete(s.limiters, k)
		}
	}
	s.lastSweep = now
}

func (s *limiterStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimitMiddleware enforces rps requests per second per caller, keyed by
// token subject when authenticated and by client IP otherwise.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	if burst < 1 {
		burst = 1
	}
	store := newLimiterStore(rps, burst)
	return func(c *gin.Context) {
		var key string
		if claims, ok := claimsFrom(c); ok && claims.Subject != "" {
			key = "sub:" + claims.Subject
		} else {
			key = "ip:" + c.ClientIP()
		}

		if !store.get(key).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.Inc()
			abort(c, http.StatusTooManyRequests, "API rate limit exceeded")
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request counts and latency by route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
	}
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"elapsed", time.Since(started),
		}
		if status >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "request failed", append(args, "errors", c.Errors.String())...)
			return
		}
		logger.Debug(c.Request.Context(), "request", args...)
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}
