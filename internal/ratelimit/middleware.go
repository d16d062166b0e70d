package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/platform/httputil"
	"apb/pkg/requestcontext"
)

// Rule is a limit per window. A zero Limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

func (r Rule) enabled() bool { return r.Limit > 0 && r.Window > 0 }

// Middleware applies rules to HTTP routes. A failed check lets the request
// through.
type Middleware struct {
	limiter  Limiter
	writes   Rule
	connects Rule
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithWrites limits mutating requests per authenticated user.
func WithWrites(rule Rule) Option {
	return func(m *Middleware) {
		m.writes = rule
	}
}

// WithConnects limits live connection attempts per client IP.
func WithConnects(rule Rule) Option {
	return func(m *Middleware) {
		m.connects = rule
	}
}

func New(limiter Limiter, opts ...Option) *Middleware {
	m := &Middleware{limiter: limiter, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Writes limits POST, PATCH, PUT and DELETE per user. It must run after
// authentication; anonymous requests pass untouched.
func (m *Middleware) Writes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		userID := requestcontext.UserID(r.Context())
		if !m.writes.enabled() || userID == (id.UserID{}) {
			next.ServeHTTP(w, r)
			return
		}
		if m.check(w, r, "writes", "write:user:"+userID.String(), m.writes) {
			next.ServeHTTP(w, r)
		}
	})
}

// Connects limits live connection attempts per client IP.
func (m *Middleware) Connects(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := requestcontext.ClientIP(r.Context())
		if !m.connects.enabled() || ip == "" {
			next.ServeHTTP(w, r)
			return
		}
		if m.check(w, r, "connects", "live:ip:"+ip, m.connects) {
			next.ServeHTTP(w, r)
		}
	})
}

// check reports whether the request may proceed. On rejection it has already
// written the 429 response.
func (m *Middleware) check(w http.ResponseWriter, r *http.Request, rule, key string, limit Rule) bool {
	ctx := r.Context()
	result, err := m.limiter.Allow(ctx, key, limit.Limit, limit.Window)
	if err != nil {
		m.metrics.failed()
		m.logger.ErrorContext(ctx, "rate limit check failed",
			"rule", rule,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return true
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if result.Allowed {
		return true
	}

	m.metrics.rejected(rule)
	m.logger.WarnContext(ctx, "rate limit exceeded",
		"rule", rule,
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx).String(),
		"client_ip", requestcontext.ClientIP(ctx),
	)
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(m.now())))
	httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
	return false
}
