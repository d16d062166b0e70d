// Package httptransport assembles the HTTP surface: shared middleware,
// operational endpoints, the live socket and the authenticated module routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"apb/internal/platform/middleware"
	"apb/internal/ratelimit"
	"apb/pkg/platform/httputil"
	"apb/pkg/platform/middleware/metadata"
	"apb/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the pieces the router is assembled from. Metrics, Live, Limits
// and Checks are optional.
type Deps struct {
	Logger  *slog.Logger
	Gate    middleware.Admitter
	Metrics http.Handler
	Live    http.Handler
	Limits  *ratelimit.Middleware
	Checks  map[string]HealthCheck
	Modules []Registrar
}

// NewRouter wires every endpoint. Module routes sit behind bearer
// authentication; /live authenticates inside the socket handshake.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))

	r.Get("/healthz", healthHandler(d.Checks, d.Logger))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Live != nil {
		live := d.Live
		if d.Limits != nil {
			live = d.Limits.Connects(live)
		}
		r.Method(http.MethodGet, "/live", live)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Gate, d.Logger))
		if d.Limits != nil {
			r.Use(d.Limits.Writes)
		}
		for _, m := range d.Modules {
			m.Register(r)
		}
	})
	return r
}

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
