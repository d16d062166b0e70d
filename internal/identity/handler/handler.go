package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	identity "apb/internal/identity/models"
	"apb/internal/platform/middleware"
	"apb/internal/scope"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/platform/httputil"
	"apb/pkg/requestcontext"
)

// ScopeResolver resolves the agencies a principal may see.
type ScopeResolver interface {
	ScopesFor(ctx context.Context, principal identity.Principal) (scope.Set, error)
}

// Handler serves the caller's own identity.
type Handler struct {
	scopes ScopeResolver
	logger *slog.Logger
}

func New(scopes ScopeResolver, logger *slog.Logger) *Handler {
	return &Handler{scopes: scopes, logger: logger}
}

// Register mounts identity endpoints. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.HandleMe)
}

type meResponse struct {
	identity.Principal
	Agencies []id.AgencyID `json:"agencies"`
}

// HandleMe returns the authenticated principal and the agencies it is scoped to.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := middleware.Principal(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	scopes, err := h.scopes.ScopesFor(ctx, principal)
	if err != nil {
		h.logger.ErrorContext(ctx, "resolve scopes failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", principal.UserID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meResponse{Principal: principal, Agencies: scopes.IDs()})
}
