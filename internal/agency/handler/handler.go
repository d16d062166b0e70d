package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"apb/internal/agency/models"
	identity "apb/internal/identity/models"
	"apb/internal/platform/middleware"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/platform/httputil"
	"apb/pkg/requestcontext"
)

// Service defines the agency operations the handler needs.
type Service interface {
	Create(ctx context.Context, actor identity.Principal, draft models.Draft) (*models.Agency, error)
	Update(ctx context.Context, actor identity.Principal, agencyID id.AgencyID, patch models.Patch) (*models.Agency, error)
	Get(ctx context.Context, agencyID id.AgencyID) (*models.Agency, error)
	List(ctx context.Context) ([]*models.Agency, error)
	Mine(ctx context.Context, actor identity.Principal) (*models.Agency, error)
}

// Handler wires agency directory endpoints to the agency service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts agency endpoints. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/agencies", h.HandleList)
	r.Get("/agencies/mine", h.HandleMine)
	r.Get("/agencies/{id}", h.HandleGet)
	r.Post("/agencies", h.HandleCreate)
	r.Patch("/agencies/{id}", h.HandleUpdate)
}

type listResponse struct {
	Agencies []*models.Agency `json:"agencies"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	agencies, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, "list agencies failed", err)
		return
	}
	if agencies == nil {
		agencies = []*models.Agency{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Agencies: agencies})
}

func (h *Handler) HandleMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.Principal(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	a, err := h.service.Mine(r.Context(), actor)
	if err != nil {
		h.fail(w, r, "load home agency failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	agencyID, err := id.ParseAgencyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.Get(r.Context(), agencyID)
	if err != nil {
		h.fail(w, r, "load agency failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := middleware.Principal(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateAgencyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, err := h.service.Create(ctx, actor, req.Draft())
	if err != nil {
		h.fail(w, r, "create agency failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := middleware.Principal(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	agencyID, err := id.ParseAgencyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateAgencyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, err := h.service.Update(ctx, actor, agencyID, req.Patch())
	if err != nil {
		h.fail(w, r, "update agency failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
