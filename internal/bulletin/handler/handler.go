package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"apb/internal/bulletin/models"
	"apb/internal/bulletin/service"
	"apb/internal/geo"
	identity "apb/internal/identity/models"
	"apb/internal/platform/middleware"
	"apb/internal/scope"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/platform/httputil"
	"apb/pkg/requestcontext"
)

// Service defines the bulletin operations the handler needs.
type Service interface {
	Create(ctx context.Context, actor service.Actor, draft models.Draft) (*models.Bulletin, error)
	Update(ctx context.Context, actor service.Actor, bulletinID id.BulletinID, patch models.Patch) (*models.Bulletin, error)
	Get(ctx context.Context, bulletinID id.BulletinID, scopes scope.Set) (*models.Bulletin, error)
	ListForScope(ctx context.Context, agencyID id.AgencyID) ([]*models.Bulletin, error)
	ListVisible(ctx context.Context, scopes scope.Set) ([]*models.Bulletin, error)
	FindNearby(ctx context.Context, origin geo.Coordinate, radiusKm float64, scopes scope.Set) ([]service.Nearby, error)
}

// ScopeResolver turns the authenticated principal into the agencies it may
// act within.
type ScopeResolver interface {
	ScopesFor(ctx context.Context, principal identity.Principal) (scope.Set, error)
}

// Handler wires bulletin endpoints to the bulletin service. Every request
// resolves its scopes once, up front.
type Handler struct {
	service Service
	scopes  ScopeResolver
	logger  *slog.Logger
}

func New(service Service, scopes ScopeResolver, logger *slog.Logger) *Handler {
	return &Handler{service: service, scopes: scopes, logger: logger}
}

// Register mounts bulletin endpoints. The router must already require auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/bulletins", h.HandleList)
	r.Post("/bulletins", h.HandleCreate)
	r.Get("/bulletins/nearby", h.HandleNearby)
	r.Get("/bulletins/{id}", h.HandleGet)
	r.Patch("/bulletins/{id}", h.HandleUpdate)
	r.Put("/bulletins/{id}", h.HandleUpdate)
}

type listResponse struct {
	Bulletins []*models.Bulletin `json:"bulletins"`
}

type nearbyResponse struct {
	RadiusKm float64          `json:"radius_km"`
	Results  []service.Nearby `json:"results"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateBulletinRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	b, err := h.service.Create(ctx, actor, req.Draft())
	if err != nil {
		h.fail(w, r, "create bulletin failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	bulletinID, err := id.ParseBulletinID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateBulletinRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	b, err := h.service.Update(ctx, actor, bulletinID, req.Patch())
	if err != nil {
		h.fail(w, r, "update bulletin failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	bulletinID, err := id.ParseBulletinID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	b, err := h.service.Get(r.Context(), bulletinID, actor.Scopes)
	if err != nil {
		h.fail(w, r, "load bulletin failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

// HandleList lists active bulletins. With ?agency= it lists that one scope,
// which the caller must hold; otherwise it merges every scope the caller holds.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var (
		bulletins []*models.Bulletin
		err       error
	)
	if raw := r.URL.Query().Get("agency"); raw != "" {
		agencyID, parseErr := id.ParseAgencyID(raw)
		if parseErr != nil {
			httputil.WriteError(w, dErrors.UnderField("agency", parseErr))
			return
		}
		if !actor.Scopes.Contains(agencyID) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "agency is outside your scope"))
			return
		}
		bulletins, err = h.service.ListForScope(ctx, agencyID)
	} else {
		bulletins, err = h.service.ListVisible(ctx, actor.Scopes)
	}
	if err != nil {
		h.fail(w, r, "list bulletins failed", err)
		return
	}
	if bulletins == nil {
		bulletins = []*models.Bulletin{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Bulletins: bulletins})
}

// HandleNearby serves GET /bulletins/nearby?lat=&lng=&radius=.
func (h *Handler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	lat, err := parseFloat(q.Get("lat"), "lat", true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lng, err := parseFloat(q.Get("lng"), "lng", true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	radius, err := parseFloat(q.Get("radius"), "radius", false)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if radius == 0 {
		radius = service.DefaultRadiusKm
	}

	results, err := h.service.FindNearby(r.Context(), geo.Coordinate{Lat: lat, Lng: lng}, radius, actor.Scopes)
	if err != nil {
		h.fail(w, r, "nearby search failed", err)
		return
	}
	if results == nil {
		results = []service.Nearby{}
	}
	httputil.WriteJSON(w, http.StatusOK, nearbyResponse{RadiusKm: radius, Results: results})
}

func parseFloat(raw, field string, required bool) (float64, error) {
	if raw == "" {
		if required {
			return 0, dErrors.Invalid(field, field+" is required")
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, dErrors.Invalid(field, field+" must be a number")
	}
	return v, nil
}

// actor loads the authenticated principal and resolves its scopes. On
// failure it writes the response and returns false.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	principal, ok := middleware.Principal(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return service.Actor{}, false
	}
	scopes, err := h.scopes.ScopesFor(r.Context(), principal)
	if err != nil {
		h.fail(w, r, "scope resolution failed", err)
		return service.Actor{}, false
	}
	return service.Actor{Principal: principal, Scopes: scopes}, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeTransactionAborted:
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}
