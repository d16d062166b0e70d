package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"apb/internal/agency/models"
	identity "apb/internal/identity/models"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/platform/sentinel"
	"apb/pkg/requestcontext"
)

// Store is the persistence contract for agencies.
type Store interface {
	Create(ctx context.Context, a *models.Agency) error
	Update(ctx context.Context, a *models.Agency) error
	FindByID(ctx context.Context, agencyID id.AgencyID) (*models.Agency, error)
	List(ctx context.Context) ([]*models.Agency, error)
}

// Service manages the agency directory. Writes are restricted to elevated
// principals; every authenticated principal may read the directory so that
// bulletin authors can pick recipients.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, actor identity.Principal, draft models.Draft) (*models.Agency, error) {
	if !actor.Role.Elevated() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators can register agencies")
	}
	a, err := models.NewAgency(id.AgencyID(uuid.New()), draft, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "agency already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create agency")
	}
	s.logger.InfoContext(ctx, "agency created",
		"agency_id", a.ID,
		"actor_id", actor.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return a, nil
}

func (s *Service) Update(ctx context.Context, actor identity.Principal, agencyID id.AgencyID, patch models.Patch) (*models.Agency, error) {
	if !actor.Role.Elevated() {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators can edit agencies")
	}
	a, err := s.Get(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if err := a.Apply(patch); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "agency not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update agency")
	}
	s.logger.InfoContext(ctx, "agency updated",
		"agency_id", a.ID,
		"actor_id", actor.UserID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return a, nil
}

func (s *Service) Get(ctx context.Context, agencyID id.AgencyID) (*models.Agency, error) {
	a, err := s.store.FindByID(ctx, agencyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "agency not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load agency")
	}
	return a, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Agency, error) {
	agencies, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list agencies")
	}
	return agencies, nil
}

// Mine returns the caller's home agency.
func (s *Service) Mine(ctx context.Context, actor identity.Principal) (*models.Agency, error) {
	return s.Get(ctx, actor.HomeAgencyID)
}
