package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"apb/internal/bulletin/metrics"
	"apb/internal/bulletin/models"
	"apb/internal/bulletin/store"
	"apb/internal/geo"
	identity "apb/internal/identity/models"
	"apb/internal/scope"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/platform/sentinel"
	"apb/pkg/requestcontext"
)

// Store is the persistence contract for bulletins. Reads run outside any
// transaction; writes go through RunInTx.
type Store interface {
	FindByID(ctx context.Context, bulletinID id.BulletinID) (*models.Bulletin, error)
	ListActiveByAgency(ctx context.Context, agencyID id.AgencyID) ([]*models.Bulletin, error)
	ListActiveInBounds(ctx context.Context, box geo.Bounds) ([]*models.Bulletin, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error
}

// AgencyChecker reports which of the given agency ids are not registered.
type AgencyChecker interface {
	Missing(ctx context.Context, agencyIDs []id.AgencyID) ([]id.AgencyID, error)
}

// Publisher delivers a committed event to live connections. It must not block
// on slow consumers and has no way to fail the write.
type Publisher interface {
	Publish(ctx context.Context, evt models.Event)
}

// EventLog records an event inside the write transaction, so downstream
// consumers see exactly the committed writes.
type EventLog interface {
	Append(ctx context.Context, evt models.Event) error
}

// Actor is an authenticated principal together with the scopes resolved for
// it at the start of the request.
type Actor struct {
	Principal identity.Principal
	Scopes    scope.Set
}

// Nearby is a proximity match and its distance from the query origin.
type Nearby struct {
	Bulletin   *models.Bulletin `json:"bulletin"`
	DistanceKm float64          `json:"distance_km"`
}

const (
	// DefaultRadiusKm applies when a proximity query names no radius.
	DefaultRadiusKm = 50.0
	// MaxNearbyResults caps a proximity result after both filters ran.
	MaxNearbyResults = 100
)

// maxRadiusKm is half the Earth's circumference; every point is within it.
var maxRadiusKm = math.Pi * geo.EarthRadiusKm

// Service owns the bulletin lifecycle: validated writes in one transaction,
// scoped reads, and post-commit fan-out of lifecycle events.
type Service struct {
	store     Store
	agencies  AgencyChecker
	publisher Publisher
	events    EventLog
	locks     recordLocks
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEventLog appends every lifecycle event to log inside the write
// transaction.
func WithEventLog(log EventLog) Option {
	return func(s *Service) {
		s.events = log
	}
}

func New(st Store, agencies AgencyChecker, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		store:     st,
		agencies:  agencies,
		publisher: publisher,
		logger:    slog.Default(),
		tracer:    otel.Tracer("apb/internal/bulletin/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the draft, persists the bulletin and its authorization set
// in one transaction and, after commit, publishes a created event to the
// agencies in the set.
func (s *Service) Create(ctx context.Context, actor Actor, draft models.Draft) (_ *models.Bulletin, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "bulletin.Create")
	defer func() { s.finish(span, "create", start, err) }()

	if !actor.Principal.Resolvable() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if actor.Scopes.Empty() {
		return nil, dErrors.New(dErrors.CodeForbidden, "no agency scope to publish from")
	}

	b, err := models.NewBulletin(id.NewBulletinID(), draft, actor.Principal.UserID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("bulletin.id", b.ID.String()))

	unlock := s.locks.lock(b.ID)
	defer unlock()

	evt := models.NewEvent(models.EventCreated, b)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := s.requireKnownAgencies(ctx, b.Agencies); err != nil {
			return err
		}
		if err := tx.Insert(ctx, b); err != nil {
			return s.writeFailure(ctx, "insert bulletin", err)
		}
		if err := tx.ReplaceAgencies(ctx, b.ID, b.Agencies); err != nil {
			return s.associationFailure(ctx, err)
		}
		return s.appendEvent(ctx, evt)
	})
	if err != nil {
		return nil, s.txFailure(ctx, err)
	}

	s.publish(ctx, evt)
	s.logger.InfoContext(ctx, "bulletin created",
		"request_id", requestcontext.RequestID(ctx),
		"bulletin_id", b.ID.String(),
		"user_id", actor.Principal.UserID.String(),
		"agencies", len(b.Agencies),
	)
	return b.Clone(), nil
}

// Update applies a partial patch under the record's lock. A new authorization
// set replaces every association in the same transaction, and the updated
// event goes to the new set only.
func (s *Service) Update(ctx context.Context, actor Actor, bulletinID id.BulletinID, patch models.Patch) (_ *models.Bulletin, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "bulletin.Update",
		trace.WithAttributes(attribute.String("bulletin.id", bulletinID.String())))
	defer func() { s.finish(span, "update", start, err) }()

	if !actor.Principal.Resolvable() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if patch.ReplacesAgencies() {
		if err := models.ValidateAgencies(models.DedupeAgencies(*patch.Agencies)); err != nil {
			return nil, err
		}
	}

	unlock := s.locks.lock(bulletinID)
	defer unlock()

	var updated *models.Bulletin
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.FindForUpdate(ctx, bulletinID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return errBulletinNotFound
			}
			return s.writeFailure(ctx, "lock bulletin", err)
		}
		if err := authorizeUpdate(actor, b); err != nil {
			return err
		}
		if patch.ReplacesAgencies() {
			if err := s.requireKnownAgencies(ctx, *patch.Agencies); err != nil {
				return err
			}
		}
		if err := b.Apply(patch, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := tx.Update(ctx, b); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return errBulletinNotFound
			}
			return s.writeFailure(ctx, "update bulletin", err)
		}
		if patch.ReplacesAgencies() {
			if err := tx.ReplaceAgencies(ctx, b.ID, b.Agencies); err != nil {
				return s.associationFailure(ctx, err)
			}
		}
		if err := s.appendEvent(ctx, models.NewEvent(models.EventUpdated, b)); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, s.txFailure(ctx, err)
	}

	s.publish(ctx, models.NewEvent(models.EventUpdated, updated))
	s.logger.InfoContext(ctx, "bulletin updated",
		"request_id", requestcontext.RequestID(ctx),
		"bulletin_id", bulletinID.String(),
		"user_id", actor.Principal.UserID.String(),
		"agencies_replaced", patch.ReplacesAgencies(),
	)
	return updated.Clone(), nil
}

// Get returns a bulletin visible to scopes. An invisible bulletin is reported
// exactly like a missing one.
func (s *Service) Get(ctx context.Context, bulletinID id.BulletinID, scopes scope.Set) (*models.Bulletin, error) {
	ctx, span := s.tracer.Start(ctx, "bulletin.Get",
		trace.WithAttributes(attribute.String("bulletin.id", bulletinID.String())))
	defer span.End()

	b, err := s.store.FindByID(ctx, bulletinID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errBulletinNotFound
		}
		return nil, s.readFailure(ctx, span, "find bulletin", err)
	}
	if !b.VisibleTo(scopes) {
		return nil, errBulletinNotFound
	}
	return b, nil
}

// ListForScope returns the active bulletins shared with agencyID, newest first.
func (s *Service) ListForScope(ctx context.Context, agencyID id.AgencyID) ([]*models.Bulletin, error) {
	ctx, span := s.tracer.Start(ctx, "bulletin.ListForScope",
		trace.WithAttributes(attribute.String("agency.id", agencyID.String())))
	defer span.End()

	bs, err := s.store.ListActiveByAgency(ctx, agencyID)
	if err != nil {
		return nil, s.readFailure(ctx, span, "list bulletins", err)
	}
	return bs, nil
}

// ListVisible merges ListForScope over every agency in scopes, each bulletin
// once, newest first.
func (s *Service) ListVisible(ctx context.Context, scopes scope.Set) ([]*models.Bulletin, error) {
	seen := make(map[id.BulletinID]struct{})
	var out []*models.Bulletin
	for _, agencyID := range scopes.IDs() {
		bs, err := s.ListForScope(ctx, agencyID)
		if err != nil {
			return nil, err
		}
		for _, b := range bs {
			if _, ok := seen[b.ID]; ok {
				continue
			}
			seen[b.ID] = struct{}{}
			out = append(out, b)
		}
	}
	store.SortNewestFirst(out)
	return out, nil
}

// FindNearby returns active bulletins within radiusKm of origin that are
// visible to scopes, nearest first. The distance filter and the scope filter
// are applied independently; the result cap applies after both. A zero
// radius means DefaultRadiusKm.
func (s *Service) FindNearby(ctx context.Context, origin geo.Coordinate, radiusKm float64, scopes scope.Set) ([]Nearby, error) {
	ctx, span := s.tracer.Start(ctx, "bulletin.FindNearby")
	defer span.End()

	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if radiusKm == 0 {
		radiusKm = DefaultRadiusKm
	}
	if !(radiusKm > 0 && radiusKm <= maxRadiusKm) {
		return nil, dErrors.Invalid("radius", "radius must be greater than 0 and at most half the Earth's circumference")
	}
	span.SetAttributes(attribute.Float64("radius_km", radiusKm))

	candidates, err := s.store.ListActiveInBounds(ctx, geo.BoundsAround(origin, radiusKm))
	if err != nil {
		return nil, s.readFailure(ctx, span, "list bulletins in bounds", err)
	}

	matches := make([]Nearby, 0, len(candidates))
	for _, b := range candidates {
		d := geo.Distance(origin, b.Location.Coordinate())
		if d > radiusKm {
			continue
		}
		matches = append(matches, Nearby{Bulletin: b, DistanceKm: d})
	}
	sortByDistance(matches)

	out := matches[:0]
	for _, m := range matches {
		if !m.Bulletin.VisibleTo(scopes) {
			continue
		}
		out = append(out, m)
		if len(out) == MaxNearbyResults {
			break
		}
	}
	s.metrics.ObserveNearby(len(out))
	return out, nil
}

var errBulletinNotFound = dErrors.New(dErrors.CodeNotFound, "bulletin not found")

// authorizeUpdate lets the creator and elevated principals through. Anyone
// else gets Forbidden if they can see the bulletin and NotFound otherwise.
func authorizeUpdate(actor Actor, b *models.Bulletin) error {
	if b.CreatedBy == actor.Principal.UserID || actor.Principal.Role.Elevated() {
		return nil
	}
	if !b.VisibleTo(actor.Scopes) {
		return errBulletinNotFound
	}
	return dErrors.New(dErrors.CodeForbidden, "only the creator or an administrator can modify this bulletin")
}

func (s *Service) requireKnownAgencies(ctx context.Context, agencyIDs []id.AgencyID) error {
	missing, err := s.agencies.Missing(ctx, models.DedupeAgencies(agencyIDs))
	if err != nil {
		return s.writeFailure(ctx, "check agencies", err)
	}
	if len(missing) > 0 {
		return dErrors.Invalid("agencies", "unknown agency: "+missing[0].String())
	}
	return nil
}

func (s *Service) appendEvent(ctx context.Context, evt models.Event) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.Append(ctx, evt); err != nil {
		return s.writeFailure(ctx, "append event", err)
	}
	return nil
}

// associationFailure treats a constraint violation on the association table
// as an agency that disappeared mid-transaction.
func (s *Service) associationFailure(ctx context.Context, err error) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Invalid("agencies", "unknown agency")
	}
	return s.writeFailure(ctx, "replace agencies", err)
}

// writeFailure hides an infrastructure error behind TransactionAborted.
func (s *Service) writeFailure(ctx context.Context, op string, err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	s.logger.ErrorContext(ctx, "bulletin write failed",
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeTransactionAborted, "transaction aborted")
}

// txFailure normalizes errors coming out of RunInTx. Domain errors raised
// inside the unit of work pass through; commit failures become
// TransactionAborted.
func (s *Service) txFailure(ctx context.Context, err error) error {
	return s.writeFailure(ctx, "commit", err)
}

func (s *Service) readFailure(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	s.logger.ErrorContext(ctx, "bulletin read failed",
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read bulletins")
}

func (s *Service) publish(ctx context.Context, evt models.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, evt)
	s.metrics.IncrementPublished(string(evt.Type))
}

func (s *Service) finish(span trace.Span, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
	s.metrics.ObserveWrite(op, outcome, time.Since(start))
}

// sortByDistance orders matches nearest first, breaking ties by id.
func sortByDistance(ms []Nearby) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].DistanceKm != ms[j].DistanceKm {
			return ms[i].DistanceKm < ms[j].DistanceKm
		}
		return ms[i].Bulletin.ID.String() < ms[j].Bulletin.ID.String()
	})
}
