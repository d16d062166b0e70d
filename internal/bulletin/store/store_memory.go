package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"apb/internal/bulletin/models"
	"apb/internal/geo"
	id "apb/pkg/domain"
	"apb/pkg/platform/sentinel"
	txcontext "apb/pkg/platform/tx"
)

// InMemory keeps bulletins in a map. Writes go through RunInTx, which stages
// every change and applies it in one step on success, so a failed unit of
// work leaves nothing behind and readers never see half of one.
type InMemory struct {
	writeMu sync.Mutex // serializes units of work
	mu      sync.RWMutex
	rows    map[id.BulletinID]*models.Bulletin
	timeout time.Duration
}

type MemoryOption func(*InMemory)

// WithMemoryTxTimeout bounds each unit of work when the caller sets no deadline.
func WithMemoryTxTimeout(d time.Duration) MemoryOption {
	return func(s *InMemory) {
		s.timeout = d
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{rows: make(map[id.BulletinID]*models.Bulletin)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) FindByID(_ context.Context, bulletinID id.BulletinID) (*models.Bulletin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.rows[bulletinID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return b.Clone(), nil
}

// ListActiveByAgency returns active bulletins shared with agencyID, newest first.
func (s *InMemory) ListActiveByAgency(_ context.Context, agencyID id.AgencyID) ([]*models.Bulletin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Bulletin
	for _, b := range s.rows {
		if b.Status == models.StatusActive && b.SharedWith(agencyID) {
			out = append(out, b.Clone())
		}
	}
	SortNewestFirst(out)
	return out, nil
}

// ListActiveInBounds returns active bulletins whose location is inside box.
func (s *InMemory) ListActiveInBounds(_ context.Context, box geo.Bounds) ([]*models.Bulletin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Bulletin
	for _, b := range s.rows {
		if b.Status == models.StatusActive && box.Contains(b.Location.Coordinate()) {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

// RunInTx runs fn against a staged view of the store. Staged writes are
// applied only if fn returns nil and the context is still live.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel, err := txcontext.Bound(ctx, s.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	staged := &memoryTx{parent: s, pending: make(map[id.BulletinID]*models.Bulletin)}
	if err := fn(ctx, staged); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return txcontext.Aborted(ctxErr)
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return txcontext.Aborted(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for bulletinID, b := range staged.pending {
		s.rows[bulletinID] = b
	}
	return nil
}

// Purge hard-deletes a bulletin and with it its associations. It exists for
// operators and tests; the service never calls it.
func (s *InMemory) Purge(_ context.Context, bulletinID id.BulletinID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[bulletinID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.rows, bulletinID)
	return nil
}

type memoryTx struct {
	parent  *InMemory
	pending map[id.BulletinID]*models.Bulletin
}

func (t *memoryTx) current(bulletinID id.BulletinID) (*models.Bulletin, bool) {
	if b, ok := t.pending[bulletinID]; ok {
		return b, true
	}
	t.parent.mu.RLock()
	defer t.parent.mu.RUnlock()
	b, ok := t.parent.rows[bulletinID]
	return b, ok
}

func (t *memoryTx) FindForUpdate(_ context.Context, bulletinID id.BulletinID) (*models.Bulletin, error) {
	b, ok := t.current(bulletinID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return b.Clone(), nil
}

func (t *memoryTx) Insert(_ context.Context, b *models.Bulletin) error {
	if _, ok := t.current(b.ID); ok {
		return sentinel.ErrConflict
	}
	row := b.Clone()
	// Associations are written separately, mirroring the relational layout.
	row.Agencies = nil
	t.pending[b.ID] = row
	return nil
}

func (t *memoryTx) Update(_ context.Context, b *models.Bulletin) error {
	existing, ok := t.current(b.ID)
	if !ok {
		return sentinel.ErrNotFound
	}
	row := b.Clone()
	row.Agencies = append([]id.AgencyID(nil), existing.Agencies...)
	row.CreatedBy = existing.CreatedBy
	row.CreatedAt = existing.CreatedAt
	t.pending[b.ID] = row
	return nil
}

func (t *memoryTx) ReplaceAgencies(_ context.Context, bulletinID id.BulletinID, agencies []id.AgencyID) error {
	existing, ok := t.current(bulletinID)
	if !ok {
		return sentinel.ErrNotFound
	}
	row := existing.Clone()
	row.Agencies = append([]id.AgencyID(nil), agencies...)
	t.pending[bulletinID] = row
	return nil
}

// SortNewestFirst orders by creation time descending, breaking ties by id so
// listings are stable.
func SortNewestFirst(bs []*models.Bulletin) {
	sort.SliceStable(bs, func(i, j int) bool {
		if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].CreatedAt.After(bs[j].CreatedAt)
		}
		return bs[i].ID.String() < bs[j].ID.String()
	})
}
