package store

import (
	"context"
	"sort"
	"sync"

	"apb/internal/agency/models"
	id "apb/pkg/domain"
	"apb/pkg/platform/sentinel"
)

// InMemory keeps agencies in a map guarded by a RWMutex.
type InMemory struct {
	mu       sync.RWMutex
	agencies map[id.AgencyID]*models.Agency
}

func NewInMemory() *InMemory {
	return &InMemory{agencies: make(map[id.AgencyID]*models.Agency)}
}

func (s *InMemory) Create(_ context.Context, a *models.Agency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agencies[a.ID]; ok {
		return sentinel.ErrConflict
	}
	clone := *a
	s.agencies[a.ID] = &clone
	return nil
}

func (s *InMemory) Update(_ context.Context, a *models.Agency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agencies[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *a
	s.agencies[a.ID] = &clone
	return nil
}

func (s *InMemory) FindByID(_ context.Context, agencyID id.AgencyID) (*models.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agencies[agencyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

// List returns every agency ordered by name.
func (s *InMemory) List(_ context.Context) ([]*models.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Agency, 0, len(s.agencies))
	for _, a := range s.agencies {
		clone := *a
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) ListIDs(_ context.Context) ([]id.AgencyID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]id.AgencyID, 0, len(s.agencies))
	for agencyID := range s.agencies {
		out = append(out, agencyID)
	}
	return out, nil
}

// Missing returns the ids in agencyIDs that are not stored, in input order.
func (s *InMemory) Missing(_ context.Context, agencyIDs []id.AgencyID) ([]id.AgencyID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []id.AgencyID
	for _, agencyID := range agencyIDs {
		if _, ok := s.agencies[agencyID]; !ok {
			missing = append(missing, agencyID)
		}
	}
	return missing, nil
}
