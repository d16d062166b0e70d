package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"apb/internal/bulletin/models"
	"apb/pkg/requestcontext"
)

// InMemory is an outbox for single-process deployments and tests. It does not
// take part in transactions; a rolled-back write that already appended leaves
// its entry behind.
type InMemory struct {
	mu      sync.Mutex
	entries []Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, evt models.Event) error {
	entry, err := NewEntry(evt, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemory) Pending(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := make(map[uuid.UUID]struct{}, len(ids))
	for _, entryID := range ids {
		marked[entryID] = struct{}{}
	}
	for i := range s.entries {
		if _, ok := marked[s.entries[i].ID]; ok {
			t := at
			s.entries[i].PublishedAt = &t
		}
	}
	return nil
}
