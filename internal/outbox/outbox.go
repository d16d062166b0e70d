// Package outbox records committed bulletin lifecycle events in the same
// transaction as the write and relays them to Kafka afterwards. Live delivery
// does not depend on it; it feeds downstream consumers that need every event.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"apb/internal/bulletin/models"
)

const aggregateBulletin = "bulletin"

// Entry is one pending or published outbox row.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// NewEntry serializes evt into an outbox row.
func NewEntry(evt models.Event, now time.Time) (Entry, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return Entry{
		ID:            uuid.New(),
		AggregateType: aggregateBulletin,
		AggregateID:   evt.RecordID.String(),
		EventType:     string(evt.Type),
		Payload:       payload,
		CreatedAt:     now,
	}, nil
}
