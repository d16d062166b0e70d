package models

import (
	id "apb/pkg/domain"
)

// EventType names a bulletin lifecycle event on the wire.
type EventType string

const (
	EventCreated EventType = "bulletin:new"
	EventUpdated EventType = "bulletin:update"
)

// Event is emitted after a bulletin write commits. AuthorizationSet is the
// set as of this commit, so recipients are always chosen by the new set.
type Event struct {
	Type             EventType     `json:"event_type"`
	RecordID         id.BulletinID `json:"record_id"`
	Bulletin         *Bulletin     `json:"bulletin"`
	AuthorizationSet []id.AgencyID `json:"authorization_set"`
}

// NewEvent snapshots b so later mutations cannot leak into delivery.
func NewEvent(t EventType, b *Bulletin) Event {
	snapshot := b.Clone()
	return Event{
		Type:             t,
		RecordID:         snapshot.ID,
		Bulletin:         snapshot,
		AuthorizationSet: append([]id.AgencyID(nil), snapshot.Agencies...),
	}
}
