package scope

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	id "apb/pkg/domain"
)

// Set is an immutable set of agency ids a principal may act within.
type Set struct {
	members map[id.AgencyID]struct{}
}

// NewSet builds a set from ids, ignoring duplicates and nil ids.
func NewSet(ids ...id.AgencyID) Set {
	members := make(map[id.AgencyID]struct{}, len(ids))
	for _, agencyID := range ids {
		if agencyID.IsNil() {
			continue
		}
		members[agencyID] = struct{}{}
	}
	return Set{members: members}
}

func (s Set) Len() int { return len(s.members) }

func (s Set) Empty() bool { return len(s.members) == 0 }

func (s Set) Contains(agencyID id.AgencyID) bool {
	_, ok := s.members[agencyID]
	return ok
}

// Intersects reports whether any of ids is in the set.
func (s Set) Intersects(ids []id.AgencyID) bool {
	for _, agencyID := range ids {
		if s.Contains(agencyID) {
			return true
		}
	}
	return false
}

// IDs returns the members in a stable order.
func (s Set) IDs() []id.AgencyID {
	out := make([]id.AgencyID, 0, len(s.members))
	for agencyID := range s.members {
		out = append(out, agencyID)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := uuid.UUID(out[i]), uuid.UUID(out[j])
		return bytes.Compare(a[:], b[:]) < 0
	})
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}
