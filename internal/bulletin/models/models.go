package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"apb/internal/geo"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
)

const (
	maxSubjectLength     = 200
	maxDescriptionLength = 10000
	maxAddressLength     = 500
	// MaxAgencies bounds the authorization set of a single bulletin.
	MaxAgencies = 500
)

// Location is where a bulletin applies.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

func (l Location) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: l.Lat, Lng: l.Lng}
}

func (l Location) Validate() error {
	if err := l.Coordinate().Validate(); err != nil {
		return dErrors.UnderField("location", err)
	}
	if utf8.RuneCountInString(l.Address) > maxAddressLength {
		return dErrors.Invalid("location.address", "address must be at most 500 characters")
	}
	return nil
}

// Suspect is an optional descriptor attached to a bulletin. Distribution
// never looks inside it.
type Suspect struct {
	Name      string     `json:"name,omitempty"`
	Age       int        `json:"age,omitempty"`
	Height    string     `json:"height,omitempty"`
	Weight    string     `json:"weight,omitempty"`
	HairColor string     `json:"hair_color,omitempty"`
	Clothing  string     `json:"clothing,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	Weapons   []string   `json:"weapons,omitempty"`
}

// Bulletin is an alert record shared with the agencies in its authorization set.
type Bulletin struct {
	ID          id.BulletinID `json:"id"`
	Subject     string        `json:"subject"`
	Description string        `json:"description"`
	Category    Category      `json:"category"`
	Priority    Priority      `json:"priority"`
	Status      Status        `json:"status"`
	Location    Location      `json:"location"`
	// Agencies is the authorization set: exactly the agencies that may see
	// and receive this bulletin.
	Agencies  []id.AgencyID `json:"agencies"`
	Suspect   *Suspect      `json:"suspect,omitempty"`
	CreatedBy id.UserID     `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so stores and events never share slices.
func (b *Bulletin) Clone() *Bulletin {
	if b == nil {
		return nil
	}
	c := *b
	c.Agencies = append([]id.AgencyID(nil), b.Agencies...)
	if b.Suspect != nil {
		s := *b.Suspect
		s.Weapons = append([]string(nil), b.Suspect.Weapons...)
		if b.Suspect.LastSeen != nil {
			t := *b.Suspect.LastSeen
			s.LastSeen = &t
		}
		c.Suspect = &s
	}
	return &c
}

// VisibleTo reports whether any of the agencies in scopes is in the
// authorization set.
func (b *Bulletin) VisibleTo(scopes interface{ Contains(id.AgencyID) bool }) bool {
	for _, agencyID := range b.Agencies {
		if scopes.Contains(agencyID) {
			return true
		}
	}
	return false
}

// SharedWith reports whether agencyID is in the authorization set.
func (b *Bulletin) SharedWith(agencyID id.AgencyID) bool {
	for _, a := range b.Agencies {
		if a == agencyID {
			return true
		}
	}
	return false
}

// Validate checks every invariant of a stored bulletin.
func (b *Bulletin) Validate() error {
	if b.Subject == "" {
		return dErrors.Invalid("subject", "subject is required")
	}
	if utf8.RuneCountInString(b.Subject) > maxSubjectLength {
		return dErrors.Invalid("subject", "subject must be at most 200 characters")
	}
	if utf8.RuneCountInString(b.Description) > maxDescriptionLength {
		return dErrors.Invalid("description", "description must be at most 10000 characters")
	}
	if _, err := ParseCategory(string(b.Category)); err != nil {
		return err
	}
	if _, err := ParsePriority(string(b.Priority)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(b.Status)); err != nil {
		return err
	}
	if err := b.Location.Validate(); err != nil {
		return err
	}
	return ValidateAgencies(b.Agencies)
}

// ValidateAgencies checks an authorization set's shape. Whether each id names
// a registered agency is checked by the service against storage.
func ValidateAgencies(agencies []id.AgencyID) error {
	if len(agencies) == 0 {
		return dErrors.Invalid("agencies", "at least one agency is required")
	}
	if len(agencies) > MaxAgencies {
		return dErrors.Invalid("agencies", "too many agencies")
	}
	for _, a := range agencies {
		if a.IsNil() {
			return dErrors.Invalid("agencies", "agency id must not be empty")
		}
	}
	return nil
}

// DedupeAgencies returns agencies with duplicates removed, keeping first
// occurrence order. The authorization set has set semantics.
func DedupeAgencies(agencies []id.AgencyID) []id.AgencyID {
	seen := make(map[id.AgencyID]struct{}, len(agencies))
	out := make([]id.AgencyID, 0, len(agencies))
	for _, a := range agencies {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Draft is the caller-supplied content of a new bulletin.
type Draft struct {
	Subject     string
	Description string
	Category    Category
	Priority    Priority
	Status      Status
	Location    Location
	Agencies    []id.AgencyID
	Suspect     *Suspect
}

// NewBulletin builds and validates a bulletin from a draft. Status defaults
// to active.
func NewBulletin(bulletinID id.BulletinID, d Draft, author id.UserID, now time.Time) (*Bulletin, error) {
	status := d.Status
	if status == "" {
		status = StatusActive
	}
	b := &Bulletin{
		ID:          bulletinID,
		Subject:     strings.TrimSpace(d.Subject),
		Description: strings.TrimSpace(d.Description),
		Category:    d.Category,
		Priority:    d.Priority,
		Status:      status,
		Location: Location{
			Lat:     d.Location.Lat,
			Lng:     d.Location.Lng,
			Address: strings.TrimSpace(d.Location.Address),
		},
		Agencies:  DedupeAgencies(d.Agencies),
		Suspect:   d.Suspect,
		CreatedBy: author,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Patch holds the fields present in a partial update. Nil means untouched.
type Patch struct {
	Subject     *string
	Description *string
	Category    *Category
	Priority    *Priority
	Status      *Status
	Location    *Location
	Agencies    *[]id.AgencyID
	Suspect     *Suspect
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Subject == nil && p.Description == nil && p.Category == nil &&
		p.Priority == nil && p.Status == nil && p.Location == nil &&
		p.Agencies == nil && p.Suspect == nil
}

// ReplacesAgencies reports whether the patch carries a new authorization set.
func (p Patch) ReplacesAgencies() bool {
	return p.Agencies != nil
}

// Apply copies the present fields onto b, advances UpdatedAt to now (never
// backwards) and revalidates.
func (b *Bulletin) Apply(p Patch, now time.Time) error {
	if p.Subject != nil {
		b.Subject = strings.TrimSpace(*p.Subject)
	}
	if p.Description != nil {
		b.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.Priority != nil {
		b.Priority = *p.Priority
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Location != nil {
		loc := *p.Location
		loc.Address = strings.TrimSpace(loc.Address)
		b.Location = loc
	}
	if p.Agencies != nil {
		b.Agencies = DedupeAgencies(*p.Agencies)
	}
	if p.Suspect != nil {
		s := *p.Suspect
		b.Suspect = &s
	}
	if now.After(b.UpdatedAt) {
		b.UpdatedAt = now
	} else {
		// Clock skew between instances must not move updated_at backwards.
		b.UpdatedAt = b.UpdatedAt.Add(time.Microsecond)
	}
	return b.Validate()
}
