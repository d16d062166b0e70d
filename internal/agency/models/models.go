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
	maxNameLength         = 200
	maxJurisdictionLength = 200
)

// Agency is a tenant organization that bulletins can be shared with.
type Agency struct {
	ID           id.AgencyID    `json:"id"`
	Name         string         `json:"name"`
	Jurisdiction string         `json:"jurisdiction"`
	Location     geo.Coordinate `json:"location"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Draft carries the mutable agency fields for create.
type Draft struct {
	Name         string
	Jurisdiction string
	Location     geo.Coordinate
}

// Patch carries optional agency fields for a partial update.
type Patch struct {
	Name         *string
	Jurisdiction *string
	Location     *geo.Coordinate
}

// NewAgency validates the draft and builds an agency.
func NewAgency(agencyID id.AgencyID, d Draft, now time.Time) (*Agency, error) {
	a := &Agency{
		ID:           agencyID,
		Name:         strings.TrimSpace(d.Name),
		Jurisdiction: strings.TrimSpace(d.Jurisdiction),
		Location:     d.Location,
		CreatedAt:    now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Apply copies the present patch fields onto a and revalidates.
func (a *Agency) Apply(p Patch) error {
	if p.Name != nil {
		a.Name = strings.TrimSpace(*p.Name)
	}
	if p.Jurisdiction != nil {
		a.Jurisdiction = strings.TrimSpace(*p.Jurisdiction)
	}
	if p.Location != nil {
		a.Location = *p.Location
	}
	return a.Validate()
}

func (a *Agency) Validate() error {
	if a.Name == "" {
		return dErrors.Invalid("name", "name is required")
	}
	if utf8.RuneCountInString(a.Name) > maxNameLength {
		return dErrors.Invalid("name", "name must be at most 200 characters")
	}
	if a.Jurisdiction == "" {
		return dErrors.Invalid("jurisdiction", "jurisdiction is required")
	}
	if utf8.RuneCountInString(a.Jurisdiction) > maxJurisdictionLength {
		return dErrors.Invalid("jurisdiction", "jurisdiction must be at most 200 characters")
	}
	if err := a.Location.Validate(); err != nil {
		return dErrors.UnderField("location", err)
	}
	return nil
}
