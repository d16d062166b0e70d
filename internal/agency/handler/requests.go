package handler

import (
	"strings"

	"apb/internal/agency/models"
	"apb/internal/geo"
	dErrors "apb/pkg/domain-errors"
)

// CreateAgencyRequest is the body for POST /agencies.
type CreateAgencyRequest struct {
	Name         string          `json:"name"`
	Jurisdiction string          `json:"jurisdiction"`
	Location     *geo.Coordinate `json:"location"`
}

func (r *CreateAgencyRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Jurisdiction = strings.TrimSpace(r.Jurisdiction)
}

func (r *CreateAgencyRequest) Validate() error {
	if r.Name == "" {
		return dErrors.Invalid("name", "name is required")
	}
	if r.Jurisdiction == "" {
		return dErrors.Invalid("jurisdiction", "jurisdiction is required")
	}
	if r.Location == nil {
		return dErrors.Invalid("location", "location is required")
	}
	return dErrors.UnderField("location", r.Location.Validate())
}

func (r *CreateAgencyRequest) Draft() models.Draft {
	return models.Draft{Name: r.Name, Jurisdiction: r.Jurisdiction, Location: *r.Location}
}

// UpdateAgencyRequest is the body for PATCH /agencies/{id}. Absent fields are
// left untouched.
type UpdateAgencyRequest struct {
	Name         *string         `json:"name"`
	Jurisdiction *string         `json:"jurisdiction"`
	Location     *geo.Coordinate `json:"location"`
}

func (r *UpdateAgencyRequest) Validate() error {
	if r.Name == nil && r.Jurisdiction == nil && r.Location == nil {
		return dErrors.New(dErrors.CodeBadRequest, "at least one field must be provided")
	}
	return nil
}

func (r *UpdateAgencyRequest) Patch() models.Patch {
	return models.Patch{Name: r.Name, Jurisdiction: r.Jurisdiction, Location: r.Location}
}
