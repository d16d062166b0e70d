package handler

import (
	"strings"

	"apb/internal/bulletin/models"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
)

// CreateBulletinRequest is the body for POST /bulletins.
type CreateBulletinRequest struct {
	Subject     string           `json:"subject"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Priority    string           `json:"priority"`
	Status      string           `json:"status"`
	Location    *models.Location `json:"location"`
	Agencies    []id.AgencyID    `json:"agencies"`
	Suspect     *models.Suspect  `json:"suspect"`

	category models.Category
	priority models.Priority
	status   models.Status
}

func (r *CreateBulletinRequest) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *CreateBulletinRequest) Validate() error {
	if r.Subject == "" {
		return dErrors.Invalid("subject", "subject is required")
	}
	var err error
	if r.category, err = models.ParseCategory(r.Category); err != nil {
		return err
	}
	if r.priority, err = models.ParsePriority(r.Priority); err != nil {
		return err
	}
	if r.Status != "" {
		if r.status, err = models.ParseStatus(r.Status); err != nil {
			return err
		}
	}
	if r.Location == nil {
		return dErrors.Invalid("location", "location is required")
	}
	if err := r.Location.Validate(); err != nil {
		return err
	}
	return models.ValidateAgencies(r.Agencies)
}

func (r *CreateBulletinRequest) Draft() models.Draft {
	return models.Draft{
		Subject:     r.Subject,
		Description: r.Description,
		Category:    r.category,
		Priority:    r.priority,
		Status:      r.status,
		Location:    *r.Location,
		Agencies:    r.Agencies,
		Suspect:     r.Suspect,
	}
}

// UpdateBulletinRequest is the body for PATCH and PUT /bulletins/{id}.
// Absent fields are left untouched; agencies, when present, replaces the
// whole authorization set.
type UpdateBulletinRequest struct {
	Subject     *string          `json:"subject"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Priority    *string          `json:"priority"`
	Status      *string          `json:"status"`
	Location    *models.Location `json:"location"`
	Agencies    *[]id.AgencyID   `json:"agencies"`
	Suspect     *models.Suspect  `json:"suspect"`

	patch models.Patch
}

func (r *UpdateBulletinRequest) Normalize() {
	if r.Subject != nil {
		trimmed := strings.TrimSpace(*r.Subject)
		r.Subject = &trimmed
	}
}

func (r *UpdateBulletinRequest) Validate() error {
	p := models.Patch{
		Subject:     r.Subject,
		Description: r.Description,
		Location:    r.Location,
		Agencies:    r.Agencies,
		Suspect:     r.Suspect,
	}
	if r.Subject != nil && *r.Subject == "" {
		return dErrors.Invalid("subject", "subject must not be empty")
	}
	if r.Category != nil {
		c, err := models.ParseCategory(*r.Category)
		if err != nil {
			return err
		}
		p.Category = &c
	}
	if r.Priority != nil {
		pr, err := models.ParsePriority(*r.Priority)
		if err != nil {
			return err
		}
		p.Priority = &pr
	}
	if r.Status != nil {
		st, err := models.ParseStatus(*r.Status)
		if err != nil {
			return err
		}
		p.Status = &st
	}
	if r.Location != nil {
		if err := r.Location.Validate(); err != nil {
			return err
		}
	}
	if r.Agencies != nil {
		if err := models.ValidateAgencies(*r.Agencies); err != nil {
			return err
		}
	}
	r.patch = p
	return nil
}

func (r *UpdateBulletinRequest) Patch() models.Patch {
	return r.patch
}
