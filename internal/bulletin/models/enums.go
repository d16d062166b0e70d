package models

import (
	"strings"

	dErrors "apb/pkg/domain-errors"
)

// Category classifies what a bulletin is about.
type Category string

const (
	CategoryLookout       Category = "lookout"
	CategoryMissingPerson Category = "missing-person"
	CategoryGeneralAlert  Category = "general-alert"
	CategoryVehicle       Category = "vehicle"
	CategoryWanted        Category = "wanted"
)

// categoryAliases maps legacy client spellings onto categories.
var categoryAliases = map[string]Category{
	"bolo": CategoryLookout,
}

func normalizeEnum(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}

// ParseCategory accepts categories case-insensitively, with either hyphens or
// underscores, plus the legacy "BOLO" spelling of lookout.
func ParseCategory(s string) (Category, error) {
	n := normalizeEnum(s)
	switch c := Category(n); c {
	case CategoryLookout, CategoryMissingPerson, CategoryGeneralAlert, CategoryVehicle, CategoryWanted:
		return c, nil
	}
	if c, ok := categoryAliases[n]; ok {
		return c, nil
	}
	return "", dErrors.Invalid("category", "category must be one of lookout, missing-person, general-alert, vehicle, wanted")
}

// Priority is totally ordered low < medium < high < urgent.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:    1,
	PriorityMedium: 2,
	PriorityHigh:   3,
	PriorityUrgent: 4,
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(normalizeEnum(s))
	if _, ok := priorityRank[p]; !ok {
		return "", dErrors.Invalid("priority", "priority must be one of low, medium, high, urgent")
	}
	return p, nil
}

// Rank returns the priority's position in the total order, or 0 when unknown.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Less reports whether p is strictly lower than other.
func (p Priority) Less(other Priority) bool {
	return p.Rank() < other.Rank()
}

// Status is a bulletin's lifecycle state. Bulletins are never deleted by the
// service; they move to resolved or expired instead.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
	StatusDraft    Status = "draft"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(normalizeEnum(s)); st {
	case StatusActive, StatusResolved, StatusExpired, StatusDraft:
		return st, nil
	default:
		return "", dErrors.Invalid("status", "status must be one of active, resolved, expired, draft")
	}
}
