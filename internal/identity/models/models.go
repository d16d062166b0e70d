package models

import (
	"strings"
	"time"

	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
)

// Role is a principal's role within its home agency.
type Role string

const (
	RoleOfficer    Role = "officer"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
)

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOfficer, RoleDispatcher, RoleAdmin:
		return r, nil
	default:
		return "", dErrors.Invalid("role", "role must be one of officer, dispatcher, admin")
	}
}

// Elevated reports whether the role may act outside its home agency: update
// bulletins it did not create and, depending on scope policy, see more agencies.
func (r Role) Elevated() bool {
	return r == RoleAdmin
}

func (r Role) String() string { return string(r) }

// Principal is the verified identity a request or live connection acts as.
type Principal struct {
	UserID       id.UserID   `json:"id"`
	Role         Role        `json:"role"`
	HomeAgencyID id.AgencyID `json:"home_agency_id"`
}

// Resolvable reports whether the principal carries enough identity to be
// placed into any scope.
func (p Principal) Resolvable() bool {
	return !p.UserID.IsNil() && !p.HomeAgencyID.IsNil()
}

// User is a stored account. The gate reads it to confirm a token's subject
// still exists and to pick up its current role and agency.
type User struct {
	ID        id.UserID
	Email     string
	Name      string
	AgencyID  id.AgencyID
	Role      Role
	CreatedAt time.Time
}

// Principal projects the stored user onto the identity used by the core.
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Role: u.Role, HomeAgencyID: u.AgencyID}
}
