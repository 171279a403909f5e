package domain

import (
	"time"
)

// Tier separates platform-wide roles from roles owned by a single organization.
type Tier string

const (
	TierSystem Tier = "system"
	TierClient Tier = "client"
)

// Role is a named capability bundle. System roles have no OrgID.
type Role struct {
	ID        string
	OrgID     string
	Name      string
	Tier      Tier
	IsAdmin   bool
	CreatedAt time.Time
}

// AssignableIn reports whether the role may be granted to a member of orgID.
func (r *Role) AssignableIn(orgID string) bool {
	if r.Tier == TierSystem {
		return true
	}
	return r.OrgID != "" && r.OrgID == orgID
}

// Assignment requests roles for a principal inside an organization.
type Assignment struct {
	PrincipalID string
	OrgID       string
	RoleIDs     []string
	AssignedBy  string
}

// Rejection reports a role that could not be assigned.
type Rejection struct {
	RoleID string
	Reason string
}

const (
	ReasonUnknownRole  = "unknown role"
	ReasonOtherOrg     = "role not assignable in organization"
	ReasonStoreFailure = "assignment failed"
)
