package domain

import (
	"time"
)

// Profile is the directory record of a principal inside an organization.
// A profile never outlives its principal.
type Profile struct {
	PrincipalID  string
	OrgID        string
	FullName     string
	DepartmentID string
	AccessGrant  AccessGrant
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
)

// IsActive reports whether the profile may act inside its organization.
func (p *Profile) IsActive() bool {
	return p != nil && p.Status == StatusActive
}
