package domain

import (
	"errors"
	"time"

	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
)

var (
	ErrNotFound        = errors.New("invitation not found")
	ErrAlreadyAccepted = errors.New("invitation already accepted")
	ErrExpired         = errors.New("invitation expired")
	ErrNotPending      = errors.New("invitation not pending")
	// ErrAlreadyExists is returned when the org already has a pending invitation for the email.
	ErrAlreadyExists = errors.New("pending invitation already exists")
)

// Invitation is a single-use onboarding record for an email into an organization.
// Token is only populated on the value returned from creation; stores keep TokenHash.
type Invitation struct {
	ID           string
	Token        string
	TokenHash    string
	Email        string
	FullName     string
	OrgID        string
	DepartmentID string
	RoleIDs      []string
	AccessGrant  profiledomain.AccessGrant
	Status       Status
	ExpiresAt    time.Time
	CreatedBy    string
	AcceptedBy   string
	AcceptedAt   *time.Time
	CreatedAt    time.Time
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// IsExpired reports whether the invitation can no longer be accepted at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.Status == StatusExpired || !now.Before(i.ExpiresAt)
}

// AcceptError returns the error explaining why the invitation cannot be accepted at now, or nil.
func (i *Invitation) AcceptError(now time.Time) error {
	switch i.Status {
	case StatusAccepted:
		return ErrAlreadyAccepted
	case StatusExpired:
		return ErrExpired
	case StatusPending:
		if i.IsExpired(now) {
			return ErrExpired
		}
		return nil
	default:
		return ErrNotPending
	}
}
