package service

import (
	"errors"
	"fmt"
	"strings"

	identitydomain "github.com/circuitpointe-dev/centora-sub011/internal/identity/domain"
	profiledomain "github.com/circuitpointe-dev/centora-sub011/internal/profile/domain"
)

// Request describes the user to provision. InvitedBy is the authenticated caller, not client input.
type Request struct {
	OrgID        string
	Email        string
	FullName     string
	DepartmentID string
	RoleIDs      []string
	AccessGrant  profiledomain.AccessGrant
	InvitedBy    string
}

// Result is returned when the user is fully active. Warnings list roles that were not assigned.
type Result struct {
	PrincipalID       string
	InvitationID      string
	TemporaryPassword string
	Warnings          []RoleWarning
}

// RoleWarning reports a requested role that could not be assigned.
type RoleWarning struct {
	RoleID string
	Reason string
}

// normalize trims and validates the request, lower-cases the email, drops blank and duplicate
// role ids and normalizes the access grant.
func normalize(req Request) (Request, error) {
	req.OrgID = strings.TrimSpace(req.OrgID)
	req.Email = identitydomain.NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)

	if req.OrgID == "" {
		return req, errors.New("org_id is required")
	}
	if req.Email == "" {
		return req, errors.New("email is required")
	}
	if err := identitydomain.ValidateEmail(req.Email); err != nil {
		return req, fmt.Errorf("email: %w", err)
	}
	if req.FullName == "" {
		return req, errors.New("full_name is required")
	}
	if err := req.AccessGrant.Validate(); err != nil {
		return req, fmt.Errorf("access_grant: %w", err)
	}
	req.AccessGrant = req.AccessGrant.Normalized()

	roles := make([]string, 0, len(req.RoleIDs))
	seen := make(map[string]struct{}, len(req.RoleIDs))
	for _, id := range req.RoleIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		roles = append(roles, id)
	}
	req.RoleIDs = roles
	return req, nil
}
