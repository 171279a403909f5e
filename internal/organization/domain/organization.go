package domain

import (
	"errors"
	"strings"
	"time"
)

// Organization is a tenant. Profiles, invitations and client roles belong to one.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Validate returns an error describing the first validation failure.
func (o *Organization) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(o.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}
