// Package events publishes provisioning domain events to a message broker.
package events

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types.
const (
	TypeUserProvisioned = "user.provisioned"
)

// Event is a provisioning fact consumed by downstream services (mail, search indexing).
type Event struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	OrgID        string    `json:"org_id"`
	PrincipalID  string    `json:"principal_id"`
	InvitationID string    `json:"invitation_id,omitempty"`
	ActorID      string    `json:"actor_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// New returns an event of the given type stamped with a fresh ULID and the current time.
func New(eventType, orgID, principalID string) *Event {
	return &Event{
		ID:          ulid.Make().String(),
		Type:        eventType,
		OrgID:       orgID,
		PrincipalID: principalID,
		OccurredAt:  time.Now().UTC(),
	}
}

// Publisher sends events. Callers treat publishing as best-effort.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
	// Close flushes pending events and releases resources. Safe to call more than once.
	Close() error
}
