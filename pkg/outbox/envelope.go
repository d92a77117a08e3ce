package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event. System-originated events, such
// as payment notifications, carry Role "system" and no user.
type ActorRef struct {
	UserID *uuid.UUID `json:"userId,omitempty"`
	Role   string     `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// UserActor builds an ActorRef for a shopper.
func UserActor(userID uuid.UUID) *ActorRef {
	if userID == uuid.Nil {
		return SystemActor()
	}
	return &ActorRef{UserID: &userID, Role: "shopper"}
}

// SystemActor builds an ActorRef for background and provider-driven writes.
func SystemActor() *ActorRef {
	return &ActorRef{Role: "system"}
}
