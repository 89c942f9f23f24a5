package domain

import (
	"time"

	"github.com/google/uuid"
)

// Verification lifecycle event types.
const (
	EventChallengeIssued = "challenge_issued"
	EventChallengeFailed = "challenge_failed"
	EventVerified        = "verified"
	EventRevoked         = "revoked"
	EventSessionExpired  = "session_expired"
)

// Event is a verification lifecycle event. Mode is empty for events not tied to a challenge.
type Event struct {
	EventID   string    `json:"event_id"`
	UserID    int64     `json:"user_id"`
	EventType string    `json:"event_type"`
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent returns an event with a fresh id stamped now.
func NewEvent(userID int64, eventType, mode string) *Event {
	return &Event{
		EventID:   uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
}
