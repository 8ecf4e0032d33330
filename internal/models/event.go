package models

import "time"

// Actor roles stamped on journal events.
const (
	ActorSystem = "system"
	ActorAgent  = "agent"
	ActorOwner  = "owner"
)

// Event is one append-only journal record. The journal is bounded; oldest
// events are evicted first.
type Event struct {
	EventID   string         `json:"eventId"`
	EventType string         `json:"eventType"`
	ActorRole string         `json:"actorRole"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (e *Event) VersionTime() time.Time { return e.Timestamp }
