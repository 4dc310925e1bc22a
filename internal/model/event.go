package model

import "time"

// EventType classifies a persistence decision in the audit trail.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// FieldChange is the before/after value of one compared field.
type FieldChange struct {
	Previous any `json:"previous"`
	Current  any `json:"current"`
}

// Changes maps a field name to its change.
type Changes map[string]FieldChange

// MissionEvent is an append-only audit row, written once per persistence decision.
type MissionEvent struct {
	ID        string    `json:"id"`
	MissionID string    `json:"mission_id"`
	Type      EventType `json:"type"`
	Changes   Changes   `json:"changes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
