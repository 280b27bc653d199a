package domain

import "time"

// StatusEvent is published on every persisted call transition.
type StatusEvent struct {
	CallID string     `json:"call_id"`
	Status CallStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
	At     time.Time  `json:"at"`
}
