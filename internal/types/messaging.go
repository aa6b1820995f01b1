package types

import "time"

// SlotFreedMessage is the payload the booking system publishes to the
// waitlist queue when a slot frees up (cancellation or schedule change).
// The waitlist worker consumes it and offers the slot to the next matching
// waitlist entry.
type SlotFreedMessage struct {
	TraceID     string    `json:"trace_id"`
	ServiceName string    `json:"service_name"`
	SlotAt      time.Time `json:"slot_at"`
	// ExpiresAt bounds how long the offer is valid. Zero means the default
	// offer window applies.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}
