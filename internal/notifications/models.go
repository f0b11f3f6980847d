package notifications

import "time"

// EventType identifies a lending lifecycle event pushed to clients.
type EventType string

const (
	EventPetitionFullyFunded EventType = "petition_fully_funded"
	EventListingSold         EventType = "listing_sold"
)

// Message is the wire format pushed over a WebSocket connection.
type Message struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	// Target is the account the message is addressed to, or "all" for
	// broadcasts.
	Target string `json:"target,omitempty"`
}
