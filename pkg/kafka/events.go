package kafka

import (
	"time"
)

// Event represents a single lifecycle event read off a Kafka topic.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler processes a decoded Event. A non-nil error is logged by the
// consumer and the record is skipped rather than retried indefinitely.
type EventHandler interface {
	HandleEvent(event Event) error
}
