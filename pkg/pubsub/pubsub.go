package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the engine
const (
	// TopicRouteEvents carries every engine event (edge added, weight
	// overridden, distance improved, ...). Event type is the event kind.
	TopicRouteEvents = "route_events"

	// TopicDistances carries distance tables recomputed after real-time
	// changes arrive from the watcher or the HTTP API.
	TopicDistances = "distances"
)

// Event is one published message
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Version int             `json:"version"` // per-topic sequence number
}

// Subscription delivers the events of one topic
type Subscription interface {
	Topic() string
	Events() <-chan Event
	Close() error
}

// Publisher fans events out to topic subscribers
type Publisher interface {
	// Subscribe creates a subscription that is closed when ctx is done
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish marshals data to JSON and sends it to every subscriber of topic
	Publish(topic string, eventType string, data any) error

	Close() error
}

// DistanceUpdate is the payload of TopicDistances events. Unreachable
// nodes carry the string "infinite" since JSON has no infinity.
type DistanceUpdate struct {
	Start     string         `json:"start"`
	Reason    string         `json:"reason"`
	BatchID   string         `json:"batch_id,omitempty"`
	Distances map[string]any `json:"distances"`
	Applied   []EdgeRef      `json:"applied,omitempty"`
	Skipped   []EdgeRef      `json:"skipped,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// EdgeRef names a directed edge in a payload
type EdgeRef struct {
	From string `json:"from"`
	To   string `json:"to"`
}
