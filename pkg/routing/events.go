package routing

import (
	"fmt"

	"github.com/ritzau/navisys/pkg/logging"
)

// EventKind identifies what an Event records
type EventKind string

const (
	EventEdgeAdded        EventKind = "edge_added"
	EventWeightOverridden EventKind = "weight_overridden"
	EventEdgeNotFound     EventKind = "edge_not_found"
	EventDistanceImproved EventKind = "distance_improved"
	EventUnknownStart     EventKind = "unknown_start"
	EventReroute          EventKind = "reroute"
	EventNegativeCycle    EventKind = "negative_cycle"
)

// Event is the structured record emitted for every mutating or
// distance-improving step. Edge events set From and To, node events set Node.
type Event struct {
	Kind  EventKind `json:"kind"`
	From  string    `json:"from,omitempty"`
	To    string    `json:"to,omitempty"`
	Node  string    `json:"node,omitempty"`
	Value float64   `json:"value"`
	Cause string    `json:"cause"`
}

// Observer receives engine events. Observe is called synchronously while the
// graph lock is held, so implementations must not call back into the Graph.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(Event)

// Observe calls f(e)
func (f ObserverFunc) Observe(e Event) {
	f(e)
}

// Observers fans one event out to several observers in order
type Observers []Observer

// Observe forwards e to every observer
func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		o.Observe(e)
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// LogObserver writes every event to the debug log
func LogObserver() Observer {
	return ObserverFunc(func(e Event) {
		args := []any{"kind", string(e.Kind), "value", e.Value, "cause", e.Cause}
		if e.Node != "" {
			args = append(args, "node", e.Node)
		} else {
			args = append(args, "from", e.From, "to", e.To)
		}
		logging.Debug("route event", args...)
	})
}

func nodeName[N comparable](n N) string {
	return fmt.Sprint(n)
}

func edgeEvent[N comparable](kind EventKind, from, to N, value float64, cause string) Event {
	return Event{Kind: kind, From: nodeName(from), To: nodeName(to), Value: value, Cause: cause}
}

func nodeEvent[N comparable](kind EventKind, n N, value float64, cause string) Event {
	return Event{Kind: kind, Node: nodeName(n), Value: value, Cause: cause}
}
