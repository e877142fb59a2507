package pubsub

import (
	"github.com/ritzau/navisys/pkg/logging"
	"github.com/ritzau/navisys/pkg/routing"
)

// RouteObserver publishes engine events on TopicRouteEvents
func RouteObserver(p Publisher) routing.Observer {
	return routing.ObserverFunc(func(e routing.Event) {
		if err := p.Publish(TopicRouteEvents, string(e.Kind), e); err != nil {
			logging.Debug("dropping route event", "kind", string(e.Kind), "error", err)
		}
	})
}

// Infinite stands in for unreachable distances in JSON payloads
const Infinite = "infinite"

// EncodeDistances converts a distance table to a JSON-safe map
func EncodeDistances(dt routing.DistanceTable[string]) map[string]any {
	out := make(map[string]any, len(dt))
	for n, d := range dt {
		if routing.IsReachable(d) {
			out[n] = d
		} else {
			out[n] = Infinite
		}
	}
	return out
}

// EdgeRefs converts change keys to payload edge references
func EdgeRefs(keys []routing.EdgeKey[string]) []EdgeRef {
	refs := make([]EdgeRef, 0, len(keys))
	for _, k := range keys {
		refs = append(refs, EdgeRef{From: k.From, To: k.To})
	}
	return refs
}
