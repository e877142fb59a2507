package routing

import "github.com/ritzau/navisys/pkg/logging"

// Reroute recomputes distances from the current location after conditions
// changed. It does not mutate weights. destination is only recorded in the
// log and event stream; the full table is returned and callers pick
// destination out of it themselves.
func (g *Graph[N]) Reroute(current, destination N) DistanceTable[N] {
	return g.RerouteTree(current, destination).Distances
}

// RerouteTree is Reroute keeping the predecessors, so the new route to
// destination can be read with PathTo.
func (g *Graph[N]) RerouteTree(current, destination N) *Tree[N] {
	logging.Info("rerouting", "from", nodeName(current), "to", nodeName(destination))

	g.mu.RLock()
	g.observer.Observe(edgeEvent(EventReroute, current, destination, 0, "conditions changed"))
	g.mu.RUnlock()

	return g.ShortestPathTree(current)
}
