package routing

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ritzau/navisys/pkg/logging"
	"github.com/ritzau/navisys/pkg/metrics"
)

// ErrNegativeCycle is returned when a negative-weight cycle is reachable
// from the start node. Distances returned alongside it are not final.
var ErrNegativeCycle = errors.New("negative-weight cycle reachable from start")

// EdgeKey identifies the directed edge From->To
type EdgeKey[N comparable] struct {
	From N
	To   N
}

// ChangeSet maps edges to override weights observed in real time
type ChangeSet[N comparable] map[EdgeKey[N]]float64

// UpdateResult is the outcome of ApplyRealTimeUpdates
type UpdateResult[N comparable] struct {
	Distances DistanceTable[N]
	Applied   []EdgeKey[N] // overrides written to the graph
	Skipped   []EdgeKey[N] // overrides naming edges the graph does not have
	Passes    int          // relaxation passes run
}

// ApplyRealTimeUpdates writes every override in changes whose edge exists,
// then recomputes distances from start with Bellman-Ford over the updated
// weights.
//
// Overrides for missing edges are skipped and reported in Skipped; they do
// not fail the call. Applied overrides persist in the graph. If a
// negative-weight cycle is reachable from start the error wraps
// ErrNegativeCycle and the result carries the distances after |V|-1 passes.
func (g *Graph[N]) ApplyRealTimeUpdates(start N, changes ChangeSet[N]) (*UpdateResult[N], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := &UpdateResult[N]{}
	for key, w := range changes {
		uid, uok := g.ids[key.From]
		vid, vok := g.ids[key.To]
		if !uok || !vok {
			g.skipChange(result, key, w)
			continue
		}
		if _, ok := g.weightByID(uid, vid); !ok {
			g.skipChange(result, key, w)
			continue
		}

		g.setWeightByID(uid, vid, w)
		result.Applied = append(result.Applied, key)
		metrics.RealTimeChanges.WithLabelValues(metrics.ChangeApplied).Inc()
		g.observer.Observe(edgeEvent(EventWeightOverridden, key.From, key.To, w, "real-time change"))
	}

	if len(result.Applied) > 0 || len(result.Skipped) > 0 {
		logging.Info("applied real-time changes",
			"applied", len(result.Applied),
			"skipped", len(result.Skipped))
	}

	err := g.relaxAll(start, result)
	return result, err
}

func (g *Graph[N]) skipChange(result *UpdateResult[N], key EdgeKey[N], w float64) {
	result.Skipped = append(result.Skipped, key)
	metrics.RealTimeChanges.WithLabelValues(metrics.ChangeNotFound).Inc()
	logging.Warn("edge not found, skipping real-time change",
		"from", nodeName(key.From), "to", nodeName(key.To), "weight", w)
	g.observer.Observe(edgeEvent(EventEdgeNotFound, key.From, key.To, w, "real-time change"))
}

// relaxAll runs Bellman-Ford from start over the current weights and stores
// the distances in result. Caller must hold the write lock.
func (g *Graph[N]) relaxAll(start N, result *UpdateResult[N]) error {
	defer metrics.ObservePath(metrics.AlgorithmBellmanFord, time.Now())

	sid, ok := g.ids[start]
	if !ok {
		g.observer.Observe(nodeEvent(EventUnknownStart, start, 0, "bellman-ford"))
		result.Distances = g.degenerateTable(start)
		return nil
	}

	dist := make([]float64, len(g.nodes))
	prev := make([]int64, len(g.nodes))
	for i := range dist {
		dist[i] = Unreachable
		prev[i] = -1
	}
	dist[sid] = 0

	converged := false
	for pass := 0; pass < len(g.nodes)-1; pass++ {
		result.Passes++
		improved := false
		g.eachEdge(func(uid, vid int64, w float64) bool {
			if !IsReachable(dist[uid]) || dist[uid]+w >= dist[vid] {
				return true
			}
			dist[vid] = dist[uid] + w
			prev[vid] = uid
			improved = true
			g.observer.Observe(nodeEvent(EventDistanceImproved, g.nodes[vid], dist[vid],
				fmt.Sprintf("real-time relaxation via %v", g.nodes[uid])))
			return true
		})
		if !improved {
			converged = true
			break
		}
	}

	result.Distances = make(DistanceTable[N], len(dist))
	for id, d := range dist {
		result.Distances[g.nodes[id]] = d
	}

	if converged {
		return nil
	}

	// One more pass: any edge that still relaxes lies on or behind a
	// negative cycle.
	var cycleErr error
	g.eachEdge(func(uid, vid int64, w float64) bool {
		if !IsReachable(dist[uid]) || dist[uid]+w >= dist[vid] {
			return true
		}
		prev[vid] = uid
		cycle := g.cycleThrough(prev, vid)
		cycleErr = fmt.Errorf("%w: %v", ErrNegativeCycle, cycle)
		g.observer.Observe(edgeEvent(EventNegativeCycle, g.nodes[uid], g.nodes[vid], w,
			fmt.Sprintf("cycle %v", cycle)))
		return false
	})
	if cycleErr != nil {
		metrics.NegativeCycles.Inc()
		logging.Warn("negative-weight cycle detected", "start", nodeName(start), "error", cycleErr)
	}
	return cycleErr
}

// cycleThrough follows predecessors back from a node that still relaxes
// and returns the cycle it runs into, in travel order, first node repeated
// at the end. Caller must hold a lock.
func (g *Graph[N]) cycleThrough(prev []int64, vid int64) []N {
	// |V| steps back is guaranteed to land on the cycle
	for range len(g.nodes) {
		if prev[vid] < 0 {
			break
		}
		vid = prev[vid]
	}

	cycle := []N{g.nodes[vid]}
	for cur := prev[vid]; cur >= 0 && cur != vid; cur = prev[cur] {
		cycle = append(cycle, g.nodes[cur])
	}
	cycle = append(cycle, g.nodes[vid])
	slices.Reverse(cycle)
	return cycle
}
