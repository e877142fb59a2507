// Package routing implements the traffic-aware shortest-path engine: a
// directed weighted graph whose edge weights come from the weight model, a
// priority-queue shortest-path search, and a relaxation search that applies
// real-time weight overrides first.
//
// A Graph is safe for concurrent use. Path queries take a read lock, edge
// insertion and real-time updates take the write lock, and every query
// returns a freshly built DistanceTable.
package routing

import (
	"fmt"
	"math"
	"sync"

	"github.com/ritzau/navisys/pkg/metrics"
	"github.com/ritzau/navisys/pkg/weight"
	"gonum.org/v1/gonum/graph/simple"
)

// Edge is one directed edge and its current weight
type Edge[N comparable] struct {
	From   N
	To     N
	Weight float64
}

// Graph is a directed road graph keyed by arbitrary comparable node IDs.
// Node IDs are mapped to dense gonum IDs in insertion order.
type Graph[N comparable] struct {
	mu       sync.RWMutex
	graph    *simple.WeightedDirectedGraph
	ids      map[N]int64 // node -> gonum ID
	nodes    []N         // gonum ID -> node
	loops    map[int64]float64
	observer Observer
}

// Option configures a Graph
type Option func(*options)

type options struct {
	observers []Observer
}

// WithObserver registers an observer for engine events. May be given more
// than once; observers are called in registration order.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observers = append(opts.observers, o)
		}
	}
}

// New creates an empty graph
func New[N comparable](opts ...Option) *Graph[N] {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	var observer Observer = nopObserver{}
	switch len(cfg.observers) {
	case 0:
	case 1:
		observer = cfg.observers[0]
	default:
		observer = Observers(cfg.observers)
	}

	return &Graph[N]{
		// Self weight 0 and absent weight +Inf match the relaxation rule.
		graph:    simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		ids:      make(map[N]int64),
		loops:    make(map[int64]float64),
		observer: observer,
	}
}

// AddEdge derives the effective weight of u->v from the weight model and
// stores it, creating either endpoint if it is new. An existing u->v edge
// is overwritten.
func (g *Graph[N]) AddEdge(u, v N, base float64, tod weight.TimeOfDay, congestion int) {
	w := weight.EffectiveWeight(base, tod, congestion)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.setEdge(u, v, w)
	g.observer.Observe(edgeEvent(EventEdgeAdded, u, v, w,
		fmt.Sprintf("base=%g time=%s congestion=%d", base, tod, congestion)))
}

// AddWeightedEdge stores u->v with an already resolved weight
func (g *Graph[N]) AddWeightedEdge(u, v N, w float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.setEdge(u, v, w)
	g.observer.Observe(edgeEvent(EventEdgeAdded, u, v, w, "resolved"))
}

// AddNode adds an isolated node. It is a no-op for known nodes.
func (g *Graph[N]) AddNode(n N) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureNode(n)
}

// HasNode reports whether n is in the graph
func (g *Graph[N]) HasNode(n N) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.ids[n]
	return ok
}

// HasEdge reports whether the edge u->v exists
func (g *Graph[N]) HasEdge(u, v N) bool {
	_, ok := g.Weight(u, v)
	return ok
}

// Weight returns the current weight of u->v
func (g *Graph[N]) Weight(u, v N) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.weight(u, v)
}

// Order returns the number of nodes
func (g *Graph[N]) Order() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Size returns the number of edges
func (g *Graph[N]) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.graph.Edges().Len() + len(g.loops)
}

// Nodes returns all nodes in insertion order
func (g *Graph[N]) Nodes() []N {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]N, len(g.nodes))
	copy(nodes, g.nodes)
	return nodes
}

// Edges returns all edges, grouped by source node in insertion order
func (g *Graph[N]) Edges() []Edge[N] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []Edge[N]
	g.eachEdge(func(uid, vid int64, w float64) bool {
		edges = append(edges, Edge[N]{From: g.nodes[uid], To: g.nodes[vid], Weight: w})
		return true
	})
	return edges
}

// ensureNode returns the gonum ID of n, creating the node if needed.
// Caller must hold the write lock.
func (g *Graph[N]) ensureNode(n N) int64 {
	if id, ok := g.ids[n]; ok {
		return id
	}

	id := int64(len(g.nodes))
	g.ids[n] = id
	g.nodes = append(g.nodes, n)
	g.graph.AddNode(simple.Node(id))
	return id
}

// setEdge stores u->v with weight w. Caller must hold the write lock.
func (g *Graph[N]) setEdge(u, v N, w float64) {
	g.setWeightByID(g.ensureNode(u), g.ensureNode(v), w)
	metrics.EdgesAdded.Inc()
}

func (g *Graph[N]) setWeightByID(uid, vid int64, w float64) {
	// simple graphs reject self edges
	if uid == vid {
		g.loops[uid] = w
		return
	}
	g.graph.SetWeightedEdge(g.graph.NewWeightedEdge(simple.Node(uid), simple.Node(vid), w))
}

// weight looks up u->v. Caller must hold a lock.
func (g *Graph[N]) weight(u, v N) (float64, bool) {
	uid, ok := g.ids[u]
	if !ok {
		return 0, false
	}
	vid, ok := g.ids[v]
	if !ok {
		return 0, false
	}
	return g.weightByID(uid, vid)
}

func (g *Graph[N]) weightByID(uid, vid int64) (float64, bool) {
	if uid == vid {
		w, ok := g.loops[uid]
		return w, ok
	}
	return g.graph.Weight(uid, vid)
}

// eachEdge calls fn for every edge, sources in insertion order, until fn
// returns false. Caller must hold a lock.
func (g *Graph[N]) eachEdge(fn func(uid, vid int64, w float64) bool) {
	for uid := range int64(len(g.nodes)) {
		if w, ok := g.loops[uid]; ok {
			if !fn(uid, uid, w) {
				return
			}
		}

		to := g.graph.From(uid)
		for to.Next() {
			vid := to.Node().ID()
			w, _ := g.graph.Weight(uid, vid)
			if !fn(uid, vid, w) {
				return
			}
		}
	}
}
