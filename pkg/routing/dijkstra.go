package routing

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/ritzau/navisys/pkg/metrics"
)

// ShortestPathFrom computes the distance from start to every node using
// Dijkstra's algorithm. Weights are assumed non-negative.
//
// Unreachable nodes report Unreachable. If start is not in the graph the
// result holds every known node at Unreachable plus start at 0, as if start
// were an isolated node.
func (g *Graph[N]) ShortestPathFrom(start N) DistanceTable[N] {
	return g.ShortestPathTree(start).Distances
}

// ShortestPathTree runs the same search as ShortestPathFrom and also keeps
// the predecessor of every reached node so routes can be reconstructed.
func (g *Graph[N]) ShortestPathTree(start N) *Tree[N] {
	g.mu.RLock()
	defer g.mu.RUnlock()
	defer metrics.ObservePath(metrics.AlgorithmDijkstra, time.Now())

	sid, ok := g.ids[start]
	if !ok {
		g.observer.Observe(nodeEvent(EventUnknownStart, start, 0, "dijkstra"))
		return &Tree[N]{Start: start, Distances: g.degenerateTable(start), prev: map[N]N{}}
	}

	r := newSearch(g, sid)
	r.run()
	return r.tree(start)
}

// degenerateTable is the result for a start node the graph does not know.
// Caller must hold a lock.
func (g *Graph[N]) degenerateTable(start N) DistanceTable[N] {
	dist := make(DistanceTable[N], len(g.nodes)+1)
	for _, n := range g.nodes {
		dist[n] = Unreachable
	}
	dist[start] = 0
	return dist
}

// search holds the state of one Dijkstra run over dense node IDs
type search[N comparable] struct {
	g       *Graph[N]
	dist    []float64
	prev    []int64
	settled []bool
	pq      frontier
}

func newSearch[N comparable](g *Graph[N], sid int64) *search[N] {
	n := len(g.nodes)
	r := &search[N]{
		g:       g,
		dist:    make([]float64, n),
		prev:    make([]int64, n),
		settled: make([]bool, n),
		pq:      make(frontier, 0, n),
	}
	for i := range r.dist {
		r.dist[i] = Unreachable
		r.prev[i] = -1
	}
	r.dist[sid] = 0
	heap.Push(&r.pq, &frontierItem{id: sid, dist: 0})
	return r
}

func (r *search[N]) run() {
	for r.pq.Len() > 0 {
		item := heap.Pop(&r.pq).(*frontierItem)

		// Superseded entries stay in the heap and are dropped here
		if r.settled[item.id] {
			continue
		}
		r.settled[item.id] = true
		r.relax(item.id)
	}
}

// relax tries to improve every neighbour of the settled node u
func (r *search[N]) relax(u int64) {
	to := r.g.graph.From(u)
	for to.Next() {
		v := to.Node().ID()
		// Settled distances are final; a negative edge must not reopen them
		if r.settled[v] {
			continue
		}
		w, _ := r.g.graph.Weight(u, v)

		candidate := r.dist[u] + w
		if candidate >= r.dist[v] {
			continue
		}

		r.dist[v] = candidate
		r.prev[v] = u
		heap.Push(&r.pq, &frontierItem{id: v, dist: candidate})

		r.g.observer.Observe(nodeEvent(EventDistanceImproved, r.g.nodes[v], candidate,
			fmt.Sprintf("via %v", r.g.nodes[u])))
	}
}

func (r *search[N]) tree(start N) *Tree[N] {
	dist := make(DistanceTable[N], len(r.dist))
	prev := make(map[N]N)
	for id, d := range r.dist {
		n := r.g.nodes[id]
		dist[n] = d
		if p := r.prev[id]; p >= 0 {
			prev[n] = r.g.nodes[p]
		}
	}
	return &Tree[N]{Start: start, Distances: dist, prev: prev}
}

// frontierItem is a tentative distance for a node
type frontierItem struct {
	id   int64
	dist float64
}

// frontier is a min-heap of tentative distances. A node may appear more
// than once; only its smallest entry is acted on.
type frontier []*frontierItem

func (pq frontier) Len() int           { return len(pq) }
func (pq frontier) Less(i, j int) bool { return pq[i].dist < pq[j].dist }
func (pq frontier) Swap(i, j int)      { pq[i], pq[j] = pq[j], pq[i] }

func (pq *frontier) Push(x any) { *pq = append(*pq, x.(*frontierItem)) }

func (pq *frontier) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
