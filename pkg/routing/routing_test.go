package routing

import (
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ritzau/navisys/pkg/weight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// recorder collects events for assertions
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// scenarioA builds the four-node network used throughout these tests,
// every edge at day time with no congestion.
func scenarioA(opts ...Option) *Graph[int] {
	g := New[int](opts...)
	g.AddEdge(0, 1, 4, weight.Day, 0)
	g.AddEdge(0, 2, 1, weight.Day, 0)
	g.AddEdge(1, 2, 2, weight.Day, 0)
	g.AddEdge(1, 3, 1, weight.Day, 0)
	g.AddEdge(2, 3, 5, weight.Day, 0)
	return g
}

func TestScenarioA_ShortestPathFrom(t *testing.T) {
	g := scenarioA()

	got := g.ShortestPathFrom(0)

	assert.Equal(t, DistanceTable[int]{0: 0, 1: 4, 2: 1, 3: 5}, got)
}

func TestScenarioB_RealTimeOverride(t *testing.T) {
	g := scenarioA()

	res, err := g.ApplyRealTimeUpdates(0, ChangeSet[int]{{From: 0, To: 1}: 0.5})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, res.Distances[1], 1e-9)
	assert.InDelta(t, 1.5, res.Distances[3], 1e-9)
	assert.InDelta(t, 1.0, res.Distances[2], 1e-9)
	assert.Equal(t, []EdgeKey[int]{{From: 0, To: 1}}, res.Applied)
	assert.Empty(t, res.Skipped)

	// The override persists in the graph
	w, ok := g.Weight(0, 1)
	require.True(t, ok)
	assert.Equal(t, 0.5, w)
	assert.InDelta(t, 1.5, g.ShortestPathFrom(0)[3], 1e-9)
}

func TestScenarioC_UnknownEdgeIsSkipped(t *testing.T) {
	rec := &recorder{}
	g := scenarioA(WithObserver(rec))

	res, err := g.ApplyRealTimeUpdates(0, ChangeSet[int]{{From: 5, To: 6}: 2.0})
	require.NoError(t, err)

	assert.Equal(t, DistanceTable[int]{0: 0, 1: 4, 2: 1, 3: 5}, res.Distances)
	assert.Equal(t, []EdgeKey[int]{{From: 5, To: 6}}, res.Skipped)
	assert.Empty(t, res.Applied)
	assert.False(t, g.HasNode(5), "skipped change must not create nodes")

	notFound := rec.kinds(EventEdgeNotFound)
	require.Len(t, notFound, 1)
	assert.Equal(t, "5", notFound[0].From)
	assert.Equal(t, "6", notFound[0].To)
}

func TestSkippedChangeBetweenKnownNodes(t *testing.T) {
	g := scenarioA()

	// Both endpoints exist but there is no 3->0 edge
	res, err := g.ApplyRealTimeUpdates(0, ChangeSet[int]{{From: 3, To: 0}: 1, {From: 2, To: 3}: 1})
	require.NoError(t, err)

	assert.Equal(t, []EdgeKey[int]{{From: 3, To: 0}}, res.Skipped)
	assert.Equal(t, []EdgeKey[int]{{From: 2, To: 3}}, res.Applied)
	assert.False(t, g.HasEdge(3, 0))
	assert.InDelta(t, 2.0, res.Distances[3], 1e-9)
}

func TestAddEdgeUsesWeightModel(t *testing.T) {
	g := New[int]()
	g.AddEdge(0, 1, 4, weight.Day, 0)
	g.AddEdge(0, 2, 1, weight.Day, 2)
	g.AddEdge(1, 2, 2, weight.Night, 1)
	g.AddEdge(1, 3, 1, weight.Day, 3)
	g.AddEdge(2, 3, 5, weight.Night, 0)

	for _, tc := range []struct {
		u, v int
		want float64
	}{
		{0, 1, 4}, {0, 2, 1.2}, {1, 2, 3.3}, {1, 3, 1.3}, {2, 3, 7.5},
	} {
		w, ok := g.Weight(tc.u, tc.v)
		require.True(t, ok, "edge %d->%d", tc.u, tc.v)
		assert.InDelta(t, tc.want, w, 1e-9, "edge %d->%d", tc.u, tc.v)
	}

	dist := g.ShortestPathFrom(0)
	assert.InDelta(t, 1.2, dist[2], 1e-9)
	assert.InDelta(t, 5.3, dist[3], 1e-9)
}

func TestAddEdgeOverwrites(t *testing.T) {
	rec := &recorder{}
	g := New[string](WithObserver(rec))

	g.AddEdge("a", "b", 10, weight.Day, 0)
	g.AddEdge("a", "b", 3, weight.Day, 0)

	assert.Equal(t, 1, g.Size())
	assert.Equal(t, 2, g.Order())
	w, _ := g.Weight("a", "b")
	assert.Equal(t, 3.0, w)
	assert.Len(t, rec.kinds(EventEdgeAdded), 2)
}

func TestDestinationBecomesNode(t *testing.T) {
	g := New[string]()
	g.AddEdge("depot", "harbour", 1, weight.Day, 0)

	assert.Equal(t, []string{"depot", "harbour"}, g.Nodes())
	assert.Equal(t, DistanceTable[string]{"harbour": 0, "depot": Unreachable}, g.ShortestPathFrom("harbour"))
}

func TestUnreachableIsInfinity(t *testing.T) {
	g := scenarioA()
	g.AddEdge(7, 8, 1, weight.Day, 0)

	dist := g.ShortestPathFrom(0)
	assert.True(t, math.IsInf(dist[7], 1))
	assert.True(t, math.IsInf(dist[8], 1))
	assert.False(t, dist.Reachable(8))

	res, err := g.ApplyRealTimeUpdates(0, nil)
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.Distances[7], 1))
	assert.True(t, math.IsInf(res.Distances.Distance(42), 1), "absent nodes read as unreachable")
}

func TestUnknownStart(t *testing.T) {
	rec := &recorder{}
	g := scenarioA(WithObserver(rec))

	dist := g.ShortestPathFrom(99)
	assert.Equal(t, 0.0, dist[99])
	for _, n := range []int{0, 1, 2, 3} {
		assert.True(t, math.IsInf(dist[n], 1), "node %d", n)
	}
	assert.False(t, g.HasNode(99), "query must not create the start node")

	res, err := g.ApplyRealTimeUpdates(99, nil)
	require.NoError(t, err)
	assert.Equal(t, dist, res.Distances)

	assert.Len(t, rec.kinds(EventUnknownStart), 2)
}

func TestEmptyGraph(t *testing.T) {
	g := New[int]()

	assert.Equal(t, DistanceTable[int]{1: 0}, g.ShortestPathFrom(1))
	res, err := g.ApplyRealTimeUpdates(1, ChangeSet[int]{{From: 1, To: 2}: 3})
	require.NoError(t, err)
	assert.Equal(t, DistanceTable[int]{1: 0}, res.Distances)
	assert.Len(t, res.Skipped, 1)
}

func TestIdempotentQueries(t *testing.T) {
	g := randomGraph(rand.New(rand.NewPCG(3, 4)), 40, 160)

	first := g.ShortestPathFrom(0)
	second := g.ShortestPathFrom(0)

	assert.Equal(t, first, second)
}

func TestAlgorithmsAgreeOnNonNegativeWeights(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range 25 {
		g := randomGraph(rng, 5+rng.IntN(30), rng.IntN(120))

		for _, start := range []int{0, g.Order() / 2} {
			want := g.ShortestPathFrom(start)

			res, err := g.ApplyRealTimeUpdates(start, ChangeSet[int]{})
			require.NoError(t, err)
			assertTablesEqual(t, want, res.Distances, "graph %d start %d", i, start)

			assertTablesEqual(t, oracle(t, g, start), want, "graph %d start %d vs gonum", i, start)
		}
	}
}

func TestIncreasingWeightMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	for i := range 20 {
		g := randomGraph(rng, 12, 40)
		before := g.ShortestPathFrom(0)

		edges := g.Edges()
		if len(edges) == 0 {
			continue
		}
		e := edges[rng.IntN(len(edges))]

		res, err := g.ApplyRealTimeUpdates(0, ChangeSet[int]{{From: e.From, To: e.To}: e.Weight + 1 + rng.Float64()*10})
		require.NoError(t, err)

		for n, d := range before {
			// Raising a weight can never shorten a route
			assert.GreaterOrEqual(t, res.Distances[n], d, "graph %d node %d", i, n)
		}
	}
}

func TestIncreaseWithAlternatePathKeepsDistance(t *testing.T) {
	g := New[string]()
	g.AddWeightedEdge("s", "a", 1)
	g.AddWeightedEdge("a", "t", 1)
	g.AddWeightedEdge("s", "b", 1)
	g.AddWeightedEdge("b", "t", 1)
	g.AddWeightedEdge("s", "c", 5)

	res, err := g.ApplyRealTimeUpdates("s", ChangeSet[string]{{From: "a", To: "t"}: 10, {From: "s", To: "c"}: 8})
	require.NoError(t, err)

	assert.Equal(t, 2.0, res.Distances["t"], "alternate route through b is unchanged")
	assert.Equal(t, 8.0, res.Distances["c"], "only route got longer")
}

func TestNegativeCycleDetected(t *testing.T) {
	rec := &recorder{}
	g := New[string](WithObserver(rec))
	g.AddWeightedEdge("a", "b", 1)
	g.AddWeightedEdge("b", "c", 1)
	g.AddWeightedEdge("c", "a", 1)
	g.AddWeightedEdge("x", "y", 1)

	res, err := g.ApplyRealTimeUpdates("a", ChangeSet[string]{{From: "c", To: "a"}: -5})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNegativeCycle))
	require.NotNil(t, res)
	assert.NotNil(t, res.Distances)
	assert.Equal(t, g.Order()-1, res.Passes, "a cycle never converges early")
	assert.Len(t, rec.kinds(EventNegativeCycle), 1)
	assert.Regexp(t, `\[(a b c a|b c a b|c a b c)\]$`, err.Error(), "error names the cycle")
	assert.Equal(t, -5.0, mustWeight(t, g, "c", "a"), "override stays applied")
}

func TestNegativeCycleUnreachableFromStart(t *testing.T) {
	g := New[string]()
	g.AddWeightedEdge("s", "t", 2)
	g.AddWeightedEdge("u", "v", 1)
	g.AddWeightedEdge("v", "u", -3)

	res, err := g.ApplyRealTimeUpdates("s", nil)

	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Distances["t"])
	assert.True(t, math.IsInf(res.Distances["u"], 1))
}

func TestNegativeEdgeWithoutCycle(t *testing.T) {
	g := New[string]()
	g.AddWeightedEdge("s", "a", 4)
	g.AddWeightedEdge("s", "b", 1)
	g.AddWeightedEdge("a", "b", -4)

	res, err := g.ApplyRealTimeUpdates("s", nil)

	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Distances["b"])
}

func TestSelfLoops(t *testing.T) {
	g := New[string]()
	g.AddWeightedEdge("a", "a", 2)
	g.AddWeightedEdge("a", "b", 3)

	assert.True(t, g.HasEdge("a", "a"))
	assert.Equal(t, 2, g.Size())
	assert.Equal(t, DistanceTable[string]{"a": 0, "b": 3}, g.ShortestPathFrom("a"))

	res, err := g.ApplyRealTimeUpdates("a", ChangeSet[string]{{From: "a", To: "a"}: -1})
	assert.ErrorIs(t, err, ErrNegativeCycle)
	assert.Equal(t, []EdgeKey[string]{{From: "a", To: "a"}}, res.Applied)
}

func TestShortestPathTree(t *testing.T) {
	g := scenarioA()

	tree := g.ShortestPathTree(0)

	route, ok := tree.PathTo(3)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 3}, route)

	route, ok = tree.PathTo(0)
	require.True(t, ok)
	assert.Equal(t, []int{0}, route)

	g.AddEdge(4, 0, 1, weight.Day, 0)
	_, ok = g.ShortestPathTree(0).PathTo(4)
	assert.False(t, ok)
}

func TestPathToTerminatesWithNegativeCycle(t *testing.T) {
	g := New[string]()
	g.AddWeightedEdge("s", "a", 1)
	g.AddWeightedEdge("a", "b", 1)
	g.AddWeightedEdge("b", "a", -5)

	tree := g.ShortestPathTree("s")

	route, ok := tree.PathTo("b")
	require.True(t, ok)
	assert.Equal(t, []string{"s", "a", "b"}, route)
	assert.Equal(t, 1.0, tree.Distances["a"], "settled node is not reopened")
}

func TestPathToRejectsPredecessorLoop(t *testing.T) {
	tree := &Tree[string]{
		Start:     "s",
		Distances: DistanceTable[string]{"s": 0, "a": 1, "b": 2},
		prev:      map[string]string{"a": "b", "b": "a"},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		route, ok := tree.PathTo("b")
		assert.False(t, ok)
		assert.Nil(t, route)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PathTo did not return on a predecessor loop")
	}
}

func TestRerouteMatchesShortestPath(t *testing.T) {
	rec := &recorder{}
	g := scenarioA(WithObserver(rec))

	got := g.Reroute(1, 3)

	assert.Equal(t, g.ShortestPathFrom(1), got)
	assert.Equal(t, DistanceTable[int]{0: Unreachable, 1: 0, 2: 2, 3: 1}, got)

	reroutes := rec.kinds(EventReroute)
	require.Len(t, reroutes, 1)
	assert.Equal(t, "1", reroutes[0].From)
	assert.Equal(t, "3", reroutes[0].To)
}

func TestRerouteTreeGivesNewRoute(t *testing.T) {
	g := scenarioA()

	route, ok := g.RerouteTree(0, 3).PathTo(3)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 3}, route)

	// A jam on 1->3 sends traffic through 2
	_, err := g.ApplyRealTimeUpdates(0, ChangeSet[int]{{From: 1, To: 3}: 10})
	require.NoError(t, err)

	route, ok = g.RerouteTree(0, 3).PathTo(3)
	require.True(t, ok)
	assert.Equal(t, []int{0, 2, 3}, route)
}

func TestDistanceEventsCarryCause(t *testing.T) {
	rec := &recorder{}
	g := scenarioA(WithObserver(rec))

	g.ShortestPathFrom(0)

	improved := rec.kinds(EventDistanceImproved)
	require.NotEmpty(t, improved)
	for _, e := range improved {
		assert.NotEmpty(t, e.Node)
		assert.Contains(t, e.Cause, "via ")
	}
}

func TestMultipleObservers(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	g := New[int](WithObserver(a), WithObserver(nil), WithObserver(b))

	g.AddWeightedEdge(1, 2, 1)

	assert.Len(t, a.kinds(EventEdgeAdded), 1)
	assert.Len(t, b.kinds(EventEdgeAdded), 1)
}

func TestConcurrentQueriesAndUpdates(t *testing.T) {
	g := randomGraph(rand.New(rand.NewPCG(7, 8)), 30, 120)
	edges := g.Edges()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 20 {
				if i%2 == 0 {
					g.ShortestPathFrom(j % 30)
					continue
				}
				e := edges[(i*j)%len(edges)]
				_, err := g.ApplyRealTimeUpdates(0, ChangeSet[int]{{From: e.From, To: e.To}: float64(j)})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	res, err := g.ApplyRealTimeUpdates(0, nil)
	require.NoError(t, err)
	assertTablesEqual(t, g.ShortestPathFrom(0), res.Distances, "after concurrent updates")
}

// randomGraph builds a graph with nodes 0..n-1 and up to m random
// non-negative edges.
func randomGraph(rng *rand.Rand, n, m int) *Graph[int] {
	g := New[int]()
	for i := range n {
		g.AddNode(i)
	}
	for range m {
		u, v := rng.IntN(n), rng.IntN(n)
		g.AddEdge(u, v, float64(rng.IntN(20)), weight.TimeOfDay(rng.IntN(2)), rng.IntN(4))
	}
	return g
}

// oracle computes distances with gonum's own Dijkstra over a copy of g
func oracle(t *testing.T, g *Graph[int], start int) DistanceTable[int] {
	t.Helper()

	gg := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, n := range g.Nodes() {
		gg.AddNode(simple.Node(n))
	}
	for _, e := range g.Edges() {
		if e.From == e.To {
			continue
		}
		gg.SetWeightedEdge(gg.NewWeightedEdge(simple.Node(e.From), simple.Node(e.To), e.Weight))
	}

	shortest := path.DijkstraFrom(simple.Node(start), gg)
	dist := make(DistanceTable[int])
	for _, n := range g.Nodes() {
		dist[n] = shortest.WeightTo(int64(n))
	}
	return dist
}

func assertTablesEqual(t *testing.T, want, got DistanceTable[int], msgAndArgs ...any) {
	t.Helper()
	require.Len(t, got, len(want), msgAndArgs...)
	for n, d := range want {
		if math.IsInf(d, 1) {
			assert.True(t, math.IsInf(got[n], 1), "node %d should be unreachable", n)
			continue
		}
		assert.InDelta(t, d, got[n], 1e-9, msgAndArgs...)
	}
}

func mustWeight(t *testing.T, g *Graph[string], u, v string) float64 {
	t.Helper()
	w, ok := g.Weight(u, v)
	require.True(t, ok)
	return w
}
