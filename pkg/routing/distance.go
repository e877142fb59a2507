package routing

import "math"

// Unreachable is the distance reported for nodes with no path from the
// source. It is +Inf: strictly greater than every finite sum of weights,
// and adding a finite weight to it yields +Inf again.
var Unreachable = math.Inf(1)

// DistanceTable maps each node to its best-known distance from one source.
// Tables are built fresh by every path computation and owned by the caller.
type DistanceTable[N comparable] map[N]float64

// Distance returns the distance to n, or Unreachable if n is not in the table
func (dt DistanceTable[N]) Distance(n N) float64 {
	d, ok := dt[n]
	if !ok {
		return Unreachable
	}
	return d
}

// Reachable reports whether n has a finite distance
func (dt DistanceTable[N]) Reachable(n N) bool {
	return IsReachable(dt.Distance(n))
}

// IsReachable reports whether d is a finite distance
func IsReachable(d float64) bool {
	return !math.IsInf(d, 1)
}

// Tree is a shortest-path tree: distances plus the predecessor of every
// reached node other than the start.
type Tree[N comparable] struct {
	Start     N
	Distances DistanceTable[N]
	prev      map[N]N
}

// PathTo returns the node sequence from the tree's start to dest.
// It returns false when dest is unreachable or its predecessors never lead
// back to the start.
func (t *Tree[N]) PathTo(dest N) ([]N, bool) {
	if !t.Distances.Reachable(dest) {
		return nil, false
	}

	path := []N{dest}
	for cur := dest; cur != t.Start; {
		// A simple path visits every node at most once
		if len(path) > len(t.Distances) {
			return nil, false
		}
		p, ok := t.prev[cur]
		if !ok {
			return nil, false
		}
		path = append(path, p)
		cur = p
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}
