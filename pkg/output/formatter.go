package output

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/ritzau/navisys/pkg/routing"
)

// PrintDistances prints the distance from start to every node, sorted by
// node. Unreachable nodes are shown as ∞ in red.
func PrintDistances(w io.Writer, start string, dt routing.DistanceTable[string]) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	bold.Fprintf(w, "Shortest distances from %s\n", start)
	bold.Fprintln(w, strings.Repeat("=", 24+len(start)))

	nodes := sortedNodes(dt)
	width := 0
	for _, n := range nodes {
		width = max(width, len(n))
	}

	reachable := 0
	for _, n := range nodes {
		d := dt[n]
		if !routing.IsReachable(d) {
			red.Fprintf(w, "  %-*s  ∞\n", width, n)
			continue
		}
		reachable++
		fmt.Fprintf(w, "  %-*s  %.2f\n", width, n, d)
	}

	fmt.Fprintln(w)
	summary := green
	if reachable < len(nodes) {
		summary = color.New(color.FgYellow)
	}
	summary.Fprintf(w, "Reachable: %d/%d nodes\n", reachable, len(nodes))
}

// PrintRoute prints the route from the tree's start to dest
func PrintRoute(w io.Writer, tree *routing.Tree[string], dest string) {
	path, ok := tree.PathTo(dest)
	if !ok {
		color.New(color.FgRed).Fprintf(w, "No route from %s to %s\n", tree.Start, dest)
		return
	}
	color.New(color.FgCyan).Fprintf(w, "Route %s -> %s: %s (%.2f)\n",
		tree.Start, dest, strings.Join(path, " -> "), tree.Distances[dest])
}

// PrintUpdateReport prints the outcome of a real-time update batch. Skipped
// changes are listed in yellow.
func PrintUpdateReport(w io.Writer, result *routing.UpdateResult[string], err error) {
	bold := color.New(color.Bold)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	bold.Fprintln(w, "Real-time update")
	fmt.Fprintf(w, "Applied: %d change(s)\n", len(result.Applied))

	if len(result.Skipped) > 0 {
		yellow.Fprintf(w, "Skipped: %d change(s), edge not found\n", len(result.Skipped))
		for _, k := range sortedKeys(result.Skipped) {
			yellow.Fprintf(w, "  %s -> %s\n", k.From, k.To)
		}
	}

	if err != nil {
		red.Fprintf(w, "Warning: %v\n", err)
		return
	}
	green.Fprintf(w, "Converged after %d pass(es)\n", result.Passes)
}

func sortedNodes(dt routing.DistanceTable[string]) []string {
	nodes := make([]string, 0, len(dt))
	for n := range dt {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	return nodes
}

func sortedKeys(keys []routing.EdgeKey[string]) []routing.EdgeKey[string] {
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, func(a, b routing.EdgeKey[string]) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To))
	})
	return sorted
}
