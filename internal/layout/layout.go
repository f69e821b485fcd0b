// Package layout computes default node positions for a document. Layouts
// only ever write X and Y: ids, count, order, parent links and levels are
// left exactly as they came in.
package layout

import (
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
)

// Engine is a layout algorithm.
type Engine interface {
	// Apply repositions every node that is not ManuallyPositioned.
	Apply(nodes []graph.Node) []graph.Node
	// PlaceNew positions only newID.
	PlaceNew(nodes []graph.Node, newID string) []graph.Node
	// AfterDelete tidies the remaining children of parentID after one of
	// its subtrees was removed.
	AfterDelete(nodes []graph.Node, parentID string) []graph.Node
}

// ForKind returns the engine for kind. Unknown kinds get the tree layout.
func ForKind(kind graph.LayoutKind) Engine {
	if kind == graph.LayoutRadial {
		return NewRadial(0)
	}
	return NewTree(0, 0)
}

// placeNew runs apply on a copy and keeps only newID's result.
func placeNew(apply func([]graph.Node) []graph.Node, nodes []graph.Node, newID string) []graph.Node {
	laid := apply(nodes)
	out := graph.CloneNodes(nodes)
	for i := range out {
		if out[i].ID != newID || out[i].ManuallyPositioned {
			continue
		}
		out[i].X, out[i].Y = laid[i].X, laid[i].Y
	}
	return out
}

// leafCounts returns, for every node reachable from the parentless anchors,
// the number of leaves in its subtree. A leaf counts as one.
func leafCounts(ix *graph.Index) map[string]int {
	counts := make(map[string]int, ix.Len())
	var walk func(id string) int
	walk = func(id string) int {
		if c, ok := counts[id]; ok {
			return c
		}
		counts[id] = 1 // guards against malformed cyclic input
		kids := ix.ChildrenOf[id]
		if len(kids) == 0 {
			return 1
		}
		total := 0
		for _, cid := range kids {
			total += walk(cid)
		}
		counts[id] = total
		return total
	}
	for _, id := range ix.Parentless() {
		walk(id)
	}
	return counts
}

// shiftSubtree moves id and its descendants by delta, skipping manually
// positioned nodes.
func shiftSubtree(ix *graph.Index, id string, delta r2.Vec) {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		if n := ix.Get(cur); n != nil && !n.ManuallyPositioned {
			n.SetPos(r2.Add(n.Pos(), delta))
		}
		for _, cid := range ix.ChildrenOf[cur] {
			walk(cid)
		}
	}
	walk(id)
}
