package layout

import (
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
)

// Tree lays each parentless anchor's subtree out left to right: one column
// per level, LevelGap apart, and every leaf gets a SiblingGap-tall slot with
// parents centered on their children.
type Tree struct {
	LevelGap   float64
	SiblingGap float64
}

// NewTree returns a tree layout. Zero gaps fall back to the defaults used
// for new children.
func NewTree(levelGap, siblingGap float64) *Tree {
	if levelGap <= 0 {
		levelGap = graph.ChildOffsetX
	}
	if siblingGap <= 0 {
		siblingGap = graph.SiblingGapY
	}
	return &Tree{LevelGap: levelGap, SiblingGap: siblingGap}
}

// Apply implements Engine.
func (t *Tree) Apply(nodes []graph.Node) []graph.Node {
	out := graph.CloneNodes(nodes)
	ix := graph.NewIndex(out)
	leaves := leafCounts(ix)
	seen := make(map[string]bool, len(out))
	for _, id := range ix.Parentless() {
		t.layoutSubtree(ix, leaves, id, seen)
	}
	return out
}

// layoutSubtree places id's children around id's current position and
// recurses. id itself is never moved here.
func (t *Tree) layoutSubtree(ix *graph.Index, leaves map[string]int, id string, seen map[string]bool) {
	if seen[id] {
		return
	}
	seen[id] = true

	parent := ix.Get(id)
	kids := ix.ChildrenOf[id]
	if parent == nil || len(kids) == 0 {
		return
	}

	total := 0.0
	for _, cid := range kids {
		total += t.height(leaves, cid)
	}

	cur := parent.Y - total/2
	for _, cid := range kids {
		h := t.height(leaves, cid)
		if c := ix.Get(cid); c != nil && !c.ManuallyPositioned {
			c.SetPos(r2.Vec{X: parent.X + t.LevelGap, Y: cur + h/2})
		}
		cur += h
		t.layoutSubtree(ix, leaves, cid, seen)
	}
}

func (t *Tree) height(leaves map[string]int, id string) float64 {
	n := leaves[id]
	if n < 1 {
		n = 1
	}
	return float64(n) * t.SiblingGap
}

// PlaceNew implements Engine.
func (t *Tree) PlaceNew(nodes []graph.Node, newID string) []graph.Node {
	return placeNew(t.Apply, nodes, newID)
}

// AfterDelete pulls parentID's remaining children together: wherever two
// consecutive siblings sit further apart than their subtrees need, the
// lower sibling and everything after it move up to close the gap.
// Manually positioned siblings stay put and reset the comparison.
func (t *Tree) AfterDelete(nodes []graph.Node, parentID string) []graph.Node {
	out := graph.CloneNodes(nodes)
	ix := graph.NewIndex(out)
	kids := ix.ChildrenOf[parentID]
	if len(kids) < 2 {
		return out
	}
	leaves := leafCounts(ix)

	prev := ix.Get(kids[0])
	prevY, prevH := prev.Y, t.height(leaves, kids[0])
	shift := 0.0
	for _, cid := range kids[1:] {
		c := ix.Get(cid)
		h := t.height(leaves, cid)
		if c.ManuallyPositioned {
			prevY, prevH = c.Y, h
			continue
		}
		y := c.Y - shift
		if need := (prevH + h) / 2; y-prevY > need {
			shift += y - prevY - need
			y = prevY + need
		}
		if shift > 0 {
			shiftSubtree(ix, cid, r2.Vec{Y: -shift})
		}
		prevY, prevH = y, h
	}
	return out
}
