package layout

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
)

// DefaultRingStep is the distance between consecutive radial rings.
const DefaultRingStep = 200.0

// Radial places descendants of each parentless anchor on concentric rings
// around it, one ring per depth. Every subtree owns an angular wedge sized
// by its leaf count and its root sits in the middle of the wedge.
type Radial struct {
	RingStep float64
}

// NewRadial returns a radial layout; a zero step means DefaultRingStep.
func NewRadial(step float64) *Radial {
	if step <= 0 {
		step = DefaultRingStep
	}
	return &Radial{RingStep: step}
}

// Apply implements Engine.
func (r *Radial) Apply(nodes []graph.Node) []graph.Node {
	out := graph.CloneNodes(nodes)
	ix := graph.NewIndex(out)
	leaves := leafCounts(ix)
	seen := make(map[string]bool, len(out))
	for _, id := range ix.Parentless() {
		anchor := ix.Get(id).Pos()
		seen[id] = true
		r.layoutWedge(ix, leaves, anchor, id, 1, 0, 2*math.Pi, seen)
	}
	return out
}

func (r *Radial) layoutWedge(ix *graph.Index, leaves map[string]int, anchor r2.Vec, id string, depth int, from, span float64, seen map[string]bool) {
	kids := ix.ChildrenOf[id]
	if len(kids) == 0 {
		return
	}
	total := 0
	for _, cid := range kids {
		total += leaves[cid]
	}
	if total == 0 {
		total = len(kids)
	}

	radius := float64(depth) * r.RingStep
	start := from
	for _, cid := range kids {
		if seen[cid] {
			continue
		}
		seen[cid] = true
		w := leaves[cid]
		if w < 1 {
			w = 1
		}
		slice := span * float64(w) / float64(total)
		if c := ix.Get(cid); c != nil && !c.ManuallyPositioned {
			mid := start + slice/2
			c.SetPos(r2.Add(anchor, r2.Vec{X: radius * math.Cos(mid), Y: radius * math.Sin(mid)}))
		}
		r.layoutWedge(ix, leaves, anchor, cid, depth+1, start, slice, seen)
		start += slice
	}
}

// PlaceNew implements Engine.
func (r *Radial) PlaceNew(nodes []graph.Node, newID string) []graph.Node {
	return placeNew(r.Apply, nodes, newID)
}

// AfterDelete re-applies the whole layout; wedges depend on every leaf.
func (r *Radial) AfterDelete(nodes []graph.Node, _ string) []graph.Node {
	return r.Apply(nodes)
}
