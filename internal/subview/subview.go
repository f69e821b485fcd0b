// Package subview projects a node-centered view of the canonical tree and
// maps edits made in that view back. Both directions are pure functions of
// (focalID, canonical nodes); no second copy of the tree is ever stored.
package subview

import (
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
)

// Project returns the focal node followed by its descendants in depth-first
// sibling order. The focal node sits at the origin with its parent cleared;
// every descendant is translated by -focal.pos and keeps its canonical
// parent, children and level. Returns nil if focalID does not exist.
func Project(focalID string, nodes []graph.Node) []graph.Node {
	ix := graph.NewIndex(nodes)
	focal := ix.Get(focalID)
	if focal == nil {
		return nil
	}
	origin := focal.Pos()
	desc := ix.Descendants(focalID)

	out := make([]graph.Node, 0, len(desc)+1)
	f := focal.Clone()
	f.ParentID = nil
	f.SetPos(r2.Vec{})
	out = append(out, f)
	for _, id := range desc {
		n := ix.Get(id).Clone()
		n.SetPos(r2.Sub(n.Pos(), origin))
		out = append(out, n)
	}
	return out
}

// Unproject merges a (possibly edited) projection back into canonical.
// Only x, y, label and shared flow back; a position change also carries the
// ManuallyPositioned flag. Parent, children and level always come from
// canonical. The focal node's position edits are discarded. Ids that are not
// in both lists are ignored. With no edits the result equals canonical.
func Unproject(projected []graph.Node, focalID string, canonical []graph.Node) []graph.Node {
	out := graph.CloneNodes(canonical)
	ix := graph.NewIndex(out)
	focal := ix.Get(focalID)
	if focal == nil {
		return out
	}
	origin := focal.Pos()

	for i := range projected {
		p := &projected[i]
		c := ix.Get(p.ID)
		if c == nil {
			continue
		}
		changed := false
		if p.ID != focalID {
			if x, ok := unprojectCoord(p.X, c.X, origin.X); ok {
				c.X = x
				changed = true
			}
			if y, ok := unprojectCoord(p.Y, c.Y, origin.Y); ok {
				c.Y = y
				changed = true
			}
			if changed && p.ManuallyPositioned {
				c.ManuallyPositioned = true
			}
		}
		if p.Label != c.Label {
			c.Label = p.Label
			changed = true
		}
		if p.Shared != c.Shared {
			c.Shared = p.Shared
			changed = true
		}
		if changed && p.UpdatedAt > c.UpdatedAt {
			c.UpdatedAt = p.UpdatedAt
		}
	}
	return out
}

// unprojectCoord returns the canonical coordinate for projected value v. An
// unedited coordinate keeps its canonical value bit-for-bit, so the round
// trip is exact even where (c - o) + o != c in floating point.
func unprojectCoord(v, canonical, origin float64) (float64, bool) {
	if v == canonical-origin {
		return canonical, false
	}
	return v + origin, true
}

// ToCanonical maps a point from projected space back to world space.
func ToCanonical(p r2.Vec, focalID string, canonical []graph.Node) r2.Vec {
	if f := graph.NewIndex(canonical).Get(focalID); f != nil {
		return r2.Add(p, f.Pos())
	}
	return p
}
