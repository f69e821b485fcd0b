package graph

import (
	"errors"
	"fmt"
)

// CheckInvariants verifies the hierarchy invariants of a node list:
// unique ids, at most one root-typed node, no cycles, parent pointers and
// child lists agreeing in both directions, and level == parent level + 1.
func CheckInvariants(nodes []Node) error {
	ix := NewIndex(nodes)
	var errs []error

	if len(ix.ByID) != len(nodes) {
		errs = append(errs, fmt.Errorf("duplicate node ids: %d nodes, %d unique", len(nodes), len(ix.ByID)))
	}

	roots := 0
	for i := range nodes {
		n := &nodes[i]
		if n.Type == TypeRoot && n.ParentID == nil {
			roots++
		}

		if n.ParentID == nil {
			if n.Level != 0 {
				errs = append(errs, fmt.Errorf("%s: parentless node has level %d", n.ID, n.Level))
			}
		} else {
			p := ix.Get(*n.ParentID)
			switch {
			case p == nil:
				errs = append(errs, fmt.Errorf("%s: dangling parent %s", n.ID, *n.ParentID))
			case !contains(p.Children, n.ID):
				errs = append(errs, fmt.Errorf("%s: missing from children of %s", n.ID, p.ID))
			case n.Level != p.Level+1:
				errs = append(errs, fmt.Errorf("%s: level %d, parent %s level %d", n.ID, n.Level, p.ID, p.Level))
			}
			if ix.IsAncestor(n.ID, n.ID) {
				errs = append(errs, fmt.Errorf("%s: part of a cycle", n.ID))
			}
		}

		seen := make(map[string]bool, len(n.Children))
		for _, cid := range n.Children {
			if seen[cid] {
				errs = append(errs, fmt.Errorf("%s: child %s listed twice", n.ID, cid))
			}
			seen[cid] = true
			c := ix.Get(cid)
			if c == nil {
				errs = append(errs, fmt.Errorf("%s: dangling child %s", n.ID, cid))
			} else if !c.HasParent(n.ID) {
				errs = append(errs, fmt.Errorf("%s: child %s points to another parent", n.ID, cid))
			}
		}
	}
	if len(nodes) > 0 && roots > 1 {
		errs = append(errs, fmt.Errorf("expected one root, found %d", roots))
	}
	return errors.Join(errs...)
}

// Normalize rebuilds child lists and levels from parent pointers. Dangling
// parent pointers are cleared and cycles are cut, so a list received from a
// remote writer always satisfies the hierarchy invariants afterwards.
func Normalize(nodes []Node) []Node {
	out := CloneNodes(nodes)
	byID := make(map[string]*Node, len(out))
	for i := range out {
		byID[out[i].ID] = &out[i]
	}

	for i := range out {
		n := &out[i]
		if n.ParentID != nil {
			if _, ok := byID[*n.ParentID]; !ok || *n.ParentID == n.ID {
				n.ParentID = nil
			}
		}
	}

	// Cut cycles: walk up from each node; a revisit means the edge closing
	// the loop is dropped.
	for i := range out {
		seen := map[string]bool{out[i].ID: true}
		cur := &out[i]
		for cur.ParentID != nil {
			p := byID[*cur.ParentID]
			if seen[p.ID] {
				cur.ParentID = nil
				break
			}
			seen[p.ID] = true
			cur = p
		}
	}

	// Child lists keep their existing order; stray entries go, missing ones are appended.
	for i := range out {
		p := &out[i]
		kept := make([]string, 0, len(p.Children))
		listed := make(map[string]bool)
		for _, cid := range p.Children {
			if c, ok := byID[cid]; ok && c.HasParent(p.ID) && !listed[cid] {
				kept = append(kept, cid)
				listed[cid] = true
			}
		}
		p.Children = kept
	}
	for i := range out {
		c := &out[i]
		if c.ParentID == nil {
			continue
		}
		p := byID[*c.ParentID]
		if !contains(p.Children, c.ID) {
			p.Children = append(p.Children, c.ID)
		}
	}

	for i := range out {
		if out[i].ParentID == nil {
			relevelSubtree(out, out[i].ID, 0)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
