package graph

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
)

// Direction is where a new child is placed relative to its parent. It only
// affects the default position, never the hierarchy.
type Direction string

const (
	DirRight  Direction = "right"
	DirLeft   Direction = "left"
	DirTop    Direction = "top"
	DirBottom Direction = "bottom"
)

// IsValid returns true if the direction is a recognized value
func (d Direction) IsValid() bool {
	switch d {
	case DirRight, DirLeft, DirTop, DirBottom:
		return true
	}
	return false
}

// Default spacing used when placing a new child next to its parent.
const (
	ChildOffsetX  = 220.0
	ChildOffsetY  = 140.0
	SiblingGapX   = 180.0
	SiblingGapY   = 90.0
	floatingLevel = 0
)

// AddChild appends a new node with the given id under parentID. The child is
// placed beside the parent in direction dir, after its existing siblings.
func AddChild(nodes []Node, parentID, id, label string, dir Direction, now int64) ([]Node, error) {
	ix := NewIndex(nodes)
	parent := ix.Get(parentID)
	if parent == nil {
		return nodes, fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}
	if ix.Has(id) {
		return nodes, fmt.Errorf("node id %s already exists", id)
	}
	if !dir.IsValid() {
		dir = DirRight
	}

	siblings := len(ix.ChildrenOf[parentID])
	pos := defaultChildPos(parent.Pos(), dir, siblings)
	level := parent.Level + 1

	out := CloneNodes(nodes)
	for i := range out {
		if out[i].ID == parentID {
			out[i].Children = append(out[i].Children, id)
			out[i].UpdatedAt = now
		}
	}
	out = append(out, Node{
		ID:        id,
		ParentID:  StrPtr(parentID),
		Children:  []string{},
		X:         pos.X,
		Y:         pos.Y,
		Level:     level,
		Type:      DefaultTypeForLevel(level),
		Label:     label,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return out, nil
}

func defaultChildPos(parent r2.Vec, dir Direction, siblings int) r2.Vec {
	shift := float64(siblings)
	switch dir {
	case DirLeft:
		return r2.Vec{X: parent.X - ChildOffsetX, Y: parent.Y + shift*SiblingGapY}
	case DirTop:
		return r2.Vec{X: parent.X + shift*SiblingGapX, Y: parent.Y - ChildOffsetY}
	case DirBottom:
		return r2.Vec{X: parent.X + shift*SiblingGapX, Y: parent.Y + ChildOffsetY}
	default:
		return r2.Vec{X: parent.X + ChildOffsetX, Y: parent.Y + shift*SiblingGapY}
	}
}

// AddFloating adds a parentless node at pos. On an empty list the node
// becomes the root; otherwise it floats until it is connected.
func AddFloating(nodes []Node, id, label string, pos r2.Vec, now int64) ([]Node, error) {
	for i := range nodes {
		if nodes[i].ID == id {
			return nodes, fmt.Errorf("node id %s already exists", id)
		}
	}
	typ := TypeCategory
	if len(nodes) == 0 {
		typ = TypeRoot
	}
	out := CloneNodes(nodes)
	out = append(out, Node{
		ID:                 id,
		Children:           []string{},
		X:                  pos.X,
		Y:                  pos.Y,
		Level:              floatingLevel,
		Type:               typ,
		Label:              label,
		ManuallyPositioned: len(nodes) > 0,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	return out, nil
}

// DeleteSubtree removes id and all of its descendants, and drops id from its
// former parent's children. Returns the new list and the removed ids.
func DeleteSubtree(nodes []Node, id string, now int64) ([]Node, []string, error) {
	ix := NewIndex(nodes)
	target := ix.Get(id)
	if target == nil {
		return nodes, nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if ix.IsRoot(id) {
		return nodes, nil, ErrDeleteRoot
	}

	removed := append([]string{id}, ix.Descendants(id)...)
	gone := make(map[string]bool, len(removed))
	for _, r := range removed {
		gone[r] = true
	}

	out := make([]Node, 0, len(nodes)-len(removed))
	for _, n := range nodes {
		if gone[n.ID] {
			continue
		}
		c := n.Clone()
		if target.ParentID != nil && c.ID == *target.ParentID {
			c.Children = removeID(c.Children, id)
			c.UpdatedAt = now
		}
		out = append(out, c)
	}
	return out, removed, nil
}

// Reparent moves childID (with its subtree) under parentID: it is detached
// from its former parent's children, appended to the new parent's children,
// and the subtree's levels are recomputed.
func Reparent(nodes []Node, childID, parentID string, now int64) ([]Node, error) {
	if childID == parentID {
		return nodes, ErrReparentSelf
	}
	ix := NewIndex(nodes)
	child := ix.Get(childID)
	parent := ix.Get(parentID)
	if child == nil {
		return nodes, fmt.Errorf("node %s: %w", childID, ErrNotFound)
	}
	if parent == nil {
		return nodes, fmt.Errorf("node %s: %w", parentID, ErrNotFound)
	}
	if ix.IsRoot(childID) {
		return nodes, ErrMoveRoot
	}
	if ix.IsAncestor(childID, parentID) {
		return nodes, ErrCycle
	}
	if child.HasParent(parentID) {
		return nodes, nil
	}

	var oldParent string
	if child.ParentID != nil {
		oldParent = *child.ParentID
	}

	out := CloneNodes(nodes)
	for i := range out {
		n := &out[i]
		switch n.ID {
		case oldParent:
			n.Children = removeID(n.Children, childID)
			n.UpdatedAt = now
		case parentID:
			n.Children = append(removeID(n.Children, childID), childID)
			n.UpdatedAt = now
		case childID:
			n.ParentID = StrPtr(parentID)
			n.UpdatedAt = now
		}
	}
	relevelSubtree(out, childID, parent.Level+1)
	return out, nil
}

// EditLabel sets the label of id.
func EditLabel(nodes []Node, id, label string, now int64) ([]Node, error) {
	return updateOne(nodes, id, now, func(n *Node) { n.Label = label })
}

// SetShared sets the shared flag of id. Descendants inherit the highlight
// through Index.SharedHighlight, not through their own flag.
func SetShared(nodes []Node, id string, shared bool, now int64) ([]Node, error) {
	return updateOne(nodes, id, now, func(n *Node) { n.Shared = shared })
}

// ApplyPositions writes positions into the listed nodes. When manual is set
// the nodes are flagged ManuallyPositioned so auto-layout leaves them alone.
func ApplyPositions(nodes []Node, positions map[string]r2.Vec, manual bool, now int64) []Node {
	out := CloneNodes(nodes)
	for i := range out {
		p, ok := positions[out[i].ID]
		if !ok {
			continue
		}
		out[i].SetPos(p)
		if manual {
			out[i].ManuallyPositioned = true
		}
		out[i].UpdatedAt = now
	}
	return out
}

func updateOne(nodes []Node, id string, now int64, fn func(*Node)) ([]Node, error) {
	out := CloneNodes(nodes)
	for i := range out {
		if out[i].ID == id {
			fn(&out[i])
			out[i].UpdatedAt = now
			return out, nil
		}
	}
	return nodes, fmt.Errorf("node %s: %w", id, ErrNotFound)
}

// relevelSubtree sets id's level and shifts all of its descendants to match.
func relevelSubtree(nodes []Node, id string, level int) {
	ix := NewIndex(nodes)
	var walk func(string, int, map[string]bool)
	walk = func(cur string, lvl int, seen map[string]bool) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		if n := ix.Get(cur); n != nil {
			n.Level = lvl
		}
		for _, cid := range ix.ChildrenOf[cur] {
			walk(cid, lvl+1, seen)
		}
	}
	walk(id, level, make(map[string]bool))
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
