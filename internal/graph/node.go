package graph

import "gonum.org/v1/gonum/spatial/r2"

// NodeType tags a node with its depth-appropriate role in the diagram
type NodeType string

const (
	TypeRoot       NodeType = "root"
	TypeCategory   NodeType = "category"
	TypeExperience NodeType = "experience"
	TypeEpisode    NodeType = "episode"
	TypeDetail     NodeType = "detail"
)

// IsValid returns true if the node type is a recognized value
func (t NodeType) IsValid() bool {
	switch t {
	case TypeRoot, TypeCategory, TypeExperience, TypeEpisode, TypeDetail:
		return true
	}
	return false
}

// DefaultTypeForLevel returns the node type used for a new node at the given depth.
func DefaultTypeForLevel(level int) NodeType {
	switch {
	case level <= 0:
		return TypeRoot
	case level == 1:
		return TypeCategory
	case level == 2:
		return TypeExperience
	case level == 3:
		return TypeEpisode
	default:
		return TypeDetail
	}
}

// Node is one labeled box of the diagram. Positions are absolute world
// coordinates; ParentID and Children encode the same relation twice and
// every operation in this package keeps them in sync.
type Node struct {
	ID                 string   `json:"id"`
	ParentID           *string  `json:"parent_id"`
	Children           []string `json:"children"`
	X                  float64  `json:"x"`
	Y                  float64  `json:"y"`
	Level              int      `json:"level"`
	Type               NodeType `json:"type"`
	Label              string   `json:"label"`
	ManuallyPositioned bool     `json:"manually_positioned"`
	Shared             bool     `json:"shared"`
	CreatedAt          int64    `json:"created_at"` // Unix millis
	UpdatedAt          int64    `json:"updated_at"` // Unix millis
}

// Pos returns the node's world position as a vector.
func (n Node) Pos() r2.Vec { return r2.Vec{X: n.X, Y: n.Y} }

// SetPos sets the node's world position.
func (n *Node) SetPos(p r2.Vec) {
	n.X = p.X
	n.Y = p.Y
}

// IsParentless reports whether the node has no parent.
func (n Node) IsParentless() bool { return n.ParentID == nil }

// HasParent reports whether the node's parent is id.
func (n Node) HasParent(id string) bool { return n.ParentID != nil && *n.ParentID == id }

// Clone creates a deep copy of the node
func (n Node) Clone() Node {
	clone := n
	if n.ParentID != nil {
		p := *n.ParentID
		clone.ParentID = &p
	}
	if n.Children != nil {
		clone.Children = make([]string, len(n.Children))
		copy(clone.Children, n.Children)
	}
	return clone
}

// CloneNodes deep-copies a node list.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// StrPtr returns a pointer to a copy of s.
func StrPtr(s string) *string { return &s }
