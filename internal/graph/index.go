package graph

// Index holds id and parent->children lookups over a flat node list.
// It is rebuilt wholesale whenever the list is replaced, never patched.
type Index struct {
	Nodes      []Node
	ByID       map[string]*Node
	ChildrenOf map[string][]string
	order      map[string]int
}

// NewIndex builds an Index in O(n). The index points into nodes; callers
// replace the slice (and rebuild) instead of mutating it in place.
func NewIndex(nodes []Node) *Index {
	byID := make(map[string]*Node, len(nodes))
	order := make(map[string]int, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
		order[nodes[i].ID] = i
	}

	childrenOf := make(map[string][]string)
	listed := make(map[string]bool)

	// Parent child lists give the sibling order; only entries that point back are kept.
	for i := range nodes {
		p := &nodes[i]
		for _, cid := range p.Children {
			c, ok := byID[cid]
			if !ok || !c.HasParent(p.ID) || listed[cid] {
				continue
			}
			listed[cid] = true
			childrenOf[p.ID] = append(childrenOf[p.ID], cid)
		}
	}
	// Children missing from their parent's list are appended in list order.
	for i := range nodes {
		n := &nodes[i]
		if n.ParentID == nil || listed[n.ID] {
			continue
		}
		if _, ok := byID[*n.ParentID]; !ok {
			continue
		}
		childrenOf[*n.ParentID] = append(childrenOf[*n.ParentID], n.ID)
	}

	return &Index{
		Nodes:      nodes,
		ByID:       byID,
		ChildrenOf: childrenOf,
		order:      order,
	}
}

// Get returns the node with the given id, or nil.
func (ix *Index) Get(id string) *Node {
	return ix.ByID[id]
}

// Has reports whether id is present.
func (ix *Index) Has(id string) bool {
	_, ok := ix.ByID[id]
	return ok
}

// Len returns the number of indexed nodes.
func (ix *Index) Len() int { return len(ix.Nodes) }

// Position returns the slice position of id, or -1.
func (ix *Index) Position(id string) int {
	if i, ok := ix.order[id]; ok {
		return i
	}
	return -1
}

// Descendants returns every transitive descendant of id (excluding id),
// depth-first in sibling order.
func (ix *Index) Descendants(id string) []string {
	var out []string
	visited := map[string]bool{id: true}
	var walk func(string)
	walk = func(cur string) {
		for _, cid := range ix.ChildrenOf[cur] {
			if visited[cid] {
				continue // cycle
			}
			visited[cid] = true
			out = append(out, cid)
			walk(cid)
		}
	}
	walk(id)
	return out
}

// DescendantSet returns Descendants as a set.
func (ix *Index) DescendantSet(id string) map[string]bool {
	ids := ix.Descendants(id)
	set := make(map[string]bool, len(ids))
	for _, d := range ids {
		set[d] = true
	}
	return set
}

// IsAncestor reports whether ancestorID is a strict ancestor of id.
func (ix *Index) IsAncestor(ancestorID, id string) bool {
	visited := make(map[string]bool)
	cur := ix.ByID[id]
	for cur != nil && cur.ParentID != nil {
		if visited[cur.ID] {
			return false
		}
		visited[cur.ID] = true
		if *cur.ParentID == ancestorID {
			return true
		}
		cur = ix.ByID[*cur.ParentID]
	}
	return false
}

// Root returns the diagram root: the parentless root-typed node, else the
// first parentless node, else the first node. Nil for an empty list.
func (ix *Index) Root() *Node {
	if len(ix.Nodes) == 0 {
		return nil
	}
	var firstParentless *Node
	for i := range ix.Nodes {
		n := &ix.Nodes[i]
		if n.ParentID != nil {
			continue
		}
		if n.Type == TypeRoot {
			return n
		}
		if firstParentless == nil {
			firstParentless = n
		}
	}
	if firstParentless != nil {
		return firstParentless
	}
	return &ix.Nodes[0]
}

// IsRoot reports whether id is the diagram root.
func (ix *Index) IsRoot(id string) bool {
	r := ix.Root()
	return r != nil && r.ID == id
}

// Parentless returns the ids of all parentless nodes in list order.
func (ix *Index) Parentless() []string {
	var out []string
	for i := range ix.Nodes {
		if ix.Nodes[i].ParentID == nil {
			out = append(out, ix.Nodes[i].ID)
		}
	}
	return out
}

// SharedHighlight returns the ids highlighted because they or an ancestor
// are marked shared.
func (ix *Index) SharedHighlight() map[string]bool {
	out := make(map[string]bool)
	for i := range ix.Nodes {
		n := &ix.Nodes[i]
		if !n.Shared || out[n.ID] {
			continue
		}
		out[n.ID] = true
		for _, d := range ix.Descendants(n.ID) {
			out[d] = true
		}
	}
	return out
}
