package graph

import "sort"

// LevelBucket counts nodes at one depth
type LevelBucket struct {
	Level int `json:"level"`
	Count int `json:"count"`
}

// FloatingTree is a parentless, non-root subtree waiting to be connected
type FloatingTree struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Size  int    `json:"size"`
}

// TreeStats summarizes the shape of a diagram
type TreeStats struct {
	TotalNodes     int            `json:"total_nodes"`
	RootID         string         `json:"root_id,omitempty"`
	MaxDepth       int            `json:"max_depth"`
	Levels         []LevelBucket  `json:"levels"`
	Components     int            `json:"components"`
	RootTreeSize   int            `json:"root_tree_size"`
	Floating       []FloatingTree `json:"floating"`
	SharedCount    int            `json:"shared_count"`
	HighlightCount int            `json:"highlight_count"`
	ManualCount    int            `json:"manual_count"`
	TypeCounts     map[string]int `json:"type_counts"`
}

// ComputeStats analyzes a node list: depth histogram, connected subtrees via
// union-find over parent edges, floating subtrees, and flag counts.
func ComputeStats(nodes []Node) *TreeStats {
	ix := NewIndex(nodes)
	stats := &TreeStats{
		TotalNodes: len(nodes),
		TypeCounts: make(map[string]int),
	}
	if len(nodes) == 0 {
		return stats
	}

	ids := make([]string, 0, len(nodes))
	for i := range nodes {
		ids = append(ids, nodes[i].ID)
	}
	uf := NewUnionFind(ids)
	levels := make(map[int]int)
	for i := range nodes {
		n := &nodes[i]
		if n.ParentID != nil && ix.Has(*n.ParentID) {
			uf.Union(n.ID, *n.ParentID)
		}
		levels[n.Level]++
		if n.Level > stats.MaxDepth {
			stats.MaxDepth = n.Level
		}
		if n.Shared {
			stats.SharedCount++
		}
		if n.ManuallyPositioned {
			stats.ManualCount++
		}
		stats.TypeCounts[string(n.Type)]++
	}
	stats.Components = len(uf.Components())
	stats.HighlightCount = len(ix.SharedHighlight())

	for lvl, count := range levels {
		stats.Levels = append(stats.Levels, LevelBucket{Level: lvl, Count: count})
	}
	sort.Slice(stats.Levels, func(i, j int) bool { return stats.Levels[i].Level < stats.Levels[j].Level })

	root := ix.Root()
	stats.RootID = root.ID
	stats.RootTreeSize = uf.Size(root.ID)

	for _, id := range ix.Parentless() {
		if id == root.ID {
			continue
		}
		stats.Floating = append(stats.Floating, FloatingTree{
			ID:    id,
			Label: ix.Get(id).Label,
			Size:  uf.Size(id),
		})
	}
	sort.Slice(stats.Floating, func(i, j int) bool {
		if stats.Floating[i].Size != stats.Floating[j].Size {
			return stats.Floating[i].Size > stats.Floating[j].Size
		}
		return stats.Floating[i].ID < stats.Floating[j].ID
	})
	return stats
}
