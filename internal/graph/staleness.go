package graph

import "sort"

const dayMillis = int64(86_400_000)

// StaleNode is a node left untouched for a long time while its subtree is
// still being edited.
type StaleNode struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	DaysSinceUpdate int64  `json:"days_since_update"`
	RecentEdits     int    `json:"recent_edits"`
}

// DriftedParent is a parent whose child changed at least a day after it did;
// the parent label may no longer describe its branch.
type DriftedParent struct {
	ParentID    string `json:"parent_id"`
	ParentLabel string `json:"parent_label"`
	ChildID     string `json:"child_id"`
	ChildLabel  string `json:"child_label"`
	DriftDays   int64  `json:"drift_days"`
}

// StalenessReport contains staleness analysis results
type StalenessReport struct {
	StaleNodes     []StaleNode     `json:"stale_nodes"`
	DriftedParents []DriftedParent `json:"drifted_parents"`
	StaleNodeCount int             `json:"stale_node_count"`
	DriftedCount   int             `json:"drifted_count"`
}

// ComputeStaleness finds stale nodes and drifted parents as of now (unix millis).
func ComputeStaleness(nodes []Node, staleDays, now int64) *StalenessReport {
	ix := NewIndex(nodes)
	staleThreshold := staleDays * dayMillis
	recentWindow := 7 * dayMillis

	var stale []StaleNode
	for i := range nodes {
		n := &nodes[i]
		age := now - n.UpdatedAt
		if age <= staleThreshold || len(n.Children) == 0 {
			continue
		}
		recent := 0
		for _, id := range ix.Descendants(n.ID) {
			if now-ix.Get(id).UpdatedAt < recentWindow {
				recent++
			}
		}
		if recent > 0 {
			stale = append(stale, StaleNode{
				ID:              n.ID,
				Label:           n.Label,
				DaysSinceUpdate: age / dayMillis,
				RecentEdits:     recent,
			})
		}
	}
	sort.SliceStable(stale, func(i, j int) bool {
		return stale[i].RecentEdits > stale[j].RecentEdits
	})

	var drifted []DriftedParent
	for i := range nodes {
		p := &nodes[i]
		for _, cid := range p.Children {
			c := ix.Get(cid)
			if c == nil {
				continue
			}
			if drift := c.UpdatedAt - p.UpdatedAt; drift >= dayMillis {
				drifted = append(drifted, DriftedParent{
					ParentID:    p.ID,
					ParentLabel: p.Label,
					ChildID:     c.ID,
					ChildLabel:  c.Label,
					DriftDays:   drift / dayMillis,
				})
			}
		}
	}
	sort.SliceStable(drifted, func(i, j int) bool {
		return drifted[i].DriftDays > drifted[j].DriftDays
	})

	return &StalenessReport{
		StaleNodes:     stale,
		DriftedParents: drifted,
		StaleNodeCount: len(stale),
		DriftedCount:   len(drifted),
	}
}
