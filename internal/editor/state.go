package editor

import (
	"context"

	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/persist"
	"mycelica/arbor/internal/session"
)

// TabState snapshots the workspace for the session tab store.
func (w *Workspace) TabState(tabID string) session.TabState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := session.TabState{
		TabID:     tabID,
		Selection: w.selected,
		Focus: session.Focus{
			NodeID:   w.focal,
			Viewport: w.vp.Snapshot(),
		},
	}
	if w.doc != nil {
		d := w.doc.Clone()
		d.Nodes = nil
		st.Document = &d
		st.Nodes = graph.CloneNodes(w.nodes)
	}
	return st
}

// OpenTabState opens a cached tab snapshot: its document and nodes, then its
// view, selection and viewport. A focal node that no longer exists leaves
// the workspace in graph view. Cached nodes that differ from the stored ones
// (or that cannot be compared because the store is unreachable) are saved.
func (w *Workspace) OpenTabState(ctx context.Context, st session.TabState) error {
	if st.Document == nil {
		return ErrNoDocument
	}
	doc := st.Document.Clone()
	if st.Nodes != nil {
		doc.Nodes = graph.CloneNodes(st.Nodes)
	}
	var saved []graph.Node
	stored, err := persist.LoadDocument(ctx, w.store, doc.ID, w.opts.UserID)
	if err != nil {
		w.log.WithError(err).WithField("doc_id", doc.ID).Debug("stored copy unavailable; cached tab will be saved")
	} else {
		saved = stored.Nodes
	}
	w.open(ctx, &doc, saved, true)

	if st.Focus.NodeID != "" {
		w.EnterNodeView(st.Focus.NodeID)
	}
	w.mu.Lock()
	defer w.unlock()
	w.selectLocked(st.Selection)
	if st.Focus.Viewport.Zoom > 0 {
		w.vp.Restore(st.Focus.Viewport)
	}
	return nil
}
