package editor

import (
	"errors"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/subview"
	"mycelica/arbor/internal/viewport"
)

// swallow turns the errors the interaction layer treats as no-ops into nil.
func (w *Workspace) swallow(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, graph.ErrNotFound) || graph.IsStructural(err) {
		w.log.WithError(err).WithField("op", op).Debug("ignored")
		return nil
	}
	return err
}

// OnNodeSelect selects id, or clears the selection for "". Unknown ids are
// ignored.
func (w *Workspace) OnNodeSelect(id string) {
	w.mu.Lock()
	defer w.unlock()
	w.selectLocked(id)
}

// FocusNode animates the pan to center id at the current zoom; the node is
// selected when the animation completes (see Tick).
func (w *Workspace) FocusNode(id string) bool {
	w.mu.Lock()
	defer w.unlock()
	for _, n := range w.viewNodesLocked() {
		if n.ID == id {
			w.vp.FocusOnNode(id, n.Pos(), viewport.DefaultFocusDuration, w.opts.Now())
			return true
		}
	}
	return false
}

// OnNodeEdit sets the label of id.
func (w *Workspace) OnNodeEdit(id, label string) error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.checkEditLocked("edit"); err != nil {
		return err
	}
	nodes, err := graph.EditLabel(w.nodes, id, label, w.nowMillis())
	if err != nil {
		return w.swallow("edit", err)
	}
	w.commitLocked(nodes)
	return nil
}

// SetShared sets the shared flag of id.
func (w *Workspace) SetShared(id string, shared bool) error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.checkEditLocked("share"); err != nil {
		return err
	}
	nodes, err := graph.SetShared(w.nodes, id, shared, w.nowMillis())
	if err != nil {
		return w.swallow("share", err)
	}
	w.commitLocked(nodes)
	return nil
}

// OnNodeAddChild adds a child under parentID, placed in direction dir, and
// selects it. With auto-layout on, the layout positions the new node.
// Returns the new id ("" when parentID does not exist).
func (w *Workspace) OnNodeAddChild(parentID string, dir graph.Direction) (string, error) {
	w.mu.Lock()
	defer w.unlock()
	if err := w.checkEditLocked("add"); err != nil {
		return "", err
	}
	id := w.opts.NewID()
	nodes, err := graph.AddChild(w.nodes, parentID, id, "", dir, w.nowMillis())
	if err != nil {
		return "", w.swallow("add", err)
	}
	if eng := w.engineLocked(); eng != nil {
		nodes = eng.PlaceNew(nodes, id)
	}
	w.commitLocked(nodes)
	w.selectLocked(id)
	return id, nil
}

// AddFloating adds a parentless node at a screen position (add-mode click).
// On an empty document the node becomes the root.
func (w *Workspace) AddFloating(label string, screen r2.Vec) (string, error) {
	w.mu.Lock()
	defer w.unlock()
	if err := w.checkEditLocked("add"); err != nil {
		return "", err
	}
	pos := w.vp.ScreenToWorld(screen)
	if w.focal != "" {
		pos = subview.ToCanonical(pos, w.focal, w.nodes)
	}
	id := w.opts.NewID()
	nodes, err := graph.AddFloating(w.nodes, id, label, pos, w.nowMillis())
	if err != nil {
		return "", w.swallow("float", err)
	}
	w.commitLocked(nodes)
	w.selectLocked(id)
	return id, nil
}

// OnNodeDelete removes id and its subtree. Deleting the root is a no-op.
// With auto-layout on, the former siblings close the gap.
func (w *Workspace) OnNodeDelete(id string) error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.checkEditLocked("delete"); err != nil {
		return err
	}
	var parentID string
	if n := w.ix.Get(id); n != nil && n.ParentID != nil {
		parentID = *n.ParentID
	}
	nodes, removed, err := graph.DeleteSubtree(w.nodes, id, w.nowMillis())
	if err != nil {
		return w.swallow("delete", err)
	}
	if eng := w.engineLocked(); eng != nil && parentID != "" {
		nodes = eng.AfterDelete(nodes, parentID)
	}
	w.commitLocked(nodes)
	w.log.WithFields(logrus.Fields{"node_id": id, "removed": len(removed)}).Debug("subtree deleted")
	return nil
}

// OnNodeConnect makes childID a child of parentID. Cycles, self-parenting
// and moving the root are no-ops.
func (w *Workspace) OnNodeConnect(childID, parentID string) error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.checkEditLocked("connect"); err != nil {
		return err
	}
	nodes, err := graph.Reparent(w.nodes, childID, parentID, w.nowMillis())
	if err != nil {
		return w.swallow("connect", err)
	}
	if eng := w.engineLocked(); eng != nil {
		nodes = eng.Apply(nodes)
	}
	w.commitLocked(nodes)
	return nil
}

// Relayout runs the document's layout (or the configured override) over all
// nodes that are not manually positioned, even with auto-layout off.
func (w *Workspace) Relayout() error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.checkEditLocked("layout"); err != nil {
		return err
	}
	w.commitLocked(w.layoutFor(w.doc.Layout.Kind).Apply(w.nodes))
	return nil
}
