package editor

import (
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/drag"
	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/subview"
)

// PointerDown handles a press at a screen point over hitID ("" for empty
// canvas). It arms a drag when the node is draggable and the user may edit;
// otherwise the press is remembered so the release selects the node.
func (w *Workspace) PointerDown(screen r2.Vec, hitID string, mods drag.Modifiers) bool {
	w.mu.Lock()
	defer w.unlock()
	w.pressed = ""
	if w.doc == nil || hitID == "" {
		return false
	}
	if w.editable {
		view := w.viewNodesLocked()
		world := w.vp.ScreenToWorld(screen)
		if w.drag.PointerDown(graph.NewIndex(view), hitID, world, w.vp.Zoom(), mods) {
			return true
		}
	}
	w.pressed = hitID
	return false
}

// PointerMove feeds a pointer position to the active drag. Returns whether
// the overlay changed; moves inside one frame interval are dropped.
func (w *Workspace) PointerMove(screen r2.Vec, now time.Time) bool {
	w.mu.Lock()
	defer w.unlock()
	if !w.drag.Active() {
		return false
	}
	if !w.drag.PointerMove(w.vp.ScreenToWorld(screen), w.vp.Zoom(), now) {
		return false
	}
	if w.gw != nil {
		w.gw.MirrorLocal(w.renderLocked())
	}
	return true
}

// PointerUp ends the gesture. A click selects the node; a drag commits the
// overlay (reparenting first when it snapped) and schedules a save. In node
// view the commit is merged back through the projection inverse, so only
// positions, labels and shared flags can change there.
func (w *Workspace) PointerUp(now time.Time) drag.Outcome {
	w.mu.Lock()
	defer w.unlock()

	if !w.drag.Active() {
		id := w.pressed
		w.pressed = ""
		if id == "" {
			return drag.Outcome{}
		}
		w.selectLocked(id)
		return drag.Outcome{Result: drag.ResultClick, NodeID: id}
	}

	out := w.drag.PointerUp(w.viewNodesLocked(), now)
	switch out.Result {
	case drag.ResultClick:
		w.selectLocked(out.NodeID)
	case drag.ResultCommitted:
		nodes := out.Nodes
		if w.focal != "" {
			nodes = subview.Unproject(nodes, w.focal, w.nodes)
		}
		w.commitLocked(nodes)
		out.Nodes = graph.CloneNodes(w.nodes)
		fields := logrus.Fields{"node_id": out.NodeID}
		if out.SnappedTo != "" {
			fields["parent_id"] = out.SnappedTo
		}
		if out.SnapFailed != nil {
			w.log.WithError(out.SnapFailed).WithFields(fields).Debug("snap refused")
		} else {
			w.log.WithFields(fields).Debug("drag committed")
		}
	}
	return out
}

// Wheel zooms by factor keeping the world point under anchor (screen) fixed.
func (w *Workspace) Wheel(factor float64, anchor r2.Vec) {
	w.mu.Lock()
	defer w.unlock()
	w.vp.ZoomBy(factor, anchor)
}

// Pan shifts the canvas by a screen-space delta. Ignored while dragging.
func (w *Workspace) Pan(delta r2.Vec) {
	w.mu.Lock()
	defer w.unlock()
	if w.drag.Active() {
		return
	}
	w.vp.PanBy(delta)
}

// Tick advances the focus animation. Returns whether it is still running.
func (w *Workspace) Tick(now time.Time) bool {
	w.mu.Lock()
	defer w.unlock()
	return w.vp.Step(now)
}

// ScreenToWorld maps a screen point into the coordinates of the active view.
func (w *Workspace) ScreenToWorld(p r2.Vec) r2.Vec {
	w.mu.Lock()
	defer w.unlock()
	return w.vp.ScreenToWorld(p)
}

// WorldToScreen maps a point of the active view onto the screen.
func (w *Workspace) WorldToScreen(p r2.Vec) r2.Vec {
	w.mu.Lock()
	defer w.unlock()
	return w.vp.WorldToScreen(p)
}
