// Package editor ties the interaction engine together for one open
// document: canonical nodes, viewport, drag gestures, the node-centered
// view, auto-layout and debounced persistence.
//
// A Workspace serializes every input behind one mutex. Callbacks supplied in
// Options are always invoked after that mutex is released.
package editor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/drag"
	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/layout"
	"mycelica/arbor/internal/persist"
	"mycelica/arbor/internal/subview"
	"mycelica/arbor/internal/viewport"
)

// Layout computes default positions. layout.Engine implementations satisfy it.
type Layout interface {
	Apply(nodes []graph.Node) []graph.Node
	PlaceNew(nodes []graph.Node, newID string) []graph.Node
	AfterDelete(nodes []graph.Node, parentID string) []graph.Node
}

// Options configures a Workspace.
type Options struct {
	UserID      string
	DisplayName string

	// Layout overrides the engine picked from the document's layout kind.
	Layout     Layout
	Authorizer Authorizer // defaults to OwnerAuthorizer

	Gateway  persist.Options
	Drag     *drag.Options
	Viewport *viewport.Options
	Logger   logrus.FieldLogger

	OnSelect       func(id string)     // "" when the selection is cleared
	OnAuthRequired func(action string) // a mutation was refused
	OnChange       func(nodes []graph.Node)

	NewID func() string
	Now   func() time.Time
}

// Workspace is the editing session of one document at a time.
type Workspace struct {
	store persist.Store
	opts  Options
	log   logrus.FieldLogger
	auth  Authorizer

	mu       sync.Mutex
	doc      *graph.Document // metadata; nodes live in w.nodes
	nodes    []graph.Node
	ix       *graph.Index
	editable bool
	selected string
	focal    string // node-view focal id, "" in graph view
	pressed  string // node under a pointer-down that did not arm a drag
	vp       *viewport.Controller
	drag     *drag.Controller
	gw       *persist.Gateway
	after    []func()

	statusMu sync.Mutex
	status   persist.Status
	roster   []graph.ActiveEditor
}

// New returns a workspace persisting through store. No document is open.
func New(store persist.Store, opts Options) *Workspace {
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	auth := opts.Authorizer
	if auth == nil {
		auth = OwnerAuthorizer{}
	}
	w := &Workspace{
		store: store,
		opts:  opts,
		log:   opts.Logger,
		auth:  auth,
		drag:  drag.NewController(opts.Drag),
		ix:    graph.NewIndex(nil),
	}
	w.vp = w.newViewport()
	return w
}

func (w *Workspace) newViewport() *viewport.Controller {
	var vo viewport.Options
	if w.opts.Viewport != nil {
		vo = *w.opts.Viewport
	}
	vo.OnFocused = func(id string) { w.selectLocked(id) }
	return viewport.NewController(&vo)
}

// unlock releases w.mu and then runs the callbacks queued while it was held.
func (w *Workspace) unlock() {
	fns := w.after
	w.after = nil
	w.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// queue runs fn once w.mu is released.
func (w *Workspace) queue(fn func()) { w.after = append(w.after, fn) }

// LoadAndOpen loads docID for the configured user (owner first, then the
// shared lookup) and opens it.
func (w *Workspace) LoadAndOpen(ctx context.Context, docID string) error {
	doc, err := persist.LoadDocument(ctx, w.store, docID, w.opts.UserID)
	if err != nil {
		return err
	}
	w.Open(ctx, doc)
	return nil
}

// Open installs doc as the edited document, replacing any open one. The
// node list is normalized, the root is centered, and presence starts when
// the user may edit. ctx bounds the presence loops.
func (w *Workspace) Open(ctx context.Context, doc *graph.Document) {
	w.open(ctx, doc, doc.Nodes, false)
}

// open installs doc. saved is what the store holds (nil when unknown); with
// resave set, an editable document whose nodes differ from saved is queued
// for writing right away.
func (w *Workspace) open(ctx context.Context, doc *graph.Document, saved []graph.Node, resave bool) {
	w.Close(context.Background())

	d := doc.Clone()
	nodes := graph.Normalize(d.Nodes)
	d.Nodes = nil
	editable := w.auth.CanEdit(&d, w.opts.UserID)

	gopts := w.opts.Gateway
	userStatus, userRoster := gopts.OnStatus, gopts.OnRoster
	gopts.Logger = w.log
	gopts.OnStatus = func(s persist.Status) {
		w.statusMu.Lock()
		w.status = s
		w.statusMu.Unlock()
		if userStatus != nil {
			userStatus(s)
		}
	}
	gopts.OnRoster = func(r []graph.ActiveEditor) {
		w.statusMu.Lock()
		w.roster = r
		w.statusMu.Unlock()
		if userRoster != nil {
			userRoster(r)
		}
	}
	gw := persist.NewGateway(w.store, d.ID, gopts)
	if saved != nil {
		gw.MarkSaved(saved)
	}

	w.statusMu.Lock()
	w.status, w.roster = persist.StatusIdle, nil
	w.statusMu.Unlock()

	w.mu.Lock()
	w.doc = &d
	w.nodes = nodes
	w.ix = graph.NewIndex(nodes)
	w.editable = editable
	w.selected, w.focal, w.pressed = "", "", ""
	w.gw = gw
	w.vp.FitRootToCenter(nodes)
	if resave && editable {
		_, notify := gw.Request(nodes)
		w.queue(notify)
	}
	w.unlock()

	if editable {
		gw.StartPresence(ctx, graph.ActiveEditor{
			UserID:      w.opts.UserID,
			DisplayName: w.opts.DisplayName,
		}, d.Sharing.Shared)
	}
	w.log.WithFields(logrus.Fields{
		"doc_id":   d.ID,
		"nodes":    len(nodes),
		"editable": editable,
	}).Debug("document opened")
}

// Close flushes pending saves, stops presence and forgets the document. An
// in-flight drag is dropped.
func (w *Workspace) Close(ctx context.Context) {
	w.mu.Lock()
	gw := w.gw
	w.gw = nil
	w.doc = nil
	w.nodes = nil
	w.ix = graph.NewIndex(nil)
	w.selected, w.focal, w.pressed = "", "", ""
	w.drag = drag.NewController(w.opts.Drag)
	w.unlock()

	if gw != nil {
		gw.Close(ctx)
	}
}

// Flush writes any pending save now.
func (w *Workspace) Flush(ctx context.Context) {
	w.mu.Lock()
	gw := w.gw
	w.mu.Unlock()
	if gw != nil {
		gw.Flush(ctx)
	}
}

// Document returns a copy of the open document with its current nodes, or
// nil.
func (w *Workspace) Document() *graph.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc == nil {
		return nil
	}
	d := w.doc.Clone()
	d.Nodes = graph.CloneNodes(w.nodes)
	return &d
}

// Nodes returns a copy of the canonical node list.
func (w *Workspace) Nodes() []graph.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return graph.CloneNodes(w.nodes)
}

// Editable reports whether the user may edit the open document.
func (w *Workspace) Editable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.editable
}

// Selection returns the selected node id.
func (w *Workspace) Selection() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected
}

// FocalID returns the node-view focal id, "" in graph view.
func (w *Workspace) FocalID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focal
}

// Viewport returns the current pan and zoom.
func (w *Workspace) Viewport() viewport.Viewport {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.vp.Snapshot()
}

// Status returns the save status.
func (w *Workspace) Status() persist.Status {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	return w.status
}

// Roster returns the last polled active editors of a shared document.
func (w *Workspace) Roster() []graph.ActiveEditor {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()
	return append([]graph.ActiveEditor(nil), w.roster...)
}

// Highlighted returns the ids highlighted by a shared ancestor or flag.
func (w *Workspace) Highlighted() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ix.SharedHighlight()
}

// viewNodesLocked returns the nodes of the active view: canonical in graph
// view, the projection in node view.
func (w *Workspace) viewNodesLocked() []graph.Node {
	if w.focal == "" {
		return w.nodes
	}
	return subview.Project(w.focal, w.nodes)
}

// RenderNodes returns the nodes to draw: the active view with the live drag
// overlay merged over it.
func (w *Workspace) RenderNodes() []graph.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.renderLocked()
}

func (w *Workspace) renderLocked() []graph.Node {
	out := graph.CloneNodes(w.viewNodesLocked())
	overlay := w.drag.Overlay()
	if len(overlay) == 0 {
		return out
	}
	for i := range out {
		if p, ok := overlay[out[i].ID]; ok {
			out[i].SetPos(p)
		}
	}
	return out
}

// PreviewEdge returns the dashed snap preview edge in view coordinates.
func (w *Workspace) PreviewEdge() (parentID string, from, to r2.Vec, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drag.PreviewEdge()
}

// EnterNodeView switches to the node-centered view of focalID and centers it.
// Refused while a drag is in progress or when focalID does not exist.
func (w *Workspace) EnterNodeView(focalID string) bool {
	w.mu.Lock()
	defer w.unlock()
	if w.drag.Active() || !w.ix.Has(focalID) {
		return false
	}
	w.focal = focalID
	w.vp.FitRootToCenter(w.viewNodesLocked())
	return true
}

// EnterGraphView returns to the whole-graph view and centers the root.
func (w *Workspace) EnterGraphView() bool {
	w.mu.Lock()
	defer w.unlock()
	if w.drag.Active() {
		return false
	}
	w.focal = ""
	w.vp.FitRootToCenter(w.nodes)
	return true
}

// engineLocked returns the layout to consult, or nil when auto-layout is off.
func (w *Workspace) engineLocked() Layout {
	if w.doc == nil || !w.doc.Layout.AutoLayout {
		return nil
	}
	return w.layoutFor(w.doc.Layout.Kind)
}

func (w *Workspace) layoutFor(kind graph.LayoutKind) Layout {
	if w.opts.Layout != nil {
		return w.opts.Layout
	}
	return layout.ForKind(kind)
}

// commitLocked installs nodes as canonical and schedules a save.
func (w *Workspace) commitLocked(nodes []graph.Node) {
	w.nodes = nodes
	w.ix = graph.NewIndex(nodes)
	if w.selected != "" && !w.ix.Has(w.selected) {
		w.selectLocked("")
	}
	if w.focal != "" && !w.ix.Has(w.focal) {
		w.focal = ""
		w.vp.FitRootToCenter(nodes)
	}
	if w.gw != nil {
		_, notify := w.gw.Request(nodes)
		w.queue(notify)
	}
	if cb := w.opts.OnChange; cb != nil {
		snapshot := graph.CloneNodes(nodes)
		w.queue(func() { cb(snapshot) })
	}
}

func (w *Workspace) selectLocked(id string) {
	if id != "" && !w.ix.Has(id) {
		return
	}
	w.selected = id
	if cb := w.opts.OnSelect; cb != nil {
		w.queue(func() { cb(id) })
	}
}

// checkEditLocked refuses mutations without a document or permission.
func (w *Workspace) checkEditLocked(action string) error {
	if w.doc == nil {
		return ErrNoDocument
	}
	if !w.editable {
		w.log.WithField("action", action).Debug("edit refused")
		if cb := w.opts.OnAuthRequired; cb != nil {
			w.queue(func() { cb(action) })
		}
		return ErrPermission
	}
	return nil
}

func (w *Workspace) nowMillis() int64 { return w.opts.Now().UnixMilli() }
