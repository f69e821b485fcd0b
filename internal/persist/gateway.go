package persist

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mycelica/arbor/internal/graph"
)

// Status is the save indicator state
type Status int

const (
	StatusIdle Status = iota
	StatusSaving
	StatusSaved
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Options holds the gateway timings and callbacks
type Options struct {
	SaveDebounce   time.Duration // quiet period before a remote write
	MirrorDebounce time.Duration // quiet period before a local mirror
	SavedClear     time.Duration // saved -> idle
	ErrorClear     time.Duration // error -> idle
	Heartbeat      time.Duration // presence refresh interval
	RosterPoll     time.Duration // active-editor poll interval (shared documents)
	CallTimeout    time.Duration // per backing-store call

	Logger logrus.FieldLogger

	OnStatus func(Status)
	OnRoster func([]graph.ActiveEditor)
	Mirror   func([]graph.Node) // local-only sink for MirrorLocal
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		SaveDebounce:   500 * time.Millisecond,
		MirrorDebounce: 16 * time.Millisecond,
		SavedClear:     2 * time.Second,
		ErrorClear:     5 * time.Second,
		Heartbeat:      30 * time.Second,
		RosterPoll:     5 * time.Second,
		CallTimeout:    10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SaveDebounce > 0 {
		d.SaveDebounce = o.SaveDebounce
	}
	if o.MirrorDebounce > 0 {
		d.MirrorDebounce = o.MirrorDebounce
	}
	if o.SavedClear > 0 {
		d.SavedClear = o.SavedClear
	}
	if o.ErrorClear > 0 {
		d.ErrorClear = o.ErrorClear
	}
	if o.Heartbeat > 0 {
		d.Heartbeat = o.Heartbeat
	}
	if o.RosterPoll > 0 {
		d.RosterPoll = o.RosterPoll
	}
	if o.CallTimeout > 0 {
		d.CallTimeout = o.CallTimeout
	}
	d.Logger = o.Logger
	if d.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		d.Logger = l
	}
	d.OnStatus = o.OnStatus
	d.OnRoster = o.OnRoster
	d.Mirror = o.Mirror
	return d
}

// Gateway writes one document's nodes to a Store. Store errors never leave
// the gateway: they become StatusError and are retried on the next request.
// Callbacks run without any gateway lock held, possibly on timer goroutines.
type Gateway struct {
	store Store
	docID string
	opts  Options
	log   logrus.FieldLogger

	save   *Debouncer
	mirror *Debouncer

	mu          sync.Mutex
	status      Status
	lastHash    uint64
	lastFlags   uint64
	hasHash     bool
	latest      []graph.Node
	latestHash  uint64
	latestFlags uint64
	clearTimer  *time.Timer
	clearSeq    uint64
	saves       sync.WaitGroup
	presence    context.CancelFunc
	presenceWG  sync.WaitGroup
	presenceFor graph.ActiveEditor
}

// NewGateway returns a gateway writing docID to store.
func NewGateway(store Store, docID string, opts Options) *Gateway {
	opts = opts.withDefaults()
	return &Gateway{
		store:  store,
		docID:  docID,
		opts:   opts,
		log:    opts.Logger.WithField("doc_id", docID),
		save:   NewDebouncer(opts.SaveDebounce),
		mirror: NewDebouncer(opts.MirrorDebounce),
	}
}

// DocumentID returns the document this gateway writes.
func (g *Gateway) DocumentID() string { return g.docID }

// Status returns the current save status.
func (g *Gateway) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// MarkSaved records nodes as the state already held by the store, so an
// unchanged first edit does not write. Used right after a document load.
func (g *Gateway) MarkSaved(nodes []graph.Node) {
	h, f := HashNodes(nodes), HashFlags(nodes)
	g.mu.Lock()
	g.lastHash, g.lastFlags, g.hasHash = h, f, true
	g.mu.Unlock()
}

// RequestSave schedules a debounced write of nodes. If nodes hash the same as
// the last successful save, nothing is written and any pending write is
// dropped. Returns whether a write was scheduled.
func (g *Gateway) RequestSave(nodes []graph.Node) bool {
	scheduled, notify := g.Request(nodes)
	notify()
	return scheduled
}

// Request is RequestSave without the status callback: the status changes
// immediately and notify delivers OnStatus. Callers holding a lock of their
// own call notify after releasing it. notify is never nil.
func (g *Gateway) Request(nodes []graph.Node) (scheduled bool, notify func()) {
	h, f := HashNodes(nodes), HashFlags(nodes)

	g.mu.Lock()
	if g.hasHash && h == g.lastHash && f == g.lastFlags {
		g.save.Cancel()
		g.latest = nil
		reverted := g.status == StatusSaving
		if reverted {
			g.status = StatusIdle
		}
		g.mu.Unlock()
		saveTotal.WithLabelValues("skipped").Inc()
		if reverted {
			return false, func() { g.emit(StatusIdle) }
		}
		return false, func() {}
	}
	g.latest = graph.CloneNodes(nodes)
	g.latestHash, g.latestFlags = h, f
	g.stopClearLocked()
	changed := g.status != StatusSaving
	g.status = StatusSaving
	g.save.Trigger(func() { g.write(context.Background()) })
	g.mu.Unlock()

	if changed {
		return true, func() { g.emit(StatusSaving) }
	}
	return true, func() {}
}

// Flush performs a pending save immediately and waits for in-flight writes.
func (g *Gateway) Flush(ctx context.Context) {
	if g.save.Pending() {
		g.save.Cancel()
		g.write(ctx)
	}
	g.saves.Wait()
}

// write sends the latest requested nodes to the store.
func (g *Gateway) write(ctx context.Context) {
	g.mu.Lock()
	nodes, h, f := g.latest, g.latestHash, g.latestFlags
	g.latest = nil
	if nodes == nil {
		g.mu.Unlock()
		return
	}
	g.saves.Add(1)
	g.mu.Unlock()
	defer g.saves.Done()

	ctx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
	defer cancel()
	start := time.Now()
	err := g.store.SaveNodes(ctx, g.docID, nodes)
	saveDuration.Observe(time.Since(start).Seconds())

	g.mu.Lock()
	var st Status
	if err != nil {
		g.hasHash = false
		st = StatusError
		g.scheduleClearLocked(StatusError, g.opts.ErrorClear)
		saveTotal.WithLabelValues("error").Inc()
		g.log.WithError(err).WithField("nodes", len(nodes)).Warn("save failed")
	} else {
		g.lastHash, g.lastFlags, g.hasHash = h, f, true
		st = StatusSaved
		g.scheduleClearLocked(StatusSaved, g.opts.SavedClear)
		saveTotal.WithLabelValues("ok").Inc()
		g.log.WithField("nodes", len(nodes)).Debug("saved")
	}
	// A newer request is already pending; its Saving status stands.
	if g.save.Pending() {
		g.stopClearLocked()
		g.mu.Unlock()
		return
	}
	g.status = st
	g.mu.Unlock()
	g.emit(st)
}

// UpdateNode sends a single-node patch straight to the store, bypassing the
// debounce. Failures are logged and reported as StatusError.
func (g *Gateway) UpdateNode(ctx context.Context, nodeID string, patch graph.NodePatch) bool {
	if patch.IsEmpty() {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
	defer cancel()
	if err := g.store.UpdateNode(ctx, g.docID, nodeID, patch); err != nil {
		g.log.WithError(err).WithField("node_id", nodeID).Warn("node update failed")
		g.mu.Lock()
		g.hasHash = false
		g.status = StatusError
		g.scheduleClearLocked(StatusError, g.opts.ErrorClear)
		g.mu.Unlock()
		g.emit(StatusError)
		return false
	}
	return true
}

func (g *Gateway) scheduleClearLocked(from Status, after time.Duration) {
	g.stopClearLocked()
	g.clearSeq++
	seq := g.clearSeq
	g.clearTimer = time.AfterFunc(after, func() {
		g.mu.Lock()
		if seq != g.clearSeq || g.status != from {
			g.mu.Unlock()
			return
		}
		g.status = StatusIdle
		g.clearTimer = nil
		g.mu.Unlock()
		g.emit(StatusIdle)
	})
}

func (g *Gateway) stopClearLocked() {
	g.clearSeq++
	if g.clearTimer != nil {
		g.clearTimer.Stop()
		g.clearTimer = nil
	}
}

func (g *Gateway) emit(s Status) {
	if g.opts.OnStatus != nil {
		g.opts.OnStatus(s)
	}
}

// MirrorLocal hands nodes to the local mirror sink after a one-frame quiet
// period. It never writes to the store.
func (g *Gateway) MirrorLocal(nodes []graph.Node) {
	if g.opts.Mirror == nil {
		return
	}
	snapshot := graph.CloneNodes(nodes)
	g.mirror.Trigger(func() { g.opts.Mirror(snapshot) })
}

// StartPresence records editor as active now and every Heartbeat until
// StopPresence. For shared documents the roster is also polled every
// RosterPoll and passed to OnRoster. A running presence loop is replaced.
func (g *Gateway) StartPresence(ctx context.Context, editor graph.ActiveEditor, shared bool) {
	g.StopPresence()

	editor.DocumentID = g.docID
	ctx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.presence = cancel
	g.presenceFor = editor
	g.mu.Unlock()

	g.presenceWG.Add(1)
	go func() {
		defer g.presenceWG.Done()
		g.loop(ctx, g.opts.Heartbeat, func() { g.heartbeat(ctx, editor) })
	}()
	if shared {
		g.presenceWG.Add(1)
		go func() {
			defer g.presenceWG.Done()
			g.loop(ctx, g.opts.RosterPoll, func() { g.pollRoster(ctx) })
		}()
	}
	g.log.WithFields(logrus.Fields{"user_id": editor.UserID, "shared": shared}).Debug("presence started")
}

// StopPresence stops the presence loops and removes the editor record.
func (g *Gateway) StopPresence() {
	g.mu.Lock()
	cancel, editor := g.presence, g.presenceFor
	g.presence = nil
	g.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	g.presenceWG.Wait()

	ctx, done := context.WithTimeout(context.Background(), g.opts.CallTimeout)
	defer done()
	if err := g.store.RemoveActiveEditor(ctx, g.docID, editor.UserID); err != nil {
		presenceErrors.WithLabelValues("remove").Inc()
		g.log.WithError(err).Debug("remove active editor failed")
	}
}

// loop runs fn now and on every tick until ctx is done.
func (g *Gateway) loop(ctx context.Context, every time.Duration, fn func()) {
	fn()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, editor graph.ActiveEditor) {
	editor.LastSeen = time.Now().UnixMilli()
	cctx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
	defer cancel()
	if err := g.store.UpdateActiveEditor(cctx, editor); err != nil && ctx.Err() == nil {
		presenceErrors.WithLabelValues("heartbeat").Inc()
		g.log.WithError(err).Debug("heartbeat failed")
	}
}

func (g *Gateway) pollRoster(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
	defer cancel()
	roster, err := g.store.GetActiveEditors(cctx, g.docID)
	if err != nil {
		if ctx.Err() == nil {
			presenceErrors.WithLabelValues("roster").Inc()
			g.log.WithError(err).Debug("roster poll failed")
		}
		return
	}
	if g.opts.OnRoster != nil && ctx.Err() == nil {
		g.opts.OnRoster(roster)
	}
}

// Close flushes pending writes and the local mirror, stops presence and
// any status timer.
func (g *Gateway) Close(ctx context.Context) {
	g.mirror.Flush()
	g.Flush(ctx)
	g.StopPresence()
	g.mu.Lock()
	g.stopClearLocked()
	g.mu.Unlock()
}

// LoadDocument fetches a document for userID, falling back to the shared
// lookup when the user is not the owner.
func LoadDocument(ctx context.Context, store Store, docID, userID string) (*graph.Document, error) {
	doc, err := store.GetDocument(ctx, docID, userID)
	if err == nil {
		return doc, nil
	}
	shared, serr := store.GetSharedDocument(ctx, docID)
	if serr != nil {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}
	return shared, nil
}
