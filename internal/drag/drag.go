// Package drag runs one pointer drag gesture at a time: subtree capture on
// pointer-down, a frame-throttled render overlay while moving, snap-connect
// detection for parentless nodes, and a single commit on release.
//
// The canonical node list is never touched until PointerUp.
package drag

import (
	"math"
	"time"

	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
)

// Defaults for Options.
const (
	DefaultSnapThreshold  = 100.0 // screen pixels
	DefaultClickThreshold = 1.0   // screen pixels
	DefaultFrameInterval  = 16 * time.Millisecond
)

// State is the gesture state.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateDragging
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateDragging:
		return "dragging"
	default:
		return "idle"
	}
}

// Modifiers are the interaction modes that suppress arming a drag.
type Modifiers struct {
	Panning bool // canvas pan in progress
	AddMode bool // clicks create floating nodes
	Editing bool // a label text field has focus
}

func (m Modifiers) suppress() bool { return m.Panning || m.AddMode || m.Editing }

// Result is what a released gesture turned out to be.
type Result int

const (
	ResultNone Result = iota
	ResultClick
	ResultCommitted
)

func (r Result) String() string {
	switch r {
	case ResultClick:
		return "click"
	case ResultCommitted:
		return "commit"
	default:
		return "none"
	}
}

// Outcome describes a finished gesture. For ResultCommitted, Nodes holds the
// new canonical list; for ResultClick the caller handles selection of NodeID.
type Outcome struct {
	Result     Result
	NodeID     string
	Nodes      []graph.Node
	SnappedTo  string // new parent id when the commit snap-connected
	SnapFailed error  // structural refusal of the snap; positions still committed
}

// Options configures a Controller.
type Options struct {
	SnapThreshold  float64       // screen pixels; world threshold is this / zoom
	ClickThreshold float64       // screen pixels of net movement below which release is a click
	FrameInterval  time.Duration // at most one processed move per interval
}

func (o *Options) withDefaults() Options {
	d := Options{
		SnapThreshold:  DefaultSnapThreshold,
		ClickThreshold: DefaultClickThreshold,
		FrameInterval:  DefaultFrameInterval,
	}
	if o == nil {
		return d
	}
	if o.SnapThreshold > 0 {
		d.SnapThreshold = o.SnapThreshold
	}
	if o.ClickThreshold > 0 {
		d.ClickThreshold = o.ClickThreshold
	}
	if o.FrameInterval > 0 {
		d.FrameInterval = o.FrameInterval
	}
	return d
}

type candidate struct {
	id  string
	pos r2.Vec
}

// Session is the ephemeral state of one gesture
type Session struct {
	TargetID    string
	Descendants []string // snapshot taken once at pointer-down
	StartPos    r2.Vec   // canonical position of the target
	Offset      r2.Vec   // pointer - target position at pointer-down
	Overlay     map[string]r2.Vec
	SnapTarget  string

	canonical  map[string]r2.Vec
	parentless bool
	candidates []candidate
	delta      r2.Vec
	zoom       float64
	limiter    *rate.Limiter
}

// Controller drives the Idle -> Armed -> Dragging -> Idle machine. It is not
// safe for concurrent use.
type Controller struct {
	opts    Options
	state   State
	session *Session
}

// NewController returns an idle controller.
func NewController(opts *Options) *Controller {
	return &Controller{opts: opts.withDefaults()}
}

// State returns the gesture state.
func (c *Controller) State() State { return c.state }

// Active reports whether a gesture is armed or dragging.
func (c *Controller) Active() bool { return c.state != StateIdle }

// Session returns the live session, or nil when idle.
func (c *Controller) Session() *Session { return c.session }

// PointerDown arms a drag on id if it is draggable: present, not the root,
// and no suppressing modifier is active. Returns whether the drag armed.
func (c *Controller) PointerDown(ix *graph.Index, id string, pointer r2.Vec, zoom float64, mods Modifiers) bool {
	if c.state != StateIdle || mods.suppress() {
		return false
	}
	target := ix.Get(id)
	if target == nil || ix.IsRoot(id) {
		return false
	}
	if zoom <= 0 {
		zoom = 1
	}

	desc := ix.Descendants(id)
	s := &Session{
		TargetID:    id,
		Descendants: desc,
		StartPos:    target.Pos(),
		Offset:      r2.Sub(pointer, target.Pos()),
		Overlay:     make(map[string]r2.Vec, len(desc)+1),
		canonical:   make(map[string]r2.Vec, len(desc)+1),
		parentless:  target.IsParentless(),
		zoom:        zoom,
		limiter:     rate.NewLimiter(rate.Every(c.opts.FrameInterval), 1),
	}
	s.canonical[id] = target.Pos()
	for _, d := range desc {
		if n := ix.Get(d); n != nil {
			s.canonical[d] = n.Pos()
		}
	}

	if s.parentless {
		excluded := make(map[string]bool, len(desc)+1)
		excluded[id] = true
		for _, d := range desc {
			excluded[d] = true
		}
		excluded[ix.Root().ID] = true
		for i := range ix.Nodes {
			n := &ix.Nodes[i]
			if excluded[n.ID] || n.IsParentless() {
				continue
			}
			s.candidates = append(s.candidates, candidate{id: n.ID, pos: n.Pos()})
		}
	}

	c.session = s
	c.state = StateArmed
	return true
}

// PointerMove processes a pointer move at world position pointer. Moves that
// arrive faster than one per frame are dropped, not queued. zoom is the
// current viewport zoom (used for the snap threshold). Returns whether the
// event was processed.
func (c *Controller) PointerMove(pointer r2.Vec, zoom float64, now time.Time) bool {
	s := c.session
	if s == nil {
		return false
	}
	if !s.limiter.AllowN(now, 1) {
		droppedMoves.Inc()
		return false
	}
	if zoom > 0 {
		s.zoom = zoom
	}

	newPos := r2.Sub(pointer, s.Offset)
	s.delta = r2.Sub(newPos, s.StartPos)
	s.Overlay[s.TargetID] = newPos
	for _, d := range s.Descendants {
		if p, ok := s.canonical[d]; ok {
			s.Overlay[d] = r2.Add(p, s.delta)
		}
	}
	c.state = StateDragging

	if s.parentless {
		s.SnapTarget = s.nearest(newPos, c.opts.SnapThreshold/s.zoom)
	}
	return true
}

// nearest returns the closest candidate strictly within threshold, or "".
// Ties keep the first candidate in node-list order.
func (s *Session) nearest(p r2.Vec, threshold float64) string {
	best := ""
	bestDist := math.Inf(1)
	for _, cand := range s.candidates {
		d := r2.Norm(r2.Sub(cand.pos, p))
		if d < threshold && d < bestDist {
			best = cand.id
			bestDist = d
		}
	}
	return best
}

// Overlay returns the live render overlay (nil when idle).
func (c *Controller) Overlay() map[string]r2.Vec {
	if c.session == nil {
		return nil
	}
	return c.session.Overlay
}

// PreviewEdge returns the endpoints of the dashed snap preview edge: the
// candidate parent's position and the dragged node's overlay position.
func (c *Controller) PreviewEdge() (parentID string, from, to r2.Vec, ok bool) {
	s := c.session
	if s == nil || s.SnapTarget == "" {
		return "", r2.Vec{}, r2.Vec{}, false
	}
	for _, cand := range s.candidates {
		if cand.id == s.SnapTarget {
			return cand.id, cand.pos, s.Overlay[s.TargetID], true
		}
	}
	return "", r2.Vec{}, r2.Vec{}, false
}

// PointerUp ends the gesture. Sub-threshold net movement (in screen pixels)
// is a click. Otherwise the gesture commits against nodes, the current
// canonical list: a snap target reparents first, then the overlay positions
// are written with ManuallyPositioned set. There is no cancel path.
func (c *Controller) PointerUp(nodes []graph.Node, now time.Time) Outcome {
	s := c.session
	c.session = nil
	c.state = StateIdle
	if s == nil {
		return Outcome{}
	}

	screenMove := r2.Norm(s.delta) * s.zoom
	if len(s.Overlay) == 0 || screenMove < c.opts.ClickThreshold {
		gestureTotal.WithLabelValues(ResultClick.String()).Inc()
		return Outcome{Result: ResultClick, NodeID: s.TargetID}
	}

	ms := now.UnixMilli()
	out := Outcome{Result: ResultCommitted, NodeID: s.TargetID, Nodes: nodes}
	if s.SnapTarget != "" {
		reparented, err := graph.Reparent(nodes, s.TargetID, s.SnapTarget, ms)
		if err != nil {
			out.SnapFailed = err
		} else {
			out.Nodes = reparented
			out.SnappedTo = s.SnapTarget
			snapTotal.Inc()
		}
	}
	out.Nodes = graph.ApplyPositions(out.Nodes, s.Overlay, true, ms)

	gestureTotal.WithLabelValues(ResultCommitted.String()).Inc()
	subtreeSize.Observe(float64(len(s.Overlay)))
	return out
}
