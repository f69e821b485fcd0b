// Package viewport owns the canvas pan/zoom state and the screen<->world
// transform: screen = world*zoom + pan.
package viewport

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
)

// Zoom bounds and the default focus animation length.
const (
	MinZoom              = 0.25
	MaxZoom              = 3.0
	DefaultFocusDuration = 500 * time.Millisecond
)

// Viewport is the pan/zoom state of one canvas
type Viewport struct {
	Pan  r2.Vec  `json:"pan"`
	Zoom float64 `json:"zoom"`
}

// Options configures a Controller
type Options struct {
	Size    r2.Vec // canvas size in screen pixels
	MinZoom float64
	MaxZoom float64

	// OnFocused is called when a focus animation completes.
	OnFocused func(id string)
}

func (o *Options) withDefaults() Options {
	d := Options{
		Size:    r2.Vec{X: 1280, Y: 800},
		MinZoom: MinZoom,
		MaxZoom: MaxZoom,
	}
	if o == nil {
		return d
	}
	if o.Size.X > 0 && o.Size.Y > 0 {
		d.Size = o.Size
	}
	if o.MinZoom > 0 {
		d.MinZoom = o.MinZoom
	}
	if o.MaxZoom > 0 {
		d.MaxZoom = o.MaxZoom
	}
	d.OnFocused = o.OnFocused
	return d
}

// focusAnimation interpolates pan from one value to another
type focusAnimation struct {
	nodeID   string
	from, to r2.Vec
	start    time.Time
	duration time.Duration
}

// Controller owns a Viewport and its animations. It is not safe for
// concurrent use; the workspace serializes access.
type Controller struct {
	vp   Viewport
	opts Options
	anim *focusAnimation
}

// NewController returns a controller at zoom 1, pan (0,0).
func NewController(opts *Options) *Controller {
	return &Controller{
		vp:   Viewport{Zoom: 1},
		opts: opts.withDefaults(),
	}
}

// Snapshot returns the current pan/zoom so it can be restored later.
func (c *Controller) Snapshot() Viewport { return c.vp }

// Zoom returns the current zoom factor.
func (c *Controller) Zoom() float64 { return c.vp.Zoom }

// Size returns the canvas size in screen pixels.
func (c *Controller) Size() r2.Vec { return c.opts.Size }

// SetSize updates the canvas size (window resize).
func (c *Controller) SetSize(size r2.Vec) {
	if size.X > 0 && size.Y > 0 {
		c.opts.Size = size
	}
}

// Restore replaces the pan/zoom state, clamping zoom. Any animation stops.
func (c *Controller) Restore(vp Viewport) {
	c.anim = nil
	c.vp = Viewport{Pan: vp.Pan, Zoom: c.clampZoom(vp.Zoom)}
}

// ScreenToWorld maps a screen point to world coordinates.
func (c *Controller) ScreenToWorld(p r2.Vec) r2.Vec {
	return r2.Scale(1/c.vp.Zoom, r2.Sub(p, c.vp.Pan))
}

// WorldToScreen maps a world point to screen coordinates.
func (c *Controller) WorldToScreen(p r2.Vec) r2.Vec {
	return r2.Add(r2.Scale(c.vp.Zoom, p), c.vp.Pan)
}

// ScreenDeltaToWorld converts a screen-space distance vector to world units.
func (c *Controller) ScreenDeltaToWorld(d r2.Vec) r2.Vec {
	return r2.Scale(1/c.vp.Zoom, d)
}

// ZoomBy multiplies the zoom by factor, keeping the world point under anchor
// (screen coordinates) fixed on screen.
func (c *Controller) ZoomBy(factor float64, anchor r2.Vec) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	c.ZoomTo(c.vp.Zoom*factor, anchor)
}

// ZoomTo sets the zoom (clamped) keeping the world point under anchor fixed.
func (c *Controller) ZoomTo(zoom float64, anchor r2.Vec) {
	world := c.ScreenToWorld(anchor)
	c.vp.Zoom = c.clampZoom(zoom)
	// anchor = world*zoom + pan  =>  pan = anchor - world*zoom
	c.vp.Pan = r2.Sub(anchor, r2.Scale(c.vp.Zoom, world))
}

// ZoomAtCenter zooms around the canvas center (keyboard shortcuts, buttons).
func (c *Controller) ZoomAtCenter(factor float64) {
	c.ZoomBy(factor, c.center())
}

// PanBy shifts the pan by a screen-space delta, independent of zoom.
func (c *Controller) PanBy(delta r2.Vec) {
	c.vp.Pan = r2.Add(c.vp.Pan, delta)
}

// CenterOn returns the pan that puts world point p at the canvas center at
// the current zoom.
func (c *Controller) CenterOn(p r2.Vec) r2.Vec {
	return r2.Sub(c.center(), r2.Scale(c.vp.Zoom, p))
}

// FitRootToCenter resets zoom to 1 and centers the root. With no nodes the
// pan is reset to the origin; with no discoverable root the first node is used.
func (c *Controller) FitRootToCenter(nodes []graph.Node) {
	c.anim = nil
	c.vp.Zoom = c.clampZoom(1)
	root := graph.NewIndex(nodes).Root()
	if root == nil {
		c.vp.Pan = r2.Vec{}
		return
	}
	c.vp.Pan = c.CenterOn(root.Pos())
}

// FocusOnNode starts an eased pan animation that centers pos, holding zoom
// fixed. A new request supersedes an in-flight one. With duration <= 0 the
// pan jumps and OnFocused fires immediately.
func (c *Controller) FocusOnNode(id string, pos r2.Vec, duration time.Duration, now time.Time) {
	target := c.CenterOn(pos)
	if duration <= 0 {
		c.anim = nil
		c.vp.Pan = target
		c.focused(id)
		return
	}
	c.anim = &focusAnimation{
		nodeID:   id,
		from:     c.vp.Pan,
		to:       target,
		start:    now,
		duration: duration,
	}
}

// Step advances any running animation to now. It returns true while an
// animation is still in flight.
func (c *Controller) Step(now time.Time) bool {
	a := c.anim
	if a == nil {
		return false
	}
	t := float64(now.Sub(a.start)) / float64(a.duration)
	if t >= 1 {
		c.vp.Pan = a.to
		c.anim = nil
		c.focused(a.nodeID)
		return false
	}
	if t < 0 {
		t = 0
	}
	e := EaseInOutCubic(t)
	c.vp.Pan = r2.Add(a.from, r2.Scale(e, r2.Sub(a.to, a.from)))
	return true
}

// Animating reports whether a focus animation is running.
func (c *Controller) Animating() bool { return c.anim != nil }

// FocusTarget returns the id of the node being focused, if any.
func (c *Controller) FocusTarget() (string, bool) {
	if c.anim == nil {
		return "", false
	}
	return c.anim.nodeID, true
}

// CancelFocus stops a running animation where it is.
func (c *Controller) CancelFocus() { c.anim = nil }

// EaseInOutCubic is the cubic in/out easing curve on [0,1].
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	f := -2*t + 2
	return 1 - f*f*f/2
}

func (c *Controller) focused(id string) {
	if c.opts.OnFocused != nil {
		c.opts.OnFocused(id)
	}
}

func (c *Controller) center() r2.Vec {
	return r2.Scale(0.5, c.opts.Size)
}

func (c *Controller) clampZoom(z float64) float64 {
	if math.IsNaN(z) || z <= 0 {
		return c.vp.Zoom
	}
	return math.Max(c.opts.MinZoom, math.Min(c.opts.MaxZoom, z))
}
