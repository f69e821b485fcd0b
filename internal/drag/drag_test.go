package drag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
)

var t0 = time.Unix(1_700_000_000, 0)

// tree builds R(0,0) -> A(100,0) -> B(200,0).
func tree() []graph.Node {
	return []graph.Node{
		{ID: "R", Children: []string{"A"}, Type: graph.TypeRoot},
		{ID: "A", ParentID: graph.StrPtr("R"), Children: []string{"B"}, X: 100, Level: 1, Type: graph.TypeCategory},
		{ID: "B", ParentID: graph.StrPtr("A"), Children: []string{}, X: 200, Level: 2, Type: graph.TypeExperience},
	}
}

// withFloating adds a parentless F at pos, optionally with child G 10 units to its right.
func withFloating(t *testing.T, pos r2.Vec, child bool) []graph.Node {
	t.Helper()
	nodes, err := graph.AddFloating(tree(), "F", "float", pos, 0)
	require.NoError(t, err)
	if child {
		nodes, err = graph.AddChild(nodes, "F", "G", "g", graph.DirRight, 0)
		require.NoError(t, err)
		nodes = graph.ApplyPositions(nodes, map[string]r2.Vec{"G": r2.Add(pos, r2.Vec{X: 10})}, false, 0)
	}
	return nodes
}

func find(t *testing.T, nodes []graph.Node, id string) graph.Node {
	t.Helper()
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("node %s not found", id)
	return graph.Node{}
}

func TestDrag_SubtreeMovesRigidly(t *testing.T) {
	nodes := tree()
	c := NewController(nil)

	require.True(t, c.PointerDown(graph.NewIndex(nodes), "A", r2.Vec{X: 105, Y: 3}, 1, Modifiers{}))
	assert.Equal(t, StateArmed, c.State())
	assert.Equal(t, []string{"B"}, c.Session().Descendants)

	require.True(t, c.PointerMove(r2.Vec{X: 155, Y: -17}, 1, t0))
	assert.Equal(t, StateDragging, c.State())
	assert.Equal(t, r2.Vec{X: 150, Y: -20}, c.Overlay()["A"])
	assert.Equal(t, r2.Vec{X: 250, Y: -20}, c.Overlay()["B"])
	assert.NotContains(t, c.Overlay(), "R")
	assert.Equal(t, tree(), nodes, "canonical untouched while dragging")

	out := c.PointerUp(nodes, t0)
	require.Equal(t, ResultCommitted, out.Result)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Overlay())

	a, b, r := find(t, out.Nodes, "A"), find(t, out.Nodes, "B"), find(t, out.Nodes, "R")
	assert.Equal(t, r2.Vec{X: 150, Y: -20}, a.Pos())
	assert.Equal(t, r2.Vec{X: 250, Y: -20}, b.Pos())
	assert.Equal(t, r2.Vec{}, r.Pos())
	assert.True(t, a.ManuallyPositioned)
	assert.True(t, b.ManuallyPositioned)
	assert.False(t, r.ManuallyPositioned)
	assert.Equal(t, t0.UnixMilli(), a.UpdatedAt)
	assert.Empty(t, out.SnappedTo)
	require.NoError(t, graph.CheckInvariants(out.Nodes))
}

func TestDrag_RootAndSuppressedNotArmed(t *testing.T) {
	ix := graph.NewIndex(tree())
	c := NewController(nil)

	assert.False(t, c.PointerDown(ix, "R", r2.Vec{}, 1, Modifiers{}))
	assert.False(t, c.PointerDown(ix, "ghost", r2.Vec{}, 1, Modifiers{}))
	assert.False(t, c.PointerDown(ix, "A", r2.Vec{}, 1, Modifiers{Panning: true}))
	assert.False(t, c.PointerDown(ix, "A", r2.Vec{}, 1, Modifiers{AddMode: true}))
	assert.False(t, c.PointerDown(ix, "A", r2.Vec{}, 1, Modifiers{Editing: true}))
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.PointerMove(r2.Vec{X: 10}, 1, t0), "moves ignored when idle")
	assert.Equal(t, Outcome{}, c.PointerUp(tree(), t0))
}

func TestDrag_ReleaseWithoutMovementIsClick(t *testing.T) {
	c := NewController(nil)
	require.True(t, c.PointerDown(graph.NewIndex(tree()), "B", r2.Vec{X: 200}, 1, Modifiers{}))
	out := c.PointerUp(tree(), t0)
	assert.Equal(t, ResultClick, out.Result)
	assert.Equal(t, "B", out.NodeID)
	assert.Nil(t, out.Nodes)
}

func TestDrag_SubPixelMovementIsClick(t *testing.T) {
	c := NewController(nil)
	require.True(t, c.PointerDown(graph.NewIndex(tree()), "B", r2.Vec{X: 200}, 2, Modifiers{}))
	// 0.4 world units at zoom 2 is 0.8 screen pixels
	require.True(t, c.PointerMove(r2.Vec{X: 200.4}, 2, t0))
	assert.Equal(t, ResultClick, c.PointerUp(tree(), t0).Result)

	require.True(t, c.PointerDown(graph.NewIndex(tree()), "B", r2.Vec{X: 200}, 2, Modifiers{}))
	require.True(t, c.PointerMove(r2.Vec{X: 200.6}, 2, t0))
	assert.Equal(t, ResultCommitted, c.PointerUp(tree(), t0).Result)
}

func TestDrag_MovesThrottledPerFrame(t *testing.T) {
	c := NewController(nil)
	require.True(t, c.PointerDown(graph.NewIndex(tree()), "B", r2.Vec{X: 200}, 1, Modifiers{}))

	assert.True(t, c.PointerMove(r2.Vec{X: 210}, 1, t0))
	assert.False(t, c.PointerMove(r2.Vec{X: 220}, 1, t0.Add(5*time.Millisecond)))
	assert.False(t, c.PointerMove(r2.Vec{X: 230}, 1, t0.Add(10*time.Millisecond)))
	assert.Equal(t, r2.Vec{X: 210}, c.Overlay()["B"], "dropped, not queued")

	assert.True(t, c.PointerMove(r2.Vec{X: 240}, 1, t0.Add(20*time.Millisecond)))
	assert.Equal(t, r2.Vec{X: 240}, c.Overlay()["B"])

	out := c.PointerUp(tree(), t0.Add(21*time.Millisecond))
	assert.Equal(t, 240.0, find(t, out.Nodes, "B").X, "commits the last overlay position")
}

func TestDrag_SnapThresholdIsStrict(t *testing.T) {
	cases := []struct {
		name  string
		zoom  float64
		dropY float64
		snap  bool
	}{
		{"inside at zoom 1", 1, 99.5, true},
		{"exactly threshold at zoom 1", 1, 100, false},
		{"outside at zoom 1", 1, 130, false},
		{"inside at zoom 2", 2, 49.5, true},
		{"exactly threshold at zoom 2", 2, 50, false},
		{"zoomed out widens threshold", 0.5, 150, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nodes := withFloating(t, r2.Vec{X: 100, Y: 400}, false)
			c := NewController(nil)
			require.True(t, c.PointerDown(graph.NewIndex(nodes), "F", r2.Vec{X: 100, Y: 400}, tc.zoom, Modifiers{}))
			require.True(t, c.PointerMove(r2.Vec{X: 100, Y: tc.dropY}, tc.zoom, t0))

			_, _, _, preview := c.PreviewEdge()
			assert.Equal(t, tc.snap, preview)

			out := c.PointerUp(nodes, t0)
			require.Equal(t, ResultCommitted, out.Result)
			f := find(t, out.Nodes, "F")
			if tc.snap {
				assert.Equal(t, "A", out.SnappedTo)
				assert.True(t, f.HasParent("A"))
				assert.Equal(t, 2, f.Level)
				assert.Contains(t, find(t, out.Nodes, "A").Children, "F")
			} else {
				assert.Empty(t, out.SnappedTo)
				assert.True(t, f.IsParentless())
			}
			assert.Equal(t, tc.dropY, f.Y)
			require.NoError(t, graph.CheckInvariants(out.Nodes))
		})
	}
}

func TestDrag_SnapPicksNearestAndClears(t *testing.T) {
	nodes := withFloating(t, r2.Vec{X: 500, Y: 500}, false)
	c := NewController(nil)
	require.True(t, c.PointerDown(graph.NewIndex(nodes), "F", r2.Vec{X: 500, Y: 500}, 1, Modifiers{}))

	require.True(t, c.PointerMove(r2.Vec{X: 130, Y: 10}, 1, t0))
	assert.Equal(t, "A", c.Session().SnapTarget, "A is 31.6 away, B is 70.7")

	require.True(t, c.PointerMove(r2.Vec{X: 190, Y: 10}, 1, t0.Add(20*time.Millisecond)))
	parent, from, to, ok := c.PreviewEdge()
	require.True(t, ok)
	assert.Equal(t, "B", parent)
	assert.Equal(t, r2.Vec{X: 200}, from)
	assert.Equal(t, r2.Vec{X: 190, Y: 10}, to)

	require.True(t, c.PointerMove(r2.Vec{X: 190, Y: 300}, 1, t0.Add(40*time.Millisecond)))
	assert.Empty(t, c.Session().SnapTarget, "cleared once out of range")
}

func TestDrag_RootAndOwnDescendantsNeverCandidates(t *testing.T) {
	nodes := withFloating(t, r2.Vec{X: 0, Y: 500}, true)
	c := NewController(nil)
	require.True(t, c.PointerDown(graph.NewIndex(nodes), "F", r2.Vec{X: 0, Y: 500}, 1, Modifiers{}))

	// near the root and near F's own child G
	require.True(t, c.PointerMove(r2.Vec{X: 0, Y: 5}, 1, t0))
	assert.Empty(t, c.Session().SnapTarget)
	require.True(t, c.PointerMove(r2.Vec{X: 8, Y: 500}, 1, t0.Add(20*time.Millisecond)))
	assert.Empty(t, c.Session().SnapTarget)
}

func TestDrag_ParentedNodeDoesNotSnap(t *testing.T) {
	nodes := withFloating(t, r2.Vec{X: 0, Y: 500}, true)
	c := NewController(nil)
	// G has parent F; dragging it next to B must not reparent
	require.True(t, c.PointerDown(graph.NewIndex(nodes), "G", r2.Vec{X: 10, Y: 500}, 1, Modifiers{}))
	require.True(t, c.PointerMove(r2.Vec{X: 200, Y: 1}, 1, t0))
	out := c.PointerUp(nodes, t0)
	assert.Empty(t, out.SnappedTo)
	assert.True(t, find(t, out.Nodes, "G").HasParent("F"))
}

func TestDrag_SnapCarriesSubtreeAndRelevels(t *testing.T) {
	nodes := withFloating(t, r2.Vec{X: 0, Y: 500}, true)
	c := NewController(nil)
	require.True(t, c.PointerDown(graph.NewIndex(nodes), "F", r2.Vec{X: 0, Y: 500}, 1, Modifiers{}))
	require.True(t, c.PointerMove(r2.Vec{X: 210, Y: 30}, 1, t0))

	out := c.PointerUp(nodes, t0)
	require.Equal(t, "B", out.SnappedTo)
	assert.Equal(t, 3, find(t, out.Nodes, "F").Level)
	g := find(t, out.Nodes, "G")
	assert.Equal(t, 4, g.Level)
	assert.Equal(t, r2.Vec{X: 220, Y: 30}, g.Pos())
	require.NoError(t, graph.CheckInvariants(out.Nodes))
}
