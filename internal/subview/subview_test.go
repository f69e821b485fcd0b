package subview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/graph"
)

// sample builds R -> A -> {B, C}, R -> D with awkward float positions.
func sample() []graph.Node {
	return []graph.Node{
		{ID: "R", Children: []string{"A", "D"}, X: 0.1, Y: 0.2, Type: graph.TypeRoot, Label: "root"},
		{ID: "A", ParentID: graph.StrPtr("R"), Children: []string{"B", "C"}, X: 100.3, Y: -40.7, Level: 1, Label: "a"},
		{ID: "B", ParentID: graph.StrPtr("A"), X: 320.1, Y: 1e-7, Level: 2, Label: "b"},
		{ID: "C", ParentID: graph.StrPtr("A"), Children: []string{}, X: -17.3, Y: 99.9, Level: 2, Label: "c"},
		{ID: "D", ParentID: graph.StrPtr("R"), X: 5, Y: 5, Level: 1, Label: "d"},
	}
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

func TestProject_FocalAtOriginDescendantsTranslated(t *testing.T) {
	p := Project("A", sample())
	require.Len(t, p, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{p[0].ID, p[1].ID, p[2].ID})

	assert.Nil(t, p[0].ParentID, "focal detached visually")
	assert.Equal(t, r2.Vec{}, p[0].Pos())
	assert.Equal(t, []string{"B", "C"}, p[0].Children)

	b := find(t, p, "B")
	assert.InDelta(t, 320.1-100.3, b.X, 1e-9)
	assert.InDelta(t, 1e-7+40.7, b.Y, 1e-9)
	assert.True(t, b.HasParent("A"), "descendants keep canonical parent")
	assert.Equal(t, 2, b.Level)
}

func TestProject_RelativeGeometryPreserved(t *testing.T) {
	nodes := sample()
	p := Project("A", nodes)
	want := r2.Sub(find(t, nodes, "C").Pos(), find(t, nodes, "B").Pos())
	got := r2.Sub(find(t, p, "C").Pos(), find(t, p, "B").Pos())
	assert.InDelta(t, want.X, got.X, 1e-9)
	assert.InDelta(t, want.Y, got.Y, 1e-9)
}

func TestProject_MissingFocal(t *testing.T) {
	assert.Nil(t, Project("ghost", sample()))
}

func TestProject_DoesNotMutateCanonical(t *testing.T) {
	nodes := sample()
	_ = Project("A", nodes)
	assert.Equal(t, sample(), nodes)
}

func TestRoundTrip_Exact(t *testing.T) {
	for _, focal := range []string{"R", "A", "B", "C", "D"} {
		nodes := sample()
		got := Unproject(Project(focal, nodes), focal, nodes)
		assert.Equal(t, sample(), got, focal)
	}
}

func TestUnproject_MergesPositionLabelShared(t *testing.T) {
	nodes := sample()
	p := Project("A", nodes)
	for i := range p {
		if p[i].ID == "B" {
			p[i].X, p[i].Y = 10, 20
			p[i].ManuallyPositioned = true
			p[i].Label = "renamed"
			p[i].Shared = true
			p[i].UpdatedAt = 42
		}
	}
	out := Unproject(p, "A", nodes)
	b := find(t, out, "B")
	assert.InDelta(t, 110.3, b.X, 1e-9)
	assert.InDelta(t, -20.7, b.Y, 1e-9)
	assert.True(t, b.ManuallyPositioned)
	assert.Equal(t, "renamed", b.Label)
	assert.True(t, b.Shared)
	assert.Equal(t, int64(42), b.UpdatedAt)
	assert.Equal(t, find(t, nodes, "C"), find(t, out, "C"), "untouched sibling")
}

func TestUnproject_HierarchyAlwaysFromCanonical(t *testing.T) {
	nodes := sample()
	p := Project("A", nodes)
	for i := range p {
		switch p[i].ID {
		case "A":
			p[i].X, p[i].Y = 999, 999 // focal moves are discarded
			p[i].Label = "focal label"
		case "C":
			p[i].ParentID = graph.StrPtr("B")
			p[i].Level = 7
			p[i].Children = []string{"R"}
		}
	}
	out := Unproject(p, "A", nodes)
	require.NoError(t, graph.CheckInvariants(out))

	a := find(t, out, "A")
	assert.Equal(t, r2.Vec{X: 100.3, Y: -40.7}, a.Pos())
	assert.True(t, a.HasParent("R"), "focal parent restored")
	assert.Equal(t, "focal label", a.Label)

	c := find(t, out, "C")
	assert.True(t, c.HasParent("A"))
	assert.Equal(t, 2, c.Level)
	assert.Equal(t, []string{}, c.Children)
}

func TestUnproject_IgnoresUnknownIDs(t *testing.T) {
	nodes := sample()
	p := append(Project("A", nodes), graph.Node{ID: "new", Label: "x"})
	out := Unproject(p, "A", nodes)
	assert.Len(t, out, len(nodes))

	assert.Equal(t, sample(), Unproject(p, "ghost", nodes), "missing focal leaves canonical")
}

func TestToCanonical(t *testing.T) {
	nodes := sample()
	got := ToCanonical(r2.Vec{X: 1, Y: 2}, "D", nodes)
	assert.Equal(t, r2.Vec{X: 6, Y: 7}, got)
	assert.Equal(t, r2.Vec{X: 1, Y: 2}, ToCanonical(r2.Vec{X: 1, Y: 2}, "ghost", nodes))
}
