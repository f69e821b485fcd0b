package cmd

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/config"
	"mycelica/arbor/internal/db"
	"mycelica/arbor/internal/drag"
	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/layout"
)

func setupConfig(t *testing.T) {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("user_id", "alice")
	c, err := config.FromViper(v)
	require.NoError(t, err)
	cfg = c
	log = cfg.NewLogger(io.Discard)
}

func setupDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenDB(db.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestResolveNode(t *testing.T) {
	nodes := []graph.Node{
		{ID: "a1b2c3d4-0000", Label: "Goals"},
		{ID: "a1b2ffff-0000", Label: "Risks"},
		{ID: "9999", Label: "goals"},
	}
	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr string
	}{
		{name: "exact id", ref: "9999", want: "9999"},
		{name: "unique prefix", ref: "a1b2c3", want: "a1b2c3d4-0000"},
		{name: "ambiguous prefix", ref: "a1b2", wantErr: "ambiguous"},
		{name: "unique label", ref: "risks", want: "a1b2ffff-0000"},
		{name: "ambiguous label", ref: "GOALS", wantErr: "ambiguous"},
		{name: "missing", ref: "nothing", wantErr: "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ResolveNode(nodes, tt.ref)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.ID)
		})
	}
}

func TestParseVec(t *testing.T) {
	v, err := parseVec(" 10.5, -3 ")
	require.NoError(t, err)
	assert.Equal(t, r2.Vec{X: 10.5, Y: -3}, v)

	for _, bad := range []string{"", "1", "1,2,3", "x,2", "1,y"} {
		_, err := parseVec(bad)
		assert.Error(t, err, bad)
	}
}

func TestTruncTitle(t *testing.T) {
	assert.Equal(t, "short", truncTitle("short", 10))
	assert.Equal(t, "abc...", truncTitle("abcdef", 3))
	assert.Equal(t, "é...", truncTitle("éé", 3), "cut lands inside a rune")
}

func TestNodesFromOutline(t *testing.T) {
	x, y := 900.0, 900.0
	o := Outline{
		Title: "Plan",
		Root: OutlineNode{Label: "Plan", Children: []OutlineNode{
			{ID: "A", Label: "A", X: &x, Y: &y},
			{ID: "B", Label: "B", Shared: true},
		}},
		Floating: []OutlineNode{
			{ID: "F", Label: "F", Children: []OutlineNode{{ID: "G", Label: "G"}}},
		},
	}
	nodes, err := NodesFromOutline(o, layout.NewTree(0, 0), 1)
	require.NoError(t, err)
	require.NoError(t, graph.CheckInvariants(nodes))
	ix := graph.NewIndex(nodes)

	root := ix.Root()
	require.NotNil(t, root)
	assert.Equal(t, graph.TypeRoot, root.Type)
	assert.Equal(t, []string{"A", "B"}, root.Children)

	a := ix.Get("A")
	assert.Equal(t, r2.Vec{X: 900, Y: 900}, a.Pos())
	assert.True(t, a.ManuallyPositioned)
	assert.True(t, ix.Get("B").Shared)

	assert.Equal(t, r2.Vec{X: 0, Y: floatingGap}, ix.Get("F").Pos())
	assert.Equal(t, r2.Vec{X: 220, Y: floatingGap}, ix.Get("G").Pos())

	back := BuildOutline(&graph.Document{Title: "Plan", Nodes: nodes})
	assert.Equal(t, "Plan", back.Root.Label)
	require.Len(t, back.Root.Children, 2)
	require.NotNil(t, back.Root.Children[0].X)
	assert.Equal(t, 900.0, *back.Root.Children[0].X)
	assert.Nil(t, back.Root.Children[1].X, "laid-out nodes export without coordinates")
	require.Len(t, back.Floating, 1)
	assert.Equal(t, "G", back.Floating[0].Children[0].Label)
}

func TestResolveDocument(t *testing.T) {
	setupConfig(t)
	d := setupDB(t)
	ctx := context.Background()
	for _, doc := range []*graph.Document{
		{ID: "doc-plan-1", Title: "Plan", OwnerID: "alice"},
		{ID: "doc-plan-2", Title: "Roadmap", OwnerID: "alice"},
		{ID: "other", Title: "Theirs", OwnerID: "bob"},
	} {
		require.NoError(t, d.CreateDocument(ctx, doc))
	}

	id, err := ResolveDocument(ctx, d, "roadmap")
	require.NoError(t, err)
	assert.Equal(t, "doc-plan-2", id)

	id, err = ResolveDocument(ctx, d, "doc-plan-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-plan-1", id)

	_, err = ResolveDocument(ctx, d, "doc-plan")
	assert.ErrorContains(t, err, "ambiguous")

	id, err = ResolveDocument(ctx, d, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", id, "foreign ids pass through for the shared lookup")
}

func TestDragNode_SnapsFloatingTree(t *testing.T) {
	setupConfig(t)
	d := setupDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, &graph.Document{
		ID:      "doc1",
		Title:   "Plan",
		OwnerID: "alice",
		Nodes: []graph.Node{
			{ID: "R", Children: []string{"A"}, Type: graph.TypeRoot, Label: "root"},
			{ID: "A", ParentID: graph.StrPtr("R"), Children: []string{}, X: 220, Level: 1, Type: graph.TypeCategory, Label: "a"},
			{ID: "F", Children: []string{}, X: 400, Y: 300, Type: graph.TypeCategory, Label: "f", ManuallyPositioned: true},
		},
	}))

	ws, err := OpenWorkspace(ctx, d, "Plan")
	require.NoError(t, err)
	out := DragNode(ws, "F", r2.Vec{X: 400, Y: 300}, r2.Vec{X: 270, Y: 0}, time.Now())
	ws.Close(ctx)

	require.Equal(t, drag.ResultCommitted, out.Result)
	assert.Equal(t, "A", out.SnappedTo)

	nodes, err := d.Nodes(ctx, "doc1")
	require.NoError(t, err)
	f := graph.NewIndex(nodes).Get("F")
	require.NotNil(t, f)
	assert.True(t, f.HasParent("A"))
	assert.Equal(t, 2, f.Level)
	assert.Equal(t, r2.Vec{X: 270, Y: 0}, f.Pos())
}

func TestDragNode_ReadOnlyIsClick(t *testing.T) {
	setupConfig(t)
	d := setupDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, &graph.Document{
		ID:      "doc1",
		OwnerID: "bob",
		Nodes: []graph.Node{
			{ID: "R", Children: []string{"A"}, Type: graph.TypeRoot, Label: "root"},
			{ID: "A", ParentID: graph.StrPtr("R"), Children: []string{}, X: 220, Level: 1, Type: graph.TypeCategory, Label: "a"},
		},
	}))
	require.NoError(t, d.SetSharing(ctx, "doc1", graph.Sharing{Shared: true, ReadOnly: true}))

	ws, err := OpenWorkspace(ctx, d, "doc1")
	require.NoError(t, err)
	defer ws.Close(ctx)
	require.False(t, ws.Editable())

	out := DragNode(ws, "A", r2.Vec{X: 220}, r2.Vec{X: 500}, time.Now())
	assert.Equal(t, drag.ResultClick, out.Result)
	assert.Equal(t, "A", ws.Selection())
}

func TestMarkCommandPersistsSharedFlag(t *testing.T) {
	setupConfig(t)
	path := filepath.Join(t.TempDir(), dbFileName)
	t.Setenv("ARBOR_DB", path)
	d, err := db.OpenDB(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, &graph.Document{
		ID:      "doc1",
		Title:   "Plan",
		OwnerID: "alice",
		Nodes: []graph.Node{
			{ID: "R", Children: []string{"A"}, Type: graph.TypeRoot, Label: "root"},
			{ID: "A", ParentID: graph.StrPtr("R"), Children: []string{}, X: 220, Level: 1, Type: graph.TypeCategory, Label: "a"},
		},
	}))
	require.NoError(t, d.Close())

	markCmd.SetContext(ctx)
	require.NoError(t, markCmd.RunE(markCmd, []string{"Plan", "a"}))

	d, err = db.OpenDB(path)
	require.NoError(t, err)
	defer d.Close()
	nodes, err := d.Nodes(ctx, "doc1")
	require.NoError(t, err)
	a := graph.NewIndex(nodes).Get("A")
	require.NotNil(t, a)
	assert.True(t, a.Shared)
}
