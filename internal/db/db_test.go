package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mycelica/arbor/internal/graph"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := OpenDB(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func sampleDoc() *graph.Document {
	return &graph.Document{
		ID:      "doc1",
		Title:   "Plan",
		OwnerID: "alice",
		Layout:  graph.LayoutConfig{Kind: graph.LayoutRadial, AutoLayout: true},
		Nodes: []graph.Node{
			{ID: "R", Children: []string{"A"}, Type: graph.TypeRoot, Label: "root", CreatedAt: 1, UpdatedAt: 1},
			{ID: "A", ParentID: graph.StrPtr("R"), Children: []string{"B"}, X: 100.5, Y: -3, Level: 1, Type: graph.TypeCategory, Label: "a", CreatedAt: 2, UpdatedAt: 2},
			{ID: "B", ParentID: graph.StrPtr("A"), Children: []string{}, X: 200, Level: 2, Type: graph.TypeExperience, Label: "b", Shared: true, ManuallyPositioned: true, CreatedAt: 3, UpdatedAt: 3},
		},
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, sampleDoc()))

	doc, err := d.GetDocument(ctx, "doc1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Plan", doc.Title)
	assert.Equal(t, graph.LayoutConfig{Kind: graph.LayoutRadial, AutoLayout: true}, doc.Layout)
	assert.Equal(t, sampleDoc().Nodes, doc.Nodes, "round trip keeps order, links and flags")
	assert.NotZero(t, doc.CreatedAt)

	_, err = d.GetDocument(ctx, "doc1", "mallory")
	assert.ErrorIs(t, err, graph.ErrNotFound)
	_, err = d.GetDocument(ctx, "missing", "alice")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestCreateDocument_FillsDefaults(t *testing.T) {
	d := setupTestDB(t)
	doc := &graph.Document{Title: "blank", OwnerID: "alice"}
	require.NoError(t, d.CreateDocument(context.Background(), doc))
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, graph.LayoutTree, doc.Layout.Kind)

	got, err := d.GetDocument(context.Background(), doc.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, got.Nodes)
}

func TestGetSharedDocument(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, sampleDoc()))

	_, err := d.GetSharedDocument(ctx, "doc1")
	assert.ErrorIs(t, err, graph.ErrNotFound)

	require.NoError(t, d.SetSharing(ctx, "doc1", graph.Sharing{Shared: true, ReadOnly: true, ShareID: "s-1"}))
	doc, err := d.GetSharedDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, graph.Sharing{Shared: true, ReadOnly: true, ShareID: "s-1"}, doc.Sharing)
	assert.Len(t, doc.Nodes, 3)

	assert.ErrorIs(t, d.SetSharing(ctx, "missing", graph.Sharing{}), graph.ErrNotFound)
}

func TestSaveNodes_ReplacesList(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, sampleDoc()))

	nodes, removed, err := graph.DeleteSubtree(sampleDoc().Nodes, "A", 10)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	require.NoError(t, d.SaveNodes(ctx, "doc1", nodes))

	got, err := d.Nodes(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{}, got[0].Children)

	assert.ErrorIs(t, d.SaveNodes(ctx, "missing", nodes), graph.ErrNotFound)
}

func TestUpdateNode_FieldPatch(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, sampleDoc()))

	x, label, shared := 42.0, "renamed", true
	require.NoError(t, d.UpdateNode(ctx, "doc1", "A", graph.NodePatch{X: &x, Label: &label, Shared: &shared}))

	got, err := d.Nodes(ctx, "doc1")
	require.NoError(t, err)
	a := got[1]
	assert.Equal(t, 42.0, a.X)
	assert.Equal(t, -3.0, a.Y, "untouched")
	assert.Equal(t, "renamed", a.Label)
	assert.True(t, a.Shared)
	assert.True(t, a.ManuallyPositioned)

	assert.ErrorIs(t, d.UpdateNode(ctx, "doc1", "ghost", graph.NodePatch{X: &x}), graph.ErrNotFound)
	assert.NoError(t, d.UpdateNode(ctx, "doc1", "A", graph.NodePatch{}))
}

func TestUpdateNode_ParentPatchKeepsLinksConsistent(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, sampleDoc()))

	require.NoError(t, d.UpdateNode(ctx, "doc1", "B", graph.NodePatch{ParentID: graph.StrPtr("R")}))
	got, err := d.Nodes(ctx, "doc1")
	require.NoError(t, err)
	require.NoError(t, graph.CheckInvariants(got))
	assert.Equal(t, []string{"A", "B"}, got[0].Children)
	assert.Equal(t, 1, got[2].Level)

	err = d.UpdateNode(ctx, "doc1", "R", graph.NodePatch{ParentID: graph.StrPtr("A")})
	assert.ErrorIs(t, err, graph.ErrMoveRoot)
}

func TestListAndDeleteDocuments(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, sampleDoc()))
	require.NoError(t, d.CreateDocument(ctx, &graph.Document{ID: "doc2", Title: "Other", OwnerID: "bob"}))

	all, err := d.ListDocuments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	mine, err := d.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "doc1", mine[0].ID)
	assert.Nil(t, mine[0].Nodes)

	require.NoError(t, d.SetLayout(ctx, "doc2", graph.LayoutConfig{Kind: graph.LayoutRadial}))
	require.NoError(t, d.DeleteDocument(ctx, "doc1"))
	n, err := d.CountNodes(ctx, "doc1")
	require.NoError(t, err)
	assert.Zero(t, n, "nodes cascade")
	assert.ErrorIs(t, d.DeleteDocument(ctx, "doc1"), graph.ErrNotFound)
}

func TestActiveEditors(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.CreateDocument(ctx, sampleDoc()))

	require.NoError(t, d.UpdateActiveEditor(ctx, graph.ActiveEditor{DocumentID: "doc1", UserID: "alice", DisplayName: "Alice", LastSeen: 100}))
	require.NoError(t, d.UpdateActiveEditor(ctx, graph.ActiveEditor{DocumentID: "doc1", UserID: "bob", DisplayName: "Bob", LastSeen: 50}))
	require.NoError(t, d.UpdateActiveEditor(ctx, graph.ActiveEditor{DocumentID: "doc1", UserID: "bob", DisplayName: "Bobby", LastSeen: 200}))

	editors, err := d.GetActiveEditors(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, editors, 2)
	assert.Equal(t, "Bobby", editors[0].DisplayName)
	assert.Equal(t, int64(200), editors[0].LastSeen)

	pruned, err := d.PruneActiveEditors(ctx, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	require.NoError(t, d.RemoveActiveEditor(ctx, "doc1", "bob"))
	require.NoError(t, d.RemoveActiveEditor(ctx, "doc1", "bob"), "idempotent")
	editors, err = d.GetActiveEditors(ctx, "doc1")
	require.NoError(t, err)
	assert.Empty(t, editors)
}

func TestOpenDB_FileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.db")
	d, err := OpenDB(path)
	require.NoError(t, err)
	require.NoError(t, d.CreateDocument(context.Background(), sampleDoc()))
	require.NoError(t, d.Close())

	d, err = OpenDB(path)
	require.NoError(t, err)
	defer d.Close()
	doc, err := d.GetDocument(context.Background(), "doc1", "alice")
	require.NoError(t, err)
	assert.Len(t, doc.Nodes, 3)
}
