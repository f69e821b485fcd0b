// Package persist is the write path to the backing store: a debounced,
// hash-gated node saver with a save-status state machine, a one-frame local
// mirror, and presence heartbeat/roster polling.
package persist

import (
	"context"

	"mycelica/arbor/internal/graph"
)

// Store is the backing-store collaborator. Missing documents return an error
// wrapping graph.ErrNotFound.
type Store interface {
	SaveNodes(ctx context.Context, docID string, nodes []graph.Node) error
	UpdateNode(ctx context.Context, docID, nodeID string, patch graph.NodePatch) error
	GetDocument(ctx context.Context, docID, userID string) (*graph.Document, error)
	GetSharedDocument(ctx context.Context, docID string) (*graph.Document, error)

	UpdateActiveEditor(ctx context.Context, editor graph.ActiveEditor) error
	GetActiveEditors(ctx context.Context, docID string) ([]graph.ActiveEditor, error)
	RemoveActiveEditor(ctx context.Context, docID, userID string) error
}

// Catalog is implemented by stores that can also create and list documents.
type Catalog interface {
	CreateDocument(ctx context.Context, doc *graph.Document) error
	ListDocuments(ctx context.Context, ownerID string) ([]graph.Document, error)
}
