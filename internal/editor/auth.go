package editor

import (
	"errors"

	"mycelica/arbor/internal/graph"
)

var (
	// ErrPermission is returned when a mutation is attempted on a document
	// the user may not edit. No state is touched.
	ErrPermission = errors.New("permission denied")

	// ErrNoDocument is returned by edits while no document is open.
	ErrNoDocument = errors.New("no document open")
)

// Authorizer decides whether userID may edit doc.
type Authorizer interface {
	CanEdit(doc *graph.Document, userID string) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(doc *graph.Document, userID string) bool

// CanEdit implements Authorizer.
func (f AuthorizerFunc) CanEdit(doc *graph.Document, userID string) bool { return f(doc, userID) }

// OwnerAuthorizer lets the owner edit, and anyone signed in edit documents
// shared without the read-only flag. An empty userID is unauthenticated.
type OwnerAuthorizer struct{}

// CanEdit implements Authorizer.
func (OwnerAuthorizer) CanEdit(doc *graph.Document, userID string) bool {
	if doc == nil || userID == "" {
		return false
	}
	if doc.OwnerID == userID {
		return true
	}
	return doc.Sharing.Shared && !doc.Sharing.ReadOnly
}
