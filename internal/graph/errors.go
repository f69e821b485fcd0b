package graph

import "errors"

var (
	// ErrNotFound is returned for ids or documents that do not exist (or no longer exist).
	ErrNotFound = errors.New("not found")

	// ErrCycle is returned when a reparent would make a node its own ancestor.
	ErrCycle = errors.New("reparent would create a cycle")

	// ErrReparentSelf is returned when a node is reparented under itself.
	ErrReparentSelf = errors.New("cannot reparent a node under itself")

	// ErrDeleteRoot is returned when the root node is deleted.
	ErrDeleteRoot = errors.New("cannot delete the root node")

	// ErrMoveRoot is returned when the root node is reparented.
	ErrMoveRoot = errors.New("cannot reparent the root node")
)

// IsStructural reports whether err is one of the structural errors that the
// interaction layer treats as a silent no-op.
func IsStructural(err error) bool {
	return errors.Is(err, ErrCycle) || errors.Is(err, ErrReparentSelf) ||
		errors.Is(err, ErrDeleteRoot) || errors.Is(err, ErrMoveRoot)
}
