// Package optimistic runs a state edit ahead of its confirmation:
// snapshot the current value, apply the tentative value, then keep it or
// restore the snapshot depending on what the confirmation returns.
package optimistic

import "context"

// Cell holds a value that is replaced wholesale, never edited in place
type Cell[T any] interface {
	Load() T
	Store(T)
}

// Op describes one optimistic edit
type Op[T, R any] struct {
	// Apply derives the tentative value. It must not modify current.
	Apply func(current T) T
	// Confirm performs the authoritative call.
	Confirm func(ctx context.Context) (R, error)
	// Tolerate reports confirmation errors that still count as success.
	Tolerate func(err error) bool
}

// Outcome reports what happened to the tentative value
type Outcome int

const (
	Committed Outcome = iota
	Tolerated
	RolledBack
)

// Run applies op against cell. The tentative value is stored before Confirm is
// called; on an intolerable error the exact snapshot is stored back.
func Run[T, R any](ctx context.Context, cell Cell[T], op Op[T, R]) (R, Outcome, error) {
	snapshot := cell.Load()
	cell.Store(op.Apply(snapshot))

	res, err := op.Confirm(ctx)
	if err == nil {
		return res, Committed, nil
	}
	if op.Tolerate != nil && op.Tolerate(err) {
		var zero R
		return zero, Tolerated, nil
	}

	cell.Store(snapshot)
	var zero R
	return zero, RolledBack, err
}
