package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingCell struct {
	value  []string
	stores [][]string
}

func (c *recordingCell) Load() []string { return c.value }

func (c *recordingCell) Store(v []string) {
	c.value = v
	c.stores = append(c.stores, v)
}

var errNotFound = errors.New("not found")

func without(item string) func([]string) []string {
	return func(cur []string) []string {
		out := make([]string, 0, len(cur))
		for _, v := range cur {
			if v != item {
				out = append(out, v)
			}
		}
		return out
	}
}

func TestRunCommitted(t *testing.T) {
	cell := &recordingCell{value: []string{"a", "b"}}
	var seenDuringConfirm []string

	res, outcome, err := Run(context.Background(), cell, Op[[]string, int]{
		Apply: without("a"),
		Confirm: func(context.Context) (int, error) {
			seenDuringConfirm = cell.Load()
			return 1, nil
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, Committed, outcome)
	assert.Equal(t, 1, res)
	assert.Equal(t, []string{"b"}, seenDuringConfirm, "tentative value must be visible before confirmation")
	assert.Equal(t, []string{"b"}, cell.value)
}

func TestRunTolerated(t *testing.T) {
	cell := &recordingCell{value: []string{"a"}}

	_, outcome, err := Run(context.Background(), cell, Op[[]string, struct{}]{
		Apply:    without("a"),
		Confirm:  func(context.Context) (struct{}, error) { return struct{}{}, errNotFound },
		Tolerate: func(err error) bool { return errors.Is(err, errNotFound) },
	})

	assert.NoError(t, err)
	assert.Equal(t, Tolerated, outcome)
	assert.Empty(t, cell.value)
}

func TestRunRollsBackToExactSnapshot(t *testing.T) {
	original := []string{"a", "b", "c"}
	cell := &recordingCell{value: original}
	boom := errors.New("boom")

	_, outcome, err := Run(context.Background(), cell, Op[[]string, struct{}]{
		Apply:    without("b"),
		Confirm:  func(context.Context) (struct{}, error) { return struct{}{}, boom },
		Tolerate: func(err error) bool { return errors.Is(err, errNotFound) },
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, RolledBack, outcome)
	assert.Equal(t, []string{"a", "b", "c"}, cell.value)
	assert.Same(t, &original[0], &cell.value[0], "rollback must restore the snapshot itself")
	assert.Len(t, cell.stores, 2)
}
