package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// Task is the handle for one submitted stage run.
type Task struct {
	ID    string
	Stage string

	done   chan struct{}
	result *spectra.Result
	err    error
}

func newTask(stage string) *Task {
	return &Task{
		ID:    uuid.New().String(),
		Stage: stage,
		done:  make(chan struct{}),
	}
}

func (t *Task) finish(res *spectra.Result, err error) {
	t.result, t.err = res, err
	close(t.done)
}

// Done is closed when the run has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the run finishes or ctx is done. The returned result is
// the cached stage output and must not be modified.
func (t *Task) Wait(ctx context.Context) (*spectra.Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the run error once Done is closed, nil before.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}
