package worker

import (
	"context"
	"errors"
	"time"

	"github.com/Daytron/revworks-sub001/internal/session"
)

// ErrCancelled is returned by Task.Checkpoint once the task should stop.
var ErrCancelled = errors.New("task cancelled")

// Work is the body of a background task. It must return promptly once ctx
// is done or Checkpoint reports ErrCancelled.
type Work func(ctx context.Context, t *Task) error

// Task is one supervised unit of background work bound to a session and view.
type Task struct {
	id        string
	name      string
	view      string
	handle    *session.Handle
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (t *Task) ID() string               { return t.id }
func (t *Task) Name() string             { return t.name }
func (t *Task) View() string             { return t.view }
func (t *Task) Handle() *session.Handle  { return t.handle }
func (t *Task) StartedAt() time.Time     { return t.startedAt }
func (t *Task) Context() context.Context { return t.ctx }

// Done is closed when the work function has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err is the work function's result. Only valid after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Checkpoint reports ErrCancelled when the task was stopped or its session
// is no longer active. Work should call it between units of work.
func (t *Task) Checkpoint() error {
	if t.ctx.Err() != nil || !t.handle.Active() {
		return ErrCancelled
	}
	return nil
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}
