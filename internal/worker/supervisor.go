// Package worker supervises per-session, per-view background work and
// stops it deterministically when a view is left or a session ends.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/metrics"
	"github.com/Daytron/revworks-sub001/internal/session"
)

var (
	ErrSupervisorClosed = errors.New("task supervisor is shut down")

	// ErrViewNotCurrent is returned when work is started for a view the
	// session is not in.
	ErrViewNotCurrent = errors.New("view is not the session's current view")
)

// EventPublisher is satisfied by *events.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

type Options struct {
	// StopTimeout bounds how long a stop waits before force-detaching tasks.
	StopTimeout time.Duration
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Events      EventPublisher
}

type Supervisor struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]map[string]*Task
	views  map[uuid.UUID]string
	closed bool

	stopTimeout time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
	events      EventPublisher
}

func NewSupervisor(opts Options) *Supervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{
		tasks:       make(map[uuid.UUID]map[string]*Task),
		views:       make(map[uuid.UUID]string),
		stopTimeout: opts.StopTimeout,
		clock:       opts.Clock,
		logger:      opts.Logger,
		events:      opts.Events,
	}
}

// Start runs work in its own goroutine on behalf of h within viewID.
// It fails with session.ErrSessionNotActive once h is being torn down and
// with ErrViewNotCurrent unless viewID is h's current view, so a task never
// attaches to a view that has already been left.
func (s *Supervisor) Start(h *session.Handle, viewID, name string, work Work) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSupervisorClosed
	}
	if h.Ended() {
		return nil, session.ErrSessionNotActive
	}
	if s.views[h.ID()] != viewID {
		return nil, ErrViewNotCurrent
	}

	id := uuid.NewString()
	if err := h.AttachTask(id); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		id:        id,
		name:      name,
		view:      viewID,
		handle:    h,
		startedAt: s.clock.Now(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if s.tasks[h.ID()] == nil {
		s.tasks[h.ID()] = make(map[string]*Task)
	}
	s.tasks[h.ID()][id] = t
	metrics.TasksRunning.Inc()

	go s.run(t, work)

	s.logger.Debug("task started", "task_id", id, "task", name, "view", viewID, "session_id", h.ID())
	return t, nil
}

// StartEvery runs unit once immediately and then every interval until the
// task is stopped. A failing unit is logged and retried on the next tick.
func (s *Supervisor) StartEvery(h *session.Handle, viewID, name string, interval time.Duration, unit Work) (*Task, error) {
	return s.Start(h, viewID, name, func(ctx context.Context, t *Task) error {
		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := t.Checkpoint(); err != nil {
				return err
			}
			if err := unit(ctx, t); err != nil && ctx.Err() == nil {
				s.logger.Warn("recurring task unit failed", "task", name, "view", viewID, "session_id", h.ID(), "error", err)
			}
			select {
			case <-ctx.Done():
				return ErrCancelled
			case <-ticker.Chan():
			}
		}
	})
}

func (s *Supervisor) run(t *Task, work Work) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		s.detach(t)
		t.finish(err)

		switch {
		case err == nil, errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled) && t.ctx.Err() != nil:
			s.logger.Debug("task finished", "task_id", t.id, "task", t.name, "view", t.view)
		default:
			s.logger.Error("task failed", "task_id", t.id, "task", t.name, "view", t.view, "session_id", t.handle.ID(), "error", err)
		}
	}()

	err = work(t.ctx, t)
}

// detach removes t from the bookkeeping. It reports whether t was still
// attached, so a task force-detached earlier is not counted twice.
func (s *Supervisor) detach(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.tasks[t.handle.ID()]
	if _, ok := byID[t.id]; !ok {
		return false
	}
	delete(byID, t.id)
	if len(byID) == 0 {
		delete(s.tasks, t.handle.ID())
	}
	t.handle.DetachTask(t.id)
	metrics.TasksRunning.Dec()
	return true
}

// CancelSession refuses new tasks for h, signals all its tasks to stop and
// returns without blocking. The returned func waits for them, bounded by
// the stop timeout.
func (s *Supervisor) CancelSession(h *session.Handle) (wait func()) {
	s.mu.Lock()
	var tasks []*Task
	for _, id := range h.Drain() {
		if t, ok := s.tasks[h.ID()][id]; ok {
			tasks = append(tasks, t)
		}
	}
	delete(s.views, h.ID())
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	return func() { s.await(context.Background(), tasks) }
}

// StopSession stops every task of h without ending the session.
func (s *Supervisor) StopSession(h *session.Handle) int {
	tasks := s.snapshot(h, func(*Task) bool { return true })
	s.stop(context.Background(), tasks)
	return len(tasks)
}

// StopView stops the tasks h started within viewID.
func (s *Supervisor) StopView(h *session.Handle, viewID string) int {
	tasks := s.snapshot(h, func(t *Task) bool { return t.view == viewID })
	s.stop(context.Background(), tasks)
	return len(tasks)
}

// EnterView records viewID as h's current view and stops the tasks of the
// view it replaces before returning.
func (s *Supervisor) EnterView(ctx context.Context, h *session.Handle, viewID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSupervisorClosed
	}
	// CancelSession drains under s.mu, so this check cannot race it.
	if h.Ended() {
		s.mu.Unlock()
		return session.ErrSessionNotActive
	}
	prev := s.views[h.ID()]
	s.views[h.ID()] = viewID
	s.mu.Unlock()

	if prev != "" && prev != viewID {
		s.StopView(h, prev)
	}

	if s.events != nil && prev != viewID {
		if err := s.events.Publish(ctx, events.ViewChanged{SessionID: h.ID(), From: prev, To: viewID}); err != nil {
			s.logger.Warn("view change notification incomplete", "session_id", h.ID(), "error", err)
		}
	}
	return nil
}

// ExitView stops viewID's tasks and clears it as h's current view.
func (s *Supervisor) ExitView(h *session.Handle, viewID string) int {
	s.mu.Lock()
	if s.views[h.ID()] == viewID {
		delete(s.views, h.ID())
	}
	s.mu.Unlock()

	return s.StopView(h, viewID)
}

func (s *Supervisor) CurrentView(h *session.Handle) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[h.ID()]
}

// Running returns h's attached tasks, oldest first.
func (s *Supervisor) Running(h *session.Handle) []*Task {
	return s.snapshot(h, func(*Task) bool { return true })
}

func (s *Supervisor) RunningInView(h *session.Handle, viewID string) []*Task {
	return s.snapshot(h, func(t *Task) bool { return t.view == viewID })
}

// Count is the number of attached tasks across all sessions.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, byID := range s.tasks {
		n += len(byID)
	}
	return n
}

// Shutdown stops every task and refuses new ones.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	var tasks []*Task
	for _, byID := range s.tasks {
		for _, t := range byID {
			tasks = append(tasks, t)
		}
	}
	s.views = make(map[uuid.UUID]string)
	s.mu.Unlock()

	s.logger.Info("stopping background tasks", "count", len(tasks))
	s.stop(ctx, tasks)
}

func (s *Supervisor) snapshot(h *session.Handle, keep func(*Task) bool) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for _, t := range s.tasks[h.ID()] {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].startedAt.Equal(out[j].startedAt) {
			return out[i].id < out[j].id
		}
		return out[i].startedAt.Before(out[j].startedAt)
	})
	return out
}

func (s *Supervisor) stop(ctx context.Context, tasks []*Task) {
	for _, t := range tasks {
		t.cancel()
	}
	s.await(ctx, tasks)
}

// await waits for tasks to acknowledge cancellation. Tasks still running
// when the stop timeout (or ctx) expires are force-detached.
func (s *Supervisor) await(ctx context.Context, tasks []*Task) {
	if len(tasks) == 0 {
		return
	}

	timer := s.clock.NewTimer(s.stopTimeout)
	defer timer.Stop()

	expired := false
	for _, t := range tasks {
		if !expired {
			select {
			case <-t.done:
				continue
			case <-timer.Chan():
				expired = true
			case <-ctx.Done():
				expired = true
			}
		}

		select {
		case <-t.done:
		default:
			s.forceDetach(t)
		}
	}
}

func (s *Supervisor) forceDetach(t *Task) {
	if !s.detach(t) {
		return
	}
	metrics.TaskForcedStopsTotal.Inc()
	s.logger.Warn("task did not stop in time, detached",
		"task_id", t.id,
		"task", t.name,
		"view", t.view,
		"session_id", t.handle.ID(),
		"running_for", s.clock.Since(t.startedAt),
	)
}
