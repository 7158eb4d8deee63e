// Package session tracks live application sessions and enforces the
// one-session-per-principal rule.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/metrics"
	"github.com/Daytron/revworks-sub001/internal/models"
)

// Reasons recorded on SessionEnded and the eviction metric.
const (
	ReasonDuplicateLogin = "duplicate_login"
	ReasonSignOut        = "sign_out"
	ReasonIdle           = "idle"
	ReasonShutdown       = "shutdown"
)

var ErrRegistryClosed = errors.New("session registry is closed")

// TaskCanceller stops a session's background work. CancelSession must not
// block: it signals cancellation and returns a func that waits, bounded,
// for the tasks to acknowledge.
type TaskCanceller interface {
	CancelSession(h *Handle) (wait func())
}

// EventPublisher is satisfied by *events.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

type Options struct {
	// SingleSession evicts a principal's existing session on sign-in.
	SingleSession bool
	// IdleTimeout of zero disables idle expiry.
	IdleTimeout time.Duration
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Events      EventPublisher
}

type Registry struct {
	mu      sync.RWMutex
	byKey   map[string][]*Handle
	byToken map[string]*Handle
	closed  bool

	tasks  TaskCanceller
	single bool
	idle   time.Duration
	clock  clockwork.Clock
	logger *slog.Logger
	events EventPublisher
}

type noopCanceller struct{}

func (noopCanceller) CancelSession(*Handle) func() { return func() {} }

func NewRegistry(tasks TaskCanceller, opts Options) *Registry {
	if tasks == nil {
		tasks = noopCanceller{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		byKey:   make(map[string][]*Handle),
		byToken: make(map[string]*Handle),
		tasks:   tasks,
		single:  opts.SingleSession,
		idle:    opts.IdleTimeout,
		clock:   opts.Clock,
		logger:  opts.Logger,
		events:  opts.Events,
	}
}

// eviction is the part of an eviction that runs after the registry lock
// is released.
type eviction struct {
	handle *Handle
	reason string
	wait   func()
}

// SignIn registers a new session for p. Under the single-session policy any
// existing session of p is evicted first; readers never observe both handles
// active, nor a moment with neither.
func (r *Registry) SignIn(ctx context.Context, p models.Principal) (*Handle, error) {
	if !p.Kind.Valid() || strings.TrimSpace(p.ExternalID) == "" {
		return nil, ErrInvalidPrincipal
	}

	h, err := newHandle(p, r.clock.Now())
	if err != nil {
		return nil, err
	}
	key := p.Key()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	var evicted []eviction
	if r.single {
		for _, old := range r.byKey[key] {
			evicted = append(evicted, r.evictLocked(old, ReasonDuplicateLogin))
		}
	}
	r.byKey[key] = append(r.byKey[key], h)
	r.byToken[h.token] = h
	count := len(r.byToken)
	r.mu.Unlock()

	metrics.SessionsActive.Set(float64(count))
	r.finish(ctx, evicted)

	r.logger.Info("session started", "session_id", h.id, "principal", key, "evicted", len(evicted))
	return h, nil
}

// Evict ends h. It returns ErrSessionNotActive if h was already replaced,
// signed out or expired.
func (r *Registry) Evict(ctx context.Context, h *Handle, reason string) error {
	r.mu.Lock()
	if !r.isActiveLocked(h) {
		r.mu.Unlock()
		return ErrSessionNotActive
	}
	ev := r.evictLocked(h, reason)
	count := len(r.byToken)
	r.mu.Unlock()

	metrics.SessionsActive.Set(float64(count))
	r.finish(ctx, []eviction{ev})
	return nil
}

// evictLocked signals cancellation of h's tasks, drops h from the index and
// revokes its token. Caller holds r.mu.
func (r *Registry) evictLocked(h *Handle, reason string) eviction {
	wait := r.tasks.CancelSession(h)

	key := h.principal.Key()
	remaining := r.byKey[key][:0:0]
	for _, other := range r.byKey[key] {
		if other != h {
			remaining = append(remaining, other)
		}
	}
	if len(remaining) == 0 {
		delete(r.byKey, key)
	} else {
		r.byKey[key] = remaining
	}
	delete(r.byToken, h.token)

	h.revoke()
	return eviction{handle: h, reason: reason, wait: wait}
}

func (r *Registry) finish(ctx context.Context, evicted []eviction) {
	for _, ev := range evicted {
		ev.wait()
		metrics.SessionEvictionsTotal.WithLabelValues(ev.reason).Inc()
		r.logger.Info("session ended",
			"session_id", ev.handle.id,
			"principal", ev.handle.principal.Key(),
			"reason", ev.reason,
		)
		if r.events == nil {
			continue
		}
		err := r.events.Publish(ctx, events.SessionEnded{
			SessionID: ev.handle.id,
			Principal: ev.handle.principal,
			Reason:    ev.reason,
		})
		if err != nil {
			r.logger.Warn("session ended notification incomplete", "session_id", ev.handle.id, "error", err)
		}
	}
}

func (r *Registry) IsActive(h *Handle) bool {
	if h == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isActiveLocked(h)
}

func (r *Registry) isActiveLocked(h *Handle) bool {
	return r.byToken[h.token] == h
}

// Lookup resolves an ownership token and marks the session as seen.
func (r *Registry) Lookup(token string) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byToken[token]
	if !ok {
		return nil, ErrSessionNotActive
	}
	h.touch(r.clock.Now())
	return h, nil
}

// ActiveFor returns the live sessions of p, oldest first.
func (r *Registry) ActiveFor(p models.Principal) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.byKey[p.Key()]
	out := make([]*Handle, len(handles))
	copy(out, handles)
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byToken)
}

// ExpireIdle evicts sessions not seen within the idle timeout and returns
// how many were evicted.
func (r *Registry) ExpireIdle(ctx context.Context) int {
	if r.idle <= 0 {
		return 0
	}
	now := r.clock.Now()

	r.mu.Lock()
	var evicted []eviction
	for _, h := range r.byToken {
		if now.Sub(h.LastSeen()) > r.idle {
			evicted = append(evicted, r.evictLocked(h, ReasonIdle))
		}
	}
	count := len(r.byToken)
	r.mu.Unlock()

	if len(evicted) > 0 {
		metrics.SessionsActive.Set(float64(count))
		r.finish(ctx, evicted)
	}
	return len(evicted)
}

// RunSweeper calls ExpireIdle every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("session sweeper started", "interval", interval, "idle_timeout", r.idle)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session sweeper stopped")
			return
		case <-ticker.Chan():
			if n := r.ExpireIdle(ctx); n > 0 {
				r.logger.Info("expired idle sessions", "count", n)
			}
		}
	}
}

// Close ends every session and refuses further sign-ins.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	evicted := make([]eviction, 0, len(r.byToken))
	for _, h := range r.byToken {
		evicted = append(evicted, r.evictLocked(h, ReasonShutdown))
	}
	r.mu.Unlock()

	metrics.SessionsActive.Set(0)
	r.finish(ctx, evicted)
}
