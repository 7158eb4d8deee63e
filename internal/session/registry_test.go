package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/logging"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/session"
)

var lecturer = models.Principal{
	Kind:        models.KindLecturer,
	ExternalID:  "lecturer@example.edu",
	DisplayName: "Dr. Ada Byron",
}

type fakeCanceller struct {
	mu        sync.Mutex
	cancelled []*session.Handle
	waitFor   chan struct{}
}

func (f *fakeCanceller) CancelSession(h *session.Handle) func() {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, h)
	f.mu.Unlock()
	return func() {
		if f.waitFor != nil {
			<-f.waitFor
		}
	}
}

func (f *fakeCanceller) calls() []*session.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*session.Handle(nil), f.cancelled...)
}

type endedRecorder struct {
	mu    sync.Mutex
	ended []events.SessionEnded
}

func (e *endedRecorder) reasons() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.ended))
	for _, ev := range e.ended {
		out = append(out, ev.Reason)
	}
	return out
}

func newRegistry(t *testing.T, single bool, clock clockwork.Clock) (*session.Registry, *fakeCanceller, *endedRecorder) {
	t.Helper()
	bus := events.NewBus(logging.Discard())
	rec := &endedRecorder{}
	events.On(bus, "recorder", func(ctx context.Context, ev events.SessionEnded) error {
		rec.mu.Lock()
		rec.ended = append(rec.ended, ev)
		rec.mu.Unlock()
		return nil
	})
	tasks := &fakeCanceller{}
	reg := session.NewRegistry(tasks, session.Options{
		SingleSession: single,
		IdleTimeout:   30 * time.Minute,
		Clock:         clock,
		Logger:        logging.Discard(),
		Events:        bus,
	})
	return reg, tasks, rec
}

func TestSignIn_EvictsPreviousSession(t *testing.T) {
	reg, tasks, rec := newRegistry(t, true, clockwork.NewFakeClock())
	ctx := context.Background()

	first, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)
	second, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)

	assert.False(t, reg.IsActive(first))
	assert.False(t, first.Active())
	assert.True(t, reg.IsActive(second))
	assert.NotEqual(t, first.Token(), second.Token())
	assert.Equal(t, []*session.Handle{second}, reg.ActiveFor(lecturer))
	assert.Equal(t, 1, reg.Count())

	_, err = reg.Lookup(first.Token())
	assert.ErrorIs(t, err, session.ErrSessionNotActive)

	require.Len(t, tasks.calls(), 1)
	assert.Same(t, first, tasks.calls()[0])
	assert.Equal(t, []string{session.ReasonDuplicateLogin}, rec.reasons())
}

func TestSignIn_IdentifierIsCaseInsensitive(t *testing.T) {
	reg, _, _ := newRegistry(t, true, clockwork.NewFakeClock())
	ctx := context.Background()

	first, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)
	shouting := lecturer
	shouting.ExternalID = " Lecturer@Example.EDU "
	second, err := reg.SignIn(ctx, shouting)
	require.NoError(t, err)

	assert.False(t, reg.IsActive(first))
	assert.True(t, reg.IsActive(second))
}

func TestSignIn_DistinctPrincipalsCoexist(t *testing.T) {
	reg, tasks, _ := newRegistry(t, true, clockwork.NewFakeClock())
	ctx := context.Background()

	student := models.Principal{Kind: models.KindStudent, ExternalID: "S1234567"}
	sameIDOtherKind := models.Principal{Kind: models.KindAdministrator, ExternalID: "lecturer@example.edu"}

	for _, p := range []models.Principal{lecturer, student, sameIDOtherKind} {
		_, err := reg.SignIn(ctx, p)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, reg.Count())
	assert.Empty(t, tasks.calls())
}

func TestSignIn_PolicyOffKeepsBothSessions(t *testing.T) {
	reg, tasks, rec := newRegistry(t, false, clockwork.NewFakeClock())
	ctx := context.Background()

	first, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)
	second, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)

	assert.True(t, reg.IsActive(first))
	assert.True(t, reg.IsActive(second))
	assert.Len(t, reg.ActiveFor(lecturer), 2)
	assert.Empty(t, tasks.calls())
	assert.Empty(t, rec.reasons())
}

func TestSignIn_RejectsInvalidPrincipal(t *testing.T) {
	reg, _, _ := newRegistry(t, true, clockwork.NewFakeClock())

	tests := []struct {
		name string
		p    models.Principal
	}{
		{"unknown kind", models.Principal{Kind: "guest", ExternalID: "x"}},
		{"blank identifier", models.Principal{Kind: models.KindStudent, ExternalID: "  "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.SignIn(context.Background(), tc.p)
			assert.ErrorIs(t, err, session.ErrInvalidPrincipal)
		})
	}
	assert.Equal(t, 0, reg.Count())
}

func TestSignIn_ConcurrentLoginsLeaveOneSession(t *testing.T) {
	reg, tasks, _ := newRegistry(t, true, clockwork.NewFakeClock())
	const logins = 32

	var wg sync.WaitGroup
	handles := make([]*session.Handle, logins)
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := reg.SignIn(context.Background(), lecturer)
			if assert.NoError(t, err) {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()

	active := 0
	for _, h := range handles {
		if reg.IsActive(h) {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, reg.Count())
	assert.Len(t, tasks.calls(), logins-1)
}

func TestSignIn_ReplacementIsAtomicForReaders(t *testing.T) {
	reg, _, _ := newRegistry(t, true, clockwork.NewFakeClock())
	ctx := context.Background()
	_, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)

	stop := make(chan struct{})
	violations := make(chan int, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := len(reg.ActiveFor(lecturer)); n != 1 {
				select {
				case violations <- n:
				default:
				}
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		_, err := reg.SignIn(ctx, lecturer)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	select {
	case n := <-violations:
		t.Fatalf("reader observed %d active sessions during replacement", n)
	default:
	}
}

func TestSignIn_WaitsForOldTasksAfterSwap(t *testing.T) {
	reg, tasks, _ := newRegistry(t, true, clockwork.NewFakeClock())
	ctx := context.Background()
	first, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)

	tasks.waitFor = make(chan struct{})
	done := make(chan *session.Handle)
	go func() {
		h, err := reg.SignIn(ctx, lecturer)
		assert.NoError(t, err)
		done <- h
	}()

	// the old handle is already revoked while its tasks are still winding down
	require.Eventually(t, func() bool { return !first.Active() }, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("SignIn returned before old tasks acknowledged")
	case <-time.After(20 * time.Millisecond):
	}
	assert.False(t, reg.IsActive(first))

	close(tasks.waitFor)
	second := <-done
	assert.True(t, reg.IsActive(second))
}

func TestEvict(t *testing.T) {
	reg, tasks, rec := newRegistry(t, true, clockwork.NewFakeClock())
	ctx := context.Background()
	h, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)

	require.NoError(t, reg.Evict(ctx, h, session.ReasonSignOut))
	assert.ErrorIs(t, reg.Evict(ctx, h, session.ReasonSignOut), session.ErrSessionNotActive)

	assert.False(t, reg.IsActive(h))
	assert.Equal(t, 0, reg.Count())
	assert.Len(t, tasks.calls(), 1)
	assert.Equal(t, []string{session.ReasonSignOut}, rec.reasons())
	assert.ErrorIs(t, h.AttachTask("late"), session.ErrSessionNotActive)
}

func TestExpireIdle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg, _, rec := newRegistry(t, true, clock)
	ctx := context.Background()

	idle, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)
	busy, err := reg.SignIn(ctx, models.Principal{Kind: models.KindStudent, ExternalID: "S7654321"})
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	_, err = reg.Lookup(busy.Token())
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)

	assert.Equal(t, 1, reg.ExpireIdle(ctx))
	assert.False(t, reg.IsActive(idle))
	assert.True(t, reg.IsActive(busy))
	assert.Equal(t, []string{session.ReasonIdle}, rec.reasons())
}

func TestRunSweeper(t *testing.T) {
	clock := clockwork.NewFakeClock()
	reg, _, _ := newRegistry(t, true, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := reg.SignIn(ctx, lecturer)
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		reg.RunSweeper(ctx, time.Minute)
		close(stopped)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(31 * time.Minute)

	assert.Eventually(t, func() bool { return reg.Count() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
}

func TestClose(t *testing.T) {
	reg, tasks, rec := newRegistry(t, false, clockwork.NewFakeClock())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := reg.SignIn(ctx, lecturer)
		require.NoError(t, err)
	}

	reg.Close(ctx)

	assert.Equal(t, 0, reg.Count())
	assert.Len(t, tasks.calls(), 3)
	assert.Equal(t, []string{session.ReasonShutdown, session.ReasonShutdown, session.ReasonShutdown}, rec.reasons())

	_, err := reg.SignIn(ctx, lecturer)
	assert.ErrorIs(t, err, session.ErrRegistryClosed)
}
