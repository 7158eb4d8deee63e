package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/logging"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/repository"
	"github.com/Daytron/revworks-sub001/internal/session"
	"github.com/Daytron/revworks-sub001/internal/worker"
)

type fakeCounter struct {
	lecturer repository.StatusCounts
	student  repository.StatusCounts
}

func (f *fakeCounter) CountForLecturer(ctx context.Context, id uuid.UUID) (repository.StatusCounts, error) {
	return f.lecturer, nil
}

func (f *fakeCounter) CountForStudent(ctx context.Context, id uuid.UUID) (repository.StatusCounts, error) {
	return f.student, nil
}

type portal struct {
	bus  *events.Bus
	sup  *worker.Supervisor
	reg  *session.Registry
	mu   sync.Mutex
	seen []events.SubmissionsRefreshed
}

func newPortal(t *testing.T) *portal {
	t.Helper()
	p := &portal{bus: events.NewBus(logging.Discard())}
	p.sup = worker.NewSupervisor(worker.Options{StopTimeout: time.Second, Logger: logging.Discard(), Events: p.bus})
	p.reg = session.NewRegistry(p.sup, session.Options{SingleSession: true, Logger: logging.Discard(), Events: p.bus})
	events.On(p.bus, "recorder", func(ctx context.Context, ev events.SubmissionsRefreshed) error {
		p.mu.Lock()
		p.seen = append(p.seen, ev)
		p.mu.Unlock()
		return nil
	})
	return p
}

func (p *portal) refreshes() []events.SubmissionsRefreshed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.SubmissionsRefreshed(nil), p.seen...)
}

func (p *portal) signIn(t *testing.T, kind models.PrincipalKind, id string) *session.Handle {
	t.Helper()
	h, err := p.reg.SignIn(context.Background(), models.Principal{AccountID: uuid.New(), Kind: kind, ExternalID: id})
	require.NoError(t, err)
	return h
}

func TestViewService_EnterStartsDashboardPoller(t *testing.T) {
	p := newPortal(t)
	svc := NewViewService(p.sup, &fakeCounter{lecturer: repository.StatusCounts{Pending: 3, Reviewed: 8}}, p.bus, time.Hour, logging.Discard())
	h := p.signIn(t, models.KindLecturer, "lecturer@example.edu")

	require.NoError(t, svc.Enter(context.Background(), h, ViewLecturerDashboard))
	require.NoError(t, svc.Enter(context.Background(), h, ViewLecturerDashboard))

	require.Eventually(t, func() bool { return len(p.refreshes()) == 1 }, time.Second, 5*time.Millisecond)
	got := p.refreshes()[0]
	assert.Equal(t, h.ID(), got.SessionID)
	assert.Equal(t, ViewLecturerDashboard, got.View)
	assert.Equal(t, 3, got.Pending)
	assert.Len(t, p.sup.RunningInView(h, ViewLecturerDashboard), 1, "re-entering keeps a single poller")

	require.NoError(t, svc.Enter(context.Background(), h, ViewSubmissionReview))
	assert.Empty(t, p.sup.RunningInView(h, ViewLecturerDashboard))
	assert.Equal(t, ViewSubmissionReview, p.sup.CurrentView(h))
}

func TestViewService_Exit(t *testing.T) {
	p := newPortal(t)
	svc := NewViewService(p.sup, &fakeCounter{}, p.bus, time.Hour, logging.Discard())
	h := p.signIn(t, models.KindStudent, "S1234567")

	require.NoError(t, svc.Enter(context.Background(), h, ViewStudentDashboard))
	stopped, err := svc.Exit(h, ViewStudentDashboard)

	require.NoError(t, err)
	assert.Equal(t, 1, stopped)
	assert.Empty(t, p.sup.Running(h))
	assert.Equal(t, "", p.sup.CurrentView(h))

	_, err = svc.Exit(h, "gradebook")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestViewService_Access(t *testing.T) {
	p := newPortal(t)
	svc := NewViewService(p.sup, &fakeCounter{}, p.bus, time.Hour, logging.Discard())
	student := p.signIn(t, models.KindStudent, "S1234567")
	admin := p.signIn(t, models.KindAdministrator, "registrar@example.edu")

	var forbidden *ForbiddenError
	assert.ErrorAs(t, svc.Enter(context.Background(), student, ViewLecturerDashboard), &forbidden)
	assert.ErrorAs(t, svc.Enter(context.Background(), admin, ViewSubmissionReview), &forbidden)

	var notFound *NotFoundError
	assert.ErrorAs(t, svc.Enter(context.Background(), student, "gradebook"), &notFound)
	assert.Empty(t, p.sup.Running(student))
}

func TestViewService_EnterAfterEviction(t *testing.T) {
	p := newPortal(t)
	svc := NewViewService(p.sup, &fakeCounter{}, p.bus, time.Hour, logging.Discard())
	h := p.signIn(t, models.KindLecturer, "lecturer@example.edu")
	p.signIn(t, models.KindLecturer, "lecturer@example.edu")

	err := svc.Enter(context.Background(), h, ViewLecturerDashboard)

	assert.ErrorIs(t, err, session.ErrSessionNotActive)
	assert.Empty(t, p.sup.Running(h))
}
