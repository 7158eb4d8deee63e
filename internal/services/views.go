package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/query"
	"github.com/Daytron/revworks-sub001/internal/repository"
	"github.com/Daytron/revworks-sub001/internal/session"
	"github.com/Daytron/revworks-sub001/internal/worker"
)

const (
	ViewLecturerDashboard = "lecturer-dashboard"
	ViewStudentDashboard  = "student-dashboard"
	ViewSubmissionReview  = "submission-review"
)

// viewAccess lists which principal kinds may open each view.
var viewAccess = map[string][]models.PrincipalKind{
	ViewLecturerDashboard: {models.KindLecturer},
	ViewStudentDashboard:  {models.KindStudent},
	ViewSubmissionReview:  {models.KindLecturer},
}

// TaskSupervisor is satisfied by *worker.Supervisor.
type TaskSupervisor interface {
	Start(h *session.Handle, viewID, name string, work worker.Work) (*worker.Task, error)
	StartEvery(h *session.Handle, viewID, name string, interval time.Duration, unit worker.Work) (*worker.Task, error)
	EnterView(ctx context.Context, h *session.Handle, viewID string) error
	ExitView(h *session.Handle, viewID string) int
	CurrentView(h *session.Handle) string
	RunningInView(h *session.Handle, viewID string) []*worker.Task
}

type SubmissionCounter interface {
	CountForLecturer(ctx context.Context, lecturerID uuid.UUID) (repository.StatusCounts, error)
	CountForStudent(ctx context.Context, studentID uuid.UUID) (repository.StatusCounts, error)
}

// ViewService moves sessions between views and owns the background
// polling each dashboard runs while it is open.
type ViewService struct {
	tasks        TaskSupervisor
	submissions  SubmissionCounter
	events       EventPublisher
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewViewService(tasks TaskSupervisor, submissions SubmissionCounter, bus EventPublisher, pollInterval time.Duration, logger *slog.Logger) *ViewService {
	return &ViewService{
		tasks:        tasks,
		submissions:  submissions,
		events:       bus,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

func checkViewAccess(h *session.Handle, view string) error {
	kinds, ok := viewAccess[view]
	if !ok {
		return &NotFoundError{Message: "Unknown view: " + view}
	}
	for _, k := range kinds {
		if h.Principal().Kind == k {
			return nil
		}
	}
	return &ForbiddenError{Message: "This view is not available to your account"}
}

// Enter switches h to view, stopping the previous view's work first, and
// starts the view's pollers.
func (s *ViewService) Enter(ctx context.Context, h *session.Handle, view string) error {
	if err := checkViewAccess(h, view); err != nil {
		return err
	}
	if err := s.tasks.EnterView(ctx, h, view); err != nil {
		return err
	}
	if len(s.tasks.RunningInView(h, view)) > 0 {
		return nil
	}

	var err error
	switch view {
	case ViewLecturerDashboard:
		_, err = s.tasks.StartEvery(h, view, "pending-count", s.pollInterval, s.pollCounts(view, s.submissions.CountForLecturer))
	case ViewStudentDashboard:
		_, err = s.tasks.StartEvery(h, view, "submission-status", s.pollInterval, s.pollCounts(view, s.submissions.CountForStudent))
	}
	return err
}

// Exit stops view's work and returns how many tasks were stopped.
func (s *ViewService) Exit(h *session.Handle, view string) (int, error) {
	if _, ok := viewAccess[view]; !ok {
		return 0, &NotFoundError{Message: "Unknown view: " + view}
	}
	return s.tasks.ExitView(h, view), nil
}

type countFunc func(ctx context.Context, id uuid.UUID) (repository.StatusCounts, error)

func (s *ViewService) pollCounts(view string, count countFunc) worker.Work {
	return func(ctx context.Context, t *worker.Task) error {
		h := t.Handle()
		counts, err := count(query.WithOwner(ctx, h.ID().String()), h.Principal().AccountID)
		if err != nil {
			return err
		}
		if err := t.Checkpoint(); err != nil {
			return err
		}
		return s.events.Publish(ctx, events.SubmissionsRefreshed{
			SessionID: h.ID(),
			View:      view,
			Pending:   counts.Pending,
			Reviewed:  counts.Reviewed,
		})
	}
}
