package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/query"
	"github.com/Daytron/revworks-sub001/internal/session"
	"github.com/Daytron/revworks-sub001/internal/worker"
)

type SubmissionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Submission, error)
	ListPendingForLecturer(ctx context.Context, lecturerID uuid.UUID) ([]*models.Submission, error)
	SaveExtractedText(ctx context.Context, id uuid.UUID, text string) error
}

type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

type SubmissionService struct {
	repo        SubmissionStore
	tasks       TaskSupervisor
	extractor   TextExtractor
	events      EventPublisher
	storagePath string
	logger      *slog.Logger
}

func NewSubmissionService(repo SubmissionStore, tasks TaskSupervisor, extractor TextExtractor, bus EventPublisher, storagePath string, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{
		repo:        repo,
		tasks:       tasks,
		extractor:   extractor,
		events:      bus,
		storagePath: storagePath,
		logger:      logger,
	}
}

// List returns a student's own submissions or a lecturer's review queue.
func (s *SubmissionService) List(ctx context.Context, h *session.Handle) ([]*models.Submission, error) {
	p := h.Principal()

	var (
		list []*models.Submission
		err  error
	)
	switch p.Kind {
	case models.KindStudent:
		list, err = s.repo.ListByStudent(ctx, p.AccountID)
	case models.KindLecturer:
		list, err = s.repo.ListPendingForLecturer(ctx, p.AccountID)
	default:
		return nil, &ForbiddenError{Message: "Submissions are listed for students and lecturers only"}
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Submission{}
	}
	return list, nil
}

// StartExtraction launches a text-extraction task for one submission in
// the review view. The task is stopped with the view or the session.
func (s *SubmissionService) StartExtraction(ctx context.Context, h *session.Handle, id uuid.UUID) (*worker.Task, error) {
	p := h.Principal()
	if p.Kind != models.KindLecturer {
		return nil, &ForbiddenError{Message: "Only lecturers can review submissions"}
	}
	if s.tasks.CurrentView(h) != ViewSubmissionReview {
		return nil, &ConflictError{Message: "Open the submission review view first"}
	}

	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if query.IsNoResult(err) {
			return nil, &NotFoundError{Message: "Submission not found"}
		}
		return nil, err
	}
	if sub.LecturerID != p.AccountID {
		return nil, &ForbiddenError{Message: "Submission is assigned to another lecturer"}
	}
	if sub.FilePath == nil || *sub.FilePath == "" {
		return nil, &ValidationError{Fields: map[string]string{"file": "Submission has no attached file"}}
	}
	path, err := s.resolvePath(*sub.FilePath)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"file": err.Error()}}
	}

	name := "extract:" + id.String()
	for _, t := range s.tasks.RunningInView(h, ViewSubmissionReview) {
		if t.Name() == name {
			return nil, &ConflictError{Message: "Extraction is already running for this submission"}
		}
	}

	task, err := s.tasks.Start(h, ViewSubmissionReview, name, func(ctx context.Context, t *worker.Task) error {
		return s.extract(ctx, t, id, path)
	})
	if errors.Is(err, worker.ErrViewNotCurrent) {
		return nil, &ConflictError{Message: "The submission review view was closed"}
	}
	return task, err
}

func (s *SubmissionService) extract(ctx context.Context, t *worker.Task, id uuid.UUID, path string) error {
	h := t.Handle()
	ctx = query.WithOwner(ctx, h.ID().String())

	text, extractErr := s.extractor.ExtractText(ctx, path)
	if err := t.Checkpoint(); err != nil {
		return err
	}

	result := events.SubmissionExtracted{SessionID: h.ID(), SubmissionID: id}
	if extractErr != nil {
		result.Err = extractErr.Error()
	} else if err := s.repo.SaveExtractedText(ctx, id, text); err != nil {
		if t.Checkpoint() != nil {
			return worker.ErrCancelled
		}
		result.Err = "failed to store extracted text"
		s.logger.Error("failed to store extracted text", "submission_id", id, "error", err)
	} else {
		result.Characters = len([]rune(text))
	}

	if err := s.events.Publish(ctx, result); err != nil {
		s.logger.Warn("extraction result not delivered", "submission_id", id, "error", err)
	}
	if extractErr != nil {
		return fmt.Errorf("extract %s: %w", id, extractErr)
	}
	return nil
}

// resolvePath keeps stored relative paths inside the storage root.
func (s *SubmissionService) resolvePath(rel string) (string, error) {
	root, err := filepath.Abs(s.storagePath)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, rel)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("file path escapes storage directory")
	}
	return full, nil
}
