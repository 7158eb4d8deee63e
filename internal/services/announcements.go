package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/session"
)

type AnnouncementStore interface {
	Create(ctx context.Context, a *models.Announcement) error
	ListRecent(ctx context.Context, limit int) ([]*models.Announcement, error)
}

// EventPublisher is satisfied by *events.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

type AnnouncementService struct {
	repo   AnnouncementStore
	events EventPublisher
	logger *slog.Logger
}

func NewAnnouncementService(repo AnnouncementStore, bus EventPublisher, logger *slog.Logger) *AnnouncementService {
	return &AnnouncementService{repo: repo, events: bus, logger: logger}
}

// Submit stores an announcement and fans it out to subscribers. Fan-out
// failures are logged; the announcement itself is already stored.
func (s *AnnouncementService) Submit(ctx context.Context, h *session.Handle, req models.AnnouncementRequest) (*models.Announcement, error) {
	author := h.Principal()
	if author.Kind != models.KindAdministrator && author.Kind != models.KindLecturer {
		return nil, &ForbiddenError{Message: "Only administrators and lecturers can post announcements"}
	}

	fieldErrors := make(map[string]string)
	if strings.TrimSpace(req.Title) == "" {
		fieldErrors["title"] = "Title is required"
	}
	if strings.TrimSpace(req.Body) == "" {
		fieldErrors["body"] = "Body is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	a := &models.Announcement{
		Title:      strings.TrimSpace(req.Title),
		Body:       req.Body,
		AuthorID:   author.AccountID,
		AuthorName: author.DisplayName,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	_ = s.events.Publish(ctx, events.AnnouncementSubmitted{
		Announcement: *a,
		Author:       author,
		Done: func(err error) {
			if err != nil {
				s.logger.Warn("announcement fan-out incomplete", "announcement_id", a.ID, "error", err)
				return
			}
			s.logger.Info("announcement published", "announcement_id", a.ID, "author", author.Key())
		},
	})

	return a, nil
}

func (s *AnnouncementService) List(ctx context.Context, limit int) ([]*models.Announcement, error) {
	list, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Announcement{}
	}
	return list, nil
}
