package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Daytron/revworks-sub001/internal/events"
	"github.com/Daytron/revworks-sub001/internal/logging"
	"github.com/Daytron/revworks-sub001/internal/models"
)

type fakeAnnouncements struct {
	created []*models.Announcement
}

func (f *fakeAnnouncements) Create(ctx context.Context, a *models.Announcement) error {
	a.ID = uuid.New()
	f.created = append(f.created, a)
	return nil
}

func (f *fakeAnnouncements) ListRecent(ctx context.Context, limit int) ([]*models.Announcement, error) {
	return nil, nil
}

func TestAnnouncementService_Submit(t *testing.T) {
	p := newPortal(t)
	repo := &fakeAnnouncements{}
	svc := NewAnnouncementService(repo, p.bus, logging.Discard())

	var delivered []events.AnnouncementSubmitted
	events.On(p.bus, "recorder", func(ctx context.Context, ev events.AnnouncementSubmitted) error {
		delivered = append(delivered, ev)
		return nil
	})
	events.On(p.bus, "broken-relay", func(ctx context.Context, ev events.AnnouncementSubmitted) error {
		return errors.New("redis: connection refused")
	})

	h := p.signIn(t, models.KindLecturer, "lecturer@example.edu")
	a, err := svc.Submit(context.Background(), h, models.AnnouncementRequest{Title: "  Lab moved ", Body: "Room 4.12 this week."})

	require.NoError(t, err, "fan-out failures are not the author's problem")
	assert.Equal(t, "Lab moved", a.Title)
	assert.Equal(t, h.Principal().AccountID, a.AuthorID)
	require.Len(t, repo.created, 1)
	require.Len(t, delivered, 1)
	assert.Equal(t, a.ID, delivered[0].Announcement.ID)
}

func TestAnnouncementService_SubmitRejections(t *testing.T) {
	p := newPortal(t)
	repo := &fakeAnnouncements{}
	svc := NewAnnouncementService(repo, p.bus, logging.Discard())

	student := p.signIn(t, models.KindStudent, "S1234567")
	_, err := svc.Submit(context.Background(), student, models.AnnouncementRequest{Title: "Party", Body: "Friday"})
	var forbidden *ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	admin := p.signIn(t, models.KindAdministrator, "registrar@example.edu")
	_, err = svc.Submit(context.Background(), admin, models.AnnouncementRequest{Title: " "})
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Fields, "title")
	assert.Contains(t, invalid.Fields, "body")

	assert.Empty(t, repo.created)
}

func TestAnnouncementService_ListNeverNil(t *testing.T) {
	svc := NewAnnouncementService(&fakeAnnouncements{}, events.NewBus(logging.Discard()), logging.Discard())

	list, err := svc.List(context.Background(), 10)

	require.NoError(t, err)
	assert.NotNil(t, list)
}
