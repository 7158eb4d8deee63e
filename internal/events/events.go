package events

import (
	"github.com/google/uuid"

	"github.com/Daytron/revworks-sub001/internal/models"
)

// Kind tags each event variant. Subscribers register per kind.
type Kind string

const (
	KindAnnouncementSubmitted Kind = "announcement.submitted"
	KindSessionEnded          Kind = "session.ended"
	KindViewChanged           Kind = "view.changed"
	KindSubmissionsRefreshed  Kind = "submissions.refreshed"
	KindSubmissionExtracted   Kind = "submission.extracted"
)

// Event is implemented by value types only; see On.
type Event interface {
	Kind() Kind
}

// AnnouncementSubmitted is published after an announcement is stored.
// Done, when set, is called once fan-out finishes with the joined
// subscriber error (nil if every subscriber succeeded).
type AnnouncementSubmitted struct {
	Announcement models.Announcement
	Author       models.Principal
	Done         func(err error)
}

func (AnnouncementSubmitted) Kind() Kind { return KindAnnouncementSubmitted }

func (a AnnouncementSubmitted) Complete(err error) {
	if a.Done != nil {
		a.Done(err)
	}
}

type SessionEnded struct {
	SessionID uuid.UUID
	Principal models.Principal
	Reason    string
}

func (SessionEnded) Kind() Kind { return KindSessionEnded }

type ViewChanged struct {
	SessionID uuid.UUID
	From      string
	To        string
}

func (ViewChanged) Kind() Kind { return KindViewChanged }

// SubmissionsRefreshed carries one poll result for a dashboard view.
type SubmissionsRefreshed struct {
	SessionID uuid.UUID
	View      string
	Pending   int
	Reviewed  int
}

func (SubmissionsRefreshed) Kind() Kind { return KindSubmissionsRefreshed }

type SubmissionExtracted struct {
	SessionID    uuid.UUID
	SubmissionID uuid.UUID
	Characters   int
	Err          string
}

func (SubmissionExtracted) Kind() Kind { return KindSubmissionExtracted }
