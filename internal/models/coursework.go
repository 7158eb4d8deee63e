package models

import (
	"time"

	"github.com/google/uuid"
)

type Announcement struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	AuthorID   uuid.UUID `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

type AnnouncementRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Submission statuses.
const (
	SubmissionPending  = "pending"
	SubmissionReviewed = "reviewed"
)

type Submission struct {
	ID            uuid.UUID  `json:"id"`
	StudentID     uuid.UUID  `json:"student_id"`
	LecturerID    uuid.UUID  `json:"lecturer_id"`
	CourseCode    string     `json:"course_code"`
	Title         string     `json:"title"`
	FilePath      *string    `json:"-"`
	Status        string     `json:"status"`
	ExtractedText *string    `json:"extracted_text,omitempty"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	ReviewedAt    *time.Time `json:"reviewed_at"`
}
