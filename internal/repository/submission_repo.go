package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/pool"
	"github.com/Daytron/revworks-sub001/internal/query"
)

type SubmissionRepo struct {
	gw query.Reserver
}

func NewSubmissionRepo(gw query.Reserver) *SubmissionRepo {
	return &SubmissionRepo{gw: gw}
}

// StatusCounts is the pending/reviewed breakdown shown on dashboards.
type StatusCounts struct {
	Pending  int
	Reviewed int
}

const submissionColumns = `id, student_id, lecturer_id, course_code, title, file_path, status, extracted_text, submitted_at, reviewed_at`

func scanSubmissions(rows pgx.Rows) ([]*models.Submission, error) {
	defer rows.Close()

	var list []*models.Submission
	for rows.Next() {
		s := &models.Submission{}
		err := rows.Scan(&s.ID, &s.StudentID, &s.LecturerID, &s.CourseCode, &s.Title,
			&s.FilePath, &s.Status, &s.ExtractedText, &s.SubmittedAt, &s.ReviewedAt)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (r *SubmissionRepo) Create(ctx context.Context, s *models.Submission) error {
	q := `
		INSERT INTO submissions (id, student_id, lecturer_id, course_code, title, file_path, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING submitted_at`

	s.ID = uuid.New()
	if s.Status == "" {
		s.Status = models.SubmissionPending
	}
	return query.Run(ctx, r.gw, func(ctx context.Context, tx pool.Querier) error {
		return tx.QueryRow(ctx, q, s.ID, s.StudentID, s.LecturerID, s.CourseCode, s.Title, s.FilePath, s.Status).
			Scan(&s.SubmittedAt)
	})
}

func (r *SubmissionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	q := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	return query.WithReservation(ctx, r.gw, func(ctx context.Context, tx pool.Querier) (*models.Submission, error) {
		s := &models.Submission{}
		err := tx.QueryRow(ctx, q, id).Scan(&s.ID, &s.StudentID, &s.LecturerID, &s.CourseCode, &s.Title,
			&s.FilePath, &s.Status, &s.ExtractedText, &s.SubmittedAt, &s.ReviewedAt)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

func (r *SubmissionRepo) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Submission, error) {
	q := `SELECT ` + submissionColumns + `
		FROM submissions WHERE student_id = $1
		ORDER BY submitted_at DESC`

	return query.WithReservation(ctx, r.gw, func(ctx context.Context, tx pool.Querier) ([]*models.Submission, error) {
		rows, err := tx.Query(ctx, q, studentID)
		if err != nil {
			return nil, err
		}
		return scanSubmissions(rows)
	})
}

// ListPendingForLecturer returns the lecturer's review queue, oldest first.
func (r *SubmissionRepo) ListPendingForLecturer(ctx context.Context, lecturerID uuid.UUID) ([]*models.Submission, error) {
	q := `SELECT ` + submissionColumns + `
		FROM submissions WHERE lecturer_id = $1 AND status = $2
		ORDER BY submitted_at ASC`

	return query.WithReservation(ctx, r.gw, func(ctx context.Context, tx pool.Querier) ([]*models.Submission, error) {
		rows, err := tx.Query(ctx, q, lecturerID, models.SubmissionPending)
		if err != nil {
			return nil, err
		}
		return scanSubmissions(rows)
	})
}

// CountForLecturer counts submissions assigned to the lecturer by status.
func (r *SubmissionRepo) CountForLecturer(ctx context.Context, lecturerID uuid.UUID) (StatusCounts, error) {
	return r.countBy(ctx, "lecturer_id", lecturerID)
}

func (r *SubmissionRepo) CountForStudent(ctx context.Context, studentID uuid.UUID) (StatusCounts, error) {
	return r.countBy(ctx, "student_id", studentID)
}

// column is one of the fixed owner columns above, never user input.
func (r *SubmissionRepo) countBy(ctx context.Context, column string, id uuid.UUID) (StatusCounts, error) {
	q := `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM submissions WHERE ` + column + ` = $1`

	return query.WithReservation(ctx, r.gw, func(ctx context.Context, tx pool.Querier) (StatusCounts, error) {
		var c StatusCounts
		err := tx.QueryRow(ctx, q, id, models.SubmissionPending, models.SubmissionReviewed).Scan(&c.Pending, &c.Reviewed)
		return c, err
	})
}

func (r *SubmissionRepo) SaveExtractedText(ctx context.Context, id uuid.UUID, text string) error {
	return query.Run(ctx, r.gw, func(ctx context.Context, tx pool.Querier) error {
		tag, err := tx.Exec(ctx, "UPDATE submissions SET extracted_text = $2 WHERE id = $1", id, text)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}
