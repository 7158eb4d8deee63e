package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/pool"
	"github.com/Daytron/revworks-sub001/internal/query"
)

type AnnouncementRepo struct {
	gw query.Reserver
}

func NewAnnouncementRepo(gw query.Reserver) *AnnouncementRepo {
	return &AnnouncementRepo{gw: gw}
}

func (r *AnnouncementRepo) Create(ctx context.Context, a *models.Announcement) error {
	q := `
		INSERT INTO announcements (id, title, body, author_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	a.ID = uuid.New()
	return query.Run(ctx, r.gw, func(ctx context.Context, tx pool.Querier) error {
		return tx.QueryRow(ctx, q, a.ID, a.Title, a.Body, a.AuthorID).Scan(&a.CreatedAt)
	})
}

func (r *AnnouncementRepo) ListRecent(ctx context.Context, limit int) ([]*models.Announcement, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := `
		SELECT a.id, a.title, a.body, a.author_id, acc.display_name, a.created_at
		FROM announcements a
		JOIN accounts acc ON acc.id = a.author_id
		ORDER BY a.created_at DESC
		LIMIT $1`

	return query.WithReservation(ctx, r.gw, func(ctx context.Context, tx pool.Querier) ([]*models.Announcement, error) {
		rows, err := tx.Query(ctx, q, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var list []*models.Announcement
		for rows.Next() {
			a := &models.Announcement{}
			if err := rows.Scan(&a.ID, &a.Title, &a.Body, &a.AuthorID, &a.AuthorName, &a.CreatedAt); err != nil {
				return nil, err
			}
			list = append(list, a)
		}
		return list, rows.Err()
	})
}
