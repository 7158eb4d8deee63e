package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/pool"
	"github.com/Daytron/revworks-sub001/internal/query"
)

type AccountRepo struct {
	gw query.Reserver
}

func NewAccountRepo(gw query.Reserver) *AccountRepo {
	return &AccountRepo{gw: gw}
}

const accountColumns = `id, kind, external_id, display_name, password_hash, is_active, created_at, last_login_at`

func scanAccount(row interface{ Scan(dest ...any) error }) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(&a.ID, &a.Kind, &a.ExternalID, &a.DisplayName, &a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	q := `
		INSERT INTO accounts (id, kind, external_id, display_name, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return query.Run(ctx, r.gw, func(ctx context.Context, tx pool.Querier) error {
		return tx.QueryRow(ctx, q,
			a.ID, a.Kind, strings.TrimSpace(a.ExternalID), a.DisplayName, a.PasswordHash, a.IsActive,
		).Scan(&a.CreatedAt)
	})
}

// FindByIdentifier looks up an account by kind and e-mail/student ID,
// ignoring case. A miss is reported as a NoResult query error.
func (r *AccountRepo) FindByIdentifier(ctx context.Context, kind models.PrincipalKind, identifier string) (*models.Account, error) {
	q := `SELECT ` + accountColumns + `
		FROM accounts WHERE kind = $1 AND lower(external_id) = lower($2)`

	return query.WithReservation(ctx, r.gw, func(ctx context.Context, tx pool.Querier) (*models.Account, error) {
		return scanAccount(tx.QueryRow(ctx, q, kind, strings.TrimSpace(identifier)))
	})
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	return query.WithReservation(ctx, r.gw, func(ctx context.Context, tx pool.Querier) (*models.Account, error) {
		return scanAccount(tx.QueryRow(ctx, q, id))
	})
}

func (r *AccountRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	return query.Run(ctx, r.gw, func(ctx context.Context, tx pool.Querier) error {
		_, err := tx.Exec(ctx, "UPDATE accounts SET last_login_at = NOW() WHERE id = $1", id)
		return err
	})
}
