package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Daytron/revworks-sub001/internal/middleware"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/query"
	"github.com/Daytron/revworks-sub001/internal/session"
)

type AccountStore interface {
	FindByIdentifier(ctx context.Context, kind models.PrincipalKind, identifier string) (*models.Account, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
}

// SessionRegistry is satisfied by *session.Registry.
type SessionRegistry interface {
	SignIn(ctx context.Context, p models.Principal) (*session.Handle, error)
	Evict(ctx context.Context, h *session.Handle, reason string) error
}

type TokenIssuer interface {
	GenerateAccessToken(h *session.Handle) (string, error)
}

type AuthService struct {
	accounts AccountStore
	sessions SessionRegistry
	jwt      TokenIssuer
	logger   *slog.Logger
}

func NewAuthService(accounts AccountStore, sessions SessionRegistry, jwt TokenIssuer, logger *slog.Logger) *AuthService {
	return &AuthService{
		accounts: accounts,
		sessions: sessions,
		jwt:      jwt,
		logger:   logger,
	}
}

const invalidCredentials = "Invalid identifier or password"

// Login checks credentials and opens a session. Credentials are rejected
// before the session registry is touched, so a failed attempt never evicts
// the principal's live session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	fieldErrors := make(map[string]string)
	if !req.Kind.Valid() {
		fieldErrors["kind"] = "Kind must be administrator, student or lecturer"
	}
	if strings.TrimSpace(req.Identifier) == "" {
		fieldErrors["identifier"] = "Identifier is required"
	}
	if req.Password == "" {
		fieldErrors["password"] = "Password is required"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	account, err := s.accounts.FindByIdentifier(ctx, req.Kind, req.Identifier)
	if err != nil {
		if query.IsNoResult(err) {
			return nil, &AuthenticationFailedError{Message: invalidCredentials}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &AuthenticationFailedError{Message: invalidCredentials}
	}

	if !account.IsActive {
		return nil, &AuthenticationFailedError{Message: "Account is deactivated"}
	}

	h, err := s.sessions.SignIn(ctx, account.Principal())
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.ID); err != nil {
		s.logger.Warn("failed to record last login", "account_id", account.ID, "error", err)
	}

	accessToken, err := s.jwt.GenerateAccessToken(h)
	if err != nil {
		_ = s.sessions.Evict(ctx, h, session.ReasonSignOut)
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	s.logger.Info("signed in", "principal", account.Principal().Key(), "session_id", h.ID())
	return &models.AuthTokens{
		AccessToken: accessToken,
		SessionID:   h.ID(),
		ExpiresIn:   int(middleware.AccessTokenTTL.Seconds()),
	}, nil
}

// Logout ends h. Signing out a session that already ended is not an error.
func (s *AuthService) Logout(ctx context.Context, h *session.Handle) error {
	err := s.sessions.Evict(ctx, h, session.ReasonSignOut)
	if errors.Is(err, session.ErrSessionNotActive) {
		return nil
	}
	return err
}
