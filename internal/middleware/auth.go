package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Daytron/revworks-sub001/internal/query"
	"github.com/Daytron/revworks-sub001/internal/session"
)

type contextKey string

const SessionKey contextKey = "session"

// AccessTokenTTL caps the JWT lifetime; the session registry decides
// liveness well before that through eviction and idle expiry.
const AccessTokenTTL = 12 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// SessionLookup is satisfied by *session.Registry.
type SessionLookup interface {
	Lookup(token string) (*session.Handle, error)
}

type JWTAuth struct {
	Secret   []byte
	sessions SessionLookup
}

func NewJWTAuth(secret string, sessions SessionLookup) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret), sessions: sessions}
}

// GenerateAccessToken binds a JWT to one session through its ownership token.
func (j *JWTAuth) GenerateAccessToken(h *session.Handle) (string, error) {
	p := h.Principal()
	now := time.Now()
	claims := jwt.MapClaims{
		"sid":  h.ID().String(),
		"tok":  h.Token(),
		"sub":  p.ExternalID,
		"kind": string(p.Kind),
		"exp":  now.Add(AccessTokenTTL).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// Resolve verifies tokenStr and returns the live session it belongs to.
func (j *JWTAuth) Resolve(tokenStr string) (*session.Handle, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	ownership, _ := claims["tok"].(string)
	sid, _ := claims["sid"].(string)
	if ownership == "" || sid == "" {
		return nil, ErrInvalidToken
	}

	h, err := j.sessions.Lookup(ownership)
	if err != nil {
		return nil, err
	}
	if h.ID().String() != sid {
		return nil, ErrInvalidToken
	}
	return h, nil
}

// Middleware resolves the bearer token to a live session and attaches it,
// plus the session ID as connection lease owner, to the request context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		h, err := j.Resolve(parts[1])
		switch {
		case err == nil:
		case errors.Is(err, ErrTokenExpired):
			writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			return
		case errors.Is(err, session.ErrSessionNotActive):
			writeError(w, http.StatusUnauthorized, "SESSION_NOT_ACTIVE", "Your session has ended. Please sign in again.", r)
			return
		default:
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			return
		}

		ctx := context.WithValue(r.Context(), SessionKey, h)
		ctx = query.WithOwner(ctx, h.ID().String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession returns the session attached by Middleware, or nil.
func GetSession(ctx context.Context) *session.Handle {
	h, _ := ctx.Value(SessionKey).(*session.Handle)
	return h
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
