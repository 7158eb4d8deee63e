package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Daytron/revworks-sub001/internal/middleware"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/pool"
	"github.com/Daytron/revworks-sub001/internal/query"
	"github.com/Daytron/revworks-sub001/internal/services"
	"github.com/Daytron/revworks-sub001/internal/session"
	"github.com/Daytron/revworks-sub001/internal/worker"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	tokens, err := h.authService.Login(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), middleware.GetSession(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch e := err.(type) {
	case *services.ValidationError:
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", e.Fields, r))
		return
	case *services.ConflictError:
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", e.Message, r))
		return
	case *services.NotFoundError:
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", e.Message, r))
		return
	case *services.AuthenticationFailedError:
		writeJSON(w, http.StatusUnauthorized, errorResp("AUTHENTICATION_FAILED", e.Message, r))
		return
	case *services.ForbiddenError:
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", e.Message, r))
		return
	}

	switch {
	case errors.Is(err, session.ErrSessionNotActive):
		writeJSON(w, http.StatusUnauthorized, errorResp("SESSION_NOT_ACTIVE", "Your session has ended. Please sign in again.", r))
	case errors.Is(err, worker.ErrViewNotCurrent):
		writeJSON(w, http.StatusConflict, errorResp("VIEW_NOT_CURRENT", "The view was left before its work could start.", r))
	case errors.Is(err, pool.ErrPoolExhausted):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResp("POOL_EXHAUSTED", "The server is busy. Please retry shortly.", r))
	case errors.Is(err, pool.ErrPoolUnavailable), query.IsNoConnection(err):
		slog.Error("database unavailable", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResp("SERVICE_DEGRADED", "The database is temporarily unavailable.", r))
	case errors.Is(err, worker.ErrSupervisorClosed), errors.Is(err, session.ErrRegistryClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("SHUTTING_DOWN", "The server is shutting down.", r))
	case query.IsNoResult(err):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Resource not found", r))
	default:
		slog.Error("request failed", "path", r.URL.Path, "request_id", r.Header.Get("X-Request-ID"), "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
