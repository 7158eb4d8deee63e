package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Daytron/revworks-sub001/internal/middleware"
	"github.com/Daytron/revworks-sub001/internal/services"
)

type SubmissionHandler struct {
	submissions *services.SubmissionService
}

func NewSubmissionHandler(submissions *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.submissions.List(r.Context(), middleware.GetSession(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Extract starts background text extraction; the result arrives over the
// websocket as a submission_extracted message.
func (h *SubmissionHandler) Extract(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid submission ID", r))
		return
	}

	task, err := h.submissions.StartExtraction(r.Context(), middleware.GetSession(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id":       task.ID(),
		"submission_id": id,
	})
}
