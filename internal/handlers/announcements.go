package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Daytron/revworks-sub001/internal/middleware"
	"github.com/Daytron/revworks-sub001/internal/models"
	"github.com/Daytron/revworks-sub001/internal/services"
)

type AnnouncementHandler struct {
	announcements *services.AnnouncementService
}

func NewAnnouncementHandler(announcements *services.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

func (h *AnnouncementHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.announcements.List(r.Context(), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AnnouncementHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.AnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	a, err := h.announcements.Submit(r.Context(), middleware.GetSession(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
