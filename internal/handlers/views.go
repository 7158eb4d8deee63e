package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Daytron/revworks-sub001/internal/middleware"
	"github.com/Daytron/revworks-sub001/internal/services"
)

type ViewHandler struct {
	views *services.ViewService
}

func NewViewHandler(views *services.ViewService) *ViewHandler {
	return &ViewHandler{views: views}
}

func (h *ViewHandler) Enter(w http.ResponseWriter, r *http.Request) {
	view := chi.URLParam(r, "view")
	if err := h.views.Enter(r.Context(), middleware.GetSession(r.Context()), view); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"view": view})
}

func (h *ViewHandler) Exit(w http.ResponseWriter, r *http.Request) {
	view := chi.URLParam(r, "view")
	stopped, err := h.views.Exit(middleware.GetSession(r.Context()), view)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"view": view, "stopped_tasks": stopped})
}
