package handlers

import (
	"net/http"
	"time"

	"github.com/Daytron/revworks-sub001/internal/pool"
)

type PoolStats interface {
	Size() int
	Free() int
	InUse() int
	Leases() []pool.LeaseInfo
}

type Counter interface {
	Count() int
}

type HealthHandler struct {
	pool     PoolStats
	sessions Counter
	tasks    Counter
}

func NewHealthHandler(pool PoolStats, sessions, tasks Counter) *HealthHandler {
	return &HealthHandler{pool: pool, sessions: sessions, tasks: tasks}
}

type leaseView struct {
	LeasedBy string `json:"leased_by"`
	AgeMS    int64  `json:"age_ms"`
}

// Health reports pool pressure alongside session and task counts. A fully
// leased pool is reported as "busy" but still answers 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	leases := h.pool.Leases()
	views := make([]leaseView, 0, len(leases))
	for _, l := range leases {
		views = append(views, leaseView{LeasedBy: l.LeasedBy, AgeMS: l.Age.Milliseconds()})
	}

	status := "ok"
	if h.pool.Free() == 0 {
		status = "busy"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"pool": map[string]interface{}{
			"size":   h.pool.Size(),
			"free":   h.pool.Free(),
			"in_use": h.pool.InUse(),
			"leases": views,
		},
		"sessions": h.sessions.Count(),
		"tasks":    h.tasks.Count(),
	})
}
