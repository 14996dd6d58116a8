package handlers

import (
	"errors"
	"net/http"

	"genesis/internal/domain"
)

// ActiveJob handles GET /v1/jobs/active.
func (a *App) ActiveJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, domain.KindUnauthorized, "missing user context")
		return
	}
	marker, err := a.Jobs.Active(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusOK, map[string]any{"active": false})
			return
		}
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"active":    true,
		"jobId":     marker.ID,
		"kind":      marker.JobType,
		"startedAt": marker.StartedAt,
	})
}
