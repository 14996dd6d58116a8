package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"genesis/internal/domain"
)

type mediaJSON struct {
	ID                    string           `json:"id"`
	JobID                 string           `json:"jobId,omitempty"`
	Kind                  domain.MediaKind `json:"kind"`
	URL                   string           `json:"url"`
	Prompt                string           `json:"prompt"`
	ModelID               string           `json:"modelId"`
	AspectRatioOrDuration string           `json:"aspectRatioOrDuration,omitempty"`
	Degraded              bool             `json:"degraded"`
	CreatedAt             time.Time        `json:"createdAt"`
}

func toMediaJSON(m domain.GeneratedMedia) mediaJSON {
	return mediaJSON{
		ID:                    m.ID,
		JobID:                 m.JobID,
		Kind:                  m.Kind,
		URL:                   m.URL,
		Prompt:                m.Prompt,
		ModelID:               m.ModelID,
		AspectRatioOrDuration: m.AspectRatioOrDuration,
		Degraded:              m.Degraded,
		CreatedAt:             m.CreatedAt,
	}
}

// ListMedia handles GET /v1/media?kind=&limit=.
func (a *App) ListMedia(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, domain.KindUnauthorized, "missing user context")
		return
	}
	q := r.URL.Query()
	var kind domain.MediaKind
	if raw := q.Get("kind"); raw != "" {
		parsed, err := domain.ParseMediaKind(raw)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		kind = parsed
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	rows, err := a.Media.ListByUser(r.Context(), userID, kind, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]mediaJSON, 0, len(rows))
	for _, m := range rows {
		items = append(items, toMediaJSON(m))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// DeleteMedia handles DELETE /v1/media/{id}. The stored file is removed on a
// best-effort basis after the row is gone.
func (a *App) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, domain.KindUnauthorized, "missing user context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, domain.KindNotFound, "media not found")
		return
	}
	m, err := a.Media.GetByID(r.Context(), userID, id.String())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, domain.KindNotFound, "media not found")
			return
		}
		a.fail(w, r, err)
		return
	}
	if err := a.Media.Delete(r.Context(), userID, m.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	if m.StorageKey != "" && a.Blobs != nil {
		if err := a.Blobs.Delete(r.Context(), m.StorageKey); err != nil {
			a.Logger.Warn().Err(err).Str("media_id", m.ID).Str("key", m.StorageKey).Msg("delete stored media file")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
