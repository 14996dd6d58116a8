package handlers

import (
	"net/http"

	"genesis/internal/domain"
	"genesis/internal/providers"
)

// Models handles GET /v1/models?kind=image|video.
func (a *App) Models(w http.ResponseWriter, r *http.Request) {
	var kind domain.MediaKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		parsed, err := domain.ParseMediaKind(raw)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		kind = parsed
	}
	models := a.Catalog.Models(kind)
	if models == nil {
		models = []providers.ModelSpec{}
	}
	a.json(w, http.StatusOK, map[string]any{"models": models})
}
