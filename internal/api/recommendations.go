package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/recommend"
)

func (h *handlers) catalog(w http.ResponseWriter, r *http.Request) {
	restaurants, err := h.deps.Store.ListRestaurants()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "listing restaurants: %v", err)
		return
	}
	if restaurants == nil {
		restaurants = []catalog.Restaurant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"restaurants": restaurants})
}

func (h *handlers) personalized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Engine.Personalized(chi.URLParam(r, "username")))
}

func (h *handlers) recommendations(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	kind := recommend.Source(chi.URLParam(r, "kind"))

	var list func(string, int) []recommend.Record
	switch kind {
	case recommend.SourceCollaborative:
		list = h.deps.Engine.Collaborative
	case recommend.SourceContentBased:
		list = h.deps.Engine.ContentBased
	case recommend.SourceHybrid:
		list = h.deps.Engine.Hybrid
	default:
		httpError(w, http.StatusNotFound, "not_found_error", "unknown recommendation kind %q", kind)
		return
	}

	n, err := queryLimit(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":        user,
		"kind":            kind,
		"recommendations": list(user, n),
	})
}

func (h *handlers) trending(w http.ResponseWriter, r *http.Request) {
	n, err := queryLimit(r)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": h.deps.Engine.Trending(n)})
}

func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	p, err := h.deps.Profiles.Get(user)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "building profile: %v", err)
		return
	}
	summary, err := h.deps.Profiles.Summary(user)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "summarizing profile: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": user,
		"profile":  p,
		"summary":  summary,
	})
}

type modelStatus struct {
	Ready       bool      `json:"ready"`
	Generation  uint64    `json:"generation"`
	BuiltAt     time.Time `json:"built_at,omitzero"`
	Users       int       `json:"users"`
	Restaurants int       `json:"restaurants"`
}

func snapshotStatus(s *recommend.Snapshot) modelStatus {
	if s == nil {
		return modelStatus{}
	}
	return modelStatus{
		Ready:       true,
		Generation:  s.Generation,
		BuiltAt:     s.BuiltAt,
		Users:       s.Users(),
		Restaurants: s.Catalog().Len(),
	}
}

func (h *handlers) modelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotStatus(h.deps.Engine.Snapshot()))
}

func (h *handlers) rebuildModel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Engine.Rebuild(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "server_error", "rebuilding model: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotStatus(snap))
}
