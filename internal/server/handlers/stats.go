package handlers

import (
	"net/http"

	"github.com/inematds/inemavox/pkg/stats"
)

// StatsHandler exposes the learned duration statistics.
type StatsHandler struct {
	store *stats.Store
}

func NewStatsHandler(store *stats.Store) *StatsHandler {
	return &StatsHandler{store: store}
}

// Get handles GET /stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Summarize())
}
