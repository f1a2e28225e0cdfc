package handlers

import (
	"fmt"
	"net/http"

	"github.com/ozRnDs/sort-and-choose-images/internal/corpus"
	"github.com/ozRnDs/sort-and-choose-images/internal/index"
	"github.com/ozRnDs/sort-and-choose-images/internal/recognizer"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// StatsHandler reports corpus-wide numbers for the dashboard.
type StatsHandler struct {
	store  store.Store
	index  *index.Index
	groups corpus.Groups
	worker *recognizer.Worker
}

// NewStatsHandler creates the stats handler.
func NewStatsHandler(st store.Store, ix *index.Index, groups corpus.Groups, worker *recognizer.Worker) *StatsHandler {
	return &StatsHandler{store: st, index: ix, groups: groups, worker: worker}
}

// Get returns image, face, group, and index counts.
// GET /api/v1/stats
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.StatusCounts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read image counts: %v", err))
		return
	}

	faceCount, err := h.store.CountFaces(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to count faces: %v", err))
		return
	}

	groupIDs, err := h.groups.AllGroupIDs()
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list groups: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"images":        counts,
		"total_images":  counts.Total(),
		"faces":         faceCount,
		"indexed_faces": h.index.Count(),
		"groups":        len(groupIDs),
		"running":       h.worker.Running(),
	})
}
