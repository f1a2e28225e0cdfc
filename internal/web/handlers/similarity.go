package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ozRnDs/sort-and-choose-images/internal/index"
	"github.com/ozRnDs/sort-and-choose-images/internal/similarity"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// SimilarityHandler serves the similarity queries.
type SimilarityHandler struct {
	service *similarity.Service
}

// NewSimilarityHandler creates the similarity handler.
func NewSimilarityHandler(service *similarity.Service) *SimilarityHandler {
	return &SimilarityHandler{service: service}
}

// Similar returns faces most similar to the given face.
// GET /api/v1/faces/{faceId}/similar?top_k=&include_hidden=
func (h *SimilarityHandler) Similar(w http.ResponseWriter, r *http.Request) {
	faceID := chi.URLParam(r, "faceId")
	topK := queryInt(r, "top_k", 0)
	includeHidden := queryBool(r, "include_hidden")

	results, err := h.service.SimilarFaces(r.Context(), faceID, topK, includeHidden)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, index.ErrNotInIndex) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to find similar faces: %v", err))
		return
	}

	if results == nil {
		results = []index.Result{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"face_id": faceID,
		"similar": results,
	})
}

// GroupsWithPerson returns the page of groups likely containing the marked
// person.
// GET /api/v1/groups/person?threshold=&page=&page_size=&include_hidden=
func (h *SimilarityHandler) GroupsWithPerson(w http.ResponseWriter, r *http.Request) {
	threshold := queryFloat(r, "threshold", 0)
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)
	includeHidden := queryBool(r, "include_hidden")

	result, err := h.service.GroupsWithPerson(r.Context(), threshold, page, pageSize, includeHidden)
	if err != nil {
		if errors.Is(err, similarity.ErrNoMarkedFaces) {
			respondError(w, http.StatusBadRequest, "no faces marked as the person yet")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to search groups: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, result)
}
