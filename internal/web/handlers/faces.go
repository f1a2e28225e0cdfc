package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ozRnDs/sort-and-choose-images/internal/corpus"
	"github.com/ozRnDs/sort-and-choose-images/internal/imaging"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// FacesHandler serves individual faces and their curated flags.
type FacesHandler struct {
	store   store.Store
	library corpus.Library
}

// NewFacesHandler creates the faces handler.
func NewFacesHandler(st store.Store, library corpus.Library) *FacesHandler {
	return &FacesHandler{store: st, library: library}
}

// Get returns a face's metadata. The embedding is omitted here; it has its
// own endpoint.
// GET /api/v1/faces/{faceId}
func (h *FacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	faceID := chi.URLParam(r, "faceId")

	face, err := h.store.GetFace(r.Context(), faceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get face: %v", err))
		return
	}

	face.Embedding = nil
	respondJSON(w, http.StatusOK, face)
}

// Update applies a partial update of the curated flags.
// PUT /api/v1/faces/{faceId}
func (h *FacesHandler) Update(w http.ResponseWriter, r *http.Request) {
	faceID := chi.URLParam(r, "faceId")

	var flags store.FaceFlags
	if err := json.NewDecoder(r.Body).Decode(&flags); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if err := h.store.UpdateFaceFlags(r.Context(), faceID, flags); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to update face: %v", err))
		return
	}

	face, err := h.store.GetFace(r.Context(), faceID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to reload face: %v", err))
		return
	}

	face.Embedding = nil
	respondJSON(w, http.StatusOK, face)
}

// Embedding returns a face's raw embedding vector for external tooling.
// GET /api/v1/faces/{faceId}/embedding
func (h *FacesHandler) Embedding(w http.ResponseWriter, r *http.Request) {
	faceID := chi.URLParam(r, "faceId")

	face, err := h.store.GetFace(r.Context(), faceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get face: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"face_id":   face.FaceID,
		"dim":       len(face.Embedding),
		"embedding": face.Embedding,
	})
}

// Image crops the face's bounding box out of the source image and returns it
// as JPEG.
// GET /api/v1/faces/{faceId}/image
func (h *FacesHandler) Image(w http.ResponseWriter, r *http.Request) {
	faceID := chi.URLParam(r, "faceId")

	face, err := h.store.GetFace(r.Context(), faceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get face: %v", err))
		return
	}

	data, err := h.library.ReadImage(face.ImageID)
	if err != nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("source image unavailable: %v", err))
		return
	}

	crop, err := imaging.CropFace(data, face.BBox)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to crop face: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(crop)
}

// defaultMaxImageSize bounds the longest edge of served source images.
const defaultMaxImageSize = 1920

// Source returns the full source image resized to fit max_size, for display
// next to its detected faces.
// GET /api/v1/images/source?image=<id>&max_size=
func (h *FacesHandler) Source(w http.ResponseWriter, r *http.Request) {
	imageID := r.URL.Query().Get("image")
	if imageID == "" {
		respondError(w, http.StatusBadRequest, "image query parameter is required")
		return
	}
	maxSize := queryInt(r, "max_size", defaultMaxImageSize)
	if maxSize <= 0 {
		maxSize = defaultMaxImageSize
	}

	data, err := h.library.ReadImage(imageID)
	if err != nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("source image unavailable: %v", err))
		return
	}

	resized, err := imaging.ResizeImage(data, maxSize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to resize image: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(resized)
}

// ByImage returns all faces detected in one image.
// GET /api/v1/images/faces?image=<id>
func (h *FacesHandler) ByImage(w http.ResponseWriter, r *http.Request) {
	imageID := r.URL.Query().Get("image")
	if imageID == "" {
		respondError(w, http.StatusBadRequest, "image query parameter is required")
		return
	}

	faces, err := h.store.GetFacesByImage(r.Context(), imageID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list faces: %v", err))
		return
	}

	for i := range faces {
		faces[i].Embedding = nil
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"image_id": imageID,
		"faces":    faces,
	})
}
