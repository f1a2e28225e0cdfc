package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ozRnDs/sort-and-choose-images/internal/recognizer"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// RecognitionHandler controls the face recognition pipeline.
type RecognitionHandler struct {
	worker *recognizer.Worker
	store  store.Store
}

// NewRecognitionHandler creates the recognition control handler.
func NewRecognitionHandler(worker *recognizer.Worker, st store.Store) *RecognitionHandler {
	return &RecognitionHandler{worker: worker, store: st}
}

// Start launches the processing loop.
// POST /api/v1/recognition/start
func (h *RecognitionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.worker.Start(r.Context()); err != nil {
		if errors.Is(err, recognizer.ErrAlreadyRunning) {
			respondError(w, http.StatusConflict, "recognition already running")
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to start recognition: %v", err))
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Stop requests the loop to halt. The image currently in flight completes.
// POST /api/v1/recognition/stop
func (h *RecognitionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	stopped := h.worker.Stop()
	respondJSON(w, http.StatusOK, map[string]bool{"stopping": stopped})
}

// Restart stops any active run, waits for it, and starts over.
// POST /api/v1/recognition/restart
func (h *RecognitionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if err := h.worker.Restart(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to restart recognition: %v", err))
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "restarted"})
}

// Status returns the run flag and the per-status image counts.
// GET /api/v1/recognition/status
func (h *RecognitionHandler) Status(w http.ResponseWriter, r *http.Request) {
	progress, err := h.worker.Progress(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read status: %v", err))
		return
	}

	total := progress.Counts.Total()
	processed := progress.Counts.Processed()
	percent := 0.0
	if total > 0 {
		percent = float64(processed) / float64(total) * 100
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"running":          progress.Running,
		"counts":           progress.Counts,
		"total":            total,
		"processed":        processed,
		"progress_percent": percent,
	})
}

// Retry requeues failed images. By default only transient failures are
// requeued; ?kind=all includes permanent ones, and ?image=<id> retries a
// single image regardless of its classification.
// POST /api/v1/recognition/retry
func (h *RecognitionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if imageID := r.URL.Query().Get("image"); imageID != "" {
		if err := h.store.ResetFailedImage(r.Context(), imageID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				respondError(w, http.StatusNotFound, "image not found or not failed")
				return
			}
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to retry image: %v", err))
			return
		}
		respondJSON(w, http.StatusOK, map[string]int{"requeued": 1})
		return
	}

	var includePermanent bool
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "transient":
	case "all":
		includePermanent = true
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown retry kind: %s", sanitizeForLog(kind)))
		return
	}

	n, err := h.worker.Retry(r.Context(), includePermanent)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to retry: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"requeued": n})
}
