// Package recognizer runs the face recognition pipeline: it drains pending
// images from the status store, calls the detection service, and records the
// resulting faces in the store and the vector index.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ozRnDs/sort-and-choose-images/internal/corpus"
	"github.com/ozRnDs/sort-and-choose-images/internal/detect"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// ErrAlreadyRunning is returned by Start when a run is active.
var ErrAlreadyRunning = errors.New("recognition already running")

// Detector is the face detection dependency.
type Detector interface {
	Detect(ctx context.Context, imageName string, data []byte) ([]detect.Insight, error)
}

// Indexer receives embeddings of newly detected faces.
type Indexer interface {
	Upsert(faceID string, embedding []float32) error
}

// Progress is a snapshot of the current run state.
type Progress struct {
	Running bool               `json:"running"`
	Counts  store.StatusCounts `json:"counts"`
}

// Worker owns the single recognition loop. At most one loop runs at a time;
// Start, Stop, and Restart are safe to call from concurrent requests.
type Worker struct {
	store     store.Store
	index     Indexer
	detector  Detector
	library   corpus.Library
	opTimeout time.Duration

	ctl sync.Mutex // serializes Start/Stop/Restart against each other

	mu      sync.Mutex // guards the run state below
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a worker. opTimeout bounds each store and detection operation.
func New(st store.Store, ix Indexer, det Detector, lib corpus.Library, opTimeout time.Duration) *Worker {
	if opTimeout <= 0 {
		opTimeout = time.Minute
	}
	return &Worker{
		store:     st,
		index:     ix,
		detector:  det,
		library:   lib,
		opTimeout: opTimeout,
	}
}

// Start syncs the corpus into the store, recovers images abandoned by a
// previous crash, and launches the processing loop. Returns
// ErrAlreadyRunning when a loop is active.
func (w *Worker) Start(ctx context.Context) error {
	w.ctl.Lock()
	defer w.ctl.Unlock()
	return w.startLocked(ctx)
}

func (w *Worker) startLocked(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.mu.Unlock()

	ids, err := w.library.ListImageIDs()
	if err != nil {
		return fmt.Errorf("failed to list corpus images: %w", err)
	}
	created, err := w.store.EnsureImages(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to sync corpus: %w", err)
	}
	recovered, err := w.store.ResetInProgress(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover in-progress images: %w", err)
	}
	if created > 0 || recovered > 0 {
		fmt.Printf("Recognition: discovered %d new images, recovered %d abandoned\n", created, recovered)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	w.mu.Lock()
	w.running = true
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go w.run(runCtx, done)
	return nil
}

// Stop requests the loop to halt at the next claim checkpoint. The image
// currently being processed always completes; stopping never loses an
// in-flight detection result. Returns false when no run was active.
func (w *Worker) Stop() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || w.cancel == nil {
		return false
	}
	w.cancel()
	w.cancel = nil // a stop request is consumed once
	return true
}

// Restart stops any active run, waits for it to finish its current image,
// and starts a fresh run. Concurrent restarts serialize.
func (w *Worker) Restart(ctx context.Context) error {
	w.ctl.Lock()
	defer w.ctl.Unlock()

	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	done := w.done
	w.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return w.startLocked(ctx)
}

// Running reports whether a processing loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Wait blocks until the current run finishes. Returns immediately when no
// run is active.
func (w *Worker) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Progress returns the run flag together with the store's status breakdown.
func (w *Worker) Progress(ctx context.Context) (Progress, error) {
	counts, err := w.store.StatusCounts(ctx)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to read status counts: %w", err)
	}
	return Progress{Running: w.Running(), Counts: counts}, nil
}

// Retry requeues failed images. Transient failures are always included;
// includePermanent extends the reset to permanent ones.
func (w *Worker) Retry(ctx context.Context, includePermanent bool) (int, error) {
	n, err := w.store.ResetFailed(ctx, includePermanent)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed images: %w", err)
	}
	return n, nil
}

// run is the processing loop. The run context is only consulted between
// images; each store and detection call runs on its own bounded context so
// cancellation never corrupts a half-processed image.
func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.cancel = nil
		w.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Recognition: stop requested")
			return
		default:
		}

		opCtx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
		rec, err := w.store.ClaimNextPending(opCtx)
		cancel()
		if err != nil {
			fmt.Printf("Recognition: claim failed, stopping: %v\n", err)
			return
		}
		if rec == nil {
			fmt.Println("Recognition: queue drained")
			return
		}

		w.processImage(rec.ImageID)
	}
}

// processImage runs one image through detection and records the outcome. It
// always leaves the image in a terminal state; claim checkpointing handles
// the rest.
func (w *Worker) processImage(imageID string) {
	data, err := w.library.ReadImage(imageID)
	if err != nil {
		w.markFailed(imageID, store.ErrorKindPermanent, fmt.Sprintf("read image: %v", err))
		return
	}

	detCtx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
	insights, err := w.detector.Detect(detCtx, imageID, data)
	cancel()
	if err != nil {
		kind := store.ErrorKindTransient
		if de, ok := detect.AsDetectionError(err); ok && de.Permanent() {
			kind = store.ErrorKindPermanent
		}
		w.markFailed(imageID, kind, err.Error())
		return
	}

	faces := make([]store.FaceRecord, 0, len(insights))
	for _, ins := range insights {
		faces = append(faces, store.FaceRecord{
			FaceID:    uuid.New().String(),
			ImageID:   imageID,
			BBox:      ins.BBox,
			Embedding: ins.Embedding,
		})
	}

	// Index before the store write: re-upserting is idempotent, so a crash
	// in between just reprocesses the image.
	for _, f := range faces {
		if err := w.index.Upsert(f.FaceID, f.Embedding); err != nil {
			w.markFailed(imageID, store.ErrorKindTransient, fmt.Sprintf("index face: %v", err))
			return
		}
	}

	opCtx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
	err = w.store.MarkDone(opCtx, imageID, faces)
	cancel()
	if err != nil {
		fmt.Printf("Recognition: failed to finish %s: %v\n", imageID, err)
		return
	}

	fmt.Printf("Recognition: %s done, %d faces\n", imageID, len(faces))
}

func (w *Worker) markFailed(imageID string, kind store.ErrorKind, cause string) {
	opCtx, cancel := context.WithTimeout(context.Background(), w.opTimeout)
	defer cancel()

	if err := w.store.MarkFailed(opCtx, imageID, kind, cause); err != nil {
		fmt.Printf("Recognition: failed to record failure for %s: %v\n", imageID, err)
		return
	}
	fmt.Printf("Recognition: %s failed (%s): %s\n", imageID, kind, cause)
}
