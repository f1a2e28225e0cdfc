package recognizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ozRnDs/sort-and-choose-images/internal/detect"
	"github.com/ozRnDs/sort-and-choose-images/internal/index"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
	"github.com/ozRnDs/sort-and-choose-images/internal/store/mock"
)

type fakeLibrary struct {
	ids    []string
	images map[string][]byte
}

func newFakeLibrary(ids ...string) *fakeLibrary {
	l := &fakeLibrary{images: make(map[string][]byte)}
	for _, id := range ids {
		l.ids = append(l.ids, id)
		l.images[id] = []byte("image-" + id)
	}
	sort.Strings(l.ids)
	return l
}

func (l *fakeLibrary) ListImageIDs() ([]string, error) {
	return l.ids, nil
}

func (l *fakeLibrary) ReadImage(id string) ([]byte, error) {
	data, ok := l.images[id]
	if !ok {
		return nil, fmt.Errorf("no such image: %s", id)
	}
	return data, nil
}

type fakeDetector struct {
	mu      sync.Mutex
	fail    map[string]error
	started chan string
	release chan struct{}
}

func newFakeDetector() *fakeDetector {
	return &fakeDetector{fail: make(map[string]error)}
}

func (d *fakeDetector) Detect(ctx context.Context, imageName string, data []byte) ([]detect.Insight, error) {
	if d.started != nil {
		d.started <- imageName
	}
	if d.release != nil {
		<-d.release
	}

	d.mu.Lock()
	err := d.fail[imageName]
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return []detect.Insight{
		{BBox: []float64{10, 10, 50, 50}, Embedding: []float32{1, 0, 0, 0}},
	}, nil
}

func (d *fakeDetector) setFailure(imageName string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, imageName)
	} else {
		d.fail[imageName] = err
	}
}

func newTestWorker(lib *fakeLibrary, det Detector) (*Worker, *mock.Store, *index.Index) {
	st := mock.New()
	ix := index.New(4)
	return New(st, ix, det, lib, 5*time.Second), st, ix
}

func TestWorker_DrainsQueue(t *testing.T) {
	lib := newFakeLibrary("a.jpg", "b.jpg", "c.jpg")
	w, st, ix := newTestWorker(lib, newFakeDetector())
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	w.Wait()

	counts, err := st.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("failed to get counts: %v", err)
	}
	if counts.Done != 3 || counts.Pending != 0 {
		t.Errorf("expected all done, got %+v", counts)
	}

	n, err := st.CountFaces(ctx)
	if err != nil {
		t.Fatalf("failed to count faces: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 faces, got %d", n)
	}
	if ix.Count() != 3 {
		t.Errorf("expected 3 indexed faces, got %d", ix.Count())
	}

	if w.Running() {
		t.Error("expected worker to stop after draining")
	}
}

func TestWorker_PermanentFailureExcludedFromRetry(t *testing.T) {
	lib := newFakeLibrary("good.jpg", "bad.jpg")
	det := newFakeDetector()
	det.setFailure("bad.jpg", &detect.DetectionError{
		Kind: detect.KindBadInput, StatusCode: 415, Message: "unsupported media type",
	})
	w, st, _ := newTestWorker(lib, det)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	w.Wait()

	rec, err := st.GetImage(ctx, "bad.jpg")
	if err != nil {
		t.Fatalf("failed to get image: %v", err)
	}
	if rec.Status != store.StatusFailed {
		t.Fatalf("expected failed, got '%s'", rec.Status)
	}
	if rec.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", rec.RetryCount)
	}
	if rec.ErrorKind != store.ErrorKindPermanent {
		t.Errorf("expected permanent kind, got '%s'", rec.ErrorKind)
	}

	// Default retry skips permanent failures.
	n, err := w.Retry(ctx, false)
	if err != nil {
		t.Fatalf("failed to retry: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no transient failures to requeue, got %d", n)
	}

	n, err = w.Retry(ctx, true)
	if err != nil {
		t.Fatalf("failed to retry all: %v", err)
	}
	if n != 1 {
		t.Errorf("expected permanent failure requeued, got %d", n)
	}
}

func TestWorker_TransientFailureRecovers(t *testing.T) {
	lib := newFakeLibrary("flaky.jpg")
	det := newFakeDetector()
	det.setFailure("flaky.jpg", &detect.DetectionError{
		Kind: detect.KindUnavailable, Message: "connection refused",
	})
	w, st, _ := newTestWorker(lib, det)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	w.Wait()

	rec, err := st.GetImage(ctx, "flaky.jpg")
	if err != nil {
		t.Fatalf("failed to get image: %v", err)
	}
	if rec.ErrorKind != store.ErrorKindTransient {
		t.Fatalf("expected transient kind, got '%s'", rec.ErrorKind)
	}

	// Service recovers; retry and run again.
	det.setFailure("flaky.jpg", nil)
	if n, err := w.Retry(ctx, false); err != nil || n != 1 {
		t.Fatalf("expected 1 requeued, got %d (err %v)", n, err)
	}
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to restart: %v", err)
	}
	w.Wait()

	rec, err = st.GetImage(ctx, "flaky.jpg")
	if err != nil {
		t.Fatalf("failed to get image: %v", err)
	}
	if rec.Status != store.StatusDone {
		t.Errorf("expected done after recovery, got '%s'", rec.Status)
	}
}

func TestWorker_UnreadableImageIsPermanent(t *testing.T) {
	lib := newFakeLibrary("a.jpg")
	lib.ids = append(lib.ids, "ghost.jpg") // listed but unreadable
	sort.Strings(lib.ids)
	w, st, _ := newTestWorker(lib, newFakeDetector())
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	w.Wait()

	rec, err := st.GetImage(ctx, "ghost.jpg")
	if err != nil {
		t.Fatalf("failed to get image: %v", err)
	}
	if rec.Status != store.StatusFailed || rec.ErrorKind != store.ErrorKindPermanent {
		t.Errorf("expected permanent failure, got %+v", rec)
	}
}

func TestWorker_StartWhileRunning(t *testing.T) {
	lib := newFakeLibrary("a.jpg")
	det := newFakeDetector()
	det.started = make(chan string, 1)
	det.release = make(chan struct{})
	w, _, _ := newTestWorker(lib, det)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	<-det.started

	if err := w.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	close(det.release)
	w.Wait()
}

func TestWorker_StopFinishesInFlightImage(t *testing.T) {
	lib := newFakeLibrary("a.jpg", "b.jpg", "c.jpg")
	det := newFakeDetector()
	det.started = make(chan string, 3)
	det.release = make(chan struct{})
	w, st, _ := newTestWorker(lib, det)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	inFlight := <-det.started

	if !w.Stop() {
		t.Fatal("expected stop to take effect")
	}
	// Stop is consumed; a second stop has nothing to cancel.
	if w.Stop() {
		t.Error("expected second stop to be a no-op")
	}

	close(det.release)
	w.Wait()

	// The in-flight image completed; the rest never started.
	rec, err := st.GetImage(ctx, inFlight)
	if err != nil {
		t.Fatalf("failed to get image: %v", err)
	}
	if rec.Status != store.StatusDone {
		t.Errorf("expected in-flight image done, got '%s'", rec.Status)
	}

	counts, err := st.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("failed to get counts: %v", err)
	}
	if counts.Done != 1 || counts.Pending != 2 {
		t.Errorf("expected 1 done and 2 pending after stop, got %+v", counts)
	}
}

func TestWorker_RestartResumesQueue(t *testing.T) {
	lib := newFakeLibrary("a.jpg", "b.jpg", "c.jpg")
	det := newFakeDetector()
	det.started = make(chan string, 3)
	det.release = make(chan struct{}, 3)
	w, st, _ := newTestWorker(lib, det)
	ctx := context.Background()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	<-det.started
	w.Stop()
	det.release <- struct{}{}
	w.Wait()

	// Unblock the remaining images and restart.
	det.started = nil
	det.release = nil
	if err := w.Restart(ctx); err != nil {
		t.Fatalf("failed to restart: %v", err)
	}
	w.Wait()

	counts, err := st.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("failed to get counts: %v", err)
	}
	if counts.Done != 3 {
		t.Errorf("expected all done after restart, got %+v", counts)
	}
}

func TestWorker_CrashRecoveryOnStart(t *testing.T) {
	lib := newFakeLibrary("a.jpg")
	w, st, _ := newTestWorker(lib, newFakeDetector())
	ctx := context.Background()

	// Simulate an image abandoned mid-processing by a crash.
	st.SetImageStatus("a.jpg", store.StatusInProgress)

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	w.Wait()

	rec, err := st.GetImage(ctx, "a.jpg")
	if err != nil {
		t.Fatalf("failed to get image: %v", err)
	}
	if rec.Status != store.StatusDone {
		t.Errorf("expected recovered image to be reprocessed, got '%s'", rec.Status)
	}
}

func TestWorker_Progress(t *testing.T) {
	lib := newFakeLibrary("a.jpg")
	w, _, _ := newTestWorker(lib, newFakeDetector())
	ctx := context.Background()

	p, err := w.Progress(ctx)
	if err != nil {
		t.Fatalf("failed to get progress: %v", err)
	}
	if p.Running {
		t.Error("expected not running before start")
	}

	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	w.Wait()

	p, err = w.Progress(ctx)
	if err != nil {
		t.Fatalf("failed to get progress: %v", err)
	}
	if p.Counts.Done != 1 {
		t.Errorf("expected 1 done, got %+v", p.Counts)
	}
}

func TestWorker_StopWhenIdle(t *testing.T) {
	lib := newFakeLibrary()
	w, _, _ := newTestWorker(lib, newFakeDetector())

	if w.Stop() {
		t.Error("expected stop without a run to be a no-op")
	}
}
