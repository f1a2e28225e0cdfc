package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/detect"
	"github.com/ozRnDs/sort-and-choose-images/internal/index"
	"github.com/ozRnDs/sort-and-choose-images/internal/recognizer"
	"github.com/ozRnDs/sort-and-choose-images/internal/similarity"
	"github.com/ozRnDs/sort-and-choose-images/internal/store/mock"
)

// memLibrary is an in-memory corpus for handler tests.
type memLibrary struct {
	images map[string][]byte
}

func (l *memLibrary) ListImageIDs() ([]string, error) {
	var ids []string
	for id := range l.images {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *memLibrary) ReadImage(id string) ([]byte, error) {
	data, ok := l.images[id]
	if !ok {
		return nil, fmt.Errorf("no such image: %s", id)
	}
	return data, nil
}

func (l *memLibrary) GroupOf(imageID string) string {
	if i := strings.Index(imageID, "/"); i > 0 {
		return imageID[:i]
	}
	return "ungrouped"
}

func (l *memLibrary) AllGroupIDs() ([]string, error) {
	seen := make(map[string]bool)
	var groups []string
	ids, _ := l.ListImageIDs()
	for _, id := range ids {
		g := l.GroupOf(id)
		if !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	sort.Strings(groups)
	return groups, nil
}

func (l *memLibrary) ImagesOf(groupID string) ([]string, error) {
	var images []string
	ids, _ := l.ListImageIDs()
	for _, id := range ids {
		if l.GroupOf(id) == groupID {
			images = append(images, id)
		}
	}
	return images, nil
}

// stubDetector returns one fixed face per image.
type stubDetector struct{}

func (stubDetector) Detect(ctx context.Context, imageName string, data []byte) ([]detect.Insight, error) {
	return []detect.Insight{
		{BBox: []float64{10, 10, 50, 50}, Embedding: []float32{1, 0, 0, 0}},
	}, nil
}

type testEnv struct {
	store   *mock.Store
	index   *index.Index
	library *memLibrary
	worker  *recognizer.Worker
	router  *chi.Mux
}

// testJPEG encodes a solid-color JPEG of the given size.
func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 160, B: 90, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := mock.New()
	ix := index.New(4)
	lib := &memLibrary{images: map[string][]byte{
		"beach/one.jpg":  testJPEG(t, 100, 100),
		"beach/two.jpg":  testJPEG(t, 100, 100),
		"city/three.jpg": testJPEG(t, 100, 100),
	}}
	worker := recognizer.New(st, ix, stubDetector{}, lib, 5*time.Second)
	svc := similarity.New(st, ix, lib, config.SimilarityConfig{
		Aggregation: similarity.AggregationMax,
		Threshold:   0.6,
		SearchTopK:  100,
	})

	recognitionHandler := NewRecognitionHandler(worker, st)
	facesHandler := NewFacesHandler(st, lib)
	similarityHandler := NewSimilarityHandler(svc)
	statsHandler := NewStatsHandler(st, ix, lib, worker)

	r := chi.NewRouter()
	r.Get("/api/v1/health", HealthCheck)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/recognition/start", recognitionHandler.Start)
		r.Post("/recognition/stop", recognitionHandler.Stop)
		r.Post("/recognition/restart", recognitionHandler.Restart)
		r.Post("/recognition/retry", recognitionHandler.Retry)
		r.Get("/recognition/status", recognitionHandler.Status)
		r.Get("/faces/{faceId}", facesHandler.Get)
		r.Put("/faces/{faceId}", facesHandler.Update)
		r.Get("/faces/{faceId}/embedding", facesHandler.Embedding)
		r.Get("/faces/{faceId}/image", facesHandler.Image)
		r.Get("/faces/{faceId}/similar", similarityHandler.Similar)
		r.Get("/images/faces", facesHandler.ByImage)
		r.Get("/images/source", facesHandler.Source)
		r.Get("/groups/person", similarityHandler.GroupsWithPerson)
		r.Get("/stats", statsHandler.Get)
	})

	return &testEnv{store: st, index: ix, library: lib, worker: worker, router: r}
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}
