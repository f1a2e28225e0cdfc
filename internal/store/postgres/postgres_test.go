//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	s, err := Open(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		s.Close()
		container.Terminate(ctx)
	}

	return s, cleanup
}

func TestPostgresStore(t *testing.T) {
	s, cleanup := setupTestContainer(t)
	if s == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	t.Run("EnsureAndClaim", func(t *testing.T) {
		created, err := s.EnsureImages(ctx, []string{"trip/a.jpg", "trip/b.jpg"})
		if err != nil {
			t.Fatalf("Failed to ensure images: %v", err)
		}
		if created != 2 {
			t.Errorf("Expected 2 created, got %d", created)
		}

		// Re-scan creates nothing new.
		created, err = s.EnsureImages(ctx, []string{"trip/a.jpg"})
		if err != nil {
			t.Fatalf("Failed to ensure images: %v", err)
		}
		if created != 0 {
			t.Errorf("Expected 0 created on rescan, got %d", created)
		}

		rec, err := s.ClaimNextPending(ctx)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if rec == nil || rec.ImageID != "trip/a.jpg" {
			t.Fatalf("Expected first claim 'trip/a.jpg', got %+v", rec)
		}
		if rec.Status != store.StatusInProgress {
			t.Errorf("Expected claimed status in_progress, got '%s'", rec.Status)
		}
	})

	t.Run("MarkDoneWithFaces", func(t *testing.T) {
		embedding := make([]float32, 512)
		for i := range embedding {
			embedding[i] = float32(i) / 512.0
		}

		faces := []store.FaceRecord{
			{
				FaceID:    "face-pg-1",
				ImageID:   "trip/a.jpg",
				BBox:      []float64{10, 20, 110, 140},
				Embedding: embedding,
			},
		}
		if err := s.MarkDone(ctx, "trip/a.jpg", faces); err != nil {
			t.Fatalf("Failed to mark done: %v", err)
		}

		got, err := s.GetFace(ctx, "face-pg-1")
		if err != nil {
			t.Fatalf("Failed to get face: %v", err)
		}
		if len(got.Embedding) != 512 {
			t.Errorf("Expected 512-dim embedding, got %d", len(got.Embedding))
		}
		if len(got.BBox) != 4 || got.BBox[3] != 140 {
			t.Errorf("Unexpected bbox: %v", got.BBox)
		}

		rec, err := s.GetImage(ctx, "trip/a.jpg")
		if err != nil {
			t.Fatalf("Failed to get image: %v", err)
		}
		if rec.Status != store.StatusDone {
			t.Errorf("Expected status done, got '%s'", rec.Status)
		}
	})

	t.Run("FailAndRetry", func(t *testing.T) {
		rec, err := s.ClaimNextPending(ctx)
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if rec == nil {
			t.Fatal("Expected a pending image to claim")
		}

		if err := s.MarkFailed(ctx, rec.ImageID, store.ErrorKindTransient, "connection refused"); err != nil {
			t.Fatalf("Failed to mark failed: %v", err)
		}

		n, err := s.ResetFailed(ctx, false)
		if err != nil {
			t.Fatalf("Failed to reset failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 reset, got %d", n)
		}

		got, err := s.GetImage(ctx, rec.ImageID)
		if err != nil {
			t.Fatalf("Failed to get image: %v", err)
		}
		if got.Status != store.StatusPending || got.RetryCount != 1 {
			t.Errorf("Expected pending with retry_count 1, got %+v", got)
		}
	})

	t.Run("UpdateFaceFlags", func(t *testing.T) {
		yes := true
		if err := s.UpdateFaceFlags(ctx, "face-pg-1", store.FaceFlags{RonInFace: &yes}); err != nil {
			t.Fatalf("Failed to update flags: %v", err)
		}

		marked, err := s.MarkedFaces(ctx)
		if err != nil {
			t.Fatalf("Failed to list marked faces: %v", err)
		}
		if len(marked) != 1 || marked[0].FaceID != "face-pg-1" {
			t.Errorf("Unexpected marked faces: %+v", marked)
		}

		if err := s.UpdateFaceFlags(ctx, "missing", store.FaceFlags{HideFace: &yes}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for missing face, got %v", err)
		}
	})
}
