package cmd

import (
	"context"
	"fmt"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/index"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
	"github.com/ozRnDs/sort-and-choose-images/internal/store/postgres"
	"github.com/ozRnDs/sort-and-choose-images/internal/store/sqlite"
)

// openStore connects to the configured backend. PostgreSQL is used when
// DATABASE_URL is set, SQLite otherwise.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.URL != "" {
		fmt.Println("Connecting to PostgreSQL...")
		st, err := postgres.Open(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL store: %w", err)
		}
		return st, nil
	}

	st, err := sqlite.Open(cfg.Database.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite store: %w", err)
	}
	return st, nil
}

// initIndex loads the persisted face index when it matches the store, and
// rebuilds it from stored embeddings otherwise.
func initIndex(ctx context.Context, cfg *config.Config, st store.Store) (*index.Index, error) {
	ix := index.New(cfg.Detection.Dim)

	if cfg.Index.Path != "" {
		count, err := st.CountFaces(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count faces: %w", err)
		}
		meta, err := index.LoadMetadata(cfg.Index.Path)
		if err == nil && meta.Dim == cfg.Detection.Dim && meta.FaceCount == count {
			if err := ix.Load(cfg.Index.Path); err == nil {
				fmt.Printf("Loaded face index from %s (%d faces)\n", cfg.Index.Path, ix.Count())
				return ix, nil
			}
			fmt.Printf("Warning: failed to load face index from %s, rebuilding\n", cfg.Index.Path)
		}
	}

	faces, err := st.AllFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load faces: %w", err)
	}
	if err := ix.BuildFromFaces(faces); err != nil {
		return nil, fmt.Errorf("failed to build face index: %w", err)
	}
	if ix.Count() > 0 {
		fmt.Printf("Face index built with %d faces\n", ix.Count())
	}
	return ix, nil
}

// saveIndex persists the face index to the configured path, if any.
func saveIndex(cfg *config.Config, ix *index.Index) {
	if cfg.Index.Path == "" {
		return
	}
	if err := ix.Save(cfg.Index.Path); err != nil {
		fmt.Printf("Warning: failed to save face index: %v\n", err)
		return
	}
	fmt.Printf("Face index saved to %s\n", cfg.Index.Path)
}
