package index

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"

	"github.com/coder/hnsw"
)

// Metadata is written next to the index file and used to detect staleness
// before loading the graph.
type Metadata struct {
	FaceCount int `json:"face_count"`
	Dim       int `json:"dim"`
}

// LoadMetadata reads just the metadata sidecar for staleness checking.
func LoadMetadata(basePath string) (*Metadata, error) {
	data, err := os.ReadFile(basePath + ".meta")
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Save persists the graph, the vectors map, and a metadata sidecar to disk.
// An empty index removes any previously saved files.
func (ix *Index) Save(basePath string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vectors) == 0 {
		os.Remove(basePath)
		os.Remove(basePath + ".meta")
		os.Remove(basePath + ".vectors")
		return nil
	}

	f, err := os.Create(basePath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := ix.graph.Export(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to export graph: %w", err)
	}
	f.Close()

	vf, err := os.Create(basePath + ".vectors")
	if err != nil {
		return fmt.Errorf("failed to create vectors file: %w", err)
	}
	defer vf.Close()
	if err := gob.NewEncoder(vf).Encode(ix.vectors); err != nil {
		return fmt.Errorf("failed to encode vectors: %w", err)
	}

	meta := Metadata{FaceCount: len(ix.vectors), Dim: ix.dim}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(basePath+".meta", metaData, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

// Load replaces the index contents with a previously saved graph and vectors
// map. The caller should check LoadMetadata against the store first and
// rebuild instead when the saved index is stale.
func (ix *Index) Load(basePath string) error {
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return fmt.Errorf("index file not found: %s", basePath)
	}

	saved, err := hnsw.LoadSavedGraph[string](basePath)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}

	vf, err := os.Open(basePath + ".vectors")
	if err != nil {
		return fmt.Errorf("failed to open vectors file: %w", err)
	}
	defer vf.Close()

	vectors := make(map[string][]float32)
	if err := gob.NewDecoder(vf).Decode(&vectors); err != nil {
		return fmt.Errorf("failed to decode vectors: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.graph = saved.Graph
	ix.vectors = vectors
	return nil
}
