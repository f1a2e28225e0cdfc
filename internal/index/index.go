// Package index maintains the in-memory HNSW similarity index over face
// embeddings. The status store stays authoritative; the index is a derived
// structure that can always be rebuilt from stored faces.
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// HNSW parameters for 512-dim face embeddings.
const (
	// maxNeighbors (M) is the maximum number of neighbors per node.
	maxNeighbors = 16

	// searchMultiplier over-fetches candidates so that post-filtering
	// (hidden faces, stale nodes) still yields k usable results.
	searchMultiplier = 3

	// minSearchCandidates is the floor on the candidate pool size.
	minSearchCandidates = 100
)

// ErrNotInIndex is returned when a face ID has no embedding in the index.
var ErrNotInIndex = errors.New("face not in index")

// Result is one similarity search hit. Score is in [0, 1], higher is more
// similar.
type Result struct {
	FaceID string  `json:"face_id"`
	Score  float64 `json:"score"`
}

// Index wraps an HNSW graph keyed by face ID. The vectors map is the
// authoritative record of live entries; the graph is only used for candidate
// generation, so scores are always recomputed against the stored vectors.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	vectors map[string][]float32
	dim     int
}

// New creates an empty index for embeddings of the given dimensionality.
func New(dim int) *Index {
	return &Index{
		graph:   newGraph(),
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Upsert adds or replaces the embedding for a face ID. Re-upserting the same
// ID is idempotent with respect to search results.
func (ix *Index) Upsert(faceID string, embedding []float32) error {
	if faceID == "" {
		return errors.New("face ID is required")
	}
	if len(embedding) != ix.dim {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(embedding), ix.dim)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.vectors[faceID]; ok {
		ix.graph.Delete(faceID)
	}
	ix.graph.Add(hnsw.MakeNode(faceID, embedding))
	ix.vectors[faceID] = embedding
	return nil
}

// Delete removes a face from the index. Deleting an unknown ID is a no-op.
func (ix *Index) Delete(faceID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.vectors[faceID]; !ok {
		return
	}
	ix.graph.Delete(faceID)
	delete(ix.vectors, faceID)
}

// Embedding returns the stored embedding for a face ID.
func (ix *Index) Embedding(faceID string) ([]float32, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	emb, ok := ix.vectors[faceID]
	if !ok {
		return nil, ErrNotInIndex
	}
	return emb, nil
}

// Count returns the number of indexed faces.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

// QueryNearest returns up to k faces most similar to the query embedding,
// sorted by score descending with face ID as tiebreak. Faces for which skip
// returns true are excluded; skip may be nil.
func (ix *Index) QueryNearest(query []float32, k int, skip func(faceID string) bool) ([]Result, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vectors) == 0 {
		return nil, nil
	}

	searchK := k * searchMultiplier
	if searchK < minSearchCandidates {
		searchK = minSearchCandidates
	}

	neighbors := ix.graph.Search(query, searchK)

	results := make([]Result, 0, len(neighbors))
	for _, n := range neighbors {
		emb, ok := ix.vectors[n.Key]
		if !ok {
			continue
		}
		if skip != nil && skip(n.Key) {
			continue
		}
		results = append(results, Result{FaceID: n.Key, Score: Similarity(query, emb)})
	}

	// Scores are recomputed, so re-sort instead of trusting graph order.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FaceID < results[j].FaceID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// QueryByFaceID returns up to k faces most similar to an already-indexed
// face, excluding the face itself.
func (ix *Index) QueryByFaceID(faceID string, k int, skip func(faceID string) bool) ([]Result, error) {
	query, err := ix.Embedding(faceID)
	if err != nil {
		return nil, err
	}

	return ix.QueryNearest(query, k, func(id string) bool {
		if id == faceID {
			return true
		}
		return skip != nil && skip(id)
	})
}

// BuildFromFaces rebuilds the index from stored faces, replacing any current
// contents. Faces with missing or mismatched embeddings are skipped.
func (ix *Index) BuildFromFaces(faces []store.FaceRecord) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	g := newGraph()
	vectors := make(map[string][]float32, len(faces))

	for i := range faces {
		f := &faces[i]
		if len(f.Embedding) != ix.dim {
			continue
		}
		g.Add(hnsw.MakeNode(f.FaceID, f.Embedding))
		vectors[f.FaceID] = f.Embedding
	}

	ix.graph = g
	ix.vectors = vectors
	return nil
}
