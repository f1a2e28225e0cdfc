// Package similarity answers the two triage questions: which faces look like
// this one, and which groups contain the marked person.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/corpus"
	"github.com/ozRnDs/sort-and-choose-images/internal/index"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// Aggregation policies for the group score.
const (
	AggregationMax  = "max"
	AggregationMean = "mean"
)

// GroupScore is one group's aggregated similarity to the marked person.
type GroupScore struct {
	GroupID string  `json:"group_id"`
	Score   float64 `json:"score"`
}

// GroupsPage is one page of the person search results. TotalGroups counts
// every group above the threshold, not just the page.
type GroupsPage struct {
	TotalGroups int          `json:"total_groups"`
	CurrentPage int          `json:"current_page"`
	PageSize    int          `json:"page_size"`
	Groups      []GroupScore `json:"groups"`
}

// ErrNoMarkedFaces is returned by GroupsWithPerson when no reference faces
// have been marked yet.
var ErrNoMarkedFaces = errors.New("no faces marked as the person")

// Service runs similarity queries against the store and the vector index.
type Service struct {
	store  store.Store
	index  *index.Index
	groups corpus.Groups
	cfg    config.SimilarityConfig
}

// New creates the query service. The aggregation policy and default search
// depth come from configuration.
func New(st store.Store, ix *index.Index, groups corpus.Groups, cfg config.SimilarityConfig) *Service {
	if cfg.Aggregation != AggregationMean {
		cfg.Aggregation = AggregationMax
	}
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = 100
	}
	return &Service{store: st, index: ix, groups: groups, cfg: cfg}
}

// SimilarFaces returns up to topK faces most similar to the given face,
// excluding the face itself. Hidden faces are filtered out unless
// includeHidden is set.
func (s *Service) SimilarFaces(ctx context.Context, faceID string, topK int, includeHidden bool) ([]index.Result, error) {
	if topK <= 0 {
		topK = s.cfg.SearchTopK
	}

	skip, err := s.hiddenFilter(ctx, includeHidden)
	if err != nil {
		return nil, err
	}

	results, err := s.index.QueryByFaceID(faceID, topK, skip)
	if errors.Is(err, index.ErrNotInIndex) {
		// The face may exist in the store without being indexed yet.
		face, ferr := s.store.GetFace(ctx, faceID)
		if ferr != nil {
			return nil, ferr
		}
		return s.index.QueryNearest(face.Embedding, topK, func(id string) bool {
			if id == faceID {
				return true
			}
			return skip != nil && skip(id)
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query similar faces: %w", err)
	}
	return results, nil
}

// GroupsWithPerson scores every group against the marked reference faces and
// returns the page of groups meeting the threshold.
//
// A face's score is its best similarity to any marked face; the group score
// aggregates its faces' scores with the configured policy. Results are
// sorted by score descending with group ID as tiebreak, so pagination is
// stable across identical requests.
func (s *Service) GroupsWithPerson(ctx context.Context, threshold float64, page, pageSize int, includeHidden bool) (*GroupsPage, error) {
	if threshold <= 0 {
		threshold = s.cfg.Threshold
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}

	marked, err := s.store.MarkedFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load marked faces: %w", err)
	}
	if len(marked) == 0 {
		return nil, ErrNoMarkedFaces
	}

	groupIDs, err := s.groups.AllGroupIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	var scored []GroupScore
	for _, groupID := range groupIDs {
		images, err := s.groups.ImagesOf(groupID)
		if err != nil {
			return nil, fmt.Errorf("failed to list images of group %s: %w", groupID, err)
		}

		faces, err := s.store.FacesForImages(ctx, images, includeHidden)
		if err != nil {
			return nil, fmt.Errorf("failed to load faces of group %s: %w", groupID, err)
		}

		score, ok := s.scoreGroup(faces, marked)
		if ok && score >= threshold {
			scored = append(scored, GroupScore{GroupID: groupID, Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].GroupID < scored[j].GroupID
	})

	result := &GroupsPage{
		TotalGroups: len(scored),
		CurrentPage: page,
		PageSize:    pageSize,
		Groups:      []GroupScore{},
	}

	start := (page - 1) * pageSize
	if start < len(scored) {
		end := start + pageSize
		if end > len(scored) {
			end = len(scored)
		}
		result.Groups = scored[start:end]
	}

	return result, nil
}

// scoreGroup aggregates the group's per-face best similarities. Returns
// false for groups with no scorable faces.
func (s *Service) scoreGroup(faces, marked []store.FaceRecord) (float64, bool) {
	var sum, best float64
	count := 0

	for i := range faces {
		faceBest := 0.0
		for j := range marked {
			if sim := index.Similarity(faces[i].Embedding, marked[j].Embedding); sim > faceBest {
				faceBest = sim
			}
		}
		sum += faceBest
		if faceBest > best {
			best = faceBest
		}
		count++
	}

	if count == 0 {
		return 0, false
	}
	if s.cfg.Aggregation == AggregationMean {
		return sum / float64(count), true
	}
	return best, true
}

func (s *Service) hiddenFilter(ctx context.Context, includeHidden bool) (func(string) bool, error) {
	if includeHidden {
		return nil, nil
	}

	ids, err := s.store.HiddenFaceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load hidden faces: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	hidden := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		hidden[id] = struct{}{}
	}
	return func(id string) bool {
		_, ok := hidden[id]
		return ok
	}, nil
}
