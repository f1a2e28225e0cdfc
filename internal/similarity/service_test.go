package similarity

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/index"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
	"github.com/ozRnDs/sort-and-choose-images/internal/store/mock"
)

// fakeGroups maps group IDs to image IDs without touching the filesystem.
type fakeGroups struct {
	groups map[string][]string
}

func (g *fakeGroups) AllGroupIDs() ([]string, error) {
	var ids []string
	for id := range g.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (g *fakeGroups) GroupOf(imageID string) string {
	for id, images := range g.groups {
		for _, img := range images {
			if img == imageID {
				return id
			}
		}
	}
	return "ungrouped"
}

func (g *fakeGroups) ImagesOf(groupID string) ([]string, error) {
	return g.groups[groupID], nil
}

func seedFace(st *mock.Store, ix *index.Index, t *testing.T, faceID, imageID string, emb []float32, ron, hidden bool) {
	t.Helper()
	st.AddFace(store.FaceRecord{
		FaceID: faceID, ImageID: imageID, BBox: []float64{0, 0, 10, 10},
		Embedding: emb, RonInFace: ron, HideFace: hidden,
	})
	if err := ix.Upsert(faceID, emb); err != nil {
		t.Fatalf("failed to index face: %v", err)
	}
}

func newTestService(t *testing.T, groups *fakeGroups, cfg config.SimilarityConfig) (*Service, *mock.Store, *index.Index) {
	t.Helper()
	st := mock.New()
	ix := index.New(4)
	return New(st, ix, groups, cfg), st, ix
}

func TestSimilarFaces(t *testing.T) {
	svc, st, ix := newTestService(t, &fakeGroups{}, config.SimilarityConfig{})
	ctx := context.Background()

	seedFace(st, ix, t, "query", "a.jpg", []float32{1, 0, 0, 0}, false, false)
	seedFace(st, ix, t, "close", "b.jpg", []float32{0.9, 0.1, 0, 0}, false, false)
	seedFace(st, ix, t, "far", "c.jpg", []float32{0, 0, 1, 0}, false, false)
	seedFace(st, ix, t, "hidden", "d.jpg", []float32{1, 0, 0, 0}, false, true)

	results, err := svc.SimilarFaces(ctx, "query", 10, false)
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}

	for _, r := range results {
		if r.FaceID == "query" {
			t.Error("query face must not appear in its own results")
		}
		if r.FaceID == "hidden" {
			t.Error("hidden face must be filtered out")
		}
	}
	if len(results) != 2 || results[0].FaceID != "close" {
		t.Errorf("unexpected results: %+v", results)
	}

	// include_hidden brings the hidden twin back, at the top.
	results, err = svc.SimilarFaces(ctx, "query", 10, true)
	if err != nil {
		t.Fatalf("failed to query with hidden: %v", err)
	}
	if len(results) != 3 || results[0].FaceID != "hidden" {
		t.Errorf("unexpected results with hidden: %+v", results)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("identical embedding should score 1, got %f", results[0].Score)
	}
}

func TestSimilarFaces_UnknownFace(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeGroups{}, config.SimilarityConfig{})

	_, err := svc.SimilarFaces(context.Background(), "missing", 10, false)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGroupsWithPerson_MaxAggregation(t *testing.T) {
	groups := &fakeGroups{groups: map[string][]string{
		"with-person":    {"a.jpg"},
		"without-person": {"b.jpg"},
	}}
	svc, st, ix := newTestService(t, groups, config.SimilarityConfig{Aggregation: AggregationMax})
	ctx := context.Background()

	seedFace(st, ix, t, "ref", "ref.jpg", []float32{1, 0, 0, 0}, true, false)
	seedFace(st, ix, t, "match", "a.jpg", []float32{0.95, 0.05, 0, 0}, false, false)
	seedFace(st, ix, t, "other", "b.jpg", []float32{0, 1, 0, 0}, false, false)

	page, err := svc.GroupsWithPerson(ctx, 0.6, 1, 10, false)
	if err != nil {
		t.Fatalf("failed to query groups: %v", err)
	}

	if page.TotalGroups != 1 {
		t.Fatalf("expected 1 group above threshold, got %+v", page)
	}
	if page.Groups[0].GroupID != "with-person" {
		t.Errorf("unexpected group: %+v", page.Groups[0])
	}
	if page.Groups[0].Score < 0.9 {
		t.Errorf("expected high score, got %f", page.Groups[0].Score)
	}
}

func TestGroupsWithPerson_MeanAggregation(t *testing.T) {
	groups := &fakeGroups{groups: map[string][]string{"g": {"a.jpg"}}}
	svc, st, ix := newTestService(t, groups, config.SimilarityConfig{Aggregation: AggregationMean})
	ctx := context.Background()

	seedFace(st, ix, t, "ref", "ref.jpg", []float32{1, 0, 0, 0}, true, false)
	// One exact match and one orthogonal face in the same group.
	seedFace(st, ix, t, "f1", "a.jpg", []float32{1, 0, 0, 0}, false, false)
	seedFace(st, ix, t, "f2", "a.jpg", []float32{0, 1, 0, 0}, false, false)

	page, err := svc.GroupsWithPerson(ctx, 0.4, 1, 10, false)
	if err != nil {
		t.Fatalf("failed to query groups: %v", err)
	}
	if page.TotalGroups != 1 {
		t.Fatalf("expected 1 group, got %+v", page)
	}
	// Mean of 1.0 and 0.0.
	if math.Abs(page.Groups[0].Score-0.5) > 1e-6 {
		t.Errorf("expected mean score 0.5, got %f", page.Groups[0].Score)
	}
}

func TestGroupsWithPerson_NoMarkedFaces(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeGroups{}, config.SimilarityConfig{})

	_, err := svc.GroupsWithPerson(context.Background(), 0.6, 1, 10, false)
	if !errors.Is(err, ErrNoMarkedFaces) {
		t.Errorf("expected ErrNoMarkedFaces, got %v", err)
	}
}

func TestGroupsWithPerson_PaginationStable(t *testing.T) {
	groupMap := make(map[string][]string)
	// Five groups with identical scores force the ID tiebreak.
	ids := []string{"g1", "g2", "g3", "g4", "g5"}
	for _, id := range ids {
		groupMap[id] = []string{id + "/img.jpg"}
	}
	svc, st, ix := newTestService(t, &fakeGroups{groups: groupMap}, config.SimilarityConfig{})
	ctx := context.Background()

	seedFace(st, ix, t, "ref", "ref.jpg", []float32{1, 0, 0, 0}, true, false)
	for _, id := range ids {
		seedFace(st, ix, t, "face-"+id, id+"/img.jpg", []float32{1, 0, 0, 0}, false, false)
	}

	first, err := svc.GroupsWithPerson(ctx, 0.6, 1, 2, false)
	if err != nil {
		t.Fatalf("failed to query page 1: %v", err)
	}
	second, err := svc.GroupsWithPerson(ctx, 0.6, 2, 2, false)
	if err != nil {
		t.Fatalf("failed to query page 2: %v", err)
	}
	third, err := svc.GroupsWithPerson(ctx, 0.6, 3, 2, false)
	if err != nil {
		t.Fatalf("failed to query page 3: %v", err)
	}

	if first.TotalGroups != 5 || second.TotalGroups != 5 {
		t.Fatalf("expected total 5 on every page, got %d/%d", first.TotalGroups, second.TotalGroups)
	}

	got := []string{}
	for _, p := range []*GroupsPage{first, second, third} {
		for _, g := range p.Groups {
			got = append(got, g.GroupID)
		}
	}
	want := []string{"g1", "g2", "g3", "g4", "g5"}
	if len(got) != len(want) {
		t.Fatalf("expected %d groups across pages, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("unstable pagination: got %v, want %v", got, want)
			break
		}
	}

	// Out-of-range page keeps the total but returns no groups.
	beyond, err := svc.GroupsWithPerson(ctx, 0.6, 9, 2, false)
	if err != nil {
		t.Fatalf("failed to query out-of-range page: %v", err)
	}
	if beyond.TotalGroups != 5 || len(beyond.Groups) != 0 {
		t.Errorf("unexpected out-of-range page: %+v", beyond)
	}
}

func TestGroupsWithPerson_HiddenFacesDoNotContribute(t *testing.T) {
	groups := &fakeGroups{groups: map[string][]string{"g": {"a.jpg"}}}
	svc, st, ix := newTestService(t, groups, config.SimilarityConfig{})
	ctx := context.Background()

	seedFace(st, ix, t, "ref", "ref.jpg", []float32{1, 0, 0, 0}, true, false)
	seedFace(st, ix, t, "hidden-match", "a.jpg", []float32{1, 0, 0, 0}, false, true)

	page, err := svc.GroupsWithPerson(ctx, 0.6, 1, 10, false)
	if err != nil {
		t.Fatalf("failed to query groups: %v", err)
	}
	if page.TotalGroups != 0 {
		t.Errorf("hidden face should not lift the group, got %+v", page)
	}

	page, err = svc.GroupsWithPerson(ctx, 0.6, 1, 10, true)
	if err != nil {
		t.Fatalf("failed to query groups with hidden: %v", err)
	}
	if page.TotalGroups != 1 {
		t.Errorf("include_hidden should count the hidden face, got %+v", page)
	}
}
