// Package mock provides an in-memory store implementation for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

// Store is an in-memory implementation of store.Store. Zero value is not
// usable; create it with New.
type Store struct {
	mu     sync.RWMutex
	seq    []string // image IDs in discovery order
	images map[string]*store.ImageRecord
	faces  map[string]*store.FaceRecord

	// Error injection
	EnsureError    error
	ClaimError     error
	MarkDoneError  error
	MarkFailError  error
	ResetError     error
	GetImageError  error
	CountsError    error
	GetFaceError   error
	QueryError     error
	UpdateError    error
	CountError     error
}

// New creates an empty mock store.
func New() *Store {
	return &Store{
		images: make(map[string]*store.ImageRecord),
		faces:  make(map[string]*store.FaceRecord),
	}
}

// AddFace seeds a face directly, bypassing the processing flow.
func (m *Store) AddFace(f store.FaceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	m.faces[f.FaceID] = &f
}

// SetImageStatus forces an image into a specific state.
func (m *Store) SetImageStatus(imageID string, status store.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.images[imageID]; ok {
		rec.Status = status
		return
	}
	m.seq = append(m.seq, imageID)
	m.images[imageID] = &store.ImageRecord{
		ImageID:      imageID,
		Status:       status,
		DiscoveredAt: time.Now(),
	}
}

func (m *Store) EnsureImages(ctx context.Context, imageIDs []string) (int, error) {
	if m.EnsureError != nil {
		return 0, m.EnsureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	created := 0
	for _, id := range imageIDs {
		if _, ok := m.images[id]; ok {
			continue
		}
		m.seq = append(m.seq, id)
		m.images[id] = &store.ImageRecord{
			ImageID:      id,
			Status:       store.StatusPending,
			DiscoveredAt: time.Now(),
		}
		created++
	}
	return created, nil
}

func (m *Store) ClaimNextPending(ctx context.Context) (*store.ImageRecord, error) {
	if m.ClaimError != nil {
		return nil, m.ClaimError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.seq {
		rec := m.images[id]
		if rec.Status == store.StatusPending {
			rec.Status = store.StatusInProgress
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) MarkDone(ctx context.Context, imageID string, faces []store.FaceRecord) error {
	if m.MarkDoneError != nil {
		return m.MarkDoneError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.images[imageID]
	if !ok {
		return store.ErrNotFound
	}

	for id, f := range m.faces {
		if f.ImageID == imageID {
			delete(m.faces, id)
		}
	}
	for _, f := range faces {
		cp := f
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		m.faces[cp.FaceID] = &cp
	}

	rec.Status = store.StatusDone
	rec.LastError = ""
	rec.ErrorKind = store.ErrorKindNone
	return nil
}

func (m *Store) MarkFailed(ctx context.Context, imageID string, kind store.ErrorKind, cause string) error {
	if m.MarkFailError != nil {
		return m.MarkFailError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.images[imageID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = store.StatusFailed
	rec.RetryCount++
	rec.LastError = cause
	rec.ErrorKind = kind
	return nil
}

func (m *Store) ResetInProgress(ctx context.Context) (int, error) {
	if m.ResetError != nil {
		return 0, m.ResetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, rec := range m.images {
		if rec.Status == store.StatusInProgress {
			rec.Status = store.StatusPending
			n++
		}
	}
	return n, nil
}

func (m *Store) ResetFailed(ctx context.Context, includePermanent bool) (int, error) {
	if m.ResetError != nil {
		return 0, m.ResetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, rec := range m.images {
		if rec.Status != store.StatusFailed {
			continue
		}
		if !includePermanent && rec.ErrorKind != store.ErrorKindTransient {
			continue
		}
		rec.Status = store.StatusPending
		rec.LastError = ""
		rec.ErrorKind = store.ErrorKindNone
		n++
	}
	return n, nil
}

func (m *Store) ResetFailedImage(ctx context.Context, imageID string) error {
	if m.ResetError != nil {
		return m.ResetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.images[imageID]
	if !ok || rec.Status != store.StatusFailed {
		return store.ErrNotFound
	}
	rec.Status = store.StatusPending
	rec.LastError = ""
	rec.ErrorKind = store.ErrorKindNone
	return nil
}

func (m *Store) GetImage(ctx context.Context, imageID string) (*store.ImageRecord, error) {
	if m.GetImageError != nil {
		return nil, m.GetImageError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.images[imageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Store) StatusCounts(ctx context.Context) (store.StatusCounts, error) {
	if m.CountsError != nil {
		return store.StatusCounts{}, m.CountsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts store.StatusCounts
	for _, rec := range m.images {
		switch rec.Status {
		case store.StatusPending:
			counts.Pending++
		case store.StatusInProgress:
			counts.InProgress++
		case store.StatusDone:
			counts.Done++
		case store.StatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

func (m *Store) GetFace(ctx context.Context, faceID string) (*store.FaceRecord, error) {
	if m.GetFaceError != nil {
		return nil, m.GetFaceError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.faces[faceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Store) GetFacesByImage(ctx context.Context, imageID string) ([]store.FaceRecord, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collect(func(f *store.FaceRecord) bool {
		return f.ImageID == imageID
	}), nil
}

func (m *Store) MarkedFaces(ctx context.Context) ([]store.FaceRecord, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collect(func(f *store.FaceRecord) bool {
		return f.RonInFace
	}), nil
}

func (m *Store) FacesForImages(ctx context.Context, imageIDs []string, includeHidden bool) ([]store.FaceRecord, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]struct{}, len(imageIDs))
	for _, id := range imageIDs {
		wanted[id] = struct{}{}
	}
	return m.collect(func(f *store.FaceRecord) bool {
		if _, ok := wanted[f.ImageID]; !ok {
			return false
		}
		return includeHidden || !f.HideFace
	}), nil
}

func (m *Store) HiddenFaceIDs(ctx context.Context) ([]string, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, f := range m.faces {
		if f.HideFace {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Store) AllFaces(ctx context.Context) ([]store.FaceRecord, error) {
	if m.QueryError != nil {
		return nil, m.QueryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collect(func(*store.FaceRecord) bool { return true }), nil
}

func (m *Store) UpdateFaceFlags(ctx context.Context, faceID string, flags store.FaceFlags) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.faces[faceID]
	if !ok {
		return store.ErrNotFound
	}
	if flags.RonInFace != nil {
		rec.RonInFace = *flags.RonInFace
	}
	if flags.HideFace != nil {
		rec.HideFace = *flags.HideFace
	}
	return nil
}

func (m *Store) CountFaces(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces), nil
}

func (m *Store) Close() error {
	return nil
}

// collect returns matching faces sorted by face ID. Caller must hold the lock.
func (m *Store) collect(match func(*store.FaceRecord) bool) []store.FaceRecord {
	var faces []store.FaceRecord
	for _, f := range m.faces {
		if match(f) {
			faces = append(faces, *f)
		}
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].FaceID < faces[j].FaceID })
	return faces
}

// Verify interface compliance
var _ store.Store = (*Store)(nil)
