package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested image or face does not exist.
var ErrNotFound = errors.New("record not found")

// ImageStore tracks per-image processing state. Implementations must make
// ClaimNextPending an atomic test-and-set: two concurrent callers can never
// receive the same image.
type ImageStore interface {
	// EnsureImages inserts a pending record for every image ID that is not
	// yet known, preserving the given order as discovery order. Existing
	// records are left untouched. Returns the number of records created.
	EnsureImages(ctx context.Context, imageIDs []string) (int, error)

	// ClaimNextPending atomically transfers the oldest pending record to
	// in_progress and returns it. Returns (nil, nil) when no pending
	// records remain.
	ClaimNextPending(ctx context.Context) (*ImageRecord, error)

	// MarkDone writes the image's faces and flips its status to done in a
	// single atomic write. A crash in between must leave the record
	// in_progress so restart recovery reprocesses it.
	MarkDone(ctx context.Context, imageID string, faces []FaceRecord) error

	// MarkFailed records a failure, increments the retry count, and stores
	// the error classification for later retry decisions.
	MarkFailed(ctx context.Context, imageID string, kind ErrorKind, cause string) error

	// ResetInProgress moves every in_progress record back to pending.
	// Called on worker start to recover from a crash mid-image.
	ResetInProgress(ctx context.Context) (int, error)

	// ResetFailed moves failed records back to pending. When
	// includePermanent is false only transient failures are requeued.
	// Returns the number of records reset.
	ResetFailed(ctx context.Context, includePermanent bool) (int, error)

	// ResetFailedImage moves a single failed record back to pending.
	// Returns ErrNotFound if the image does not exist or is not failed.
	ResetFailedImage(ctx context.Context, imageID string) error

	// GetImage returns the record for an image, or ErrNotFound.
	GetImage(ctx context.Context, imageID string) (*ImageRecord, error)

	// StatusCounts returns the per-status breakdown of all image records.
	StatusCounts(ctx context.Context) (StatusCounts, error)
}

// FaceStore provides access to detected faces and their curated flags.
type FaceStore interface {
	// GetFace returns a single face, or ErrNotFound.
	GetFace(ctx context.Context, faceID string) (*FaceRecord, error)

	// GetFacesByImage returns all faces detected in an image.
	GetFacesByImage(ctx context.Context, imageID string) ([]FaceRecord, error)

	// MarkedFaces returns all faces flagged ron_in_face, the reference set
	// for person search.
	MarkedFaces(ctx context.Context) ([]FaceRecord, error)

	// FacesForImages returns faces belonging to any of the given images.
	// Hidden faces are excluded unless includeHidden is set.
	FacesForImages(ctx context.Context, imageIDs []string, includeHidden bool) ([]FaceRecord, error)

	// HiddenFaceIDs returns the IDs of all faces with hide_face set.
	HiddenFaceIDs(ctx context.Context) ([]string, error)

	// AllFaces returns every face with its embedding. Used to rebuild the
	// vector index at startup.
	AllFaces(ctx context.Context) ([]FaceRecord, error)

	// UpdateFaceFlags applies a partial update of the curated flags.
	// Returns ErrNotFound if the face does not exist.
	UpdateFaceFlags(ctx context.Context, faceID string, flags FaceFlags) error

	// CountFaces returns the total number of stored faces.
	CountFaces(ctx context.Context) (int, error)
}

// Store is the full status store contract the pipeline depends on. Any
// embedded or external database satisfying it is a valid backing
// implementation; this repo ships SQLite (default) and PostgreSQL.
type Store interface {
	ImageStore
	FaceStore

	// Close releases the underlying database resources.
	Close() error
}
