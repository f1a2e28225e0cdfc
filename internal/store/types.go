package store

import (
	"time"
)

// Status is the processing state of an image in the corpus.
type Status string

// Status transitions are monotonic except Failed -> Pending (explicit retry)
// and InProgress -> Pending (crash recovery on worker start).
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// ErrorKind classifies a processing failure so retry eligibility is a pure
// function of the recorded kind rather than call-site logic.
type ErrorKind string

const (
	// ErrorKindNone means the image has not failed.
	ErrorKindNone ErrorKind = ""
	// ErrorKindTransient covers failures expected to recover on their own
	// (detection service unreachable, timeouts).
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent covers failures that re-running will not fix
	// (unreadable or corrupt images).
	ErrorKindPermanent ErrorKind = "permanent"
)

// ImageRecord tracks the face recognition processing state of one image.
// There is exactly one record per image known to the corpus.
type ImageRecord struct {
	ImageID      string    `json:"image_id"`
	Status       Status    `json:"status"`
	RetryCount   int       `json:"retry_count"`
	LastError    string    `json:"last_error,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// FaceRecord is one detected face. Faces are never deleted; unwanted faces
// are soft-hidden via HideFace instead.
type FaceRecord struct {
	FaceID    string    `json:"face_id"`
	ImageID   string    `json:"image_id"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in raw pixel coordinates
	Embedding []float32 `json:"embedding,omitempty"`
	RonInFace bool      `json:"ron_in_face"`
	HideFace  bool      `json:"hide_face"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusCounts is the per-status breakdown of image records.
type StatusCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// Total returns the number of images known to the store.
func (c StatusCounts) Total() int {
	return c.Pending + c.InProgress + c.Done + c.Failed
}

// Processed returns the number of images that reached a terminal state.
func (c StatusCounts) Processed() int {
	return c.Done + c.Failed
}

// FaceFlags carries a partial update of the user-curated face flags.
// Nil fields are left unchanged.
type FaceFlags struct {
	RonInFace *bool `json:"ron_in_face,omitempty"`
	HideFace  *bool `json:"hide_face,omitempty"`
}
