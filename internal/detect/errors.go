package detect

import (
	"errors"
	"fmt"
)

// Kind classifies a detection failure for retry decisions.
type Kind string

const (
	// KindUnavailable means the service could not be reached or answered
	// with an unexpected error. Retrying later may succeed.
	KindUnavailable Kind = "unavailable"

	// KindBadInput means the service rejected the image itself. Retrying
	// with the same image will fail again.
	KindBadInput Kind = "bad_input"

	// KindTimeout means the call exceeded its deadline.
	KindTimeout Kind = "timeout"
)

// DetectionError is returned for any failed detection call.
type DetectionError struct {
	Kind       Kind
	StatusCode int // HTTP status, 0 when the request never completed
	Message    string
}

func (e *DetectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("detection failed (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("detection failed (%s): %s", e.Kind, e.Message)
}

// Permanent reports whether retrying the same image is pointless.
func (e *DetectionError) Permanent() bool {
	return e.Kind == KindBadInput
}

// AsDetectionError unwraps err into a DetectionError if possible.
func AsDetectionError(err error) (*DetectionError, bool) {
	var de *DetectionError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
