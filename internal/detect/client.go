// Package detect is the HTTP client for the external face detection and
// embedding service.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"
)

const recognizePath = "/face/insight-recognize"

// Insight is one detected face: its bounding box in raw pixel coordinates
// and the embedding vector.
type Insight struct {
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	Embedding []float32 `json:"embedding"`
}

type recognizeResponse struct {
	Insights []Insight `json:"insights"`
}

// Client calls the detection service. Every call carries a bounded timeout;
// a hung service must never hang the worker.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a detection client. The timeout bounds the full request,
// upload and response included.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Detect posts the image bytes to the detection service and returns all
// detected faces. An image with no faces returns an empty slice and no error.
func (c *Client) Detect(ctx context.Context, imageName string, data []byte) ([]Insight, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(imageName))))
	header.Set("Content-Type", http.DetectContentType(data))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("could not create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("could not write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+recognizePath, &body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &DetectionError{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	var parsed recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &DetectionError{
			Kind:       KindUnavailable,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response: %v", err),
		}
	}

	insights := parsed.Insights
	if insights == nil {
		insights = []Insight{}
	}
	return insights, nil
}

// classifyStatus maps HTTP status codes to failure kinds. Client errors mean
// the image itself was rejected; everything else is a service problem.
func classifyStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest,
		http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity:
		return KindBadInput
	default:
		return KindUnavailable
	}
}

func classifyTransportError(err error) *DetectionError {
	kind := KindUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = KindTimeout
	}
	return &DetectionError{Kind: kind, Message: err.Error()}
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
