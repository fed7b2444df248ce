// Package ocr is the boundary to the external optical character recognition
// engine, plus the image normalization done before an image is sent to it.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Media types the OCR engine is sent.
const (
	MediaPDF  = "application/pdf"
	MediaPNG  = "image/png"
	MediaJPEG = "image/jpeg"
	MediaTIFF = "image/tiff"
	MediaBMP  = "image/bmp"
)

// ErrEmptyText is returned when the engine recognized no text at all.
var ErrEmptyText = errors.New("ocr: no text recognized")

// Image is a document page or scan handed to the OCR engine.
type Image struct {
	Data      []byte
	MediaType string
}

// ImageToText recognizes the text in an image. Implementations must be safe
// for concurrent use.
type ImageToText interface {
	Text(ctx context.Context, img Image) (string, error)
}

// Func adapts a plain function to ImageToText.
type Func func(ctx context.Context, img Image) (string, error)

// Text implements ImageToText.
func (f Func) Text(ctx context.Context, img Image) (string, error) {
	return f(ctx, img)
}

// Unavailable fails every request. It is used when no engine is configured.
var Unavailable ImageToText = Func(func(context.Context, Image) (string, error) {
	return "", errors.New("ocr: no engine configured")
})

const maxResponseSize = 16 << 20

// Client calls an HTTP OCR service. The request body is the raw image with its
// media type as Content-Type; the response is {"text": "..."}.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client for the given endpoint URL.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type textResponse struct {
	Text string `json:"text"`
}

// Text implements ImageToText.
func (c *Client) Text(ctx context.Context, img Image) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(img.Data))
	if err != nil {
		return "", fmt.Errorf("ocr: build request: %w", err)
	}
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mediaType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ocr: engine returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out textResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return "", fmt.Errorf("ocr: decode response: %w", err)
	}
	return out.Text, nil
}
