// Package ner is the boundary to the external named-entity recognition
// model. The model is a black box: text in, ordered labeled spans out.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ehr/intake/internal/domain/clinical"
)

// TextToSpans runs entity recognition over a text. Implementations must be
// safe for concurrent use and return spans in the model's native order.
type TextToSpans interface {
	Spans(ctx context.Context, text string) ([]clinical.EntitySpan, error)
}

// Func adapts a plain function to TextToSpans.
type Func func(ctx context.Context, text string) ([]clinical.EntitySpan, error)

// Spans implements TextToSpans.
func (f Func) Spans(ctx context.Context, text string) ([]clinical.EntitySpan, error) {
	return f(ctx, text)
}

// Nop returns no entities. It is used when no model endpoint is configured.
var Nop TextToSpans = Func(func(context.Context, string) ([]clinical.EntitySpan, error) {
	return []clinical.EntitySpan{}, nil
})

// maxResponseSize caps the model response body.
const maxResponseSize = 16 << 20

// Client calls an HTTP entity-recognition service. The service accepts
// {"text": "..."} and answers {"entities": [{"text","label","start","end"}]}.
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

type spansRequest struct {
	Text string `json:"text"`
}

type spansResponse struct {
	Entities []clinical.EntitySpan `json:"entities"`
}

// Spans implements TextToSpans.
func (c *Client) Spans(ctx context.Context, text string) ([]clinical.EntitySpan, error) {
	body, err := json.Marshal(spansRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("ner: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner: POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ner: model returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out spansResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&out); err != nil {
		return nil, fmt.Errorf("ner: decode response: %w", err)
	}
	if out.Entities == nil {
		out.Entities = []clinical.EntitySpan{}
	}
	return out.Entities, nil
}
