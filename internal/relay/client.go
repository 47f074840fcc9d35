// Package relay delivers confirmed bridge events to the destination API.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DeliveryError reports a failed relay call. StatusCode is zero when the
// request never reached the destination.
type DeliveryError struct {
	StatusCode int
	Message    string
}

func (e *DeliveryError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("delivery failed: %s", e.Message)
	}
	return fmt.Sprintf("delivery failed: status %d: %s", e.StatusCode, e.Message)
}

// Sender delivers one event payload per call.
type Sender interface {
	Deliver(ctx context.Context, payload Payload) error
}

// HTTPSender posts JSON payloads to a fixed destination endpoint.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender builds a sender for the destination endpoint.
func NewHTTPSender(endpoint string, timeout time.Duration) (*HTTPSender, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("destination endpoint required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Deliver posts the payload; any non-2xx response is a *DeliveryError.
// A 2xx response is success even if the destination reports the transfer
// as already processed.
func (s *HTTPSender) Deliver(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &DeliveryError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}
	return nil
}
