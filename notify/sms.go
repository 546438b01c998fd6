package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SMS delivers the short form of a message through an HTTP SMS gateway.
type SMS struct {
	gatewayURL string
	apiKey     string
	to         []string
	client     *http.Client
}

// NewSMS creates an SMS channel posting to the given gateway.
func NewSMS(gatewayURL, apiKey string, to []string) *SMS {
	return &SMS{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		to:         to,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SMS) Name() string { return "sms" }

func (s *SMS) Send(ctx context.Context, _ Event, msg Message) error {
	payload, err := json.Marshal(map[string]any{
		"to":      s.to,
		"message": msg.Short,
	})
	if err != nil {
		return fmt.Errorf("failed to encode SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("SMS gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("SMS gateway returned status %d", resp.StatusCode)
	}
	return nil
}
