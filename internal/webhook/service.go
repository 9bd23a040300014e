// Package webhook notifies an external system (door controller, access log)
// of kiosk outcomes with HMAC-signed JSON POSTs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	HeaderSignature = "X-Totem-Signature"
	HeaderEvent     = "X-Totem-Event"
)

// Sender delivers one payload to the configured endpoint.
type Sender struct {
	url    string
	secret string
	client *http.Client
}

func NewSender(url, secret string) *Sender {
	return &Sender{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send posts the payload. Any transport error or status >= 400 is returned so
// the worker can retry.
func (s *Sender) Send(ctx context.Context, eventType string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set("User-Agent", "Totem-Webhook/1.0")
	if s.secret != "" {
		req.Header.Set(HeaderSignature, Sign(s.secret, payload))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the "sha256=<hex>" HMAC of payload carried in HeaderSignature.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify is the receiver-side check of Sign.
func Verify(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(Sign(secret, payload)))
}
