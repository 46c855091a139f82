package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ResendSender delivers email through a Resend-style HTTP API.
type ResendSender struct {
	APIKey  string
	BaseURL string
	From    string
	Client  *http.Client
}

// NewResendSender constructs a sender with an instrumented HTTP client.
func NewResendSender(apiKey, baseURL, from string, timeout time.Duration) *ResendSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ResendSender{
		APIKey:  apiKey,
		BaseURL: baseURL,
		From:    from,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send implements common.EmailSender.
func (s *ResendSender) Send(ctx context.Context, to, subject, html string) error {
	if s == nil || s.Client == nil {
		return errors.New("notify: email sender not configured")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("notify: recipient is required")
	}
	body, err := json.Marshal(resendPayload{
		From:    s.From,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(s.baseURL(), "/") + "/emails"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: email API returned %d", resp.StatusCode)
	}
	return nil
}

func (s *ResendSender) baseURL() string {
	if strings.TrimSpace(s.BaseURL) == "" {
		return "https://api.resend.com"
	}
	return s.BaseURL
}
