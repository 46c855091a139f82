package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Stripe implements the Provider interface for Stripe Checkout style
// integrations.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Now           func() time.Time
}

// Name identifies the provider in payment rows and webhook routes.
func (s Stripe) Name() string { return "stripe" }

// CreateCheckout issues a minimal Checkout-like session without performing a
// network call. The real implementation should call the Stripe API, but for
// integration tests we synthesise a deterministic session to drive the rest
// of the flow.
func (s Stripe) CreateCheckout(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return CheckoutSession{}, errors.New("reference is required")
	}
	if req.Amount <= 0 {
		return CheckoutSession{}, errors.New("amount must be positive")
	}
	sessionID := fmt.Sprintf("cs_%s", req.Reference)
	expires := s.now().Add(time.Duration(req.ExpiresSec) * time.Second)
	return CheckoutSession{
		Provider:  s.Name(),
		SessionID: sessionID,
		URL:       fmt.Sprintf("%s/c/pay/%s", strings.TrimRight(s.host(), "/"), sessionID),
		ExpiresAt: expires.Unix(),
	}, nil
}

func (s Stripe) host() string {
	host := strings.TrimSpace(s.BaseURL)
	if host == "" {
		return "https://checkout.stripe.com"
	}
	return host
}

func (s Stripe) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// VerifyWebhook validates the Stripe-Signature header and normalises the
// payload into WebhookVerifyResult. The signature scheme is the documented
// "t=<unix>,v1=<hmac-sha256 of t.body>" format.
func (s Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	header := ""
	if r != nil {
		header = r.Header.Get("Stripe-Signature")
	}
	timestamp, provided, err := parseSignatureHeader(header)
	if err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	expected := s.computeSignature(timestamp, body)
	if expected == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var payload struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ClientReferenceID string `json:"client_reference_id"`
				AmountTotal       int64  `json:"amount_total"`
				PaymentStatus     string `json:"payment_status"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	if payload.Data.Object.ClientReferenceID == "" {
		return WebhookVerifyResult{Valid: false, Err: errors.New("missing client reference id")}, nil
	}

	return WebhookVerifyResult{
		Valid:           true,
		Reference:       payload.Data.Object.ClientReferenceID,
		Amount:          math.Round(float64(payload.Data.Object.AmountTotal)) / 100,
		Status:          normaliseStripeStatus(payload.Type, payload.Data.Object.PaymentStatus),
		ProviderPayload: body,
	}, nil
}

func (s Stripe) computeSignature(timestamp string, body []byte) string {
	secret := strings.TrimSpace(s.WebhookSecret)
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (timestamp, signature string, err error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", errors.New("missing signature header")
	}
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signature = kv[1]
		}
	}
	if timestamp == "" || signature == "" {
		return "", "", errors.New("malformed signature header")
	}
	if _, err := strconv.ParseInt(timestamp, 10, 64); err != nil {
		return "", "", errors.New("malformed signature timestamp")
	}
	return timestamp, signature, nil
}

func normaliseStripeStatus(eventType, paymentStatus string) string {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "checkout.session.completed":
		if strings.EqualFold(paymentStatus, "paid") {
			return StatusPaid
		}
		return StatusPending
	case "checkout.session.expired":
		return StatusExpired
	case "checkout.session.async_payment_failed", "payment_intent.payment_failed":
		return StatusFailed
	default:
		return StatusPending
	}
}
