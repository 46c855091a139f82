package payment

import (
	"context"
	"net/http"
)

// CheckoutRequest captures the information required to open a deposit
// checkout with a provider.
type CheckoutRequest struct {
	Reference   string
	Amount      float64
	Currency    string
	Description string
	ExpiresSec  int
	SuccessURL  string
}

// CheckoutSession represents the minimal information returned by a provider
// when creating a checkout.
type CheckoutSession struct {
	Provider  string
	SessionID string
	URL       string
	ExpiresAt int64
}

// WebhookVerifyResult contains the normalised data extracted from a webhook
// notification after signature verification.
type WebhookVerifyResult struct {
	Valid           bool
	Reference       string
	Amount          float64
	Status          string
	ProviderPayload []byte
	Err             error
}

// Normalised webhook statuses.
const (
	StatusPaid    = "PAID"
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"
)

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}
