package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-proposals/internal/billing"
	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/events"
	"github.com/noah-isme/backend-proposals/internal/obs"
	"github.com/noah-isme/backend-proposals/internal/repo"
	"github.com/noah-isme/backend-proposals/internal/tenant"
)

// ProposalsRepo enumerates the proposal operations the payment flow needs.
type ProposalsRepo interface {
	Get(ctx context.Context, id string) (repo.Proposal, error)
	MarkAccepted(ctx context.Context, id string) (repo.Proposal, error)
}

// PaymentsRepo enumerates payment persistence operations.
type PaymentsRepo interface {
	Create(ctx context.Context, arg repo.CreatePaymentParams) (repo.Payment, error)
	GetByExternalRef(ctx context.Context, provider, ref string) (repo.Payment, error)
	UpdateStatus(ctx context.Context, id pgtype.UUID, status string) (repo.Payment, error)
}

// TenantRepo resolves the workspace billing context.
type TenantRepo interface {
	Current(ctx context.Context) (repo.Tenant, error)
}

// Service drives deposit checkout creation and webhook settlement.
type Service struct {
	Provider    Provider
	Payments    PaymentsRepo
	Proposals   ProposalsRepo
	Tenants     TenantRepo
	Bus         *events.Bus
	Currency    string
	CheckoutTTL time.Duration
	SuccessURL  string
}

// Checkout pairs the stored payment row with the provider session.
type Checkout struct {
	Payment repo.Payment
	Session CheckoutSession
}

func (s *Service) ttlSeconds() int {
	if s == nil || s.CheckoutTTL <= 0 {
		return int((24 * time.Hour).Seconds())
	}
	return int(s.CheckoutTTL.Seconds())
}

// CreateCheckout opens a provider checkout for a proposal's deposit and
// records the pending payment.
func (s *Service) CreateCheckout(ctx context.Context, proposalID string, isFinanced bool) (Checkout, error) {
	if s == nil || s.Provider == nil || s.Payments == nil || s.Proposals == nil {
		return Checkout{}, errors.New("payment service not configured")
	}
	p, err := s.Proposals.Get(ctx, proposalID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Checkout{}, common.NewAppError("NOT_FOUND", "proposal not found", http.StatusNotFound, err)
		}
		return Checkout{}, err
	}
	if p.DepositAmount <= 0 {
		return Checkout{}, common.NewAppError("UNPROCESSABLE", "proposal has no deposit due", http.StatusUnprocessableEntity, nil)
	}

	fee := s.feePercent(ctx, isFinanced)

	reference := uuid.NewString()
	session, err := s.Provider.CreateCheckout(ctx, CheckoutRequest{
		Reference:   reference,
		Amount:      p.DepositAmount,
		Currency:    s.Currency,
		Description: fmt.Sprintf("Deposit for proposal %s", proposalID),
		ExpiresSec:  s.ttlSeconds(),
		SuccessURL:  s.SuccessURL,
	})
	if err != nil {
		return Checkout{}, err
	}

	created, err := s.Payments.Create(ctx, repo.CreatePaymentParams{
		ProposalID:  proposalID,
		Provider:    s.Provider.Name(),
		ExternalRef: reference,
		Amount:      p.DepositAmount,
		FeePercent:  fee,
		CheckoutURL: session.URL,
	})
	if err != nil {
		return Checkout{}, err
	}
	obs.CountCheckoutCreated()
	return Checkout{Payment: created, Session: session}, nil
}

// FeePercent reports the platform fee the caller's workspace would pay.
func (s *Service) FeePercent(ctx context.Context, isFinanced bool) float64 {
	return s.feePercent(ctx, isFinanced)
}

func (s *Service) feePercent(ctx context.Context, isFinanced bool) float64 {
	if s == nil || s.Tenants == nil {
		return billing.ComputeFeePercent(billing.FeeContext{IsFinanced: isFinanced})
	}
	tn, err := s.Tenants.Current(ctx)
	if err != nil {
		return billing.ComputeFeePercent(billing.FeeContext{IsFinanced: isFinanced})
	}
	return billing.ComputeFeePercent(tn.FeeContext(isFinanced))
}

// HandleWebhook verifies and settles a provider notification. Replayed
// notifications are harmless: the status update only moves pending rows.
func (s *Service) HandleWebhook(ctx context.Context, r *http.Request, body []byte) error {
	if s == nil || s.Provider == nil || s.Payments == nil {
		return errors.New("payment service not configured")
	}
	result, err := s.Provider.VerifyWebhook(r, body)
	if err != nil {
		return err
	}
	if !result.Valid {
		return common.NewAppError("BAD_REQUEST", "webhook verification failed", http.StatusBadRequest, result.Err)
	}

	pay, err := s.Payments.GetByExternalRef(ctx, s.Provider.Name(), result.Reference)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return common.NewAppError("NOT_FOUND", "unknown payment reference", http.StatusNotFound, err)
		}
		return err
	}

	// Webhooks carry no tenant header; scope follow-up queries from the row.
	ctx = tenant.With(ctx, repo.UUIDString(pay.TenantID))

	switch result.Status {
	case StatusPaid:
		updated, err := s.Payments.UpdateStatus(ctx, pay.ID, repo.PaymentPaid)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		var accepted repo.Proposal
		if s.Proposals != nil {
			accepted, err = s.Proposals.MarkAccepted(ctx, repo.UUIDString(updated.ProposalID))
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}
		}
		if s.Bus != nil {
			clientID := repo.UUIDString(accepted.ClientID)
			_, _ = s.Bus.Emit(ctx, events.TopicProposalAccepted, updated.ProposalID, map[string]any{
				"proposalId": repo.UUIDString(updated.ProposalID),
				"clientId":   clientID,
			})
			_, _ = s.Bus.Emit(ctx, events.TopicDepositPaid, updated.ProposalID, map[string]any{
				"proposalId": repo.UUIDString(updated.ProposalID),
				"paymentId":  repo.UUIDString(updated.ID),
				"clientId":   clientID,
				"amount":     updated.Amount,
			})
		}
	case StatusFailed, StatusExpired:
		updated, err := s.Payments.UpdateStatus(ctx, pay.ID, repo.PaymentFailed)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		if s.Bus != nil {
			var clientID string
			if s.Proposals != nil {
				if p, getErr := s.Proposals.Get(ctx, repo.UUIDString(updated.ProposalID)); getErr == nil {
					clientID = repo.UUIDString(p.ClientID)
				}
			}
			_, _ = s.Bus.Emit(ctx, events.TopicPaymentFailed, updated.ProposalID, map[string]any{
				"proposalId": repo.UUIDString(updated.ProposalID),
				"paymentId":  repo.UUIDString(updated.ID),
				"clientId":   clientID,
				"status":     result.Status,
			})
		}
	}
	return nil
}
