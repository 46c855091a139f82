package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Payment status values.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Payment tracks one deposit checkout against a proposal.
type Payment struct {
	ID          pgtype.UUID
	TenantID    pgtype.UUID
	ProposalID  pgtype.UUID
	Provider    string
	ExternalRef string
	Amount      float64
	FeePercent  float64
	Status      string
	CheckoutURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentsRepo applies tenant scoping to payment queries.
type PaymentsRepo struct {
	Pool *pgxpool.Pool
}

// CreatePaymentParams carries the fields for a new payment row.
type CreatePaymentParams struct {
	ProposalID  string
	Provider    string
	ExternalRef string
	Amount      float64
	FeePercent  float64
	CheckoutURL string
}

const paymentCols = `id, tenant_id, proposal_id, provider, external_ref,
amount, fee_percent, status, checkout_url, created_at, updated_at`

// Create inserts a pending payment for the tenant in context.
func (r PaymentsRepo) Create(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Payment{}, err
	}
	pid, err := uuidValue(arg.ProposalID)
	if err != nil {
		return Payment{}, ErrNotFound
	}
	const q = `
INSERT INTO payments (tenant_id, proposal_id, provider, external_ref, amount, fee_percent, status, checkout_url)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
RETURNING ` + paymentCols
	row := r.Pool.QueryRow(ctx, q, tid, pid, arg.Provider, arg.ExternalRef, arg.Amount, arg.FeePercent, arg.CheckoutURL)
	return scanPayment(row)
}

// GetByExternalRef resolves a payment from the provider's reference. Webhooks
// arrive without tenant context, so this query is keyed on provider + ref.
func (r PaymentsRepo) GetByExternalRef(ctx context.Context, provider, ref string) (Payment, error) {
	const q = `
SELECT ` + paymentCols + `
FROM payments
WHERE provider = $1 AND external_ref = $2`
	row := r.Pool.QueryRow(ctx, q, provider, ref)
	p, err := scanPayment(row)
	if err != nil {
		return Payment{}, mapNoRows(err)
	}
	return p, nil
}

// ListForProposal returns payments against a proposal, newest first.
func (r PaymentsRepo) ListForProposal(ctx context.Context, proposalID string) ([]Payment, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	pid, err := uuidValue(proposalID)
	if err != nil {
		return nil, ErrNotFound
	}
	const q = `
SELECT ` + paymentCols + `
FROM payments
WHERE tenant_id = $1 AND proposal_id = $2
ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q, tid, pid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a payment. Status moves are monotonic: a paid
// payment never returns to pending, which keeps replayed webhooks harmless.
func (r PaymentsRepo) UpdateStatus(ctx context.Context, id pgtype.UUID, status string) (Payment, error) {
	const q = `
UPDATE payments
SET status = $2, updated_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING ` + paymentCols
	row := r.Pool.QueryRow(ctx, q, id, status)
	p, err := scanPayment(row)
	if err != nil {
		return Payment{}, mapNoRows(err)
	}
	return p, nil
}

func scanPayment(row rowScanner) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.ProposalID, &p.Provider, &p.ExternalRef,
		&p.Amount, &p.FeePercent, &p.Status, &p.CheckoutURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}
