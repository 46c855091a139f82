package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-proposals/internal/billing"
	"github.com/noah-isme/backend-proposals/internal/pricing"
)

// Proposal status values.
const (
	ProposalDraft    = "draft"
	ProposalSent     = "sent"
	ProposalAccepted = "accepted"
)

// Proposal is a generated tiered offer for an estimate.
type Proposal struct {
	ID             pgtype.UUID
	TenantID       pgtype.UUID
	EstimateID     pgtype.UUID
	ClientID       pgtype.UUID
	Options        []pricing.Option
	Totals         []pricing.Total
	DepositConfig  *billing.DepositConfig
	DepositAmount  float64
	Status         string
	Provenance     string
	PaymentLinkURL string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProposalsRepo applies tenant scoping to proposal queries.
type ProposalsRepo struct {
	Pool *pgxpool.Pool
}

// CreateProposalParams carries the fields for a new proposal row.
type CreateProposalParams struct {
	EstimateID    string
	ClientID      string
	Options       []pricing.Option
	Totals        []pricing.Total
	DepositConfig *billing.DepositConfig
	DepositAmount float64
	Provenance    string
}

const proposalCols = `id, tenant_id, estimate_id, client_id, options, totals,
deposit_config, deposit_amount, status, provenance, payment_link_url, created_at, updated_at`

// Create inserts a draft proposal for the tenant in context.
func (r ProposalsRepo) Create(ctx context.Context, arg CreateProposalParams) (Proposal, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Proposal{}, err
	}
	eid, err := uuidValue(arg.EstimateID)
	if err != nil {
		return Proposal{}, ErrNotFound
	}
	cid, err := uuidValue(arg.ClientID)
	if err != nil {
		return Proposal{}, ErrNotFound
	}
	options, err := json.Marshal(arg.Options)
	if err != nil {
		return Proposal{}, err
	}
	totals, err := json.Marshal(arg.Totals)
	if err != nil {
		return Proposal{}, err
	}
	var deposit []byte
	if arg.DepositConfig != nil {
		if deposit, err = json.Marshal(arg.DepositConfig); err != nil {
			return Proposal{}, err
		}
	}
	const q = `
INSERT INTO proposals (tenant_id, estimate_id, client_id, options, totals,
	deposit_config, deposit_amount, status, provenance)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'draft', $8)
RETURNING ` + proposalCols
	row := r.Pool.QueryRow(ctx, q, tid, eid, cid, options, totals, deposit, arg.DepositAmount, arg.Provenance)
	return scanProposal(row)
}

// Get returns a single proposal by id for the tenant in context.
func (r ProposalsRepo) Get(ctx context.Context, id string) (Proposal, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Proposal{}, err
	}
	pid, err := uuidValue(id)
	if err != nil {
		return Proposal{}, ErrNotFound
	}
	const q = `
SELECT ` + proposalCols + `
FROM proposals
WHERE tenant_id = $1 AND id = $2`
	row := r.Pool.QueryRow(ctx, q, tid, pid)
	p, err := scanProposal(row)
	if err != nil {
		return Proposal{}, mapNoRows(err)
	}
	return p, nil
}

// LatestForEstimate returns the newest proposal generated from an estimate.
func (r ProposalsRepo) LatestForEstimate(ctx context.Context, estimateID string) (Proposal, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Proposal{}, err
	}
	eid, err := uuidValue(estimateID)
	if err != nil {
		return Proposal{}, ErrNotFound
	}
	const q = `
SELECT ` + proposalCols + `
FROM proposals
WHERE tenant_id = $1 AND estimate_id = $2
ORDER BY created_at DESC
LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, tid, eid)
	p, err := scanProposal(row)
	if err != nil {
		return Proposal{}, mapNoRows(err)
	}
	return p, nil
}

// LatestForClient returns the newest proposal for a client regardless of
// estimate. Used to recycle a prior structure into a fresh quote.
func (r ProposalsRepo) LatestForClient(ctx context.Context, clientID string) (Proposal, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Proposal{}, err
	}
	cid, err := uuidValue(clientID)
	if err != nil {
		return Proposal{}, ErrNotFound
	}
	const q = `
SELECT ` + proposalCols + `
FROM proposals
WHERE tenant_id = $1 AND client_id = $2
ORDER BY created_at DESC
LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, tid, cid)
	p, err := scanProposal(row)
	if err != nil {
		return Proposal{}, mapNoRows(err)
	}
	return p, nil
}

// List returns proposals for the tenant in context, newest first.
func (r ProposalsRepo) List(ctx context.Context, limit, offset int32) ([]Proposal, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT ` + proposalCols + `
FROM proposals
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.Pool.Query(ctx, q, tid, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateDeposit stores a recomputed deposit amount and the config it came from.
func (r ProposalsRepo) UpdateDeposit(ctx context.Context, id string, amount float64, cfg *billing.DepositConfig) (Proposal, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Proposal{}, err
	}
	pid, err := uuidValue(id)
	if err != nil {
		return Proposal{}, ErrNotFound
	}
	var deposit []byte
	if cfg != nil {
		if deposit, err = json.Marshal(cfg); err != nil {
			return Proposal{}, err
		}
	}
	const q = `
UPDATE proposals
SET deposit_amount = $3, deposit_config = $4, updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING ` + proposalCols
	row := r.Pool.QueryRow(ctx, q, tid, pid, amount, deposit)
	p, err := scanProposal(row)
	if err != nil {
		return Proposal{}, mapNoRows(err)
	}
	return p, nil
}

// MarkSent transitions a draft proposal to sent and records the payment link.
func (r ProposalsRepo) MarkSent(ctx context.Context, id, paymentLinkURL string) (Proposal, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Proposal{}, err
	}
	pid, err := uuidValue(id)
	if err != nil {
		return Proposal{}, ErrNotFound
	}
	const q = `
UPDATE proposals
SET status = 'sent', payment_link_url = $3, updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING ` + proposalCols
	row := r.Pool.QueryRow(ctx, q, tid, pid, paymentLinkURL)
	p, err := scanProposal(row)
	if err != nil {
		return Proposal{}, mapNoRows(err)
	}
	return p, nil
}

// MarkAccepted transitions a proposal to accepted. Called from the payment
// webhook once the deposit settles.
func (r ProposalsRepo) MarkAccepted(ctx context.Context, id string) (Proposal, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Proposal{}, err
	}
	pid, err := uuidValue(id)
	if err != nil {
		return Proposal{}, ErrNotFound
	}
	const q = `
UPDATE proposals
SET status = 'accepted', updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING ` + proposalCols
	row := r.Pool.QueryRow(ctx, q, tid, pid)
	p, err := scanProposal(row)
	if err != nil {
		return Proposal{}, mapNoRows(err)
	}
	return p, nil
}

func scanProposal(row rowScanner) (Proposal, error) {
	var (
		p          Proposal
		optionsRaw []byte
		totalsRaw  []byte
		depositRaw []byte
		linkURL    *string
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.EstimateID, &p.ClientID, &optionsRaw, &totalsRaw,
		&depositRaw, &p.DepositAmount, &p.Status, &p.Provenance, &linkURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Proposal{}, err
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &p.Options); err != nil {
			return Proposal{}, err
		}
	}
	if len(totalsRaw) > 0 {
		if err := json.Unmarshal(totalsRaw, &p.Totals); err != nil {
			return Proposal{}, err
		}
	}
	if len(depositRaw) > 0 {
		var cfg billing.DepositConfig
		if err := json.Unmarshal(depositRaw, &cfg); err != nil {
			return Proposal{}, err
		}
		p.DepositConfig = &cfg
	}
	if linkURL != nil {
		p.PaymentLinkURL = *linkURL
	}
	return p, nil
}
