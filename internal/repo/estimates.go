package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-proposals/internal/pricing"
)

// Estimate is a draft job record entered before proposal generation.
type Estimate struct {
	ID        pgtype.UUID
	TenantID  pgtype.UUID
	ClientID  pgtype.UUID
	Title     string
	LineItems []pricing.LineItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EstimatesRepo applies tenant scoping to estimate queries. Line items
// live in a jsonb column because their shape is owned by the pricing
// engine, not the schema.
type EstimatesRepo struct {
	Pool *pgxpool.Pool
}

// CreateEstimateParams carries the fields for a new estimate row.
type CreateEstimateParams struct {
	ClientID  string
	Title     string
	LineItems []pricing.LineItem
}

// Create inserts an estimate for the tenant in context.
func (r EstimatesRepo) Create(ctx context.Context, arg CreateEstimateParams) (Estimate, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Estimate{}, err
	}
	cid, err := uuidValue(arg.ClientID)
	if err != nil {
		return Estimate{}, ErrNotFound
	}
	items, err := json.Marshal(arg.LineItems)
	if err != nil {
		return Estimate{}, err
	}
	const q = `
INSERT INTO estimates (tenant_id, client_id, title, line_items)
VALUES ($1, $2, $3, $4)
RETURNING id, tenant_id, client_id, title, line_items, created_at, updated_at`
	row := r.Pool.QueryRow(ctx, q, tid, cid, arg.Title, items)
	return scanEstimate(row)
}

// Get returns a single estimate by id for the tenant in context.
func (r EstimatesRepo) Get(ctx context.Context, id string) (Estimate, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Estimate{}, err
	}
	eid, err := uuidValue(id)
	if err != nil {
		return Estimate{}, ErrNotFound
	}
	const q = `
SELECT id, tenant_id, client_id, title, line_items, created_at, updated_at
FROM estimates
WHERE tenant_id = $1 AND id = $2`
	row := r.Pool.QueryRow(ctx, q, tid, eid)
	e, err := scanEstimate(row)
	if err != nil {
		return Estimate{}, mapNoRows(err)
	}
	return e, nil
}

// List returns estimates for the tenant in context, newest first.
func (r EstimatesRepo) List(ctx context.Context, limit, offset int32) ([]Estimate, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, tenant_id, client_id, title, line_items, created_at, updated_at
FROM estimates
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.Pool.Query(ctx, q, tid, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Estimate
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEstimateParams carries partial updates. Nil fields keep the
// stored value.
type UpdateEstimateParams struct {
	Title     *string
	LineItems []pricing.LineItem
}

// Update applies partial changes to an estimate.
func (r EstimatesRepo) Update(ctx context.Context, id string, arg UpdateEstimateParams) (Estimate, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Estimate{}, err
	}
	eid, err := uuidValue(id)
	if err != nil {
		return Estimate{}, ErrNotFound
	}
	var itemsRaw []byte
	if arg.LineItems != nil {
		if itemsRaw, err = json.Marshal(arg.LineItems); err != nil {
			return Estimate{}, err
		}
	}
	const q = `
UPDATE estimates
SET title = COALESCE($3, title),
    line_items = COALESCE($4, line_items),
    updated_at = now()
WHERE tenant_id = $1 AND id = $2
RETURNING id, tenant_id, client_id, title, line_items, created_at, updated_at`
	row := r.Pool.QueryRow(ctx, q, tid, eid, arg.Title, itemsRaw)
	e, err := scanEstimate(row)
	if err != nil {
		return Estimate{}, mapNoRows(err)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEstimate(row rowScanner) (Estimate, error) {
	var (
		e        Estimate
		itemsRaw []byte
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.ClientID, &e.Title, &itemsRaw, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Estimate{}, err
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &e.LineItems); err != nil {
			return Estimate{}, err
		}
	}
	return e, nil
}
