package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-proposals/internal/billing"
)

// Tenant is a contractor workspace row together with its billing state.
type Tenant struct {
	ID               pgtype.UUID
	Slug             string
	BusinessName     string
	SubscriptionTier string
	Addons           map[string]any
	DepositConfig    *billing.DepositConfig
	CreatedAt        time.Time
}

// TenantsRepo reads workspace rows scoped by the tenant in context.
type TenantsRepo struct {
	Pool *pgxpool.Pool
}

// Current loads the workspace row for the tenant in context.
func (r TenantsRepo) Current(ctx context.Context) (Tenant, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Tenant{}, err
	}
	const q = `
SELECT id, slug, business_name, subscription_tier, addons, deposit_config, created_at
FROM tenants
WHERE id = $1`
	var (
		t          Tenant
		addonsRaw  []byte
		depositRaw []byte
	)
	row := r.Pool.QueryRow(ctx, q, tid)
	if err := row.Scan(&t.ID, &t.Slug, &t.BusinessName, &t.SubscriptionTier, &addonsRaw, &depositRaw, &t.CreatedAt); err != nil {
		return Tenant{}, mapNoRows(err)
	}
	if len(addonsRaw) > 0 {
		_ = json.Unmarshal(addonsRaw, &t.Addons)
	}
	if t.Addons == nil {
		t.Addons = map[string]any{}
	}
	if len(depositRaw) > 0 {
		var cfg billing.DepositConfig
		if err := json.Unmarshal(depositRaw, &cfg); err == nil && cfg.Type != "" {
			t.DepositConfig = &cfg
		}
	}
	return t, nil
}

// IDBySlug resolves a workspace slug to its UUID. Used by the HTTP layer
// when the tenant arrives as a subdomain instead of an id.
func (r TenantsRepo) IDBySlug(ctx context.Context, slug string) (string, error) {
	const q = `SELECT id FROM tenants WHERE slug = $1`
	var id pgtype.UUID
	if err := r.Pool.QueryRow(ctx, q, slug).Scan(&id); err != nil {
		return "", mapNoRows(err)
	}
	return UUIDString(id), nil
}

// FeeContext derives the billing fee inputs for a payment in this workspace.
func (t Tenant) FeeContext(isFinanced bool) billing.FeeContext {
	return billing.FeeContext{
		Tier:       t.SubscriptionTier,
		Addons:     t.Addons,
		IsFinanced: isFinanced,
	}
}
