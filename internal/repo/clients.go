package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Client is a customer of a contractor workspace.
type Client struct {
	ID        pgtype.UUID
	TenantID  pgtype.UUID
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// ClientsRepo applies tenant scoping to client queries.
type ClientsRepo struct {
	Pool *pgxpool.Pool
}

// CreateClientParams carries the fields for a new client row.
type CreateClientParams struct {
	Name  string
	Email string
	Phone string
}

// Create inserts a client for the tenant in context.
func (r ClientsRepo) Create(ctx context.Context, arg CreateClientParams) (Client, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Client{}, err
	}
	const q = `
INSERT INTO clients (tenant_id, name, email, phone)
VALUES ($1, $2, $3, $4)
RETURNING id, tenant_id, name, email, phone, created_at`
	var c Client
	row := r.Pool.QueryRow(ctx, q, tid, arg.Name, arg.Email, arg.Phone)
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
		return Client{}, err
	}
	return c, nil
}

// Get returns a single client by id for the tenant in context.
func (r ClientsRepo) Get(ctx context.Context, id string) (Client, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return Client{}, err
	}
	cid, err := uuidValue(id)
	if err != nil {
		return Client{}, ErrNotFound
	}
	const q = `
SELECT id, tenant_id, name, email, phone, created_at
FROM clients
WHERE tenant_id = $1 AND id = $2`
	var c Client
	row := r.Pool.QueryRow(ctx, q, tid, cid)
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
		return Client{}, mapNoRows(err)
	}
	return c, nil
}

// List returns clients for the tenant in context, newest first.
func (r ClientsRepo) List(ctx context.Context, limit, offset int32) ([]Client, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, tenant_id, name, email, phone, created_at
FROM clients
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.Pool.Query(ctx, q, tid, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
