package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DomainEvent is one row of the append-only event log.
type DomainEvent struct {
	ID          pgtype.UUID
	TenantID    pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  time.Time
}

// InsertDomainEventParams carries the fields for a new event row.
type InsertDomainEventParams struct {
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
}

// EventsRepo persists domain events scoped to the tenant in context.
type EventsRepo struct {
	Pool *pgxpool.Pool
}

// InsertDomainEvent appends one event to the log.
func (r EventsRepo) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return DomainEvent{}, err
	}
	const q = `
INSERT INTO domain_events (tenant_id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4)
RETURNING id, tenant_id, topic, aggregate_id, payload, occurred_at`
	var ev DomainEvent
	row := r.Pool.QueryRow(ctx, q, tid, arg.Topic, arg.AggregateID, arg.Payload)
	if err := row.Scan(&ev.ID, &ev.TenantID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt); err != nil {
		return DomainEvent{}, err
	}
	return ev, nil
}

// ListForAggregate returns the event history for one aggregate, oldest first.
func (r EventsRepo) ListForAggregate(ctx context.Context, aggregateID pgtype.UUID) ([]DomainEvent, error) {
	tid, err := tenantUUIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT id, tenant_id, topic, aggregate_id, payload, occurred_at
FROM domain_events
WHERE tenant_id = $1 AND aggregate_id = $2
ORDER BY occurred_at ASC`
	rows, err := r.Pool.Query(ctx, q, tid, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DomainEvent
	for rows.Next() {
		var ev DomainEvent
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
