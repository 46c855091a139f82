package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposals/internal/events"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

type stubStore struct {
	lastParams repo.InsertDomainEventParams
	event      repo.DomainEvent
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg repo.InsertDomainEventParams) (repo.DomainEvent, error) {
	s.lastParams = arg
	if !s.event.ID.Valid {
		id := uuid.New()
		s.event.ID = pgtype.UUID{Bytes: id, Valid: true}
	}
	s.event.Topic = arg.Topic
	s.event.AggregateID = arg.AggregateID
	s.event.Payload = arg.Payload
	if s.event.OccurredAt.IsZero() {
		s.event.OccurredAt = time.Now()
	}
	return s.event, nil
}

type captureNotifier struct {
	events []repo.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event repo.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func toUUID(u uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: u, Valid: true}
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.New()
	payload := map[string]any{"proposalId": "123"}
	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicProposalGenerated, toUUID(aggregate), payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicProposalGenerated, store.lastParams.Topic)
	require.JSONEq(t, `{"proposalId":"123"}`, string(store.lastParams.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["proposalId"])
}

func TestEmitRequiresTopicAndAggregate(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "  ", toUUID(uuid.New()), nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicProposalSent, pgtype.UUID{}, nil)
	require.Error(t, err)
}

func TestEmitNotifierFailureKeepsEvent(t *testing.T) {
	store := &stubStore{}
	failing := &captureNotifier{err: errors.New("smtp down")}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{failing}}

	event, err := bus.Emit(context.Background(), events.TopicDepositPaid, toUUID(uuid.New()), nil)
	require.Error(t, err)
	require.True(t, event.ID.Valid)
	require.JSONEq(t, `{}`, string(store.lastParams.Payload))
}
