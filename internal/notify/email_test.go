package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposals/internal/events"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

type captureEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (c *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type stubClients struct {
	client repo.Client
	err    error
}

func (s stubClients) Get(_ context.Context, _ string) (repo.Client, error) {
	return s.client, s.err
}

func domainEvent(topic string, payload map[string]any) repo.DomainEvent {
	raw, _ := json.Marshal(payload)
	return repo.DomainEvent{Topic: topic, Payload: raw, OccurredAt: time.Now()}
}

func TestNotifyEnqueuesProposalSentEmail(t *testing.T) {
	queue := &captureEnqueuer{}
	notifier := EmailNotifier{
		Tasks:   queue,
		Clients: stubClients{client: repo.Client{Email: "client@example.com"}},
		Enabled: true,
	}

	ev := domainEvent(events.TopicProposalSent, map[string]any{
		"proposalId": "prop-1",
		"clientId":   "client-1",
	})
	require.NoError(t, notifier.Notify(context.Background(), ev))
	require.Len(t, queue.tasks, 1)
	require.Equal(t, TaskEmailProposalSent, queue.tasks[0].Type())

	var payload EmailTask
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	require.Equal(t, "client@example.com", payload.To)
	require.Equal(t, "Your proposal is ready", payload.Subject)
	require.Contains(t, payload.HTML, "prop-1")
}

func TestNotifySkipsUnmappedTopics(t *testing.T) {
	queue := &captureEnqueuer{}
	notifier := EmailNotifier{Tasks: queue, Enabled: true}

	ev := domainEvent(events.TopicProposalGenerated, map[string]any{"email": "client@example.com"})
	require.NoError(t, notifier.Notify(context.Background(), ev))
	require.Empty(t, queue.tasks)
}

func TestNotifyDisabled(t *testing.T) {
	queue := &captureEnqueuer{}
	notifier := EmailNotifier{Tasks: queue, Enabled: false}

	ev := domainEvent(events.TopicProposalSent, map[string]any{"email": "client@example.com"})
	require.NoError(t, notifier.Notify(context.Background(), ev))
	require.Empty(t, queue.tasks)
}

func TestNotifyWithoutRecipientIsNoop(t *testing.T) {
	queue := &captureEnqueuer{}
	notifier := EmailNotifier{Tasks: queue, Clients: stubClients{err: repo.ErrNotFound}, Enabled: true}

	ev := domainEvent(events.TopicDepositPaid, map[string]any{"clientId": "client-1"})
	require.NoError(t, notifier.Notify(context.Background(), ev))
	require.Empty(t, queue.tasks)
}

func TestNotifyTopicToggle(t *testing.T) {
	queue := &captureEnqueuer{}
	notifier := EmailNotifier{
		Tasks:        queue,
		Enabled:      true,
		TopicToggles: map[string]bool{events.TopicPaymentFailed: false},
	}

	ev := domainEvent(events.TopicPaymentFailed, map[string]any{"email": "client@example.com"})
	require.NoError(t, notifier.Notify(context.Background(), ev))
	require.Empty(t, queue.tasks)
}
