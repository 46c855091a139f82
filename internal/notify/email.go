package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-proposals/internal/events"
	"github.com/noah-isme/backend-proposals/internal/obs"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

// TaskEnqueuer abstracts the asynq client for tests.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ClientResolver looks up the client a notification addresses.
type ClientResolver interface {
	Get(ctx context.Context, id string) (repo.Client, error)
}

// EmailNotifier queues transactional email for selected topics. Delivery
// happens in the worker; the API only enqueues.
type EmailNotifier struct {
	Tasks        TaskEnqueuer
	Clients      ClientResolver
	Enabled      bool
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(ctx context.Context, event repo.DomainEvent) error {
	if !n.Enabled || n.Tasks == nil {
		return nil
	}
	kind := taskTypeFor(event.Topic)
	if kind == "" {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := n.recipient(ctx, payload)
	if to == "" {
		return nil
	}
	task, err := NewEmailTask(kind, EmailTask{
		To:      to,
		Subject: subjectFor(event.Topic),
		HTML:    bodyFor(event.Topic, payload, event.OccurredAt),
	})
	if err != nil {
		return err
	}
	if _, err := n.Tasks.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("email notify: enqueue: %w", err)
	}
	obs.CountEmailEnqueued(kind)
	return nil
}

// recipient prefers an explicit email in the payload and falls back to the
// client record referenced by clientId.
func (n EmailNotifier) recipient(ctx context.Context, payload map[string]any) string {
	for _, key := range []string{"email", "recipient", "clientEmail"} {
		if val, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				return trimmed
			}
		}
	}
	if n.Clients == nil {
		return ""
	}
	clientID, _ := payload["clientId"].(string)
	if clientID == "" {
		return ""
	}
	client, err := n.Clients.Get(ctx, clientID)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(client.Email)
}

func taskTypeFor(topic string) string {
	switch topic {
	case events.TopicProposalSent:
		return TaskEmailProposalSent
	case events.TopicDepositPaid:
		return TaskEmailDepositPaid
	case events.TopicPaymentFailed:
		return TaskEmailPaymentFailed
	default:
		return ""
	}
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicProposalSent:
		return "Your proposal is ready"
	case events.TopicDepositPaid:
		return "Deposit received"
	case events.TopicPaymentFailed:
		return "Deposit payment failed"
	default:
		return fmt.Sprintf("Notification: %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	var b strings.Builder
	switch topic {
	case events.TopicProposalSent:
		b.WriteString("<p>Your proposal is ready to review.</p>")
	case events.TopicDepositPaid:
		b.WriteString("<p>Thank you, your deposit was received.</p>")
		if amount, ok := payload["amount"].(float64); ok {
			fmt.Fprintf(&b, "<p>Amount: %.2f</p>", amount)
		}
	case events.TopicPaymentFailed:
		b.WriteString("<p>Your deposit payment did not go through. Please try again.</p>")
	}
	if proposalID, ok := payload["proposalId"].(string); ok && proposalID != "" {
		fmt.Fprintf(&b, "<p>Proposal: %s</p>", proposalID)
	}
	fmt.Fprintf(&b, "<p>%s</p>", occurred.Format(time.RFC1123))
	return b.String()
}
