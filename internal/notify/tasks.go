package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-proposals/internal/common"
)

// Asynq task types for transactional email.
const (
	TaskEmailProposalSent  = "email:proposal_sent"
	TaskEmailDepositPaid   = "email:deposit_paid"
	TaskEmailPaymentFailed = "email:payment_failed"
)

// EmailTask is the payload carried by every email task type.
type EmailTask struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// NewEmailTask serialises an email task for the queue.
func NewEmailTask(kind string, payload EmailTask) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notify: encode email task: %w", err)
	}
	return asynq.NewTask(kind, data, asynq.MaxRetry(5)), nil
}

// EmailTaskHandler processes queued email tasks in the worker.
type EmailTaskHandler struct {
	Mail common.EmailSender
	Log  zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h EmailTaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if h.Mail == nil {
		return fmt.Errorf("notify: email sender not configured")
	}
	var payload EmailTask
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("notify: decode email task: %w", err)
	}
	if err := h.Mail.Send(ctx, payload.To, payload.Subject, payload.HTML); err != nil {
		h.Log.Error().Err(err).Str("task", task.Type()).Str("to", payload.To).Msg("email delivery failed")
		return err
	}
	h.Log.Info().Str("task", task.Type()).Str("to", payload.To).Msg("email delivered")
	return nil
}

// Mux returns an asynq mux with all email task types registered.
func (h EmailTaskHandler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskEmailProposalSent, h)
	mux.Handle(TaskEmailDepositPaid, h)
	mux.Handle(TaskEmailPaymentFailed, h)
	return mux
}
