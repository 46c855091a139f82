package common

import "context"

// EmailSender defines the contract for sending transactional email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Email represents a single message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail is a test-friendly sender that records messages.
type InMemoryEmail struct {
	Outbox []Email
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(_ context.Context, to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(context.Context, string, string, string) error { return nil }
