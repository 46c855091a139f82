package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposals/internal/events"
	"github.com/noah-isme/backend-proposals/internal/notify"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

type stubProposals struct {
	proposal repo.Proposal
	err      error
	accepted []string
}

func (s *stubProposals) Get(_ context.Context, _ string) (repo.Proposal, error) {
	return s.proposal, s.err
}

func (s *stubProposals) MarkAccepted(_ context.Context, id string) (repo.Proposal, error) {
	s.accepted = append(s.accepted, id)
	return s.proposal, nil
}

type stubPayments struct {
	created  *repo.CreatePaymentParams
	byRef    map[string]repo.Payment
	statuses map[string]string
}

func newStubPayments() *stubPayments {
	return &stubPayments{byRef: map[string]repo.Payment{}, statuses: map[string]string{}}
}

func (s *stubPayments) Create(_ context.Context, arg repo.CreatePaymentParams) (repo.Payment, error) {
	s.created = &arg
	return repo.Payment{
		ID:          pgUUID(),
		ExternalRef: arg.ExternalRef,
		Amount:      arg.Amount,
		FeePercent:  arg.FeePercent,
		Status:      repo.PaymentPending,
		CheckoutURL: arg.CheckoutURL,
	}, nil
}

func (s *stubPayments) GetByExternalRef(_ context.Context, _, ref string) (repo.Payment, error) {
	p, ok := s.byRef[ref]
	if !ok {
		return repo.Payment{}, repo.ErrNotFound
	}
	return p, nil
}

func (s *stubPayments) UpdateStatus(_ context.Context, id pgtype.UUID, status string) (repo.Payment, error) {
	key := repo.UUIDString(id)
	if s.statuses[key] != "" && s.statuses[key] != repo.PaymentPending {
		return repo.Payment{}, repo.ErrNotFound
	}
	s.statuses[key] = status
	for ref, p := range s.byRef {
		if p.ID == id {
			p.Status = status
			s.byRef[ref] = p
			return p, nil
		}
	}
	return repo.Payment{ID: id, Status: status}, nil
}

type stubTenantRepo struct {
	tn repo.Tenant
}

func (s stubTenantRepo) Current(_ context.Context) (repo.Tenant, error) {
	return s.tn, nil
}

func pgUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func TestCreateCheckoutRecordsPayment(t *testing.T) {
	payments := newStubPayments()
	svc := &Service{
		Provider:  Stripe{WebhookSecret: "whsec"},
		Payments:  payments,
		Proposals: &stubProposals{proposal: repo.Proposal{ID: pgUUID(), DepositAmount: 300}},
		Tenants:   stubTenantRepo{tn: repo.Tenant{SubscriptionTier: "launch", Addons: map[string]any{}}},
		Currency:  "usd",
	}

	checkout, err := svc.CreateCheckout(context.Background(), "prop-1", false)
	require.NoError(t, err)
	require.Equal(t, 300.0, checkout.Payment.Amount)
	require.Equal(t, 3.0, checkout.Payment.FeePercent)
	require.NotEmpty(t, checkout.Session.URL)
	require.Equal(t, "stripe", payments.created.Provider)
}

func TestCreateCheckoutRejectsZeroDeposit(t *testing.T) {
	svc := &Service{
		Provider:  Stripe{},
		Payments:  newStubPayments(),
		Proposals: &stubProposals{proposal: repo.Proposal{DepositAmount: 0}},
	}
	_, err := svc.CreateCheckout(context.Background(), "prop-1", false)
	require.Error(t, err)
}

func TestFeePercentFinancingBoost(t *testing.T) {
	svc := &Service{
		Tenants: stubTenantRepo{tn: repo.Tenant{
			SubscriptionTier: "launch",
			Addons:           map[string]any{"financing_boost": true},
		}},
	}
	require.Equal(t, 0.5, svc.FeePercent(context.Background(), false))
	require.Equal(t, 0.0, svc.FeePercent(context.Background(), true))
}

func paidWebhook(t *testing.T, secret, ref string) (*http.Request, []byte) {
	t.Helper()
	body := []byte(`{"type":"checkout.session.completed","data":{"object":{"client_reference_id":"` + ref + `","amount_total":30000,"payment_status":"paid"}}}`)
	return webhookRequest(secret, body), body
}

func TestHandleWebhookSettlesPayment(t *testing.T) {
	payments := newStubPayments()
	pay := repo.Payment{ID: pgUUID(), TenantID: pgUUID(), ProposalID: pgUUID(), Status: repo.PaymentPending}
	payments.byRef["ref-1"] = pay

	proposals := &stubProposals{proposal: repo.Proposal{ID: pay.ProposalID}}
	svc := &Service{
		Provider:  Stripe{WebhookSecret: "whsec"},
		Payments:  payments,
		Proposals: proposals,
	}

	r, body := paidWebhook(t, "whsec", "ref-1")
	require.NoError(t, svc.HandleWebhook(context.Background(), r, body))
	require.Equal(t, repo.PaymentPaid, payments.byRef["ref-1"].Status)
	require.Equal(t, []string{repo.UUIDString(pay.ProposalID)}, proposals.accepted)

	// replay is a no-op
	r, body = paidWebhook(t, "whsec", "ref-1")
	require.NoError(t, svc.HandleWebhook(context.Background(), r, body))
	require.Len(t, proposals.accepted, 1)
}

type captureStore struct {
	events []repo.DomainEvent
}

func (s *captureStore) InsertDomainEvent(_ context.Context, arg repo.InsertDomainEventParams) (repo.DomainEvent, error) {
	ev := repo.DomainEvent{ID: pgUUID(), Topic: arg.Topic, AggregateID: arg.AggregateID, Payload: arg.Payload}
	s.events = append(s.events, ev)
	return ev, nil
}

type captureEnqueuer struct {
	tasks []*asynq.Task
}

func (e *captureEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type stubClientLookup struct {
	client repo.Client
}

func (s stubClientLookup) Get(_ context.Context, _ string) (repo.Client, error) {
	return s.client, nil
}

func TestHandleWebhookEventsResolveEmailRecipient(t *testing.T) {
	payments := newStubPayments()
	pay := repo.Payment{ID: pgUUID(), TenantID: pgUUID(), ProposalID: pgUUID(), Status: repo.PaymentPending, Amount: 300}
	payments.byRef["ref-1"] = pay

	clientID := pgUUID()
	proposals := &stubProposals{proposal: repo.Proposal{ID: pay.ProposalID, ClientID: clientID}}

	store := &captureStore{}
	queue := &captureEnqueuer{}
	notifier := notify.EmailNotifier{
		Tasks:   queue,
		Clients: stubClientLookup{client: repo.Client{ID: clientID, Email: "client@example.com"}},
		Enabled: true,
	}
	svc := &Service{
		Provider:  Stripe{WebhookSecret: "whsec"},
		Payments:  payments,
		Proposals: proposals,
		Bus:       &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}},
	}

	r, body := paidWebhook(t, "whsec", "ref-1")
	require.NoError(t, svc.HandleWebhook(context.Background(), r, body))

	topics := make([]string, 0, len(store.events))
	for _, ev := range store.events {
		topics = append(topics, ev.Topic)
	}
	require.Equal(t, []string{events.TopicProposalAccepted, events.TopicDepositPaid}, topics)

	require.Len(t, queue.tasks, 1)
	require.Equal(t, notify.TaskEmailDepositPaid, queue.tasks[0].Type())
	var task notify.EmailTask
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &task))
	require.Equal(t, "client@example.com", task.To)
}

func TestHandleWebhookFailurePayloadCarriesClient(t *testing.T) {
	payments := newStubPayments()
	pay := repo.Payment{ID: pgUUID(), TenantID: pgUUID(), ProposalID: pgUUID(), Status: repo.PaymentPending}
	payments.byRef["ref-1"] = pay

	clientID := pgUUID()
	proposals := &stubProposals{proposal: repo.Proposal{ID: pay.ProposalID, ClientID: clientID}}

	store := &captureStore{}
	svc := &Service{
		Provider:  Stripe{WebhookSecret: "whsec"},
		Payments:  payments,
		Proposals: proposals,
		Bus:       &events.Bus{Store: store},
	}

	body := []byte(`{"type":"checkout.session.expired","data":{"object":{"client_reference_id":"ref-1","amount_total":30000,"payment_status":"unpaid"}}}`)
	require.NoError(t, svc.HandleWebhook(context.Background(), webhookRequest("whsec", body), body))

	require.Len(t, store.events, 1)
	require.Equal(t, events.TopicPaymentFailed, store.events[0].Topic)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(store.events[0].Payload, &payload))
	require.Equal(t, repo.UUIDString(clientID), payload["clientId"])
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc := &Service{
		Provider: Stripe{WebhookSecret: "whsec"},
		Payments: newStubPayments(),
	}
	r, body := paidWebhook(t, "wrong", "ref-1")
	require.Error(t, svc.HandleWebhook(context.Background(), r, body))
}

func TestHandleWebhookUnknownReference(t *testing.T) {
	svc := &Service{
		Provider: Stripe{WebhookSecret: "whsec"},
		Payments: newStubPayments(),
	}
	r, body := paidWebhook(t, "whsec", "missing")
	require.Error(t, svc.HandleWebhook(context.Background(), r, body))
}
