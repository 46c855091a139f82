package proposal

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposals/internal/billing"
	"github.com/noah-isme/backend-proposals/internal/pricing"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

type stubRepo struct {
	byEstimate map[string]repo.Proposal
	byClient   map[string]repo.Proposal
	created    *repo.CreateProposalParams
	sent       string
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		byEstimate: map[string]repo.Proposal{},
		byClient:   map[string]repo.Proposal{},
	}
}

func (s *stubRepo) Create(_ context.Context, arg repo.CreateProposalParams) (repo.Proposal, error) {
	s.created = &arg
	return repo.Proposal{
		ID:            pgUUID(),
		Options:       arg.Options,
		Totals:        arg.Totals,
		DepositConfig: arg.DepositConfig,
		DepositAmount: arg.DepositAmount,
		Status:        repo.ProposalDraft,
		Provenance:    arg.Provenance,
	}, nil
}

func (s *stubRepo) Get(_ context.Context, id string) (repo.Proposal, error) {
	if p, ok := s.byEstimate[id]; ok {
		return p, nil
	}
	return repo.Proposal{}, repo.ErrNotFound
}

func (s *stubRepo) LatestForEstimate(_ context.Context, estimateID string) (repo.Proposal, error) {
	if p, ok := s.byEstimate[estimateID]; ok {
		return p, nil
	}
	return repo.Proposal{}, repo.ErrNotFound
}

func (s *stubRepo) LatestForClient(_ context.Context, clientID string) (repo.Proposal, error) {
	if p, ok := s.byClient[clientID]; ok {
		return p, nil
	}
	return repo.Proposal{}, repo.ErrNotFound
}

func (s *stubRepo) UpdateDeposit(_ context.Context, id string, amount float64, cfg *billing.DepositConfig) (repo.Proposal, error) {
	p, ok := s.byEstimate[id]
	if !ok {
		return repo.Proposal{}, repo.ErrNotFound
	}
	p.DepositAmount = amount
	p.DepositConfig = cfg
	return p, nil
}

func (s *stubRepo) MarkSent(_ context.Context, id, link string) (repo.Proposal, error) {
	p, ok := s.byEstimate[id]
	if !ok {
		return repo.Proposal{}, repo.ErrNotFound
	}
	s.sent = id
	p.Status = repo.ProposalSent
	p.PaymentLinkURL = link
	return p, nil
}

type stubEstimates struct {
	est repo.Estimate
	err error
}

func (s stubEstimates) Get(_ context.Context, _ string) (repo.Estimate, error) {
	return s.est, s.err
}

type stubTenants struct {
	tn repo.Tenant
}

func (s stubTenants) Current(_ context.Context) (repo.Tenant, error) {
	return s.tn, nil
}

func pgUUID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func fixtureEstimate() repo.Estimate {
	return repo.Estimate{
		ID:       pgUUID(),
		ClientID: pgUUID(),
		Title:    "Deck build",
		LineItems: []pricing.LineItem{
			{Description: "Lumber", Quantity: 2, UnitPrice: 100},
		},
	}
}

func TestGenerateQuickQuote(t *testing.T) {
	store := newStubRepo()
	svc := &Service{
		Repo:      store,
		Estimates: stubEstimates{est: fixtureEstimate()},
		Tenants:   stubTenants{tn: repo.Tenant{BusinessName: "Acme"}},
	}

	result, err := svc.GenerateForEstimate(context.Background(), "est-1")
	require.NoError(t, err)
	require.Equal(t, ProvenanceQuickQuote, result.Provenance)
	require.Len(t, result.Proposal.Options, 3)
	require.Equal(t, "Acme's signature upgrade experience.", result.Proposal.Options[2].Summary)

	// default percentage config over the Better option: 200 * 30% = 60
	require.NotNil(t, result.Proposal.DepositConfig)
	require.Equal(t, billing.DepositPercentage, result.Proposal.DepositConfig.Type)
	require.Equal(t, 60.0, result.Proposal.DepositAmount)
}

func TestGenerateReturnsExisting(t *testing.T) {
	store := newStubRepo()
	existing := repo.Proposal{ID: pgUUID(), Provenance: ProvenanceQuickQuote, Status: repo.ProposalDraft}
	store.byEstimate["est-1"] = existing

	svc := &Service{Repo: store, Estimates: stubEstimates{est: fixtureEstimate()}, Tenants: stubTenants{}}
	result, err := svc.GenerateForEstimate(context.Background(), "est-1")
	require.NoError(t, err)
	require.Equal(t, ProvenanceExisting, result.Provenance)
	require.Equal(t, existing.ID, result.Proposal.ID)
	require.Nil(t, store.created)
}

func TestGenerateRecyclesPriorClientProposal(t *testing.T) {
	store := newStubRepo()
	est := fixtureEstimate()
	priorCfg := &billing.DepositConfig{Type: billing.DepositFixed, Value: 500}
	store.byClient[repo.UUIDString(est.ClientID)] = repo.Proposal{
		Options: []pricing.Option{
			{Name: "Custom", Subtotal: 999},
		},
		DepositConfig: priorCfg,
	}

	svc := &Service{Repo: store, Estimates: stubEstimates{est: est}, Tenants: stubTenants{}}
	result, err := svc.GenerateForEstimate(context.Background(), "est-2")
	require.NoError(t, err)
	require.Equal(t, ProvenanceRecycled, result.Provenance)
	require.Len(t, result.Proposal.Options, 1)
	require.Equal(t, "Custom", result.Proposal.Options[0].Name)
	require.Equal(t, billing.DepositFixed, result.Proposal.DepositConfig.Type)
	require.Equal(t, 500.0, result.Proposal.DepositAmount)
}

func TestGenerateRecycledWithoutConfigUsesDefault(t *testing.T) {
	store := newStubRepo()
	est := fixtureEstimate()
	store.byClient[repo.UUIDString(est.ClientID)] = repo.Proposal{
		Options: []pricing.Option{
			{Name: "Better", Subtotal: 1000},
		},
	}

	svc := &Service{Repo: store, Estimates: stubEstimates{est: est}, Tenants: stubTenants{}}
	result, err := svc.GenerateForEstimate(context.Background(), "est-3")
	require.NoError(t, err)
	require.Equal(t, ProvenanceRecycled, result.Provenance)
	require.Equal(t, billing.DepositPercentage, result.Proposal.DepositConfig.Type)
	require.Equal(t, 30.0, result.Proposal.DepositConfig.Value)
	require.Equal(t, 300.0, result.Proposal.DepositAmount)
}

func TestPreviewDepositOverride(t *testing.T) {
	store := newStubRepo()
	store.byEstimate["prop-1"] = repo.Proposal{
		Options: []pricing.Option{
			{Name: "Good", Subtotal: 850},
			{Name: "Better", Subtotal: 1000},
			{Name: "Best", Subtotal: 1200},
		},
		DepositConfig: &billing.DepositConfig{Type: billing.DepositPercentage, Value: 30},
	}

	svc := &Service{Repo: store}
	deposit, err := svc.PreviewDeposit(context.Background(), "prop-1",
		&billing.DepositConfig{Type: billing.DepositFixed, Value: 250}, "")
	require.NoError(t, err)
	require.Equal(t, 250.0, deposit.Amount)

	deposit, err = svc.PreviewDeposit(context.Background(), "prop-1", nil, "best")
	require.NoError(t, err)
	require.Equal(t, 360.0, deposit.Amount)
}

func TestSendIdempotentAndConflict(t *testing.T) {
	store := newStubRepo()
	store.byEstimate["prop-1"] = repo.Proposal{ID: pgUUID(), Status: repo.ProposalDraft}

	svc := &Service{Repo: store}
	sent, err := svc.Send(context.Background(), "prop-1")
	require.NoError(t, err)
	require.Equal(t, repo.ProposalSent, sent.Status)

	// already sent proposals short-circuit
	store.byEstimate["prop-1"] = sent
	again, err := svc.Send(context.Background(), "prop-1")
	require.NoError(t, err)
	require.Equal(t, repo.ProposalSent, again.Status)

	store.byEstimate["prop-2"] = repo.Proposal{ID: pgUUID(), Status: repo.ProposalAccepted}
	_, err = svc.Send(context.Background(), "prop-2")
	require.Error(t, err)
}
