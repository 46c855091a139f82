package proposal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/noah-isme/backend-proposals/internal/billing"
	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/events"
	"github.com/noah-isme/backend-proposals/internal/lock"
	"github.com/noah-isme/backend-proposals/internal/obs"
	"github.com/noah-isme/backend-proposals/internal/pricing"
	"github.com/noah-isme/backend-proposals/internal/repo"
	"github.com/noah-isme/backend-proposals/internal/tenant"
)

// Provenance values reported by GenerateForEstimate.
const (
	ProvenanceExisting   = "existing"
	ProvenanceRecycled   = "recycled"
	ProvenanceQuickQuote = "quickquote"
)

// Repo enumerates the proposal persistence operations the service needs.
type Repo interface {
	Create(ctx context.Context, arg repo.CreateProposalParams) (repo.Proposal, error)
	Get(ctx context.Context, id string) (repo.Proposal, error)
	LatestForEstimate(ctx context.Context, estimateID string) (repo.Proposal, error)
	LatestForClient(ctx context.Context, clientID string) (repo.Proposal, error)
	UpdateDeposit(ctx context.Context, id string, amount float64, cfg *billing.DepositConfig) (repo.Proposal, error)
	MarkSent(ctx context.Context, id, paymentLinkURL string) (repo.Proposal, error)
}

// EstimateRepo resolves source estimates.
type EstimateRepo interface {
	Get(ctx context.Context, id string) (repo.Estimate, error)
}

// TenantRepo resolves the tenant's branding and deposit defaults.
type TenantRepo interface {
	Current(ctx context.Context) (repo.Tenant, error)
}

// Service encapsulates SmartProposal generation and lifecycle.
type Service struct {
	Repo      Repo
	Estimates EstimateRepo
	Tenants   TenantRepo
	Bus       *events.Bus
	Locker    lock.Locker
	LockTTL   time.Duration
	Cache     *Cache
}

// Result pairs a proposal with the provenance of this particular call.
type Result struct {
	Proposal   repo.Proposal
	Provenance string
}

// GenerateForEstimate produces (or returns) the proposal for an estimate.
// Generation is serialized per estimate with a Redis lock so concurrent
// requests observe "existing" instead of racing a duplicate insert.
func (s *Service) GenerateForEstimate(ctx context.Context, estimateID string) (Result, error) {
	if s == nil || s.Repo == nil {
		return Result{}, errors.New("proposal service not configured")
	}
	slug, _ := tenant.From(ctx)
	var result Result
	run := func(ctx context.Context) error {
		var err error
		result, err = s.generate(ctx, estimateID)
		return err
	}
	if s.Locker.R != nil {
		if err := s.Locker.WithLock(ctx, lock.GenerateKey(slug, estimateID), s.LockTTL, run); err != nil {
			return Result{}, err
		}
		return result, nil
	}
	if err := run(ctx); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (s *Service) generate(ctx context.Context, estimateID string) (Result, error) {
	prior, err := s.Repo.LatestForEstimate(ctx, estimateID)
	if err == nil {
		obs.CountProposalGenerated(ProvenanceExisting)
		return Result{Proposal: prior, Provenance: ProvenanceExisting}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return Result{}, err
	}

	est, err := s.Estimates.Get(ctx, estimateID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Result{}, common.NewAppError("NOT_FOUND", "estimate not found", http.StatusNotFound, err)
		}
		return Result{}, err
	}

	var tn repo.Tenant
	if s.Tenants != nil {
		if tn, err = s.Tenants.Current(ctx); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return Result{}, err
		}
	}

	options, totals, cfg, provenance, err := s.assemble(ctx, est, tn)
	if err != nil {
		return Result{}, err
	}

	deposit := billing.ComputeDeposit(options, cfg, billing.DepositParams{})
	obs.CountDepositComputed(depositType(deposit.Config))

	created, err := s.Repo.Create(ctx, repo.CreateProposalParams{
		EstimateID:    estimateID,
		ClientID:      repo.UUIDString(est.ClientID),
		Options:       options,
		Totals:        totals,
		DepositConfig: deposit.Config,
		DepositAmount: deposit.Amount,
		Provenance:    provenance,
	})
	if err != nil {
		return Result{}, err
	}

	obs.CountProposalGenerated(provenance)
	if s.Bus != nil {
		_, _ = s.Bus.Emit(ctx, events.TopicProposalGenerated, created.ID, map[string]any{
			"proposalId": repo.UUIDString(created.ID),
			"estimateId": estimateID,
			"provenance": provenance,
		})
	}
	return Result{Proposal: created, Provenance: provenance}, nil
}

// assemble decides between recycling a prior client proposal and fresh
// tiered generation, per the reuse policy.
func (s *Service) assemble(ctx context.Context, est repo.Estimate, tn repo.Tenant) ([]pricing.Option, []pricing.Total, *billing.DepositConfig, string, error) {
	clientID := repo.UUIDString(est.ClientID)
	priorClient, err := s.Repo.LatestForClient(ctx, clientID)
	if err == nil && len(priorClient.Options) > 0 {
		cfg := priorClient.DepositConfig
		if cfg == nil {
			def := billing.DefaultDepositConfig()
			cfg = &def
		}
		totals := make([]pricing.Total, 0, len(priorClient.Options))
		for _, opt := range priorClient.Options {
			totals = append(totals, pricing.Total{Name: opt.Name, Total: opt.Subtotal})
		}
		return priorClient.Options, totals, cfg, ProvenanceRecycled, nil
	}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, nil, nil, "", err
	}

	var branding *pricing.Branding
	if tn.BusinessName != "" {
		branding = &pricing.Branding{BusinessName: tn.BusinessName}
	}
	generated := pricing.Generate(est.LineItems, branding)
	cfg := tn.DepositConfig
	if cfg == nil {
		def := billing.DefaultDepositConfig()
		cfg = &def
	}
	return generated.Options, generated.Totals, cfg, ProvenanceQuickQuote, nil
}

// Get loads one proposal through the cache.
func (s *Service) Get(ctx context.Context, id string) (repo.Proposal, error) {
	if s == nil || s.Repo == nil {
		return repo.Proposal{}, errors.New("proposal service not configured")
	}
	slug, _ := tenant.From(ctx)
	key := Key(slug, id)
	var cached repo.Proposal
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}
	p, err := s.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Proposal{}, common.NewAppError("NOT_FOUND", "proposal not found", http.StatusNotFound, err)
		}
		return repo.Proposal{}, err
	}
	_ = s.Cache.SetJSON(ctx, key, p)
	return p, nil
}

// PreviewDeposit computes a deposit over a stored proposal without
// persisting anything.
func (s *Service) PreviewDeposit(ctx context.Context, id string, override *billing.DepositConfig, optionName string) (billing.Deposit, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return billing.Deposit{}, err
	}
	deposit := billing.ComputeDeposit(p.Options, p.DepositConfig, billing.DepositParams{
		Override:   override,
		OptionName: optionName,
	})
	obs.CountDepositComputed(depositType(deposit.Config))
	return deposit, nil
}

// SetDeposit persists a recomputed deposit for a proposal.
func (s *Service) SetDeposit(ctx context.Context, id string, cfg *billing.DepositConfig, optionName string) (repo.Proposal, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return repo.Proposal{}, err
	}
	deposit := billing.ComputeDeposit(p.Options, p.DepositConfig, billing.DepositParams{
		Override:   cfg,
		OptionName: optionName,
	})
	updated, err := s.Repo.UpdateDeposit(ctx, id, deposit.Amount, deposit.Config)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Proposal{}, common.NewAppError("NOT_FOUND", "proposal not found", http.StatusNotFound, err)
		}
		return repo.Proposal{}, err
	}
	obs.CountDepositComputed(depositType(deposit.Config))
	slug, _ := tenant.From(ctx)
	s.Cache.Invalidate(ctx, Key(slug, id))
	return updated, nil
}

// Send marks a draft proposal as sent and emits the event downstream
// email delivery listens for. Sending an already-sent proposal is a no-op.
func (s *Service) Send(ctx context.Context, id string) (repo.Proposal, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return repo.Proposal{}, err
	}
	switch p.Status {
	case repo.ProposalSent:
		return p, nil
	case repo.ProposalAccepted:
		return repo.Proposal{}, common.NewAppError("CONFLICT", "proposal already accepted", http.StatusConflict, nil)
	}
	sent, err := s.Repo.MarkSent(ctx, id, p.PaymentLinkURL)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Proposal{}, common.NewAppError("NOT_FOUND", "proposal not found", http.StatusNotFound, err)
		}
		return repo.Proposal{}, err
	}
	slug, _ := tenant.From(ctx)
	s.Cache.Invalidate(ctx, Key(slug, id))
	if s.Bus != nil {
		_, _ = s.Bus.Emit(ctx, events.TopicProposalSent, sent.ID, map[string]any{
			"proposalId": repo.UUIDString(sent.ID),
			"clientId":   repo.UUIDString(sent.ClientID),
		})
	}
	return sent, nil
}

func depositType(cfg *billing.DepositConfig) string {
	if cfg == nil {
		return ""
	}
	return string(cfg.Type)
}
