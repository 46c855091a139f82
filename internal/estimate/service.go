package estimate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-proposals/internal/common"
	"github.com/noah-isme/backend-proposals/internal/pricing"
	"github.com/noah-isme/backend-proposals/internal/repo"
)

// Repo enumerates the persistence operations the service needs.
type Repo interface {
	Create(ctx context.Context, arg repo.CreateEstimateParams) (repo.Estimate, error)
	Get(ctx context.Context, id string) (repo.Estimate, error)
	List(ctx context.Context, limit, offset int32) ([]repo.Estimate, error)
	Update(ctx context.Context, id string, arg repo.UpdateEstimateParams) (repo.Estimate, error)
}

// ClientRepo resolves clients referenced by estimates.
type ClientRepo interface {
	Get(ctx context.Context, id string) (repo.Client, error)
}

// Service encapsulates QuickQuote estimate operations.
type Service struct {
	Repo     Repo
	Clients  ClientRepo
	MaxItems int
}

func (s *Service) maxItems() int {
	if s == nil || s.MaxItems <= 0 {
		return 200
	}
	return s.MaxItems
}

// Create validates and persists a new estimate. Line items pass through
// the pricing normalizer so stored values are already coerced.
func (s *Service) Create(ctx context.Context, clientID, title string, items []pricing.LineItem) (repo.Estimate, error) {
	if s == nil || s.Repo == nil {
		return repo.Estimate{}, errors.New("estimate service not configured")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return repo.Estimate{}, common.NewAppError("BAD_REQUEST", "title is required", http.StatusBadRequest, nil)
	}
	if len(items) == 0 {
		return repo.Estimate{}, common.NewAppError("BAD_REQUEST", "at least one line item is required", http.StatusBadRequest, nil)
	}
	if len(items) > s.maxItems() {
		return repo.Estimate{}, common.NewAppError("BAD_REQUEST", "too many line items", http.StatusBadRequest, nil)
	}
	if s.Clients != nil {
		if _, err := s.Clients.Get(ctx, clientID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return repo.Estimate{}, common.NewAppError("NOT_FOUND", "client not found", http.StatusNotFound, err)
			}
			return repo.Estimate{}, err
		}
	}
	created, err := s.Repo.Create(ctx, repo.CreateEstimateParams{
		ClientID:  clientID,
		Title:     title,
		LineItems: pricing.Normalize(items),
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Estimate{}, common.NewAppError("NOT_FOUND", "client not found", http.StatusNotFound, err)
		}
		return repo.Estimate{}, err
	}
	return created, nil
}

// Get loads one estimate.
func (s *Service) Get(ctx context.Context, id string) (repo.Estimate, error) {
	if s == nil || s.Repo == nil {
		return repo.Estimate{}, errors.New("estimate service not configured")
	}
	e, err := s.Repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Estimate{}, common.NewAppError("NOT_FOUND", "estimate not found", http.StatusNotFound, err)
		}
		return repo.Estimate{}, err
	}
	return e, nil
}

// List returns a page of estimates.
func (s *Service) List(ctx context.Context, page common.Page) ([]repo.Estimate, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("estimate service not configured")
	}
	return s.Repo.List(ctx, int32(page.Limit), int32(page.Offset))
}

// Update applies partial changes. A nil title keeps the stored title; a
// non-nil items slice replaces the stored line items after normalization.
func (s *Service) Update(ctx context.Context, id string, title *string, items []pricing.LineItem) (repo.Estimate, error) {
	if s == nil || s.Repo == nil {
		return repo.Estimate{}, errors.New("estimate service not configured")
	}
	if title != nil {
		trimmed := strings.TrimSpace(*title)
		if trimmed == "" {
			return repo.Estimate{}, common.NewAppError("BAD_REQUEST", "title cannot be empty", http.StatusBadRequest, nil)
		}
		title = &trimmed
	}
	arg := repo.UpdateEstimateParams{Title: title}
	if items != nil {
		if len(items) == 0 || len(items) > s.maxItems() {
			return repo.Estimate{}, common.NewAppError("BAD_REQUEST", "invalid line items", http.StatusBadRequest, nil)
		}
		arg.LineItems = pricing.Normalize(items)
	}
	updated, err := s.Repo.Update(ctx, id, arg)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.Estimate{}, common.NewAppError("NOT_FOUND", "estimate not found", http.StatusNotFound, err)
		}
		return repo.Estimate{}, err
	}
	return updated, nil
}
