package vendors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// Directory is the read contract the RFQ dispatch engine consumes.
type Directory interface {
	Get(ctx context.Context, id int64) (Vendor, error)
	ListActive(ctx context.Context, category string) ([]Vendor, error)
}

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	Directory
	List(ctx context.Context, filters ListFilters) ([]Vendor, int, error)
	Create(ctx context.Context, v Vendor) (int64, error)
	Update(ctx context.Context, v Vendor) error
}

// Service exposes vendor reads to handlers and the dispatch engine.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a vendor service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns one vendor.
func (s *Service) Get(ctx context.Context, id int64) (Vendor, error) {
	return s.repo.Get(ctx, id)
}

// ListActive returns active vendors for a category ("" for all).
func (s *Service) ListActive(ctx context.Context, category string) ([]Vendor, error) {
	return s.repo.ListActive(ctx, category)
}

// List returns vendors matching filters with the unpaged total.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Vendor, int, error) {
	return s.repo.List(ctx, filters)
}

// UpsertInput carries the writable vendor profile fields.
type UpsertInput struct {
	Name            string  `json:"name" validate:"required"`
	Category        string  `json:"category" validate:"required"`
	Rating          float64 `json:"rating" validate:"gte=0,lte=5"`
	CompletedOrders int     `json:"completed_orders" validate:"gte=0"`
	Active          bool    `json:"active"`
	KYCVerified     bool    `json:"kyc_verified"`
	Email           string  `json:"email" validate:"omitempty,email"`
	Phone           string  `json:"phone"`
}

func (s *Service) authorize(actor identity.Actor) error {
	if actor.Role != identity.RoleProcurementManager {
		return fmt.Errorf("vendor management requires role %s, actor %q holds %s: %w",
			identity.RoleProcurementManager, actor.Name, actor.Role, shared.ErrUnauthorized)
	}
	return nil
}

func (in UpsertInput) vendor() (Vendor, error) {
	v := Vendor{
		Name:            strings.TrimSpace(in.Name),
		Category:        strings.TrimSpace(in.Category),
		Rating:          in.Rating,
		CompletedOrders: in.CompletedOrders,
		Active:          in.Active,
		KYCVerified:     in.KYCVerified,
		Email:           strings.TrimSpace(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
	}
	if v.Name == "" {
		return Vendor{}, fmt.Errorf("vendor name is required: %w", shared.ErrValidation)
	}
	if v.Category == "" {
		return Vendor{}, fmt.Errorf("vendor category is required: %w", shared.ErrValidation)
	}
	if v.Rating < 0 || v.Rating > 5 {
		return Vendor{}, fmt.Errorf("vendor rating %.1f outside 0..5: %w", v.Rating, shared.ErrValidation)
	}
	if v.CompletedOrders < 0 {
		return Vendor{}, fmt.Errorf("completed orders must be non-negative: %w", shared.ErrValidation)
	}
	return v, nil
}

// Create registers a vendor in the directory.
func (s *Service) Create(ctx context.Context, input UpsertInput, actor identity.Actor) (Vendor, error) {
	if err := s.authorize(actor); err != nil {
		return Vendor{}, err
	}
	v, err := input.vendor()
	if err != nil {
		return Vendor{}, err
	}
	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now
	id, err := s.repo.Create(ctx, v)
	if err != nil {
		return Vendor{}, err
	}
	v.ID = id
	return v, nil
}

// Update replaces a vendor profile.
func (s *Service) Update(ctx context.Context, id int64, input UpsertInput, actor identity.Actor) (Vendor, error) {
	if err := s.authorize(actor); err != nil {
		return Vendor{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	v, err := input.vendor()
	if err != nil {
		return Vendor{}, err
	}
	v.ID = current.ID
	v.CreatedAt = current.CreatedAt
	v.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, v); err != nil {
		return Vendor{}, err
	}
	return v, nil
}
