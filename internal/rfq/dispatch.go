package rfq

import (
	"context"
	"fmt"
	"sort"

	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/vendors"
)

// Vendor selection strategies for dispatching an RFQ.
type StrategyKind string

const (
	StrategyManual        StrategyKind = "manual"
	StrategyByCategory    StrategyKind = "by_category"
	StrategyPreferredOnly StrategyKind = "preferred_only"
)

// Preferred-vendor cutoffs and ranking weights.
const (
	preferredMinRating = 4.0
	preferredMinOrders = 10
	preferredCap       = 5
)

// Strategy resolves the vendor set an RFQ is dispatched to. Strategies are
// mutually exclusive; the caller picks exactly one per RFQ.
type Strategy struct {
	Kind StrategyKind `json:"kind" validate:"required,oneof=manual by_category preferred_only"`
	// VendorIDs is consumed by the manual strategy only.
	VendorIDs []int64 `json:"vendor_ids,omitempty"`
}

// Resolve returns the invited vendors, never an empty set: resolution that
// finds nobody fails with NoEligibleVendors.
func (s Strategy) Resolve(ctx context.Context, dir vendors.Directory, category string) ([]vendors.Vendor, error) {
	var (
		resolved []vendors.Vendor
		err      error
	)
	switch s.Kind {
	case StrategyManual:
		resolved, err = s.resolveManual(ctx, dir)
	case StrategyByCategory:
		resolved, err = dir.ListActive(ctx, category)
	case StrategyPreferredOnly:
		resolved, err = resolvePreferred(ctx, dir)
	default:
		return nil, fmt.Errorf("unknown vendor selection strategy %q: %w", s.Kind, shared.ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("strategy %s resolved no vendors: %w", s.Kind, shared.ErrNoEligibleVendors)
	}
	return resolved, nil
}

func (s Strategy) resolveManual(ctx context.Context, dir vendors.Directory) ([]vendors.Vendor, error) {
	if len(s.VendorIDs) == 0 {
		return nil, fmt.Errorf("manual strategy requires a non-empty vendor set: %w", shared.ErrValidation)
	}
	seen := make(map[int64]bool, len(s.VendorIDs))
	resolved := make([]vendors.Vendor, 0, len(s.VendorIDs))
	for _, id := range s.VendorIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		v, err := dir.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !v.Active || !v.KYCVerified {
			return nil, fmt.Errorf("vendor %s is not active and KYC verified: %w", v.Name, shared.ErrValidation)
		}
		resolved = append(resolved, v)
	}
	return resolved, nil
}

// resolvePreferred picks active vendors rated at least 4.0 with at least 10
// completed orders, ranked by 0.4*rating + 0.3*(orders/100) + 0.3 descending,
// capped to the top five.
func resolvePreferred(ctx context.Context, dir vendors.Directory) ([]vendors.Vendor, error) {
	all, err := dir.ListActive(ctx, "")
	if err != nil {
		return nil, err
	}
	eligible := all[:0:0]
	for _, v := range all {
		if v.Rating >= preferredMinRating && v.CompletedOrders >= preferredMinOrders {
			eligible = append(eligible, v)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return preferredScore(eligible[i]) > preferredScore(eligible[j])
	})
	if len(eligible) > preferredCap {
		eligible = eligible[:preferredCap]
	}
	return eligible, nil
}

func preferredScore(v vendors.Vendor) float64 {
	return 0.4*v.Rating + 0.3*(float64(v.CompletedOrders)/100) + 0.3
}
