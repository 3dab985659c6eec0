package rfq

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// Score weights. The three components always sum to at most 100.
const (
	priceWeight    = 40.0
	deliveryWeight = 30.0
	vendorWeight   = 30.0

	// Points lost per day of delivery slower than the fastest bid.
	deliveryPenaltyPerDay = 3.0

	maxVendorRating = 5.0
)

// ScoredQuotation is one quotation with its evaluation breakdown. Components
// are rounded to whole points independently before summing; callers comparing
// against rendered score sheets rely on that exact rounding order.
type ScoredQuotation struct {
	Quotation Quotation `json:"quotation"`

	DeliveryDays  int `json:"delivery_days"`
	PriceScore    int `json:"price_score"`
	DeliveryScore int `json:"delivery_score"`
	VendorScore   int `json:"vendor_score"`
	OverallScore  int `json:"overall_score"`

	// SuspectDelivery flags a delivery date not after the evaluation time.
	// Suspect bids score zero on delivery and are excluded from the
	// fastest-delivery baseline, but stay in the ranking for the evaluator
	// to judge.
	SuspectDelivery bool `json:"suspect_delivery"`
	Recommended     bool `json:"recommended"`
}

// DeliveryDays converts a promised delivery date into whole days from the
// evaluation time, rounding any partial day up.
func DeliveryDays(deliveryDate, at time.Time) int {
	return int(math.Ceil(deliveryDate.Sub(at).Hours() / 24))
}

// Score evaluates all quotations of one RFQ against each other. Pure and
// deterministic: same inputs, same ranking, every time. The ranking is by
// overall score descending, ties broken by lower price then earlier
// submission. The top entry is marked Recommended; awarding stays a separate
// human decision.
//
// ratings maps vendor id to directory rating on the 0 to 5 scale; a missing
// vendor rates as 0.
func Score(quotations []Quotation, ratings map[int64]float64, at time.Time) ([]ScoredQuotation, error) {
	if len(quotations) == 0 {
		return nil, fmt.Errorf("no quotations to score: %w", shared.ErrValidation)
	}
	rfqID := quotations[0].RFQID
	for _, q := range quotations {
		if q.RFQID != rfqID {
			return nil, fmt.Errorf("quotation %d belongs to rfq %d, not %d: %w", q.ID, q.RFQID, rfqID, shared.ErrValidation)
		}
		if q.Price.IsNegative() {
			return nil, fmt.Errorf("quotation %d has negative price: %w", q.ID, shared.ErrValidation)
		}
	}

	lowest, highest := quotations[0].Price, quotations[0].Price
	for _, q := range quotations[1:] {
		if q.Price.LessThan(lowest) {
			lowest = q.Price
		}
		if q.Price.GreaterThan(highest) {
			highest = q.Price
		}
	}

	scored := make([]ScoredQuotation, len(quotations))
	fastest := 0
	haveFastest := false
	for i, q := range quotations {
		days := DeliveryDays(q.DeliveryDate, at)
		scored[i] = ScoredQuotation{
			Quotation:       q,
			DeliveryDays:    days,
			SuspectDelivery: days <= 0,
		}
		if days > 0 && (!haveFastest || days < fastest) {
			fastest = days
			haveFastest = true
		}
	}

	for i := range scored {
		s := &scored[i]
		s.PriceScore = int(math.Round(priceScore(s.Quotation.Price, lowest, highest)))
		s.DeliveryScore = int(math.Round(deliveryScore(s.DeliveryDays, fastest, s.SuspectDelivery || !haveFastest)))
		s.VendorScore = int(math.Round(ratings[s.Quotation.VendorID] / maxVendorRating * vendorWeight))
		s.OverallScore = s.PriceScore + s.DeliveryScore + s.VendorScore
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		if !a.Quotation.Price.Equal(b.Quotation.Price) {
			return a.Quotation.Price.LessThan(b.Quotation.Price)
		}
		return a.Quotation.SubmittedAt.Before(b.Quotation.SubmittedAt)
	})
	scored[0].Recommended = true
	return scored, nil
}

// priceScore rewards cheapness relative to the quotation's own price: a bid
// at half the highest offer earns the full weight. All-equal prices all earn
// the full weight.
func priceScore(price, lowest, highest decimal.Decimal) float64 {
	if highest.Equal(lowest) || price.IsZero() {
		return priceWeight
	}
	spread, _ := highest.Sub(price).Div(price).Float64()
	score := spread * priceWeight
	if score > priceWeight {
		return priceWeight
	}
	if score < 0 {
		return 0
	}
	return score
}

func deliveryScore(days, fastest int, suspect bool) float64 {
	if suspect {
		return 0
	}
	if days <= fastest {
		return deliveryWeight
	}
	score := deliveryWeight - float64(days-fastest)*deliveryPenaltyPerDay
	if score < 0 {
		return 0
	}
	return score
}
