package rfq

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func quote(id, vendorID int64, price string, deliveryInDays int, submittedAt time.Time, at time.Time) Quotation {
	return Quotation{
		ID:           id,
		RFQID:        9,
		VendorID:     vendorID,
		Price:        decimal.RequireFromString(price),
		DeliveryDate: at.Add(time.Duration(deliveryInDays) * 24 * time.Hour),
		Status:       QuotationPending,
		SubmittedAt:  submittedAt,
	}
}

func TestScoreReferenceVector(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	quotations := []Quotation{
		quote(1, 10, "100000", 5, at.Add(-3*time.Hour), at),
		quote(2, 20, "150000", 10, at.Add(-2*time.Hour), at),
		quote(3, 30, "200000", 15, at.Add(-1*time.Hour), at),
	}
	ratings := map[int64]float64{10: 5.0, 20: 4.0, 30: 3.0}

	scored, err := Score(quotations, ratings, at)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	require.Equal(t, int64(1), scored[0].Quotation.ID)
	require.Equal(t, 40, scored[0].PriceScore)
	require.Equal(t, 30, scored[0].DeliveryScore)
	require.Equal(t, 30, scored[0].VendorScore)
	require.Equal(t, 100, scored[0].OverallScore)
	require.True(t, scored[0].Recommended)

	require.Equal(t, int64(2), scored[1].Quotation.ID)
	require.Equal(t, 13, scored[1].PriceScore)
	require.Equal(t, 15, scored[1].DeliveryScore)
	require.Equal(t, 24, scored[1].VendorScore)
	require.Equal(t, 52, scored[1].OverallScore)
	require.False(t, scored[1].Recommended)

	require.Equal(t, int64(3), scored[2].Quotation.ID)
	require.Equal(t, 0, scored[2].PriceScore)
	require.Equal(t, 0, scored[2].DeliveryScore)
	require.Equal(t, 18, scored[2].VendorScore)
	require.Equal(t, 18, scored[2].OverallScore)
}

func TestScoreSingleQuotation(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	scored, err := Score([]Quotation{quote(1, 10, "5000", 7, at, at)}, nil, at)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	require.Equal(t, 40, scored[0].PriceScore)
	require.Equal(t, 30, scored[0].DeliveryScore)
	require.Equal(t, 0, scored[0].VendorScore)
	require.True(t, scored[0].Recommended)
}

func TestScoreEqualPricesAllEarnFullPriceWeight(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	scored, err := Score([]Quotation{
		quote(1, 10, "700", 3, at, at),
		quote(2, 20, "700", 3, at.Add(time.Minute), at),
	}, nil, at)
	require.NoError(t, err)
	require.Equal(t, 40, scored[0].PriceScore)
	require.Equal(t, 40, scored[1].PriceScore)
}

func TestScoreTieBreaksByPriceThenSubmission(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ratings := map[int64]float64{10: 4.0, 20: 4.0, 30: 4.0}

	// A 10000 bid against a 9990 bid: the price spread rounds away and both
	// land on the same overall score, so the cheaper bid wins the tie.
	scored, err := Score([]Quotation{
		quote(1, 10, "10000", 4, at.Add(-1*time.Hour), at),
		quote(2, 20, "9990", 4, at.Add(-2*time.Hour), at),
	}, ratings, at)
	require.NoError(t, err)
	require.Equal(t, scored[0].OverallScore, scored[1].OverallScore)
	require.Equal(t, int64(2), scored[0].Quotation.ID)

	// Identical price and score: the earlier submission ranks first,
	// repeatably.
	for i := 0; i < 5; i++ {
		scored, err = Score([]Quotation{
			quote(1, 10, "800", 4, at.Add(-1*time.Hour), at),
			quote(2, 20, "800", 4, at.Add(-2*time.Hour), at),
		}, ratings, at)
		require.NoError(t, err)
		require.Equal(t, int64(2), scored[0].Quotation.ID)
	}
}

func TestScoreFlagsPastDeliveryDates(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	scored, err := Score([]Quotation{
		quote(1, 10, "1000", -2, at, at),
		quote(2, 20, "1000", 6, at, at),
	}, nil, at)
	require.NoError(t, err)

	var suspect, clean *ScoredQuotation
	for i := range scored {
		if scored[i].Quotation.ID == 1 {
			suspect = &scored[i]
		} else {
			clean = &scored[i]
		}
	}
	require.True(t, suspect.SuspectDelivery)
	require.Equal(t, 0, suspect.DeliveryScore)
	require.False(t, clean.SuspectDelivery)
	// The stale bid does not drag the fastest-delivery baseline down.
	require.Equal(t, 30, clean.DeliveryScore)
}

func TestScoreRejectsMixedRFQs(t *testing.T) {
	at := time.Now()
	a := quote(1, 10, "100", 3, at, at)
	b := quote(2, 20, "100", 3, at, at)
	b.RFQID = 8
	_, err := Score([]Quotation{a, b}, nil, at)
	require.Error(t, err)
}
