package rfq

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/mrf"
	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/vendors"
	"github.com/meridian-procure/meridian-procure/internal/workflow"
)

type fakeStore struct {
	rfqs       map[int64]*RFQ
	quotations map[int64]*Quotation
	nextRFQ    int64
	nextQuote  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rfqs: map[int64]*RFQ{}, quotations: map[int64]*Quotation{}}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeStore) GetRFQ(_ context.Context, id int64) (RFQ, error) {
	r, ok := f.rfqs[id]
	if !ok {
		return RFQ{}, fmt.Errorf("rfq %d: %w", id, shared.ErrNotFound)
	}
	return *r, nil
}

func (f *fakeStore) ListRFQs(_ context.Context, filters ListFilters) ([]RFQ, int, error) {
	var out []RFQ
	for _, r := range f.rfqs {
		if filters.MRFID != 0 && r.MRFID != filters.MRFID {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (f *fakeStore) ListQuotations(_ context.Context, rfqID int64) ([]Quotation, error) {
	var out []Quotation
	for _, q := range f.quotations {
		if q.RFQID == rfqID {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeStore) DueSoon(_ context.Context, within time.Duration) ([]RFQ, error) {
	cutoff := time.Now().Add(within)
	var out []RFQ
	for _, r := range f.rfqs {
		if r.Status == StatusOpen && r.Deadline.Before(cutoff) && r.Deadline.After(time.Now()) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRFQForUpdate(ctx context.Context, id int64) (RFQ, error) {
	return f.GetRFQ(ctx, id)
}

func (f *fakeStore) ActiveRFQForMRF(_ context.Context, mrfID int64) (RFQ, bool, error) {
	for _, r := range f.rfqs {
		if r.MRFID == mrfID && r.Status != StatusClosed {
			return *r, true, nil
		}
	}
	return RFQ{}, false, nil
}

func (f *fakeStore) CreateRFQ(_ context.Context, r RFQ) (int64, error) {
	f.nextRFQ++
	r.ID = f.nextRFQ
	f.rfqs[r.ID] = &r
	return r.ID, nil
}

func (f *fakeStore) UpdateRFQStatus(_ context.Context, id int64, status Status) error {
	r, ok := f.rfqs[id]
	if !ok {
		return fmt.Errorf("rfq %d: %w", id, shared.ErrNotFound)
	}
	r.Status = status
	return nil
}

func (f *fakeStore) GetQuotationForUpdate(_ context.Context, id int64) (Quotation, error) {
	q, ok := f.quotations[id]
	if !ok {
		return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	return *q, nil
}

func (f *fakeStore) OpenQuotationForVendor(_ context.Context, rfqID, vendorID int64) (Quotation, bool, error) {
	for _, q := range f.quotations {
		if q.RFQID == rfqID && q.VendorID == vendorID && q.Status == QuotationPending {
			return *q, true, nil
		}
	}
	return Quotation{}, false, nil
}

func (f *fakeStore) CreateQuotation(_ context.Context, q Quotation) (int64, error) {
	f.nextQuote++
	q.ID = f.nextQuote
	f.quotations[q.ID] = &q
	return q.ID, nil
}

func (f *fakeStore) UpdateQuotationStatus(_ context.Context, id int64, status QuotationStatus) error {
	q, ok := f.quotations[id]
	if !ok {
		return fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	q.Status = status
	return nil
}

type fakeDirectory struct {
	vendors map[int64]vendors.Vendor
}

func (f *fakeDirectory) Get(_ context.Context, id int64) (vendors.Vendor, error) {
	v, ok := f.vendors[id]
	if !ok {
		return vendors.Vendor{}, fmt.Errorf("vendor %d: %w", id, shared.ErrNotFound)
	}
	return v, nil
}

func (f *fakeDirectory) ListActive(_ context.Context, category string) ([]vendors.Vendor, error) {
	var out []vendors.Vendor
	for _, v := range f.vendors {
		if !v.Active {
			continue
		}
		if category != "" && v.Category != category {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

type fakeRequisitions struct {
	mrfs map[int64]mrf.MRF
}

func (f *fakeRequisitions) Get(_ context.Context, id int64) (mrf.MRF, error) {
	m, ok := f.mrfs[id]
	if !ok {
		return mrf.MRF{}, fmt.Errorf("requisition %d: %w", id, shared.ErrNotFound)
	}
	return m, nil
}

type fakeIdempotency struct {
	seen map[string]bool
}

func (f *fakeIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	f.seen[key] = true
	return nil
}

var manager = identity.Actor{ID: 2, Name: "Kojo Antwi", Role: identity.RoleProcurementManager}

type fixture struct {
	store       *fakeStore
	dir         *fakeDirectory
	reqs        *fakeRequisitions
	sink        *notify.CollectorSink
	idempotency *fakeIdempotency
	svc         *Service
}

func newFixture() *fixture {
	f := &fixture{
		store: newFakeStore(),
		dir: &fakeDirectory{vendors: map[int64]vendors.Vendor{
			10: {ID: 10, Name: "Volta Supplies", Category: "drilling", Rating: 4.6, CompletedOrders: 32, Active: true, KYCVerified: true},
			20: {ID: 20, Name: "Tema Industrial", Category: "drilling", Rating: 4.1, CompletedOrders: 12, Active: true, KYCVerified: true},
			30: {ID: 30, Name: "Accra Metals", Category: "drilling", Rating: 3.2, CompletedOrders: 40, Active: true, KYCVerified: true},
			40: {ID: 40, Name: "Dormant Traders", Category: "drilling", Rating: 4.8, CompletedOrders: 50, Active: false, KYCVerified: true},
			50: {ID: 50, Name: "Fresh Ventures", Category: "drilling", Rating: 4.9, CompletedOrders: 3, Active: true, KYCVerified: false},
		}},
		reqs: &fakeRequisitions{mrfs: map[int64]mrf.MRF{
			1: {ID: 1, ControlNumber: "MRF-2026-0001", Title: "Drill pipe casing", Category: "drilling",
				Quantity: 40, EstimatedCost: decimal.RequireFromString("250000"), CurrentStage: workflow.StageSupplyChain},
			2: {ID: 2, ControlNumber: "MRF-2026-0002", Title: "Office chairs", Category: "furniture",
				Quantity: 12, EstimatedCost: decimal.RequireFromString("9000"), CurrentStage: workflow.StageSubmitted},
		}},
		sink:        &notify.CollectorSink{},
		idempotency: &fakeIdempotency{},
	}
	f.svc = NewService(f.store, f.reqs, f.dir, f.sink, f.idempotency, slog.Default())
	return f
}

func (f *fixture) createOpenRFQ(t *testing.T) RFQ {
	t.Helper()
	r, err := f.svc.Create(context.Background(), CreateInput{
		MRFID:    1,
		Deadline: time.Now().Add(72 * time.Hour),
		Strategy: Strategy{Kind: StrategyManual, VendorIDs: []int64{10, 20}},
	}, manager)
	require.NoError(t, err)
	return r
}

func TestCreateDispatchesAndInvitesOnce(t *testing.T) {
	f := newFixture()
	r := f.createOpenRFQ(t)

	require.Equal(t, StatusOpen, r.Status)
	require.Equal(t, "MRF-2026-0001", r.MRFControlNumber)
	require.ElementsMatch(t, []int64{10, 20}, r.VendorIDs)

	var invitations int
	for _, e := range f.sink.Events {
		if e.Type == notify.EventRFQInvitation {
			invitations++
		}
	}
	require.Equal(t, 2, invitations)

	// A redelivered fan-out must not invite anyone twice.
	f.svc.invite(context.Background(), r, []vendors.Vendor{f.dir.vendors[10], f.dir.vendors[20]})
	invitations = 0
	for _, e := range f.sink.Events {
		if e.Type == notify.EventRFQInvitation {
			invitations++
		}
	}
	require.Equal(t, 2, invitations)
}

func TestCreateRejectsSecondActiveRFQ(t *testing.T) {
	f := newFixture()
	f.createOpenRFQ(t)

	_, err := f.svc.Create(context.Background(), CreateInput{
		MRFID:    1,
		Deadline: time.Now().Add(24 * time.Hour),
		Strategy: Strategy{Kind: StrategyManual, VendorIDs: []int64{10}},
	}, manager)
	require.ErrorIs(t, err, shared.ErrDuplicateRFQ)

	// A closed RFQ no longer blocks dispatching a new one.
	require.NoError(t, f.svc.Close(context.Background(), 1, manager))
	_, err = f.svc.Create(context.Background(), CreateInput{
		MRFID:    1,
		Deadline: time.Now().Add(24 * time.Hour),
		Strategy: Strategy{Kind: StrategyManual, VendorIDs: []int64{10}},
	}, manager)
	require.NoError(t, err)
}

func TestCreateGuards(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour)

	_, err := f.svc.Create(ctx, CreateInput{MRFID: 1, Deadline: deadline,
		Strategy: Strategy{Kind: StrategyManual, VendorIDs: []int64{10}}},
		identity.Actor{ID: 9, Name: "Ama Mensah", Role: identity.RoleStaff})
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = f.svc.Create(ctx, CreateInput{MRFID: 1, Deadline: time.Now().Add(-time.Hour),
		Strategy: Strategy{Kind: StrategyManual, VendorIDs: []int64{10}}}, manager)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Requisition 2 has not cleared review yet.
	_, err = f.svc.Create(ctx, CreateInput{MRFID: 2, Deadline: deadline,
		Strategy: Strategy{Kind: StrategyManual, VendorIDs: []int64{10}}}, manager)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// Vendor 50 never passed KYC.
	_, err = f.svc.Create(ctx, CreateInput{MRFID: 1, Deadline: deadline,
		Strategy: Strategy{Kind: StrategyManual, VendorIDs: []int64{10, 50}}}, manager)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{MRFID: 1, Deadline: deadline,
		Strategy: Strategy{Kind: StrategyManual}}, manager)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateByCategoryAndPreferred(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour)

	r, err := f.svc.Create(ctx, CreateInput{MRFID: 1, Deadline: deadline,
		Strategy: Strategy{Kind: StrategyByCategory}}, manager)
	require.NoError(t, err)
	// Active drilling vendors only; the inactive one stays out.
	require.ElementsMatch(t, []int64{10, 20, 30, 50}, r.VendorIDs)

	require.NoError(t, f.svc.Close(ctx, r.ID, manager))
	r, err = f.svc.Create(ctx, CreateInput{MRFID: 1, Deadline: deadline,
		Strategy: Strategy{Kind: StrategyPreferredOnly}}, manager)
	require.NoError(t, err)
	// Rating >= 4.0 and >= 10 completed orders, best composite first.
	require.Equal(t, []int64{10, 20}, r.VendorIDs)
}

func TestCreateNoEligibleVendors(t *testing.T) {
	f := newFixture()
	f.reqs.mrfs[3] = mrf.MRF{ID: 3, ControlNumber: "MRF-2026-0003", Title: "Crane hire", Category: "logistics",
		EstimatedCost: decimal.RequireFromString("70000"), CurrentStage: workflow.StageSupplyChain}

	_, err := f.svc.Create(context.Background(), CreateInput{
		MRFID:    3,
		Deadline: time.Now().Add(24 * time.Hour),
		Strategy: Strategy{Kind: StrategyByCategory},
	}, manager)
	require.ErrorIs(t, err, shared.ErrNoEligibleVendors)
	require.Empty(t, f.store.rfqs)
}

func TestSubmitQuotationRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.createOpenRFQ(t)

	bid := Quotation{
		RFQID:        r.ID,
		VendorID:     10,
		Price:        decimal.RequireFromString("180000"),
		DeliveryDate: time.Now().Add(10 * 24 * time.Hour),
	}
	q, err := f.svc.SubmitQuotation(ctx, bid)
	require.NoError(t, err)
	require.Equal(t, QuotationPending, q.Status)
	require.Equal(t, "Volta Supplies", q.VendorName)

	// One open bid per vendor.
	_, err = f.svc.SubmitQuotation(ctx, bid)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// Uninvited vendors are turned away.
	stranger := bid
	stranger.VendorID = 30
	_, err = f.svc.SubmitQuotation(ctx, stranger)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	// Closing the bid reopens the door for a fresh one.
	require.NoError(t, f.svc.CloseQuotation(ctx, q.ID, 10))
	_, err = f.svc.SubmitQuotation(ctx, bid)
	require.NoError(t, err)

	// Reopening while a fresh open bid exists would break the rule.
	err = f.svc.ReopenQuotation(ctx, q.ID, 10)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSubmitQuotationHardCutoffs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.createOpenRFQ(t)

	bid := Quotation{
		RFQID:        r.ID,
		VendorID:     20,
		Price:        decimal.RequireFromString("175000"),
		DeliveryDate: time.Now().Add(7 * 24 * time.Hour),
	}

	f.store.rfqs[r.ID].Deadline = time.Now().Add(-time.Minute)
	_, err := f.svc.SubmitQuotation(ctx, bid)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	f.store.rfqs[r.ID].Deadline = time.Now().Add(time.Hour)
	f.store.rfqs[r.ID].Status = StatusAwarded
	_, err = f.svc.SubmitQuotation(ctx, bid)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestEvaluateScoresOpenBidsOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.createOpenRFQ(t)

	first, err := f.svc.SubmitQuotation(ctx, Quotation{
		RFQID: r.ID, VendorID: 10,
		Price:        decimal.RequireFromString("180000"),
		DeliveryDate: time.Now().Add(5 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = f.svc.SubmitQuotation(ctx, Quotation{
		RFQID: r.ID, VendorID: 20,
		Price:        decimal.RequireFromString("220000"),
		DeliveryDate: time.Now().Add(9 * 24 * time.Hour),
	})
	require.NoError(t, err)

	scored, err := f.svc.Evaluate(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	require.Equal(t, first.ID, scored[0].Quotation.ID)
	require.True(t, scored[0].Recommended)

	require.NoError(t, f.svc.CloseQuotation(ctx, first.ID, 10))
	scored, err = f.svc.Evaluate(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, scored, 1)
}
