package mrf

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/notify"
	"github.com/meridian-procure/meridian-procure/internal/shared"
	"github.com/meridian-procure/meridian-procure/internal/workflow"
)

type fakeRepo struct {
	mrfs   map[int64]*MRF
	nextID int64
	seq    map[int]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{mrfs: map[int64]*MRF{}, seq: map[int]int{}}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeRepo) Get(_ context.Context, id int64) (MRF, error) {
	m, ok := f.mrfs[id]
	if !ok {
		return MRF{}, fmt.Errorf("requisition %d: %w", id, shared.ErrNotFound)
	}
	return *m, nil
}

func (f *fakeRepo) List(_ context.Context, filters ListFilters) ([]MRF, int, error) {
	var out []MRF
	for _, m := range f.mrfs {
		if filters.Stage != "" && m.CurrentStage != filters.Stage {
			continue
		}
		out = append(out, *m)
	}
	return out, len(out), nil
}

func (f *fakeRepo) GetForUpdate(ctx context.Context, id int64) (MRF, error) {
	return f.Get(ctx, id)
}

func (f *fakeRepo) Create(_ context.Context, m MRF) (int64, error) {
	f.nextID++
	m.ID = f.nextID
	f.mrfs[m.ID] = &m
	return m.ID, nil
}

func (f *fakeRepo) NextControlSeq(_ context.Context, year int) (int, error) {
	f.seq[year]++
	return f.seq[year], nil
}

func (f *fakeRepo) AppendHistory(_ context.Context, mrfID int64, entry HistoryEntry) error {
	m, ok := f.mrfs[mrfID]
	if !ok {
		return fmt.Errorf("requisition %d: %w", mrfID, shared.ErrNotFound)
	}
	for _, existing := range m.History {
		if existing.Seq == entry.Seq {
			return fmt.Errorf("history seq %d already recorded: %w", entry.Seq, shared.ErrConcurrentModification)
		}
	}
	m.History = append(m.History, entry)
	return nil
}

func (f *fakeRepo) UpdateWorkflow(_ context.Context, m MRF) error {
	stored, ok := f.mrfs[m.ID]
	if !ok {
		return fmt.Errorf("requisition %d: %w", m.ID, shared.ErrNotFound)
	}
	if stored.Version != m.Version {
		return fmt.Errorf("requisition %d version %d: %w", m.ID, m.Version, shared.ErrConcurrentModification)
	}
	m.Version++
	history := stored.History
	*stored = m
	stored.History = history
	return nil
}

var (
	staff       = identity.Actor{ID: 1, Name: "Ama Mensah", Role: identity.RoleStaff}
	procManager = identity.Actor{ID: 2, Name: "Kojo Antwi", Role: identity.RoleProcurementManager}
	executive   = identity.Actor{ID: 3, Name: "Efua Sutherland", Role: identity.RoleExecutive}
	chairman    = identity.Actor{ID: 4, Name: "Yaw Owusu", Role: identity.RoleChairman}
	scDirector  = identity.Actor{ID: 5, Name: "Abena Pokua", Role: identity.RoleSupplyChainDirector}
	finance     = identity.Actor{ID: 6, Name: "Kwame Boateng", Role: identity.RoleFinance}
)

func newTestService(repo RepositoryPort, sink notify.Sink) *Service {
	return NewService(repo, sink, nil, slog.Default(), decimal.Zero)
}

func submitInput(cost string) SubmitInput {
	return SubmitInput{
		Title:         "Drill pipe casing",
		Category:      "drilling",
		Quantity:      40,
		EstimatedCost: decimal.RequireFromString(cost),
		Urgency:       UrgencyMedium,
		Department:    "Operations",
	}
}

func TestSubmitAssignsControlNumberAndStage(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	m, err := svc.Submit(context.Background(), submitInput("25000"), staff)
	require.NoError(t, err)
	require.Equal(t, workflow.StageSubmitted, m.CurrentStage)
	require.Regexp(t, `^MRF-\d{4}-0001$`, m.ControlNumber)
	require.Equal(t, 1, m.POVersion)
	require.NoError(t, VerifyHistory(&m))

	second, err := svc.Submit(context.Background(), submitInput("900"), staff)
	require.NoError(t, err)
	require.Regexp(t, `-0002$`, second.ControlNumber)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)

	bad := submitInput("100")
	bad.Quantity = 0
	_, err := svc.Submit(context.Background(), bad, staff)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad = submitInput("-5")
	_, err = svc.Submit(context.Background(), bad, staff)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.mrfs)
}

func TestApproveWalksStandardChain(t *testing.T) {
	repo := newFakeRepo()
	collector := &notify.CollectorSink{}
	svc := newTestService(repo, collector)
	ctx := context.Background()

	m, err := svc.Submit(ctx, submitInput("500000"), staff)
	require.NoError(t, err)

	for _, step := range []struct {
		actor identity.Actor
		next  workflow.Stage
	}{
		{procManager, workflow.StageProcurement},
		{procManager, workflow.StageExecutive},
		{executive, workflow.StageSupplyChain},
	} {
		m, err = svc.Approve(ctx, m.ID, step.actor, "ok")
		require.NoError(t, err)
		require.Equal(t, step.next, m.CurrentStage)
		require.NoError(t, VerifyHistory(&m))
	}
	require.False(t, m.Escalated)
	require.True(t, m.EscalationDecided)

	var types []string
	for _, e := range collector.Events {
		types = append(types, e.Type)
	}
	require.Contains(t, types, notify.EventMRFSubmitted)
	require.Contains(t, types, notify.EventMRFApproved)
}

func TestApproveRoutesHighValueThroughChairman(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m, err := svc.Submit(ctx, submitInput("1000000.01"), staff)
	require.NoError(t, err)
	m, err = svc.Approve(ctx, m.ID, procManager, "")
	require.NoError(t, err)
	m, err = svc.Approve(ctx, m.ID, procManager, "")
	require.NoError(t, err)

	m, err = svc.Approve(ctx, m.ID, executive, "")
	require.NoError(t, err)
	require.Equal(t, workflow.StageChairman, m.CurrentStage)
	require.True(t, m.Escalated)

	m, err = svc.Approve(ctx, m.ID, chairman, "")
	require.NoError(t, err)
	require.Equal(t, workflow.StageSupplyChain, m.CurrentStage)
	require.NoError(t, VerifyHistory(&m))
}

func TestApproveThresholdBoundaryStaysStandard(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m, err := svc.Submit(ctx, submitInput("1000000"), staff)
	require.NoError(t, err)
	m, err = svc.Approve(ctx, m.ID, procManager, "")
	require.NoError(t, err)
	m, err = svc.Approve(ctx, m.ID, procManager, "")
	require.NoError(t, err)
	m, err = svc.Approve(ctx, m.ID, executive, "")
	require.NoError(t, err)
	require.Equal(t, workflow.StageSupplyChain, m.CurrentStage)
	require.False(t, m.Escalated)
}

func TestApproveWrongRoleLeavesRequisitionUntouched(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m, err := svc.Submit(ctx, submitInput("4000"), staff)
	require.NoError(t, err)

	_, err = svc.Approve(ctx, m.ID, finance, "")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	stored, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StageSubmitted, stored.CurrentStage)
	require.Empty(t, stored.History)
	require.Equal(t, int64(1), stored.Version)
}

func TestApproveAtSupplyChainRequiresSignedPO(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m := advanceToSupplyChain(t, svc, "30000")
	_, err := svc.Approve(ctx, m.ID, scDirector, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRejectRequiresReasonAndTerminates(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m, err := svc.Submit(ctx, submitInput("800"), staff)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, m.ID, procManager, "  ")
	require.ErrorIs(t, err, shared.ErrValidation)

	m, err = svc.Reject(ctx, m.ID, procManager, "duplicate of MRF-2026-0007")
	require.NoError(t, err)
	require.Equal(t, workflow.StageRejected, m.CurrentStage)
	require.Equal(t, "duplicate of MRF-2026-0007", m.RejectionReason)
	require.NoError(t, VerifyHistory(&m))

	_, err = svc.Approve(ctx, m.ID, procManager, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestResubmitOnlyFromRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m, err := svc.Submit(ctx, submitInput("800"), staff)
	require.NoError(t, err)

	_, err = svc.Resubmit(ctx, m.ID, submitInput("750"), staff)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	m, err = svc.Reject(ctx, m.ID, procManager, "over budget")
	require.NoError(t, err)

	fresh, err := svc.Resubmit(ctx, m.ID, submitInput("750"), staff)
	require.NoError(t, err)
	require.NotEqual(t, m.ID, fresh.ID)
	require.True(t, fresh.IsResubmission)
	require.Equal(t, m.ID, fresh.OriginalID)
	require.Equal(t, workflow.StageSubmitted, fresh.CurrentStage)
	require.Empty(t, fresh.History)
}

func TestApproveDuringPOReworkIsRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	m := advanceToSupplyChain(t, svc, "60000")
	stored := repo.mrfs[m.ID]
	stored.AwardedQuotationID = 71
	stored.CurrentStage = workflow.StageProcurement
	stored.History = append(stored.History, HistoryEntry{
		Seq:    len(stored.History) + 1,
		Stage:  workflow.StageSupplyChain,
		Next:   workflow.StageProcurement,
		Action: workflow.ActionRejected,
	})

	_, err := svc.Approve(ctx, m.ID, procManager, "")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func advanceToSupplyChain(t *testing.T, svc *Service, cost string) MRF {
	t.Helper()
	ctx := context.Background()
	m, err := svc.Submit(ctx, submitInput(cost), staff)
	require.NoError(t, err)
	for _, actor := range []identity.Actor{procManager, procManager, executive} {
		m, err = svc.Approve(ctx, m.ID, actor, "")
		require.NoError(t, err)
	}
	require.Equal(t, workflow.StageSupplyChain, m.CurrentStage)
	return m
}
