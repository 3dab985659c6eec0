package award

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-procure/meridian-procure/internal/mrf"
	"github.com/meridian-procure/meridian-procure/internal/platform/db"
	"github.com/meridian-procure/meridian-procure/internal/rfq"
)

// Repository spans the requisition and RFQ aggregates in one transaction by
// composing their transactional repositories over a shared pgx.Tx.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	mrfs mrf.TxRepository
	rfqs rfq.TxRepository
}

// WithTx wraps callback in a repeatable-read transaction covering both
// aggregates.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{mrfs: mrf.NewTxRepository(tx), rfqs: rfq.NewTxRepository(tx)})
	})
}

func (t *txRepo) Requisition(ctx context.Context, id int64) (mrf.MRF, error) {
	return t.mrfs.GetForUpdate(ctx, id)
}

func (t *txRepo) AppendHistory(ctx context.Context, mrfID int64, entry mrf.HistoryEntry) error {
	return t.mrfs.AppendHistory(ctx, mrfID, entry)
}

func (t *txRepo) UpdateRequisition(ctx context.Context, m mrf.MRF) error {
	return t.mrfs.UpdateWorkflow(ctx, m)
}

func (t *txRepo) RFQ(ctx context.Context, id int64) (rfq.RFQ, error) {
	return t.rfqs.GetRFQForUpdate(ctx, id)
}

func (t *txRepo) UpdateRFQStatus(ctx context.Context, id int64, status rfq.Status) error {
	return t.rfqs.UpdateRFQStatus(ctx, id, status)
}

func (t *txRepo) Quotations(ctx context.Context, rfqID int64) ([]rfq.Quotation, error) {
	return t.rfqs.ListQuotations(ctx, rfqID)
}

func (t *txRepo) UpdateQuotationStatus(ctx context.Context, id int64, status rfq.QuotationStatus) error {
	return t.rfqs.UpdateQuotationStatus(ctx, id, status)
}
