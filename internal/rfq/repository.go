package rfq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-procure/meridian-procure/internal/platform/db"
	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// Repository provides PostgreSQL backed persistence for RFQs and quotations.
// The invited vendor set lives on the rfqs row as a bigint array; quotation
// line items are a jsonb document.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository binds the transactional operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const rfqColumns = `id, mrf_id, mrf_control_number, mrf_title, estimated_cost::text,
	description, quantity, deadline, vendor_ids, status, created_by, created_at, updated_at`

func scanRFQ(row pgx.Row) (RFQ, error) {
	var r RFQ
	var cost string
	err := row.Scan(&r.ID, &r.MRFID, &r.MRFControlNumber, &r.MRFTitle, &cost,
		&r.Description, &r.Quantity, &r.Deadline, &r.VendorIDs, &r.Status, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return RFQ{}, err
	}
	r.EstimatedCost, err = decimal.NewFromString(cost)
	if err != nil {
		return RFQ{}, fmt.Errorf("parse estimated cost: %w", err)
	}
	return r, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getRFQ(ctx context.Context, q rowQuerier, id int64, suffix string) (RFQ, error) {
	r, err := scanRFQ(q.QueryRow(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE id = $1`+suffix, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RFQ{}, fmt.Errorf("rfq %d: %w", id, shared.ErrNotFound)
		}
		return RFQ{}, err
	}
	return r, nil
}

// GetRFQ returns one RFQ.
func (r *Repository) GetRFQ(ctx context.Context, id int64) (RFQ, error) {
	return getRFQ(ctx, r.pool, id, "")
}

// ListRFQs returns RFQs matching filters with the unpaged total.
func (r *Repository) ListRFQs(ctx context.Context, filters ListFilters) ([]RFQ, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	i := 1
	if filters.MRFID != 0 {
		where += fmt.Sprintf(` AND mrf_id = $%d`, i)
		args = append(args, filters.MRFID)
		i++
	}
	if filters.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, i)
		args = append(args, filters.Status)
		i++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rfqs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + rfqColumns + ` FROM rfqs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, i, i+1)
	args = append(args, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []RFQ
	for rows.Next() {
		item, err := scanRFQ(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, item)
	}
	return out, total, rows.Err()
}

// DueSoon returns open RFQs whose deadline falls within the window.
func (r *Repository) DueSoon(ctx context.Context, within time.Duration) ([]RFQ, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+rfqColumns+` FROM rfqs
WHERE status = $1 AND deadline > now() AND deadline <= now() + $2
ORDER BY deadline ASC`, StatusOpen, within)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RFQ
	for rows.Next() {
		item, err := scanRFQ(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

const quotationColumns = `id, rfq_id, vendor_id, vendor_name, price::text, delivery_date,
	payment_terms, validity_days, warranty_months, notes, items, status, submitted_at, updated_at`

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	var price string
	var items []byte
	err := row.Scan(&q.ID, &q.RFQID, &q.VendorID, &q.VendorName, &price, &q.DeliveryDate,
		&q.PaymentTerms, &q.ValidityDays, &q.WarrantyMonths, &q.Notes, &items, &q.Status, &q.SubmittedAt, &q.UpdatedAt)
	if err != nil {
		return Quotation{}, err
	}
	q.Price, err = decimal.NewFromString(price)
	if err != nil {
		return Quotation{}, fmt.Errorf("parse price: %w", err)
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &q.Items); err != nil {
			return Quotation{}, fmt.Errorf("parse line items: %w", err)
		}
	}
	return q, nil
}

// ListQuotations returns all bids on an RFQ, oldest first.
func (r *Repository) ListQuotations(ctx context.Context, rfqID int64) ([]Quotation, error) {
	return listQuotations(ctx, r.pool, rfqID)
}

func listQuotations(ctx context.Context, q rowQuerier, rfqID int64) ([]Quotation, error) {
	rows, err := q.Query(ctx, `SELECT `+quotationColumns+` FROM quotations
WHERE rfq_id = $1 ORDER BY submitted_at ASC, id ASC`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quotation
	for rows.Next() {
		item, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (t *txRepo) GetRFQForUpdate(ctx context.Context, id int64) (RFQ, error) {
	return getRFQ(ctx, t.tx, id, ` FOR UPDATE`)
}

func (t *txRepo) ActiveRFQForMRF(ctx context.Context, mrfID int64) (RFQ, bool, error) {
	r, err := scanRFQ(t.tx.QueryRow(ctx, `SELECT `+rfqColumns+` FROM rfqs
WHERE mrf_id = $1 AND status <> $2 ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, mrfID, StatusClosed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RFQ{}, false, nil
		}
		return RFQ{}, false, err
	}
	return r, true, nil
}

func (t *txRepo) CreateRFQ(ctx context.Context, r RFQ) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO rfqs
(mrf_id, mrf_control_number, mrf_title, estimated_cost, description, quantity,
 deadline, vendor_ids, status, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
RETURNING id`,
		r.MRFID, r.MRFControlNumber, r.MRFTitle, r.EstimatedCost.String(), r.Description, r.Quantity,
		r.Deadline, r.VendorIDs, r.Status, r.CreatedBy, r.CreatedAt).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateRFQStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE rfqs SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rfq %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepo) GetQuotationForUpdate(ctx context.Context, id int64) (Quotation, error) {
	q, err := scanQuotation(t.tx.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations
WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
		}
		return Quotation{}, err
	}
	return q, nil
}

func (t *txRepo) OpenQuotationForVendor(ctx context.Context, rfqID, vendorID int64) (Quotation, bool, error) {
	q, err := scanQuotation(t.tx.QueryRow(ctx, `SELECT `+quotationColumns+` FROM quotations
WHERE rfq_id = $1 AND vendor_id = $2 AND status = $3 LIMIT 1 FOR UPDATE`, rfqID, vendorID, QuotationPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, false, nil
		}
		return Quotation{}, false, err
	}
	return q, true, nil
}

func (t *txRepo) CreateQuotation(ctx context.Context, q Quotation) (int64, error) {
	items, err := json.Marshal(q.Items)
	if err != nil {
		return 0, fmt.Errorf("encode line items: %w", err)
	}
	var id int64
	err = t.tx.QueryRow(ctx, `INSERT INTO quotations
(rfq_id, vendor_id, vendor_name, price, delivery_date, payment_terms,
 validity_days, warranty_months, notes, items, status, submitted_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
RETURNING id`,
		q.RFQID, q.VendorID, q.VendorName, q.Price.String(), q.DeliveryDate, q.PaymentTerms,
		q.ValidityDays, q.WarrantyMonths, q.Notes, items, q.Status, q.SubmittedAt).Scan(&id)
	return id, err
}

func (t *txRepo) ListQuotations(ctx context.Context, rfqID int64) ([]Quotation, error) {
	return listQuotations(ctx, t.tx, rfqID)
}

func (t *txRepo) UpdateQuotationStatus(ctx context.Context, id int64, status QuotationStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotations SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
