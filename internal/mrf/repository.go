package mrf

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-procure/meridian-procure/internal/platform/db"
	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the MRF aggregate.
// approval history lives in mrf_history as an ordered, append-only list.
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
// The award controller uses this to mutate requisitions and RFQs atomically.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const mrfColumns = `id, control_number, title, category, description, quantity,
	estimated_cost::text, urgency, justification, department,
	requester_id, requester_name, current_stage, rejection_reason,
	is_resubmission, COALESCE(original_id, 0), escalated, escalation_decided,
	COALESCE(awarded_quotation_id, 0), po_number, unsigned_po_url, signed_po_url,
	po_version, po_rejection_reason, version, created_at, updated_at`

func scanMRF(row pgx.Row) (MRF, error) {
	var m MRF
	var cost string
	err := row.Scan(&m.ID, &m.ControlNumber, &m.Title, &m.Category, &m.Description, &m.Quantity,
		&cost, &m.Urgency, &m.Justification, &m.Department,
		&m.RequesterID, &m.RequesterName, &m.CurrentStage, &m.RejectionReason,
		&m.IsResubmission, &m.OriginalID, &m.Escalated, &m.EscalationDecided,
		&m.AwardedQuotationID, &m.PONumber, &m.UnsignedPOURL, &m.SignedPOURL,
		&m.POVersion, &m.PORejectionReason, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return MRF{}, err
	}
	m.EstimatedCost, err = decimal.NewFromString(cost)
	if err != nil {
		return MRF{}, fmt.Errorf("parse estimated cost: %w", err)
	}
	return m, nil
}

// Get returns a requisition and its ordered history.
func (r *Repository) Get(ctx context.Context, id int64) (MRF, error) {
	return getMRF(ctx, r.pool, id, "")
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getMRF(ctx context.Context, q rowQuerier, id int64, suffix string) (MRF, error) {
	m, err := scanMRF(q.QueryRow(ctx, `SELECT `+mrfColumns+` FROM mrfs WHERE id = $1`+suffix, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MRF{}, fmt.Errorf("requisition %d: %w", id, shared.ErrNotFound)
		}
		return MRF{}, err
	}
	rows, err := q.Query(ctx, `SELECT seq, stage, next_stage, actor_id, actor_name, role, action, remarks, at
FROM mrf_history WHERE mrf_id = $1 ORDER BY seq ASC`, id)
	if err != nil {
		return MRF{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.Seq, &e.Stage, &e.Next, &e.ActorID, &e.ActorName, &e.Role, &e.Action, &e.Remarks, &e.At); err != nil {
			return MRF{}, err
		}
		m.History = append(m.History, e)
	}
	return m, rows.Err()
}

// List returns requisitions matching filters with the unpaged total.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]MRF, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Stage != "" {
		where += fmt.Sprintf(` AND current_stage = $%d`, argNum)
		args = append(args, string(filters.Stage))
		argNum++
	}
	if filters.Department != "" {
		where += fmt.Sprintf(` AND department = $%d`, argNum)
		args = append(args, filters.Department)
		argNum++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(` AND (title ILIKE $%d OR control_number ILIKE $%d)`, argNum, argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM mrfs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	sql := `SELECT ` + mrfColumns + ` FROM mrfs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []MRF
	for rows.Next() {
		m, err := scanMRF(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// GetForUpdate loads the aggregate under a row lock.
func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (MRF, error) {
	return getMRF(ctx, t.tx, id, ` FOR UPDATE`)
}

// Create inserts a new requisition.
func (t *txRepo) Create(ctx context.Context, m MRF) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO mrfs (
		control_number, title, category, description, quantity, estimated_cost,
		urgency, justification, department, requester_id, requester_name,
		current_stage, is_resubmission, original_id, po_version, version,
		created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULLIF($14,0),$15,$16,$17,$18)
	RETURNING id`,
		m.ControlNumber, m.Title, m.Category, m.Description, m.Quantity, m.EstimatedCost.String(),
		m.Urgency, m.Justification, m.Department, m.RequesterID, m.RequesterName,
		string(m.CurrentStage), m.IsResubmission, m.OriginalID, m.POVersion, m.Version,
		m.CreatedAt, m.UpdatedAt,
	).Scan(&id)
	return id, err
}

// NextControlSeq allocates the next per-year control number.
func (t *txRepo) NextControlSeq(ctx context.Context, year int) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `INSERT INTO mrf_control_seq (year, counter) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET counter = mrf_control_seq.counter + 1
RETURNING counter`, year).Scan(&seq)
	return seq, err
}

// AppendHistory inserts one history entry. The (mrf_id, seq) primary key
// rejects forks.
func (t *txRepo) AppendHistory(ctx context.Context, mrfID int64, entry HistoryEntry) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO mrf_history
	(mrf_id, seq, stage, next_stage, actor_id, actor_name, role, action, remarks, at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		mrfID, entry.Seq, string(entry.Stage), string(entry.Next), entry.ActorID,
		entry.ActorName, string(entry.Role), string(entry.Action), entry.Remarks, entry.At)
	return err
}

// UpdateWorkflow persists mutable workflow state, guarded by the version.
func (t *txRepo) UpdateWorkflow(ctx context.Context, m MRF) error {
	tag, err := t.tx.Exec(ctx, `UPDATE mrfs SET
		current_stage = $1, rejection_reason = $2,
		escalated = $3, escalation_decided = $4,
		awarded_quotation_id = NULLIF($5, 0), po_number = $6,
		unsigned_po_url = $7, signed_po_url = $8,
		po_version = $9, po_rejection_reason = $10,
		version = version + 1, updated_at = NOW()
	WHERE id = $11 AND version = $12`,
		string(m.CurrentStage), m.RejectionReason,
		m.Escalated, m.EscalationDecided,
		m.AwardedQuotationID, m.PONumber,
		string(m.UnsignedPOURL), string(m.SignedPOURL),
		m.POVersion, m.PORejectionReason,
		m.ID, m.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("requisition %d version %d: %w", m.ID, m.Version, shared.ErrConcurrentModification)
	}
	return nil
}
