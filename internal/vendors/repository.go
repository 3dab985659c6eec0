package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// Repository provides PostgreSQL backed vendor persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const vendorColumns = `id, name, category, rating, completed_orders, active, kyc_verified, email, phone, created_at, updated_at`

func scanVendor(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Category, &v.Rating, &v.CompletedOrders,
		&v.Active, &v.KYCVerified, &v.Email, &v.Phone, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

// Get fetches a vendor by id.
func (r *Repository) Get(ctx context.Context, id int64) (Vendor, error) {
	v, err := scanVendor(r.pool.QueryRow(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, fmt.Errorf("vendor %d: %w", id, shared.ErrNotFound)
		}
		return Vendor{}, err
	}
	return v, nil
}

// ListActive returns active vendors, optionally filtered by category.
func (r *Repository) ListActive(ctx context.Context, category string) ([]Vendor, error) {
	sql := `SELECT ` + vendorColumns + ` FROM vendors WHERE active`
	args := []any{}
	if category != "" {
		sql += ` AND category = $1`
		args = append(args, category)
	}
	sql += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// List returns vendors matching filters plus the unpaged total.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Vendor, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Category != "" {
		where += fmt.Sprintf(` AND category = $%d`, argNum)
		args = append(args, filters.Category)
		argNum++
	}
	if filters.Active != nil {
		where += fmt.Sprintf(` AND active = $%d`, argNum)
		args = append(args, *filters.Active)
		argNum++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(` AND name ILIKE $%d`, argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vendors`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	sql := `SELECT ` + vendorColumns + ` FROM vendors` + where +
		` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// sortOrder returns a safe ORDER BY clause for vendor queries.
func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "rating":
		return "rating " + dir
	case "orders":
		return "completed_orders " + dir
	case "category":
		return "category " + dir
	case "name":
		return "name " + dir
	default:
		return "name ASC"
	}
}

// Create inserts a vendor and returns its id.
func (r *Repository) Create(ctx context.Context, v Vendor) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO vendors
(name, category, rating, completed_orders, active, kyc_verified, email, phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
RETURNING id`,
		v.Name, v.Category, v.Rating, v.CompletedOrders, v.Active, v.KYCVerified,
		v.Email, v.Phone, v.CreatedAt).Scan(&id)
	return id, err
}

// Update persists mutable vendor profile fields.
func (r *Repository) Update(ctx context.Context, v Vendor) error {
	tag, err := r.pool.Exec(ctx, `UPDATE vendors SET
	name = $2, category = $3, rating = $4, completed_orders = $5,
	active = $6, kyc_verified = $7, email = $8, phone = $9, updated_at = now()
WHERE id = $1`,
		v.ID, v.Name, v.Category, v.Rating, v.CompletedOrders,
		v.Active, v.KYCVerified, v.Email, v.Phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vendor %d: %w", v.ID, shared.ErrNotFound)
	}
	return nil
}
