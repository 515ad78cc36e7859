package coupons

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for coupons.
type Repository interface {
	Create(ctx context.Context, c Coupon) (int64, error)
	GetByCode(ctx context.Context, code string) (Coupon, error)
	List(ctx context.Context, activeOnly bool) ([]Coupon, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error

	// DeactivateDead flags coupons past their validity window or usage
	// cap; returns how many rows changed. Bookkeeping only — redemption
	// rechecks the policy inline regardless.
	DeactivateDead(ctx context.Context) (int64, error)
}

// ErrNotFound indicates the coupon does not exist.
var ErrNotFound = errors.New("coupons: record not found")

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const couponColumns = `id, code, description, discount_type, discount_value, min_purchase, max_discount,
	created_by_kind, created_by, valid_from, valid_until, use_count, max_uses, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue, &c.MinPurchase,
		&c.MaxDiscount, &c.CreatedByKind, &c.CreatedBy, &c.ValidFrom, &c.ValidUntil, &c.UseCount,
		&c.MaxUses, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, ErrNotFound
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, c Coupon) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO coupons (code, description, discount_type, discount_value, min_purchase, max_discount,
			created_by_kind, created_by, valid_from, valid_until, max_uses, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		c.Code, c.Description, c.DiscountType, c.DiscountValue, c.MinPurchase, c.MaxDiscount,
		c.CreatedByKind, c.CreatedBy, c.ValidFrom, c.ValidUntil, c.MaxUses, c.IsActive,
	).Scan(&id)
	return id, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (Coupon, error) {
	return scanCoupon(r.db.QueryRow(ctx, `
		SELECT `+couponColumns+` FROM coupons WHERE upper(code) = upper($1)`, code))
}

func (r *repository) List(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+couponColumns+` FROM coupons
		WHERE NOT $1 OR is_active
		ORDER BY code`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE coupons SET is_active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeactivateDead(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE coupons
		SET is_active = FALSE, updated_at = now()
		WHERE is_active
		  AND (valid_until < now() OR (max_uses IS NOT NULL AND use_count >= max_uses))`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
