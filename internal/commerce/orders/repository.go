package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/melodium-shop/melodium/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for orders. WithTx
// yields a repository bound to a single transaction; the checkout commit
// runs entirely inside one.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	// LoadCartDetail joins the person's cart lines with current catalog
	// prices, titles and artist attribution.
	LoadCartDetail(ctx context.Context, personID int64) ([]CartLine, error)

	CreateOrder(ctx context.Context, o Order) (int64, error)
	InsertItem(ctx context.Context, item Item) error
	InsertOrderCoupon(ctx context.Context, orderID, couponID int64, amount float64) error
	// IncrementCouponUse bumps use_count, refusing to pass max_uses.
	// Returns ErrCouponExhausted when the cap is already reached.
	IncrementCouponUse(ctx context.Context, couponID int64) error
	ClearCart(ctx context.Context, personID int64) error

	GetOrder(ctx context.Context, id int64) (Order, error)
	GetItems(ctx context.Context, orderID int64) ([]Item, error)
	ListByPerson(ctx context.Context, personID int64) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error
}

// Repository sentinels.
var (
	ErrNotFound        = errors.New("orders: record not found")
	ErrCouponExhausted = errors.New("orders: coupon usage cap reached")
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) LoadCartDetail(ctx context.Context, personID int64) ([]CartLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.product_id, c.song_id,
		       coalesce(p.title, s.title) AS title,
		       c.quantity,
		       coalesce(p.price, s.price) AS unit_price,
		       coalesce(p.artist_id, s.artist_id) AS artist_id
		FROM cart_items c
		LEFT JOIN products p ON p.id = c.product_id
		LEFT JOIN songs s ON s.id = c.song_id
		WHERE c.person_id = $1
		ORDER BY c.added_at`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []CartLine
	for rows.Next() {
		var l CartLine
		if err := rows.Scan(&l.ProductID, &l.SongID, &l.Title, &l.Quantity, &l.UnitPrice, &l.ArtistID); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) CreateOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO orders (order_number, person_id, status, subtotal, discount_total, tax_total, total, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		o.OrderNumber, o.PersonID, o.Status, o.Subtotal, o.Discount, o.Tax, o.Total, o.Note,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertItem(ctx context.Context, item Item) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO order_items (order_id, product_id, song_id, title, quantity, unit_price, line_total, artist_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.OrderID, item.ProductID, item.SongID, item.Title, item.Quantity, item.UnitPrice, item.LineTotal, item.ArtistID)
	return err
}

func (r *repository) InsertOrderCoupon(ctx context.Context, orderID, couponID int64, amount float64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO order_coupons (order_id, coupon_id, amount_applied)
		VALUES ($1, $2, $3)`, orderID, couponID, amount)
	return err
}

func (r *repository) IncrementCouponUse(ctx context.Context, couponID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE coupons
		SET use_count = use_count + 1, updated_at = now()
		WHERE id = $1 AND (max_uses IS NULL OR use_count < max_uses)`, couponID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponExhausted
	}
	return nil
}

func (r *repository) ClearCart(ctx context.Context, personID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE person_id = $1`, personID)
	return err
}

const orderColumns = `id, order_number, person_id, status, subtotal, discount_total, tax_total, total, note, created_at, completed_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.PersonID, &o.Status, &o.Subtotal, &o.Discount,
		&o.Tax, &o.Total, &o.Note, &o.CreatedAt, &o.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.db.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *repository) GetItems(ctx context.Context, orderID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, song_id, title, quantity, unit_price, line_total, artist_id
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.SongID, &item.Title,
			&item.Quantity, &item.UnitPrice, &item.LineTotal, &item.ArtistID); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) ListByPerson(ctx context.Context, personID int64) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE person_id = $1 ORDER BY created_at DESC`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $1, completed_at = $2 WHERE id = $3`, status, completedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
