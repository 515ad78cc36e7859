package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for cart lines.
type Repository interface {
	// Upsert inserts a line with quantity 1 or, when the person already
	// has the referenced item, increments its quantity. Exactly one of
	// productID/songID must be non-nil; callers validate that.
	Upsert(ctx context.Context, personID int64, productID, songID *int64) (Item, error)
	Items(ctx context.Context, personID int64) ([]Item, error)
	Remove(ctx context.Context, id, personID int64) error
	Clear(ctx context.Context, personID int64) error
	Count(ctx context.Context, personID int64) (int64, error)
}

// ErrNotFound indicates the cart line does not exist or belongs to
// someone else.
var ErrNotFound = errors.New("cart: line not found")

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

const itemColumns = `id, person_id, product_id, song_id, quantity, added_at, updated_at`

// The conflict target must name the partial unique index matching the
// reference kind, so the statement is chosen per branch.
const (
	upsertProduct = `
		INSERT INTO cart_items (person_id, product_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (person_id, product_id) WHERE product_id IS NOT NULL
		DO UPDATE SET quantity = cart_items.quantity + 1, updated_at = now()
		RETURNING ` + itemColumns

	upsertSong = `
		INSERT INTO cart_items (person_id, song_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (person_id, song_id) WHERE song_id IS NOT NULL
		DO UPDATE SET quantity = cart_items.quantity + 1, updated_at = now()
		RETURNING ` + itemColumns
)

func (r *repository) Upsert(ctx context.Context, personID int64, productID, songID *int64) (Item, error) {
	var (
		query string
		ref   int64
	)
	switch {
	case productID != nil:
		query, ref = upsertProduct, *productID
	case songID != nil:
		query, ref = upsertSong, *songID
	default:
		return Item{}, errors.New("cart: upsert needs a product or song reference")
	}
	var item Item
	err := r.db.QueryRow(ctx, query, personID, ref).Scan(
		&item.ID, &item.PersonID, &item.ProductID, &item.SongID, &item.Quantity, &item.AddedAt, &item.UpdatedAt)
	return item, err
}

func (r *repository) Items(ctx context.Context, personID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+itemColumns+` FROM cart_items WHERE person_id = $1 ORDER BY added_at`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.PersonID, &item.ProductID, &item.SongID,
			&item.Quantity, &item.AddedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) Remove(ctx context.Context, id, personID int64) error {
	// Compound filter: the row must exist AND belong to the requester.
	tag, err := r.db.Exec(ctx, `
		DELETE FROM cart_items WHERE id = $1 AND person_id = $2`, id, personID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Clear(ctx context.Context, personID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE person_id = $1`, personID)
	return err
}

func (r *repository) Count(ctx context.Context, personID int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT coalesce(sum(quantity), 0) FROM cart_items WHERE person_id = $1`, personID,
	).Scan(&n)
	return n, err
}
