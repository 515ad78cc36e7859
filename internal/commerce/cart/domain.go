// Package cart implements the pre-order staging table: one row per
// (person, product-or-song), with repeat adds folded into the quantity.
package cart

import "time"

// Item is one cart line. Exactly one of ProductID/SongID is set; the
// schema enforces the exclusive-or and the per-person uniqueness of each
// reference.
type Item struct {
	ID        int64     `json:"id"`
	PersonID  int64     `json:"person_id"`
	ProductID *int64    `json:"product_id,omitempty"`
	SongID    *int64    `json:"song_id,omitempty"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
