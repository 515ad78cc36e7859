// Package orders implements checkout and the immutable order record: the
// preview/commit calculation pipeline, order-number generation and the
// status state machine.
package orders

import "time"

// Status is an order's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// transitions is the forward path plus the two absorbing alternates.
// Cancellation is only possible before payment; refunds only after.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusShipped, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusRefunded},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status completes the order. Terminal
// states stamp completed_at.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// Valid reports whether the status is a known state.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Order is an immutable purchase snapshot. Totals are fixed at checkout;
// later catalog or coupon changes never alter them.
type Order struct {
	ID          int64      `json:"id"`
	OrderNumber string     `json:"order_number"`
	PersonID    int64      `json:"person_id"`
	Status      Status     `json:"status"`
	Subtotal    float64    `json:"subtotal"`
	Discount    float64    `json:"discount_total"`
	Tax         float64    `json:"tax_total"`
	Total       float64    `json:"total"`
	Note        *string    `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Items []Item `json:"items,omitempty"`
}

// Item is one purchased line, snapshotted at checkout time. UnitPrice is
// the catalog price at purchase, decoupled from later price changes;
// ArtistID attributes the line for royalty reporting.
type Item struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"order_id"`
	ProductID *int64  `json:"product_id,omitempty"`
	SongID    *int64  `json:"song_id,omitempty"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
	ArtistID  *int64  `json:"artist_id,omitempty"`
}

// CartLine is a cart row joined with its catalog data: what checkout
// prices and snapshots.
type CartLine struct {
	ProductID *int64
	SongID    *int64
	Title     string
	Quantity  int
	UnitPrice float64
	ArtistID  *int64
}
