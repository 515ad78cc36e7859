// Package coupons implements the discount-code catalog and the redemption
// policy checkout consults.
package coupons

import "time"

// DiscountType enumerates how a coupon's value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// CreatorKind enumerates who issued a coupon.
type CreatorKind string

const (
	CreatorAdmin  CreatorKind = "admin"
	CreatorVendor CreatorKind = "vendor"
	CreatorArtist CreatorKind = "artist"
)

// Coupon is a discount code. MaxDiscount only applies to percentage
// coupons; MinPurchase and the validity bounds are optional (nil means
// unbounded). UseCount tracks redemptions against the optional MaxUses
// cap.
type Coupon struct {
	ID            int64        `json:"id"`
	Code          string       `json:"code"`
	Description   string       `json:"description"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue float64      `json:"discount_value"`
	MinPurchase   *float64     `json:"min_purchase,omitempty"`
	MaxDiscount   *float64     `json:"max_discount,omitempty"`
	CreatedByKind CreatorKind  `json:"created_by_kind"`
	CreatedBy     int64        `json:"created_by"`
	ValidFrom     *time.Time   `json:"valid_from,omitempty"`
	ValidUntil    *time.Time   `json:"valid_until,omitempty"`
	UseCount      int64        `json:"use_count"`
	MaxUses       *int64       `json:"max_uses,omitempty"`
	IsActive      bool         `json:"is_active"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
