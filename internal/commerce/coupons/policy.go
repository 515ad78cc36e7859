package coupons

import (
	"fmt"
	"time"

	"github.com/melodium-shop/melodium/internal/commerce/pricing"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Redemption policy failures. Each wraps shared.ErrPolicy so the HTTP
// layer maps them uniformly while callers still get the specific reason.
var (
	ErrInactive     = fmt.Errorf("%w: coupon is not active", shared.ErrPolicy)
	ErrNotStarted   = fmt.Errorf("%w: coupon is not yet valid", shared.ErrPolicy)
	ErrExpired      = fmt.Errorf("%w: coupon has expired", shared.ErrPolicy)
	ErrBelowMinimum = fmt.Errorf("%w: subtotal is below the coupon minimum", shared.ErrPolicy)
	ErrExhausted    = fmt.Errorf("%w: coupon usage limit reached", shared.ErrPolicy)
)

// Redeemable checks whether the coupon may be applied to the given
// subtotal at the given instant. Validity bounds are inclusive; a nil
// bound is unbounded on that side. Pure function, no side effects.
func Redeemable(c Coupon, subtotal float64, now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrNotStarted
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return ErrExpired
	}
	if c.MinPurchase != nil && subtotal < *c.MinPurchase {
		return fmt.Errorf("%w (minimum %.2f)", ErrBelowMinimum, *c.MinPurchase)
	}
	if c.MaxUses != nil && c.UseCount >= *c.MaxUses {
		return ErrExhausted
	}
	return nil
}

// DiscountFor computes the discount the coupon yields on a subtotal:
// percentage coupons take rate/100 of the subtotal capped at MaxDiscount;
// fixed coupons take min(value, subtotal) so the total never goes
// negative. The result is rounded to cents.
func DiscountFor(c Coupon, subtotal float64) float64 {
	var discount float64
	switch c.DiscountType {
	case DiscountPercentage:
		discount = subtotal * c.DiscountValue / 100
		if c.MaxDiscount != nil && discount > *c.MaxDiscount {
			discount = *c.MaxDiscount
		}
	case DiscountFixed:
		discount = c.DiscountValue
	}
	if discount > subtotal {
		discount = subtotal
	}
	return pricing.Round2(discount)
}
