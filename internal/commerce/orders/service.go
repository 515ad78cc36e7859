package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/melodium-shop/melodium/internal/commerce/coupons"
	"github.com/melodium-shop/melodium/internal/commerce/pricing"
	"github.com/melodium-shop/melodium/internal/platform/db"
	"github.com/melodium-shop/melodium/internal/shared"
)

// CouponSource resolves a coupon code. Satisfied by the coupons service.
type CouponSource interface {
	GetByCode(ctx context.Context, code string) (coupons.Coupon, error)
}

// LoyaltyAwarder credits loyalty points after a paid-for checkout.
// Satisfied by the identity service; nil disables awarding.
type LoyaltyAwarder interface {
	AwardLoyalty(ctx context.Context, personID, points int64) error
}

// Attempts at inserting an order before giving up on order-number
// collisions. A collision needs two checkouts sharing a date stamp and a
// random 24-bit suffix, so one retry nearly always suffices.
const numberAttempts = 3

// Service implements checkout and order lifecycle management. All
// monetary amounts are recomputed server-side; client-supplied totals are
// never trusted.
type Service struct {
	logger  *slog.Logger
	repo    Repository
	coupons CouponSource
	loyalty LoyaltyAwarder
	now     func() time.Time
	number  func(time.Time) string
}

// NewService builds a Service instance. loyalty may be nil.
func NewService(logger *slog.Logger, repo Repository, coupons CouponSource, loyalty LoyaltyAwarder) *Service {
	return &Service{
		logger:  logger,
		repo:    repo,
		coupons: coupons,
		loyalty: loyalty,
		now:     time.Now,
		number:  NewOrderNumber,
	}
}

// Quote is a checkout preview: the priced lines and the resulting totals.
type Quote struct {
	Lines  []CartLine      `json:"lines"`
	Coupon *coupons.Coupon `json:"coupon,omitempty"`
	Totals pricing.Totals  `json:"totals"`
}

// ErrEmptyCart rejects checkout of an empty cart.
var ErrEmptyCart = fmt.Errorf("%w: cart is empty", shared.ErrPolicy)

// Preview computes the checkout breakdown without writing anything. Used
// for cart display and coupon-apply feedback.
func (s *Service) Preview(ctx context.Context, personID int64, couponCode string) (Quote, error) {
	lines, err := s.repo.LoadCartDetail(ctx, personID)
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, lines, couponCode)
}

func (s *Service) quote(ctx context.Context, lines []CartLine, couponCode string) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, ErrEmptyCart
	}
	var subtotal float64
	for _, l := range lines {
		subtotal += l.UnitPrice * float64(l.Quantity)
	}
	subtotal = pricing.Round2(subtotal)

	var (
		applied  *coupons.Coupon
		discount float64
	)
	if couponCode != "" {
		c, err := s.coupons.GetByCode(ctx, couponCode)
		if err != nil {
			return Quote{}, err
		}
		if err := coupons.Redeemable(c, subtotal, s.now()); err != nil {
			return Quote{}, err
		}
		discount = coupons.DiscountFor(c, subtotal)
		applied = &c
	}
	return Quote{
		Lines:  lines,
		Coupon: applied,
		Totals: pricing.ComputeTotals(subtotal, discount),
	}, nil
}

// Checkout converts the person's cart into an order: recompute the quote,
// insert the order with a generated number, snapshot every cart line as
// an order item at its current price, record and count the coupon
// redemption, then clear the cart — all in one transaction. A rollback
// leaves no partial order and an intact cart.
func (s *Service) Checkout(ctx context.Context, personID int64, couponCode string, note *string) (Order, error) {
	var order Order
	for attempt := 1; ; attempt++ {
		err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			lines, err := repo.LoadCartDetail(ctx, personID)
			if err != nil {
				return err
			}
			q, err := s.quote(ctx, lines, couponCode)
			if err != nil {
				return err
			}

			order = Order{
				OrderNumber: s.number(s.now()),
				PersonID:    personID,
				Status:      StatusPending,
				Subtotal:    q.Totals.Subtotal,
				Discount:    q.Totals.Discount,
				Tax:         q.Totals.Tax,
				Total:       q.Totals.Total,
				Note:        note,
			}
			orderID, err := repo.CreateOrder(ctx, order)
			if err != nil {
				return err
			}
			order.ID = orderID

			order.Items = order.Items[:0]
			for _, l := range q.Lines {
				item := Item{
					OrderID:   orderID,
					ProductID: l.ProductID,
					SongID:    l.SongID,
					Title:     l.Title,
					Quantity:  l.Quantity,
					UnitPrice: l.UnitPrice,
					LineTotal: pricing.Round2(l.UnitPrice * float64(l.Quantity)),
					ArtistID:  l.ArtistID,
				}
				if err := repo.InsertItem(ctx, item); err != nil {
					return err
				}
				order.Items = append(order.Items, item)
			}

			if q.Coupon != nil {
				if err := repo.InsertOrderCoupon(ctx, orderID, q.Coupon.ID, q.Totals.Discount); err != nil {
					return err
				}
				if err := repo.IncrementCouponUse(ctx, q.Coupon.ID); err != nil {
					if errors.Is(err, ErrCouponExhausted) {
						return coupons.ErrExhausted
					}
					return err
				}
			}

			return repo.ClearCart(ctx, personID)
		})
		if err == nil {
			s.logger.Info("order created",
				slog.String("order_number", order.OrderNumber),
				slog.Int64("person_id", personID),
				slog.Float64("total", order.Total))
			s.awardLoyalty(ctx, personID, order)
			return order, nil
		}
		if db.IsUniqueViolation(err) && attempt < numberAttempts {
			s.logger.Warn("order number collision, retrying",
				slog.String("order_number", order.OrderNumber),
				slog.Int("attempt", attempt))
			continue
		}
		return Order{}, err
	}
}

// awardLoyalty credits one point per whole currency unit of the order
// total. The order already committed; a failed award is logged, never
// surfaced to the buyer.
func (s *Service) awardLoyalty(ctx context.Context, personID int64, order Order) {
	if s.loyalty == nil {
		return
	}
	points := int64(order.Total)
	if points <= 0 {
		return
	}
	if err := s.loyalty.AwardLoyalty(ctx, personID, points); err != nil {
		s.logger.Warn("loyalty award failed",
			slog.String("order_number", order.OrderNumber),
			slog.Int64("person_id", personID),
			slog.String("error", err.Error()))
	}
}

// Get fetches an order with its items. Non-owners need requireOwner
// disabled (staff views).
func (s *Service) Get(ctx context.Context, orderID int64, personID int64, requireOwner bool) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, notFoundOr(err, "order %d", orderID)
	}
	if requireOwner && order.PersonID != personID {
		return Order{}, fmt.Errorf("%w: order %d", shared.ErrNotFound, orderID)
	}
	order.Items, err = s.repo.GetItems(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// ListByPerson returns the person's orders, newest first, without items.
func (s *Service) ListByPerson(ctx context.Context, personID int64) ([]Order, error) {
	return s.repo.ListByPerson(ctx, personID)
}

// UpdateStatus moves an order along the state machine. Invalid moves are
// policy violations; terminal states stamp completed_at.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to Status) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, to)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, notFoundOr(err, "order %d", orderID)
	}
	if !CanTransition(order.Status, to) {
		return Order{}, fmt.Errorf("%w: cannot move order from %s to %s", shared.ErrPolicy, order.Status, to)
	}
	var completedAt *time.Time
	if to.Terminal() {
		t := s.now()
		completedAt = &t
	}
	if err := s.repo.UpdateStatus(ctx, orderID, to, completedAt); err != nil {
		return Order{}, notFoundOr(err, "order %d", orderID)
	}
	order.Status = to
	order.CompletedAt = completedAt
	return order, nil
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{shared.ErrNotFound}, args...)...)
	}
	return err
}
