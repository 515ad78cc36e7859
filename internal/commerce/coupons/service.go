package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/melodium-shop/melodium/internal/platform/db"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Service manages the coupon catalog. Redemption accounting happens in
// the checkout transaction, not here.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput carries a coupon-creation request.
type CreateInput struct {
	Code          string
	Description   string
	DiscountType  DiscountType
	DiscountValue float64
	MinPurchase   *float64
	MaxDiscount   *float64
	CreatedByKind CreatorKind
	CreatedBy     int64
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	MaxUses       *int64
}

// Create validates and stores a new coupon. Codes are stored uppercase
// and matched case-insensitively at redemption.
func (s *Service) Create(ctx context.Context, in CreateInput) (Coupon, error) {
	if err := validateCreate(in); err != nil {
		return Coupon{}, err
	}
	c := Coupon{
		Code:          strings.ToUpper(strings.TrimSpace(in.Code)),
		Description:   strings.TrimSpace(in.Description),
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		MinPurchase:   in.MinPurchase,
		MaxDiscount:   in.MaxDiscount,
		CreatedByKind: in.CreatedByKind,
		CreatedBy:     in.CreatedBy,
		ValidFrom:     in.ValidFrom,
		ValidUntil:    in.ValidUntil,
		MaxUses:       in.MaxUses,
		IsActive:      true,
	}
	id, err := s.repo.Create(ctx, c)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Coupon{}, fmt.Errorf("%w: coupon code %q already exists", shared.ErrConflict, c.Code)
		}
		return Coupon{}, err
	}
	c.ID = id
	return c, nil
}

// GetByCode fetches a coupon by its case-insensitive code.
func (s *Service) GetByCode(ctx context.Context, code string) (Coupon, error) {
	c, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Coupon{}, fmt.Errorf("%w: coupon %q", shared.ErrNotFound, code)
		}
		return Coupon{}, err
	}
	return c, nil
}

// List returns coupons, optionally limited to active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	return s.repo.List(ctx, activeOnly)
}

// Deactivate flags a coupon inactive; existing order_coupons records are
// unaffected.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: coupon %d", shared.ErrNotFound, id)
		}
		return err
	}
	return nil
}

// Delete removes a coupon outright. Refused once any order has redeemed
// it; deactivate instead to preserve redemption history.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.Delete(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: coupon %d", shared.ErrNotFound, id)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: coupon %d has been redeemed; deactivate it instead", shared.ErrConflict, id)
	default:
		return err
	}
}

// SweepDead deactivates coupons past their validity window or usage cap.
// Used by the background sweeper; redemption never depends on it.
func (s *Service) SweepDead(ctx context.Context) (int64, error) {
	return s.repo.DeactivateDead(ctx)
}

func validateCreate(in CreateInput) error {
	switch {
	case strings.TrimSpace(in.Code) == "":
		return fmt.Errorf("%w: code is required", shared.ErrValidation)
	case in.DiscountValue <= 0:
		return fmt.Errorf("%w: discount value must be positive", shared.ErrValidation)
	}
	switch in.DiscountType {
	case DiscountPercentage:
		if in.DiscountValue > 100 {
			return fmt.Errorf("%w: percentage discount cannot exceed 100", shared.ErrValidation)
		}
	case DiscountFixed:
		if in.MaxDiscount != nil {
			return fmt.Errorf("%w: max discount only applies to percentage coupons", shared.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown discount type %q", shared.ErrValidation, in.DiscountType)
	}
	switch in.CreatedByKind {
	case CreatorAdmin, CreatorVendor, CreatorArtist:
	default:
		return fmt.Errorf("%w: unknown creator kind %q", shared.ErrValidation, in.CreatedByKind)
	}
	if in.MinPurchase != nil && *in.MinPurchase < 0 {
		return fmt.Errorf("%w: minimum purchase cannot be negative", shared.ErrValidation)
	}
	if in.MaxDiscount != nil && *in.MaxDiscount <= 0 {
		return fmt.Errorf("%w: max discount must be positive", shared.ErrValidation)
	}
	if in.MaxUses != nil && *in.MaxUses <= 0 {
		return fmt.Errorf("%w: max uses must be positive", shared.ErrValidation)
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.ValidFrom) {
		return fmt.Errorf("%w: validity window ends before it starts", shared.ErrValidation)
	}
	return nil
}
