package coupons

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/melodium-shop/melodium/internal/shared"
)

type fakeRepo struct {
	nextID  int64
	coupons map[int64]Coupon
	now     time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{coupons: map[int64]Coupon{}, now: time.Now()}
}

func (f *fakeRepo) Create(ctx context.Context, c Coupon) (int64, error) {
	for _, existing := range f.coupons {
		if strings.EqualFold(existing.Code, c.Code) {
			return 0, &pgconn.PgError{Code: "23505"}
		}
	}
	f.nextID++
	c.ID = f.nextID
	f.coupons[c.ID] = c
	return c.ID, nil
}

func (f *fakeRepo) GetByCode(ctx context.Context, code string) (Coupon, error) {
	for _, c := range f.coupons {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return Coupon{}, ErrNotFound
}

func (f *fakeRepo) List(ctx context.Context, activeOnly bool) ([]Coupon, error) {
	var out []Coupon
	for id := int64(1); id <= f.nextID; id++ {
		if c, ok := f.coupons[id]; ok && (!activeOnly || c.IsActive) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRepo) SetActive(ctx context.Context, id int64, active bool) error {
	c, ok := f.coupons[id]
	if !ok {
		return ErrNotFound
	}
	c.IsActive = active
	f.coupons[id] = c
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, id int64) error {
	c, ok := f.coupons[id]
	if !ok {
		return ErrNotFound
	}
	// Redeemed coupons are referenced by order_coupons rows.
	if c.UseCount > 0 {
		return &pgconn.PgError{Code: "23503"}
	}
	delete(f.coupons, id)
	return nil
}

func (f *fakeRepo) DeactivateDead(ctx context.Context) (int64, error) {
	var n int64
	for id, c := range f.coupons {
		if !c.IsActive {
			continue
		}
		expired := c.ValidUntil != nil && c.ValidUntil.Before(f.now)
		exhausted := c.MaxUses != nil && c.UseCount >= *c.MaxUses
		if expired || exhausted {
			c.IsActive = false
			f.coupons[id] = c
			n++
		}
	}
	return n, nil
}

func validInput() CreateInput {
	return CreateInput{
		Code:          "save20",
		Description:   "twenty percent off",
		DiscountType:  DiscountPercentage,
		DiscountValue: 20,
		MaxDiscount:   f64(10),
		CreatedByKind: CreatorAdmin,
		CreatedBy:     1,
	}
}

func TestCreateUppercasesCode(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	c, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.Equal(t, "SAVE20", c.Code)
	require.True(t, c.IsActive)

	// Lookup is case-insensitive.
	got, err := svc.GetByCode(context.Background(), "Save20")
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
}

func TestCreateDuplicateCodeConflicts(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Code = "SAVE20"
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newFakeRepo())
	ctx := context.Background()

	in := validInput()
	in.Code = " "
	_, err := svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = validInput()
	in.DiscountValue = 150
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = validInput()
	in.DiscountType = DiscountFixed
	in.MaxDiscount = f64(5)
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation, "max discount is a percentage-only knob")

	in = validInput()
	from := time.Now()
	until := from.Add(-time.Hour)
	in.ValidFrom, in.ValidUntil = &from, &until
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in = validInput()
	in.MaxUses = i64(0)
	_, err = svc.Create(ctx, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSweepDead(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	fresh, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Code = "GONE"
	until := repo.now.Add(-time.Hour)
	in.ValidUntil = &until
	expired, err := svc.Create(ctx, in)
	require.NoError(t, err)

	n, err := svc.SweepDead(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.True(t, repo.coupons[fresh.ID].IsActive)
	require.False(t, repo.coupons[expired.ID].IsActive)
}

func TestGetByCodeNotFound(t *testing.T) {
	svc := NewService(newFakeRepo())
	_, err := svc.GetByCode(context.Background(), "GHOST")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRefusesRedeemedCoupon(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	unused, err := svc.Create(ctx, CreateInput{
		Code: "unused", DiscountType: DiscountFixed, DiscountValue: 5,
		CreatedByKind: CreatorAdmin, CreatedBy: 1,
	})
	require.NoError(t, err)
	redeemed, err := svc.Create(ctx, CreateInput{
		Code: "redeemed", DiscountType: DiscountFixed, DiscountValue: 5,
		CreatedByKind: CreatorAdmin, CreatedBy: 1,
	})
	require.NoError(t, err)
	c := repo.coupons[redeemed.ID]
	c.UseCount = 3
	repo.coupons[redeemed.ID] = c

	require.NoError(t, svc.Delete(ctx, unused.ID))
	require.ErrorIs(t, svc.Delete(ctx, redeemed.ID), shared.ErrConflict)
	require.ErrorIs(t, svc.Delete(ctx, 999), shared.ErrNotFound)
}
