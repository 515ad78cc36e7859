package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/melodium-shop/melodium/internal/platform/db"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Service implements the cart state machine per person.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Add puts a product or a song in the person's cart. Exactly one of the
// references must be supplied; adding an item already in the cart bumps
// its quantity instead of creating a second line.
func (s *Service) Add(ctx context.Context, personID int64, productID, songID *int64) (Item, error) {
	if (productID == nil) == (songID == nil) {
		return Item{}, fmt.Errorf("%w: exactly one of product or song must be supplied", shared.ErrValidation)
	}
	item, err := s.repo.Upsert(ctx, personID, productID, songID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Item{}, fmt.Errorf("%w: referenced item does not exist", shared.ErrNotFound)
		}
		return Item{}, err
	}
	return item, nil
}

// Items lists the person's cart lines.
func (s *Service) Items(ctx context.Context, personID int64) ([]Item, error) {
	return s.repo.Items(ctx, personID)
}

// Remove deletes one cart line. The line must belong to the requesting
// person; a guessed foreign id reports not-found, same as a missing one.
func (s *Service) Remove(ctx context.Context, personID, itemID int64) error {
	if err := s.repo.Remove(ctx, itemID, personID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: cart line %d", shared.ErrNotFound, itemID)
		}
		return err
	}
	return nil
}

// Clear empties the person's cart.
func (s *Service) Clear(ctx context.Context, personID int64) error {
	return s.repo.Clear(ctx, personID)
}

// Count returns the total quantity across the person's cart, 0 when
// empty.
func (s *Service) Count(ctx context.Context, personID int64) (int64, error) {
	return s.repo.Count(ctx, personID)
}
