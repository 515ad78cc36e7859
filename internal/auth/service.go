// Package auth implements credential login and the session middleware.
// The core modules never see cookies; this package resolves them into a
// person id.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/melodium-shop/melodium/internal/identity"
	"github.com/melodium-shop/melodium/internal/shared"
)

// CredentialStore is the slice of the identity repository login needs.
type CredentialStore interface {
	GetCustomerByUsername(ctx context.Context, username string) (identity.Customer, error)
	GetPerson(ctx context.Context, id int64) (identity.Person, error)
}

// Service verifies credentials.
type Service struct {
	store CredentialStore
}

// NewService builds a Service instance.
func NewService(store CredentialStore) *Service {
	return &Service{store: store}
}

// Login verifies a username/password pair and returns the person id.
// Unknown usernames and wrong passwords are indistinguishable to the
// caller; deactivated accounts are refused the same way.
func (s *Service) Login(ctx context.Context, username, password string) (int64, error) {
	customer, err := s.store.GetCustomerByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return 0, shared.ErrInvalidCredentials
		}
		return 0, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(password)); err != nil {
		return 0, shared.ErrInvalidCredentials
	}
	person, err := s.store.GetPerson(ctx, customer.PersonID)
	if err != nil {
		return 0, fmt.Errorf("auth: load person: %w", err)
	}
	if !person.IsActive {
		return 0, shared.ErrInvalidCredentials
	}
	return person.ID, nil
}
