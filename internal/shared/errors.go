// Package shared holds cross-module primitives: the error taxonomy,
// request context helpers and the session store.
package shared

import "errors"

// Error kinds returned by the core. Callers distinguish "you made a
// mistake" (validation, not-found, conflict, policy) from "something
// broke" (anything not wrapping one of these).
var (
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the referenced entity does not exist or does
	// not belong to the requesting person.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation: duplicate stage name,
	// duplicate active email, duplicate role assignment, duplicate bridge
	// pair.
	ErrConflict = errors.New("already exists")
	// ErrPolicy indicates a business rule rejection: coupon expired or
	// exhausted, empty-cart checkout, permission denied.
	ErrPolicy = errors.New("policy violation")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
