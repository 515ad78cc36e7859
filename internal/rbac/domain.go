// Package rbac implements role-based access control: a role and permission
// catalog, person-to-role assignments with optional expiry, and the
// permission checks the HTTP layer mounts as middleware.
package rbac

import "time"

// Role is a named bundle of permissions.
type Role struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Permission is a named capability, granted to roles. Name is the dotted
// resource.action pair; Resource and Action carry the two halves
// separately for filtering.
type Permission struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Resource    string  `json:"resource"`
	Action      string  `json:"action"`
	Description *string `json:"description,omitempty"`
}

// Assignment links a person to a role. A nil ExpiresAt means the
// assignment does not expire; an expired assignment stays on record but
// no longer grants anything.
type Assignment struct {
	PersonID   int64      `json:"person_id"`
	RoleID     int64      `json:"role_id"`
	AssignedBy *int64     `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the assignment grants its role at the given
// instant.
func (a Assignment) ActiveAt(t time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}
