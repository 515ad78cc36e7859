package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/melodium-shop/melodium/internal/platform/db"
	"github.com/melodium-shop/melodium/internal/shared"
)

// Service enforces the access-control rules on top of the repository.
// Checks are evaluated at call time against current assignments, so a
// revocation or expiry takes effect on the next request.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateRole adds a role to the catalog.
func (s *Service) CreateRole(ctx context.Context, name string, description *string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", shared.ErrValidation)
	}
	role, err := s.repo.CreateRole(ctx, name, description)
	if db.IsUniqueViolation(err) {
		return Role{}, fmt.Errorf("%w: role %q already exists", shared.ErrConflict, name)
	}
	return role, err
}

// ListRoles returns the role catalog.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// DeleteRole removes a role. Assignments and grants cascade at the schema
// level.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return notFoundOr(err, "role %d", id)
	}
	return nil
}

// CreatePermission adds a permission to the catalog. Names are dotted
// resource.action pairs; the halves are stored alongside the name.
func (s *Service) CreatePermission(ctx context.Context, name string, description *string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name is required", shared.ErrValidation)
	}
	if resource, action, ok := strings.Cut(name, "."); !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: permission name %q must be a resource.action pair", shared.ErrValidation, name)
	}
	perm, err := s.repo.CreatePermission(ctx, name, description)
	if db.IsUniqueViolation(err) {
		return Permission{}, fmt.Errorf("%w: permission %q already exists", shared.ErrConflict, name)
	}
	return perm, err
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// RolePermissions lists the permissions granted to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, notFoundOr(err, "role %d", roleID)
	}
	return s.repo.RolePermissions(ctx, roleID)
}

// GrantPermission attaches a permission to a role. Granting twice is a
// no-op.
func (s *Service) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	err := s.repo.GrantPermission(ctx, roleID, permissionID)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: role %d or permission %d", shared.ErrNotFound, roleID, permissionID)
	}
	return err
}

// RevokePermission detaches a permission from a role.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	return s.repo.RevokePermission(ctx, roleID, permissionID)
}

// AssignInput carries a role-assignment request.
type AssignInput struct {
	PersonID   int64
	RoleName   string
	AssignedBy *int64
	ExpiresAt  *time.Time
}

// Assign grants a role to a person, optionally time-boxed. Assigning a
// role the person already holds is a conflict so callers notice the
// existing (possibly differently-expiring) assignment.
func (s *Service) Assign(ctx context.Context, in AssignInput) (Assignment, error) {
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return Assignment{}, fmt.Errorf("%w: expiry must be in the future", shared.ErrValidation)
	}
	role, err := s.repo.GetRoleByName(ctx, in.RoleName)
	if err != nil {
		return Assignment{}, notFoundOr(err, "role %q", in.RoleName)
	}
	a := Assignment{
		PersonID:   in.PersonID,
		RoleID:     role.ID,
		AssignedBy: in.AssignedBy,
		AssignedAt: s.now(),
		ExpiresAt:  in.ExpiresAt,
	}
	if err := s.repo.Assign(ctx, a); err != nil {
		if db.IsUniqueViolation(err) {
			return Assignment{}, fmt.Errorf("%w: person %d already holds role %q", shared.ErrConflict, in.PersonID, in.RoleName)
		}
		if db.IsForeignKeyViolation(err) {
			return Assignment{}, fmt.Errorf("%w: person %d", shared.ErrNotFound, in.PersonID)
		}
		return Assignment{}, err
	}
	return a, nil
}

// Revoke removes a role assignment.
func (s *Service) Revoke(ctx context.Context, personID int64, roleName string) error {
	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		return notFoundOr(err, "role %q", roleName)
	}
	if err := s.repo.Revoke(ctx, personID, role.ID); err != nil {
		return notFoundOr(err, "assignment of %q to person %d", roleName, personID)
	}
	return nil
}

// AssignmentsFor lists a person's role assignments, expired ones included.
func (s *Service) AssignmentsFor(ctx context.Context, personID int64) ([]Assignment, error) {
	return s.repo.AssignmentsFor(ctx, personID)
}

// HasPermission reports whether the person holds the permission through
// any unexpired role right now.
func (s *Service) HasPermission(ctx context.Context, personID int64, permission string) (bool, error) {
	return s.repo.HasPermission(ctx, personID, permission, s.now())
}

// HasAnyPermission reports whether the person holds at least one of the
// permissions.
func (s *Service) HasAnyPermission(ctx context.Context, personID int64, permissions ...string) (bool, error) {
	for _, p := range permissions {
		ok, err := s.repo.HasPermission(ctx, personID, p, s.now())
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// EffectivePermissions returns the distinct permission names the person
// currently holds.
func (s *Service) EffectivePermissions(ctx context.Context, personID int64) ([]string, error) {
	return s.repo.EffectivePermissions(ctx, personID, s.now())
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{shared.ErrNotFound}, args...)...)
	}
	return err
}
