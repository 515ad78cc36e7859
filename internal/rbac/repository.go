package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for roles, permissions
// and assignments. Permission checks are single queries over the join
// chain so they always reflect the current grants.
type Repository interface {
	CreateRole(ctx context.Context, name string, description *string) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	DeleteRole(ctx context.Context, id int64) error

	CreatePermission(ctx context.Context, name string, description *string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID int64) error
	RevokePermission(ctx context.Context, roleID, permissionID int64) error

	Assign(ctx context.Context, a Assignment) error
	Revoke(ctx context.Context, personID, roleID int64) error
	AssignmentsFor(ctx context.Context, personID int64) ([]Assignment, error)

	HasPermission(ctx context.Context, personID int64, permission string, at time.Time) (bool, error)
	EffectivePermissions(ctx context.Context, personID int64, at time.Time) ([]string, error)
}

// ErrNotFound indicates the rbac record does not exist.
var ErrNotFound = errors.New("rbac: record not found")

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) CreateRole(ctx context.Context, name string, description *string) (Role, error) {
	var role Role
	// The column is NOT NULL DEFAULT ''; an omitted description must not
	// arrive as an explicit NULL.
	err := r.db.QueryRow(ctx, `
		INSERT INTO roles (name, description) VALUES ($1, coalesce($2, ''))
		RETURNING id, name, description`,
		name, description,
	).Scan(&role.ID, &role.Name, &role.Description)
	return role, err
}

func (r *repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description FROM roles WHERE id = $1`, id,
	).Scan(&role.ID, &role.Name, &role.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

func (r *repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `
		SELECT id, name, description FROM roles WHERE name = $1`, name,
	).Scan(&role.ID, &role.Name, &role.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

func (r *repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) CreatePermission(ctx context.Context, name string, description *string) (Permission, error) {
	var perm Permission
	// Permission names are dotted resource.action pairs; the columns are
	// derived rather than accepted separately.
	err := r.db.QueryRow(ctx, `
		INSERT INTO permissions (name, resource, action, description)
		VALUES ($1, split_part($1, '.', 1), split_part($1, '.', 2), coalesce($2, ''))
		RETURNING id, name, resource, action, description`,
		name, description,
	).Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &perm.Description)
	return perm, err
}

func (r *repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, resource, action, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *repository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, p.resource, p.action, p.description
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *repository) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, roleID, permissionID)
	return err
}

func (r *repository) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	return err
}

func (r *repository) Assign(ctx context.Context, a Assignment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO person_roles (person_id, role_id, assigned_by, expires_at)
		VALUES ($1, $2, $3, $4)`,
		a.PersonID, a.RoleID, a.AssignedBy, a.ExpiresAt)
	return err
}

func (r *repository) Revoke(ctx context.Context, personID, roleID int64) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM person_roles WHERE person_id = $1 AND role_id = $2`,
		personID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AssignmentsFor(ctx context.Context, personID int64) ([]Assignment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT person_id, role_id, assigned_by, assigned_at, expires_at
		FROM person_roles WHERE person_id = $1 ORDER BY assigned_at`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.PersonID, &a.RoleID, &a.AssignedBy, &a.AssignedAt, &a.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) HasPermission(ctx context.Context, personID int64, permission string, at time.Time) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM person_roles pr
			JOIN role_permissions rp ON rp.role_id = pr.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE pr.person_id = $1
			  AND p.name = $2
			  AND (pr.expires_at IS NULL OR pr.expires_at > $3)
		)`, personID, permission, at,
	).Scan(&ok)
	return ok, err
}

func (r *repository) EffectivePermissions(ctx context.Context, personID int64, at time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT p.name
		FROM person_roles pr
		JOIN role_permissions rp ON rp.role_id = pr.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE pr.person_id = $1
		  AND (pr.expires_at IS NULL OR pr.expires_at > $2)
		ORDER BY p.name`, personID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
