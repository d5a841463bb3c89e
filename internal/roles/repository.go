package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-bm/vantage/internal/catalog"
)

// Repository provides PostgreSQL backed persistence for roles and role grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns the business's own roles plus shared system roles.
func (r *Repository) ListRoles(ctx context.Context, businessID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, COALESCE(business_id, 0), name, description, is_system_role, created_at, updated_at
		FROM roles
		WHERE business_id = $1 OR is_system_role
		ORDER BY name`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// GetRole fetches a role by ID, scoped to the business. System roles resolve
// for every tenant.
func (r *Repository) GetRole(ctx context.Context, businessID, roleID int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(business_id, 0), name, description, is_system_role, created_at, updated_at
		FROM roles
		WHERE id = $1 AND (business_id = $2 OR is_system_role)`, roleID, businessID)
	var role Role
	if err := row.Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a tenant-owned role.
func (r *Repository) CreateRole(ctx context.Context, businessID int64, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (business_id, name, description, is_system_role)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, COALESCE(business_id, 0), name, description, is_system_role, created_at, updated_at`,
		businessID, name, description)
	var role Role
	if err := row.Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates name and description of a tenant-owned role.
func (r *Repository) UpdateRole(ctx context.Context, businessID, roleID int64, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $3, description = $4, updated_at = NOW()
		WHERE id = $1 AND business_id = $2 AND NOT is_system_role
		RETURNING id, COALESCE(business_id, 0), name, description, is_system_role, created_at, updated_at`,
		roleID, businessID, name, description)
	var role Role
	if err := row.Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GetRolePermissions returns the permissions granted to a role. A role with no
// grants yields an empty set, not an error.
func (r *Repository) GetRolePermissions(ctx context.Context, businessID, roleID int64) ([]catalog.Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.category, p.resource_type, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		JOIN roles ro ON ro.id = rp.role_id
		WHERE rp.role_id = $1 AND (ro.business_id = $2 OR ro.is_system_role)
		ORDER BY p.name`, roleID, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := make([]catalog.Permission, 0)
	for rows.Next() {
		var p catalog.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.ResourceType, &p.Action); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// GrantPermission attaches a permission to a role. Granting an existing pair
// is a no-op success so concurrent admin edits never surface conflicts.
func (r *Repository) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionID)
	return err
}

// RevokePermission detaches a permission from a role. Revoking a pair that was
// never granted is a no-op success.
func (r *Repository) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

// ListRolesForUser returns the roles a user holds within a business. The data
// model supports additive roles even though most users hold exactly one.
func (r *Repository) ListRolesForUser(ctx context.Context, userID, businessID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ro.id, COALESCE(ro.business_id, 0), ro.name, ro.description, ro.is_system_role, ro.created_at, ro.updated_at
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.business_id = $2
		ORDER BY ro.name`, userID, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	roles := make([]Role, 0)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.BusinessID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}
