package catalog

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-bm/vantage/internal/platform/db"
)

// Repository provides PostgreSQL backed access to the permission catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPermissions returns the full catalog ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, category, resource_type, action FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
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

// EnsurePermission upserts a catalog entry. Used by migrations and seeders,
// never on the request path.
func (r *Repository) EnsurePermission(ctx context.Context, p Permission) (Permission, error) {
	return upsertPermission(ctx, r.pool, p)
}

// SeedPermissions upserts the given permissions in a single transaction, so a
// failed startup never leaves the catalog with only part of the set the router
// guards with.
func (r *Repository) SeedPermissions(ctx context.Context, perms []Permission) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range perms {
			if _, err := upsertPermission(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertPermission(ctx context.Context, q rowQuerier, p Permission) (Permission, error) {
	name := strings.TrimSpace(p.Name)
	row := q.QueryRow(ctx, `
		INSERT INTO permissions (name, category, resource_type, action)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET category = EXCLUDED.category, resource_type = EXCLUDED.resource_type, action = EXCLUDED.action
		RETURNING id, name, category, resource_type, action`,
		name, p.Category, p.ResourceType, p.Action)
	var out Permission
	if err := row.Scan(&out.ID, &out.Name, &out.Category, &out.ResourceType, &out.Action); err != nil {
		return Permission{}, err
	}
	return out, nil
}
