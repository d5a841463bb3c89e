package overrides

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-bm/vantage/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for user overrides.
//
// The table carries a partial unique index on (user_id, permission_id) WHERE
// active, so two simultaneously active overrides for one pair cannot exist
// even if two SetOverride transactions race.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetActiveOverride returns the override in force for the pair at asOf, or nil
// when none exists. Expiry is enforced here and nowhere else: callers treat
// returned overrides as already filtered.
func (r *Repository) GetActiveOverride(ctx context.Context, businessID, userID, permissionID int64, asOf time.Time) (*Override, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, business_id, user_id, permission_id, is_allowed, granted_by, granted_at, expires_at, active
		FROM user_overrides
		WHERE business_id = $1 AND user_id = $2 AND permission_id = $3
		  AND active AND (expires_at IS NULL OR expires_at > $4)`,
		businessID, userID, permissionID, asOf)
	var o Override
	if err := row.Scan(&o.ID, &o.BusinessID, &o.UserID, &o.PermissionID, &o.IsAllowed, &o.GrantedBy, &o.GrantedAt, &o.ExpiresAt, &o.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// SetOverride atomically replaces any active override for the pair. The
// deactivate-then-insert runs in one serializable transaction; a unique
// violation from a racing writer surfaces as ErrConflict.
func (r *Repository) SetOverride(ctx context.Context, o Override) (Override, error) {
	var out Override
	err := db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE user_overrides SET active = FALSE, revoked_at = NOW()
			WHERE business_id = $1 AND user_id = $2 AND permission_id = $3 AND active`,
			o.BusinessID, o.UserID, o.PermissionID); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO user_overrides (business_id, user_id, permission_id, is_allowed, granted_by, granted_at, expires_at, active)
			VALUES ($1, $2, $3, $4, $5, NOW(), $6, TRUE)
			RETURNING id, business_id, user_id, permission_id, is_allowed, granted_by, granted_at, expires_at, active`,
			o.BusinessID, o.UserID, o.PermissionID, o.IsAllowed, o.GrantedBy, o.ExpiresAt)
		return row.Scan(&out.ID, &out.BusinessID, &out.UserID, &out.PermissionID, &out.IsAllowed, &out.GrantedBy, &out.GrantedAt, &out.ExpiresAt, &out.Active)
	})
	if err != nil {
		if isUniqueViolation(err) || isSerializationFailure(err) {
			return Override{}, fmt.Errorf("%w: %s", ErrConflict, err.Error())
		}
		return Override{}, err
	}
	return out, nil
}

// RevokeOverride marks the active override inactive. History rows are kept for
// audit reconstruction. Revoking when nothing is active returns ErrNotFound.
func (r *Repository) RevokeOverride(ctx context.Context, businessID, userID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_overrides SET active = FALSE, revoked_at = NOW()
		WHERE business_id = $1 AND user_id = $2 AND permission_id = $3 AND active`,
		businessID, userID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveOverrides returns the overrides in force for a user at asOf.
func (r *Repository) ListActiveOverrides(ctx context.Context, businessID, userID int64, asOf time.Time) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, user_id, permission_id, is_allowed, granted_by, granted_at, expires_at, active
		FROM user_overrides
		WHERE business_id = $1 AND user_id = $2
		  AND active AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY granted_at DESC`, businessID, userID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]Override, 0)
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.ID, &o.BusinessID, &o.UserID, &o.PermissionID, &o.IsAllowed, &o.GrantedBy, &o.GrantedAt, &o.ExpiresAt, &o.Active); err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SweepExpired marks overrides whose expiry has passed as inactive. Expiry is
// already enforced at read time; this is table hygiene run from the worker.
func (r *Repository) SweepExpired(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_overrides SET active = FALSE
		WHERE active AND expires_at IS NOT NULL AND expires_at <= $1`, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
