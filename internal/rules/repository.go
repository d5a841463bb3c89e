package rules

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for business rules.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

// ListRules returns every rule owned by the business.
func (r *Repository) ListRules(ctx context.Context, businessID int64) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, subject_kind, subject_id, permission_id, condition_type, condition_payload, effect, created_at
		FROM business_rules
		WHERE business_id = $1
		ORDER BY id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanRules(rows)
}

// CandidateRules fetches the rules attached to the user or any of their roles
// that could cover the permission. Condition predicates are applied by the
// caller, not here.
func (r *Repository) CandidateRules(ctx context.Context, businessID, userID int64, roleIDs []int64, permissionID int64) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, subject_kind, subject_id, permission_id, condition_type, condition_payload, effect, created_at
		FROM business_rules
		WHERE business_id = $1
		  AND ((subject_kind = 'user' AND subject_id = $2)
		    OR (subject_kind = 'role' AND subject_id = ANY($3)))
		  AND (permission_id IS NULL OR permission_id = $4)`,
		businessID, userID, roleIDs, permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanRules(rows)
}

// CreateRule inserts a rule with an encoded condition payload.
func (r *Repository) CreateRule(ctx context.Context, rule Rule) (Rule, error) {
	payload, err := EncodeCondition(rule.Condition)
	if err != nil {
		return Rule{}, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO business_rules (business_id, subject_kind, subject_id, permission_id, condition_type, condition_payload, effect)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		rule.BusinessID, rule.SubjectKind, rule.SubjectID, nullableID(rule.PermissionID), rule.ConditionType, payload, rule.Effect)
	if err := row.Scan(&rule.ID, &rule.CreatedAt); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// DeleteRule removes a rule scoped to the business.
func (r *Repository) DeleteRule(ctx context.Context, businessID, ruleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM business_rules WHERE id = $1 AND business_id = $2`, ruleID, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanRules decodes rows, skipping rules whose stored payload no longer
// decodes. A broken rule must stay neutral rather than poison resolution.
func (r *Repository) scanRules(rows pgx.Rows) ([]Rule, error) {
	result := make([]Rule, 0)
	for rows.Next() {
		var (
			rule    Rule
			permID  pgtype.Int8
			payload []byte
		)
		if err := rows.Scan(&rule.ID, &rule.BusinessID, &rule.SubjectKind, &rule.SubjectID, &permID, &rule.ConditionType, &payload, &rule.Effect, &rule.CreatedAt); err != nil {
			return nil, err
		}
		if permID.Valid {
			rule.PermissionID = &permID.Int64
		}
		cond, err := DecodeCondition(rule.ConditionType, payload)
		if err != nil {
			if errors.Is(err, ErrInvalidCondition) {
				r.logger.Warn("skipping rule with undecodable condition", slog.Int64("rule_id", rule.ID), slog.Any("error", err))
				continue
			}
			return nil, err
		}
		rule.Condition = cond
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableID(id *int64) pgtype.Int8 {
	if id == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *id, Valid: true}
}
