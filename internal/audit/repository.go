package audit

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for audit entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertEntries appends a batch of entries. ON CONFLICT DO NOTHING keeps the
// at-least-once delivery from the recorder idempotent on entry ID.
func (r *Repository) InsertEntries(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO audit_entries (id, business_id, actor_user_id, subject_user_id, action, permission_name, decision, reason, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			e.ID, e.BusinessID, e.ActorUserID, nullableID(e.SubjectUserID), e.Action,
			optionalText(e.PermissionName), optionalText(e.Decision), optionalText(e.Reason), e.OccurredAt)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range entries {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListEntries returns entries for a business ordered by timestamp descending.
// One extra row is fetched to detect whether a next page exists.
func (r *Repository) ListEntries(ctx context.Context, businessID int64, filters ListFilters, limit, offset int) ([]Entry, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, actor_user_id, COALESCE(subject_user_id, 0), action,
		       COALESCE(permission_name, ''), COALESCE(decision, ''), COALESCE(reason, ''), occurred_at
		FROM audit_entries
		WHERE business_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at < $3)
		  AND ($4::text IS NULL OR action = $4)
		  AND ($5::text IS NULL OR permission_name = $5)
		  AND ($6::bigint IS NULL OR subject_user_id = $6)
		ORDER BY occurred_at DESC
		LIMIT $7 OFFSET $8`,
		businessID, optionalTime(filters.From), optionalTime(filters.To),
		optionalText(filters.Action), optionalText(filters.PermissionName),
		optionalInt8(filters.SubjectUserID), limit+1, offset)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.ActorUserID, &e.SubjectUserID, &e.Action, &e.PermissionName, &e.Decision, &e.Reason, &e.OccurredAt); err != nil {
			return nil, false, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasNext := len(entries) > limit
	if hasNext {
		entries = entries[:limit]
	}
	return entries, hasNext, nil
}

func nullableID(id int64) pgtype.Int8 {
	if id <= 0 {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: id, Valid: true}
}

func optionalInt8(id int64) pgtype.Int8 {
	return nullableID(id)
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
