package overrides

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no active override exists for the pair.
	ErrNotFound = errors.New("overrides: not found")
	// ErrConflict indicates a concurrent write raced the single-active-override
	// constraint. Callers may retry.
	ErrConflict = errors.New("overrides: concurrent override update")
	// ErrExpiryInPast rejects an override that would be born expired.
	ErrExpiryInPast = errors.New("overrides: expiry must be in the future")
)

// Override is an explicit per-user allow or deny that supersedes the role
// grant for that user. At most one override per (user, permission) pair is
// active at any time; setting a new one supersedes the prior.
type Override struct {
	ID           int64
	BusinessID   int64
	UserID       int64
	PermissionID int64
	IsAllowed    bool
	GrantedBy    int64
	GrantedAt    time.Time
	ExpiresAt    *time.Time
	Active       bool
}

// ActiveAt reports whether the override is in force at the given instant.
func (o Override) ActiveAt(t time.Time) bool {
	if !o.Active {
		return false
	}
	return o.ExpiresAt == nil || o.ExpiresAt.After(t)
}
