package roles

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the role does not exist within the business.
	ErrNotFound = errors.New("roles: not found")
	// ErrSystemRole indicates an attempt to mutate a shared system role.
	ErrSystemRole = errors.New("roles: system roles are read-only")
)

// Role represents a permission grouping owned by a business. System roles are
// shared read-only templates with no owning business.
type Role struct {
	ID           int64
	BusinessID   int64 // zero for system roles
	Name         string
	Description  string
	IsSystemRole bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OwnedBy reports whether the role is visible to the given business. System
// roles are visible to every tenant.
func (r Role) OwnedBy(businessID int64) bool {
	return r.IsSystemRole || r.BusinessID == businessID
}
