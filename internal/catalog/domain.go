package catalog

import "errors"

// ErrUnknownPermission indicates a permission name absent from the catalog.
// Callers treat this as a deny, never as a crash.
var ErrUnknownPermission = errors.New("catalog: unknown permission")

// Permission is an immutable catalog entry. Rows are created by system
// migration and never mutated by tenants.
type Permission struct {
	ID           int64
	Name         string
	Category     string
	ResourceType string
	Action       string
}
