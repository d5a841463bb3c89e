package roles

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/vantage-bm/vantage/internal/audit"
	"github.com/vantage-bm/vantage/internal/catalog"
)

// Store is the persistence contract the service depends on.
type Store interface {
	ListRoles(ctx context.Context, businessID int64) ([]Role, error)
	GetRole(ctx context.Context, businessID, roleID int64) (Role, error)
	CreateRole(ctx context.Context, businessID int64, name, description string) (Role, error)
	UpdateRole(ctx context.Context, businessID, roleID int64, name, description string) (Role, error)
	GetRolePermissions(ctx context.Context, businessID, roleID int64) ([]catalog.Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID int64) error
	RevokePermission(ctx context.Context, roleID, permissionID int64) error
	ListRolesForUser(ctx context.Context, userID, businessID int64) ([]Role, error)
}

// Recorder receives administrative change entries.
type Recorder interface {
	Record(entry audit.Entry) bool
}

// Service orchestrates role management for a tenant.
type Service struct {
	store    Store
	recorder Recorder
}

// NewService constructs a Service.
func NewService(store Store, recorder Recorder) *Service {
	return &Service{store: store, recorder: recorder}
}

// ListRoles returns the roles visible to a business.
func (s *Service) ListRoles(ctx context.Context, businessID int64) ([]Role, error) {
	return s.store.ListRoles(ctx, businessID)
}

// GetRole fetches a role scoped to the business.
func (s *Service) GetRole(ctx context.Context, businessID, roleID int64) (Role, error) {
	return s.store.GetRole(ctx, businessID, roleID)
}

// CreateRole inserts a tenant-owned role.
func (s *Service) CreateRole(ctx context.Context, businessID, actorID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	role, err := s.store.CreateRole(ctx, businessID, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordChange(businessID, actorID, audit.ActionRoleCreate, "role "+strconv.FormatInt(role.ID, 10)+" ("+role.Name+")")
	return role, nil
}

// UpdateRole renames or re-describes a tenant-owned role. System roles are
// read-only.
func (s *Service) UpdateRole(ctx context.Context, businessID, actorID, roleID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	existing, err := s.store.GetRole(ctx, businessID, roleID)
	if err != nil {
		return Role{}, err
	}
	if existing.IsSystemRole {
		return Role{}, ErrSystemRole
	}
	role, err := s.store.UpdateRole(ctx, businessID, roleID, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordChange(businessID, actorID, audit.ActionRoleUpdate, "role "+strconv.FormatInt(role.ID, 10))
	return role, nil
}

// GetRolePermissions returns the permission set granted to a role.
func (s *Service) GetRolePermissions(ctx context.Context, businessID, roleID int64) ([]catalog.Permission, error) {
	if _, err := s.store.GetRole(ctx, businessID, roleID); err != nil {
		return nil, err
	}
	return s.store.GetRolePermissions(ctx, businessID, roleID)
}

// GrantPermission attaches a permission to a role. Idempotent: granting an
// already granted permission succeeds without effect.
func (s *Service) GrantPermission(ctx context.Context, businessID, actorID, roleID, permissionID int64) error {
	role, err := s.store.GetRole(ctx, businessID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return ErrSystemRole
	}
	if err := s.store.GrantPermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.recordChange(businessID, actorID, audit.ActionPermissionGrant,
		"role "+strconv.FormatInt(roleID, 10)+" permission "+strconv.FormatInt(permissionID, 10))
	return nil
}

// RevokePermission detaches a permission from a role. Idempotent: revoking a
// permission that was never granted succeeds without effect.
func (s *Service) RevokePermission(ctx context.Context, businessID, actorID, roleID, permissionID int64) error {
	role, err := s.store.GetRole(ctx, businessID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return ErrSystemRole
	}
	if err := s.store.RevokePermission(ctx, roleID, permissionID); err != nil {
		return err
	}
	s.recordChange(businessID, actorID, audit.ActionPermissionDrop,
		"role "+strconv.FormatInt(roleID, 10)+" permission "+strconv.FormatInt(permissionID, 10))
	return nil
}

// ListRolesForUser returns the roles a user holds within a business.
func (s *Service) ListRolesForUser(ctx context.Context, userID, businessID int64) ([]Role, error) {
	return s.store.ListRolesForUser(ctx, userID, businessID)
}

func (s *Service) recordChange(businessID, actorID int64, action, reason string) {
	if s.recorder == nil {
		return
	}
	entry := audit.NewEntry(businessID, actorID, action)
	entry.Reason = reason
	s.recorder.Record(entry)
}
