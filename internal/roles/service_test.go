package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-bm/vantage/internal/audit"
	"github.com/vantage-bm/vantage/internal/catalog"
)

type memoryRoleStore struct {
	roles  map[int64]Role
	grants map[int64]map[int64]bool
	nextID int64
}

func newMemoryRoleStore() *memoryRoleStore {
	return &memoryRoleStore{
		roles:  make(map[int64]Role),
		grants: make(map[int64]map[int64]bool),
		nextID: 100,
	}
}

func (m *memoryRoleStore) seed(role Role) Role {
	m.roles[role.ID] = role
	return role
}

func (m *memoryRoleStore) ListRoles(ctx context.Context, businessID int64) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		if role.IsSystemRole || role.BusinessID == businessID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memoryRoleStore) GetRole(ctx context.Context, businessID, roleID int64) (Role, error) {
	role, ok := m.roles[roleID]
	if !ok || !role.OwnedBy(businessID) {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memoryRoleStore) CreateRole(ctx context.Context, businessID int64, name, description string) (Role, error) {
	m.nextID++
	role := Role{ID: m.nextID, BusinessID: businessID, Name: name, Description: description}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRoleStore) UpdateRole(ctx context.Context, businessID, roleID int64, name, description string) (Role, error) {
	role, err := m.GetRole(ctx, businessID, roleID)
	if err != nil {
		return Role{}, err
	}
	role.Name = name
	role.Description = description
	m.roles[roleID] = role
	return role, nil
}

func (m *memoryRoleStore) GetRolePermissions(ctx context.Context, businessID, roleID int64) ([]catalog.Permission, error) {
	var out []catalog.Permission
	for permID := range m.grants[roleID] {
		out = append(out, catalog.Permission{ID: permID})
	}
	return out, nil
}

func (m *memoryRoleStore) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	if m.grants[roleID] == nil {
		m.grants[roleID] = make(map[int64]bool)
	}
	m.grants[roleID][permissionID] = true
	return nil
}

func (m *memoryRoleStore) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	delete(m.grants[roleID], permissionID)
	return nil
}

func (m *memoryRoleStore) ListRolesForUser(ctx context.Context, userID, businessID int64) ([]Role, error) {
	return nil, nil
}

type recordingSink struct {
	entries []audit.Entry
}

func (r *recordingSink) Record(entry audit.Entry) bool {
	r.entries = append(r.entries, entry)
	return true
}

func TestCreateRoleRecordsChange(t *testing.T) {
	store := newMemoryRoleStore()
	sink := &recordingSink{}
	svc := NewService(store, sink)

	role, err := svc.CreateRole(context.Background(), 7, 1, "  Shift Lead ", "front of house")
	require.NoError(t, err)
	require.Equal(t, "Shift Lead", role.Name)
	require.Len(t, sink.entries, 1)
	require.Equal(t, audit.ActionRoleCreate, sink.entries[0].Action)
}

func TestCreateRoleRejectsEmptyName(t *testing.T) {
	svc := NewService(newMemoryRoleStore(), nil)

	_, err := svc.CreateRole(context.Background(), 7, 1, "   ", "")
	require.Error(t, err)
}

func TestUpdateSystemRoleRejected(t *testing.T) {
	store := newMemoryRoleStore()
	store.seed(Role{ID: 1, Name: "Owner", IsSystemRole: true})
	svc := NewService(store, nil)

	_, err := svc.UpdateRole(context.Background(), 7, 1, 1, "Renamed", "")
	require.ErrorIs(t, err, ErrSystemRole)
}

func TestGrantPermissionIdempotent(t *testing.T) {
	store := newMemoryRoleStore()
	store.seed(Role{ID: 10, BusinessID: 7, Name: "Cashier"})
	sink := &recordingSink{}
	svc := NewService(store, sink)

	require.NoError(t, svc.GrantPermission(context.Background(), 7, 1, 10, 42))
	require.NoError(t, svc.GrantPermission(context.Background(), 7, 1, 10, 42))

	perms, err := svc.GetRolePermissions(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	require.Len(t, sink.entries, 2)
}

func TestRevokePermissionIdempotent(t *testing.T) {
	store := newMemoryRoleStore()
	store.seed(Role{ID: 10, BusinessID: 7, Name: "Cashier"})
	svc := NewService(store, nil)

	require.NoError(t, svc.GrantPermission(context.Background(), 7, 1, 10, 42))
	require.NoError(t, svc.RevokePermission(context.Background(), 7, 1, 10, 42))
	require.NoError(t, svc.RevokePermission(context.Background(), 7, 1, 10, 42))

	perms, err := svc.GetRolePermissions(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestGrantPermissionOtherTenantRoleRejected(t *testing.T) {
	store := newMemoryRoleStore()
	store.seed(Role{ID: 10, BusinessID: 99, Name: "Cashier"})
	svc := NewService(store, nil)

	err := svc.GrantPermission(context.Background(), 7, 1, 10, 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGrantPermissionSystemRoleRejected(t *testing.T) {
	store := newMemoryRoleStore()
	store.seed(Role{ID: 1, Name: "Owner", IsSystemRole: true})
	svc := NewService(store, nil)

	err := svc.GrantPermission(context.Background(), 7, 1, 1, 42)
	require.ErrorIs(t, err, ErrSystemRole)
}
