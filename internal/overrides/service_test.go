package overrides

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vantage-bm/vantage/internal/audit"
	"github.com/vantage-bm/vantage/internal/catalog"
)

type memoryOverrideStore struct {
	active map[string]Override
	nextID int64
}

func newMemoryOverrideStore() *memoryOverrideStore {
	return &memoryOverrideStore{active: make(map[string]Override)}
}

func overrideKey(userID, permissionID int64) string {
	return fmt.Sprintf("%d:%d", userID, permissionID)
}

func (m *memoryOverrideStore) GetActiveOverride(ctx context.Context, businessID, userID, permissionID int64, asOf time.Time) (*Override, error) {
	o, ok := m.active[overrideKey(userID, permissionID)]
	if !ok || o.BusinessID != businessID || !o.ActiveAt(asOf) {
		return nil, nil
	}
	return &o, nil
}

func (m *memoryOverrideStore) SetOverride(ctx context.Context, o Override) (Override, error) {
	m.nextID++
	o.ID = m.nextID
	o.Active = true
	o.GrantedAt = time.Now().UTC()
	m.active[overrideKey(o.UserID, o.PermissionID)] = o
	return o, nil
}

func (m *memoryOverrideStore) RevokeOverride(ctx context.Context, businessID, userID, permissionID int64) error {
	key := overrideKey(userID, permissionID)
	if _, ok := m.active[key]; !ok {
		return ErrNotFound
	}
	delete(m.active, key)
	return nil
}

func (m *memoryOverrideStore) ListActiveOverrides(ctx context.Context, businessID, userID int64, asOf time.Time) ([]Override, error) {
	var out []Override
	for _, o := range m.active {
		if o.BusinessID == businessID && o.UserID == userID && o.ActiveAt(asOf) {
			out = append(out, o)
		}
	}
	return out, nil
}

type staticCatalog struct{}

func (staticCatalog) Lookup(name string) (catalog.Permission, error) {
	if name != "invoices.approve" {
		return catalog.Permission{}, catalog.ErrUnknownPermission
	}
	return catalog.Permission{ID: 42, Name: name}, nil
}

type overrideSink struct {
	entries []audit.Entry
}

func (s *overrideSink) Record(entry audit.Entry) bool {
	s.entries = append(s.entries, entry)
	return true
}

func newTestService(store Store, sink Recorder) *Service {
	svc := NewService(store, staticCatalog{}, sink)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestSetOverrideResolvesPermission(t *testing.T) {
	store := newMemoryOverrideStore()
	sink := &overrideSink{}
	svc := newTestService(store, sink)

	o, err := svc.SetOverride(context.Background(), 7, 1, 5, "invoices.approve", true, nil)
	require.NoError(t, err)
	require.Equal(t, int64(42), o.PermissionID)
	require.Equal(t, int64(1), o.GrantedBy)
	require.True(t, o.Active)
	require.Len(t, sink.entries, 1)
	require.Equal(t, audit.ActionOverrideSet, sink.entries[0].Action)
	require.Equal(t, int64(5), sink.entries[0].SubjectUserID)
}

func TestSetOverrideUnknownPermission(t *testing.T) {
	svc := newTestService(newMemoryOverrideStore(), nil)

	_, err := svc.SetOverride(context.Background(), 7, 1, 5, "no.such", true, nil)
	require.ErrorIs(t, err, catalog.ErrUnknownPermission)
}

func TestSetOverrideExpiryInPast(t *testing.T) {
	svc := newTestService(newMemoryOverrideStore(), nil)

	past := time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC)
	_, err := svc.SetOverride(context.Background(), 7, 1, 5, "invoices.approve", true, &past)
	require.ErrorIs(t, err, ErrExpiryInPast)
}

func TestSetOverrideReplacesActive(t *testing.T) {
	store := newMemoryOverrideStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.SetOverride(ctx, 7, 1, 5, "invoices.approve", true, nil)
	require.NoError(t, err)
	_, err = svc.SetOverride(ctx, 7, 2, 5, "invoices.approve", false, nil)
	require.NoError(t, err)

	active, err := svc.ListActiveOverrides(ctx, 7, 5)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.False(t, active[0].IsAllowed)
	require.Equal(t, int64(2), active[0].GrantedBy)
}

func TestRevokeOverride(t *testing.T) {
	store := newMemoryOverrideStore()
	sink := &overrideSink{}
	svc := newTestService(store, sink)
	ctx := context.Background()

	_, err := svc.SetOverride(ctx, 7, 1, 5, "invoices.approve", true, nil)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeOverride(ctx, 7, 1, 5, "invoices.approve"))
	require.ErrorIs(t, svc.RevokeOverride(ctx, 7, 1, 5, "invoices.approve"), ErrNotFound)

	active, err := svc.ListActiveOverrides(ctx, 7, 5)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestExpiredOverrideNotListed(t *testing.T) {
	store := newMemoryOverrideStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	soon := time.Date(2025, 3, 10, 12, 0, 1, 0, time.UTC)
	_, err := svc.SetOverride(ctx, 7, 1, 5, "invoices.approve", true, &soon)
	require.NoError(t, err)

	svc.now = func() time.Time { return soon.Add(time.Minute) }
	active, err := svc.ListActiveOverrides(ctx, 7, 5)
	require.NoError(t, err)
	require.Empty(t, active)
}
