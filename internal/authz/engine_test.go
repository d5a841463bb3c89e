package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vantage-bm/vantage/internal/catalog"
	"github.com/vantage-bm/vantage/internal/overrides"
	"github.com/vantage-bm/vantage/internal/roles"
	"github.com/vantage-bm/vantage/internal/rules"
)

type fakeCatalog struct {
	perms map[string]catalog.Permission
}

func (f *fakeCatalog) Lookup(name string) (catalog.Permission, error) {
	p, ok := f.perms[name]
	if !ok {
		return catalog.Permission{}, catalog.ErrUnknownPermission
	}
	return p, nil
}

type fakeRoleStore struct {
	roles     []roles.Role
	grants    map[int64][]catalog.Permission
	rolesErr  error
	grantsErr error
}

func (f *fakeRoleStore) ListRolesForUser(ctx context.Context, userID, businessID int64) ([]roles.Role, error) {
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	return f.roles, nil
}

func (f *fakeRoleStore) GetRolePermissions(ctx context.Context, businessID, roleID int64) ([]catalog.Permission, error) {
	if f.grantsErr != nil {
		return nil, f.grantsErr
	}
	return f.grants[roleID], nil
}

type fakeOverrideStore struct {
	override *overrides.Override
	err      error
}

func (f *fakeOverrideStore) GetActiveOverride(ctx context.Context, businessID, userID, permissionID int64, asOf time.Time) (*overrides.Override, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.override == nil || !f.override.ActiveAt(asOf) {
		return nil, nil
	}
	return f.override, nil
}

type fakeRuleSource struct {
	rules []rules.Rule
	err   error
}

func (f *fakeRuleSource) GetApplicableRules(ctx context.Context, businessID, userID int64, roleIDs []int64, permissionID int64, evalCtx rules.EvalContext) ([]rules.Rule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

const testBusinessID = int64(7)

func testEngine(roleStore *fakeRoleStore, overrideStore *fakeOverrideStore, ruleSource *fakeRuleSource) *Engine {
	cat := &fakeCatalog{perms: map[string]catalog.Permission{
		"invoices.approve": {ID: 42, Name: "invoices.approve", Category: "finance", ResourceType: "invoice", Action: "approve"},
	}}
	if roleStore == nil {
		roleStore = &fakeRoleStore{}
	}
	if overrideStore == nil {
		overrideStore = &fakeOverrideStore{}
	}
	if ruleSource == nil {
		ruleSource = &fakeRuleSource{}
	}
	return NewEngine(cat, roleStore, overrideStore, ruleSource)
}

func reqCtx() Context {
	return Context{Now: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)}
}

func TestAuthorizeDefaultDeny(t *testing.T) {
	engine := testEngine(nil, nil, nil)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, SourceDefault, decision.Source)
}

func TestAuthorizeUnknownPermissionDenies(t *testing.T) {
	engine := testEngine(nil, nil, nil)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "no.such.permission", reqCtx())
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, SourceDefault, decision.Source)
	require.Equal(t, "unknown permission", decision.Reason)
}

func TestAuthorizeRoleGrantAllows(t *testing.T) {
	roleStore := &fakeRoleStore{
		roles:  []roles.Role{{ID: 3, BusinessID: testBusinessID, Name: "Manager"}},
		grants: map[int64][]catalog.Permission{3: {{ID: 42, Name: "invoices.approve"}}},
	}
	engine := testEngine(roleStore, nil, nil)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, SourceRole, decision.Source)
}

func TestAuthorizeSystemRoleGrantAllows(t *testing.T) {
	roleStore := &fakeRoleStore{
		roles:  []roles.Role{{ID: 1, BusinessID: 0, Name: "Owner", IsSystemRole: true}},
		grants: map[int64][]catalog.Permission{1: {{ID: 42, Name: "invoices.approve"}}},
	}
	engine := testEngine(roleStore, nil, nil)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestAuthorizeOverrideBeatsRoleGrant(t *testing.T) {
	roleStore := &fakeRoleStore{
		roles:  []roles.Role{{ID: 3, BusinessID: testBusinessID}},
		grants: map[int64][]catalog.Permission{3: {{ID: 42}}},
	}
	overrideStore := &fakeOverrideStore{override: &overrides.Override{
		ID: 9, BusinessID: testBusinessID, UserID: 1, PermissionID: 42, IsAllowed: false, Active: true,
	}}
	engine := testEngine(roleStore, overrideStore, nil)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, SourceOverride, decision.Source)
}

func TestAuthorizeOverrideAllowWithoutGrant(t *testing.T) {
	overrideStore := &fakeOverrideStore{override: &overrides.Override{
		ID: 9, BusinessID: testBusinessID, UserID: 1, PermissionID: 42, IsAllowed: true, Active: true,
	}}
	engine := testEngine(nil, overrideStore, nil)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, SourceOverride, decision.Source)
}

func TestAuthorizeExpiredOverrideIgnored(t *testing.T) {
	expired := reqCtx().Now.Add(-time.Hour)
	overrideStore := &fakeOverrideStore{override: &overrides.Override{
		ID: 9, BusinessID: testBusinessID, UserID: 1, PermissionID: 42, IsAllowed: true, Active: true,
		ExpiresAt: &expired,
	}}
	engine := testEngine(nil, overrideStore, nil)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, SourceDefault, decision.Source)
}

func TestAuthorizeDenyRuleBeatsOverride(t *testing.T) {
	overrideStore := &fakeOverrideStore{override: &overrides.Override{
		ID: 9, BusinessID: testBusinessID, UserID: 1, PermissionID: 42, IsAllowed: true, Active: true,
	}}
	ruleSource := &fakeRuleSource{rules: []rules.Rule{
		{ID: 11, BusinessID: testBusinessID, Effect: rules.EffectDeny},
	}}
	engine := testEngine(nil, overrideStore, ruleSource)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, SourceRule, decision.Source)
	require.Equal(t, int64(11), decision.MatchedRuleID)
}

func TestAuthorizeOverrideDenyBeatsAllowRule(t *testing.T) {
	overrideStore := &fakeOverrideStore{override: &overrides.Override{
		ID: 9, BusinessID: testBusinessID, UserID: 1, PermissionID: 42, IsAllowed: false, Active: true,
	}}
	ruleSource := &fakeRuleSource{rules: []rules.Rule{
		{ID: 11, BusinessID: testBusinessID, Effect: rules.EffectAllow},
	}}
	engine := testEngine(nil, overrideStore, ruleSource)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, SourceOverride, decision.Source)
}

func TestAuthorizeAllowRuleWithoutGrant(t *testing.T) {
	ruleSource := &fakeRuleSource{rules: []rules.Rule{
		{ID: 11, BusinessID: testBusinessID, Effect: rules.EffectAllow},
	}}
	engine := testEngine(nil, nil, ruleSource)

	decision, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, SourceRule, decision.Source)
	require.Equal(t, int64(11), decision.MatchedRuleID)
}

func TestAuthorizeStoreErrorFailsClosed(t *testing.T) {
	boom := errors.New("connection reset")
	roleStore := &fakeRoleStore{
		roles:     []roles.Role{{ID: 3, BusinessID: testBusinessID}},
		grantsErr: boom,
	}
	engine := testEngine(roleStore, nil, nil)

	_, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}

func TestAuthorizeTenantMismatchRole(t *testing.T) {
	roleStore := &fakeRoleStore{
		roles: []roles.Role{{ID: 3, BusinessID: 99}},
	}
	engine := testEngine(roleStore, nil, nil)

	_, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.ErrorIs(t, err, ErrTenantMismatch)
}

func TestAuthorizeTenantMismatchOverride(t *testing.T) {
	overrideStore := &fakeOverrideStore{override: &overrides.Override{
		ID: 9, BusinessID: 99, UserID: 1, PermissionID: 42, IsAllowed: true, Active: true,
	}}
	engine := testEngine(nil, overrideStore, nil)

	_, err := engine.Authorize(context.Background(), 1, testBusinessID, "invoices.approve", reqCtx())
	require.ErrorIs(t, err, ErrTenantMismatch)
}
