package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vantage-bm/vantage/internal/catalog"
	"github.com/vantage-bm/vantage/internal/overrides"
	"github.com/vantage-bm/vantage/internal/roles"
	"github.com/vantage-bm/vantage/internal/rules"
)

// Catalog resolves permission names against the immutable catalog snapshot.
type Catalog interface {
	Lookup(name string) (catalog.Permission, error)
}

// RoleStore supplies the RBAC base layer.
type RoleStore interface {
	ListRolesForUser(ctx context.Context, userID, businessID int64) ([]roles.Role, error)
	GetRolePermissions(ctx context.Context, businessID, roleID int64) ([]catalog.Permission, error)
}

// OverrideStore supplies the ABAC layer. Expiry is enforced by the store; the
// engine treats a returned override as in force.
type OverrideStore interface {
	GetActiveOverride(ctx context.Context, businessID, userID, permissionID int64, asOf time.Time) (*overrides.Override, error)
}

// RuleSource supplies contextual rules already filtered to those whose
// condition matches the request context.
type RuleSource interface {
	GetApplicableRules(ctx context.Context, businessID, userID int64, roleIDs []int64, permissionID int64, evalCtx rules.EvalContext) ([]rules.Rule, error)
}

// Engine combines role grants, user overrides, and contextual rules into a
// single authorization decision.
type Engine struct {
	catalog   Catalog
	roles     RoleStore
	overrides OverrideStore
	rules     RuleSource
}

// NewEngine constructs an Engine.
func NewEngine(cat Catalog, roleStore RoleStore, overrideStore OverrideStore, ruleSource RuleSource) *Engine {
	return &Engine{catalog: cat, roles: roleStore, overrides: overrideStore, rules: ruleSource}
}

// Authorize decides whether the user may perform the named permission within
// the business, given the request context.
//
// Precedence, highest first: contextual deny rule, active user override,
// contextual allow rule, role grant, default deny. Unknown permissions and
// store failures both fail closed: the former as a default-deny decision, the
// latter as a non-nil error the caller must treat as deny.
func (e *Engine) Authorize(ctx context.Context, userID, businessID int64, permissionName string, reqCtx Context) (Decision, error) {
	evaluatedAt := reqCtx.at()

	perm, err := e.catalog.Lookup(permissionName)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownPermission) {
			return Decision{Allowed: false, Source: SourceDefault, Reason: "unknown permission", EvaluatedAt: evaluatedAt}, nil
		}
		return Decision{}, fmt.Errorf("authz: catalog lookup: %w", err)
	}

	userRoles, err := e.roles.ListRolesForUser(ctx, userID, businessID)
	if err != nil {
		return Decision{}, fmt.Errorf("authz: list roles: %w", err)
	}
	roleIDs := make([]int64, 0, len(userRoles))
	for _, role := range userRoles {
		if !role.OwnedBy(businessID) {
			return Decision{}, fmt.Errorf("%w: role %d", ErrTenantMismatch, role.ID)
		}
		roleIDs = append(roleIDs, role.ID)
	}

	// The three lookups are independent; run them concurrently and join
	// before applying precedence.
	var (
		granted     bool
		override    *overrides.Override
		applicable  []rules.Rule
		evalContext = rules.EvalContext{Now: evaluatedAt, Location: reqCtx.Location, ClientIP: reqCtx.ClientIP}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, roleID := range roleIDs {
			perms, err := e.roles.GetRolePermissions(gctx, businessID, roleID)
			if err != nil {
				return fmt.Errorf("authz: role permissions: %w", err)
			}
			for _, p := range perms {
				if p.ID == perm.ID {
					granted = true
					return nil
				}
			}
		}
		return nil
	})
	g.Go(func() error {
		o, err := e.overrides.GetActiveOverride(gctx, businessID, userID, perm.ID, evaluatedAt)
		if err != nil {
			return fmt.Errorf("authz: override lookup: %w", err)
		}
		override = o
		return nil
	})
	g.Go(func() error {
		matched, err := e.rules.GetApplicableRules(gctx, businessID, userID, roleIDs, perm.ID, evalContext)
		if err != nil {
			return fmt.Errorf("authz: rule lookup: %w", err)
		}
		applicable = matched
		return nil
	})
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}

	if override != nil && override.BusinessID != businessID {
		return Decision{}, fmt.Errorf("%w: override %d", ErrTenantMismatch, override.ID)
	}

	var allowRuleID int64
	for _, rule := range applicable {
		if rule.BusinessID != businessID {
			return Decision{}, fmt.Errorf("%w: rule %d", ErrTenantMismatch, rule.ID)
		}
		if rule.Effect == rules.EffectDeny {
			// An explicit contextual deny is absolute.
			return Decision{Allowed: false, Source: SourceRule, Reason: "contextual deny rule", MatchedRuleID: rule.ID, EvaluatedAt: evaluatedAt}, nil
		}
		if allowRuleID == 0 {
			allowRuleID = rule.ID
		}
	}

	// An override, deny or allow, outranks a contextual allow rule.
	if override != nil {
		reason := "override deny"
		if override.IsAllowed {
			reason = "override allow"
		}
		return Decision{Allowed: override.IsAllowed, Source: SourceOverride, Reason: reason, EvaluatedAt: evaluatedAt}, nil
	}

	if allowRuleID != 0 {
		return Decision{Allowed: true, Source: SourceRule, Reason: "contextual allow rule", MatchedRuleID: allowRuleID, EvaluatedAt: evaluatedAt}, nil
	}

	if granted {
		return Decision{Allowed: true, Source: SourceRole, Reason: "role grant", EvaluatedAt: evaluatedAt}, nil
	}

	return Decision{Allowed: false, Source: SourceDefault, Reason: "no grant", EvaluatedAt: evaluatedAt}, nil
}
