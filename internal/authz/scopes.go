package authz

import "github.com/vantage-bm/vantage/internal/catalog"

// Core platform permissions guarding the administrative API itself.
const (
	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"

	PermOverridesView = "overrides.view"
	PermOverridesEdit = "overrides.edit"

	PermRulesView = "rules.view"
	PermRulesEdit = "rules.edit"

	PermAuditView = "audit.view"
)

// CorePermissions lists the catalog entries the platform itself depends on.
// They are ensured at startup so a fresh database can guard its own admin API.
func CorePermissions() []catalog.Permission {
	return []catalog.Permission{
		{Name: PermRolesView, Category: "platform", ResourceType: "role", Action: "view"},
		{Name: PermRolesEdit, Category: "platform", ResourceType: "role", Action: "edit"},
		{Name: PermPermissionsView, Category: "platform", ResourceType: "permission", Action: "view"},
		{Name: PermOverridesView, Category: "platform", ResourceType: "override", Action: "view"},
		{Name: PermOverridesEdit, Category: "platform", ResourceType: "override", Action: "edit"},
		{Name: PermRulesView, Category: "platform", ResourceType: "rule", Action: "view"},
		{Name: PermRulesEdit, Category: "platform", ResourceType: "rule", Action: "edit"},
		{Name: PermAuditView, Category: "platform", ResourceType: "audit_entry", Action: "view"},
	}
}
