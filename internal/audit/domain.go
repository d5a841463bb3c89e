package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit log.
const (
	ActionDecision     = "authz.decision"
	ActionSystemError  = "authz.system_error"
	ActionTenantBreach = "authz.tenant_mismatch"

	ActionRoleCreate      = "role.create"
	ActionRoleUpdate      = "role.update"
	ActionPermissionGrant = "role.permission_grant"
	ActionPermissionDrop  = "role.permission_revoke"
	ActionOverrideSet     = "override.set"
	ActionOverrideRevoke  = "override.revoke"
	ActionRuleCreate      = "rule.create"
	ActionRuleDelete      = "rule.delete"
)

// Entry is an append-only record of an authorization decision or an
// administrative change. Entries are never mutated or deleted in normal
// operation; retention is an external concern.
type Entry struct {
	ID             string    `json:"id"`
	BusinessID     int64     `json:"business_id"`
	ActorUserID    int64     `json:"actor_user_id"`
	SubjectUserID  int64     `json:"subject_user_id,omitempty"`
	Action         string    `json:"action"`
	PermissionName string    `json:"permission_name,omitempty"`
	Decision       string    `json:"decision,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEntry stamps an entry with an ID and timestamp.
func NewEntry(businessID, actorUserID int64, action string) Entry {
	return Entry{
		ID:          uuid.NewString(),
		BusinessID:  businessID,
		ActorUserID: actorUserID,
		Action:      action,
		OccurredAt:  time.Now().UTC(),
	}
}

// ListFilters narrows audit queries.
type ListFilters struct {
	From           time.Time
	To             time.Time
	Action         string
	PermissionName string
	SubjectUserID  int64
	Page           int
	PageSize       int
}
