package rules

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the rule does not exist within the business.
	ErrNotFound = errors.New("rules: not found")
	// ErrInvalidCondition rejects a malformed condition payload.
	ErrInvalidCondition = errors.New("rules: invalid condition")
)

// Effect states what a matching rule contributes to resolution.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// SubjectKind discriminates what a rule is attached to.
type SubjectKind string

const (
	SubjectRole SubjectKind = "role"
	SubjectUser SubjectKind = "user"
)

// ConditionType discriminates the condition variant.
type ConditionType string

const (
	ConditionTimeWindow ConditionType = "time_window"
	ConditionDayOfWeek  ConditionType = "day_of_week"
	ConditionLocation   ConditionType = "location"
)

// Rule narrows when a grant or deny applies. A rule whose condition does not
// match the request context contributes nothing: neutral, never a default
// deny. PermissionID nil means the rule applies to every permission of its
// subject.
type Rule struct {
	ID            int64
	BusinessID    int64
	SubjectKind   SubjectKind
	SubjectID     int64
	PermissionID  *int64
	ConditionType ConditionType
	Condition     Condition
	Effect        Effect
	CreatedAt     time.Time
}

// AppliesTo reports whether the rule covers the given permission.
func (r Rule) AppliesTo(permissionID int64) bool {
	return r.PermissionID == nil || *r.PermissionID == permissionID
}
