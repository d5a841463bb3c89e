package authz

import (
	"errors"
	"net/netip"
	"time"
)

var (
	// ErrTenantMismatch indicates resolved data belongs to a different business
	// than the request. Always a hard deny, logged as a security anomaly.
	ErrTenantMismatch = errors.New("authz: tenant mismatch")
)

// Source identifies which layer produced a decision.
type Source string

const (
	SourceRole     Source = "role"
	SourceOverride Source = "override"
	SourceRule     Source = "rule"
	SourceDefault  Source = "default"
)

// Decision is the outcome of one authorization question. It is transient:
// logged, never persisted as an entity.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	Source        Source    `json:"source"`
	Reason        string    `json:"reason,omitempty"`
	MatchedRuleID int64     `json:"matched_rule_id,omitempty"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// Context carries the request attributes contextual rules evaluate against.
type Context struct {
	Now      time.Time
	Location *time.Location // subject timezone; nil means UTC
	ClientIP netip.Addr     // zero when unknown
}

func (c Context) at() time.Time {
	if c.Now.IsZero() {
		return time.Now().UTC()
	}
	return c.Now
}
