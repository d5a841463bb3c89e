package rules

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vantage-bm/vantage/internal/audit"
)

// Store is the persistence contract the service depends on.
type Store interface {
	ListRules(ctx context.Context, businessID int64) ([]Rule, error)
	CandidateRules(ctx context.Context, businessID, userID int64, roleIDs []int64, permissionID int64) ([]Rule, error)
	CreateRule(ctx context.Context, rule Rule) (Rule, error)
	DeleteRule(ctx context.Context, businessID, ruleID int64) error
}

// Recorder receives administrative change entries.
type Recorder interface {
	Record(entry audit.Entry) bool
}

// Service orchestrates business-rule management and matching.
type Service struct {
	store    Store
	recorder Recorder
}

// NewService constructs a Service.
func NewService(store Store, recorder Recorder) *Service {
	return &Service{store: store, recorder: recorder}
}

// ListRules returns every rule owned by the business.
func (s *Service) ListRules(ctx context.Context, businessID int64) ([]Rule, error) {
	return s.store.ListRules(ctx, businessID)
}

// GetApplicableRules fetches the rules attached to the user or their roles and
// keeps only those whose condition matches the request context. Order of the
// returned rules is unspecified; resolution defines its own precedence.
func (s *Service) GetApplicableRules(ctx context.Context, businessID, userID int64, roleIDs []int64, permissionID int64, evalCtx EvalContext) ([]Rule, error) {
	candidates, err := s.store.CandidateRules(ctx, businessID, userID, roleIDs, permissionID)
	if err != nil {
		return nil, err
	}
	matched := candidates[:0]
	for _, rule := range candidates {
		if !rule.AppliesTo(permissionID) {
			continue
		}
		if rule.Condition.Matches(evalCtx) {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

// CreateRule validates and persists a rule, then records the change.
func (s *Service) CreateRule(ctx context.Context, actorID int64, rule Rule) (Rule, error) {
	if rule.Effect != EffectAllow && rule.Effect != EffectDeny {
		return Rule{}, fmt.Errorf("%w: effect %q", ErrInvalidCondition, rule.Effect)
	}
	if rule.SubjectKind != SubjectRole && rule.SubjectKind != SubjectUser {
		return Rule{}, fmt.Errorf("%w: subject kind %q", ErrInvalidCondition, rule.SubjectKind)
	}
	if rule.Condition == nil {
		return Rule{}, fmt.Errorf("%w: condition required", ErrInvalidCondition)
	}
	if err := rule.Condition.Validate(); err != nil {
		return Rule{}, err
	}
	created, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return Rule{}, err
	}
	s.recordChange(rule.BusinessID, actorID, audit.ActionRuleCreate, "rule "+strconv.FormatInt(created.ID, 10)+" ("+string(rule.ConditionType)+" "+string(rule.Effect)+")")
	return created, nil
}

// DeleteRule removes a rule scoped to the business.
func (s *Service) DeleteRule(ctx context.Context, businessID, actorID, ruleID int64) error {
	if err := s.store.DeleteRule(ctx, businessID, ruleID); err != nil {
		return err
	}
	s.recordChange(businessID, actorID, audit.ActionRuleDelete, "rule "+strconv.FormatInt(ruleID, 10))
	return nil
}

func (s *Service) recordChange(businessID, actorID int64, action, reason string) {
	if s.recorder == nil {
		return
	}
	entry := audit.NewEntry(businessID, actorID, action)
	entry.Reason = reason
	s.recorder.Record(entry)
}
