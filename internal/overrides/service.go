package overrides

import (
	"context"
	"strconv"
	"time"

	"github.com/vantage-bm/vantage/internal/audit"
	"github.com/vantage-bm/vantage/internal/catalog"
)

// Store is the persistence contract the service depends on.
type Store interface {
	GetActiveOverride(ctx context.Context, businessID, userID, permissionID int64, asOf time.Time) (*Override, error)
	SetOverride(ctx context.Context, o Override) (Override, error)
	RevokeOverride(ctx context.Context, businessID, userID, permissionID int64) error
	ListActiveOverrides(ctx context.Context, businessID, userID int64, asOf time.Time) ([]Override, error)
}

// Catalog resolves permission names.
type Catalog interface {
	Lookup(name string) (catalog.Permission, error)
}

// Recorder receives administrative change entries.
type Recorder interface {
	Record(entry audit.Entry) bool
}

// Service orchestrates per-user override management.
type Service struct {
	store    Store
	catalog  Catalog
	recorder Recorder
	now      func() time.Time
}

// NewService constructs a Service.
func NewService(store Store, cat Catalog, recorder Recorder) *Service {
	return &Service{store: store, catalog: cat, recorder: recorder, now: time.Now}
}

// SetOverride replaces any active override for (user, permission) with a new
// one. expiresAt nil means the override never expires on its own.
func (s *Service) SetOverride(ctx context.Context, businessID, actorID, userID int64, permissionName string, isAllowed bool, expiresAt *time.Time) (Override, error) {
	perm, err := s.catalog.Lookup(permissionName)
	if err != nil {
		return Override{}, err
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return Override{}, ErrExpiryInPast
	}
	override, err := s.store.SetOverride(ctx, Override{
		BusinessID:   businessID,
		UserID:       userID,
		PermissionID: perm.ID,
		IsAllowed:    isAllowed,
		GrantedBy:    actorID,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		return Override{}, err
	}
	s.recordChange(businessID, actorID, userID, audit.ActionOverrideSet, perm.Name, decisionWord(isAllowed))
	return override, nil
}

// RevokeOverride deactivates the active override for the pair.
func (s *Service) RevokeOverride(ctx context.Context, businessID, actorID, userID int64, permissionName string) error {
	perm, err := s.catalog.Lookup(permissionName)
	if err != nil {
		return err
	}
	if err := s.store.RevokeOverride(ctx, businessID, userID, perm.ID); err != nil {
		return err
	}
	s.recordChange(businessID, actorID, userID, audit.ActionOverrideRevoke, perm.Name, "")
	return nil
}

// ListActiveOverrides returns the overrides currently in force for a user.
func (s *Service) ListActiveOverrides(ctx context.Context, businessID, userID int64) ([]Override, error) {
	return s.store.ListActiveOverrides(ctx, businessID, userID, s.now())
}

func (s *Service) recordChange(businessID, actorID, subjectID int64, action, permissionName, decision string) {
	if s.recorder == nil {
		return
	}
	entry := audit.NewEntry(businessID, actorID, action)
	entry.SubjectUserID = subjectID
	entry.PermissionName = permissionName
	entry.Decision = decision
	entry.Reason = "user " + strconv.FormatInt(subjectID, 10)
	s.recorder.Record(entry)
}

func decisionWord(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
