package authz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vantage-bm/vantage/internal/audit"
	"github.com/vantage-bm/vantage/internal/shared"
)

type stubAuthorizer struct {
	decision Decision
	err      error

	gotUser       int64
	gotBusiness   int64
	gotPermission string
}

func (s *stubAuthorizer) Authorize(ctx context.Context, userID, businessID int64, permissionName string, reqCtx Context) (Decision, error) {
	s.gotUser = userID
	s.gotBusiness = businessID
	s.gotPermission = permissionName
	return s.decision, s.err
}

type captureRecorder struct {
	entries []audit.Entry
}

func (c *captureRecorder) Record(entry audit.Entry) bool {
	c.entries = append(c.entries, entry)
	return true
}

func authedRequest(t *testing.T) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req.RemoteAddr = "203.0.113.9:54321"
	sess := &shared.Session{ID: "test-session"}
	sess.SetIdentity(shared.Identity{UserID: 5, BusinessID: 7, RoleID: 2, Timezone: "UTC"})
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAllowsAndForwards(t *testing.T) {
	engine := &stubAuthorizer{decision: Decision{Allowed: true, Source: SourceRole}}
	recorder := &captureRecorder{}
	gateway := Gateway{Engine: engine, Recorder: recorder, Now: func() time.Time { return time.Unix(1700000000, 0) }}

	var called bool
	rec := httptest.NewRecorder()
	gateway.Require("invoices.approve")(okHandler(&called)).ServeHTTP(rec, authedRequest(t))

	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(5), engine.gotUser)
	require.Equal(t, int64(7), engine.gotBusiness)
	require.Equal(t, "invoices.approve", engine.gotPermission)
	require.Len(t, recorder.entries, 1)
	require.Equal(t, audit.ActionDecision, recorder.entries[0].Action)
	require.Equal(t, "allow", recorder.entries[0].Decision)
}

func TestRequireDeniesWith403(t *testing.T) {
	engine := &stubAuthorizer{decision: Decision{Allowed: false, Source: SourceDefault, Reason: "no grant"}}
	recorder := &captureRecorder{}
	gateway := Gateway{Engine: engine, Recorder: recorder}

	var called bool
	rec := httptest.NewRecorder()
	gateway.Require("invoices.approve")(okHandler(&called)).ServeHTTP(rec, authedRequest(t))

	require.False(t, called)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, recorder.entries, 1)
	require.Equal(t, "deny", recorder.entries[0].Decision)
}

func TestRequireUnauthenticatedGets401(t *testing.T) {
	engine := &stubAuthorizer{decision: Decision{Allowed: true}}
	gateway := Gateway{Engine: engine}

	var called bool
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	gateway.Require("invoices.approve")(okHandler(&called)).ServeHTTP(rec, req)

	require.False(t, called)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireFailsClosedOnEngineError(t *testing.T) {
	engine := &stubAuthorizer{err: errors.New("database timeout")}
	recorder := &captureRecorder{}
	gateway := Gateway{Engine: engine, Recorder: recorder}

	var called bool
	rec := httptest.NewRecorder()
	gateway.Require("invoices.approve")(okHandler(&called)).ServeHTTP(rec, authedRequest(t))

	require.False(t, called)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Len(t, recorder.entries, 1)
	require.Equal(t, audit.ActionSystemError, recorder.entries[0].Action)
}

func TestRequireTenantMismatchGets403(t *testing.T) {
	engine := &stubAuthorizer{err: ErrTenantMismatch}
	recorder := &captureRecorder{}
	gateway := Gateway{Engine: engine, Recorder: recorder}

	var called bool
	rec := httptest.NewRecorder()
	gateway.Require("invoices.approve")(okHandler(&called)).ServeHTTP(rec, authedRequest(t))

	require.False(t, called)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, recorder.entries, 1)
	require.Equal(t, audit.ActionTenantBreach, recorder.entries[0].Action)
}

func TestClientAddrParsesRemote(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	addr := clientAddr(req)
	require.True(t, addr.IsValid())
	require.Equal(t, "198.51.100.4", addr.String())

	req.RemoteAddr = "not-an-address"
	require.False(t, clientAddr(req).IsValid())
}
