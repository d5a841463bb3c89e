package authz

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/vantage-bm/vantage/internal/audit"
	"github.com/vantage-bm/vantage/internal/platform/httpx"
	"github.com/vantage-bm/vantage/internal/shared"
)

// Authorizer is the single call sites everywhere need.
type Authorizer interface {
	Authorize(ctx context.Context, userID, businessID int64, permissionName string, reqCtx Context) (Decision, error)
}

// Recorder receives decision entries. Must not block.
type Recorder interface {
	Record(entry audit.Entry) bool
}

// DecisionObserver counts decisions for metrics.
type DecisionObserver interface {
	ObserveDecision(source string, allowed bool)
}

// Gateway wires permission checks in front of HTTP handlers. It extracts the
// identity from the session, builds the request context, asks the engine, and
// short-circuits denied requests. Failures deny: a store error never lets a
// request through.
type Gateway struct {
	Engine   Authorizer
	Recorder Recorder
	Logger   *slog.Logger
	Metrics  DecisionObserver
	Now      func() time.Time
}

// Require ensures the current user holds the named permission.
func (g Gateway) Require(permissionName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := shared.IdentityFromContext(r.Context())
			if err != nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}

			decision, err := g.Engine.Authorize(r.Context(), identity.UserID, identity.BusinessID, permissionName, g.requestContext(r, identity))
			if err != nil {
				g.denyOnError(w, r, identity, permissionName, err)
				return
			}
			g.observe(decision)
			g.recordDecision(identity, permissionName, decision)
			if !decision.Allowed {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Check answers the same question the middleware asks, for callers that need
// the decision rather than a guarded handler.
func (g Gateway) Check(r *http.Request, identity shared.Identity, permissionName string) (Decision, error) {
	decision, err := g.Engine.Authorize(r.Context(), identity.UserID, identity.BusinessID, permissionName, g.requestContext(r, identity))
	if err != nil {
		g.recordError(identity, permissionName, err)
		return Decision{}, err
	}
	g.observe(decision)
	g.recordDecision(identity, permissionName, decision)
	return decision, nil
}

func (g Gateway) requestContext(r *http.Request, identity shared.Identity) Context {
	return Context{
		Now:      g.now(),
		Location: identity.Location(),
		ClientIP: clientAddr(r),
	}
}

func (g Gateway) denyOnError(w http.ResponseWriter, r *http.Request, identity shared.Identity, permissionName string, err error) {
	if g.Logger != nil {
		g.Logger.Error("authorization failed closed",
			slog.String("permission", permissionName),
			slog.Int64("user_id", identity.UserID),
			slog.Int64("business_id", identity.BusinessID),
			slog.Any("error", err))
	}
	g.recordError(identity, permissionName, err)
	if errors.Is(err, ErrTenantMismatch) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	httpx.RespondError(w, err)
}

func (g Gateway) recordDecision(identity shared.Identity, permissionName string, decision Decision) {
	if g.Recorder == nil {
		return
	}
	entry := audit.NewEntry(identity.BusinessID, identity.UserID, audit.ActionDecision)
	entry.SubjectUserID = identity.UserID
	entry.PermissionName = permissionName
	entry.Reason = decision.Reason
	entry.Decision = decisionLabel(decision.Allowed)
	g.Recorder.Record(entry)
}

func (g Gateway) recordError(identity shared.Identity, permissionName string, err error) {
	if g.Recorder == nil {
		return
	}
	action := audit.ActionSystemError
	if errors.Is(err, ErrTenantMismatch) {
		action = audit.ActionTenantBreach
	}
	entry := audit.NewEntry(identity.BusinessID, identity.UserID, action)
	entry.SubjectUserID = identity.UserID
	entry.PermissionName = permissionName
	entry.Decision = "deny"
	entry.Reason = err.Error()
	g.Recorder.Record(entry)
}

func (g Gateway) observe(decision Decision) {
	if g.Metrics != nil {
		g.Metrics.ObserveDecision(string(decision.Source), decision.Allowed)
	}
}

func (g Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}

// clientAddr parses the request's remote address. RealIP middleware has
// already rewritten it from forwarding headers where configured.
func clientAddr(r *http.Request) netip.Addr {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func decisionLabel(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
