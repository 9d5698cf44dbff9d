package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

type actorKey struct{}

func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor placed by the HTTP middleware, if any.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(model.Actor)
	return actor, ok
}

// GetUserID is a convenience for audit fields; empty when unauthenticated.
func GetUserID(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID
	}
	return ""
}

// ActorFromRequest reads the identity forwarded by the gateway. Authentication
// happens upstream; the headers are trusted here.
func ActorFromRequest(r *http.Request) (model.Actor, bool) {
	return ParseActor(r.Header.Get(HeaderUserID), r.Header.Get(HeaderUserRole))
}

// ParseActor builds an actor from forwarded values. Unknown roles fall back to
// the least privileged one.
func ParseActor(userID, role string) (model.Actor, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Actor{}, false
	}
	r := model.Role(strings.ToUpper(strings.TrimSpace(role)))
	switch r {
	case model.RoleAdmin, model.RoleStaff, model.RoleCashier, model.RoleVendor:
	default:
		r = model.RoleVendor
	}
	return model.Actor{UserID: userID, Role: r}, true
}

// RequireRole returns the actor when it holds one of roles, a ForbiddenError otherwise.
func RequireRole(ctx context.Context, roles ...model.Role) (model.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return model.Actor{}, &apperror.ForbiddenError{Message: "missing caller identity"}
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return actor, &apperror.ForbiddenError{Message: "role " + string(actor.Role) + " may not perform this action"}
}
