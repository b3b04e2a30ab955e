// Package identity carries the acting user through a request context.
package identity

import (
	"context"

	"civicpulse-be/apperr"
)

type Role string

const (
	RoleCitizen Role = "citizen"
	RoleAdmin   Role = "admin"
)

// NormalizeRole maps unknown or empty roles to citizen.
func NormalizeRole(role string) Role {
	if Role(role) == RoleAdmin {
		return RoleAdmin
	}
	return RoleCitizen
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type actorKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// FromContext returns the actor in ctx, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

// Require returns the actor or an Unauthorized error.
func Require(ctx context.Context) (Actor, error) {
	actor, ok := FromContext(ctx)
	if !ok {
		return Actor{}, apperr.New(apperr.KindUnauthorized, "authentication required")
	}
	return actor, nil
}

// RequireAdmin returns the actor if it holds the admin role.
func RequireAdmin(ctx context.Context) (Actor, error) {
	actor, err := Require(ctx)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsAdmin() {
		return Actor{}, apperr.New(apperr.KindForbidden, "administrator role required")
	}
	return actor, nil
}
