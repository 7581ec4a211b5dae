package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is the capability tag carried by an authenticated identity. The
// upstream identity provider resolves credentials to a role; this package
// only ever sees the claim.
const (
	// RoleService marks trusted backend processes. Service actors bypass
	// policy evaluation entirely.
	RoleService = "service"
	// RoleStaff marks clinic staff members.
	RoleStaff = "staff"
	// RolePatient marks an authenticated portal patient. The actor ID is
	// the patient's internal identity key.
	RolePatient = "patient"
	// RoleAnonymous marks unauthenticated callers, e.g. the portal login
	// page before sign-in.
	RoleAnonymous = "anonymous"
)

// Actor is the identity attempting an operation. Predicates receive the
// actor's role and ID only, never credentials.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// Anonymous returns the actor used for unauthenticated requests.
func Anonymous() Actor {
	return Actor{Role: RoleAnonymous}
}

// IsAnonymous reports whether the actor carries no authenticated identity.
func (a Actor) IsAnonymous() bool {
	return a.Role == "" || a.Role == RoleAnonymous
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the actor from context. Requests that never
// passed through the auth middleware resolve to the anonymous actor.
func ActorFromContext(ctx context.Context) Actor {
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok {
		return Anonymous()
	}
	return actor
}
