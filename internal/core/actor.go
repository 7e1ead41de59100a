package core

import (
	"context"

	"github.com/google/uuid"
)

type actorKey struct{}

// Actor identifies the authenticated user on whose behalf a service call runs.
type Actor struct {
	ID       uuid.UUID
	Username string
	Role     string
}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx. The zero Actor is returned for
// system calls (seeding, migrations, tests).
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// actorID returns the actor id as a nullable column value.
func actorID(ctx context.Context) *uuid.UUID {
	a := ActorFrom(ctx)
	if a.ID == uuid.Nil {
		return nil
	}
	return &a.ID
}
