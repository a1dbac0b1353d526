package domain

import (
	"context"
	"time"
)

// Account is a registered user of the service.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	ModifiedAt   time.Time
	CreatedBy    string
	ModifiedBy   string
}

// SystemActor stamps writes made by the service itself (bootstrap, migrations).
const SystemActor = "system"

type actorKey struct{}

// WithActor returns a context carrying the username of the caller performing a write.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorKey{}, username)
}

// ActorFrom returns the actor stored by WithActor, or fallback when none is set.
func ActorFrom(ctx context.Context, fallback string) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return fallback
}
