package auth

import "context"

type ctxKey string

const actorKey ctxKey = "actor_id"

// WithActor returns a context carrying the opaque actor identity token.
// The token comes from the caller (X-Actor-ID header) and is passed
// through to the movement log untouched.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// GetActorID returns the actor token, or "system" when none was supplied
// (background jobs, event listeners).
func GetActorID(ctx context.Context) string {
	if val, ok := ctx.Value(actorKey).(string); ok && val != "" {
		return val
	}
	return "system"
}
