package role

import "context"

// OverrideRepository stores per-actor permission overrides. An override is a
// single (category, action, allowed) grant or revoke applied on top of the
// actor's level bucket.
type OverrideRepository interface {
	GetForActor(ctx context.Context, actorRef string) (Overrides, error)
	Set(ctx context.Context, actorRef, category, action string, allowed bool) error
	Clear(ctx context.Context, actorRef, category, action string) error
}
