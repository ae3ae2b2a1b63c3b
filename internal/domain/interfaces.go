package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// SnapshotSource builds a fresh read-only activity snapshot for an actor.
// Returns ErrActorNotFound when the actor no longer exists.
type SnapshotSource interface {
	Snapshot(ctx context.Context, actorID string, now time.Time) (ActivitySnapshot, error)
}

// Catalog exposes the award definitions in a stable iteration order.
type Catalog interface {
	Awards() []AwardDefinition
}

// ProgressStore persists progress records. SaveProgress is an upsert and
// must be safe to repeat.
type ProgressStore interface {
	SaveProgress(ctx context.Context, rec ProgressRecord) error
	ListProgress(ctx context.Context, actorID string) ([]ProgressRecord, error)
}

// MultiplierAdjuster records tier-linked value multipliers. SetMultiplier
// overwrites, so repeated calls are harmless.
type MultiplierAdjuster interface {
	SetMultiplier(ctx context.Context, actorID, awardID string, multiplier float64) error
}

// Notifier emits award notifications. Emit must ignore a DedupeKey it has
// already accepted.
type Notifier interface {
	Emit(ctx context.Context, n AwardNotification) error
}
