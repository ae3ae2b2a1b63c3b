package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency.

var (
	// Catalog errors
	ErrMissingDefinition = errors.New("award definition not found in catalog")
	ErrMalformedTarget   = errors.New("malformed award target")
	ErrUnknownTargetType = errors.New("unknown target type")
	ErrMalformedTiers    = errors.New("malformed tier definition")
	ErrDuplicateAward    = errors.New("duplicate award id in catalog")

	// Snapshot errors
	ErrActorNotFound       = errors.New("actor not found")
	ErrSnapshotUnavailable = errors.New("activity snapshot unavailable")

	// Intake errors
	ErrUnknownChangeKind = errors.New("unknown change event kind")

	// Apply errors
	ErrApplyFailed = errors.New("verdict apply failed")

	// Manager lifecycle
	ErrManagerStopped = errors.New("evaluation manager is not running")
)
