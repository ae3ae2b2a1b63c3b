package domain

import "time"

// ─── Progress Records ───────────────────────────────────────────────────────

// TierState is the retention state of a cumulative award.
type TierState string

const (
	StateNone    TierState = ""
	StateActive  TierState = "ACTIVE"
	StateGrace   TierState = "GRACE"
	StateDemoted TierState = "DEMOTED"
)

// ProgressRecord is the persisted per-actor, per-award state. It is owned by
// the progress store and only changes through an applied verdict.
type ProgressRecord struct {
	ActorID string `json:"actor_id"`
	AwardID string `json:"award_id"`

	// Cumulative awards.
	Tier        int       `json:"tier"` // 0 = no tier held
	State       TierState `json:"state,omitempty"`
	WindowStart time.Time `json:"window_start,omitempty"`
	WindowEnd   time.Time `json:"window_end,omitempty"`

	// One-time and recurring awards, challenges.
	Earned    bool      `json:"earned"`
	EarnedAt  time.Time `json:"earned_at,omitempty"`
	CycleKey  string    `json:"cycle_key,omitempty"`
	EarnCount int       `json:"earn_count"`
	Terminal  bool      `json:"terminal"` // challenge closed without completion

	Progress float64 `json:"progress"` // last evaluated ratio, 0-1
}

// Equal compares two records, treating timestamps by instant.
func (r ProgressRecord) Equal(o ProgressRecord) bool {
	return r.ActorID == o.ActorID &&
		r.AwardID == o.AwardID &&
		r.Tier == o.Tier &&
		r.State == o.State &&
		r.WindowStart.Equal(o.WindowStart) &&
		r.WindowEnd.Equal(o.WindowEnd) &&
		r.Earned == o.Earned &&
		r.EarnedAt.Equal(o.EarnedAt) &&
		r.CycleKey == o.CycleKey &&
		r.EarnCount == o.EarnCount &&
		r.Terminal == o.Terminal &&
		r.Progress == o.Progress
}
