package domain

import "time"

// ─── Change Events ──────────────────────────────────────────────────────────

// ChangeKind names an upstream state change that can affect award outcomes.
type ChangeKind string

const (
	ChangeBalance        ChangeKind = "balance_changed"
	ChangeTaskApproved   ChangeKind = "task_approved"
	ChangeRewardApproved ChangeKind = "reward_approved"
	ChangeRewardClaimed  ChangeKind = "reward_claimed"
	ChangeBonusApplied   ChangeKind = "bonus_applied"
	ChangePenaltyApplied ChangeKind = "penalty_applied"
	ChangeBadgeAwarded   ChangeKind = "badge_awarded"
)

// Relevant reports whether the change should trigger re-evaluation.
func (k ChangeKind) Relevant() bool {
	switch k {
	case ChangeBalance, ChangeTaskApproved, ChangeRewardApproved, ChangeRewardClaimed,
		ChangeBonusApplied, ChangePenaltyApplied, ChangeBadgeAwarded:
		return true
	}
	return false
}

// ChangeEvent is an inbound notification that an actor's statistics changed.
type ChangeEvent struct {
	ActorID string     `json:"actor_id"`
	Kind    ChangeKind `json:"kind"`
}

// ─── Outbound Notifications ─────────────────────────────────────────────────

// AwardNotification is emitted when a verdict warrants telling the actor.
// DedupeKey makes emission safe to retry.
type AwardNotification struct {
	ID        string       `json:"id"`
	ActorID   string       `json:"actor_id"`
	AwardID   string       `json:"award_id"`
	AwardName string       `json:"award_name"`
	Class     AwardClass   `json:"class"`
	Reason    NotifyReason `json:"reason"`
	Tier      int          `json:"tier,omitempty"`
	DedupeKey string       `json:"dedupe_key"`
	CreatedAt time.Time    `json:"created_at"`
	Shown     bool         `json:"shown"`
}
