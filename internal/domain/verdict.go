package domain

import "fmt"

// ─── Evaluation Results ─────────────────────────────────────────────────────

// CriterionResult is the outcome of one target evaluated against a snapshot.
type CriterionResult struct {
	Type    TargetType `json:"type"`
	Met     bool       `json:"met"`
	Current float64    `json:"current"`
	Target  float64    `json:"target"`
	Ratio   float64    `json:"ratio"` // always within [0, 1]
}

// NotifyReason says why a verdict warrants a notification.
type NotifyReason string

const (
	ReasonNone   NotifyReason = ""
	ReasonEarned NotifyReason = "earned"
	ReasonLost   NotifyReason = "lost"
)

// Verdict is the engine's per-award outcome for one actor. Record holds the
// progress state to persist; Changed is false when it equals the stored one.
type Verdict struct {
	ActorID       string            `json:"actor_id"`
	AwardID       string            `json:"award_id"`
	Class         AwardClass        `json:"class"`
	Kind          AwardKind         `json:"kind"`
	Earned        bool              `json:"earned"`
	Retained      bool              `json:"retained"`
	ProgressRatio float64           `json:"progress_ratio"`
	Criteria      []CriterionResult `json:"criteria"`
	Notify        bool              `json:"notify"`
	NotifyReason  NotifyReason      `json:"notify_reason,omitempty"`

	Tier         int       `json:"tier,omitempty"`
	PreviousTier int       `json:"previous_tier,omitempty"`
	State        TierState `json:"state,omitempty"`
	Multiplier   float64   `json:"multiplier,omitempty"` // tier-linked value, set on tier change

	Record  ProgressRecord `json:"record"`
	Changed bool           `json:"changed"`
}

// TierChanged reports whether the verdict moved a cumulative tier.
func (v Verdict) TierChanged() bool {
	return v.Kind == KindCumulative && v.Tier != v.PreviousTier
}

// DedupeKey identifies the notification this verdict warrants. A retried
// apply of the same verdict yields the same key; a later earn or loss of the
// same award does not, because EarnCount or the tier differs.
func (v Verdict) DedupeKey() string {
	tier := v.Tier
	if v.NotifyReason == ReasonLost {
		tier = v.PreviousTier
	}
	return fmt.Sprintf("%s:%s:%s:t%d:n%d", v.ActorID, v.AwardID, v.NotifyReason, tier, v.Record.EarnCount)
}

// ClampRatio bounds a progress ratio to [0, 1].
func ClampRatio(r float64) float64 {
	switch {
	case r != r: // NaN
		return 0
	case r < 0:
		return 0
	case r > 1:
		return 1
	default:
		return r
	}
}
