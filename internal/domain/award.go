// Package domain holds the pure types shared by the award engine, the batch
// manager and the storage adapters. Nothing in here performs I/O.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ─── Award Classes & Kinds ──────────────────────────────────────────────────

// AwardClass is the catalog family an award belongs to.
type AwardClass string

const (
	ClassBadge       AwardClass = "badge"
	ClassAchievement AwardClass = "achievement"
	ClassChallenge   AwardClass = "challenge"
)

// AwardKind selects the earning semantics of an award.
type AwardKind string

const (
	KindOneTime    AwardKind = "one_time"
	KindRecurring  AwardKind = "recurring"
	KindCumulative AwardKind = "cumulative"
)

// ─── Target Types ───────────────────────────────────────────────────────────

// TargetType identifies what a criterion measures.
type TargetType string

const (
	// Cumulative-value targets.
	TargetPoints         TargetType = "points"
	TargetLifetimePoints TargetType = "lifetime_points"
	TargetCyclePoints    TargetType = "cycle_points"

	// Count targets.
	TargetChoresTotal   TargetType = "chores_total"
	TargetChoresCycle   TargetType = "chores_cycle"
	TargetChoresToday   TargetType = "chores_today"
	TargetChoresOfType  TargetType = "chores_of_type"
	TargetRewardClaims  TargetType = "reward_claims"
	TargetBonusCount    TargetType = "bonus_count"
	TargetCurrentStreak TargetType = "current_streak"
	TargetLongestStreak TargetType = "longest_streak"

	// Daily completion ratio targets.
	TargetDailyCompletion       TargetType = "daily_completion"
	TargetDailyCompletionDue    TargetType = "daily_completion_due"
	TargetDailyCompletionStrict TargetType = "daily_completion_strict"
	TargetDailyMinChores        TargetType = "daily_min_chores"

	// Streak targets.
	TargetStreakDays  TargetType = "streak_days"
	TargetStreakWeeks TargetType = "streak_weeks"
)

// DayScoped reports whether the target's value can be rebuilt from daily
// history alone. Only day-scoped targets can be narrowed to a challenge window.
func (t TargetType) DayScoped() bool {
	switch t {
	case TargetPoints, TargetRewardClaims, TargetBonusCount, TargetCurrentStreak, TargetLongestStreak:
		return false
	}
	return true
}

// Window is the period a streak or completion criterion is measured over.
type Window string

const (
	WindowDaily  Window = "daily"
	WindowWeekly Window = "weekly"
)

// ZeroDayPolicy decides a completion verdict for a period with no applicable
// tasks. Empty means the target type's default applies.
type ZeroDayPolicy string

const (
	ZeroDayDefault ZeroDayPolicy = ""
	ZeroDayMet     ZeroDayPolicy = "met"
	ZeroDayUnmet   ZeroDayPolicy = "unmet"
)

// Target is one criterion of an award: a measured quantity, a threshold and
// the modifiers that shape how the quantity is read from a snapshot.
type Target struct {
	Type      TargetType `json:"type" toml:"type" yaml:"type"`
	Threshold float64    `json:"threshold" toml:"threshold" yaml:"threshold"`

	PercentRequired  float64       `json:"percent_required,omitempty" toml:"percent_required" yaml:"percent_required"` // 0-1
	OnlyDueToday     bool          `json:"only_due_today,omitempty" toml:"only_due_today" yaml:"only_due_today"`
	RequireNoOverdue bool          `json:"require_no_overdue,omitempty" toml:"require_no_overdue" yaml:"require_no_overdue"`
	FromSourceOnly   bool          `json:"from_source_only,omitempty" toml:"from_source_only" yaml:"from_source_only"`
	MinCount         int           `json:"min_count,omitempty" toml:"min_count" yaml:"min_count"`
	Window           Window        `json:"window,omitempty" toml:"window" yaml:"window"`
	TaskType         string        `json:"task_type,omitempty" toml:"task_type" yaml:"task_type"`
	ZeroDay          ZeroDayPolicy `json:"zero_day,omitempty" toml:"zero_day" yaml:"zero_day"`
}

// String renders a target for log lines.
func (t Target) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s>=%g", t.Type, t.Threshold)
	if t.TaskType != "" {
		fmt.Fprintf(&b, "[%s]", t.TaskType)
	}
	if t.PercentRequired > 0 {
		fmt.Fprintf(&b, " pct=%g", t.PercentRequired)
	}
	if t.Window != "" {
		fmt.Fprintf(&b, " window=%s", t.Window)
	}
	return b.String()
}

// ─── Tiers & Maintenance ────────────────────────────────────────────────────

// Tier is one rung of a cumulative award. MaintainThreshold defaults to
// Threshold when zero.
type Tier struct {
	Name              string  `json:"name" toml:"name" yaml:"name"`
	Threshold         float64 `json:"threshold" toml:"threshold" yaml:"threshold"`
	MaintainThreshold float64 `json:"maintain_threshold,omitempty" toml:"maintain_threshold" yaml:"maintain_threshold"`
	Multiplier        float64 `json:"multiplier,omitempty" toml:"multiplier" yaml:"multiplier"`
}

// RetentionThreshold is the value that must still be met at a window boundary.
func (t Tier) RetentionThreshold() float64 {
	if t.MaintainThreshold > 0 {
		return t.MaintainThreshold
	}
	return t.Threshold
}

// Period is a calendar-aligned maintenance cycle.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
)

// NextBoundary returns the first period boundary strictly after t, aligned to
// midnight in t's location. Weeks start on Monday.
func (p Period) NextBoundary(t time.Time) (time.Time, error) {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch p {
	case PeriodDaily:
		return day.AddDate(0, 0, 1), nil
	case PeriodWeekly:
		daysUntilMonday := (8 - int(day.Weekday())) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		return day.AddDate(0, 0, daysUntilMonday), nil
	case PeriodMonthly:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()), nil
	case PeriodYearly:
		return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, t.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("%w: maintenance period %q", ErrMalformedTiers, p)
	}
}

// Maintenance describes how a held tier is re-validated. A zero Target.Type
// means the award's acquisition target is re-checked.
type Maintenance struct {
	Period Period `json:"period" toml:"period" yaml:"period"`
	Target Target `json:"target,omitempty" toml:"target" yaml:"target"`
}

// ─── Award Definition ───────────────────────────────────────────────────────

// AwardDefinition is one catalog entry. Definitions are authored outside the
// engine and read-only at evaluation time.
type AwardDefinition struct {
	ID          string     `json:"id" toml:"id" yaml:"id"`
	Name        string     `json:"name" toml:"name" yaml:"name"`
	Description string     `json:"description,omitempty" toml:"description" yaml:"description"`
	Icon        string     `json:"icon,omitempty" toml:"icon" yaml:"icon"`
	Class       AwardClass `json:"class" toml:"class" yaml:"class"`
	Kind        AwardKind  `json:"kind" toml:"kind" yaml:"kind"`
	Targets     []Target   `json:"targets" toml:"targets" yaml:"targets"`

	// Cumulative only.
	Tiers       []Tier       `json:"tiers,omitempty" toml:"tiers" yaml:"tiers"`
	Maintenance *Maintenance `json:"maintenance,omitempty" toml:"maintenance" yaml:"maintenance"`

	// Challenges only. End is inclusive.
	StartDate time.Time `json:"start_date,omitempty" toml:"start_date" yaml:"start_date"`
	EndDate   time.Time `json:"end_date,omitempty" toml:"end_date" yaml:"end_date"`
}

// WithinWindow reports whether t falls inside [StartDate, EndDate].
func (a AwardDefinition) WithinWindow(t time.Time) bool {
	return !t.Before(a.StartDate) && !t.After(a.EndDate)
}

// TierAt returns the 1-based tier, or false when out of range.
func (a AwardDefinition) TierAt(level int) (Tier, bool) {
	if level < 1 || level > len(a.Tiers) {
		return Tier{}, false
	}
	return a.Tiers[level-1], true
}

// Validate checks the structural rules of a definition. Target types are
// checked by the criteria registry, not here.
func (a AwardDefinition) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: award id is required", ErrMalformedTarget)
	}
	switch a.Class {
	case ClassBadge, ClassAchievement, ClassChallenge:
	default:
		return fmt.Errorf("%w: award %s: unknown class %q", ErrMalformedTarget, a.ID, a.Class)
	}
	switch a.Kind {
	case KindOneTime, KindRecurring, KindCumulative:
	default:
		return fmt.Errorf("%w: award %s: unknown kind %q", ErrMalformedTarget, a.ID, a.Kind)
	}
	if len(a.Targets) == 0 {
		return fmt.Errorf("%w: award %s: at least one target is required", ErrMalformedTarget, a.ID)
	}
	if a.Kind == KindCumulative {
		if err := a.validateTiers(); err != nil {
			return err
		}
	}
	if a.Class == ClassChallenge {
		if a.StartDate.IsZero() || a.EndDate.IsZero() {
			return fmt.Errorf("%w: challenge %s: start and end dates are required", ErrMalformedTarget, a.ID)
		}
		if a.EndDate.Before(a.StartDate) {
			return fmt.Errorf("%w: challenge %s: end date before start date", ErrMalformedTarget, a.ID)
		}
		if a.Kind != KindOneTime {
			return fmt.Errorf("%w: challenge %s: kind must be %s, got %q", ErrMalformedTarget, a.ID, KindOneTime, a.Kind)
		}
		for _, t := range a.Targets {
			if !t.Type.DayScoped() {
				return fmt.Errorf("%w: challenge %s: target %s cannot be measured within a date window",
					ErrMalformedTarget, a.ID, t.Type)
			}
		}
	}
	return nil
}

func (a AwardDefinition) validateTiers() error {
	if len(a.Tiers) == 0 {
		return fmt.Errorf("%w: award %s has no tiers", ErrMalformedTiers, a.ID)
	}
	if len(a.Targets) != 1 {
		return fmt.Errorf("%w: award %s: tiered awards take exactly one target, got %d",
			ErrMalformedTiers, a.ID, len(a.Targets))
	}
	for i, t := range a.Tiers {
		if t.Threshold < 0 {
			return fmt.Errorf("%w: award %s tier %d: negative threshold", ErrMalformedTiers, a.ID, i+1)
		}
		if i > 0 && t.Threshold <= a.Tiers[i-1].Threshold {
			return fmt.Errorf("%w: award %s tier %d: thresholds must ascend", ErrMalformedTiers, a.ID, i+1)
		}
	}
	if a.Maintenance == nil {
		return fmt.Errorf("%w: award %s has no maintenance window", ErrMalformedTiers, a.ID)
	}
	if _, err := a.Maintenance.Period.NextBoundary(time.Time{}); err != nil {
		return fmt.Errorf("award %s: %w", a.ID, err)
	}
	return nil
}
