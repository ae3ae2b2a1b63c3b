// Package criteria evaluates award targets against an activity snapshot.
//
// Every target type maps to exactly one of four evaluator families. The
// mapping is a closed table: an unmapped type is an error for that target
// only, never a silent default. Evaluators are pure and deterministic.
package criteria

import (
	"fmt"

	"github.com/hearthboard/awards/internal/domain"
)

// Family groups target types that share one evaluator.
type Family int

const (
	FamilyCumulative Family = iota + 1 // running value vs threshold
	FamilyCount                        // integer counter vs threshold
	FamilyCompletion                   // one period's completion ratio
	FamilyStreak                       // consecutive qualifying periods
)

func (f Family) String() string {
	switch f {
	case FamilyCumulative:
		return "cumulative"
	case FamilyCount:
		return "count"
	case FamilyCompletion:
		return "completion"
	case FamilyStreak:
		return "streak"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

var families = map[domain.TargetType]Family{
	domain.TargetPoints:         FamilyCumulative,
	domain.TargetLifetimePoints: FamilyCumulative,
	domain.TargetCyclePoints:    FamilyCumulative,

	domain.TargetChoresTotal:   FamilyCount,
	domain.TargetChoresCycle:   FamilyCount,
	domain.TargetChoresToday:   FamilyCount,
	domain.TargetChoresOfType:  FamilyCount,
	domain.TargetRewardClaims:  FamilyCount,
	domain.TargetBonusCount:    FamilyCount,
	domain.TargetCurrentStreak: FamilyCount,
	domain.TargetLongestStreak: FamilyCount,

	domain.TargetDailyCompletion:       FamilyCompletion,
	domain.TargetDailyCompletionDue:    FamilyCompletion,
	domain.TargetDailyCompletionStrict: FamilyCompletion,
	domain.TargetDailyMinChores:        FamilyCompletion,

	domain.TargetStreakDays:  FamilyStreak,
	domain.TargetStreakWeeks: FamilyStreak,
}

// FamilyOf returns the evaluator family for a target type.
func FamilyOf(t domain.TargetType) (Family, error) {
	f, ok := families[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownTargetType, t)
	}
	return f, nil
}

// TargetTypes lists every registered target type.
func TargetTypes() []domain.TargetType {
	out := make([]domain.TargetType, 0, len(families))
	for t := range families {
		out = append(out, t)
	}
	return out
}

// Validate checks that a target is evaluable: a known type, a non-negative
// threshold and the modifiers its family requires.
func Validate(t domain.Target) error {
	fam, err := FamilyOf(t.Type)
	if err != nil {
		return err
	}
	if t.Threshold < 0 {
		return fmt.Errorf("%w: %s: negative threshold", domain.ErrMalformedTarget, t.Type)
	}
	switch fam {
	case FamilyCount:
		if t.Type == domain.TargetChoresOfType && t.TaskType == "" {
			return fmt.Errorf("%w: %s requires task_type", domain.ErrMalformedTarget, t.Type)
		}
	case FamilyCompletion, FamilyStreak:
		if _, err := newCompletionRule(t); err != nil {
			return err
		}
	}
	switch t.ZeroDay {
	case domain.ZeroDayDefault, domain.ZeroDayMet, domain.ZeroDayUnmet:
	default:
		return fmt.Errorf("%w: %s: zero_day %q", domain.ErrMalformedTarget, t.Type, t.ZeroDay)
	}
	return nil
}

// Evaluate runs the family evaluator for one target. A malformed or unknown
// target yields a not-met result together with the error.
func Evaluate(s domain.ActivitySnapshot, t domain.Target) (domain.CriterionResult, error) {
	if err := Validate(t); err != nil {
		return domain.CriterionResult{Type: t.Type, Target: t.Threshold}, err
	}
	fam, _ := FamilyOf(t.Type)

	switch fam {
	case FamilyCumulative:
		return threshold(t, cumulativeValue(s, t)), nil
	case FamilyCount:
		return threshold(t, float64(countValue(s, t))), nil
	case FamilyCompletion:
		rule, _ := newCompletionRule(t)
		return evaluateCompletion(s, t, rule), nil
	case FamilyStreak:
		rule, _ := newCompletionRule(t)
		return evaluateStreak(s, t, rule), nil
	}
	return domain.CriterionResult{Type: t.Type}, fmt.Errorf("%w: %q has no evaluator", domain.ErrUnknownTargetType, t.Type)
}

// EvaluateAll evaluates every target; met only when all targets are met.
// The returned ratio is the mean of the individual ratios.
func EvaluateAll(s domain.ActivitySnapshot, targets []domain.Target) ([]domain.CriterionResult, bool, float64, error) {
	if len(targets) == 0 {
		return nil, false, 0, fmt.Errorf("%w: no targets", domain.ErrMalformedTarget)
	}
	results := make([]domain.CriterionResult, 0, len(targets))
	met := true
	sum := 0.0
	var firstErr error
	for _, t := range targets {
		r, err := Evaluate(s, t)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results = append(results, r)
		met = met && r.Met
		sum += r.Ratio
	}
	return results, met, domain.ClampRatio(sum / float64(len(targets))), firstErr
}
