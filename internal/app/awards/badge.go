package awards

import (
	"time"

	"github.com/hearthboard/awards/internal/app/criteria"
	"github.com/hearthboard/awards/internal/domain"
)

// evaluateOneTime covers one-time badges and achievements. Once a record is
// earned the award is never re-evaluated, so it can never notify twice.
func evaluateOneTime(s domain.ActivitySnapshot, def domain.AwardDefinition, rec domain.ProgressRecord) (domain.Verdict, error) {
	v := newVerdict(s, def, rec)
	if rec.Earned {
		v.Earned = true
		v.ProgressRatio = 1
		return finish(v, rec, rec), nil
	}
	return earnIfMet(s, def, v, rec, rec)
}

// evaluateRecurring earns at most once per cycle. A new cycle key clears the
// earned flag; the counters themselves are reset upstream.
func evaluateRecurring(s domain.ActivitySnapshot, def domain.AwardDefinition, rec domain.ProgressRecord) (domain.Verdict, error) {
	v := newVerdict(s, def, rec)
	if rec.Earned && rec.CycleKey == s.CycleKey {
		v.Earned = true
		v.ProgressRatio = 1
		return finish(v, rec, rec), nil
	}

	next := rec
	if rec.CycleKey != s.CycleKey {
		next.CycleKey = s.CycleKey
		next.Earned = false
		next.EarnedAt = time.Time{}
	}
	return earnIfMet(s, def, v, rec, next)
}

// earnIfMet evaluates every target and, when all are met, marks next earned.
func earnIfMet(s domain.ActivitySnapshot, def domain.AwardDefinition, v domain.Verdict, prev, next domain.ProgressRecord) (domain.Verdict, error) {
	results, met, ratio, err := criteria.EvaluateAll(s, def.Targets)
	v.Criteria = results
	if err != nil {
		v.ProgressRatio = prev.Progress
		return finish(v, prev, prev), err
	}

	v.ProgressRatio = ratio
	next.Progress = ratio
	if met {
		next.Earned = true
		next.EarnedAt = s.Now
		next.EarnCount++
		next.Progress = 1
		v.Earned = true
		v.ProgressRatio = 1
		v.Notify = true
		v.NotifyReason = domain.ReasonEarned
	}
	return finish(v, prev, next), nil
}
