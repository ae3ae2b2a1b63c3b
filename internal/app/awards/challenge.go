package awards

import (
	"github.com/hearthboard/awards/internal/app/criteria"
	"github.com/hearthboard/awards/internal/domain"
)

// evaluateChallenge earns a time-boxed challenge only while Now is inside
// [StartDate, EndDate]. Targets read the snapshot narrowed to that window,
// so activity after the end never counts. Once the end passes without
// completion the record turns terminal and stays that way.
func evaluateChallenge(s domain.ActivitySnapshot, def domain.AwardDefinition, rec domain.ProgressRecord) (domain.Verdict, error) {
	v := newVerdict(s, def, rec)
	switch {
	case rec.Earned:
		v.Earned = true
		v.ProgressRatio = 1
		return finish(v, rec, rec), nil
	case rec.Terminal:
		v.ProgressRatio = rec.Progress
		return finish(v, rec, rec), nil
	case s.Now.Before(def.StartDate):
		return finish(v, rec, rec), nil
	}

	window := s.Window(def.StartDate, def.EndDate)
	results, met, ratio, err := criteria.EvaluateAll(window, def.Targets)
	v.Criteria = results
	if err != nil {
		v.ProgressRatio = rec.Progress
		return finish(v, rec, rec), err
	}

	next := rec
	next.Progress = ratio
	v.ProgressRatio = ratio

	if !def.WithinWindow(s.Now) {
		next.Terminal = true
		return finish(v, rec, next), nil
	}
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
	return finish(v, rec, next), nil
}
