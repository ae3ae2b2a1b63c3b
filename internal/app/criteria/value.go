package criteria

import "github.com/hearthboard/awards/internal/domain"

// threshold is the shared shape of the cumulative and count families.
func threshold(t domain.Target, current float64) domain.CriterionResult {
	r := domain.CriterionResult{
		Type:    t.Type,
		Current: current,
		Target:  t.Threshold,
	}
	if t.Threshold <= 0 {
		r.Met = true
		r.Ratio = 1
		return r
	}
	r.Met = current >= t.Threshold
	r.Ratio = domain.ClampRatio(current / t.Threshold)
	return r
}

func cumulativeValue(s domain.ActivitySnapshot, t domain.Target) float64 {
	switch t.Type {
	case domain.TargetPoints:
		return s.Balance
	case domain.TargetLifetimePoints:
		if t.FromSourceOnly {
			return s.LifetimeTaskEarned
		}
		return s.LifetimeEarned
	case domain.TargetCyclePoints:
		if t.FromSourceOnly {
			return s.CycleTaskEarned
		}
		return s.CycleEarned
	}
	return 0
}

func countValue(s domain.ActivitySnapshot, t domain.Target) int {
	switch t.Type {
	case domain.TargetChoresTotal:
		return s.Tasks.AllTime
	case domain.TargetChoresCycle:
		return s.Tasks.Cycle
	case domain.TargetChoresToday:
		return s.Tasks.Today
	case domain.TargetChoresOfType:
		c := s.ByType[t.TaskType]
		switch t.Window {
		case domain.WindowDaily:
			return c.Today
		case domain.WindowWeekly:
			n := 0
			for _, d := range s.Days {
				if sameWeek(d.Date, s.Now) {
					n += d.ByType[t.TaskType]
				}
			}
			return n
		}
		return c.AllTime
	case domain.TargetRewardClaims:
		return s.RewardClaims
	case domain.TargetBonusCount:
		return s.BonusCount
	case domain.TargetCurrentStreak:
		return s.CurrentStreak
	case domain.TargetLongestStreak:
		return s.LongestStreak
	}
	return 0
}
