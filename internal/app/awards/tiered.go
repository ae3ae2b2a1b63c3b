package awards

import (
	"fmt"
	"time"

	"github.com/hearthboard/awards/internal/app/criteria"
	"github.com/hearthboard/awards/internal/domain"
)

// evaluateCumulative runs the tier state machine for one actor and award.
//
//	ACTIVE  --window met-->    ACTIVE (renewed, silent)
//	ACTIVE  --window missed--> GRACE  (tier kept, silent)
//	GRACE   --window met-->    ACTIVE
//	GRACE   --window missed--> DEMOTED (one tier down, notify lost)
//	DEMOTED --next pass-->     ACTIVE at the lower tier
//
// Acquisition is checked separately and promotes to the next tier only. The
// tier never moves more than one step per pass.
func evaluateCumulative(s domain.ActivitySnapshot, def domain.AwardDefinition, rec domain.ProgressRecord) (domain.Verdict, error) {
	if rec.Tier < 0 || rec.Tier > len(def.Tiers) {
		return domain.Verdict{}, fmt.Errorf("%w: award %s: stored tier %d outside 0..%d",
			domain.ErrMalformedTiers, def.ID, rec.Tier, len(def.Tiers))
	}
	acquire := def.Targets[0] // validated to be the only target
	period := def.Maintenance.Period

	v := newVerdict(s, def, rec)
	next := rec

	// A demotion is reported for exactly one pass.
	if next.State == domain.StateDemoted {
		next.State = domain.StateActive
		if next.Tier == 0 {
			next.State = domain.StateNone
		}
	}

	moved := false
	if rec.Tier > 0 {
		v.Retained = true
		if !rec.WindowEnd.IsZero() && !s.Now.Before(rec.WindowEnd) {
			held, _ := def.TierAt(rec.Tier)
			keep := acquire
			if def.Maintenance.Target.Type != "" {
				keep = def.Maintenance.Target
			}
			keep.Threshold = held.RetentionThreshold()

			res, err := criteria.Evaluate(s, keep)
			if err != nil {
				return domain.Verdict{}, fmt.Errorf("award %s retention: %w", def.ID, err)
			}
			v.Criteria = append(v.Criteria, res)

			end, err := period.NextBoundary(s.Now)
			if err != nil {
				return domain.Verdict{}, err
			}
			switch {
			case res.Met:
				next.State = domain.StateActive
				next.WindowStart, next.WindowEnd = rec.WindowEnd, end
			case rec.State == domain.StateGrace:
				next.Tier = rec.Tier - 1
				next.State = domain.StateDemoted
				if next.Tier == 0 {
					next.Earned = false
					next.WindowStart, next.WindowEnd = time.Time{}, time.Time{}
				} else {
					next.WindowStart, next.WindowEnd = s.Now, end
				}
				v.Retained = false
				v.Notify = true
				v.NotifyReason = domain.ReasonLost
				moved = true
			default:
				next.State = domain.StateGrace
				next.WindowStart, next.WindowEnd = rec.WindowEnd, end
			}
		}
	}

	if !moved && next.Tier < len(def.Tiers) {
		up, _ := def.TierAt(next.Tier + 1)
		climb := acquire
		climb.Threshold = up.Threshold

		res, err := criteria.Evaluate(s, climb)
		if err != nil {
			return domain.Verdict{}, fmt.Errorf("award %s acquisition: %w", def.ID, err)
		}
		v.Criteria = append(v.Criteria, res)
		v.ProgressRatio = res.Ratio
		next.Progress = res.Ratio

		if res.Met {
			end, err := period.NextBoundary(s.Now)
			if err != nil {
				return domain.Verdict{}, err
			}
			next.Tier++
			next.State = domain.StateActive
			next.WindowStart, next.WindowEnd = s.Now, end
			next.Earned = true
			next.EarnedAt = s.Now
			next.EarnCount++
			v.Earned = true
			v.Notify = true
			v.NotifyReason = domain.ReasonEarned
		}
	} else if !moved {
		v.ProgressRatio = 1
		next.Progress = 1
	}

	v.Tier = next.Tier
	v.State = next.State
	if v.TierChanged() {
		v.Multiplier = 1
		if t, ok := def.TierAt(next.Tier); ok && t.Multiplier > 0 {
			v.Multiplier = t.Multiplier
		}
	}
	return finish(v, rec, next), nil
}
