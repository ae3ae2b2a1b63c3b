package criteria

import (
	"fmt"
	"math"
	"time"

	"github.com/hearthboard/awards/internal/domain"
)

// ratioEpsilon keeps 4/5 >= 0.8 true despite float rounding.
const ratioEpsilon = 1e-9

// periodMode selects the granularity a completion rule is applied at.
type periodMode int

const (
	perDay periodMode = iota
	perWeek
)

// completionRule is the single parameterized test behind both the daily
// completion family and the streak family.
type completionRule struct {
	mode      periodMode
	percent   float64 // 0-1; 0 disables the ratio test
	onlyDue   bool
	noOverdue bool
	minCount  int
	zeroMet   bool
}

// zeroDayDefaults is the per-type verdict for a period with no applicable
// tasks, used when the target leaves zero_day unset.
var zeroDayDefaults = map[domain.TargetType]bool{
	domain.TargetDailyCompletion:       false,
	domain.TargetDailyCompletionDue:    true,
	domain.TargetDailyCompletionStrict: false,
	domain.TargetDailyMinChores:        false,
	domain.TargetStreakDays:            false,
	domain.TargetStreakWeeks:           false,
}

func newCompletionRule(t domain.Target) (completionRule, error) {
	rule := completionRule{
		onlyDue:   t.OnlyDueToday,
		noOverdue: t.RequireNoOverdue,
		minCount:  t.MinCount,
		zeroMet:   zeroDayDefaults[t.Type],
	}
	switch t.ZeroDay {
	case domain.ZeroDayMet:
		rule.zeroMet = true
	case domain.ZeroDayUnmet:
		rule.zeroMet = false
	}
	if t.MinCount < 0 {
		return rule, fmt.Errorf("%w: %s: negative min_count", domain.ErrMalformedTarget, t.Type)
	}

	switch t.Window {
	case "", domain.WindowDaily:
		rule.mode = perDay
	case domain.WindowWeekly:
		rule.mode = perWeek
	default:
		return rule, fmt.Errorf("%w: %s: window %q", domain.ErrMalformedTarget, t.Type, t.Window)
	}

	pct := t.PercentRequired
	switch t.Type {
	case domain.TargetDailyCompletion:
		if pct == 0 {
			pct = t.Threshold
		}
	case domain.TargetDailyCompletionDue:
		rule.onlyDue = true
		if pct == 0 {
			pct = t.Threshold
		}
	case domain.TargetDailyCompletionStrict:
		rule.noOverdue = true
		if pct == 0 {
			pct = t.Threshold
		}
	case domain.TargetDailyMinChores:
		if rule.minCount == 0 {
			rule.minCount = int(math.Ceil(t.Threshold))
		}
		if rule.minCount == 0 {
			return rule, fmt.Errorf("%w: %s requires min_count", domain.ErrMalformedTarget, t.Type)
		}
	case domain.TargetStreakDays:
		rule.mode = perDay
		if pct == 0 {
			pct = 1
		}
	case domain.TargetStreakWeeks:
		rule.mode = perWeek
		if pct == 0 {
			pct = 1
		}
	}
	// Accept both 0.8 and 80.
	if pct > 1 {
		pct /= 100
	}
	if pct < 0 || pct > 1 {
		return rule, fmt.Errorf("%w: %s: percent_required %g out of range", domain.ErrMalformedTarget, t.Type, t.PercentRequired)
	}
	if t.Type != domain.TargetDailyMinChores && pct == 0 {
		return rule, fmt.Errorf("%w: %s requires percent_required", domain.ErrMalformedTarget, t.Type)
	}
	rule.percent = pct
	return rule, nil
}

// period is one day or one ISO week of aggregated activity.
type period struct {
	start        time.Time
	applicable   int
	due          int
	completed    int
	completedDue int
	overdue      int
}

func (p *period) add(d domain.DayActivity) {
	p.applicable += d.Applicable
	p.due += d.DueToday
	p.completed += d.Completed
	p.completedDue += d.CompletedDue
	p.overdue += d.Overdue
}

// check applies the rule to one period and returns the verdict together with
// the numerator and denominator it used.
func (r completionRule) check(p period) (met bool, num, den int) {
	num, den = p.completed, p.applicable
	if r.onlyDue {
		num, den = p.completedDue, p.due
	}

	if den == 0 {
		met = r.zeroMet
	} else {
		met = float64(num)/float64(den)+ratioEpsilon >= r.percent
	}
	if r.noOverdue && p.overdue > 0 {
		met = false
	}
	if r.minCount > 0 && p.completed < r.minCount {
		met = false
	}
	return met, num, den
}

// periods folds the snapshot history into the rule's granularity, oldest first.
func (r completionRule) periods(days []domain.DayActivity) []period {
	var out []period
	for _, d := range days {
		start := domain.StartOfDay(d.Date)
		if r.mode == perWeek {
			start = weekStart(d.Date)
		}
		if n := len(out); n > 0 && out[n-1].start.Equal(start) {
			out[n-1].add(d)
			continue
		}
		p := period{start: start}
		p.add(d)
		out = append(out, p)
	}
	return out
}

func (r completionRule) next(start time.Time) time.Time {
	if r.mode == perWeek {
		return start.AddDate(0, 0, 7)
	}
	return start.AddDate(0, 0, 1)
}

func (r completionRule) current(now time.Time) time.Time {
	if r.mode == perWeek {
		return weekStart(now)
	}
	return domain.StartOfDay(now)
}

// evaluateCompletion tests the period containing the snapshot's Now.
func evaluateCompletion(s domain.ActivitySnapshot, t domain.Target, r completionRule) domain.CriterionResult {
	cur := period{start: r.current(s.Now)}
	for _, p := range r.periods(s.Days) {
		if p.start.Equal(cur.start) {
			cur = p
			break
		}
	}

	met, num, den := r.check(cur)
	res := domain.CriterionResult{
		Type:    t.Type,
		Met:     met,
		Current: float64(num),
		Target:  float64(den),
	}
	switch {
	case t.Type == domain.TargetDailyMinChores:
		res.Current = float64(cur.completed)
		res.Target = float64(r.minCount)
		res.Ratio = domain.ClampRatio(float64(cur.completed) / float64(r.minCount))
	case den == 0:
		if met {
			res.Ratio = 1
		}
	default:
		res.Ratio = domain.ClampRatio(float64(num) / float64(den))
	}
	return res
}

// evaluateStreak counts consecutive qualifying periods ending at the current
// or immediately preceding period. A failing period resets the run to zero; a
// qualifying period after a gap in history starts a new run at one.
func evaluateStreak(s domain.ActivitySnapshot, t domain.Target, r completionRule) domain.CriterionResult {
	streak := streakLength(s, r)
	res := domain.CriterionResult{
		Type:    t.Type,
		Current: float64(streak),
		Target:  t.Threshold,
	}
	if t.Threshold <= 0 {
		res.Met, res.Ratio = true, 1
		return res
	}
	res.Met = float64(streak) >= t.Threshold
	res.Ratio = domain.ClampRatio(float64(streak) / t.Threshold)
	return res
}

// streakLength walks the history once, oldest period first.
func streakLength(s domain.ActivitySnapshot, r completionRule) int {
	streak := 0
	var last time.Time
	for i, p := range r.periods(s.Days) {
		met, _, _ := r.check(p)
		switch {
		case !met:
			streak = 0
		case i > 0 && p.start.Equal(r.next(last)):
			streak++
		default:
			streak = 1
		}
		last = p.start
	}
	if last.IsZero() {
		return 0
	}

	// A run that ended before the previous period is broken.
	cur := r.current(s.Now)
	if last.Before(cur) && !r.next(last).Equal(cur) {
		return 0
	}
	return streak
}

// weekStart returns Monday 00:00 of t's ISO week.
func weekStart(t time.Time) time.Time {
	day := domain.StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func sameWeek(a, b time.Time) bool {
	return weekStart(a).Equal(weekStart(b.In(a.Location())))
}
