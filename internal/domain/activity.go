package domain

import "time"

// ─── Activity Snapshot ──────────────────────────────────────────────────────

// DayActivity is one calendar day of an actor's task activity.
type DayActivity struct {
	Date         time.Time      `json:"date"` // midnight, actor location
	Applicable   int            `json:"applicable"`
	DueToday     int            `json:"due_today"`
	Completed    int            `json:"completed"`
	CompletedDue int            `json:"completed_due"`
	Overdue      int            `json:"overdue"`
	Points       float64        `json:"points"`
	TaskPoints   float64        `json:"task_points"` // points sourced from task completions
	ByType       map[string]int `json:"by_type,omitempty"`
}

// TaskCounters are task-completion counts at three horizons.
type TaskCounters struct {
	Today   int `json:"today"`
	Cycle   int `json:"cycle"`
	AllTime int `json:"all_time"`
}

// ActivitySnapshot is a read-only view of one actor's statistics and award
// progress, built fresh for each evaluation. The engine never mutates it.
type ActivitySnapshot struct {
	ActorID  string    `json:"actor_id"`
	Now      time.Time `json:"now"`
	CycleKey string    `json:"cycle_key"` // identifies the current recurring cycle

	Balance            float64 `json:"balance"`
	LifetimeEarned     float64 `json:"lifetime_earned"`
	LifetimeTaskEarned float64 `json:"lifetime_task_earned"`
	CycleEarned        float64 `json:"cycle_earned"`
	CycleTaskEarned    float64 `json:"cycle_task_earned"`
	RewardClaims       int     `json:"reward_claims"`
	BonusCount         int     `json:"bonus_count"`
	CurrentStreak      int     `json:"current_streak"`
	LongestStreak      int     `json:"longest_streak"`

	Tasks  TaskCounters            `json:"tasks"`
	ByType map[string]TaskCounters `json:"by_type,omitempty"`

	// Days is ordered oldest first. The entry for Now's date, if any, is last.
	Days []DayActivity `json:"days,omitempty"`

	Progress map[string]ProgressRecord `json:"progress,omitempty"`
}

// Today returns the activity entry for the snapshot's evaluation day.
func (s ActivitySnapshot) Today() (DayActivity, bool) {
	if len(s.Days) == 0 {
		return DayActivity{}, false
	}
	last := s.Days[len(s.Days)-1]
	if !SameDay(last.Date, s.Now) {
		return DayActivity{}, false
	}
	return last, true
}

// Record returns the existing progress record for an award, or a fresh one.
func (s ActivitySnapshot) Record(awardID string) (ProgressRecord, bool) {
	rec, ok := s.Progress[awardID]
	if !ok {
		return ProgressRecord{ActorID: s.ActorID, AwardID: awardID}, false
	}
	return rec, true
}

// Window returns a copy of the snapshot whose counters are recomputed from
// the daily history within [start, end]. Balance, claim, bonus and streak
// counters are not day-scoped and carry over unchanged, which is why
// challenges only accept targets where TargetType.DayScoped holds.
func (s ActivitySnapshot) Window(start, end time.Time) ActivitySnapshot {
	w := s
	w.Days = nil
	w.Tasks = TaskCounters{}
	w.ByType = make(map[string]TaskCounters)
	w.CycleEarned, w.CycleTaskEarned = 0, 0
	w.LifetimeEarned, w.LifetimeTaskEarned = 0, 0

	startDay := StartOfDay(start)
	for _, d := range s.Days {
		if d.Date.Before(startDay) || d.Date.After(end) {
			continue
		}
		w.Days = append(w.Days, d)
		w.Tasks.AllTime += d.Completed
		w.Tasks.Cycle += d.Completed
		w.CycleEarned += d.Points
		w.CycleTaskEarned += d.TaskPoints
		w.LifetimeEarned += d.Points
		w.LifetimeTaskEarned += d.TaskPoints
		if SameDay(d.Date, s.Now) {
			w.Tasks.Today = d.Completed
		}
		for typ, n := range d.ByType {
			c := w.ByType[typ]
			c.AllTime += n
			c.Cycle += n
			if SameDay(d.Date, s.Now) {
				c.Today = n
			}
			w.ByType[typ] = c
		}
	}
	return w
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// SameDay reports whether a and b fall on the same calendar day in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
