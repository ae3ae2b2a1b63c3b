package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hearthboard/awards/internal/domain"
)

const dayLayout = "2006-01-02"

// ─── Actor Statistics ───────────────────────────────────────────────────────

// ActorStats is the per-actor row maintained by the host application.
type ActorStats struct {
	ID                 string  `json:"id" yaml:"id"`
	Name               string  `json:"name" yaml:"name"`
	Timezone           string  `json:"timezone" yaml:"timezone"` // IANA name, default UTC
	CycleKey           string  `json:"cycle_key" yaml:"cycle_key"`
	Balance            float64 `json:"balance" yaml:"balance"`
	LifetimeEarned     float64 `json:"lifetime_earned" yaml:"lifetime_earned"`
	LifetimeTaskEarned float64 `json:"lifetime_task_earned" yaml:"lifetime_task_earned"`
	CycleEarned        float64 `json:"cycle_earned" yaml:"cycle_earned"`
	CycleTaskEarned    float64 `json:"cycle_task_earned" yaml:"cycle_task_earned"`
	RewardClaims       int     `json:"reward_claims" yaml:"reward_claims"`
	BonusCount         int     `json:"bonus_count" yaml:"bonus_count"`
	CurrentStreak      int     `json:"current_streak" yaml:"current_streak"`
	LongestStreak      int     `json:"longest_streak" yaml:"longest_streak"`
}

// UpsertActor inserts or replaces an actor's statistics row.
func (d *DB) UpsertActor(ctx context.Context, a ActorStats) error {
	if a.ID == "" {
		return fmt.Errorf("%w: empty actor id", domain.ErrActorNotFound)
	}
	tz := a.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("actor %s timezone: %w", a.ID, err)
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO actors (id, name, timezone, cycle_key, balance, lifetime_earned, lifetime_task_earned,
			cycle_earned, cycle_task_earned, reward_claims, bonus_count, current_streak, longest_streak, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			timezone=excluded.timezone,
			cycle_key=excluded.cycle_key,
			balance=excluded.balance,
			lifetime_earned=excluded.lifetime_earned,
			lifetime_task_earned=excluded.lifetime_task_earned,
			cycle_earned=excluded.cycle_earned,
			cycle_task_earned=excluded.cycle_task_earned,
			reward_claims=excluded.reward_claims,
			bonus_count=excluded.bonus_count,
			current_streak=excluded.current_streak,
			longest_streak=excluded.longest_streak,
			updated_at=excluded.updated_at`,
		a.ID, a.Name, tz, a.CycleKey, a.Balance, a.LifetimeEarned, a.LifetimeTaskEarned,
		a.CycleEarned, a.CycleTaskEarned, a.RewardClaims, a.BonusCount,
		a.CurrentStreak, a.LongestStreak, time.Now().Unix(),
	)
	return err
}

// ListActors returns every actor id in ascending order.
func (d *DB) ListActors(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM actors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteActor removes an actor together with its statistics, progress and
// multipliers. Delivered notifications are kept.
func (d *DB) DeleteActor(ctx context.Context, actorID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM actors WHERE id = ?`, actorID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrActorNotFound, actorID)
	}
	for _, table := range []string{"chore_counts", "daily_activity", "daily_chore_counts", "award_progress", "award_multipliers"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE actor_id = ?`, actorID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SetChoreCount stores the cycle and all-time completion counts for one
// task type.
func (d *DB) SetChoreCount(ctx context.Context, actorID, taskType string, cycle, allTime int) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO chore_counts (actor_id, task_type, cycle, all_time) VALUES (?, ?, ?, ?)
		 ON CONFLICT(actor_id, task_type) DO UPDATE SET cycle=excluded.cycle, all_time=excluded.all_time`,
		actorID, taskType, cycle, allTime,
	)
	return err
}

// UpsertDay stores one day of activity, replacing any per-type counts for
// that day.
func (d *DB) UpsertDay(ctx context.Context, actorID string, day domain.DayActivity) error {
	key := day.Date.Format(dayLayout)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO daily_activity (actor_id, day, applicable, due_today, completed, completed_due, overdue, points, task_points)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(actor_id, day) DO UPDATE SET
			applicable=excluded.applicable,
			due_today=excluded.due_today,
			completed=excluded.completed,
			completed_due=excluded.completed_due,
			overdue=excluded.overdue,
			points=excluded.points,
			task_points=excluded.task_points`,
		actorID, key, day.Applicable, day.DueToday, day.Completed, day.CompletedDue,
		day.Overdue, day.Points, day.TaskPoints,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM daily_chore_counts WHERE actor_id = ? AND day = ?`, actorID, key,
	); err != nil {
		return err
	}
	for typ, n := range day.ByType {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO daily_chore_counts (actor_id, day, task_type, completed) VALUES (?, ?, ?, ?)`,
			actorID, key, typ, n,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ─── Snapshot ───────────────────────────────────────────────────────────────

// Snapshot builds an actor's ActivitySnapshot from one consistent read.
// Dates are interpreted in the actor's timezone. Returns ErrActorNotFound
// for unknown actors and ErrSnapshotUnavailable for storage failures.
func (d *DB) Snapshot(ctx context.Context, actorID string, now time.Time) (domain.ActivitySnapshot, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActivitySnapshot{}, fmt.Errorf("%w: %w", domain.ErrSnapshotUnavailable, err)
	}
	defer tx.Rollback()

	s, err := d.snapshot(ctx, tx, actorID, now)
	if err != nil {
		if errors.Is(err, domain.ErrActorNotFound) {
			return domain.ActivitySnapshot{}, err
		}
		return domain.ActivitySnapshot{}, fmt.Errorf("%w: actor %s: %w", domain.ErrSnapshotUnavailable, actorID, err)
	}
	return s, nil
}

func (d *DB) snapshot(ctx context.Context, q querier, actorID string, now time.Time) (domain.ActivitySnapshot, error) {
	s := domain.ActivitySnapshot{
		ActorID:  actorID,
		ByType:   make(map[string]domain.TaskCounters),
		Progress: make(map[string]domain.ProgressRecord),
	}

	var tz string
	err := q.QueryRowContext(ctx,
		`SELECT timezone, cycle_key, balance, lifetime_earned, lifetime_task_earned, cycle_earned,
			cycle_task_earned, reward_claims, bonus_count, current_streak, longest_streak
		 FROM actors WHERE id = ?`, actorID,
	).Scan(&tz, &s.CycleKey, &s.Balance, &s.LifetimeEarned, &s.LifetimeTaskEarned, &s.CycleEarned,
		&s.CycleTaskEarned, &s.RewardClaims, &s.BonusCount, &s.CurrentStreak, &s.LongestStreak)
	if err == sql.ErrNoRows {
		return s, fmt.Errorf("%w: %s", domain.ErrActorNotFound, actorID)
	}
	if err != nil {
		return s, err
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	s.Now = now.In(loc)
	today := s.Now.Format(dayLayout)
	from := domain.StartOfDay(s.Now).AddDate(0, 0, 1-d.historyDays).Format(dayLayout)

	// Per-type cycle and all-time counters.
	rows, err := q.QueryContext(ctx,
		`SELECT task_type, cycle, all_time FROM chore_counts WHERE actor_id = ?`, actorID)
	if err != nil {
		return s, err
	}
	for rows.Next() {
		var typ string
		var c domain.TaskCounters
		if err := rows.Scan(&typ, &c.Cycle, &c.AllTime); err != nil {
			rows.Close()
			return s, err
		}
		s.ByType[typ] = c
		s.Tasks.Cycle += c.Cycle
		s.Tasks.AllTime += c.AllTime
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s, err
	}

	if err := d.loadDays(ctx, q, &s, loc, from, today); err != nil {
		return s, err
	}

	records, err := listProgress(ctx, q, actorID, loc)
	if err != nil {
		return s, err
	}
	for _, rec := range records {
		s.Progress[rec.AwardID] = rec
	}
	return s, nil
}

// loadDays fills s.Days (oldest first) and today's counters.
func (d *DB) loadDays(ctx context.Context, q querier, s *domain.ActivitySnapshot, loc *time.Location, from, today string) error {
	rows, err := q.QueryContext(ctx,
		`SELECT day, applicable, due_today, completed, completed_due, overdue, points, task_points
		 FROM daily_activity WHERE actor_id = ? AND day >= ? AND day <= ? ORDER BY day`,
		s.ActorID, from, today)
	if err != nil {
		return err
	}
	index := make(map[string]int)
	for rows.Next() {
		var key string
		var day domain.DayActivity
		if err := rows.Scan(&key, &day.Applicable, &day.DueToday, &day.Completed,
			&day.CompletedDue, &day.Overdue, &day.Points, &day.TaskPoints); err != nil {
			rows.Close()
			return err
		}
		date, err := time.ParseInLocation(dayLayout, key, loc)
		if err != nil {
			rows.Close()
			return fmt.Errorf("day %q: %w", key, err)
		}
		day.Date = date
		index[key] = len(s.Days)
		s.Days = append(s.Days, day)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT day, task_type, completed FROM daily_chore_counts
		 WHERE actor_id = ? AND day >= ? AND day <= ?`,
		s.ActorID, from, today)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, typ string
		var n int
		if err := rows.Scan(&key, &typ, &n); err != nil {
			return err
		}
		i, ok := index[key]
		if !ok {
			continue
		}
		if s.Days[i].ByType == nil {
			s.Days[i].ByType = make(map[string]int)
		}
		s.Days[i].ByType[typ] = n
		if key == today {
			c := s.ByType[typ]
			c.Today = n
			s.ByType[typ] = c
		}
	}

	if t, ok := s.Today(); ok {
		s.Tasks.Today = t.Completed
	}
	return rows.Err()
}
