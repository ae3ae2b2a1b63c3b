package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthboard/awards/internal/domain"
)

// ─── Award Progress ─────────────────────────────────────────────────────────

// SaveProgress upserts one progress record. Repeating it is harmless.
func (d *DB) SaveProgress(ctx context.Context, rec domain.ProgressRecord) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO award_progress (actor_id, award_id, tier, state, window_start, window_end,
			earned, earned_at, cycle_key, earn_count, terminal, progress, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(actor_id, award_id) DO UPDATE SET
			tier=excluded.tier,
			state=excluded.state,
			window_start=excluded.window_start,
			window_end=excluded.window_end,
			earned=excluded.earned,
			earned_at=excluded.earned_at,
			cycle_key=excluded.cycle_key,
			earn_count=excluded.earn_count,
			terminal=excluded.terminal,
			progress=excluded.progress,
			updated_at=excluded.updated_at`,
		rec.ActorID, rec.AwardID, rec.Tier, string(rec.State),
		nullableUnixNano(rec.WindowStart), nullableUnixNano(rec.WindowEnd),
		rec.Earned, nullableUnixNano(rec.EarnedAt), rec.CycleKey, rec.EarnCount,
		rec.Terminal, rec.Progress, time.Now().Unix(),
	)
	return err
}

// ListProgress returns an actor's progress records ordered by award id.
func (d *DB) ListProgress(ctx context.Context, actorID string) ([]domain.ProgressRecord, error) {
	return listProgress(ctx, d.db, actorID, time.UTC)
}

// DeleteProgress removes one actor/award record and its multiplier so the
// award is evaluated from scratch. Returns sql.ErrNoRows when no record exists.
func (d *DB) DeleteProgress(ctx context.Context, actorID, awardID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM award_progress WHERE actor_id = ? AND award_id = ?`, actorID, awardID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("progress %s/%s: %w", actorID, awardID, sql.ErrNoRows)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM award_multipliers WHERE actor_id = ? AND award_id = ?`, actorID, awardID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteAwardProgress removes every record of an award that left the
// catalog, along with its multipliers. Returns the number of progress rows
// removed.
func (d *DB) DeleteAwardProgress(ctx context.Context, awardID string) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM award_progress WHERE award_id = ?`, awardID)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM award_multipliers WHERE award_id = ?`, awardID); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// ProgressAwardIDs returns the distinct award ids that have stored progress.
func (d *DB) ProgressAwardIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT award_id FROM award_progress ORDER BY award_id`)
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

func listProgress(ctx context.Context, q querier, actorID string, loc *time.Location) ([]domain.ProgressRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT actor_id, award_id, tier, state, window_start, window_end,
			earned, earned_at, cycle_key, earn_count, terminal, progress
		 FROM award_progress WHERE actor_id = ? ORDER BY award_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ProgressRecord
	for rows.Next() {
		rec, err := scanProgress(rows, loc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanProgress(s scanner, loc *time.Location) (domain.ProgressRecord, error) {
	var rec domain.ProgressRecord
	var state string
	var windowStart, windowEnd, earnedAt sql.NullInt64

	err := s.Scan(&rec.ActorID, &rec.AwardID, &rec.Tier, &state, &windowStart, &windowEnd,
		&rec.Earned, &earnedAt, &rec.CycleKey, &rec.EarnCount, &rec.Terminal, &rec.Progress)
	if err != nil {
		return rec, err
	}
	rec.State = domain.TierState(state)
	rec.WindowStart = fromUnixNano(windowStart, loc)
	rec.WindowEnd = fromUnixNano(windowEnd, loc)
	rec.EarnedAt = fromUnixNano(earnedAt, loc)
	return rec, nil
}
