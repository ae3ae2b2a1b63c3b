package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// ─── Tier Multipliers ───────────────────────────────────────────────────────

// SetMultiplier records the tier-linked value multiplier for an actor and
// award. It overwrites, so repeated calls are harmless.
func (d *DB) SetMultiplier(ctx context.Context, actorID, awardID string, multiplier float64) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO award_multipliers (actor_id, award_id, multiplier, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(actor_id, award_id) DO UPDATE SET multiplier=excluded.multiplier, updated_at=excluded.updated_at`,
		actorID, awardID, multiplier, time.Now().Unix(),
	)
	return err
}

// Multiplier returns the stored multiplier, or 1 when none is set.
func (d *DB) Multiplier(ctx context.Context, actorID, awardID string) (float64, error) {
	var m float64
	err := d.db.QueryRowContext(ctx,
		`SELECT multiplier FROM award_multipliers WHERE actor_id = ? AND award_id = ?`,
		actorID, awardID,
	).Scan(&m)
	if err == sql.ErrNoRows {
		return 1, nil
	}
	return m, err
}

// EffectiveMultiplier is the product of every award multiplier an actor holds.
func (d *DB) EffectiveMultiplier(ctx context.Context, actorID string) (float64, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT multiplier FROM award_multipliers WHERE actor_id = ?`, actorID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	product := 1.0
	for rows.Next() {
		var m float64
		if err := rows.Scan(&m); err != nil {
			return 0, err
		}
		product *= m
	}
	return product, rows.Err()
}
