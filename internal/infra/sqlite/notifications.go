package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hearthboard/awards/internal/domain"
)

// ─── Notification Outbox ────────────────────────────────────────────────────

// Emit stores a notification for later delivery. A notification whose
// DedupeKey was already accepted is ignored, which keeps retried applies
// from notifying twice.
func (d *DB) Emit(ctx context.Context, n domain.AwardNotification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.DedupeKey == "" {
		n.DedupeKey = n.ID
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications
			(id, dedupe_key, actor_id, award_id, award_name, class, reason, tier, created_at, shown)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		n.ID, n.DedupeKey, n.ActorID, n.AwardID, n.AwardName, string(n.Class),
		string(n.Reason), n.Tier, n.CreatedAt.UnixNano(),
	)
	return err
}

// ListNotifications returns an actor's notifications, newest first. When
// pendingOnly is set, notifications already shown are left out.
func (d *DB) ListNotifications(ctx context.Context, actorID string, pendingOnly bool) ([]domain.AwardNotification, error) {
	query := `SELECT id, dedupe_key, actor_id, award_id, award_name, class, reason, tier, created_at, shown
		 FROM notifications WHERE actor_id = ?`
	if pendingOnly {
		query += ` AND shown = 0`
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := d.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AwardNotification
	for rows.Next() {
		var n domain.AwardNotification
		var class, reason string
		var created int64
		if err := rows.Scan(&n.ID, &n.DedupeKey, &n.ActorID, &n.AwardID, &n.AwardName,
			&class, &reason, &n.Tier, &created, &n.Shown); err != nil {
			return nil, err
		}
		n.Class = domain.AwardClass(class)
		n.Reason = domain.NotifyReason(reason)
		n.CreatedAt = time.Unix(0, created)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkShown flags a notification as delivered.
func (d *DB) MarkShown(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `UPDATE notifications SET shown = 1 WHERE id = ?`, id)
	return err
}
