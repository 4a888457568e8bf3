package repo

import (
	"context"

	"relaydesk/internal/domain"
)

// InsertNotification records one in-app notification. Deliveries are
// independent per recipient, so this runs outside any mutation transaction.
func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,from_id,to_id,kind,message,link,read,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.FromID, n.ToID, n.Kind, n.Message, nullable(n.Link), boolToInt(n.Read), n.CreatedAt)
	return err
}

type NotificationFilters struct {
	ToID       string
	UnreadOnly bool
	Limit      int
}

func (r Repo) ListNotifications(ctx context.Context, f NotificationFilters) ([]domain.Notification, error) {
	query := `SELECT id,from_id,to_id,kind,message,COALESCE(link,''),read,created_at FROM notifications WHERE to_id=?`
	args := []any{f.ToID}
	if f.UnreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.FromID, &n.ToID, &n.Kind, &n.Message, &n.Link, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id, toID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND to_id=?`, id, toID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
