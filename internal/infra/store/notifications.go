package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ghostline/ghostxp/internal/domain"
)

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification stores a notification in the account inbox.
func (s *DB) InsertNotification(ctx context.Context, n domain.Notification) error {
	payload := []byte("{}")
	if len(n.Data) > 0 {
		var err error
		if payload, err = json.Marshal(n.Data); err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}
	_, err := s.plain().exec(ctx,
		`INSERT INTO notifications (id, account_id, kind, title, body, payload, created_at, shown)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.AccountID, string(n.Type), n.Title, n.Body, string(payload), millis(n.CreatedAt), n.Shown,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the inbox, newest first.
func (s *DB) ListNotifications(ctx context.Context, accountID string, limit int) ([]domain.Notification, error) {
	q := `SELECT id, account_id, kind, title, body, payload, created_at, shown
		  FROM notifications WHERE account_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.plain().query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n             domain.Notification
			kind, payload string
			at            int64
		)
		if err := rows.Scan(&n.ID, &n.AccountID, &kind, &n.Title, &n.Body, &payload, &at, &n.Shown); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = domain.NotificationType(kind)
		n.CreatedAt = fromMillis(at)
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &n.Data); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationShown flags one notification as displayed.
func (s *DB) MarkNotificationShown(ctx context.Context, accountID, id string) error {
	res, err := s.plain().exec(ctx,
		`UPDATE notifications SET shown = ? WHERE id = ? AND account_id = ?`, true, id, accountID)
	if err != nil {
		return fmt.Errorf("mark shown: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
