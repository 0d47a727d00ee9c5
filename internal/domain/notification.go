package domain

import "time"

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyLevelUp         NotificationType = "level_up"
	NotifyEvolution       NotificationType = "evolution"
	NotifyQuestComplete   NotificationType = "quest_complete"
	NotifyBadgeUnlocked   NotificationType = "badge_unlocked"
	NotifyFeatureUnlock   NotificationType = "feature_unlocked"
	NotifyStreakMilestone NotificationType = "streak_milestone"
)

// Notification is a user-facing message emitted after a progression change
// has been committed. Delivery is best effort.
type Notification struct {
	ID        string            `json:"id"`
	AccountID string            `json:"account_id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	Shown     bool              `json:"shown"`
}
