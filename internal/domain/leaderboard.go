package domain

import (
	"fmt"
	"time"
)

// LeaderboardCategory is the metric an account is ranked on.
type LeaderboardCategory string

const (
	BoardXP        LeaderboardCategory = "xp"
	BoardAesthetic LeaderboardCategory = "aesthetic"
	BoardStreak    LeaderboardCategory = "streak"
	BoardQuests    LeaderboardCategory = "quests"
)

// AllBoards returns every ranked category in display order.
func AllBoards() []LeaderboardCategory {
	return []LeaderboardCategory{BoardXP, BoardAesthetic, BoardStreak, BoardQuests}
}

// ParseBoard validates a category name.
func ParseBoard(s string) (LeaderboardCategory, error) {
	for _, c := range AllBoards() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: leaderboard %q", ErrUnknownCategory, s)
}

// LeaderboardEntry is one row of a ranking snapshot. Ranks are dense.
type LeaderboardEntry struct {
	AccountID  string              `json:"account_id"`
	Category   LeaderboardCategory `json:"category"`
	Score      int64               `json:"score"`
	Rank       int                 `json:"rank"`
	ComputedAt time.Time           `json:"computed_at"`
}

// RankSource is the per-account input of a ranking run.
type RankSource struct {
	AccountID       string
	TotalXP         int64
	AestheticScore  int64
	QuestsCompleted int64
	Streaks         []Streak
	CreatedAt       time.Time
}
