// Package domain holds the progression types shared by every layer.
// The engine owns ProgressionProfile; everything else is derived from it
// or appended next to it.
package domain

import (
	"fmt"
	"time"
)

// ─── Identity ───────────────────────────────────────────────────────────────

// PlanTier is the subscription plan resolved by the authentication layer.
type PlanTier string

const (
	PlanFree PlanTier = "free"
	PlanPlus PlanTier = "plus"
	PlanPro  PlanTier = "pro"
)

// IsPaid reports whether the plan unlocks premium items and pro features.
func (p PlanTier) IsPaid() bool {
	return p == PlanPlus || p == PlanPro
}

// Identity is the resolved caller context. The engine never authenticates.
type Identity struct {
	AccountID string   `json:"account_id"`
	PlanTier  PlanTier `json:"plan_tier"`
	IsGuest   bool     `json:"is_guest"`
}

// ─── Profile ────────────────────────────────────────────────────────────────

// EvolutionForm is the visual form derived from the evolution stage.
type EvolutionForm string

const (
	FormBaby        EvolutionForm = "baby"
	FormSpectralI   EvolutionForm = "spectral_i"
	FormSpectralII  EvolutionForm = "spectral_ii"
	FormSpectralIII EvolutionForm = "spectral_iii"
	FormEthereal    EvolutionForm = "ethereal"
	FormPhantom     EvolutionForm = "phantom"
	FormOmega       EvolutionForm = "omega"
)

// ProgressionProfile is the per-account aggregate. Version is bumped on every
// write and used as the compare-and-set guard. PeakLevel is the highest level
// ever reached; spending XP can lower Level but never PeakLevel.
type ProgressionProfile struct {
	AccountID       string        `json:"account_id"`
	TotalXP         int64         `json:"total_xp"`
	Level           int           `json:"level"`
	PeakLevel       int           `json:"peak_level"`
	XPToNextLevel   int64         `json:"xp_to_next_level"`
	Coins           int64         `json:"coins"`
	EvolutionStage  int           `json:"evolution_stage"`
	EvolutionForm   EvolutionForm `json:"evolution_form"`
	QuestsCompleted int64         `json:"quests_completed"`
	TasksCompleted  int64         `json:"tasks_completed"`
	AestheticScore  int64         `json:"aesthetic_score"`
	PlanTier        PlanTier      `json:"plan_tier"`
	IsGuest         bool          `json:"is_guest"`
	Version         int64         `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// XPCategory tags why XP moved.
type XPCategory string

const (
	CatProductivity  XPCategory = "productivity"
	CatSocial        XPCategory = "social"
	CatSchool        XPCategory = "school"
	CatShop          XPCategory = "shop"
	CatSystem        XPCategory = "system"
	CatEvolution     XPCategory = "evolution"
	CatBadge         XPCategory = "badge"
	CatTutorial      XPCategory = "tutorial"
	CatFeatureUnlock XPCategory = "feature_unlock"
)

var xpCategories = map[XPCategory]bool{
	CatProductivity: true, CatSocial: true, CatSchool: true, CatShop: true,
	CatSystem: true, CatEvolution: true, CatBadge: true, CatTutorial: true,
	CatFeatureUnlock: true,
}

// Valid reports whether c is a known category.
func (c XPCategory) Valid() bool { return xpCategories[c] }

// ParseXPCategory validates a category name coming from a caller.
func ParseXPCategory(s string) (XPCategory, error) {
	c := XPCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: xp category %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// XPEvent is one immutable ledger row. Amount is negative only for spends.
type XPEvent struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	Amount    int64      `json:"amount"`
	Reason    string     `json:"reason"`
	Category  XPCategory `json:"category"`
	QuestID   string     `json:"quest_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// RewardBundle is everything a single reward can grant.
type RewardBundle struct {
	XP    int64  `json:"xp"`
	Coins int64  `json:"coins"`
	Item  string `json:"item,omitempty"`
}

// IsZero reports whether the bundle grants nothing.
func (r RewardBundle) IsZero() bool {
	return r.XP == 0 && r.Coins == 0 && r.Item == ""
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakType names an independent consecutive-day counter.
type StreakType string

const (
	StreakDailyLogin   StreakType = "daily_login"
	StreakProductivity StreakType = "productivity"
	StreakStudy        StreakType = "study"
	StreakDailyQuest   StreakType = "daily_quest"
)

// Streak is one counter per (account, type). Rows are never deleted.
type Streak struct {
	AccountID   string     `json:"account_id"`
	Type        StreakType `json:"type"`
	Count       int        `json:"count"`
	BestStreak  int        `json:"best_streak"`
	LastUpdated time.Time  `json:"last_updated"`
	IsActive    bool       `json:"is_active"`
}

// ─── Quests ─────────────────────────────────────────────────────────────────

// QuestType is the rotation a quest belongs to.
type QuestType string

const (
	QuestDaily   QuestType = "daily"
	QuestWeekly  QuestType = "weekly"
	QuestSpecial QuestType = "special"
)

// QuestStatus is active until it becomes completed or expired, both terminal.
type QuestStatus string

const (
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestExpired   QuestStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s QuestStatus) Terminal() bool {
	return s == QuestCompleted || s == QuestExpired
}

// Quest is a bounded, rewarded task owned by one account.
type Quest struct {
	ID          string      `json:"id"`
	AccountID   string      `json:"account_id"`
	Type        QuestType   `json:"type"`
	Category    string      `json:"category"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Difficulty  string      `json:"difficulty,omitempty"`
	Target      int         `json:"target"`
	Progress    int         `json:"progress"`
	Status      QuestStatus `json:"status"`
	XPReward    int64       `json:"xp_reward"`
	CoinReward  int64       `json:"coin_reward"`
	ItemReward  string      `json:"item_reward,omitempty"`
	BatchKey    string      `json:"batch_key,omitempty"`
	Slot        int         `json:"slot"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// IsExpiredAt reports whether the deadline has passed at now.
func (q Quest) IsExpiredAt(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && q.ExpiresAt.Before(now)
}

// ProgressPct returns completion percentage (0-100).
func (q Quest) ProgressPct() float64 {
	if q.Target <= 0 {
		return 100.0
	}
	pct := float64(q.Progress) / float64(q.Target) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

// Reward returns the bundle granted on completion.
func (q Quest) Reward() RewardBundle {
	return RewardBundle{XP: q.XPReward, Coins: q.CoinReward, Item: q.ItemReward}
}

// QuestTemplate is a catalog entry instantiated by the rotation.
type QuestTemplate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Difficulty  string `json:"difficulty"`
	Target      int    `json:"target"`
	XPReward    int64  `json:"xp_reward"`
	CoinReward  int64  `json:"coin_reward"`
	ItemReward  string `json:"item_reward,omitempty"`
}

// QuestFilter narrows ListQuests. Empty fields match everything.
type QuestFilter struct {
	Type   QuestType
	Status QuestStatus
}

// ─── Evolution ──────────────────────────────────────────────────────────────

// EvolutionRecord is the audit row written for each stage advance.
type EvolutionRecord struct {
	ID            string        `json:"id"`
	AccountID     string        `json:"account_id"`
	FromStage     int           `json:"from_stage"`
	ToStage       int           `json:"to_stage"`
	FromForm      EvolutionForm `json:"from_form"`
	ToForm        EvolutionForm `json:"to_form"`
	Trigger       string        `json:"trigger"`
	XPAtEvolution int64         `json:"xp_at_evolution"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ─── Unlocks (badges, tutorial steps, features, tasks) ──────────────────────

// UnlockKind scopes exactly-once markers.
type UnlockKind string

const (
	UnlockBadge      UnlockKind = "badge"
	UnlockTutorial   UnlockKind = "tutorial"
	UnlockFeature    UnlockKind = "feature"
	UnlockOnboarding UnlockKind = "onboarding"
	UnlockTask       UnlockKind = "task"
)

// Unlock records that a one-shot reward was granted.
type Unlock struct {
	AccountID  string     `json:"account_id"`
	Kind       UnlockKind `json:"kind"`
	Key        string     `json:"key"`
	UnlockedAt time.Time  `json:"unlocked_at"`
}

// RequirementType is what a badge requirement measures.
type RequirementType string

const (
	ReqXP              RequirementType = "xp"
	ReqLevel           RequirementType = "level"
	ReqStreak          RequirementType = "streak"
	ReqQuestsCompleted RequirementType = "quests_completed"
	ReqTasksCompleted  RequirementType = "tasks_completed"
)

// BadgeDef defines a badge and the stat threshold that unlocks it.
type BadgeDef struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Icon        string          `json:"icon"`
	Requirement RequirementType `json:"requirement"`
	Value       int64           `json:"value"`
	RewardXP    int64           `json:"reward_xp"`
}

// BadgeStats is the snapshot fed to badge requirements.
type BadgeStats struct {
	TotalXP         int64
	Level           int
	StreakDays      int
	QuestsCompleted int64
	TasksCompleted  int64
}

// Met reports whether the stats satisfy the badge requirement.
func (b BadgeDef) Met(s BadgeStats) bool {
	switch b.Requirement {
	case ReqXP:
		return s.TotalXP >= b.Value
	case ReqLevel:
		return int64(s.Level) >= b.Value
	case ReqStreak:
		return int64(s.StreakDays) >= b.Value
	case ReqQuestsCompleted:
		return s.QuestsCompleted >= b.Value
	case ReqTasksCompleted:
		return s.TasksCompleted >= b.Value
	}
	return false
}

// FeatureDef is a level- or plan-gated feature that pays XP when unlocked.
type FeatureDef struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	MinLevel int    `json:"min_level"`
	Pro      bool   `json:"pro"`
}

// ShopItem is the subset of the shop catalog the engine needs for a purchase.
// XPPrice is carried from the catalog so XP-priced items can be refused.
type ShopItem struct {
	Name      string `json:"name"`
	CoinPrice int64  `json:"coin_price"`
	XPPrice   int64  `json:"xp_price"`
	Premium   bool   `json:"premium"`
}
