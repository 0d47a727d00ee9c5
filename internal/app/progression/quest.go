package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ghostline/ghostxp/internal/domain"
	"github.com/ghostline/ghostxp/internal/infra/metrics"
)

// DailyQuestCatalog is the default pool of daily quests.
func DailyQuestCatalog() []domain.QuestTemplate {
	return []domain.QuestTemplate{
		{Title: "No Doomscrolling", Description: "Don't open TikTok or Instagram for 3 hours straight", Category: "productivity", Difficulty: "hard", Target: 180, XPReward: 50, CoinReward: 10},
		{Title: "Stay Hydrated", Description: "Drink water 5 times today", Category: "health", Difficulty: "easy", Target: 5, XPReward: 30, CoinReward: 5},
		{Title: "Task Master", Description: "Complete 3 tasks from your to-do list", Category: "productivity", Difficulty: "medium", Target: 3, XPReward: 40, CoinReward: 8},
		{Title: "Early Bird", Description: "Wake up before 7 AM", Category: "health", Difficulty: "medium", Target: 1, XPReward: 60, CoinReward: 12},
		{Title: "Chat with Ghost", Description: "Have a conversation with your Ghost", Category: "social", Difficulty: "easy", Target: 1, XPReward: 20, CoinReward: 5},
	}
}

// WeeklyQuestCatalog is the default pool of weekly quests.
func WeeklyQuestCatalog() []domain.QuestTemplate {
	return []domain.QuestTemplate{
		{Title: "Productive Week", Description: "Complete 15 tasks this week", Category: "productivity", Difficulty: "medium", Target: 15, XPReward: 200, CoinReward: 40},
		{Title: "Homework Hero", Description: "Solve 5 homework problems", Category: "school", Difficulty: "medium", Target: 5, XPReward: 150, CoinReward: 30},
		{Title: "Social Butterfly", Description: "Chat with your Ghost on 5 different days", Category: "social", Difficulty: "easy", Target: 5, XPReward: 120, CoinReward: 20},
		{Title: "Quest Streak", Description: "Finish 10 daily quests", Category: "system", Difficulty: "hard", Target: 10, XPReward: 300, CoinReward: 60, ItemReward: "Weekly Champion Aura"},
		{Title: "Mindful Scroller", Description: "Stay under your screen-time goal for 4 days", Category: "health", Difficulty: "hard", Target: 4, XPReward: 250, CoinReward: 50},
	}
}

// QuestUpdate is the outcome of a quest transition. AlreadyTerminal reports
// an idempotent no-op on a completed or expired quest.
type QuestUpdate struct {
	Quest           domain.Quest `json:"quest"`
	Completed       bool         `json:"completed"`
	AlreadyTerminal bool         `json:"already_terminal"`
	Reward          *AwardResult `json:"reward,omitempty"`
}

// QuestBatch is a rotation batch; Created is false when it already existed.
type QuestBatch struct {
	Quests  []domain.Quest `json:"quests"`
	Created bool           `json:"created"`
}

// ─── Rotation ───────────────────────────────────────────────────────────────

// CreateDailyQuests creates today's daily batch unless it already exists.
// Quests expire at the start of the next calendar day.
func (e *Engine) CreateDailyQuests(ctx context.Context, accountID string) (QuestBatch, error) {
	now := e.clock()
	key := "daily:" + domain.StartOfDay(now, e.loc).Format("2006-01-02")
	b, err := e.createBatch(ctx, "create_daily_quests", accountID, domain.QuestDaily, key,
		e.daily, e.dailyCount, domain.NextDay(now, e.loc))
	if err != nil {
		return QuestBatch{}, fmt.Errorf("create daily quests: %w", err)
	}
	return b, nil
}

// CreateWeeklyQuests creates this ISO week's batch, expiring next Monday.
func (e *Engine) CreateWeeklyQuests(ctx context.Context, accountID string) (QuestBatch, error) {
	now := e.clock()
	year, week := now.In(e.loc).ISOWeek()
	key := fmt.Sprintf("weekly:%d-W%02d", year, week)
	b, err := e.createBatch(ctx, "create_weekly_quests", accountID, domain.QuestWeekly, key,
		e.weekly, e.weeklyCount, domain.NextMonday(now, e.loc))
	if err != nil {
		return QuestBatch{}, fmt.Errorf("create weekly quests: %w", err)
	}
	return b, nil
}

func (e *Engine) createBatch(ctx context.Context, op, accountID string, typ domain.QuestType, key string,
	pool []domain.QuestTemplate, n int, expires time.Time) (QuestBatch, error) {
	if err := validAccount(accountID); err != nil {
		return QuestBatch{}, err
	}

	var batch QuestBatch
	err := e.update(ctx, op, func(tx domain.Tx, _ *effects) error {
		now := e.clock()
		if _, err := tx.Profile(ctx, accountID); err != nil {
			return err
		}
		if _, err := tx.ExpireAccountQuests(ctx, accountID, now); err != nil {
			return err
		}
		existing, err := tx.QuestsByBatch(ctx, accountID, key)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			batch = QuestBatch{Quests: existing}
			return nil
		}

		picked := e.pickQuests(pool, n)
		quests := make([]domain.Quest, 0, len(picked))
		for i, tmpl := range picked {
			q := fromTemplate(accountID, typ, tmpl, now, expires)
			q.BatchKey = key
			q.Slot = i
			if err := tx.InsertQuest(ctx, q); err != nil {
				if errors.Is(err, domain.ErrDuplicate) {
					// A concurrent request created the batch first.
					return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
				}
				return err
			}
			quests = append(quests, q)
		}
		batch = QuestBatch{Quests: quests, Created: true}
		return nil
	})
	if err != nil {
		return QuestBatch{}, err
	}
	if batch.Created {
		e.log.Debug("quest batch created", zap.String("account", accountID), zap.String("batch", key))
	}
	return batch, nil
}

// CreateSpecialQuest creates an event quest outside the rotations.
func (e *Engine) CreateSpecialQuest(ctx context.Context, accountID string, tmpl domain.QuestTemplate, expiresAt time.Time) (domain.Quest, error) {
	if err := validAccount(accountID); err != nil {
		return domain.Quest{}, err
	}
	if tmpl.Title == "" || tmpl.Target <= 0 {
		return domain.Quest{}, fmt.Errorf("%w: quest needs a title and a positive target", domain.ErrInvalidArgument)
	}
	if tmpl.XPReward < 0 || tmpl.CoinReward < 0 {
		return domain.Quest{}, fmt.Errorf("%w: quest rewards must not be negative", domain.ErrInvalidArgument)
	}
	now := e.clock()
	if !expiresAt.After(now) {
		return domain.Quest{}, fmt.Errorf("%w: quest expiry must be in the future", domain.ErrInvalidArgument)
	}

	var q domain.Quest
	err := e.update(ctx, "create_special_quest", func(tx domain.Tx, _ *effects) error {
		if _, err := tx.Profile(ctx, accountID); err != nil {
			return err
		}
		q = fromTemplate(accountID, domain.QuestSpecial, tmpl, now, expiresAt)
		return tx.InsertQuest(ctx, q)
	})
	if err != nil {
		return domain.Quest{}, fmt.Errorf("create special quest: %w", err)
	}
	return q, nil
}

func fromTemplate(accountID string, typ domain.QuestType, t domain.QuestTemplate, now, expires time.Time) domain.Quest {
	return domain.Quest{
		ID:          newID(),
		AccountID:   accountID,
		Type:        typ,
		Category:    t.Category,
		Title:       t.Title,
		Description: t.Description,
		Difficulty:  t.Difficulty,
		Target:      t.Target,
		Status:      domain.QuestActive,
		XPReward:    t.XPReward,
		CoinReward:  t.CoinReward,
		ItemReward:  t.ItemReward,
		CreatedAt:   now,
		ExpiresAt:   expires,
	}
}

// pickQuests returns a uniformly random subset of n templates, or the whole
// pool in random order when it holds fewer.
func (e *Engine) pickQuests(pool []domain.QuestTemplate, n int) []domain.QuestTemplate {
	shuffled := make([]domain.QuestTemplate, len(pool))
	copy(shuffled, pool)
	e.shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n < len(shuffled) {
		shuffled = shuffled[:n]
	}
	return shuffled
}

// ─── Progress & Completion ──────────────────────────────────────────────────

// UpdateQuestProgress sets a quest's progress. Reaching the target completes
// the quest and pays its reward in the same transaction. Calls on a terminal
// quest report AlreadyTerminal and change nothing.
func (e *Engine) UpdateQuestProgress(ctx context.Context, accountID, questID string, progress int) (QuestUpdate, error) {
	if progress < 0 {
		return QuestUpdate{}, fmt.Errorf("%w: progress must not be negative", domain.ErrInvalidArgument)
	}
	return e.questOp(ctx, "update_quest_progress", accountID, questID, func(q domain.Quest) int { return progress })
}

// CompleteQuest drives a quest straight to its target.
func (e *Engine) CompleteQuest(ctx context.Context, accountID, questID string) (QuestUpdate, error) {
	return e.questOp(ctx, "complete_quest", accountID, questID, func(q domain.Quest) int { return q.Target })
}

func (e *Engine) questOp(ctx context.Context, op, accountID, questID string, progressFn func(domain.Quest) int) (QuestUpdate, error) {
	if err := validAccount(accountID); err != nil {
		return QuestUpdate{}, err
	}
	var res QuestUpdate
	err := e.update(ctx, op, func(tx domain.Tx, fx *effects) error {
		q, err := tx.Quest(ctx, accountID, questID)
		if err != nil {
			return err
		}
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		res, err = e.advanceQuest(ctx, tx, fx, &p, q, progressFn(q))
		if err != nil {
			return err
		}
		if res.Completed {
			return e.saveProfile(ctx, tx, &p)
		}
		return nil
	})
	if err != nil {
		return QuestUpdate{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// advanceQuest applies a progress value to an active quest. Profile changes
// are left in p for the caller to persist.
func (e *Engine) advanceQuest(ctx context.Context, tx domain.Tx, fx *effects, p *domain.ProgressionProfile, q domain.Quest, progress int) (QuestUpdate, error) {
	now := e.clock()
	if q.Status.Terminal() {
		return QuestUpdate{Quest: q, AlreadyTerminal: true}, nil
	}
	if q.IsExpiredAt(now) {
		q.Status = domain.QuestExpired
		if err := saveQuest(ctx, tx, q); err != nil {
			return QuestUpdate{}, err
		}
		return QuestUpdate{Quest: q, AlreadyTerminal: true}, nil
	}

	if progress < q.Target {
		q.Progress = progress
		if err := saveQuest(ctx, tx, q); err != nil {
			return QuestUpdate{}, err
		}
		return QuestUpdate{Quest: q}, nil
	}

	q.Progress = q.Target
	q.Status = domain.QuestCompleted
	q.CompletedAt = &now
	if err := saveQuest(ctx, tx, q); err != nil {
		return QuestUpdate{}, err
	}

	reward := q.Reward()
	var award AwardResult
	if !reward.IsZero() {
		var err error
		award, err = e.reward(ctx, tx, fx, p, reward, "Completed: "+q.Title, questXPCategory(q.Category), q.ID)
		if err != nil {
			return QuestUpdate{}, err
		}
	}
	p.QuestsCompleted++
	if q.Type == domain.QuestDaily {
		if _, err := e.tick(ctx, tx, fx, p.AccountID, domain.StreakDailyQuest, now); err != nil {
			return QuestUpdate{}, err
		}
	}

	fx.quests = append(fx.quests, q.Type)
	fx.notify(e.note(p.AccountID, domain.NotifyQuestComplete,
		"Quest complete!",
		fmt.Sprintf("%s: +%d XP, +%d coins", q.Title, q.XPReward, q.CoinReward),
		map[string]string{"quest_id": q.ID, "type": string(q.Type)}))

	award.NewTotal = p.TotalXP
	award.NewLevel = p.Level
	return QuestUpdate{Quest: q, Completed: true, Reward: &award}, nil
}

// saveQuest treats a quest that turned terminal under us as a lost race so
// the retry observes the terminal state.
func saveQuest(ctx context.Context, tx domain.Tx, q domain.Quest) error {
	err := tx.SaveQuest(ctx, q)
	if errors.Is(err, domain.ErrInvalidState) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, err)
	}
	return err
}

// questXPCategory maps a quest category onto the ledger categories.
func questXPCategory(category string) domain.XPCategory {
	switch c := domain.XPCategory(category); c {
	case domain.CatProductivity, domain.CatSocial, domain.CatSchool:
		return c
	}
	return domain.CatSystem
}

// RecordQuestActivity adds delta to every active quest of a category and
// completes those reaching their target, all in one transaction.
func (e *Engine) RecordQuestActivity(ctx context.Context, accountID, category string, delta int) ([]QuestUpdate, error) {
	if err := validAccount(accountID); err != nil {
		return nil, err
	}
	if delta <= 0 {
		return nil, fmt.Errorf("%w: activity delta must be positive, got %d", domain.ErrInvalidArgument, delta)
	}
	var out []QuestUpdate
	err := e.update(ctx, "record_quest_activity", func(tx domain.Tx, fx *effects) error {
		p, err := tx.Profile(ctx, accountID)
		if err != nil {
			return err
		}
		out, err = e.recordActivity(ctx, tx, fx, &p, category, delta)
		if err != nil {
			return err
		}
		return e.saveProfile(ctx, tx, &p)
	})
	if err != nil {
		return nil, fmt.Errorf("record quest activity: %w", err)
	}
	return out, nil
}

func (e *Engine) recordActivity(ctx context.Context, tx domain.Tx, fx *effects, p *domain.ProgressionProfile, category string, delta int) ([]QuestUpdate, error) {
	active, err := tx.ListQuests(ctx, p.AccountID, domain.QuestFilter{Status: domain.QuestActive})
	if err != nil {
		return nil, err
	}
	var out []QuestUpdate
	for _, q := range active {
		if q.Category != category {
			continue
		}
		u, err := e.advanceQuest(ctx, tx, fx, p, q, q.Progress+delta)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// ─── Expiry & Listing ───────────────────────────────────────────────────────

// SweepExpiredQuests moves every overdue active quest to expired. No reward
// is paid for expired quests.
func (e *Engine) SweepExpiredQuests(ctx context.Context) (int64, error) {
	n, err := e.store.ExpireQuests(ctx, e.clock())
	if err != nil {
		return 0, fmt.Errorf("sweep expired quests: %w", err)
	}
	if n > 0 {
		metrics.QuestsExpired.Add(float64(n))
		e.log.Info("expired quests swept", zap.Int64("count", n))
	}
	return n, nil
}

// ListQuests expires the account's overdue quests, then lists them.
func (e *Engine) ListQuests(ctx context.Context, accountID string, f domain.QuestFilter) ([]domain.Quest, error) {
	if err := validAccount(accountID); err != nil {
		return nil, err
	}
	var (
		out     []domain.Quest
		expired int64
	)
	err := e.update(ctx, "list_quests", func(tx domain.Tx, _ *effects) error {
		if _, err := tx.Profile(ctx, accountID); err != nil {
			return err
		}
		var err error
		if expired, err = tx.ExpireAccountQuests(ctx, accountID, e.clock()); err != nil {
			return err
		}
		out, err = tx.ListQuests(ctx, accountID, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	if expired > 0 {
		metrics.QuestsExpired.Add(float64(expired))
	}
	return out, nil
}
