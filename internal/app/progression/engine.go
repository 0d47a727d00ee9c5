// Package progression is the rules engine behind XP, levels, streaks, quests,
// evolution stages, badges and one-shot rewards.
//
// Every state-changing operation runs as one store transaction per account.
// Lost races are retried with exponential backoff; notifications and metrics
// are emitted only after the transaction commits.
package progression

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ghostline/ghostxp/internal/domain"
	"github.com/ghostline/ghostxp/internal/infra/metrics"
)

// RetryPolicy bounds the retries of a transaction that lost a race.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts including the first one
	BaseDelay   time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay    time.Duration // Cap on backoff delay
}

// DefaultRetryPolicy returns production retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    250 * time.Millisecond,
	}
}

// Engine applies progression rules on top of a domain.Store.
type Engine struct {
	store    domain.Store
	notifier domain.Notifier
	log      *zap.Logger
	now      func() time.Time
	loc      *time.Location
	retry    RetryPolicy

	daily       []domain.QuestTemplate
	weekly      []domain.QuestTemplate
	dailyCount  int
	weeklyCount int
	badges      []domain.BadgeDef

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithNotifier sets the notification dispatcher.
func WithNotifier(n domain.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the timezone used for calendar-day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithRetry sets the conflict retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithSeed makes quest selection and backoff jitter deterministic.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewSource(seed)) }
}

// WithQuestCatalog replaces the daily and weekly template pools.
func WithQuestCatalog(daily, weekly []domain.QuestTemplate) Option {
	return func(e *Engine) {
		if len(daily) > 0 {
			e.daily = daily
		}
		if len(weekly) > 0 {
			e.weekly = weekly
		}
	}
}

// WithQuestCounts sets how many quests a daily and weekly batch holds.
func WithQuestCounts(daily, weekly int) Option {
	return func(e *Engine) {
		if daily > 0 {
			e.dailyCount = daily
		}
		if weekly > 0 {
			e.weeklyCount = weekly
		}
	}
}

// WithBadges replaces the badge catalog.
func WithBadges(badges []domain.BadgeDef) Option {
	return func(e *Engine) { e.badges = badges }
}

// New creates an engine.
func New(store domain.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		notifier:    nopNotifier{},
		log:         zap.NewNop(),
		now:         time.Now,
		loc:         time.UTC,
		retry:       DefaultRetryPolicy(),
		daily:       DailyQuestCatalog(),
		weekly:      WeeklyQuestCatalog(),
		dailyCount:  3,
		weeklyCount: 3,
		badges:      BadgeCatalog(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry.MaxAttempts < 1 {
		e.retry.MaxAttempts = 1
	}
	return e
}

// Location returns the timezone used for calendar days.
func (e *Engine) Location() *time.Location { return e.loc }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Notification) {}

// ─── Transaction Loop ───────────────────────────────────────────────────────

// effects collects what happened inside one transaction attempt. They are
// discarded when the attempt rolls back.
type effects struct {
	notes       []domain.Notification
	xp          map[domain.XPCategory]int64
	levelUps    int
	evolutions  []int
	quests      []domain.QuestType
	streakTicks []streakOutcome
}

type streakOutcome struct {
	typ     domain.StreakType
	outcome string
}

func (fx *effects) notify(n domain.Notification) {
	fx.notes = append(fx.notes, n)
}

func (fx *effects) addXP(cat domain.XPCategory, amount int64) {
	if fx.xp == nil {
		fx.xp = make(map[domain.XPCategory]int64)
	}
	fx.xp[cat] += amount
}

// update runs fn in a transaction and retries on ErrConcurrencyConflict.
func (e *Engine) update(ctx context.Context, op string, fn func(tx domain.Tx, fx *effects) error) error {
	delay := e.retry.BaseDelay
	for attempt := 1; ; attempt++ {
		fx := &effects{}
		err := e.store.WithinTx(ctx, func(tx domain.Tx) error {
			return fn(tx, fx)
		})
		if err == nil {
			e.flush(ctx, fx)
			return nil
		}

		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			if errors.Is(err, domain.ErrPersistenceUnavailable) {
				e.log.Error("store unavailable", zap.String("op", op), zap.Error(err))
			}
			return err
		}

		metrics.TxConflicts.WithLabelValues(op).Inc()
		if attempt >= e.retry.MaxAttempts {
			metrics.TxExhausted.WithLabelValues(op).Inc()
			e.log.Error("retries exhausted", zap.String("op", op), zap.Int("attempts", attempt), zap.Error(err))
			return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempt, err)
		}

		wait := e.jitter(delay)
		e.log.Debug("transaction conflict, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("backoff", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > e.retry.MaxDelay {
			delay = e.retry.MaxDelay
		}
	}
}

// jitter spreads retries over [d/2, d).
func (e *Engine) jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	half := d / 2
	return half + time.Duration(e.rng.Int63n(int64(half)+1))
}

// flush publishes the effects of a committed transaction.
func (e *Engine) flush(ctx context.Context, fx *effects) {
	for cat, amount := range fx.xp {
		metrics.XPAwarded.WithLabelValues(string(cat)).Add(float64(amount))
	}
	if fx.levelUps > 0 {
		metrics.LevelUps.Add(float64(fx.levelUps))
	}
	for _, stage := range fx.evolutions {
		metrics.Evolutions.WithLabelValues(strconv.Itoa(stage)).Inc()
	}
	for _, typ := range fx.quests {
		metrics.QuestsCompleted.WithLabelValues(string(typ)).Inc()
	}
	for _, st := range fx.streakTicks {
		metrics.StreakTicks.WithLabelValues(string(st.typ), st.outcome).Inc()
	}
	for _, n := range fx.notes {
		e.notifier.Notify(ctx, n)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// shuffle permutes with the shared source.
func (e *Engine) shuffle(n int, swap func(i, j int)) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng.Shuffle(n, swap)
}

func (e *Engine) note(accountID string, typ domain.NotificationType, title, body string, data map[string]string) domain.Notification {
	return domain.Notification{
		ID:        newID(),
		AccountID: accountID,
		Type:      typ,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: e.clock(),
	}
}

func validAccount(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: account id is empty", domain.ErrInvalidArgument)
	}
	return nil
}
