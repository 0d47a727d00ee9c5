// Package leaderboard ranks accounts per category in batch runs that never
// take part in per-account transactions.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ghostline/ghostxp/internal/domain"
	"github.com/ghostline/ghostxp/internal/infra/metrics"
)

// DefaultMaxLimit caps Top when no limit is configured.
const DefaultMaxLimit = 100

// Ranker computes dense-ranked snapshots and serves lookups from the
// latest one.
type Ranker struct {
	store    domain.Store
	log      *zap.Logger
	now      func() time.Time
	loc      *time.Location
	maxLimit int

	mu   sync.Mutex // serializes publishes
	snap atomic.Pointer[snapshot]
}

// snapshot is immutable once published.
type snapshot struct {
	boards map[domain.LeaderboardCategory]*board
}

type board struct {
	entries   []domain.LeaderboardEntry
	byAccount map[string]int
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Ranker) { r.log = l }
}

// WithClock sets the time source used for ComputedAt and live streaks.
func WithClock(now func() time.Time) Option {
	return func(r *Ranker) { r.now = now }
}

// WithLocation sets the timezone used to decide whether a streak is live.
func WithLocation(loc *time.Location) Option {
	return func(r *Ranker) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithMaxLimit caps the number of rows Top returns.
func WithMaxLimit(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.maxLimit = n
		}
	}
}

// New creates a ranker over store.
func New(store domain.Store, opts ...Option) *Ranker {
	r := &Ranker{
		store:    store,
		log:      zap.NewNop(),
		now:      time.Now,
		loc:      time.UTC,
		maxLimit: DefaultMaxLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(&snapshot{boards: map[domain.LeaderboardCategory]*board{}})
	return r
}

// ─── Recompute ──────────────────────────────────────────────────────────────

// Recompute ranks one category, persists the result and publishes it.
func (r *Ranker) Recompute(ctx context.Context, cat domain.LeaderboardCategory) ([]domain.LeaderboardEntry, error) {
	if _, err := domain.ParseBoard(string(cat)); err != nil {
		return nil, err
	}
	start := time.Now()
	sources, err := r.store.RankSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("recompute %s: %w", cat, err)
	}
	entries, err := r.rankAndSave(ctx, cat, sources, r.now().UTC())
	if err != nil {
		return nil, err
	}
	r.publish(map[domain.LeaderboardCategory][]domain.LeaderboardEntry{cat: entries})
	r.observe(cat, start, len(entries))
	return entries, nil
}

// RecomputeAll ranks every category from a single population read.
func (r *Ranker) RecomputeAll(ctx context.Context) (map[domain.LeaderboardCategory][]domain.LeaderboardEntry, error) {
	start := time.Now()
	sources, err := r.store.RankSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("recompute leaderboards: %w", err)
	}
	now := r.now().UTC()

	cats := domain.AllBoards()
	results := make([][]domain.LeaderboardEntry, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range cats {
		i, cat := i, cat
		g.Go(func() error {
			entries, err := r.rankAndSave(gctx, cat, sources, now)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[domain.LeaderboardCategory][]domain.LeaderboardEntry, len(cats))
	for i, cat := range cats {
		out[cat] = results[i]
		r.observe(cat, start, len(results[i]))
	}
	r.publish(out)
	return out, nil
}

func (r *Ranker) rankAndSave(ctx context.Context, cat domain.LeaderboardCategory, sources []domain.RankSource, now time.Time) ([]domain.LeaderboardEntry, error) {
	entries := Rank(cat, sources, now, r.loc)
	if err := r.store.SaveLeaderboard(ctx, cat, entries); err != nil {
		return nil, fmt.Errorf("save %s leaderboard: %w", cat, err)
	}
	return entries, nil
}

func (r *Ranker) observe(cat domain.LeaderboardCategory, start time.Time, n int) {
	d := time.Since(start)
	metrics.LeaderboardRecompute.WithLabelValues(string(cat)).Observe(d.Seconds())
	metrics.LeaderboardAccounts.Set(float64(n))
	r.log.Info("leaderboard ranked",
		zap.String("category", string(cat)), zap.Int("accounts", n), zap.Duration("took", d))
}

// publish swaps in a new snapshot carrying the given boards and the
// untouched boards of the previous one.
func (r *Ranker) publish(boards map[domain.LeaderboardCategory][]domain.LeaderboardEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.snap.Load()
	next := &snapshot{boards: make(map[domain.LeaderboardCategory]*board, len(prev.boards)+len(boards))}
	for cat, b := range prev.boards {
		next.boards[cat] = b
	}
	for cat, entries := range boards {
		b := &board{entries: entries, byAccount: make(map[string]int, len(entries))}
		for i, e := range entries {
			b.byAccount[e.AccountID] = i
		}
		next.boards[cat] = b
	}
	r.snap.Store(next)
}

// ─── Ranking ────────────────────────────────────────────────────────────────

// Score returns the metric of src for a category.
func Score(cat domain.LeaderboardCategory, src domain.RankSource, now time.Time, loc *time.Location) int64 {
	switch cat {
	case domain.BoardXP:
		return src.TotalXP
	case domain.BoardAesthetic:
		return src.AestheticScore
	case domain.BoardStreak:
		return int64(domain.LiveStreakDays(src.Streaks, now, loc))
	case domain.BoardQuests:
		return src.QuestsCompleted
	}
	return 0
}

// Rank orders sources by score descending, then by profile creation and
// account id, and assigns dense ranks.
func Rank(cat domain.LeaderboardCategory, sources []domain.RankSource, now time.Time, loc *time.Location) []domain.LeaderboardEntry {
	type scored struct {
		src   domain.RankSource
		score int64
	}
	rows := make([]scored, len(sources))
	for i, src := range sources {
		rows[i] = scored{src: src, score: Score(cat, src, now, loc)}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.src.CreatedAt.Equal(b.src.CreatedAt) {
			return a.src.CreatedAt.Before(b.src.CreatedAt)
		}
		return a.src.AccountID < b.src.AccountID
	})

	entries := make([]domain.LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = domain.LeaderboardEntry{
			AccountID:  row.src.AccountID,
			Category:   cat,
			Score:      row.score,
			ComputedAt: now,
		}
	}
	assignDenseRanks(entries)
	return entries
}

// assignDenseRanks expects entries sorted by score descending. Equal scores
// share a rank and the next distinct score gets the following rank.
func assignDenseRanks(entries []domain.LeaderboardEntry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
}

// ─── Lookups ────────────────────────────────────────────────────────────────

// Rank returns the latest snapshotted entry of an account. ok is false when
// the account has never been ranked in the category.
func (r *Ranker) Rank(ctx context.Context, accountID string, cat domain.LeaderboardCategory) (domain.LeaderboardEntry, bool, error) {
	if _, err := domain.ParseBoard(string(cat)); err != nil {
		return domain.LeaderboardEntry{}, false, err
	}
	if b, ok := r.snap.Load().boards[cat]; ok {
		i, found := b.byAccount[accountID]
		if !found {
			return domain.LeaderboardEntry{}, false, nil
		}
		return b.entries[i], true, nil
	}

	// Nothing computed since start: use the persisted snapshot.
	e, err := r.store.LeaderboardEntry(ctx, cat, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("rank lookup: %w", err)
	}
	return e, true, nil
}

// Top returns the first limit rows of the latest snapshot.
func (r *Ranker) Top(ctx context.Context, cat domain.LeaderboardCategory, limit int) ([]domain.LeaderboardEntry, error) {
	if _, err := domain.ParseBoard(string(cat)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidArgument, limit)
	}
	limit = min(limit, r.maxLimit)

	if b, ok := r.snap.Load().boards[cat]; ok {
		n := min(limit, len(b.entries))
		out := make([]domain.LeaderboardEntry, n)
		copy(out, b.entries[:n])
		return out, nil
	}
	entries, err := r.store.LoadLeaderboard(ctx, cat, limit)
	if err != nil {
		return nil, fmt.Errorf("top %s: %w", cat, err)
	}
	return entries, nil
}

// ─── Schedule ───────────────────────────────────────────────────────────────

// Run recomputes every board immediately and then on each tick until ctx is
// done. Failures are logged and retried on the next tick.
func (r *Ranker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Ranker) runOnce(ctx context.Context) {
	if _, err := r.RecomputeAll(ctx); err != nil && ctx.Err() == nil {
		r.log.Error("scheduled leaderboard run failed", zap.Error(err))
	}
}
