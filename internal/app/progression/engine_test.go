package progression

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghostline/ghostxp/internal/domain"
	"github.com/ghostline/ghostxp/internal/infra/store"
)

// testClock is a settable clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder collects notifications.
type recorder struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (r *recorder) Notify(_ context.Context, n domain.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recorder) ofType(t domain.NotificationType) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.notes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type harness struct {
	engine *Engine
	store  *store.DB
	clock  *testClock
	notes  *recorder
}

var monday = time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) // a Monday

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	db, err := store.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{store: db, clock: &testClock{t: monday}, notes: &recorder{}}
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithNotifier(h.notes),
		WithClock(h.clock.Now),
		WithSeed(42),
		WithRetry(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	}
	h.engine = New(db, append(base, opts...)...)
	return h
}

func (h *harness) account(t *testing.T, id string) domain.ProgressionProfile {
	t.Helper()
	p, created, err := h.engine.EnsureAccount(context.Background(), domain.Identity{AccountID: id, PlanTier: domain.PlanFree})
	require.NoError(t, err)
	require.True(t, created)
	return p
}

func (h *harness) profile(t *testing.T, id string) domain.ProgressionProfile {
	t.Helper()
	p, err := h.engine.GetProfile(context.Background(), id)
	require.NoError(t, err)
	return p
}

// requireLedgerConsistent checks totalXP against the ledger sum and the level formula.
func (h *harness) requireLedgerConsistent(t *testing.T, id string) {
	t.Helper()
	rep, err := h.engine.VerifyLedger(context.Background(), id)
	require.NoError(t, err)
	require.True(t, rep.Consistent, "ledger report: %+v", rep)
}

// ─── Fault Injection ────────────────────────────────────────────────────────

// flakyStore fails the first n transactions with a conflict after running fn,
// the way a serialization failure at commit behaves.
type flakyStore struct {
	domain.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if !fail {
		return s.Store.WithinTx(ctx, fn)
	}
	errAbort := domain.ErrConcurrencyConflict
	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errAbort // roll back as if commit failed
	})
	return err
}

func (s *flakyStore) setFailures(n int) {
	s.mu.Lock()
	s.failures = n
	s.calls = 0
	s.mu.Unlock()
}
