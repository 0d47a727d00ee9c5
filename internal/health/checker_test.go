package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ghostline/ghostxp/internal/infra/metrics"
	"github.com/ghostline/ghostxp/internal/infra/store"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestDB(t *testing.T) (*store.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.OpenSQLite(dir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, dir
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	db, dir := newTestDB(t)
	assert.Len(t, NewChecker(db, dir).checks, 2)
	assert.Len(t, NewChecker(db, "").checks, 1, "postgres has no data dir")
}

func TestChecker_RunAllHealthy(t *testing.T) {
	db, dir := newTestDB(t)
	c := NewChecker(db, dir)
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.True(t, s.Healthy, "check %q: %s", s.Name, s.Error)
	}
	assert.True(t, c.IsHealthy())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HealthCheckStatus.WithLabelValues("store")))
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	db, dir := newTestDB(t)
	// No statuses yet: vacuously healthy.
	assert.True(t, NewChecker(db, dir).IsHealthy())
}

func TestChecker_StoreDown(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	c := NewChecker(down, "")
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Healthy)
	assert.Contains(t, statuses[0].Error, "connection refused")
	assert.False(t, c.IsHealthy())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.HealthCheckStatus.WithLabelValues("store")))
}

func TestChecker_DataDirRecovers(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	dir := filepath.Join(t.TempDir(), "missing")
	c := NewChecker(ok, dir)

	before := testutil.ToFloat64(metrics.HealthRecoveries.WithLabelValues("data_dir"))
	c.RunOnce(context.Background())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HealthRecoveries.WithLabelValues("data_dir")))

	c.RunOnce(context.Background())
	assert.True(t, c.IsHealthy(), "directory was created by the recovery")
}

func TestChecker_DataDirIsFile(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(path, []byte("not a dir"), 0o644))

	c := NewChecker(ok, path)
	c.RunOnce(context.Background())
	for _, s := range c.Statuses() {
		if s.Name == "data_dir" {
			assert.False(t, s.Healthy)
		}
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	c := NewChecker(ok, "", WithCheck(Check{
		Name:    "always_fail",
		CheckFn: func(ctx context.Context) error { return os.ErrPermission },
	}))
	c.RunOnce(context.Background())

	statuses := c.Statuses()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Healthy)
	assert.False(t, statuses[1].Healthy)
	assert.NotEmpty(t, statuses[1].Error)
}

func TestChecker_RunStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	calls := make(chan struct{}, 16)
	p := pingFunc(func(context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	})
	c := NewChecker(p, "", WithInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	<-calls
	<-calls
	cancel()
	<-done
}
