package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ghostline/ghostxp/internal/app/leaderboard"
	"github.com/ghostline/ghostxp/internal/app/notify"
	"github.com/ghostline/ghostxp/internal/app/progression"
	"github.com/ghostline/ghostxp/internal/domain"
	"github.com/ghostline/ghostxp/internal/health"
	"github.com/ghostline/ghostxp/internal/infra/store"
)

type testServer struct {
	srv    *httptest.Server
	engine *progression.Engine
	inbox  *notify.Dispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	db, err := store.OpenSQLite(dir)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	inbox := notify.New(db, notify.WithLogger(log))
	inbox.Start()
	engine := progression.New(db, progression.WithNotifier(inbox), progression.WithLogger(log))
	ranker := leaderboard.New(db, leaderboard.WithLogger(log))
	checker := health.NewChecker(db, dir)
	checker.RunOnce(context.Background())

	s := NewServer(engine, ranker, inbox, WithHealth(checker), WithLogger(log))
	s.EnableMetrics()
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		inbox.Close()
		db.Close()
	})
	return &testServer{srv: srv, engine: engine, inbox: inbox}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (ts *testServer) account(t *testing.T, id string, body any) {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPut, "/v1/accounts/"+id, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// ═══════════════════════════════════════════════════════════════════════════
// Accounts & XP
// ═══════════════════════════════════════════════════════════════════════════

func TestAccounts(t *testing.T) {
	ts := newTestServer(t)
	ts.account(t, "acc-1", nil)

	resp, body := ts.do(t, http.MethodPut, "/v1/accounts/acc-1", map[string]any{"plan_tier": "pro"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pro", body["plan_tier"])

	resp, body = ts.do(t, http.MethodGet, "/v1/accounts/acc-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := body["profile"].(map[string]any)
	assert.EqualValues(t, 1, profile["level"])
	assert.EqualValues(t, 100, profile["xp_to_next_level"])

	resp, _ = ts.do(t, http.MethodGet, "/v1/accounts/nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAwardXP(t *testing.T) {
	ts := newTestServer(t)
	ts.account(t, "acc-1", nil)

	resp, body := ts.do(t, http.MethodPost, "/v1/accounts/acc-1/xp",
		map[string]any{"amount": 110, "reason": "task", "category": "productivity"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 110, body["new_total"])
	assert.Equal(t, true, body["leveled_up"])
	assert.EqualValues(t, 2, body["new_level"])

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/xp",
		map[string]any{"amount": 10, "category": "gambling"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/xp",
		map[string]any{"amount": -10, "category": "system"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/xp", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/xp/spend", map[string]any{"amount": 1000})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/v1/accounts/acc-1/xp/verify", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["consistent"])

	resp, body = ts.do(t, http.MethodGet, "/v1/accounts/acc-1/xp/history?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["events"], 1)

	resp, _ = ts.do(t, http.MethodGet, "/v1/accounts/acc-1/xp/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPurchase(t *testing.T) {
	ts := newTestServer(t)
	ts.account(t, "acc-1", nil)

	resp, _ := ts.do(t, http.MethodPost, "/v1/accounts/acc-1/purchases",
		map[string]any{"name": "Crown", "coin_price": 0, "premium": true})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/rewards",
		map[string]any{"coins": 25, "reason": "gift", "category": "system"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/purchases", map[string]any{"name": "Hat", "coin_price": 20})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/purchases", map[string]any{"name": "Hat", "coin_price": 20})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// ═══════════════════════════════════════════════════════════════════════════
// Streaks & Quests
// ═══════════════════════════════════════════════════════════════════════════

func TestStreakTick(t *testing.T) {
	ts := newTestServer(t)
	ts.account(t, "acc-1", nil)

	at := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		resp, body := ts.do(t, http.MethodPost, "/v1/accounts/acc-1/streaks/study/tick",
			map[string]any{"at": at.AddDate(0, 0, i)})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, i+1, body["count"])
	}

	resp, body := ts.do(t, http.MethodGet, "/v1/accounts/acc-1/streaks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["streaks"], 1)
}

func TestQuests(t *testing.T) {
	ts := newTestServer(t)
	ts.account(t, "acc-1", nil)

	resp, body := ts.do(t, http.MethodPost, "/v1/accounts/acc-1/quests/daily", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	quests := body["quests"].([]any)
	require.Len(t, quests, 3)
	id := quests[0].(map[string]any)["id"].(string)

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/quests/daily", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/accounts/acc-1/quests/%s/complete", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["completed"])

	resp, body = ts.do(t, http.MethodPost, fmt.Sprintf("/v1/accounts/acc-1/quests/%s/complete", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["already_terminal"])

	resp, body = ts.do(t, http.MethodGet, "/v1/accounts/acc-1/quests?status=completed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["quests"], 1)

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/quests/missing/complete", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/v1/quests/sweep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["expired"])
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboards, notifications, health
// ═══════════════════════════════════════════════════════════════════════════

func TestLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	for id, xp := range map[string]int{"a": 300, "b": 300, "c": 500} {
		ts.account(t, id, nil)
		resp, _ := ts.do(t, http.MethodPost, "/v1/accounts/"+id+"/xp", map[string]any{"amount": xp, "category": "social"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := ts.do(t, http.MethodGet, "/v1/accounts/a/rank/xp", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["rank"], "never ranked")

	resp, _ = ts.do(t, http.MethodPost, "/v1/leaderboards/recompute", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for id, want := range map[string]int{"a": 2, "b": 2, "c": 1} {
		resp, body = ts.do(t, http.MethodGet, "/v1/accounts/"+id+"/rank/xp", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.EqualValues(t, want, body["rank"], id)
	}

	resp, body = ts.do(t, http.MethodGet, "/v1/leaderboards/xp?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["entries"], 2)

	resp, _ = ts.do(t, http.MethodGet, "/v1/leaderboards/karma", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotificationsInbox(t *testing.T) {
	ts := newTestServer(t)
	ts.account(t, "acc-1", nil)
	resp, _ := ts.do(t, http.MethodPost, "/v1/accounts/acc-1/xp", map[string]any{"amount": 150, "category": "school"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var id string
	require.Eventually(t, func() bool {
		_, body := ts.do(t, http.MethodGet, "/v1/accounts/acc-1/notifications", nil)
		list, _ := body["notifications"].([]any)
		if len(list) == 0 {
			return false
		}
		id = list[0].(map[string]any)["id"].(string)
		return true
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/notifications/"+id+"/shown", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodPost, "/v1/accounts/acc-1/notifications/nope/shown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/v1/levels/250", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["level"])
}

// ═══════════════════════════════════════════════════════════════════════════
// Error mapping
// ═══════════════════════════════════════════════════════════════════════════

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrAccountNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", domain.ErrQuestNotFound), http.StatusNotFound},
		{domain.ErrInsufficientFunds, http.StatusConflict},
		{domain.ErrAlreadyOwned, http.StatusConflict},
		{domain.ErrRequirementNotMet, http.StatusConflict},
		{domain.ErrPremiumRequired, http.StatusForbidden},
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{domain.ErrUnknownCategory, http.StatusBadRequest},
		{domain.ErrConcurrencyConflict, http.StatusServiceUnavailable},
		{domain.ErrPersistenceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusFor(c.err), "%v", c.err)
	}
}

func TestFail_RetryAfterOnConflict(t *testing.T) {
	s := NewServer(nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/a/xp", nil)

	rec := httptest.NewRecorder()
	s.fail(rec, req, fmt.Errorf("award: %w", domain.ErrConcurrencyConflict))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	s.fail(rec, req, domain.ErrPersistenceUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
