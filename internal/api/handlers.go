package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghostline/ghostxp/internal/app/progression"
	"github.com/ghostline/ghostxp/internal/domain"
)

// ─── Accounts ───────────────────────────────────────────────────────────────

type ensureAccountRequest struct {
	PlanTier domain.PlanTier `json:"plan_tier"`
	IsGuest  bool            `json:"is_guest"`
}

func (s *Server) handleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	var req ensureAccountRequest
	if !decode(w, r, &req) {
		return
	}
	p, created, err := s.engine.EnsureAccount(r.Context(), domain.Identity{
		AccountID: account(r), PlanTier: req.PlanTier, IsGuest: req.IsGuest,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, p)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetProfile(r.Context(), account(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":  p,
		"progress": progression.ProgressFor(p.TotalXP),
	})
}

func (s *Server) handleUpgradeGuest(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.UpgradeGuest(r.Context(), account(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSetAesthetic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Score int64 `json:"score"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := s.engine.SetAestheticScore(r.Context(), account(r), req.Score)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ─── XP & Coins ─────────────────────────────────────────────────────────────

type xpRequest struct {
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
	Category string `json:"category"`
}

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req xpRequest
	if !decode(w, r, &req) {
		return
	}
	cat, err := domain.ParseXPCategory(req.Category)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.AwardXP(r.Context(), account(r), req.Amount, req.Reason, cat)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSpendXP(w http.ResponseWriter, r *http.Request) {
	var req xpRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.SpendXP(r.Context(), account(r), req.Amount, req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSpendCoins(w http.ResponseWriter, r *http.Request) {
	var req xpRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.SpendCoins(r.Context(), account(r), req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleApplyReward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		domain.RewardBundle
		Reason   string `json:"reason"`
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	cat, err := domain.ParseXPCategory(req.Category)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.engine.ApplyReward(r.Context(), account(r), req.RewardBundle, req.Reason, cat)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := s.engine.History(r.Context(), account(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

func (s *Server) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.VerifyLedger(r.Context(), account(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	xp, err := strconv.ParseInt(chi.URLParam(r, "xp"), 10, 64)
	if err != nil || xp < 0 {
		writeError(w, http.StatusBadRequest, "xp must be a non-negative integer")
		return
	}
	writeJSON(w, http.StatusOK, progression.ProgressFor(xp))
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		At time.Time `json:"at"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Tick(r.Context(), account(r), domain.StreakType(chi.URLParam(r, "type")), req.At)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStreaks(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Streaks(r.Context(), account(r), time.Time{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"streaks": nonNil(list)})
}

// ─── Quests ─────────────────────────────────────────────────────────────────

func (s *Server) handleCreateDaily(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.CreateDailyQuests(r.Context(), account(r))
	s.writeBatch(w, r, b, err)
}

func (s *Server) handleCreateWeekly(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.CreateWeeklyQuests(r.Context(), account(r))
	s.writeBatch(w, r, b, err)
}

func (s *Server) writeBatch(w http.ResponseWriter, r *http.Request, b progression.QuestBatch, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if b.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, b)
}

func (s *Server) handleCreateSpecial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		domain.QuestTemplate
		ExpiresAt time.Time `json:"expires_at"`
	}
	if !decode(w, r, &req) {
		return
	}
	q, err := s.engine.CreateSpecialQuest(r.Context(), account(r), req.QuestTemplate, req.ExpiresAt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	f := domain.QuestFilter{
		Type:   domain.QuestType(r.URL.Query().Get("type")),
		Status: domain.QuestStatus(r.URL.Query().Get("status")),
	}
	quests, err := s.engine.ListQuests(r.Context(), account(r), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quests": nonNil(quests)})
}

func (s *Server) handleQuestProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Progress int `json:"progress"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.UpdateQuestProgress(r.Context(), account(r), chi.URLParam(r, "quest"), req.Progress)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompleteQuest(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CompleteQuest(r.Context(), account(r), chi.URLParam(r, "quest"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Delta    int    `json:"delta"`
	}
	if !decode(w, r, &req) {
		return
	}
	ups, err := s.engine.RecordQuestActivity(r.Context(), account(r), req.Category, req.Delta)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": nonNil(ups)})
}

func (s *Server) handleSweepQuests(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.SweepExpiredQuests(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
}

// ─── Evolution ──────────────────────────────────────────────────────────────

func (s *Server) handleEvolutionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.EvolutionStatus(r.Context(), account(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleEvolutionHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.EvolutionHistory(r.Context(), account(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evolutions": nonNil(recs)})
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stages": progression.Stages()})
}

// ─── Badges & one-shot rewards ──────────────────────────────────────────────

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Badges(r.Context(), account(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": nonNil(list)})
}

func (s *Server) handleCheckBadges(w http.ResponseWriter, r *http.Request) {
	got, err := s.engine.CheckBadges(r.Context(), account(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unlocked": nonNil(got)})
}

func (s *Server) handleUnlockBadge(w http.ResponseWriter, r *http.Request) {
	u, fresh, err := s.engine.UnlockBadge(r.Context(), account(r), chi.URLParam(r, "badge"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"granted": fresh, "unlock": u})
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CompleteOnboarding(r.Context(), account(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTutorialStep(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.CompleteTutorialStep(r.Context(), account(r), chi.URLParam(r, "step"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUnlockFeature(w http.ResponseWriter, r *http.Request) {
	var f domain.FeatureDef
	if !decode(w, r, &f) {
		return
	}
	res, err := s.engine.UnlockFeature(r.Context(), account(r), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		XP       int64  `json:"xp"`
		Category string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.CompleteTask(r.Context(), account(r), chi.URLParam(r, "task"), req.XP, domain.XPCategory(req.Category))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var item domain.ShopItem
	if !decode(w, r, &item) {
		return
	}
	res, err := s.engine.Purchase(r.Context(), account(r), item)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 20)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.inbox.Inbox(r.Context(), account(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": nonNil(list)})
}

func (s *Server) handleMarkShown(w http.ResponseWriter, r *http.Request) {
	if err := s.inbox.MarkShown(r.Context(), account(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Leaderboards ───────────────────────────────────────────────────────────

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	cat, err := domain.ParseBoard(chi.URLParam(r, "category"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e, ok, err := s.ranker.Rank(r.Context(), account(r), cat)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"account_id": account(r), "category": cat, "rank": nil})
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	cat, err := domain.ParseBoard(chi.URLParam(r, "category"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 10)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.ranker.Top(r.Context(), cat, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": cat, "entries": nonNil(entries)})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	cat, err := domain.ParseBoard(chi.URLParam(r, "category"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.ranker.Recompute(r.Context(), cat)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": cat, "accounts": len(entries)})
}

func (s *Server) handleRecomputeAll(w http.ResponseWriter, r *http.Request) {
	out, err := s.ranker.RecomputeAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	counts := make(map[string]int, len(out))
	for cat, entries := range out {
		counts[string(cat)] = len(entries)
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": counts})
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
