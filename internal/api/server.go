// Package api exposes the progression engine over HTTP. Callers are
// internal services that have already authenticated the user and pass the
// resolved account id in the path.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ghostline/ghostxp/internal/app/leaderboard"
	"github.com/ghostline/ghostxp/internal/app/notify"
	"github.com/ghostline/ghostxp/internal/app/progression"
	"github.com/ghostline/ghostxp/internal/domain"
	"github.com/ghostline/ghostxp/internal/health"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server is the ghostxp HTTP API server.
type Server struct {
	engine         *progression.Engine
	ranker         *leaderboard.Ranker
	inbox          *notify.Dispatcher
	health         *health.Checker
	log            *zap.Logger
	timeout        time.Duration
	metricsEnabled bool
}

// Option configures a Server.
type Option func(*Server)

// WithHealth serves checker results on /health.
func WithHealth(c *health.Checker) Option {
	return func(s *Server) { s.health = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer creates a new API server.
func NewServer(engine *progression.Engine, ranker *leaderboard.Ranker, inbox *notify.Dispatcher, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		ranker:  ranker,
		inbox:   inbox,
		log:     zap.NewNop(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/levels/{xp}", s.handleLevel)
		r.Get("/evolution/stages", s.handleStages)
		r.Post("/quests/sweep", s.handleSweepQuests)

		r.Route("/leaderboards", func(r chi.Router) {
			r.Post("/recompute", s.handleRecomputeAll)
			r.Get("/{category}", s.handleTop)
			r.Post("/{category}/recompute", s.handleRecompute)
		})

		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Put("/", s.handleEnsureAccount)
			r.Get("/", s.handleGetProfile)
			r.Post("/upgrade", s.handleUpgradeGuest)
			r.Put("/aesthetic", s.handleSetAesthetic)

			r.Post("/xp", s.handleAwardXP)
			r.Post("/xp/spend", s.handleSpendXP)
			r.Get("/xp/history", s.handleHistory)
			r.Get("/xp/verify", s.handleVerifyLedger)
			r.Post("/coins/spend", s.handleSpendCoins)
			r.Post("/rewards", s.handleApplyReward)

			r.Get("/streaks", s.handleStreaks)
			r.Post("/streaks/{type}/tick", s.handleTick)

			r.Get("/quests", s.handleListQuests)
			r.Post("/quests/daily", s.handleCreateDaily)
			r.Post("/quests/weekly", s.handleCreateWeekly)
			r.Post("/quests/special", s.handleCreateSpecial)
			r.Put("/quests/{quest}/progress", s.handleQuestProgress)
			r.Post("/quests/{quest}/complete", s.handleCompleteQuest)
			r.Post("/activity", s.handleActivity)

			r.Get("/evolution", s.handleEvolutionStatus)
			r.Get("/evolution/history", s.handleEvolutionHistory)

			r.Get("/badges", s.handleBadges)
			r.Post("/badges/check", s.handleCheckBadges)
			r.Post("/badges/{badge}", s.handleUnlockBadge)

			r.Post("/onboarding", s.handleOnboarding)
			r.Post("/tutorial/{step}", s.handleTutorialStep)
			r.Post("/features", s.handleUnlockFeature)
			r.Post("/tasks/{task}", s.handleCompleteTask)
			r.Post("/purchases", s.handlePurchase)

			r.Get("/notifications", s.handleInbox)
			r.Post("/notifications/{id}/shown", s.handleMarkShown)

			r.Get("/rank/{category}", s.handleRank)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"status":  status,
		},
	})
}

// statusFor maps an engine error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrAlreadyOwned),
		errors.Is(err, domain.ErrRequirementNotMet),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPremiumRequired):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if errors.Is(err, domain.ErrConcurrencyConflict) {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// intQuery parses an optional integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidArgument, name)
	}
	return n, nil
}

func account(r *http.Request) string {
	return chi.URLParam(r, "account")
}
