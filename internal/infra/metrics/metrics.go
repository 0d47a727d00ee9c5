// Package metrics provides Prometheus metrics for ghostxp: XP flow, levels,
// evolutions, quests, streaks, transaction retries, ranking runs, and
// notification delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── XP & Levels ────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted by category.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "xp_awarded_total",
	Help:      "Total XP awarded.",
}, []string{"category"})

// LevelUps counts level boundary crossings.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "level_ups_total",
	Help:      "Total level-ups.",
})

// Evolutions counts evolution stage advances by target stage.
var Evolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "evolutions_total",
	Help:      "Total evolution stage advances.",
}, []string{"stage"})

// ─── Quests & Streaks ───────────────────────────────────────────────────────

// QuestsCompleted tracks completed quests by type.
var QuestsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "quests_completed_total",
	Help:      "Total completed quests.",
}, []string{"type"})

// QuestsExpired counts quests moved to expired.
var QuestsExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "quests_expired_total",
	Help:      "Total expired quests.",
})

// StreakTicks tracks streak ticks by type and outcome (created, incremented, reset, noop).
var StreakTicks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "streak_ticks_total",
	Help:      "Total streak ticks.",
}, []string{"type", "outcome"})

// ─── Transactions ───────────────────────────────────────────────────────────

// TxConflicts counts per-account transactions retried after losing a race.
var TxConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "tx_conflicts_total",
	Help:      "Transactions retried after a concurrency conflict.",
}, []string{"op"})

// TxExhausted counts operations that gave up after the retry bound.
var TxExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "tx_exhausted_total",
	Help:      "Operations that exhausted their retry budget.",
}, []string{"op"})

// ─── Leaderboard ────────────────────────────────────────────────────────────

// LeaderboardRecompute tracks ranking duration per category.
var LeaderboardRecompute = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ghostxp",
	Name:      "leaderboard_recompute_seconds",
	Help:      "Leaderboard recompute duration in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"category"})

// LeaderboardAccounts is the population size of the last ranking run.
var LeaderboardAccounts = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ghostxp",
	Name:      "leaderboard_accounts",
	Help:      "Accounts ranked in the last run.",
})

// ─── Notifications & Health ─────────────────────────────────────────────────

// NotificationsDropped counts notifications discarded by the dispatcher.
var NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "notifications_dropped_total",
	Help:      "Notifications dropped by the dispatcher.",
})

// HealthCheckStatus tracks per-check health (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ghostxp",
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries counts auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ghostxp",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts.",
}, []string{"check"})

// BreakerState tracks circuit breakers (0=closed, 1=open, 2=half_open).
var BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ghostxp",
	Name:      "breaker_state",
	Help:      "Circuit breaker state (0=closed, 1=open, 2=half_open).",
}, []string{"breaker"})
