package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestProgressionCounters(t *testing.T) {
	XPAwarded.WithLabelValues("productivity").Add(50)
	LevelUps.Inc()
	Evolutions.WithLabelValues("2").Inc()

	if got := testutil.ToFloat64(XPAwarded.WithLabelValues("productivity")); got < 50 {
		t.Errorf("expected at least 50, got %f", got)
	}

	names := gatheredNames(t)
	for _, name := range []string{
		"ghostxp_xp_awarded_total",
		"ghostxp_level_ups_total",
		"ghostxp_evolutions_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestQuestAndStreakMetrics(t *testing.T) {
	QuestsCompleted.WithLabelValues("daily").Inc()
	QuestsExpired.Add(2)
	StreakTicks.WithLabelValues("daily_login", "incremented").Inc()

	names := gatheredNames(t)
	if !names["ghostxp_quests_completed_total"] || !names["ghostxp_streak_ticks_total"] {
		t.Error("quest/streak metrics not found")
	}
}

func TestTxAndLeaderboardMetrics(t *testing.T) {
	TxConflicts.WithLabelValues("award_xp").Inc()
	TxExhausted.WithLabelValues("award_xp").Inc()
	LeaderboardRecompute.WithLabelValues("xp").Observe(0.02)
	LeaderboardAccounts.Set(12)

	if got := testutil.ToFloat64(LeaderboardAccounts); got != 12 {
		t.Errorf("expected 12, got %f", got)
	}
	names := gatheredNames(t)
	if !names["ghostxp_leaderboard_recompute_seconds"] {
		t.Error("ghostxp_leaderboard_recompute_seconds not found")
	}
}

func TestAllMetricsGatherable(t *testing.T) {
	NotificationsDropped.Inc()
	HealthCheckStatus.WithLabelValues("store").Set(1)
	HealthRecoveries.WithLabelValues("store").Inc()

	count := 0
	for name := range gatheredNames(t) {
		if strings.HasPrefix(name, "ghostxp_") {
			count++
		}
	}
	// Plain counters and gauges are always gathered; vecs only once they have a child.
	if count < 6 {
		t.Errorf("expected at least 6 ghostxp_ metrics, got %d", count)
	}
}
