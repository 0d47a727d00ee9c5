package cli

import (
	"fmt"
	"strings"

	"github.com/ghostline/ghostxp/internal/app/progression"
)

// ─── Progress Bars ──────────────────────────────────────────────────────────
// Shows: [=============>................]  42% | 142 / 200 XP

const barWidth = 30 // Characters for the progress bar

func renderBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	filled := int(pct / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	var bar string
	if filled == barWidth {
		bar = strings.Repeat("=", filled)
	} else if filled > 0 {
		bar = strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", empty)
	} else {
		bar = strings.Repeat(".", barWidth)
	}
	return fmt.Sprintf("[%s] %3.0f%%", bar, pct)
}

// levelBar renders progress inside the current level.
func levelBar(p progression.LevelProgress) string {
	return fmt.Sprintf("%s | %d / %d XP", renderBar(p.Pct), p.TotalXP, p.NextLevelAt)
}

// evolutionBar renders progress from the current stage threshold to the next.
func evolutionBar(s progression.EvolutionStatus) string {
	if s.MaxStage {
		return renderBar(100) + " | final form"
	}
	from := progression.StageInfo(s.Stage).XPThreshold
	span := s.NextStageXP - from
	pct := 100.0
	if span > 0 {
		pct = float64(s.TotalXP-from) / float64(span) * 100
	}
	return fmt.Sprintf("%s | %d XP to %s", renderBar(pct), s.XPNeeded, s.NextName)
}
