package progression

// XPPerLevel is the fixed cost of one level.
const XPPerLevel = 100

// Level maps total XP to a level: floor(totalXP / 100) + 1.
func Level(totalXP int64) int {
	if totalXP < 0 {
		totalXP = 0
	}
	return int(totalXP/XPPerLevel) + 1
}

// XPToNextLevel returns the total XP at which level+1 starts.
func XPToNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(level) * XPPerLevel
}

// LevelProgress describes where totalXP sits inside its level.
type LevelProgress struct {
	Level       int     `json:"level"`
	TotalXP     int64   `json:"total_xp"`
	NextLevelAt int64   `json:"next_level_at"`
	Remaining   int64   `json:"remaining"`
	Pct         float64 `json:"pct"`
}

// ProgressFor returns level progress for a total.
func ProgressFor(totalXP int64) LevelProgress {
	lvl := Level(totalXP)
	next := XPToNextLevel(lvl)
	into := totalXP - int64(lvl-1)*XPPerLevel
	return LevelProgress{
		Level:       lvl,
		TotalXP:     totalXP,
		NextLevelAt: next,
		Remaining:   next - totalXP,
		Pct:         float64(into) / XPPerLevel * 100.0,
	}
}
