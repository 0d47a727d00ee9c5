package domain

import "time"

// CalendarDaysBetween counts midnight boundaries crossed from a to b in loc.
// It is negative when b falls on an earlier day than a.
func CalendarDaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	// Noon UTC keeps DST shifts from moving the day count.
	da := time.Date(ay, am, ad, 12, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 12, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// NextDay returns midnight of the calendar day after t.
func NextDay(t time.Time, loc *time.Location) time.Time {
	s := StartOfDay(t, loc)
	return time.Date(s.Year(), s.Month(), s.Day()+1, 0, 0, 0, 0, s.Location())
}

// NextMonday returns midnight of the next Monday strictly after t's day.
func NextMonday(t time.Time, loc *time.Location) time.Time {
	s := StartOfDay(t, loc)
	days := (8 - int(s.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	return time.Date(s.Year(), s.Month(), s.Day()+days, 0, 0, 0, 0, s.Location())
}

// LiveAt reports whether the streak is still unbroken at now: it was ticked
// today or yesterday.
func (s Streak) LiveAt(now time.Time, loc *time.Location) bool {
	if s.Count == 0 {
		return false
	}
	return CalendarDaysBetween(s.LastUpdated, now, loc) <= 1
}

// LiveStreakDays is the highest live count among streaks, 0 when none is live.
func LiveStreakDays(streaks []Streak, now time.Time, loc *time.Location) int {
	best := 0
	for _, s := range streaks {
		if s.LiveAt(now, loc) && s.Count > best {
			best = s.Count
		}
	}
	return best
}
