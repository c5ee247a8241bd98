// Package timefmt renders message and presence timestamps the way chat
// clients display them: recent times collapse to relative buckets,
// older ones fall back to a short date.
package timefmt

import (
	"fmt"
	"time"
)

// MessageTime renders a message timestamp relative to now. Today's
// messages show the clock time, yesterday's say so, the rest of the
// week shows the weekday, anything older the short date.
func MessageTime(at, now time.Time) string {
	at, now = at.Local(), now.Local()

	if sameDay(at, now) {
		return at.Format("3:04 PM")
	}
	if sameDay(at, now.AddDate(0, 0, -1)) {
		return "Yesterday"
	}
	if !at.Before(startOfDay(now.AddDate(0, 0, -6))) {
		return at.Format("Mon")
	}
	return at.Format("Jan 2")
}

// LastSeen renders when a contact was last online.
func LastSeen(at, now time.Time) string {
	d := now.Sub(at)

	if d < time.Minute {
		return "Just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return plural(int(d.Hours()), "hour")
	}
	if days := int(d.Hours() / 24); days < 7 {
		return plural(days, "day")
	}
	return at.Local().Format("Jan 2")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
